package config

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/hanko-field/quickorder/internal/domain"
	"github.com/hanko-field/quickorder/internal/platform/money"
)

const (
	defaultEnvFile          = ".env"
	defaultPort             = "8080"
	defaultReadTimeout      = 15 * time.Second
	defaultWriteTimeout     = 30 * time.Second
	defaultIdleTimeout      = 120 * time.Second
	defaultShutdownTimeout  = 20 * time.Second
	defaultServiceName      = "quickorder"
	defaultRedisKeyPrefix   = "quickorder:settings"
	defaultRedisTimeout     = 500 * time.Millisecond
	defaultKafkaTopic       = "quickorder.orders"
	defaultPubSubTopic      = "quickorder-orders"
	defaultStoreID          = "default"
	defaultWebsiteID        = "base"
	defaultCurrency         = "EGP"
	defaultLocale           = "en"
	defaultOrderStatus      = "pending"
	defaultOrderState       = "new"
)

// Transport names accepted by API_NOTIFICATIONS_TRANSPORTS.
const (
	TransportPubSub = "pubsub"
	TransportKafka  = "kafka"
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server        ServerConfig
	Firestore     FirestoreConfig
	PubSub        PubSubConfig
	Kafka         KafkaConfig
	Redis         RedisConfig
	Stripe        StripeConfig
	Shipping      ShippingConfig
	Notifications NotificationsConfig
	Merchant      MerchantConfig
	Observability ObservabilityConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// FirestoreConfig stores database parameters.
type FirestoreConfig struct {
	ProjectID    string
	EmulatorHost string
}

// PubSubConfig names the order confirmation topic.
type PubSubConfig struct {
	ProjectID    string
	OrderTopic   string
	EmulatorHost string
}

// KafkaConfig points the Kafka notification writer at a cluster.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// RedisConfig enables the live merchant settings overlay when Addr is set.
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
	Timeout   time.Duration
}

// StripeConfig enables the Stripe payment integration when APIKey is set.
type StripeConfig struct {
	APIKey    string
	AccountID string
}

// ShippingConfig locates the carrier rate table.
type ShippingConfig struct {
	RatesFile string
}

// NotificationsConfig lists the transports order confirmations fan out to.
type NotificationsConfig struct {
	Transports []string
}

// MerchantConfig holds the static merchant defaults and payment method flags.
type MerchantConfig struct {
	Settings      domain.MerchantSettings
	ActivePayment []string
	PaymentTitles map[string]string
}

// ObservabilityConfig configures logging and trace correlation.
type ObservabilityConfig struct {
	ProjectID   string
	ServiceName string
	LogLevel    string
}

// PaymentFlags expands the configured payment flags into domain values keyed by code.
func (m MerchantConfig) PaymentFlags() map[string]domain.PaymentMethodFlag {
	flags := make(map[string]domain.PaymentMethodFlag, len(m.ActivePayment)+len(m.PaymentTitles))
	for code, title := range m.PaymentTitles {
		flags[code] = domain.PaymentMethodFlag{Code: code, Title: title}
	}
	for _, code := range m.ActivePayment {
		flag := flags[code]
		flag.Code = code
		flag.Active = true
		flags[code] = flag
	}
	return flags
}

// SecretResolver resolves references to external secrets (e.g. Secret Manager URIs).
type SecretResolver interface {
	ResolveSecret(ctx context.Context, ref string) (string, error)
}

// SecretResolverFunc adapts ordinary functions to SecretResolver.
type SecretResolverFunc func(context.Context, string) (string, error)

// ResolveSecret resolves the secret using the wrapped function.
func (f SecretResolverFunc) ResolveSecret(ctx context.Context, ref string) (string, error) {
	return f(ctx, ref)
}

// ValidationError is returned when required configuration fields are missing or invalid.
type ValidationError struct {
	fields []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the missing/invalid field list.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

// SecretError describes failures while resolving a secret reference.
type SecretError struct {
	Ref string
	Err error
}

func (e *SecretError) Error() string {
	return fmt.Sprintf("secret resolution failed for ref %q: %v", e.Ref, e.Err)
}

func (e *SecretError) Unwrap() error { return e.Err }

var errSecretResolverNotConfigured = errors.New("secret resolver not configured")

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile      string
	envMap       map[string]string
	useSystemEnv bool
	secret       SecretResolver
}

// WithEnvFile overrides the .env file path used for local overrides.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// WithEnvMap injects explicit values that take precedence over the environment.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
	}
}

// WithoutSystemEnv disables reading from os.Getenv.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

// WithSecretResolver sets the resolver used for sm:// and secret:// references.
func WithSecretResolver(resolver SecretResolver) Option {
	return func(o *loaderOptions) {
		o.secret = resolver
	}
}

// Load assembles configuration from defaults, .env overrides, environment variables
// and Secret Manager references.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
	}
	for _, opt := range opts {
		opt(&options)
	}

	dotEnvValues, err := loadDotEnv(options.envFile)
	if err != nil {
		return Config{}, err
	}

	lookup := func(key string) (string, bool) {
		if value, ok := options.envMap[key]; ok {
			return value, true
		}
		if options.useSystemEnv {
			if value, ok := os.LookupEnv(key); ok {
				return value, true
			}
		}
		value, ok := dotEnvValues[key]
		return value, ok
	}

	var invalid []string
	currency := strings.ToUpper(stringWithDefault(lookup, "API_MERCHANT_CURRENCY", defaultCurrency))
	price := func(key string) int64 {
		raw, ok := lookup(key)
		if !ok || strings.TrimSpace(raw) == "" {
			return 0
		}
		amount, err := money.Parse(raw, currency)
		if err != nil || amount < 0 {
			invalid = append(invalid, key)
			return 0
		}
		return amount
	}

	cfg := Config{
		Server: ServerConfig{
			Port:            stringWithDefault(lookup, "API_SERVER_PORT", defaultPort),
			ReadTimeout:     durationWithDefault(lookup, "API_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout:    durationWithDefault(lookup, "API_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:     durationWithDefault(lookup, "API_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
			ShutdownTimeout: durationWithDefault(lookup, "API_SERVER_SHUTDOWN_TIMEOUT", defaultShutdownTimeout),
		},
		Firestore: FirestoreConfig{
			ProjectID:    stringWithDefault(lookup, "API_FIRESTORE_PROJECT_ID", ""),
			EmulatorHost: stringWithDefault(lookup, "API_FIRESTORE_EMULATOR_HOST", ""),
		},
		PubSub: PubSubConfig{
			ProjectID:    stringWithDefault(lookup, "API_PUBSUB_PROJECT_ID", ""),
			OrderTopic:   stringWithDefault(lookup, "API_PUBSUB_ORDER_TOPIC", defaultPubSubTopic),
			EmulatorHost: stringWithDefault(lookup, "API_PUBSUB_EMULATOR_HOST", ""),
		},
		Kafka: KafkaConfig{
			Brokers: csvWithDefault(lookup, "API_KAFKA_BROKERS"),
			Topic:   stringWithDefault(lookup, "API_KAFKA_TOPIC", defaultKafkaTopic),
		},
		Redis: RedisConfig{
			Addr:      stringWithDefault(lookup, "API_REDIS_ADDR", ""),
			Password:  stringWithDefault(lookup, "API_REDIS_PASSWORD", ""),
			DB:        intWithDefault(lookup, "API_REDIS_DB", 0),
			KeyPrefix: stringWithDefault(lookup, "API_REDIS_KEY_PREFIX", defaultRedisKeyPrefix),
			Timeout:   durationWithDefault(lookup, "API_REDIS_TIMEOUT", defaultRedisTimeout),
		},
		Stripe: StripeConfig{
			APIKey:    stringWithDefault(lookup, "API_STRIPE_API_KEY", ""),
			AccountID: stringWithDefault(lookup, "API_STRIPE_ACCOUNT_ID", ""),
		},
		Shipping: ShippingConfig{
			RatesFile: stringWithDefault(lookup, "API_SHIPPING_RATES_FILE", ""),
		},
		Notifications: NotificationsConfig{
			Transports: lowerAll(csvWithDefault(lookup, "API_NOTIFICATIONS_TRANSPORTS")),
		},
		Merchant: MerchantConfig{
			Settings: domain.MerchantSettings{
				Enabled:               boolWithDefault(lookup, "API_MERCHANT_ENABLED", false),
				FormTitle:             stringWithDefault(lookup, "API_MERCHANT_FORM_TITLE", ""),
				SuccessMessage:        stringWithDefault(lookup, "API_MERCHANT_SUCCESS_MESSAGE", ""),
				SendEmailNotification: boolWithDefault(lookup, "API_MERCHANT_SEND_EMAIL", true),
				DefaultCustomerGroup:  intWithDefault(lookup, "API_MERCHANT_CUSTOMER_GROUP", domain.CustomerGroupNotLoggedIn),
				AutoGenerateEmail:     boolWithDefault(lookup, "API_MERCHANT_AUTO_GENERATE_EMAIL", true),
				EmailDomain:           stringWithDefault(lookup, "API_MERCHANT_EMAIL_DOMAIN", domain.DefaultEmailDomain),
				PhoneValidation:       boolWithDefault(lookup, "API_MERCHANT_PHONE_VALIDATION", false),
				RequireEmail:          boolWithDefault(lookup, "API_MERCHANT_REQUIRE_EMAIL", false),
				RequirePostcode:       boolWithDefault(lookup, "API_MERCHANT_REQUIRE_POSTCODE", false),
				RequireRegion:         boolWithDefault(lookup, "API_MERCHANT_REQUIRE_REGION", false),
				RequireCity:           boolWithDefault(lookup, "API_MERCHANT_REQUIRE_CITY", true),
				ShowStreet2:           boolWithDefault(lookup, "API_MERCHANT_SHOW_STREET2", false),
				RegionFieldType:       stringWithDefault(lookup, "API_MERCHANT_REGION_FIELD_TYPE", "text"),
				PostcodeFieldType:     stringWithDefault(lookup, "API_MERCHANT_POSTCODE_FIELD_TYPE", "text"),
				EnabledPaymentMethods: csvWithDefault(lookup, "API_MERCHANT_PAYMENT_METHODS"),
				DefaultPaymentMethod:  stringWithDefault(lookup, "API_MERCHANT_DEFAULT_PAYMENT_METHOD", ""),
				DefaultOrderStatus:    stringWithDefault(lookup, "API_MERCHANT_ORDER_STATUS", defaultOrderStatus),
				DefaultOrderState:     stringWithDefault(lookup, "API_MERCHANT_ORDER_STATE", defaultOrderState),
				FallbackShippingPrice: price("API_MERCHANT_FALLBACK_SHIPPING_PRICE"),
				DefaultShippingPrice:  price("API_MERCHANT_DEFAULT_SHIPPING_PRICE"),
				FlatRatePrice:         price("API_MERCHANT_FLATRATE_PRICE"),
				FreeShippingThreshold: price("API_MERCHANT_FREE_SHIPPING_THRESHOLD"),
				DefaultCountry:        strings.ToUpper(stringWithDefault(lookup, "API_MERCHANT_DEFAULT_COUNTRY", domain.DefaultCountryCode)),
				Store: domain.StoreContext{
					StoreID:   stringWithDefault(lookup, "API_MERCHANT_STORE_ID", defaultStoreID),
					WebsiteID: stringWithDefault(lookup, "API_MERCHANT_WEBSITE_ID", defaultWebsiteID),
					Currency:  currency,
					Locale:    stringWithDefault(lookup, "API_MERCHANT_LOCALE", defaultLocale),
					BaseURL:   stringWithDefault(lookup, "API_MERCHANT_BASE_URL", ""),
				},
			},
			ActivePayment: csvWithDefault(lookup, "API_MERCHANT_PAYMENT_ACTIVE"),
			PaymentTitles: mapWithDefault(lookup, "API_MERCHANT_PAYMENT_TITLES"),
		},
		Observability: ObservabilityConfig{
			ProjectID:   stringWithDefault(lookup, "API_OBSERVABILITY_PROJECT_ID", ""),
			ServiceName: stringWithDefault(lookup, "API_OBSERVABILITY_SERVICE_NAME", defaultServiceName),
			LogLevel:    stringWithDefault(lookup, "LOG_LEVEL", ""),
		},
	}

	if cfg.PubSub.ProjectID == "" {
		cfg.PubSub.ProjectID = cfg.Firestore.ProjectID
	}
	if cfg.Observability.ProjectID == "" {
		cfg.Observability.ProjectID = cfg.Firestore.ProjectID
	}

	secretFields := []*string{&cfg.Redis.Password, &cfg.Stripe.APIKey}
	for _, field := range secretFields {
		resolved, err := resolveSecret(ctx, *field, options.secret)
		if err != nil {
			return Config{}, err
		}
		*field = resolved
	}

	if err := validateConfig(cfg, invalid); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func resolveSecret(ctx context.Context, value string, resolver SecretResolver) (string, error) {
	if value == "" || !isSecretReference(value) {
		return value, nil
	}
	normalized := normalizeSecretReference(value)
	if resolver == nil {
		return "", &SecretError{Ref: normalized, Err: errSecretResolverNotConfigured}
	}
	secret, err := resolver.ResolveSecret(ctx, normalized)
	if err != nil {
		return "", &SecretError{Ref: normalized, Err: err}
	}
	return strings.TrimSpace(secret), nil
}

func validateConfig(cfg Config, invalid []string) error {
	missing := append([]string(nil), invalid...)

	if cfg.Server.Port == "" {
		missing = append(missing, "Server.Port")
	}
	if cfg.Firestore.ProjectID == "" {
		missing = append(missing, "Firestore.ProjectID")
	}
	if len(cfg.Merchant.Settings.Store.Currency) != 3 {
		missing = append(missing, "Merchant.Store.Currency")
	}
	if len(cfg.Merchant.Settings.DefaultCountry) != 2 {
		missing = append(missing, "Merchant.DefaultCountry")
	}
	for _, transport := range cfg.Notifications.Transports {
		switch transport {
		case TransportPubSub:
			if cfg.PubSub.OrderTopic == "" {
				missing = append(missing, "PubSub.OrderTopic")
			}
		case TransportKafka:
			if len(cfg.Kafka.Brokers) == 0 {
				missing = append(missing, "Kafka.Brokers")
			}
			if cfg.Kafka.Topic == "" {
				missing = append(missing, "Kafka.Topic")
			}
		default:
			missing = append(missing, fmt.Sprintf("Notifications.Transports[%s]", transport))
		}
	}

	if len(missing) > 0 {
		return &ValidationError{fields: missing}
	}
	return nil
}

func isSecretReference(value string) bool {
	trimmed := strings.TrimSpace(value)
	return strings.HasPrefix(trimmed, "secret://") || strings.HasPrefix(trimmed, "sm://")
}

func normalizeSecretReference(value string) string {
	trimmed := strings.TrimSpace(value)
	if strings.HasPrefix(trimmed, "sm://") {
		return "secret://" + strings.TrimPrefix(trimmed, "sm://")
	}
	return trimmed
}

func loadDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}

	file, err := os.Open(absPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: unable to read %s: %w", absPath, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	values := make(map[string]string)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		values[key] = strings.Trim(strings.TrimSpace(value), "\"'")
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: failed parsing %s: %w", absPath, err)
	}
	return values, nil
}

func stringWithDefault(lookup func(string) (string, bool), key, fallback string) string {
	if value, ok := lookup(key); ok && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func durationWithDefault(lookup func(string) (string, bool), key string, fallback time.Duration) time.Duration {
	if value, ok := lookup(key); ok && value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func intWithDefault(lookup func(string) (string, bool), key string, fallback int) int {
	if value, ok := lookup(key); ok && value != "" {
		if parsed, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return parsed
		}
	}
	return fallback
}

func boolWithDefault(lookup func(string) (string, bool), key string, fallback bool) bool {
	if value, ok := lookup(key); ok && value != "" {
		switch strings.ToLower(strings.TrimSpace(value)) {
		case "true", "1", "yes", "on":
			return true
		case "false", "0", "no", "off":
			return false
		}
	}
	return fallback
}

func csvWithDefault(lookup func(string) (string, bool), key string) []string {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func mapWithDefault(lookup func(string) (string, bool), key string) map[string]string {
	values := make(map[string]string)
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return values
	}
	for _, entry := range strings.Split(raw, ",") {
		name, value, ok := strings.Cut(strings.TrimSpace(entry), "=")
		name = strings.ToLower(strings.TrimSpace(name))
		value = strings.TrimSpace(value)
		if !ok || name == "" || value == "" {
			continue
		}
		values[name] = value
	}
	return values
}

func lowerAll(values []string) []string {
	for i, value := range values {
		values[i] = strings.ToLower(value)
	}
	return values
}
