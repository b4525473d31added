package merchant

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hanko-field/quickorder/internal/domain"
	"github.com/hanko-field/quickorder/internal/platform/money"
	"github.com/hanko-field/quickorder/internal/services"
)

const defaultRedisTimeout = 500 * time.Millisecond

type hashReader interface {
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd
}

// RedisProviderDeps wires the Redis overlay provider.
type RedisProviderDeps struct {
	Client      hashReader
	Static      *StaticProvider
	KeyPrefix   string
	Timeout     time.Duration
	Diagnostics services.Diagnostics
}

// RedisProvider overlays live merchant settings stored in Redis hashes on the static snapshot.
// Settings live under "<prefix>" and payment flags under "<prefix>:payment:<code>". Redis errors
// fall back to the static snapshot.
type RedisProvider struct {
	client  hashReader
	static  *StaticProvider
	prefix  string
	timeout time.Duration
	diag    services.Diagnostics
}

var _ services.ConfigProvider = (*RedisProvider)(nil)

// NewRedisProvider constructs a Redis overlay provider.
func NewRedisProvider(deps RedisProviderDeps) (*RedisProvider, error) {
	if deps.Client == nil {
		return nil, errors.New("merchant: redis client is required")
	}
	if deps.Static == nil {
		return nil, errors.New("merchant: static provider is required")
	}
	prefix := strings.TrimSpace(deps.KeyPrefix)
	if prefix == "" {
		return nil, errors.New("merchant: redis key prefix is required")
	}
	timeout := deps.Timeout
	if timeout <= 0 {
		timeout = defaultRedisTimeout
	}
	diag := deps.Diagnostics
	if diag == nil {
		diag = services.DiagnosticsFunc(func(context.Context, services.DiagnosticLevel, string, map[string]any) {})
	}
	return &RedisProvider{client: deps.Client, static: deps.Static, prefix: prefix, timeout: timeout, diag: diag}, nil
}

// Settings returns the static snapshot with every recognised Redis field applied.
func (p *RedisProvider) Settings(ctx context.Context) (domain.MerchantSettings, error) {
	settings, _ := p.static.Settings(ctx)
	fields, err := p.hash(ctx, p.prefix)
	if err != nil {
		p.diag.Log(ctx, services.LevelWarn, "merchant.fallback", map[string]any{
			"key":   p.prefix,
			"error": err.Error(),
		})
		return settings, nil
	}
	for field, value := range fields {
		if err := applySetting(&settings, field, value); err != nil {
			p.diag.Log(ctx, services.LevelWarn, "merchant.invalid_setting", map[string]any{
				"field": field,
				"error": err.Error(),
			})
		}
	}
	return settings, nil
}

// PaymentMethodFlag overlays the Redis flag hash for code on the static flag.
func (p *RedisProvider) PaymentMethodFlag(ctx context.Context, code string) (domain.PaymentMethodFlag, error) {
	flag, _ := p.static.PaymentMethodFlag(ctx, code)
	key := p.prefix + ":payment:" + flag.Code
	fields, err := p.hash(ctx, key)
	if err != nil {
		p.diag.Log(ctx, services.LevelWarn, "merchant.fallback", map[string]any{
			"key":   key,
			"error": err.Error(),
		})
		return flag, nil
	}
	if raw, ok := fields["active"]; ok {
		if active, err := strconv.ParseBool(strings.TrimSpace(raw)); err == nil {
			flag.Active = active
		}
	}
	if title, ok := fields["title"]; ok {
		flag.Title = strings.TrimSpace(title)
	}
	return flag, nil
}

func (p *RedisProvider) hash(ctx context.Context, key string) (map[string]string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	return p.client.HGetAll(ctx, key).Result()
}

func applySetting(s *domain.MerchantSettings, field, raw string) error {
	value := strings.TrimSpace(raw)
	currency := s.Store.Currency

	setBool := func(target *bool) error {
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("parse bool: %w", err)
		}
		*target = b
		return nil
	}
	setPrice := func(target *int64) error {
		amount, err := money.Parse(value, currency)
		if err != nil {
			return err
		}
		if amount < 0 {
			return errors.New("price must not be negative")
		}
		*target = amount
		return nil
	}

	switch field {
	case "enabled":
		return setBool(&s.Enabled)
	case "form_title":
		s.FormTitle = value
	case "success_message":
		s.SuccessMessage = value
	case "send_email":
		return setBool(&s.SendEmailNotification)
	case "auto_generate_email":
		return setBool(&s.AutoGenerateEmail)
	case "email_domain":
		s.EmailDomain = value
	case "phone_validation":
		return setBool(&s.PhoneValidation)
	case "require_email":
		return setBool(&s.RequireEmail)
	case "require_postcode":
		return setBool(&s.RequirePostcode)
	case "require_region":
		return setBool(&s.RequireRegion)
	case "require_city":
		return setBool(&s.RequireCity)
	case "show_street2":
		return setBool(&s.ShowStreet2)
	case "region_field_type":
		s.RegionFieldType = value
	case "postcode_field_type":
		s.PostcodeFieldType = value
	case "customer_group":
		group, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("parse int: %w", err)
		}
		s.DefaultCustomerGroup = group
	case "payment_methods":
		s.EnabledPaymentMethods = splitCSV(value)
	case "default_payment_method":
		s.DefaultPaymentMethod = value
	case "order_status":
		s.DefaultOrderStatus = value
	case "order_state":
		s.DefaultOrderState = value
	case "fallback_shipping_price":
		return setPrice(&s.FallbackShippingPrice)
	case "default_shipping_price":
		return setPrice(&s.DefaultShippingPrice)
	case "flatrate_price":
		return setPrice(&s.FlatRatePrice)
	case "free_shipping_threshold":
		return setPrice(&s.FreeShippingThreshold)
	case "default_country":
		if len(value) != 2 {
			return fmt.Errorf("country %q must be two letters", value)
		}
		s.DefaultCountry = strings.ToUpper(value)
	default:
		return fmt.Errorf("unknown field %q", field)
	}
	return nil
}

func splitCSV(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
