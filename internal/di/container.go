package di

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/hanko-field/quickorder/internal/handlers"
	"github.com/hanko-field/quickorder/internal/merchant"
	"github.com/hanko-field/quickorder/internal/notifications"
	"github.com/hanko-field/quickorder/internal/payments"
	"github.com/hanko-field/quickorder/internal/platform/config"
	pfirestore "github.com/hanko-field/quickorder/internal/platform/firestore"
	"github.com/hanko-field/quickorder/internal/platform/observability"
	"github.com/hanko-field/quickorder/internal/repositories"
	firestoreRepo "github.com/hanko-field/quickorder/internal/repositories/firestore"
	"github.com/hanko-field/quickorder/internal/rules"
	"github.com/hanko-field/quickorder/internal/services"
	"github.com/hanko-field/quickorder/internal/shipping"
)

// Container owns the runtime dependencies of the quick-order API.
type Container struct {
	Config  config.Config
	Logger  *zap.Logger
	Metrics *observability.Metrics
	Service services.QuickOrderService
	Router  http.Handler

	closers []namedCloser
}

type namedCloser struct {
	name  string
	close func() error
}

// NewContainer builds every component from cfg. Optional integrations are enabled only when
// their configuration is present.
func NewContainer(ctx context.Context, cfg config.Config, logger *zap.Logger, build handlers.BuildInfo) (*Container, error) {
	if logger == nil {
		return nil, errors.New("di: logger is required")
	}
	c := &Container{Config: cfg, Logger: logger, Metrics: observability.NewMetrics()}
	if err := c.build(ctx, build); err != nil {
		_ = c.Close(context.Background())
		return nil, err
	}
	return c, nil
}

func (c *Container) build(ctx context.Context, build handlers.BuildInfo) error {
	cfg := c.Config
	diag := observability.NewDiagnostics(c.Logger, c.Metrics)

	firestoreProvider := pfirestore.NewProvider(cfg.Firestore)
	c.onClose("firestore", firestoreProvider.Close)
	checks := []repositories.DependencyCheck{{Name: "firestore", Check: firestoreProvider.Ping}}

	catalogRepo, err := firestoreRepo.NewCatalogRepository(firestoreProvider)
	if err != nil {
		return fmt.Errorf("build catalog repository: %w", err)
	}
	regionRepo, err := firestoreRepo.NewRegionRepository(firestoreProvider)
	if err != nil {
		return fmt.Errorf("build region repository: %w", err)
	}
	quoteRepo, err := firestoreRepo.NewQuoteRepository(firestoreProvider)
	if err != nil {
		return fmt.Errorf("build quote repository: %w", err)
	}
	counterRepo, err := firestoreRepo.NewCounterRepository(firestoreProvider)
	if err != nil {
		return fmt.Errorf("build counter repository: %w", err)
	}
	orderRepo, err := firestoreRepo.NewOrderRepository(firestoreProvider, counterRepo)
	if err != nil {
		return fmt.Errorf("build order repository: %w", err)
	}
	ruleRepo, err := firestoreRepo.NewRuleRepository(firestoreProvider)
	if err != nil {
		return fmt.Errorf("build rule repository: %w", err)
	}
	paymentConfigRepo, err := firestoreRepo.NewPaymentMethodRepository(firestoreProvider)
	if err != nil {
		return fmt.Errorf("build payment method repository: %w", err)
	}

	configProvider, redisCheck, err := c.buildConfigProvider(cfg, diag)
	if err != nil {
		return err
	}
	if redisCheck != nil {
		checks = append(checks, *redisCheck)
	}

	ruleEngine, err := rules.NewEngine(rules.EngineDeps{
		Rules:       ruleRepo,
		Prices:      catalogRepo,
		Diagnostics: diag,
	})
	if err != nil {
		return fmt.Errorf("build rule engine: %w", err)
	}

	rateProvider, err := buildRateProvider(cfg)
	if err != nil {
		return err
	}

	registry, err := buildPaymentRegistry(cfg, paymentConfigRepo, diag)
	if err != nil {
		return err
	}

	notifier, notifyChecks, err := c.buildNotifier(ctx, cfg)
	if err != nil {
		return err
	}
	checks = append(checks, notifyChecks...)

	builder, err := services.NewVirtualCartBuilder(services.VirtualCartBuilderDeps{
		Catalog:     catalogRepo,
		Regions:     regionRepo,
		Carts:       quoteRepo,
		Diagnostics: diag,
	})
	if err != nil {
		return fmt.Errorf("build cart builder: %w", err)
	}
	collector, err := services.NewShippingRateCollector(services.ShippingRateCollectorDeps{
		Provider:    rateProvider,
		Builder:     builder,
		Catalog:     catalogRepo,
		Diagnostics: diag,
	})
	if err != nil {
		return fmt.Errorf("build shipping collector: %w", err)
	}
	resolver, err := services.NewPaymentMethodResolver(services.PaymentMethodResolverDeps{
		Registry:    registry,
		Config:      configProvider,
		Diagnostics: diag,
	})
	if err != nil {
		return fmt.Errorf("build payment resolver: %w", err)
	}
	pricing, err := services.NewPricingEngine(services.PricingEngineDeps{
		Builder:     builder,
		Shipping:    collector,
		Rules:       ruleEngine,
		Catalog:     catalogRepo,
		Diagnostics: diag,
	})
	if err != nil {
		return fmt.Errorf("build pricing engine: %w", err)
	}
	assembler, err := services.NewOrderAssembler(services.OrderAssemblerDeps{
		Builder:     builder,
		Shipping:    collector,
		Pricing:     pricing,
		Orders:      orderRepo,
		Notifier:    notifier,
		Diagnostics: diag,
	})
	if err != nil {
		return fmt.Errorf("build order assembler: %w", err)
	}
	c.Service, err = services.NewQuickOrderService(services.QuickOrderServiceDeps{
		Shipping:    collector,
		Payments:    resolver,
		Pricing:     pricing,
		Assembler:   assembler,
		Config:      configProvider,
		Diagnostics: diag,
		Observer:    c.Metrics,
	})
	if err != nil {
		return fmt.Errorf("build quick order service: %w", err)
	}

	health, err := repositories.NewDependencyHealthRepository(checks, time.Now)
	if err != nil {
		return fmt.Errorf("build health repository: %w", err)
	}

	c.Router = handlers.NewRouter(
		handlers.WithMiddlewares(
			observability.TraceMiddleware(cfg.Observability.ProjectID),
			observability.InjectLoggerMiddleware(c.Logger),
			observability.RequestLoggerMiddleware(),
			c.Metrics.Middleware,
			observability.RecoveryMiddleware(c.Logger),
		),
		handlers.WithHealthHandlers(handlers.NewHealthHandlers(
			handlers.WithHealthBuildInfo(build),
			handlers.WithHealthRepository(health),
		)),
		handlers.WithMetricsHandler(c.Metrics.Handler()),
		handlers.WithQuickOrderRoutes(handlers.NewQuickOrderHandlers(c.Service).Routes),
	)
	return nil
}

func (c *Container) buildConfigProvider(cfg config.Config, diag services.Diagnostics) (services.ConfigProvider, *repositories.DependencyCheck, error) {
	static := merchant.NewStaticProvider(cfg.Merchant)
	if strings.TrimSpace(cfg.Redis.Addr) == "" {
		return static, nil, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	c.onClose("redis", client.Close)

	provider, err := merchant.NewRedisProvider(merchant.RedisProviderDeps{
		Client:      client,
		Static:      static,
		KeyPrefix:   cfg.Redis.KeyPrefix,
		Timeout:     cfg.Redis.Timeout,
		Diagnostics: diag,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("build redis merchant provider: %w", err)
	}
	check := &repositories.DependencyCheck{
		Name: "redis",
		Check: func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		},
	}
	return provider, check, nil
}

func buildRateProvider(cfg config.Config) (*shipping.TableRateProvider, error) {
	currency := cfg.Merchant.Settings.Store.Currency
	table := shipping.DefaultTable(currency, cfg.Merchant.Settings.FlatRatePrice)
	if path := strings.TrimSpace(cfg.Shipping.RatesFile); path != "" {
		loaded, err := shipping.LoadTable(path, currency)
		if err != nil {
			return nil, fmt.Errorf("load shipping rates: %w", err)
		}
		table = loaded
	}
	provider, err := shipping.NewTableRateProvider(table)
	if err != nil {
		return nil, fmt.Errorf("build shipping rate provider: %w", err)
	}
	return provider, nil
}

func buildPaymentRegistry(cfg config.Config, configs repositories.PaymentMethodConfigRepository, diag services.Diagnostics) (*payments.Registry, error) {
	var integrations []payments.Integration
	if strings.TrimSpace(cfg.Stripe.APIKey) != "" && strings.TrimSpace(cfg.Stripe.AccountID) != "" {
		stripeIntegration, err := payments.NewStripeIntegration(payments.StripeIntegrationConfig{
			APIKey:    cfg.Stripe.APIKey,
			AccountID: cfg.Stripe.AccountID,
			Title:     cfg.Merchant.PaymentTitles[payments.StripeMethodCode],
		})
		if err != nil {
			return nil, fmt.Errorf("build stripe integration: %w", err)
		}
		integrations = append(integrations, stripeIntegration)
	}
	registry, err := payments.NewRegistry(payments.RegistryDeps{
		Configs:      configs,
		Integrations: integrations,
		Diagnostics:  diag,
	})
	if err != nil {
		return nil, fmt.Errorf("build payment registry: %w", err)
	}
	return registry, nil
}

// buildNotifier returns nil when no transport is configured.
func (c *Container) buildNotifier(ctx context.Context, cfg config.Config) (services.NotificationSender, []repositories.DependencyCheck, error) {
	senders := make(map[string]services.NotificationSender)
	var checks []repositories.DependencyCheck

	for _, transport := range cfg.Notifications.Transports {
		switch transport {
		case config.TransportPubSub:
			topic, err := c.openPubSubTopic(ctx, cfg.PubSub, cfg.Firestore.ProjectID)
			if err != nil {
				return nil, nil, err
			}
			sender, err := notifications.NewPubSubSender(topic)
			if err != nil {
				return nil, nil, fmt.Errorf("build pubsub sender: %w", err)
			}
			c.onClose("pubsub topic", sender.Close)
			senders[config.TransportPubSub] = sender
			checks = append(checks, repositories.DependencyCheck{
				Name: "pubsub",
				Check: func(ctx context.Context) error {
					ok, err := topic.Exists(ctx)
					if err != nil {
						return err
					}
					if !ok {
						return fmt.Errorf("topic %s does not exist", topic.ID())
					}
					return nil
				},
			})
		case config.TransportKafka:
			writer := notifications.NewKafkaWriter(cfg.Kafka, c.Logger)
			sender, err := notifications.NewKafkaSender(writer)
			if err != nil {
				return nil, nil, fmt.Errorf("build kafka sender: %w", err)
			}
			c.onClose("kafka writer", sender.Close)
			senders[config.TransportKafka] = sender
			brokers := append([]string(nil), cfg.Kafka.Brokers...)
			checks = append(checks, repositories.DependencyCheck{
				Name: "kafka",
				Check: func(ctx context.Context) error {
					return dialAnyBroker(ctx, brokers)
				},
			})
		default:
			return nil, nil, fmt.Errorf("unknown notification transport %q", transport)
		}
	}

	if len(senders) == 0 {
		c.Logger.Info("order notifications disabled: no transports configured")
		return nil, nil, nil
	}
	fanOut, err := notifications.NewFanOut(senders)
	if err != nil {
		return nil, nil, fmt.Errorf("build notification fan-out: %w", err)
	}
	return fanOut, checks, nil
}

func (c *Container) openPubSubTopic(ctx context.Context, cfg config.PubSubConfig, fallbackProject string) (*pubsub.Topic, error) {
	projectID := strings.TrimSpace(cfg.ProjectID)
	if projectID == "" {
		projectID = strings.TrimSpace(fallbackProject)
	}
	var opts []option.ClientOption
	if host := strings.TrimSpace(cfg.EmulatorHost); host != "" {
		opts = append(opts,
			option.WithEndpoint(host),
			option.WithoutAuthentication(),
			option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
		)
	}
	client, err := pubsub.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	c.onClose("pubsub client", client.Close)
	return client.Topic(cfg.OrderTopic), nil
}

func dialAnyBroker(ctx context.Context, brokers []string) error {
	var errs []error
	for _, broker := range brokers {
		conn, err := kafka.DialContext(ctx, "tcp", broker)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		return conn.Close()
	}
	if len(errs) == 0 {
		return errors.New("no kafka brokers configured")
	}
	return errors.Join(errs...)
}

func (c *Container) onClose(name string, fn func() error) {
	c.closers = append(c.closers, namedCloser{name: name, close: fn})
}

// Close releases resources in reverse order of acquisition.
func (c *Container) Close(ctx context.Context) error {
	if c == nil {
		return nil
	}
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		closer := c.closers[i]
		if err := closer.close(); err != nil {
			c.Logger.Warn("close error", zap.String("resource", closer.name), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", closer.name, err))
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}
