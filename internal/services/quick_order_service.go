package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hanko-field/quickorder/internal/domain"
)

const (
	msgQuickOrderDisabled = "Quick order is not enabled."
	msgInvalidPhone       = "Please enter a valid phone number."
)

var tracer = otel.Tracer("github.com/hanko-field/quickorder/internal/services")

// OperationObserver records facade operation latency.
type OperationObserver interface {
	ObserveOperation(operation string, elapsed time.Duration)
}

// QuickOrderServiceDeps wires the facade to its pipeline components.
type QuickOrderServiceDeps struct {
	Shipping    *ShippingRateCollector
	Payments    *PaymentMethodResolver
	Pricing     *PricingEngine
	Assembler   *OrderAssembler
	Config      ConfigProvider
	Diagnostics Diagnostics
	Observer    OperationObserver
	Clock       func() time.Time
}

type quickOrderService struct {
	shipping  *ShippingRateCollector
	payments  *PaymentMethodResolver
	pricing   *PricingEngine
	assembler *OrderAssembler
	config    ConfigProvider
	diag      Diagnostics
	observer  OperationObserver
	clock     func() time.Time
}

// NewQuickOrderService assembles the facade used by the HTTP layer.
func NewQuickOrderService(deps QuickOrderServiceDeps) (QuickOrderService, error) {
	switch {
	case deps.Shipping == nil:
		return nil, errors.New("quick order service: shipping collector is required")
	case deps.Payments == nil:
		return nil, errors.New("quick order service: payment resolver is required")
	case deps.Pricing == nil:
		return nil, errors.New("quick order service: pricing engine is required")
	case deps.Assembler == nil:
		return nil, errors.New("quick order service: order assembler is required")
	case deps.Config == nil:
		return nil, errors.New("quick order service: config provider is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	return &quickOrderService{
		shipping:  deps.Shipping,
		payments:  deps.Payments,
		pricing:   deps.Pricing,
		assembler: deps.Assembler,
		config:    deps.Config,
		diag:      diagnosticsOrNoop(deps.Diagnostics),
		observer:  deps.Observer,
		clock:     clock,
	}, nil
}

func (s *quickOrderService) GetAvailableShippingMethods(ctx context.Context, query ShippingMethodsQuery) []domain.ShippingRateOption {
	ctx, done := s.begin(ctx, "get_available_shipping_methods", attribute.String("product_id", query.ProductID))
	defer done(nil)

	settings, ok := s.enabledSettings(ctx)
	if !ok {
		return []domain.ShippingRateOption{}
	}
	return s.shipping.AvailableMethods(ctx, query, settings)
}

func (s *quickOrderService) GetAvailablePaymentMethods(ctx context.Context) []domain.PaymentMethodOption {
	ctx, done := s.begin(ctx, "get_available_payment_methods")
	defer done(nil)

	settings, ok := s.enabledSettings(ctx)
	if !ok {
		return []domain.PaymentMethodOption{}
	}
	return s.payments.Resolve(ctx, settings)
}

// CalculateShippingCost is answered whether or not quick order is enabled.
func (s *quickOrderService) CalculateShippingCost(ctx context.Context, query ShippingCostQuery) int64 {
	ctx, done := s.begin(ctx, "calculate_shipping_cost",
		attribute.String("product_id", query.ProductID),
		attribute.String("method", query.MethodCode),
	)
	defer done(nil)

	settings, err := s.config.Settings(ctx)
	if err != nil {
		s.diag.Log(ctx, LevelError, "quickorder.settings_unavailable", map[string]any{"error": err.Error()})
		return 0
	}
	return s.shipping.CalculateCost(ctx, query, settings)
}

func (s *quickOrderService) CalculateOrderTotal(ctx context.Context, cmd PriceQuoteCommand) domain.PriceBreakdown {
	ctx, done := s.begin(ctx, "calculate_order_total",
		attribute.String("product_id", cmd.ProductID),
		attribute.Int("qty", cmd.Quantity),
	)
	defer done(nil)

	settings, ok := s.enabledSettings(ctx)
	if !ok {
		return ZeroBreakdown(settings.Store.Currency)
	}
	return s.pricing.Calculate(ctx, cmd, settings)
}

func (s *quickOrderService) CreateOrder(ctx context.Context, cmd PlaceOrderCommand) (result domain.OrderResult, err error) {
	ctx, done := s.begin(ctx, "create_order", attribute.String("product_id", cmd.ProductID))
	defer func() { done(err) }()

	settings, err := s.config.Settings(ctx)
	if err != nil {
		s.diag.Log(ctx, LevelError, "quickorder.settings_unavailable", map[string]any{"error": err.Error()})
		return domain.OrderResult{}, &PipelineError{Kind: ErrorKindProvider, Op: "quickorder.settings", Message: unableToCreateOrder, Err: errors.Join(ErrQuickOrderUnavailable, err)}
	}
	if !settings.Enabled {
		return domain.OrderResult{}, &PipelineError{Kind: ErrorKindValidation, Op: "quickorder.enabled", Message: msgQuickOrderDisabled, Err: ErrQuickOrderDisabled}
	}
	if settings.PhoneValidation && !ValidPhoneNumber(FormatPhoneNumber(cmd.CustomerPhone)) {
		return domain.OrderResult{}, &PipelineError{Kind: ErrorKindValidation, Op: "quickorder.phone", Message: msgInvalidPhone, Err: ErrQuickOrderInvalidInput}
	}

	result, err = s.assembler.PlaceOrder(ctx, cmd, settings)
	if err != nil {
		return domain.OrderResult{}, err
	}
	return result, nil
}

func (s *quickOrderService) GetFormSettings(ctx context.Context) domain.FormSettings {
	ctx, done := s.begin(ctx, "get_form_settings")
	defer done(nil)

	settings, err := s.config.Settings(ctx)
	if err != nil {
		s.diag.Log(ctx, LevelError, "quickorder.settings_unavailable", map[string]any{"error": err.Error()})
		return domain.FormSettings{DefaultCountry: domain.DefaultCountryCode}
	}
	return settings.Form()
}

// enabledSettings loads merchant settings. Unavailable settings count as disabled.
func (s *quickOrderService) enabledSettings(ctx context.Context) (domain.MerchantSettings, bool) {
	settings, err := s.config.Settings(ctx)
	if err != nil {
		s.diag.Log(ctx, LevelError, "quickorder.settings_unavailable", map[string]any{"error": err.Error()})
		return domain.MerchantSettings{}, false
	}
	if !settings.Enabled {
		s.diag.Log(ctx, LevelDebug, "quickorder.disabled", nil)
		return settings, false
	}
	return settings, true
}

func (s *quickOrderService) begin(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	started := s.clock()
	ctx, span := tracer.Start(ctx, "quickorder."+operation, trace.WithAttributes(attrs...))
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, strings.TrimSpace(err.Error()))
		}
		span.End()
		if s.observer != nil {
			s.observer.ObserveOperation(operation, s.clock().Sub(started))
		}
	}
}
