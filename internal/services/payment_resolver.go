package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hanko-field/quickorder/internal/domain"
)

var knownPaymentTitles = []struct {
	code  string
	title string
}{
	{"checkmo", "Check / Money Order"},
	{"banktransfer", "Bank Transfer Payment"},
	{"cashondelivery", "Cash on Delivery"},
	{"free", "No Payment Information Required"},
	{"purchaseorder", "Purchase Order"},
	{"paypal_express", "PayPal Express Checkout"},
	{"authorizenet_directpost", "Credit Card Direct Post"},
	{"braintree", "Credit Card (Braintree)"},
	{"stripe_payments", "Credit Card (Stripe)"},
}

// PaymentMethodTitle returns the display title for a payment method code when the integration
// supplies none.
func PaymentMethodTitle(code string) string {
	for _, known := range knownPaymentTitles {
		if known.code == code {
			return known.title
		}
	}
	return titleCaseCode(code)
}

// PaymentMethodResolverDeps wires the payment method resolver.
type PaymentMethodResolverDeps struct {
	Registry    PaymentMethodRegistry
	Config      ConfigProvider
	Diagnostics Diagnostics
}

// PaymentMethodResolver lists the payment methods a quick order may use.
type PaymentMethodResolver struct {
	registry PaymentMethodRegistry
	config   ConfigProvider
	diag     Diagnostics
}

// NewPaymentMethodResolver validates dependencies.
func NewPaymentMethodResolver(deps PaymentMethodResolverDeps) (*PaymentMethodResolver, error) {
	if deps.Config == nil {
		return nil, errors.New("payment method resolver: config provider is required")
	}
	return &PaymentMethodResolver{
		registry: deps.Registry,
		config:   deps.Config,
		diag:     diagnosticsOrNoop(deps.Diagnostics),
	}, nil
}

// Resolve never fails. Registry errors fall back to scanning per-method flags, and a failing
// scan falls back to cash on delivery plus check/money order.
func (r *PaymentMethodResolver) Resolve(ctx context.Context, settings domain.MerchantSettings) []domain.PaymentMethodOption {
	options, err := r.fromRegistry(ctx, settings)
	if err == nil {
		return markDefault(filterAllowed(options, settings), settings)
	}
	r.diag.Log(ctx, LevelError, "payment.fallback", map[string]any{"tier": "config_flags", "error": err.Error()})

	options, err = r.fromConfigFlags(ctx)
	if err == nil {
		return markDefault(filterAllowed(options, settings), settings)
	}
	r.diag.Log(ctx, LevelError, "payment.fallback", map[string]any{"tier": "minimal", "error": err.Error()})

	return markDefault(minimalPaymentMethods(), settings)
}

func (r *PaymentMethodResolver) fromRegistry(ctx context.Context, settings domain.MerchantSettings) ([]domain.PaymentMethodOption, error) {
	if r.registry == nil {
		return nil, providerError("payment.registry", ErrQuickOrderUnavailable)
	}
	active, err := r.registry.ActiveMethods(ctx, settings.Store)
	if err != nil {
		return nil, providerError("payment.registry", fmt.Errorf("list active methods: %w", err))
	}
	options := make([]domain.PaymentMethodOption, 0, len(active))
	for _, method := range active {
		code := strings.TrimSpace(method.Code)
		if code == "" {
			continue
		}
		title := strings.TrimSpace(method.Title)
		if title == "" {
			title = PaymentMethodTitle(code)
		}
		options = append(options, domain.PaymentMethodOption{Code: code, Title: title})
	}
	return dedupePaymentOptions(options), nil
}

func (r *PaymentMethodResolver) fromConfigFlags(ctx context.Context) ([]domain.PaymentMethodOption, error) {
	options := make([]domain.PaymentMethodOption, 0, len(knownPaymentTitles))
	for _, known := range knownPaymentTitles {
		flag, err := r.config.PaymentMethodFlag(ctx, known.code)
		if err != nil {
			return nil, providerError("payment.config_flags", fmt.Errorf("read %s flag: %w", known.code, err))
		}
		if !flag.Active {
			continue
		}
		title := strings.TrimSpace(flag.Title)
		if title == "" {
			title = known.title
		}
		options = append(options, domain.PaymentMethodOption{Code: known.code, Title: title})
	}
	return options, nil
}

func minimalPaymentMethods() []domain.PaymentMethodOption {
	return []domain.PaymentMethodOption{
		{Code: "cashondelivery", Title: PaymentMethodTitle("cashondelivery")},
		{Code: "checkmo", Title: PaymentMethodTitle("checkmo")},
	}
}

func filterAllowed(options []domain.PaymentMethodOption, settings domain.MerchantSettings) []domain.PaymentMethodOption {
	filtered := make([]domain.PaymentMethodOption, 0, len(options))
	for _, option := range options {
		if settings.PaymentMethodEnabled(option.Code) {
			filtered = append(filtered, option)
		}
	}
	return filtered
}

func dedupePaymentOptions(options []domain.PaymentMethodOption) []domain.PaymentMethodOption {
	seen := make(map[string]struct{}, len(options))
	out := options[:0]
	for _, option := range options {
		if _, ok := seen[option.Code]; ok {
			continue
		}
		seen[option.Code] = struct{}{}
		out = append(out, option)
	}
	return out
}

func markDefault(options []domain.PaymentMethodOption, settings domain.MerchantSettings) []domain.PaymentMethodOption {
	def := strings.TrimSpace(settings.DefaultPaymentMethod)
	for i := range options {
		options[i].Default = def != "" && options[i].Code == def
	}
	return options
}
