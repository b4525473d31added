// Package payments lists the payment methods a store can take quick orders with.
package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hanko-field/quickorder/internal/domain"
	"github.com/hanko-field/quickorder/internal/repositories"
	"github.com/hanko-field/quickorder/internal/services"
)

// Integration is a payment method backed by an external provider whose availability is
// checked at runtime.
type Integration interface {
	Code() string
	Title() string
	Available(ctx context.Context, store domain.StoreContext) (bool, error)
}

// RegistryDeps wires the registry.
type RegistryDeps struct {
	Configs      repositories.PaymentMethodConfigRepository
	Integrations []Integration
	Diagnostics  services.Diagnostics
}

// Registry implements services.PaymentMethodRegistry.
type Registry struct {
	configs      repositories.PaymentMethodConfigRepository
	integrations map[string]Integration
	diag         services.Diagnostics
}

var _ services.PaymentMethodRegistry = (*Registry)(nil)

// NewRegistry constructs a registry. Integration codes must be unique.
func NewRegistry(deps RegistryDeps) (*Registry, error) {
	if deps.Configs == nil {
		return nil, errors.New("payments: config repository is required")
	}
	integrations := make(map[string]Integration, len(deps.Integrations))
	for _, integration := range deps.Integrations {
		if integration == nil {
			continue
		}
		code := strings.TrimSpace(integration.Code())
		if code == "" {
			return nil, errors.New("payments: integration code is required")
		}
		if _, dup := integrations[code]; dup {
			return nil, fmt.Errorf("payments: duplicate integration %q", code)
		}
		integrations[code] = integration
	}
	diag := deps.Diagnostics
	if diag == nil {
		diag = services.DiagnosticsFunc(func(context.Context, services.DiagnosticLevel, string, map[string]any) {})
	}
	return &Registry{configs: deps.Configs, integrations: integrations, diag: diag}, nil
}

// ActiveMethods returns the configured methods for the store, dropping integrations that report
// themselves unavailable. An integration that cannot be reached is treated as unavailable.
func (r *Registry) ActiveMethods(ctx context.Context, store domain.StoreContext) ([]domain.RegisteredPaymentMethod, error) {
	configured, err := r.configs.ListConfigured(ctx, store.StoreID)
	if err != nil {
		return nil, fmt.Errorf("payments: list configured methods: %w", err)
	}
	out := make([]domain.RegisteredPaymentMethod, 0, len(configured))
	for _, method := range configured {
		integration, ok := r.integrations[method.Code]
		if !ok {
			out = append(out, method)
			continue
		}
		available, err := integration.Available(ctx, store)
		if err != nil {
			r.diag.Log(ctx, services.LevelWarn, "payments.integration_unavailable", map[string]any{
				"method": method.Code,
				"error":  err.Error(),
			})
			continue
		}
		if !available {
			continue
		}
		if method.Title == "" {
			method.Title = integration.Title()
		}
		out = append(out, method)
	}
	return out, nil
}
