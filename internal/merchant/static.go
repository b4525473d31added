// Package merchant serves read-only merchant configuration to the quick-order pipeline.
package merchant

import (
	"context"
	"slices"
	"strings"

	"github.com/hanko-field/quickorder/internal/domain"
	"github.com/hanko-field/quickorder/internal/platform/config"
	"github.com/hanko-field/quickorder/internal/services"
)

// StaticProvider serves the settings snapshot loaded at startup.
type StaticProvider struct {
	settings domain.MerchantSettings
	flags    map[string]domain.PaymentMethodFlag
}

var _ services.ConfigProvider = (*StaticProvider)(nil)

// NewStaticProvider builds a provider from the merchant section of the service config.
func NewStaticProvider(cfg config.MerchantConfig) *StaticProvider {
	return &StaticProvider{
		settings: cloneSettings(cfg.Settings),
		flags:    cfg.PaymentFlags(),
	}
}

// Settings returns a copy of the static snapshot.
func (p *StaticProvider) Settings(context.Context) (domain.MerchantSettings, error) {
	return cloneSettings(p.settings), nil
}

// PaymentMethodFlag returns the configured flag. Unknown codes read as inactive.
func (p *StaticProvider) PaymentMethodFlag(_ context.Context, code string) (domain.PaymentMethodFlag, error) {
	code = strings.TrimSpace(code)
	flag, ok := p.flags[code]
	if !ok {
		return domain.PaymentMethodFlag{Code: code}, nil
	}
	return flag, nil
}

func cloneSettings(s domain.MerchantSettings) domain.MerchantSettings {
	s.EnabledPaymentMethods = slices.Clone(s.EnabledPaymentMethods)
	return s
}
