package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hanko-field/quickorder/internal/domain"
)

const (
	fallbackRateCode         = "fallback_standard"
	fallbackRateCarrier      = "fallback"
	fallbackRateMethod       = "standard"
	fallbackRateCarrierTitle = "Standard Shipping"
	fallbackRateMethodTitle  = "Standard Delivery"
)

// ShippingRateCollectorDeps wires the shipping rate collector.
type ShippingRateCollectorDeps struct {
	Provider    ShippingRateProvider
	Builder     *VirtualCartBuilder
	Catalog     ProductCatalog
	Diagnostics Diagnostics
}

// ShippingRateCollector turns raw carrier rates into selectable options.
type ShippingRateCollector struct {
	provider ShippingRateProvider
	builder  *VirtualCartBuilder
	catalog  ProductCatalog
	diag     Diagnostics
}

// NewShippingRateCollector validates dependencies. A nil provider is allowed and always yields
// the fallback rate.
func NewShippingRateCollector(deps ShippingRateCollectorDeps) (*ShippingRateCollector, error) {
	if deps.Builder == nil {
		return nil, errors.New("shipping rate collector: cart builder is required")
	}
	if deps.Catalog == nil {
		return nil, errors.New("shipping rate collector: product catalog is required")
	}
	return &ShippingRateCollector{
		provider: deps.Provider,
		builder:  deps.Builder,
		catalog:  deps.Catalog,
		diag:     diagnosticsOrNoop(deps.Diagnostics),
	}, nil
}

// Collect runs a fresh provider pass for cart and returns usable rates in provider order.
func (c *ShippingRateCollector) Collect(ctx context.Context, cart domain.VirtualCart) ([]domain.ShippingRateOption, error) {
	if c.provider == nil {
		return nil, providerError("shipping.collect", ErrQuickOrderUnavailable)
	}
	rates, err := c.provider.Quote(ctx, cart.Clone())
	if err != nil {
		return nil, providerError("shipping.collect", fmt.Errorf("quote rates: %w", err))
	}

	options := make([]domain.ShippingRateOption, 0, len(rates))
	seen := make(map[string]struct{}, len(rates))
	for _, rate := range rates {
		method := strings.TrimSpace(rate.MethodCode)
		if method == "" || strings.TrimSpace(rate.ErrorMessage) != "" {
			continue
		}
		carrier := strings.TrimSpace(rate.CarrierCode)
		code := carrier + "_" + method
		if _, dup := seen[code]; dup {
			continue
		}
		seen[code] = struct{}{}
		options = append(options, domain.ShippingRateOption{
			Code:         code,
			CarrierCode:  carrier,
			MethodCode:   method,
			CarrierTitle: rate.CarrierTitle,
			MethodTitle:  rate.MethodTitle,
			Price:        rate.Price,
		})
	}

	c.diag.Log(ctx, LevelDebug, "shipping.rates_collected", map[string]any{
		"quoted": len(rates),
		"usable": len(options),
	})
	return options, nil
}

// CollectOrFallback never fails: provider errors and empty results become the single
// fallback_standard option.
func (c *ShippingRateCollector) CollectOrFallback(ctx context.Context, cart domain.VirtualCart, settings domain.MerchantSettings) []domain.ShippingRateOption {
	options, err := c.Collect(ctx, cart)
	if err != nil {
		c.diag.Log(ctx, LevelError, "shipping.fallback", map[string]any{"reason": "provider_error", "error": err.Error()})
		return []domain.ShippingRateOption{fallbackShippingOption(settings)}
	}
	if len(options) == 0 {
		c.diag.Log(ctx, LevelWarn, "shipping.fallback", map[string]any{"reason": "no_usable_rates"})
		return []domain.ShippingRateOption{fallbackShippingOption(settings)}
	}
	return options
}

// AvailableMethods builds a preview cart for the destination and lists its shipping options.
func (c *ShippingRateCollector) AvailableMethods(ctx context.Context, query ShippingMethodsQuery, settings domain.MerchantSettings) []domain.ShippingRateOption {
	cart, err := c.previewCart(ctx, query.ProductID, 1, query.CountryCode, query.Region, query.Postcode, settings)
	if err != nil {
		c.diag.Log(ctx, LevelError, "shipping.fallback", map[string]any{
			"reason":     "cart_build_failed",
			"product_id": query.ProductID,
			"error":      err.Error(),
		})
		return []domain.ShippingRateOption{fallbackShippingOption(settings)}
	}
	return c.CollectOrFallback(ctx, cart, settings)
}

// CalculateCost prices one shipping method. It never fails; internal errors price at zero.
func (c *ShippingRateCollector) CalculateCost(ctx context.Context, query ShippingCostQuery, settings domain.MerchantSettings) int64 {
	qty := query.Qty
	if qty < 1 {
		qty = 1
	}
	options := c.AvailableMethods(ctx, ShippingMethodsQuery{
		ProductID:   query.ProductID,
		CountryCode: query.CountryCode,
		Region:      query.Region,
		Postcode:    query.Postcode,
	}, settings)

	code := strings.TrimSpace(query.MethodCode)
	for _, option := range options {
		if option.Code == code {
			return option.Price
		}
	}

	product, err := c.catalog.GetByID(ctx, strings.TrimSpace(query.ProductID))
	if err != nil {
		c.diag.Log(ctx, LevelError, "shipping.cost_failed", map[string]any{
			"product_id": query.ProductID,
			"method":     code,
			"error":      err.Error(),
		})
		return 0
	}
	if settings.FreeShippingApplies(product.EffectivePrice() * int64(qty)) {
		return 0
	}
	return settings.ResolvedFallbackShippingPrice()
}

func (c *ShippingRateCollector) previewCart(ctx context.Context, productID string, qty int, country, region, postcode string, settings domain.MerchantSettings) (domain.VirtualCart, error) {
	country = strings.TrimSpace(country)
	if country == "" {
		country = settings.Country()
	}
	return c.builder.Build(ctx, BuildCartCommand{
		ProductID: productID,
		Quantity:  qty,
		Address:   previewAddress(country, region, postcode, previewShippingEmail),
		Customer: CustomerContext{
			GroupID: domain.CustomerGroupNotLoggedIn,
			Email:   previewShippingEmail,
		},
		Store: settings.Store,
	})
}

func fallbackShippingOption(settings domain.MerchantSettings) domain.ShippingRateOption {
	return domain.ShippingRateOption{
		Code:         fallbackRateCode,
		CarrierCode:  fallbackRateCarrier,
		MethodCode:   fallbackRateMethod,
		CarrierTitle: fallbackRateCarrierTitle,
		MethodTitle:  fallbackRateMethodTitle,
		Price:        settings.ResolvedFallbackShippingPrice(),
	}
}

// matchShippingRate applies the lenient selection policy: exact code, then a bare carrier code,
// then the first available rate.
func matchShippingRate(options []domain.ShippingRateOption, requested string) (domain.ShippingRateOption, bool) {
	if len(options) == 0 {
		return domain.ShippingRateOption{}, false
	}
	requested = strings.TrimSpace(requested)
	for _, option := range options {
		if option.Code == requested {
			return option, true
		}
	}
	if requested != "" {
		for _, option := range options {
			if option.CarrierCode == requested {
				return option, true
			}
		}
	}
	return options[0], true
}
