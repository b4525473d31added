package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/hanko-field/quickorder/internal/domain"
)

// PricingEngineDeps wires the quick-order pricing engine.
type PricingEngineDeps struct {
	Builder     *VirtualCartBuilder
	Shipping    *ShippingRateCollector
	Rules       RuleEngine
	Catalog     ProductCatalog
	Diagnostics Diagnostics
	Now         func() time.Time
}

// PricingEngine prices a single-item preview cart through catalog and cart rules.
type PricingEngine struct {
	builder  *VirtualCartBuilder
	shipping *ShippingRateCollector
	rules    RuleEngine
	catalog  ProductCatalog
	diag     Diagnostics
	now      func() time.Time
}

// NewPricingEngine validates dependencies and returns an engine.
func NewPricingEngine(deps PricingEngineDeps) (*PricingEngine, error) {
	if deps.Builder == nil {
		return nil, errors.New("pricing engine: cart builder is required")
	}
	if deps.Shipping == nil {
		return nil, errors.New("pricing engine: shipping collector is required")
	}
	if deps.Rules == nil {
		return nil, errors.New("pricing engine: rule engine is required")
	}
	if deps.Catalog == nil {
		return nil, errors.New("pricing engine: product catalog is required")
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &PricingEngine{
		builder:  deps.Builder,
		shipping: deps.Shipping,
		rules:    deps.Rules,
		catalog:  deps.Catalog,
		diag:     diagnosticsOrNoop(deps.Diagnostics),
		now: func() time.Time {
			return now().UTC()
		},
	}, nil
}

// Calculate returns the reconciled price breakdown. Failures degrade to the catalog-price
// fallback and never surface.
func (e *PricingEngine) Calculate(ctx context.Context, cmd PriceQuoteCommand, settings domain.MerchantSettings) domain.PriceBreakdown {
	breakdown, err := e.calculate(ctx, cmd, settings)
	if err == nil {
		return breakdown
	}
	e.diag.Log(ctx, LevelError, "pricing.fallback", map[string]any{
		"product_id": cmd.ProductID,
		"qty":        cmd.Quantity,
		"error":      err.Error(),
	})
	return e.FallbackBreakdown(ctx, cmd, settings)
}

func (e *PricingEngine) calculate(ctx context.Context, cmd PriceQuoteCommand, settings domain.MerchantSettings) (domain.PriceBreakdown, error) {
	country := strings.TrimSpace(cmd.CountryCode)
	if country == "" {
		country = settings.Country()
	}
	cart, err := e.builder.Build(ctx, BuildCartCommand{
		ProductID:         cmd.ProductID,
		Quantity:          cmd.Quantity,
		VariantAttributes: cmd.VariantAttributes,
		Address:           previewAddress(country, cmd.Region, cmd.Postcode, previewPricingEmail),
		Customer: CustomerContext{
			GroupID: domain.CustomerGroupNotLoggedIn,
			Email:   previewPricingEmail,
		},
		Store: settings.Store,
	})
	if err != nil {
		return domain.PriceBreakdown{}, err
	}
	if coupon := strings.TrimSpace(cmd.CouponCode); coupon != "" {
		cart = cart.WithCoupon(coupon)
	}

	cart = e.applyRequestedShipping(ctx, cart, cmd.ShippingMethodCode, settings)

	priced, err := e.PriceCart(ctx, cart, settings)
	if err != nil {
		return domain.PriceBreakdown{}, err
	}
	return breakdownFromCart(priced), nil
}

// applyRequestedShipping sets the requested method after a fresh rate pass, even when the
// method is not among the collected rates.
func (e *PricingEngine) applyRequestedShipping(ctx context.Context, cart domain.VirtualCart, methodCode string, settings domain.MerchantSettings) domain.VirtualCart {
	if cart.ShippingAddress == nil {
		return cart
	}
	code := strings.TrimSpace(methodCode)
	options := e.shipping.CollectOrFallback(ctx, cart, settings)
	for _, option := range options {
		if option.Code == code {
			return cart.WithShippingMethod(option.Code, option.Description(), option.Price)
		}
	}
	e.diag.Log(ctx, LevelDebug, "pricing.shipping_method_unmatched", map[string]any{"method": code})
	return cart.WithShippingMethod(code, "", settings.ResolvedFallbackShippingPrice())
}

// PriceCart runs the catalog rule pass and the cart rule pass, then snapshots reconciled totals
// onto the returned cart. The free-shipping threshold overrides the quoted shipping amount.
func (e *PricingEngine) PriceCart(ctx context.Context, cart domain.VirtualCart, settings domain.MerchantSettings) (domain.VirtualCart, error) {
	cart, err := e.applyCatalogRules(ctx, cart)
	if err != nil {
		return domain.VirtualCart{}, err
	}

	recomputed, err := e.rules.RecomputeTotals(ctx, cart.Clone())
	if err != nil {
		return domain.VirtualCart{}, providerError("rules.recompute_totals", err)
	}

	shipping := recomputed.ShippingAmount
	if recomputed.ShippingAddress == nil || settings.FreeShippingApplies(recomputed.Subtotal) {
		shipping = 0
	}
	subtotalWithDiscount := recomputed.SubtotalWithDiscount
	if subtotalWithDiscount > recomputed.Subtotal || subtotalWithDiscount < 0 {
		subtotalWithDiscount = recomputed.Subtotal
	}

	return recomputed.WithTotals(domain.CartTotals{
		Subtotal:             recomputed.Subtotal,
		SubtotalWithDiscount: subtotalWithDiscount,
		ShippingAmount:       shipping,
		GrandTotal:           subtotalWithDiscount + shipping,
		AppliedRuleIDs:       recomputed.AppliedRuleIDs,
		CouponCode:           recomputed.CouponCode,
	}), nil
}

func (e *PricingEngine) applyCatalogRules(ctx context.Context, cart domain.VirtualCart) (domain.VirtualCart, error) {
	at := e.now()
	items := make([]domain.LineItem, 0, len(cart.Items))
	for _, item := range cart.Items {
		price, found, err := e.rules.ApplyCatalogRule(ctx, CatalogRuleQuery{
			At:              at,
			WebsiteID:       cart.WebsiteID,
			CustomerGroupID: cart.CustomerGroupID,
			ProductID:       item.PricedProductID(),
		})
		if err != nil {
			return domain.VirtualCart{}, providerError("rules.catalog", fmt.Errorf("product %s: %w", item.PricedProductID(), err))
		}
		if found && price >= 0 && price < item.BasePrice {
			e.diag.Log(ctx, LevelInfo, "pricing.catalog_rule_applied", map[string]any{
				"product_id":     item.PricedProductID(),
				"original_price": item.BasePrice,
				"rule_price":     price,
			})
			item = item.WithUnitPrice(price)
		}
		items = append(items, item)
	}
	return cart.WithItems(items), nil
}

// FallbackBreakdown prices the product at its catalog price with the merchant fallback shipping
// price. An unknown product yields an all-zero breakdown.
func (e *PricingEngine) FallbackBreakdown(ctx context.Context, cmd PriceQuoteCommand, settings domain.MerchantSettings) domain.PriceBreakdown {
	product, err := e.catalog.GetByID(ctx, strings.TrimSpace(cmd.ProductID))
	if err != nil {
		e.diag.Log(ctx, LevelError, "pricing.fallback_failed", map[string]any{
			"product_id": cmd.ProductID,
			"error":      err.Error(),
		})
		return ZeroBreakdown(settings.Store.Currency)
	}
	qty := cmd.Quantity
	if qty < 1 {
		qty = 1
	}
	currency := product.Currency
	if currency == "" {
		currency = settings.Store.Currency
	}
	unit := product.EffectivePrice()
	return ReconcileBreakdown(domain.PriceBreakdown{
		Currency:     currency,
		UnitPrice:    unit,
		Subtotal:     unit * int64(qty),
		ShippingCost: settings.ResolvedFallbackShippingPrice(),
		Fallback:     true,
	})
}

// ZeroBreakdown is the breakdown reported when nothing can be priced.
func ZeroBreakdown(currency string) domain.PriceBreakdown {
	return domain.PriceBreakdown{Currency: currency, Fallback: true}
}

// ReconcileBreakdown derives GrandTotal and HasDiscount from the other amounts so that
// GrandTotal = Subtotal - DiscountAmount + ShippingCost always holds.
func ReconcileBreakdown(b domain.PriceBreakdown) domain.PriceBreakdown {
	if b.DiscountAmount < 0 {
		b.DiscountAmount = 0
	}
	if b.ShippingCost < 0 {
		b.ShippingCost = 0
	}
	b.GrandTotal = b.Subtotal - b.DiscountAmount + b.ShippingCost
	b.HasDiscount = b.DiscountAmount > 0
	b.AppliedRuleIDs = slices.Clone(b.AppliedRuleIDs)
	return b
}

func breakdownFromCart(cart domain.VirtualCart) domain.PriceBreakdown {
	unit := cart.Subtotal
	if len(cart.Items) > 0 {
		first := cart.Items[0]
		if first.Quantity > 0 {
			unit = first.RowTotal / int64(first.Quantity)
		}
	}
	return ReconcileBreakdown(domain.PriceBreakdown{
		Currency:       cart.Currency,
		UnitPrice:      unit,
		Subtotal:       cart.Subtotal,
		ShippingCost:   cart.ShippingAmount,
		DiscountAmount: cart.Subtotal - cart.SubtotalWithDiscount,
		AppliedRuleIDs: cart.AppliedRuleIDs,
		CouponCode:     cart.CouponCode,
	})
}
