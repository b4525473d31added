package services

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/hanko-field/quickorder/internal/domain"
)

func quoteCommand(qty int) PriceQuoteCommand {
	return PriceQuoteCommand{
		ProductID:          "prod-1",
		Quantity:           qty,
		ShippingMethodCode: "flatrate_flatrate",
		CountryCode:        "EG",
	}
}

func TestCalculateOrderTotalFlatRateScenario(t *testing.T) {
	f := newPipelineFixture(t)

	got := f.service.CalculateOrderTotal(context.Background(), quoteCommand(2))
	want := domain.PriceBreakdown{
		Currency:     "EGP",
		UnitPrice:    10000,
		Subtotal:     20000,
		ShippingCost: 1000,
		GrandTotal:   21000,
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected breakdown\n got: %#v\nwant: %#v", got, want)
	}
}

func TestCalculateOrderTotalFreeShippingThreshold(t *testing.T) {
	f := newPipelineFixture(t)
	f.config.settings.FreeShippingThreshold = 15000

	got := f.service.CalculateOrderTotal(context.Background(), quoteCommand(2))
	if got.ShippingCost != 0 {
		t.Fatalf("expected free shipping, got %d", got.ShippingCost)
	}
	if got.GrandTotal != 20000 {
		t.Fatalf("expected grand total 20000, got %d", got.GrandTotal)
	}
}

func TestCalculateOrderTotalBelowThresholdKeepsShipping(t *testing.T) {
	f := newPipelineFixture(t)
	f.config.settings.FreeShippingThreshold = 50000

	got := f.service.CalculateOrderTotal(context.Background(), quoteCommand(2))
	if got.ShippingCost != 1000 || got.GrandTotal != 21000 {
		t.Fatalf("unexpected breakdown %#v", got)
	}
}

func TestCalculateOrderTotalAppliesCatalogRule(t *testing.T) {
	f := newPipelineFixture(t)
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	f.pricing.now = func() time.Time { return now }

	var query CatalogRuleQuery
	f.rules.catalogFunc = func(_ context.Context, q CatalogRuleQuery) (int64, bool, error) {
		query = q
		return 8000, true, nil
	}

	got := f.service.CalculateOrderTotal(context.Background(), quoteCommand(3))
	if got.UnitPrice != 8000 || got.Subtotal != 24000 {
		t.Fatalf("expected catalog rule price, got %#v", got)
	}
	if got.GrandTotal != 25000 {
		t.Fatalf("expected 25000, got %d", got.GrandTotal)
	}
	if query.ProductID != "prod-1" || query.WebsiteID != "base" || query.CustomerGroupID != domain.CustomerGroupNotLoggedIn {
		t.Fatalf("unexpected catalog query %#v", query)
	}
	if !query.At.Equal(now) {
		t.Fatalf("expected rule lookup at %v, got %v", now, query.At)
	}
	if f.rules.catalogCalls != 1 {
		t.Fatalf("expected one catalog lookup per item, got %d", f.rules.catalogCalls)
	}
}

func TestCalculateOrderTotalIgnoresHigherCatalogRulePrice(t *testing.T) {
	f := newPipelineFixture(t)
	f.rules.catalogFunc = func(context.Context, CatalogRuleQuery) (int64, bool, error) {
		return 12000, true, nil
	}

	got := f.service.CalculateOrderTotal(context.Background(), quoteCommand(1))
	if got.UnitPrice != 10000 {
		t.Fatalf("expected base price to be kept, got %d", got.UnitPrice)
	}
}

func TestCalculateOrderTotalReadsBackCartRuleDiscount(t *testing.T) {
	f := newPipelineFixture(t)
	f.rules.recomputeFunc = func(_ context.Context, cart domain.VirtualCart) (domain.VirtualCart, error) {
		if cart.CouponCode != "SAVE10" {
			t.Fatalf("expected coupon to reach the rule engine, got %q", cart.CouponCode)
		}
		return plainTotals(cart, 2000, []string{"7"}), nil
	}
	cmd := quoteCommand(2)
	cmd.CouponCode = "SAVE10"

	got := f.service.CalculateOrderTotal(context.Background(), cmd)
	if got.DiscountAmount != 2000 || !got.HasDiscount {
		t.Fatalf("expected discount 2000, got %#v", got)
	}
	if got.GrandTotal != got.Subtotal-got.DiscountAmount+got.ShippingCost {
		t.Fatalf("breakdown not reconciled: %#v", got)
	}
	if got.GrandTotal != 19000 {
		t.Fatalf("expected 19000, got %d", got.GrandTotal)
	}
	if !reflect.DeepEqual(got.AppliedRuleIDs, []string{"7"}) || got.CouponCode != "SAVE10" {
		t.Fatalf("expected rule ids and coupon read back, got %#v", got)
	}
}

func TestCalculateOrderTotalUnmatchedMethodUsesFallbackPrice(t *testing.T) {
	f := newPipelineFixture(t)
	cmd := quoteCommand(1)
	cmd.ShippingMethodCode = "ups_ground"

	got := f.service.CalculateOrderTotal(context.Background(), cmd)
	if got.ShippingCost != 2500 {
		t.Fatalf("expected fallback shipping price, got %d", got.ShippingCost)
	}
	if got.Fallback {
		t.Fatalf("an unmatched method is not a pricing failure")
	}
}

func TestCalculateOrderTotalIsIdempotentAndSideEffectFree(t *testing.T) {
	f := newPipelineFixture(t)
	f.rules.recomputeFunc = func(_ context.Context, cart domain.VirtualCart) (domain.VirtualCart, error) {
		return plainTotals(cart, 500, []string{"3"}), nil
	}

	first := f.service.CalculateOrderTotal(context.Background(), quoteCommand(2))
	second := f.service.CalculateOrderTotal(context.Background(), quoteCommand(2))
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("expected identical breakdowns\nfirst:  %#v\nsecond: %#v", first, second)
	}
	if len(f.carts.saved) != 0 {
		t.Fatalf("preview must not persist carts, saved %d", len(f.carts.saved))
	}
	if len(f.orders.commits) != 0 {
		t.Fatalf("preview must not commit orders")
	}
}

func TestCalculateOrderTotalFallbackOnRuleFailure(t *testing.T) {
	f := newPipelineFixture(t)
	f.rules.recomputeFunc = func(context.Context, domain.VirtualCart) (domain.VirtualCart, error) {
		return domain.VirtualCart{}, errors.New("rule index corrupted")
	}

	got := f.service.CalculateOrderTotal(context.Background(), quoteCommand(2))
	want := domain.PriceBreakdown{
		Currency:     "EGP",
		UnitPrice:    10000,
		Subtotal:     20000,
		ShippingCost: 2500,
		GrandTotal:   22500,
		Fallback:     true,
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected fallback\n got: %#v\nwant: %#v", got, want)
	}
	if f.diag.count("pricing.fallback") != 1 {
		t.Fatalf("expected pricing fallback to be reported")
	}
}

func TestCalculateOrderTotalFallbackOnCatalogRuleFailure(t *testing.T) {
	f := newPipelineFixture(t)
	f.rules.catalogFunc = func(context.Context, CatalogRuleQuery) (int64, bool, error) {
		return 0, false, errors.New("catalog rule index unavailable")
	}

	got := f.service.CalculateOrderTotal(context.Background(), quoteCommand(1))
	if !got.Fallback || got.GrandTotal != 12500 {
		t.Fatalf("expected fallback breakdown, got %#v", got)
	}
}

func TestCalculateOrderTotalUnknownProductIsZero(t *testing.T) {
	f := newPipelineFixture(t)
	cmd := quoteCommand(1)
	cmd.ProductID = "missing"

	got := f.service.CalculateOrderTotal(context.Background(), cmd)
	if got.UnitPrice != 0 || got.Subtotal != 0 || got.ShippingCost != 0 || got.GrandTotal != 0 {
		t.Fatalf("expected all-zero breakdown, got %#v", got)
	}
}

func TestCalculateOrderTotalDisabledIsZero(t *testing.T) {
	f := newPipelineFixture(t)
	f.config.settings.Enabled = false

	got := f.service.CalculateOrderTotal(context.Background(), quoteCommand(2))
	if got.GrandTotal != 0 || got.Subtotal != 0 {
		t.Fatalf("expected zero breakdown when disabled, got %#v", got)
	}
	if f.rates.calls != 0 {
		t.Fatalf("expected no provider calls when disabled")
	}
}

func TestCalculateOrderTotalSubtotalMatchesUnitTimesQty(t *testing.T) {
	f := newPipelineFixture(t)
	for qty := 1; qty <= 5; qty++ {
		got := f.service.CalculateOrderTotal(context.Background(), quoteCommand(qty))
		if got.Subtotal != got.UnitPrice*int64(qty) {
			t.Fatalf("qty %d: subtotal %d != unit %d x qty", qty, got.Subtotal, got.UnitPrice)
		}
		if got.GrandTotal != got.Subtotal-got.DiscountAmount+got.ShippingCost {
			t.Fatalf("qty %d: breakdown not reconciled %#v", qty, got)
		}
	}
}

func TestReconcileBreakdown(t *testing.T) {
	got := ReconcileBreakdown(domain.PriceBreakdown{
		Subtotal:       20000,
		DiscountAmount: 3000,
		ShippingCost:   1000,
		GrandTotal:     99999,
	})
	if got.GrandTotal != 18000 || !got.HasDiscount {
		t.Fatalf("unexpected reconciliation %#v", got)
	}

	got = ReconcileBreakdown(domain.PriceBreakdown{Subtotal: 500, DiscountAmount: -10})
	if got.DiscountAmount != 0 || got.HasDiscount || got.GrandTotal != 500 {
		t.Fatalf("expected negative discount to be clamped, got %#v", got)
	}
}
