package services

import (
	"context"
	"errors"
	"testing"

	"github.com/hanko-field/quickorder/internal/domain"
)

func TestShippingRateCollectorFiltersUnusableRates(t *testing.T) {
	f := newPipelineFixture(t)
	f.rates.rates = []domain.CarrierRate{
		{CarrierCode: "tablerate", MethodCode: "bestway", CarrierTitle: "Best Way", MethodTitle: "Table Rate", Price: 3000},
		{CarrierCode: "ups", MethodCode: "", CarrierTitle: "UPS", Price: 9000},
		{CarrierCode: "dhl", MethodCode: "express", CarrierTitle: "DHL", ErrorMessage: "not available to EG", Price: 8000},
		flatRate(1000),
		flatRate(1200),
	}
	cart, err := f.builder.Build(context.Background(), BuildCartCommand{ProductID: "prod-1", Quantity: 1})
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	options, err := f.collector.Collect(context.Background(), cart)
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if len(options) != 2 {
		t.Fatalf("expected two usable rates, got %#v", options)
	}
	if options[0].Code != "tablerate_bestway" || options[1].Code != "flatrate_flatrate" {
		t.Fatalf("expected provider order to be kept, got %s, %s", options[0].Code, options[1].Code)
	}
	if options[1].Price != 1000 {
		t.Fatalf("expected first duplicate to win, got %d", options[1].Price)
	}
	if options[0].Description() != "Best Way - Table Rate" {
		t.Fatalf("unexpected description %q", options[0].Description())
	}
}

func TestShippingRateCollectorFallsBackWhenNoUsableRates(t *testing.T) {
	cases := map[string]func(*stubRateProvider){
		"provider error": func(p *stubRateProvider) { p.err = errors.New("carrier timeout") },
		"no rates":       func(p *stubRateProvider) { p.rates = nil },
		"only errors": func(p *stubRateProvider) {
			p.rates = []domain.CarrierRate{{CarrierCode: "dhl", MethodCode: "x", ErrorMessage: "nope"}}
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			f := newPipelineFixture(t)
			mutate(f.rates)

			options := f.service.GetAvailableShippingMethods(context.Background(), ShippingMethodsQuery{
				ProductID:   "prod-1",
				CountryCode: "EG",
			})
			if len(options) != 1 {
				t.Fatalf("expected exactly one fallback option, got %#v", options)
			}
			got := options[0]
			if got.Code != "fallback_standard" || got.Price != 2500 {
				t.Fatalf("unexpected fallback option %#v", got)
			}
			if got.CarrierTitle != "Standard Shipping" || got.MethodTitle != "Standard Delivery" {
				t.Fatalf("unexpected fallback titles %#v", got)
			}
			if f.diag.count("shipping.fallback") != 1 {
				t.Fatalf("expected fallback to be reported")
			}
		})
	}
}

func TestShippingRateCollectorFallbackPriceTiers(t *testing.T) {
	cases := []struct {
		name     string
		settings domain.MerchantSettings
		want     int64
	}{
		{"explicit", domain.MerchantSettings{FallbackShippingPrice: 500, DefaultShippingPrice: 700, FlatRatePrice: 900}, 500},
		{"legacy default", domain.MerchantSettings{DefaultShippingPrice: 700, FlatRatePrice: 900}, 700},
		{"flat rate", domain.MerchantSettings{FlatRatePrice: 900}, 900},
		{"none", domain.MerchantSettings{}, 0},
	}
	for _, tc := range cases {
		if got := fallbackShippingOption(tc.settings).Price; got != tc.want {
			t.Errorf("%s: fallback price = %d, want %d", tc.name, got, tc.want)
		}
	}
}

func TestShippingRateCollectorPreviewCartUsesPlaceholders(t *testing.T) {
	f := newPipelineFixture(t)

	f.service.GetAvailableShippingMethods(context.Background(), ShippingMethodsQuery{ProductID: "prod-1", Region: "Alexandria"})
	if len(f.rates.carts) != 1 {
		t.Fatalf("expected one provider call, got %d", len(f.rates.carts))
	}
	quoted := f.rates.carts[0]
	addr := quoted.ShippingAddress
	if addr == nil {
		t.Fatalf("expected shipping address on preview cart")
	}
	if addr.CountryCode != "EG" {
		t.Fatalf("expected default country, got %q", addr.CountryCode)
	}
	if addr.City != "Alexandria" || addr.Postcode != "12345" {
		t.Fatalf("unexpected placeholder address %#v", addr)
	}
	if quoted.CustomerEmail != "guest@shipping-calc.local" {
		t.Fatalf("unexpected preview email %q", quoted.CustomerEmail)
	}
	if quoted.CustomerGroupID != domain.CustomerGroupNotLoggedIn {
		t.Fatalf("expected not-logged-in group")
	}
}

func TestCalculateShippingCost(t *testing.T) {
	t.Run("matched", func(t *testing.T) {
		f := newPipelineFixture(t)
		got := f.service.CalculateShippingCost(context.Background(), ShippingCostQuery{
			ProductID:  "prod-1",
			MethodCode: "flatrate_flatrate",
			Qty:        2,
		})
		if got != 1000 {
			t.Fatalf("expected 1000, got %d", got)
		}
	})

	t.Run("unmatched returns fallback price", func(t *testing.T) {
		f := newPipelineFixture(t)
		got := f.service.CalculateShippingCost(context.Background(), ShippingCostQuery{
			ProductID:  "prod-1",
			MethodCode: "ups_ground",
		})
		if got != 2500 {
			t.Fatalf("expected fallback 2500, got %d", got)
		}
	})

	t.Run("unmatched over threshold is free", func(t *testing.T) {
		f := newPipelineFixture(t)
		f.config.settings.FreeShippingThreshold = 15000
		got := f.service.CalculateShippingCost(context.Background(), ShippingCostQuery{
			ProductID:  "prod-1",
			MethodCode: "ups_ground",
			Qty:        2,
		})
		if got != 0 {
			t.Fatalf("expected free shipping, got %d", got)
		}
	})

	t.Run("unknown product prices at zero", func(t *testing.T) {
		f := newPipelineFixture(t)
		got := f.service.CalculateShippingCost(context.Background(), ShippingCostQuery{
			ProductID:  "missing",
			MethodCode: "ups_ground",
		})
		if got != 0 {
			t.Fatalf("expected 0, got %d", got)
		}
	})

	t.Run("computed while disabled", func(t *testing.T) {
		f := newPipelineFixture(t)
		f.config.settings.Enabled = false
		got := f.service.CalculateShippingCost(context.Background(), ShippingCostQuery{
			ProductID:  "prod-1",
			MethodCode: "flatrate_flatrate",
		})
		if got != 1000 {
			t.Fatalf("expected 1000, got %d", got)
		}
	})
}

func TestMatchShippingRate(t *testing.T) {
	options := []domain.ShippingRateOption{
		{Code: "tablerate_bestway", CarrierCode: "tablerate"},
		{Code: "flatrate_flatrate", CarrierCode: "flatrate"},
	}
	if got, _ := matchShippingRate(options, "flatrate_flatrate"); got.Code != "flatrate_flatrate" {
		t.Fatalf("expected exact match, got %s", got.Code)
	}
	if got, _ := matchShippingRate(options, "flatrate"); got.Code != "flatrate_flatrate" {
		t.Fatalf("expected carrier match, got %s", got.Code)
	}
	if got, _ := matchShippingRate(options, "ups_ground"); got.Code != "tablerate_bestway" {
		t.Fatalf("expected first rate substitution, got %s", got.Code)
	}
	if _, ok := matchShippingRate(nil, "flatrate"); ok {
		t.Fatalf("expected no match without rates")
	}
}
