package services

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/hanko-field/quickorder/internal/domain"
)

func paymentCodes(options []domain.PaymentMethodOption) []string {
	codes := make([]string, 0, len(options))
	for _, option := range options {
		codes = append(codes, option.Code)
	}
	return codes
}

func TestPaymentMethodResolverTitles(t *testing.T) {
	f := newPipelineFixture(t)
	f.registry.methods = []domain.RegisteredPaymentMethod{
		{Code: "stripe_payments", Title: "Pay by card"},
		{Code: "cashondelivery"},
		{Code: "fawry_pay"},
		{Code: "cashondelivery", Title: "Duplicate"},
	}

	options := f.service.GetAvailablePaymentMethods(context.Background())
	want := []domain.PaymentMethodOption{
		{Code: "stripe_payments", Title: "Pay by card"},
		{Code: "cashondelivery", Title: "Cash on Delivery"},
		{Code: "fawry_pay", Title: "Fawry pay"},
	}
	if !reflect.DeepEqual(options, want) {
		t.Fatalf("unexpected options %#v", options)
	}
}

func TestPaymentMethodResolverAllowList(t *testing.T) {
	f := newPipelineFixture(t)
	f.config.settings.EnabledPaymentMethods = []string{"checkmo"}
	f.config.settings.DefaultPaymentMethod = "checkmo"

	options := f.service.GetAvailablePaymentMethods(context.Background())
	if len(options) != 1 || options[0].Code != "checkmo" {
		t.Fatalf("expected allow-list to keep checkmo only, got %#v", options)
	}
	if !options[0].Default {
		t.Fatalf("expected checkmo to be flagged as default")
	}
}

func TestPaymentMethodResolverEmptyAllowListPassesEverything(t *testing.T) {
	f := newPipelineFixture(t)
	f.config.settings.EnabledPaymentMethods = nil

	options := f.service.GetAvailablePaymentMethods(context.Background())
	if got := paymentCodes(options); !reflect.DeepEqual(got, []string{"cashondelivery", "checkmo"}) {
		t.Fatalf("unexpected codes %v", got)
	}
}

func TestPaymentMethodResolverConfigFlagFallback(t *testing.T) {
	f := newPipelineFixture(t)
	f.registry.err = errors.New("registry unavailable")
	f.config.flags = map[string]domain.PaymentMethodFlag{
		"banktransfer":   {Code: "banktransfer", Active: true},
		"cashondelivery": {Code: "cashondelivery", Active: true, Title: "Pay on delivery"},
		"checkmo":        {Code: "checkmo", Active: false},
	}

	options := f.service.GetAvailablePaymentMethods(context.Background())
	want := []domain.PaymentMethodOption{
		{Code: "banktransfer", Title: "Bank Transfer Payment"},
		{Code: "cashondelivery", Title: "Pay on delivery"},
	}
	if !reflect.DeepEqual(options, want) {
		t.Fatalf("unexpected options %#v", options)
	}
	if f.diag.count("payment.fallback") != 1 {
		t.Fatalf("expected one fallback event")
	}
}

func TestPaymentMethodResolverMinimalFallback(t *testing.T) {
	f := newPipelineFixture(t)
	f.registry.err = errors.New("registry unavailable")
	f.config.flagErr = errors.New("config store unavailable")

	options := f.service.GetAvailablePaymentMethods(context.Background())
	if got := paymentCodes(options); !reflect.DeepEqual(got, []string{"cashondelivery", "checkmo"}) {
		t.Fatalf("unexpected minimal fallback %v", got)
	}
	if f.diag.count("payment.fallback") != 2 {
		t.Fatalf("expected two fallback events")
	}
}

func TestPaymentMethodsEmptyWhenDisabled(t *testing.T) {
	f := newPipelineFixture(t)
	f.config.settings.Enabled = false

	if options := f.service.GetAvailablePaymentMethods(context.Background()); len(options) != 0 {
		t.Fatalf("expected no methods when disabled, got %#v", options)
	}
}
