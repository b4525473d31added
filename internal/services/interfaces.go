package services

import (
	"context"
	"time"

	"github.com/hanko-field/quickorder/internal/domain"
)

// QuickOrderService is the entry point used by the HTTP layer.
type QuickOrderService interface {
	GetAvailableShippingMethods(ctx context.Context, query ShippingMethodsQuery) []domain.ShippingRateOption
	GetAvailablePaymentMethods(ctx context.Context) []domain.PaymentMethodOption
	CalculateShippingCost(ctx context.Context, query ShippingCostQuery) int64
	CalculateOrderTotal(ctx context.Context, cmd PriceQuoteCommand) domain.PriceBreakdown
	CreateOrder(ctx context.Context, cmd PlaceOrderCommand) (domain.OrderResult, error)
	GetFormSettings(ctx context.Context) domain.FormSettings
}

// ShippingMethodsQuery lists shipping options for a product shipped to a destination.
type ShippingMethodsQuery struct {
	ProductID   string
	CountryCode string
	Region      string
	Postcode    string
}

// ShippingCostQuery prices one shipping method for a product and quantity.
type ShippingCostQuery struct {
	ProductID   string
	MethodCode  string
	CountryCode string
	Region      string
	Postcode    string
	Qty         int
}

// PriceQuoteCommand requests a price breakdown preview.
type PriceQuoteCommand struct {
	ProductID          string
	Quantity           int
	ShippingMethodCode string
	CountryCode        string
	Region             string
	Postcode           string
	VariantAttributes  map[string]string
	CouponCode         string
}

// PlaceOrderCommand carries everything needed to commit a quick order.
type PlaceOrderCommand struct {
	ProductID          string
	Quantity           int
	VariantAttributes  map[string]string
	CustomerName       string
	CustomerPhone      string
	CustomerEmail      string
	Street             string
	City               string
	Region             string
	Postcode           string
	CountryCode        string
	ShippingMethodCode string
	PaymentMethodCode  string
	CouponCode         string
}

// ProductCatalog resolves products and configurable variants.
type ProductCatalog interface {
	GetByID(ctx context.Context, productID string) (domain.Product, error)
	ResolveVariant(ctx context.Context, parent domain.Product, attrs map[string]string) (domain.Product, error)
}

// RegionDirectory maps region names to region identifiers per country.
type RegionDirectory interface {
	Lookup(ctx context.Context, name, countryCode string) (string, bool, error)
}

// ShippingRateProvider quotes raw carrier rates for a cart.
type ShippingRateProvider interface {
	Quote(ctx context.Context, cart domain.VirtualCart) ([]domain.CarrierRate, error)
}

// CatalogRuleQuery scopes a catalog rule price lookup.
type CatalogRuleQuery struct {
	At              time.Time
	WebsiteID       string
	CustomerGroupID int
	ProductID       string
}

// RuleEngine evaluates catalog and cart price rules.
type RuleEngine interface {
	// ApplyCatalogRule returns the best catalog rule price for the product, if any rule applies.
	ApplyCatalogRule(ctx context.Context, query CatalogRuleQuery) (int64, bool, error)
	// RecomputeTotals applies cart rules and returns the cart with refreshed totals.
	RecomputeTotals(ctx context.Context, cart domain.VirtualCart) (domain.VirtualCart, error)
}

// PaymentMethodRegistry lists the payment methods active for a store.
type PaymentMethodRegistry interface {
	ActiveMethods(ctx context.Context, store domain.StoreContext) ([]domain.RegisteredPaymentMethod, error)
}

// CartStore persists carts on the commit path and returns the stored quote id.
type CartStore interface {
	SaveCart(ctx context.Context, cart domain.VirtualCart) (string, error)
}

// OrderStore commits carts into orders and maintains the order listing index.
type OrderStore interface {
	Commit(ctx context.Context, cart domain.VirtualCart) (domain.Order, error)
	Save(ctx context.Context, order domain.Order) error
	IndexEntryExists(ctx context.Context, orderID string) (bool, error)
	InsertIndexEntry(ctx context.Context, entry domain.OrderGridEntry) error
}

// NotificationSender delivers the order confirmation.
type NotificationSender interface {
	Send(ctx context.Context, order domain.Order) error
}

// ConfigProvider exposes read-only merchant configuration.
type ConfigProvider interface {
	Settings(ctx context.Context) (domain.MerchantSettings, error)
	PaymentMethodFlag(ctx context.Context, code string) (domain.PaymentMethodFlag, error)
}

// DiagnosticLevel grades pipeline diagnostics.
type DiagnosticLevel string

const (
	LevelDebug DiagnosticLevel = "debug"
	LevelInfo  DiagnosticLevel = "info"
	LevelWarn  DiagnosticLevel = "warn"
	LevelError DiagnosticLevel = "error"
)

// Diagnostics receives structured pipeline events.
type Diagnostics interface {
	Log(ctx context.Context, level DiagnosticLevel, event string, fields map[string]any)
}

type noopDiagnostics struct{}

func (noopDiagnostics) Log(context.Context, DiagnosticLevel, string, map[string]any) {}

// DiagnosticsFunc adapts a function to Diagnostics.
type DiagnosticsFunc func(ctx context.Context, level DiagnosticLevel, event string, fields map[string]any)

// Log calls f.
func (f DiagnosticsFunc) Log(ctx context.Context, level DiagnosticLevel, event string, fields map[string]any) {
	f(ctx, level, event, fields)
}

func diagnosticsOrNoop(d Diagnostics) Diagnostics {
	if d == nil {
		return noopDiagnostics{}
	}
	return d
}
