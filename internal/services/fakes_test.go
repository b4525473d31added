package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/hanko-field/quickorder/internal/domain"
)

type stubCatalog struct {
	products    map[string]domain.Product
	getErr      error
	resolveFunc func(ctx context.Context, parent domain.Product, attrs map[string]string) (domain.Product, error)
}

func (s *stubCatalog) GetByID(_ context.Context, id string) (domain.Product, error) {
	if s.getErr != nil {
		return domain.Product{}, s.getErr
	}
	product, ok := s.products[id]
	if !ok {
		return domain.Product{}, fmt.Errorf("product %s not found", id)
	}
	return product, nil
}

func (s *stubCatalog) ResolveVariant(ctx context.Context, parent domain.Product, attrs map[string]string) (domain.Product, error) {
	if s.resolveFunc != nil {
		return s.resolveFunc(ctx, parent, attrs)
	}
	variant, ok := parent.ResolveVariant(attrs)
	if !ok {
		return domain.Product{}, errors.New("no matching variant")
	}
	return s.GetByID(ctx, variant.ProductID)
}

type stubRegions struct {
	lookupFunc func(ctx context.Context, name, country string) (string, bool, error)
}

func (s *stubRegions) Lookup(ctx context.Context, name, country string) (string, bool, error) {
	if s.lookupFunc == nil {
		return "", false, nil
	}
	return s.lookupFunc(ctx, name, country)
}

type stubRateProvider struct {
	mu    sync.Mutex
	rates []domain.CarrierRate
	err   error
	calls int
	carts []domain.VirtualCart
}

func (s *stubRateProvider) Quote(_ context.Context, cart domain.VirtualCart) ([]domain.CarrierRate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.carts = append(s.carts, cart)
	if s.err != nil {
		return nil, s.err
	}
	out := make([]domain.CarrierRate, len(s.rates))
	copy(out, s.rates)
	return out, nil
}

type stubRuleEngine struct {
	catalogFunc   func(ctx context.Context, q CatalogRuleQuery) (int64, bool, error)
	recomputeFunc func(ctx context.Context, cart domain.VirtualCart) (domain.VirtualCart, error)
	catalogCalls  int
}

func (s *stubRuleEngine) ApplyCatalogRule(ctx context.Context, q CatalogRuleQuery) (int64, bool, error) {
	s.catalogCalls++
	if s.catalogFunc == nil {
		return 0, false, nil
	}
	return s.catalogFunc(ctx, q)
}

func (s *stubRuleEngine) RecomputeTotals(ctx context.Context, cart domain.VirtualCart) (domain.VirtualCart, error) {
	if s.recomputeFunc != nil {
		return s.recomputeFunc(ctx, cart)
	}
	return plainTotals(cart, 0, nil), nil
}

// plainTotals recomputes cart totals with an optional discount, the way a rule engine without
// matching rules would.
func plainTotals(cart domain.VirtualCart, discount int64, ruleIDs []string) domain.VirtualCart {
	var subtotal int64
	for _, item := range cart.Items {
		subtotal += item.RowTotal
	}
	return cart.WithTotals(domain.CartTotals{
		Subtotal:             subtotal,
		SubtotalWithDiscount: subtotal - discount,
		ShippingAmount:       cart.ShippingAmount,
		GrandTotal:           subtotal - discount + cart.ShippingAmount,
		AppliedRuleIDs:       ruleIDs,
		CouponCode:           cart.CouponCode,
	})
}

type stubRegistry struct {
	methods []domain.RegisteredPaymentMethod
	err     error
}

func (s *stubRegistry) ActiveMethods(context.Context, domain.StoreContext) ([]domain.RegisteredPaymentMethod, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.methods, nil
}

type stubCartStore struct {
	saved []domain.VirtualCart
	err   error
}

func (s *stubCartStore) SaveCart(_ context.Context, cart domain.VirtualCart) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.saved = append(s.saved, cart)
	return fmt.Sprintf("quote-%d", len(s.saved)), nil
}

type stubOrderStore struct {
	commitFunc func(ctx context.Context, cart domain.VirtualCart) (domain.Order, error)
	commits    []domain.VirtualCart
	saved      []domain.Order
	saveErr    error
	indexed    map[string]domain.OrderGridEntry
	existsErr  error
	insertErr  error
	inserts    int
}

func (s *stubOrderStore) Commit(ctx context.Context, cart domain.VirtualCart) (domain.Order, error) {
	s.commits = append(s.commits, cart)
	if s.commitFunc != nil {
		return s.commitFunc(ctx, cart)
	}
	return orderFromCart("ord_1", "QO-2025-000001", cart), nil
}

func (s *stubOrderStore) Save(_ context.Context, order domain.Order) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saved = append(s.saved, order)
	return nil
}

func (s *stubOrderStore) IndexEntryExists(_ context.Context, id string) (bool, error) {
	if s.existsErr != nil {
		return false, s.existsErr
	}
	_, ok := s.indexed[id]
	return ok, nil
}

func (s *stubOrderStore) InsertIndexEntry(_ context.Context, entry domain.OrderGridEntry) error {
	s.inserts++
	if s.insertErr != nil {
		return s.insertErr
	}
	if s.indexed == nil {
		s.indexed = map[string]domain.OrderGridEntry{}
	}
	s.indexed[entry.OrderID] = entry
	return nil
}

func orderFromCart(id, increment string, cart domain.VirtualCart) domain.Order {
	return domain.Order{
		ID:                  id,
		IncrementID:         increment,
		Status:              domain.OrderStatusPending,
		State:               domain.OrderStateNew,
		StoreID:             cart.StoreID,
		Currency:            cart.Currency,
		CustomerEmail:       cart.CustomerEmail,
		CustomerName:        cart.CustomerFirstName + " " + cart.CustomerLastName,
		Items:               cart.Items,
		Subtotal:            cart.Subtotal,
		DiscountAmount:      cart.Subtotal - cart.SubtotalWithDiscount,
		ShippingAmount:      cart.ShippingAmount,
		GrandTotal:          cart.GrandTotal,
		ShippingMethodCode:  cart.ShippingMethodCode,
		ShippingDescription: cart.ShippingDescription,
		PaymentMethodCode:   cart.PaymentMethodCode,
		BillingAddress:      cart.BillingAddress,
		ShippingAddress:     cart.ShippingAddress,
	}
}

type stubNotifier struct {
	sent []domain.Order
	err  error
}

func (s *stubNotifier) Send(_ context.Context, order domain.Order) error {
	s.sent = append(s.sent, order)
	return s.err
}

type stubConfig struct {
	settings domain.MerchantSettings
	err      error
	flags    map[string]domain.PaymentMethodFlag
	flagErr  error
}

func (s *stubConfig) Settings(context.Context) (domain.MerchantSettings, error) {
	if s.err != nil {
		return domain.MerchantSettings{}, s.err
	}
	return s.settings, nil
}

func (s *stubConfig) PaymentMethodFlag(_ context.Context, code string) (domain.PaymentMethodFlag, error) {
	if s.flagErr != nil {
		return domain.PaymentMethodFlag{}, s.flagErr
	}
	return s.flags[code], nil
}

type recordedEvent struct {
	level  DiagnosticLevel
	event  string
	fields map[string]any
}

type recordingDiagnostics struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (r *recordingDiagnostics) Log(_ context.Context, level DiagnosticLevel, event string, fields map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{level: level, event: event, fields: fields})
}

func (r *recordingDiagnostics) stages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, e := range r.events {
		if e.event == "order.stage" {
			out = append(out, e.fields["stage"].(string))
		}
	}
	return out
}

func (r *recordingDiagnostics) count(event string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.event == event {
			n++
		}
	}
	return n
}

type pipelineFixture struct {
	catalog  *stubCatalog
	regions  *stubRegions
	rates    *stubRateProvider
	rules    *stubRuleEngine
	registry *stubRegistry
	carts    *stubCartStore
	orders   *stubOrderStore
	notifier *stubNotifier
	config   *stubConfig
	diag     *recordingDiagnostics

	builder   *VirtualCartBuilder
	collector *ShippingRateCollector
	resolver  *PaymentMethodResolver
	pricing   *PricingEngine
	assembler *OrderAssembler
	service   QuickOrderService
}

func testSettings() domain.MerchantSettings {
	return domain.MerchantSettings{
		Enabled:               true,
		SuccessMessage:        "Thanks for your order!",
		SendEmailNotification: true,
		AutoGenerateEmail:     true,
		FallbackShippingPrice: 2500,
		DefaultCountry:        "EG",
		Store: domain.StoreContext{
			StoreID:   "default",
			WebsiteID: "base",
			Currency:  "EGP",
			Locale:    "en",
			BaseURL:   "https://shop.example.com/",
		},
	}
}

func testProduct() domain.Product {
	return domain.Product{
		ID:       "prod-1",
		SKU:      "MUG-1",
		Name:     "Coffee Mug",
		Kind:     domain.ProductKindSimple,
		Price:    10000,
		Currency: "EGP",
		WeightKg: 0.5,
	}
}

func flatRate(price int64) domain.CarrierRate {
	return domain.CarrierRate{
		CarrierCode:  "flatrate",
		MethodCode:   "flatrate",
		CarrierTitle: "Flat Rate",
		MethodTitle:  "Fixed",
		Price:        price,
	}
}

func newPipelineFixture(t *testing.T) *pipelineFixture {
	t.Helper()

	f := &pipelineFixture{
		catalog:  &stubCatalog{products: map[string]domain.Product{"prod-1": testProduct()}},
		regions:  &stubRegions{},
		rates:    &stubRateProvider{rates: []domain.CarrierRate{flatRate(1000)}},
		rules:    &stubRuleEngine{},
		registry: &stubRegistry{methods: []domain.RegisteredPaymentMethod{{Code: "cashondelivery"}, {Code: "checkmo"}}},
		carts:    &stubCartStore{},
		orders:   &stubOrderStore{},
		notifier: &stubNotifier{},
		config:   &stubConfig{settings: testSettings()},
		diag:     &recordingDiagnostics{},
	}

	var err error
	f.builder, err = NewVirtualCartBuilder(VirtualCartBuilderDeps{
		Catalog:     f.catalog,
		Regions:     f.regions,
		Carts:       f.carts,
		Diagnostics: f.diag,
	})
	if err != nil {
		t.Fatalf("new builder: %v", err)
	}
	f.collector, err = NewShippingRateCollector(ShippingRateCollectorDeps{
		Provider:    f.rates,
		Builder:     f.builder,
		Catalog:     f.catalog,
		Diagnostics: f.diag,
	})
	if err != nil {
		t.Fatalf("new collector: %v", err)
	}
	f.resolver, err = NewPaymentMethodResolver(PaymentMethodResolverDeps{
		Registry:    f.registry,
		Config:      f.config,
		Diagnostics: f.diag,
	})
	if err != nil {
		t.Fatalf("new resolver: %v", err)
	}
	f.pricing, err = NewPricingEngine(PricingEngineDeps{
		Builder:     f.builder,
		Shipping:    f.collector,
		Rules:       f.rules,
		Catalog:     f.catalog,
		Diagnostics: f.diag,
	})
	if err != nil {
		t.Fatalf("new pricing engine: %v", err)
	}
	f.assembler, err = NewOrderAssembler(OrderAssemblerDeps{
		Builder:     f.builder,
		Shipping:    f.collector,
		Pricing:     f.pricing,
		Orders:      f.orders,
		Notifier:    f.notifier,
		Diagnostics: f.diag,
	})
	if err != nil {
		t.Fatalf("new assembler: %v", err)
	}
	f.service, err = NewQuickOrderService(QuickOrderServiceDeps{
		Shipping:    f.collector,
		Payments:    f.resolver,
		Pricing:     f.pricing,
		Assembler:   f.assembler,
		Config:      f.config,
		Diagnostics: f.diag,
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return f
}
