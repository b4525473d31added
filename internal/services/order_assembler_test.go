package services

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/hanko-field/quickorder/internal/domain"
)

func placeOrderCommand() PlaceOrderCommand {
	return PlaceOrderCommand{
		ProductID:          "prod-1",
		Quantity:           2,
		CustomerName:       "Mona Adel",
		CustomerPhone:      "01012345678",
		Street:             "12 Tahrir St, Apt 7",
		City:               "Cairo",
		Region:             "Cairo",
		CountryCode:        "EG",
		ShippingMethodCode: "flatrate_flatrate",
		PaymentMethodCode:  "cashondelivery",
	}
}

func TestCreateOrderSuccess(t *testing.T) {
	f := newPipelineFixture(t)
	f.config.settings.DefaultOrderStatus = "processing"

	result, err := f.service.CreateOrder(context.Background(), placeOrderCommand())
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if !result.Success || result.OrderID != "ord_1" || result.IncrementID != "QO-2025-000001" {
		t.Fatalf("unexpected result %#v", result)
	}
	if result.Message != "Thanks for your order!" {
		t.Fatalf("unexpected message %q", result.Message)
	}
	if result.RedirectURL != "https://shop.example.com/checkout/onepage/success?order_id=ord_1" {
		t.Fatalf("unexpected redirect %q", result.RedirectURL)
	}
	if len(result.Items) != 1 {
		t.Fatalf("expected one line summary, got %d", len(result.Items))
	}
	line := result.Items[0]
	if line.SKU != "MUG-1" || line.Qty != 2 || line.ProductType != "simple" {
		t.Fatalf("unexpected line summary %#v", line)
	}
	if !strings.Contains(line.Price, "100") || !strings.Contains(line.RowTotal, "200") {
		t.Fatalf("unexpected formatted prices %q / %q", line.Price, line.RowTotal)
	}
	if !strings.Contains(result.OrderTotal, "210") {
		t.Fatalf("unexpected formatted total %q", result.OrderTotal)
	}

	if len(f.orders.commits) != 1 {
		t.Fatalf("expected exactly one commit, got %d", len(f.orders.commits))
	}
	committed := f.orders.commits[0]
	if committed.GrandTotal != 21000 || committed.ShippingAmount != 1000 {
		t.Fatalf("unexpected committed totals %#v", committed)
	}
	if committed.ShippingDescription != "Flat Rate - Fixed" {
		t.Fatalf("unexpected shipping description %q", committed.ShippingDescription)
	}
	if committed.CustomerEmail != "201012345678@easypay.com" {
		t.Fatalf("expected generated guest email, got %q", committed.CustomerEmail)
	}
	if committed.CustomerFirstName != "Mona" || committed.CustomerLastName != "Adel" {
		t.Fatalf("unexpected customer name %q %q", committed.CustomerFirstName, committed.CustomerLastName)
	}
	if !reflect.DeepEqual(committed.BillingAddress, committed.ShippingAddress) {
		t.Fatalf("expected identical billing and shipping addresses")
	}
	if !reflect.DeepEqual(committed.ShippingAddress.Street, []string{"12 Tahrir St", "Apt 7"}) {
		t.Fatalf("unexpected street %#v", committed.ShippingAddress.Street)
	}
	if len(f.carts.saved) != 1 {
		t.Fatalf("expected the commit-path cart to be persisted once, got %d", len(f.carts.saved))
	}
	if committed.QuoteID != "quote-1" {
		t.Fatalf("expected committed cart to carry the stored quote id, got %q", committed.QuoteID)
	}

	if len(f.orders.saved) != 1 || f.orders.saved[0].Status != "processing" {
		t.Fatalf("expected status override to be saved, got %#v", f.orders.saved)
	}
	if f.orders.inserts != 1 {
		t.Fatalf("expected grid entry insert, got %d", f.orders.inserts)
	}
	if entry := f.orders.indexed["ord_1"]; entry.Status != "processing" {
		t.Fatalf("expected grid entry to carry overridden status, got %q", entry.Status)
	}
	if len(f.notifier.sent) != 1 {
		t.Fatalf("expected one notification, got %d", len(f.notifier.sent))
	}

	wantStages := []string{
		"BUILD_CART", "SET_CUSTOMER", "SET_ADDRESSES", "SET_SHIPPING", "SET_PAYMENT",
		"COLLECT_TOTALS", "VALIDATE", "COMMIT", "POST_COMMIT_ADJUST", "NOTIFY", "DONE",
	}
	if got := f.diag.stages(); !reflect.DeepEqual(got, wantStages) {
		t.Fatalf("unexpected stages %v", got)
	}
}

func TestCreateOrderVirtualProductNeedsNoShippingMethod(t *testing.T) {
	f := newPipelineFixture(t)
	f.catalog.products["ebook"] = domain.Product{
		ID:       "ebook",
		SKU:      "EBOOK-1",
		Name:     "Field Guide",
		Kind:     domain.ProductKindVirtual,
		Price:    10000,
		Currency: "EGP",
	}
	cmd := placeOrderCommand()
	cmd.ProductID = "ebook"
	cmd.Quantity = 1
	cmd.ShippingMethodCode = ""

	result, err := f.service.CreateOrder(context.Background(), cmd)
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if len(f.orders.commits) != 1 {
		t.Fatalf("expected exactly one commit, got %d", len(f.orders.commits))
	}
	committed := f.orders.commits[0]
	if committed.ShippingAddress != nil {
		t.Fatalf("virtual order must not carry a shipping address, got %#v", committed.ShippingAddress)
	}
	if committed.BillingAddress == nil || committed.BillingAddress.City != "Cairo" {
		t.Fatalf("expected billing address, got %#v", committed.BillingAddress)
	}
	if committed.ShippingMethodCode != "" || committed.ShippingAmount != 0 {
		t.Fatalf("unexpected shipping %q/%d", committed.ShippingMethodCode, committed.ShippingAmount)
	}
	if committed.GrandTotal != 10000 {
		t.Fatalf("expected grand total 10000, got %d", committed.GrandTotal)
	}
	if len(result.Items) != 1 || result.Items[0].ProductType != "virtual" {
		t.Fatalf("unexpected line summary %#v", result.Items)
	}
	if !strings.Contains(result.OrderTotal, "100") {
		t.Fatalf("unexpected formatted total %q", result.OrderTotal)
	}
}

func TestCreateOrderReportsVariantAttributes(t *testing.T) {
	f := newPipelineFixture(t)
	for id, product := range configurableCatalog().products {
		f.catalog.products[id] = product
	}
	cmd := placeOrderCommand()
	cmd.ProductID = "tee"
	cmd.VariantAttributes = map[string]string{"color": "2"}

	result, err := f.service.CreateOrder(context.Background(), cmd)
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if len(f.orders.commits) != 1 {
		t.Fatalf("expected exactly one commit, got %d", len(f.orders.commits))
	}
	item := f.orders.commits[0].Items[0]
	if item.ProductID != "tee" || item.VariantProductID != "tee-blue" {
		t.Fatalf("unexpected product ids %s/%s", item.ProductID, item.VariantProductID)
	}
	if item.UnitPrice != 19000 || item.RowTotal != 38000 {
		t.Fatalf("unexpected pricing unit=%d row=%d", item.UnitPrice, item.RowTotal)
	}

	if len(result.Items) != 1 {
		t.Fatalf("expected one line summary, got %d", len(result.Items))
	}
	line := result.Items[0]
	if line.SKU != "TEE-BLUE" || line.ProductType != "configurable" || line.Qty != 2 {
		t.Fatalf("unexpected line summary %#v", line)
	}
	want := []domain.AttributeLabel{{Label: "Color", Value: "Blue"}}
	if !reflect.DeepEqual(line.Attributes, want) {
		t.Fatalf("unexpected attributes %#v", line.Attributes)
	}
}

func TestCreateOrderMissingPaymentMethodNeverCommits(t *testing.T) {
	f := newPipelineFixture(t)
	cmd := placeOrderCommand()
	cmd.PaymentMethodCode = ""

	_, err := f.service.CreateOrder(context.Background(), cmd)
	if !errors.Is(err, ErrQuickOrderValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if err.Error() != "Payment method is missing." {
		t.Fatalf("unexpected message %q", err.Error())
	}
	if len(f.orders.commits) != 0 {
		t.Fatalf("commit must not be invoked")
	}
}

func TestCreateOrderSubstitutesFirstRateForUnknownMethod(t *testing.T) {
	f := newPipelineFixture(t)
	f.rates.rates = []domain.CarrierRate{
		{CarrierCode: "tablerate", MethodCode: "bestway", CarrierTitle: "Best Way", MethodTitle: "Table Rate", Price: 3000},
		flatRate(1000),
	}
	cmd := placeOrderCommand()
	cmd.ShippingMethodCode = "stale_method"

	if _, err := f.service.CreateOrder(context.Background(), cmd); err != nil {
		t.Fatalf("expected lenient substitution, got %v", err)
	}
	committed := f.orders.commits[0]
	if committed.ShippingMethodCode != "tablerate_bestway" || committed.ShippingAmount != 3000 {
		t.Fatalf("expected first rate, got %s %d", committed.ShippingMethodCode, committed.ShippingAmount)
	}
	if f.diag.count("order.shipping_method_substituted") != 1 {
		t.Fatalf("expected substitution to be logged")
	}
}

func TestCreateOrderMatchesBareCarrierCode(t *testing.T) {
	f := newPipelineFixture(t)
	f.rates.rates = []domain.CarrierRate{
		{CarrierCode: "tablerate", MethodCode: "bestway", Price: 3000},
		flatRate(1000),
	}
	cmd := placeOrderCommand()
	cmd.ShippingMethodCode = "flatrate"

	if _, err := f.service.CreateOrder(context.Background(), cmd); err != nil {
		t.Fatalf("create order: %v", err)
	}
	if got := f.orders.commits[0].ShippingMethodCode; got != "flatrate_flatrate" {
		t.Fatalf("expected carrier match, got %s", got)
	}
}

func TestCreateOrderWithoutRatesFailsValidation(t *testing.T) {
	f := newPipelineFixture(t)
	f.rates.rates = nil

	_, err := f.service.CreateOrder(context.Background(), placeOrderCommand())
	if !errors.Is(err, ErrQuickOrderValidation) || err.Error() != "Shipping method is missing." {
		t.Fatalf("expected missing shipping method, got %v", err)
	}
	if len(f.orders.commits) != 0 {
		t.Fatalf("commit must not be invoked")
	}
}

func TestCreateOrderRateProviderFailureSurfacesAsUnableToCreate(t *testing.T) {
	f := newPipelineFixture(t)
	f.rates.err = errors.New("carrier api down")

	_, err := f.service.CreateOrder(context.Background(), placeOrderCommand())
	if err == nil || !strings.HasPrefix(err.Error(), "unable to create order") {
		t.Fatalf("expected unable to create order, got %v", err)
	}
	if !strings.Contains(err.Error(), "carrier api down") {
		t.Fatalf("expected underlying cause in %q", err.Error())
	}
	if len(f.orders.commits) != 0 {
		t.Fatalf("commit must not be invoked")
	}
}

func TestCreateOrderCommitFailure(t *testing.T) {
	f := newPipelineFixture(t)
	cause := errors.New("transaction aborted")
	f.orders.commitFunc = func(context.Context, domain.VirtualCart) (domain.Order, error) {
		return domain.Order{}, cause
	}

	result, err := f.service.CreateOrder(context.Background(), placeOrderCommand())
	if !errors.Is(err, ErrQuickOrderCommit) || !errors.Is(err, cause) {
		t.Fatalf("expected wrapped commit error, got %v", err)
	}
	if result.OrderID != "" || result.Success {
		t.Fatalf("expected empty result on commit failure, got %#v", result)
	}
	if len(f.notifier.sent) != 0 || f.orders.inserts != 0 {
		t.Fatalf("no post-commit work may run after a failed commit")
	}
}

func TestCreateOrderPostCommitFailuresAreSwallowed(t *testing.T) {
	f := newPipelineFixture(t)
	f.config.settings.DefaultOrderState = "processing"
	f.orders.saveErr = errors.New("save failed")
	f.orders.existsErr = errors.New("grid unavailable")
	f.notifier.err = errors.New("smtp down")

	result, err := f.service.CreateOrder(context.Background(), placeOrderCommand())
	if err != nil {
		t.Fatalf("post-commit failures must not fail placement: %v", err)
	}
	if !result.Success || result.OrderID != "ord_1" {
		t.Fatalf("unexpected result %#v", result)
	}
	if f.diag.count("order.post_commit_failed") != 2 {
		t.Fatalf("expected two post-commit failures logged, got %d", f.diag.count("order.post_commit_failed"))
	}
	if f.diag.count("order.notification_failed") != 1 {
		t.Fatalf("expected notification failure logged")
	}
}

func TestCreateOrderSkipsExistingGridEntry(t *testing.T) {
	f := newPipelineFixture(t)
	f.orders.indexed = map[string]domain.OrderGridEntry{"ord_1": {OrderID: "ord_1"}}

	if _, err := f.service.CreateOrder(context.Background(), placeOrderCommand()); err != nil {
		t.Fatalf("create order: %v", err)
	}
	if f.orders.inserts != 0 {
		t.Fatalf("expected no insert for an indexed order")
	}
}

func TestCreateOrderNotificationDisabled(t *testing.T) {
	f := newPipelineFixture(t)
	f.config.settings.SendEmailNotification = false

	if _, err := f.service.CreateOrder(context.Background(), placeOrderCommand()); err != nil {
		t.Fatalf("create order: %v", err)
	}
	if len(f.notifier.sent) != 0 {
		t.Fatalf("expected no notification")
	}
}

func TestCreateOrderKeepsProvidedEmailAndSingleWordName(t *testing.T) {
	f := newPipelineFixture(t)
	cmd := placeOrderCommand()
	cmd.CustomerEmail = "mona@example.com"
	cmd.CustomerName = "Mona"

	if _, err := f.service.CreateOrder(context.Background(), cmd); err != nil {
		t.Fatalf("create order: %v", err)
	}
	committed := f.orders.commits[0]
	if committed.CustomerEmail != "mona@example.com" {
		t.Fatalf("unexpected email %q", committed.CustomerEmail)
	}
	if committed.CustomerFirstName != "Mona" || committed.CustomerLastName != "Mona" {
		t.Fatalf("expected last name to default to first name, got %q %q", committed.CustomerFirstName, committed.CustomerLastName)
	}
}

func TestCreateOrderAppliesFreeShippingThreshold(t *testing.T) {
	f := newPipelineFixture(t)
	f.config.settings.FreeShippingThreshold = 15000

	if _, err := f.service.CreateOrder(context.Background(), placeOrderCommand()); err != nil {
		t.Fatalf("create order: %v", err)
	}
	committed := f.orders.commits[0]
	if committed.ShippingAmount != 0 || committed.GrandTotal != 20000 {
		t.Fatalf("expected free shipping on commit, got %#v", committed)
	}
}

func TestCreateOrderDisabled(t *testing.T) {
	f := newPipelineFixture(t)
	f.config.settings.Enabled = false

	_, err := f.service.CreateOrder(context.Background(), placeOrderCommand())
	if !errors.Is(err, ErrQuickOrderDisabled) || !errors.Is(err, ErrQuickOrderValidation) {
		t.Fatalf("expected disabled validation error, got %v", err)
	}
	if err.Error() != "Quick order is not enabled." {
		t.Fatalf("unexpected message %q", err.Error())
	}
}

func TestCreateOrderPhoneValidation(t *testing.T) {
	f := newPipelineFixture(t)
	f.config.settings.PhoneValidation = true
	cmd := placeOrderCommand()
	cmd.CustomerPhone = "12345"

	_, err := f.service.CreateOrder(context.Background(), cmd)
	if !errors.Is(err, ErrQuickOrderInvalidInput) {
		t.Fatalf("expected invalid phone, got %v", err)
	}
	if len(f.orders.commits) != 0 {
		t.Fatalf("commit must not be invoked")
	}
}
