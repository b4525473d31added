package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/hanko-field/quickorder/internal/domain"
	"github.com/hanko-field/quickorder/internal/platform/money"
)

const (
	successRedirectPath   = "checkout/onepage/success"
	defaultSuccessMessage = "Your order has been placed successfully."

	msgShippingMethodMissing = "Shipping method is missing."
	msgPaymentMethodMissing  = "Payment method is missing."
	msgQuoteHasNoItems       = "Quote has no items."
)

// OrderStage names a step of the placement state machine.
type OrderStage string

const (
	StageBuildCart        OrderStage = "BUILD_CART"
	StageSetCustomer      OrderStage = "SET_CUSTOMER"
	StageSetAddresses     OrderStage = "SET_ADDRESSES"
	StageSetShipping      OrderStage = "SET_SHIPPING"
	StageSetPayment       OrderStage = "SET_PAYMENT"
	StageCollectTotals    OrderStage = "COLLECT_TOTALS"
	StageValidate         OrderStage = "VALIDATE"
	StageCommit           OrderStage = "COMMIT"
	StagePostCommitAdjust OrderStage = "POST_COMMIT_ADJUST"
	StageNotify           OrderStage = "NOTIFY"
	StageDone             OrderStage = "DONE"
)

// OrderAssemblerDeps wires the order assembler.
type OrderAssemblerDeps struct {
	Builder     *VirtualCartBuilder
	Shipping    *ShippingRateCollector
	Pricing     *PricingEngine
	Orders      OrderStore
	Notifier    NotificationSender
	Diagnostics Diagnostics
}

// OrderAssembler drives a quick order from cart construction to a committed order.
type OrderAssembler struct {
	builder  *VirtualCartBuilder
	shipping *ShippingRateCollector
	pricing  *PricingEngine
	orders   OrderStore
	notifier NotificationSender
	diag     Diagnostics
}

// NewOrderAssembler validates dependencies. A nil notifier disables notifications.
func NewOrderAssembler(deps OrderAssemblerDeps) (*OrderAssembler, error) {
	switch {
	case deps.Builder == nil:
		return nil, errors.New("order assembler: cart builder is required")
	case deps.Shipping == nil:
		return nil, errors.New("order assembler: shipping collector is required")
	case deps.Pricing == nil:
		return nil, errors.New("order assembler: pricing engine is required")
	case deps.Orders == nil:
		return nil, errors.New("order assembler: order store is required")
	}
	return &OrderAssembler{
		builder:  deps.Builder,
		shipping: deps.Shipping,
		pricing:  deps.Pricing,
		orders:   deps.Orders,
		notifier: deps.Notifier,
		diag:     diagnosticsOrNoop(deps.Diagnostics),
	}, nil
}

// PlaceOrder runs the placement state machine. Errors before commit surface as "unable to
// create order"; validation failures keep their message. Nothing after commit can fail the call.
func (a *OrderAssembler) PlaceOrder(ctx context.Context, cmd PlaceOrderCommand, settings domain.MerchantSettings) (domain.OrderResult, error) {
	a.stage(ctx, StageBuildCart, map[string]any{"product_id": cmd.ProductID, "qty": cmd.Quantity})
	cart, err := a.builder.Build(ctx, BuildCartCommand{
		ProductID:         cmd.ProductID,
		Quantity:          cmd.Quantity,
		VariantAttributes: cmd.VariantAttributes,
		Customer:          CustomerContext{GroupID: settings.DefaultCustomerGroup},
		Store:             settings.Store,
	})
	if err != nil {
		return a.fail(ctx, StageBuildCart, preCommitError("order.build_cart", err))
	}
	if coupon := strings.TrimSpace(cmd.CouponCode); coupon != "" {
		cart = cart.WithCoupon(coupon)
	}

	a.stage(ctx, StageSetCustomer, nil)
	cart = a.setCustomer(cart, cmd, settings)

	a.stage(ctx, StageSetAddresses, nil)
	cart = a.setAddresses(ctx, cart, cmd, settings)

	a.stage(ctx, StageSetShipping, map[string]any{"requested": cmd.ShippingMethodCode})
	cart, err = a.setShipping(ctx, cart, cmd.ShippingMethodCode)
	if err != nil {
		return a.fail(ctx, StageSetShipping, preCommitError("order.set_shipping", err))
	}

	a.stage(ctx, StageSetPayment, map[string]any{"method": cmd.PaymentMethodCode})
	cart = cart.WithPaymentMethod(strings.TrimSpace(cmd.PaymentMethodCode))

	a.stage(ctx, StageCollectTotals, nil)
	cart, err = a.collectTotals(ctx, cart, settings)
	if err != nil {
		return a.fail(ctx, StageCollectTotals, preCommitError("order.collect_totals", err))
	}

	a.stage(ctx, StageValidate, nil)
	if err := validateCart(cart); err != nil {
		return a.fail(ctx, StageValidate, err)
	}

	a.stage(ctx, StageCommit, nil)
	order, err := a.orders.Commit(ctx, cart)
	if err != nil {
		return a.fail(ctx, StageCommit, commitError("order.commit", err))
	}

	a.stage(ctx, StagePostCommitAdjust, map[string]any{"order_id": order.ID})
	order = a.applyStatusOverride(ctx, order, settings)
	a.ensureVisibility(ctx, order)

	a.stage(ctx, StageNotify, map[string]any{"order_id": order.ID})
	a.notify(ctx, order, settings)

	result := buildOrderResult(order, settings)
	a.stage(ctx, StageDone, map[string]any{
		"order_id":     order.ID,
		"increment_id": order.IncrementID,
	})
	a.diag.Log(ctx, LevelInfo, "order.placed", map[string]any{
		"order_id":     order.ID,
		"increment_id": order.IncrementID,
		"grand_total":  order.GrandTotal,
		"currency":     order.Currency,
	})
	return result, nil
}

func (a *OrderAssembler) setCustomer(cart domain.VirtualCart, cmd PlaceOrderCommand, settings domain.MerchantSettings) domain.VirtualCart {
	email := strings.TrimSpace(cmd.CustomerEmail)
	if email == "" && settings.AutoGenerateEmail {
		email = GuestEmail(FormatPhoneNumber(cmd.CustomerPhone), settings.GuestEmailDomain())
	}
	first, last := SplitCustomerName(cmd.CustomerName)
	return cart.WithCustomer(email, first, last)
}

func (a *OrderAssembler) setAddresses(ctx context.Context, cart domain.VirtualCart, cmd PlaceOrderCommand, settings domain.MerchantSettings) domain.VirtualCart {
	country := strings.TrimSpace(cmd.CountryCode)
	if country == "" {
		country = settings.Country()
	}
	addr := a.builder.ResolveAddress(ctx, AddressInput{
		FirstName:   cart.CustomerFirstName,
		LastName:    cart.CustomerLastName,
		Street:      cmd.Street,
		City:        cmd.City,
		Region:      cmd.Region,
		Postcode:    cmd.Postcode,
		CountryCode: country,
		Telephone:   cmd.CustomerPhone,
		Email:       cart.CustomerEmail,
	})
	var shipping *domain.Address
	if cart.RequiresShipping() {
		shipping = &addr
	}
	return cart.WithAddresses(&addr, shipping)
}

func (a *OrderAssembler) setShipping(ctx context.Context, cart domain.VirtualCart, requested string) (domain.VirtualCart, error) {
	if cart.ShippingAddress == nil {
		return cart, nil
	}
	options, err := a.shipping.Collect(ctx, cart)
	if err != nil {
		return domain.VirtualCart{}, err
	}
	chosen, ok := matchShippingRate(options, requested)
	if !ok {
		a.diag.Log(ctx, LevelWarn, "order.no_shipping_rates", map[string]any{"requested": requested})
		return cart, nil
	}
	if chosen.Code != strings.TrimSpace(requested) {
		a.diag.Log(ctx, LevelWarn, "order.shipping_method_substituted", map[string]any{
			"requested": requested,
			"chosen":    chosen.Code,
		})
	}
	return cart.WithShippingMethod(chosen.Code, chosen.Description(), chosen.Price), nil
}

func (a *OrderAssembler) collectTotals(ctx context.Context, cart domain.VirtualCart, settings domain.MerchantSettings) (domain.VirtualCart, error) {
	priced, err := a.pricing.PriceCart(ctx, cart, settings)
	if err != nil {
		return domain.VirtualCart{}, err
	}
	return a.builder.Persist(ctx, priced)
}

// validateCart is the only hard stop before commit. Carts without physical items need no
// shipping method.
func validateCart(cart domain.VirtualCart) error {
	if cart.RequiresShipping() && strings.TrimSpace(cart.ShippingMethodCode) == "" {
		return validationError("order.validate", msgShippingMethodMissing)
	}
	if strings.TrimSpace(cart.PaymentMethodCode) == "" {
		return validationError("order.validate", msgPaymentMethodMissing)
	}
	if cart.ItemCount() == 0 {
		return validationError("order.validate", msgQuoteHasNoItems)
	}
	return nil
}

func (a *OrderAssembler) applyStatusOverride(ctx context.Context, order domain.Order, settings domain.MerchantSettings) domain.Order {
	status := strings.TrimSpace(settings.DefaultOrderStatus)
	state := strings.TrimSpace(settings.DefaultOrderState)
	if status == "" && state == "" {
		return order
	}
	adjusted := order
	if status != "" {
		adjusted.Status = domain.OrderStatus(status)
	}
	if state != "" {
		adjusted.State = domain.OrderState(state)
	}
	if err := a.orders.Save(ctx, adjusted); err != nil {
		a.postCommitFailure(ctx, "order.status_override", order.ID, err)
		return order
	}
	return adjusted
}

func (a *OrderAssembler) ensureVisibility(ctx context.Context, order domain.Order) {
	exists, err := a.orders.IndexEntryExists(ctx, order.ID)
	if err != nil {
		a.postCommitFailure(ctx, "order.visibility_check", order.ID, err)
		return
	}
	if exists {
		return
	}
	if err := a.orders.InsertIndexEntry(ctx, order.GridEntry()); err != nil {
		a.postCommitFailure(ctx, "order.visibility_repair", order.ID, err)
		return
	}
	a.diag.Log(ctx, LevelInfo, "order.visibility_repaired", map[string]any{"order_id": order.ID})
}

func (a *OrderAssembler) notify(ctx context.Context, order domain.Order, settings domain.MerchantSettings) {
	if !settings.SendEmailNotification || a.notifier == nil {
		return
	}
	if err := a.notifier.Send(ctx, order); err != nil {
		a.diag.Log(ctx, LevelWarn, "order.notification_failed", map[string]any{
			"order_id": order.ID,
			"error":    postCommitError("order.notify", err).Error(),
		})
	}
}

func (a *OrderAssembler) postCommitFailure(ctx context.Context, op, orderID string, err error) {
	a.diag.Log(ctx, LevelWarn, "order.post_commit_failed", map[string]any{
		"op":       op,
		"order_id": orderID,
		"error":    postCommitError(op, err).Error(),
	})
}

func (a *OrderAssembler) stage(ctx context.Context, stage OrderStage, fields map[string]any) {
	payload := map[string]any{"stage": string(stage)}
	for k, v := range fields {
		payload[k] = v
	}
	a.diag.Log(ctx, LevelDebug, "order.stage", payload)
}

func (a *OrderAssembler) fail(ctx context.Context, stage OrderStage, err error) (domain.OrderResult, error) {
	level := LevelError
	if kind, ok := KindOf(err); ok && kind == ErrorKindValidation {
		level = LevelWarn
	}
	a.diag.Log(ctx, level, "order.failed", map[string]any{
		"stage": string(stage),
		"error": err.Error(),
	})
	return domain.OrderResult{}, err
}

func buildOrderResult(order domain.Order, settings domain.MerchantSettings) domain.OrderResult {
	locale := settings.Store.Locale
	items := make([]domain.OrderLineSummary, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, domain.OrderLineSummary{
			Name:        item.Name,
			SKU:         item.SKU,
			Qty:         item.Quantity,
			Price:       money.Format(item.UnitPrice, order.Currency, locale),
			RowTotal:    money.Format(item.RowTotal, order.Currency, locale),
			ProductType: string(item.Kind),
			Attributes:  item.Attributes,
		})
	}
	message := strings.TrimSpace(settings.SuccessMessage)
	if message == "" {
		message = defaultSuccessMessage
	}
	return domain.OrderResult{
		Success:     true,
		OrderID:     order.ID,
		IncrementID: order.IncrementID,
		Message:     message,
		Items:       items,
		OrderTotal:  money.Format(order.GrandTotal, order.Currency, locale),
		RedirectURL: successURL(settings.Store.BaseURL, order.ID),
	}
}

func successURL(baseURL, orderID string) string {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	return fmt.Sprintf("%s/%s?order_id=%s", base, successRedirectPath, url.QueryEscape(orderID))
}
