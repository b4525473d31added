package domain

import (
	"slices"
	"strings"
	"time"
)

// CustomerGroupNotLoggedIn is the rule-evaluation group used for anonymous carts.
const CustomerGroupNotLoggedIn = 0

// Address is a normalised postal address attached to a cart or order.
type Address struct {
	FirstName   string
	LastName    string
	Street      []string
	City        string
	RegionName  string
	RegionID    string
	Postcode    string
	CountryCode string
	Telephone   string
	Email       string
}

// Clone returns a deep copy of the address.
func (a *Address) Clone() *Address {
	if a == nil {
		return nil
	}
	copyAddr := *a
	copyAddr.Street = slices.Clone(a.Street)
	return &copyAddr
}

// LineItem is one product row on a virtual cart or committed order. Amounts are minor units.
type LineItem struct {
	ProductID        string
	VariantProductID string
	SKU              string
	Name             string
	Kind             ProductKind
	Quantity         int
	BasePrice        int64
	UnitPrice        int64
	RowTotal         int64
	WeightKg         float64
	AppliedRuleID    string
	Attributes       []AttributeLabel
}

// PricedProductID returns the concrete product the row is priced against.
func (i LineItem) PricedProductID() string {
	if i.VariantProductID != "" {
		return i.VariantProductID
	}
	return i.ProductID
}

// WithUnitPrice returns the item repriced at unitPrice with its row total recomputed.
func (i LineItem) WithUnitPrice(unitPrice int64) LineItem {
	i.UnitPrice = unitPrice
	i.RowTotal = unitPrice * int64(max(i.Quantity, 1))
	i.Attributes = slices.Clone(i.Attributes)
	return i
}

// WithRowTotal applies a rule override to the row total and derives the unit price from it.
func (i LineItem) WithRowTotal(rowTotal int64, ruleID string) LineItem {
	qty := int64(max(i.Quantity, 1))
	i.RowTotal = rowTotal
	i.UnitPrice = rowTotal / qty
	if ruleID != "" {
		i.AppliedRuleID = ruleID
	}
	i.Attributes = slices.Clone(i.Attributes)
	return i
}

// CartTotals captures the monetary state produced by a totals recomputation.
type CartTotals struct {
	Subtotal             int64
	SubtotalWithDiscount int64
	ShippingAmount       int64
	GrandTotal           int64
	AppliedRuleIDs       []string
	CouponCode           string
}

// VirtualCart is the ephemeral, value-typed cart threaded through the pipeline. Every With*
// method returns a new cart and leaves the receiver untouched.
type VirtualCart struct {
	QuoteID              string
	StoreID              string
	WebsiteID            string
	Currency             string
	CustomerGroupID      int
	IsGuest              bool
	CustomerEmail        string
	CustomerFirstName    string
	CustomerLastName     string
	BillingAddress       *Address
	ShippingAddress      *Address
	Items                []LineItem
	WeightKg             float64
	ShippingMethodCode   string
	ShippingDescription  string
	PaymentMethodCode    string
	CouponCode           string
	Subtotal             int64
	SubtotalWithDiscount int64
	ShippingAmount       int64
	GrandTotal           int64
	AppliedRuleIDs       []string
}

// Clone returns a deep copy of the cart.
func (c VirtualCart) Clone() VirtualCart {
	out := c
	out.BillingAddress = c.BillingAddress.Clone()
	out.ShippingAddress = c.ShippingAddress.Clone()
	out.AppliedRuleIDs = slices.Clone(c.AppliedRuleIDs)
	if c.Items != nil {
		out.Items = make([]LineItem, len(c.Items))
		for i, item := range c.Items {
			item.Attributes = slices.Clone(item.Attributes)
			out.Items[i] = item
		}
	}
	return out
}

// WithItem appends a line item and refreshes the cart weight and raw subtotal.
func (c VirtualCart) WithItem(item LineItem) VirtualCart {
	out := c.Clone()
	out.Items = append(out.Items, item)
	out.WeightKg = 0
	out.Subtotal = 0
	for _, it := range out.Items {
		out.WeightKg += it.WeightKg * float64(max(it.Quantity, 1))
		out.Subtotal += it.RowTotal
	}
	out.SubtotalWithDiscount = out.Subtotal
	return out
}

// WithItems replaces the line items, typically after a pricing pass.
func (c VirtualCart) WithItems(items []LineItem) VirtualCart {
	out := c.Clone()
	out.Items = make([]LineItem, 0, len(items))
	out.Subtotal = 0
	for _, it := range items {
		it.Attributes = slices.Clone(it.Attributes)
		out.Items = append(out.Items, it)
		out.Subtotal += it.RowTotal
	}
	out.SubtotalWithDiscount = out.Subtotal
	return out
}

// WithCustomer sets the guest customer identity.
func (c VirtualCart) WithCustomer(email, firstName, lastName string) VirtualCart {
	out := c.Clone()
	out.IsGuest = true
	out.CustomerEmail = email
	out.CustomerFirstName = firstName
	out.CustomerLastName = lastName
	return out
}

// WithAddresses sets billing and shipping addresses. A nil shipping address is kept nil.
func (c VirtualCart) WithAddresses(billing, shipping *Address) VirtualCart {
	out := c.Clone()
	out.BillingAddress = billing.Clone()
	out.ShippingAddress = shipping.Clone()
	return out
}

// WithShippingMethod records the chosen rate on the cart.
func (c VirtualCart) WithShippingMethod(code, description string, amount int64) VirtualCart {
	out := c.Clone()
	out.ShippingMethodCode = code
	out.ShippingDescription = description
	out.ShippingAmount = amount
	return out
}

// WithPaymentMethod records the chosen payment method code.
func (c VirtualCart) WithPaymentMethod(code string) VirtualCart {
	out := c.Clone()
	out.PaymentMethodCode = code
	return out
}

// WithQuoteID records the id the cart snapshot was stored under.
func (c VirtualCart) WithQuoteID(id string) VirtualCart {
	out := c.Clone()
	out.QuoteID = id
	return out
}

// WithCoupon records a coupon code for cart-rule evaluation.
func (c VirtualCart) WithCoupon(code string) VirtualCart {
	out := c.Clone()
	out.CouponCode = code
	return out
}

// WithTotals snapshots a totals computation onto the cart.
func (c VirtualCart) WithTotals(t CartTotals) VirtualCart {
	out := c.Clone()
	out.Subtotal = t.Subtotal
	out.SubtotalWithDiscount = t.SubtotalWithDiscount
	out.ShippingAmount = t.ShippingAmount
	out.GrandTotal = t.GrandTotal
	out.AppliedRuleIDs = slices.Clone(t.AppliedRuleIDs)
	out.CouponCode = t.CouponCode
	return out
}

// RequiresShipping reports whether any line item is physically shipped.
func (c VirtualCart) RequiresShipping() bool {
	for _, it := range c.Items {
		if it.Kind.RequiresShipping() {
			return true
		}
	}
	return false
}

// ItemCount returns the number of line items.
func (c VirtualCart) ItemCount() int {
	return len(c.Items)
}

// TotalQuantity sums line item quantities.
func (c VirtualCart) TotalQuantity() int {
	total := 0
	for _, it := range c.Items {
		total += it.Quantity
	}
	return total
}

// CarrierRate is a rate exactly as a shipping provider returned it.
type CarrierRate struct {
	CarrierCode  string
	MethodCode   string
	CarrierTitle string
	MethodTitle  string
	Price        int64
	ErrorMessage string
}

// ShippingRateOption is a normalised, selectable shipping rate.
type ShippingRateOption struct {
	Code         string
	CarrierCode  string
	MethodCode   string
	CarrierTitle string
	MethodTitle  string
	Price        int64
}

// Description renders the rate as "carrier - method".
func (o ShippingRateOption) Description() string {
	switch {
	case o.CarrierTitle == "":
		return o.MethodTitle
	case o.MethodTitle == "":
		return o.CarrierTitle
	default:
		return o.CarrierTitle + " - " + o.MethodTitle
	}
}

// PaymentMethodOption is a selectable payment method.
type PaymentMethodOption struct {
	Code    string
	Title   string
	Default bool
}

// RegisteredPaymentMethod is an active method as reported by the payment registry. Title is
// empty when the integration does not supply one.
type RegisteredPaymentMethod struct {
	Code      string
	Title     string
	SortOrder int
}

// PaymentMethodFlag is the raw per-method merchant configuration.
type PaymentMethodFlag struct {
	Code   string
	Active bool
	Title  string
}

// PriceBreakdown is the reconciled price preview for a quick order.
type PriceBreakdown struct {
	Currency       string
	UnitPrice      int64
	Subtotal       int64
	ShippingCost   int64
	DiscountAmount int64
	GrandTotal     int64
	AppliedRuleIDs []string
	HasDiscount    bool
	CouponCode     string
	Fallback       bool
}

// OrderStatus is the merchant-facing order status label.
type OrderStatus string

// OrderState is the lifecycle state the status belongs to.
type OrderState string

const (
	// OrderStatusPending is assigned on commit unless the merchant overrides it.
	OrderStatusPending OrderStatus = "pending"
	// OrderStateNew is assigned on commit unless the merchant overrides it.
	OrderStateNew OrderState = "new"
)

// Order is a committed quick order.
type Order struct {
	ID                  string
	IncrementID         string
	QuoteID             string
	Status              OrderStatus
	State               OrderState
	StoreID             string
	Currency            string
	CustomerEmail       string
	CustomerName        string
	CustomerGroupID     int
	Items               []LineItem
	Subtotal            int64
	DiscountAmount      int64
	ShippingAmount      int64
	GrandTotal          int64
	ShippingMethodCode  string
	ShippingDescription string
	PaymentMethodCode   string
	BillingAddress      *Address
	ShippingAddress     *Address
	AppliedRuleIDs      []string
	CouponCode          string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// OrderGridEntry is the denormalised listing row that makes an order discoverable.
type OrderGridEntry struct {
	OrderID       string
	IncrementID   string
	Status        OrderStatus
	StoreID       string
	Currency      string
	GrandTotal    int64
	CustomerEmail string
	CustomerName  string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// GridEntry projects the order onto its listing row.
func (o Order) GridEntry() OrderGridEntry {
	return OrderGridEntry{
		OrderID:       o.ID,
		IncrementID:   o.IncrementID,
		Status:        o.Status,
		StoreID:       o.StoreID,
		Currency:      o.Currency,
		GrandTotal:    o.GrandTotal,
		CustomerEmail: o.CustomerEmail,
		CustomerName:  o.CustomerName,
		CreatedAt:     o.CreatedAt,
		UpdatedAt:     o.UpdatedAt,
	}
}

// OrderLineSummary is a formatted line item returned to the shopper after placement.
type OrderLineSummary struct {
	Name        string
	SKU         string
	Qty         int
	Price       string
	RowTotal    string
	ProductType string
	Attributes  []AttributeLabel
}

// OrderResult summarises a successful placement.
type OrderResult struct {
	Success     bool
	OrderID     string
	IncrementID string
	Message     string
	Items       []OrderLineSummary
	OrderTotal  string
	RedirectURL string
}

// NewOrder snapshots a priced cart into a pending order.
func NewOrder(id, incrementID string, cart VirtualCart, at time.Time) Order {
	name := strings.TrimSpace(cart.CustomerFirstName + " " + cart.CustomerLastName)
	return Order{
		ID:                  id,
		IncrementID:         incrementID,
		QuoteID:             cart.QuoteID,
		Status:              OrderStatusPending,
		State:               OrderStateNew,
		StoreID:             cart.StoreID,
		Currency:            cart.Currency,
		CustomerEmail:       cart.CustomerEmail,
		CustomerName:        name,
		CustomerGroupID:     cart.CustomerGroupID,
		Items:               slices.Clone(cart.Items),
		Subtotal:            cart.Subtotal,
		DiscountAmount:      cart.Subtotal - cart.SubtotalWithDiscount,
		ShippingAmount:      cart.ShippingAmount,
		GrandTotal:          cart.GrandTotal,
		ShippingMethodCode:  cart.ShippingMethodCode,
		ShippingDescription: cart.ShippingDescription,
		PaymentMethodCode:   cart.PaymentMethodCode,
		BillingAddress:      cart.BillingAddress.Clone(),
		ShippingAddress:     cart.ShippingAddress.Clone(),
		AppliedRuleIDs:      slices.Clone(cart.AppliedRuleIDs),
		CouponCode:          cart.CouponCode,
		CreatedAt:           at,
		UpdatedAt:           at,
	}
}
