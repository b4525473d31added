package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/oklog/ulid/v2"

	"github.com/hanko-field/quickorder/internal/domain"
	pfirestore "github.com/hanko-field/quickorder/internal/platform/firestore"
)

const (
	ordersCollection    = "orders"
	orderGridCollection = "order_grid"
	orderIDPrefix       = "ord_"
	incrementPrefix     = "QO"
)

type orderDocument struct {
	IncrementID         string             `firestore:"incrementId"`
	QuoteID             string             `firestore:"quoteId,omitempty"`
	Status              string             `firestore:"status"`
	State               string             `firestore:"state"`
	StoreID             string             `firestore:"storeId"`
	Currency            string             `firestore:"currency"`
	CustomerEmail       string             `firestore:"customerEmail"`
	CustomerName        string             `firestore:"customerName"`
	CustomerGroupID     int                `firestore:"customerGroupId"`
	Items               []lineItemDocument `firestore:"items"`
	Subtotal            int64              `firestore:"subtotal"`
	DiscountAmount      int64              `firestore:"discountAmount"`
	ShippingAmount      int64              `firestore:"shippingAmount"`
	GrandTotal          int64              `firestore:"grandTotal"`
	ShippingMethodCode  string             `firestore:"shippingMethod,omitempty"`
	ShippingDescription string             `firestore:"shippingDescription,omitempty"`
	PaymentMethodCode   string             `firestore:"paymentMethod"`
	BillingAddress      *addressDocument   `firestore:"billingAddress,omitempty"`
	ShippingAddress     *addressDocument   `firestore:"shippingAddress,omitempty"`
	AppliedRuleIDs      []string           `firestore:"appliedRuleIds,omitempty"`
	CouponCode          string             `firestore:"couponCode,omitempty"`
	CreatedAt           time.Time          `firestore:"createdAt"`
	UpdatedAt           time.Time          `firestore:"updatedAt"`
}

type orderGridDocument struct {
	IncrementID   string    `firestore:"incrementId"`
	Status        string    `firestore:"status"`
	StoreID       string    `firestore:"storeId"`
	Currency      string    `firestore:"currency"`
	GrandTotal    int64     `firestore:"grandTotal"`
	CustomerEmail string    `firestore:"customerEmail"`
	CustomerName  string    `firestore:"customerName"`
	CreatedAt     time.Time `firestore:"createdAt"`
	UpdatedAt     time.Time `firestore:"updatedAt"`
}

// OrderRepository commits quick orders and maintains the order listing index.
type OrderRepository struct {
	provider *pfirestore.Provider
	orders   *pfirestore.Collection[orderDocument]
	grid     *pfirestore.Collection[orderGridDocument]
	counters *CounterRepository
	now      func() time.Time
	newID    func() string
}

// NewOrderRepository constructs a Firestore-backed order store.
func NewOrderRepository(provider *pfirestore.Provider, counters *CounterRepository) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	if counters == nil {
		return nil, errors.New("order repository requires counter repository")
	}
	return &OrderRepository{
		provider: provider,
		orders:   pfirestore.NewCollection[orderDocument](provider, ordersCollection, nil),
		grid:     pfirestore.NewCollection[orderGridDocument](provider, orderGridCollection, nil),
		counters: counters,
		now:      time.Now,
		newID:    func() string { return orderIDPrefix + ulid.Make().String() },
	}, nil
}

// Commit turns the priced cart into a pending order. The yearly increment id and the order
// document are written in one transaction.
func (r *OrderRepository) Commit(ctx context.Context, cart domain.VirtualCart) (domain.Order, error) {
	if len(cart.Items) == 0 {
		return domain.Order{}, errors.New("orders.commit: cart has no items")
	}
	now := r.now().UTC()
	id := r.newID()

	var order domain.Order
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		counterID := fmt.Sprintf("orders-%d", now.Year())
		seq, err := r.counters.NextInTx(ctx, tx, counterID, 1)
		if err != nil {
			return err
		}
		ref, err := r.orders.Doc(ctx, id)
		if err != nil {
			return err
		}
		order = domain.NewOrder(id, formatIncrementID(now.Year(), seq), cart, now)
		return tx.Create(ref, encodeOrder(order))
	})
	if err != nil {
		return domain.Order{}, pfirestore.WrapError("orders.commit", err)
	}
	return order, nil
}

// Save overwrites a committed order, refreshing its update time.
func (r *OrderRepository) Save(ctx context.Context, order domain.Order) error {
	if strings.TrimSpace(order.ID) == "" {
		return errors.New("orders.save: order id is required")
	}
	order.UpdatedAt = r.now().UTC()
	return r.orders.Set(ctx, order.ID, encodeOrder(order))
}

// IndexEntryExists reports whether the order already has a listing row.
func (r *OrderRepository) IndexEntryExists(ctx context.Context, orderID string) (bool, error) {
	ref, err := r.grid.Doc(ctx, orderID)
	if err != nil {
		return false, err
	}
	snap, err := ref.Get(ctx)
	if pfirestore.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, pfirestore.WrapError("order_grid.get", err)
	}
	return snap.Exists(), nil
}

// InsertIndexEntry writes the listing row for an order.
func (r *OrderRepository) InsertIndexEntry(ctx context.Context, entry domain.OrderGridEntry) error {
	return r.grid.Set(ctx, entry.OrderID, orderGridDocument{
		IncrementID:   entry.IncrementID,
		Status:        string(entry.Status),
		StoreID:       entry.StoreID,
		Currency:      entry.Currency,
		GrandTotal:    entry.GrandTotal,
		CustomerEmail: entry.CustomerEmail,
		CustomerName:  entry.CustomerName,
		CreatedAt:     utc(entry.CreatedAt),
		UpdatedAt:     utc(entry.UpdatedAt),
	})
}

func formatIncrementID(year int, seq int64) string {
	return fmt.Sprintf("%s-%d-%06d", incrementPrefix, year, seq)
}

func encodeOrder(order domain.Order) orderDocument {
	return orderDocument{
		IncrementID:         order.IncrementID,
		QuoteID:             order.QuoteID,
		Status:              string(order.Status),
		State:               string(order.State),
		StoreID:             order.StoreID,
		Currency:            order.Currency,
		CustomerEmail:       order.CustomerEmail,
		CustomerName:        order.CustomerName,
		CustomerGroupID:     order.CustomerGroupID,
		Items:               encodeItems(order.Items),
		Subtotal:            order.Subtotal,
		DiscountAmount:      order.DiscountAmount,
		ShippingAmount:      order.ShippingAmount,
		GrandTotal:          order.GrandTotal,
		ShippingMethodCode:  order.ShippingMethodCode,
		ShippingDescription: order.ShippingDescription,
		PaymentMethodCode:   order.PaymentMethodCode,
		BillingAddress:      encodeAddress(order.BillingAddress),
		ShippingAddress:     encodeAddress(order.ShippingAddress),
		AppliedRuleIDs:      order.AppliedRuleIDs,
		CouponCode:          order.CouponCode,
		CreatedAt:           utc(order.CreatedAt),
		UpdatedAt:           utc(order.UpdatedAt),
	}
}
