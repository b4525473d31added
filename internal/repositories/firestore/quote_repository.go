package firestore

import (
	"context"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/hanko-field/quickorder/internal/domain"
	pfirestore "github.com/hanko-field/quickorder/internal/platform/firestore"
)

const quotesCollection = "quotes"

type quoteDocument struct {
	StoreID              string             `firestore:"storeId"`
	WebsiteID            string             `firestore:"websiteId"`
	Currency             string             `firestore:"currency"`
	CustomerGroupID      int                `firestore:"customerGroupId"`
	IsGuest              bool               `firestore:"isGuest"`
	CustomerEmail        string             `firestore:"customerEmail"`
	Items                []lineItemDocument `firestore:"items"`
	ShippingAddress      *addressDocument   `firestore:"shippingAddress,omitempty"`
	BillingAddress       *addressDocument   `firestore:"billingAddress,omitempty"`
	ShippingMethodCode   string             `firestore:"shippingMethod,omitempty"`
	PaymentMethodCode    string             `firestore:"paymentMethod,omitempty"`
	CouponCode           string             `firestore:"couponCode,omitempty"`
	Subtotal             int64              `firestore:"subtotal"`
	SubtotalWithDiscount int64              `firestore:"subtotalWithDiscount"`
	ShippingAmount       int64              `firestore:"shippingAmount"`
	GrandTotal           int64              `firestore:"grandTotal"`
	CreatedAt            time.Time          `firestore:"createdAt"`
}

// QuoteRepository persists the cart snapshot taken on the commit path.
type QuoteRepository struct {
	quotes *pfirestore.Collection[quoteDocument]
	now    func() time.Time
	newID  func() string
}

// NewQuoteRepository constructs a Firestore-backed cart store.
func NewQuoteRepository(provider *pfirestore.Provider) (*QuoteRepository, error) {
	if provider == nil {
		return nil, errors.New("quote repository requires firestore provider")
	}
	return &QuoteRepository{
		quotes: pfirestore.NewCollection[quoteDocument](provider, quotesCollection, nil),
		now:    time.Now,
		newID:  func() string { return ulid.Make().String() },
	}, nil
}

// SaveCart stores the cart under a fresh quote id and returns it.
func (r *QuoteRepository) SaveCart(ctx context.Context, cart domain.VirtualCart) (string, error) {
	id := r.newID()
	err := r.quotes.Set(ctx, id, quoteDocument{
		StoreID:              cart.StoreID,
		WebsiteID:            cart.WebsiteID,
		Currency:             cart.Currency,
		CustomerGroupID:      cart.CustomerGroupID,
		IsGuest:              cart.IsGuest,
		CustomerEmail:        cart.CustomerEmail,
		Items:                encodeItems(cart.Items),
		ShippingAddress:      encodeAddress(cart.ShippingAddress),
		BillingAddress:       encodeAddress(cart.BillingAddress),
		ShippingMethodCode:   cart.ShippingMethodCode,
		PaymentMethodCode:    cart.PaymentMethodCode,
		CouponCode:           cart.CouponCode,
		Subtotal:             cart.Subtotal,
		SubtotalWithDiscount: cart.SubtotalWithDiscount,
		ShippingAmount:       cart.ShippingAmount,
		GrandTotal:           cart.GrandTotal,
		CreatedAt:            r.now().UTC(),
	})
	if err != nil {
		return "", err
	}
	return id, nil
}
