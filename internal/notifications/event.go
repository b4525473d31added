// Package notifications publishes order confirmation events to downstream transports.
package notifications

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/hanko-field/quickorder/internal/domain"
)

// EventTypeOrderPlaced is the type of the order confirmation event.
const EventTypeOrderPlaced = "quickorder.order.placed"

// OrderPlacedEvent is the wire envelope for an order confirmation.
type OrderPlacedEvent struct {
	EventID    string       `json:"eventId"`
	Type       string       `json:"type"`
	OccurredAt time.Time    `json:"occurredAt"`
	Order      OrderPayload `json:"order"`
}

// OrderPayload is the order snapshot carried by the event. Amounts are minor units.
type OrderPayload struct {
	ID                  string        `json:"id"`
	IncrementID         string        `json:"incrementId"`
	Status              string        `json:"status"`
	StoreID             string        `json:"storeId"`
	Currency            string        `json:"currency"`
	CustomerEmail       string        `json:"customerEmail"`
	CustomerName        string        `json:"customerName"`
	Telephone           string        `json:"telephone,omitempty"`
	Subtotal            int64         `json:"subtotal"`
	DiscountAmount      int64         `json:"discountAmount"`
	ShippingAmount      int64         `json:"shippingAmount"`
	GrandTotal          int64         `json:"grandTotal"`
	ShippingDescription string        `json:"shippingDescription,omitempty"`
	PaymentMethod       string        `json:"paymentMethod"`
	Items               []ItemPayload `json:"items"`
	CreatedAt           time.Time     `json:"createdAt"`
}

// ItemPayload is one ordered line.
type ItemPayload struct {
	SKU       string `json:"sku"`
	Name      string `json:"name"`
	Quantity  int    `json:"qty"`
	UnitPrice int64  `json:"unitPrice"`
	RowTotal  int64  `json:"rowTotal"`
}

// NewOrderPlacedEvent builds the confirmation envelope for order.
func NewOrderPlacedEvent(order domain.Order, at time.Time) OrderPlacedEvent {
	payload := OrderPayload{
		ID:                  order.ID,
		IncrementID:         order.IncrementID,
		Status:              string(order.Status),
		StoreID:             order.StoreID,
		Currency:            order.Currency,
		CustomerEmail:       order.CustomerEmail,
		CustomerName:        order.CustomerName,
		Subtotal:            order.Subtotal,
		DiscountAmount:      order.DiscountAmount,
		ShippingAmount:      order.ShippingAmount,
		GrandTotal:          order.GrandTotal,
		ShippingDescription: order.ShippingDescription,
		PaymentMethod:       order.PaymentMethodCode,
		CreatedAt:           order.CreatedAt.UTC(),
	}
	if order.BillingAddress != nil {
		payload.Telephone = order.BillingAddress.Telephone
	}
	for _, item := range order.Items {
		payload.Items = append(payload.Items, ItemPayload{
			SKU:       item.SKU,
			Name:      item.Name,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			RowTotal:  item.RowTotal,
		})
	}
	return OrderPlacedEvent{
		EventID:    uuid.NewString(),
		Type:       EventTypeOrderPlaced,
		OccurredAt: at.UTC(),
		Order:      payload,
	}
}

func (e OrderPlacedEvent) marshal() ([]byte, error) {
	return json.Marshal(e)
}
