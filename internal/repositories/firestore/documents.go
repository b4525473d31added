package firestore

import (
	"time"

	"github.com/hanko-field/quickorder/internal/domain"
)

type addressDocument struct {
	FirstName   string   `firestore:"firstName"`
	LastName    string   `firestore:"lastName"`
	Street      []string `firestore:"street"`
	City        string   `firestore:"city"`
	RegionName  string   `firestore:"regionName,omitempty"`
	RegionID    string   `firestore:"regionId,omitempty"`
	Postcode    string   `firestore:"postcode,omitempty"`
	CountryCode string   `firestore:"countryCode"`
	Telephone   string   `firestore:"telephone"`
	Email       string   `firestore:"email,omitempty"`
}

func encodeAddress(addr *domain.Address) *addressDocument {
	if addr == nil {
		return nil
	}
	return &addressDocument{
		FirstName:   addr.FirstName,
		LastName:    addr.LastName,
		Street:      addr.Street,
		City:        addr.City,
		RegionName:  addr.RegionName,
		RegionID:    addr.RegionID,
		Postcode:    addr.Postcode,
		CountryCode: addr.CountryCode,
		Telephone:   addr.Telephone,
		Email:       addr.Email,
	}
}

func (d *addressDocument) toDomain() *domain.Address {
	if d == nil {
		return nil
	}
	return &domain.Address{
		FirstName:   d.FirstName,
		LastName:    d.LastName,
		Street:      d.Street,
		City:        d.City,
		RegionName:  d.RegionName,
		RegionID:    d.RegionID,
		Postcode:    d.Postcode,
		CountryCode: d.CountryCode,
		Telephone:   d.Telephone,
		Email:       d.Email,
	}
}

type attributeLabelDocument struct {
	Label string `firestore:"label"`
	Value string `firestore:"value"`
}

type lineItemDocument struct {
	ProductID        string                   `firestore:"productId"`
	VariantProductID string                   `firestore:"variantProductId,omitempty"`
	SKU              string                   `firestore:"sku"`
	Name             string                   `firestore:"name"`
	Kind             string                   `firestore:"kind"`
	Quantity         int                      `firestore:"qty"`
	BasePrice        int64                    `firestore:"basePrice"`
	UnitPrice        int64                    `firestore:"unitPrice"`
	RowTotal         int64                    `firestore:"rowTotal"`
	WeightKg         float64                  `firestore:"weightKg"`
	AppliedRuleID    string                   `firestore:"appliedRuleId,omitempty"`
	Attributes       []attributeLabelDocument `firestore:"attributes,omitempty"`
}

func encodeItems(items []domain.LineItem) []lineItemDocument {
	out := make([]lineItemDocument, 0, len(items))
	for _, item := range items {
		doc := lineItemDocument{
			ProductID:        item.ProductID,
			VariantProductID: item.VariantProductID,
			SKU:              item.SKU,
			Name:             item.Name,
			Kind:             string(item.Kind),
			Quantity:         item.Quantity,
			BasePrice:        item.BasePrice,
			UnitPrice:        item.UnitPrice,
			RowTotal:         item.RowTotal,
			WeightKg:         item.WeightKg,
			AppliedRuleID:    item.AppliedRuleID,
		}
		for _, attr := range item.Attributes {
			doc.Attributes = append(doc.Attributes, attributeLabelDocument(attr))
		}
		out = append(out, doc)
	}
	return out
}

func decodeItems(docs []lineItemDocument) []domain.LineItem {
	out := make([]domain.LineItem, 0, len(docs))
	for _, doc := range docs {
		item := domain.LineItem{
			ProductID:        doc.ProductID,
			VariantProductID: doc.VariantProductID,
			SKU:              doc.SKU,
			Name:             doc.Name,
			Kind:             domain.ProductKind(doc.Kind),
			Quantity:         doc.Quantity,
			BasePrice:        doc.BasePrice,
			UnitPrice:        doc.UnitPrice,
			RowTotal:         doc.RowTotal,
			WeightKg:         doc.WeightKg,
			AppliedRuleID:    doc.AppliedRuleID,
		}
		for _, attr := range doc.Attributes {
			item.Attributes = append(item.Attributes, domain.AttributeLabel(attr))
		}
		out = append(out, item)
	}
	return out
}

func utc(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.UTC()
}
