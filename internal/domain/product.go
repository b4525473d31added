package domain

import "strings"

// ProductKind distinguishes the product shapes the quick-order flow accepts.
type ProductKind string

const (
	// ProductKindSimple is a single purchasable SKU.
	ProductKindSimple ProductKind = "simple"
	// ProductKindVirtual is a purchasable SKU that never ships.
	ProductKindVirtual ProductKind = "virtual"
	// ProductKindDownloadable is a purchasable SKU delivered digitally.
	ProductKindDownloadable ProductKind = "downloadable"
	// ProductKindConfigurable is a parent product whose concrete SKU is chosen through attributes.
	ProductKindConfigurable ProductKind = "configurable"
)

// Product is the catalog view consumed by the pricing pipeline. Prices are minor units.
type Product struct {
	ID         string
	SKU        string
	Name       string
	Kind       ProductKind
	Price      int64
	FinalPrice int64
	Currency   string
	WeightKg   float64
	Attributes []VariantAttribute
	Variants   []VariantOption
}

// VariantAttribute describes one configurable attribute and the labels of its option values.
type VariantAttribute struct {
	Code    string
	Label   string
	Options map[string]string
}

// VariantOption maps one combination of attribute option values to a concrete child product.
type VariantOption struct {
	ProductID  string
	Attributes map[string]string
}

// AttributeLabel is a human readable attribute selection rendered on order summaries.
type AttributeLabel struct {
	Label string
	Value string
}

// HasVariants reports whether the product carries selectable variants.
func (p Product) HasVariants() bool {
	return p.Kind == ProductKindConfigurable && len(p.Variants) > 0
}

// RequiresShipping reports whether products of this kind are physically shipped.
func (k ProductKind) RequiresShipping() bool {
	switch k {
	case ProductKindVirtual, ProductKindDownloadable:
		return false
	default:
		return true
	}
}

// RequiresShipping reports whether a shipping address and method apply to the product.
func (p Product) RequiresShipping() bool {
	return p.Kind.RequiresShipping()
}

// EffectivePrice returns the final price when set, otherwise the base price.
func (p Product) EffectivePrice() int64 {
	if p.FinalPrice > 0 {
		return p.FinalPrice
	}
	return p.Price
}

// ResolveVariant returns the variant whose attribute selection matches attrs exactly on every
// attribute the variant defines.
func (p Product) ResolveVariant(attrs map[string]string) (VariantOption, bool) {
	if !p.HasVariants() || len(attrs) == 0 {
		return VariantOption{}, false
	}
	normalized := make(map[string]string, len(attrs))
	for k, v := range attrs {
		key := strings.TrimSpace(k)
		if key == "" {
			continue
		}
		normalized[key] = strings.TrimSpace(v)
	}
	for _, variant := range p.Variants {
		if len(variant.Attributes) == 0 || strings.TrimSpace(variant.ProductID) == "" {
			continue
		}
		matched := true
		for code, value := range variant.Attributes {
			if normalized[code] != value {
				matched = false
				break
			}
		}
		if matched {
			return variant, true
		}
	}
	return VariantOption{}, false
}

// AttributeLabels renders the selected attribute values using the parent's attribute metadata.
// Selections the product does not describe are skipped.
func (p Product) AttributeLabels(attrs map[string]string) []AttributeLabel {
	if len(attrs) == 0 || len(p.Attributes) == 0 {
		return nil
	}
	labels := make([]AttributeLabel, 0, len(attrs))
	for _, attr := range p.Attributes {
		selected, ok := attrs[attr.Code]
		if !ok {
			continue
		}
		value := selected
		if label, ok := attr.Options[selected]; ok && strings.TrimSpace(label) != "" {
			value = label
		}
		name := attr.Label
		if strings.TrimSpace(name) == "" {
			name = attr.Code
		}
		labels = append(labels, AttributeLabel{Label: name, Value: value})
	}
	if len(labels) == 0 {
		return nil
	}
	return labels
}
