package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/hanko-field/quickorder/internal/domain"
	pfirestore "github.com/hanko-field/quickorder/internal/platform/firestore"
)

const productsCollection = "products"

type productDocument struct {
	SKU        string              `firestore:"sku"`
	Name       string              `firestore:"name"`
	Kind       string              `firestore:"kind"`
	Price      int64               `firestore:"price"`
	FinalPrice int64               `firestore:"finalPrice"`
	Currency   string              `firestore:"currency"`
	WeightKg   float64             `firestore:"weightKg"`
	Active     bool                `firestore:"active"`
	Attributes []attributeDocument `firestore:"attributes,omitempty"`
	Variants   []variantDocument   `firestore:"variants,omitempty"`
}

type attributeDocument struct {
	Code    string            `firestore:"code"`
	Label   string            `firestore:"label"`
	Options map[string]string `firestore:"options"`
}

type variantDocument struct {
	ProductID  string            `firestore:"productId"`
	Attributes map[string]string `firestore:"attributes"`
}

// CatalogRepository reads quick-order products from Firestore.
type CatalogRepository struct {
	products *pfirestore.Collection[productDocument]
}

// NewCatalogRepository constructs a Firestore-backed product catalog.
func NewCatalogRepository(provider *pfirestore.Provider) (*CatalogRepository, error) {
	if provider == nil {
		return nil, errors.New("catalog repository requires firestore provider")
	}
	return &CatalogRepository{
		products: pfirestore.NewCollection[productDocument](provider, productsCollection, nil),
	}, nil
}

// GetByID loads an active product. Inactive products read as not found.
func (r *CatalogRepository) GetByID(ctx context.Context, productID string) (domain.Product, error) {
	id := strings.TrimSpace(productID)
	doc, err := r.products.Get(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}
	if !doc.Active {
		return domain.Product{}, pfirestore.WrapError("products.get", status.Errorf(codes.NotFound, "product %s is not active", id))
	}
	return doc.toDomain(id), nil
}

// ResolveVariant finds the child product matching attrs and loads it.
func (r *CatalogRepository) ResolveVariant(ctx context.Context, parent domain.Product, attrs map[string]string) (domain.Product, error) {
	variant, ok := parent.ResolveVariant(attrs)
	if !ok {
		return domain.Product{}, fmt.Errorf("products.resolve_variant: no variant of %s matches %v", parent.ID, attrs)
	}
	return r.GetByID(ctx, variant.ProductID)
}

func (d productDocument) toDomain(id string) domain.Product {
	product := domain.Product{
		ID:         id,
		SKU:        d.SKU,
		Name:       d.Name,
		Kind:       domain.ProductKind(strings.ToLower(strings.TrimSpace(d.Kind))),
		Price:      d.Price,
		FinalPrice: d.FinalPrice,
		Currency:   strings.ToUpper(d.Currency),
		WeightKg:   d.WeightKg,
	}
	if product.Kind == "" {
		product.Kind = domain.ProductKindSimple
	}
	for _, attr := range d.Attributes {
		product.Attributes = append(product.Attributes, domain.VariantAttribute(attr))
	}
	for _, variant := range d.Variants {
		product.Variants = append(product.Variants, domain.VariantOption(variant))
	}
	return product
}
