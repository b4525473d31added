package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hanko-field/quickorder/internal/domain"
)

const (
	previewFirstName     = "Guest"
	previewLastName      = "Customer"
	previewStreet        = "123 Main St"
	previewCity          = "Default City"
	previewPostcode      = "12345"
	previewTelephone     = "1234567890"
	previewPricingEmail  = "calc@guest.local"
	previewShippingEmail = "guest@shipping-calc.local"
	defaultItemWeightKg  = 1.0
)

// AddressInput is the raw, free-text address captured from the shopper.
type AddressInput struct {
	FirstName   string
	LastName    string
	Street      string
	City        string
	Region      string
	Postcode    string
	CountryCode string
	Telephone   string
	Email       string
}

// CustomerContext carries the rule-evaluation identity of the cart.
type CustomerContext struct {
	GroupID int
	Email   string
}

// BuildCartCommand describes the single product selection placed on a virtual cart.
type BuildCartCommand struct {
	ProductID         string
	Quantity          int
	VariantAttributes map[string]string
	Address           *AddressInput
	Customer          CustomerContext
	Store             domain.StoreContext
}

// VirtualCartBuilderDeps wires the collaborators used to construct carts.
type VirtualCartBuilderDeps struct {
	Catalog     ProductCatalog
	Regions     RegionDirectory
	Carts       CartStore
	Diagnostics Diagnostics
}

// VirtualCartBuilder constructs fresh, unshared carts for previews and commits.
type VirtualCartBuilder struct {
	catalog ProductCatalog
	regions RegionDirectory
	carts   CartStore
	diag    Diagnostics
}

// NewVirtualCartBuilder validates dependencies and returns a builder.
func NewVirtualCartBuilder(deps VirtualCartBuilderDeps) (*VirtualCartBuilder, error) {
	if deps.Catalog == nil {
		return nil, errors.New("virtual cart builder: product catalog is required")
	}
	return &VirtualCartBuilder{
		catalog: deps.Catalog,
		regions: deps.Regions,
		carts:   deps.Carts,
		diag:    diagnosticsOrNoop(deps.Diagnostics),
	}, nil
}

// Build resolves the product and assembles an in-memory cart. Nothing is persisted.
func (b *VirtualCartBuilder) Build(ctx context.Context, cmd BuildCartCommand) (domain.VirtualCart, error) {
	productID := strings.TrimSpace(cmd.ProductID)
	if productID == "" {
		return domain.VirtualCart{}, fmt.Errorf("%w: product id is required", ErrQuickOrderInvalidInput)
	}

	parent, err := b.catalog.GetByID(ctx, productID)
	if err != nil {
		return domain.VirtualCart{}, providerError("catalog.get", fmt.Errorf("load product %s: %w", productID, err))
	}

	concrete := b.resolveVariant(ctx, parent, cmd.VariantAttributes)

	qty := cmd.Quantity
	if qty < 1 {
		qty = 1
	}

	currency := strings.TrimSpace(concrete.Currency)
	if currency == "" {
		currency = strings.TrimSpace(parent.Currency)
	}
	if currency == "" {
		currency = cmd.Store.Currency
	}

	basePrice := concrete.EffectivePrice()
	if basePrice <= 0 {
		basePrice = parent.EffectivePrice()
	}
	weight := concrete.WeightKg
	if weight <= 0 {
		weight = defaultItemWeightKg
	}

	item := domain.LineItem{
		ProductID: parent.ID,
		SKU:       concrete.SKU,
		Name:      parent.Name,
		Kind:      parent.Kind,
		Quantity:  qty,
		BasePrice: basePrice,
		WeightKg:  weight,
	}
	if concrete.ID != parent.ID {
		item.VariantProductID = concrete.ID
		item.Attributes = parent.AttributeLabels(cmd.VariantAttributes)
	}
	if item.SKU == "" {
		item.SKU = parent.SKU
	}
	item = item.WithUnitPrice(basePrice)

	cart := domain.VirtualCart{
		StoreID:         cmd.Store.StoreID,
		WebsiteID:       cmd.Store.WebsiteID,
		Currency:        currency,
		CustomerGroupID: cmd.Customer.GroupID,
		IsGuest:         true,
		CustomerEmail:   strings.TrimSpace(cmd.Customer.Email),
	}
	cart = cart.WithItem(item)

	if cmd.Address != nil {
		addr := b.ResolveAddress(ctx, *cmd.Address)
		if addr.Email == "" {
			addr.Email = cart.CustomerEmail
		}
		var shipping *domain.Address
		if parent.RequiresShipping() {
			shipping = &addr
		}
		cart = cart.WithAddresses(&addr, shipping)
	}

	return cart, nil
}

// ResolveAddress normalises a free-text address: street lines split on commas, telephone
// normalised, region id resolved when the directory knows the region.
func (b *VirtualCartBuilder) ResolveAddress(ctx context.Context, in AddressInput) domain.Address {
	addr := domain.Address{
		FirstName:   strings.TrimSpace(in.FirstName),
		LastName:    strings.TrimSpace(in.LastName),
		Street:      SplitStreet(in.Street),
		City:        strings.TrimSpace(in.City),
		RegionName:  strings.TrimSpace(in.Region),
		Postcode:    strings.TrimSpace(in.Postcode),
		CountryCode: strings.ToUpper(strings.TrimSpace(in.CountryCode)),
		Telephone:   FormatPhoneNumber(in.Telephone),
		Email:       strings.TrimSpace(in.Email),
	}
	if addr.RegionName != "" && b.regions != nil {
		regionID, ok, err := b.regions.Lookup(ctx, addr.RegionName, addr.CountryCode)
		switch {
		case err != nil:
			b.diag.Log(ctx, LevelDebug, "cart.region_lookup_failed", map[string]any{
				"region":  addr.RegionName,
				"country": addr.CountryCode,
				"error":   err.Error(),
			})
		case ok:
			addr.RegionID = regionID
		}
	}
	return addr
}

// Persist saves a cart on the commit path and stamps the returned quote id onto it.
func (b *VirtualCartBuilder) Persist(ctx context.Context, cart domain.VirtualCart) (domain.VirtualCart, error) {
	if b.carts == nil {
		return cart, nil
	}
	id, err := b.carts.SaveCart(ctx, cart)
	if err != nil {
		return domain.VirtualCart{}, fmt.Errorf("persist cart: %w", err)
	}
	return cart.WithQuoteID(id), nil
}

func (b *VirtualCartBuilder) resolveVariant(ctx context.Context, parent domain.Product, attrs map[string]string) domain.Product {
	if parent.Kind != domain.ProductKindConfigurable || len(attrs) == 0 {
		return parent
	}
	child, err := b.catalog.ResolveVariant(ctx, parent, attrs)
	if err != nil || strings.TrimSpace(child.ID) == "" {
		fields := map[string]any{"product_id": parent.ID, "attributes": attrs}
		if err != nil {
			fields["error"] = err.Error()
		}
		b.diag.Log(ctx, LevelWarn, "cart.variant_unresolved", fields)
		return parent
	}
	return child
}

// previewAddress fills the blanks of a preview destination with placeholder values.
func previewAddress(country, region, postcode, email string) *AddressInput {
	in := &AddressInput{
		FirstName:   previewFirstName,
		LastName:    previewLastName,
		Street:      previewStreet,
		City:        previewCity,
		Region:      strings.TrimSpace(region),
		Postcode:    strings.TrimSpace(postcode),
		CountryCode: country,
		Telephone:   previewTelephone,
		Email:       email,
	}
	if in.Region != "" {
		in.City = in.Region
	}
	if in.Postcode == "" {
		in.Postcode = previewPostcode
	}
	return in
}
