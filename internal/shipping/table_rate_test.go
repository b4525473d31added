package shipping

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hanko-field/quickorder/internal/domain"
)

const sampleTable = `
currency: EGP
carriers:
  - code: flatrate
    title: Flat Rate
    methods:
      - code: flatrate
        title: Fixed
        price: "10.00"
        mode: per_item
  - code: express
    title: Express Courier
    countries: [EG]
    max_weight_kg: 5
    show_when_unavailable: true
    unavailable_message: Express is not available for this order.
    methods:
      - code: sameday
        title: Same Day
        price: "75.50"
  - code: freeshipping
    title: Free Shipping
    free_above_subtotal: "500"
    countries: [eg]
    methods:
      - code: freeshipping
        title: Free
        price: "30"
  - code: legacy
    disabled: true
`

func cartFor(country string, qty int, unit int64, weight float64) domain.VirtualCart {
	return domain.VirtualCart{
		Currency:        "EGP",
		ShippingAddress: &domain.Address{CountryCode: country},
	}.WithItem(domain.LineItem{
		ProductID: "prod-1",
		Quantity:  qty,
		UnitPrice: unit,
		RowTotal:  unit * int64(qty),
		WeightKg:  weight,
	})
}

func newProvider(t *testing.T) *TableRateProvider {
	t.Helper()
	table, err := ParseTable([]byte(sampleTable), "USD")
	require.NoError(t, err)
	provider, err := NewTableRateProvider(table)
	require.NoError(t, err)
	return provider
}

func TestParseTable(t *testing.T) {
	table, err := ParseTable([]byte(sampleTable), "USD")
	require.NoError(t, err)

	assert.Equal(t, "EGP", table.Currency)
	require.Len(t, table.Carriers, 3)
	assert.Equal(t, int64(1000), table.Carriers[0].Methods[0].Price)
	assert.Equal(t, ModePerItem, table.Carriers[0].Methods[0].Mode)
	assert.Equal(t, ModePerOrder, table.Carriers[1].Methods[0].Mode)
	assert.Equal(t, int64(7550), table.Carriers[1].Methods[0].Price)
	assert.Equal(t, []string{"EG"}, table.Carriers[2].Countries)
	assert.Equal(t, int64(50000), table.Carriers[2].FreeAboveSubtotal)
}

func TestParseTableRejectsInvalidInput(t *testing.T) {
	cases := map[string]string{
		"missing carrier code": "carriers:\n  - title: x\n",
		"missing method code":  "carriers:\n  - code: a\n    methods:\n      - title: x\n",
		"bad price":            "carriers:\n  - code: a\n    methods:\n      - code: m\n        price: abc\n",
		"unknown mode":         "carriers:\n  - code: a\n    methods:\n      - code: m\n        mode: per_kg\n",
		"duplicate method":     "carriers:\n  - code: a\n    methods:\n      - code: m\n      - code: m\n",
		"malformed yaml":       "carriers: [",
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseTable([]byte(data), "EGP")
			assert.Error(t, err)
		})
	}
}

func TestLoadTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rates.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleTable), 0o600))

	table, err := LoadTable(path, "EGP")
	require.NoError(t, err)
	assert.Len(t, table.Carriers, 3)

	_, err = LoadTable(filepath.Join(t.TempDir(), "missing.yaml"), "EGP")
	assert.Error(t, err)
}

func TestQuoteDomesticCart(t *testing.T) {
	provider := newProvider(t)

	rates, err := provider.Quote(context.Background(), cartFor("EG", 2, 10000, 1))
	require.NoError(t, err)
	require.Len(t, rates, 3)

	assert.Equal(t, domain.CarrierRate{CarrierCode: "flatrate", MethodCode: "flatrate", CarrierTitle: "Flat Rate", MethodTitle: "Fixed", Price: 2000}, rates[0])
	assert.Equal(t, int64(7550), rates[1].Price)
	assert.Empty(t, rates[1].ErrorMessage)
	assert.Equal(t, int64(3000), rates[2].Price)
}

func TestQuoteFreeAboveSubtotal(t *testing.T) {
	provider := newProvider(t)

	rates, err := provider.Quote(context.Background(), cartFor("EG", 1, 60000, 1))
	require.NoError(t, err)
	require.Len(t, rates, 3)
	assert.Zero(t, rates[2].Price)
}

func TestQuoteUnavailableCarriers(t *testing.T) {
	provider := newProvider(t)

	rates, err := provider.Quote(context.Background(), cartFor("SA", 1, 10000, 1))
	require.NoError(t, err)
	require.Len(t, rates, 2)
	assert.Equal(t, "flatrate", rates[0].CarrierCode)
	assert.Equal(t, "express", rates[1].CarrierCode)
	assert.Equal(t, "Express is not available for this order.", rates[1].ErrorMessage)

	heavy, err := provider.Quote(context.Background(), cartFor("EG", 2, 10000, 3))
	require.NoError(t, err)
	assert.NotEmpty(t, heavy[1].ErrorMessage)
}

func TestQuoteRejectsCurrencyMismatch(t *testing.T) {
	provider := newProvider(t)
	cart := cartFor("EG", 1, 100, 1)
	cart.Currency = "USD"

	_, err := provider.Quote(context.Background(), cart)
	assert.Error(t, err)
}

func TestQuoteRequiresItems(t *testing.T) {
	provider := newProvider(t)
	_, err := provider.Quote(context.Background(), domain.VirtualCart{Currency: "EGP"})
	assert.Error(t, err)
}

func TestDefaultTable(t *testing.T) {
	provider, err := NewTableRateProvider(DefaultTable("egp", 1500))
	require.NoError(t, err)

	rates, err := provider.Quote(context.Background(), cartFor("EG", 3, 100, 0))
	require.NoError(t, err)
	require.Len(t, rates, 1)
	assert.Equal(t, int64(1500), rates[0].Price)

	_, err = NewTableRateProvider(Table{})
	assert.Error(t, err)
}
