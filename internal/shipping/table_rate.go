// Package shipping quotes carrier rates from a merchant-maintained YAML rate table.
package shipping

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hanko-field/quickorder/internal/domain"
	"github.com/hanko-field/quickorder/internal/platform/money"
	"github.com/hanko-field/quickorder/internal/services"
)

// Rate calculation modes.
const (
	ModePerOrder = "per_order"
	ModePerItem  = "per_item"
)

type tableFile struct {
	Currency string        `yaml:"currency"`
	Carriers []carrierFile `yaml:"carriers"`
}

type carrierFile struct {
	Code                string       `yaml:"code"`
	Title               string       `yaml:"title"`
	Countries           []string     `yaml:"countries"`
	MaxWeightKg         float64      `yaml:"max_weight_kg"`
	FreeAboveSubtotal   string       `yaml:"free_above_subtotal"`
	ShowWhenUnavailable bool         `yaml:"show_when_unavailable"`
	UnavailableMessage  string       `yaml:"unavailable_message"`
	Disabled            bool         `yaml:"disabled"`
	Methods             []methodFile `yaml:"methods"`
}

type methodFile struct {
	Code  string `yaml:"code"`
	Title string `yaml:"title"`
	Price string `yaml:"price"`
	Mode  string `yaml:"mode"`
}

// Carrier is one configured carrier with its methods. Prices are minor units.
type Carrier struct {
	Code                string
	Title               string
	Countries           []string
	MaxWeightKg         float64
	FreeAboveSubtotal   int64
	ShowWhenUnavailable bool
	UnavailableMessage  string
	Methods             []Method
}

// Method is one priced shipping method of a carrier.
type Method struct {
	Code  string
	Title string
	Price int64
	Mode  string
}

// Table is a parsed rate table.
type Table struct {
	Currency string
	Carriers []Carrier
}

// LoadTable reads and parses a YAML rate table. Prices are decimal strings in the table
// currency, falling back to defaultCurrency.
func LoadTable(path, defaultCurrency string) (Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Table{}, fmt.Errorf("shipping: read rate table: %w", err)
	}
	return ParseTable(data, defaultCurrency)
}

// ParseTable parses a YAML rate table.
func ParseTable(data []byte, defaultCurrency string) (Table, error) {
	var file tableFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return Table{}, fmt.Errorf("shipping: parse rate table: %w", err)
	}
	currency := strings.ToUpper(strings.TrimSpace(file.Currency))
	if currency == "" {
		currency = strings.ToUpper(strings.TrimSpace(defaultCurrency))
	}

	table := Table{Currency: currency}
	seen := make(map[string]struct{})
	for i, cf := range file.Carriers {
		code := strings.TrimSpace(cf.Code)
		if code == "" {
			return Table{}, fmt.Errorf("shipping: carrier %d: code is required", i)
		}
		if cf.Disabled {
			continue
		}
		freeAbove, err := money.Parse(cf.FreeAboveSubtotal, currency)
		if err != nil {
			return Table{}, fmt.Errorf("shipping: carrier %s: free_above_subtotal: %w", code, err)
		}
		carrier := Carrier{
			Code:                code,
			Title:               strings.TrimSpace(cf.Title),
			MaxWeightKg:         cf.MaxWeightKg,
			FreeAboveSubtotal:   freeAbove,
			ShowWhenUnavailable: cf.ShowWhenUnavailable,
			UnavailableMessage:  strings.TrimSpace(cf.UnavailableMessage),
		}
		for _, country := range cf.Countries {
			if c := strings.ToUpper(strings.TrimSpace(country)); c != "" {
				carrier.Countries = append(carrier.Countries, c)
			}
		}
		for _, mf := range cf.Methods {
			methodCode := strings.TrimSpace(mf.Code)
			if methodCode == "" {
				return Table{}, fmt.Errorf("shipping: carrier %s: method code is required", code)
			}
			key := code + "_" + methodCode
			if _, dup := seen[key]; dup {
				return Table{}, fmt.Errorf("shipping: duplicate method %s", key)
			}
			seen[key] = struct{}{}
			price, err := money.Parse(mf.Price, currency)
			if err != nil {
				return Table{}, fmt.Errorf("shipping: method %s: price: %w", key, err)
			}
			if price < 0 {
				return Table{}, fmt.Errorf("shipping: method %s: price must not be negative", key)
			}
			mode := strings.ToLower(strings.TrimSpace(mf.Mode))
			switch mode {
			case "":
				mode = ModePerOrder
			case ModePerOrder, ModePerItem:
			default:
				return Table{}, fmt.Errorf("shipping: method %s: unknown mode %q", key, mf.Mode)
			}
			carrier.Methods = append(carrier.Methods, Method{
				Code:  methodCode,
				Title: strings.TrimSpace(mf.Title),
				Price: price,
				Mode:  mode,
			})
		}
		table.Carriers = append(table.Carriers, carrier)
	}
	return table, nil
}

// DefaultTable offers a single flat-rate carrier priced per order.
func DefaultTable(currency string, flatRate int64) Table {
	return Table{
		Currency: strings.ToUpper(strings.TrimSpace(currency)),
		Carriers: []Carrier{{
			Code:  "flatrate",
			Title: "Flat Rate",
			Methods: []Method{{
				Code:  "flatrate",
				Title: "Fixed",
				Price: flatRate,
				Mode:  ModePerOrder,
			}},
		}},
	}
}

// TableRateProvider implements services.ShippingRateProvider over a Table.
type TableRateProvider struct {
	table Table
}

var _ services.ShippingRateProvider = (*TableRateProvider)(nil)

// NewTableRateProvider constructs a provider. A table without carriers is rejected.
func NewTableRateProvider(table Table) (*TableRateProvider, error) {
	if len(table.Carriers) == 0 {
		return nil, errors.New("shipping: rate table has no carriers")
	}
	return &TableRateProvider{table: table}, nil
}

// Quote returns one rate per configured method in table order. Carriers that cannot serve the
// cart are omitted, or reported as error-marked rates when they ask to be shown.
func (p *TableRateProvider) Quote(ctx context.Context, cart domain.VirtualCart) ([]domain.CarrierRate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(cart.Items) == 0 {
		return nil, errors.New("shipping: cart has no items")
	}
	if p.table.Currency != "" && cart.Currency != "" && !strings.EqualFold(p.table.Currency, cart.Currency) {
		return nil, fmt.Errorf("shipping: rate table currency %s does not match cart currency %s", p.table.Currency, cart.Currency)
	}

	country := ""
	if cart.ShippingAddress != nil {
		country = strings.ToUpper(strings.TrimSpace(cart.ShippingAddress.CountryCode))
	}
	qty := int64(max(cart.TotalQuantity(), 1))

	var rates []domain.CarrierRate
	for _, carrier := range p.table.Carriers {
		reason := carrier.unavailableReason(country, cart.WeightKg)
		for _, method := range carrier.Methods {
			rate := domain.CarrierRate{
				CarrierCode:  carrier.Code,
				MethodCode:   method.Code,
				CarrierTitle: carrier.Title,
				MethodTitle:  method.Title,
			}
			if reason != "" {
				if !carrier.ShowWhenUnavailable {
					continue
				}
				rate.ErrorMessage = reason
				rates = append(rates, rate)
				continue
			}
			rate.Price = method.Price
			if method.Mode == ModePerItem {
				rate.Price = method.Price * qty
			}
			if carrier.FreeAboveSubtotal > 0 && cart.Subtotal >= carrier.FreeAboveSubtotal {
				rate.Price = 0
			}
			rates = append(rates, rate)
		}
	}
	return rates, nil
}

func (c Carrier) unavailableReason(country string, weightKg float64) string {
	switch {
	case len(c.Countries) > 0 && !slices.Contains(c.Countries, country):
	case c.MaxWeightKg > 0 && weightKg > c.MaxWeightKg:
	default:
		return ""
	}
	if c.UnavailableMessage != "" {
		return c.UnavailableMessage
	}
	return "This shipping method is not available."
}
