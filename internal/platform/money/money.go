package money

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const (
	// DefaultCurrency is used when a store does not configure one.
	DefaultCurrency = "EGP"
	defaultLocale   = "en"
)

// Scale returns the number of minor-unit digits for the ISO currency code.
func Scale(code string) int {
	unit, err := currency.ParseISO(normalizeCode(code))
	if err != nil {
		return 2
	}
	scale, _ := currency.Standard.Rounding(unit)
	return scale
}

// Parse converts a decimal string such as "25.50" into minor units. Blank input parses as zero.
func Parse(value, code string) (int64, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return 0, nil
	}
	f, err := strconv.ParseFloat(trimmed, 64)
	if err != nil {
		return 0, fmt.Errorf("money: parse %q: %w", value, err)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("money: parse %q: not a finite number", value)
	}
	return FromMajor(f, code), nil
}

// FromMajor converts a major-unit amount into minor units, rounding half away from zero.
func FromMajor(amount float64, code string) int64 {
	return int64(math.Round(amount * math.Pow10(Scale(code))))
}

// ToMajor converts minor units to a major-unit float for display or rule evaluation.
func ToMajor(amount int64, code string) float64 {
	return float64(amount) / math.Pow10(Scale(code))
}

// Format renders minor units as a localised currency string, e.g. "EGP 210.00".
func Format(amount int64, code, locale string) string {
	unit, err := currency.ParseISO(normalizeCode(code))
	if err != nil {
		return strconv.FormatFloat(ToMajor(amount, code), 'f', 2, 64)
	}
	tag, err := language.Parse(strings.ReplaceAll(strings.TrimSpace(locale), "_", "-"))
	if err != nil {
		tag = language.Make(defaultLocale)
	}
	printer := message.NewPrinter(tag)
	return printer.Sprint(currency.Symbol(unit.Amount(ToMajor(amount, code))))
}

func normalizeCode(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return DefaultCurrency
	}
	return code
}
