package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// moneyPlaces is the currency minor unit. All stored amounts are rounded
// to this precision, half away from zero.
const moneyPlaces = 2

// ParseMoney parses a monetary input value into a decimal rounded to
// currency precision. An empty string is treated as zero so optional
// amount fields can be left blank.
func ParseMoney(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, nil
	}

	// tolerate a leading currency symbol and thousands separators
	s = strings.TrimPrefix(s, "$")
	s = strings.ReplaceAll(s, ",", "")

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid money value %q: %w", s, err)
	}

	return RoundMoney(d), nil
}

// ParseQuantity parses a quantity input value. Quantities are not rounded
// to currency precision; fractional quantities are allowed.
func ParseQuantity(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, nil
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid quantity %q: %w", s, err)
	}

	return d, nil
}

// RoundMoney rounds an amount to currency precision, half away from zero.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(moneyPlaces)
}

// FormatMoney renders an amount with two decimal places for display.
func FormatMoney(d decimal.Decimal) string {
	return d.StringFixed(moneyPlaces)
}
