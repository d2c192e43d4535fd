// Package core provides money parsing and handling utilities.
//
// Amounts are entered as free text and only become numbers where a
// computation needs them. Parsing is lenient and never fails the caller:
// anything that is not a decimal number counts as zero.
package core

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// ParseAmountDecimal parses a user entered amount.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators and
// surrounding whitespace.
//
// Examples:
//
//	ParseAmountDecimal("12.34") -> 12.34, nil
//	ParseAmountDecimal("12,34") -> 12.34, nil
//	ParseAmountDecimal("abc")   -> 0, error
//	ParseAmountDecimal("1,234") -> 0, ErrAmbiguousAmount
//
// A lone comma followed by exactly three digits reads as a thousands
// separator in some locales and a decimal point in others, so it is
// rejected unless the integer part is zero.
func ParseAmountDecimal(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if !strings.Contains(s, ".") {
		if ambiguousComma(s) {
			return decimal.Zero, fmt.Errorf("%w: %q", ErrAmbiguousAmount, s)
		}
		s = strings.Replace(s, ",", ".", 1)
	}
	return decimal.NewFromString(s)
}

// ErrAmbiguousAmount is returned for amounts like "1,234".
var ErrAmbiguousAmount = errors.New("ambiguous comma in amount")

func ambiguousComma(s string) bool {
	if strings.Count(s, ",") != 1 {
		return false
	}
	whole, frac, _ := strings.Cut(s, ",")
	if len(frac) != 3 || strings.Trim(frac, "0123456789") != "" {
		return false
	}
	return strings.Trim(strings.TrimLeft(whole, "+-"), "0") != ""
}

// ParseAmount converts amount text to a float64, treating unparsable input as 0.
func ParseAmount(s string) float64 {
	d, err := ParseAmountDecimal(s)
	if err != nil {
		return 0
	}
	return d.InexactFloat64()
}

// FormatAmount renders v with two decimals for display and export.
// Rounding happens here only; aggregation works on unrounded values.
func FormatAmount(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "0.00"
	}
	return decimal.NewFromFloat(v).StringFixed(2)
}

// FormatMoney prefixes the formatted amount with the currency symbol.
func FormatMoney(v float64, code string) string {
	return Symbol(code) + FormatAmount(v)
}
