package core

import (
	"errors"
	"fmt"
)

// DefaultCurrency is used when no base currency has been chosen yet.
const DefaultCurrency = "USD"

// ErrUnknownCurrency is returned when a code is not in the currency table.
var ErrUnknownCurrency = errors.New("unknown currency")

// Currency describes one supported currency.
type Currency struct {
	Code   string
	Symbol string
	Name   string
}

// currencyTable is the registry of supported currencies, in display order.
// It is never modified after init.
var currencyTable = []Currency{
	{Code: "USD", Symbol: "$", Name: "US Dollar"},
	{Code: "EUR", Symbol: "€", Name: "Euro"},
	{Code: "GBP", Symbol: "£", Name: "British Pound"},
	{Code: "JPY", Symbol: "¥", Name: "Japanese Yen"},
	{Code: "AUD", Symbol: "A$", Name: "Australian Dollar"},
	{Code: "CAD", Symbol: "C$", Name: "Canadian Dollar"},
	{Code: "CNY", Symbol: "¥", Name: "Chinese Yuan"},
	{Code: "INR", Symbol: "₹", Name: "Indian Rupee"},
}

var currencyIndex = func() map[string]int {
	idx := make(map[string]int, len(currencyTable))
	for i, c := range currencyTable {
		idx[c.Code] = i
	}
	return idx
}()

// LookupCurrency returns the table entry for code.
func LookupCurrency(code string) (Currency, error) {
	i, ok := currencyIndex[code]
	if !ok {
		return Currency{}, fmt.Errorf("%w: %q", ErrUnknownCurrency, code)
	}
	return currencyTable[i], nil
}

// IsSupportedCurrency reports whether code is in the currency table.
func IsSupportedCurrency(code string) bool {
	_, ok := currencyIndex[code]
	return ok
}

// CurrencyCodes returns the supported codes in table order.
func CurrencyCodes() []string {
	codes := make([]string, len(currencyTable))
	for i, c := range currencyTable {
		codes[i] = c.Code
	}
	return codes
}

// Currencies returns a copy of the currency table.
func Currencies() []Currency {
	return append([]Currency(nil), currencyTable...)
}

// Symbol returns the display symbol for code, or the code itself when unknown.
func Symbol(code string) string {
	c, err := LookupCurrency(code)
	if err != nil {
		return code
	}
	return c.Symbol
}
