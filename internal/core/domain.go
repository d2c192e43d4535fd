package core

import (
	"errors"
	"strings"
)

const (
	CategoryAirfare        Category = "Airfare"
	CategoryHotel          Category = "Hotel"
	CategoryCarRental      Category = "Car Rental"
	CategoryTaxi           Category = "Taxi/Uber"
	CategoryParking        Category = "Parking"
	CategoryMeals          Category = "Meals"
	CategoryBusinessMeals  Category = "Business Meals"
	CategoryOfficeSupplies Category = "Office Supplies"
	CategoryPhoneInternet  Category = "Phone/Internet"
	CategoryOther          Category = "Other"
)

// DefaultReportName is the report name used until the user sets one.
const DefaultReportName = "Weekly Expense Report"

// DateLayout is the calendar date format used by records.
const DateLayout = "2006-01-02"

type (
	// Category is an expense category label. The zero value means unset.
	Category string

	// Record is one expense line item as entered by the user.
	// Amount is kept as text so partially typed values survive editing.
	Record struct {
		ID          int64    `json:"id"`
		Date        string   `json:"date"`
		Description string   `json:"description"`
		Category    Category `json:"category"`
		Amount      string   `json:"amount"`
		Currency    string   `json:"currency"`
		Notes       string   `json:"notes"`
	}

	// ReportMetadata holds the session level settings persisted with the records.
	ReportMetadata struct {
		ReportName   string
		BaseCurrency string
	}
)

var categories = []Category{
	CategoryAirfare,
	CategoryHotel,
	CategoryCarRental,
	CategoryTaxi,
	CategoryParking,
	CategoryMeals,
	CategoryBusinessMeals,
	CategoryOfficeSupplies,
	CategoryPhoneInternet,
	CategoryOther,
}

var ErrInvalidCategory = errors.New("invalid category")

// Categories returns the selectable categories in display order.
func Categories() []Category {
	return append([]Category(nil), categories...)
}

// Validate accepts the empty category and any known label.
func (c Category) Validate() error {
	if c == "" {
		return nil
	}
	for _, known := range categories {
		if c == known {
			return nil
		}
	}
	return ErrInvalidCategory
}

// ParseCategory matches a label case-insensitively.
func ParseCategory(s string) (Category, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", nil
	}
	for _, known := range categories {
		if strings.EqualFold(s, string(known)) {
			return known, nil
		}
	}
	return "", ErrInvalidCategory
}

// AmountValue returns the parsed amount; unparsable text counts as zero.
func (r Record) AmountValue() float64 {
	return ParseAmount(r.Amount)
}

// DefaultReportMetadata returns the settings used when nothing is persisted.
func DefaultReportMetadata() ReportMetadata {
	return ReportMetadata{
		ReportName:   DefaultReportName,
		BaseCurrency: DefaultCurrency,
	}
}

// Normalize fills empty fields with defaults and drops an unknown base currency.
func (m ReportMetadata) Normalize() ReportMetadata {
	if strings.TrimSpace(m.ReportName) == "" {
		m.ReportName = DefaultReportName
	}
	if !IsSupportedCurrency(m.BaseCurrency) {
		m.BaseCurrency = DefaultCurrency
	}
	return m
}
