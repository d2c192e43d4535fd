package core

// CategoryAmount represents an amount aggregated by category, in the base currency.
type CategoryAmount struct {
	Category Category
	Amount   float64
}

// ReportSummary is a compact view of a report's totals.
type ReportSummary struct {
	ReportName   string
	BaseCurrency string
	Records      int
	Total        float64
	ByCategory   []CategoryAmount
	// RatesAvailable is false when no exchange rates were known at computation time.
	RatesAvailable bool
}
