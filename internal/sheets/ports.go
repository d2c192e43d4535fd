// Package sheets defines the outbound port for pushing a rendered report
// to a spreadsheet.
package sheets

import (
	"context"

	"expenses/internal/core"
	"expenses/internal/export"
)

type (
	// Report is a report rendered to rows of display strings, the same
	// cells the CSV export carries. Rows[0] is the header.
	Report struct {
		Name         string
		BaseCurrency string
		Rows         [][]string
	}

	// ReportExporter appends a report to a spreadsheet and returns a
	// reference to the written range.
	ReportExporter interface {
		ExportReport(ctx context.Context, r Report) (ref string, err error)
	}
)

// NewReport renders records into a Report converted to base.
func NewReport(name, base string, records []core.Record, snapshot core.RateSnapshot) Report {
	return Report{
		Name:         name,
		BaseCurrency: base,
		Rows:         export.Rows(records, base, snapshot),
	}
}
