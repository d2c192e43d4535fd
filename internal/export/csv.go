// Package export renders a report's records, with amounts converted into
// the base currency, as CSV.
package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"expenses/internal/conversion"
	"expenses/internal/core"
)

// ContentType is the MIME type of rendered documents.
const ContentType = "text/csv"

const defaultFileName = "expense-report"

// Header returns the column titles for base.
func Header(base string) []string {
	return []string{"Date", "Category", "Description", "Amount", "Currency", "Amount in " + base, "Notes"}
}

// Rows returns the header followed by one row per record, in order. The
// converted column uses the same conversion as on-screen totals.
func Rows(records []core.Record, base string, snapshot core.RateSnapshot) [][]string {
	rows := make([][]string, 0, len(records)+1)
	rows = append(rows, Header(base))
	for _, r := range records {
		rows = append(rows, []string{
			r.Date,
			string(r.Category),
			r.Description,
			r.Amount,
			r.Currency,
			conversion.RoundForDisplay(conversion.ConvertRecord(r, base, snapshot)),
			r.Notes,
		})
	}
	return rows
}

// Render produces the CSV document. reportName is accepted for symmetry
// with FileName; the document itself carries no title row.
func Render(records []core.Record, base string, snapshot core.RateSnapshot, reportName string) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.WriteAll(Rows(records, base, snapshot)); err != nil {
		return nil, fmt.Errorf("write csv: %w", err)
	}
	return buf.Bytes(), nil
}

var whitespace = regexp.MustCompile(`\s+`)

// FileName derives the download name from the report name: runs of
// whitespace become a single hyphen.
func FileName(reportName string) string {
	if strings.TrimSpace(reportName) == "" {
		return defaultFileName + ".csv"
	}
	name := whitespace.ReplaceAllString(reportName, "-")
	name = strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' || r == 0 {
			return '-'
		}
		return r
	}, name)
	return name + ".csv"
}

// Write renders the report into dir and returns the written path.
func Write(dir string, records []core.Record, base string, snapshot core.RateSnapshot, reportName string) (string, error) {
	data, err := Render(records, base, snapshot, reportName)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create export dir: %w", err)
	}
	path := filepath.Join(dir, FileName(reportName))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write export: %w", err)
	}
	return path, nil
}
