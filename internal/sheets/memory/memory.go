// Package memory is an in-process ReportExporter that keeps every exported
// report. It backs tests and the driver's dry-run mode.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	ports "expenses/internal/sheets"
)

var _ ports.ReportExporter = (*Store)(nil)

type Store struct {
	mu      sync.Mutex
	reports []ports.Report
}

func New() *Store {
	return &Store{}
}

// ExportReport stores a copy of the report and returns a synthetic reference.
func (s *Store) ExportReport(ctx context.Context, r ports.Report) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(r.Rows) == 0 {
		return "", errors.New("report has no header row")
	}
	rows := make([][]string, len(r.Rows))
	for i, row := range r.Rows {
		rows[i] = append([]string(nil), row...)
	}
	r.Rows = rows

	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports = append(s.reports, r)
	return fmt.Sprintf("mem:%d", len(s.reports)), nil
}

// Reports returns the exported reports in order.
func (s *Store) Reports() []ports.Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ports.Report(nil), s.reports...)
}
