package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"expenses/internal/amqp"
	"expenses/internal/core"
	"expenses/internal/rates"
	"expenses/internal/sheets"
	"expenses/internal/sheets/memory"
	"expenses/internal/storage"
)

var savedAt = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

func message(id string, at time.Time) *amqp.ReportSavedMessage {
	return &amqp.ReportSavedMessage{MessageID: id, ReportName: "Trip", BaseCurrency: "USD", SavedAt: at}
}

func newWorker(t *testing.T, st storage.State) (*ReportWorker, *memory.Store) {
	t.Helper()
	exporter := memory.New()
	provider := rates.NewStaticProviderWithRates("USD", map[string]float64{"EUR": 0.85})
	w := NewReportWorker(storage.NewMemoryGateway(st), provider, exporter, core.DefaultReportMetadata(), nil)
	return w, exporter
}

func TestHandleReportSaved_ExportsStoredReport(t *testing.T) {
	w, exporter := newWorker(t, storage.State{
		Expenses:     []byte(`[{"id":1,"date":"2026-03-01","amount":"50","currency":"EUR","category":"Meals"}]`),
		ReportName:   "Trip to Rome",
		BaseCurrency: "USD",
	})

	require.NoError(t, w.HandleReportSaved(context.Background(), message("m1", savedAt)))

	reports := exporter.Reports()
	require.Len(t, reports, 1)
	assert.Equal(t, "Trip to Rome", reports[0].Name)
	assert.Equal(t, "USD", reports[0].BaseCurrency)
	require.Len(t, reports[0].Rows, 2)
	assert.Equal(t, "58.82", reports[0].Rows[1][5])
	assert.Equal(t, 1, w.Synced())
}

func TestHandleReportSaved_SkipsStaleMessages(t *testing.T) {
	w, exporter := newWorker(t, storage.State{Expenses: []byte(`[]`)})
	ctx := context.Background()

	require.NoError(t, w.HandleReportSaved(ctx, message("m2", savedAt)))
	require.NoError(t, w.HandleReportSaved(ctx, message("m1", savedAt.Add(-time.Second))))
	require.NoError(t, w.HandleReportSaved(ctx, message("m2-again", savedAt)))
	assert.Len(t, exporter.Reports(), 1)

	require.NoError(t, w.HandleReportSaved(ctx, message("m3", savedAt.Add(time.Second))))
	assert.Len(t, exporter.Reports(), 2)
}

func TestHandleReportSaved_DefaultsWhenNothingStored(t *testing.T) {
	w, exporter := newWorker(t, storage.State{})

	ref, err := w.SyncNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "mem:1", ref)

	reports := exporter.Reports()
	require.Len(t, reports, 1)
	assert.Equal(t, core.DefaultReportName, reports[0].Name)
	assert.Len(t, reports[0].Rows, 1, "header only")
}

func TestHandleReportSaved_CorruptStateIsDropped(t *testing.T) {
	w, exporter := newWorker(t, storage.State{Expenses: []byte(`{"not":"a list"}`)})

	require.NoError(t, w.HandleReportSaved(context.Background(), message("m1", savedAt)))
	assert.Empty(t, exporter.Reports())
	assert.Equal(t, 0, w.Synced())
}

type failingExporter struct{ err error }

func (f failingExporter) ExportReport(context.Context, sheets.Report) (string, error) {
	return "", f.err
}

func TestHandleReportSaved_ExportFailureIsRetried(t *testing.T) {
	boom := errors.New("quota exceeded")
	w := NewReportWorker(storage.NewMemoryGateway(storage.State{}), nil, failingExporter{err: boom}, core.DefaultReportMetadata(), nil)

	err := w.HandleReportSaved(context.Background(), message("m1", savedAt))
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "m1")

	// The failed message did not advance the watermark.
	err = w.HandleReportSaved(context.Background(), message("m1", savedAt))
	assert.ErrorIs(t, err, boom)
}
