// Package worker mirrors the persisted report to a spreadsheet whenever a
// report-saved notification arrives from the message broker.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"expenses/internal/amqp"
	"expenses/internal/core"
	applog "expenses/internal/log"
	"expenses/internal/rates"
	"expenses/internal/sheets"
	"expenses/internal/storage"
	"expenses/internal/store"
)

// ReportWorker handles report-saved messages by exporting the stored
// report. It is safe for concurrent use.
type ReportWorker struct {
	gateway  storage.Gateway
	provider rates.Provider
	exporter sheets.ReportExporter
	defaults core.ReportMetadata
	logger   *applog.Logger

	mu       sync.Mutex
	lastSeen time.Time
	synced   int
}

func NewReportWorker(gateway storage.Gateway, provider rates.Provider, exporter sheets.ReportExporter, defaults core.ReportMetadata, logger *applog.Logger) *ReportWorker {
	if logger == nil {
		logger = applog.Discard()
	}
	if provider == nil {
		provider = rates.NewStaticProvider()
	}
	return &ReportWorker{
		gateway:  gateway,
		provider: provider,
		exporter: exporter,
		defaults: defaults.Normalize(),
		logger:   logger.WithComponent(applog.ComponentWorker),
	}
}

// HandleReportSaved exports the current stored report. A notification not
// newer than the last one handled is skipped, since the export it would
// produce has already been written.
func (w *ReportWorker) HandleReportSaved(ctx context.Context, msg *amqp.ReportSavedMessage) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.lastSeen.IsZero() && !msg.SavedAt.After(w.lastSeen) {
		w.logger.DebugContext(ctx, "Skipping stale notification",
			applog.FieldMessageID, msg.MessageID,
			"saved_at", msg.SavedAt)
		return nil
	}

	ref, err := w.syncLocked(ctx)
	if errors.Is(err, store.ErrCorruptState) {
		// Retrying cannot fix stored data; drop the message.
		w.logger.ErrorContext(ctx, "Stored report is corrupt, notification dropped",
			applog.FieldMessageID, msg.MessageID,
			applog.FieldError, err)
		w.lastSeen = msg.SavedAt
		return nil
	}
	if err != nil {
		return fmt.Errorf("sync report for message %s: %w", msg.MessageID, err)
	}

	w.lastSeen = msg.SavedAt
	w.logger.InfoContext(ctx, "Report synced",
		applog.FieldOperation, applog.OpSync,
		applog.FieldMessageID, msg.MessageID,
		applog.FieldReportName, msg.ReportName,
		"sheets_ref", ref)
	return nil
}

// SyncNow exports the stored report once, regardless of notifications.
// It is used at startup to catch up on saves made while nothing listened.
func (w *ReportWorker) SyncNow(ctx context.Context) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.syncLocked(ctx)
}

// Synced returns how many exports have been written.
func (w *ReportWorker) Synced() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.synced
}

func (w *ReportWorker) syncLocked(ctx context.Context) (string, error) {
	st, err := w.gateway.Load(ctx)
	if err != nil {
		return "", fmt.Errorf("load report: %w", err)
	}

	meta := w.defaults
	if st.ReportName != "" {
		meta.ReportName = st.ReportName
	}
	if core.IsSupportedCurrency(st.BaseCurrency) {
		meta.BaseCurrency = st.BaseCurrency
	}

	var records []core.Record
	if st.Expenses != nil {
		s, err := store.Deserialize(st.Expenses, meta.BaseCurrency)
		if err != nil {
			return "", err
		}
		records = s.Records()
	}

	snap, err := w.provider.GetRates(ctx, meta.BaseCurrency)
	if err != nil {
		w.logger.WarnContext(ctx, "Exchange rates unavailable, exporting unconverted amounts",
			applog.FieldPivot, meta.BaseCurrency,
			applog.FieldError, err)
		snap = core.EmptySnapshot(meta.BaseCurrency)
	}

	ref, err := w.exporter.ExportReport(ctx, sheets.NewReport(meta.ReportName, meta.BaseCurrency, records, snap))
	if err != nil {
		return "", fmt.Errorf("export report: %w", err)
	}
	w.synced++
	return ref, nil
}
