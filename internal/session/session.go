// Package session ties one expense report together: the record store, the
// report settings, the exchange rates and persistence. Every mutation is
// saved through the storage gateway as soon as it is applied.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"expenses/internal/amqp"
	"expenses/internal/cache"
	"expenses/internal/conversion"
	"expenses/internal/core"
	"expenses/internal/export"
	applog "expenses/internal/log"
	"expenses/internal/rates"
	"expenses/internal/sheets"
	"expenses/internal/storage"
	"expenses/internal/store"
)

var (
	ErrRecordNotFound = errors.New("record not found")
	ErrSheetsDisabled = errors.New("sheets export is not configured")
	ErrClosed         = errors.New("session closed")
)

// Notifier is told about every successful save.
type Notifier interface {
	PublishReportSaved(ctx context.Context, msg *amqp.ReportSavedMessage) error
}

// Options configures Open. Only Gateway is required.
type Options struct {
	Gateway   storage.Gateway
	Provider  rates.Provider
	RateCache cache.Cache[core.RateSnapshot]
	Notifier  Notifier
	Exporter  sheets.ReportExporter

	// Defaults apply when nothing is persisted yet.
	Defaults core.ReportMetadata

	RatesTimeout time.Duration
	// RefreshInterval enables periodic rate refresh when positive.
	RefreshInterval time.Duration
	// Strict makes totals fail with conversion.ErrRateUnavailable instead
	// of counting unconvertible records as zero.
	Strict bool

	Clock  func() time.Time
	Logger *applog.Logger
}

// Row is a record together with its amount in the base currency.
type Row struct {
	Record    core.Record
	Converted float64
	// Available is false when a rate needed for Converted was missing.
	Available bool
}

// Display returns the converted amount formatted for display.
func (r Row) Display() string {
	return conversion.RoundForDisplay(r.Converted)
}

type Session struct {
	mu     sync.Mutex
	store  *store.Store
	meta   core.ReportMetadata
	closed bool

	gateway  storage.Gateway
	notifier Notifier
	exporter sheets.ReportExporter
	rates    *rates.Service
	engine   *conversion.Engine
	now      func() time.Time
	logger   *applog.Logger
}

// Open loads the persisted report and fetches rates for its base currency.
// Corrupt or missing state falls back to defaults; a failed rate fetch
// leaves rates unavailable. Only a storage failure is returned.
func Open(ctx context.Context, opts Options) (*Session, error) {
	if opts.Gateway == nil {
		return nil, errors.New("session requires a storage gateway")
	}
	logger := opts.Logger
	if logger == nil {
		logger = applog.Discard()
	}
	logger = logger.WithComponent(applog.ComponentSession)
	now := opts.Clock
	if now == nil {
		now = time.Now
	}

	st, err := opts.Gateway.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}

	meta := restoreMetadata(ctx, st, opts.Defaults.Normalize(), logger)
	records := restoreStore(ctx, st, meta.BaseCurrency, now, logger)

	provider := opts.Provider
	if provider == nil {
		provider = rates.NewStaticProvider()
	}
	svcOpts := []rates.ServiceOption{
		rates.WithTimeout(opts.RatesTimeout),
		rates.WithRefreshInterval(opts.RefreshInterval),
		rates.WithLogger(logger),
	}
	if opts.RateCache != nil {
		svcOpts = append(svcOpts, rates.WithCache(opts.RateCache))
	}

	mode := conversion.FailSoft
	if opts.Strict {
		mode = conversion.Strict
	}

	s := &Session{
		store:    records,
		meta:     meta,
		gateway:  opts.Gateway,
		notifier: opts.Notifier,
		exporter: opts.Exporter,
		rates:    rates.NewService(provider, meta.BaseCurrency, svcOpts...),
		engine:   conversion.NewEngine(mode),
		now:      now,
		logger:   logger,
	}

	// Failures are logged by the rates service and leave rates unavailable.
	_, _ = s.rates.Refresh(ctx)

	if opts.RefreshInterval > 0 {
		if err := s.rates.Start(context.WithoutCancel(ctx)); err != nil {
			return nil, err
		}
	}

	logger.InfoContext(ctx, "Session opened",
		applog.FieldOperation, applog.OpLoad,
		applog.FieldReportName, meta.ReportName,
		applog.FieldCurrency, meta.BaseCurrency,
		applog.FieldRecords, records.Len(),
		"rates_available", s.rates.Available())

	return s, nil
}

func restoreMetadata(ctx context.Context, st storage.State, defaults core.ReportMetadata, logger *applog.Logger) core.ReportMetadata {
	meta := defaults
	if st.ReportName != "" {
		meta.ReportName = st.ReportName
	}
	if st.BaseCurrency != "" {
		if core.IsSupportedCurrency(st.BaseCurrency) {
			meta.BaseCurrency = st.BaseCurrency
		} else {
			logger.WarnContext(ctx, "Ignoring unsupported persisted base currency",
				applog.FieldCurrency, st.BaseCurrency,
				"fallback", defaults.BaseCurrency)
		}
	}
	return meta
}

func restoreStore(ctx context.Context, st storage.State, base string, now func() time.Time, logger *applog.Logger) *store.Store {
	if st.Expenses == nil {
		return store.Default(base, store.WithClock(now))
	}
	records, err := store.Deserialize(st.Expenses, base, store.WithClock(now))
	if err != nil {
		logger.WarnContext(ctx, "Persisted expenses are corrupt, starting from defaults", applog.FieldError, err)
	}
	return records
}

// AddExpense appends r with a new id. An empty date defaults to today and
// an empty currency to the base currency.
func (s *Session) AddExpense(ctx context.Context, r core.Record) (core.Record, error) {
	r.Currency = strings.ToUpper(strings.TrimSpace(r.Currency))
	if err := r.Category.Validate(); err != nil {
		return core.Record{}, fmt.Errorf("%w: %q", err, r.Category)
	}
	if r.Currency != "" && !core.IsSupportedCurrency(r.Currency) {
		return core.Record{}, fmt.Errorf("%w: %q", core.ErrUnknownCurrency, r.Currency)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return core.Record{}, ErrClosed
	}

	if r.Currency == "" {
		r.Currency = s.meta.BaseCurrency
	}
	if r.Date == "" {
		r.Date = s.now().Format(core.DateLayout)
	}
	prev, prevMeta := s.store.Clone(), s.meta
	added := s.store.Add(r)

	s.logger.DebugContext(ctx, "Expense added",
		applog.NewFields().WithOperation(applog.OpCreate).WithRecord(added.ID, added.Currency).ToSlice()...)

	if err := s.commitLocked(ctx, prev, prevMeta); err != nil {
		return core.Record{}, err
	}
	return added, nil
}

// RemoveExpense deletes the record with id. Removing a missing id is a
// no-op that reports false and saves nothing.
func (s *Session) RemoveExpense(ctx context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, ErrClosed
	}

	prev, prevMeta := s.store.Clone(), s.meta
	if !s.store.Remove(id) {
		return false, nil
	}
	s.logger.DebugContext(ctx, "Expense removed", applog.FieldOperation, applog.OpDelete, applog.FieldRecordID, id)
	if err := s.commitLocked(ctx, prev, prevMeta); err != nil {
		return false, err
	}
	return true, nil
}

// UpdateExpense sets one named field of the record with id. An unknown
// field fails with store.ErrInvalidField; a missing id reports false.
func (s *Session) UpdateExpense(ctx context.Context, id int64, field, value string) (bool, error) {
	u, err := store.ParseUpdate(field, value)
	if err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, ErrClosed
	}

	prev, prevMeta := s.store.Clone(), s.meta
	ok, err := s.store.Update(id, u)
	if err != nil || !ok {
		return ok, err
	}
	s.logger.DebugContext(ctx, "Expense updated",
		applog.FieldOperation, applog.OpUpdate,
		applog.FieldRecordID, id,
		applog.FieldField, u.Field())
	if err := s.commitLocked(ctx, prev, prevMeta); err != nil {
		return false, err
	}
	return true, nil
}

// SetReportName renames the report.
func (s *Session) SetReportName(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	prev, prevMeta := s.store.Clone(), s.meta
	s.meta.ReportName = name
	return s.commitLocked(ctx, prev, prevMeta)
}

// SetBaseCurrency changes the currency totals are shown in and refetches
// rates for it. A failed fetch is logged, not returned.
func (s *Session) SetBaseCurrency(ctx context.Context, code string) error {
	code = strings.ToUpper(strings.TrimSpace(code))
	if !core.IsSupportedCurrency(code) {
		return fmt.Errorf("%w: %q", core.ErrUnknownCurrency, code)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	prev, prevMeta := s.store.Clone(), s.meta
	s.meta.BaseCurrency = code
	err := s.commitLocked(ctx, prev, prevMeta)
	s.mu.Unlock()
	if err != nil {
		return err
	}

	// The fetch runs outside the lock so reads are not blocked on the network.
	if err := s.rates.SetPivot(ctx, code); err != nil && !errors.Is(err, rates.ErrRateFetch) {
		return err
	}
	return nil
}

// commitLocked saves the current state. If the save fails the records and
// metadata are restored to prev so memory never runs ahead of storage.
func (s *Session) commitLocked(ctx context.Context, prev *store.Store, prevMeta core.ReportMetadata) error {
	if err := s.saveLocked(ctx); err != nil {
		s.store, s.meta = prev, prevMeta
		return err
	}
	return nil
}

// saveLocked persists the current state and notifies on success.
func (s *Session) saveLocked(ctx context.Context) error {
	data, err := s.store.Serialize()
	if err != nil {
		return err
	}
	st := storage.State{
		Expenses:     data,
		ReportName:   s.meta.ReportName,
		BaseCurrency: s.meta.BaseCurrency,
	}
	start := time.Now()
	if err := s.gateway.Save(ctx, st); err != nil {
		s.logger.ErrorContext(ctx, "Failed to save session",
			applog.NewFields().WithOperation(applog.OpSave).WithError(err).ToSlice()...)
		return fmt.Errorf("save session: %w", err)
	}
	s.logger.DebugContext(ctx, "Session saved",
		applog.FieldOperation, applog.OpSave,
		applog.FieldRecords, s.store.Len(),
		applog.FieldDuration, time.Since(start).Milliseconds())

	if s.notifier != nil {
		msg := amqp.NewReportSavedMessage(s.summaryLocked())
		if err := s.notifier.PublishReportSaved(ctx, msg); err != nil {
			s.logger.WarnContext(ctx, "Failed to publish report saved notification",
				applog.FieldOperation, applog.OpPublish,
				applog.FieldMessageID, msg.MessageID,
				applog.FieldError, err)
		}
	}
	return nil
}

// Records returns the records in order.
func (s *Session) Records() []core.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Records()
}

// Metadata returns the report name and base currency.
func (s *Session) Metadata() core.ReportMetadata {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.meta
}

// Total returns the sum of all records in the base currency.
func (s *Session) Total() (float64, error) {
	s.mu.Lock()
	records, base := s.store.Records(), s.meta.BaseCurrency
	s.mu.Unlock()
	return s.engine.AggregateTotal(records, base, s.rates.Snapshot())
}

// ConvertedAmount returns one record's amount in the base currency.
func (s *Session) ConvertedAmount(id int64) (float64, error) {
	s.mu.Lock()
	r, ok := s.store.Get(id)
	base := s.meta.BaseCurrency
	s.mu.Unlock()
	if !ok {
		return 0, fmt.Errorf("%w: %d", ErrRecordNotFound, id)
	}
	return s.engine.ConvertRecord(r, base, s.rates.Snapshot())
}

// Rows returns every record with its converted amount.
func (s *Session) Rows() []Row {
	s.mu.Lock()
	records, base := s.store.Records(), s.meta.BaseCurrency
	s.mu.Unlock()

	snap := s.rates.Snapshot()
	rows := make([]Row, len(records))
	for i, r := range records {
		v, ok := conversion.Lookup(r.AmountValue(), r.Currency, base, snap)
		rows[i] = Row{Record: r, Converted: v, Available: ok}
	}
	return rows
}

// Summary returns totals overall and per category. It always fails soft.
func (s *Session) Summary() core.ReportSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.summaryLocked()
}

func (s *Session) summaryLocked() core.ReportSummary {
	records, base := s.store.Records(), s.meta.BaseCurrency
	snap := s.rates.Snapshot()
	return core.ReportSummary{
		ReportName:     s.meta.ReportName,
		BaseCurrency:   base,
		Records:        len(records),
		Total:          conversion.AggregateTotal(records, base, snap),
		ByCategory:     conversion.TotalsByCategory(records, base, snap),
		RatesAvailable: !snap.IsEmpty(),
	}
}

// RatesAvailable reports whether any exchange rates are loaded.
func (s *Session) RatesAvailable() bool {
	return s.rates.Available()
}

// Rates returns the current rate snapshot.
func (s *Session) Rates() core.RateSnapshot {
	return s.rates.Snapshot()
}

// RefreshRates fetches rates now. Unlike background refreshes the error is
// returned; the previous snapshot is kept either way.
func (s *Session) RefreshRates(ctx context.Context) error {
	_, err := s.rates.Refresh(ctx)
	return err
}

// ExportCSV renders the report and returns its file name and content.
func (s *Session) ExportCSV() (string, []byte, error) {
	s.mu.Lock()
	records, meta := s.store.Records(), s.meta
	s.mu.Unlock()

	data, err := export.Render(records, meta.BaseCurrency, s.rates.Snapshot(), meta.ReportName)
	if err != nil {
		return "", nil, err
	}
	return export.FileName(meta.ReportName), data, nil
}

// WriteCSV writes the CSV export into dir and returns its path.
func (s *Session) WriteCSV(ctx context.Context, dir string) (string, error) {
	s.mu.Lock()
	records, meta := s.store.Records(), s.meta
	s.mu.Unlock()

	path, err := export.Write(dir, records, meta.BaseCurrency, s.rates.Snapshot(), meta.ReportName)
	if err != nil {
		return "", err
	}
	s.logger.InfoContext(ctx, "Report exported",
		applog.FieldOperation, applog.OpExport,
		applog.FieldPath, path,
		applog.FieldRecords, len(records))
	return path, nil
}

// ExportSheets appends the report to the configured spreadsheet.
func (s *Session) ExportSheets(ctx context.Context) (string, error) {
	if s.exporter == nil {
		return "", ErrSheetsDisabled
	}
	s.mu.Lock()
	records, meta := s.store.Records(), s.meta
	s.mu.Unlock()

	report := sheets.NewReport(meta.ReportName, meta.BaseCurrency, records, s.rates.Snapshot())
	return s.exporter.ExportReport(ctx, report)
}

// Close stops the background rate refresh. It does not close the gateway,
// which belongs to whoever created it. Close is idempotent.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	if err := s.rates.Stop(ctx); err != nil {
		return fmt.Errorf("stop rate refresh: %w", err)
	}
	s.logger.DebugContext(ctx, "Session closed", applog.FieldOperation, applog.OpShutdown)
	return nil
}
