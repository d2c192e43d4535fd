package rates

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"expenses/internal/cache"
	"expenses/internal/core"
	applog "expenses/internal/log"
)

// Defaults for NewService.
const (
	DefaultTimeout         = 10 * time.Second
	DefaultRefreshInterval = 5 * time.Minute
)

// Service owns the current rate snapshot. Fetches for the same pivot are
// coalesced, a failed fetch keeps the previous snapshot, and a result for a
// pivot that is no longer current is discarded.
type Service struct {
	provider Provider
	cache    cache.Cache[core.RateSnapshot]
	timeout  time.Duration
	interval time.Duration
	logger   *applog.Logger
	group    singleflight.Group

	mu      sync.RWMutex
	pivot   string
	current core.RateSnapshot
	lastErr error

	// Lifecycle management
	lifeMu  sync.Mutex
	running bool
	cancel  context.CancelFunc
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithCache keeps fetched snapshots in c, keyed by pivot.
func WithCache(c cache.Cache[core.RateSnapshot]) ServiceOption {
	return func(s *Service) { s.cache = c }
}

// WithTimeout bounds each fetch.
func WithTimeout(d time.Duration) ServiceOption {
	return func(s *Service) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithRefreshInterval sets the background refresh period.
func WithRefreshInterval(d time.Duration) ServiceOption {
	return func(s *Service) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *applog.Logger) ServiceOption {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewService creates a service for pivot. It starts with an empty snapshot;
// call Refresh or Start to populate it.
func NewService(provider Provider, pivot string, opts ...ServiceOption) *Service {
	s := &Service{
		provider: provider,
		timeout:  DefaultTimeout,
		interval: DefaultRefreshInterval,
		logger:   applog.Discard(),
		pivot:    pivot,
		current:  core.EmptySnapshot(pivot),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.WithComponent(applog.ComponentRates)
	if s.cache != nil {
		if snap, ok := s.cache.Get(pivot); ok {
			s.current = snap
		}
	}
	return s
}

// Snapshot returns the current snapshot. It never blocks on a fetch.
func (s *Service) Snapshot() core.RateSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Pivot returns the pivot currency new fetches are made against.
func (s *Service) Pivot() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pivot
}

// Available reports whether any rates are loaded.
func (s *Service) Available() bool {
	return !s.Snapshot().IsEmpty()
}

// LastError returns the error of the most recent failed fetch for the
// current pivot, or nil after a success.
func (s *Service) LastError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

// Refresh fetches rates for the current pivot. On failure the previous
// snapshot is returned alongside an error wrapping ErrRateFetch.
func (s *Service) Refresh(ctx context.Context) (core.RateSnapshot, error) {
	pivot := s.Pivot()
	v, err, shared := s.group.Do(pivot, func() (any, error) {
		return s.fetch(ctx, pivot)
	})
	if shared {
		s.logger.DebugContext(ctx, "Joined in-flight rate fetch", applog.FieldPivot, pivot)
	}
	if err != nil {
		return s.Snapshot(), err
	}
	return v.(core.RateSnapshot), nil
}

func (s *Service) fetch(ctx context.Context, pivot string) (core.RateSnapshot, error) {
	fctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	snap, err := s.provider.GetRates(fctx, pivot)
	if err != nil {
		if !errors.Is(err, ErrRateFetch) {
			err = fmt.Errorf("%w: %v", ErrRateFetch, err)
		}
		s.recordFailure(ctx, pivot, err)
		return core.RateSnapshot{}, err
	}

	if s.cache != nil {
		s.cache.Set(pivot, snap)
	}
	if s.publish(pivot, snap) {
		s.logger.InfoContext(ctx, "Exchange rates refreshed",
			applog.NewFields().
				WithOperation(applog.OpRefresh).
				WithRates(pivot, snap.Source, snap.Len()).
				ToSlice()...)
		s.logger.DebugContext(ctx, "Rate fetch timing", applog.FieldDuration, time.Since(start).Milliseconds())
	} else {
		s.logger.DebugContext(ctx, "Discarded rates for stale pivot", applog.FieldPivot, pivot)
	}
	return snap, nil
}

func (s *Service) publish(pivot string, snap core.RateSnapshot) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pivot != pivot {
		return false
	}
	s.current = snap
	s.lastErr = nil
	return true
}

func (s *Service) recordFailure(ctx context.Context, pivot string, err error) {
	s.mu.Lock()
	if s.pivot == pivot {
		s.lastErr = err
	}
	s.mu.Unlock()

	s.logger.WarnContext(ctx, "Exchange rate fetch failed, keeping previous rates",
		applog.FieldPivot, pivot,
		applog.FieldError, err)
}

// SetPivot switches the pivot currency and fetches rates for it. A cached
// snapshot for the new pivot is used immediately when one exists. The
// returned error, if any, wraps ErrRateFetch or core.ErrUnknownCurrency.
func (s *Service) SetPivot(ctx context.Context, pivot string) error {
	code := strings.ToUpper(strings.TrimSpace(pivot))
	if !core.IsSupportedCurrency(code) {
		return fmt.Errorf("%w: %q", core.ErrUnknownCurrency, pivot)
	}

	var cached core.RateSnapshot
	var hit bool
	if s.cache != nil {
		cached, hit = s.cache.Get(code)
	}

	s.mu.Lock()
	if s.pivot == code {
		s.mu.Unlock()
		return nil
	}
	s.pivot = code
	s.lastErr = nil
	if hit {
		s.current = cached
	}
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "Pivot currency changed", applog.FieldPivot, code, "cached", hit)

	_, err := s.Refresh(ctx)
	return err
}

// Start begins periodic refreshes. Returns an error if already running.
func (s *Service) Start(ctx context.Context) error {
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()
	if s.running {
		return fmt.Errorf("rate refresh is already running")
	}

	loopCtx, cancel := context.WithCancel(ctx)
	s.running = true
	s.cancel = cancel
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})

	go s.runLoop(loopCtx, s.stopCh, s.doneCh)

	s.logger.InfoContext(ctx, "Rate refresh started",
		"interval", s.interval,
		"provider", s.provider.Name())
	return nil
}

// Stop cancels any in-flight fetch and waits for the refresh loop to exit.
func (s *Service) Stop(ctx context.Context) error {
	s.lifeMu.Lock()
	if !s.running {
		s.lifeMu.Unlock()
		return nil
	}
	s.running = false
	stopCh, doneCh, cancel := s.stopCh, s.doneCh, s.cancel
	s.lifeMu.Unlock()

	close(stopCh)
	cancel()

	select {
	case <-doneCh:
		s.logger.DebugContext(ctx, "Rate refresh stopped")
		return nil
	case <-ctx.Done():
		s.logger.WarnContext(ctx, "Rate refresh stop timed out")
		return ctx.Err()
	}
}

// IsRunning returns whether the refresh loop is active.
func (s *Service) IsRunning() bool {
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()
	return s.running
}

func (s *Service) runLoop(ctx context.Context, stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			// Failures are logged by fetch and leave the snapshot untouched.
			_, _ = s.Refresh(ctx)
		}
	}
}
