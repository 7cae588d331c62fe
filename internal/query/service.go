package query

import (
	"context"
	"errors"
	"fmt"
	"time"

	"volumetracker/internal/market"
	"volumetracker/internal/memorystore"
	"volumetracker/internal/metrics"
	"volumetracker/internal/quote"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Writer is the tracker's write path.
type Writer interface {
	Fetch(ctx context.Context, symbols []string) ([]quote.Snapshot, error)
	Synthesize(ctx context.Context, symbol string, gen *quote.DummyGenerator) quote.Snapshot
}

type Clock interface {
	IsSessionOpen(now time.Time) bool
	NextOpen(now time.Time) time.Time
}

type Options struct {
	Exchange           string
	Series             string
	FreshnessWindow    time.Duration
	EnforceMarketHours bool
	DummyFallback      bool
	// Live enables on-demand fetches. Without it every miss is synthesized.
	Live          bool
	OnDemandRate  float64
	OnDemandBurst int
}

// ClosedError is returned while the market is closed. It matches
// quote.ErrMarketClosed.
type ClosedError struct {
	NextOpen time.Time
}

func (e *ClosedError) Error() string {
	return fmt.Sprintf("market is closed, next open %s", e.NextOpen.Format(quote.TimestampLayout))
}

func (e *ClosedError) Is(target error) bool {
	return target == quote.ErrMarketClosed
}

// Service answers snapshot reads from the cache, fetching on demand when an
// entry is missing or stale.
type Service struct {
	opts    Options
	writer  Writer
	store   *memorystore.SnapshotStore
	symbols *memorystore.SymbolStore
	clock   Clock
	gen     *quote.DummyGenerator
	limiter *rate.Limiter
	metrics *metrics.Metrics
	logger  *zap.Logger
	now     func() time.Time
}

func NewService(
	opts Options,
	writer Writer,
	store *memorystore.SnapshotStore,
	symbols *memorystore.SymbolStore,
	clock Clock,
	gen *quote.DummyGenerator,
	m *metrics.Metrics,
	logger *zap.Logger,
) *Service {
	limit := rate.Inf
	if opts.OnDemandRate > 0 {
		limit = rate.Limit(opts.OnDemandRate)
	}
	burst := opts.OnDemandBurst
	if burst <= 0 {
		burst = 1
	}

	return &Service{
		opts:    opts,
		writer:  writer,
		store:   store,
		symbols: symbols,
		clock:   clock,
		gen:     gen,
		limiter: rate.NewLimiter(limit, burst),
		metrics: m,
		logger:  logger,
		now:     time.Now,
	}
}

// WithClock replaces the wall clock.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Qualify normalizes a symbol the way reads do.
func (s *Service) Qualify(symbol string) string {
	return market.Qualify(s.opts.Exchange, s.opts.Series, symbol)
}

// ActiveSymbols is the current tracked set.
func (s *Service) ActiveSymbols() []string {
	return s.symbols.GetAll()
}

// GetOne returns the snapshot of symbol and starts tracking it.
func (s *Service) GetOne(ctx context.Context, symbol string) (quote.Snapshot, error) {
	symbol = s.Qualify(symbol)
	if symbol == "" {
		return quote.Snapshot{}, errors.New("empty symbol")
	}

	now := s.now()
	if err := s.checkOpen(now); err != nil {
		return quote.Snapshot{}, err
	}
	s.symbols.AddAndTrack(symbol)

	if snap, ok := s.fresh(symbol, now); ok {
		return snap, nil
	}

	snaps, err := s.fetch(ctx, []string{symbol})
	if snap, ok := snaps[symbol]; ok {
		s.metrics.Query("live")
		return snap, nil
	}
	return s.fallback(ctx, symbol, err)
}

// GetMany returns snapshots for symbols, or for the active set when symbols
// is empty. Misses are fetched in one batch. The result holds every symbol
// that could be answered; err joins the failures when dummy fallback is off.
func (s *Service) GetMany(ctx context.Context, symbols []string) (map[string]quote.Snapshot, error) {
	now := s.now()
	if err := s.checkOpen(now); err != nil {
		return nil, err
	}

	if len(symbols) == 0 {
		symbols = s.symbols.GetAll()
	} else {
		symbols = market.QualifyAll(s.opts.Exchange, s.opts.Series, symbols)
	}

	result := make(map[string]quote.Snapshot, len(symbols))
	var stale []string
	for _, symbol := range symbols {
		s.symbols.AddAndTrack(symbol)
		if snap, ok := s.fresh(symbol, now); ok {
			result[symbol] = snap
			continue
		}
		stale = append(stale, symbol)
	}
	if len(stale) == 0 {
		return result, nil
	}

	fetched, fetchErr := s.fetch(ctx, stale)

	var errs []error
	for _, symbol := range stale {
		if snap, ok := fetched[symbol]; ok {
			s.metrics.Query("live")
			result[symbol] = snap
			continue
		}
		snap, err := s.fallback(ctx, symbol, fetchErr)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		result[symbol] = snap
	}
	return result, errors.Join(errs...)
}

func (s *Service) checkOpen(now time.Time) error {
	if s.opts.EnforceMarketHours && !s.clock.IsSessionOpen(now) {
		s.metrics.Query("closed")
		return &ClosedError{NextOpen: s.clock.NextOpen(now)}
	}
	return nil
}

func (s *Service) fresh(symbol string, now time.Time) (quote.Snapshot, bool) {
	entry, ok := s.store.Get(symbol)
	if !ok || !entry.IsFresh(now, s.opts.FreshnessWindow) {
		return quote.Snapshot{}, false
	}
	s.metrics.Query("cache")
	return entry.Snapshot, true
}

// fetch runs one paced on-demand request. Snapshots that were written are
// returned even when err reports missing symbols.
func (s *Service) fetch(ctx context.Context, symbols []string) (map[string]quote.Snapshot, error) {
	if !s.opts.Live || s.writer == nil {
		return nil, fmt.Errorf("%w: on-demand fetch disabled", quote.ErrFetch)
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: rate limit: %v", quote.ErrFetch, err)
	}

	snaps, err := s.writer.Fetch(ctx, symbols)
	out := make(map[string]quote.Snapshot, len(snaps))
	for _, snap := range snaps {
		out[snap.Symbol] = snap
	}
	if err != nil {
		s.logger.Warn("on-demand fetch failed", zap.Strings("symbols", symbols), zap.Error(err))
	}
	return out, err
}

func (s *Service) fallback(ctx context.Context, symbol string, cause error) (quote.Snapshot, error) {
	if cause == nil {
		cause = fmt.Errorf("%w: %s", quote.ErrPartialData, symbol)
	}
	if s.opts.Live && !s.opts.DummyFallback {
		s.metrics.Query("error")
		return quote.Snapshot{}, fmt.Errorf("%s: %w", symbol, cause)
	}

	s.metrics.Query("dummy")
	return s.writer.Synthesize(ctx, symbol, s.gen), nil
}
