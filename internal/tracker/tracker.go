package tracker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"volumetracker/internal/memorystore"
	"volumetracker/internal/metrics"
	"volumetracker/internal/quote"
	"volumetracker/internal/session"
	"volumetracker/internal/sink"

	"go.uber.org/zap"
)

// QuoteSource returns the latest observations for a batch of symbols.
type QuoteSource interface {
	FetchBatch(ctx context.Context, symbols []string, token string) (map[string]quote.RawObservation, error)
}

// Credentials is the part of session.Session the tracker drives.
type Credentials interface {
	Acquire(ctx context.Context) (session.Credential, error)
	Invalidate()
	Current() (session.Credential, bool)
}

// Clock answers session-hours questions.
type Clock interface {
	IsSessionOpen(now time.Time) bool
	SleepDuration(now time.Time) time.Duration
	Location() *time.Location
}

type Options struct {
	PollInterval       time.Duration
	AuthRetryDelay     time.Duration
	FetchTimeout       time.Duration
	EnforceMarketHours bool
	ResetOnSessionOpen bool
	// EvictAfterMisses drops a symbol from the active set after that many
	// consecutive cycles without a row for it. 0 keeps symbols forever.
	EvictAfterMisses int
}

// maxImmediateReauth is the number of consecutive rejected tokens retried
// without waiting. Further rejections wait AuthRetryDelay.
const maxImmediateReauth = 3

type state int

const (
	stateStarting state = iota
	stateClosed
	statePolling
)

// Tracker polls the quote source for the active symbols and keeps the
// snapshot cache current. It also owns the single write path used by
// on-demand reads, so both writers classify against the same PrevState.
type Tracker struct {
	opts    Options
	source  QuoteSource
	creds   Credentials
	clock   Clock
	store   *memorystore.SnapshotStore
	symbols *memorystore.SymbolStore
	fanout  *sink.Fanout
	metrics *metrics.Metrics
	logger  *zap.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	// Owned by the Run goroutine.
	state    state
	expiries int
	misses   map[string]int
}

func New(
	opts Options,
	source QuoteSource,
	creds Credentials,
	clock Clock,
	store *memorystore.SnapshotStore,
	symbols *memorystore.SymbolStore,
	fanout *sink.Fanout,
	m *metrics.Metrics,
	logger *zap.Logger,
) *Tracker {
	return &Tracker{
		opts:    opts,
		source:  source,
		creds:   creds,
		clock:   clock,
		store:   store,
		symbols: symbols,
		fanout:  fanout,
		metrics: m,
		logger:  logger,
		now:     time.Now,
		sleep:   sleepContext,
		misses:  make(map[string]int),
	}
}

// WithClock replaces the wall clock and the sleep function.
func (t *Tracker) WithClock(now func() time.Time, sleep func(ctx context.Context, d time.Duration) error) *Tracker {
	if now != nil {
		t.now = now
	}
	if sleep != nil {
		t.sleep = sleep
	}
	return t
}

// Run loops until ctx is cancelled.
func (t *Tracker) Run(ctx context.Context) error {
	t.logger.Info("tracker started",
		zap.Int("symbols", t.symbols.Len()),
		zap.Duration("poll_interval", t.opts.PollInterval),
		zap.Bool("enforce_market_hours", t.opts.EnforceMarketHours))

	for {
		if ctx.Err() != nil {
			break
		}
		wait := t.Step(ctx)
		if err := t.sleep(ctx, wait); err != nil {
			break
		}
	}

	t.logger.Info("tracker stopped")
	return nil
}

// Step runs one iteration of the control loop and returns how long to wait
// before the next one.
func (t *Tracker) Step(ctx context.Context) time.Duration {
	now := t.now()

	if t.opts.EnforceMarketHours && !t.clock.IsSessionOpen(now) {
		if t.state != stateClosed {
			// The credential is not held across closed periods.
			t.creds.Invalidate()
			t.logger.Info("market closed, sleeping until next open",
				zap.Duration("sleep", t.clock.SleepDuration(now)))
		}
		t.state = stateClosed
		t.metrics.Cycle("closed")
		return t.clock.SleepDuration(now)
	}

	if t.state == stateClosed {
		t.logger.Info("market open, resuming polling")
		if t.opts.ResetOnSessionOpen {
			t.store.ResetPrev()
		}
	}
	t.state = statePolling

	cred, ok := t.creds.Current()
	if !ok {
		var err error
		cred, err = t.creds.Acquire(ctx)
		if err != nil {
			t.metrics.Auth("error")
			t.metrics.Cycle("auth_error")
			t.logger.Warn("token fetch failed, retrying later",
				zap.Duration("retry_in", t.opts.AuthRetryDelay), zap.Error(err))
			return t.opts.AuthRetryDelay
		}
		t.metrics.Auth("ok")
	}

	symbols := t.symbols.GetAll()
	t.metrics.Tracked(len(symbols))
	if len(symbols) == 0 {
		t.metrics.Cycle("idle")
		return t.opts.PollInterval
	}

	obs, err := t.fetch(ctx, symbols, cred.Token)
	switch {
	case errors.Is(err, quote.ErrAuthExpired):
		t.creds.Invalidate()
		t.metrics.Cycle("auth_expired")
		t.expiries++
		if t.expiries >= maxImmediateReauth {
			t.logger.Warn("fresh tokens keep getting rejected, backing off",
				zap.Int("rejections", t.expiries),
				zap.Duration("retry_in", t.opts.AuthRetryDelay), zap.Error(err))
			return t.opts.AuthRetryDelay
		}
		t.logger.Warn("unauthorized, refreshing token", zap.Error(err))
		return 0
	case err != nil:
		t.logger.Warn("quote fetch failed", zap.Int("symbols", len(symbols)), zap.Error(err))
		t.metrics.Cycle("fetch_error")
		return t.opts.PollInterval
	}

	t.expiries = 0
	written := t.writeLive(symbols, obs, false)
	t.publish(ctx, written)
	t.trackMisses(symbols, obs)
	t.metrics.Cycle("ok")
	t.logger.Debug("updated symbols", zap.Int("received", len(obs)), zap.Int("written", len(written)))
	return t.opts.PollInterval
}

// Fetch performs an on-demand fetch-and-classify for symbols using the
// current credential. Every symbol must be present in the response; present
// ones are written even when others are missing.
func (t *Tracker) Fetch(ctx context.Context, symbols []string) ([]quote.Snapshot, error) {
	if t.source == nil || t.creds == nil {
		return nil, fmt.Errorf("%w: no quote source configured", quote.ErrFetch)
	}
	cred, ok := t.creds.Current()
	if !ok {
		return nil, fmt.Errorf("%w: no access token", quote.ErrAuth)
	}

	obs, err := t.fetch(ctx, symbols, cred.Token)
	if err != nil {
		return nil, err
	}

	written := t.writeLive(symbols, obs, true)
	t.publishDetached(ctx, written)

	if len(written) < len(symbols) {
		return written, fmt.Errorf("%w: got %d of %d symbols", quote.ErrPartialData, len(written), len(symbols))
	}
	return written, nil
}

// Synthesize writes a dummy snapshot for symbol from its last known values,
// or from gen's random range when it was never observed.
func (t *Tracker) Synthesize(ctx context.Context, symbol string, gen *quote.DummyGenerator) quote.Snapshot {
	now := t.now()
	snap, _ := t.store.Update(symbol, now, func(prev quote.PrevState, last *quote.Snapshot) (quote.Snapshot, quote.PrevState, bool) {
		raw := gen.Observation(prev)
		if !prev.Known && last != nil {
			raw = quote.RawObservation{LastPrice: last.LTP, CumulativeVolume: last.CumulativeVolume}
		}
		d, next := quote.Classify(raw, prev)
		if !prev.Known {
			// Synthetic values never become the baseline of the first real
			// observation, which must count as a first observation.
			next = prev
		}
		return quote.NewSnapshot(symbol, now.In(t.clock.Location()), raw, d, quote.ModeDummy), next, true
	})
	t.metrics.Written(string(quote.ModeDummy), 1)
	t.publishDetached(ctx, []quote.Snapshot{snap})
	return snap
}

func (t *Tracker) fetch(ctx context.Context, symbols []string, token string) (map[string]quote.RawObservation, error) {
	if t.opts.FetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.opts.FetchTimeout)
		defer cancel()
	}

	start := time.Now()
	obs, err := t.source.FetchBatch(ctx, symbols, token)
	t.metrics.ObserveFetch(time.Since(start).Seconds())
	if err != nil {
		t.metrics.FetchError(errorKind(err))
		return nil, err
	}
	return obs, nil
}

// writeLive classifies and stores the observation of every symbol. A symbol
// absent from obs repeats its last live snapshot with a zero delta. It is
// skipped when strict is set or when it has no live snapshot, so synthetic
// entries keep their dummy label.
func (t *Tracker) writeLive(symbols []string, obs map[string]quote.RawObservation, strict bool) []quote.Snapshot {
	now := t.now()
	ts := now.In(t.clock.Location())

	written := make([]quote.Snapshot, 0, len(symbols))
	for _, symbol := range symbols {
		raw, present := obs[symbol]
		if !present && strict {
			continue
		}

		snap, ok := t.store.Update(symbol, now, func(prev quote.PrevState, last *quote.Snapshot) (quote.Snapshot, quote.PrevState, bool) {
			if !present {
				if last == nil || last.Mode != quote.ModeLive {
					return quote.Snapshot{}, prev, false
				}
				repeat := *last
				repeat.Timestamp = ts
				repeat.Quantity, repeat.BuyVolume, repeat.SellVolume = 0, 0, 0
				return repeat, prev, true
			}
			d, next := quote.Classify(raw, prev)
			return quote.NewSnapshot(symbol, ts, raw, d, quote.ModeLive), next, true
		})
		if ok {
			written = append(written, snap)
		}
	}
	t.metrics.Written(string(quote.ModeLive), len(written))
	return written
}

// trackMisses counts consecutive cycles without a row per symbol and evicts
// symbols the source stopped answering for.
func (t *Tracker) trackMisses(symbols []string, obs map[string]quote.RawObservation) {
	if t.opts.EvictAfterMisses <= 0 {
		return
	}
	for _, symbol := range symbols {
		if _, ok := obs[symbol]; ok {
			delete(t.misses, symbol)
			continue
		}
		t.misses[symbol]++
		if t.misses[symbol] >= t.opts.EvictAfterMisses {
			delete(t.misses, symbol)
			t.symbols.Remove(symbol)
			t.logger.Warn("no data for symbol, no longer tracking it",
				zap.String("symbol", symbol), zap.Int("cycles", t.opts.EvictAfterMisses))
		}
	}
	t.metrics.Tracked(t.symbols.Len())
}

func (t *Tracker) publish(ctx context.Context, snaps []quote.Snapshot) {
	t.fanout.Publish(ctx, snaps)
}

// publishDetached hands on-demand writes to the sinks without holding up the
// reader that triggered them.
func (t *Tracker) publishDetached(ctx context.Context, snaps []quote.Snapshot) {
	if t.fanout.Len() == 0 || len(snaps) == 0 {
		return
	}
	go t.fanout.Publish(context.WithoutCancel(ctx), snaps)
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, quote.ErrAuthExpired):
		return "auth_expired"
	case errors.Is(err, quote.ErrPartialData):
		return "partial"
	default:
		return "fetch"
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
