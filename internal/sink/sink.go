package sink

import (
	"context"
	"sync"
	"time"

	"volumetracker/internal/metrics"
	"volumetracker/internal/quote"

	"go.uber.org/zap"
)

// Sink receives every snapshot written to the cache.
type Sink interface {
	Name() string
	Publish(ctx context.Context, snaps []quote.Snapshot) error
}

// Fanout hands a batch to every sink concurrently. Each publish is bounded by
// timeout; failures are logged and counted but never returned, since the
// cache stays the source of truth.
type Fanout struct {
	sinks   []Sink
	timeout time.Duration
	logger  *zap.Logger
	metrics *metrics.Metrics
}

func NewFanout(timeout time.Duration, logger *zap.Logger, m *metrics.Metrics, sinks ...Sink) *Fanout {
	return &Fanout{
		sinks:   sinks,
		timeout: timeout,
		logger:  logger,
		metrics: m,
	}
}

// Add registers another sink. It must be called before the first Publish.
func (f *Fanout) Add(s Sink) {
	f.sinks = append(f.sinks, s)
}

func (f *Fanout) Len() int {
	if f == nil {
		return 0
	}
	return len(f.sinks)
}

// Publish blocks until every sink returned or timed out.
func (f *Fanout) Publish(ctx context.Context, snaps []quote.Snapshot) {
	if f == nil || len(f.sinks) == 0 || len(snaps) == 0 {
		return
	}

	var wg sync.WaitGroup
	for _, s := range f.sinks {
		wg.Add(1)
		go func(s Sink) {
			defer wg.Done()

			pctx, cancel := ctx, context.CancelFunc(func() {})
			if f.timeout > 0 {
				pctx, cancel = context.WithTimeout(ctx, f.timeout)
			}
			defer cancel()

			if err := s.Publish(pctx, snaps); err != nil {
				f.metrics.SinkError(s.Name())
				f.logger.Warn("sink publish failed",
					zap.String("sink", s.Name()),
					zap.Int("snapshots", len(snaps)),
					zap.Error(err))
			}
		}(s)
	}
	wg.Wait()
}
