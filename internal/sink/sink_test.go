package sink

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"volumetracker/internal/metrics"
	"volumetracker/internal/quote"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

type recordingSink struct {
	name string
	err  error
	wait bool

	mu  sync.Mutex
	got [][]quote.Snapshot
}

func (r *recordingSink) Name() string { return r.name }

func (r *recordingSink) Publish(ctx context.Context, snaps []quote.Snapshot) error {
	if r.wait {
		<-ctx.Done()
		return ctx.Err()
	}
	r.mu.Lock()
	r.got = append(r.got, snaps)
	r.mu.Unlock()
	return r.err
}

// go test -v --run TestFanoutPublish
func TestFanoutPublish(t *testing.T) {
	m := metrics.New()
	ok := &recordingSink{name: "ok"}
	failing := &recordingSink{name: "failing", err: errors.New("boom")}
	slow := &recordingSink{name: "slow", wait: true}

	f := NewFanout(20*time.Millisecond, zap.NewNop(), m, ok, failing)
	f.Add(slow)
	assert.Equal(t, 3, f.Len())

	batch := []quote.Snapshot{{Symbol: "NSE:SBIN-EQ", Mode: quote.ModeLive}}

	start := time.Now()
	f.Publish(context.Background(), batch)
	assert.Less(t, time.Since(start), time.Second, "slow sink is cut off by the timeout")

	assert.Equal(t, [][]quote.Snapshot{batch}, ok.got)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SinkErrors.WithLabelValues("failing")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SinkErrors.WithLabelValues("slow")))
}

// go test -v --run TestFanoutEmpty
func TestFanoutEmpty(t *testing.T) {
	var nilFanout *Fanout
	assert.NotPanics(t, func() {
		nilFanout.Publish(context.Background(), []quote.Snapshot{{Symbol: "X"}})
	})

	s := &recordingSink{name: "ok"}
	f := NewFanout(time.Second, zap.NewNop(), nil, s)
	f.Publish(context.Background(), nil)
	assert.Empty(t, s.got)
}
