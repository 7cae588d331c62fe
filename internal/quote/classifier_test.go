package quote

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func f64(v float64) *float64 { return &v }

// go test -v --run TestClassifyVolumeSequence
func TestClassifyVolumeSequence(t *testing.T) {
	volumes := []int64{1000, 1000, 1250, 1400, 1400, 2000}
	want := []int64{0, 0, 250, 150, 0, 600}

	var prev PrevState
	for i, v := range volumes {
		d, next := Classify(RawObservation{LastPrice: 100, CumulativeVolume: v}, prev)
		assert.Equalf(t, want[i], d.Quantity, "observation %d", i)
		prev = next
	}
}

// go test -v --run TestClassifyClampsReset
func TestClassifyClampsReset(t *testing.T) {
	prev := PrevState{LastVolume: 5000, LastPrice: 10, Known: true}

	d, next := Classify(RawObservation{LastPrice: 11, CumulativeVolume: 20}, prev)

	assert.Equal(t, Delta{}, d)
	assert.Equal(t, PrevState{LastVolume: 20, LastPrice: 11, Known: true}, next,
		"prev state must follow the feed even when the delta is clamped")

	// The next increase is measured from the reset value, not the old peak.
	d, _ = Classify(RawObservation{LastPrice: 12, CumulativeVolume: 70}, next)
	assert.Equal(t, int64(50), d.Quantity)
}

// go test -v --run TestClassifyScenarios
func TestClassifyScenarios(t *testing.T) {
	testCases := []struct {
		desc string
		raw  RawObservation
		prev PrevState
		want Delta
	}{
		{
			desc: "first observation is never a trade",
			raw:  RawObservation{LastPrice: 50, CumulativeVolume: 500},
			prev: PrevState{},
			want: Delta{},
		},
		{
			desc: "trade at the ask is a buy",
			raw:  RawObservation{LastPrice: 101, CumulativeVolume: 1300, BestBid: f64(100.5), BestAsk: f64(101)},
			prev: PrevState{LastVolume: 1000, LastPrice: 100, Known: true},
			want: Delta{Quantity: 300, BuyVolume: 300},
		},
		{
			desc: "trade at the bid is a sell even on an uptick",
			raw:  RawObservation{LastPrice: 100.5, CumulativeVolume: 1100, BestBid: f64(100.5), BestAsk: f64(101)},
			prev: PrevState{LastVolume: 1000, LastPrice: 100, Known: true},
			want: Delta{Quantity: 100, SellVolume: 100},
		},
		{
			desc: "inside the spread falls back to price direction",
			raw:  RawObservation{LastPrice: 100.7, CumulativeVolume: 1100, BestBid: f64(100.5), BestAsk: f64(101)},
			prev: PrevState{LastVolume: 1000, LastPrice: 100.9, Known: true},
			want: Delta{Quantity: 100, SellVolume: 100},
		},
		{
			desc: "uptick without depth is a buy",
			raw:  RawObservation{LastPrice: 20.05, CumulativeVolume: 40},
			prev: PrevState{LastVolume: 10, LastPrice: 20, Known: true},
			want: Delta{Quantity: 30, BuyVolume: 30},
		},
		{
			desc: "downtick without depth is a sell",
			raw:  RawObservation{LastPrice: 19.95, CumulativeVolume: 40},
			prev: PrevState{LastVolume: 10, LastPrice: 20, Known: true},
			want: Delta{Quantity: 30, SellVolume: 30},
		},
		{
			desc: "unchanged price stays unattributed",
			raw:  RawObservation{LastPrice: 20, CumulativeVolume: 40},
			prev: PrevState{LastVolume: 10, LastPrice: 20, Known: true},
			want: Delta{Quantity: 30},
		},
		{
			desc: "one-sided depth is ignored",
			raw:  RawObservation{LastPrice: 20, CumulativeVolume: 40, BestAsk: f64(19)},
			prev: PrevState{LastVolume: 10, LastPrice: 20, Known: true},
			want: Delta{Quantity: 30},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			got, next := Classify(tc.raw, tc.prev)
			assert.Equal(t, tc.want, got)
			assert.LessOrEqual(t, got.BuyVolume+got.SellVolume, got.Quantity)
			assert.Equal(t, tc.raw.CumulativeVolume, next.LastVolume)
			assert.Equal(t, tc.raw.LastPrice, next.LastPrice)
			assert.True(t, next.Known)
		})
	}
}

// go test -v --run TestSnapshotJSON
func TestSnapshotJSON(t *testing.T) {
	loc := time.FixedZone("IST", 5*3600+1800)
	snap := Snapshot{
		Timestamp:        time.Date(2026, 3, 2, 10, 15, 4, 0, loc),
		Symbol:           "NSE:SBIN-EQ",
		CumulativeVolume: 1300,
		Quantity:         300,
		LTP:              101,
		BuyVolume:        300,
		Mode:             ModeLive,
	}

	b, err := snap.MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"Timestamp": "2026-03-02 10:15:04",
		"Symbol": "NSE:SBIN-EQ",
		"CumulativeVolume": 1300,
		"Quantity": 300,
		"LTP": 101,
		"BuyVolume": 300,
		"SellVolume": 0,
		"Mode": "live"
	}`, string(b))
}

// go test -v --run TestIsFreshBoundary
func TestIsFreshBoundary(t *testing.T) {
	captured := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	entry := CacheEntry{CapturedAt: captured}
	window := 5 * time.Second

	assert.True(t, entry.IsFresh(captured, window))
	assert.True(t, entry.IsFresh(captured.Add(window-time.Nanosecond), window))
	assert.False(t, entry.IsFresh(captured.Add(window), window))
	assert.False(t, entry.IsFresh(captured.Add(time.Minute), window))
}

// go test -v --run TestDummyObservation
func TestDummyObservation(t *testing.T) {
	g := NewDummyGenerator(DummyRange{MinPrice: 100, MaxPrice: 200, MinVolume: 1000, MaxVolume: 5000}, 42)

	known := PrevState{LastVolume: 777, LastPrice: 12.5, Known: true}
	assert.Equal(t, RawObservation{LastPrice: 12.5, CumulativeVolume: 777}, g.Observation(known))

	for i := 0; i < 100; i++ {
		obs := g.Observation(PrevState{})
		require.GreaterOrEqual(t, obs.LastPrice, 100.0)
		require.LessOrEqual(t, obs.LastPrice, 200.0)
		require.GreaterOrEqual(t, obs.CumulativeVolume, int64(1000))
		require.LessOrEqual(t, obs.CumulativeVolume, int64(5000))
		require.Nil(t, obs.BestBid)
	}
}
