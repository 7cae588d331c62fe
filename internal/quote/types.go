package quote

import (
	"encoding/json"
	"time"
)

// TimestampLayout is the wire format of Snapshot.Timestamp.
const TimestampLayout = "2006-01-02 15:04:05"

// Mode marks where a snapshot's values came from.
type Mode string

const (
	ModeLive  Mode = "live"  // observed on the quote feed
	ModeDummy Mode = "dummy" // synthesized locally while the feed was unavailable
)

// RawObservation is a single quote as returned by the feed for one symbol.
// It is never retained; the classifier turns it into a Snapshot.
type RawObservation struct {
	LastPrice        float64  // Last traded price
	CumulativeVolume int64    // Volume traded since session start
	BestBid          *float64 // Top-of-book bid, nil when the feed carried no depth
	BestAsk          *float64 // Top-of-book ask, nil when the feed carried no depth
}

// PrevState is the classifier's memory for one symbol.
type PrevState struct {
	LastVolume int64
	LastPrice  float64
	Known      bool // false until the first observation
}

// Snapshot is the latest traded state of a symbol. It is a value: entries are
// replaced wholesale, never mutated in place.
type Snapshot struct {
	Timestamp        time.Time
	Symbol           string
	CumulativeVolume int64
	Quantity         int64 // Traded quantity since the previous observation
	LTP              float64
	BuyVolume        int64
	SellVolume       int64
	Mode             Mode
}

type snapshotJSON struct {
	Timestamp        string  `json:"Timestamp"`
	Symbol           string  `json:"Symbol"`
	CumulativeVolume int64   `json:"CumulativeVolume"`
	Quantity         int64   `json:"Quantity"`
	LTP              float64 `json:"LTP"`
	BuyVolume        int64   `json:"BuyVolume"`
	SellVolume       int64   `json:"SellVolume"`
	Mode             Mode    `json:"Mode"`
}

// MarshalJSON renders the snapshot in the public wire shape. The timestamp is
// formatted in the location it carries.
func (s Snapshot) MarshalJSON() ([]byte, error) {
	return json.Marshal(snapshotJSON{
		Timestamp:        s.Timestamp.Format(TimestampLayout),
		Symbol:           s.Symbol,
		CumulativeVolume: s.CumulativeVolume,
		Quantity:         s.Quantity,
		LTP:              s.LTP,
		BuyVolume:        s.BuyVolume,
		SellVolume:       s.SellVolume,
		Mode:             s.Mode,
	})
}

// UnmarshalJSON parses the wire shape back. The wire timestamp carries no
// zone, so it is read as UTC; use DecodeSnapshot to read it in the market
// location it was written in.
func (s *Snapshot) UnmarshalJSON(b []byte) error {
	snap, err := DecodeSnapshot(b, time.UTC)
	if err != nil {
		return err
	}
	*s = snap
	return nil
}

// DecodeSnapshot parses the wire shape, reading the timestamp in loc.
func DecodeSnapshot(b []byte, loc *time.Location) (Snapshot, error) {
	var raw snapshotJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return Snapshot{}, err
	}
	ts, err := time.ParseInLocation(TimestampLayout, raw.Timestamp, loc)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{
		Timestamp:        ts,
		Symbol:           raw.Symbol,
		CumulativeVolume: raw.CumulativeVolume,
		Quantity:         raw.Quantity,
		LTP:              raw.LTP,
		BuyVolume:        raw.BuyVolume,
		SellVolume:       raw.SellVolume,
		Mode:             raw.Mode,
	}, nil
}

// CacheEntry pairs a snapshot with the time it was written to the cache.
type CacheEntry struct {
	Snapshot   Snapshot
	CapturedAt time.Time
}

// IsFresh reports whether the entry is younger than window at now.
func (e CacheEntry) IsFresh(now time.Time, window time.Duration) bool {
	return IsFresh(e, now, window)
}

// IsFresh reports whether now lies in [entry.CapturedAt, entry.CapturedAt+window).
func IsFresh(entry CacheEntry, now time.Time, window time.Duration) bool {
	return now.Sub(entry.CapturedAt) < window
}
