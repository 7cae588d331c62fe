package quote

import (
	"time"

	"github.com/shopspring/decimal"
)

// Delta is the classifier's verdict for one observation.
type Delta struct {
	Quantity   int64
	BuyVolume  int64
	SellVolume int64
}

// Classify computes the traded quantity since prev and attributes it to the
// buy or sell side. The returned PrevState must be stored by the caller no
// matter what the delta was.
//
// Attribution uses the order book first: a trade at or through the ask is a
// buy, at or through the bid a sell. When depth is missing or the price sits
// inside the spread, the direction of the price move since prev decides, and
// an unchanged price leaves the quantity unattributed.
func Classify(raw RawObservation, prev PrevState) (Delta, PrevState) {
	next := PrevState{
		LastVolume: raw.CumulativeVolume,
		LastPrice:  raw.LastPrice,
		Known:      true,
	}

	var d Delta
	if prev.Known && raw.CumulativeVolume > prev.LastVolume {
		d.Quantity = raw.CumulativeVolume - prev.LastVolume
	}
	if d.Quantity == 0 {
		return d, next
	}

	switch attribute(raw, prev) {
	case sideBuy:
		d.BuyVolume = d.Quantity
	case sideSell:
		d.SellVolume = d.Quantity
	}
	return d, next
}

type side int

const (
	sideNone side = iota
	sideBuy
	sideSell
)

func attribute(raw RawObservation, prev PrevState) side {
	ltp := decimal.NewFromFloat(raw.LastPrice)

	if raw.BestBid != nil && raw.BestAsk != nil {
		switch {
		case ltp.GreaterThanOrEqual(decimal.NewFromFloat(*raw.BestAsk)):
			return sideBuy
		case ltp.LessThanOrEqual(decimal.NewFromFloat(*raw.BestBid)):
			return sideSell
		}
	}

	switch ltp.Cmp(decimal.NewFromFloat(prev.LastPrice)) {
	case 1:
		return sideBuy
	case -1:
		return sideSell
	}
	return sideNone
}

// NewSnapshot assembles the snapshot for an observation and its delta.
func NewSnapshot(symbol string, ts time.Time, raw RawObservation, d Delta, mode Mode) Snapshot {
	return Snapshot{
		Timestamp:        ts,
		Symbol:           symbol,
		CumulativeVolume: raw.CumulativeVolume,
		Quantity:         d.Quantity,
		LTP:              raw.LastPrice,
		BuyVolume:        d.BuyVolume,
		SellVolume:       d.SellVolume,
		Mode:             mode,
	}
}
