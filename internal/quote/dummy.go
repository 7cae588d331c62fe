package quote

import (
	"math/rand"
	"sync"

	"github.com/shopspring/decimal"
)

// DummyRange bounds the values synthesized for a symbol that was never observed.
type DummyRange struct {
	MinPrice  float64
	MaxPrice  float64
	MinVolume int64
	MaxVolume int64
}

// DummyGenerator produces synthetic observations for the fallback path.
type DummyGenerator struct {
	mu  sync.Mutex
	rng *rand.Rand
	r   DummyRange
}

func NewDummyGenerator(r DummyRange, seed int64) *DummyGenerator {
	if r.MaxPrice < r.MinPrice {
		r.MinPrice, r.MaxPrice = r.MaxPrice, r.MinPrice
	}
	if r.MaxVolume < r.MinVolume {
		r.MinVolume, r.MaxVolume = r.MaxVolume, r.MinVolume
	}
	return &DummyGenerator{
		rng: rand.New(rand.NewSource(seed)),
		r:   r,
	}
}

// Observation returns the last known values when prev is known, otherwise a
// random observation inside the configured range. Prices are rounded to paise.
func (g *DummyGenerator) Observation(prev PrevState) RawObservation {
	if prev.Known {
		return RawObservation{
			LastPrice:        prev.LastPrice,
			CumulativeVolume: prev.LastVolume,
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	price := g.r.MinPrice + g.rng.Float64()*(g.r.MaxPrice-g.r.MinPrice)
	volume := g.r.MinVolume
	if span := g.r.MaxVolume - g.r.MinVolume; span > 0 {
		volume += g.rng.Int63n(span + 1)
	}

	return RawObservation{
		LastPrice:        decimal.NewFromFloat(price).Round(2).InexactFloat64(),
		CumulativeVolume: volume,
	}
}
