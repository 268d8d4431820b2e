package pricing

import (
	"math"
	"time"

	"github.com/alanyoungcy/stx20sync/internal/domain"
)

// Track advances every interval's baseline for a token whose current USD
// floor price is current, observed at now.
//
// An uninitialized interval captures current as its baseline with a zero
// change. An initialized interval always reports the change against its
// baseline, and moves the baseline to current only once more than the
// interval's duration has passed since it was captured. A NaN or infinite
// current price leaves history untouched.
func Track(history [domain.IntervalCount]domain.PricePoint, current float64, now time.Time) [domain.IntervalCount]domain.PricePoint {
	if math.IsNaN(current) || math.IsInf(current, 0) {
		return history
	}
	for _, iv := range domain.Intervals {
		history[iv] = step(history[iv], iv.Duration(), current, now)
	}
	return history
}

func step(p domain.PricePoint, window time.Duration, current float64, now time.Time) domain.PricePoint {
	if !p.Initialized() {
		if current <= 0 {
			return p
		}
		return domain.PricePoint{Value: current, CapturedAt: now, Change: 0}
	}

	p.Change = (current - p.Value) / p.Value * 100
	if now.Sub(p.CapturedAt) > window && current > 0 {
		p.Value = current
		p.CapturedAt = now
	}
	return p
}
