package pricing

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/alanyoungcy/stx20sync/internal/domain"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func TestTrackInitializesEmptyWindows(t *testing.T) {
	var history [domain.IntervalCount]domain.PricePoint

	got := Track(history, 2.5, t0)
	for _, iv := range domain.Intervals {
		assert.Equal(t, 2.5, got[iv].Value, iv.String())
		assert.Equal(t, t0, got[iv].CapturedAt, iv.String())
		assert.Equal(t, 0.0, got[iv].Change, iv.String())
	}
}

func TestTrackIgnoresZeroPriceWhileUninitialized(t *testing.T) {
	var history [domain.IntervalCount]domain.PricePoint

	got := Track(history, 0, t0)
	for _, iv := range domain.Intervals {
		assert.False(t, got[iv].Initialized(), iv.String())
	}
}

func TestTrackTreatsZeroBaselineAsUninitialized(t *testing.T) {
	var history [domain.IntervalCount]domain.PricePoint
	history[domain.Interval1h] = domain.PricePoint{Value: 0, CapturedAt: t0}

	got := Track(history, 4, t0.Add(time.Minute))
	assert.Equal(t, 4.0, got[domain.Interval1h].Value)
	assert.Equal(t, t0.Add(time.Minute), got[domain.Interval1h].CapturedAt)
	assert.Equal(t, 0.0, got[domain.Interval1h].Change)
}

func TestTrackKeepsBaselineWithinInterval(t *testing.T) {
	var history [domain.IntervalCount]domain.PricePoint
	for _, iv := range domain.Intervals {
		history[iv] = domain.PricePoint{Value: 2, CapturedAt: t0}
	}

	now := t0.Add(30 * time.Minute)
	got := Track(history, 3, now)
	for _, iv := range domain.Intervals {
		assert.Equal(t, 2.0, got[iv].Value, iv.String())
		assert.Equal(t, t0, got[iv].CapturedAt, iv.String())
		assert.InDelta(t, 50.0, got[iv].Change, 1e-9, iv.String())
	}
}

func TestTrackRefreshesOnlyElapsedIntervals(t *testing.T) {
	var history [domain.IntervalCount]domain.PricePoint
	for _, iv := range domain.Intervals {
		history[iv] = domain.PricePoint{Value: 4, CapturedAt: t0}
	}

	now := t0.Add(7 * time.Hour)
	got := Track(history, 3, now)

	for _, iv := range []domain.Interval{domain.Interval1h, domain.Interval6h} {
		assert.Equal(t, 3.0, got[iv].Value, iv.String())
		assert.Equal(t, now, got[iv].CapturedAt, iv.String())
		assert.InDelta(t, -25.0, got[iv].Change, 1e-9, iv.String())
	}
	for _, iv := range []domain.Interval{domain.Interval24h, domain.Interval7d, domain.Interval30d} {
		assert.Equal(t, 4.0, got[iv].Value, iv.String())
		assert.Equal(t, t0, got[iv].CapturedAt, iv.String())
		assert.InDelta(t, -25.0, got[iv].Change, 1e-9, iv.String())
	}
}

func TestTrackExactIntervalBoundaryDoesNotRefresh(t *testing.T) {
	var history [domain.IntervalCount]domain.PricePoint
	history[domain.Interval1h] = domain.PricePoint{Value: 1, CapturedAt: t0}

	got := Track(history, 2, t0.Add(time.Hour))
	assert.Equal(t, 1.0, got[domain.Interval1h].Value)
	assert.InDelta(t, 100.0, got[domain.Interval1h].Change, 1e-9)
}

func TestIntervalDurations(t *testing.T) {
	assert.Equal(t, time.Hour, domain.Interval1h.Duration())
	assert.Equal(t, 6*time.Hour, domain.Interval6h.Duration())
	assert.Equal(t, 24*time.Hour, domain.Interval24h.Duration())
	assert.Equal(t, 168*time.Hour, domain.Interval7d.Duration())
	assert.Equal(t, 720*time.Hour, domain.Interval30d.Duration())
	assert.Equal(t, "30d", domain.Interval30d.String())
}

func TestTrackIgnoresNonFinitePrice(t *testing.T) {
	var empty [domain.IntervalCount]domain.PricePoint
	assert.Equal(t, empty, Track(empty, math.NaN(), t0))
	assert.Equal(t, empty, Track(empty, math.Inf(1), t0))

	seeded := Track(empty, 2, t0)
	got := Track(seeded, math.NaN(), t0.Add(48*time.Hour))
	assert.Equal(t, seeded, got)
	for _, iv := range domain.Intervals {
		assert.False(t, math.IsNaN(got[iv].Change), iv.String())
	}
}
