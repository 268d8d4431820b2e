package domain

import "time"

// Interval identifies one of the fixed lookback windows tracked per token.
type Interval int

const (
	Interval1h Interval = iota
	Interval6h
	Interval24h
	Interval7d
	Interval30d

	IntervalCount = 5
)

var intervalDurations = [IntervalCount]time.Duration{
	Interval1h:  time.Hour,
	Interval6h:  6 * time.Hour,
	Interval24h: 24 * time.Hour,
	Interval7d:  7 * 24 * time.Hour,
	Interval30d: 30 * 24 * time.Hour,
}

var intervalLabels = [IntervalCount]string{
	Interval1h:  "1h",
	Interval6h:  "6h",
	Interval24h: "24h",
	Interval7d:  "7d",
	Interval30d: "30d",
}

// Intervals lists every tracked interval in ascending order.
var Intervals = [IntervalCount]Interval{Interval1h, Interval6h, Interval24h, Interval7d, Interval30d}

// Duration returns the fixed length of the interval.
func (i Interval) Duration() time.Duration { return intervalDurations[i] }

// String returns the short label, e.g. "24h".
func (i Interval) String() string { return intervalLabels[i] }

// PricePoint is the comparison baseline of one interval: the last captured
// USD floor price, when it was captured, and the percent change from it to
// the most recent floor price.
type PricePoint struct {
	Value      float64
	CapturedAt time.Time
	Change     float64
}

// Initialized reports whether a baseline has been captured.
func (p PricePoint) Initialized() bool {
	return p.Value != 0 && !p.CapturedAt.IsZero()
}
