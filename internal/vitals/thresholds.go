package vitals

import "math"

// Tier buckets a metric against its thresholds.
type Tier string

const (
	TierGood    Tier = "good"
	TierWarn    Tier = "warn"
	TierFail    Tier = "fail"
	TierUnknown Tier = "unknown"
)

// Threshold holds the good/poor cutoffs for one metric. Values at or below
// Good are good, values at or below Poor still count as warn, and only
// values strictly above Poor fail.
type Threshold struct {
	Good float64
	Poor float64
}

// Core Web Vitals cutoffs. LCP, INP and FCP are milliseconds, CLS is a
// unitless fraction. FCP is displayed but does not contribute to pass/fail
// scoring.
var (
	ThresholdLCP = Threshold{Good: 2500, Poor: 4000}
	ThresholdCLS = Threshold{Good: 0.1, Poor: 0.25}
	ThresholdINP = Threshold{Good: 200, Poor: 400}
	ThresholdFCP = Threshold{Good: 1800, Poor: 3000}
)

// TierOf buckets a raw value.
func (t Threshold) TierOf(v float64) Tier {
	switch {
	case v <= t.Good:
		return TierGood
	case v <= t.Poor:
		return TierWarn
	default:
		return TierFail
	}
}

// Tier buckets a normalized metric, mapping undefined metrics to
// TierUnknown.
func (t Threshold) Tier(m Metric) Tier {
	if m.NumericValue == nil {
		return TierUnknown
	}
	return t.TierOf(*m.NumericValue)
}

// ScoreTier buckets a 0-100 score using the Lighthouse bands: 90 and above
// is good, 50 and above needs work, below 50 fails.
func ScoreTier(score *int) Tier {
	if score == nil {
		return TierUnknown
	}
	switch {
	case *score >= 90:
		return TierGood
	case *score >= 50:
		return TierWarn
	default:
		return TierFail
	}
}

// Label returns the reader-facing name for a tier.
func (t Tier) Label() string {
	switch t {
	case TierGood:
		return "Good"
	case TierWarn:
		return "Needs Improvement"
	case TierFail:
		return "Poor"
	default:
		return Placeholder
	}
}

// Hex returns the tier's color as a CSS hex string.
func (t Tier) Hex() string {
	switch t {
	case TierGood:
		return "#0cce6b"
	case TierWarn:
		return "#ffa400"
	case TierFail:
		return "#ff4e42"
	default:
		return "#9e9e9e"
	}
}

// RGB returns the tier's color as 8-bit channels, for renderers that cannot
// take a hex string.
func (t Tier) RGB() (r, g, b int) {
	switch t {
	case TierGood:
		return 12, 206, 107
	case TierWarn:
		return 255, 164, 0
	case TierFail:
		return 255, 78, 66
	default:
		return 158, 158, 158
	}
}

// RoundScore converts a float score to the integer scale used everywhere
// downstream.
func RoundScore(v float64) int {
	return int(math.Round(v))
}
