// Package vitals normalizes the heterogeneous metric shapes returned by the
// analyzer backends into a single canonical form. Backend payloads have
// drifted over time: the same logical value may arrive as a plain number, a
// "123ms" or "2.5s" string, a numeric string, or an object wrapping the value
// under a value or numericValue key. Normalization walks an ordered candidate
// list and takes the first value it can make sense of.
package vitals

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Placeholder is rendered wherever a metric could not be normalized. An
// unknown value must never surface as 0.
const Placeholder = "—"

// Unit selects the display convention for a metric family.
type Unit int

const (
	// UnitTiming values are milliseconds, shown as whole ms below one
	// second and as seconds with two decimals above.
	UnitTiming Unit = iota
	// UnitShift values are unitless layout-shift fractions, shown with
	// three decimals.
	UnitShift
	// UnitScore values are integer scores on a 0-100 scale.
	UnitScore
)

// Metric is the canonical form of one measured value. Both fields are nil
// when no candidate yielded a usable value; Display is never set without
// NumericValue.
type Metric struct {
	NumericValue *float64 `json:"numericValue"`
	Display      *string  `json:"display"`
}

// Defined reports whether a numeric value was recovered.
func (m Metric) Defined() bool { return m.NumericValue != nil }

// Text returns the display string, or the placeholder when the metric is
// undefined.
func (m Metric) Text() string {
	if m.Display != nil {
		return *m.Display
	}
	return Placeholder
}

// Value returns the numeric value, or def when the metric is undefined.
func (m Metric) Value(def float64) float64 {
	if m.NumericValue != nil {
		return *m.NumericValue
	}
	return def
}

// Normalize walks candidates in order and returns the first one that parses
// as a finite number. String candidates may carry unit suffixes ("450ms",
// "2.5s"; seconds are converted to milliseconds). Object candidates are
// probed for value and numericValue keys, and an explicit displayValue
// string on the winning object is carried through verbatim. When the winning
// candidate has no display of its own, one is synthesized from the numeric
// value using the unit convention.
func Normalize(unit Unit, candidates ...any) Metric {
	for _, c := range candidates {
		v, display, ok := parseCandidate(c)
		if !ok {
			continue
		}
		if display == "" {
			display = FormatValue(unit, v)
		}
		return Metric{NumericValue: &v, Display: &display}
	}
	return Metric{}
}

// FormatValue renders a numeric value per the unit convention.
func FormatValue(unit Unit, v float64) string {
	switch unit {
	case UnitShift:
		return strconv.FormatFloat(v, 'f', 3, 64)
	case UnitScore:
		return strconv.Itoa(int(math.Round(v)))
	default:
		if math.Abs(v) >= 1000 {
			return strconv.FormatFloat(v/1000, 'f', 2, 64) + "s"
		}
		return strconv.Itoa(int(math.Round(v))) + "ms"
	}
}

// ParseNumber exposes the permissive scalar parsing used for candidates, for
// callers that need a bare number rather than a Metric.
func ParseNumber(v any) (float64, bool) {
	f, _, ok := parseCandidate(v)
	return f, ok
}

func parseCandidate(c any) (float64, string, bool) {
	switch v := c.(type) {
	case nil:
		return 0, "", false
	case float64:
		return finite(v)
	case float32:
		return finite(float64(v))
	case int:
		return float64(v), "", true
	case int32:
		return float64(v), "", true
	case int64:
		return float64(v), "", true
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0, "", false
		}
		return finite(f)
	case string:
		return parseNumericString(v)
	case map[string]any:
		display, _ := v["displayValue"].(string)
		for _, key := range []string{"value", "numericValue"} {
			inner, ok := v[key]
			if !ok {
				continue
			}
			if f, d, ok := parseCandidate(inner); ok {
				if display == "" {
					display = d
				}
				return f, display, true
			}
		}
		return 0, "", false
	default:
		return 0, "", false
	}
}

func parseNumericString(s string) (float64, string, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, "", false
	}
	lower := strings.ToLower(s)
	switch {
	case strings.HasSuffix(lower, "ms"):
		f, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimSuffix(lower, "ms")), 64)
		if err != nil {
			return 0, "", false
		}
		return finite(f)
	case strings.HasSuffix(lower, "s"):
		f, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimSuffix(lower, "s")), 64)
		if err != nil {
			return 0, "", false
		}
		return finite(f * 1000)
	default:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, "", false
		}
		return finite(f)
	}
}

func finite(f float64) (float64, string, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, "", false
	}
	return f, "", true
}
