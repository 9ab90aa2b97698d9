// Package payload turns raw analyzer responses into typed report payloads.
// Classification happens once, at the boundary: the raw JSON object is
// inspected, assigned a Kind, and parsed into exactly one typed variant so
// that renderers never probe arbitrary nested shapes themselves.
package payload

import (
	"github.com/rotisserie/eris"

	"github.com/sitemetrics/perfhub/internal/vitals"
)

// Kind names the report template a payload belongs to.
type Kind string

const (
	KindQuick Kind = "quick"
	KindCWV   Kind = "cwv"
	KindFull  Kind = "full"
)

// AnalyzerKey returns the stable analyzer identifier used in report ids,
// export filenames and backend requests.
func (k Kind) AnalyzerKey() string {
	switch k {
	case KindFull:
		return "performance"
	case KindCWV:
		return "core-web-vitals"
	default:
		return "speed-snapshot"
	}
}

// Title returns the reader-facing report name.
func (k Kind) Title() string {
	switch k {
	case KindFull:
		return "Full Performance Analysis"
	case KindCWV:
		return "Core Web Vitals Report"
	default:
		return "Quick Speed Snapshot"
	}
}

// ParseKind reads a kind from user input, accepting both the short mode
// names and the analyzer keys.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "quick", "snapshot", "speed-snapshot":
		return KindQuick, nil
	case "cwv", "vitals", "core-web-vitals":
		return KindCWV, nil
	case "full", "lighthouse", "performance":
		return KindFull, nil
	default:
		return "", eris.Errorf("payload: unknown report mode %q (want quick, cwv or full)", s)
	}
}

// Classify decides which report template a raw payload belongs to. First
// match wins; the order encodes the Full over CWV over Quick superset
// relationship, since a Full payload also carries CWV fields. The function
// is total: any input, including nil, yields a Kind.
//
// The performanceScore heuristic in the Full branch is known to be
// imperfect for partial Lighthouse payloads; its order relative to the CWV
// checks is load-bearing for stored payloads and must not be reordered.
func Classify(raw map[string]any) Kind {
	root := effectiveRoot(raw)
	desktop, _ := root["desktop"].(map[string]any)
	mobile, _ := root["mobile"].(map[string]any)

	// Full: explicit lighthouse object, category scores on every device
	// present, or a legacy orphan performanceScore.
	if _, ok := root["lighthouse"].(map[string]any); ok {
		return KindFull
	}
	if devicesCarryCategoryScores(desktop, mobile) {
		return KindFull
	}
	if orphanPerformanceScore(desktop) || orphanPerformanceScore(mobile) {
		return KindFull
	}

	// CWV: a coreWebVitals container on a device, or vitals fields at the
	// top level.
	if hasMapKey(desktop, "coreWebVitals") || hasMapKey(mobile, "coreWebVitals") {
		return KindCWV
	}
	for _, k := range []string{"cwv", "lcp", "cls", "inp"} {
		if _, ok := root[k]; ok {
			return KindCWV
		}
	}

	// Quick: a summary object of any shape.
	if _, ok := root["summary"].(map[string]any); ok {
		return KindQuick
	}

	// Devices without recognizable fields still render best as CWV.
	if desktop != nil || mobile != nil {
		return KindCWV
	}
	return KindQuick
}

// effectiveRoot unwraps the nested results envelope some backend revisions
// put around the payload.
func effectiveRoot(raw map[string]any) map[string]any {
	if raw == nil {
		return map[string]any{}
	}
	if m, ok := raw["results"].(map[string]any); ok {
		return m
	}
	return raw
}

// devicesCarryCategoryScores reports whether at least one device sub-object
// exists and every one that does carries an unambiguous Lighthouse category
// score. A flat performanceScore alone does not count: legacy CWV payloads
// carried one too, and treating it as a Lighthouse signal here would break
// the classification precedence.
func devicesCarryCategoryScores(devices ...map[string]any) bool {
	seen := false
	for _, d := range devices {
		if d == nil {
			continue
		}
		seen = true
		if !hasCategoryScore(d) {
			return false
		}
	}
	return seen
}

func hasCategoryScore(device map[string]any) bool {
	if lh, ok := device["lighthouse"].(map[string]any); ok {
		for _, k := range []string{"performance", "accessibility", "bestPractices", "best-practices", "seo"} {
			if _, ok := vitals.ParseNumber(lh[k]); ok {
				return true
			}
		}
	}
	for _, k := range []string{"accessibilityScore", "bestPracticesScore", "seoScore"} {
		if _, ok := vitals.ParseNumber(device[k]); ok {
			return true
		}
	}
	return false
}

// orphanPerformanceScore detects the older Full payload shape that carried
// only a flat performanceScore: the score is present but no LCP travels
// with it under coreWebVitals.
func orphanPerformanceScore(device map[string]any) bool {
	if device == nil {
		return false
	}
	if _, ok := vitals.ParseNumber(device["performanceScore"]); !ok {
		return false
	}
	if cwv, ok := device["coreWebVitals"].(map[string]any); ok {
		for _, k := range []string{"lcp", "lcpMs"} {
			if _, ok := cwv[k]; ok {
				return false
			}
		}
	}
	return true
}

func hasMapKey(m map[string]any, key string) bool {
	if m == nil {
		return false
	}
	_, ok := m[key].(map[string]any)
	return ok
}
