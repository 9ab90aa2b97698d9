// Package score aggregates normalized metrics into the overall numbers shown
// on report cards. Nothing here touches raw payloads: inputs are the typed
// forms produced by the payload package, outputs are nilable integers where
// nil means "unknown" and must never collapse into 0.
package score

import (
	"math"

	"github.com/sitemetrics/perfhub/internal/payload"
)

// Baselines above which a quick-scan counter starts drawing a penalty.
// Report builders use the same numbers to decide when a counter warrants a
// guidance hint.
const (
	ResponseBaselineMs = 600.0
	RequestBaseline    = 75.0
	WeightBaselineKB   = 1500.0
	BlockingBaseline   = 1.0
)

// Quick score heuristic tuning. The backend supplies no overall score for
// quick scans, so one is computed from the resource summary: start at 100,
// subtract capped penalties, floor at 10 once any requests were observed.
const (
	responsePenaltyStep = 50.0
	responsePenaltyCap  = 30.0

	requestPenaltyPer = 0.5
	requestPenaltyCap = 25.0

	weightPenaltyStep = 100.0
	weightPenaltyCap  = 25.0

	blockingPenaltyScale = 8.0
	blockingPenaltyCap   = 24.0

	highIssuePenalty = 8.0

	quickScoreFloor = 10
)

// Average returns the rounded mean of the defined inputs. One nil input
// passes the other through; two nil inputs stay nil. Zero is a legitimate
// poor score and is preserved as such.
func Average(a, b *int) *int {
	switch {
	case a == nil && b == nil:
		return nil
	case a == nil:
		v := *b
		return &v
	case b == nil:
		v := *a
		return &v
	default:
		v := int(math.Round((float64(*a) + float64(*b)) / 2))
		return &v
	}
}

// QuickScore computes the deterministic overall score for a quick scan.
// Returns nil when the summary carried no counters at all, so "nothing to
// score" stays distinguishable from "scored zero".
func QuickScore(r *payload.QuickReport) *int {
	if r == nil || r.Summary.Empty() {
		return nil
	}
	s := r.Summary

	total := 100.0
	if s.ServerResponseMs != nil && *s.ServerResponseMs > ResponseBaselineMs {
		total -= min((*s.ServerResponseMs-ResponseBaselineMs)/responsePenaltyStep, responsePenaltyCap)
	}
	if s.RenderBlockingCount != nil && *s.RenderBlockingCount > BlockingBaseline {
		total -= min(blockingPenaltyScale*math.Log2(*s.RenderBlockingCount), blockingPenaltyCap)
	}
	if s.TotalRequests != nil && *s.TotalRequests > RequestBaseline {
		total -= min((*s.TotalRequests-RequestBaseline)*requestPenaltyPer, requestPenaltyCap)
	}
	if s.PageWeightKB != nil && *s.PageWeightKB > WeightBaselineKB {
		total -= min((*s.PageWeightKB-WeightBaselineKB)/weightPenaltyStep, weightPenaltyCap)
	}
	for _, issue := range r.Issues {
		if issue.High() {
			total -= highIssuePenalty
		}
	}

	v := int(math.Round(total))
	if v > 100 {
		v = 100
	}
	if v < 0 {
		v = 0
	}
	if s.TotalRequests != nil && *s.TotalRequests > 0 && v < quickScoreFloor {
		v = quickScoreFloor
	}
	return &v
}
