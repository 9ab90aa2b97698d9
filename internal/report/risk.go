package report

import (
	"github.com/sitemetrics/perfhub/internal/payload"
	"github.com/sitemetrics/perfhub/internal/vitals"
)

// RiskBanner returns the names of the vitals that fail on any device, in
// the fixed LCP, CLS, INP order. FCP is displayed but never scored, so it
// cannot appear here. Only failing tiers count: warn is a nudge, not a
// banner.
func RiskBanner(devices []payload.LabeledDevice) []string {
	checks := []struct {
		name  string
		th    vitals.Threshold
		value func(*vitals.DeviceMetrics) vitals.Metric
	}{
		{"LCP", vitals.ThresholdLCP, func(d *vitals.DeviceMetrics) vitals.Metric { return d.LCP }},
		{"CLS", vitals.ThresholdCLS, func(d *vitals.DeviceMetrics) vitals.Metric { return d.CLS }},
		{"INP", vitals.ThresholdINP, func(d *vitals.DeviceMetrics) vitals.Metric { return d.INP }},
	}

	var out []string
	for _, c := range checks {
		for _, dev := range devices {
			if dev.Metrics == nil {
				continue
			}
			if c.th.Tier(c.value(dev.Metrics)) == vitals.TierFail {
				out = append(out, c.name)
				break
			}
		}
	}
	return out
}
