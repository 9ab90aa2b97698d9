package vitals

import "math"

// CategoryScores carries the Lighthouse category scores a payload exposed
// for one device. A field is nil when the payload had no usable value for
// that category. Out-of-range values are rejected, not clamped: a score the
// backend never produced must not be invented here.
type CategoryScores struct {
	Performance   *int `json:"performance"`
	Accessibility *int `json:"accessibility"`
	BestPractices *int `json:"bestPractices"`
	SEO           *int `json:"seo"`
}

// Empty reports whether no category carried a score.
func (c *CategoryScores) Empty() bool {
	return c == nil || (c.Performance == nil && c.Accessibility == nil && c.BestPractices == nil && c.SEO == nil)
}

// DeviceMetrics is the normalized view of one device sub-object (desktop or
// mobile) of an analyzer payload.
type DeviceMetrics struct {
	LCP        Metric          `json:"lcp"`
	CLS        Metric          `json:"cls"`
	INP        Metric          `json:"inp"`
	FCP        Metric          `json:"fcp"`
	Lighthouse *CategoryScores `json:"lighthouse,omitempty"`
}

// Key spellings per metric, newest first. Every spelling has shipped in some
// backend revision; removing one breaks replay of stored payloads.
var (
	lcpKeys = []string{"lcpMs", "lcp", "largestContentfulPaint"}
	clsKeys = []string{"clsNum", "cls", "cumulativeLayoutShift"}
	inpKeys = []string{"inpMs", "inp", "interactionToNextPaint"}
	fidKeys = []string{"fidMs", "fid", "firstInputDelay"}
	tbtKeys = []string{"tbtMs", "tbt", "totalBlockingTime"}
	fcpKeys = []string{"fcpMs", "fcp", "firstContentfulPaint"}
)

// NormalizeDevice extracts the canonical metrics from one device sub-object.
// Each metric's candidates are gathered from the coreWebVitals container
// first (including its short cwv spelling), then the flat object, then
// additionalMetrics, trying newer key spellings before older ones within
// each container. INP falls back to FID and then TBT when no INP spelling
// yields a value.
func NormalizeDevice(raw map[string]any) DeviceMetrics {
	if raw == nil {
		return DeviceMetrics{}
	}
	cwv, _ := raw["coreWebVitals"].(map[string]any)
	cwvShort, _ := raw["cwv"].(map[string]any)
	extra, _ := raw["additionalMetrics"].(map[string]any)

	pick := func(names []string) []any {
		var cands []any
		for _, m := range []map[string]any{cwv, cwvShort, raw, extra} {
			if m == nil {
				continue
			}
			for _, n := range names {
				if v, ok := m[n]; ok {
					cands = append(cands, v)
				}
			}
		}
		return cands
	}

	interaction := pick(inpKeys)
	interaction = append(interaction, pick(fidKeys)...)
	interaction = append(interaction, pick(tbtKeys)...)

	return DeviceMetrics{
		LCP:        Normalize(UnitTiming, pick(lcpKeys)...),
		CLS:        Normalize(UnitShift, pick(clsKeys)...),
		INP:        Normalize(UnitTiming, interaction...),
		FCP:        Normalize(UnitTiming, pick(fcpKeys)...),
		Lighthouse: lighthouseScores(raw),
	}
}

func lighthouseScores(raw map[string]any) *CategoryScores {
	nested, _ := raw["lighthouse"].(map[string]any)

	gather := func(nestedKeys []string, flatKeys []string) []any {
		var cands []any
		for _, k := range nestedKeys {
			if nested == nil {
				break
			}
			if v, ok := nested[k]; ok {
				cands = append(cands, v)
			}
		}
		for _, k := range flatKeys {
			if v, ok := raw[k]; ok {
				cands = append(cands, v)
			}
		}
		return cands
	}

	cs := CategoryScores{
		Performance:   pickScore(gather([]string{"performance"}, []string{"performanceScore"})),
		Accessibility: pickScore(gather([]string{"accessibility"}, []string{"accessibilityScore"})),
		BestPractices: pickScore(gather([]string{"bestPractices", "best-practices"}, []string{"bestPracticesScore"})),
		SEO:           pickScore(gather([]string{"seo"}, []string{"seoScore"})),
	}
	if cs.Empty() {
		return nil
	}
	return &cs
}

// pickScore mirrors Normalize's first-success-wins walk for category scores.
// A candidate outside [0,100] is unusable rather than clamped.
func pickScore(cands []any) *int {
	for _, c := range cands {
		f, ok := ParseNumber(c)
		if !ok {
			continue
		}
		n := int(math.Round(f))
		if n < 0 || n > 100 {
			continue
		}
		return &n
	}
	return nil
}
