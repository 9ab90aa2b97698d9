package payload

import (
	"sort"
	"strings"

	"github.com/sitemetrics/perfhub/internal/vitals"
)

// Payload is the tagged union produced by Parse. Exactly one variant is
// non-nil, selected by Kind.
type Payload struct {
	Kind  Kind          `json:"kind"`
	Quick *QuickReport  `json:"quick,omitempty"`
	CWV   *VitalsReport `json:"cwv,omitempty"`
	Full  *FullReport   `json:"full,omitempty"`
}

// QuickReport holds the resource summary and issue list of a quick scan.
type QuickReport struct {
	Summary Summary `json:"summary"`
	Issues  []Issue `json:"issues"`
}

// Summary carries the quick-scan resource counters. Fields are nil when the
// backend did not report them; absence and zero mean different things to the
// score heuristic.
type Summary struct {
	TotalRequests       *float64 `json:"totalRequests"`
	PageWeightKB        *float64 `json:"pageWeightKB"`
	RenderBlockingCount *float64 `json:"renderBlockingCount"`
	ServerResponseMs    *float64 `json:"serverResponseMs"`
}

// Empty reports whether no summary counter was present at all.
func (s Summary) Empty() bool {
	return s.TotalRequests == nil && s.PageWeightKB == nil &&
		s.RenderBlockingCount == nil && s.ServerResponseMs == nil
}

// Issue is one finding reported by the quick scan.
type Issue struct {
	Severity       string `json:"severity"`
	Title          string `json:"title"`
	Description    string `json:"description,omitempty"`
	Recommendation string `json:"recommendation,omitempty"`
}

// High reports whether the issue carries high severity.
func (i Issue) High() bool {
	return strings.EqualFold(strings.TrimSpace(i.Severity), "high")
}

// VitalsReport holds per-device Core Web Vitals. Desktop and Mobile are nil
// when the payload had no such sub-object; Page covers legacy payloads that
// report one unlabeled set of vitals at the top level.
type VitalsReport struct {
	Desktop *vitals.DeviceMetrics `json:"desktop,omitempty"`
	Mobile  *vitals.DeviceMetrics `json:"mobile,omitempty"`
	Page    *vitals.DeviceMetrics `json:"page,omitempty"`
}

// Devices returns the present device slots with their labels, in the fixed
// desktop, mobile, page order renderers rely on.
func (r *VitalsReport) Devices() []LabeledDevice {
	var out []LabeledDevice
	if r.Desktop != nil {
		out = append(out, LabeledDevice{Label: "Desktop", Metrics: r.Desktop})
	}
	if r.Mobile != nil {
		out = append(out, LabeledDevice{Label: "Mobile", Metrics: r.Mobile})
	}
	if r.Page != nil {
		out = append(out, LabeledDevice{Label: "Page", Metrics: r.Page})
	}
	return out
}

// LabeledDevice pairs normalized device metrics with their display label.
type LabeledDevice struct {
	Label   string
	Metrics *vitals.DeviceMetrics
}

// FullReport holds a full Lighthouse run: per-device metrics and category
// scores, a site-level score set for payloads that report only one, and the
// audit findings.
type FullReport struct {
	Desktop *vitals.DeviceMetrics  `json:"desktop,omitempty"`
	Mobile  *vitals.DeviceMetrics  `json:"mobile,omitempty"`
	Site    *vitals.CategoryScores `json:"site,omitempty"`
	Audits  []Audit                `json:"audits,omitempty"`
}

// Devices mirrors VitalsReport.Devices for the full report's device slots.
func (r *FullReport) Devices() []LabeledDevice {
	var out []LabeledDevice
	if r.Desktop != nil {
		out = append(out, LabeledDevice{Label: "Desktop", Metrics: r.Desktop})
	}
	if r.Mobile != nil {
		out = append(out, LabeledDevice{Label: "Mobile", Metrics: r.Mobile})
	}
	return out
}

// Audit is one Lighthouse audit finding. Score follows the Lighthouse 0-1
// convention and is nil for informational audits.
type Audit struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Display     string   `json:"display,omitempty"`
	Score       *float64 `json:"score,omitempty"`
}

// Tier buckets the audit score: informational audits are unknown, failing
// audits score below 0.5 and passing ones 0.9 or above.
func (a Audit) Tier() vitals.Tier {
	switch {
	case a.Score == nil:
		return vitals.TierUnknown
	case *a.Score >= 0.9:
		return vitals.TierGood
	case *a.Score >= 0.5:
		return vitals.TierWarn
	default:
		return vitals.TierFail
	}
}

// Parse classifies raw and extracts the matching typed variant. Like
// Classify it is total: malformed input produces an empty variant of the
// fallback kind, and missing fields stay nil for renderers to show
// placeholders.
func Parse(raw map[string]any) Payload {
	root := effectiveRoot(raw)
	kind := Classify(raw)
	switch kind {
	case KindFull:
		return Payload{Kind: kind, Full: parseFull(root)}
	case KindCWV:
		return Payload{Kind: kind, CWV: parseVitals(root)}
	default:
		return Payload{Kind: kind, Quick: parseQuick(root)}
	}
}

func parseQuick(root map[string]any) *QuickReport {
	r := &QuickReport{}
	if summary, ok := root["summary"].(map[string]any); ok {
		r.Summary = Summary{
			TotalRequests:       pickNumber(summary, "totalRequests", "requestCount", "requests"),
			PageWeightKB:        pickNumber(summary, "estimatedPageWeightKB", "pageWeightKB", "totalWeightKB"),
			RenderBlockingCount: pickCount(summary, "renderBlockingCount", "renderBlockingResources"),
			ServerResponseMs:    pickNumber(summary, "serverResponseTime", "serverResponseTimeMs", "ttfb"),
		}
	}
	if items, ok := root["issues"].([]any); ok {
		for _, item := range items {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			issue := Issue{
				Severity:       pickString(m, "severity", "level"),
				Title:          pickString(m, "title", "message", "issue"),
				Description:    pickString(m, "description", "details"),
				Recommendation: pickString(m, "recommendation", "suggestion", "fix"),
			}
			if issue.Title == "" && issue.Description == "" {
				continue
			}
			r.Issues = append(r.Issues, issue)
		}
	}
	return r
}

func parseVitals(root map[string]any) *VitalsReport {
	r := &VitalsReport{
		Desktop: deviceOf(root, "desktop"),
		Mobile:  deviceOf(root, "mobile"),
	}
	if r.Desktop == nil && r.Mobile == nil {
		page := vitals.NormalizeDevice(root)
		r.Page = &page
	}
	return r
}

func parseFull(root map[string]any) *FullReport {
	r := &FullReport{
		Desktop: deviceOf(root, "desktop"),
		Mobile:  deviceOf(root, "mobile"),
		Audits:  parseAudits(root),
	}
	if r.Desktop == nil && r.Mobile == nil {
		page := vitals.NormalizeDevice(root)
		if page.Lighthouse != nil {
			r.Site = page.Lighthouse
		}
	}
	return r
}

func deviceOf(root map[string]any, key string) *vitals.DeviceMetrics {
	m, ok := root[key].(map[string]any)
	if !ok {
		return nil
	}
	d := vitals.NormalizeDevice(m)
	return &d
}

// parseAudits reads audit findings from the locations backend revisions
// have used: a list under audits or opportunities, or the Lighthouse-native
// map keyed by audit id. Map form is sorted by id so output order is stable.
func parseAudits(root map[string]any) []Audit {
	sources := []any{root["audits"], root["opportunities"]}
	if lh, ok := root["lighthouse"].(map[string]any); ok {
		sources = append(sources, lh["audits"], lh["opportunities"])
	}

	var out []Audit
	for _, src := range sources {
		switch v := src.(type) {
		case []any:
			for _, item := range v {
				if m, ok := item.(map[string]any); ok {
					if a, ok := auditOf("", m); ok {
						out = append(out, a)
					}
				}
			}
		case map[string]any:
			ids := make([]string, 0, len(v))
			for id := range v {
				ids = append(ids, id)
			}
			sort.Strings(ids)
			for _, id := range ids {
				if m, ok := v[id].(map[string]any); ok {
					if a, ok := auditOf(id, m); ok {
						out = append(out, a)
					}
				}
			}
		}
	}
	return out
}

func auditOf(id string, m map[string]any) (Audit, bool) {
	a := Audit{
		ID:          pickString(m, "id", "key", "auditId"),
		Title:       pickString(m, "title", "name"),
		Description: pickString(m, "description"),
		Display:     pickString(m, "displayValue", "display"),
	}
	if a.ID == "" {
		a.ID = id
	}
	if v, ok := vitals.ParseNumber(m["score"]); ok && v >= 0 && v <= 1 {
		a.Score = &v
	}
	if a.ID == "" && a.Title == "" {
		return Audit{}, false
	}
	if a.Title == "" {
		a.Title = a.ID
	}
	return a, true
}

func pickNumber(m map[string]any, keys ...string) *float64 {
	for _, k := range keys {
		v, ok := m[k]
		if !ok {
			continue
		}
		if f, ok := vitals.ParseNumber(v); ok {
			return &f
		}
	}
	return nil
}

// pickCount is pickNumber plus list support: a key holding a list counts
// its elements, for payload revisions that ship the render-blocking
// resources themselves instead of a count.
func pickCount(m map[string]any, keys ...string) *float64 {
	for _, k := range keys {
		v, ok := m[k]
		if !ok {
			continue
		}
		if arr, ok := v.([]any); ok {
			n := float64(len(arr))
			return &n
		}
		if f, ok := vitals.ParseNumber(v); ok {
			return &f
		}
	}
	return nil
}

func pickString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok {
			s = strings.TrimSpace(s)
			if s != "" {
				return s
			}
		}
	}
	return ""
}
