package report

import (
	"math"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/sitemetrics/perfhub/internal/advice"
	"github.com/sitemetrics/perfhub/internal/payload"
	"github.com/sitemetrics/perfhub/internal/score"
	"github.com/sitemetrics/perfhub/internal/vitals"
)

// numberPrinter groups digits in counter values ("1,500 KB") the way the
// report page always has.
var numberPrinter = message.NewPrinter(language.English)

// Meta carries the scan context a view is built under. URL must already be
// normalized; the report id is derived from it.
type Meta struct {
	URL         string
	StartedAt   time.Time
	GeneratedAt time.Time
}

// Build turns a parsed payload into the view model for its kind. It never
// fails: missing data becomes placeholder rows, not errors.
func Build(p payload.Payload, meta Meta, catalog *advice.Catalog) View {
	generated := meta.GeneratedAt
	if generated.IsZero() {
		generated = time.Now().UTC()
	}

	v := View{
		ReportID:    MakeID(p.Kind.AnalyzerKey(), meta.URL, meta.StartedAt),
		Kind:        p.Kind,
		Title:       p.Kind.Title(),
		URL:         meta.URL,
		GeneratedAt: generated,
		Premium:     p.Kind != payload.KindQuick,
	}

	switch p.Kind {
	case payload.KindFull:
		buildFull(&v, p.Full, catalog)
	case payload.KindCWV:
		buildVitals(&v, p.CWV, catalog)
	default:
		buildQuick(&v, p.Quick, catalog)
	}

	v.OverallTier = vitals.ScoreTier(v.Overall)
	return v
}

func buildQuick(v *View, r *payload.QuickReport, catalog *advice.Catalog) {
	if r == nil {
		r = &payload.QuickReport{}
	}
	v.Overall = score.QuickScore(r)

	s := r.Summary
	summary := Section{
		ID:    SectionSummary,
		Title: "Resource Summary",
		Rows: []MetricRow{
			counterRow("Total Requests", s.TotalRequests, "", score.RequestBaseline, "requests", catalog),
			counterRow("Page Weight", s.PageWeightKB, " KB", score.WeightBaselineKB, "page-weight", catalog),
			counterRow("Render-Blocking Resources", s.RenderBlockingCount, "", score.BlockingBaseline, "render-blocking", catalog),
			timingRow("Server Response Time", s.ServerResponseMs, score.ResponseBaselineMs, "server-response", catalog),
		},
	}
	v.Sections = append(v.Sections, summary)

	if len(r.Issues) == 0 {
		return
	}
	issues := Section{ID: SectionIssues, Title: "Findings"}
	for _, issue := range r.Issues {
		detail := issue.Description
		if issue.Recommendation != "" {
			if detail != "" {
				detail += "\n"
			}
			detail += issue.Recommendation
		}
		issues.Items = append(issues.Items, Accordion{
			Title:  issue.Title,
			Value:  severityLabel(issue.Severity),
			Detail: detail,
			Tier:   severityTier(issue.Severity),
		})
	}
	v.Sections = append(v.Sections, issues)
}

func buildVitals(v *View, r *payload.VitalsReport, catalog *advice.Catalog) {
	if r == nil {
		r = &payload.VitalsReport{}
	}
	devices := r.Devices()

	v.Overall = overallPerformance(devices, nil)
	v.Risk = RiskBanner(devices)

	section := Section{
		ID:      SectionVitals,
		Title:   "Core Web Vitals",
		Premium: true,
		Rows:    vitalsRows(devices, catalog),
	}
	if r.Page != nil {
		section.Note = "Device breakdown unavailable for this scan; values are page-level."
	}
	v.Sections = append(v.Sections, section)
}

func buildFull(v *View, r *payload.FullReport, catalog *advice.Catalog) {
	if r == nil {
		r = &payload.FullReport{}
	}
	devices := r.Devices()

	v.Overall = overallPerformance(devices, r.Site)
	v.Risk = RiskBanner(devices)

	scores := Section{ID: SectionLighthouse, Title: "Lighthouse Scores"}
	for _, dev := range devices {
		scores.Scores = append(scores.Scores, scoreCells(dev.Label, dev.Metrics.Lighthouse)...)
	}
	if len(devices) == 0 && r.Site != nil {
		scores.Scores = scoreCells("", r.Site)
	}
	if len(scores.Scores) > 0 {
		v.Sections = append(v.Sections, scores)
	}

	rows := vitalsRows(devices, catalog)
	if anyDefined(rows) {
		v.Sections = append(v.Sections, Section{
			ID:      SectionVitals,
			Title:   "Core Web Vitals",
			Premium: true,
			Rows:    rows,
		})
	}

	if len(r.Audits) > 0 {
		audits := Section{ID: SectionAudits, Title: "Audit Findings", Premium: true}
		for _, a := range r.Audits {
			audits.Items = append(audits.Items, Accordion{
				ID:     a.ID,
				Title:  a.Title,
				Value:  a.Display,
				Detail: a.Description,
				Tier:   a.Tier(),
			})
		}
		v.Sections = append(v.Sections, audits)
	}
}

// overallPerformance averages the per-device performance scores, falling
// back to a site-level score when no device carried one.
func overallPerformance(devices []payload.LabeledDevice, site *vitals.CategoryScores) *int {
	var overall *int
	for _, dev := range devices {
		if dev.Metrics.Lighthouse == nil {
			continue
		}
		overall = score.Average(overall, dev.Metrics.Lighthouse.Performance)
	}
	if overall == nil && site != nil {
		return copyInt(site.Performance)
	}
	return overall
}

func vitalsRows(devices []payload.LabeledDevice, catalog *advice.Catalog) []MetricRow {
	specs := []struct {
		key   string
		label string
		th    vitals.Threshold
		get   func(*vitals.DeviceMetrics) vitals.Metric
	}{
		{"lcp", "Largest Contentful Paint", vitals.ThresholdLCP, func(d *vitals.DeviceMetrics) vitals.Metric { return d.LCP }},
		{"cls", "Cumulative Layout Shift", vitals.ThresholdCLS, func(d *vitals.DeviceMetrics) vitals.Metric { return d.CLS }},
		{"inp", "Interaction to Next Paint", vitals.ThresholdINP, func(d *vitals.DeviceMetrics) vitals.Metric { return d.INP }},
		{"fcp", "First Contentful Paint", vitals.ThresholdFCP, func(d *vitals.DeviceMetrics) vitals.Metric { return d.FCP }},
	}

	var rows []MetricRow
	for _, dev := range devices {
		for _, sp := range specs {
			m := sp.get(dev.Metrics)
			tier := sp.th.Tier(m)
			row := MetricRow{
				Device: dev.Label,
				Label:  sp.label,
				Value:  m.Text(),
				Tier:   tier,
			}
			if tier == vitals.TierWarn || tier == vitals.TierFail {
				row.Hint = catalog.Guidance(sp.key)
			}
			rows = append(rows, row)
		}
	}
	return rows
}

func scoreCells(device string, cs *vitals.CategoryScores) []ScoreCell {
	if cs == nil {
		return nil
	}
	label := func(name string) string {
		if device == "" {
			return name
		}
		return device + " " + name
	}
	cells := []ScoreCell{
		{Label: label("Performance"), Score: copyInt(cs.Performance)},
		{Label: label("Accessibility"), Score: copyInt(cs.Accessibility)},
		{Label: label("Best Practices"), Score: copyInt(cs.BestPractices)},
		{Label: label("SEO"), Score: copyInt(cs.SEO)},
	}
	for i := range cells {
		cells[i].Tier = vitals.ScoreTier(cells[i].Score)
	}
	return cells
}

func counterRow(label string, value *float64, unit string, baseline float64, adviceKey string, catalog *advice.Catalog) MetricRow {
	row := MetricRow{Label: label, Value: vitals.Placeholder, Tier: vitals.TierUnknown}
	if value == nil {
		return row
	}
	if *value == math.Trunc(*value) {
		row.Value = numberPrinter.Sprintf("%d", int64(*value)) + unit
	} else {
		row.Value = numberPrinter.Sprintf("%.1f", *value) + unit
	}
	if *value > baseline {
		row.Tier = vitals.TierWarn
		row.Hint = catalog.Guidance(adviceKey)
	} else {
		row.Tier = vitals.TierGood
	}
	return row
}

func timingRow(label string, value *float64, baseline float64, adviceKey string, catalog *advice.Catalog) MetricRow {
	row := MetricRow{Label: label, Value: vitals.Placeholder, Tier: vitals.TierUnknown}
	if value == nil {
		return row
	}
	row.Value = vitals.FormatValue(vitals.UnitTiming, *value)
	if *value > baseline {
		row.Tier = vitals.TierWarn
		row.Hint = catalog.Guidance(adviceKey)
	} else {
		row.Tier = vitals.TierGood
	}
	return row
}

func severityTier(severity string) vitals.Tier {
	switch strings.ToLower(strings.TrimSpace(severity)) {
	case "high", "critical":
		return vitals.TierFail
	case "medium", "moderate":
		return vitals.TierWarn
	default:
		return vitals.TierUnknown
	}
}

func severityLabel(severity string) string {
	s := strings.TrimSpace(severity)
	if s == "" {
		return ""
	}
	return strings.ToUpper(s[:1]) + strings.ToLower(s[1:])
}

func anyDefined(rows []MetricRow) bool {
	for _, r := range rows {
		if r.Tier != vitals.TierUnknown {
			return true
		}
	}
	return false
}

func copyInt(v *int) *int {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
