package report

import (
	"time"

	"github.com/sitemetrics/perfhub/internal/payload"
	"github.com/sitemetrics/perfhub/internal/vitals"
)

// View is the markup-free model of one rendered report. Every renderer
// (HTML, PDF, CSV, XLSX) works from this structure alone; none of them may
// reach back into the raw payload.
type View struct {
	ReportID    string       `json:"reportId"`
	Kind        payload.Kind `json:"kind"`
	Title       string       `json:"title"`
	URL         string       `json:"url"`
	GeneratedAt time.Time    `json:"generatedAt"`

	// Overall is the headline score dial. Nil means unknown and renders
	// as a placeholder, never as 0.
	Overall     *int        `json:"overall"`
	OverallTier vitals.Tier `json:"overallTier"`

	// Risk lists the vitals that failed on any device, in the fixed
	// LCP, CLS, INP order. Empty means no banner.
	Risk []string `json:"risk,omitempty"`

	Sections []Section `json:"sections"`

	// Premium marks report kinds that are gated at all; Locked marks a
	// view whose premium sections must render collapsed with an
	// unlock prompt instead of data.
	Premium bool `json:"premium"`
	Locked  bool `json:"locked"`
}

// Section is one card of the report.
type Section struct {
	ID      string      `json:"id"`
	Title   string      `json:"title"`
	Premium bool        `json:"premium"`
	Note    string      `json:"note,omitempty"`
	Scores  []ScoreCell `json:"scores,omitempty"`
	Rows    []MetricRow `json:"rows,omitempty"`
	Items   []Accordion `json:"items,omitempty"`
}

// ScoreCell is one category score dial.
type ScoreCell struct {
	Label string      `json:"label"`
	Score *int        `json:"score"`
	Tier  vitals.Tier `json:"tier"`
}

// Value returns the dial text: the score or the unknown placeholder.
func (c ScoreCell) Value() string {
	if c.Score == nil {
		return vitals.Placeholder
	}
	return vitals.FormatValue(vitals.UnitScore, float64(*c.Score))
}

// MetricRow is one measured value with its tier and optional guidance.
type MetricRow struct {
	Device string      `json:"device,omitempty"`
	Label  string      `json:"label"`
	Value  string      `json:"value"`
	Tier   vitals.Tier `json:"tier"`
	Hint   string      `json:"hint,omitempty"`
}

// Accordion is one expandable finding: a quick-scan issue or a Lighthouse
// audit.
type Accordion struct {
	ID     string      `json:"id,omitempty"`
	Title  string      `json:"title"`
	Value  string      `json:"value,omitempty"`
	Detail string      `json:"detail,omitempty"`
	Tier   vitals.Tier `json:"tier"`
}

// Section ids are stable contract for templates and exports.
const (
	SectionSummary    = "summary"
	SectionIssues     = "issues"
	SectionVitals     = "vitals"
	SectionLighthouse = "lighthouse"
	SectionAudits     = "audits"
)
