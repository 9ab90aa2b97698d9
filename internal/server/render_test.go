package server

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sitemetrics/perfhub/internal/advice"
	"github.com/sitemetrics/perfhub/internal/payload"
	"github.com/sitemetrics/perfhub/internal/report"
	"github.com/sitemetrics/perfhub/internal/vitals"
)

func fragmentView(locked bool) *report.View {
	overall := 38
	return &report.View{
		ReportID:    "a3f9c2d4e5b60718",
		Kind:        payload.KindFull,
		Title:       "Full Performance Analysis",
		URL:         "https://acme.com",
		GeneratedAt: time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC),
		Overall:     &overall,
		OverallTier: vitals.TierFail,
		Risk:        []string{"LCP", "CLS"},
		Premium:     true,
		Locked:      locked,
		Sections: []report.Section{
			{
				ID:      report.SectionVitals,
				Title:   "Core Web Vitals",
				Premium: true,
				Rows: []report.MetricRow{
					{Device: "Desktop", Label: "Largest Contentful Paint", Value: "4.20s", Tier: vitals.TierFail},
				},
			},
		},
	}
}

func TestRenderFragment(t *testing.T) {
	rec := httptest.NewRecorder()
	renderFragment(rec, fragmentView(false))

	page := rec.Body.String()
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, page, `data-report-id="a3f9c2d4e5b60718"`)
	assert.Contains(t, page, "At risk: LCP, CLS")
	assert.Contains(t, page, "Largest Contentful Paint")
	assert.Contains(t, page, "38")
	assert.Contains(t, page, "#ff4e42")
}

func TestRenderFragment_LockedHidesPremiumData(t *testing.T) {
	rec := httptest.NewRecorder()
	renderFragment(rec, fragmentView(true))

	page := rec.Body.String()
	assert.Contains(t, page, "Unlock the full report")
	assert.NotContains(t, page, "Largest Contentful Paint")
}

func TestRenderFragment_NilOverallShowsPlaceholder(t *testing.T) {
	view := fragmentView(false)
	view.Overall = nil
	view.OverallTier = vitals.TierUnknown

	rec := httptest.NewRecorder()
	renderFragment(rec, view)

	assert.Contains(t, rec.Body.String(), "&mdash;")
}

func TestBuildView_TotalOnEmptyPayload(t *testing.T) {
	view, err := buildView(payload.Parse(nil), report.Meta{
		URL:       "https://acme.com",
		StartedAt: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC),
	}, advice.Default())

	require.NoError(t, err)
	assert.Equal(t, payload.KindQuick, view.Kind)
	assert.Nil(t, view.Overall)
}
