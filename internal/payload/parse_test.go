package payload

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, s string) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(s), &m))
	return m
}

func TestParse_Quick(t *testing.T) {
	raw := decode(t, `{
		"summary": {
			"totalRequests": 40,
			"estimatedPageWeightKB": 900,
			"renderBlockingCount": 1,
			"serverResponseTime": 300
		},
		"issues": [
			{"severity": "high", "title": "Large images", "recommendation": "Compress them"},
			{"severity": "low", "message": "Minor caching issue"},
			{"bogus": true}
		]
	}`)

	p := Parse(raw)
	assert.Equal(t, KindQuick, p.Kind)
	require.NotNil(t, p.Quick)
	assert.Nil(t, p.CWV)
	assert.Nil(t, p.Full)

	s := p.Quick.Summary
	require.NotNil(t, s.TotalRequests)
	assert.InDelta(t, 40, *s.TotalRequests, 1e-9)
	require.NotNil(t, s.PageWeightKB)
	assert.InDelta(t, 900, *s.PageWeightKB, 1e-9)
	require.NotNil(t, s.RenderBlockingCount)
	assert.InDelta(t, 1, *s.RenderBlockingCount, 1e-9)
	require.NotNil(t, s.ServerResponseMs)
	assert.InDelta(t, 300, *s.ServerResponseMs, 1e-9)

	require.Len(t, p.Quick.Issues, 2)
	assert.True(t, p.Quick.Issues[0].High())
	assert.Equal(t, "Large images", p.Quick.Issues[0].Title)
	assert.Equal(t, "Compress them", p.Quick.Issues[0].Recommendation)
	assert.False(t, p.Quick.Issues[1].High())
	assert.Equal(t, "Minor caching issue", p.Quick.Issues[1].Title)
}

func TestParse_QuickVariants(t *testing.T) {
	t.Run("string counters and resource list", func(t *testing.T) {
		raw := decode(t, `{
			"summary": {
				"requestCount": "55",
				"renderBlockingResources": [{"url": "a.css"}, {"url": "b.js"}],
				"ttfb": "640ms"
			}
		}`)
		p := Parse(raw)
		require.NotNil(t, p.Quick)
		s := p.Quick.Summary
		require.NotNil(t, s.TotalRequests)
		assert.InDelta(t, 55, *s.TotalRequests, 1e-9)
		require.NotNil(t, s.RenderBlockingCount)
		assert.InDelta(t, 2, *s.RenderBlockingCount, 1e-9)
		require.NotNil(t, s.ServerResponseMs)
		assert.InDelta(t, 640, *s.ServerResponseMs, 1e-9)
		assert.Nil(t, s.PageWeightKB)
	})

	t.Run("empty object yields empty quick report", func(t *testing.T) {
		p := Parse(map[string]any{})
		assert.Equal(t, KindQuick, p.Kind)
		require.NotNil(t, p.Quick)
		assert.True(t, p.Quick.Summary.Empty())
		assert.Empty(t, p.Quick.Issues)
	})
}

func TestParse_Vitals(t *testing.T) {
	raw := decode(t, `{
		"desktop": {"coreWebVitals": {"lcpMs": 5000, "clsNum": 0.3}},
		"mobile":  {"coreWebVitals": {"lcpMs": 4800, "clsNum": 0.28}}
	}`)

	p := Parse(raw)
	assert.Equal(t, KindCWV, p.Kind)
	require.NotNil(t, p.CWV)
	require.NotNil(t, p.CWV.Desktop)
	require.NotNil(t, p.CWV.Mobile)
	assert.Nil(t, p.CWV.Page)

	require.NotNil(t, p.CWV.Desktop.LCP.NumericValue)
	assert.InDelta(t, 5000, *p.CWV.Desktop.LCP.NumericValue, 1e-9)
	require.NotNil(t, p.CWV.Mobile.CLS.NumericValue)
	assert.InDelta(t, 0.28, *p.CWV.Mobile.CLS.NumericValue, 1e-9)

	devices := p.CWV.Devices()
	require.Len(t, devices, 2)
	assert.Equal(t, "Desktop", devices[0].Label)
	assert.Equal(t, "Mobile", devices[1].Label)
}

func TestParse_VitalsTopLevelPage(t *testing.T) {
	raw := decode(t, `{"lcp": "2.1s", "cls": 0.08, "inp": 150}`)

	p := Parse(raw)
	assert.Equal(t, KindCWV, p.Kind)
	require.NotNil(t, p.CWV)
	require.NotNil(t, p.CWV.Page)
	require.NotNil(t, p.CWV.Page.LCP.NumericValue)
	assert.InDelta(t, 2100, *p.CWV.Page.LCP.NumericValue, 1e-9)

	devices := p.CWV.Devices()
	require.Len(t, devices, 1)
	assert.Equal(t, "Page", devices[0].Label)
}

func TestParse_Full(t *testing.T) {
	raw := decode(t, `{
		"desktop": {
			"lighthouse": {"performance": 88, "accessibility": 95},
			"coreWebVitals": {"lcpMs": 2100}
		},
		"mobile": {
			"lighthouse": {"performance": 62},
			"coreWebVitals": {"lcpMs": 3900}
		},
		"audits": [
			{"id": "render-blocking-resources", "title": "Eliminate render-blocking resources", "score": 0.4, "displayValue": "Potential savings of 450 ms"},
			{"id": "uses-text-compression", "title": "Enable text compression", "score": 1}
		]
	}`)

	p := Parse(raw)
	assert.Equal(t, KindFull, p.Kind)
	require.NotNil(t, p.Full)
	require.NotNil(t, p.Full.Desktop)
	require.NotNil(t, p.Full.Desktop.Lighthouse)
	require.NotNil(t, p.Full.Desktop.Lighthouse.Performance)
	assert.Equal(t, 88, *p.Full.Desktop.Lighthouse.Performance)
	require.NotNil(t, p.Full.Mobile)
	require.NotNil(t, p.Full.Mobile.LCP.NumericValue)
	assert.InDelta(t, 3900, *p.Full.Mobile.LCP.NumericValue, 1e-9)

	require.Len(t, p.Full.Audits, 2)
	assert.Equal(t, "render-blocking-resources", p.Full.Audits[0].ID)
	assert.Equal(t, "Potential savings of 450 ms", p.Full.Audits[0].Display)
}

func TestParse_FullSiteLevel(t *testing.T) {
	raw := decode(t, `{
		"lighthouse": {
			"performance": 74,
			"seo": 100,
			"audits": {
				"b-second": {"title": "Second audit", "score": 0.3},
				"a-first":  {"title": "First audit", "score": 0.95}
			}
		}
	}`)

	p := Parse(raw)
	assert.Equal(t, KindFull, p.Kind)
	require.NotNil(t, p.Full)
	assert.Nil(t, p.Full.Desktop)
	require.NotNil(t, p.Full.Site)
	require.NotNil(t, p.Full.Site.Performance)
	assert.Equal(t, 74, *p.Full.Site.Performance)

	// Map-form audits come out sorted by id.
	require.Len(t, p.Full.Audits, 2)
	assert.Equal(t, "a-first", p.Full.Audits[0].ID)
	assert.Equal(t, "b-second", p.Full.Audits[1].ID)
}

func TestAuditTier(t *testing.T) {
	score := func(v float64) *float64 { return &v }
	assert.Equal(t, "unknown", string(Audit{}.Tier()))
	assert.Equal(t, "good", string(Audit{Score: score(0.9)}.Tier()))
	assert.Equal(t, "warn", string(Audit{Score: score(0.5)}.Tier()))
	assert.Equal(t, "fail", string(Audit{Score: score(0.49)}.Tier()))
}
