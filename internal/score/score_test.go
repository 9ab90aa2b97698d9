package score

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sitemetrics/perfhub/internal/payload"
)

func intPtr(v int) *int         { return &v }
func numPtr(v float64) *float64 { return &v }

func TestAverage(t *testing.T) {
	tests := []struct {
		name string
		a, b *int
		want *int
	}{
		{"both defined", intPtr(80), intPtr(60), intPtr(70)},
		{"rounds to nearest", intPtr(80), intPtr(61), intPtr(71)},
		{"zero is a real score", intPtr(0), nil, intPtr(0)},
		{"nil passes other through", nil, intPtr(42), intPtr(42)},
		{"both nil stays nil", nil, nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Average(tt.a, tt.b)
			if tt.want == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, *tt.want, *got)
		})
	}
}

func TestAverage_DoesNotAliasInputs(t *testing.T) {
	a := intPtr(50)
	got := Average(a, nil)
	require.NotNil(t, got)
	*got = 99
	assert.Equal(t, 50, *a)
}

func TestQuickScore_CleanScan(t *testing.T) {
	r := &payload.QuickReport{
		Summary: payload.Summary{
			TotalRequests:       numPtr(40),
			PageWeightKB:        numPtr(900),
			RenderBlockingCount: numPtr(1),
			ServerResponseMs:    numPtr(300),
		},
	}
	got := QuickScore(r)
	require.NotNil(t, got)
	assert.Equal(t, 100, *got)
}

func TestQuickScore_NothingToScore(t *testing.T) {
	assert.Nil(t, QuickScore(nil))
	assert.Nil(t, QuickScore(&payload.QuickReport{}))
	assert.Nil(t, QuickScore(&payload.QuickReport{
		Issues: []payload.Issue{{Severity: "high", Title: "Something"}},
	}))
}

func TestQuickScore_Penalties(t *testing.T) {
	tests := []struct {
		name    string
		summary payload.Summary
		issues  []payload.Issue
		want    int
	}{
		{
			name:    "slow server response",
			summary: payload.Summary{ServerResponseMs: numPtr(1100)},
			want:    90,
		},
		{
			name:    "server response penalty capped",
			summary: payload.Summary{ServerResponseMs: numPtr(60000)},
			want:    70,
		},
		{
			name:    "render blocking log scaled",
			summary: payload.Summary{RenderBlockingCount: numPtr(4)},
			want:    84,
		},
		{
			name:    "render blocking capped",
			summary: payload.Summary{RenderBlockingCount: numPtr(64)},
			want:    76,
		},
		{
			name:    "excess requests",
			summary: payload.Summary{TotalRequests: numPtr(125)},
			want:    75,
		},
		{
			name:    "excess page weight",
			summary: payload.Summary{PageWeightKB: numPtr(2500)},
			want:    90,
		},
		{
			name:    "high severity issues",
			summary: payload.Summary{TotalRequests: numPtr(10)},
			issues: []payload.Issue{
				{Severity: "high", Title: "a"},
				{Severity: "HIGH", Title: "b"},
				{Severity: "medium", Title: "c"},
			},
			want: 84,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := QuickScore(&payload.QuickReport{Summary: tt.summary, Issues: tt.issues})
			require.NotNil(t, got)
			assert.Equal(t, tt.want, *got)
		})
	}
}

func TestQuickScore_FloorWithObservedRequests(t *testing.T) {
	r := &payload.QuickReport{
		Summary: payload.Summary{
			TotalRequests:       numPtr(500),
			PageWeightKB:        numPtr(20000),
			RenderBlockingCount: numPtr(100),
			ServerResponseMs:    numPtr(10000),
		},
		Issues: []payload.Issue{
			{Severity: "high", Title: "a"},
			{Severity: "high", Title: "b"},
		},
	}
	got := QuickScore(r)
	require.NotNil(t, got)
	assert.Equal(t, 10, *got)
}

func TestQuickScore_NoFloorWithoutRequests(t *testing.T) {
	// All penalty terms except requests maxed out: 100-30-24-25-16 = 5. With
	// no request counter observed, the floor does not kick in.
	r := &payload.QuickReport{
		Summary: payload.Summary{
			PageWeightKB:        numPtr(20000),
			RenderBlockingCount: numPtr(100),
			ServerResponseMs:    numPtr(10000),
		},
		Issues: []payload.Issue{
			{Severity: "high", Title: "a"},
			{Severity: "high", Title: "b"},
		},
	}
	got := QuickScore(r)
	require.NotNil(t, got)
	assert.Equal(t, 5, *got)
}

func TestQuickScore_Deterministic(t *testing.T) {
	r := &payload.QuickReport{
		Summary: payload.Summary{
			TotalRequests:    numPtr(90),
			ServerResponseMs: numPtr(800),
		},
	}
	first := QuickScore(r)
	for i := 0; i < 5; i++ {
		again := QuickScore(r)
		require.NotNil(t, again)
		assert.Equal(t, *first, *again)
	}
}
