package project

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terra-clan/estimate-engine/internal/models"
)

func TestSummarize(t *testing.T) {
	projects := []*models.Project{
		{Status: models.StatusComplete, TotalProjectCost: 1000, FinalProfit: 400, Profitability: 40},
		{Status: models.StatusComplete, TotalProjectCost: 2000, FinalProfit: -500, Profitability: -25},
		{Status: models.StatusInProgress, TotalProjectCost: 500, FinalProfit: 500, Profitability: 100},
		{Status: "", TotalProjectCost: 0, FinalProfit: 0, Profitability: -100},
	}

	s := Summarize(projects)

	assert.Equal(t, 4, s.TotalProjects)
	assert.Equal(t, int64(3500), s.TotalRevenue)
	assert.Equal(t, int64(400), s.TotalProfit)
	// (40 - 25 + 100) / 3 = 38.33
	assert.Equal(t, int64(38), s.AverageProfitability)

	assert.Equal(t, []StatusShare{
		{Status: models.StatusNew, Count: 1, Value: 25},
		{Status: models.StatusInProgress, Count: 1, Value: 25},
		{Status: models.StatusComplete, Count: 2, Value: 50},
	}, s.StatusBreakdown)

	assert.Equal(t, []RangeShare{
		{Range: "Negative (<0%)", Count: 2, Value: 50},
		{Range: "Low (0-25%)", Count: 0, Value: 0},
		{Range: "Medium-Low (25-50%)", Count: 1, Value: 25},
		{Range: "Medium (50-75%)", Count: 0, Value: 0},
		{Range: "Medium-High (75-100%)", Count: 0, Value: 0},
		{Range: "High (>100%)", Count: 1, Value: 25},
	}, s.ProfitabilityRanges)
}

func TestSummarize_SaturatesTotals(t *testing.T) {
	projects := []*models.Project{
		{Status: models.StatusComplete, TotalProjectCost: math.MaxInt64, FinalProfit: math.MaxInt64, Profitability: math.MaxInt64},
		{Status: models.StatusComplete, TotalProjectCost: math.MaxInt64, FinalProfit: math.MaxInt64, Profitability: math.MaxInt64},
	}

	s := Summarize(projects)

	assert.Equal(t, int64(math.MaxInt64), s.TotalRevenue)
	assert.Equal(t, int64(math.MaxInt64), s.TotalProfit)
	assert.Positive(t, s.AverageProfitability)
}

func TestSummarize_Empty(t *testing.T) {
	s := Summarize(nil)

	assert.Zero(t, s.TotalProjects)
	assert.Zero(t, s.AverageProfitability)
	assert.Empty(t, s.StatusBreakdown)
	require.Len(t, s.ProfitabilityRanges, 6)
	for _, r := range s.ProfitabilityRanges {
		assert.Zero(t, r.Value)
	}
}

func TestSummarize_NoRevenue(t *testing.T) {
	s := Summarize([]*models.Project{{Status: models.StatusNew, Profitability: 0}})
	assert.Zero(t, s.AverageProfitability)
}

func TestRangeBoundaries(t *testing.T) {
	tests := []struct {
		profitability int64
		want          string
	}{
		{-1, "Negative (<0%)"},
		{0, "Low (0-25%)"},
		{24, "Low (0-25%)"},
		{25, "Medium-Low (25-50%)"},
		{74, "Medium (50-75%)"},
		{99, "Medium-High (75-100%)"},
		{100, "High (>100%)"},
		{250, "High (>100%)"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, profitabilityRanges[rangeIndex(tt.profitability)].Label, "profitability %d", tt.profitability)
	}
}

func TestRoundHalfUp(t *testing.T) {
	assert.Equal(t, int64(13), roundHalfUp(25, 2))
	assert.Equal(t, int64(-12), roundHalfUp(-25, 2))
	assert.Equal(t, int64(33), roundHalfUp(100, 3))
	assert.Equal(t, int64(67), roundHalfUp(200, 3))
}

func TestService_Dashboard(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	createProject(t, svc)
	s, err := svc.Dashboard(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, s.TotalProjects)

	createProject(t, svc)
	s, err = svc.Dashboard(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, s.TotalProjects, "cached summary dropped on create")
}
