package project

import (
	"context"
	"fmt"
	"sort"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/terra-clan/estimate-engine/internal/cache"
	"github.com/terra-clan/estimate-engine/internal/estimate"
	"github.com/terra-clan/estimate-engine/internal/models"
	"github.com/terra-clan/estimate-engine/internal/storage"
)

// Profitability buckets, lower bound inclusive
var profitabilityRanges = []struct {
	Label string
	Below int64
}{
	{"Negative (<0%)", 0},
	{"Low (0-25%)", 25},
	{"Medium-Low (25-50%)", 50},
	{"Medium (50-75%)", 75},
	{"Medium-High (75-100%)", 100},
	{"High (>100%)", 0},
}

// StatusShare counts projects in one status
type StatusShare struct {
	Status models.ProjectStatus `json:"status"`
	Count  int                  `json:"count"`
	Value  int64                `json:"value"`
}

// RangeShare counts projects in one profitability bucket
type RangeShare struct {
	Range string `json:"range"`
	Count int    `json:"count"`
	Value int64  `json:"value"`
}

// DashboardSummary aggregates all projects for the dashboard
type DashboardSummary struct {
	TotalProjects        int           `json:"totalProjects"`
	TotalRevenue         int64         `json:"totalRevenue"`
	TotalProfit          int64         `json:"totalProfit"`
	AverageProfitability int64         `json:"averageProfitability"`
	StatusBreakdown      []StatusShare `json:"statusBreakdown"`
	ProfitabilityRanges  []RangeShare  `json:"profitabilityRanges"`
}

// Dashboard summarizes every project
func (s *Service) Dashboard(ctx context.Context) (*DashboardSummary, error) {
	if summary, ok := cache.GetJSON[DashboardSummary](ctx, s.cache, dashboardKey); ok {
		return summary, nil
	}

	projects, _, err := s.repo.ListProjects(ctx, storage.DefaultListQuery())
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}

	summary := Summarize(projects)
	cache.SetJSON(ctx, s.cache, dashboardKey, summary, s.cacheTTL)
	return summary, nil
}

func sumBy(projects []*models.Project, value func(*models.Project) int64) int64 {
	return lo.Reduce(projects, func(sum int64, p *models.Project, _ int) int64 {
		return estimate.Add(sum, value(p))
	}, 0)
}

// Summarize computes the dashboard figures. Average profitability only
// counts projects with revenue. Shares are whole percents of all projects.
func Summarize(projects []*models.Project) *DashboardSummary {
	total := len(projects)
	summary := &DashboardSummary{
		TotalProjects:       total,
		TotalRevenue:        sumBy(projects, func(p *models.Project) int64 { return p.TotalProjectCost }),
		TotalProfit:         sumBy(projects, func(p *models.Project) int64 { return p.FinalProfit }),
		StatusBreakdown:     []StatusShare{},
		ProfitabilityRanges: make([]RangeShare, len(profitabilityRanges)),
	}

	withRevenue := lo.Filter(projects, func(p *models.Project, _ int) bool { return p.TotalProjectCost > 0 })
	if len(withRevenue) > 0 {
		sum := sumBy(withRevenue, func(p *models.Project) int64 { return p.Profitability })
		summary.AverageProfitability = roundHalfUp(sum, int64(len(withRevenue)))
	}

	counts := lo.CountValuesBy(projects, func(p *models.Project) models.ProjectStatus {
		if p.Status == "" {
			return models.StatusNew
		}
		return p.Status
	})
	for _, status := range orderedStatuses(counts) {
		summary.StatusBreakdown = append(summary.StatusBreakdown, StatusShare{
			Status: status,
			Count:  counts[status],
			Value:  share(counts[status], total),
		})
	}

	for i, r := range profitabilityRanges {
		summary.ProfitabilityRanges[i].Range = r.Label
	}
	for _, p := range projects {
		i := rangeIndex(p.Profitability)
		summary.ProfitabilityRanges[i].Count++
	}
	for i := range summary.ProfitabilityRanges {
		summary.ProfitabilityRanges[i].Value = share(summary.ProfitabilityRanges[i].Count, total)
	}

	return summary
}

func rangeIndex(profitability int64) int {
	last := len(profitabilityRanges) - 1
	for i, r := range profitabilityRanges[:last] {
		if profitability < r.Below {
			return i
		}
	}
	return last
}

// orderedStatuses lists known statuses first, then any others sorted
func orderedStatuses(counts map[models.ProjectStatus]int) []models.ProjectStatus {
	out := lo.Filter(models.ProjectStatuses, func(st models.ProjectStatus, _ int) bool {
		return counts[st] > 0
	})

	var other []models.ProjectStatus
	for st := range counts {
		if !st.Valid() {
			other = append(other, st)
		}
	}
	sort.Slice(other, func(i, j int) bool { return other[i] < other[j] })

	return append(out, other...)
}

func share(count, total int) int64 {
	if total == 0 {
		return 0
	}
	return roundHalfUp(int64(count)*100, int64(total))
}

// roundHalfUp divides and rounds ties toward positive infinity
func roundHalfUp(num, den int64) int64 {
	return decimal.NewFromInt(num).
		Div(decimal.NewFromInt(den)).
		Add(decimal.NewFromFloat(0.5)).
		Floor().
		IntPart()
}
