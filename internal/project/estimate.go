package project

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/terra-clan/estimate-engine/internal/estimate"
	"github.com/terra-clan/estimate-engine/internal/models"
)

// FromSections builds an estimate from sections in editor form. Rows are
// recalculated, blank provider entries dropped and empty sections given
// one blank row. Partial provider entries are kept so they are counted
// when the allocation is checked.
func FromSections(sections []*estimate.Section, cat estimate.SectionCatalog) (*estimate.Estimate, error) {
	est := estimate.New()

	for _, s := range sections {
		if s == nil {
			continue
		}
		if s.ID == "" {
			return nil, fmt.Errorf("%w: section without id", ErrInvalidEstimate)
		}
		if _, ok := est.Sections[s.ID]; ok {
			return nil, fmt.Errorf("%w: %s", estimate.ErrSectionExists, s.ID)
		}

		title, ok := cat.Lookup(string(s.ID))
		if !ok {
			title = estimate.UnknownSectionTitle
		}

		rows := make([]estimate.Row, 0, len(s.Rows))
		for _, r := range s.Rows {
			r.Providers = estimate.FilledProviders(r.Providers)
			if r.Providers == nil {
				r.Providers = []estimate.Provider{}
			}
			r.Recalculate()
			rows = append(rows, r)
		}
		if len(rows) == 0 {
			rows = append(rows, estimate.NewRow())
		}

		est.Sections[s.ID] = &estimate.Section{ID: s.ID, Title: title, Rows: rows}
	}

	return est, nil
}

// LoadEstimate decodes the saved estimate of a project. A project without
// one yields an empty estimate.
func (s *Service) LoadEstimate(ctx context.Context, id int64) (*estimate.Estimate, *models.Project, error) {
	p, err := s.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	if !p.HasEstimate() {
		return estimate.New(), p, nil
	}

	est, err := estimate.Load(p.EstimateJSON, s.catalog)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: project %d: %v", ErrInvalidEstimate, id, err)
	}

	return est, p, nil
}

// SaveEstimate stores est, recomputes the project metrics from it and
// stamps a new revision. Invalid provider allocations are rejected.
func (s *Service) SaveEstimate(ctx context.Context, id int64, est *estimate.Estimate) (*models.Project, error) {
	updates := make(map[string]any, 7)
	if err := s.estimateUpdates(est, updates); err != nil {
		return nil, err
	}

	p, err := s.repo.UpdateProject(ctx, id, updates)
	if err != nil {
		return nil, fmt.Errorf("failed to save estimate: %w", err)
	}

	if p == nil {
		return nil, ErrProjectNotFound
	}

	s.invalidate(ctx, id)

	slog.Info("estimate saved",
		"project_id", id,
		"revision", p.EstimateRevision,
		"sections", len(est.Sections),
		"total_project_cost", p.TotalProjectCost,
		"net_profit", p.NetProfit,
	)

	return p, nil
}

// estimateUpdates validates est and adds the stored form, the metrics and
// a fresh revision to updates
func (s *Service) estimateUpdates(est *estimate.Estimate, updates map[string]any) error {
	est.Recalculate()

	if issues := est.ProviderIssues(); len(issues) > 0 {
		return &InvalidProvidersError{Issues: issues}
	}
	est.CompactProviders()

	data, err := estimate.Marshal(est, s.catalog)
	if err != nil {
		return err
	}

	m := est.Metrics()
	updates["estimate_json"] = data
	updates["estimate_revision"] = uuid.NewString()
	updates["total_project_cost"] = m.TotalProjectCost
	updates["total_expenses"] = m.TotalExpenses
	updates["net_profit"] = m.NetProfit
	updates["profitability"] = m.Profitability
	updates["final_profit"] = m.FinalProfit

	return nil
}

// View renders est for an editor
func (s *Service) View(id int64, revision string, est *estimate.Estimate) *models.EstimateView {
	sections := est.Ordered(s.catalog)

	available := est.AvailableSections(s.catalog)
	if available == nil {
		available = []estimate.SectionInfo{}
	}

	return &models.EstimateView{
		ProjectID:         id,
		Revision:          revision,
		Sections:          sections,
		SectionTotals:     sectionTotals(sections),
		Metrics:           est.Metrics(),
		AvailableSections: available,
	}
}

// Calculate refreshes an unsaved estimate without storing it. Provider
// problems are reported, not rejected.
func (s *Service) Calculate(sections []*estimate.Section) (*models.CalculateResponse, error) {
	est, err := FromSections(sections, s.catalog)
	if err != nil {
		return nil, err
	}

	ordered := est.Ordered(s.catalog)
	return &models.CalculateResponse{
		Sections:       ordered,
		SectionTotals:  sectionTotals(ordered),
		Metrics:        est.Metrics(),
		ProviderIssues: est.ProviderIssues(),
	}, nil
}

func sectionTotals(sections []*estimate.Section) map[string]int64 {
	return lo.SliceToMap(sections, func(s *estimate.Section) (string, int64) {
		return string(s.ID), estimate.SectionTotal(s.Rows)
	})
}

// Drift is a project whose stored metrics disagree with its estimate
type Drift struct {
	ProjectID int64
	Stored    estimate.Metrics
	Computed  estimate.Metrics
}

// FindDrifted recomputes the metrics of every project with an estimate and
// returns those whose stored values differ. Undecodable estimates are
// logged and skipped.
func (s *Service) FindDrifted(ctx context.Context) ([]Drift, error) {
	projects, err := s.repo.ListProjectsWithEstimate(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}

	var drifted []Drift
	for _, p := range projects {
		est, err := estimate.Load(p.EstimateJSON, s.catalog)
		if err != nil {
			slog.Warn("skipping undecodable estimate", "project_id", p.ID, "error", err)
			continue
		}

		computed := est.Metrics()
		if computed != p.Metrics() {
			drifted = append(drifted, Drift{ProjectID: p.ID, Stored: p.Metrics(), Computed: computed})
		}
	}

	return drifted, nil
}

// RepairMetrics overwrites the stored metrics of a project
func (s *Service) RepairMetrics(ctx context.Context, id int64, m estimate.Metrics) error {
	p, err := s.repo.UpdateProject(ctx, id, map[string]any{
		"total_project_cost": m.TotalProjectCost,
		"total_expenses":     m.TotalExpenses,
		"net_profit":         m.NetProfit,
		"profitability":      m.Profitability,
		"final_profit":       m.FinalProfit,
	})
	if err != nil {
		return fmt.Errorf("failed to repair metrics: %w", err)
	}

	if p == nil {
		return ErrProjectNotFound
	}

	s.invalidate(ctx, id)
	return nil
}
