package models

import (
	"encoding/json"
	"time"

	"github.com/terra-clan/estimate-engine/internal/estimate"
)

// ProjectStatus represents the lifecycle state of a project
type ProjectStatus string

const (
	StatusNew        ProjectStatus = "New"
	StatusInProgress ProjectStatus = "In Progress"
	StatusCancelled  ProjectStatus = "Cancelled"
	StatusComplete   ProjectStatus = "Complete"
)

// ProjectStatuses lists every valid status
var ProjectStatuses = []ProjectStatus{StatusNew, StatusInProgress, StatusCancelled, StatusComplete}

// Valid returns true if s is a known status
func (s ProjectStatus) Valid() bool {
	for _, st := range ProjectStatuses {
		if s == st {
			return true
		}
	}
	return false
}

// IsTerminal returns true if the project no longer changes
func (s ProjectStatus) IsTerminal() bool {
	return s == StatusCancelled || s == StatusComplete
}

// Project is a row of the projects table
type Project struct {
	ID               int64           `json:"id"`
	ProjectName      string          `json:"project_name"`
	ClientName       string          `json:"client_name"`
	Producer         string          `json:"producer"`
	Status           ProjectStatus   `json:"status"`
	CreationDate     time.Time       `json:"creation_date"`
	UpdatedAt        time.Time       `json:"updated_at"`
	TotalProjectCost int64           `json:"total_project_cost"`
	TotalExpenses    int64           `json:"total_expenses"`
	TotalBonuses     int64           `json:"total_bonuses"`
	NetProfit        int64           `json:"net_profit"`
	Profitability    int64           `json:"profitability"`
	FinalProfit      int64           `json:"final_profit"`
	EstimateJSON     json.RawMessage `json:"estimate_json,omitempty"`
	EstimateRevision string          `json:"estimate_revision,omitempty"`
}

// Metrics returns the stored metrics snapshot
func (p *Project) Metrics() estimate.Metrics {
	return estimate.Metrics{
		TotalProjectCost: p.TotalProjectCost,
		TotalExpenses:    p.TotalExpenses,
		NetProfit:        p.NetProfit,
		Profitability:    p.Profitability,
		FinalProfit:      p.FinalProfit,
	}
}

// ApplyMetrics overwrites the stored metrics with m
func (p *Project) ApplyMetrics(m estimate.Metrics) {
	p.TotalProjectCost = m.TotalProjectCost
	p.TotalExpenses = m.TotalExpenses
	p.NetProfit = m.NetProfit
	p.Profitability = m.Profitability
	p.FinalProfit = m.FinalProfit
}

// HasEstimate returns true if an estimate has been saved
func (p *Project) HasEstimate() bool {
	return len(p.EstimateJSON) > 0 && string(p.EstimateJSON) != "null"
}

// CreateProjectRequest represents a request to create a project
type CreateProjectRequest struct {
	ProjectName string        `json:"project_name" validate:"required"`
	ClientName  string        `json:"client_name" validate:"required"`
	Producer    string        `json:"producer" validate:"required"`
	Status      ProjectStatus `json:"status" validate:"omitempty,project_status"`
}

// ColumnInfo describes a column of the projects table
type ColumnInfo struct {
	ColumnName string `json:"column_name"`
	DataType   string `json:"data_type"`
	IsNullable string `json:"is_nullable"`
}

// EstimateView is an estimate as shown to an editor: ordered sections with
// derived totals, the metrics snapshot and the sections that can be added
type EstimateView struct {
	ProjectID         int64                  `json:"projectId"`
	Revision          string                 `json:"revision,omitempty"`
	Sections          []*estimate.Section    `json:"sections"`
	SectionTotals     map[string]int64       `json:"sectionTotals"`
	Metrics           estimate.Metrics       `json:"metrics"`
	AvailableSections []estimate.SectionInfo `json:"availableSections"`
}

// SaveEstimateRequest carries a full estimate in editor form
type SaveEstimateRequest struct {
	Sections []*estimate.Section `json:"sections"`
}

// CalculateRequest asks for totals of an unsaved estimate
type CalculateRequest struct {
	Sections []*estimate.Section `json:"sections"`
}

// CalculateResponse returns refreshed sections and metrics
type CalculateResponse struct {
	Sections       []*estimate.Section      `json:"sections"`
	SectionTotals  map[string]int64         `json:"sectionTotals"`
	Metrics        estimate.Metrics         `json:"metrics"`
	ProviderIssues []estimate.ProviderIssue `json:"providerIssues,omitempty"`
}

// ValidateProvidersRequest carries one row's provider allocation
type ValidateProvidersRequest struct {
	Providers []estimate.Provider `json:"providers"`
}
