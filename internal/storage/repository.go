package storage

import (
	"context"
	"errors"

	"github.com/terra-clan/estimate-engine/internal/models"
)

// ErrNoFields is returned when an update carries no columns
var ErrNoFields = errors.New("no fields to update")

// Repository defines the interface for project persistence
type Repository interface {
	// Projects
	CreateProject(ctx context.Context, p *models.Project) error
	GetProject(ctx context.Context, id int64) (*models.Project, error)
	UpdateProject(ctx context.Context, id int64, fields map[string]any) (*models.Project, error)
	DeleteProject(ctx context.Context, id int64) (bool, error)
	ListProjects(ctx context.Context, q ListQuery) ([]*models.Project, int, error)
	ListProjectsWithEstimate(ctx context.Context) ([]*models.Project, error)
	DescribeProjects(ctx context.Context) ([]models.ColumnInfo, error)

	// API Clients
	GetClientByApiKey(ctx context.Context, apiKey string) (*models.ApiClient, error)
	UpdateClientLastUsed(ctx context.Context, apiKey string) error

	// Health
	Ping(ctx context.Context) error
	Close() error
}
