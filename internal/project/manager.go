package project

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"github.com/terra-clan/estimate-engine/internal/cache"
	"github.com/terra-clan/estimate-engine/internal/estimate"
	"github.com/terra-clan/estimate-engine/internal/models"
	"github.com/terra-clan/estimate-engine/internal/storage"
)

// Common errors
var (
	ErrProjectNotFound   = errors.New("project not found")
	ErrNoUpdatableFields = errors.New("no valid fields to update")
	ErrValidation        = errors.New("validation failed")
	ErrInvalidEstimate   = errors.New("invalid estimate")
)

// InvalidProvidersError lists rows whose provider allocation does not sum
// to 100. It matches estimate.ErrInvalidProviders.
type InvalidProvidersError struct {
	Issues []estimate.ProviderIssue
}

func (e *InvalidProvidersError) Error() string {
	if len(e.Issues) == 1 {
		i := e.Issues[0]
		return fmt.Sprintf("invalid provider allocation in %s row %d: %s", i.SectionID, i.RowIndex+1, i.Check.Message)
	}
	return fmt.Sprintf("invalid provider allocation in %d rows", len(e.Issues))
}

func (e *InvalidProvidersError) Unwrap() error {
	return estimate.ErrInvalidProviders
}

// Manager defines the interface for project management
type Manager interface {
	Create(ctx context.Context, req models.CreateProjectRequest) (*models.Project, error)
	Get(ctx context.Context, id int64) (*models.Project, error)
	List(ctx context.Context, q storage.ListQuery) ([]*models.Project, int, error)
	Update(ctx context.Context, id int64, fields map[string]json.RawMessage) (*models.Project, error)
	Delete(ctx context.Context, id int64) error
	Schema(ctx context.Context) ([]models.ColumnInfo, error)

	LoadEstimate(ctx context.Context, id int64) (*estimate.Estimate, *models.Project, error)
	SaveEstimate(ctx context.Context, id int64, est *estimate.Estimate) (*models.Project, error)
	View(id int64, revision string, est *estimate.Estimate) *models.EstimateView
	Calculate(sections []*estimate.Section) (*models.CalculateResponse, error)
	Catalog() estimate.SectionCatalog

	Dashboard(ctx context.Context) (*DashboardSummary, error)

	FindDrifted(ctx context.Context) ([]Drift, error)
	RepairMetrics(ctx context.Context, id int64, m estimate.Metrics) error

	Ping(ctx context.Context) error
}

const (
	projectKeyPrefix = "projects:"
	listKeyPrefix    = "projects:list:"
	dashboardKey     = "projects:dashboard"
)

// Service implements Manager on top of a repository and a read cache
type Service struct {
	repo     storage.Repository
	cache    cache.Cache
	catalog  estimate.SectionCatalog
	validate *validator.Validate
	cacheTTL time.Duration
}

// NewService creates a new project Service
func NewService(repo storage.Repository, c cache.Cache, cat estimate.SectionCatalog, cacheTTL time.Duration) *Service {
	if c == nil {
		c = cache.Nop{}
	}

	return &Service{
		repo:     repo,
		cache:    c,
		catalog:  cat,
		validate: newValidator(),
		cacheTTL: cacheTTL,
	}
}

// Ping checks database and cache connectivity
func (s *Service) Ping(ctx context.Context) error {
	if err := s.repo.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	if err := s.cache.Ping(ctx); err != nil {
		return fmt.Errorf("cache ping failed: %w", err)
	}

	return nil
}

// Catalog returns the section catalog used by the service
func (s *Service) Catalog() estimate.SectionCatalog {
	return s.catalog
}

// Create stores a new project with zeroed metrics
func (s *Service) Create(ctx context.Context, req models.CreateProjectRequest) (*models.Project, error) {
	req.ProjectName = strings.TrimSpace(req.ProjectName)
	req.ClientName = strings.TrimSpace(req.ClientName)
	req.Producer = strings.TrimSpace(req.Producer)

	if err := s.validate.Struct(req); err != nil {
		return nil, validationError(err)
	}

	status := req.Status
	if status == "" {
		status = models.StatusNew
	}

	p := &models.Project{
		ProjectName: req.ProjectName,
		ClientName:  req.ClientName,
		Producer:    req.Producer,
		Status:      status,
	}

	if err := s.repo.CreateProject(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to create project: %w", err)
	}

	s.invalidate(ctx, 0)

	slog.Info("project created",
		"id", p.ID,
		"project_name", p.ProjectName,
		"client_name", p.ClientName,
	)

	return p, nil
}

// Get retrieves a project by ID
func (s *Service) Get(ctx context.Context, id int64) (*models.Project, error) {
	key := projectKey(id)
	if p, ok := cache.GetJSON[models.Project](ctx, s.cache, key); ok {
		return p, nil
	}

	p, err := s.repo.GetProject(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get project: %w", err)
	}

	if p == nil {
		return nil, ErrProjectNotFound
	}

	cache.SetJSON(ctx, s.cache, key, p, s.cacheTTL)
	return p, nil
}

type listPage struct {
	Projects []*models.Project `json:"projects"`
	Total    int               `json:"total"`
}

// List returns one page of projects and the size of the filtered set
func (s *Service) List(ctx context.Context, q storage.ListQuery) ([]*models.Project, int, error) {
	key, cacheable := listKey(q)
	if cacheable {
		if page, ok := cache.GetJSON[listPage](ctx, s.cache, key); ok {
			return page.Projects, page.Total, nil
		}
	}

	projects, total, err := s.repo.ListProjects(ctx, q)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list projects: %w", err)
	}

	if cacheable {
		cache.SetJSON(ctx, s.cache, key, listPage{Projects: projects, Total: total}, s.cacheTTL)
	}
	return projects, total, nil
}

var thousandsSeparators = strings.NewReplacer(",", "", " ", "", "_", "")

// wholeNumber reads a metric column value. JSON numbers and strings such as
// "1,500" are accepted; fractions and values outside int64 are not.
func wholeNumber(raw json.RawMessage) (int64, error) {
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		text = thousandsSeparators.Replace(strings.TrimSpace(text))
	} else {
		var n json.Number
		if err := json.Unmarshal(raw, &n); err != nil {
			return 0, errors.New("must be a number")
		}
		text = n.String()
	}

	d, err := decimal.NewFromString(text)
	if err != nil {
		return 0, errors.New("must be a number")
	}
	if !d.IsInteger() {
		return 0, errors.New("must be a whole number")
	}
	if !d.BigInt().IsInt64() {
		return 0, errors.New("is out of range")
	}
	return d.IntPart(), nil
}

// Update applies a partial update. Only allow-listed columns are written;
// when estimate_json is present the five metrics are recomputed from it and
// any client-sent metric values are ignored.
func (s *Service) Update(ctx context.Context, id int64, fields map[string]json.RawMessage) (*models.Project, error) {
	updates := make(map[string]any, len(fields))

	for column, raw := range fields {
		if column == "estimate_json" {
			continue
		}
		if column == "estimate_revision" || !storage.IsUpdatable(column) {
			slog.Debug("ignoring non-updatable field", "field", column, "project_id", id)
			continue
		}

		if storage.IsNumericColumn(column) {
			n, err := wholeNumber(raw)
			if err != nil {
				return nil, fmt.Errorf("%w: %s %v", ErrValidation, column, err)
			}
			updates[column] = n
			continue
		}

		var text string
		if err := json.Unmarshal(raw, &text); err != nil {
			return nil, fmt.Errorf("%w: %s must be a string", ErrValidation, column)
		}
		text = strings.TrimSpace(text)
		if column == "status" && !models.ProjectStatus(text).Valid() {
			return nil, fmt.Errorf("%w: unknown status %q", ErrValidation, text)
		}
		if text == "" && column != "status" {
			return nil, fmt.Errorf("%w: %s is required", ErrValidation, column)
		}
		updates[column] = text
	}

	if raw, ok := fields["estimate_json"]; ok {
		est, err := estimate.Load(raw, s.catalog)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidEstimate, err)
		}
		if err := s.estimateUpdates(est, updates); err != nil {
			return nil, err
		}
	}

	if len(updates) == 0 {
		return nil, ErrNoUpdatableFields
	}

	p, err := s.repo.UpdateProject(ctx, id, updates)
	if err != nil {
		return nil, fmt.Errorf("failed to update project: %w", err)
	}

	if p == nil {
		return nil, ErrProjectNotFound
	}

	s.invalidate(ctx, id)

	slog.Info("project updated",
		"id", id,
		"fields", lo.Keys(updates),
	)

	return p, nil
}

// Delete removes a project
func (s *Service) Delete(ctx context.Context, id int64) error {
	deleted, err := s.repo.DeleteProject(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to delete project: %w", err)
	}

	if !deleted {
		return ErrProjectNotFound
	}

	s.invalidate(ctx, id)

	slog.Info("project deleted", "id", id)
	return nil
}

// Schema describes the projects table
func (s *Service) Schema(ctx context.Context) ([]models.ColumnInfo, error) {
	columns, err := s.repo.DescribeProjects(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to describe projects: %w", err)
	}

	return columns, nil
}

// invalidate drops cached reads affected by a write to project id; id 0
// only drops aggregate entries
func (s *Service) invalidate(ctx context.Context, id int64) {
	if id != 0 {
		s.cache.Delete(ctx, projectKey(id))
	}
	s.cache.DeletePrefix(ctx, listKeyPrefix)
	s.cache.Delete(ctx, dashboardKey)
}

func projectKey(id int64) string {
	return projectKeyPrefix + strconv.FormatInt(id, 10)
}

func listKey(q storage.ListQuery) (string, bool) {
	raw, err := json.Marshal(q)
	if err != nil {
		return "", false
	}
	return listKeyPrefix + string(raw), true
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	_ = v.RegisterValidation("project_status", func(fl validator.FieldLevel) bool {
		return models.ProjectStatus(fl.Field().String()).Valid()
	})

	return v
}

// validationError flattens validator errors into one readable message
func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}

	msgs := lo.Map(verrs, func(fe validator.FieldError, _ int) string {
		switch fe.Tag() {
		case "required":
			return fe.Field() + " is required"
		case "project_status":
			return fmt.Sprintf("status must be one of %s", strings.Join(lo.Map(models.ProjectStatuses,
				func(st models.ProjectStatus, _ int) string { return string(st) }), ", "))
		default:
			return fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag())
		}
	})

	return fmt.Errorf("%w: %s", ErrValidation, strings.Join(msgs, "; "))
}
