package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/terra-clan/estimate-engine/internal/catalog"
	"github.com/terra-clan/estimate-engine/internal/estimate"
	"github.com/terra-clan/estimate-engine/internal/models"
	"github.com/terra-clan/estimate-engine/internal/project"
)

// Client is a Go SDK for the estimate-engine API
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// Option configures the client
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithTimeout sets the client timeout
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// NewClient creates a new estimate-engine client
func NewClient(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// APIError is a non-2xx response from the server
type APIError struct {
	StatusCode int
	Code       string          `json:"error"`
	Message    string          `json:"message"`
	Details    json.RawMessage `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("API error: %s - %s", e.Code, e.Message)
}

// IsNotFound reports whether err is a 404 from the server
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// ListOptions contains options for listing projects
type ListOptions struct {
	Filter   map[string]any
	SortBy   string
	SortDesc bool
	Offset   int
	Limit    int
}

// ProjectPage is one page of a project listing
type ProjectPage struct {
	Projects []*models.Project
	Total    int
}

// SectionCatalog is the response of the sections endpoint
type SectionCatalog struct {
	Sections []catalog.Section `json:"sections"`
	Headers  []string          `json:"headers"`
}

// ListProjects retrieves a page of projects
func (c *Client) ListProjects(ctx context.Context, opts ListOptions) (*ProjectPage, error) {
	query := url.Values{}
	if len(opts.Filter) > 0 {
		filter, err := json.Marshal(opts.Filter)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal filter: %w", err)
		}
		query.Set("filter", string(filter))
	}
	if opts.SortBy != "" {
		order := "ASC"
		if opts.SortDesc {
			order = "DESC"
		}
		sort, _ := json.Marshal([]string{opts.SortBy, order})
		query.Set("sort", string(sort))
	}
	if opts.Limit > 0 {
		query.Set("range", fmt.Sprintf("[%d,%d]", opts.Offset, opts.Offset+opts.Limit-1))
	}

	path := "/api/projects"
	if len(query) > 0 {
		path += "?" + query.Encode()
	}

	page := &ProjectPage{}
	header, err := c.do(ctx, http.MethodGet, path, nil, &page.Projects)
	if err != nil {
		return nil, err
	}

	page.Total = parseTotal(header.Get("Content-Range"), len(page.Projects))
	return page, nil
}

// parseTotal reads the total from "projects 0-9/42"
func parseTotal(contentRange string, fallback int) int {
	i := strings.LastIndex(contentRange, "/")
	if i < 0 {
		return fallback
	}
	total, err := strconv.Atoi(contentRange[i+1:])
	if err != nil {
		return fallback
	}
	return total
}

// GetProject retrieves a project by ID
func (c *Client) GetProject(ctx context.Context, id int64) (*models.Project, error) {
	var p models.Project
	if _, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/projects/%d", id), nil, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// CreateProject creates a new project
func (c *Client) CreateProject(ctx context.Context, req models.CreateProjectRequest) (*models.Project, error) {
	var p models.Project
	if _, err := c.do(ctx, http.MethodPost, "/api/projects", req, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// UpdateProject applies a partial update. Unknown columns are ignored by
// the server.
func (c *Client) UpdateProject(ctx context.Context, id int64, fields map[string]any) (*models.Project, error) {
	var p models.Project
	if _, err := c.do(ctx, http.MethodPut, fmt.Sprintf("/api/projects/%d", id), fields, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// DeleteProject removes a project
func (c *Client) DeleteProject(ctx context.Context, id int64) error {
	_, err := c.do(ctx, http.MethodDelete, fmt.Sprintf("/api/projects/%d", id), nil, nil)
	return err
}

// GetEstimate retrieves the editor view of a project's estimate
func (c *Client) GetEstimate(ctx context.Context, id int64) (*models.EstimateView, error) {
	var view models.EstimateView
	if _, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/projects/%d/estimate", id), nil, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

// SaveEstimate replaces a project's estimate and returns the refreshed view
func (c *Client) SaveEstimate(ctx context.Context, id int64, sections []*estimate.Section) (*models.EstimateView, error) {
	var view models.EstimateView
	req := models.SaveEstimateRequest{Sections: sections}
	if _, err := c.do(ctx, http.MethodPut, fmt.Sprintf("/api/projects/%d/estimate", id), req, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

// ExportEstimate downloads a project's estimate as CSV
func (c *Client) ExportEstimate(ctx context.Context, id int64) ([]byte, error) {
	body, _, err := c.doRequest(ctx, http.MethodGet, fmt.Sprintf("/api/projects/%d/estimate/export.csv", id), nil)
	return body, err
}

// Calculate computes totals for an unsaved estimate
func (c *Client) Calculate(ctx context.Context, sections []*estimate.Section) (*models.CalculateResponse, error) {
	var resp models.CalculateResponse
	req := models.CalculateRequest{Sections: sections}
	if _, err := c.do(ctx, http.MethodPost, "/api/estimates/calculate", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ValidateProviders checks one row's provider allocation
func (c *Client) ValidateProviders(ctx context.Context, providers []estimate.Provider) (*estimate.ProviderValidation, error) {
	var check estimate.ProviderValidation
	req := models.ValidateProvidersRequest{Providers: providers}
	if _, err := c.do(ctx, http.MethodPost, "/api/providers/validate", req, &check); err != nil {
		return nil, err
	}
	return &check, nil
}

// Sections retrieves the section catalog
func (c *Client) Sections(ctx context.Context) (*SectionCatalog, error) {
	var cat SectionCatalog
	if _, err := c.do(ctx, http.MethodGet, "/api/sections", nil, &cat); err != nil {
		return nil, err
	}
	return &cat, nil
}

// Dashboard retrieves the aggregate dashboard summary
func (c *Client) Dashboard(ctx context.Context) (*project.DashboardSummary, error) {
	var summary project.DashboardSummary
	if _, err := c.do(ctx, http.MethodGet, "/api/dashboard", nil, &summary); err != nil {
		return nil, err
	}
	return &summary, nil
}

// Health checks if the service is healthy
func (c *Client) Health(ctx context.Context) error {
	_, _, err := c.doRequest(ctx, http.MethodGet, "/health", nil)
	return err
}

// do sends payload as JSON and decodes the response into out
func (c *Client) do(ctx context.Context, method, path string, payload, out any) (http.Header, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	resp, header, err := c.doRequest(ctx, method, path, body)
	if err != nil {
		return nil, err
	}

	if out != nil {
		if err := json.Unmarshal(resp, out); err != nil {
			return nil, fmt.Errorf("failed to unmarshal response: %w", err)
		}
	}

	return header, nil
}

// doRequest performs an HTTP request
func (c *Client) doRequest(ctx context.Context, method, path string, body io.Reader) ([]byte, http.Header, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		_ = json.Unmarshal(respBody, apiErr)
		return nil, nil, apiErr
	}

	return respBody, resp.Header, nil
}
