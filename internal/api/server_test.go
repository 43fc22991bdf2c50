package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terra-clan/estimate-engine/internal/cache"
	"github.com/terra-clan/estimate-engine/internal/catalog"
	"github.com/terra-clan/estimate-engine/internal/config"
	"github.com/terra-clan/estimate-engine/internal/estimate"
	"github.com/terra-clan/estimate-engine/internal/health"
	"github.com/terra-clan/estimate-engine/internal/models"
	"github.com/terra-clan/estimate-engine/internal/project"
	"github.com/terra-clan/estimate-engine/internal/testutil"
)

const storedEstimate = `[{"sectionId":"production","rows":[["Stage","","","","2","500","1","1","1","300"]],"providersData":[[]]}]`

func newTestServer(t *testing.T, authEnabled bool) (*Server, *testutil.InMemoryProjectStore) {
	t.Helper()

	repo := testutil.NewInMemoryProjectStore()
	sections := catalog.NewLoader()
	manager := project.NewService(repo, cache.NewMemoryCache(time.Minute), sections, time.Minute)

	checks := health.NewRegistry(time.Second)
	checks.Register("postgres", health.CheckerFunc(repo.Ping))

	srv := NewServer(
		config.ServerConfig{RequestTimeout: 5 * time.Second},
		config.AuthConfig{Enabled: authEnabled},
		manager,
		sections,
		repo,
		checks,
	)
	return srv, repo
}

func doRequest(t *testing.T, srv *Server, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func seedProject(repo *testutil.InMemoryProjectStore, name string, cost int64) *models.Project {
	return repo.Seed(&models.Project{
		ProjectName:      name,
		ClientName:       "Acme",
		Producer:         "Dana",
		Status:           models.StatusNew,
		TotalProjectCost: cost,
	})
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t, false)

	for _, path := range []string{"/health", "/api/health"} {
		rec := doRequest(t, srv, http.MethodGet, path, "")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "ok", decodeBody[map[string]string](t, rec)["status"])
	}
}

func TestReady(t *testing.T) {
	srv, repo := newTestServer(t, false)

	rec := doRequest(t, srv, http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	repo.PingErr = errors.New("connection refused")
	rec = doRequest(t, srv, http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "connection refused")
}

func TestProjectCRUD(t *testing.T) {
	srv, _ := newTestServer(t, false)

	rec := doRequest(t, srv, http.MethodPost, "/api/projects",
		`{"project_name":"Spring Gala","client_name":"Acme","producer":"Dana"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeBody[models.Project](t, rec)
	assert.Equal(t, models.StatusNew, created.Status)

	rec = doRequest(t, srv, http.MethodGet, "/api/projects/1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Spring Gala", decodeBody[models.Project](t, rec).ProjectName)

	rec = doRequest(t, srv, http.MethodPut, "/api/projects/1", `{"status":"Complete","total_bonuses":250}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decodeBody[models.Project](t, rec)
	assert.Equal(t, models.StatusComplete, updated.Status)
	assert.Equal(t, int64(250), updated.TotalBonuses)

	rec = doRequest(t, srv, http.MethodDelete, "/api/projects/1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Project deleted successfully", decodeBody[map[string]any](t, rec)["message"])

	rec = doRequest(t, srv, http.MethodGet, "/api/projects/1", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	body := decodeBody[errorResponse](t, rec)
	assert.Equal(t, "Project not found", body.Message)
}

func TestProjectErrors(t *testing.T) {
	srv, repo := newTestServer(t, false)
	seedProject(repo, "Gala", 0)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
	}{
		{"invalid id", http.MethodGet, "/api/projects/abc", "", http.StatusBadRequest},
		{"invalid json", http.MethodPost, "/api/projects", "{", http.StatusBadRequest},
		{"missing fields", http.MethodPost, "/api/projects", `{"project_name":"X"}`, http.StatusBadRequest},
		{"no updatable fields", http.MethodPut, "/api/projects/1", `{"id":5,"creation_date":"2020-01-01"}`, http.StatusBadRequest},
		{"unknown status", http.MethodPut, "/api/projects/1", `{"status":"Archived"}`, http.StatusBadRequest},
		{"fractional bonuses", http.MethodPut, "/api/projects/1", `{"total_bonuses":12.5}`, http.StatusBadRequest},
		{"bonuses past int64", http.MethodPut, "/api/projects/1", `{"total_bonuses":99999999999999999999}`, http.StatusBadRequest},
		{"update missing", http.MethodPut, "/api/projects/99", `{"producer":"Lee"}`, http.StatusNotFound},
		{"delete missing", http.MethodDelete, "/api/projects/99", "", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(t, srv, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
		})
	}

	rec := doRequest(t, srv, http.MethodPut, "/api/projects/1", `{"creation_date":"2020-01-01"}`)
	assert.Equal(t, "No valid fields to update", decodeBody[errorResponse](t, rec).Message)
}

func TestListProjects_ContentRange(t *testing.T) {
	srv, repo := newTestServer(t, false)
	seedProject(repo, "Alpha", 300)
	seedProject(repo, "Beta", 100)
	seedProject(repo, "Gamma", 200)

	values := url.Values{}
	values.Set("sort", `["total_project_cost","ASC"]`)
	values.Set("range", `[0,1]`)

	rec := doRequest(t, srv, http.MethodGet, "/api/projects?"+values.Encode(), "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "projects 0-1/3", rec.Header().Get("Content-Range"))

	projects := decodeBody[[]models.Project](t, rec)
	require.Len(t, projects, 2)
	assert.Equal(t, "Beta", projects[0].ProjectName)
	assert.Equal(t, "Gamma", projects[1].ProjectName)

	values = url.Values{}
	values.Set("filter", `{"q":"alp"}`)
	rec = doRequest(t, srv, http.MethodGet, "/api/projects?"+values.Encode(), "")
	assert.Equal(t, "projects 0-0/1", rec.Header().Get("Content-Range"))

	values.Set("filter", `{"q":"nothing"}`)
	rec = doRequest(t, srv, http.MethodGet, "/api/projects?"+values.Encode(), "")
	assert.Equal(t, "projects */0", rec.Header().Get("Content-Range"))
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestContentRange(t *testing.T) {
	assert.Equal(t, "projects 10-19/42", contentRange(10, 10, 42))
	assert.Equal(t, "projects */42", contentRange(50, 0, 42))
}

func TestUpdateProject_EstimateJSON(t *testing.T) {
	srv, repo := newTestServer(t, false)
	seedProject(repo, "Gala", 0)

	body, err := json.Marshal(map[string]any{
		"estimate_json":      json.RawMessage(storedEstimate),
		"total_project_cost": 1,
	})
	require.NoError(t, err)

	rec := doRequest(t, srv, http.MethodPut, "/api/projects/1", string(body))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	p := decodeBody[models.Project](t, rec)
	assert.Equal(t, int64(1000), p.TotalProjectCost)
	assert.Equal(t, int64(600), p.TotalExpenses)
	assert.Equal(t, int64(40), p.Profitability)
	assert.Equal(t, p.NetProfit, p.FinalProfit)
}

func TestUpdateProject_InvalidProviders(t *testing.T) {
	srv, repo := newTestServer(t, false)
	seedProject(repo, "Gala", 0)

	bad := `[{"sectionId":"production","rows":[["Stage","","","","1","100","1","1","1","100"]],"providersData":[[{"name":"A","percentage":"70"},{"name":"B","percentage":"20"}]]}]`
	rec := doRequest(t, srv, http.MethodPut, "/api/projects/1", `{"estimate_json":`+bad+`}`)

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	resp := decodeBody[errorResponse](t, rec)
	assert.Equal(t, "invalid_providers", resp.Error)
	assert.Contains(t, resp.Message, "Total percentage must equal 100% (currently 90%)")
}

func TestEstimateEndpoints(t *testing.T) {
	srv, repo := newTestServer(t, false)
	seedProject(repo, "Gala", 0)

	rec := doRequest(t, srv, http.MethodGet, "/api/projects/1/estimate", "")
	require.Equal(t, http.StatusOK, rec.Code)
	view := decodeBody[models.EstimateView](t, rec)
	assert.Empty(t, view.Sections)
	assert.Len(t, view.AvailableSections, len(catalog.DefaultSections))

	save := `{"sections":[{"id":"show-execution","rows":[{"service":"Lights","qty":"2","priceEst":"1,000","priceAct":"800","discount":"1","factor":"1","cr":"1","providers":[{"name":"Vendor","percentage":"100"}]}]}]}`
	rec = doRequest(t, srv, http.MethodPut, "/api/projects/1/estimate", save)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	view = decodeBody[models.EstimateView](t, rec)
	assert.NotEmpty(t, view.Revision)
	assert.Equal(t, int64(2000), view.Metrics.TotalProjectCost)
	assert.Equal(t, int64(1600), view.SectionTotals["show-execution"])
	require.Len(t, view.Sections, 1)
	assert.Equal(t, "Show Execution", view.Sections[0].Title)

	rec = doRequest(t, srv, http.MethodGet, "/api/projects/1", "")
	p := decodeBody[models.Project](t, rec)
	assert.Equal(t, int64(400), p.NetProfit)
	assert.Equal(t, view.Revision, p.EstimateRevision)

	rec = doRequest(t, srv, http.MethodGet, "/api/projects/1/estimate/export.csv", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "project-1-estimate.csv")
	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "Section,Service,"))
	assert.Contains(t, lines[1], "Vendor:100")

	rec = doRequest(t, srv, http.MethodGet, "/api/projects/2/estimate", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSaveEstimate_Rejects(t *testing.T) {
	srv, repo := newTestServer(t, false)
	seedProject(repo, "Gala", 0)

	rec := doRequest(t, srv, http.MethodPut, "/api/projects/1/estimate",
		`{"sections":[{"id":"production"},{"id":"production"}]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, srv, http.MethodPut, "/api/projects/1/estimate",
		`{"sections":[{"id":"production","rows":[{"qty":"1","priceAct":"5","providers":[{"name":"A","percentage":"50"}]}]}]}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestCalculate(t *testing.T) {
	srv, _ := newTestServer(t, false)

	rec := doRequest(t, srv, http.MethodPost, "/api/estimates/calculate",
		`{"sections":[{"id":"production","rows":[{"qty":2,"priceEst":"500","priceAct":300,"discount":"0"}]}]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decodeBody[models.CalculateResponse](t, rec)
	assert.Equal(t, estimate.Metrics{
		TotalProjectCost: 1000,
		TotalExpenses:    600,
		NetProfit:        400,
		Profitability:    40,
		FinalProfit:      400,
	}, resp.Metrics)
	assert.Equal(t, int64(600), resp.Sections[0].Rows[0].TotalAct)
}

func TestValidateProviders(t *testing.T) {
	srv, _ := newTestServer(t, false)

	tests := []struct {
		name    string
		body    string
		valid   bool
		total   int64
		message string
	}{
		{
			name:  "full allocation",
			body:  `{"providers":[{"name":"A","percentage":"60"},{"name":"B","percentage":40}]}`,
			valid: true,
			total: 100,
		},
		{
			name:    "unnamed entry still counts",
			body:    `{"providers":[{"name":"A","percentage":"60"},{"name":"B","percentage":40},{"name":"","percentage":"30"}]}`,
			total:   130,
			message: "Total percentage must equal 100% (currently 130%)",
		},
		{
			name:    "entries without names are summed",
			body:    `{"providers":[{"percentage":60},{"percentage":30}]}`,
			total:   90,
			message: "Total percentage must equal 100% (currently 90%)",
		},
		{
			name:    "short allocation",
			body:    `{"providers":[{"name":"A","percentage":"60"}]}`,
			total:   60,
			message: "Total percentage must equal 100% (currently 60%)",
		},
		{
			name:  "no providers",
			body:  `{"providers":[]}`,
			valid: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(t, srv, http.MethodPost, "/api/providers/validate", tt.body)
			require.Equal(t, http.StatusOK, rec.Code)

			check := decodeBody[estimate.ProviderValidation](t, rec)
			assert.Equal(t, tt.valid, check.Valid)
			assert.Equal(t, tt.total, check.Total)
			assert.Equal(t, tt.message, check.Message)
		})
	}
}

func TestSections(t *testing.T) {
	srv, _ := newTestServer(t, false)

	rec := doRequest(t, srv, http.MethodGet, "/api/sections", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody[struct {
		Sections []catalog.Section `json:"sections"`
		Headers  []string          `json:"headers"`
	}](t, rec)
	assert.Len(t, body.Sections, len(catalog.DefaultSections))
	assert.Equal(t, catalog.DefaultHeaders, body.Headers)

	rec = doRequest(t, srv, http.MethodGet, "/api/sections/production", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Production", decodeBody[catalog.Section](t, rec).Title)

	rec = doRequest(t, srv, http.MethodGet, "/api/sections/catering", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDashboardAndSchema(t *testing.T) {
	srv, repo := newTestServer(t, false)
	seedProject(repo, "Alpha", 1000)

	rec := doRequest(t, srv, http.MethodGet, "/api/dashboard", "")
	require.Equal(t, http.StatusOK, rec.Code)
	summary := decodeBody[project.DashboardSummary](t, rec)
	assert.Equal(t, 1, summary.TotalProjects)
	assert.Equal(t, int64(1000), summary.TotalRevenue)

	rec = doRequest(t, srv, http.MethodGet, "/api/schema", "")
	require.Equal(t, http.StatusOK, rec.Code)
	columns := decodeBody[[]models.ColumnInfo](t, rec)
	assert.Equal(t, "id", columns[0].ColumnName)
}

func TestAuth(t *testing.T) {
	srv, repo := newTestServer(t, true)
	seedProject(repo, "Gala", 0)
	repo.AddClient(&models.ApiClient{Name: "viewer", ApiKey: "ek_view_123456", IsActive: true, Permissions: []string{models.PermProjectsRead}})
	repo.AddClient(&models.ApiClient{Name: "admin", ApiKey: "ek_admin_123456", IsActive: true, Permissions: []string{"projects:*"}})
	repo.AddClient(&models.ApiClient{Name: "revoked", ApiKey: "ek_revoked_1234", IsActive: false, Permissions: []string{"*"}})

	createBody := `{"project_name":"A","client_name":"B","producer":"C"}`

	tests := []struct {
		name    string
		method  string
		path    string
		body    string
		headers []string
		status  int
	}{
		{"health stays public", http.MethodGet, "/api/health", "", nil, http.StatusOK},
		{"missing key", http.MethodGet, "/api/projects", "", nil, http.StatusUnauthorized},
		{"unknown key", http.MethodGet, "/api/projects", "", []string{"X-API-Key", "nope"}, http.StatusUnauthorized},
		{"inactive client", http.MethodGet, "/api/projects", "", []string{"Authorization", "Bearer ek_revoked_1234"}, http.StatusUnauthorized},
		{"viewer reads", http.MethodGet, "/api/projects", "", []string{"Authorization", "Bearer ek_view_123456"}, http.StatusOK},
		{"viewer cannot write", http.MethodPost, "/api/projects", createBody, []string{"Authorization", "Bearer ek_view_123456"}, http.StatusForbidden},
		{"admin writes", http.MethodPost, "/api/projects", createBody, []string{"X-API-Key", "ek_admin_123456"}, http.StatusCreated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(t, srv, tt.method, tt.path, tt.body, tt.headers...)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
		})
	}
}

func TestAllowed(t *testing.T) {
	disabled := NewAuthMiddleware(nil, false)
	assert.True(t, disabled.Allowed(context.Background(), models.PermProjectsWrite))

	enabled := NewAuthMiddleware(nil, true)
	assert.False(t, enabled.Allowed(context.Background(), models.PermProjectsWrite))

	ctx := ContextWithClient(context.Background(), &models.ApiClient{IsActive: true, Permissions: []string{models.PermProjectsWrite}})
	assert.True(t, enabled.Allowed(ctx, models.PermProjectsWrite))
}

func TestCORSExposesContentRange(t *testing.T) {
	srv, _ := newTestServer(t, false)

	req := httptest.NewRequest(http.MethodGet, "/api/projects", bytes.NewReader(nil))
	req.Header.Set("Origin", "http://localhost:3000")
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	assert.Contains(t, rec.Header().Get("Access-Control-Expose-Headers"), "Content-Range")
}
