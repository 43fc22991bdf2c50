package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/terra-clan/estimate-engine/internal/models"
	"github.com/terra-clan/estimate-engine/internal/storage"
)

// InMemoryProjectStore implements storage.Repository
type InMemoryProjectStore struct {
	mu       sync.RWMutex
	nextID   int64
	projects map[int64]*models.Project
	clients  map[string]*models.ApiClient

	// PingErr is returned by Ping when set
	PingErr error
}

var _ storage.Repository = (*InMemoryProjectStore)(nil)

// NewInMemoryProjectStore creates an empty store
func NewInMemoryProjectStore() *InMemoryProjectStore {
	return &InMemoryProjectStore{
		nextID:   1,
		projects: make(map[int64]*models.Project),
		clients:  make(map[string]*models.ApiClient),
	}
}

func copyProject(p *models.Project) *models.Project {
	if p == nil {
		return nil
	}
	copied := *p
	if p.EstimateJSON != nil {
		copied.EstimateJSON = append(json.RawMessage(nil), p.EstimateJSON...)
	}
	return &copied
}

// Seed stores p as is, assigning an id when it has none
func (s *InMemoryProjectStore) Seed(p *models.Project) *models.Project {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.ID == 0 {
		p.ID = s.nextID
	}
	if p.ID >= s.nextID {
		s.nextID = p.ID + 1
	}
	if p.CreationDate.IsZero() {
		p.CreationDate = time.Now().UTC()
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = p.CreationDate
	}
	s.projects[p.ID] = copyProject(p)
	return copyProject(p)
}

// AddClient registers an API client
func (s *InMemoryProjectStore) AddClient(c *models.ApiClient) {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *c
	s.clients[c.ApiKey] = &copied
}

func (s *InMemoryProjectStore) CreateProject(ctx context.Context, p *models.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	p.ID = s.nextID
	s.nextID++
	p.CreationDate = now
	p.UpdatedAt = now
	s.projects[p.ID] = copyProject(p)
	return nil
}

func (s *InMemoryProjectStore) GetProject(ctx context.Context, id int64) (*models.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyProject(s.projects[id]), nil
}

func (s *InMemoryProjectStore) UpdateProject(ctx context.Context, id int64, fields map[string]any) (*models.Project, error) {
	if len(fields) == 0 {
		return nil, storage.ErrNoFields
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.projects[id]
	if !ok {
		return nil, nil
	}

	updated := copyProject(p)
	for column, value := range fields {
		if !storage.IsUpdatable(column) {
			return nil, fmt.Errorf("column %q is not updatable", column)
		}
		if err := setColumn(updated, column, value); err != nil {
			return nil, err
		}
	}
	updated.UpdatedAt = time.Now().UTC()

	s.projects[id] = updated
	return copyProject(updated), nil
}

func (s *InMemoryProjectStore) DeleteProject(ctx context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.projects[id]; !ok {
		return false, nil
	}
	delete(s.projects, id)
	return true, nil
}

func (s *InMemoryProjectStore) ListProjects(ctx context.Context, q storage.ListQuery) ([]*models.Project, int, error) {
	s.mu.RLock()
	all := lo.Map(lo.Values(s.projects), func(p *models.Project, _ int) *models.Project { return copyProject(p) })
	s.mu.RUnlock()

	matched := lo.Filter(all, func(p *models.Project, _ int) bool { return matches(p, q.Filter) })

	field := q.SortField
	if field == "" {
		field = "creation_date"
	}
	sort.SliceStable(matched, func(i, j int) bool {
		c := compare(column(matched[i], field), column(matched[j], field))
		if c == 0 {
			c = compare(matched[i].ID, matched[j].ID)
		}
		if q.SortDesc {
			return c > 0
		}
		return c < 0
	})

	total := len(matched)
	start := min(q.Offset, total)
	end := total
	if q.Limit > 0 {
		end = min(start+q.Limit, total)
	}

	return matched[start:end], total, nil
}

func (s *InMemoryProjectStore) ListProjectsWithEstimate(ctx context.Context) ([]*models.Project, error) {
	projects, _, err := s.ListProjects(ctx, storage.ListQuery{SortField: "id"})
	if err != nil {
		return nil, err
	}
	return lo.Filter(projects, func(p *models.Project, _ int) bool { return p.HasEstimate() }), nil
}

func (s *InMemoryProjectStore) DescribeProjects(ctx context.Context) ([]models.ColumnInfo, error) {
	return []models.ColumnInfo{
		{ColumnName: "id", DataType: "bigint", IsNullable: "NO"},
		{ColumnName: "project_name", DataType: "text", IsNullable: "NO"},
		{ColumnName: "client_name", DataType: "text", IsNullable: "NO"},
		{ColumnName: "producer", DataType: "text", IsNullable: "NO"},
		{ColumnName: "status", DataType: "text", IsNullable: "NO"},
		{ColumnName: "creation_date", DataType: "timestamp with time zone", IsNullable: "NO"},
		{ColumnName: "estimate_json", DataType: "jsonb", IsNullable: "YES"},
	}, nil
}

func (s *InMemoryProjectStore) GetClientByApiKey(ctx context.Context, apiKey string) (*models.ApiClient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.clients[apiKey]
	if !ok {
		return nil, nil
	}
	copied := *c
	return &copied, nil
}

func (s *InMemoryProjectStore) UpdateClientLastUsed(ctx context.Context, apiKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.clients[apiKey]; ok {
		now := time.Now().UTC()
		c.LastUsedAt = &now
	}
	return nil
}

func (s *InMemoryProjectStore) Ping(ctx context.Context) error {
	return s.PingErr
}

func (s *InMemoryProjectStore) Close() error {
	return nil
}

func setColumn(p *models.Project, name string, value any) error {
	switch name {
	case "project_name", "client_name", "producer", "status", "estimate_revision":
		v, ok := value.(string)
		if !ok {
			return fmt.Errorf("column %s expects a string, got %T", name, value)
		}
		switch name {
		case "project_name":
			p.ProjectName = v
		case "client_name":
			p.ClientName = v
		case "producer":
			p.Producer = v
		case "status":
			p.Status = models.ProjectStatus(v)
		case "estimate_revision":
			p.EstimateRevision = v
		}
	case "estimate_json":
		switch v := value.(type) {
		case []byte:
			p.EstimateJSON = append(json.RawMessage(nil), v...)
		case json.RawMessage:
			p.EstimateJSON = append(json.RawMessage(nil), v...)
		case nil:
			p.EstimateJSON = nil
		default:
			return fmt.Errorf("column estimate_json expects bytes, got %T", value)
		}
	default:
		v, ok := value.(int64)
		if !ok {
			return fmt.Errorf("column %s expects int64, got %T", name, value)
		}
		switch name {
		case "total_project_cost":
			p.TotalProjectCost = v
		case "total_expenses":
			p.TotalExpenses = v
		case "total_bonuses":
			p.TotalBonuses = v
		case "net_profit":
			p.NetProfit = v
		case "profitability":
			p.Profitability = v
		case "final_profit":
			p.FinalProfit = v
		default:
			return fmt.Errorf("unknown column %s", name)
		}
	}
	return nil
}

func column(p *models.Project, name string) any {
	switch name {
	case "id":
		return p.ID
	case "project_name":
		return p.ProjectName
	case "client_name":
		return p.ClientName
	case "producer":
		return p.Producer
	case "status":
		return string(p.Status)
	case "creation_date":
		return p.CreationDate
	case "updated_at":
		return p.UpdatedAt
	case "total_project_cost":
		return p.TotalProjectCost
	case "total_expenses":
		return p.TotalExpenses
	case "total_bonuses":
		return p.TotalBonuses
	case "net_profit":
		return p.NetProfit
	case "profitability":
		return p.Profitability
	case "final_profit":
		return p.FinalProfit
	}
	return nil
}

func compare(a, b any) int {
	switch x := a.(type) {
	case int64:
		y, _ := b.(int64)
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
		return 0
	case string:
		y, _ := b.(string)
		return strings.Compare(x, y)
	case time.Time:
		y, _ := b.(time.Time)
		return x.Compare(y)
	}
	return 0
}

// matches applies the subset of list filters the tests rely on: id, q,
// text containment, integer equality and integer ranges
func matches(p *models.Project, filter map[string]any) bool {
	for key, value := range filter {
		switch {
		case key == "q":
			needle := strings.ToLower(fmt.Sprint(value))
			hay := strings.ToLower(p.ProjectName + "\n" + p.ClientName + "\n" + p.Producer)
			if !strings.Contains(hay, needle) {
				return false
			}
		case key == "id":
			ids, isList := value.([]any)
			if !isList {
				ids = []any{value}
			}
			if !lo.ContainsBy(ids, func(v any) bool { n, ok := toInt(v); return ok && n == p.ID }) {
				return false
			}
		case strings.HasSuffix(key, "_gte"):
			n, ok := toInt(value)
			v, isInt := column(p, strings.TrimSuffix(key, "_gte")).(int64)
			if ok && isInt && v < n {
				return false
			}
		case strings.HasSuffix(key, "_lte"):
			n, ok := toInt(value)
			v, isInt := column(p, strings.TrimSuffix(key, "_lte")).(int64)
			if ok && isInt && v > n {
				return false
			}
		default:
			switch v := column(p, key).(type) {
			case string:
				if !strings.Contains(strings.ToLower(v), strings.ToLower(fmt.Sprint(value))) {
					return false
				}
			case int64:
				if n, ok := toInt(value); ok && n != v {
					return false
				}
			}
		}
	}
	return true
}

func toInt(v any) (int64, bool) {
	switch n := v.(type) {
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	case float64:
		return int64(n), true
	case int:
		return int64(n), true
	case int64:
		return n, true
	}
	return 0, false
}
