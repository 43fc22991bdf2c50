package storage

import (
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseListQuery(t *testing.T) {
	values := url.Values{}
	values.Set("filter", `{"q":"gala","status":"New"}`)
	values.Set("sort", `["net_profit","ASC"]`)
	values.Set("range", `[10,19]`)

	q := ParseListQuery(values)

	assert.Equal(t, "net_profit", q.SortField)
	assert.False(t, q.SortDesc)
	assert.Equal(t, 10, q.Offset)
	assert.Equal(t, 10, q.Limit)
	assert.Equal(t, "gala", q.Filter["q"])
}

func TestParseListQuery_Malformed(t *testing.T) {
	values := url.Values{}
	values.Set("filter", `{not json`)
	values.Set("sort", `["password","ASC"]`)
	values.Set("range", `[5,1]`)

	q := ParseListQuery(values)

	assert.Equal(t, DefaultListQuery(), q)
}

func TestParseListQuery_RangeCapped(t *testing.T) {
	values := url.Values{}
	values.Set("range", `[0,99999]`)

	q := ParseListQuery(values)
	assert.Equal(t, maxPageSize, q.Limit)
}

func TestWhereClause(t *testing.T) {
	tests := []struct {
		name     string
		filter   string
		wantSQL  string
		wantArgs []any
	}{
		{
			name:     "empty",
			filter:   `{}`,
			wantSQL:  "",
			wantArgs: nil,
		},
		{
			name:     "id list",
			filter:   `{"id":[1,2,"3"]}`,
			wantSQL:  " WHERE id IN ($1,$2,$3)",
			wantArgs: []any{int64(1), int64(2), int64(3)},
		},
		{
			name:     "empty id list matches nothing",
			filter:   `{"id":[]}`,
			wantSQL:  " WHERE FALSE",
			wantArgs: nil,
		},
		{
			name:     "scalar id",
			filter:   `{"id":7}`,
			wantSQL:  " WHERE id = $1",
			wantArgs: []any{int64(7)},
		},
		{
			name:     "full text search shares one parameter",
			filter:   `{"q":"50%"}`,
			wantSQL:  " WHERE (project_name ILIKE $1 OR client_name ILIKE $1 OR producer ILIKE $1)",
			wantArgs: []any{`%50\%%`},
		},
		{
			name:     "ranges",
			filter:   `{"total_project_cost_gte":1000,"total_project_cost_lte":"5000"}`,
			wantSQL:  " WHERE total_project_cost >= $1 AND total_project_cost <= $2",
			wantArgs: []any{int64(1000), int64(5000)},
		},
		{
			name:     "text uses ILIKE, numbers use equality",
			filter:   `{"producer":"Ann","profitability":20}`,
			wantSQL:  " WHERE producer ILIKE $1 AND profitability = $2",
			wantArgs: []any{"%Ann%", int64(20)},
		},
		{
			name:     "unknown columns never reach SQL",
			filter:   `{"password":"x","1=1; DROP TABLE projects; --":"y","secret_gte":3}`,
			wantSQL:  "",
			wantArgs: nil,
		},
		{
			name:     "unparsable values are skipped",
			filter:   `{"net_profit":"lots","creation_date_gte":"yesterday"}`,
			wantSQL:  "",
			wantArgs: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			values := url.Values{}
			values.Set("filter", tt.filter)
			q := ParseListQuery(values)

			sql, args := whereClause(q.Filter)
			assert.Equal(t, tt.wantSQL, sql)
			assert.Equal(t, tt.wantArgs, args)
		})
	}
}

func TestWhereClause_Dates(t *testing.T) {
	values := url.Values{}
	values.Set("filter", `{"creation_date_gte":"2024-01-01"}`)

	sql, args := whereClause(ParseListQuery(values).Filter)

	assert.Equal(t, " WHERE creation_date >= $1", sql)
	require.Len(t, args, 1)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), args[0])
}

func TestListSQL(t *testing.T) {
	q := ListQuery{
		Filter:    map[string]any{"status": "Complete"},
		SortField: "profitability",
		SortDesc:  true,
		Offset:    20,
		Limit:     10,
	}

	query, count, args := listSQL(q)

	assert.Equal(t, "SELECT COUNT(*) FROM projects WHERE status ILIKE $1", count)
	assert.True(t, strings.HasSuffix(query, " FROM projects WHERE status ILIKE $1 ORDER BY profitability DESC, id DESC LIMIT $2 OFFSET $3"), query)
	assert.Equal(t, []any{"%Complete%", 10, 20}, args)
}

func TestListSQL_UnknownSortFallsBack(t *testing.T) {
	query, _, args := listSQL(ListQuery{SortField: "estimate_json"})

	assert.True(t, strings.HasSuffix(query, " ORDER BY creation_date ASC, id ASC"), query)
	assert.Empty(t, args)
}

func TestUpdateSQL(t *testing.T) {
	query, args, err := updateSQL(42, map[string]any{
		"status":            "Complete",
		"net_profit":        int64(100),
		"estimate_revision": "c0ffee00-0000-0000-0000-000000000000",
	})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(query,
		"UPDATE projects SET estimate_revision = $1::uuid, net_profit = $2, status = $3, updated_at = NOW() WHERE id = $4 RETURNING "), query)
	assert.Equal(t, []any{"c0ffee00-0000-0000-0000-000000000000", int64(100), "Complete", int64(42)}, args)
}

func TestUpdateSQL_Rejects(t *testing.T) {
	_, _, err := updateSQL(1, nil)
	assert.ErrorIs(t, err, ErrNoFields)

	_, _, err = updateSQL(1, map[string]any{"id": 2})
	assert.Error(t, err)

	_, _, err = updateSQL(1, map[string]any{"creation_date": "2024-01-01"})
	assert.Error(t, err)
}

func TestColumnHelpers(t *testing.T) {
	assert.True(t, IsUpdatable("estimate_json"))
	assert.False(t, IsUpdatable("id"))
	assert.True(t, IsNumericColumn("total_bonuses"))
	assert.False(t, IsNumericColumn("producer"))
}
