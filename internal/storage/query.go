package storage

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

type columnKind int

const (
	kindText columnKind = iota
	kindInt
	kindTime
	kindJSON
)

// projectColumns is the select list of the projects table
const projectColumns = `id, project_name, client_name, producer, status, creation_date, updated_at,
	total_project_cost, total_expenses, total_bonuses, net_profit, profitability, final_profit,
	estimate_json, estimate_revision::text`

// filterable columns may appear in a list filter and in the sort
var filterable = map[string]columnKind{
	"id":                 kindInt,
	"project_name":       kindText,
	"client_name":        kindText,
	"producer":           kindText,
	"status":             kindText,
	"creation_date":      kindTime,
	"updated_at":         kindTime,
	"total_project_cost": kindInt,
	"total_expenses":     kindInt,
	"total_bonuses":      kindInt,
	"net_profit":         kindInt,
	"profitability":      kindInt,
	"final_profit":       kindInt,
}

// updatable columns may be written through UpdateProject
var updatable = map[string]columnKind{
	"project_name":       kindText,
	"client_name":        kindText,
	"producer":           kindText,
	"status":             kindText,
	"total_project_cost": kindInt,
	"total_expenses":     kindInt,
	"total_bonuses":      kindInt,
	"net_profit":         kindInt,
	"profitability":      kindInt,
	"final_profit":       kindInt,
	"estimate_json":      kindJSON,
	"estimate_revision":  kindText,
}

// IsUpdatable reports whether column may be written by UpdateProject
func IsUpdatable(column string) bool {
	_, ok := updatable[column]
	return ok
}

// IsNumericColumn reports whether column holds an integer
func IsNumericColumn(column string) bool {
	kind, ok := updatable[column]
	return ok && kind == kindInt
}

// searchColumns are matched by the "q" filter
var searchColumns = []string{"project_name", "client_name", "producer"}

const (
	defaultSortField = "creation_date"
	maxPageSize      = 1000
)

// ListQuery is a parsed list request: filter, sort and range
type ListQuery struct {
	Filter    map[string]any
	SortField string
	SortDesc  bool
	Offset    int
	Limit     int // 0 means no limit
}

// DefaultListQuery sorts newest first with no filter
func DefaultListQuery() ListQuery {
	return ListQuery{SortField: defaultSortField, SortDesc: true}
}

// ParseListQuery reads the filter, sort and range parameters sent by the
// admin dashboard. Malformed parameters are logged and ignored.
func ParseListQuery(values url.Values) ListQuery {
	q := DefaultListQuery()

	if raw := values.Get("filter"); raw != "" {
		dec := json.NewDecoder(strings.NewReader(raw))
		dec.UseNumber()
		var filter map[string]any
		if err := dec.Decode(&filter); err != nil {
			slog.Warn("ignoring malformed filter", "filter", raw, "error", err)
		} else {
			q.Filter = filter
		}
	}

	if raw := values.Get("sort"); raw != "" {
		var sortSpec []string
		if err := json.Unmarshal([]byte(raw), &sortSpec); err != nil || len(sortSpec) != 2 {
			slog.Warn("ignoring malformed sort", "sort", raw, "error", err)
		} else if _, ok := filterable[sortSpec[0]]; ok {
			q.SortField = sortSpec[0]
			q.SortDesc = strings.EqualFold(sortSpec[1], "DESC")
		} else {
			slog.Warn("ignoring sort on unknown column", "column", sortSpec[0])
		}
	}

	if raw := values.Get("range"); raw != "" {
		var rng []int
		if err := json.Unmarshal([]byte(raw), &rng); err != nil || len(rng) != 2 || rng[0] < 0 || rng[1] < rng[0] {
			slog.Warn("ignoring malformed range", "range", raw, "error", err)
		} else {
			q.Offset = rng[0]
			q.Limit = min(rng[1]-rng[0]+1, maxPageSize)
		}
	}

	return q
}

// whereClause builds the WHERE part of a list query. Keys are visited in
// sorted order so the generated SQL is stable. Unknown columns are skipped.
func whereClause(filter map[string]any) (string, []any) {
	keys := make([]string, 0, len(filter))
	for k := range filter {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var conditions []string
	var args []any
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	for _, key := range keys {
		value := filter[key]

		switch {
		case key == "q":
			s, ok := value.(string)
			if !ok || strings.TrimSpace(s) == "" {
				continue
			}
			p := next("%" + escapeLike(s) + "%")
			parts := make([]string, 0, len(searchColumns))
			for _, c := range searchColumns {
				parts = append(parts, fmt.Sprintf("%s ILIKE %s", c, p))
			}
			conditions = append(conditions, "("+strings.Join(parts, " OR ")+")")

		case key == "id":
			if list, ok := value.([]any); ok {
				var placeholders []string
				for _, item := range list {
					if id, ok := toInt(item); ok {
						placeholders = append(placeholders, next(id))
					}
				}
				if len(placeholders) == 0 {
					conditions = append(conditions, "FALSE")
					continue
				}
				conditions = append(conditions, fmt.Sprintf("id IN (%s)", strings.Join(placeholders, ",")))
				continue
			}
			if id, ok := toInt(value); ok {
				conditions = append(conditions, "id = "+next(id))
			}

		case strings.HasSuffix(key, "_gte"), strings.HasSuffix(key, "_lte"):
			column, op := strings.TrimSuffix(key, "_gte"), ">="
			if strings.HasSuffix(key, "_lte") {
				column, op = strings.TrimSuffix(key, "_lte"), "<="
			}
			kind, ok := filterable[column]
			if !ok {
				slog.Warn("ignoring filter on unknown column", "column", column)
				continue
			}
			v, ok := convert(kind, value)
			if !ok {
				continue
			}
			conditions = append(conditions, fmt.Sprintf("%s %s %s", column, op, next(v)))

		default:
			kind, ok := filterable[key]
			if !ok {
				slog.Warn("ignoring filter on unknown column", "column", key)
				continue
			}
			if s, isString := value.(string); isString && kind == kindText {
				conditions = append(conditions, fmt.Sprintf("%s ILIKE %s", key, next("%"+escapeLike(s)+"%")))
				continue
			}
			v, ok := convert(kind, value)
			if !ok {
				continue
			}
			conditions = append(conditions, fmt.Sprintf("%s = %s", key, next(v)))
		}
	}

	if len(conditions) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}

// listSQL returns the page query and the matching count query
func listSQL(q ListQuery) (string, string, []any) {
	where, args := whereClause(q.Filter)

	countQuery := "SELECT COUNT(*) FROM projects" + where

	field := q.SortField
	if _, ok := filterable[field]; !ok {
		field = defaultSortField
	}
	dir := "ASC"
	if q.SortDesc {
		dir = "DESC"
	}

	query := "SELECT " + projectColumns + " FROM projects" + where +
		fmt.Sprintf(" ORDER BY %s %s", field, dir)
	if field != "id" {
		query += ", id " + dir
	}

	pageArgs := append([]any(nil), args...)
	if q.Limit > 0 {
		pageArgs = append(pageArgs, q.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(pageArgs))
	}
	if q.Offset > 0 {
		pageArgs = append(pageArgs, q.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(pageArgs))
	}

	return query, countQuery, pageArgs
}

// updateSQL builds an UPDATE over allow-listed columns only
func updateSQL(id int64, fields map[string]any) (string, []any, error) {
	if len(fields) == 0 {
		return "", nil, ErrNoFields
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		if !IsUpdatable(k) {
			return "", nil, fmt.Errorf("column %q is not updatable", k)
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	sets := make([]string, 0, len(keys)+1)
	args := make([]any, 0, len(keys)+1)
	for _, k := range keys {
		args = append(args, fields[k])
		if k == "estimate_revision" {
			sets = append(sets, fmt.Sprintf("%s = $%d::uuid", k, len(args)))
			continue
		}
		sets = append(sets, fmt.Sprintf("%s = $%d", k, len(args)))
	}
	sets = append(sets, "updated_at = NOW()")
	args = append(args, id)

	query := fmt.Sprintf("UPDATE projects SET %s WHERE id = $%d RETURNING %s",
		strings.Join(sets, ", "), len(args), projectColumns)
	return query, args, nil
}

func convert(kind columnKind, value any) (any, bool) {
	switch kind {
	case kindInt:
		return toInt(value)
	case kindTime:
		s, ok := value.(string)
		if !ok {
			return nil, false
		}
		for _, layout := range []string{time.RFC3339, "2006-01-02"} {
			if t, err := time.Parse(layout, s); err == nil {
				return t, true
			}
		}
		return nil, false
	case kindText:
		s, ok := value.(string)
		return s, ok
	}
	return nil, false
}

func toInt(value any) (int64, bool) {
	switch v := value.(type) {
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n, true
		}
		if f, err := v.Float64(); err == nil {
			return int64(f), true
		}
	case float64:
		return int64(v), true
	case int:
		return int64(v), true
	case int64:
		return v, true
	case string:
		if n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
			return n, true
		}
	}
	return 0, false
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
