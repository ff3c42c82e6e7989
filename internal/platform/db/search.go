package db

import (
	"fmt"
	"sort"
	"strings"
)

// FilterKind selects how a search parameter is matched against its column.
type FilterKind int

const (
	FilterExact    FilterKind = iota // column = value
	FilterUpper                      // column = upper(value), for enum-like codes
	FilterDateFrom                   // column >= value::date
	FilterDateTo                     // column < value::date + 1 day
	FilterContains                   // column ILIKE %value%
)

// Filter maps a query parameter name to a column.
type Filter struct {
	Kind   FilterKind
	Column string
}

// SearchQuery builds a parameterized WHERE clause for list endpoints.
type SearchQuery struct {
	table   string
	cols    string
	where   []string
	args    []interface{}
	orderBy string
}

func NewSearchQuery(table, cols string) *SearchQuery {
	return &SearchQuery{table: table, cols: cols}
}

func (q *SearchQuery) next() int { return len(q.args) + 1 }

func (q *SearchQuery) add(clause string, arg interface{}) {
	q.where = append(q.where, fmt.Sprintf(clause, q.next()))
	q.args = append(q.args, arg)
}

// Apply adds one clause per known, non-empty parameter. Unknown parameters
// are ignored. Parameters are applied in name order so the SQL is stable.
func (q *SearchQuery) Apply(params map[string]string, filters map[string]Filter) {
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		f, ok := filters[name]
		value := strings.TrimSpace(params[name])
		if !ok || value == "" {
			continue
		}
		switch f.Kind {
		case FilterExact:
			q.add(f.Column+" = $%d", value)
		case FilterUpper:
			q.add(f.Column+" = $%d", strings.ToUpper(value))
		case FilterDateFrom:
			q.add(f.Column+" >= $%d::date", value)
		case FilterDateTo:
			q.add(f.Column+" < $%d::date + INTERVAL '1 day'", value)
		case FilterContains:
			q.add(f.Column+" ILIKE $%d", "%"+value+"%")
		}
	}
}

func (q *SearchQuery) OrderBy(orderBy string) { q.orderBy = orderBy }

func (q *SearchQuery) whereSQL() string {
	if len(q.where) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(q.where, " AND ")
}

func (q *SearchQuery) CountSQL() string {
	return fmt.Sprintf("SELECT COUNT(*) FROM %s%s", q.table, q.whereSQL())
}

func (q *SearchQuery) CountArgs() []interface{} { return q.args }

func (q *SearchQuery) DataSQL() string {
	sql := fmt.Sprintf("SELECT %s FROM %s%s", q.cols, q.table, q.whereSQL())
	if q.orderBy != "" {
		sql += " ORDER BY " + q.orderBy
	}
	return sql + fmt.Sprintf(" LIMIT $%d OFFSET $%d", q.next(), q.next()+1)
}

func (q *SearchQuery) DataArgs(limit, offset int) []interface{} {
	out := make([]interface{}, 0, len(q.args)+2)
	out = append(out, q.args...)
	return append(out, limit, offset)
}
