package gateway

import (
	"fmt"
	"strings"

	"github.com/julianstephens/habitlog/internal/constants"
)

// FilterOp is a comparison supported by Query
type FilterOp string

const (
	OpEq  FilterOp = "="
	OpGte FilterOp = ">="
	OpLte FilterOp = "<="
)

// Filter restricts a Query to rows where Column Op Value holds
type Filter struct {
	Column string
	Op     FilterOp
	Value  any
}

// Query is a range-filtered read against one table or view. Build it with
// From and the chained helpers.
type Query struct {
	Table      string
	Filters    []Filter
	OrderBy    string
	Descending bool
	Limit      int
}

// columns lists, per table, the selectable columns in scan order.
var columns = map[string][]string{
	constants.TableHabitLogs: {"id", "habit_id", "date", "status", "notes", "created_at", "updated_at"},
	constants.TableHabits: {
		"id", "user_id", "name", "icon", "color", "frequency_type", "frequency_value",
		"frequency_days", "frequency_month_day", "start_date", "template_id", "is_archived",
		"created_at", "updated_at",
	},
	constants.TableTemplates: {"id", "name", "icon", "default_frequency_type"},
	constants.TableStatistics: {
		"id", "user_id", "name", "start_date", "is_archived", "achieved_days", "total_days",
		"achievement_rate", "calculated_at",
	},
}

// Columns returns the scan-ordered column list of table, or nil if unknown.
func Columns(table string) []string {
	return columns[table]
}

func From(table string) Query {
	return Query{Table: table}
}

func (q Query) Eq(column string, value any) Query {
	return q.where(column, OpEq, value)
}

func (q Query) Gte(column string, value any) Query {
	return q.where(column, OpGte, value)
}

func (q Query) Lte(column string, value any) Query {
	return q.where(column, OpLte, value)
}

// Order sorts by column, ascending unless desc is set.
func (q Query) Order(column string, desc bool) Query {
	q.OrderBy = column
	q.Descending = desc
	return q
}

func (q Query) WithLimit(n int) Query {
	q.Limit = n
	return q
}

func (q Query) where(column string, op FilterOp, value any) Query {
	filters := make([]Filter, len(q.Filters), len(q.Filters)+1)
	copy(filters, q.Filters)
	q.Filters = append(filters, Filter{Column: column, Op: op, Value: value})
	return q
}

// Validate checks the table, every referenced column and every operator.
func (q Query) Validate() error {
	cols, ok := columns[q.Table]
	if !ok {
		return fmt.Errorf("%w: unknown table %q", ErrInvalidQuery, q.Table)
	}
	for _, f := range q.Filters {
		if !contains(cols, f.Column) {
			return fmt.Errorf("%w: unknown column %q on %s", ErrInvalidQuery, f.Column, q.Table)
		}
		switch f.Op {
		case OpEq, OpGte, OpLte:
		default:
			return fmt.Errorf("%w: unsupported operator %q", ErrInvalidQuery, f.Op)
		}
	}
	if q.OrderBy != "" && !contains(cols, q.OrderBy) {
		return fmt.Errorf("%w: unknown order column %q on %s", ErrInvalidQuery, q.OrderBy, q.Table)
	}
	if q.Limit < 0 {
		return fmt.Errorf("%w: negative limit", ErrInvalidQuery)
	}
	return nil
}

// SQL compiles q into a SELECT statement. placeholder renders the n-th
// (1-based) bind parameter in the driver's dialect.
func (q Query) SQL(placeholder func(n int) string) (string, []any, error) {
	if err := q.Validate(); err != nil {
		return "", nil, err
	}

	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(strings.Join(columns[q.Table], ", "))
	b.WriteString(" FROM ")
	b.WriteString(q.Table)

	args := make([]any, 0, len(q.Filters))
	for i, f := range q.Filters {
		if i == 0 {
			b.WriteString(" WHERE ")
		} else {
			b.WriteString(" AND ")
		}
		args = append(args, f.Value)
		fmt.Fprintf(&b, "%s %s %s", f.Column, f.Op, placeholder(len(args)))
	}

	if q.OrderBy != "" {
		b.WriteString(" ORDER BY ")
		b.WriteString(q.OrderBy)
		if q.Descending {
			b.WriteString(" DESC")
		} else {
			b.WriteString(" ASC")
		}
	}
	if q.Limit > 0 {
		fmt.Fprintf(&b, " LIMIT %d", q.Limit)
	}

	return b.String(), args, nil
}

// QuestionPlaceholder renders SQLite style parameters.
func QuestionPlaceholder(int) string { return "?" }

// DollarPlaceholder renders PostgreSQL style parameters.
func DollarPlaceholder(n int) string { return fmt.Sprintf("$%d", n) }

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
