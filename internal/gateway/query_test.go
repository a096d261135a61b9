package gateway

import (
	"errors"
	"reflect"
	"testing"

	"github.com/julianstephens/habitlog/internal/constants"
)

func TestQuerySQL(t *testing.T) {
	q := From(constants.TableHabitLogs).
		Eq("habit_id", "h1").
		Gte("date", "2024-03-01").
		Lte("date", "2024-03-07").
		Order("date", false)

	sql, args, err := q.SQL(QuestionPlaceholder)
	if err != nil {
		t.Fatalf("SQL() error = %v", err)
	}
	want := "SELECT id, habit_id, date, status, notes, created_at, updated_at FROM habit_logs " +
		"WHERE habit_id = ? AND date >= ? AND date <= ? ORDER BY date ASC"
	if sql != want {
		t.Errorf("SQL() =\n%s\nwant\n%s", sql, want)
	}
	if !reflect.DeepEqual(args, []any{"h1", "2024-03-01", "2024-03-07"}) {
		t.Errorf("args = %v", args)
	}
}

func TestQuerySQLDollarPlaceholders(t *testing.T) {
	q := From(constants.TableHabits).Eq("user_id", "u1").Eq("is_archived", false).Order("created_at", true).WithLimit(5)

	sql, args, err := q.SQL(DollarPlaceholder)
	if err != nil {
		t.Fatalf("SQL() error = %v", err)
	}
	want := "WHERE user_id = $1 AND is_archived = $2 ORDER BY created_at DESC LIMIT 5"
	if len(sql) < len(want) || sql[len(sql)-len(want):] != want {
		t.Errorf("SQL() = %s, want suffix %s", sql, want)
	}
	if len(args) != 2 {
		t.Errorf("len(args) = %d, want 2", len(args))
	}
}

func TestQueryValidate(t *testing.T) {
	tests := []struct {
		name string
		q    Query
	}{
		{"unknown table", From("users")},
		{"unknown column", From(constants.TableHabitLogs).Eq("user_id", "u1")},
		{"injected column", From(constants.TableHabitLogs).Eq("date; DROP TABLE habits", "x")},
		{"unknown order", From(constants.TableHabits).Order("color; --", false)},
		{"bad operator", Query{Table: constants.TableHabits, Filters: []Filter{{Column: "id", Op: "LIKE"}}}},
		{"negative limit", From(constants.TableHabits).WithLimit(-1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := tt.q.SQL(QuestionPlaceholder); !errors.Is(err, ErrInvalidQuery) {
				t.Errorf("SQL() error = %v, want ErrInvalidQuery", err)
			}
		})
	}
}

func TestQueryBuildersDoNotAlias(t *testing.T) {
	base := From(constants.TableHabitLogs).Eq("habit_id", "h1")
	a := base.Gte("date", "2024-03-01")
	b := base.Gte("date", "2024-04-01")

	if len(base.Filters) != 1 {
		t.Fatalf("base query was modified: %+v", base.Filters)
	}
	if a.Filters[1].Value == b.Filters[1].Value {
		t.Error("derived queries share filter storage")
	}
}
