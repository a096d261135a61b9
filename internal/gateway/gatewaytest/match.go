package gatewaytest

import (
	"sort"
	"time"

	"github.com/julianstephens/habitlog/internal/gateway"
)

type columnsFunc[T any] func(T) map[string]any

func logColumns(r gateway.LogRow) map[string]any {
	return map[string]any{
		"id":         r.ID,
		"habit_id":   r.HabitID,
		"date":       r.Date,
		"status":     r.Status,
		"created_at": r.CreatedAt,
		"updated_at": r.UpdatedAt,
	}
}

func habitColumns(r gateway.HabitRow) map[string]any {
	return map[string]any{
		"id":             r.ID,
		"user_id":        r.UserID,
		"name":           r.Name,
		"frequency_type": r.FrequencyType,
		"start_date":     r.StartDate,
		"is_archived":    r.IsArchived,
		"created_at":     r.CreatedAt,
		"updated_at":     r.UpdatedAt,
	}
}

func statisticsColumns(r gateway.StatisticsRow) map[string]any {
	rate := 0.0
	if r.AchievementRate != nil {
		rate = *r.AchievementRate
	}
	return map[string]any{
		"id":               r.ID,
		"user_id":          r.UserID,
		"name":             r.Name,
		"start_date":       r.StartDate,
		"is_archived":      r.IsArchived,
		"achievement_rate": rate,
	}
}

func templateColumns(r gateway.TemplateRow) map[string]any {
	return map[string]any{
		"id":                     r.ID,
		"name":                   r.Name,
		"default_frequency_type": r.DefaultFrequencyType,
	}
}

func matches(q gateway.Query, cols map[string]any) bool {
	for _, f := range q.Filters {
		c := compare(cols[f.Column], f.Value)
		switch f.Op {
		case gateway.OpEq:
			if c != 0 {
				return false
			}
		case gateway.OpGte:
			if c < 0 {
				return false
			}
		case gateway.OpLte:
			if c > 0 {
				return false
			}
		}
	}
	return true
}

func sortRows[T any](rows []T, q gateway.Query, cols columnsFunc[T]) {
	if q.OrderBy == "" {
		return
	}
	sort.SliceStable(rows, func(i, j int) bool {
		c := compare(cols(rows[i])[q.OrderBy], cols(rows[j])[q.OrderBy])
		if q.Descending {
			return c > 0
		}
		return c < 0
	})
}

func limit[T any](rows []T, n int) []T {
	if n > 0 && len(rows) > n {
		return rows[:n]
	}
	return rows
}

// compare orders two column values of the same type. Mismatched or
// unsupported types compare unequal.
func compare(a, b any) int {
	switch x := a.(type) {
	case string:
		y, ok := b.(string)
		if !ok {
			return -1
		}
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
		return 0
	case bool:
		y, ok := b.(bool)
		if !ok || x != y {
			return -1
		}
		return 0
	case float64:
		y, ok := b.(float64)
		if !ok {
			return -1
		}
		switch {
		case x < y:
			return -1
		case x > y:
			return 1
		}
		return 0
	case time.Time:
		y, ok := b.(time.Time)
		if !ok {
			return -1
		}
		return x.Compare(y)
	}
	return -1
}
