package models

import (
	"math"
	"time"

	"github.com/julianstephens/habitlog/internal/utils"
)

// HabitStatistics is the server-computed achievement aggregate of a habit
type HabitStatistics struct {
	HabitID         string    `json:"id"`
	UserID          string    `json:"user_id"`
	Name            string    `json:"name"`
	StartDate       string    `json:"start_date"`
	Archived        bool      `json:"is_archived"`
	AchievedDays    int       `json:"achieved_days"`
	TotalDays       int       `json:"total_days"`
	AchievementRate float64   `json:"achievement_rate"` // percentage
	CalculatedAt    time.Time `json:"calculated_at"`
}

// Calculated reports whether the statistics were ever computed
func (s HabitStatistics) Calculated() bool {
	return !s.CalculatedAt.IsZero()
}

// Aggregate returns the number of tracked days from startDate through today
// inclusive (zero when the habit starts in the future) and the achievement
// percentage rounded to two decimals. achieved must only count logs inside
// that range.
func Aggregate(startDate, today string, achieved int) (int, float64, error) {
	n, err := utils.DaysBetween(startDate, today)
	if err != nil {
		return 0, 0, err
	}
	total := n + 1
	if total <= 0 {
		return 0, 0, nil
	}
	rate := math.Round(float64(achieved)*100/float64(total)*100) / 100
	return total, rate, nil
}
