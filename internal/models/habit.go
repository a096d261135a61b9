package models

import (
	"fmt"
	"strings"
	"time"
)

// FrequencyType describes how often a habit is expected to happen
type FrequencyType string

const (
	FrequencyDaily   FrequencyType = "daily"
	FrequencyWeekly  FrequencyType = "weekly"
	FrequencyMonthly FrequencyType = "monthly"
)

// Frequency is a habit's recurrence descriptor
type Frequency struct {
	Type     FrequencyType  `json:"type"`
	Value    int            `json:"value"`
	Weekdays []time.Weekday `json:"weekdays,omitempty"`
	MonthDay int            `json:"month_day,omitempty"`
}

// Validate checks the parameters required by the frequency type
func (f Frequency) Validate() error {
	if f.Value < 1 {
		return fmt.Errorf("frequency value must be at least 1, got %d", f.Value)
	}
	switch f.Type {
	case FrequencyDaily:
		return nil
	case FrequencyWeekly:
		if len(f.Weekdays) == 0 {
			return fmt.Errorf("weekly frequency requires at least one weekday")
		}
		for _, wd := range f.Weekdays {
			if wd < time.Sunday || wd > time.Saturday {
				return fmt.Errorf("invalid weekday: %d", wd)
			}
		}
		return nil
	case FrequencyMonthly:
		if f.MonthDay < 1 || f.MonthDay > 31 {
			return fmt.Errorf("monthly frequency requires a day between 1 and 31, got %d", f.MonthDay)
		}
		return nil
	default:
		return fmt.Errorf("unknown frequency type %q", f.Type)
	}
}

func (f Frequency) String() string {
	switch f.Type {
	case FrequencyWeekly:
		days := make([]string, 0, len(f.Weekdays))
		for _, wd := range f.Weekdays {
			days = append(days, wd.String()[:3])
		}
		return "weekly on " + strings.Join(days, ",")
	case FrequencyMonthly:
		return fmt.Sprintf("monthly on day %d", f.MonthDay)
	default:
		return string(f.Type)
	}
}

// Habit is a user-defined recurring activity. Habits are archived, never
// hard deleted.
type Habit struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	Name       string    `json:"name"`
	Icon       string    `json:"icon,omitempty"`
	Color      string    `json:"color,omitempty"`
	Frequency  Frequency `json:"frequency"`
	StartDate  string    `json:"start_date"` // YYYY-MM-DD format
	TemplateID string    `json:"template_id,omitempty"`
	Archived   bool      `json:"is_archived"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// HabitTemplate is a predefined habit suggestion
type HabitTemplate struct {
	ID                   string        `json:"id"`
	Name                 string        `json:"name"`
	Icon                 string        `json:"icon,omitempty"`
	DefaultFrequencyType FrequencyType `json:"default_frequency_type"`
}
