package models

import (
	"fmt"
	"time"
)

// LogStatus is the completion status of a habit on one day. The string
// values are exactly what travels on the wire.
type LogStatus string

const (
	StatusUnchecked   LogStatus = "unchecked"
	StatusAchieved    LogStatus = "achieved"
	StatusNotAchieved LogStatus = "not_achieved"
)

// Valid reports whether s is one of the three wire values
func (s LogStatus) Valid() bool {
	switch s {
	case StatusUnchecked, StatusAchieved, StatusNotAchieved:
		return true
	}
	return false
}

// Next cycles unchecked -> achieved -> not_achieved -> unchecked
func (s LogStatus) Next() LogStatus {
	switch s {
	case StatusUnchecked:
		return StatusAchieved
	case StatusAchieved:
		return StatusNotAchieved
	default:
		return StatusUnchecked
	}
}

// ParseLogStatus validates a wire value
func ParseLogStatus(v string) (LogStatus, error) {
	s := LogStatus(v)
	if !s.Valid() {
		return "", fmt.Errorf("invalid status %q (expected unchecked, achieved or not_achieved)", v)
	}
	return s, nil
}

// HabitLogEntry is the completion record of one habit on one calendar day.
// An empty ID marks an entry that has not been persisted yet: the default
// projection for a day without a stored row.
type HabitLogEntry struct {
	ID        string    `json:"id,omitempty"`
	HabitID   string    `json:"habit_id"`
	Date      string    `json:"date"` // YYYY-MM-DD format
	Status    LogStatus `json:"status"`
	Notes     string    `json:"notes"`
	CreatedAt time.Time `json:"created_at,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// Persisted reports whether the entry is backed by a stored row
func (e HabitLogEntry) Persisted() bool {
	return e.ID != ""
}

// DefaultLogEntry is the read-time projection of a day without a stored row
func DefaultLogEntry(habitID, date string) HabitLogEntry {
	return HabitLogEntry{
		HabitID: habitID,
		Date:    date,
		Status:  StatusUnchecked,
		Notes:   "",
	}
}
