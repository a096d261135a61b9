package gateway

import (
	"fmt"
	"strings"
	"time"

	"github.com/julianstephens/habitlog/internal/constants"
	"github.com/julianstephens/habitlog/internal/models"
	"github.com/julianstephens/habitlog/internal/utils"
)

// LogRow is the wire shape of a habit_logs row
type LogRow struct {
	ID        string    `json:"id"`
	HabitID   string    `json:"habit_id"`
	Date      string    `json:"date"`
	Status    string    `json:"status"`
	Notes     *string   `json:"notes"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (r LogRow) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("%w: habit_logs row without id", ErrInvalidRow)
	}
	if r.HabitID == "" {
		return fmt.Errorf("%w: habit_logs row %s without habit_id", ErrInvalidRow, r.ID)
	}
	if _, err := utils.NormalizeDay(r.Date); err != nil {
		return fmt.Errorf("%w: habit_logs row %s: %v", ErrInvalidRow, r.ID, err)
	}
	if !models.LogStatus(r.Status).Valid() {
		return fmt.Errorf("%w: habit_logs row %s has status %q", ErrInvalidRow, r.ID, r.Status)
	}
	return nil
}

// Entry validates the row and converts it into a HabitLogEntry
func (r LogRow) Entry() (models.HabitLogEntry, error) {
	if err := r.Validate(); err != nil {
		return models.HabitLogEntry{}, err
	}
	day, _ := utils.NormalizeDay(r.Date)
	entry := models.HabitLogEntry{
		ID:        r.ID,
		HabitID:   r.HabitID,
		Date:      day,
		Status:    models.LogStatus(r.Status),
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
	if r.Notes != nil {
		entry.Notes = *r.Notes
	}
	return entry, nil
}

// LogInsert is the payload of a habit_logs insert
type LogInsert struct {
	HabitID string `json:"habit_id"`
	Date    string `json:"date"`
	Status  string `json:"status"`
	Notes   string `json:"notes"`
}

// LogPatch is the payload of a habit_logs update by id. HabitID restricts the
// update to a row of that habit.
type LogPatch struct {
	HabitID string `json:"habit_id"`
	Status  string `json:"status"`
	Notes   string `json:"notes"`
}

func validateLogWrite(habitID, date, status, notes string) error {
	if habitID == "" {
		return fmt.Errorf("%w: habit id is required", ErrInvalidInput)
	}
	if date != "" {
		if _, err := utils.ParseDay(date); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
	}
	if !models.LogStatus(status).Valid() {
		return fmt.Errorf("%w: invalid status %q", ErrInvalidInput, status)
	}
	if len([]rune(notes)) > constants.MaxNotesLength {
		return fmt.Errorf("%w: notes exceed %d characters", ErrInvalidInput, constants.MaxNotesLength)
	}
	return nil
}

// HabitRow is the wire shape of a habits row
type HabitRow struct {
	ID                string    `json:"id"`
	UserID            string    `json:"user_id"`
	Name              string    `json:"name"`
	Icon              *string   `json:"icon"`
	Color             *string   `json:"color"`
	FrequencyType     string    `json:"frequency_type"`
	FrequencyValue    int64     `json:"frequency_value"`
	FrequencyDays     []int64   `json:"frequency_days"`
	FrequencyMonthDay *int64    `json:"frequency_month_day"`
	StartDate         string    `json:"start_date"`
	TemplateID        *string   `json:"template_id"`
	IsArchived        bool      `json:"is_archived"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

func (r HabitRow) Validate() error {
	if r.ID == "" || r.UserID == "" {
		return fmt.Errorf("%w: habits row without id or user_id", ErrInvalidRow)
	}
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("%w: habits row %s without name", ErrInvalidRow, r.ID)
	}
	if _, err := utils.NormalizeDay(r.StartDate); err != nil {
		return fmt.Errorf("%w: habits row %s: %v", ErrInvalidRow, r.ID, err)
	}
	if err := r.frequency().Validate(); err != nil {
		return fmt.Errorf("%w: habits row %s: %v", ErrInvalidRow, r.ID, err)
	}
	return nil
}

func (r HabitRow) frequency() models.Frequency {
	f := models.Frequency{
		Type:  models.FrequencyType(r.FrequencyType),
		Value: int(r.FrequencyValue),
	}
	for _, d := range r.FrequencyDays {
		f.Weekdays = append(f.Weekdays, time.Weekday(d))
	}
	if r.FrequencyMonthDay != nil {
		f.MonthDay = int(*r.FrequencyMonthDay)
	}
	return f
}

// Habit validates the row and converts it into a Habit
func (r HabitRow) Habit() (models.Habit, error) {
	if err := r.Validate(); err != nil {
		return models.Habit{}, err
	}
	start, _ := utils.NormalizeDay(r.StartDate)
	return models.Habit{
		ID:         r.ID,
		UserID:     r.UserID,
		Name:       r.Name,
		Icon:       deref(r.Icon),
		Color:      deref(r.Color),
		Frequency:  r.frequency(),
		StartDate:  start,
		TemplateID: deref(r.TemplateID),
		Archived:   r.IsArchived,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}, nil
}

// HabitInsert is the payload of a habits insert
type HabitInsert struct {
	UserID            string  `json:"user_id"`
	Name              string  `json:"name"`
	Icon              *string `json:"icon"`
	Color             *string `json:"color"`
	FrequencyType     string  `json:"frequency_type"`
	FrequencyValue    int64   `json:"frequency_value"`
	FrequencyDays     []int64 `json:"frequency_days"`
	FrequencyMonthDay *int64  `json:"frequency_month_day"`
	StartDate         string  `json:"start_date"`
	TemplateID        *string `json:"template_id"`
}

// NewHabitInsert validates h and builds its insert payload
func NewHabitInsert(userID string, h models.Habit) (HabitInsert, error) {
	if strings.TrimSpace(h.Name) == "" {
		return HabitInsert{}, fmt.Errorf("%w: habit name is required", ErrInvalidInput)
	}
	if err := h.Frequency.Validate(); err != nil {
		return HabitInsert{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if _, err := utils.ParseDay(h.StartDate); err != nil {
		return HabitInsert{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	in := HabitInsert{
		UserID:         userID,
		Name:           strings.TrimSpace(h.Name),
		Icon:           optional(h.Icon),
		Color:          optional(h.Color),
		FrequencyType:  string(h.Frequency.Type),
		FrequencyValue: int64(h.Frequency.Value),
		StartDate:      h.StartDate,
		TemplateID:     optional(h.TemplateID),
	}
	if h.Frequency.Type == models.FrequencyWeekly {
		for _, wd := range h.Frequency.Weekdays {
			in.FrequencyDays = append(in.FrequencyDays, int64(wd))
		}
	}
	if h.Frequency.Type == models.FrequencyMonthly {
		md := int64(h.Frequency.MonthDay)
		in.FrequencyMonthDay = &md
	}
	return in, nil
}

// HabitPatch is the payload of a habits update. Nil fields are left alone.
type HabitPatch struct {
	Name       *string `json:"name,omitempty"`
	IsArchived *bool   `json:"is_archived,omitempty"`
}

// StatisticsRow is the wire shape of a habit_statistics_view row. The
// aggregate columns are null until the habit was first recomputed.
type StatisticsRow struct {
	ID              string     `json:"id"`
	UserID          string     `json:"user_id"`
	Name            string     `json:"name"`
	StartDate       string     `json:"start_date"`
	IsArchived      bool       `json:"is_archived"`
	AchievedDays    *int64     `json:"achieved_days"`
	TotalDays       *int64     `json:"total_days"`
	AchievementRate *float64   `json:"achievement_rate"`
	CalculatedAt    *time.Time `json:"calculated_at"`
}

func (r StatisticsRow) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("%w: statistics row without id", ErrInvalidRow)
	}
	if r.AchievedDays != nil && *r.AchievedDays < 0 {
		return fmt.Errorf("%w: statistics row %s has negative achieved_days", ErrInvalidRow, r.ID)
	}
	if r.TotalDays != nil && *r.TotalDays < 0 {
		return fmt.Errorf("%w: statistics row %s has negative total_days", ErrInvalidRow, r.ID)
	}
	if r.AchievementRate != nil && (*r.AchievementRate < 0 || *r.AchievementRate > 100) {
		return fmt.Errorf("%w: statistics row %s has achievement_rate %v", ErrInvalidRow, r.ID, *r.AchievementRate)
	}
	return nil
}

// Statistics validates the row and converts it into HabitStatistics
func (r StatisticsRow) Statistics() (models.HabitStatistics, error) {
	if err := r.Validate(); err != nil {
		return models.HabitStatistics{}, err
	}
	s := models.HabitStatistics{
		HabitID:   r.ID,
		UserID:    r.UserID,
		Name:      r.Name,
		StartDate: r.StartDate,
		Archived:  r.IsArchived,
	}
	if day, err := utils.NormalizeDay(r.StartDate); err == nil {
		s.StartDate = day
	}
	if r.AchievedDays != nil {
		s.AchievedDays = int(*r.AchievedDays)
	}
	if r.TotalDays != nil {
		s.TotalDays = int(*r.TotalDays)
	}
	if r.AchievementRate != nil {
		s.AchievementRate = *r.AchievementRate
	}
	if r.CalculatedAt != nil {
		s.CalculatedAt = *r.CalculatedAt
	}
	return s, nil
}

// TemplateRow is the wire shape of a habit_templates row
type TemplateRow struct {
	ID                   string  `json:"id"`
	Name                 string  `json:"name"`
	Icon                 *string `json:"icon"`
	DefaultFrequencyType string  `json:"default_frequency_type"`
}

func (r TemplateRow) Template() (models.HabitTemplate, error) {
	if r.ID == "" || r.Name == "" {
		return models.HabitTemplate{}, fmt.Errorf("%w: habit_templates row without id or name", ErrInvalidRow)
	}
	switch models.FrequencyType(r.DefaultFrequencyType) {
	case models.FrequencyDaily, models.FrequencyWeekly, models.FrequencyMonthly:
	default:
		return models.HabitTemplate{}, fmt.Errorf("%w: habit_templates row %s has frequency %q", ErrInvalidRow, r.ID, r.DefaultFrequencyType)
	}
	return models.HabitTemplate{
		ID:                   r.ID,
		Name:                 r.Name,
		Icon:                 deref(r.Icon),
		DefaultFrequencyType: models.FrequencyType(r.DefaultFrequencyType),
	}, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
