package tui

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/huh"

	"github.com/julianstephens/habitlog/internal/models"
	"github.com/julianstephens/habitlog/internal/utils"
)

// HabitFormModel holds the raw values of the habit form
type HabitFormModel struct {
	TemplateID string
	Name       string
	Icon       string
	Color      string
	Frequency  string
	Value      string
	Weekdays   []time.Weekday
	MonthDay   string
	StartDate  string
}

// NewHabitFormModel prefills the form from h
func NewHabitFormModel(h models.Habit) *HabitFormModel {
	f := &HabitFormModel{
		TemplateID: h.TemplateID,
		Name:       h.Name,
		Icon:       h.Icon,
		Color:      h.Color,
		Frequency:  string(h.Frequency.Type),
		Value:      "1",
		Weekdays:   h.Frequency.Weekdays,
		StartDate:  h.StartDate,
	}
	if f.Frequency == "" {
		f.Frequency = string(models.FrequencyDaily)
	}
	if h.Frequency.Value > 0 {
		f.Value = strconv.Itoa(h.Frequency.Value)
	}
	if h.Frequency.MonthDay > 0 {
		f.MonthDay = strconv.Itoa(h.Frequency.MonthDay)
	}
	return f
}

// Habit converts the form values, filling blanks from the chosen template.
func (f *HabitFormModel) Habit(templates []models.HabitTemplate) (models.Habit, error) {
	h := models.Habit{
		Name:       strings.TrimSpace(f.Name),
		Icon:       strings.TrimSpace(f.Icon),
		Color:      strings.TrimSpace(f.Color),
		TemplateID: f.TemplateID,
	}
	for _, t := range templates {
		if t.ID != f.TemplateID {
			continue
		}
		if h.Name == "" {
			h.Name = t.Name
		}
		if h.Icon == "" {
			h.Icon = t.Icon
		}
	}
	if h.Name == "" {
		return models.Habit{}, errors.New("habit name cannot be empty")
	}

	value, err := strconv.Atoi(strings.TrimSpace(f.Value))
	if err != nil {
		return models.Habit{}, fmt.Errorf("invalid value %q", f.Value)
	}
	h.Frequency = models.Frequency{Type: models.FrequencyType(f.Frequency), Value: value}
	switch h.Frequency.Type {
	case models.FrequencyWeekly:
		h.Frequency.Weekdays = f.Weekdays
	case models.FrequencyMonthly:
		day, err := strconv.Atoi(strings.TrimSpace(f.MonthDay))
		if err != nil {
			return models.Habit{}, fmt.Errorf("invalid day of month %q", f.MonthDay)
		}
		h.Frequency.MonthDay = day
	}
	if err := h.Frequency.Validate(); err != nil {
		return models.Habit{}, err
	}

	if s := strings.TrimSpace(f.StartDate); s != "" {
		day, err := utils.NormalizeDay(s)
		if err != nil {
			return models.Habit{}, err
		}
		h.StartDate = day
	}
	return h, nil
}

func validatePositive(s string) error {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 1 {
		return errors.New("must be a whole number of at least 1")
	}
	return nil
}

func validateMonthDay(s string) error {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 1 || n > 31 {
		return errors.New("must be between 1 and 31")
	}
	return nil
}

func validateDay(s string) error {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	_, err := utils.NormalizeDay(strings.TrimSpace(s))
	return err
}

// NewHabitForm builds the interactive form bound to f.
func NewHabitForm(f *HabitFormModel, templates []models.HabitTemplate) *huh.Form {
	templateOpts := []huh.Option[string]{huh.NewOption("None", "")}
	for _, t := range templates {
		label := t.Name
		if t.Icon != "" {
			label = t.Icon + " " + label
		}
		templateOpts = append(templateOpts, huh.NewOption(label, t.ID))
	}

	weekdayOpts := make([]huh.Option[time.Weekday], 0, 7)
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		weekdayOpts = append(weekdayOpts, huh.NewOption(wd.String(), wd))
	}

	return huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Template").
				Description("Blank fields are filled from the template").
				Options(templateOpts...).
				Value(&f.TemplateID),
			huh.NewInput().
				Title("Name").
				Value(&f.Name),
			huh.NewInput().
				Title("Icon").
				Value(&f.Icon),
			huh.NewInput().
				Title("Color").
				Placeholder("#4CAF50").
				Value(&f.Color),
		),
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Frequency").
				Options(
					huh.NewOption("Daily", string(models.FrequencyDaily)),
					huh.NewOption("Weekly", string(models.FrequencyWeekly)),
					huh.NewOption("Monthly", string(models.FrequencyMonthly)),
				).
				Value(&f.Frequency),
			huh.NewInput().
				Title("Times per period").
				Value(&f.Value).
				Validate(validatePositive),
			huh.NewInput().
				Title("Start date").
				Placeholder("YYYY-MM-DD, empty for today").
				Value(&f.StartDate).
				Validate(validateDay),
		),
		huh.NewGroup(
			huh.NewMultiSelect[time.Weekday]().
				Title("Weekdays").
				Options(weekdayOpts...).
				Value(&f.Weekdays).
				Validate(func(days []time.Weekday) error {
					if len(days) == 0 {
						return errors.New("pick at least one day")
					}
					return nil
				}),
		).WithHideFunc(func() bool { return f.Frequency != string(models.FrequencyWeekly) }),
		huh.NewGroup(
			huh.NewInput().
				Title("Day of month").
				Value(&f.MonthDay).
				Validate(validateMonthDay),
		).WithHideFunc(func() bool { return f.Frequency != string(models.FrequencyMonthly) }),
	)
}

// RunHabitForm asks for a habit, starting from prefill.
func RunHabitForm(prefill models.Habit, templates []models.HabitTemplate) (models.Habit, error) {
	f := NewHabitFormModel(prefill)
	if err := NewHabitForm(f, templates).Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return models.Habit{}, errors.New("cancelled")
		}
		return models.Habit{}, err
	}
	return f.Habit(templates)
}
