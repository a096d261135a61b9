// Package reconcile turns the sparse log rows of a habit into a dense window
// of calendar days.
package reconcile

import (
	"context"
	"fmt"

	"github.com/julianstephens/habitlog/internal/constants"
	"github.com/julianstephens/habitlog/internal/errors"
	"github.com/julianstephens/habitlog/internal/gateway"
	"github.com/julianstephens/habitlog/internal/logger"
	"github.com/julianstephens/habitlog/internal/models"
	"github.com/julianstephens/habitlog/internal/utils"
)

// Source is the part of the gateway the engine reads from.
type Source interface {
	Logs(ctx context.Context, habitID, from, to string) ([]models.HabitLogEntry, error)
	Today() string
}

// Window is one entry per day from Start to End inclusive, ascending.
type Window struct {
	HabitID string
	Start   string
	End     string
	Entries []models.HabitLogEntry
}

func (w Window) Len() int { return len(w.Entries) }

// Index returns the position of date in the window, or -1.
func (w Window) Index(date string) int {
	if date < w.Start || date > w.End {
		return -1
	}
	n, err := utils.DaysBetween(w.Start, date)
	if err != nil || n >= len(w.Entries) {
		return -1
	}
	return n
}

func (w Window) Entry(date string) (models.HabitLogEntry, bool) {
	i := w.Index(date)
	if i < 0 {
		return models.HabitLogEntry{}, false
	}
	return w.Entries[i], true
}

// Clone returns a copy that shares no memory with w.
func (w Window) Clone() Window {
	c := w
	c.Entries = append([]models.HabitLogEntry(nil), w.Entries...)
	return c
}

type Engine struct {
	src Source
}

func NewEngine(src Source) *Engine {
	return &Engine{src: src}
}

// Anchor clamps end to today. An empty end means today.
func (e *Engine) Anchor(end string) (string, error) {
	today := e.src.Today()
	if end == "" {
		return today, nil
	}
	if _, err := utils.ParseDay(end); err != nil {
		return "", err
	}
	return utils.ClampDay(end, today), nil
}

// Reconcile returns the window of length days ending at end (clamped to
// today). Days without a stored row get the default entry. Any failure is a
// fetch error and no window is returned.
func (e *Engine) Reconcile(ctx context.Context, habitID, end string, length int) (Window, error) {
	if habitID == "" {
		return Window{}, errors.FetchError(fmt.Errorf("%w: habit id is required", gateway.ErrInvalidInput))
	}
	if length < 1 || length > constants.MaxWindowLength {
		return Window{}, errors.FetchError(fmt.Errorf("%w: window length must be between 1 and %d, got %d",
			gateway.ErrInvalidInput, constants.MaxWindowLength, length))
	}

	anchor, err := e.Anchor(end)
	if err != nil {
		return Window{}, errors.FetchError(fmt.Errorf("%w: %v", gateway.ErrInvalidInput, err))
	}
	days, err := windowDays(anchor, length)
	if err != nil {
		return Window{}, errors.FetchError(fmt.Errorf("%w: %v", gateway.ErrInvalidInput, err))
	}
	start := days[0]

	rows, err := e.src.Logs(ctx, habitID, start, anchor)
	if err != nil {
		return Window{}, errors.FetchError(err)
	}

	byDate := make(map[string]models.HabitLogEntry, len(rows))
	for _, row := range rows {
		if _, dup := byDate[row.Date]; dup {
			logger.Warn("duplicate habit log", "habit", habitID, "date", row.Date, "id", row.ID)
			continue
		}
		byDate[row.Date] = row
	}

	entries := make([]models.HabitLogEntry, 0, length)
	for _, day := range days {
		if row, ok := byDate[day]; ok {
			entries = append(entries, row)
			continue
		}
		entries = append(entries, models.DefaultLogEntry(habitID, day))
	}

	logger.Debug("reconciled window", "habit", habitID, "start", start, "end", anchor, "persisted", len(byDate))
	return Window{HabitID: habitID, Start: start, End: anchor, Entries: entries}, nil
}

func windowDays(end string, length int) ([]string, error) {
	start, err := utils.WindowStart(end, length)
	if err != nil {
		return nil, err
	}
	return utils.DayRange(start, end)
}
