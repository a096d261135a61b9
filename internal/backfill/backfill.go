// Package backfill fills in the log of every active daily habit for a day
// that was left unrecorded.
package backfill

import (
	"context"
	"fmt"

	"github.com/julianstephens/habitlog/internal/gateway"
	"github.com/julianstephens/habitlog/internal/logger"
	"github.com/julianstephens/habitlog/internal/models"
	"github.com/julianstephens/habitlog/internal/utils"
)

type Gateway interface {
	Habits(ctx context.Context, filter gateway.HabitFilter) ([]models.Habit, error)
	Logs(ctx context.Context, habitID, from, to string) ([]models.HabitLogEntry, error)
	InsertLogs(ctx context.Context, entries []models.HabitLogEntry, mode gateway.ConflictMode) ([]models.HabitLogEntry, error)
	Today() string
}

// Report summarizes one run.
type Report struct {
	Date      string `json:"date"`
	Processed int    `json:"processed"`
	Created   int    `json:"created"`
	Failed    int    `json:"failed"`
}

func (r Report) String() string {
	return fmt.Sprintf("Processed %d habits, created %d logs", r.Processed, r.Created)
}

type Job struct {
	gw     Gateway
	status models.LogStatus
}

type Option func(*Job)

// WithStatus sets the status written for unrecorded days.
func WithStatus(s models.LogStatus) Option {
	return func(j *Job) { j.status = s }
}

func New(gw Gateway, opts ...Option) *Job {
	j := &Job{gw: gw, status: models.StatusAchieved}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Run backfills date, or yesterday when date is empty. Habits whose lookup
// fails are logged and skipped. Existing logs are never overwritten, even
// when a user writes the same day concurrently.
func (j *Job) Run(ctx context.Context, date string) (Report, error) {
	if !j.status.Valid() {
		return Report{}, fmt.Errorf("%w: invalid backfill status %q", gateway.ErrInvalidInput, j.status)
	}

	var err error
	if date == "" {
		date, err = utils.AddDays(j.gw.Today(), -1)
	} else {
		_, err = utils.ParseDay(date)
	}
	if err != nil {
		return Report{}, err
	}
	report := Report{Date: date}

	habits, err := j.gw.Habits(ctx, gateway.HabitFilter{Frequency: models.FrequencyDaily})
	if err != nil {
		return report, fmt.Errorf("failed to list daily habits: %w", err)
	}

	var missing []models.HabitLogEntry
	for _, h := range habits {
		if h.StartDate > date {
			continue
		}
		report.Processed++

		existing, err := j.gw.Logs(ctx, h.ID, date, date)
		if err != nil {
			report.Failed++
			logger.Error("failed to check habit log", "habit", h.ID, "date", date, "error", err)
			continue
		}
		if len(existing) > 0 {
			continue
		}
		missing = append(missing, models.HabitLogEntry{
			HabitID: h.ID,
			Date:    date,
			Status:  j.status,
			Notes:   "",
		})
	}

	if len(missing) > 0 {
		created, err := j.gw.InsertLogs(ctx, missing, gateway.ConflictIgnore)
		if err != nil {
			return report, fmt.Errorf("failed to insert backfilled logs: %w", err)
		}
		report.Created = len(created)
	}

	logger.Info("backfill finished", "date", date, "processed", report.Processed, "created", report.Created, "failed", report.Failed)
	return report, nil
}
