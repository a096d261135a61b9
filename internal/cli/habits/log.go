package habits

import (
	"errors"
	"fmt"
	"strings"

	"github.com/julianstephens/habitlog/internal/cli"
	apperrors "github.com/julianstephens/habitlog/internal/errors"
	"github.com/julianstephens/habitlog/internal/habitview"
	"github.com/julianstephens/habitlog/internal/logger"
	"github.com/julianstephens/habitlog/internal/models"
	"github.com/julianstephens/habitlog/internal/reconcile"
	"github.com/julianstephens/habitlog/internal/utils"
)

type LogCmd struct {
	Show LogShowCmd `cmd:"" help:"Show the log window of a habit."`
	Set  LogSetCmd  `cmd:"" help:"Record the status of a habit on a day."`
}

type LogShowCmd struct {
	Habit string `arg:"" help:"Habit id or name."`
	End   string `help:"Last day of the window (YYYY-MM-DD). Defaults to today; later days are clamped to today."`
	Days  int    `help:"Window length. Defaults to --window."`
}

func (c *LogShowCmd) Run(ctx *cli.Context) error {
	cat, err := ctx.Catalog()
	if err != nil {
		return err
	}
	h, err := cat.Find(ctx.Ctx, c.Habit)
	if err != nil {
		return err
	}
	client, err := ctx.Client()
	if err != nil {
		return err
	}

	length := c.Days
	if length <= 0 {
		length = ctx.Window
	}
	w, err := reconcile.NewEngine(client).Reconcile(ctx.Ctx, h.ID, c.End, length)
	if err != nil {
		return err
	}

	fmt.Printf("%s  %s to %s\n\n", h.Name, w.Start, w.End)
	for _, e := range w.Entries {
		fmt.Printf("  %s  %s  %-12s %s\n", weekdayOf(e.Date), e.Date, StatusMark(e.Status)+" "+string(e.Status), e.Notes)
	}
	return nil
}

type LogSetCmd struct {
	Habit      string `arg:"" help:"Habit id or name."`
	Status     string `arg:"" help:"achieved (done, y), not_achieved (missed, n) or unchecked (clear)."`
	Date       string `help:"Day to record (YYYY-MM-DD). Defaults to today."`
	Notes      string `help:"Notes for the day. Existing notes are kept when omitted."`
	ClearNotes bool   `help:"Remove the notes of the day."`
}

func (c *LogSetCmd) Run(ctx *cli.Context) error {
	status, err := ParseStatus(c.Status)
	if err != nil {
		return err
	}

	today := ctx.Today()
	date := today
	if c.Date != "" {
		date, err = utils.NormalizeDay(c.Date)
		if err != nil {
			return err
		}
	}
	if date > today {
		return fmt.Errorf("cannot record %s, it is after today (%s)", date, today)
	}

	cat, err := ctx.Catalog()
	if err != nil {
		return err
	}
	h, err := cat.Find(ctx.Ctx, c.Habit)
	if err != nil {
		return err
	}
	client, err := ctx.Client()
	if err != nil {
		return err
	}

	view := habitview.New(client, habitview.WithWindowLength(1))
	defer view.Close()

	handle, err := view.Subscribe(ctx.Ctx, h.ID, date)
	if err != nil {
		// a one-shot write does not need live updates
		if !errors.Is(err, apperrors.ErrSubscription) {
			return err
		}
		logger.Warn("continuing without change subscription", "habit", h.ID, "error", err)
	}
	defer view.Unsubscribe(handle)

	state := view.Snapshot()
	if state.FetchErr != nil {
		return state.FetchErr
	}
	current, ok := state.Window.Entry(date)
	if !ok {
		current = models.DefaultLogEntry(h.ID, date)
	}

	notes := current.Notes
	switch {
	case c.ClearNotes:
		notes = ""
	case c.Notes != "":
		notes = c.Notes
	}

	saved, err := view.UpdateLog(ctx.Ctx, h.ID, date, current.ID, status, notes)
	if err != nil {
		return err
	}
	fmt.Printf("%s %s on %s: %s\n", StatusMark(saved.Status), h.Name, saved.Date, saved.Status)
	return nil
}

var statusAliases = map[string]models.LogStatus{
	"done":   models.StatusAchieved,
	"y":      models.StatusAchieved,
	"yes":    models.StatusAchieved,
	"missed": models.StatusNotAchieved,
	"n":      models.StatusNotAchieved,
	"no":     models.StatusNotAchieved,
	"clear":  models.StatusUnchecked,
}

// ParseStatus accepts a wire status or one of its short aliases.
func ParseStatus(v string) (models.LogStatus, error) {
	v = strings.ToLower(strings.TrimSpace(v))
	if s, ok := statusAliases[v]; ok {
		return s, nil
	}
	return models.ParseLogStatus(strings.ReplaceAll(v, "-", "_"))
}

// StatusMark is the one-character rendering of a status.
func StatusMark(s models.LogStatus) string {
	switch s {
	case models.StatusAchieved:
		return "✓"
	case models.StatusNotAchieved:
		return "✗"
	default:
		return "·"
	}
}

func weekdayOf(day string) string {
	t, err := utils.ParseDay(day)
	if err != nil {
		return "   "
	}
	return t.Weekday().String()[:3]
}
