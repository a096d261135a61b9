package habits

import (
	"github.com/julianstephens/habitlog/internal/cli"
	"github.com/julianstephens/habitlog/internal/habitview"
	"github.com/julianstephens/habitlog/internal/tui"
)

type WatchCmd struct {
	Habit string `arg:"" optional:"" help:"Habit id or name. Defaults to the newest habit."`
}

func (c *WatchCmd) Run(ctx *cli.Context) error {
	cat, err := ctx.Catalog()
	if err != nil {
		return err
	}
	habits, err := cat.Habits(ctx.Ctx, false)
	if err != nil {
		return err
	}

	selected := 0
	if c.Habit != "" {
		h, err := cat.Find(ctx.Ctx, c.Habit)
		if err != nil {
			return err
		}
		selected = -1
		for i := range habits {
			if habits[i].ID == h.ID {
				selected = i
				break
			}
		}
		if selected < 0 {
			// archived habits can still be watched
			habits = append(habits, h)
			selected = len(habits) - 1
		}
	}

	client, err := ctx.Client()
	if err != nil {
		return err
	}
	view := habitview.New(client, habitview.WithWindowLength(ctx.Window))
	defer view.Close()

	return tui.Run(ctx.Ctx, view, habits, selected)
}
