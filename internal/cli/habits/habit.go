package habits

import (
	"errors"
	"fmt"
	"strings"

	"github.com/julianstephens/habitlog/internal/cli"
	"github.com/julianstephens/habitlog/internal/models"
	"github.com/julianstephens/habitlog/internal/tui"
	"github.com/julianstephens/habitlog/internal/utils"
)

type HabitCmd struct {
	Add       HabitAddCmd       `cmd:"" help:"Add a new habit."`
	List      HabitListCmd      `cmd:"" help:"List habits."`
	Archive   HabitArchiveCmd   `cmd:"" help:"Archive a habit."`
	Unarchive HabitUnarchiveCmd `cmd:"" help:"Restore an archived habit."`
}

type HabitAddCmd struct {
	Name        string `arg:"" optional:"" help:"Habit name. Omit to fill in a form."`
	Template    string `help:"Start from a habit template (id or name)." short:"t"`
	Icon        string `help:"Icon shown next to the habit."`
	Color       string `help:"Color of the habit, e.g. #FF5733."`
	Frequency   string `help:"How often the habit happens: daily, weekly or monthly."`
	Value       int    `help:"Times per period." default:"1"`
	Weekdays    string `help:"Days of a weekly habit, e.g. mon,wed,fri."`
	MonthDay    int    `help:"Day of a monthly habit (1-31)."`
	Start       string `help:"First tracked day (YYYY-MM-DD). Defaults to today."`
	Interactive bool   `help:"Fill in the habit with a form." short:"i"`
}

func (c *HabitAddCmd) Run(ctx *cli.Context) error {
	cat, err := ctx.Catalog()
	if err != nil {
		return err
	}

	var habit models.Habit
	if c.Template != "" {
		habit, err = cat.FromTemplate(ctx.Ctx, c.Template)
		if err != nil {
			return err
		}
	}

	if c.Interactive || (c.Name == "" && c.Template == "") {
		templates, err := cat.Templates(ctx.Ctx)
		if err != nil {
			return err
		}
		habit, err = tui.RunHabitForm(habit, templates)
		if err != nil {
			return err
		}
	} else if err := c.apply(&habit); err != nil {
		return err
	}

	if strings.TrimSpace(habit.Name) == "" {
		return errors.New("habit name cannot be empty")
	}

	created, err := cat.Create(ctx.Ctx, habit)
	if err != nil {
		return err
	}
	fmt.Printf("Added habit: %s (%s, %s)\n", created.Name, created.Frequency, created.ID)
	return nil
}

// apply overlays the flags onto h, which may be prefilled from a template
func (c *HabitAddCmd) apply(h *models.Habit) error {
	if c.Name != "" {
		h.Name = c.Name
	}
	if c.Icon != "" {
		h.Icon = c.Icon
	}
	if c.Color != "" {
		h.Color = c.Color
	}
	if c.Frequency != "" {
		h.Frequency.Type = models.FrequencyType(c.Frequency)
	}
	if h.Frequency.Type == "" {
		h.Frequency.Type = models.FrequencyDaily
	}
	h.Frequency.Value = c.Value

	switch h.Frequency.Type {
	case models.FrequencyWeekly:
		days, err := cli.ParseWeekdays(c.Weekdays)
		if err != nil {
			return err
		}
		h.Frequency.Weekdays = days
	case models.FrequencyMonthly:
		h.Frequency.MonthDay = c.MonthDay
	}
	if err := h.Frequency.Validate(); err != nil {
		return err
	}

	if c.Start != "" {
		day, err := utils.NormalizeDay(c.Start)
		if err != nil {
			return err
		}
		h.StartDate = day
	}
	return nil
}

type HabitListCmd struct {
	Archived bool `help:"Include archived habits."`
}

func (c *HabitListCmd) Run(ctx *cli.Context) error {
	cat, err := ctx.Catalog()
	if err != nil {
		return err
	}
	habits, err := cat.Habits(ctx.Ctx, c.Archived)
	if err != nil {
		return err
	}

	if len(habits) == 0 {
		fmt.Println("No habits found.")
		return nil
	}

	for _, h := range habits {
		status := ""
		if h.Archived {
			status = " [ARCHIVED]"
		}
		name := h.Name
		if h.Icon != "" {
			name = h.Icon + " " + name
		}
		fmt.Printf("%s%s\n", name, status)
		fmt.Printf("  %s, since %s  (%s)\n", h.Frequency, h.StartDate, h.ID)
	}
	return nil
}

type HabitArchiveCmd struct {
	Habit string `arg:"" help:"Habit id or name."`
}

func (c *HabitArchiveCmd) Run(ctx *cli.Context) error {
	return setArchived(ctx, c.Habit, true)
}

type HabitUnarchiveCmd struct {
	Habit string `arg:"" help:"Habit id or name."`
}

func (c *HabitUnarchiveCmd) Run(ctx *cli.Context) error {
	return setArchived(ctx, c.Habit, false)
}

func setArchived(ctx *cli.Context, ref string, archived bool) error {
	cat, err := ctx.Catalog()
	if err != nil {
		return err
	}
	h, err := cat.Find(ctx.Ctx, ref)
	if err != nil {
		return err
	}
	if h.Archived == archived {
		return fmt.Errorf("habit %q is already in that state", h.Name)
	}
	if _, err := cat.SetArchived(ctx.Ctx, h.ID, archived); err != nil {
		return err
	}
	if archived {
		fmt.Printf("Archived habit: %s\n", h.Name)
	} else {
		fmt.Printf("Unarchived habit: %s\n", h.Name)
	}
	return nil
}
