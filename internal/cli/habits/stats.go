package habits

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/julianstephens/habitlog/internal/cli"
	"github.com/julianstephens/habitlog/internal/logger"
	"github.com/julianstephens/habitlog/internal/models"
)

type StatsCmd struct {
	Show   StatsShowCmd   `cmd:"" help:"Show achievement statistics, best first." default:"1"`
	Recalc StatsRecalcCmd `cmd:"" help:"Recalculate statistics. Allowed once per day."`
}

type StatsShowCmd struct {
	Archived bool `help:"Include archived habits."`
}

func (c *StatsShowCmd) Run(ctx *cli.Context) error {
	ctrl, err := ctx.Stats()
	if err != nil {
		return err
	}
	rows, err := ctrl.Statistics(ctx.Ctx, c.Archived)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		fmt.Println("No statistics yet. Add a habit and run 'habitlog stats recalc'.")
		return nil
	}
	fmt.Println(StatsTable(rows))
	return nil
}

// StatsTable renders statistics rows in their given order.
func StatsTable(rows []models.HabitStatistics) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("240"))).
		Headers("HABIT", "ACHIEVED", "DAYS", "RATE", "CALCULATED")

	for _, s := range rows {
		name := s.Name
		if s.Archived {
			name += " [ARCHIVED]"
		}
		calculated := "never"
		if s.Calculated() {
			calculated = s.CalculatedAt.Local().Format("2006-01-02 15:04")
		}
		t.Row(
			name,
			strconv.Itoa(s.AchievedDays),
			strconv.Itoa(s.TotalDays),
			fmt.Sprintf("%.2f%%", s.AchievementRate),
			calculated,
		)
	}
	return t.String()
}

type StatsRecalcCmd struct{}

func (c *StatsRecalcCmd) Run(ctx *cli.Context) error {
	ctrl, err := ctx.Stats()
	if err != nil {
		return err
	}
	fmt.Println("Recalculating statistics...")
	if err := ctrl.Recalculate(ctx.Ctx); err != nil {
		logger.Error("statistics recompute failed", "error", err)
		return errors.New(ctrl.Message())
	}

	rows, err := ctrl.Statistics(ctx.Ctx, false)
	if err != nil {
		return err
	}
	fmt.Println("✓ Statistics updated")
	if len(rows) > 0 {
		fmt.Println(StatsTable(rows))
	}
	return nil
}
