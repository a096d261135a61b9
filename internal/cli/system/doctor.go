package system

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/julianstephens/habitlog/internal/cli"
	"github.com/julianstephens/habitlog/internal/constants"
	"github.com/julianstephens/habitlog/internal/gateway"
	"github.com/julianstephens/habitlog/internal/keyring"
	"github.com/julianstephens/habitlog/internal/lockfile"
	"github.com/julianstephens/habitlog/internal/session"
)

type DoctorCmd struct{}

type check struct {
	name string
	// warn marks a check whose failure does not fail the command
	warn bool
	run  func(ctx *cli.Context) error
}

var checks = []check{
	{name: "Database reachable", run: checkDatabase},
	{name: "OS keyring", warn: true, run: checkKeyring},
	{name: "Session", warn: true, run: checkSession},
	{name: "Clock/timezone", run: checkClock},
	{name: "Habit data", run: checkHabits},
	{name: "Daemon", warn: true, run: checkDaemon},
}

func (cmd *DoctorCmd) Run(ctx *cli.Context) error {
	fmt.Println("Running diagnostics...")
	fmt.Println()

	failed := 0
	for _, c := range checks {
		err := c.run(ctx)
		switch {
		case err == nil:
			fmt.Printf("✓ %s: OK\n", c.name)
		case c.warn:
			fmt.Printf("⚠ %s: WARNING\n", c.name)
			fmt.Printf("   %v\n", err)
		default:
			fmt.Printf("❌ %s: FAIL\n", c.name)
			fmt.Printf("   Error: %v\n", err)
			failed++
		}
	}

	fmt.Println()
	if failed > 0 {
		return fmt.Errorf("%d check(s) failed", failed)
	}
	fmt.Println("All checks passed.")
	return nil
}

func checkDatabase(ctx *cli.Context) error {
	return ctx.Load()
}

func checkKeyring(*cli.Context) error {
	if !keyring.IsAvailable() {
		return errors.New("the OS keyring is not available, sessions cannot be stored")
	}
	return nil
}

func checkSession(ctx *cli.Context) error {
	m, err := ctx.Sessions()
	if err != nil {
		return err
	}
	id, err := m.Current()
	if errors.Is(err, session.ErrNoSession) {
		return errors.New("not signed in, one will be created on first use")
	}
	if err != nil {
		return err
	}
	if left := id.ExpiresAt().Sub(ctx.Now()); left < 30*24*time.Hour {
		return fmt.Errorf("session expires in %d days", int(left.Hours()/24))
	}
	return nil
}

func checkClock(ctx *cli.Context) error {
	now := time.Now()
	if now.Year() < 2020 {
		return fmt.Errorf("system clock looks wrong: %s", now.Format(time.RFC3339))
	}
	if ctx.Location == nil {
		return errors.New("no timezone configured")
	}
	return nil
}

// checkHabits reads every habit row through the boundary validation
func checkHabits(ctx *cli.Context) error {
	client, err := ctx.ServiceClient()
	if err != nil {
		return err
	}
	habits, err := client.Habits(ctx.Ctx, gateway.HabitFilter{IncludeArchived: true})
	if err != nil {
		return err
	}
	for _, h := range habits {
		if _, err := client.Logs(ctx.Ctx, h.ID, "0001-01-01", "9999-12-31"); err != nil {
			return fmt.Errorf("habit %s: %w", h.ID, err)
		}
	}
	return nil
}

func checkDaemon(ctx *cli.Context) error {
	owner, err := lockfile.Read(filepath.Join(ctx.ConfigDir, constants.DaemonLockfileName))
	if errors.Is(err, lockfile.ErrNotRunning) {
		return errors.New("not running, nightly backfill and recompute will not happen")
	}
	if err != nil {
		return err
	}
	fmt.Printf("   daemon pid %d, up since %s\n", owner.PID, owner.Started.Local().Format(time.DateTime))
	return nil
}
