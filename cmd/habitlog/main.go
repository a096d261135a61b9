package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/julianstephens/habitlog/internal/cli"
	"github.com/julianstephens/habitlog/internal/cli/habits"
	"github.com/julianstephens/habitlog/internal/cli/system"
	"github.com/julianstephens/habitlog/internal/constants"
	"github.com/julianstephens/habitlog/internal/errors"
	"github.com/julianstephens/habitlog/internal/logger"
	"github.com/julianstephens/habitlog/internal/utils"
)

var CLI struct {
	Globals cli.Globals `embed:""`
	Version kong.VersionFlag
	Config  kong.ConfigFlag `help:"JSON file with flag defaults." placeholder:"FILE"`

	Init     system.InitCmd     `cmd:"" help:"Initialize habitlog storage."`
	Migrate  system.MigrateCmd  `cmd:"" help:"Run database migrations."`
	Doctor   system.DoctorCmd   `cmd:"" help:"Run health checks and diagnostics."`
	Session  system.SessionCmd  `cmd:"" help:"Manage the signed-in user."`
	Keyring  system.KeyringCmd  `cmd:"" help:"Manage the database connection string in the OS keyring."`
	Habit    habits.HabitCmd    `cmd:"" help:"Manage habits."`
	Template habits.TemplateCmd `cmd:"" help:"Browse habit templates."`
	Log      habits.LogCmd      `cmd:"" help:"Show and record habit logs."`
	Stats    habits.StatsCmd    `cmd:"" help:"Show and recalculate statistics."`
	Watch    habits.WatchCmd    `cmd:"" help:"Open the live log view of a habit." default:"withargs"`
	Backfill system.BackfillCmd `cmd:"" help:"Record missing days of daily habits for every user."`
	Daemon   system.DaemonCmd   `cmd:"" help:"Run the nightly backfill and statistics recompute."`
	Backup   system.BackupCmd   `cmd:"" help:"Snapshot and restore the SQLite database."`
}

func main() {
	ctx := kong.Parse(&CLI,
		kong.Name(constants.AppName),
		kong.Description("Habit tracker with a live log view"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact:             true,
			NoExpandSubcommands: true,
		}),
		kong.Configuration(kong.JSON, constants.DefaultConfigFile),
		kong.Vars{
			"version":        constants.Version,
			"default_db":     constants.DefaultConfigPath,
			"default_window": strconv.Itoa(constants.DefaultWindowLength),
			"backfill_time":  constants.DefaultBackfillTime,
			"recompute_time": constants.DefaultRecomputeTime,
			"backup_time":    constants.DefaultBackupTime,
		},
	)

	configDir, err := utils.ExpandHome(constants.DefaultConfigDir)
	if err != nil {
		errors.Fatal(err)
	}
	if err := logger.Init(logger.Config{Debug: CLI.Globals.Debug, ConfigDir: configDir}); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to initialize logger: %v\n", err)
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	appCtx, err := cli.NewContext(sigCtx, CLI.Globals, configDir)
	if err != nil {
		stop()
		errors.Fatal(err)
	}

	err = ctx.Run(appCtx)
	if cerr := appCtx.Close(); cerr != nil {
		logger.Warn("failed to close storage", "error", cerr)
	}
	stop()
	errors.Fatal(err)
}
