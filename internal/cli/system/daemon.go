package system

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"

	"github.com/julianstephens/habitlog/internal/backfill"
	"github.com/julianstephens/habitlog/internal/backup"
	"github.com/julianstephens/habitlog/internal/cache"
	"github.com/julianstephens/habitlog/internal/cli"
	"github.com/julianstephens/habitlog/internal/constants"
	"github.com/julianstephens/habitlog/internal/lockfile"
	"github.com/julianstephens/habitlog/internal/logger"
	"github.com/julianstephens/habitlog/internal/scheduler"
	"github.com/julianstephens/habitlog/internal/stats"
	"github.com/julianstephens/habitlog/internal/storage/postgres"
)

// DaemonCmd runs the nightly jobs until interrupted. Jobs run with the
// service identity, so they cover every user.
type DaemonCmd struct {
	BackfillAt  string `help:"Time of the nightly backfill (HH:MM)." default:"${backfill_time}" env:"HABITLOG_BACKFILL_AT"`
	RecomputeAt string `help:"Time of the nightly statistics recompute (HH:MM)." default:"${recompute_time}" env:"HABITLOG_RECOMPUTE_AT"`
	BackupAt    string `help:"Time of the nightly SQLite snapshot (HH:MM). Empty disables it." default:"${backup_time}" env:"HABITLOG_BACKUP_AT"`
	RunNow      bool   `help:"Run the backfill and recompute jobs once at startup."`
}

func (c *DaemonCmd) Run(ctx *cli.Context) error {
	if !ctx.Debug {
		// the daemon is meant to run under a supervisor that collects stdout
		logger.InitWriter(os.Stdout, log.InfoLevel)
	}

	lock, err := lockfile.Acquire(filepath.Join(ctx.ConfigDir, constants.DaemonLockfileName), ctx.Now())
	if err != nil {
		return err
	}
	defer func() {
		if err := lock.Release(); err != nil {
			logger.Warn("failed to remove lockfile", "error", err)
		}
	}()

	client, err := ctx.ServiceClient()
	if err != nil {
		return err
	}
	job := backfill.New(client)
	recompute := stats.NewController(client, cache.New())

	sched := scheduler.New(ctx.Location)
	backfillID, err := sched.Daily("backfill", c.BackfillAt, func(jobCtx context.Context) error {
		report, err := job.Run(jobCtx, "")
		if err != nil {
			return err
		}
		logger.Info("backfill complete", "date", report.Date, "processed", report.Processed, "created", report.Created, "failed", report.Failed)
		return nil
	})
	if err != nil {
		return err
	}
	recomputeID, err := sched.Daily("recompute", c.RecomputeAt, recompute.RecalculateAll)
	if err != nil {
		return err
	}

	if c.BackupAt != "" {
		if _, ok := ctx.Store.(*postgres.Store); !ok {
			mgr := backup.NewManager(ctx.Store.Path(), backup.WithClock(ctx.Now))
			if _, err := sched.Daily("backup", c.BackupAt, func(jobCtx context.Context) error {
				_, err := mgr.Create(jobCtx)
				return err
			}); err != nil {
				return err
			}
		}
	}

	sched.Start()
	fmt.Printf("habitlog daemon running (%s), backfill at %s, recompute at %s\n", ctx.Location, c.BackfillAt, c.RecomputeAt)
	if c.RunNow {
		sched.Run(backfillID)
		sched.Run(recomputeID)
	}

	<-ctx.Ctx.Done()
	logger.Info("shutting down", "reason", context.Cause(ctx.Ctx))
	sched.Stop()
	return nil
}
