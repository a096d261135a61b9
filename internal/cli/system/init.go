package system

import (
	"fmt"
	"os"

	"github.com/julianstephens/habitlog/internal/backup"
	"github.com/julianstephens/habitlog/internal/cli"
	"github.com/julianstephens/habitlog/internal/storage/postgres"
)

type InitCmd struct {
	Force    bool `help:"Delete an existing SQLite database before initializing."`
	NoBackup bool `help:"Skip the snapshot taken before --force deletes the database."`
}

func (c *InitCmd) Run(ctx *cli.Context) error {
	if c.Force {
		if _, ok := ctx.Store.(*postgres.Store); ok {
			return fmt.Errorf("--force only applies to SQLite databases")
		}
		dbPath := ctx.Store.Path()
		if _, err := os.Stat(dbPath); err == nil {
			if !c.NoBackup {
				info, err := backup.NewManager(dbPath, backup.WithClock(ctx.Now)).Create(ctx.Ctx)
				if err != nil {
					return fmt.Errorf("failed to back up existing database (use --no-backup to skip): %w", err)
				}
				fmt.Printf("Backed up existing database to: %s\n", info.Path)
			}
			if err := ctx.Store.Close(); err != nil {
				return fmt.Errorf("failed to close existing database: %w", err)
			}
			if err := os.Remove(dbPath); err != nil {
				return fmt.Errorf("failed to delete existing database: %w", err)
			}
			fmt.Printf("Deleted existing database at: %s\n", dbPath)
		} else if !os.IsNotExist(err) {
			return fmt.Errorf("failed to access existing database: %w", err)
		}
	}

	if err := ctx.Store.Init(ctx.Ctx); err != nil {
		return err
	}
	fmt.Printf("Initialized habitlog storage at: %s\n", ctx.Store.Path())
	return nil
}
