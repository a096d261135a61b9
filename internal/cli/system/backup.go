package system

import (
	"fmt"
	"path/filepath"

	"github.com/julianstephens/habitlog/internal/backup"
	"github.com/julianstephens/habitlog/internal/cli"
	"github.com/julianstephens/habitlog/internal/storage/postgres"
)

type BackupCmd struct {
	Create  BackupCreateCmd  `cmd:"" help:"Snapshot the SQLite database." default:"1"`
	List    BackupListCmd    `cmd:"" help:"List snapshots, newest first."`
	Restore BackupRestoreCmd `cmd:"" help:"Replace the database with a snapshot."`
}

// backups returns the snapshot manager of the configured SQLite database.
func backups(ctx *cli.Context) (*backup.Manager, error) {
	if _, ok := ctx.Store.(*postgres.Store); ok {
		return nil, fmt.Errorf("backups only apply to SQLite databases, use pg_dump for PostgreSQL")
	}
	return backup.NewManager(ctx.Store.Path(), backup.WithClock(ctx.Now)), nil
}

type BackupCreateCmd struct{}

func (c *BackupCreateCmd) Run(ctx *cli.Context) error {
	mgr, err := backups(ctx)
	if err != nil {
		return err
	}
	info, err := mgr.Create(ctx.Ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Created backup: %s (%d bytes)\n", info.Path, info.Size)
	return nil
}

type BackupListCmd struct{}

func (c *BackupListCmd) Run(ctx *cli.Context) error {
	mgr, err := backups(ctx)
	if err != nil {
		return err
	}
	list, err := mgr.List()
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Printf("No backups in %s\n", mgr.Dir())
		return nil
	}
	for _, b := range list {
		fmt.Printf("%s  %s  %d bytes\n", b.Timestamp.Local().Format("2006-01-02 15:04:05"), filepath.Base(b.Path), b.Size)
	}
	return nil
}

type BackupRestoreCmd struct {
	File string `arg:"" optional:"" help:"Snapshot file or name. Defaults to the newest snapshot."`
}

func (c *BackupRestoreCmd) Run(ctx *cli.Context) error {
	mgr, err := backups(ctx)
	if err != nil {
		return err
	}

	path := c.File
	switch {
	case path == "":
		list, err := mgr.List()
		if err != nil {
			return err
		}
		if len(list) == 0 {
			return fmt.Errorf("no backups in %s", mgr.Dir())
		}
		path = list[0].Path
	case filepath.Base(path) == path:
		path = filepath.Join(mgr.Dir(), path)
	}

	if err := ctx.Store.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	previous, err := mgr.Restore(ctx.Ctx, path)
	if err != nil {
		return err
	}
	if previous.Path != "" {
		fmt.Printf("Saved the replaced database as: %s\n", filepath.Base(previous.Path))
	}
	fmt.Printf("Restored database from: %s\n", filepath.Base(path))
	return nil
}
