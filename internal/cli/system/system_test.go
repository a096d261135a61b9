package system

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	gokeyring "github.com/zalando/go-keyring"

	"github.com/julianstephens/habitlog/internal/backup"
	"github.com/julianstephens/habitlog/internal/cli"
	"github.com/julianstephens/habitlog/internal/constants"
	"github.com/julianstephens/habitlog/internal/gateway"
	"github.com/julianstephens/habitlog/internal/models"
)

func setupTestContext(t *testing.T) (*cli.Context, string) {
	t.Helper()
	gokeyring.MockInit()

	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")
	ctx, err := cli.NewContext(context.Background(), cli.Globals{
		DB:            dbPath,
		Timezone:      "UTC",
		SessionSecret: "test-secret",
		Debug:         true,
	}, dir)
	if err != nil {
		t.Fatalf("NewContext() error = %v", err)
	}
	ctx.SetClock(func() time.Time { return time.Date(2024, 3, 7, 0, 5, 0, 0, time.UTC) })
	t.Cleanup(func() {
		if err := ctx.Close(); err != nil {
			t.Errorf("failed to close store: %v", err)
		}
	})
	return ctx, dbPath
}

func addDailyHabit(t *testing.T, ctx *cli.Context, name string) models.Habit {
	t.Helper()
	cat, err := ctx.Catalog()
	if err != nil {
		t.Fatal(err)
	}
	h, err := cat.Create(ctx.Ctx, models.Habit{
		Name:      name,
		Frequency: models.Frequency{Type: models.FrequencyDaily, Value: 1},
		StartDate: "2024-03-01",
	})
	if err != nil {
		t.Fatalf("Create(%s) error = %v", name, err)
	}
	return h
}

func TestInitCmd(t *testing.T) {
	ctx, dbPath := setupTestContext(t)

	cmd := &InitCmd{}
	if err := cmd.Run(ctx); err != nil {
		t.Fatalf("init command failed: %v", err)
	}
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Fatalf("database file was not created at %s", dbPath)
	}

	// running again is harmless
	if err := cmd.Run(ctx); err != nil {
		t.Errorf("second init failed: %v", err)
	}
}

func TestInitCmdForce(t *testing.T) {
	ctx, _ := setupTestContext(t)
	if err := (&InitCmd{}).Run(ctx); err != nil {
		t.Fatal(err)
	}
	addDailyHabit(t, ctx, "Read")
	if err := ctx.Close(); err != nil {
		t.Fatal(err)
	}

	fresh, err := cli.NewContext(context.Background(), ctx.Globals, ctx.ConfigDir)
	if err != nil {
		t.Fatal(err)
	}
	defer fresh.Close()
	if err := (&InitCmd{Force: true}).Run(fresh); err != nil {
		t.Fatalf("init --force failed: %v", err)
	}

	client, err := fresh.ServiceClient()
	if err != nil {
		t.Fatal(err)
	}
	habits, err := client.Habits(fresh.Ctx, gatewayFilterAll)
	if err != nil {
		t.Fatal(err)
	}
	if len(habits) != 0 {
		t.Errorf("found %d habits after --force, want 0", len(habits))
	}

	list, err := backup.NewManager(fresh.Store.Path()).List()
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 {
		t.Errorf("found %d snapshots, want the one taken before --force", len(list))
	}
}

func TestBackupCommands(t *testing.T) {
	ctx, _ := setupTestContext(t)
	if err := (&InitCmd{}).Run(ctx); err != nil {
		t.Fatal(err)
	}
	if err := (&BackupRestoreCmd{}).Run(ctx); err == nil {
		t.Error("restore without snapshots should fail")
	}

	addDailyHabit(t, ctx, "Read")
	if err := (&BackupCreateCmd{}).Run(ctx); err != nil {
		t.Fatalf("backup create failed: %v", err)
	}
	addDailyHabit(t, ctx, "Walk")
	if err := (&BackupListCmd{}).Run(ctx); err != nil {
		t.Errorf("backup list failed: %v", err)
	}

	if err := (&BackupRestoreCmd{}).Run(ctx); err != nil {
		t.Fatalf("backup restore failed: %v", err)
	}

	reopened, err := cli.NewContext(context.Background(), ctx.Globals, ctx.ConfigDir)
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()
	if err := reopened.Store.Init(reopened.Ctx); err != nil {
		t.Fatal(err)
	}
	client, err := reopened.ServiceClient()
	if err != nil {
		t.Fatal(err)
	}
	habits, err := client.Habits(reopened.Ctx, gatewayFilterAll)
	if err != nil {
		t.Fatal(err)
	}
	if len(habits) != 1 || habits[0].Name != "Read" {
		t.Errorf("habits after restore = %+v, want only Read", habits)
	}
}

func TestMigrateCmdUpToDate(t *testing.T) {
	ctx, _ := setupTestContext(t)
	if err := (&InitCmd{}).Run(ctx); err != nil {
		t.Fatal(err)
	}
	if err := (&MigrateCmd{}).Run(ctx); err != nil {
		t.Errorf("migrate failed: %v", err)
	}
}

func TestBackfillCmd(t *testing.T) {
	ctx, _ := setupTestContext(t)
	if err := (&InitCmd{}).Run(ctx); err != nil {
		t.Fatal(err)
	}
	read := addDailyHabit(t, ctx, "Read")

	if err := (&BackfillCmd{Date: "2024-03-05", Status: "achieved"}).Run(ctx); err != nil {
		t.Fatalf("backfill failed: %v", err)
	}
	// a second run finds nothing to do and keeps the first result
	if err := (&BackfillCmd{Date: "2024-03-05", Status: "not_achieved"}).Run(ctx); err != nil {
		t.Fatalf("second backfill failed: %v", err)
	}

	client, err := ctx.ServiceClient()
	if err != nil {
		t.Fatal(err)
	}
	logs, err := client.Logs(ctx.Ctx, read.ID, "2024-03-05", "2024-03-05")
	if err != nil {
		t.Fatal(err)
	}
	if len(logs) != 1 || logs[0].Status != models.StatusAchieved {
		t.Errorf("logs = %+v, want one achieved log", logs)
	}

	if err := (&BackfillCmd{Date: "yesterday", Status: "achieved"}).Run(ctx); err == nil {
		t.Error("expected an invalid date to be rejected")
	}
}

func TestDaemonRunNow(t *testing.T) {
	ctx, _ := setupTestContext(t)
	if err := (&InitCmd{}).Run(ctx); err != nil {
		t.Fatal(err)
	}
	read := addDailyHabit(t, ctx, "Read")

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	ctx.Ctx = cancelled

	cmd := &DaemonCmd{BackfillAt: "00:05", RecomputeAt: "00:15", RunNow: true}
	if err := cmd.Run(ctx); err != nil {
		t.Fatalf("daemon failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(ctx.ConfigDir, constants.DaemonLockfileName)); !os.IsNotExist(err) {
		t.Error("daemon left its lockfile behind")
	}

	// yesterday relative to the test clock
	ctx.Ctx = context.Background()
	client, err := ctx.ServiceClient()
	if err != nil {
		t.Fatal(err)
	}
	logs, err := client.Logs(ctx.Ctx, read.ID, "2024-03-06", "2024-03-06")
	if err != nil {
		t.Fatal(err)
	}
	if len(logs) != 1 {
		t.Errorf("daemon backfill wrote %d logs, want 1", len(logs))
	}
}

func TestDaemonRejectsBadTime(t *testing.T) {
	ctx, _ := setupTestContext(t)
	if err := (&InitCmd{}).Run(ctx); err != nil {
		t.Fatal(err)
	}
	cmd := &DaemonCmd{BackfillAt: "25:00", RecomputeAt: "00:15"}
	if err := cmd.Run(ctx); err == nil {
		t.Error("expected an invalid schedule to be rejected")
	}
}

func TestSessionCommands(t *testing.T) {
	ctx, _ := setupTestContext(t)

	if err := (&SessionWhoamiCmd{}).Run(ctx); err == nil {
		t.Error("whoami should fail before login")
	}
	if err := (&SessionLoginCmd{}).Run(ctx); err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if err := (&SessionWhoamiCmd{}).Run(ctx); err != nil {
		t.Errorf("whoami failed after login: %v", err)
	}
	if err := (&SessionLogoutCmd{}).Run(ctx); err != nil {
		t.Errorf("logout failed: %v", err)
	}
	if err := (&SessionLogoutCmd{}).Run(ctx); err == nil {
		t.Error("second logout should fail")
	}
}

func TestDoctorCmd(t *testing.T) {
	ctx, _ := setupTestContext(t)
	if err := (&DoctorCmd{}).Run(ctx); err == nil {
		t.Error("doctor should fail before init")
	}

	fresh, err := cli.NewContext(context.Background(), ctx.Globals, ctx.ConfigDir)
	if err != nil {
		t.Fatal(err)
	}
	defer fresh.Close()
	if err := (&InitCmd{}).Run(fresh); err != nil {
		t.Fatal(err)
	}
	addDailyHabit(t, fresh, "Read")
	if err := (&DoctorCmd{}).Run(fresh); err != nil {
		t.Errorf("doctor failed on a healthy database: %v", err)
	}
}

var gatewayFilterAll = gateway.HabitFilter{IncludeArchived: true}
