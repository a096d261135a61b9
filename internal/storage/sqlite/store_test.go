package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/julianstephens/habitlog/internal/constants"
	"github.com/julianstephens/habitlog/internal/gateway"
	"github.com/julianstephens/habitlog/internal/gateway/gatewaytest"
	"github.com/julianstephens/habitlog/internal/models"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	store := NewStore(filepath.Join(t.TempDir(), "test.db"))
	if err := store.Init(context.Background()); err != nil {
		t.Fatalf("failed to init store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func clock() time.Time {
	return time.Date(2024, 3, 7, 9, 30, 0, 0, time.UTC)
}

func setupTestClient(t *testing.T, store *Store, userID string) *gateway.Client {
	t.Helper()
	store.now = clock
	return gateway.NewClient(store, gatewaytest.User(userID),
		gateway.WithClock(clock), gateway.WithLocation(time.UTC))
}

func addHabit(t *testing.T, c *gateway.Client, name string, freq models.Frequency) models.Habit {
	t.Helper()
	h, err := c.CreateHabit(context.Background(), models.Habit{Name: name, Frequency: freq, StartDate: "2024-03-01"})
	if err != nil {
		t.Fatalf("CreateHabit(%s) failed: %v", name, err)
	}
	return h
}

var daily = models.Frequency{Type: models.FrequencyDaily, Value: 1}

func TestLoadRequiresInit(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "missing.db"))
	if err := store.Load(context.Background()); err == nil {
		t.Fatal("Load should fail before Init")
	}
}

func TestLoadAfterInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	ctx := context.Background()

	first := NewStore(path)
	if err := first.Init(ctx); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	first.Close()

	second := NewStore(path)
	defer second.Close()
	if err := second.Load(ctx); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
}

func TestTemplatesSeeded(t *testing.T) {
	store := setupTestStore(t)
	c := setupTestClient(t, store, "u1")

	templates, err := c.Templates(context.Background())
	if err != nil {
		t.Fatalf("Templates failed: %v", err)
	}
	if len(templates) == 0 {
		t.Fatal("expected seeded templates")
	}
	if templates[0].Name != "Drink water" {
		t.Errorf("first template = %q, want alphabetical order", templates[0].Name)
	}
}

func TestHabitRoundTrip(t *testing.T) {
	store := setupTestStore(t)
	c := setupTestClient(t, store, "u1")
	ctx := context.Background()

	weekly := models.Frequency{Type: models.FrequencyWeekly, Value: 1, Weekdays: []time.Weekday{time.Monday, time.Thursday}}
	created := addHabit(t, c, "Run", weekly)

	got, err := c.Habit(ctx, created.ID)
	if err != nil {
		t.Fatalf("Habit failed: %v", err)
	}
	if got.Name != "Run" || got.StartDate != "2024-03-01" || got.Frequency.String() != "weekly on Mon,Thu" {
		t.Errorf("Habit() = %+v", got)
	}
	if !got.CreatedAt.Equal(clock()) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, clock())
	}

	if _, err := c.SetArchived(ctx, created.ID, true); err != nil {
		t.Fatalf("SetArchived failed: %v", err)
	}
	active, err := c.Habits(ctx, gateway.HabitFilter{})
	if err != nil {
		t.Fatalf("Habits failed: %v", err)
	}
	if len(active) != 0 {
		t.Errorf("archived habit listed: %+v", active)
	}

	if _, err := store.UpdateHabit(ctx, "missing", gateway.HabitPatch{}); !errors.Is(err, gateway.ErrNotFound) {
		t.Errorf("UpdateHabit(missing) error = %v, want ErrNotFound", err)
	}
}

func TestInsertLogsConflictModes(t *testing.T) {
	store := setupTestStore(t)
	c := setupTestClient(t, store, "u1")
	ctx := context.Background()
	h := addHabit(t, c, "Read", daily)

	first, err := c.InsertLog(ctx, models.HabitLogEntry{HabitID: h.ID, Date: "2024-03-03", Status: models.StatusAchieved, Notes: "felt great"})
	if err != nil {
		t.Fatalf("InsertLog failed: %v", err)
	}

	again, err := c.InsertLog(ctx, models.HabitLogEntry{HabitID: h.ID, Date: "2024-03-03", Status: models.StatusNotAchieved})
	if err != nil {
		t.Fatalf("second InsertLog failed: %v", err)
	}
	if again.ID != first.ID || again.Status != models.StatusNotAchieved {
		t.Errorf("upsert returned %+v, want same id %s", again, first.ID)
	}

	skipped, err := c.InsertLogs(ctx, []models.HabitLogEntry{
		{HabitID: h.ID, Date: "2024-03-03", Status: models.StatusAchieved},
		{HabitID: h.ID, Date: "2024-03-04", Status: models.StatusAchieved},
	}, gateway.ConflictIgnore)
	if err != nil {
		t.Fatalf("InsertLogs(ConflictIgnore) failed: %v", err)
	}
	if len(skipped) != 1 || skipped[0].Date != "2024-03-04" {
		t.Errorf("ConflictIgnore wrote %+v, want only 2024-03-04", skipped)
	}

	logs, err := c.Logs(ctx, h.ID, "2024-03-01", "2024-03-07")
	if err != nil {
		t.Fatalf("Logs failed: %v", err)
	}
	if len(logs) != 2 {
		t.Fatalf("Logs returned %d rows, want 2", len(logs))
	}
	if logs[0].Date != "2024-03-03" || logs[0].Status != models.StatusNotAchieved {
		t.Errorf("existing log was overwritten by ConflictIgnore: %+v", logs[0])
	}
}

func TestUpdateLog(t *testing.T) {
	store := setupTestStore(t)
	c := setupTestClient(t, store, "u1")
	ctx := context.Background()
	h := addHabit(t, c, "Read", daily)
	other := addHabit(t, c, "Walk", daily)

	entry, err := c.InsertLog(ctx, models.HabitLogEntry{HabitID: h.ID, Date: "2024-03-05", Status: models.StatusAchieved})
	if err != nil {
		t.Fatalf("InsertLog failed: %v", err)
	}

	updated, err := c.UpdateLog(ctx, h.ID, entry.ID, models.StatusNotAchieved, "tired")
	if err != nil {
		t.Fatalf("UpdateLog failed: %v", err)
	}
	if updated.ID != entry.ID || updated.Notes != "tired" || updated.Status != models.StatusNotAchieved {
		t.Errorf("UpdateLog() = %+v", updated)
	}

	if _, err := c.UpdateLog(ctx, other.ID, entry.ID, models.StatusAchieved, ""); !errors.Is(err, gateway.ErrNotFound) {
		t.Errorf("UpdateLog through another habit error = %v, want ErrNotFound", err)
	}
}

func TestStatisticsRecompute(t *testing.T) {
	store := setupTestStore(t)
	c := setupTestClient(t, store, "u1")
	ctx := context.Background()
	h := addHabit(t, c, "Read", daily)

	stats, err := c.Statistics(ctx, false)
	if err != nil {
		t.Fatalf("Statistics failed: %v", err)
	}
	if len(stats) != 1 || stats[0].Calculated() {
		t.Fatalf("statistics before recompute = %+v", stats)
	}

	for _, day := range []string{"2024-03-01", "2024-03-02", "2024-03-06"} {
		if _, err := c.InsertLog(ctx, models.HabitLogEntry{HabitID: h.ID, Date: day, Status: models.StatusAchieved}); err != nil {
			t.Fatalf("InsertLog failed: %v", err)
		}
	}
	// outside the tracked range
	if _, err := c.InsertLog(ctx, models.HabitLogEntry{HabitID: h.ID, Date: "2024-03-09", Status: models.StatusAchieved}); err != nil {
		t.Fatalf("InsertLog failed: %v", err)
	}

	if err := c.InvokeProcedure(ctx, constants.ProcRecomputeStatistics); err != nil {
		t.Fatalf("recompute failed: %v", err)
	}
	stats, err = c.Statistics(ctx, false)
	if err != nil {
		t.Fatalf("Statistics failed: %v", err)
	}
	s := stats[0]
	if s.AchievedDays != 3 || s.TotalDays != 7 || s.AchievementRate != 42.86 || !s.Calculated() {
		t.Errorf("statistics = %+v", s)
	}

	if err := c.InvokeProcedure(ctx, constants.ProcRecomputeStatistics); !errors.Is(err, gateway.ErrRateLimited) {
		t.Errorf("second recompute error = %v, want ErrRateLimited", err)
	}

	service := gateway.NewClient(store, gatewaytest.ServiceIdentity(), gateway.WithClock(clock), gateway.WithLocation(time.UTC))
	if err := service.InvokeProcedure(ctx, constants.ProcRecomputeAllStatistics); err != nil {
		t.Errorf("recompute_all_statistics should not be rate limited: %v", err)
	}
	if err := service.InvokeProcedure(ctx, "drop_everything"); !errors.Is(err, gateway.ErrUnknownProcedure) {
		t.Errorf("unknown procedure error = %v, want ErrUnknownProcedure", err)
	}
}

func TestListenReceivesOwnWrites(t *testing.T) {
	store := setupTestStore(t)
	c := setupTestClient(t, store, "u1")
	ctx := context.Background()
	h := addHabit(t, c, "Read", daily)
	other := addHabit(t, c, "Walk", daily)

	sub, err := c.SubscribeToChanges(ctx, h.ID)
	if err != nil {
		t.Fatalf("SubscribeToChanges failed: %v", err)
	}
	defer sub.Unsubscribe()

	if _, err := c.InsertLog(ctx, models.HabitLogEntry{HabitID: other.ID, Date: "2024-03-05", Status: models.StatusAchieved}); err != nil {
		t.Fatalf("InsertLog failed: %v", err)
	}
	entry, err := c.InsertLog(ctx, models.HabitLogEntry{HabitID: h.ID, Date: "2024-03-05", Status: models.StatusAchieved})
	if err != nil {
		t.Fatalf("InsertLog failed: %v", err)
	}

	select {
	case ev := <-sub.Events():
		if ev.Op != gateway.ChangeInsert || ev.HabitID != h.ID || ev.LogID != entry.ID {
			t.Errorf("event = %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no change event received")
	}
}

func TestCloseEndsSubscriptions(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "test.db"))
	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	sub, err := store.Listen(ctx, constants.TableHabitLogs, "h1")
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	select {
	case _, ok := <-sub.Events():
		if ok {
			t.Error("expected closed events channel")
		}
	case <-time.After(time.Second):
		t.Fatal("events channel not closed")
	}
}

func TestSelectRejectsWrongTable(t *testing.T) {
	store := setupTestStore(t)
	if _, err := store.SelectLogs(context.Background(), gateway.From(constants.TableHabits)); !errors.Is(err, gateway.ErrInvalidQuery) {
		t.Errorf("SelectLogs(habits) error = %v, want ErrInvalidQuery", err)
	}
}
