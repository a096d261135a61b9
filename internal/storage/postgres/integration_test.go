package postgres

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/julianstephens/habitlog/internal/constants"
	"github.com/julianstephens/habitlog/internal/gateway"
	"github.com/julianstephens/habitlog/internal/gateway/gatewaytest"
	"github.com/julianstephens/habitlog/internal/models"
)

// TestStore_Integration runs against a real database.
// Example: POSTGRES_TEST_URL="postgres://habitlog@localhost:5432/habitlog_test?sslmode=disable"
func TestStore_Integration(t *testing.T) {
	connStr := os.Getenv("POSTGRES_TEST_URL")
	if connStr == "" {
		t.Skip("POSTGRES_TEST_URL not set, skipping PostgreSQL integration test")
	}

	ctx := context.Background()
	store := New(connStr)
	if err := store.Init(ctx); err != nil {
		t.Fatalf("Failed to initialize store: %v", err)
	}
	defer store.Close()

	client := gateway.NewClient(store, gatewaytest.User(uuid.New().String()))
	today := client.Today()

	habit, err := client.CreateHabit(ctx, models.Habit{
		Name:      "Integration",
		Frequency: models.Frequency{Type: models.FrequencyWeekly, Value: 1, Weekdays: []time.Weekday{time.Tuesday}},
		StartDate: today,
	})
	if err != nil {
		t.Fatalf("CreateHabit failed: %v", err)
	}
	if len(habit.Frequency.Weekdays) != 1 || habit.Frequency.Weekdays[0] != time.Tuesday {
		t.Errorf("weekdays = %v", habit.Frequency.Weekdays)
	}

	sub, err := client.SubscribeToChanges(ctx, habit.ID)
	if err != nil {
		t.Fatalf("SubscribeToChanges failed: %v", err)
	}
	defer sub.Unsubscribe()

	t.Run("Logs", func(t *testing.T) {
		entry, err := client.InsertLog(ctx, models.HabitLogEntry{HabitID: habit.ID, Date: today, Status: models.StatusAchieved})
		if err != nil {
			t.Fatalf("InsertLog failed: %v", err)
		}
		if entry.Date != today {
			t.Errorf("Date = %s, want %s", entry.Date, today)
		}

		select {
		case ev := <-sub.Events():
			if ev.HabitID != habit.ID || ev.Op != gateway.ChangeInsert {
				t.Errorf("event = %+v", ev)
			}
		case <-time.After(5 * time.Second):
			t.Error("no notification received")
		}

		again, err := client.InsertLog(ctx, models.HabitLogEntry{HabitID: habit.ID, Date: today, Status: models.StatusNotAchieved})
		if err != nil {
			t.Fatalf("second InsertLog failed: %v", err)
		}
		if again.ID != entry.ID {
			t.Errorf("upsert created a second row")
		}
	})

	t.Run("Statistics", func(t *testing.T) {
		if err := client.InvokeProcedure(ctx, constants.ProcRecomputeStatistics); err != nil {
			t.Fatalf("recompute failed: %v", err)
		}
		if err := client.InvokeProcedure(ctx, constants.ProcRecomputeStatistics); !errors.Is(err, gateway.ErrRateLimited) {
			t.Errorf("second recompute error = %v, want ErrRateLimited", err)
		}
		stats, err := client.Statistics(ctx, false)
		if err != nil {
			t.Fatalf("Statistics failed: %v", err)
		}
		if len(stats) != 1 || stats[0].TotalDays != 1 {
			t.Errorf("statistics = %+v", stats)
		}
	})
}
