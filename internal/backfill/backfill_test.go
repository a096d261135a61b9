package backfill_test

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/julianstephens/habitlog/internal/backfill"
	"github.com/julianstephens/habitlog/internal/gateway"
	"github.com/julianstephens/habitlog/internal/gateway/gatewaytest"
	"github.com/julianstephens/habitlog/internal/models"
)

func fixedClock() time.Time {
	return time.Date(2024, 3, 7, 0, 5, 0, 0, time.UTC)
}

func setup(t *testing.T) (*gateway.Client, *gatewaytest.Backend) {
	t.Helper()
	backend := gatewaytest.New()
	backend.Now = fixedClock
	client := gateway.NewClient(backend, gatewaytest.ServiceIdentity(),
		gateway.WithClock(fixedClock), gateway.WithLocation(time.UTC))
	t.Cleanup(func() { client.Close() })
	return client, backend
}

func statusOn(b *gatewaytest.Backend, habitID, date string) (string, int) {
	var status string
	n := 0
	for _, row := range b.Logs(habitID) {
		if row.Date == date {
			status = row.Status
			n++
		}
	}
	return status, n
}

func TestBackfillYesterday(t *testing.T) {
	client, backend := setup(t)
	ctx := context.Background()

	empty := backend.AddHabit("u1", "Read", "2024-01-01")
	recorded := backend.AddHabit("u2", "Run", "2024-01-01")
	future := backend.AddHabit("u1", "Swim", "2024-03-07")
	archived := backend.AddHabit("u1", "Old", "2024-01-01")
	if _, err := backend.UpdateHabit(ctx, archived, gateway.HabitPatch{IsArchived: ptr(true)}); err != nil {
		t.Fatal(err)
	}

	weekly, err := client.CreateHabit(ctx, models.Habit{
		UserID:    "u1",
		Name:      "Review",
		Frequency: models.Frequency{Type: models.FrequencyWeekly, Value: 1, Weekdays: []time.Weekday{time.Wednesday}},
		StartDate: "2024-01-01",
	})
	if err != nil {
		t.Fatal(err)
	}

	notes := "skipped"
	backend.PutLog(gateway.LogRow{HabitID: recorded, Date: "2024-03-06", Status: "not_achieved", Notes: &notes})

	report, err := backfill.New(client).Run(ctx, "")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if report.Date != "2024-03-06" || report.Processed != 2 || report.Created != 1 || report.Failed != 0 {
		t.Errorf("report = %+v", report)
	}
	if report.String() != "Processed 2 habits, created 1 logs" {
		t.Errorf("String() = %q", report.String())
	}

	if status, n := statusOn(backend, empty, "2024-03-06"); status != "achieved" || n != 1 {
		t.Errorf("empty habit: status %q, %d rows", status, n)
	}
	if status, n := statusOn(backend, recorded, "2024-03-06"); status != "not_achieved" || n != 1 {
		t.Errorf("recorded habit overwritten: status %q, %d rows", status, n)
	}
	for _, id := range []string{future, archived, weekly.ID} {
		if _, n := statusOn(backend, id, "2024-03-06"); n != 0 {
			t.Errorf("habit %s was backfilled", id)
		}
	}
}

func TestBackfillIdempotent(t *testing.T) {
	client, backend := setup(t)
	backend.AddHabit("u1", "Read", "2024-01-01")
	job := backfill.New(client, backfill.WithStatus(models.StatusNotAchieved))

	first, err := job.Run(context.Background(), "2024-03-01")
	if err != nil {
		t.Fatal(err)
	}
	second, err := job.Run(context.Background(), "2024-03-01")
	if err != nil {
		t.Fatal(err)
	}
	if first.Created != 1 || second.Created != 0 || second.Processed != 1 {
		t.Errorf("first = %+v, second = %+v", first, second)
	}
}

func TestBackfillSkipsFailedLookups(t *testing.T) {
	client, backend := setup(t)
	a := backend.AddHabit("u1", "Read", "2024-01-01")
	b := backend.AddHabit("u1", "Run", "2024-01-01")

	backend.SetHook(gatewaytest.OpSelectLogs, func(ctx context.Context, call gatewaytest.Call) error {
		if call.HabitID == a {
			return stderrors.New("lookup failed")
		}
		return nil
	})

	report, err := backfill.New(client).Run(context.Background(), "")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if report.Processed != 2 || report.Created != 1 || report.Failed != 1 {
		t.Errorf("report = %+v", report)
	}
	if _, n := statusOn(backend, b, report.Date); n != 1 {
		t.Error("healthy habit was not backfilled")
	}
}

func TestBackfillInsertFailure(t *testing.T) {
	client, backend := setup(t)
	backend.AddHabit("u1", "Read", "2024-01-01")
	backend.Fail(gatewaytest.OpInsertLogs, stderrors.New("insert failed"))

	if _, err := backfill.New(client).Run(context.Background(), ""); err == nil {
		t.Fatal("Run() should fail when the batch insert fails")
	}
}

func TestBackfillInvalidInput(t *testing.T) {
	client, _ := setup(t)

	if _, err := backfill.New(client).Run(context.Background(), "yesterday"); err == nil {
		t.Error("Run() accepted an invalid date")
	}
	if _, err := backfill.New(client, backfill.WithStatus("done")).Run(context.Background(), ""); !stderrors.Is(err, gateway.ErrInvalidInput) {
		t.Errorf("Run() error = %v, want ErrInvalidInput", err)
	}
}

func ptr[T any](v T) *T { return &v }
