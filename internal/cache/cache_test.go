package cache

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"
)

type stat struct {
	HabitID string
	Rate    float64
}

func counter[T any](v T, calls *int) func(context.Context) (T, error) {
	return func(context.Context) (T, error) {
		*calls++
		return v, nil
	}
}

func TestFetchLoadsOnce(t *testing.T) {
	c := New()
	ctx := context.Background()
	calls := 0
	want := []stat{{"h1", 50}}

	for i := 0; i < 3; i++ {
		got, err := Fetch(ctx, c, "habit-statistics", counter(want, &calls))
		if err != nil {
			t.Fatalf("Fetch() error = %v", err)
		}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("Fetch() = %+v, want %+v", got, want)
		}
	}
	if calls != 1 {
		t.Errorf("load called %d times, want 1", calls)
	}
}

func TestFetchErrorNotCached(t *testing.T) {
	c := New()
	ctx := context.Background()
	boom := errors.New("boom")

	_, err := Fetch(ctx, c, "habits", func(context.Context) ([]stat, error) { return nil, boom })
	if !errors.Is(err, boom) {
		t.Fatalf("Fetch() error = %v, want %v", err, boom)
	}
	if c.Cached("habits") {
		t.Error("failed load was cached")
	}
}

func TestTTL(t *testing.T) {
	now := time.Date(2024, 3, 7, 12, 0, 0, 0, time.UTC)
	c := New(WithTTL(time.Minute), WithClock(func() time.Time { return now }))
	ctx := context.Background()
	calls := 0

	if _, err := Fetch(ctx, c, "habits", counter(1, &calls)); err != nil {
		t.Fatal(err)
	}
	now = now.Add(30 * time.Second)
	if _, err := Fetch(ctx, c, "habits", counter(1, &calls)); err != nil {
		t.Fatal(err)
	}
	now = now.Add(time.Minute)
	if _, err := Fetch(ctx, c, "habits", counter(1, &calls)); err != nil {
		t.Fatal(err)
	}
	if calls != 2 {
		t.Errorf("load called %d times, want 2", calls)
	}
}

func TestInvalidate(t *testing.T) {
	c := New()
	ctx := context.Background()
	calls := 0

	var notified [][]string
	remove := c.OnInvalidate(func(keys []string) { notified = append(notified, keys) })

	if _, err := Fetch(ctx, c, "habit-statistics", counter(1, &calls)); err != nil {
		t.Fatal(err)
	}
	if _, err := Fetch(ctx, c, "habit-templates", counter(2, &calls)); err != nil {
		t.Fatal(err)
	}

	c.Invalidate("habit-statistics", "habits")
	if c.Cached("habit-statistics") {
		t.Error("habit-statistics still cached after Invalidate")
	}
	if !c.Cached("habit-templates") {
		t.Error("habit-templates was invalidated")
	}
	if len(notified) != 1 || !reflect.DeepEqual(notified[0], []string{"habit-statistics", "habits"}) {
		t.Errorf("listener got %v", notified)
	}

	remove()
	c.Invalidate("habit-templates")
	if len(notified) != 1 {
		t.Errorf("removed listener was called")
	}

	if _, err := Fetch(ctx, c, "habit-statistics", counter(1, &calls)); err != nil {
		t.Fatal(err)
	}
	if calls != 3 {
		t.Errorf("load called %d times, want 3", calls)
	}
}

func TestInvalidateDuringLoad(t *testing.T) {
	c := New()
	ctx := context.Background()

	entered := make(chan struct{})
	release := make(chan struct{})
	done := make(chan string, 1)
	go func() {
		v, err := Fetch(ctx, c, "habit-statistics", func(context.Context) (string, error) {
			close(entered)
			<-release
			return "before-recompute", nil
		})
		if err != nil {
			t.Errorf("Fetch() error = %v", err)
		}
		done <- v
	}()
	<-entered

	c.Invalidate("habit-statistics")
	close(release)
	if got := <-done; got != "before-recompute" {
		t.Errorf("overlapping Fetch() = %q, want before-recompute", got)
	}
	if c.Cached("habit-statistics") {
		t.Fatal("value loaded before Invalidate was cached")
	}

	calls := 0
	got, err := Fetch(ctx, c, "habit-statistics", counter("after-recompute", &calls))
	if err != nil {
		t.Fatal(err)
	}
	if got != "after-recompute" || calls != 1 {
		t.Errorf("Fetch() = %q after %d loads, want after-recompute after 1", got, calls)
	}
	if !c.Cached("habit-statistics") {
		t.Error("reload was not cached")
	}
}

func TestDiskTierSharedAcrossInstances(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	calls := 0
	want := []stat{{"h1", 42.86}}

	first := New(WithDisk(dir), WithNamespace("user-1"))
	if _, err := Fetch(ctx, first, "habit-statistics", counter(want, &calls)); err != nil {
		t.Fatal(err)
	}

	second := New(WithDisk(dir), WithNamespace("user-1"))
	got, err := Fetch(ctx, second, "habit-statistics", counter([]stat(nil), &calls))
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, want) || calls != 1 {
		t.Errorf("second instance got %+v after %d loads", got, calls)
	}

	other := New(WithDisk(dir), WithNamespace("user-2"))
	if other.Cached("habit-statistics") {
		t.Error("entry leaked across namespaces")
	}

	second.Invalidate("habit-statistics")
	third := New(WithDisk(dir), WithNamespace("user-1"))
	if third.Cached("habit-statistics") {
		t.Error("invalidation was not persisted")
	}
}
