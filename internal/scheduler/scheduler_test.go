package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestBuildDailySpec(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"00:05", "0 5 0 * * *", false},
		{"23:59", "0 59 23 * * *", false},
		{"7:30", "0 30 7 * * *", false},
		{"24:00", "", true},
		{"12:60", "", true},
		{"noon", "", true},
		{"12:00:00", "", true},
	}
	for _, tt := range tests {
		got, err := buildDailySpec(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("buildDailySpec(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("buildDailySpec(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDailyNextInLocation(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Tokyo")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	s := New(loc)

	id, err := s.Daily("backfill", "00:05", func(context.Context) error { return nil })
	if err != nil {
		t.Fatalf("Daily() error = %v", err)
	}

	from := time.Date(2024, 3, 6, 23, 0, 0, 0, loc)
	want := time.Date(2024, 3, 7, 0, 5, 0, 0, loc)
	if got := s.Next(id, from); !got.Equal(want) {
		t.Errorf("Next() = %v, want %v", got, want)
	}

	if _, err := s.Daily("bad", "25:00", func(context.Context) error { return nil }); err == nil {
		t.Error("Daily() accepted an invalid time")
	}
}

func TestRunAndStop(t *testing.T) {
	s := New(time.UTC)
	ran := 0
	var jobCtx context.Context

	id, err := s.Daily("recompute", "00:15", func(ctx context.Context) error {
		ran++
		jobCtx = ctx
		return errors.New("logged, not fatal")
	})
	if err != nil {
		t.Fatal(err)
	}

	s.Start()
	s.Run(id)
	if ran != 1 {
		t.Fatalf("job ran %d times, want 1", ran)
	}

	s.Stop()
	if jobCtx.Err() == nil {
		t.Error("Stop() did not cancel the job context")
	}
}
