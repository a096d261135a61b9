// Package scheduler runs the nightly maintenance jobs of the daemon.
package scheduler

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/julianstephens/habitlog/internal/logger"
)

// Job is a unit of scheduled work. Its context is cancelled by Stop.
type Job func(ctx context.Context) error

type Scheduler struct {
	cron   *cron.Cron
	loc    *time.Location
	ctx    context.Context
	cancel context.CancelFunc
}

// cronLogger forwards cron's own messages to the application logger
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	logger.Debug("cron: "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}

func New(loc *time.Location) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	ctx, cancel := context.WithCancel(context.Background())
	l := cronLogger{}
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithSeconds(),
			cron.WithLogger(l),
			cron.WithChain(cron.Recover(l), cron.SkipIfStillRunning(l)),
		),
		loc:    loc,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Daily registers job to run every day at timeStr (HH:MM) in the
// scheduler's location.
func (s *Scheduler) Daily(name, timeStr string, job Job) (cron.EntryID, error) {
	spec, err := buildDailySpec(timeStr)
	if err != nil {
		return 0, err
	}
	id, err := s.cron.AddFunc(spec, func() {
		start := time.Now()
		logger.Info("job started", "job", name)
		if err := job(s.ctx); err != nil {
			logger.Error("job failed", "job", name, "error", err)
			return
		}
		logger.Info("job finished", "job", name, "duration", time.Since(start).Round(time.Millisecond))
	})
	if err != nil {
		return 0, fmt.Errorf("failed to schedule %s: %w", name, err)
	}
	logger.Debug("job scheduled", "job", name, "at", timeStr, "location", s.loc.String())
	return id, nil
}

// Next returns when the job id runs next after t.
func (s *Scheduler) Next(id cron.EntryID, t time.Time) time.Time {
	e := s.cron.Entry(id)
	if !e.Valid() {
		return time.Time{}
	}
	return e.Schedule.Next(t)
}

// Run executes the job id immediately through the same wrappers as a
// scheduled run.
func (s *Scheduler) Run(id cron.EntryID) {
	if e := s.cron.Entry(id); e.Valid() {
		e.WrappedJob.Run()
	}
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop cancels running jobs and waits for them to return.
func (s *Scheduler) Stop() {
	s.cancel()
	ctx := s.cron.Stop()
	<-ctx.Done()
}

func buildDailySpec(timeStr string) (string, error) {
	parts := strings.Split(timeStr, ":")
	if len(parts) != 2 {
		return "", fmt.Errorf("invalid time %q, expected HH:MM", timeStr)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return "", fmt.Errorf("invalid hour in %q", timeStr)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return "", fmt.Errorf("invalid minute in %q", timeStr)
	}
	// second minute hour dom month dow
	return fmt.Sprintf("0 %d %d * * *", minute, hour), nil
}
