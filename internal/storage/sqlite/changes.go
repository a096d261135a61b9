package sqlite

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/julianstephens/habitlog/internal/constants"
	"github.com/julianstephens/habitlog/internal/gateway"
	"github.com/julianstephens/habitlog/internal/logger"
)

// selfWriteGrace is how long file events are attributed to our own writes
const selfWriteGrace = 5 * constants.ChangeThrottle

// Listen subscribes to changes of table rows belonging to habitID. The first
// call starts watching the database file for writes by other processes; when
// the watcher cannot start, only this store's own writes are reported.
func (s *Store) Listen(ctx context.Context, table, habitID string) (gateway.Subscription, error) {
	s.watchOnce.Do(s.startWatcher)
	return s.hub.Subscribe(table, habitID)
}

func (s *Store) publish(events ...gateway.ChangeEvent) {
	if len(events) == 0 {
		return
	}
	s.touch()
	for _, ev := range events {
		s.hub.Publish(ev)
	}
}

// touch records a local write so the watcher does not echo it back
func (s *Store) touch() {
	s.lastWriteMu.Lock()
	s.lastWrite = time.Now()
	s.lastWriteMu.Unlock()
}

func (s *Store) recentlyWritten() bool {
	s.lastWriteMu.Lock()
	defer s.lastWriteMu.Unlock()
	return time.Since(s.lastWrite) < selfWriteGrace
}

func (s *Store) startWatcher() {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Warn("change watcher unavailable", "error", err)
		return
	}
	dir := filepath.Dir(s.path)
	if err := watcher.Add(dir); err != nil {
		logger.Warn("failed to watch database directory", "dir", dir, "error", err)
		_ = watcher.Close()
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.stopWatch = cancel
	s.watchDone = make(chan struct{})

	go func() {
		defer close(s.watchDone)
		defer watcher.Close()

		throttle := newResyncThrottle(constants.ChangeThrottle)
		defer throttle.Stop()

		resync := func() {
			s.hub.Publish(gateway.ChangeEvent{Op: gateway.ChangeResync})
		}

		base := filepath.Base(s.path)
		for {
			select {
			case <-ctx.Done():
				return
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("change watcher error", "error", err)
				throttle.Enqueue(resync)
			case evt, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !strings.HasPrefix(filepath.Base(evt.Name), base) {
					continue
				}
				if !evt.Has(fsnotify.Write) && !evt.Has(fsnotify.Create) {
					continue
				}
				if s.recentlyWritten() {
					continue
				}
				logger.Debug("database file changed", "file", evt.Name, "op", evt.Op.String())
				throttle.Enqueue(resync)
			}
		}
	}()
}

// resyncThrottle collapses a burst of file events into a single resync
type resyncThrottle struct {
	mu    sync.Mutex
	timer *time.Timer
	delay time.Duration
}

func newResyncThrottle(delay time.Duration) *resyncThrottle {
	return &resyncThrottle{delay: delay}
}

func (t *resyncThrottle) Enqueue(send func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.timer != nil {
		return
	}
	t.timer = time.AfterFunc(t.delay, func() {
		t.mu.Lock()
		t.timer = nil
		t.mu.Unlock()
		send()
	})
}

func (t *resyncThrottle) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}
