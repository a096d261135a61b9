package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	pq "github.com/lib/pq"

	"github.com/julianstephens/habitlog/internal/constants"
	"github.com/julianstephens/habitlog/internal/gateway"
	"github.com/julianstephens/habitlog/internal/logger"
)

// Listen subscribes to changes of table rows belonging to habitID. The first
// call opens the shared LISTEN connection and waits for it to come up; if
// that fails the error is returned and the next call tries again.
func (s *Store) Listen(ctx context.Context, table, habitID string) (gateway.Subscription, error) {
	if err := s.startListener(ctx); err != nil {
		return nil, err
	}
	return s.hub.Subscribe(table, habitID)
}

func (s *Store) startListener(ctx context.Context) error {
	s.listenMu.Lock()
	defer s.listenMu.Unlock()

	if s.listener != nil {
		return nil
	}

	// lib/pq dials in the background; the first attempt decides the outcome
	first := make(chan error, 1)
	report := func(ev pq.ListenerEventType, err error) {
		switch ev {
		case pq.ListenerEventConnected:
			select {
			case first <- nil:
			default:
			}
		case pq.ListenerEventConnectionAttemptFailed:
			select {
			case first <- err:
			default:
			}
		}
		s.onListenerEvent(ev, err)
	}

	listener := pq.NewListener(s.connStr, constants.ListenerMinReconnect, constants.ListenerMaxReconnect, report)
	if err := waitConnected(ctx, first, constants.ListenerConnectTimeout); err != nil {
		_ = listener.Close()
		return fmt.Errorf("failed to connect change listener: %w", err)
	}
	if err := listener.Listen(constants.ChangeChannel); err != nil {
		_ = listener.Close()
		return fmt.Errorf("failed to listen on %s: %w", constants.ChangeChannel, err)
	}

	s.listener = listener
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	go s.forward(listener, s.stop, s.done)

	logger.Debug("listening for habit log changes", "channel", constants.ChangeChannel)
	return nil
}

func waitConnected(ctx context.Context, first <-chan error, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case err := <-first:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return fmt.Errorf("no connection after %s: %w", timeout, context.DeadlineExceeded)
	}
}

func (s *Store) onListenerEvent(ev pq.ListenerEventType, err error) {
	switch ev {
	case pq.ListenerEventDisconnected:
		logger.Warn("change listener disconnected", "error", err)
	case pq.ListenerEventReconnected:
		// notifications sent while disconnected are lost
		logger.Info("change listener reconnected")
		s.hub.Publish(gateway.ChangeEvent{Op: gateway.ChangeResync})
	case pq.ListenerEventConnectionAttemptFailed:
		logger.Warn("change listener connection attempt failed", "error", err)
	}
}

func (s *Store) forward(listener *pq.Listener, stop, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-stop:
			return
		case n, ok := <-listener.Notify:
			if !ok {
				return
			}
			// nil after a reconnect; onListenerEvent already published a resync
			if n == nil {
				continue
			}
			ev, err := decodeNotification(n.Extra)
			if err != nil {
				logger.Warn("dropping malformed change notification", "payload", n.Extra, "error", err)
				s.hub.Publish(gateway.ChangeEvent{Op: gateway.ChangeResync})
				continue
			}
			s.hub.Publish(ev)
		}
	}
}

func (s *Store) stopListener() {
	s.listenMu.Lock()
	defer s.listenMu.Unlock()

	if s.listener == nil {
		return
	}
	close(s.stop)
	<-s.done
	if err := s.listener.Close(); err != nil {
		logger.Warn("failed to close change listener", "error", err)
	}
	s.listener = nil
}

// decodeNotification parses the JSON payload sent by notify_habit_log_change
func decodeNotification(payload string) (gateway.ChangeEvent, error) {
	var ev gateway.ChangeEvent
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		return gateway.ChangeEvent{}, err
	}
	switch ev.Op {
	case gateway.ChangeInsert, gateway.ChangeUpdate, gateway.ChangeDelete:
	default:
		return gateway.ChangeEvent{}, fmt.Errorf("unknown change op %q", ev.Op)
	}
	if ev.Table == "" || ev.HabitID == "" {
		return gateway.ChangeEvent{}, fmt.Errorf("notification without table or habit")
	}
	return ev, nil
}
