package gateway

import (
	"errors"
	"sync"

	"github.com/julianstephens/habitlog/internal/constants"
)

// ChangeOp is the kind of change carried by a ChangeEvent
type ChangeOp string

const (
	ChangeInsert ChangeOp = "INSERT"
	ChangeUpdate ChangeOp = "UPDATE"
	ChangeDelete ChangeOp = "DELETE"
	// ChangeResync tells subscribers that events may have been missed and
	// everything should be refetched.
	ChangeResync ChangeOp = "RESYNC"
)

// ChangeEvent describes a server-side change to a row. An empty Table or
// HabitID matches every subscription.
type ChangeEvent struct {
	Table   string   `json:"table"`
	Op      ChangeOp `json:"op"`
	HabitID string   `json:"habit_id,omitempty"`
	LogID   string   `json:"id,omitempty"`
	Date    string   `json:"date,omitempty"`
}

// Subscription is a live change stream. Events is closed after Unsubscribe
// or when the backend shuts down.
type Subscription interface {
	Events() <-chan ChangeEvent
	Unsubscribe()
}

var ErrHubClosed = errors.New("gateway: change hub closed")

// Hub fans change events out to subscriptions filtered by table and habit.
// Publishing never blocks: when a subscriber's buffer is full the event is
// dropped, since the pending one already triggers a full refetch.
type Hub struct {
	mu     sync.Mutex
	subs   map[uint64]*hubSubscription
	next   uint64
	closed bool
}

func NewHub() *Hub {
	return &Hub{subs: make(map[uint64]*hubSubscription)}
}

type hubSubscription struct {
	hub     *Hub
	id      uint64
	table   string
	habitID string
	ch      chan ChangeEvent
}

func (s *hubSubscription) Events() <-chan ChangeEvent { return s.ch }

func (s *hubSubscription) Unsubscribe() { s.hub.remove(s.id) }

func (s *hubSubscription) matches(ev ChangeEvent) bool {
	if ev.Table != "" && ev.Table != s.table {
		return false
	}
	return ev.HabitID == "" || s.habitID == "" || ev.HabitID == s.habitID
}

// Subscribe registers a subscription for changes to table rows of habitID.
// An empty habitID receives changes for every habit.
func (h *Hub) Subscribe(table, habitID string) (Subscription, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, ErrHubClosed
	}
	h.next++
	sub := &hubSubscription{
		hub:     h,
		id:      h.next,
		table:   table,
		habitID: habitID,
		ch:      make(chan ChangeEvent, constants.ChangeBufferSize),
	}
	h.subs[sub.id] = sub
	return sub, nil
}

// Publish delivers ev to every matching subscription
func (h *Hub) Publish(ev ChangeEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, sub := range h.subs {
		if !sub.matches(ev) {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
		}
	}
}

// Len returns the number of live subscriptions
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close ends every subscription and rejects new ones
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	for id, sub := range h.subs {
		close(sub.ch)
		delete(h.subs, id)
	}
}

func (h *Hub) remove(id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if sub, ok := h.subs[id]; ok {
		close(sub.ch)
		delete(h.subs, id)
	}
}
