// Package habitview keeps the live log window of one habit: it subscribes to
// changes, refetches on every change, and applies edits optimistically.
//
// Every piece of asynchronous work captures the view generation it started
// under. Subscribe, SetAnchor and Unsubscribe bump the generation, and work
// that resumes under an older one is dropped.
package habitview

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/julianstephens/habitlog/internal/constants"
	"github.com/julianstephens/habitlog/internal/errors"
	"github.com/julianstephens/habitlog/internal/gateway"
	"github.com/julianstephens/habitlog/internal/logger"
	"github.com/julianstephens/habitlog/internal/models"
	"github.com/julianstephens/habitlog/internal/reconcile"
)

// Gateway is the slice of gateway.Client a view needs.
type Gateway interface {
	reconcile.Source
	SubscribeToChanges(ctx context.Context, habitID string) (gateway.Subscription, error)
	InsertLog(ctx context.Context, entry models.HabitLogEntry) (models.HabitLogEntry, error)
	UpdateLog(ctx context.Context, habitID, id string, status models.LogStatus, notes string) (models.HabitLogEntry, error)
}

type Status int

const (
	Unsubscribed Status = iota
	Subscribing
	Active
)

func (s Status) String() string {
	switch s {
	case Subscribing:
		return "subscribing"
	case Active:
		return "active"
	default:
		return "unsubscribed"
	}
}

// Handle identifies one Subscribe call.
type Handle struct {
	gen     uint64
	habitID string
}

func (h Handle) HabitID() string { return h.habitID }

// State is an immutable snapshot of a view.
type State struct {
	Version         uint64
	HabitID         string
	Anchor          string
	Status          Status
	Window          reconcile.Window
	Loaded          bool
	Loading         bool
	Updating        []string
	FetchErr        error
	SubscriptionErr error
	UpdateErr       error
}

// IsUpdating reports whether date has a write in flight.
func (s State) IsUpdating(date string) bool {
	i := sort.SearchStrings(s.Updating, date)
	return i < len(s.Updating) && s.Updating[i] == date
}

type View struct {
	gw     Gateway
	engine *reconcile.Engine
	length int
	log    *log.Logger

	mu       sync.Mutex
	idle     *sync.Cond
	gen      uint64
	version  uint64
	habitID  string
	anchor   string
	status   Status
	sub      gateway.Subscription
	window   reconcile.Window
	loaded   bool
	loading  int
	inflight int
	updating map[string]int
	// epoch changes whenever updating is replaced
	epoch     uint64
	fetchErr  error
	subErr    error
	updateErr error
	listeners map[int]func(State)
	nextID    int
}

type Option func(*View)

// WithWindowLength sets the number of days shown.
func WithWindowLength(n int) Option {
	return func(v *View) {
		if n > 0 {
			v.length = n
		}
	}
}

func New(gw Gateway, opts ...Option) *View {
	v := &View{
		gw:        gw,
		engine:    reconcile.NewEngine(gw),
		length:    constants.DefaultWindowLength,
		log:       logger.With("component", "habitview"),
		updating:  make(map[string]int),
		listeners: make(map[int]func(State)),
	}
	v.idle = sync.NewCond(&v.mu)
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// OnChange registers fn to receive a snapshot after every state change. It
// runs on the goroutine that made the change. The returned function removes it.
func (v *View) OnChange(fn func(State)) func() {
	v.mu.Lock()
	defer v.mu.Unlock()
	id := v.nextID
	v.nextID++
	v.listeners[id] = fn
	return func() {
		v.mu.Lock()
		defer v.mu.Unlock()
		delete(v.listeners, id)
	}
}

// Snapshot returns the current state.
func (v *View) Snapshot() State {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.snapshotLocked()
}

func (v *View) snapshotLocked() State {
	updating := make([]string, 0, len(v.updating))
	for date := range v.updating {
		updating = append(updating, date)
	}
	sort.Strings(updating)

	return State{
		Version:         v.version,
		HabitID:         v.habitID,
		Anchor:          v.anchor,
		Status:          v.status,
		Window:          v.window.Clone(),
		Loaded:          v.loaded,
		Loading:         v.loading > 0,
		Updating:        updating,
		FetchErr:        v.fetchErr,
		SubscriptionErr: v.subErr,
		UpdateErr:       v.updateErr,
	}
}

// changedLocked bumps the version and returns a function that delivers the
// new snapshot. It must be called after v.mu is released.
func (v *View) changedLocked() func() {
	v.version++
	if len(v.listeners) == 0 {
		return func() {}
	}
	state := v.snapshotLocked()
	fns := make([]func(State), 0, len(v.listeners))
	for _, fn := range v.listeners {
		fns = append(fns, fn)
	}
	return func() {
		for _, fn := range fns {
			fn(state)
		}
	}
}

// teardownLocked releases the current subscription and invalidates all work
// started under the current generation.
func (v *View) teardownLocked() {
	if v.sub != nil {
		v.sub.Unsubscribe()
		v.sub = nil
	}
	v.gen++
	v.status = Unsubscribed
}

// Subscribe switches the view to habitID with the window ending at anchor
// (clamped to today, empty for today). The previous subscription is released
// first. The initial window is fetched before Subscribe returns; a failed
// fetch is reported through State.FetchErr. The returned error is non-nil
// only when the change stream could not be established.
func (v *View) Subscribe(ctx context.Context, habitID, anchor string) (Handle, error) {
	if habitID == "" {
		return Handle{}, errors.SubscriptionError(fmt.Errorf("%w: habit id is required", gateway.ErrInvalidInput))
	}
	day, err := v.engine.Anchor(anchor)
	if err != nil {
		return Handle{}, errors.SubscriptionError(fmt.Errorf("%w: %v", gateway.ErrInvalidInput, err))
	}

	v.mu.Lock()
	v.teardownLocked()
	gen := v.gen
	if habitID != v.habitID {
		v.resetUpdatingLocked()
		v.updateErr = nil
	}
	v.habitID = habitID
	v.anchor = day
	v.status = Subscribing
	v.window = reconcile.Window{}
	v.loaded = false
	v.loading = 0
	v.fetchErr = nil
	v.subErr = nil
	notify := v.changedLocked()
	v.mu.Unlock()
	notify()

	handle := Handle{gen: gen, habitID: habitID}
	v.log.Debug("subscribing", "habit", habitID, "anchor", day, "gen", gen)

	sub, subErr := v.gw.SubscribeToChanges(ctx, habitID)

	v.mu.Lock()
	if gen != v.gen {
		v.mu.Unlock()
		if sub != nil {
			sub.Unsubscribe()
		}
		v.log.Debug("discarding superseded subscription", "habit", habitID, "gen", gen)
		return handle, nil
	}
	if subErr != nil {
		v.status = Unsubscribed
		v.subErr = errors.SubscriptionError(subErr)
		v.log.Warn("subscription failed", "habit", habitID, "error", subErr)
	} else {
		v.sub = sub
		v.status = Active
		go v.listen(gen, sub)
	}
	notify = v.changedLocked()
	v.mu.Unlock()
	notify()

	v.refresh(ctx, gen)

	if subErr != nil {
		return handle, errors.SubscriptionError(subErr)
	}
	return handle, nil
}

// SetAnchor moves the window of the current habit, re-establishing the
// subscription.
func (v *View) SetAnchor(ctx context.Context, anchor string) error {
	v.mu.Lock()
	habitID := v.habitID
	v.mu.Unlock()
	if habitID == "" {
		return errors.SubscriptionError(fmt.Errorf("%w: no habit selected", gateway.ErrInvalidInput))
	}
	_, err := v.Subscribe(ctx, habitID, anchor)
	return err
}

// Unsubscribe releases the subscription of h. It does nothing when h is no
// longer current. Fetches still in flight are discarded when they complete.
func (v *View) Unsubscribe(h Handle) {
	v.mu.Lock()
	if h.gen != v.gen || v.habitID == "" {
		v.mu.Unlock()
		return
	}
	v.teardownLocked()
	v.habitID = ""
	v.anchor = ""
	v.window = reconcile.Window{}
	v.loaded = false
	v.loading = 0
	v.resetUpdatingLocked()
	v.fetchErr, v.subErr, v.updateErr = nil, nil, nil
	notify := v.changedLocked()
	v.mu.Unlock()
	notify()

	v.log.Debug("unsubscribed", "habit", h.habitID, "gen", h.gen)
}

func (v *View) resetUpdatingLocked() {
	v.updating = make(map[string]int)
	v.epoch++
}

// Retry re-establishes a failed subscription, or refetches the window.
func (v *View) Retry(ctx context.Context) error {
	v.mu.Lock()
	habitID, anchor, status, gen := v.habitID, v.anchor, v.status, v.gen
	v.mu.Unlock()

	if habitID == "" {
		return errors.FetchError(fmt.Errorf("%w: no habit selected", gateway.ErrInvalidInput))
	}
	if status != Active {
		_, err := v.Subscribe(ctx, habitID, anchor)
		return err
	}
	return v.refresh(ctx, gen)
}

func (v *View) listen(gen uint64, sub gateway.Subscription) {
	for ev := range sub.Events() {
		v.mu.Lock()
		if gen != v.gen {
			v.mu.Unlock()
			return
		}
		v.inflight++
		v.mu.Unlock()

		v.log.Debug("change received", "habit", ev.HabitID, "op", ev.Op, "date", ev.Date, "gen", gen)
		go func() {
			defer v.done()
			v.refresh(context.Background(), gen)
		}()
	}
}

func (v *View) done() {
	v.mu.Lock()
	v.inflight--
	if v.inflight == 0 {
		v.idle.Broadcast()
	}
	v.mu.Unlock()
}

// Wait blocks until every change-triggered fetch started so far has completed.
func (v *View) Wait() {
	v.mu.Lock()
	for v.inflight > 0 {
		v.idle.Wait()
	}
	v.mu.Unlock()
}

// refresh reconciles the window for gen and installs the result if gen is
// still current. The most recently completed fetch always wins.
func (v *View) refresh(ctx context.Context, gen uint64) error {
	v.mu.Lock()
	if gen != v.gen {
		v.mu.Unlock()
		return nil
	}
	habitID, anchor := v.habitID, v.anchor
	v.loading++
	notify := v.changedLocked()
	v.mu.Unlock()
	notify()

	w, err := v.engine.Reconcile(ctx, habitID, anchor, v.length)

	v.mu.Lock()
	if gen != v.gen {
		v.mu.Unlock()
		v.log.Debug("discarding stale window", "habit", habitID, "gen", gen)
		return nil
	}
	v.loading--
	if err != nil {
		v.fetchErr = err
		v.log.Warn("failed to reconcile window", "habit", habitID, "error", err)
	} else {
		v.window = w
		v.loaded = true
		v.fetchErr = nil
	}
	notify = v.changedLocked()
	v.mu.Unlock()
	notify()

	return err
}

// UpdateLog sets status and notes of date. The window shows the change
// immediately. persistedID selects an update of that row; without it a new
// row is inserted. On failure the window is refetched, which discards the
// optimistic change, and an update error is returned.
func (v *View) UpdateLog(ctx context.Context, habitID, date, persistedID string, status models.LogStatus, notes string) (models.HabitLogEntry, error) {
	if !status.Valid() {
		return models.HabitLogEntry{}, errors.UpdateError(fmt.Errorf("%w: invalid status %q", gateway.ErrInvalidInput, status))
	}

	v.mu.Lock()
	if habitID == "" || habitID != v.habitID {
		v.mu.Unlock()
		return models.HabitLogEntry{}, errors.UpdateError(fmt.Errorf("%w: habit %q is not displayed", gateway.ErrInvalidInput, habitID))
	}
	gen, epoch := v.gen, v.epoch
	v.updating[date]++

	var prev, optimistic models.HabitLogEntry
	idx := v.window.Index(date)
	if idx >= 0 {
		prev = v.window.Entries[idx]
		optimistic = prev
		optimistic.Status = status
		optimistic.Notes = notes
		if persistedID != "" {
			optimistic.ID = persistedID
		}
		v.window = v.window.Clone()
		v.window.Entries[idx] = optimistic
	}
	notify := v.changedLocked()
	v.mu.Unlock()
	notify()

	// the marker outlives window changes of the same habit
	defer func() {
		v.mu.Lock()
		if epoch == v.epoch {
			if v.updating[date]--; v.updating[date] <= 0 {
				delete(v.updating, date)
			}
		}
		notify := v.changedLocked()
		v.mu.Unlock()
		notify()
	}()

	var (
		saved models.HabitLogEntry
		err   error
	)
	if persistedID != "" {
		saved, err = v.gw.UpdateLog(ctx, habitID, persistedID, status, notes)
	} else {
		saved, err = v.gw.InsertLog(ctx, models.HabitLogEntry{HabitID: habitID, Date: date, Status: status, Notes: notes})
	}

	if err == nil {
		v.mu.Lock()
		if gen == v.gen {
			v.updateErr = nil
			if idx >= 0 && v.cellIs(idx, optimistic) {
				v.window = v.window.Clone()
				v.window.Entries[idx] = saved
			}
		}
		v.mu.Unlock()
		v.log.Debug("log saved", "habit", habitID, "date", date, "id", saved.ID)
		return saved, nil
	}

	uerr := errors.UpdateError(err)
	v.log.Warn("log update failed, refetching", "habit", habitID, "date", date, "error", err)

	v.mu.Lock()
	if gen == v.gen {
		v.updateErr = uerr
	}
	v.mu.Unlock()

	if ferr := v.refresh(ctx, gen); ferr != nil && idx >= 0 {
		v.mu.Lock()
		if gen == v.gen && v.cellIs(idx, optimistic) {
			v.window = v.window.Clone()
			v.window.Entries[idx] = prev
		}
		v.mu.Unlock()
	}
	return models.HabitLogEntry{}, uerr
}

func (v *View) cellIs(idx int, e models.HabitLogEntry) bool {
	return idx < len(v.window.Entries) && v.window.Entries[idx] == e
}

// Close releases the subscription and waits for in-flight fetches.
func (v *View) Close() {
	v.mu.Lock()
	if v.habitID != "" {
		v.teardownLocked()
		v.habitID = ""
	}
	v.mu.Unlock()
	v.Wait()
}
