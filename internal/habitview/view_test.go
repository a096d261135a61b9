package habitview_test

import (
	"context"
	stderrors "errors"
	"reflect"
	"sync/atomic"
	"testing"
	"time"

	"github.com/julianstephens/habitlog/internal/errors"
	"github.com/julianstephens/habitlog/internal/gateway"
	"github.com/julianstephens/habitlog/internal/gateway/gatewaytest"
	"github.com/julianstephens/habitlog/internal/habitview"
	"github.com/julianstephens/habitlog/internal/models"
	"github.com/julianstephens/habitlog/internal/reconcile"
)

const today = "2024-03-07"

func fixedClock() time.Time {
	return time.Date(2024, 3, 7, 12, 0, 0, 0, time.UTC)
}

type fixture struct {
	view    *habitview.View
	client  *gateway.Client
	backend *gatewaytest.Backend
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	backend := gatewaytest.New()
	backend.Now = fixedClock
	client := gateway.NewClient(backend, gatewaytest.User("u1"),
		gateway.WithClock(fixedClock), gateway.WithLocation(time.UTC))
	view := habitview.New(client)
	t.Cleanup(func() {
		view.Close()
		client.Close()
	})
	return fixture{view: view, client: client, backend: backend}
}

func (f fixture) habit(name string) string {
	return f.backend.AddHabit("u1", name, "2024-01-01")
}

func (f fixture) put(habitID, date, status, notes string) gateway.LogRow {
	return f.backend.PutLog(gateway.LogRow{HabitID: habitID, Date: date, Status: status, Notes: &notes})
}

func (f fixture) fresh(t *testing.T, habitID string) reconcile.Window {
	t.Helper()
	w, err := reconcile.NewEngine(f.client).Reconcile(context.Background(), habitID, today, 7)
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	return w
}

func waitFor(t *testing.T, v *habitview.View, what string, cond func(habitview.State) bool) habitview.State {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		s := v.Snapshot()
		if cond(s) {
			return s
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s, state = %+v", what, s)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func entry(t *testing.T, s habitview.State, date string) models.HabitLogEntry {
	t.Helper()
	e, ok := s.Window.Entry(date)
	if !ok {
		t.Fatalf("window %s..%s has no entry for %s", s.Window.Start, s.Window.End, date)
	}
	return e
}

func TestSubscribeFetchesImmediately(t *testing.T) {
	f := newFixture(t)
	h := f.habit("Read")
	f.put(h, "2024-03-05", "achieved", "")

	handle, err := f.view.Subscribe(context.Background(), h, "")
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if handle.HabitID() != h {
		t.Errorf("HabitID() = %s, want %s", handle.HabitID(), h)
	}

	s := f.view.Snapshot()
	if s.Status != habitview.Active || !s.Loaded || s.Loading {
		t.Fatalf("state after Subscribe = %+v", s)
	}
	if !reflect.DeepEqual(s.Window, f.fresh(t, h)) {
		t.Errorf("window = %+v, want fresh reconcile", s.Window)
	}
	if f.backend.Subscribers() != 1 {
		t.Errorf("Subscribers() = %d, want 1", f.backend.Subscribers())
	}
}

func TestChangeEventTriggersRefetch(t *testing.T) {
	f := newFixture(t)
	h := f.habit("Read")
	if _, err := f.view.Subscribe(context.Background(), h, today); err != nil {
		t.Fatal(err)
	}

	row := f.put(h, "2024-03-06", "achieved", "from another device")
	f.backend.Emit(gateway.ChangeEvent{Table: "habit_logs", Op: gateway.ChangeInsert, HabitID: h, LogID: row.ID, Date: row.Date})

	s := waitFor(t, f.view, "remote insert", func(s habitview.State) bool {
		e, ok := s.Window.Entry("2024-03-06")
		return ok && e.ID == row.ID
	})
	if entry(t, s, "2024-03-06").Notes != "from another device" {
		t.Errorf("entry = %+v", entry(t, s, "2024-03-06"))
	}
}

func TestFetchFailureKeepsSubscription(t *testing.T) {
	f := newFixture(t)
	h := f.habit("Read")
	f.put(h, "2024-03-04", "achieved", "")
	if _, err := f.view.Subscribe(context.Background(), h, today); err != nil {
		t.Fatal(err)
	}
	before := f.view.Snapshot().Window

	f.backend.Fail(gatewaytest.OpSelectLogs, stderrors.New("timeout"))
	f.backend.Emit(gateway.ChangeEvent{Table: "habit_logs", Op: gateway.ChangeUpdate, HabitID: h})

	s := waitFor(t, f.view, "fetch error", func(s habitview.State) bool { return s.FetchErr != nil })
	if !stderrors.Is(s.FetchErr, errors.ErrFetch) {
		t.Errorf("FetchErr = %v, want fetch error", s.FetchErr)
	}
	if s.Status != habitview.Active {
		t.Errorf("Status = %s, want active", s.Status)
	}
	if !reflect.DeepEqual(s.Window, before) {
		t.Errorf("failed fetch replaced the window")
	}

	f.backend.SetHook(gatewaytest.OpSelectLogs, nil)
	if err := f.view.Retry(context.Background()); err != nil {
		t.Fatalf("Retry() error = %v", err)
	}
	if s := f.view.Snapshot(); s.FetchErr != nil {
		t.Errorf("FetchErr after Retry = %v", s.FetchErr)
	}
}

func TestSubscriptionFailure(t *testing.T) {
	f := newFixture(t)
	h := f.habit("Read")
	f.backend.Fail(gatewaytest.OpListen, stderrors.New("realtime unavailable"))

	_, err := f.view.Subscribe(context.Background(), h, today)
	if !stderrors.Is(err, errors.ErrSubscription) {
		t.Fatalf("Subscribe() error = %v, want subscription error", err)
	}
	s := f.view.Snapshot()
	if s.Status != habitview.Unsubscribed || s.SubscriptionErr == nil {
		t.Errorf("state = %+v, want unsubscribed with error", s)
	}
	if !s.Loaded || s.Window.Len() != 7 {
		t.Errorf("window not loaded after subscription failure: %+v", s.Window)
	}

	f.backend.SetHook(gatewaytest.OpListen, nil)
	if err := f.view.Retry(context.Background()); err != nil {
		t.Fatalf("Retry() error = %v", err)
	}
	s = f.view.Snapshot()
	if s.Status != habitview.Active || s.SubscriptionErr != nil {
		t.Errorf("state after Retry = %+v", s)
	}
}

func TestStaleResultDiscarded(t *testing.T) {
	f := newFixture(t)
	a := f.habit("A")
	b := f.habit("B")
	f.put(a, today, "achieved", "from A")
	f.put(b, "2024-03-02", "not_achieved", "from B")

	entered := make(chan struct{}, 1)
	release := make(chan struct{})
	f.backend.SetHook(gatewaytest.OpSelectLogs, func(ctx context.Context, call gatewaytest.Call) error {
		if call.HabitID == a {
			select {
			case entered <- struct{}{}:
			default:
			}
			<-release
		}
		return nil
	})

	doneA := make(chan struct{})
	go func() {
		defer close(doneA)
		f.view.Subscribe(context.Background(), a, today)
	}()
	<-entered

	if _, err := f.view.Subscribe(context.Background(), b, today); err != nil {
		t.Fatalf("Subscribe(B) error = %v", err)
	}
	close(release)
	<-doneA
	f.view.Wait()

	s := f.view.Snapshot()
	if s.HabitID != b || s.Window.HabitID != b {
		t.Fatalf("view shows habit %s / window %s, want %s", s.HabitID, s.Window.HabitID, b)
	}
	for _, e := range s.Window.Entries {
		if e.HabitID != b || e.Notes == "from A" {
			t.Errorf("entry %+v leaked from habit A", e)
		}
	}
	if entry(t, s, "2024-03-02").Notes != "from B" {
		t.Errorf("habit B entry missing: %+v", s.Window)
	}
	if f.backend.Subscribers() != 1 {
		t.Errorf("Subscribers() = %d, want 1", f.backend.Subscribers())
	}
}

func TestLastCompletedFetchWins(t *testing.T) {
	f := newFixture(t)
	h := f.habit("Read")
	if _, err := f.view.Subscribe(context.Background(), h, today); err != nil {
		t.Fatal(err)
	}

	var calls atomic.Int32
	entered := make(chan struct{})
	release := make(chan struct{})
	f.backend.SetHook(gatewaytest.OpSelectLogs, func(ctx context.Context, call gatewaytest.Call) error {
		if calls.Add(1) == 1 {
			close(entered)
			<-release
		}
		return nil
	})

	row := f.put(h, "2024-03-05", "achieved", "")
	f.backend.Emit(gateway.ChangeEvent{Table: "habit_logs", Op: gateway.ChangeInsert, HabitID: h})
	<-entered

	row.Status = "not_achieved"
	f.backend.PutLog(row)
	f.backend.Emit(gateway.ChangeEvent{Table: "habit_logs", Op: gateway.ChangeUpdate, HabitID: h})
	waitFor(t, f.view, "second fetch", func(s habitview.State) bool {
		e, ok := s.Window.Entry("2024-03-05")
		return ok && e.Status == models.StatusNotAchieved
	})

	close(release)
	f.view.Wait()
	s := f.view.Snapshot()
	if got := entry(t, s, "2024-03-05").Status; got != models.StatusAchieved {
		t.Errorf("status = %s, want the result of the last completed fetch", got)
	}
	if s.Loading {
		t.Error("view still loading after all fetches completed")
	}

	f.backend.Emit(gateway.ChangeEvent{Table: "habit_logs", Op: gateway.ChangeResync})
	waitFor(t, f.view, "convergence", func(s habitview.State) bool {
		e, ok := s.Window.Entry("2024-03-05")
		return ok && e.Status == models.StatusNotAchieved
	})
}

func TestOptimisticUpdateVisibleWhileInFlight(t *testing.T) {
	f := newFixture(t)
	h := f.habit("Read")
	if _, err := f.view.Subscribe(context.Background(), h, today); err != nil {
		t.Fatal(err)
	}

	entered := make(chan struct{})
	release := make(chan struct{})
	f.backend.SetHook(gatewaytest.OpInsertLogs, func(context.Context, gatewaytest.Call) error {
		close(entered)
		<-release
		return nil
	})

	type result struct {
		saved models.HabitLogEntry
		err   error
	}
	done := make(chan result, 1)
	go func() {
		saved, err := f.view.UpdateLog(context.Background(), h, "2024-03-04", "", models.StatusAchieved, "done")
		done <- result{saved, err}
	}()
	<-entered

	s := f.view.Snapshot()
	if e := entry(t, s, "2024-03-04"); e.Status != models.StatusAchieved || e.Notes != "done" || e.Persisted() {
		t.Errorf("optimistic entry = %+v", e)
	}
	if !s.IsUpdating("2024-03-04") || s.IsUpdating("2024-03-05") {
		t.Errorf("Updating = %v", s.Updating)
	}

	close(release)
	r := <-done
	if r.err != nil {
		t.Fatalf("UpdateLog() error = %v", r.err)
	}

	s = f.view.Snapshot()
	if len(s.Updating) != 0 {
		t.Errorf("Updating after success = %v", s.Updating)
	}
	if e := entry(t, s, "2024-03-04"); e.ID != r.saved.ID {
		t.Errorf("entry id = %q, want %q", e.ID, r.saved.ID)
	}
}

func TestUpdatingClearedAfterWindowMoves(t *testing.T) {
	f := newFixture(t)
	h := f.habit("Read")
	if _, err := f.view.Subscribe(context.Background(), h, today); err != nil {
		t.Fatal(err)
	}

	entered := make(chan struct{})
	release := make(chan struct{})
	f.backend.SetHook(gatewaytest.OpInsertLogs, func(context.Context, gatewaytest.Call) error {
		close(entered)
		<-release
		return nil
	})

	done := make(chan error, 1)
	go func() {
		_, err := f.view.UpdateLog(context.Background(), h, "2024-03-04", "", models.StatusAchieved, "")
		done <- err
	}()
	<-entered

	if err := f.view.SetAnchor(context.Background(), "2024-03-06"); err != nil {
		t.Fatalf("SetAnchor() error = %v", err)
	}
	if s := f.view.Snapshot(); !s.IsUpdating("2024-03-04") {
		t.Errorf("Updating while write in flight = %v, want 2024-03-04", s.Updating)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("UpdateLog() error = %v", err)
	}

	s := f.view.Snapshot()
	if len(s.Updating) != 0 || s.IsUpdating("2024-03-04") {
		t.Errorf("Updating after write completed = %v", s.Updating)
	}
	if s.Anchor != "2024-03-06" {
		t.Errorf("anchor = %s, want 2024-03-06", s.Anchor)
	}
}

func TestOptimisticRollback(t *testing.T) {
	f := newFixture(t)
	h := f.habit("Read")
	f.put(h, "2024-03-03", "achieved", "felt great")
	if _, err := f.view.Subscribe(context.Background(), h, today); err != nil {
		t.Fatal(err)
	}

	f.backend.Fail(gatewaytest.OpInsertLogs, stderrors.New("connection refused"))
	_, err := f.view.UpdateLog(context.Background(), h, "2024-03-05", "", models.StatusAchieved, "")
	if !stderrors.Is(err, errors.ErrUpdate) {
		t.Fatalf("UpdateLog() error = %v, want update error", err)
	}

	s := f.view.Snapshot()
	if !reflect.DeepEqual(s.Window, f.fresh(t, h)) {
		t.Errorf("window after rollback = %+v, want fresh reconcile", s.Window)
	}
	if s.IsUpdating("2024-03-05") {
		t.Error("failed date still marked as updating")
	}
	if !stderrors.Is(s.UpdateErr, errors.ErrUpdate) {
		t.Errorf("UpdateErr = %v", s.UpdateErr)
	}
}

func TestRollbackWhenRefetchAlsoFails(t *testing.T) {
	f := newFixture(t)
	h := f.habit("Read")
	row := f.put(h, "2024-03-03", "achieved", "felt great")
	if _, err := f.view.Subscribe(context.Background(), h, today); err != nil {
		t.Fatal(err)
	}

	f.backend.Fail(gatewaytest.OpUpdateLog, stderrors.New("offline"))
	f.backend.Fail(gatewaytest.OpSelectLogs, stderrors.New("offline"))
	_, err := f.view.UpdateLog(context.Background(), h, row.Date, row.ID, models.StatusNotAchieved, "tired")
	if !stderrors.Is(err, errors.ErrUpdate) {
		t.Fatalf("UpdateLog() error = %v, want update error", err)
	}

	s := f.view.Snapshot()
	e := entry(t, s, row.Date)
	if e.ID != row.ID || e.Status != models.StatusAchieved || e.Notes != "felt great" {
		t.Errorf("entry = %+v, want restored row", e)
	}
	if s.FetchErr == nil {
		t.Error("refetch failure not reported")
	}
}

func TestInsertThenUpdateKeepsOneRow(t *testing.T) {
	f := newFixture(t)
	h := f.habit("Read")
	if _, err := f.view.Subscribe(context.Background(), h, today); err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	const day5 = "2024-03-05"

	inserted, err := f.view.UpdateLog(ctx, h, day5, "", models.StatusAchieved, "")
	if err != nil {
		t.Fatalf("insert error = %v", err)
	}
	if !inserted.Persisted() {
		t.Fatal("insert returned no id")
	}

	updated, err := f.view.UpdateLog(ctx, h, day5, inserted.ID, models.StatusNotAchieved, "tired")
	if err != nil {
		t.Fatalf("update error = %v", err)
	}
	if updated.ID != inserted.ID {
		t.Errorf("update id = %s, want %s", updated.ID, inserted.ID)
	}

	var rows []gateway.LogRow
	for _, r := range f.backend.Logs(h) {
		if r.Date == day5 {
			rows = append(rows, r)
		}
	}
	if len(rows) != 1 {
		t.Fatalf("%d rows for %s, want 1", len(rows), day5)
	}
	if rows[0].Status != "not_achieved" || *rows[0].Notes != "tired" {
		t.Errorf("row = %+v", rows[0])
	}

	f.view.Wait()
	s := waitFor(t, f.view, "window settles", func(s habitview.State) bool {
		e, ok := s.Window.Entry(day5)
		return ok && e.Status == models.StatusNotAchieved
	})
	if e := entry(t, s, day5); e.ID != inserted.ID || e.Notes != "tired" {
		t.Errorf("window entry = %+v", e)
	}
}

func TestUpdateLogRejectsOtherHabit(t *testing.T) {
	f := newFixture(t)
	h := f.habit("Read")
	other := f.habit("Run")
	if _, err := f.view.Subscribe(context.Background(), h, today); err != nil {
		t.Fatal(err)
	}

	_, err := f.view.UpdateLog(context.Background(), other, today, "", models.StatusAchieved, "")
	if !stderrors.Is(err, errors.ErrUpdate) || errors.KindOf(err) != errors.KindValidation {
		t.Errorf("UpdateLog() error = %v", err)
	}
	if f.backend.Calls(gatewaytest.OpInsertLogs) != 0 {
		t.Error("write issued for a habit that is not displayed")
	}
}

func TestUnsubscribe(t *testing.T) {
	f := newFixture(t)
	h := f.habit("Read")
	first, err := f.view.Subscribe(context.Background(), h, today)
	if err != nil {
		t.Fatal(err)
	}
	second, err := f.view.Subscribe(context.Background(), h, "2024-03-01")
	if err != nil {
		t.Fatal(err)
	}
	if got := f.view.Snapshot().Window.End; got != "2024-03-01" {
		t.Errorf("window end = %s after anchor change", got)
	}

	f.view.Unsubscribe(first)
	if s := f.view.Snapshot(); s.Status != habitview.Active {
		t.Errorf("stale handle tore down the view: %+v", s)
	}

	f.view.Unsubscribe(second)
	s := f.view.Snapshot()
	if s.Status != habitview.Unsubscribed || s.HabitID != "" || s.Window.Len() != 0 {
		t.Errorf("state after Unsubscribe = %+v", s)
	}
	if f.backend.Subscribers() != 0 {
		t.Errorf("Subscribers() = %d, want 0", f.backend.Subscribers())
	}

	f.view.Unsubscribe(second)
}

func TestSetAnchorClampsToToday(t *testing.T) {
	f := newFixture(t)
	h := f.habit("Read")
	if _, err := f.view.Subscribe(context.Background(), h, "2024-02-01"); err != nil {
		t.Fatal(err)
	}
	if err := f.view.SetAnchor(context.Background(), "2024-05-01"); err != nil {
		t.Fatalf("SetAnchor() error = %v", err)
	}
	s := f.view.Snapshot()
	if s.Anchor != today || s.Window.End != today {
		t.Errorf("anchor = %s, window end = %s, want %s", s.Anchor, s.Window.End, today)
	}
	if f.backend.Subscribers() != 1 {
		t.Errorf("Subscribers() = %d, want 1", f.backend.Subscribers())
	}
}

func TestOnChange(t *testing.T) {
	f := newFixture(t)
	h := f.habit("Read")

	var versions []uint64
	remove := f.view.OnChange(func(s habitview.State) { versions = append(versions, s.Version) })
	if _, err := f.view.Subscribe(context.Background(), h, today); err != nil {
		t.Fatal(err)
	}
	remove()

	if len(versions) == 0 {
		t.Fatal("no change notifications")
	}
	for i := 1; i < len(versions); i++ {
		if versions[i] <= versions[i-1] {
			t.Errorf("versions not increasing: %v", versions)
		}
	}
}
