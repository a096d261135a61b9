// Package gatewaytest provides an in-memory gateway.Backend for tests, with
// failure injection and hooks that can hold a call in flight.
package gatewaytest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/julianstephens/habitlog/internal/constants"
	"github.com/julianstephens/habitlog/internal/gateway"
	"github.com/julianstephens/habitlog/internal/models"
)

// Op names a Backend method
type Op string

const (
	OpSelectLogs       Op = "select_logs"
	OpSelectHabits     Op = "select_habits"
	OpSelectStatistics Op = "select_statistics"
	OpSelectTemplates  Op = "select_templates"
	OpInsertLogs       Op = "insert_logs"
	OpUpdateLog        Op = "update_log"
	OpInsertHabit      Op = "insert_habit"
	OpUpdateHabit      Op = "update_habit"
	OpListen           Op = "listen"
	OpCall             Op = "call"
)

// Call describes an intercepted Backend call
type Call struct {
	Op        Op
	HabitID   string
	Procedure string
}

// Hook runs on every call of its Op. Returning an error fails the call.
// Reads run the hook after the rows were collected, so a blocked read
// returns the data as of its start. Writes run it before touching state.
type Hook func(ctx context.Context, call Call) error

type statistics struct {
	achieved     int64
	total        int64
	rate         float64
	calculatedAt time.Time
}

// Backend is an in-memory gateway.Backend
type Backend struct {
	// Now is the clock stamped into rows
	Now func() time.Time

	mu        sync.Mutex
	hub       *gateway.Hub
	habits    map[string]gateway.HabitRow
	logs      map[string]gateway.LogRow
	templates []gateway.TemplateRow
	stats     map[string]statistics
	requests  map[string]string
	hooks     map[Op]Hook
	calls     map[Op]int
	closed    bool
}

var _ gateway.Backend = (*Backend)(nil)

func New() *Backend {
	return &Backend{
		Now:      time.Now,
		hub:      gateway.NewHub(),
		habits:   make(map[string]gateway.HabitRow),
		logs:     make(map[string]gateway.LogRow),
		stats:    make(map[string]statistics),
		requests: make(map[string]string),
		hooks:    make(map[Op]Hook),
		calls:    make(map[Op]int),
		templates: []gateway.TemplateRow{
			{ID: "tpl-exercise", Name: "Exercise", DefaultFrequencyType: "daily"},
			{ID: "tpl-read", Name: "Read", DefaultFrequencyType: "daily"},
			{ID: "tpl-review", Name: "Weekly review", DefaultFrequencyType: "weekly"},
		},
	}
}

// SetHook installs fn for op, replacing any previous hook. A nil fn removes it.
func (b *Backend) SetHook(op Op, fn Hook) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if fn == nil {
		delete(b.hooks, op)
		return
	}
	b.hooks[op] = fn
}

// Fail makes every call of op return err until the hook is cleared
func (b *Backend) Fail(op Op, err error) {
	b.SetHook(op, func(context.Context, Call) error { return err })
}

// Calls returns how many times op was invoked
func (b *Backend) Calls(op Op) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[op]
}

// Emit publishes a change event as if another client had written
func (b *Backend) Emit(ev gateway.ChangeEvent) {
	b.hub.Publish(ev)
}

// Subscribers returns the number of open change streams
func (b *Backend) Subscribers() int {
	return b.hub.Len()
}

// AddHabit stores a habit row directly and returns its id
func (b *Backend) AddHabit(userID, name, startDate string) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.Now()
	row := gateway.HabitRow{
		ID:             uuid.New().String(),
		UserID:         userID,
		Name:           name,
		FrequencyType:  string(models.FrequencyDaily),
		FrequencyValue: 1,
		StartDate:      startDate,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	b.habits[row.ID] = row
	return row.ID
}

// PutLog stores a log row directly, bypassing hooks and events. The id is
// generated when empty.
func (b *Backend) PutLog(row gateway.LogRow) gateway.LogRow {
	b.mu.Lock()
	defer b.mu.Unlock()

	if row.ID == "" {
		row.ID = uuid.New().String()
	}
	b.logs[row.ID] = row
	return row
}

// Logs returns the stored logs of habitID ascending by date
func (b *Backend) Logs(habitID string) []gateway.LogRow {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []gateway.LogRow
	for _, row := range b.logs {
		if row.HabitID == habitID {
			out = append(out, row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out
}

func (b *Backend) enter(op Op) (Hook, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, fmt.Errorf("gatewaytest: backend closed")
	}
	b.calls[op]++
	return b.hooks[op], nil
}

func runHook(ctx context.Context, hook Hook, call Call) error {
	if hook == nil {
		return nil
	}
	return hook(ctx, call)
}

func habitOf(q gateway.Query) string {
	for _, f := range q.Filters {
		if f.Column == "habit_id" && f.Op == gateway.OpEq {
			if s, ok := f.Value.(string); ok {
				return s
			}
		}
	}
	return ""
}

func (b *Backend) SelectLogs(ctx context.Context, q gateway.Query) ([]gateway.LogRow, error) {
	hook, err := b.enter(OpSelectLogs)
	if err != nil {
		return nil, err
	}
	if err := q.Validate(); err != nil {
		return nil, err
	}

	b.mu.Lock()
	var out []gateway.LogRow
	for _, row := range b.logs {
		if matches(q, logColumns(row)) {
			out = append(out, row)
		}
	}
	b.mu.Unlock()

	sortRows(out, q, logColumns)
	out = limit(out, q.Limit)

	if err := runHook(ctx, hook, Call{Op: OpSelectLogs, HabitID: habitOf(q)}); err != nil {
		return nil, err
	}
	return out, nil
}

func (b *Backend) SelectHabits(ctx context.Context, q gateway.Query) ([]gateway.HabitRow, error) {
	hook, err := b.enter(OpSelectHabits)
	if err != nil {
		return nil, err
	}
	if err := q.Validate(); err != nil {
		return nil, err
	}

	b.mu.Lock()
	var out []gateway.HabitRow
	for _, row := range b.habits {
		if matches(q, habitColumns(row)) {
			out = append(out, row)
		}
	}
	b.mu.Unlock()

	sortRows(out, q, habitColumns)
	out = limit(out, q.Limit)

	if err := runHook(ctx, hook, Call{Op: OpSelectHabits}); err != nil {
		return nil, err
	}
	return out, nil
}

func (b *Backend) SelectStatistics(ctx context.Context, q gateway.Query) ([]gateway.StatisticsRow, error) {
	hook, err := b.enter(OpSelectStatistics)
	if err != nil {
		return nil, err
	}
	if err := q.Validate(); err != nil {
		return nil, err
	}

	b.mu.Lock()
	var out []gateway.StatisticsRow
	for _, h := range b.habits {
		row := gateway.StatisticsRow{
			ID:         h.ID,
			UserID:     h.UserID,
			Name:       h.Name,
			StartDate:  h.StartDate,
			IsArchived: h.IsArchived,
		}
		if s, ok := b.stats[h.ID]; ok {
			achieved, total, rate, at := s.achieved, s.total, s.rate, s.calculatedAt
			row.AchievedDays = &achieved
			row.TotalDays = &total
			row.AchievementRate = &rate
			row.CalculatedAt = &at
		}
		if matches(q, statisticsColumns(row)) {
			out = append(out, row)
		}
	}
	b.mu.Unlock()

	sortRows(out, q, statisticsColumns)
	out = limit(out, q.Limit)

	if err := runHook(ctx, hook, Call{Op: OpSelectStatistics}); err != nil {
		return nil, err
	}
	return out, nil
}

func (b *Backend) SelectTemplates(ctx context.Context, q gateway.Query) ([]gateway.TemplateRow, error) {
	hook, err := b.enter(OpSelectTemplates)
	if err != nil {
		return nil, err
	}
	if err := q.Validate(); err != nil {
		return nil, err
	}

	b.mu.Lock()
	var out []gateway.TemplateRow
	for _, row := range b.templates {
		if matches(q, templateColumns(row)) {
			out = append(out, row)
		}
	}
	b.mu.Unlock()

	sortRows(out, q, templateColumns)
	out = limit(out, q.Limit)

	if err := runHook(ctx, hook, Call{Op: OpSelectTemplates}); err != nil {
		return nil, err
	}
	return out, nil
}

func (b *Backend) InsertLogs(ctx context.Context, rows []gateway.LogInsert, mode gateway.ConflictMode) ([]gateway.LogRow, error) {
	hook, err := b.enter(OpInsertLogs)
	if err != nil {
		return nil, err
	}
	habitID := ""
	if len(rows) > 0 {
		habitID = rows[0].HabitID
	}
	if err := runHook(ctx, hook, Call{Op: OpInsertLogs, HabitID: habitID}); err != nil {
		return nil, err
	}

	b.mu.Lock()
	var written []gateway.LogRow
	var events []gateway.ChangeEvent
	now := b.Now()
	for _, in := range rows {
		if _, ok := b.habits[in.HabitID]; !ok {
			b.mu.Unlock()
			return nil, fmt.Errorf("gatewaytest: habit %s does not exist", in.HabitID)
		}
		notes := in.Notes
		if existing, ok := b.findLog(in.HabitID, in.Date); ok {
			if mode == gateway.ConflictIgnore {
				continue
			}
			existing.Status = in.Status
			existing.Notes = &notes
			existing.UpdatedAt = now
			b.logs[existing.ID] = existing
			written = append(written, existing)
			events = append(events, changeOf(gateway.ChangeUpdate, existing))
			continue
		}
		row := gateway.LogRow{
			ID:        uuid.New().String(),
			HabitID:   in.HabitID,
			Date:      in.Date,
			Status:    in.Status,
			Notes:     &notes,
			CreatedAt: now,
			UpdatedAt: now,
		}
		b.logs[row.ID] = row
		written = append(written, row)
		events = append(events, changeOf(gateway.ChangeInsert, row))
	}
	b.mu.Unlock()

	for _, ev := range events {
		b.hub.Publish(ev)
	}
	return written, nil
}

func (b *Backend) UpdateLog(ctx context.Context, id string, patch gateway.LogPatch) (gateway.LogRow, error) {
	hook, err := b.enter(OpUpdateLog)
	if err != nil {
		return gateway.LogRow{}, err
	}
	if err := runHook(ctx, hook, Call{Op: OpUpdateLog, HabitID: patch.HabitID}); err != nil {
		return gateway.LogRow{}, err
	}

	b.mu.Lock()
	row, ok := b.logs[id]
	if !ok || (patch.HabitID != "" && row.HabitID != patch.HabitID) {
		b.mu.Unlock()
		return gateway.LogRow{}, fmt.Errorf("%w: habit log %s", gateway.ErrNotFound, id)
	}
	notes := patch.Notes
	row.Status = patch.Status
	row.Notes = &notes
	row.UpdatedAt = b.Now()
	b.logs[id] = row
	b.mu.Unlock()

	b.hub.Publish(changeOf(gateway.ChangeUpdate, row))
	return row, nil
}

func (b *Backend) InsertHabit(ctx context.Context, in gateway.HabitInsert) (gateway.HabitRow, error) {
	hook, err := b.enter(OpInsertHabit)
	if err != nil {
		return gateway.HabitRow{}, err
	}
	if err := runHook(ctx, hook, Call{Op: OpInsertHabit}); err != nil {
		return gateway.HabitRow{}, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.Now()
	row := gateway.HabitRow{
		ID:                uuid.New().String(),
		UserID:            in.UserID,
		Name:              in.Name,
		Icon:              in.Icon,
		Color:             in.Color,
		FrequencyType:     in.FrequencyType,
		FrequencyValue:    in.FrequencyValue,
		FrequencyDays:     in.FrequencyDays,
		FrequencyMonthDay: in.FrequencyMonthDay,
		StartDate:         in.StartDate,
		TemplateID:        in.TemplateID,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	b.habits[row.ID] = row
	return row, nil
}

func (b *Backend) UpdateHabit(ctx context.Context, id string, patch gateway.HabitPatch) (gateway.HabitRow, error) {
	hook, err := b.enter(OpUpdateHabit)
	if err != nil {
		return gateway.HabitRow{}, err
	}
	if err := runHook(ctx, hook, Call{Op: OpUpdateHabit, HabitID: id}); err != nil {
		return gateway.HabitRow{}, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	row, ok := b.habits[id]
	if !ok {
		return gateway.HabitRow{}, fmt.Errorf("%w: habit %s", gateway.ErrNotFound, id)
	}
	if patch.Name != nil {
		row.Name = *patch.Name
	}
	if patch.IsArchived != nil {
		row.IsArchived = *patch.IsArchived
	}
	row.UpdatedAt = b.Now()
	b.habits[id] = row
	return row, nil
}

func (b *Backend) Listen(ctx context.Context, table, habitID string) (gateway.Subscription, error) {
	hook, err := b.enter(OpListen)
	if err != nil {
		return nil, err
	}
	if err := runHook(ctx, hook, Call{Op: OpListen, HabitID: habitID}); err != nil {
		return nil, err
	}
	return b.hub.Subscribe(table, habitID)
}

// Call implements the two statistics procedures with the same rules as the
// storage drivers: manual recomputes are limited to one per user per day.
func (b *Backend) Call(ctx context.Context, procedure string, args gateway.CallArgs) error {
	hook, err := b.enter(OpCall)
	if err != nil {
		return err
	}
	if err := runHook(ctx, hook, Call{Op: OpCall, Procedure: procedure}); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	switch procedure {
	case constants.ProcRecomputeStatistics:
		if args.UserID == "" {
			return fmt.Errorf("%w: %s requires a user", gateway.ErrInvalidInput, procedure)
		}
		if b.requests[args.UserID] == args.Today {
			return gateway.ErrRateLimited
		}
		b.requests[args.UserID] = args.Today
	case constants.ProcRecomputeAllStatistics:
	default:
		return fmt.Errorf("%w: %s", gateway.ErrUnknownProcedure, procedure)
	}

	for _, h := range b.habits {
		if args.UserID != "" && h.UserID != args.UserID {
			continue
		}
		var achieved int
		for _, l := range b.logs {
			if l.HabitID == h.ID && l.Status == string(models.StatusAchieved) &&
				l.Date >= h.StartDate && l.Date <= args.Today {
				achieved++
			}
		}
		total, rate, err := models.Aggregate(h.StartDate, args.Today, achieved)
		if err != nil {
			return err
		}
		b.stats[h.ID] = statistics{
			achieved:     int64(achieved),
			total:        int64(total),
			rate:         rate,
			calculatedAt: b.Now(),
		}
	}
	return nil
}

func (b *Backend) Close() error {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	b.hub.Close()
	return nil
}

func (b *Backend) findLog(habitID, date string) (gateway.LogRow, bool) {
	for _, row := range b.logs {
		if row.HabitID == habitID && row.Date == date {
			return row, true
		}
	}
	return gateway.LogRow{}, false
}

func changeOf(op gateway.ChangeOp, row gateway.LogRow) gateway.ChangeEvent {
	return gateway.ChangeEvent{
		Table:   constants.TableHabitLogs,
		Op:      op,
		HabitID: row.HabitID,
		LogID:   row.ID,
		Date:    row.Date,
	}
}
