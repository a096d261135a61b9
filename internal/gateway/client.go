package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/julianstephens/habitlog/internal/constants"
	"github.com/julianstephens/habitlog/internal/logger"
	"github.com/julianstephens/habitlog/internal/models"
	"github.com/julianstephens/habitlog/internal/utils"
)

// Client is the typed data gateway handed to every component. It is built
// once at startup and closed at shutdown.
type Client struct {
	backend  Backend
	identity Identity
	now      func() time.Time
	loc      *time.Location

	mu    sync.Mutex
	owned map[string]struct{}
}

// Option configures a Client
type Option func(*Client)

// WithClock overrides the wall clock used to derive "today"
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// WithLocation sets the timezone used to derive "today"
func WithLocation(loc *time.Location) Option {
	return func(c *Client) {
		if loc != nil {
			c.loc = loc
		}
	}
}

func NewClient(backend Backend, identity Identity, opts ...Option) *Client {
	c := &Client{
		backend:  backend,
		identity: identity,
		now:      time.Now,
		loc:      time.Local,
		owned:    make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Identity() Identity { return c.identity }

// Today returns the current calendar day in the client's timezone
func (c *Client) Today() string {
	return utils.DayOf(c.now(), c.loc)
}

func (c *Client) Location() *time.Location { return c.loc }

func (c *Client) Close() error {
	return c.backend.Close()
}

func (c *Client) userID() (string, error) {
	if c.identity == nil {
		return "", ErrUnauthorized
	}
	if c.identity.IsService() {
		return "", nil
	}
	id := c.identity.UserID()
	if id == "" {
		return "", ErrUnauthorized
	}
	return id, nil
}

// authorize checks that habitID belongs to the caller. Confirmed habits are
// remembered for the lifetime of the client.
func (c *Client) authorize(ctx context.Context, habitID string) error {
	uid, err := c.userID()
	if err != nil {
		return err
	}
	if uid == "" {
		return nil
	}

	c.mu.Lock()
	_, ok := c.owned[habitID]
	c.mu.Unlock()
	if ok {
		return nil
	}

	q := From(constants.TableHabits).Eq("id", habitID).Eq("user_id", uid).WithLimit(1)
	rows, err := c.backend.SelectHabits(ctx, q)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return fmt.Errorf("%w: habit %s", ErrUnauthorized, habitID)
	}

	c.mu.Lock()
	c.owned[habitID] = struct{}{}
	c.mu.Unlock()
	return nil
}

// Logs returns the persisted logs of habitID with from <= date <= to,
// ascending by date.
func (c *Client) Logs(ctx context.Context, habitID, from, to string) ([]models.HabitLogEntry, error) {
	if habitID == "" {
		return nil, fmt.Errorf("%w: habit id is required", ErrInvalidInput)
	}
	if err := c.authorize(ctx, habitID); err != nil {
		return nil, err
	}

	q := From(constants.TableHabitLogs).
		Eq("habit_id", habitID).
		Gte("date", from).
		Lte("date", to).
		Order("date", false)
	rows, err := c.backend.SelectLogs(ctx, q)
	if err != nil {
		return nil, err
	}

	entries := make([]models.HabitLogEntry, 0, len(rows))
	for _, row := range rows {
		entry, err := row.Entry()
		if err != nil {
			return nil, err
		}
		if entry.HabitID != habitID {
			return nil, fmt.Errorf("%w: log %s belongs to habit %s", ErrInvalidRow, entry.ID, entry.HabitID)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// InsertLog creates the log of (habit, date), updating it in place when one
// already exists.
func (c *Client) InsertLog(ctx context.Context, entry models.HabitLogEntry) (models.HabitLogEntry, error) {
	out, err := c.InsertLogs(ctx, []models.HabitLogEntry{entry}, ConflictUpdate)
	if err != nil {
		return models.HabitLogEntry{}, err
	}
	if len(out) != 1 {
		return models.HabitLogEntry{}, fmt.Errorf("%w: insert returned %d rows", ErrInvalidRow, len(out))
	}
	return out[0], nil
}

// InsertLogs writes entries in one batch
func (c *Client) InsertLogs(ctx context.Context, entries []models.HabitLogEntry, mode ConflictMode) ([]models.HabitLogEntry, error) {
	if len(entries) == 0 {
		return nil, nil
	}

	rows := make([]LogInsert, 0, len(entries))
	for _, e := range entries {
		if e.Date == "" {
			return nil, fmt.Errorf("%w: date is required", ErrInvalidInput)
		}
		if err := validateLogWrite(e.HabitID, e.Date, string(e.Status), e.Notes); err != nil {
			return nil, err
		}
		if err := c.authorize(ctx, e.HabitID); err != nil {
			return nil, err
		}
		rows = append(rows, LogInsert{
			HabitID: e.HabitID,
			Date:    e.Date,
			Status:  string(e.Status),
			Notes:   e.Notes,
		})
	}

	written, err := c.backend.InsertLogs(ctx, rows, mode)
	if err != nil {
		return nil, err
	}
	out := make([]models.HabitLogEntry, 0, len(written))
	for _, row := range written {
		entry, err := row.Entry()
		if err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	logger.Debug("inserted habit logs", "requested", len(rows), "written", len(out))
	return out, nil
}

// UpdateLog overwrites status and notes of the persisted log id of habitID
func (c *Client) UpdateLog(ctx context.Context, habitID, id string, status models.LogStatus, notes string) (models.HabitLogEntry, error) {
	if id == "" {
		return models.HabitLogEntry{}, fmt.Errorf("%w: log id is required", ErrInvalidInput)
	}
	if err := validateLogWrite(habitID, "", string(status), notes); err != nil {
		return models.HabitLogEntry{}, err
	}
	if err := c.authorize(ctx, habitID); err != nil {
		return models.HabitLogEntry{}, err
	}

	row, err := c.backend.UpdateLog(ctx, id, LogPatch{HabitID: habitID, Status: string(status), Notes: notes})
	if err != nil {
		return models.HabitLogEntry{}, err
	}
	return row.Entry()
}

// HabitFilter narrows Habits
type HabitFilter struct {
	IncludeArchived bool
	Frequency       models.FrequencyType
}

// Habits lists the caller's habits, newest first. A service identity sees
// every user's habits.
func (c *Client) Habits(ctx context.Context, filter HabitFilter) ([]models.Habit, error) {
	uid, err := c.userID()
	if err != nil {
		return nil, err
	}

	q := From(constants.TableHabits)
	if uid != "" {
		q = q.Eq("user_id", uid)
	}
	if !filter.IncludeArchived {
		q = q.Eq("is_archived", false)
	}
	if filter.Frequency != "" {
		q = q.Eq("frequency_type", string(filter.Frequency))
	}
	q = q.Order("created_at", true)

	rows, err := c.backend.SelectHabits(ctx, q)
	if err != nil {
		return nil, err
	}
	habits := make([]models.Habit, 0, len(rows))
	for _, row := range rows {
		h, err := row.Habit()
		if err != nil {
			return nil, err
		}
		habits = append(habits, h)
	}
	return habits, nil
}

// Habit returns one of the caller's habits
func (c *Client) Habit(ctx context.Context, id string) (models.Habit, error) {
	uid, err := c.userID()
	if err != nil {
		return models.Habit{}, err
	}

	q := From(constants.TableHabits).Eq("id", id).WithLimit(1)
	if uid != "" {
		q = q.Eq("user_id", uid)
	}
	rows, err := c.backend.SelectHabits(ctx, q)
	if err != nil {
		return models.Habit{}, err
	}
	if len(rows) == 0 {
		return models.Habit{}, fmt.Errorf("%w: habit %s", ErrNotFound, id)
	}
	return rows[0].Habit()
}

// CreateHabit stores h for the caller. A service identity must set h.UserID.
func (c *Client) CreateHabit(ctx context.Context, h models.Habit) (models.Habit, error) {
	uid, err := c.userID()
	if err != nil {
		return models.Habit{}, err
	}
	if uid == "" {
		uid = h.UserID
	}
	if uid == "" {
		return models.Habit{}, fmt.Errorf("%w: habit owner is required", ErrInvalidInput)
	}
	if h.StartDate == "" {
		h.StartDate = c.Today()
	}

	in, err := NewHabitInsert(uid, h)
	if err != nil {
		return models.Habit{}, err
	}
	row, err := c.backend.InsertHabit(ctx, in)
	if err != nil {
		return models.Habit{}, err
	}
	created, err := row.Habit()
	if err != nil {
		return models.Habit{}, err
	}

	c.mu.Lock()
	c.owned[created.ID] = struct{}{}
	c.mu.Unlock()
	return created, nil
}

// SetArchived archives or restores a habit. Habits are never hard deleted.
func (c *Client) SetArchived(ctx context.Context, id string, archived bool) (models.Habit, error) {
	if err := c.authorize(ctx, id); err != nil {
		return models.Habit{}, err
	}
	row, err := c.backend.UpdateHabit(ctx, id, HabitPatch{IsArchived: &archived})
	if err != nil {
		return models.Habit{}, err
	}
	return row.Habit()
}

// Templates lists the predefined habits ordered by name
func (c *Client) Templates(ctx context.Context) ([]models.HabitTemplate, error) {
	if _, err := c.userID(); err != nil {
		return nil, err
	}
	rows, err := c.backend.SelectTemplates(ctx, From(constants.TableTemplates).Order("name", false))
	if err != nil {
		return nil, err
	}
	templates := make([]models.HabitTemplate, 0, len(rows))
	for _, row := range rows {
		t, err := row.Template()
		if err != nil {
			return nil, err
		}
		templates = append(templates, t)
	}
	return templates, nil
}

// Statistics lists the caller's habit statistics, best achievement rate first
func (c *Client) Statistics(ctx context.Context, includeArchived bool) ([]models.HabitStatistics, error) {
	uid, err := c.userID()
	if err != nil {
		return nil, err
	}

	q := From(constants.TableStatistics)
	if uid != "" {
		q = q.Eq("user_id", uid)
	}
	if !includeArchived {
		q = q.Eq("is_archived", false)
	}
	rows, err := c.backend.SelectStatistics(ctx, q.Order("achievement_rate", true))
	if err != nil {
		return nil, err
	}
	stats := make([]models.HabitStatistics, 0, len(rows))
	for _, row := range rows {
		s, err := row.Statistics()
		if err != nil {
			return nil, err
		}
		stats = append(stats, s)
	}
	return stats, nil
}

// SubscribeToChanges opens a change stream for the logs of habitID
func (c *Client) SubscribeToChanges(ctx context.Context, habitID string) (Subscription, error) {
	if habitID == "" {
		return nil, fmt.Errorf("%w: habit id is required", ErrInvalidInput)
	}
	if err := c.authorize(ctx, habitID); err != nil {
		return nil, err
	}
	return c.backend.Listen(ctx, constants.TableHabitLogs, habitID)
}

// InvokeProcedure runs a server-side procedure on behalf of the caller
func (c *Client) InvokeProcedure(ctx context.Context, name string) error {
	uid, err := c.userID()
	if err != nil {
		return err
	}
	return c.backend.Call(ctx, name, CallArgs{UserID: uid, Today: c.Today()})
}
