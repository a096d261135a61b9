// Package gateway is the typed boundary between the habit log core and the
// relational backend. Backends speak in rows; Client validates those rows and
// hands out models.
package gateway

import "context"

// ConflictMode decides what an insert does when a log for the same
// (habit, date) already exists.
type ConflictMode int

const (
	// ConflictUpdate overwrites status and notes of the existing row.
	ConflictUpdate ConflictMode = iota
	// ConflictIgnore keeps the existing row and skips the insert.
	ConflictIgnore
)

// CallArgs are passed to server-side procedures
type CallArgs struct {
	// UserID scopes the procedure. Empty means every user.
	UserID string
	// Today is the caller's calendar day (YYYY-MM-DD).
	Today string
}

// Backend is implemented by the storage drivers
type Backend interface {
	SelectLogs(ctx context.Context, q Query) ([]LogRow, error)
	SelectHabits(ctx context.Context, q Query) ([]HabitRow, error)
	SelectStatistics(ctx context.Context, q Query) ([]StatisticsRow, error)
	SelectTemplates(ctx context.Context, q Query) ([]TemplateRow, error)

	// InsertLogs returns the rows that were written. Rows skipped under
	// ConflictIgnore are not returned.
	InsertLogs(ctx context.Context, rows []LogInsert, mode ConflictMode) ([]LogRow, error)
	UpdateLog(ctx context.Context, id string, patch LogPatch) (LogRow, error)

	InsertHabit(ctx context.Context, row HabitInsert) (HabitRow, error)
	UpdateHabit(ctx context.Context, id string, patch HabitPatch) (HabitRow, error)

	// Listen opens a change stream for table rows belonging to habitID
	Listen(ctx context.Context, table, habitID string) (Subscription, error)

	// Call invokes a named server-side procedure
	Call(ctx context.Context, procedure string, args CallArgs) error

	Close() error
}

// Identity is the caller on whose behalf the client reads and writes
type Identity interface {
	UserID() string
	// IsService reports an unrestricted identity that spans all users
	IsService() bool
}
