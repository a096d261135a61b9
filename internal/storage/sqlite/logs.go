package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/julianstephens/habitlog/internal/constants"
	"github.com/julianstephens/habitlog/internal/gateway"
)

const logColumns = "id, habit_id, date, status, notes, created_at, updated_at"

type scanner interface {
	Scan(dest ...any) error
}

func scanLog(row scanner) (gateway.LogRow, error) {
	var r gateway.LogRow
	var notes sql.NullString
	var createdAt, updatedAt string

	if err := row.Scan(&r.ID, &r.HabitID, &r.Date, &r.Status, &notes, &createdAt, &updatedAt); err != nil {
		return gateway.LogRow{}, err
	}
	if notes.Valid {
		r.Notes = &notes.String
	}

	var err error
	if r.CreatedAt, err = parseTimestamp(createdAt); err != nil {
		return gateway.LogRow{}, err
	}
	if r.UpdatedAt, err = parseTimestamp(updatedAt); err != nil {
		return gateway.LogRow{}, err
	}
	return r, nil
}

func (s *Store) SelectLogs(ctx context.Context, q gateway.Query) ([]gateway.LogRow, error) {
	if q.Table != constants.TableHabitLogs {
		return nil, fmt.Errorf("%w: SelectLogs on %s", gateway.ErrInvalidQuery, q.Table)
	}
	query, args, err := q.SQL(gateway.QuestionPlaceholder)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []gateway.LogRow
	for rows.Next() {
		r, err := scanLog(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) InsertLogs(ctx context.Context, in []gateway.LogInsert, mode gateway.ConflictMode) ([]gateway.LogRow, error) {
	if len(in) == 0 {
		return nil, nil
	}

	conflict := "DO UPDATE SET status = excluded.status, notes = excluded.notes, updated_at = excluded.updated_at"
	if mode == gateway.ConflictIgnore {
		conflict = "DO NOTHING"
	}
	stmt := `INSERT INTO habit_logs (` + logColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (habit_id, date) ` + conflict + `
		RETURNING ` + logColumns

	s.touch()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var written []gateway.LogRow
	var events []gateway.ChangeEvent
	for _, row := range in {
		id := uuid.New().String()
		now := s.timestamp()
		r, err := scanLog(tx.QueryRowContext(ctx, stmt, id, row.HabitID, row.Date, row.Status, row.Notes, now, now))
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to insert log for %s on %s: %w", row.HabitID, row.Date, err)
		}

		op := gateway.ChangeInsert
		if r.ID != id {
			op = gateway.ChangeUpdate
		}
		written = append(written, r)
		events = append(events, logEvent(op, r))
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	s.publish(events...)
	return written, nil
}

func (s *Store) UpdateLog(ctx context.Context, id string, patch gateway.LogPatch) (gateway.LogRow, error) {
	stmt := `UPDATE habit_logs SET status = ?, notes = ?, updated_at = ? WHERE id = ?`
	args := []any{patch.Status, patch.Notes, s.timestamp(), id}
	if patch.HabitID != "" {
		stmt += ` AND habit_id = ?`
		args = append(args, patch.HabitID)
	}
	stmt += ` RETURNING ` + logColumns

	s.touch()
	r, err := scanLog(s.db.QueryRowContext(ctx, stmt, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return gateway.LogRow{}, fmt.Errorf("%w: habit log %s", gateway.ErrNotFound, id)
	}
	if err != nil {
		return gateway.LogRow{}, err
	}

	s.publish(logEvent(gateway.ChangeUpdate, r))
	return r, nil
}

func logEvent(op gateway.ChangeOp, r gateway.LogRow) gateway.ChangeEvent {
	return gateway.ChangeEvent{
		Table:   constants.TableHabitLogs,
		Op:      op,
		HabitID: r.HabitID,
		LogID:   r.ID,
		Date:    r.Date,
	}
}
