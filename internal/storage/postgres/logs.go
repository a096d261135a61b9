package postgres

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
	if err := row.Scan(&r.ID, &r.HabitID, &r.Date, &r.Status, &notes, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return gateway.LogRow{}, err
	}
	if notes.Valid {
		r.Notes = &notes.String
	}
	return r, nil
}

func (s *Store) SelectLogs(ctx context.Context, q gateway.Query) ([]gateway.LogRow, error) {
	if q.Table != constants.TableHabitLogs {
		return nil, fmt.Errorf("%w: SelectLogs on %s", gateway.ErrInvalidQuery, q.Table)
	}
	query, args, err := q.SQL(gateway.DollarPlaceholder)
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

// InsertLogs writes every row in one transaction. The notify trigger
// publishes the resulting change events.
func (s *Store) InsertLogs(ctx context.Context, in []gateway.LogInsert, mode gateway.ConflictMode) ([]gateway.LogRow, error) {
	if len(in) == 0 {
		return nil, nil
	}

	conflict := "DO UPDATE SET status = EXCLUDED.status, notes = EXCLUDED.notes, updated_at = now()"
	if mode == gateway.ConflictIgnore {
		conflict = "DO NOTHING"
	}
	stmt := `INSERT INTO habit_logs (id, habit_id, date, status, notes)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (habit_id, date) ` + conflict + `
		RETURNING ` + logColumns

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var written []gateway.LogRow
	for _, row := range in {
		r, err := scanLog(tx.QueryRowContext(ctx, stmt, uuid.New().String(), row.HabitID, row.Date, row.Status, row.Notes))
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to insert log for %s on %s: %w", row.HabitID, row.Date, err)
		}
		written = append(written, r)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return written, nil
}

func (s *Store) UpdateLog(ctx context.Context, id string, patch gateway.LogPatch) (gateway.LogRow, error) {
	stmt := `UPDATE habit_logs SET status = $1, notes = $2, updated_at = now() WHERE id = $3`
	args := []any{patch.Status, patch.Notes, id}
	if patch.HabitID != "" {
		stmt += ` AND habit_id = $4`
		args = append(args, patch.HabitID)
	}
	stmt += ` RETURNING ` + logColumns

	r, err := scanLog(s.db.QueryRowContext(ctx, stmt, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return gateway.LogRow{}, fmt.Errorf("%w: habit log %s", gateway.ErrNotFound, id)
	}
	return r, err
}
