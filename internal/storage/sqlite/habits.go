package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/julianstephens/habitlog/internal/constants"
	"github.com/julianstephens/habitlog/internal/gateway"
)

const habitColumns = "id, user_id, name, icon, color, frequency_type, frequency_value, " +
	"frequency_days, frequency_month_day, start_date, template_id, is_archived, created_at, updated_at"

func scanHabit(row scanner) (gateway.HabitRow, error) {
	var h gateway.HabitRow
	var icon, color, days, templateID sql.NullString
	var monthDay sql.NullInt64
	var createdAt, updatedAt string

	err := row.Scan(&h.ID, &h.UserID, &h.Name, &icon, &color, &h.FrequencyType, &h.FrequencyValue,
		&days, &monthDay, &h.StartDate, &templateID, &h.IsArchived, &createdAt, &updatedAt)
	if err != nil {
		return gateway.HabitRow{}, err
	}

	h.Icon = nullString(icon)
	h.Color = nullString(color)
	h.TemplateID = nullString(templateID)
	if monthDay.Valid {
		h.FrequencyMonthDay = &monthDay.Int64
	}
	if days.Valid && days.String != "" {
		if err := json.Unmarshal([]byte(days.String), &h.FrequencyDays); err != nil {
			return gateway.HabitRow{}, fmt.Errorf("failed to parse frequency_days of habit %s: %w", h.ID, err)
		}
	}

	if h.CreatedAt, err = parseTimestamp(createdAt); err != nil {
		return gateway.HabitRow{}, err
	}
	if h.UpdatedAt, err = parseTimestamp(updatedAt); err != nil {
		return gateway.HabitRow{}, err
	}
	return h, nil
}

func nullString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	return &v.String
}

func (s *Store) SelectHabits(ctx context.Context, q gateway.Query) ([]gateway.HabitRow, error) {
	if q.Table != constants.TableHabits {
		return nil, fmt.Errorf("%w: SelectHabits on %s", gateway.ErrInvalidQuery, q.Table)
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

	var out []gateway.HabitRow
	for rows.Next() {
		h, err := scanHabit(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func (s *Store) InsertHabit(ctx context.Context, in gateway.HabitInsert) (gateway.HabitRow, error) {
	var days any
	if len(in.FrequencyDays) > 0 {
		encoded, err := json.Marshal(in.FrequencyDays)
		if err != nil {
			return gateway.HabitRow{}, err
		}
		days = string(encoded)
	}
	var monthDay any
	if in.FrequencyMonthDay != nil {
		monthDay = *in.FrequencyMonthDay
	}

	s.touch()
	now := s.timestamp()
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO habits (`+habitColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?)
		RETURNING `+habitColumns,
		uuid.New().String(), in.UserID, in.Name, in.Icon, in.Color, in.FrequencyType, in.FrequencyValue,
		days, monthDay, in.StartDate, in.TemplateID, now, now)

	h, err := scanHabit(row)
	if err != nil {
		return gateway.HabitRow{}, fmt.Errorf("failed to insert habit: %w", err)
	}
	return h, nil
}

func (s *Store) UpdateHabit(ctx context.Context, id string, patch gateway.HabitPatch) (gateway.HabitRow, error) {
	sets := []string{"updated_at = ?"}
	args := []any{s.timestamp()}
	if patch.Name != nil {
		sets = append(sets, "name = ?")
		args = append(args, *patch.Name)
	}
	if patch.IsArchived != nil {
		sets = append(sets, "is_archived = ?")
		args = append(args, *patch.IsArchived)
	}
	args = append(args, id)

	s.touch()
	row := s.db.QueryRowContext(ctx,
		`UPDATE habits SET `+strings.Join(sets, ", ")+` WHERE id = ? RETURNING `+habitColumns, args...)
	h, err := scanHabit(row)
	if errors.Is(err, sql.ErrNoRows) {
		return gateway.HabitRow{}, fmt.Errorf("%w: habit %s", gateway.ErrNotFound, id)
	}
	return h, err
}
