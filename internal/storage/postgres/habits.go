package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	pq "github.com/lib/pq"

	"github.com/julianstephens/habitlog/internal/constants"
	"github.com/julianstephens/habitlog/internal/gateway"
)

const habitColumns = "id, user_id, name, icon, color, frequency_type, frequency_value, " +
	"frequency_days, frequency_month_day, start_date, template_id, is_archived, created_at, updated_at"

func scanHabit(row scanner) (gateway.HabitRow, error) {
	var h gateway.HabitRow
	var icon, color, templateID sql.NullString
	var monthDay sql.NullInt64

	err := row.Scan(&h.ID, &h.UserID, &h.Name, &icon, &color, &h.FrequencyType, &h.FrequencyValue,
		pq.Array(&h.FrequencyDays), &monthDay, &h.StartDate, &templateID, &h.IsArchived,
		&h.CreatedAt, &h.UpdatedAt)
	if err != nil {
		return gateway.HabitRow{}, err
	}

	h.Icon = nullString(icon)
	h.Color = nullString(color)
	h.TemplateID = nullString(templateID)
	if monthDay.Valid {
		h.FrequencyMonthDay = &monthDay.Int64
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
	query, args, err := q.SQL(gateway.DollarPlaceholder)
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
		days = pq.Array(in.FrequencyDays)
	}

	row := s.db.QueryRowContext(ctx, `
		INSERT INTO habits (id, user_id, name, icon, color, frequency_type, frequency_value,
			frequency_days, frequency_month_day, start_date, template_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING `+habitColumns,
		uuid.New().String(), in.UserID, in.Name, in.Icon, in.Color, in.FrequencyType, in.FrequencyValue,
		days, in.FrequencyMonthDay, in.StartDate, in.TemplateID)

	h, err := scanHabit(row)
	if err != nil {
		return gateway.HabitRow{}, fmt.Errorf("failed to insert habit: %w", err)
	}
	return h, nil
}

func (s *Store) UpdateHabit(ctx context.Context, id string, patch gateway.HabitPatch) (gateway.HabitRow, error) {
	sets := []string{"updated_at = now()"}
	var args []any
	if patch.Name != nil {
		args = append(args, *patch.Name)
		sets = append(sets, fmt.Sprintf("name = $%d", len(args)))
	}
	if patch.IsArchived != nil {
		args = append(args, *patch.IsArchived)
		sets = append(sets, fmt.Sprintf("is_archived = $%d", len(args)))
	}
	args = append(args, id)

	row := s.db.QueryRowContext(ctx, fmt.Sprintf(`UPDATE habits SET %s WHERE id = $%d RETURNING %s`,
		strings.Join(sets, ", "), len(args), habitColumns), args...)
	h, err := scanHabit(row)
	if errors.Is(err, sql.ErrNoRows) {
		return gateway.HabitRow{}, fmt.Errorf("%w: habit %s", gateway.ErrNotFound, id)
	}
	return h, err
}
