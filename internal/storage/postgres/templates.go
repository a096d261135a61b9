package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/julianstephens/habitlog/internal/constants"
	"github.com/julianstephens/habitlog/internal/gateway"
)

func (s *Store) SelectTemplates(ctx context.Context, q gateway.Query) ([]gateway.TemplateRow, error) {
	if q.Table != constants.TableTemplates {
		return nil, fmt.Errorf("%w: SelectTemplates on %s", gateway.ErrInvalidQuery, q.Table)
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

	var out []gateway.TemplateRow
	for rows.Next() {
		var t gateway.TemplateRow
		var icon sql.NullString
		if err := rows.Scan(&t.ID, &t.Name, &icon, &t.DefaultFrequencyType); err != nil {
			return nil, err
		}
		t.Icon = nullString(icon)
		out = append(out, t)
	}
	return out, rows.Err()
}
