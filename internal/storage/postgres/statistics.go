package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/julianstephens/habitlog/internal/constants"
	"github.com/julianstephens/habitlog/internal/gateway"
	"github.com/julianstephens/habitlog/internal/logger"
	"github.com/julianstephens/habitlog/internal/utils"
)

func (s *Store) SelectStatistics(ctx context.Context, q gateway.Query) ([]gateway.StatisticsRow, error) {
	if q.Table != constants.TableStatistics {
		return nil, fmt.Errorf("%w: SelectStatistics on %s", gateway.ErrInvalidQuery, q.Table)
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

	var out []gateway.StatisticsRow
	for rows.Next() {
		var r gateway.StatisticsRow
		var achieved, total sql.NullInt64
		var rate sql.NullFloat64
		var calculatedAt sql.NullTime

		if err := rows.Scan(&r.ID, &r.UserID, &r.Name, &r.StartDate, &r.IsArchived,
			&achieved, &total, &rate, &calculatedAt); err != nil {
			return nil, err
		}
		if achieved.Valid {
			r.AchievedDays = &achieved.Int64
		}
		if total.Valid {
			r.TotalDays = &total.Int64
		}
		if rate.Valid {
			r.AchievementRate = &rate.Float64
		}
		if calculatedAt.Valid {
			r.CalculatedAt = &calculatedAt.Time
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Call invokes the statistics functions installed by the migrations
func (s *Store) Call(ctx context.Context, procedure string, args gateway.CallArgs) error {
	today := args.Today
	if today == "" {
		today = utils.DayOf(time.Now(), nil)
	}

	var err error
	switch procedure {
	case constants.ProcRecomputeStatistics:
		if args.UserID == "" {
			return fmt.Errorf("%w: %s requires a user", gateway.ErrInvalidInput, procedure)
		}
		_, err = s.db.ExecContext(ctx, `SELECT recompute_statistics($1, $2)`, args.UserID, today)
	case constants.ProcRecomputeAllStatistics:
		_, err = s.db.ExecContext(ctx, `SELECT recompute_all_statistics($1)`, today)
	default:
		return fmt.Errorf("%w: %s", gateway.ErrUnknownProcedure, procedure)
	}
	if err != nil {
		return mapError(err)
	}

	logger.Debug("recomputed statistics", "procedure", procedure, "user", args.UserID, "today", today)
	return nil
}
