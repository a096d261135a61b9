package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/julianstephens/habitlog/internal/constants"
	"github.com/julianstephens/habitlog/internal/gateway"
	"github.com/julianstephens/habitlog/internal/logger"
	"github.com/julianstephens/habitlog/internal/models"
	"github.com/julianstephens/habitlog/internal/utils"
)

func (s *Store) SelectStatistics(ctx context.Context, q gateway.Query) ([]gateway.StatisticsRow, error) {
	if q.Table != constants.TableStatistics {
		return nil, fmt.Errorf("%w: SelectStatistics on %s", gateway.ErrInvalidQuery, q.Table)
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

	var out []gateway.StatisticsRow
	for rows.Next() {
		var r gateway.StatisticsRow
		var achieved, total sql.NullInt64
		var rate sql.NullFloat64
		var calculatedAt sql.NullString

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
			t, err := parseTimestamp(calculatedAt.String)
			if err != nil {
				return nil, err
			}
			r.CalculatedAt = &t
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Call runs the statistics procedures in-process. recompute_statistics is
// limited to one run per user per day; recompute_all_statistics is not.
func (s *Store) Call(ctx context.Context, procedure string, args gateway.CallArgs) error {
	today := args.Today
	if today == "" {
		today = utils.DayOf(s.now(), nil)
	}

	switch procedure {
	case constants.ProcRecomputeStatistics:
		if args.UserID == "" {
			return fmt.Errorf("%w: %s requires a user", gateway.ErrInvalidInput, procedure)
		}
	case constants.ProcRecomputeAllStatistics:
	default:
		return fmt.Errorf("%w: %s", gateway.ErrUnknownProcedure, procedure)
	}

	s.touch()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if procedure == constants.ProcRecomputeStatistics {
		res, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO statistics_recompute_requests (user_id, day, requested_at)
			VALUES (?, ?, ?)`, args.UserID, today, s.timestamp())
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n == 0 {
			return gateway.ErrRateLimited
		}
	}

	n, err := s.recompute(ctx, tx, args.UserID, today)
	if err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	logger.Debug("recomputed statistics", "procedure", procedure, "user", args.UserID, "habits", n, "today", today)
	return nil
}

type habitTally struct {
	id        string
	userID    string
	startDate string
	achieved  int
}

func (s *Store) recompute(ctx context.Context, tx *sql.Tx, userID, today string) (int, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT h.id, h.user_id, h.start_date,
			(SELECT COUNT(*) FROM habit_logs l
				WHERE l.habit_id = h.id AND l.status = ? AND l.date BETWEEN h.start_date AND ?)
		FROM habits h
		WHERE ? = '' OR h.user_id = ?`,
		string(models.StatusAchieved), today, userID, userID)
	if err != nil {
		return 0, err
	}

	var tallies []habitTally
	for rows.Next() {
		var t habitTally
		if err := rows.Scan(&t.id, &t.userID, &t.startDate, &t.achieved); err != nil {
			rows.Close()
			return 0, err
		}
		tallies = append(tallies, t)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, err
	}
	rows.Close()

	calculatedAt := s.timestamp()
	for _, t := range tallies {
		total, rate, err := models.Aggregate(t.startDate, today, t.achieved)
		if err != nil {
			return 0, fmt.Errorf("habit %s: %w", t.id, err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO habit_daily_statistics (habit_id, user_id, achieved_days, total_days, achievement_rate, calculated_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT (habit_id) DO UPDATE SET
				achieved_days = excluded.achieved_days,
				total_days = excluded.total_days,
				achievement_rate = excluded.achievement_rate,
				calculated_at = excluded.calculated_at`,
			t.id, t.userID, t.achieved, total, rate, calculatedAt)
		if err != nil {
			return 0, fmt.Errorf("failed to store statistics of habit %s: %w", t.id, err)
		}
	}
	return len(tallies), nil
}
