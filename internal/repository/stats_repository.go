package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"tracker_suite/internal/entities"
	"tracker_suite/internal/interfaces"
)

const upcomingFollowUpLimit = 5

// StatsRepository answers the dashboard and analytics aggregates.
type StatsRepository struct {
	db *pgxpool.Pool
}

var _ interfaces.StatsStore = (*StatsRepository)(nil)

func NewStatsRepository(db *pgxpool.Pool) *StatsRepository {
	return &StatsRepository{db: db}
}

func (r *StatsRepository) DashboardStats(ctx context.Context, userID int64, now time.Time) (*entities.DashboardStats, error) {
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	dayEnd := dayStart.AddDate(0, 0, 1)

	var s entities.DashboardStats
	err := r.db.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM clients WHERE user_id = $1),
			(SELECT COUNT(*) FROM clients WHERE user_id = $1 AND status IN ('active', 'client')),
			(SELECT COUNT(*) FROM follow_ups WHERE user_id = $1 AND status = 'pending' AND due_date >= $2),
			(SELECT COUNT(*) FROM follow_ups WHERE user_id = $1 AND status = 'pending' AND due_date < $2),
			(SELECT COUNT(*) FROM follow_ups WHERE user_id = $1 AND status = 'pending' AND due_date >= $3 AND due_date < $4),
			(SELECT COUNT(*) FROM follow_ups WHERE user_id = $1 AND status = 'completed' AND completed_at >= $5),
			(SELECT COUNT(*) FROM interactions WHERE user_id = $1 AND occurred_at >= $6)`,
		userID, now, dayStart, dayEnd, now.AddDate(0, 0, -7), now.AddDate(0, 0, -30),
	).Scan(&s.TotalClients, &s.ActiveClients, &s.PendingFollowUps, &s.OverdueFollowUps,
		&s.DueTodayFollowUps, &s.CompletedLast7Days, &s.InteractionsLast30Day)
	if err != nil {
		return nil, fmt.Errorf("dashboard stats: %w", err)
	}

	if s.ClientsByStatus, err = r.ClientsByStatus(ctx, userID); err != nil {
		return nil, err
	}

	rows, err := r.db.Query(ctx, "SELECT "+followUpColumns+` FROM follow_ups
		WHERE user_id = $1 AND status = 'pending' AND due_date >= $2
		ORDER BY due_date, id LIMIT $3`, userID, now, upcomingFollowUpLimit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	s.UpcomingFollowUps = []entities.FollowUp{}
	for rows.Next() {
		f, err := scanFollowUp(rows)
		if err != nil {
			return nil, err
		}
		s.UpcomingFollowUps = append(s.UpcomingFollowUps, *f)
	}
	return &s, rows.Err()
}

func (r *StatsRepository) buckets(ctx context.Context, query string, args ...any) ([]entities.CountBucket, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []entities.CountBucket{}
	for rows.Next() {
		var b entities.CountBucket
		if err := rows.Scan(&b.Key, &b.Count); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r *StatsRepository) ClientsByStatus(ctx context.Context, userID int64) ([]entities.CountBucket, error) {
	return r.buckets(ctx, `
		SELECT status, COUNT(*) FROM clients WHERE user_id = $1
		GROUP BY status ORDER BY COUNT(*) DESC, status`, userID)
}

func (r *StatsRepository) ClientsBySource(ctx context.Context, userID int64) ([]entities.CountBucket, error) {
	return r.buckets(ctx, `
		SELECT COALESCE(NULLIF(source, ''), 'unknown') AS src, COUNT(*) FROM clients WHERE user_id = $1
		GROUP BY src ORDER BY COUNT(*) DESC, src`, userID)
}

func (r *StatsRepository) InteractionsByType(ctx context.Context, userID int64, since time.Time) ([]entities.CountBucket, error) {
	return r.buckets(ctx, `
		SELECT type, COUNT(*) FROM interactions WHERE user_id = $1 AND occurred_at >= $2
		GROUP BY type ORDER BY COUNT(*) DESC, type`, userID, since)
}

// FollowUpTrends returns one point per day from since through today, zero-filled.
func (r *StatsRepository) FollowUpTrends(ctx context.Context, userID int64, since time.Time) ([]entities.TrendPoint, error) {
	rows, err := r.db.Query(ctx, `
		SELECT d::date,
			(SELECT COUNT(*) FROM follow_ups f
				WHERE f.user_id = $1 AND f.created_at >= d AND f.created_at < d + INTERVAL '1 day'),
			(SELECT COUNT(*) FROM follow_ups f
				WHERE f.user_id = $1 AND f.completed_at >= d AND f.completed_at < d + INTERVAL '1 day')
		FROM generate_series(date_trunc('day', $2::timestamptz), date_trunc('day', NOW()), INTERVAL '1 day') AS d
		ORDER BY d ASC`, userID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	points := []entities.TrendPoint{}
	for rows.Next() {
		var p entities.TrendPoint
		if err := rows.Scan(&p.Date, &p.Created, &p.Completed); err != nil {
			return nil, err
		}
		points = append(points, p)
	}
	return points, rows.Err()
}
