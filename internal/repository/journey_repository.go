package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"tracker_suite/internal/entities"
	"tracker_suite/internal/interfaces"
)

type JourneyRepository struct {
	db *pgxpool.Pool
}

var _ interfaces.JourneyStore = (*JourneyRepository)(nil)

func NewJourneyRepository(db *pgxpool.Pool) *JourneyRepository {
	return &JourneyRepository{db: db}
}

// Seed inserts the full milestone catalog for userID. Existing rows are kept as they are.
func (r *JourneyRepository) Seed(ctx context.Context, userID int64, completed []string, now time.Time) error {
	done := make(map[string]bool, len(completed))
	for _, c := range completed {
		done[c] = true
	}

	q := psql.Insert("user_journey_milestones").Columns("user_id", "milestone_type", "completed", "completed_at")
	for _, def := range entities.MilestoneCatalog {
		var at *time.Time
		if done[def.Type] {
			t := now
			at = &t
		}
		q = q.Values(userID, def.Type, done[def.Type], at)
	}
	query, args, err := q.Suffix("ON CONFLICT (user_id, milestone_type) DO NOTHING").ToSql()
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, query, args...)
	return err
}

func (r *JourneyRepository) GetMilestone(ctx context.Context, userID int64, milestoneType string) (*entities.UserMilestone, error) {
	var m entities.UserMilestone
	err := r.db.QueryRow(ctx, `
		SELECT user_id, milestone_type, completed, completed_at
		FROM user_journey_milestones WHERE user_id = $1 AND milestone_type = $2`, userID, milestoneType,
	).Scan(&m.UserID, &m.Type, &m.Completed, &m.CompletedAt)
	if err != nil {
		return nil, notFound(err, "milestone")
	}
	return &m, nil
}

func (r *JourneyRepository) ListMilestones(ctx context.Context, userID int64) ([]entities.UserMilestone, error) {
	rows, err := r.db.Query(ctx, `
		SELECT user_id, milestone_type, completed, completed_at
		FROM user_journey_milestones WHERE user_id = $1 ORDER BY id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []entities.UserMilestone{}
	for rows.Next() {
		var m entities.UserMilestone
		if err := rows.Scan(&m.UserID, &m.Type, &m.Completed, &m.CompletedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// CompleteMilestone is a conditional update, so two racing callers cannot both win.
func (r *JourneyRepository) CompleteMilestone(ctx context.Context, userID int64, milestoneType string, at time.Time) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		INSERT INTO user_journey_milestones (user_id, milestone_type, completed, completed_at)
		VALUES ($1, $2, TRUE, $3)
		ON CONFLICT (user_id, milestone_type) DO UPDATE
			SET completed = TRUE, completed_at = EXCLUDED.completed_at
			WHERE NOT user_journey_milestones.completed`, userID, milestoneType, at)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *JourneyRepository) SaveProgress(ctx context.Context, p *entities.JourneyProgress) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO user_journey_progress (user_id, total_points, completed_milestones, current_level, journey_stage, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id) DO UPDATE SET
			total_points = EXCLUDED.total_points,
			completed_milestones = EXCLUDED.completed_milestones,
			current_level = EXCLUDED.current_level,
			journey_stage = EXCLUDED.journey_stage,
			updated_at = EXCLUDED.updated_at`,
		p.UserID, p.TotalPoints, p.CompletedMilestones, p.CurrentLevel, p.JourneyStage, p.UpdatedAt)
	return err
}

func (r *JourneyRepository) GetProgress(ctx context.Context, userID int64) (*entities.JourneyProgress, error) {
	p := entities.JourneyProgress{UserID: userID, TotalMilestones: len(entities.MilestoneCatalog)}
	err := r.db.QueryRow(ctx, `
		SELECT total_points, completed_milestones, current_level, journey_stage, updated_at
		FROM user_journey_progress WHERE user_id = $1`, userID,
	).Scan(&p.TotalPoints, &p.CompletedMilestones, &p.CurrentLevel, &p.JourneyStage, &p.UpdatedAt)
	if err != nil {
		return nil, notFound(err, "journey progress")
	}
	p.NextLevelPoints = p.CurrentLevel * entities.PointsPerLevel
	return &p, nil
}
