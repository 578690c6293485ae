package repository

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgxpool"

	"tracker_suite/internal/entities"
	"tracker_suite/internal/interfaces"
)

const followUpColumns = `id, client_id, user_id, title, description, due_date, status, priority,
	completed_at, created_at, updated_at`

var followUpSorts = map[string]string{
	"due_date":   "due_date",
	"created_at": "created_at",
	"title":      "title",
	"priority":   "CASE priority WHEN 'high' THEN 3 WHEN 'medium' THEN 2 ELSE 1 END",
}

type FollowUpRepository struct {
	db *pgxpool.Pool
}

var _ interfaces.FollowUpStore = (*FollowUpRepository)(nil)

func NewFollowUpRepository(db *pgxpool.Pool) *FollowUpRepository {
	return &FollowUpRepository{db: db}
}

func scanFollowUp(row scanner) (*entities.FollowUp, error) {
	var f entities.FollowUp
	err := row.Scan(&f.ID, &f.ClientID, &f.UserID, &f.Title, &f.Description, &f.DueDate, &f.Status,
		&f.Priority, &f.CompletedAt, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func (r *FollowUpRepository) Create(ctx context.Context, f *entities.FollowUp) error {
	return r.db.QueryRow(ctx, `
		INSERT INTO follow_ups (client_id, user_id, title, description, due_date, status, priority, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at`,
		f.ClientID, f.UserID, f.Title, f.Description, f.DueDate, f.Status, f.Priority, f.CompletedAt,
	).Scan(&f.ID, &f.CreatedAt, &f.UpdatedAt)
}

func (r *FollowUpRepository) GetByID(ctx context.Context, id int64) (*entities.FollowUp, error) {
	f, err := scanFollowUp(r.db.QueryRow(ctx, "SELECT "+followUpColumns+" FROM follow_ups WHERE id = $1", id))
	if err != nil {
		return nil, notFound(err, "follow-up")
	}
	return f, nil
}

// List filters follow-ups; the overdue status is derived from pending rows past due at now.
func (r *FollowUpRepository) List(ctx context.Context, userID int64, f entities.FollowUpFilter, now time.Time) ([]entities.FollowUp, int, error) {
	where := sq.And{sq.Eq{"user_id": userID}}
	switch f.Status {
	case entities.FollowUpOverdue:
		where = append(where, sq.Eq{"status": entities.FollowUpPending}, sq.Lt{"due_date": now})
	case entities.FollowUpPending:
		where = append(where, sq.Eq{"status": entities.FollowUpPending}, sq.GtOrEq{"due_date": now})
	case entities.FollowUpCompleted:
		where = append(where, sq.Eq{"status": entities.FollowUpCompleted})
	}
	if f.ClientID != 0 {
		where = append(where, sq.Eq{"client_id": f.ClientID})
	}
	if f.Priority != "" {
		where = append(where, sq.Eq{"priority": f.Priority})
	}
	if f.DueFrom != nil {
		where = append(where, sq.GtOrEq{"due_date": *f.DueFrom})
	}
	if f.DueTo != nil {
		where = append(where, sq.Lt{"due_date": *f.DueTo})
	}

	total, err := count(ctx, r.db, "follow_ups", where)
	if err != nil {
		return nil, 0, err
	}

	order := f.Order
	if order == "" && (f.Sort == "" || f.Sort == "due_date") {
		order = "asc"
	}
	q := psql.Select(followUpColumns).From("follow_ups").Where(where).
		OrderBy(orderBy(f.Sort, order, followUpSorts, "due_date"))
	query, args, err := paginate(q, f.Page, f.Limit).ToSql()
	if err != nil {
		return nil, 0, err
	}
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	items := []entities.FollowUp{}
	for rows.Next() {
		fu, err := scanFollowUp(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, *fu)
	}
	return items, total, rows.Err()
}

func (r *FollowUpRepository) Update(ctx context.Context, f *entities.FollowUp) error {
	err := r.db.QueryRow(ctx, `
		UPDATE follow_ups SET title = $1, description = $2, due_date = $3, status = $4, priority = $5,
			completed_at = $6, updated_at = NOW()
		WHERE id = $7
		RETURNING updated_at`,
		f.Title, f.Description, f.DueDate, f.Status, f.Priority, f.CompletedAt, f.ID,
	).Scan(&f.UpdatedAt)
	return notFound(err, "follow-up")
}

func (r *FollowUpRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, "DELETE FROM follow_ups WHERE id = $1", id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return entities.NotFound("follow-up")
	}
	return nil
}

func (r *FollowUpRepository) CountByUser(ctx context.Context, userID int64) (total int, completed int, err error) {
	err = r.db.QueryRow(ctx, `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE status = 'completed')
		FROM follow_ups WHERE user_id = $1`, userID).Scan(&total, &completed)
	return total, completed, err
}
