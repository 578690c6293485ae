package repository

import (
	"context"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgxpool"

	"tracker_suite/internal/entities"
	"tracker_suite/internal/interfaces"
)

const webhookColumns = "id, user_id, url, events, secret, active, headers, created_at, updated_at"

type WebhookRepository struct {
	db *pgxpool.Pool
}

var _ interfaces.WebhookStore = (*WebhookRepository)(nil)

func NewWebhookRepository(db *pgxpool.Pool) *WebhookRepository {
	return &WebhookRepository{db: db}
}

func scanWebhook(row scanner) (*entities.Webhook, error) {
	var w entities.Webhook
	if err := row.Scan(&w.ID, &w.UserID, &w.URL, &w.Events, &w.Secret, &w.Active, &w.Headers,
		&w.CreatedAt, &w.UpdatedAt); err != nil {
		return nil, err
	}
	w.HasSecret = w.Secret != ""
	if w.Headers == nil {
		w.Headers = map[string]string{}
	}
	if w.Events == nil {
		w.Events = []string{}
	}
	return &w, nil
}

func (r *WebhookRepository) Create(ctx context.Context, w *entities.Webhook) error {
	if w.Headers == nil {
		w.Headers = map[string]string{}
	}
	w.HasSecret = w.Secret != ""
	return r.db.QueryRow(ctx, `
		INSERT INTO webhooks (user_id, url, events, secret, active, headers)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at`,
		w.UserID, w.URL, w.Events, w.Secret, w.Active, w.Headers,
	).Scan(&w.ID, &w.CreatedAt, &w.UpdatedAt)
}

func (r *WebhookRepository) GetByID(ctx context.Context, id int64) (*entities.Webhook, error) {
	w, err := scanWebhook(r.db.QueryRow(ctx, "SELECT "+webhookColumns+" FROM webhooks WHERE id = $1", id))
	if err != nil {
		return nil, notFound(err, "webhook")
	}
	return w, nil
}

func (r *WebhookRepository) list(ctx context.Context, where sq.Sqlizer) ([]entities.Webhook, error) {
	query, args, err := psql.Select(webhookColumns).From("webhooks").Where(where).OrderBy("id").ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	hooks := []entities.Webhook{}
	for rows.Next() {
		w, err := scanWebhook(rows)
		if err != nil {
			return nil, err
		}
		hooks = append(hooks, *w)
	}
	return hooks, rows.Err()
}

func (r *WebhookRepository) ListByUser(ctx context.Context, userID int64) ([]entities.Webhook, error) {
	return r.list(ctx, sq.Eq{"user_id": userID})
}

func (r *WebhookRepository) ActiveForEvent(ctx context.Context, userID int64, event string) ([]entities.Webhook, error) {
	return r.list(ctx, sq.And{
		sq.Eq{"user_id": userID, "active": true},
		sq.Expr("? = ANY(events)", event),
	})
}

func (r *WebhookRepository) Update(ctx context.Context, w *entities.Webhook) error {
	if w.Headers == nil {
		w.Headers = map[string]string{}
	}
	w.HasSecret = w.Secret != ""
	err := r.db.QueryRow(ctx, `
		UPDATE webhooks SET url = $1, events = $2, secret = $3, active = $4, headers = $5, updated_at = NOW()
		WHERE id = $6
		RETURNING updated_at`,
		w.URL, w.Events, w.Secret, w.Active, w.Headers, w.ID,
	).Scan(&w.UpdatedAt)
	return notFound(err, "webhook")
}

func (r *WebhookRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, "DELETE FROM webhooks WHERE id = $1", id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return entities.NotFound("webhook")
	}
	return nil
}

func (r *WebhookRepository) CountByUser(ctx context.Context, userID int64) (int, error) {
	return count(ctx, r.db, "webhooks", sq.Eq{"user_id": userID})
}
