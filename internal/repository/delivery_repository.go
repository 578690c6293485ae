package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"tracker_suite/internal/entities"
	"tracker_suite/internal/interfaces"
)

const maxDeliveryListLimit = 100

// DeliveryRepository stores the delivery audit log and the retry queue.
type DeliveryRepository struct {
	db *pgxpool.Pool
}

var _ interfaces.DeliveryStore = (*DeliveryRepository)(nil)

func NewDeliveryRepository(db *pgxpool.Pool) *DeliveryRepository {
	return &DeliveryRepository{db: db}
}

func (r *DeliveryRepository) RecordDelivery(ctx context.Context, d *entities.WebhookDelivery) error {
	return r.db.QueryRow(ctx, `
		INSERT INTO webhook_deliveries (webhook_id, delivery_id, event, payload, status, response_code,
			response_body, error, attempt, next_retry_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at`,
		d.WebhookID, d.DeliveryID, d.Event, d.Payload, d.Status, d.ResponseCode, d.ResponseBody,
		d.Error, d.Attempt, d.NextRetryAt,
	).Scan(&d.ID, &d.CreatedAt)
}

func (r *DeliveryRepository) ListDeliveries(ctx context.Context, webhookID int64, limit int) ([]entities.WebhookDelivery, error) {
	if limit <= 0 || limit > maxDeliveryListLimit {
		limit = maxDeliveryListLimit
	}
	rows, err := r.db.Query(ctx, `
		SELECT id, webhook_id, delivery_id::text, event, payload, status, response_code, response_body,
			error, attempt, next_retry_at, created_at
		FROM webhook_deliveries
		WHERE webhook_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`, webhookID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []entities.WebhookDelivery{}
	for rows.Next() {
		var d entities.WebhookDelivery
		if err := rows.Scan(&d.ID, &d.WebhookID, &d.DeliveryID, &d.Event, &d.Payload, &d.Status,
			&d.ResponseCode, &d.ResponseBody, &d.Error, &d.Attempt, &d.NextRetryAt, &d.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (r *DeliveryRepository) ScheduleRetry(ctx context.Context, job *entities.RetryJob) error {
	return r.db.QueryRow(ctx, `
		INSERT INTO webhook_retry_jobs (webhook_id, event, data, attempt, run_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		job.WebhookID, job.Event, string(job.Data), job.Attempt, job.RunAt,
	).Scan(&job.ID)
}

// ClaimDueRetries leases due jobs by pushing their run_at past the lease. Rows locked by
// another worker are skipped, so concurrent claimers never receive the same job, and a job
// whose worker dies before CompleteRetry becomes due again when the lease runs out.
func (r *DeliveryRepository) ClaimDueRetries(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]entities.RetryJob, error) {
	rows, err := r.db.Query(ctx, `
		UPDATE webhook_retry_jobs SET run_at = $2
		WHERE id IN (
			SELECT id FROM webhook_retry_jobs
			WHERE run_at <= $1
			ORDER BY run_at
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, webhook_id, event, data::text, attempt, run_at`, now, now.Add(lease), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	jobs := []entities.RetryJob{}
	for rows.Next() {
		var j entities.RetryJob
		var data string
		if err := rows.Scan(&j.ID, &j.WebhookID, &j.Event, &data, &j.Attempt, &j.RunAt); err != nil {
			return nil, err
		}
		j.Data = []byte(data)
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

func (r *DeliveryRepository) CompleteRetry(ctx context.Context, id int64) error {
	_, err := r.db.Exec(ctx, `DELETE FROM webhook_retry_jobs WHERE id = $1`, id)
	return err
}

func (r *DeliveryRepository) RescheduleRetry(ctx context.Context, id int64, runAt time.Time) error {
	_, err := r.db.Exec(ctx, `UPDATE webhook_retry_jobs SET run_at = $2 WHERE id = $1`, id, runAt)
	return err
}
