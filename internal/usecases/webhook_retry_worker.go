package usecases

import (
	"context"
	"errors"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"tracker_suite/internal/entities"
	"tracker_suite/internal/interfaces"
)

const (
	retryBatchSize = 50
	// retryLease hides a claimed job from other pollers until it is completed or handed back.
	retryLease = 15 * time.Minute
)

// RetryWorker polls the persisted retry queue and re-attempts due deliveries.
type RetryWorker struct {
	deliveries interfaces.DeliveryStore
	webhooks   interfaces.WebhookStore
	dispatcher *WebhookDispatcher
	interval   time.Duration
	clock      clock.Clock
	log        *zap.Logger
}

func NewRetryWorker(
	deliveries interfaces.DeliveryStore,
	webhooks interfaces.WebhookStore,
	dispatcher *WebhookDispatcher,
	interval time.Duration,
	clk clock.Clock,
	log *zap.Logger,
) *RetryWorker {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &RetryWorker{
		deliveries: deliveries,
		webhooks:   webhooks,
		dispatcher: dispatcher,
		interval:   interval,
		clock:      clk,
		log:        log.With(zap.String("component", "webhook_retry_worker")),
	}
}

// Run polls until ctx is cancelled.
func (w *RetryWorker) Run(ctx context.Context) {
	w.log.Info("Starting webhook retry worker", zap.Duration("interval", w.interval))
	ticker := w.clock.Ticker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info("Webhook retry worker stopped")
			return
		case <-ticker.C:
			if _, err := w.RunOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
				w.log.Error("Webhook retry poll failed", zap.Error(err))
			}
		}
	}
}

// RunOnce claims due jobs until none are left and returns how many were attempted.
// Jobs still leased when ctx is cancelled are handed back due immediately.
func (w *RetryWorker) RunOnce(ctx context.Context) (int, error) {
	processed := 0
	for {
		if err := ctx.Err(); err != nil {
			return processed, err
		}
		jobs, err := w.deliveries.ClaimDueRetries(ctx, w.clock.Now(), retryLease, retryBatchSize)
		if err != nil {
			return processed, err
		}
		for i, job := range jobs {
			if ctx.Err() != nil {
				w.release(jobs[i:])
				return processed, ctx.Err()
			}
			if w.retry(ctx, job) {
				processed++
			}
		}
		if len(jobs) < retryBatchSize {
			return processed, nil
		}
	}
}

// release returns leased jobs to the queue so the next poll, in this process or another,
// picks them up without waiting for the lease to run out.
func (w *RetryWorker) release(jobs []entities.RetryJob) {
	ctx := context.Background()
	now := w.clock.Now()
	for _, job := range jobs {
		if err := w.deliveries.RescheduleRetry(ctx, job.ID, now); err != nil {
			w.log.Warn("Failed to release retry job", zap.Int64("job_id", job.ID), zap.Error(err))
		}
	}
}

func (w *RetryWorker) retry(ctx context.Context, job entities.RetryJob) bool {
	log := w.log.With(zap.Int64("job_id", job.ID), zap.Int64("webhook_id", job.WebhookID),
		zap.String("event", job.Event), zap.Int("attempt", job.Attempt))
	// The attempt and its bookkeeping run to completion once started.
	runCtx := context.WithoutCancel(ctx)

	hook, err := w.webhooks.GetByID(ctx, job.WebhookID)
	if errors.Is(err, entities.ErrNotFound) {
		log.Info("Dropping retry for deleted webhook")
		w.complete(runCtx, job, log)
		return false
	}
	if err != nil {
		log.Error("Failed to load webhook for retry, rescheduling", zap.Error(err))
		if err := w.deliveries.RescheduleRetry(runCtx, job.ID, w.clock.Now().Add(w.interval)); err != nil {
			log.Error("Failed to reschedule retry", zap.Error(err))
		}
		return false
	}
	if !hook.Active || !hook.Subscribed(job.Event) {
		log.Info("Dropping retry for inactive or unsubscribed webhook")
		w.complete(runCtx, job, log)
		return false
	}

	if _, err := w.dispatcher.Deliver(runCtx, hook, job.Event, job.Data, job.Attempt); err != nil {
		log.Error("Failed to record retried delivery", zap.Error(err))
		if errors.Is(err, ErrRetryNotQueued) {
			// The job stays leased and is attempted again after the lease.
			return true
		}
	}
	w.complete(runCtx, job, log)
	return true
}

func (w *RetryWorker) complete(ctx context.Context, job entities.RetryJob, log *zap.Logger) {
	if err := w.deliveries.CompleteRetry(ctx, job.ID); err != nil {
		log.Error("Failed to complete retry job", zap.Error(err))
	}
}
