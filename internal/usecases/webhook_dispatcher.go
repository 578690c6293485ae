package usecases

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"tracker_suite/internal/entities"
	"tracker_suite/internal/infrastructure"
	"tracker_suite/internal/interfaces"
)

const (
	MaxDeliveryAttempts = 3

	UserAgent       = "Tracker-Suite-Webhooks/1.0"
	EventHeader     = "X-Tracker-Suite-Event"
	DeliveryHeader  = "X-Tracker-Suite-Delivery"
	SignatureHeader = "X-Tracker-Suite-Signature"

	maxResponseBody = 1000
	signaturePrefix = "sha256="
)

// ErrRetryNotQueued marks a Deliver error where the follow-up attempt could not be stored.
var ErrRetryNotQueued = errors.New("retry not queued")

// RetryBackoff is indexed by the attempt that just failed, starting at 1.
var RetryBackoff = []time.Duration{30 * time.Second, 5 * time.Minute, 30 * time.Minute}

type DispatcherConfig struct {
	Timeout time.Duration
	Workers int
}

// WebhookDispatcher fans domain events out to subscriber URLs.
type WebhookDispatcher struct {
	webhooks   interfaces.WebhookStore
	deliveries interfaces.DeliveryStore
	client     *http.Client
	pool       *DeliveryPool
	clock      clock.Clock
	metrics    *infrastructure.WebhookMetrics
	log        *zap.Logger
}

func NewWebhookDispatcher(
	webhooks interfaces.WebhookStore,
	deliveries interfaces.DeliveryStore,
	cfg DispatcherConfig,
	clk clock.Clock,
	metrics *infrastructure.WebhookMetrics,
	log *zap.Logger,
) *WebhookDispatcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if metrics == nil {
		metrics = infrastructure.NewWebhookMetrics(nil)
	}
	log = log.With(zap.String("component", "webhook_dispatcher"))
	return &WebhookDispatcher{
		webhooks:   webhooks,
		deliveries: deliveries,
		client:     &http.Client{Timeout: cfg.Timeout},
		pool:       NewDeliveryPool(cfg.Workers, log, metrics.Dropped.Inc),
		clock:      clk,
		metrics:    metrics,
		log:        log,
	}
}

func (d *WebhookDispatcher) Start() { d.pool.Start() }

func (d *WebhookDispatcher) Stop(ctx context.Context) { d.pool.Stop(ctx) }

func (d *WebhookDispatcher) GetStats() map[string]interface{} { return d.pool.GetStats() }

// Dispatch queues one delivery per active webhook of userID subscribed to event.
// It does not wait for the deliveries.
func (d *WebhookDispatcher) Dispatch(ctx context.Context, userID int64, event string, data interface{}) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", event, err)
	}
	hooks, err := d.webhooks.ActiveForEvent(ctx, userID, event)
	if err != nil {
		return fmt.Errorf("load webhooks for %s: %w", event, err)
	}
	for i := range hooks {
		hook := hooks[i]
		queued := d.pool.Submit(hook.ID, func(ctx context.Context) {
			if _, err := d.Deliver(ctx, &hook, event, raw, 1); err != nil {
				d.log.Error("Failed to record webhook delivery",
					zap.Int64("webhook_id", hook.ID), zap.String("event", event), zap.Error(err))
			}
		})
		if !queued {
			d.deferToRetryQueue(ctx, &hook, event, raw)
		}
	}
	return nil
}

// deferToRetryQueue stores the first attempt as a due retry job when the pool cannot take it.
func (d *WebhookDispatcher) deferToRetryQueue(ctx context.Context, hook *entities.Webhook, event string, raw json.RawMessage) {
	job := &entities.RetryJob{
		WebhookID: hook.ID,
		Event:     event,
		Data:      raw,
		Attempt:   1,
		RunAt:     d.clock.Now(),
	}
	if err := d.deliveries.ScheduleRetry(context.WithoutCancel(ctx), job); err != nil {
		d.log.Error("Failed to queue webhook delivery",
			zap.Int64("webhook_id", hook.ID), zap.String("event", event), zap.Error(err))
		return
	}
	d.metrics.RetriesEnqueued.Inc()
	d.log.Warn("Delivery pool busy, first attempt moved to the retry queue",
		zap.Int64("webhook_id", hook.ID), zap.String("event", event))
}

// Deliver performs one POST to hook and records the outcome. A retryable failure with
// attempts left schedules a retry job. The returned error only reports storage failures;
// it wraps ErrRetryNotQueued when the retry job was needed but not stored.
func (d *WebhookDispatcher) Deliver(ctx context.Context, hook *entities.Webhook, event string, data json.RawMessage, attempt int) (*entities.WebhookDelivery, error) {
	payload := entities.WebhookPayload{
		Event:     event,
		Data:      data,
		Timestamp: d.clock.Now().UTC(),
		WebhookID: hook.ID,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal webhook payload: %w", err)
	}

	delivery := &entities.WebhookDelivery{
		WebhookID:  hook.ID,
		DeliveryID: uuid.NewString(),
		Event:      event,
		Payload:    string(body),
		Attempt:    attempt,
	}

	start := time.Now()
	retryable := d.post(ctx, hook, event, body, delivery)
	d.metrics.Duration.Observe(time.Since(start).Seconds())
	d.metrics.Deliveries.WithLabelValues(delivery.Status).Inc()

	var job *entities.RetryJob
	if delivery.Status == entities.DeliveryFailed && retryable && attempt < MaxDeliveryAttempts && event != entities.EventWebhookTest {
		runAt := d.clock.Now().Add(RetryBackoff[attempt-1])
		delivery.NextRetryAt = &runAt
		job = &entities.RetryJob{
			WebhookID: hook.ID,
			Event:     event,
			Data:      data,
			Attempt:   attempt + 1,
			RunAt:     runAt,
		}
	}

	// Both writes run even when the caller is being cancelled.
	store := context.WithoutCancel(ctx)
	var errs error
	if err := d.deliveries.RecordDelivery(store, delivery); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("record delivery: %w", err))
	}
	if job != nil {
		if err := d.deliveries.ScheduleRetry(store, job); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("schedule retry: %w: %w", ErrRetryNotQueued, err))
		} else {
			d.metrics.RetriesEnqueued.Inc()
		}
	}
	if errs != nil {
		return delivery, errs
	}

	d.log.Debug("Webhook delivered",
		zap.Int64("webhook_id", hook.ID),
		zap.String("event", event),
		zap.String("status", delivery.Status),
		zap.Int("response_code", delivery.ResponseCode),
		zap.Int("attempt", attempt))
	return delivery, nil
}

// post sends body and fills the outcome fields of delivery. It reports whether a failure
// may be retried.
func (d *WebhookDispatcher) post(ctx context.Context, hook *entities.Webhook, event string, body []byte, delivery *entities.WebhookDelivery) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hook.URL, bytes.NewReader(body))
	if err != nil {
		delivery.Status = entities.DeliveryFailed
		delivery.Error = err.Error()
		return false
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", UserAgent)
	for k, v := range hook.Headers {
		req.Header.Set(k, v)
	}
	req.Header.Set(EventHeader, event)
	req.Header.Set(DeliveryHeader, delivery.DeliveryID)
	if hook.Secret != "" {
		req.Header.Set(SignatureHeader, signaturePrefix+Sign(body, hook.Secret))
	}

	resp, err := d.client.Do(req)
	if err != nil {
		delivery.Status = entities.DeliveryFailed
		delivery.Error = err.Error()
		return true
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4*maxResponseBody))
	delivery.ResponseCode = resp.StatusCode
	delivery.ResponseBody = sanitizeBody(respBody, maxResponseBody)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		delivery.Status = entities.DeliverySuccess
		return false
	}
	delivery.Status = entities.DeliveryFailed
	delivery.Error = fmt.Sprintf("unexpected status %d", resp.StatusCode)
	return resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests
}

// Test sends a webhook.test event to the hook and waits for the outcome.
func (d *WebhookDispatcher) Test(ctx context.Context, hook *entities.Webhook) (*entities.WebhookDelivery, error) {
	data, err := json.Marshal(map[string]interface{}{
		"message":    "This is a test delivery from Tracker Suite",
		"webhook_id": hook.ID,
	})
	if err != nil {
		return nil, err
	}
	return d.Deliver(ctx, hook, entities.EventWebhookTest, data, 1)
}

// Sign returns the hex HMAC-SHA256 of payload keyed by secret.
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// ValidateSignature checks signature, with or without the sha256= prefix, in constant time.
func ValidateSignature(payload []byte, signature, secret string) bool {
	got, err := hex.DecodeString(strings.TrimPrefix(signature, signaturePrefix))
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hmac.Equal(got, mac.Sum(nil))
}

// sanitizeBody makes a subscriber response storable in a text column: invalid UTF-8 is
// replaced, NUL bytes are dropped and the result is cut to n runes.
func sanitizeBody(b []byte, n int) string {
	s := strings.ToValidUTF8(string(b), "\uFFFD")
	s = strings.ReplaceAll(s, "\x00", "")
	return truncate(s, n)
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
