package usecases

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"tracker_suite/internal/entities"
	"tracker_suite/internal/interfaces"
)

type capturedRequest struct {
	header http.Header
	body   []byte
}

// recorder is a subscriber endpoint that answers with a fixed status and body.
type recorder struct {
	mu       sync.Mutex
	status   int
	body     string
	requests []capturedRequest
}

func (r *recorder) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	body, _ := io.ReadAll(req.Body)
	r.mu.Lock()
	r.requests = append(r.requests, capturedRequest{header: req.Header.Clone(), body: body})
	status, respBody := r.status, r.body
	r.mu.Unlock()
	w.WriteHeader(status)
	_, _ = io.WriteString(w, respBody)
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.requests)
}

func (r *recorder) last() capturedRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.requests[len(r.requests)-1]
}

func newSubscriber(t *testing.T, status int, body string) (*recorder, *httptest.Server) {
	rec := &recorder{status: status, body: body}
	srv := httptest.NewServer(rec)
	t.Cleanup(srv.Close)
	return rec, srv
}

func TestDeliver_SignsAndRecordsSuccess(t *testing.T) {
	e := newEnv(t)
	rec, srv := newSubscriber(t, http.StatusOK, `{"ok":true}`)
	u := e.user(t, "owner@example.com")
	hook := e.webhook(t, u.ID, srv.URL, "s3cret", entities.EventClientCreated)
	hook.Headers = map[string]string{"X-Custom": "yes"}

	d, err := e.dispatcher(t).Deliver(context.Background(), hook, entities.EventClientCreated, json.RawMessage(`{"id":42}`), 1)
	require.NoError(t, err)
	require.Equal(t, entities.DeliverySuccess, d.Status)
	require.Equal(t, http.StatusOK, d.ResponseCode)
	require.Equal(t, `{"ok":true}`, d.ResponseBody)
	require.Nil(t, d.NextRetryAt)

	got := rec.last()
	require.Equal(t, "application/json", got.header.Get("Content-Type"))
	require.Equal(t, UserAgent, got.header.Get("User-Agent"))
	require.Equal(t, entities.EventClientCreated, got.header.Get(EventHeader))
	require.Equal(t, d.DeliveryID, got.header.Get(DeliveryHeader))
	require.Equal(t, "yes", got.header.Get("X-Custom"))

	sig := got.header.Get(SignatureHeader)
	require.True(t, strings.HasPrefix(sig, "sha256="))
	require.True(t, ValidateSignature(got.body, sig, "s3cret"))
	require.False(t, ValidateSignature(got.body, sig, "other"))

	var payload entities.WebhookPayload
	require.NoError(t, json.Unmarshal(got.body, &payload))
	require.Equal(t, entities.EventClientCreated, payload.Event)
	require.Equal(t, hook.ID, payload.WebhookID)
	require.JSONEq(t, `{"id":42}`, string(payload.Data))
	require.True(t, payload.Timestamp.Equal(epoch))

	all := e.db.Deliveries().All()
	require.Len(t, all, 1)
	require.Equal(t, entities.DeliverySuccess, all[0].Status)
	require.Empty(t, e.db.Deliveries().Pending())
}

func TestDeliver_NoSecretNoSignature(t *testing.T) {
	e := newEnv(t)
	rec, srv := newSubscriber(t, http.StatusNoContent, "")
	hook := e.webhook(t, 1, srv.URL, "", entities.EventClientCreated)

	_, err := e.dispatcher(t).Deliver(context.Background(), hook, entities.EventClientCreated, json.RawMessage(`{}`), 1)
	require.NoError(t, err)
	require.Empty(t, rec.last().header.Get(SignatureHeader))
}

func TestDeliver_RetryPolicy(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		event     string
		attempt   int
		wantRetry bool
	}{
		{"server error retries", http.StatusInternalServerError, entities.EventClientCreated, 1, true},
		{"bad gateway retries", http.StatusBadGateway, entities.EventClientCreated, 2, true},
		{"rate limited retries", http.StatusTooManyRequests, entities.EventClientCreated, 1, true},
		{"client error is final", http.StatusNotFound, entities.EventClientCreated, 1, false},
		{"unauthorized is final", http.StatusUnauthorized, entities.EventClientCreated, 1, false},
		{"last attempt is final", http.StatusInternalServerError, entities.EventClientCreated, MaxDeliveryAttempts, false},
		{"test event never retries", http.StatusInternalServerError, entities.EventWebhookTest, 1, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t)
			_, srv := newSubscriber(t, tt.status, "nope")
			hook := e.webhook(t, 1, srv.URL, "", entities.EventClientCreated)

			d, err := e.dispatcher(t).Deliver(context.Background(), hook, tt.event, json.RawMessage(`{}`), tt.attempt)
			require.NoError(t, err)
			require.Equal(t, entities.DeliveryFailed, d.Status)
			require.Equal(t, tt.status, d.ResponseCode)

			pending := e.db.Deliveries().Pending()
			if !tt.wantRetry {
				require.Nil(t, d.NextRetryAt)
				require.Empty(t, pending)
				return
			}
			require.Len(t, pending, 1)
			want := epoch.Add(RetryBackoff[tt.attempt-1])
			require.True(t, pending[0].RunAt.Equal(want))
			require.Equal(t, tt.attempt+1, pending[0].Attempt)
			require.NotNil(t, d.NextRetryAt)
			require.True(t, d.NextRetryAt.Equal(want))
		})
	}
}

func TestDeliver_NetworkErrorRetries(t *testing.T) {
	e := newEnv(t)
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()
	hook := e.webhook(t, 1, url, "", entities.EventClientCreated)

	d, err := e.dispatcher(t).Deliver(context.Background(), hook, entities.EventClientCreated, json.RawMessage(`{}`), 1)
	require.NoError(t, err)
	require.Equal(t, entities.DeliveryFailed, d.Status)
	require.Zero(t, d.ResponseCode)
	require.NotEmpty(t, d.Error)
	require.Len(t, e.db.Deliveries().Pending(), 1)
}

func TestDeliver_TruncatesResponseBody(t *testing.T) {
	e := newEnv(t)
	_, srv := newSubscriber(t, http.StatusOK, strings.Repeat("é", 1200))
	hook := e.webhook(t, 1, srv.URL, "", entities.EventClientCreated)

	d, err := e.dispatcher(t).Deliver(context.Background(), hook, entities.EventClientCreated, json.RawMessage(`{}`), 1)
	require.NoError(t, err)
	require.Equal(t, 1000, len([]rune(d.ResponseBody)))
}

func TestDeliver_StorageFailureIsReported(t *testing.T) {
	e := newEnv(t)
	_, srv := newSubscriber(t, http.StatusOK, "")
	hook := e.webhook(t, 1, srv.URL, "", entities.EventClientCreated)
	e.db.Err = io.ErrUnexpectedEOF

	d, err := e.dispatcher(t).Deliver(context.Background(), hook, entities.EventClientCreated, json.RawMessage(`{}`), 1)
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)
	require.Equal(t, entities.DeliverySuccess, d.Status)
}

func TestDispatch_OnlySubscribedActiveHooks(t *testing.T) {
	e := newEnv(t)
	subscribed, srvA := newSubscriber(t, http.StatusOK, "")
	other, srvB := newSubscriber(t, http.StatusOK, "")
	inactive, srvC := newSubscriber(t, http.StatusOK, "")
	foreign, srvD := newSubscriber(t, http.StatusOK, "")

	e.webhook(t, 1, srvA.URL, "", entities.EventClientCreated, entities.EventClientDeleted)
	e.webhook(t, 1, srvB.URL, "", entities.EventFollowUpCreated)
	off := e.webhook(t, 1, srvC.URL, "", entities.EventClientCreated)
	off.Active = false
	require.NoError(t, e.db.Webhooks().Update(context.Background(), off))
	e.webhook(t, 2, srvD.URL, "", entities.EventClientCreated)

	d := e.dispatcher(t)
	d.Start()
	require.NoError(t, d.Dispatch(context.Background(), 1, entities.EventClientCreated, map[string]int64{"id": 7}))
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	d.Stop(ctx)

	require.Equal(t, 1, subscribed.count())
	require.Zero(t, other.count())
	require.Zero(t, inactive.count())
	require.Zero(t, foreign.count())
	require.Len(t, e.db.Deliveries().All(), 1)
	require.EqualValues(t, 1, d.GetStats()["processed"])
}

func TestDispatcherTest_WaitsForOutcome(t *testing.T) {
	e := newEnv(t)
	rec, srv := newSubscriber(t, http.StatusOK, "")
	hook := e.webhook(t, 1, srv.URL, "k", entities.EventClientCreated)

	d, err := e.dispatcher(t).Test(context.Background(), hook)
	require.NoError(t, err)
	require.Equal(t, entities.DeliverySuccess, d.Status)
	require.Equal(t, entities.EventWebhookTest, rec.last().header.Get(EventHeader))
}

func TestValidateSignature(t *testing.T) {
	body := []byte(`{"event":"client.created"}`)
	sig := Sign(body, "secret")
	require.Len(t, sig, 64)
	require.True(t, ValidateSignature(body, sig, "secret"))
	require.True(t, ValidateSignature(body, "sha256="+sig, "secret"))
	require.False(t, ValidateSignature(body, "sha256=zz", "secret"))
	require.False(t, ValidateSignature([]byte(`{}`), sig, "secret"))
}

func TestRetryWorker_WalksBackoffSchedule(t *testing.T) {
	e := newEnv(t)
	rec, srv := newSubscriber(t, http.StatusServiceUnavailable, "down")
	hook := e.webhook(t, 1, srv.URL, "", entities.EventClientCreated)
	d := e.dispatcher(t)
	w := NewRetryWorker(e.db.Deliveries(), e.db.Webhooks(), d, time.Second, e.clock, zaptest.NewLogger(t))
	ctx := context.Background()

	_, err := d.Deliver(ctx, hook, entities.EventClientCreated, json.RawMessage(`{"id":1}`), 1)
	require.NoError(t, err)

	n, err := w.RunOnce(ctx)
	require.NoError(t, err)
	require.Zero(t, n, "nothing is due before the first backoff")

	e.clock.Add(30 * time.Second)
	n, err = w.RunOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	pending := e.db.Deliveries().Pending()
	require.Len(t, pending, 1)
	require.Equal(t, 3, pending[0].Attempt)
	require.True(t, pending[0].RunAt.Equal(e.clock.Now().Add(5*time.Minute)))

	e.clock.Add(5 * time.Minute)
	n, err = w.RunOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Empty(t, e.db.Deliveries().Pending(), "the third attempt is the last")

	require.Equal(t, 3, rec.count())
	all := e.db.Deliveries().All()
	require.Len(t, all, 3)
	for i, del := range all {
		require.Equal(t, i+1, del.Attempt)
		require.Equal(t, entities.DeliveryFailed, del.Status)
	}
}

func TestRetryWorker_DropsJobsForRemovedOrInactiveHooks(t *testing.T) {
	e := newEnv(t)
	rec, srv := newSubscriber(t, http.StatusOK, "")
	gone := e.webhook(t, 1, srv.URL, "", entities.EventClientCreated)
	paused := e.webhook(t, 1, srv.URL, "", entities.EventClientCreated)
	paused.Active = false
	ctx := context.Background()
	require.NoError(t, e.db.Webhooks().Update(ctx, paused))
	require.NoError(t, e.db.Webhooks().Delete(ctx, gone.ID))

	for _, id := range []int64{gone.ID, paused.ID} {
		require.NoError(t, e.db.Deliveries().ScheduleRetry(ctx, &entities.RetryJob{
			WebhookID: id, Event: entities.EventClientCreated, Data: json.RawMessage(`{}`), Attempt: 2, RunAt: epoch,
		}))
	}

	w := NewRetryWorker(e.db.Deliveries(), e.db.Webhooks(), e.dispatcher(t), time.Second, e.clock, zaptest.NewLogger(t))
	n, err := w.RunOnce(ctx)
	require.NoError(t, err)
	require.Zero(t, n)
	require.Zero(t, rec.count())
	require.Empty(t, e.db.Deliveries().Pending())
}

type flakyWebhooks struct {
	interfaces.WebhookStore
	err error
}

func (f *flakyWebhooks) GetByID(ctx context.Context, id int64) (*entities.Webhook, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.WebhookStore.GetByID(ctx, id)
}

func TestRetryWorker_ReschedulesOnLookupError(t *testing.T) {
	e := newEnv(t)
	rec, srv := newSubscriber(t, http.StatusOK, "")
	hook := e.webhook(t, 1, srv.URL, "", entities.EventClientCreated)
	ctx := context.Background()
	require.NoError(t, e.db.Deliveries().ScheduleRetry(ctx, &entities.RetryJob{
		WebhookID: hook.ID, Event: entities.EventClientCreated, Data: json.RawMessage(`{}`), Attempt: 2, RunAt: epoch,
	}))

	hooks := &flakyWebhooks{WebhookStore: e.db.Webhooks(), err: errors.New("connection reset")}
	w := NewRetryWorker(e.db.Deliveries(), hooks, e.dispatcher(t), 10*time.Second, e.clock, zaptest.NewLogger(t))

	n, err := w.RunOnce(ctx)
	require.NoError(t, err)
	require.Zero(t, n)
	pending := e.db.Deliveries().Pending()
	require.Len(t, pending, 1)
	require.Equal(t, 2, pending[0].Attempt)
	require.True(t, pending[0].RunAt.Equal(epoch.Add(10*time.Second)))

	hooks.err = nil
	e.clock.Add(10 * time.Second)
	n, err = w.RunOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, 1, rec.count())
	require.Empty(t, e.db.Deliveries().Pending())
}

// ctxBoundDeliveries fails writes once their ctx is done, like a pgx pool, and can run
// afterClaim right after a claim returns.
type ctxBoundDeliveries struct {
	interfaces.DeliveryStore
	afterClaim func()
}

func (s *ctxBoundDeliveries) RecordDelivery(ctx context.Context, d *entities.WebhookDelivery) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.DeliveryStore.RecordDelivery(ctx, d)
}

func (s *ctxBoundDeliveries) ScheduleRetry(ctx context.Context, job *entities.RetryJob) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.DeliveryStore.ScheduleRetry(ctx, job)
}

func (s *ctxBoundDeliveries) ClaimDueRetries(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]entities.RetryJob, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	jobs, err := s.DeliveryStore.ClaimDueRetries(ctx, now, lease, limit)
	if s.afterClaim != nil {
		s.afterClaim()
	}
	return jobs, err
}

func (s *ctxBoundDeliveries) CompleteRetry(ctx context.Context, id int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.DeliveryStore.CompleteRetry(ctx, id)
}

func (s *ctxBoundDeliveries) RescheduleRetry(ctx context.Context, id int64, runAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.DeliveryStore.RescheduleRetry(ctx, id, runAt)
}

// brokenDeliveries fails the writes whose error is set.
type brokenDeliveries struct {
	interfaces.DeliveryStore
	recordErr   error
	scheduleErr error
}

func (s *brokenDeliveries) RecordDelivery(ctx context.Context, d *entities.WebhookDelivery) error {
	if s.recordErr != nil {
		return s.recordErr
	}
	return s.DeliveryStore.RecordDelivery(ctx, d)
}

func (s *brokenDeliveries) ScheduleRetry(ctx context.Context, job *entities.RetryJob) error {
	if s.scheduleErr != nil {
		return s.scheduleErr
	}
	return s.DeliveryStore.ScheduleRetry(ctx, job)
}

func (e *env) dispatcherWith(t *testing.T, deliveries interfaces.DeliveryStore) *WebhookDispatcher {
	return NewWebhookDispatcher(e.db.Webhooks(), deliveries, DispatcherConfig{Timeout: 2 * time.Second, Workers: 2},
		e.clock, nil, zaptest.NewLogger(t))
}

func (e *env) queueRetry(t *testing.T, hookID int64, event string, attempt int) {
	t.Helper()
	require.NoError(t, e.db.Deliveries().ScheduleRetry(context.Background(), &entities.RetryJob{
		WebhookID: hookID, Event: event, Data: json.RawMessage(`{}`), Attempt: attempt, RunAt: e.clock.Now(),
	}))
}

func TestRetryWorker_ShutdownAfterClaimKeepsJob(t *testing.T) {
	e := newEnv(t)
	rec, srv := newSubscriber(t, http.StatusOK, "")
	hook := e.webhook(t, 1, srv.URL, "", entities.EventClientCreated)
	e.queueRetry(t, hook.ID, entities.EventClientCreated, 2)

	ctx, cancel := context.WithCancel(context.Background())
	store := &ctxBoundDeliveries{DeliveryStore: e.db.Deliveries(), afterClaim: cancel}
	w := NewRetryWorker(store, e.db.Webhooks(), e.dispatcherWith(t, store), time.Second, e.clock, zaptest.NewLogger(t))

	n, err := w.RunOnce(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.Zero(t, n)
	require.Zero(t, rec.count())
	require.Empty(t, e.db.Deliveries().All())
	pending := e.db.Deliveries().Pending()
	require.Len(t, pending, 1, "a claimed job survives the shutdown")
	require.Equal(t, 2, pending[0].Attempt)
	require.True(t, pending[0].RunAt.Equal(epoch), "released jobs are due again at once")

	store.afterClaim = nil
	n, err = w.RunOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, 1, rec.count())
	require.Len(t, e.db.Deliveries().All(), 1)
	require.Empty(t, e.db.Deliveries().Pending())
}

func TestRetryWorker_ShutdownDuringDeliveryStillRecords(t *testing.T) {
	e := newEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		cancel()
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	hook := e.webhook(t, 1, srv.URL, "", entities.EventClientCreated)
	e.queueRetry(t, hook.ID, entities.EventClientCreated, 2)

	store := &ctxBoundDeliveries{DeliveryStore: e.db.Deliveries()}
	w := NewRetryWorker(store, e.db.Webhooks(), e.dispatcherWith(t, store), time.Second, e.clock, zaptest.NewLogger(t))

	n, err := w.RunOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	all := e.db.Deliveries().All()
	require.Len(t, all, 1)
	require.Equal(t, entities.DeliverySuccess, all[0].Status)
	require.Empty(t, e.db.Deliveries().Pending())
}

func TestRetryWorker_PicksUpExpiredLease(t *testing.T) {
	e := newEnv(t)
	rec, srv := newSubscriber(t, http.StatusOK, "")
	hook := e.webhook(t, 1, srv.URL, "", entities.EventClientCreated)
	e.queueRetry(t, hook.ID, entities.EventClientCreated, 2)
	ctx := context.Background()

	// Another worker claimed the job and died before finishing it.
	claimed, err := e.db.Deliveries().ClaimDueRetries(ctx, e.clock.Now(), retryLease, 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	w := NewRetryWorker(e.db.Deliveries(), e.db.Webhooks(), e.dispatcher(t), time.Second, e.clock, zaptest.NewLogger(t))
	n, err := w.RunOnce(ctx)
	require.NoError(t, err)
	require.Zero(t, n)
	require.Zero(t, rec.count())

	e.clock.Add(retryLease)
	n, err = w.RunOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, 1, rec.count())
	require.Empty(t, e.db.Deliveries().Pending())
}

func TestRetryWorker_KeepsJobWhenNextAttemptCannotBeQueued(t *testing.T) {
	e := newEnv(t)
	_, srv := newSubscriber(t, http.StatusBadGateway, "")
	hook := e.webhook(t, 1, srv.URL, "", entities.EventClientCreated)
	e.queueRetry(t, hook.ID, entities.EventClientCreated, 2)

	store := &brokenDeliveries{DeliveryStore: e.db.Deliveries(), scheduleErr: errors.New("disk full")}
	w := NewRetryWorker(store, e.db.Webhooks(), e.dispatcherWith(t, store), time.Second, e.clock, zaptest.NewLogger(t))

	n, err := w.RunOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, n)
	pending := e.db.Deliveries().Pending()
	require.Len(t, pending, 1)
	require.Equal(t, 2, pending[0].Attempt)
	require.True(t, pending[0].RunAt.Equal(epoch.Add(retryLease)))
}

func TestRetryWorker_DropsEventsTheHookNoLongerReceives(t *testing.T) {
	e := newEnv(t)
	rec, srv := newSubscriber(t, http.StatusOK, "")
	hook := e.webhook(t, 1, srv.URL, "", entities.EventClientCreated)
	e.queueRetry(t, hook.ID, entities.EventFollowUpCompleted, 2)

	w := NewRetryWorker(e.db.Deliveries(), e.db.Webhooks(), e.dispatcher(t), time.Second, e.clock, zaptest.NewLogger(t))
	n, err := w.RunOnce(context.Background())
	require.NoError(t, err)
	require.Zero(t, n)
	require.Zero(t, rec.count())
	require.Empty(t, e.db.Deliveries().Pending())
}

func TestDeliver_StoresBinaryResponseAsText(t *testing.T) {
	e := newEnv(t)
	_, srv := newSubscriber(t, http.StatusInternalServerError, string([]byte{0x1f, 0x8b, 0x00, 0xff, 0xfe}))
	hook := e.webhook(t, 1, srv.URL, "", entities.EventClientCreated)

	d, err := e.dispatcher(t).Deliver(context.Background(), hook, entities.EventClientCreated, json.RawMessage(`{}`), 1)
	require.NoError(t, err)
	require.True(t, utf8.ValidString(d.ResponseBody))
	require.NotContains(t, d.ResponseBody, "\x00")
	require.True(t, strings.HasPrefix(d.ResponseBody, "\x1f"))
	require.Len(t, e.db.Deliveries().Pending(), 1)
}

func TestDeliver_SchedulesRetryWhenRecordingFails(t *testing.T) {
	e := newEnv(t)
	_, srv := newSubscriber(t, http.StatusInternalServerError, "")
	hook := e.webhook(t, 1, srv.URL, "", entities.EventClientCreated)
	store := &brokenDeliveries{DeliveryStore: e.db.Deliveries(), recordErr: errors.New("invalid byte sequence")}

	d, err := e.dispatcherWith(t, store).Deliver(context.Background(), hook, entities.EventClientCreated, json.RawMessage(`{}`), 1)
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrRetryNotQueued)
	require.Equal(t, entities.DeliveryFailed, d.Status)
	require.Empty(t, e.db.Deliveries().All())
	pending := e.db.Deliveries().Pending()
	require.Len(t, pending, 1)
	require.Equal(t, 2, pending[0].Attempt)
}

func TestDeliver_CancelledCallerStillStoresOutcome(t *testing.T) {
	e := newEnv(t)
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()
	hook := e.webhook(t, 1, url, "", entities.EventClientCreated)
	store := &ctxBoundDeliveries{DeliveryStore: e.db.Deliveries()}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d, err := e.dispatcherWith(t, store).Deliver(ctx, hook, entities.EventClientCreated, json.RawMessage(`{}`), 1)
	require.NoError(t, err)
	require.Equal(t, entities.DeliveryFailed, d.Status)
	require.Len(t, e.db.Deliveries().All(), 1)
	require.Len(t, e.db.Deliveries().Pending(), 1)
}

func TestDispatch_FullPartitionFallsBackToRetryQueue(t *testing.T) {
	e := newEnv(t)
	_, srv := newSubscriber(t, http.StatusOK, "")
	e.webhook(t, 1, srv.URL, "", entities.EventClientCreated)
	d := e.dispatcher(t)
	ctx := context.Background()

	// Workers are not started, so the hook's partition fills up.
	for i := 0; i < deliveryQueueSize+1; i++ {
		require.NoError(t, d.Dispatch(ctx, 1, entities.EventClientCreated, map[string]int{"n": i}))
	}
	pending := e.db.Deliveries().Pending()
	require.Len(t, pending, 1)
	require.Equal(t, 1, pending[0].Attempt)
	require.True(t, pending[0].RunAt.Equal(epoch))
	require.JSONEq(t, `{"n":100}`, string(pending[0].Data))

	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	d.Stop(stopCtx)
	require.NoError(t, d.Dispatch(ctx, 1, entities.EventClientCreated, map[string]int{"n": 101}))
	require.Len(t, e.db.Deliveries().Pending(), 2, "a stopped pool also hands events to the retry queue")
	require.EqualValues(t, 2, d.GetStats()["dropped"])
}
