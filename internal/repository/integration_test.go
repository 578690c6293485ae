//go:build integration

package repository_test

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	testcontainers "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"tracker_suite/internal/entities"
	"tracker_suite/internal/infrastructure"
	"tracker_suite/internal/repository"
)

var db *infrastructure.PostgresClient

// TestMain uses TRACKER_TEST_DATABASE_URL when set and a throwaway Postgres container otherwise.
func TestMain(m *testing.M) {
	ctx := context.Background()
	url := os.Getenv("TRACKER_TEST_DATABASE_URL")

	var container testcontainers.Container
	if url == "" {
		var err error
		container, err = testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
			ContainerRequest: testcontainers.ContainerRequest{
				Image:        "postgres:15-alpine",
				ExposedPorts: []string{"5432/tcp"},
				Env: map[string]string{
					"POSTGRES_USER":     "tracker",
					"POSTGRES_PASSWORD": "tracker",
					"POSTGRES_DB":       "tracker_test",
				},
				WaitingFor: wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(time.Minute),
			},
			Started: true,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start postgres container: %v\n", err)
			os.Exit(1)
		}
		host, err := container.Host(ctx)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		port, err := container.MappedPort(ctx, "5432/tcp")
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		url = fmt.Sprintf("postgres://tracker:tracker@%s:%s/tracker_test?sslmode=disable", host, port.Port())
	}

	var err error
	db, err = infrastructure.NewPostgresClient(ctx, url, 5, zap.NewNop())
	if err == nil {
		err = db.Migrate(ctx)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to prepare database: %v\n", err)
		os.Exit(1)
	}

	code := m.Run()

	db.Close()
	if container != nil {
		_ = container.Terminate(ctx)
	}
	os.Exit(code)
}

func newUser(t *testing.T) *entities.User {
	t.Helper()
	u := &entities.User{
		Email:         uuid.NewString() + "@example.com",
		PasswordHash:  "x",
		Name:          "Integration",
		Role:          entities.RoleIndividual,
		AdminRole:     entities.AdminRoleUser,
		AccountStatus: entities.StatusTrial,
		TrialEndsAt:   time.Now().Add(7 * 24 * time.Hour),
	}
	require.NoError(t, repository.NewUserRepository(db.Pool).Create(context.Background(), u))
	return u
}

func TestUserRepository_Lifecycle(t *testing.T) {
	ctx := context.Background()
	users := repository.NewUserRepository(db.Pool)
	u := newUser(t)

	dup := *u
	dup.ID = 0
	require.ErrorIs(t, users.Create(ctx, &dup), entities.ErrConflict)

	got, err := users.GetByEmail(ctx, u.Email)
	require.NoError(t, err)
	require.Equal(t, u.ID, got.ID)
	require.Equal(t, []string{}, got.Permissions)

	require.NoError(t, users.UpdatePermissions(ctx, u.ID, []string{"reports"}))
	require.NoError(t, users.UpdateStatus(ctx, u.ID, entities.StatusActive))
	got, err = users.GetByID(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"reports"}, got.Permissions)
	require.Equal(t, entities.StatusActive, got.AccountStatus)

	_, err = users.GetByID(ctx, -1)
	require.ErrorIs(t, err, entities.ErrNotFound)
}

func TestUserRepository_TrialQueries(t *testing.T) {
	ctx := context.Background()
	users := repository.NewUserRepository(db.Pool)
	u := newUser(t)
	now := time.Now()

	require.NoError(t, users.ExtendTrial(ctx, u.ID, now.Add(time.Hour)))
	ending, err := users.TrialsEndingBetween(ctx, now, now.Add(2*time.Hour))
	require.NoError(t, err)
	require.Contains(t, ids(ending), u.ID)

	require.NoError(t, users.MarkTrialWarningSent(ctx, u.ID))
	ending, err = users.TrialsEndingBetween(ctx, now, now.Add(2*time.Hour))
	require.NoError(t, err)
	require.NotContains(t, ids(ending), u.ID)

	ended, err := users.TrialsEndedBefore(ctx, now.Add(3*time.Hour))
	require.NoError(t, err)
	require.Contains(t, ids(ended), u.ID)

	flipped, err := users.ExpireTrial(ctx, u.ID)
	require.NoError(t, err)
	require.True(t, flipped)
	flipped, err = users.ExpireTrial(ctx, u.ID)
	require.NoError(t, err)
	require.False(t, flipped, "only a trial can be expired")
}

func ids(users []entities.User) []int64 {
	out := make([]int64, len(users))
	for i, u := range users {
		out[i] = u.ID
	}
	return out
}

func TestClientRepository_DeleteCascades(t *testing.T) {
	ctx := context.Background()
	u := newUser(t)
	clients := repository.NewClientRepository(db.Pool)
	followUps := repository.NewFollowUpRepository(db.Pool)
	interactions := repository.NewInteractionRepository(db.Pool)

	c := (&entities.ClientInput{Name: "Acme", Tags: []string{"vip"}}).Client(u.ID)
	require.NoError(t, clients.Create(ctx, c))
	f := (&entities.FollowUpInput{ClientID: c.ID, Title: "Call", DueDate: time.Now().Add(time.Hour)}).FollowUp(u.ID)
	require.NoError(t, followUps.Create(ctx, f))
	i := &entities.Interaction{ClientID: c.ID, UserID: u.ID, Type: entities.InteractionCall, OccurredAt: time.Now()}
	require.NoError(t, interactions.Create(ctx, i))

	list, total, err := clients.List(ctx, u.ID, entities.ClientFilter{Tag: "vip"})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Equal(t, []string{"vip"}, list[0].Tags)

	require.NoError(t, clients.Delete(ctx, c.ID))
	_, err = followUps.GetByID(ctx, f.ID)
	require.ErrorIs(t, err, entities.ErrNotFound)
	_, err = interactions.GetByID(ctx, i.ID)
	require.ErrorIs(t, err, entities.ErrNotFound)
	require.ErrorIs(t, clients.Delete(ctx, c.ID), entities.ErrNotFound)
}

func TestFollowUpRepository_DerivedOverdue(t *testing.T) {
	ctx := context.Background()
	u := newUser(t)
	c := (&entities.ClientInput{Name: "Acme"}).Client(u.ID)
	require.NoError(t, repository.NewClientRepository(db.Pool).Create(ctx, c))
	followUps := repository.NewFollowUpRepository(db.Pool)
	now := time.Now()

	for _, due := range []time.Duration{-time.Hour, time.Hour} {
		f := (&entities.FollowUpInput{ClientID: c.ID, Title: "f", DueDate: now.Add(due)}).FollowUp(u.ID)
		require.NoError(t, followUps.Create(ctx, f))
	}

	overdue, total, err := followUps.List(ctx, u.ID, entities.FollowUpFilter{Status: entities.FollowUpOverdue}, now)
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.True(t, overdue[0].DueDate.Before(now))

	_, total, err = followUps.List(ctx, u.ID, entities.FollowUpFilter{Status: entities.FollowUpPending}, now)
	require.NoError(t, err)
	require.Equal(t, 1, total)
}

func TestDeliveryRepository_ClaimDueRetries(t *testing.T) {
	ctx := context.Background()
	u := newUser(t)
	hook := &entities.Webhook{UserID: u.ID, URL: "https://example.com/h", Events: []string{entities.EventClientCreated}, Active: true}
	require.NoError(t, repository.NewWebhookRepository(db.Pool).Create(ctx, hook))
	deliveries := repository.NewDeliveryRepository(db.Pool)
	now := time.Now()

	due := &entities.RetryJob{WebhookID: hook.ID, Event: entities.EventClientCreated, Data: json.RawMessage(`{"id":1}`), Attempt: 2, RunAt: now.Add(-time.Second)}
	later := &entities.RetryJob{WebhookID: hook.ID, Event: entities.EventClientCreated, Data: json.RawMessage(`{}`), Attempt: 2, RunAt: now.Add(time.Hour)}
	require.NoError(t, deliveries.ScheduleRetry(ctx, due))
	require.NoError(t, deliveries.ScheduleRetry(ctx, later))

	jobs, err := deliveries.ClaimDueRetries(ctx, now, time.Minute, 100)
	require.NoError(t, err)
	mine := forHook(jobs, hook.ID)
	require.Len(t, mine, 1)
	require.Equal(t, due.ID, mine[0].ID)
	require.JSONEq(t, `{"id":1}`, string(mine[0].Data))

	jobs, err = deliveries.ClaimDueRetries(ctx, now, time.Minute, 100)
	require.NoError(t, err)
	require.Empty(t, forHook(jobs, hook.ID), "leased jobs are hidden")

	jobs, err = deliveries.ClaimDueRetries(ctx, now.Add(2*time.Minute), time.Minute, 100)
	require.NoError(t, err)
	mine = forHook(jobs, hook.ID)
	require.Len(t, mine, 1, "an expired lease makes the job due again")
	require.Equal(t, due.ID, mine[0].ID)

	require.NoError(t, deliveries.RescheduleRetry(ctx, due.ID, now))
	jobs, err = deliveries.ClaimDueRetries(ctx, now, time.Minute, 100)
	require.NoError(t, err)
	require.Len(t, forHook(jobs, hook.ID), 1)

	require.NoError(t, deliveries.CompleteRetry(ctx, due.ID))
	jobs, err = deliveries.ClaimDueRetries(ctx, now.Add(time.Hour), time.Minute, 100)
	require.NoError(t, err)
	mine = forHook(jobs, hook.ID)
	require.Len(t, mine, 1)
	require.Equal(t, later.ID, mine[0].ID, "completed jobs are gone")

	d := &entities.WebhookDelivery{WebhookID: hook.ID, DeliveryID: uuid.NewString(), Event: entities.EventClientCreated,
		Payload: "{}", Status: entities.DeliveryFailed, ResponseCode: 500, Attempt: 1}
	require.NoError(t, deliveries.RecordDelivery(ctx, d))
	list, err := deliveries.ListDeliveries(ctx, hook.ID, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, 500, list[0].ResponseCode)
}

func forHook(jobs []entities.RetryJob, webhookID int64) []entities.RetryJob {
	var out []entities.RetryJob
	for _, j := range jobs {
		if j.WebhookID == webhookID {
			out = append(out, j)
		}
	}
	return out
}

func TestJourneyRepository_CompleteOnce(t *testing.T) {
	ctx := context.Background()
	u := newUser(t)
	journey := repository.NewJourneyRepository(db.Pool)
	now := time.Now()

	require.NoError(t, journey.Seed(ctx, u.ID, []string{entities.MilestoneAccountCreated}, now))
	rows, err := journey.ListMilestones(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, rows, len(entities.MilestoneCatalog))

	won, err := journey.CompleteMilestone(ctx, u.ID, entities.MilestoneFirstClient, now)
	require.NoError(t, err)
	require.True(t, won)
	won, err = journey.CompleteMilestone(ctx, u.ID, entities.MilestoneFirstClient, now)
	require.NoError(t, err)
	require.False(t, won)

	won, err = journey.CompleteMilestone(ctx, u.ID, entities.MilestoneAccountCreated, now)
	require.NoError(t, err)
	require.False(t, won, "seeded milestones are already complete")
}

func TestTryWithLock_IsExclusive(t *testing.T) {
	ctx := context.Background()
	name := "test:" + uuid.NewString()

	ran, err := db.TryWithLock(ctx, name, func(ctx context.Context) error {
		inner, err := db.TryWithLock(ctx, name, func(context.Context) error {
			t.Fatal("lock acquired twice")
			return nil
		})
		require.NoError(t, err)
		require.False(t, inner)
		return nil
	})
	require.NoError(t, err)
	require.True(t, ran)

	ran, err = db.TryWithLock(ctx, name, func(context.Context) error { return nil })
	require.NoError(t, err)
	require.True(t, ran, "the lock is released after fn returns")
}
