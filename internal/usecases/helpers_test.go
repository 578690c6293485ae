package usecases

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"tracker_suite/internal/entities"
	"tracker_suite/internal/infrastructure"
	"tracker_suite/internal/testutil"
)

var epoch = time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

type env struct {
	clock *clock.Mock
	db    *testutil.DB
	cache *infrastructure.VersionedCache
}

func newEnv(t *testing.T) *env {
	t.Helper()
	clk := clock.NewMock()
	clk.Set(epoch)
	return &env{
		clock: clk,
		db:    testutil.NewDB(clk),
		cache: infrastructure.NewVersionedCache(time.Minute),
	}
}

func (e *env) dispatcher(t *testing.T) *WebhookDispatcher {
	return NewWebhookDispatcher(e.db.Webhooks(), e.db.Deliveries(), DispatcherConfig{Timeout: 2 * time.Second, Workers: 2},
		e.clock, nil, zaptest.NewLogger(t))
}

func (e *env) journey(t *testing.T) *JourneyService {
	return NewJourneyService(JourneyStores{
		Journey:      e.db.Journey(),
		Users:        e.db.Users(),
		Clients:      e.db.Clients(),
		FollowUps:    e.db.FollowUps(),
		Interactions: e.db.Interactions(),
		Webhooks:     e.db.Webhooks(),
	}, e.clock, zaptest.NewLogger(t))
}

func (e *env) user(t *testing.T, email string, mutate ...func(u *entities.User)) *entities.User {
	t.Helper()
	u := &entities.User{
		Email:         email,
		Name:          "Test User",
		Role:          entities.RoleIndividual,
		AdminRole:     entities.AdminRoleUser,
		AccountStatus: entities.StatusTrial,
		TrialEndsAt:   e.clock.Now().AddDate(0, 0, entities.DefaultTrialDays),
	}
	for _, m := range mutate {
		m(u)
	}
	require.NoError(t, e.db.Users().Create(context.Background(), u))
	return u
}

func (e *env) client(t *testing.T, userID int64, name string) *entities.Client {
	t.Helper()
	c := (&entities.ClientInput{Name: name}).Client(userID)
	require.NoError(t, e.db.Clients().Create(context.Background(), c))
	return c
}

func (e *env) webhook(t *testing.T, userID int64, url, secret string, events ...string) *entities.Webhook {
	t.Helper()
	w := &entities.Webhook{UserID: userID, URL: url, Secret: secret, Events: events, Active: true}
	require.NoError(t, e.db.Webhooks().Create(context.Background(), w))
	return w
}
