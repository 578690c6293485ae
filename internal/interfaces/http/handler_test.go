package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/time/rate"

	"tracker_suite/internal/entities"
	"tracker_suite/internal/infrastructure"
	"tracker_suite/internal/testutil"
	"tracker_suite/internal/usecases"
)

var epoch = time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

type pinger struct{ err error }

func (p *pinger) Ping(context.Context) error { return p.err }

type server struct {
	t      *testing.T
	clock  *clock.Mock
	db     *testutil.DB
	auth   *usecases.AuthUsecase
	pinger *pinger
	router *gin.Engine
}

func newServer(t *testing.T) *server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	clk := clock.NewMock()
	clk.Set(epoch)
	db := testutil.NewDB(clk)
	log := zaptest.NewLogger(t)
	cache := infrastructure.NewVersionedCache(time.Minute)

	journey := usecases.NewJourneyService(usecases.JourneyStores{
		Journey:      db.Journey(),
		Users:        db.Users(),
		Clients:      db.Clients(),
		FollowUps:    db.FollowUps(),
		Interactions: db.Interactions(),
		Webhooks:     db.Webhooks(),
	}, clk, log)
	dispatcher := usecases.NewWebhookDispatcher(db.Webhooks(), db.Deliveries(), usecases.DispatcherConfig{
		Timeout: time.Second,
		Workers: 1,
	}, clk, nil, log)
	events := usecases.NewEventBus(nil, journey, log)
	monitor := usecases.NewTrialMonitor(db.Users(), &testutil.Locker{}, &testutil.Mailer{}, &testutil.Notifier{},
		usecases.TrialMonitorConfig{}, clk, nil, log)

	auth := usecases.NewAuthUsecase(db.Users(), journey, "test-session-secret", entities.DefaultTrialDays, clk, log)
	svc := Services{
		Auth:         auth,
		Clients:      usecases.NewClientUsecase(db.Clients(), cache, events),
		FollowUps:    usecases.NewFollowUpUsecase(db.FollowUps(), db.Clients(), cache, events, clk),
		Interactions: usecases.NewInteractionUsecase(db.Interactions(), db.Clients(), cache, events, clk, log),
		Webhooks:     usecases.NewWebhookUsecase(db.Webhooks(), db.Deliveries(), dispatcher, journey, cache),
		Dashboard:    usecases.NewDashboardUsecase(db.Stats(), cache, clk),
		Journey:      journey,
		Admin:        usecases.NewAdminUsecase(db.Users(), journey, monitor, cache, clk, log),
		Runtime:      map[string]StatsProvider{"cache": cache},
	}

	p := &pinger{}
	registry := prometheus.NewRegistry()
	m := NewMiddleware(auth, infrastructure.NewUserRateLimiter(rate.Inf, 1), MiddlewareConfig{
		AllowedOrigins: []string{"https://app.example.com"},
	}, clk, infrastructure.NewHTTPMetrics(registry), log)
	h := NewHandler(svc, NewHealthHandler(p, clk, log), false, log)

	return &server{t: t, clock: clk, db: db, auth: auth, pinger: p, router: NewRouter(h, m, registry)}
}

// user stores a user directly and returns it with a bearer token.
func (s *server) user(email string, mutate ...func(u *entities.User)) (*entities.User, string) {
	s.t.Helper()
	u := &entities.User{
		Email:         email,
		Name:          "Test User",
		Role:          entities.RoleIndividual,
		AdminRole:     entities.AdminRoleUser,
		AccountStatus: entities.StatusTrial,
		TrialEndsAt:   s.clock.Now().AddDate(0, 0, entities.DefaultTrialDays),
	}
	for _, fn := range mutate {
		fn(u)
	}
	require.NoError(s.t, s.db.Users().Create(context.Background(), u))
	token, err := s.auth.IssueToken(u)
	require.NoError(s.t, err)
	return u, token
}

type request struct {
	method, path string
	body         interface{}
	token        string
	cookie       *http.Cookie
	header       map[string]string
}

func (s *server) do(r request) *httptest.ResponseRecorder {
	s.t.Helper()
	var body bytes.Buffer
	if r.body != nil {
		require.NoError(s.t, json.NewEncoder(&body).Encode(r.body))
	}
	req := httptest.NewRequest(r.method, r.path, &body)
	req.Header.Set("Content-Type", "application/json")
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}
	if r.cookie != nil {
		req.AddCookie(r.cookie)
	}
	for k, v := range r.header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), out), w.Body.String())
}

func sessionCookie(w *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range w.Result().Cookies() {
		if c.Name == SessionCookie {
			return c
		}
	}
	return nil
}

func TestRegisterLoginAndCookieSession(t *testing.T) {
	s := newServer(t)

	w := s.do(request{method: http.MethodPost, path: "/api/auth/register", body: map[string]string{
		"email":    "New@Example.com",
		"password": "correct-horse",
		"name":     "New User",
	}})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var reg struct {
		User  entities.User `json:"user"`
		Token string        `json:"token"`
	}
	decode(t, w, &reg)
	require.Equal(t, "new@example.com", reg.User.Email)
	require.Equal(t, entities.StatusTrial, reg.User.AccountStatus)
	require.NotEmpty(t, reg.Token)

	cookie := sessionCookie(w)
	require.NotNil(t, cookie)
	require.True(t, cookie.HttpOnly)

	w = s.do(request{method: http.MethodGet, path: "/api/auth/me", cookie: cookie})
	require.Equal(t, http.StatusOK, w.Code)
	var me struct {
		User entities.User `json:"user"`
	}
	decode(t, w, &me)
	require.Equal(t, reg.User.ID, me.User.ID)
	require.Nil(t, sessionCookie(w), "fresh sessions are not re-issued")

	w = s.do(request{method: http.MethodPost, path: "/api/auth/login", body: map[string]string{
		"email": "new@example.com", "password": "wrong-password",
	}})
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(request{method: http.MethodPost, path: "/api/auth/login", body: map[string]string{
		"email": "new@example.com", "password": "correct-horse",
	}})
	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, sessionCookie(w))

	w = s.do(request{method: http.MethodPost, path: "/api/auth/register", body: map[string]string{
		"email": "new@example.com", "password": "another-pass", "name": "Dup",
	}})
	require.Equal(t, http.StatusConflict, w.Code)
}

func TestCookieSessionSlides(t *testing.T) {
	s := newServer(t)
	_, token := s.user("slide@example.com")
	cookie := &http.Cookie{Name: SessionCookie, Value: token}

	s.clock.Add(20 * time.Minute)
	w := s.do(request{method: http.MethodGet, path: "/api/auth/me", cookie: cookie})
	require.Equal(t, http.StatusOK, w.Code)
	refreshed := sessionCookie(w)
	require.NotNil(t, refreshed)
	require.NotEqual(t, token, refreshed.Value)

	s.clock.Add(usecases.SessionTTL)
	w = s.do(request{method: http.MethodGet, path: "/api/auth/me", cookie: cookie})
	require.Equal(t, http.StatusUnauthorized, w.Code)
	cleared := sessionCookie(w)
	require.NotNil(t, cleared)
	require.Empty(t, cleared.Value)
}

func TestAuthRequired(t *testing.T) {
	s := newServer(t)

	w := s.do(request{method: http.MethodGet, path: "/api/clients"})
	require.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(request{method: http.MethodGet, path: "/api/clients", token: "not-a-token"})
	require.Equal(t, http.StatusUnauthorized, w.Code)
	var body map[string]string
	decode(t, w, &body)
	require.Equal(t, entities.EUnauthorized, body["code"])
}

func TestSubscriptionRequired(t *testing.T) {
	s := newServer(t)
	_, token := s.user("lapsed@example.com", func(u *entities.User) {
		u.AccountStatus = entities.StatusExpired
		u.TrialEndsAt = epoch.Add(-time.Hour)
	})

	for _, path := range []string{"/api/clients", "/api/v1/clients", "/api/dashboard/stats"} {
		w := s.do(request{method: http.MethodGet, path: path, token: token})
		require.Equal(t, http.StatusPaymentRequired, w.Code, path)
		var body map[string]interface{}
		decode(t, w, &body)
		require.Equal(t, "subscription_required", body["code"])
		require.Equal(t, entities.StatusExpired, body["account_status"])
	}

	w := s.do(request{method: http.MethodGet, path: "/api/journey/progress", token: token})
	require.Equal(t, http.StatusOK, w.Code, "journey stays reachable")
	w = s.do(request{method: http.MethodGet, path: "/api/auth/me", token: token})
	require.Equal(t, http.StatusOK, w.Code)
}

func TestCreateClient_Validation(t *testing.T) {
	s := newServer(t)
	_, token := s.user("owner@example.com")

	w := s.do(request{method: http.MethodPost, path: "/api/clients", token: token, body: map[string]string{
		"email":    "not-an-email",
		"priority": "urgent",
	}})
	require.Equal(t, http.StatusBadRequest, w.Code)
	var body struct {
		Error  string            `json:"error"`
		Fields map[string]string `json:"fields"`
	}
	decode(t, w, &body)
	require.Equal(t, "validation failed", body.Error)
	require.Equal(t, "is required", body.Fields["name"])
	require.Equal(t, "must be a valid email address", body.Fields["email"])
	require.Equal(t, "must be one of: low medium high", body.Fields["priority"])

	req := httptest.NewRequest(http.MethodPost, "/api/clients", strings.NewReader("{"))
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestClientOwnership(t *testing.T) {
	s := newServer(t)
	_, alice := s.user("alice@example.com")
	_, bob := s.user("bob@example.com")

	w := s.do(request{method: http.MethodPost, path: "/api/clients", token: alice, body: map[string]string{"name": "Acme"}})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created entities.Client
	decode(t, w, &created)

	path := "/api/clients/" + itoa(created.ID)
	w = s.do(request{method: http.MethodGet, path: path, token: bob})
	require.Equal(t, http.StatusForbidden, w.Code)
	w = s.do(request{method: http.MethodDelete, path: path, token: bob})
	require.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(request{method: http.MethodGet, path: "/api/clients/9999", token: alice})
	require.Equal(t, http.StatusNotFound, w.Code)
	w = s.do(request{method: http.MethodGet, path: "/api/clients/abc", token: alice})
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(request{method: http.MethodPatch, path: path, token: alice, body: map[string]string{"status": "active"}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(request{method: http.MethodDelete, path: path, token: alice})
	require.Equal(t, http.StatusOK, w.Code)
	var deleted map[string]interface{}
	decode(t, w, &deleted)
	require.Equal(t, "client deleted", deleted["message"])

	w = s.do(request{method: http.MethodGet, path: path, token: alice})
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestListClients_BareArrayAndEnvelope(t *testing.T) {
	s := newServer(t)
	_, token := s.user("lists@example.com")
	for _, name := range []string{"One", "Two", "Three"} {
		w := s.do(request{method: http.MethodPost, path: "/api/clients", token: token, body: map[string]string{"name": name}})
		require.Equal(t, http.StatusCreated, w.Code)
	}

	w := s.do(request{method: http.MethodGet, path: "/api/clients", token: token})
	require.Equal(t, http.StatusOK, w.Code)
	var bare []entities.Client
	decode(t, w, &bare)
	require.Len(t, bare, 3)

	w = s.do(request{method: http.MethodGet, path: "/api/v1/clients?limit=2&page=1", token: token})
	require.Equal(t, http.StatusOK, w.Code)
	var env struct {
		Data       []entities.Client   `json:"data"`
		Pagination entities.Pagination `json:"pagination"`
	}
	decode(t, w, &env)
	require.Len(t, env.Data, 2)
	require.Equal(t, entities.Pagination{Page: 1, Limit: 2, Total: 3, TotalPages: 2, HasNext: true}, env.Pagination)
}

func TestJourneyAfterFirstClient(t *testing.T) {
	s := newServer(t)
	w := s.do(request{method: http.MethodPost, path: "/api/auth/register", body: map[string]string{
		"email": "journey@example.com", "password": "correct-horse", "name": "J",
	}})
	require.Equal(t, http.StatusCreated, w.Code)
	var reg struct {
		Token string `json:"token"`
	}
	decode(t, w, &reg)

	w = s.do(request{method: http.MethodPost, path: "/api/clients", token: reg.Token, body: map[string]string{"name": "First"}})
	require.Equal(t, http.StatusCreated, w.Code)

	w = s.do(request{method: http.MethodGet, path: "/api/journey/progress", token: reg.Token})
	require.Equal(t, http.StatusOK, w.Code)
	var progress entities.JourneyProgress
	decode(t, w, &progress)
	require.Equal(t, 35, progress.TotalPoints)

	w = s.do(request{method: http.MethodPost, path: "/api/journey/milestones/unknown_thing/complete", token: reg.Token})
	require.Equal(t, http.StatusNotFound, w.Code)
	w = s.do(request{method: http.MethodPost, path: "/api/journey/milestones/" + entities.MilestoneFirstClient + "/complete", token: reg.Token})
	require.Equal(t, http.StatusBadRequest, w.Code)

	path := "/api/journey/milestones/" + entities.MilestoneDashboardTourCompleted + "/complete"
	var out struct {
		Completed bool                     `json:"completed"`
		Progress  entities.JourneyProgress `json:"progress"`
	}
	w = s.do(request{method: http.MethodPost, path: path, token: reg.Token})
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &out)
	require.True(t, out.Completed)
	w = s.do(request{method: http.MethodPost, path: path, token: reg.Token})
	decode(t, w, &out)
	require.False(t, out.Completed)
}

func TestAdminRoutes(t *testing.T) {
	s := newServer(t)
	_, user := s.user("plain@example.com")
	staff, staffToken := s.user("staff@example.com", func(u *entities.User) { u.AdminRole = entities.AdminRoleAdmin })
	_, masterToken := s.user("master@example.com", func(u *entities.User) { u.AdminRole = entities.AdminRoleMaster })

	w := s.do(request{method: http.MethodGet, path: "/api/admin/stats", token: user})
	require.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(request{method: http.MethodGet, path: "/api/admin/users?limit=2", token: staffToken})
	require.Equal(t, http.StatusOK, w.Code)
	var page struct {
		Data       []entities.User     `json:"data"`
		Pagination entities.Pagination `json:"pagination"`
	}
	decode(t, w, &page)
	require.Len(t, page.Data, 2)
	require.Equal(t, 3, page.Pagination.Total)

	rolePath := "/api/admin/users/" + itoa(staff.ID) + "/role"
	w = s.do(request{method: http.MethodPut, path: rolePath, token: staffToken, body: map[string]string{"role": "user"}})
	require.Equal(t, http.StatusForbidden, w.Code)
	w = s.do(request{method: http.MethodPut, path: rolePath, token: masterToken, body: map[string]string{"role": "superuser"}})
	require.Equal(t, http.StatusBadRequest, w.Code)
	w = s.do(request{method: http.MethodPut, path: rolePath, token: masterToken, body: map[string]string{"role": "user"}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(request{method: http.MethodGet, path: "/api/admin/stats", token: staffToken})
	require.Equal(t, http.StatusForbidden, w.Code, "demoted admins lose access on the next request")
}

func TestHealthAndReady(t *testing.T) {
	s := newServer(t)

	w := s.do(request{method: http.MethodGet, path: "/health"})
	require.Equal(t, http.StatusOK, w.Code)
	require.NotEmpty(t, w.Header().Get(requestIDHeader))
	require.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))

	w = s.do(request{method: http.MethodGet, path: "/ready"})
	require.Equal(t, http.StatusOK, w.Code)

	s.pinger.err = errors.New("connection refused")
	w = s.do(request{method: http.MethodGet, path: "/ready"})
	require.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = s.do(request{method: http.MethodGet, path: "/metrics"})
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "http_requests_total")
}

func TestCORS(t *testing.T) {
	s := newServer(t)

	w := s.do(request{method: http.MethodOptions, path: "/api/clients", header: map[string]string{
		"Origin": "https://app.example.com",
	}})
	require.Equal(t, http.StatusNoContent, w.Code)
	require.Equal(t, "https://app.example.com", w.Header().Get("Access-Control-Allow-Origin"))
	require.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))

	w = s.do(request{method: http.MethodGet, path: "/health", header: map[string]string{
		"Origin": "https://evil.example.com",
	}})
	require.Equal(t, http.StatusOK, w.Code)
	require.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestRequestIDPropagates(t *testing.T) {
	s := newServer(t)
	w := s.do(request{method: http.MethodGet, path: "/health", header: map[string]string{requestIDHeader: "req-123"}})
	require.Equal(t, "req-123", w.Header().Get(requestIDHeader))
}

func itoa(id int64) string { return strconv.FormatInt(id, 10) }

func TestRequestsCarryDeadline(t *testing.T) {
	s := newServer(t)
	var remaining time.Duration
	s.router.GET("/deadline", func(c *gin.Context) {
		deadline, ok := c.Request.Context().Deadline()
		require.True(t, ok)
		remaining = time.Until(deadline)
		c.Status(http.StatusNoContent)
	})

	w := s.do(request{method: http.MethodGet, path: "/deadline"})
	require.Equal(t, http.StatusNoContent, w.Code)
	require.Greater(t, remaining, time.Duration(0))
	require.LessOrEqual(t, remaining, requestTimeout)
}

func TestFollowUpsReportOverdue(t *testing.T) {
	s := newServer(t)
	_, token := s.user("late@example.com")

	w := s.do(request{method: http.MethodPost, path: "/api/clients", token: token, body: map[string]string{"name": "Acme"}})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var c entities.Client
	decode(t, w, &c)

	w = s.do(request{method: http.MethodPost, path: "/api/follow-ups", token: token, body: map[string]interface{}{
		"client_id": c.ID,
		"title":     "Call back",
		"due_date":  epoch.Add(time.Hour),
	}})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created entities.FollowUp
	decode(t, w, &created)
	require.Equal(t, entities.FollowUpPending, created.Status)

	s.clock.Add(2 * time.Hour)
	path := "/api/follow-ups/" + itoa(created.ID)

	w = s.do(request{method: http.MethodGet, path: path, token: token})
	require.Equal(t, http.StatusOK, w.Code)
	var got entities.FollowUp
	decode(t, w, &got)
	require.Equal(t, entities.FollowUpOverdue, got.Status)

	for _, p := range []string{"/api/follow-ups", "/api/follow-ups?status=overdue"} {
		w = s.do(request{method: http.MethodGet, path: p, token: token})
		require.Equal(t, http.StatusOK, w.Code)
		var list []entities.FollowUp
		decode(t, w, &list)
		require.Len(t, list, 1, p)
		require.Equal(t, entities.FollowUpOverdue, list[0].Status, p)
	}

	w = s.do(request{method: http.MethodPatch, path: path, token: token, body: map[string]string{"title": "Call back today"}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	decode(t, w, &got)
	require.Equal(t, entities.FollowUpOverdue, got.Status)
	stored, err := s.db.FollowUps().GetByID(context.Background(), created.ID)
	require.NoError(t, err)
	require.Equal(t, entities.FollowUpPending, stored.Status, "overdue is derived, not stored")

	w = s.do(request{method: http.MethodPost, path: path + "/complete", token: token})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	decode(t, w, &got)
	require.Equal(t, entities.FollowUpCompleted, got.Status)
}
