// Package testutil provides in-memory implementations of the store ports for tests.
package testutil

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"tracker_suite/internal/entities"
	"tracker_suite/internal/interfaces"
)

// DB is a shared in-memory database. The store views returned by its accessors
// operate on the same data, so cascades behave like the Postgres repositories.
type DB struct {
	mu     sync.Mutex
	clock  clock.Clock
	nextID int64

	users        map[int64]*entities.User
	clients      map[int64]*entities.Client
	followUps    map[int64]*entities.FollowUp
	interactions map[int64]*entities.Interaction
	webhooks     map[int64]*entities.Webhook
	deliveries   []entities.WebhookDelivery
	retries      []entities.RetryJob
	milestones   map[int64]map[string]*entities.UserMilestone
	progress     map[int64]*entities.JourneyProgress

	// Err, when set, is returned by every store call.
	Err error
}

func NewDB(clk clock.Clock) *DB {
	return &DB{
		clock:        clk,
		users:        map[int64]*entities.User{},
		clients:      map[int64]*entities.Client{},
		followUps:    map[int64]*entities.FollowUp{},
		interactions: map[int64]*entities.Interaction{},
		webhooks:     map[int64]*entities.Webhook{},
		milestones:   map[int64]map[string]*entities.UserMilestone{},
		progress:     map[int64]*entities.JourneyProgress{},
	}
}

func (db *DB) Users() *Users               { return &Users{db} }
func (db *DB) Clients() *Clients           { return &Clients{db} }
func (db *DB) FollowUps() *FollowUps       { return &FollowUps{db} }
func (db *DB) Interactions() *Interactions { return &Interactions{db} }
func (db *DB) Webhooks() *Webhooks         { return &Webhooks{db} }
func (db *DB) Deliveries() *Deliveries     { return &Deliveries{db} }
func (db *DB) Journey() *Journey           { return &Journey{db} }

func (db *DB) id() int64 {
	db.nextID++
	return db.nextID
}

func paginate[T any](items []T, page, limit int) []T {
	off := entities.Offset(page, limit)
	_, limit = entities.NormalizePage(page, limit)
	if off >= len(items) {
		return []T{}
	}
	end := off + limit
	if end > len(items) {
		end = len(items)
	}
	return items[off:end]
}

// Users implements interfaces.UserStore.
type Users struct{ db *DB }

var _ interfaces.UserStore = (*Users)(nil)

func (s *Users) Create(_ context.Context, u *entities.User) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if s.db.Err != nil {
		return s.db.Err
	}
	for _, existing := range s.db.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return entities.Conflict("email already registered")
		}
	}
	now := s.db.clock.Now()
	u.ID = s.db.id()
	u.CreatedAt, u.UpdatedAt = now, now
	cp := *u
	s.db.users[u.ID] = &cp
	return nil
}

func (s *Users) GetByID(_ context.Context, id int64) (*entities.User, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if s.db.Err != nil {
		return nil, s.db.Err
	}
	u, ok := s.db.users[id]
	if !ok {
		return nil, entities.NotFound("user")
	}
	cp := *u
	return &cp, nil
}

func (s *Users) GetByEmail(_ context.Context, email string) (*entities.User, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if s.db.Err != nil {
		return nil, s.db.Err
	}
	for _, u := range s.db.users {
		if strings.EqualFold(u.Email, email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, entities.NotFound("user")
}

func (s *Users) List(_ context.Context, f entities.UserFilter) ([]entities.User, int, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	var out []entities.User
	for _, u := range s.db.users {
		if f.Status != "" && u.AccountStatus != f.Status {
			continue
		}
		if f.Search != "" && !strings.Contains(strings.ToLower(u.Email+" "+u.Name), strings.ToLower(f.Search)) {
			continue
		}
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return paginate(out, f.Page, f.Limit), len(out), nil
}

func (s *Users) update(id int64, fn func(u *entities.User)) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if s.db.Err != nil {
		return s.db.Err
	}
	u, ok := s.db.users[id]
	if !ok {
		return entities.NotFound("user")
	}
	fn(u)
	u.UpdatedAt = s.db.clock.Now()
	return nil
}

func (s *Users) UpdatePassword(_ context.Context, id int64, hash string) error {
	return s.update(id, func(u *entities.User) { u.PasswordHash = hash })
}

func (s *Users) UpdateLastLogin(_ context.Context, id int64, at time.Time) error {
	return s.update(id, func(u *entities.User) { u.LastLoginAt = &at })
}

func (s *Users) UpdateStatus(_ context.Context, id int64, status string) error {
	return s.update(id, func(u *entities.User) { u.AccountStatus = status })
}

func (s *Users) UpdateAdminRole(_ context.Context, id int64, role string) error {
	return s.update(id, func(u *entities.User) { u.AdminRole = role })
}

func (s *Users) UpdatePermissions(_ context.Context, id int64, perms []string) error {
	return s.update(id, func(u *entities.User) { u.Permissions = perms })
}

func (s *Users) ExtendTrial(_ context.Context, id int64, endsAt time.Time) error {
	return s.update(id, func(u *entities.User) {
		u.TrialEndsAt = endsAt
		u.AccountStatus = entities.StatusTrial
		u.TrialWarningSent = false
	})
}

func (s *Users) trials(match func(u *entities.User) bool) ([]entities.User, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if s.db.Err != nil {
		return nil, s.db.Err
	}
	var out []entities.User
	for _, u := range s.db.users {
		if u.AccountStatus == entities.StatusTrial && match(u) {
			out = append(out, *u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Users) TrialsEndingBetween(_ context.Context, from, to time.Time) ([]entities.User, error) {
	return s.trials(func(u *entities.User) bool {
		return !u.TrialWarningSent && !u.TrialEndsAt.Before(from) && u.TrialEndsAt.Before(to)
	})
}

func (s *Users) TrialsEndedBefore(_ context.Context, t time.Time) ([]entities.User, error) {
	return s.trials(func(u *entities.User) bool { return !u.TrialEndsAt.After(t) })
}

func (s *Users) MarkTrialWarningSent(_ context.Context, id int64) error {
	return s.update(id, func(u *entities.User) { u.TrialWarningSent = true })
}

func (s *Users) ExpireTrial(_ context.Context, id int64) (bool, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if s.db.Err != nil {
		return false, s.db.Err
	}
	u, ok := s.db.users[id]
	if !ok || u.AccountStatus != entities.StatusTrial {
		return false, nil
	}
	u.AccountStatus = entities.StatusExpired
	return true, nil
}

func (s *Users) Delete(_ context.Context, id int64) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if _, ok := s.db.users[id]; !ok {
		return entities.NotFound("user")
	}
	for cid, c := range s.db.clients {
		if c.UserID == id {
			s.db.deleteClient(cid)
		}
	}
	for wid, w := range s.db.webhooks {
		if w.UserID == id {
			delete(s.db.webhooks, wid)
		}
	}
	delete(s.db.milestones, id)
	delete(s.db.progress, id)
	delete(s.db.users, id)
	return nil
}

func (s *Users) Stats(_ context.Context, now time.Time) (*entities.UserStats, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	st := &entities.UserStats{ByStatus: map[string]int{}, ByRole: map[string]int{}}
	for _, u := range s.db.users {
		st.TotalUsers++
		st.ByStatus[u.AccountStatus]++
		st.ByRole[u.Role]++
		if u.IsAdmin() {
			st.AdminCount++
		}
		if u.CreatedAt.After(now.AddDate(0, 0, -7)) {
			st.NewLast7Days++
		}
	}
	st.TotalClients = len(s.db.clients)
	st.TotalFollowUps = len(s.db.followUps)
	st.TotalInteraction = len(s.db.interactions)
	st.TotalWebhooks = len(s.db.webhooks)
	for _, d := range s.db.deliveries {
		if d.Status == entities.DeliveryFailed && d.CreatedAt.After(now.Add(-24*time.Hour)) {
			st.FailedDeliveries++
		}
	}
	return st, nil
}

// Clients implements interfaces.ClientStore.
type Clients struct{ db *DB }

var _ interfaces.ClientStore = (*Clients)(nil)

func (s *Clients) Create(_ context.Context, c *entities.Client) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if s.db.Err != nil {
		return s.db.Err
	}
	now := s.db.clock.Now()
	c.ID = s.db.id()
	c.CreatedAt, c.UpdatedAt = now, now
	cp := *c
	s.db.clients[c.ID] = &cp
	return nil
}

func (s *Clients) GetByID(_ context.Context, id int64) (*entities.Client, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if s.db.Err != nil {
		return nil, s.db.Err
	}
	c, ok := s.db.clients[id]
	if !ok {
		return nil, entities.NotFound("client")
	}
	cp := *c
	return &cp, nil
}

func (s *Clients) List(_ context.Context, userID int64, f entities.ClientFilter) ([]entities.Client, int, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if s.db.Err != nil {
		return nil, 0, s.db.Err
	}
	search := strings.ToLower(f.Search)
	out := []entities.Client{}
	for _, c := range s.db.clients {
		if c.UserID != userID ||
			(f.Status != "" && c.Status != f.Status) ||
			(f.Priority != "" && c.Priority != f.Priority) ||
			(f.Category != "" && c.Category != f.Category) ||
			(f.Source != "" && c.Source != f.Source) {
			continue
		}
		if f.Tag != "" && !hasTag(c.Tags, f.Tag) {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(c.Name+" "+c.Email+" "+c.Company+" "+c.Phone), search) {
			continue
		}
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return paginate(out, f.Page, f.Limit), len(out), nil
}

func hasTag(tags []string, tag string) bool {
	for _, t := range tags {
		if t == tag {
			return true
		}
	}
	return false
}

func (s *Clients) Update(_ context.Context, c *entities.Client) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if _, ok := s.db.clients[c.ID]; !ok {
		return entities.NotFound("client")
	}
	c.UpdatedAt = s.db.clock.Now()
	cp := *c
	s.db.clients[c.ID] = &cp
	return nil
}

func (s *Clients) Delete(_ context.Context, id int64) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if _, ok := s.db.clients[id]; !ok {
		return entities.NotFound("client")
	}
	s.db.deleteClient(id)
	return nil
}

// deleteClient removes the client and its dependents. Callers hold mu.
func (db *DB) deleteClient(id int64) {
	for fid, f := range db.followUps {
		if f.ClientID == id {
			delete(db.followUps, fid)
		}
	}
	for iid, i := range db.interactions {
		if i.ClientID == id {
			delete(db.interactions, iid)
		}
	}
	delete(db.clients, id)
}

func (s *Clients) TouchLastContact(_ context.Context, id int64, at time.Time) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	c, ok := s.db.clients[id]
	if !ok {
		return entities.NotFound("client")
	}
	if c.LastContactAt == nil || at.After(*c.LastContactAt) {
		c.LastContactAt = &at
	}
	return nil
}

func (s *Clients) CountByUser(_ context.Context, userID int64) (int, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	n := 0
	for _, c := range s.db.clients {
		if c.UserID == userID {
			n++
		}
	}
	return n, s.db.Err
}

// FollowUps implements interfaces.FollowUpStore.
type FollowUps struct{ db *DB }

var _ interfaces.FollowUpStore = (*FollowUps)(nil)

func (s *FollowUps) Create(_ context.Context, f *entities.FollowUp) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if s.db.Err != nil {
		return s.db.Err
	}
	now := s.db.clock.Now()
	f.ID = s.db.id()
	f.CreatedAt, f.UpdatedAt = now, now
	cp := *f
	s.db.followUps[f.ID] = &cp
	return nil
}

func (s *FollowUps) GetByID(_ context.Context, id int64) (*entities.FollowUp, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	f, ok := s.db.followUps[id]
	if !ok {
		return nil, entities.NotFound("follow-up")
	}
	cp := *f
	return &cp, nil
}

func (s *FollowUps) List(_ context.Context, userID int64, f entities.FollowUpFilter, now time.Time) ([]entities.FollowUp, int, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	out := []entities.FollowUp{}
	for _, fu := range s.db.followUps {
		if fu.UserID != userID ||
			(f.ClientID != 0 && fu.ClientID != f.ClientID) ||
			(f.Priority != "" && fu.Priority != f.Priority) ||
			(f.Status != "" && fu.EffectiveStatus(now) != f.Status) ||
			(f.DueFrom != nil && fu.DueDate.Before(*f.DueFrom)) ||
			(f.DueTo != nil && !fu.DueDate.Before(*f.DueTo)) {
			continue
		}
		out = append(out, *fu)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DueDate.Before(out[j].DueDate) })
	return paginate(out, f.Page, f.Limit), len(out), nil
}

func (s *FollowUps) Update(_ context.Context, f *entities.FollowUp) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if _, ok := s.db.followUps[f.ID]; !ok {
		return entities.NotFound("follow-up")
	}
	f.UpdatedAt = s.db.clock.Now()
	cp := *f
	s.db.followUps[f.ID] = &cp
	return nil
}

func (s *FollowUps) Delete(_ context.Context, id int64) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if _, ok := s.db.followUps[id]; !ok {
		return entities.NotFound("follow-up")
	}
	delete(s.db.followUps, id)
	return nil
}

func (s *FollowUps) CountByUser(_ context.Context, userID int64) (int, int, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	total, completed := 0, 0
	for _, f := range s.db.followUps {
		if f.UserID != userID {
			continue
		}
		total++
		if f.Status == entities.FollowUpCompleted {
			completed++
		}
	}
	return total, completed, s.db.Err
}

// Interactions implements interfaces.InteractionStore.
type Interactions struct{ db *DB }

var _ interfaces.InteractionStore = (*Interactions)(nil)

func (s *Interactions) Create(_ context.Context, i *entities.Interaction) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if s.db.Err != nil {
		return s.db.Err
	}
	i.ID = s.db.id()
	i.CreatedAt = s.db.clock.Now()
	cp := *i
	s.db.interactions[i.ID] = &cp
	return nil
}

func (s *Interactions) GetByID(_ context.Context, id int64) (*entities.Interaction, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	i, ok := s.db.interactions[id]
	if !ok {
		return nil, entities.NotFound("interaction")
	}
	cp := *i
	return &cp, nil
}

func (s *Interactions) List(_ context.Context, userID int64, f entities.InteractionFilter) ([]entities.Interaction, int, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	out := []entities.Interaction{}
	for _, i := range s.db.interactions {
		if i.UserID != userID || (f.ClientID != 0 && i.ClientID != f.ClientID) || (f.Type != "" && i.Type != f.Type) {
			continue
		}
		out = append(out, *i)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].OccurredAt.After(out[b].OccurredAt) })
	return paginate(out, f.Page, f.Limit), len(out), nil
}

func (s *Interactions) CountByUser(_ context.Context, userID int64) (int, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	n := 0
	for _, i := range s.db.interactions {
		if i.UserID == userID {
			n++
		}
	}
	return n, s.db.Err
}

// Webhooks implements interfaces.WebhookStore.
type Webhooks struct{ db *DB }

var _ interfaces.WebhookStore = (*Webhooks)(nil)

func (s *Webhooks) Create(_ context.Context, w *entities.Webhook) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if s.db.Err != nil {
		return s.db.Err
	}
	now := s.db.clock.Now()
	w.ID = s.db.id()
	w.CreatedAt, w.UpdatedAt = now, now
	w.HasSecret = w.Secret != ""
	cp := *w
	s.db.webhooks[w.ID] = &cp
	return nil
}

func (s *Webhooks) GetByID(_ context.Context, id int64) (*entities.Webhook, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if s.db.Err != nil {
		return nil, s.db.Err
	}
	w, ok := s.db.webhooks[id]
	if !ok {
		return nil, entities.NotFound("webhook")
	}
	cp := *w
	return &cp, nil
}

func (s *Webhooks) ListByUser(_ context.Context, userID int64) ([]entities.Webhook, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	out := []entities.Webhook{}
	for _, w := range s.db.webhooks {
		if w.UserID == userID {
			out = append(out, *w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Webhooks) ActiveForEvent(_ context.Context, userID int64, event string) ([]entities.Webhook, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if s.db.Err != nil {
		return nil, s.db.Err
	}
	var out []entities.Webhook
	for _, w := range s.db.webhooks {
		if w.UserID == userID && w.Active && hasTag(w.Events, event) {
			out = append(out, *w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Webhooks) Update(_ context.Context, w *entities.Webhook) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if _, ok := s.db.webhooks[w.ID]; !ok {
		return entities.NotFound("webhook")
	}
	w.UpdatedAt = s.db.clock.Now()
	w.HasSecret = w.Secret != ""
	cp := *w
	s.db.webhooks[w.ID] = &cp
	return nil
}

func (s *Webhooks) Delete(_ context.Context, id int64) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if _, ok := s.db.webhooks[id]; !ok {
		return entities.NotFound("webhook")
	}
	delete(s.db.webhooks, id)
	return nil
}

func (s *Webhooks) CountByUser(_ context.Context, userID int64) (int, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	n := 0
	for _, w := range s.db.webhooks {
		if w.UserID == userID {
			n++
		}
	}
	return n, s.db.Err
}

// Deliveries implements interfaces.DeliveryStore.
type Deliveries struct{ db *DB }

var _ interfaces.DeliveryStore = (*Deliveries)(nil)

func (s *Deliveries) RecordDelivery(_ context.Context, d *entities.WebhookDelivery) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if s.db.Err != nil {
		return s.db.Err
	}
	d.ID = s.db.id()
	d.CreatedAt = s.db.clock.Now()
	s.db.deliveries = append(s.db.deliveries, *d)
	return nil
}

func (s *Deliveries) ListDeliveries(_ context.Context, webhookID int64, limit int) ([]entities.WebhookDelivery, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	out := []entities.WebhookDelivery{}
	for i := len(s.db.deliveries) - 1; i >= 0 && len(out) < limit; i-- {
		if s.db.deliveries[i].WebhookID == webhookID {
			out = append(out, s.db.deliveries[i])
		}
	}
	return out, nil
}

func (s *Deliveries) ScheduleRetry(_ context.Context, job *entities.RetryJob) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if s.db.Err != nil {
		return s.db.Err
	}
	job.ID = s.db.id()
	s.db.retries = append(s.db.retries, *job)
	return nil
}

func (s *Deliveries) ClaimDueRetries(_ context.Context, now time.Time, lease time.Duration, limit int) ([]entities.RetryJob, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if s.db.Err != nil {
		return nil, s.db.Err
	}
	var claimed []entities.RetryJob
	for i := range s.db.retries {
		j := &s.db.retries[i]
		if len(claimed) < limit && !j.RunAt.After(now) {
			j.RunAt = now.Add(lease)
			claimed = append(claimed, *j)
		}
	}
	return claimed, nil
}

func (s *Deliveries) CompleteRetry(_ context.Context, id int64) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if s.db.Err != nil {
		return s.db.Err
	}
	kept := s.db.retries[:0]
	for _, j := range s.db.retries {
		if j.ID != id {
			kept = append(kept, j)
		}
	}
	s.db.retries = kept
	return nil
}

func (s *Deliveries) RescheduleRetry(_ context.Context, id int64, runAt time.Time) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if s.db.Err != nil {
		return s.db.Err
	}
	for i := range s.db.retries {
		if s.db.retries[i].ID == id {
			s.db.retries[i].RunAt = runAt
		}
	}
	return nil
}

// All returns every recorded delivery, oldest first.
func (s *Deliveries) All() []entities.WebhookDelivery {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	return append([]entities.WebhookDelivery(nil), s.db.deliveries...)
}

// Pending returns the retry jobs not yet completed, leased ones included.
func (s *Deliveries) Pending() []entities.RetryJob {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	return append([]entities.RetryJob(nil), s.db.retries...)
}

// Journey implements interfaces.JourneyStore.
type Journey struct{ db *DB }

var _ interfaces.JourneyStore = (*Journey)(nil)

func (s *Journey) Seed(_ context.Context, userID int64, completed []string, now time.Time) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if s.db.Err != nil {
		return s.db.Err
	}
	rows := s.db.milestones[userID]
	if rows == nil {
		rows = map[string]*entities.UserMilestone{}
		s.db.milestones[userID] = rows
	}
	for _, def := range entities.MilestoneCatalog {
		if _, ok := rows[def.Type]; ok {
			continue
		}
		m := &entities.UserMilestone{UserID: userID, Type: def.Type}
		if hasTag(completed, def.Type) {
			at := now
			m.Completed, m.CompletedAt = true, &at
		}
		rows[def.Type] = m
	}
	return nil
}

func (s *Journey) GetMilestone(_ context.Context, userID int64, milestoneType string) (*entities.UserMilestone, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	m, ok := s.db.milestones[userID][milestoneType]
	if !ok {
		return nil, entities.NotFound("milestone")
	}
	cp := *m
	return &cp, nil
}

func (s *Journey) ListMilestones(_ context.Context, userID int64) ([]entities.UserMilestone, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if s.db.Err != nil {
		return nil, s.db.Err
	}
	out := []entities.UserMilestone{}
	for _, m := range s.db.milestones[userID] {
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out, nil
}

func (s *Journey) CompleteMilestone(_ context.Context, userID int64, milestoneType string, at time.Time) (bool, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if s.db.Err != nil {
		return false, s.db.Err
	}
	rows := s.db.milestones[userID]
	if rows == nil {
		rows = map[string]*entities.UserMilestone{}
		s.db.milestones[userID] = rows
	}
	m, ok := rows[milestoneType]
	if !ok {
		m = &entities.UserMilestone{UserID: userID, Type: milestoneType}
		rows[milestoneType] = m
	}
	if m.Completed {
		return false, nil
	}
	m.Completed, m.CompletedAt = true, &at
	return true, nil
}

func (s *Journey) SaveProgress(_ context.Context, p *entities.JourneyProgress) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if s.db.Err != nil {
		return s.db.Err
	}
	cp := *p
	s.db.progress[p.UserID] = &cp
	return nil
}

func (s *Journey) GetProgress(_ context.Context, userID int64) (*entities.JourneyProgress, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	p, ok := s.db.progress[userID]
	if !ok {
		return nil, entities.NotFound("journey progress")
	}
	cp := *p
	return &cp, nil
}
