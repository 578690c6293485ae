package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"tracker_suite/internal/entities"
	"tracker_suite/internal/interfaces"
)

// Locker is an in-process interfaces.Locker. Setting Held makes every attempt fail.
type Locker struct {
	mu    sync.Mutex
	taken map[string]bool
	Held  bool
	Calls int
}

var _ interfaces.Locker = (*Locker)(nil)

func (l *Locker) TryWithLock(ctx context.Context, name string, fn func(ctx context.Context) error) (bool, error) {
	l.mu.Lock()
	l.Calls++
	if l.taken == nil {
		l.taken = map[string]bool{}
	}
	if l.Held || l.taken[name] {
		l.mu.Unlock()
		return false, nil
	}
	l.taken[name] = true
	l.mu.Unlock()

	defer func() {
		l.mu.Lock()
		delete(l.taken, name)
		l.mu.Unlock()
	}()
	return true, fn(ctx)
}

type Mail struct {
	To, Subject, Body string
}

// Mailer records sent mail. FailFor makes sends to the listed addresses fail.
type Mailer struct {
	mu      sync.Mutex
	Sent    []Mail
	FailFor map[string]error
}

var _ interfaces.Mailer = (*Mailer)(nil)

func (m *Mailer) Send(_ context.Context, to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.FailFor[to]; err != nil {
		return err
	}
	m.Sent = append(m.Sent, Mail{To: to, Subject: subject, Body: body})
	return nil
}

func (m *Mailer) Messages() []Mail {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Mail(nil), m.Sent...)
}

type Notifier struct {
	mu       sync.Mutex
	Messages []string
}

var _ interfaces.Notifier = (*Notifier)(nil)

func (n *Notifier) Notify(_ context.Context, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Messages = append(n.Messages, text)
	return nil
}

// Events records published domain events.
type Events struct {
	mu     sync.Mutex
	Events []entities.DomainEvent
}

var _ interfaces.EventPublisher = (*Events)(nil)

func (e *Events) Publish(_ context.Context, evt entities.DomainEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Events = append(e.Events, evt)
}

// Names returns the names of the recorded events in order.
func (e *Events) Names() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	names := make([]string, len(e.Events))
	for i, evt := range e.Events {
		names[i] = evt.Name
	}
	return names
}

// Stats implements interfaces.StatsStore over the in-memory data. Calls counts
// loads so tests can observe caching.
type Stats struct {
	db    *DB
	mu    sync.Mutex
	Calls int
}

var _ interfaces.StatsStore = (*Stats)(nil)

func (db *DB) Stats() *Stats { return &Stats{db: db} }

func (s *Stats) hit() {
	s.mu.Lock()
	s.Calls++
	s.mu.Unlock()
}

func (s *Stats) DashboardStats(_ context.Context, userID int64, now time.Time) (*entities.DashboardStats, error) {
	s.hit()
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	st := &entities.DashboardStats{UpcomingFollowUps: []entities.FollowUp{}}
	byStatus := map[string]int{}
	for _, c := range s.db.clients {
		if c.UserID != userID {
			continue
		}
		st.TotalClients++
		byStatus[c.Status]++
		if c.Status == entities.ClientActive {
			st.ActiveClients++
		}
	}
	st.ClientsByStatus = buckets(byStatus)

	y, m, d := now.Date()
	dayStart := time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	dayEnd := dayStart.AddDate(0, 0, 1)
	for _, f := range s.db.followUps {
		if f.UserID != userID {
			continue
		}
		switch {
		case f.IsOverdue(now):
			st.OverdueFollowUps++
		case f.Status == entities.FollowUpPending:
			st.PendingFollowUps++
			st.UpcomingFollowUps = append(st.UpcomingFollowUps, *f)
		case f.CompletedAt != nil && f.CompletedAt.After(now.AddDate(0, 0, -7)):
			st.CompletedLast7Days++
		}
		if f.Status == entities.FollowUpPending && !f.DueDate.Before(dayStart) && f.DueDate.Before(dayEnd) {
			st.DueTodayFollowUps++
		}
	}
	sort.Slice(st.UpcomingFollowUps, func(i, j int) bool {
		return st.UpcomingFollowUps[i].DueDate.Before(st.UpcomingFollowUps[j].DueDate)
	})
	if len(st.UpcomingFollowUps) > 5 {
		st.UpcomingFollowUps = st.UpcomingFollowUps[:5]
	}
	for _, i := range s.db.interactions {
		if i.UserID == userID && i.OccurredAt.After(now.AddDate(0, 0, -30)) {
			st.InteractionsLast30Day++
		}
	}
	return st, nil
}

func (s *Stats) ClientsByStatus(_ context.Context, userID int64) ([]entities.CountBucket, error) {
	s.hit()
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	counts := map[string]int{}
	for _, c := range s.db.clients {
		if c.UserID == userID {
			counts[c.Status]++
		}
	}
	return buckets(counts), nil
}

func (s *Stats) ClientsBySource(_ context.Context, userID int64) ([]entities.CountBucket, error) {
	s.hit()
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	counts := map[string]int{}
	for _, c := range s.db.clients {
		if c.UserID != userID {
			continue
		}
		src := c.Source
		if src == "" {
			src = "unknown"
		}
		counts[src]++
	}
	return buckets(counts), nil
}

func (s *Stats) FollowUpTrends(_ context.Context, userID int64, since time.Time) ([]entities.TrendPoint, error) {
	s.hit()
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	y, m, d := since.Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	now := s.db.clock.Now()
	var points []entities.TrendPoint
	for day := start; !day.After(now); day = day.AddDate(0, 0, 1) {
		p := entities.TrendPoint{Date: day}
		next := day.AddDate(0, 0, 1)
		for _, f := range s.db.followUps {
			if f.UserID != userID {
				continue
			}
			if !f.CreatedAt.Before(day) && f.CreatedAt.Before(next) {
				p.Created++
			}
			if f.CompletedAt != nil && !f.CompletedAt.Before(day) && f.CompletedAt.Before(next) {
				p.Completed++
			}
		}
		points = append(points, p)
	}
	return points, nil
}

func (s *Stats) InteractionsByType(_ context.Context, userID int64, since time.Time) ([]entities.CountBucket, error) {
	s.hit()
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	counts := map[string]int{}
	for _, i := range s.db.interactions {
		if i.UserID == userID && !i.OccurredAt.Before(since) {
			counts[i.Type]++
		}
	}
	return buckets(counts), nil
}

func buckets(counts map[string]int) []entities.CountBucket {
	out := make([]entities.CountBucket, 0, len(counts))
	for k, n := range counts {
		out = append(out, entities.CountBucket{Key: k, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Key < out[j].Key
	})
	return out
}
