package interfaces

import (
	"context"
	"time"

	"tracker_suite/internal/entities"
)

type UserStore interface {
	Create(ctx context.Context, u *entities.User) error
	GetByID(ctx context.Context, id int64) (*entities.User, error)
	GetByEmail(ctx context.Context, email string) (*entities.User, error)
	List(ctx context.Context, f entities.UserFilter) ([]entities.User, int, error)
	UpdatePassword(ctx context.Context, id int64, hash string) error
	UpdateLastLogin(ctx context.Context, id int64, at time.Time) error
	UpdateStatus(ctx context.Context, id int64, status string) error
	UpdateAdminRole(ctx context.Context, id int64, role string) error
	UpdatePermissions(ctx context.Context, id int64, perms []string) error
	ExtendTrial(ctx context.Context, id int64, endsAt time.Time) error
	// TrialsEndingBetween returns trial users without a warning whose trial ends in [from, to).
	TrialsEndingBetween(ctx context.Context, from, to time.Time) ([]entities.User, error)
	// TrialsEndedBefore returns trial users whose trial ended at or before t.
	TrialsEndedBefore(ctx context.Context, t time.Time) ([]entities.User, error)
	MarkTrialWarningSent(ctx context.Context, id int64) error
	// ExpireTrial flips a trial user to expired; it reports false when the user was no longer in trial.
	ExpireTrial(ctx context.Context, id int64) (bool, error)
	Delete(ctx context.Context, id int64) error
	Stats(ctx context.Context, now time.Time) (*entities.UserStats, error)
}

type ClientStore interface {
	Create(ctx context.Context, c *entities.Client) error
	GetByID(ctx context.Context, id int64) (*entities.Client, error)
	List(ctx context.Context, userID int64, f entities.ClientFilter) ([]entities.Client, int, error)
	Update(ctx context.Context, c *entities.Client) error
	// Delete removes the client together with its follow-ups and interactions.
	Delete(ctx context.Context, id int64) error
	TouchLastContact(ctx context.Context, id int64, at time.Time) error
	CountByUser(ctx context.Context, userID int64) (int, error)
}

type FollowUpStore interface {
	Create(ctx context.Context, f *entities.FollowUp) error
	GetByID(ctx context.Context, id int64) (*entities.FollowUp, error)
	List(ctx context.Context, userID int64, f entities.FollowUpFilter, now time.Time) ([]entities.FollowUp, int, error)
	Update(ctx context.Context, f *entities.FollowUp) error
	Delete(ctx context.Context, id int64) error
	CountByUser(ctx context.Context, userID int64) (total int, completed int, err error)
}

type InteractionStore interface {
	Create(ctx context.Context, i *entities.Interaction) error
	GetByID(ctx context.Context, id int64) (*entities.Interaction, error)
	List(ctx context.Context, userID int64, f entities.InteractionFilter) ([]entities.Interaction, int, error)
	CountByUser(ctx context.Context, userID int64) (int, error)
}

type WebhookStore interface {
	Create(ctx context.Context, w *entities.Webhook) error
	GetByID(ctx context.Context, id int64) (*entities.Webhook, error)
	ListByUser(ctx context.Context, userID int64) ([]entities.Webhook, error)
	// ActiveForEvent returns the user's active webhooks subscribed to event.
	ActiveForEvent(ctx context.Context, userID int64, event string) ([]entities.Webhook, error)
	Update(ctx context.Context, w *entities.Webhook) error
	Delete(ctx context.Context, id int64) error
	CountByUser(ctx context.Context, userID int64) (int, error)
}

type DeliveryStore interface {
	RecordDelivery(ctx context.Context, d *entities.WebhookDelivery) error
	ListDeliveries(ctx context.Context, webhookID int64, limit int) ([]entities.WebhookDelivery, error)
	ScheduleRetry(ctx context.Context, job *entities.RetryJob) error
	// ClaimDueRetries leases up to limit jobs whose RunAt is not after now by moving their
	// RunAt to now+lease. A leased job stays queued until CompleteRetry removes it.
	ClaimDueRetries(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]entities.RetryJob, error)
	CompleteRetry(ctx context.Context, id int64) error
	// RescheduleRetry hands a leased job back, due at runAt.
	RescheduleRetry(ctx context.Context, id int64, runAt time.Time) error
}

type JourneyStore interface {
	// Seed inserts every milestone row for the user, marking completed ones at now.
	Seed(ctx context.Context, userID int64, completed []string, now time.Time) error
	GetMilestone(ctx context.Context, userID int64, milestoneType string) (*entities.UserMilestone, error)
	ListMilestones(ctx context.Context, userID int64) ([]entities.UserMilestone, error)
	// CompleteMilestone marks the milestone completed if it is not already; it reports whether this call did it.
	CompleteMilestone(ctx context.Context, userID int64, milestoneType string, at time.Time) (bool, error)
	SaveProgress(ctx context.Context, p *entities.JourneyProgress) error
	GetProgress(ctx context.Context, userID int64) (*entities.JourneyProgress, error)
}

type StatsStore interface {
	DashboardStats(ctx context.Context, userID int64, now time.Time) (*entities.DashboardStats, error)
	ClientsByStatus(ctx context.Context, userID int64) ([]entities.CountBucket, error)
	ClientsBySource(ctx context.Context, userID int64) ([]entities.CountBucket, error)
	FollowUpTrends(ctx context.Context, userID int64, since time.Time) ([]entities.TrendPoint, error)
	InteractionsByType(ctx context.Context, userID int64, since time.Time) ([]entities.CountBucket, error)
}

// Locker runs fn only when the named lock could be taken; ok is false when it was held elsewhere.
type Locker interface {
	TryWithLock(ctx context.Context, name string, fn func(ctx context.Context) error) (ok bool, err error)
}

type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// Notifier delivers short operational alerts to administrators.
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

// Cache is a per-user cache whose entries are dropped by bumping the user's version.
type Cache interface {
	// Get also returns the version the lookup used; pass it back to Set.
	Get(userID int64, key string) (value interface{}, version uint64, ok bool)
	Set(userID int64, version uint64, key string, value interface{})
	Invalidate(userID int64)
}

// EventPublisher receives domain events after successful mutations.
type EventPublisher interface {
	Publish(ctx context.Context, evt entities.DomainEvent)
}
