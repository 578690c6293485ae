package entities

import (
	"encoding/json"
	"time"
)

// Webhook events
const (
	EventClientCreated     = "client.created"
	EventClientUpdated     = "client.updated"
	EventClientDeleted     = "client.deleted"
	EventFollowUpCreated   = "follow_up.created"
	EventFollowUpCompleted = "follow_up.completed"
	EventInteractionLogged = "interaction.created"
	EventWebhookTest       = "webhook.test"
)

// SubscribableEvents lists the events a webhook may subscribe to.
var SubscribableEvents = []string{
	EventClientCreated,
	EventClientUpdated,
	EventClientDeleted,
	EventFollowUpCreated,
	EventFollowUpCompleted,
	EventInteractionLogged,
}

func ValidEvent(e string) bool {
	for _, s := range SubscribableEvents {
		if s == e {
			return true
		}
	}
	return false
}

// Delivery statuses
const (
	DeliverySuccess = "success"
	DeliveryFailed  = "failed"
)

type Webhook struct {
	ID        int64             `json:"id"`
	UserID    int64             `json:"user_id"`
	URL       string            `json:"url"`
	Events    []string          `json:"events"`
	Secret    string            `json:"-"`
	HasSecret bool              `json:"has_secret"`
	Active    bool              `json:"active"`
	Headers   map[string]string `json:"headers"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// Subscribed reports whether w receives event.
func (w *Webhook) Subscribed(event string) bool {
	if event == EventWebhookTest {
		return true
	}
	for _, e := range w.Events {
		if e == event {
			return true
		}
	}
	return false
}

type WebhookInput struct {
	URL            string            `json:"url" binding:"required,url,max=2048"`
	Events         []string          `json:"events" binding:"required,min=1,dive,required"`
	Secret         string            `json:"secret" binding:"max=255"`
	GenerateSecret bool              `json:"generate_secret"`
	Active         *bool             `json:"active"`
	Headers        map[string]string `json:"headers"`
}

type WebhookPatch struct {
	URL            *string            `json:"url" binding:"omitempty,url,max=2048"`
	Events         *[]string          `json:"events" binding:"omitempty,min=1,dive,required"`
	Secret         *string            `json:"secret" binding:"omitempty,max=255"`
	GenerateSecret bool               `json:"generate_secret"`
	Active         *bool              `json:"active"`
	Headers        *map[string]string `json:"headers"`
}

func (p *WebhookPatch) Apply(w *Webhook) {
	if p.URL != nil {
		w.URL = *p.URL
	}
	if p.Events != nil {
		w.Events = *p.Events
	}
	if p.Secret != nil {
		w.Secret = *p.Secret
		w.HasSecret = w.Secret != ""
	}
	if p.Active != nil {
		w.Active = *p.Active
	}
	if p.Headers != nil {
		w.Headers = *p.Headers
	}
}

// WebhookPayload is the JSON envelope POSTed to subscribers.
type WebhookPayload struct {
	Event     string          `json:"event"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
	WebhookID int64           `json:"webhook_id"`
}

// WebhookDelivery is the audit row of one delivery attempt.
type WebhookDelivery struct {
	ID           int64      `json:"id"`
	WebhookID    int64      `json:"webhook_id"`
	DeliveryID   string     `json:"delivery_id"`
	Event        string     `json:"event"`
	Payload      string     `json:"payload"`
	Status       string     `json:"status"`
	ResponseCode int        `json:"response_code,omitempty"`
	ResponseBody string     `json:"response_body,omitempty"`
	Error        string     `json:"error,omitempty"`
	Attempt      int        `json:"attempt"`
	NextRetryAt  *time.Time `json:"next_retry_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// RetryJob is a persisted request to re-attempt a delivery at RunAt.
type RetryJob struct {
	ID        int64
	WebhookID int64
	Event     string
	Data      json.RawMessage
	Attempt   int
	RunAt     time.Time
}
