package entities

import "time"

// Interaction types
const (
	InteractionCall    = "call"
	InteractionEmail   = "email"
	InteractionMeeting = "meeting"
	InteractionNote    = "note"
	InteractionOther   = "other"
)

// Interaction is an append-only log entry against a client.
type Interaction struct {
	ID         int64     `json:"id"`
	ClientID   int64     `json:"client_id"`
	UserID     int64     `json:"user_id"`
	Type       string    `json:"type"`
	Notes      string    `json:"notes"`
	OccurredAt time.Time `json:"occurred_at"`
	CreatedAt  time.Time `json:"created_at"`
}

type InteractionInput struct {
	ClientID   int64      `json:"client_id" binding:"required,min=1"`
	Type       string     `json:"type" binding:"required,oneof=call email meeting note other"`
	Notes      string     `json:"notes" binding:"max=10000"`
	OccurredAt *time.Time `json:"occurred_at"`
}

type InteractionFilter struct {
	ClientID int64
	Type     string
	Page     int
	Limit    int
}
