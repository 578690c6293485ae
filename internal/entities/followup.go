package entities

import "time"

// Stored follow-up statuses. FollowUpOverdue is derived and never persisted.
const (
	FollowUpPending   = "pending"
	FollowUpCompleted = "completed"
	FollowUpOverdue   = "overdue"
)

type FollowUp struct {
	ID          int64      `json:"id"`
	ClientID    int64      `json:"client_id"`
	UserID      int64      `json:"user_id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	DueDate     time.Time  `json:"due_date"`
	Status      string     `json:"status"`
	Priority    string     `json:"priority"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// IsOverdue reports whether a pending follow-up is past its due date at now.
func (f *FollowUp) IsOverdue(now time.Time) bool {
	return f.Status == FollowUpPending && f.DueDate.Before(now)
}

// EffectiveStatus returns the status as shown to users, with overdue derived.
func (f *FollowUp) EffectiveStatus(now time.Time) string {
	if f.IsOverdue(now) {
		return FollowUpOverdue
	}
	return f.Status
}

// SetStatus moves the follow-up to status, maintaining CompletedAt.
func (f *FollowUp) SetStatus(status string, now time.Time) {
	if status == f.Status {
		return
	}
	f.Status = status
	if status == FollowUpCompleted {
		t := now
		f.CompletedAt = &t
	} else {
		f.CompletedAt = nil
	}
}

type FollowUpInput struct {
	ClientID    int64     `json:"client_id" binding:"required,min=1"`
	Title       string    `json:"title" binding:"required,min=1,max=255"`
	Description string    `json:"description" binding:"max=10000"`
	DueDate     time.Time `json:"due_date" binding:"required"`
	Priority    string    `json:"priority" binding:"omitempty,oneof=low medium high"`
}

// FollowUp builds a pending follow-up for userID.
func (in *FollowUpInput) FollowUp(userID int64) *FollowUp {
	f := &FollowUp{
		ClientID:    in.ClientID,
		UserID:      userID,
		Title:       in.Title,
		Description: in.Description,
		DueDate:     in.DueDate,
		Status:      FollowUpPending,
		Priority:    in.Priority,
	}
	if f.Priority == "" {
		f.Priority = PriorityMedium
	}
	return f
}

type FollowUpPatch struct {
	Title       *string    `json:"title" binding:"omitempty,min=1,max=255"`
	Description *string    `json:"description" binding:"omitempty,max=10000"`
	DueDate     *time.Time `json:"due_date"`
	Status      *string    `json:"status" binding:"omitempty,oneof=pending completed"`
	Priority    *string    `json:"priority" binding:"omitempty,oneof=low medium high"`
}

// Apply copies the set fields of p onto f. Status changes go through SetStatus.
func (p *FollowUpPatch) Apply(f *FollowUp, now time.Time) {
	if p.Title != nil {
		f.Title = *p.Title
	}
	if p.Description != nil {
		f.Description = *p.Description
	}
	if p.DueDate != nil {
		f.DueDate = *p.DueDate
	}
	if p.Priority != nil {
		f.Priority = *p.Priority
	}
	if p.Status != nil {
		f.SetStatus(*p.Status, now)
	}
}

type FollowUpFilter struct {
	Status   string // pending | completed | overdue
	ClientID int64
	Priority string
	DueFrom  *time.Time
	DueTo    *time.Time
	Sort     string
	Order    string
	Page     int
	Limit    int
}
