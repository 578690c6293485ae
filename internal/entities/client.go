package entities

import "time"

// Client statuses
const (
	ClientProspect = "prospect"
	ClientActive   = "active"
	ClientInactive = "inactive"
	ClientLead     = "lead"
	ClientClient   = "client"
	ClientArchived = "archived"
)

// Priorities shared by clients and follow-ups
const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
)

type Client struct {
	ID            int64      `json:"id"`
	UserID        int64      `json:"user_id"`
	Name          string     `json:"name"`
	Email         string     `json:"email"`
	Phone         string     `json:"phone"`
	Company       string     `json:"company"`
	Status        string     `json:"status"`
	Priority      string     `json:"priority"`
	Tags          []string   `json:"tags"`
	Category      string     `json:"category"`
	Source        string     `json:"source"`
	Notes         string     `json:"notes"`
	LastContactAt *time.Time `json:"last_contact_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// ClientInput is the body of a create request.
type ClientInput struct {
	Name     string   `json:"name" binding:"required,min=1,max=255"`
	Email    string   `json:"email" binding:"omitempty,email,max=255"`
	Phone    string   `json:"phone" binding:"max=50"`
	Company  string   `json:"company" binding:"max=255"`
	Status   string   `json:"status" binding:"omitempty,oneof=prospect active inactive lead client archived"`
	Priority string   `json:"priority" binding:"omitempty,oneof=low medium high"`
	Tags     []string `json:"tags" binding:"max=20,dive,max=50"`
	Category string   `json:"category" binding:"max=100"`
	Source   string   `json:"source" binding:"max=100"`
	Notes    string   `json:"notes" binding:"max=10000"`
}

// Client builds a new client for userID, applying defaults.
func (in *ClientInput) Client(userID int64) *Client {
	c := &Client{
		UserID:   userID,
		Name:     in.Name,
		Email:    in.Email,
		Phone:    in.Phone,
		Company:  in.Company,
		Status:   in.Status,
		Priority: in.Priority,
		Tags:     in.Tags,
		Category: in.Category,
		Source:   in.Source,
		Notes:    in.Notes,
	}
	if c.Status == "" {
		c.Status = ClientProspect
	}
	if c.Priority == "" {
		c.Priority = PriorityMedium
	}
	if c.Tags == nil {
		c.Tags = []string{}
	}
	return c
}

// ClientPatch carries a partial client update; nil fields are left unchanged.
type ClientPatch struct {
	Name     *string   `json:"name" binding:"omitempty,min=1,max=255"`
	Email    *string   `json:"email" binding:"omitempty,max=255"`
	Phone    *string   `json:"phone" binding:"omitempty,max=50"`
	Company  *string   `json:"company" binding:"omitempty,max=255"`
	Status   *string   `json:"status" binding:"omitempty,oneof=prospect active inactive lead client archived"`
	Priority *string   `json:"priority" binding:"omitempty,oneof=low medium high"`
	Tags     *[]string `json:"tags" binding:"omitempty,max=20,dive,max=50"`
	Category *string   `json:"category" binding:"omitempty,max=100"`
	Source   *string   `json:"source" binding:"omitempty,max=100"`
	Notes    *string   `json:"notes" binding:"omitempty,max=10000"`
}

// Apply copies the set fields of p onto c.
func (p *ClientPatch) Apply(c *Client) {
	if p.Name != nil {
		c.Name = *p.Name
	}
	if p.Email != nil {
		c.Email = *p.Email
	}
	if p.Phone != nil {
		c.Phone = *p.Phone
	}
	if p.Company != nil {
		c.Company = *p.Company
	}
	if p.Status != nil {
		c.Status = *p.Status
	}
	if p.Priority != nil {
		c.Priority = *p.Priority
	}
	if p.Tags != nil {
		c.Tags = *p.Tags
	}
	if p.Category != nil {
		c.Category = *p.Category
	}
	if p.Source != nil {
		c.Source = *p.Source
	}
	if p.Notes != nil {
		c.Notes = *p.Notes
	}
}

type ClientFilter struct {
	Status   string
	Priority string
	Category string
	Source   string
	Tag      string
	Search   string
	Sort     string
	Order    string
	Page     int
	Limit    int
}

func ValidClientStatus(s string) bool {
	switch s {
	case ClientProspect, ClientActive, ClientInactive, ClientLead, ClientClient, ClientArchived:
		return true
	}
	return false
}

func ValidPriority(p string) bool {
	return p == PriorityLow || p == PriorityMedium || p == PriorityHigh
}
