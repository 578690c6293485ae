package entities

import (
	"strings"
	"time"
)

// Account roles
const (
	RoleIndividual = "individual"
	RoleCorporate  = "corporate"
)

// Admin role tiers
const (
	AdminRoleUser   = "user"
	AdminRoleAdmin  = "admin"
	AdminRoleMaster = "master_admin"
)

// Account statuses
const (
	StatusTrial     = "trial"
	StatusActive    = "active"
	StatusExpired   = "expired"
	StatusCancelled = "cancelled"
)

// DefaultTrialDays is the trial window granted at registration.
const DefaultTrialDays = 7

type User struct {
	ID               int64      `json:"id"`
	Email            string     `json:"email"`
	PasswordHash     string     `json:"-"`
	Name             string     `json:"name"`
	Company          string     `json:"company"`
	Role             string     `json:"role"`       // individual | corporate
	AdminRole        string     `json:"admin_role"` // user | admin | master_admin
	Permissions      []string   `json:"permissions"`
	AccountStatus    string     `json:"account_status"` // trial | active | expired | cancelled
	TrialEndsAt      time.Time  `json:"trial_ends_at"`
	TrialWarningSent bool       `json:"trial_warning_sent"`
	LastLoginAt      *time.Time `json:"last_login_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

func ValidAccountStatus(s string) bool {
	switch s {
	case StatusTrial, StatusActive, StatusExpired, StatusCancelled:
		return true
	}
	return false
}

func ValidAdminRole(s string) bool {
	switch s {
	case AdminRoleUser, AdminRoleAdmin, AdminRoleMaster:
		return true
	}
	return false
}

// IsAdmin reports whether the user holds any admin tier.
func (u *User) IsAdmin() bool {
	return u.AdminRole == AdminRoleAdmin || u.AdminRole == AdminRoleMaster
}

// HasAccess reports whether the account may use product features at now.
// A trial whose end has passed counts as expired even before the monitor flips it.
func (u *User) HasAccess(now time.Time) bool {
	switch u.AccountStatus {
	case StatusActive:
		return true
	case StatusTrial:
		return now.Before(u.TrialEndsAt)
	}
	return false
}

// TrialDaysLeft returns the number of whole days left in the trial, never negative.
func (u *User) TrialDaysLeft(now time.Time) int {
	if u.AccountStatus != StatusTrial || !now.Before(u.TrialEndsAt) {
		return 0
	}
	return int(u.TrialEndsAt.Sub(now).Hours() / 24)
}

func (u *User) HasPermission(p string) bool {
	if u.AdminRole == AdminRoleMaster {
		return true
	}
	for _, have := range u.Permissions {
		if strings.EqualFold(have, p) {
			return true
		}
	}
	return false
}

// UserFilter narrows admin user listings.
type UserFilter struct {
	Search string
	Status string
	Page   int
	Limit  int
}

type UserStats struct {
	TotalUsers       int            `json:"total_users"`
	ByStatus         map[string]int `json:"by_status"`
	ByRole           map[string]int `json:"by_role"`
	AdminCount       int            `json:"admin_count"`
	NewLast7Days     int            `json:"new_last_7_days"`
	TotalClients     int            `json:"total_clients"`
	TotalFollowUps   int            `json:"total_follow_ups"`
	TotalInteraction int            `json:"total_interactions"`
	TotalWebhooks    int            `json:"total_webhooks"`
	FailedDeliveries int            `json:"failed_deliveries_24h"`
}

type RegisterInput struct {
	Email    string `json:"email" binding:"required,email,max=255"`
	Password string `json:"password" binding:"required,min=8,max=128"`
	Name     string `json:"name" binding:"required,min=1,max=255"`
	Role     string `json:"role" binding:"omitempty,oneof=individual corporate"`
	Company  string `json:"company" binding:"max=255"`
}

type LoginInput struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type PasswordChangeInput struct {
	CurrentPassword string `json:"current_password" binding:"required"`
	NewPassword     string `json:"new_password" binding:"required,min=8,max=128"`
}
