package entities

import "time"

// Milestone types
const (
	MilestoneAccountCreated         = "account_created"
	MilestoneTrialStarted           = "trial_started"
	MilestoneFirstClient            = "first_client_added"
	MilestoneFirstFollowUp          = "first_follow_up_created"
	MilestoneFirstInteraction       = "first_interaction_logged"
	MilestoneFirstFollowUpCompleted = "first_follow_up_completed"
	MilestoneFiveClients            = "five_clients_milestone"
	MilestoneTenClients             = "ten_clients_milestone"
	MilestoneTenFollowUps           = "ten_follow_ups_milestone"
	MilestoneWebhookConfigured      = "webhook_configured"
	MilestoneSubscriptionActivated  = "subscription_activated"
	MilestoneDashboardTourCompleted = "dashboard_tour_completed"
)

// Journey stages, lowest first
const (
	StageOnboarding     = "onboarding"
	StageGettingStarted = "getting_started"
	StageEngaged        = "engaged"
	StageGrowing        = "growing"
	StageExpert         = "expert"
)

// PointsPerLevel is the number of points between consecutive levels.
const PointsPerLevel = 50

type MilestoneDefinition struct {
	Type         string `json:"type"`
	Title        string `json:"title"`
	Description  string `json:"description"`
	Category     string `json:"category"`
	Points       int    `json:"points"`
	AutoComplete bool   `json:"auto_complete"`
}

// MilestoneCatalog is ordered for display.
var MilestoneCatalog = []MilestoneDefinition{
	{MilestoneAccountCreated, "Account created", "Signed up for Tracker Suite", "onboarding", 10, true},
	{MilestoneTrialStarted, "Trial started", "Started the free trial", "onboarding", 5, true},
	{MilestoneDashboardTourCompleted, "Dashboard tour", "Finished the dashboard walkthrough", "onboarding", 10, false},
	{MilestoneFirstClient, "First client", "Added your first client", "getting_started", 20, true},
	{MilestoneFirstFollowUp, "First follow-up", "Scheduled your first follow-up", "getting_started", 15, true},
	{MilestoneFirstInteraction, "First interaction", "Logged your first interaction", "getting_started", 15, true},
	{MilestoneFirstFollowUpCompleted, "Follow-through", "Completed your first follow-up", "engagement", 20, true},
	{MilestoneFiveClients, "Five clients", "Reached five clients", "growth", 30, true},
	{MilestoneTenClients, "Ten clients", "Reached ten clients", "growth", 50, true},
	{MilestoneTenFollowUps, "Ten follow-ups", "Scheduled ten follow-ups", "growth", 30, true},
	{MilestoneWebhookConfigured, "Connected", "Configured a webhook", "advanced", 25, true},
	{MilestoneSubscriptionActivated, "Subscriber", "Activated a subscription", "advanced", 50, true},
}

// LookupMilestone returns the definition for t.
func LookupMilestone(t string) (MilestoneDefinition, bool) {
	for _, d := range MilestoneCatalog {
		if d.Type == t {
			return d, true
		}
	}
	return MilestoneDefinition{}, false
}

type StageThreshold struct {
	Stage         string
	MinPoints     int
	MinMilestones int
}

// StageThresholds is ordered from lowest to highest tier.
var StageThresholds = []StageThreshold{
	{StageOnboarding, 0, 0},
	{StageGettingStarted, 25, 3},
	{StageEngaged, 75, 5},
	{StageGrowing, 150, 7},
	{StageExpert, 250, 10},
}

// LevelFor returns floor(points/50)+1.
func LevelFor(points int) int {
	if points < 0 {
		points = 0
	}
	return points/PointsPerLevel + 1
}

// StageFor returns the highest stage whose point and milestone minimums are both met.
func StageFor(points, completed int) string {
	stage := StageThresholds[0].Stage
	for _, t := range StageThresholds {
		if points >= t.MinPoints && completed >= t.MinMilestones {
			stage = t.Stage
		}
	}
	return stage
}

type UserMilestone struct {
	UserID      int64      `json:"user_id"`
	Type        string     `json:"type"`
	Completed   bool       `json:"completed"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// MilestoneView joins a user's milestone row with its catalog definition.
type MilestoneView struct {
	MilestoneDefinition
	Completed   bool       `json:"completed"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

type JourneyProgress struct {
	UserID              int64     `json:"user_id"`
	TotalPoints         int       `json:"total_points"`
	CompletedMilestones int       `json:"completed_milestones"`
	TotalMilestones     int       `json:"total_milestones"`
	CurrentLevel        int       `json:"current_level"`
	JourneyStage        string    `json:"journey_stage"`
	NextLevelPoints     int       `json:"next_level_points"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// NewJourneyProgress builds the rollup from completed milestone types.
func NewJourneyProgress(userID int64, completed []string, now time.Time) JourneyProgress {
	points := 0
	count := 0
	for _, t := range completed {
		d, ok := LookupMilestone(t)
		if !ok {
			continue
		}
		points += d.Points
		count++
	}
	level := LevelFor(points)
	return JourneyProgress{
		UserID:              userID,
		TotalPoints:         points,
		CompletedMilestones: count,
		TotalMilestones:     len(MilestoneCatalog),
		CurrentLevel:        level,
		JourneyStage:        StageFor(points, count),
		NextLevelPoints:     level * PointsPerLevel,
		UpdatedAt:           now,
	}
}

// JourneyCounts is the live snapshot milestone predicates are evaluated against.
type JourneyCounts struct {
	Clients            int
	FollowUps          int
	CompletedFollowUps int
	Interactions       int
	Webhooks           int
	AccountStatus      string
}
