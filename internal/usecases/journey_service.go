package usecases

import (
	"context"
	"errors"
	"fmt"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"tracker_suite/internal/entities"
	"tracker_suite/internal/interfaces"
)

type milestonePredicate func(c entities.JourneyCounts) bool

var milestonePredicates = map[string]milestonePredicate{
	entities.MilestoneAccountCreated:         func(entities.JourneyCounts) bool { return true },
	entities.MilestoneTrialStarted:           func(entities.JourneyCounts) bool { return true },
	entities.MilestoneFirstClient:            func(c entities.JourneyCounts) bool { return c.Clients >= 1 },
	entities.MilestoneFirstFollowUp:          func(c entities.JourneyCounts) bool { return c.FollowUps >= 1 },
	entities.MilestoneFirstInteraction:       func(c entities.JourneyCounts) bool { return c.Interactions >= 1 },
	entities.MilestoneFirstFollowUpCompleted: func(c entities.JourneyCounts) bool { return c.CompletedFollowUps >= 1 },
	entities.MilestoneFiveClients:            func(c entities.JourneyCounts) bool { return c.Clients >= 5 },
	entities.MilestoneTenClients:             func(c entities.JourneyCounts) bool { return c.Clients >= 10 },
	entities.MilestoneTenFollowUps:           func(c entities.JourneyCounts) bool { return c.FollowUps >= 10 },
	entities.MilestoneWebhookConfigured:      func(c entities.JourneyCounts) bool { return c.Webhooks >= 1 },
	entities.MilestoneSubscriptionActivated:  func(c entities.JourneyCounts) bool { return c.AccountStatus == entities.StatusActive },
}

// JourneyStores groups the stores the journey service counts against.
type JourneyStores struct {
	Journey      interfaces.JourneyStore
	Users        interfaces.UserStore
	Clients      interfaces.ClientStore
	FollowUps    interfaces.FollowUpStore
	Interactions interfaces.InteractionStore
	Webhooks     interfaces.WebhookStore
}

// JourneyService awards milestones and maintains the points/level/stage rollup.
type JourneyService struct {
	stores JourneyStores
	clock  clock.Clock
	log    *zap.Logger
}

func NewJourneyService(stores JourneyStores, clk clock.Clock, log *zap.Logger) *JourneyService {
	return &JourneyService{
		stores: stores,
		clock:  clk,
		log:    log.With(zap.String("component", "journey")),
	}
}

// Initialize seeds the catalog for a new user with the sign-up milestones completed.
func (s *JourneyService) Initialize(ctx context.Context, userID int64) error {
	now := s.clock.Now()
	completed := []string{entities.MilestoneAccountCreated, entities.MilestoneTrialStarted}
	if err := s.stores.Journey.Seed(ctx, userID, completed, now); err != nil {
		return fmt.Errorf("seed milestones: %w", err)
	}
	return s.recompute(ctx, userID)
}

// CheckAndCompleteMilestone completes milestoneType when its predicate holds.
// It reports whether this call completed it.
func (s *JourneyService) CheckAndCompleteMilestone(ctx context.Context, userID int64, milestoneType string) (bool, error) {
	predicate, ok := milestonePredicates[milestoneType]
	if !ok {
		return false, entities.Invalid("unknown milestone type " + milestoneType)
	}

	m, err := s.stores.Journey.GetMilestone(ctx, userID, milestoneType)
	if err != nil && !errors.Is(err, entities.ErrNotFound) {
		return false, err
	}
	if m != nil && m.Completed {
		return false, nil
	}

	counts, err := s.counts(ctx, userID)
	if err != nil {
		return false, err
	}
	if !predicate(counts) {
		return false, nil
	}
	return s.complete(ctx, userID, milestoneType)
}

// CheckMilestones evaluates each type; failures are logged.
func (s *JourneyService) CheckMilestones(ctx context.Context, userID int64, types ...string) {
	for _, t := range types {
		done, err := s.CheckAndCompleteMilestone(ctx, userID, t)
		if err != nil {
			s.log.Warn("Milestone check failed", zap.Int64("user_id", userID), zap.String("milestone", t), zap.Error(err))
			continue
		}
		if done {
			s.log.Info("Milestone completed", zap.Int64("user_id", userID), zap.String("milestone", t))
		}
	}
}

// CompleteManual completes a milestone that is not awarded automatically.
func (s *JourneyService) CompleteManual(ctx context.Context, userID int64, milestoneType string) (bool, error) {
	def, ok := entities.LookupMilestone(milestoneType)
	if !ok {
		return false, entities.NotFound("milestone")
	}
	if def.AutoComplete {
		return false, entities.Invalid("milestone " + milestoneType + " is completed automatically")
	}
	return s.complete(ctx, userID, milestoneType)
}

func (s *JourneyService) complete(ctx context.Context, userID int64, milestoneType string) (bool, error) {
	won, err := s.stores.Journey.CompleteMilestone(ctx, userID, milestoneType, s.clock.Now())
	if err != nil {
		return false, fmt.Errorf("complete %s: %w", milestoneType, err)
	}
	if !won {
		return false, nil
	}
	return true, s.recompute(ctx, userID)
}

func (s *JourneyService) recompute(ctx context.Context, userID int64) error {
	rows, err := s.stores.Journey.ListMilestones(ctx, userID)
	if err != nil {
		return err
	}
	var completed []string
	for _, r := range rows {
		if r.Completed {
			completed = append(completed, r.Type)
		}
	}
	p := entities.NewJourneyProgress(userID, completed, s.clock.Now())
	return s.stores.Journey.SaveProgress(ctx, &p)
}

func (s *JourneyService) counts(ctx context.Context, userID int64) (entities.JourneyCounts, error) {
	var c entities.JourneyCounts
	var err error
	if c.Clients, err = s.stores.Clients.CountByUser(ctx, userID); err != nil {
		return c, err
	}
	if c.FollowUps, c.CompletedFollowUps, err = s.stores.FollowUps.CountByUser(ctx, userID); err != nil {
		return c, err
	}
	if c.Interactions, err = s.stores.Interactions.CountByUser(ctx, userID); err != nil {
		return c, err
	}
	if c.Webhooks, err = s.stores.Webhooks.CountByUser(ctx, userID); err != nil {
		return c, err
	}
	u, err := s.stores.Users.GetByID(ctx, userID)
	if err != nil {
		return c, err
	}
	c.AccountStatus = u.AccountStatus
	return c, nil
}

// Progress returns the user's rollup, computing it when no row exists yet.
func (s *JourneyService) Progress(ctx context.Context, userID int64) (*entities.JourneyProgress, error) {
	p, err := s.stores.Journey.GetProgress(ctx, userID)
	if errors.Is(err, entities.ErrNotFound) {
		if err := s.recompute(ctx, userID); err != nil {
			return nil, err
		}
		return s.stores.Journey.GetProgress(ctx, userID)
	}
	return p, err
}

// Milestones returns the whole catalog with the user's completion state.
func (s *JourneyService) Milestones(ctx context.Context, userID int64) ([]entities.MilestoneView, error) {
	rows, err := s.stores.Journey.ListMilestones(ctx, userID)
	if err != nil {
		return nil, err
	}
	byType := make(map[string]entities.UserMilestone, len(rows))
	for _, r := range rows {
		byType[r.Type] = r
	}

	views := make([]entities.MilestoneView, 0, len(entities.MilestoneCatalog))
	for _, def := range entities.MilestoneCatalog {
		v := entities.MilestoneView{MilestoneDefinition: def}
		if r, ok := byType[def.Type]; ok {
			v.Completed = r.Completed
			v.CompletedAt = r.CompletedAt
		}
		views = append(views, v)
	}
	return views, nil
}

// milestonesForEvent lists the milestones a domain event can unlock.
func milestonesForEvent(event string) []string {
	switch event {
	case entities.EventClientCreated:
		return []string{entities.MilestoneFirstClient, entities.MilestoneFiveClients, entities.MilestoneTenClients}
	case entities.EventFollowUpCreated:
		return []string{entities.MilestoneFirstFollowUp, entities.MilestoneTenFollowUps}
	case entities.EventFollowUpCompleted:
		return []string{entities.MilestoneFirstFollowUpCompleted}
	case entities.EventInteractionLogged:
		return []string{entities.MilestoneFirstInteraction}
	}
	return nil
}
