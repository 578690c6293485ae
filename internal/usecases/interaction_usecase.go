package usecases

import (
	"context"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"tracker_suite/internal/entities"
	"tracker_suite/internal/interfaces"
)

// InteractionUsecase manages the append-only interaction log.
type InteractionUsecase struct {
	interactions interfaces.InteractionStore
	clients      interfaces.ClientStore
	cache        interfaces.Cache
	events       interfaces.EventPublisher
	clock        clock.Clock
	log          *zap.Logger
}

func NewInteractionUsecase(
	interactions interfaces.InteractionStore,
	clients interfaces.ClientStore,
	cache interfaces.Cache,
	events interfaces.EventPublisher,
	clk clock.Clock,
	log *zap.Logger,
) *InteractionUsecase {
	return &InteractionUsecase{
		interactions: interactions,
		clients:      clients,
		cache:        cache,
		events:       events,
		clock:        clk,
		log:          log,
	}
}

func (u *InteractionUsecase) List(ctx context.Context, userID int64, f entities.InteractionFilter) ([]entities.Interaction, int, error) {
	return u.interactions.List(ctx, userID, f)
}

func (u *InteractionUsecase) Get(ctx context.Context, userID, id int64) (*entities.Interaction, error) {
	i, err := u.interactions.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := checkOwner(i.UserID, userID, "interaction"); err != nil {
		return nil, err
	}
	return i, nil
}

// Create logs an interaction and moves the client's last-contact time forward.
func (u *InteractionUsecase) Create(ctx context.Context, userID int64, in entities.InteractionInput) (*entities.Interaction, error) {
	c, err := u.clients.GetByID(ctx, in.ClientID)
	if err != nil {
		return nil, err
	}
	if err := checkOwner(c.UserID, userID, "client"); err != nil {
		return nil, err
	}

	i := &entities.Interaction{
		ClientID:   in.ClientID,
		UserID:     userID,
		Type:       in.Type,
		Notes:      in.Notes,
		OccurredAt: u.clock.Now(),
	}
	if in.OccurredAt != nil {
		i.OccurredAt = *in.OccurredAt
	}
	if err := u.interactions.Create(ctx, i); err != nil {
		return nil, err
	}
	if err := u.clients.TouchLastContact(ctx, c.ID, i.OccurredAt); err != nil {
		u.log.Warn("Failed to update client last contact", zap.Int64("client_id", c.ID), zap.Error(err))
	}

	written(ctx, u.cache, u.events, entities.DomainEvent{UserID: userID, Name: entities.EventInteractionLogged, Data: i})
	return i, nil
}
