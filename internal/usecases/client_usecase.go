package usecases

import (
	"context"

	"tracker_suite/internal/entities"
	"tracker_suite/internal/interfaces"
)

type ClientUsecase struct {
	clients interfaces.ClientStore
	cache   interfaces.Cache
	events  interfaces.EventPublisher
}

func NewClientUsecase(clients interfaces.ClientStore, cache interfaces.Cache, events interfaces.EventPublisher) *ClientUsecase {
	return &ClientUsecase{clients: clients, cache: cache, events: events}
}

// checkOwner returns a forbidden error when the row belongs to someone else.
func checkOwner(ownerID, userID int64, what string) error {
	if ownerID != userID {
		return entities.Forbidden("you do not have access to this " + what)
	}
	return nil
}

// written invalidates the user's cached reads and publishes evt.
func written(ctx context.Context, cache interfaces.Cache, events interfaces.EventPublisher, evt entities.DomainEvent) {
	if cache != nil {
		cache.Invalidate(evt.UserID)
	}
	if events != nil {
		events.Publish(ctx, evt)
	}
}

func (u *ClientUsecase) List(ctx context.Context, userID int64, f entities.ClientFilter) ([]entities.Client, int, error) {
	if f.Status != "" && !entities.ValidClientStatus(f.Status) {
		return nil, 0, entities.Invalid("invalid status filter")
	}
	if f.Priority != "" && !entities.ValidPriority(f.Priority) {
		return nil, 0, entities.Invalid("invalid priority filter")
	}
	return u.clients.List(ctx, userID, f)
}

func (u *ClientUsecase) Get(ctx context.Context, userID, id int64) (*entities.Client, error) {
	c, err := u.clients.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := checkOwner(c.UserID, userID, "client"); err != nil {
		return nil, err
	}
	return c, nil
}

func (u *ClientUsecase) Create(ctx context.Context, userID int64, in entities.ClientInput) (*entities.Client, error) {
	c := in.Client(userID)
	if err := u.clients.Create(ctx, c); err != nil {
		return nil, err
	}
	written(ctx, u.cache, u.events, entities.DomainEvent{UserID: userID, Name: entities.EventClientCreated, Data: c})
	return c, nil
}

func (u *ClientUsecase) Update(ctx context.Context, userID, id int64, patch entities.ClientPatch) (*entities.Client, error) {
	c, err := u.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	patch.Apply(c)
	if err := u.clients.Update(ctx, c); err != nil {
		return nil, err
	}
	written(ctx, u.cache, u.events, entities.DomainEvent{UserID: userID, Name: entities.EventClientUpdated, Data: c})
	return c, nil
}

// Delete removes the client with its follow-ups and interactions.
func (u *ClientUsecase) Delete(ctx context.Context, userID, id int64) error {
	c, err := u.Get(ctx, userID, id)
	if err != nil {
		return err
	}
	if err := u.clients.Delete(ctx, id); err != nil {
		return err
	}
	written(ctx, u.cache, u.events, entities.DomainEvent{UserID: userID, Name: entities.EventClientDeleted, Data: c})
	return nil
}
