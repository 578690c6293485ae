package usecases

import (
	"context"

	"github.com/benbjohnson/clock"

	"tracker_suite/internal/entities"
	"tracker_suite/internal/interfaces"
)

type FollowUpUsecase struct {
	followUps interfaces.FollowUpStore
	clients   interfaces.ClientStore
	cache     interfaces.Cache
	events    interfaces.EventPublisher
	clock     clock.Clock
}

func NewFollowUpUsecase(
	followUps interfaces.FollowUpStore,
	clients interfaces.ClientStore,
	cache interfaces.Cache,
	events interfaces.EventPublisher,
	clk clock.Clock,
) *FollowUpUsecase {
	return &FollowUpUsecase{followUps: followUps, clients: clients, cache: cache, events: events, clock: clk}
}

func (u *FollowUpUsecase) List(ctx context.Context, userID int64, f entities.FollowUpFilter) ([]entities.FollowUp, int, error) {
	switch f.Status {
	case "", entities.FollowUpPending, entities.FollowUpCompleted, entities.FollowUpOverdue:
	default:
		return nil, 0, entities.Invalid("invalid status filter")
	}
	if f.Priority != "" && !entities.ValidPriority(f.Priority) {
		return nil, 0, entities.Invalid("invalid priority filter")
	}
	now := u.clock.Now()
	items, total, err := u.followUps.List(ctx, userID, f, now)
	if err != nil {
		return nil, 0, err
	}
	for i := range items {
		items[i].Status = items[i].EffectiveStatus(now)
	}
	return items, total, nil
}

func (u *FollowUpUsecase) Get(ctx context.Context, userID, id int64) (*entities.FollowUp, error) {
	f, err := u.load(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	return u.present(f), nil
}

// present returns a copy of f carrying the status users see. Overdue is never written back.
func (u *FollowUpUsecase) present(f *entities.FollowUp) *entities.FollowUp {
	out := *f
	out.Status = f.EffectiveStatus(u.clock.Now())
	return &out
}

func (u *FollowUpUsecase) load(ctx context.Context, userID, id int64) (*entities.FollowUp, error) {
	f, err := u.followUps.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := checkOwner(f.UserID, userID, "follow-up"); err != nil {
		return nil, err
	}
	return f, nil
}

func (u *FollowUpUsecase) Create(ctx context.Context, userID int64, in entities.FollowUpInput) (*entities.FollowUp, error) {
	c, err := u.clients.GetByID(ctx, in.ClientID)
	if err != nil {
		return nil, err
	}
	if err := checkOwner(c.UserID, userID, "client"); err != nil {
		return nil, err
	}

	f := in.FollowUp(userID)
	if err := u.followUps.Create(ctx, f); err != nil {
		return nil, err
	}
	written(ctx, u.cache, u.events, entities.DomainEvent{UserID: userID, Name: entities.EventFollowUpCreated, Data: f})
	return u.present(f), nil
}

func (u *FollowUpUsecase) Update(ctx context.Context, userID, id int64, patch entities.FollowUpPatch) (*entities.FollowUp, error) {
	f, err := u.load(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	wasCompleted := f.Status == entities.FollowUpCompleted
	patch.Apply(f, u.clock.Now())
	return u.save(ctx, userID, f, wasCompleted)
}

// Complete marks the follow-up completed. Completing an already completed follow-up is a no-op.
func (u *FollowUpUsecase) Complete(ctx context.Context, userID, id int64) (*entities.FollowUp, error) {
	f, err := u.load(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if f.Status == entities.FollowUpCompleted {
		return u.present(f), nil
	}
	f.SetStatus(entities.FollowUpCompleted, u.clock.Now())
	return u.save(ctx, userID, f, false)
}

func (u *FollowUpUsecase) save(ctx context.Context, userID int64, f *entities.FollowUp, wasCompleted bool) (*entities.FollowUp, error) {
	if err := u.followUps.Update(ctx, f); err != nil {
		return nil, err
	}
	if !wasCompleted && f.Status == entities.FollowUpCompleted {
		written(ctx, u.cache, u.events, entities.DomainEvent{UserID: userID, Name: entities.EventFollowUpCompleted, Data: f})
	} else {
		u.cache.Invalidate(userID)
	}
	return u.present(f), nil
}

func (u *FollowUpUsecase) Delete(ctx context.Context, userID, id int64) error {
	if _, err := u.load(ctx, userID, id); err != nil {
		return err
	}
	if err := u.followUps.Delete(ctx, id); err != nil {
		return err
	}
	u.cache.Invalidate(userID)
	return nil
}
