package usecases

import (
	"context"

	"go.uber.org/zap"

	"tracker_suite/internal/entities"
	"tracker_suite/internal/interfaces"
)

// EventBus hands domain events to the webhook dispatcher and the journey service.
type EventBus struct {
	dispatcher *WebhookDispatcher
	journey    *JourneyService
	log        *zap.Logger
}

var _ interfaces.EventPublisher = (*EventBus)(nil)

func NewEventBus(dispatcher *WebhookDispatcher, journey *JourneyService, log *zap.Logger) *EventBus {
	return &EventBus{dispatcher: dispatcher, journey: journey, log: log}
}

// Publish never fails the caller; problems are logged.
func (b *EventBus) Publish(ctx context.Context, evt entities.DomainEvent) {
	if b.dispatcher != nil && entities.ValidEvent(evt.Name) {
		if err := b.dispatcher.Dispatch(ctx, evt.UserID, evt.Name, evt.Data); err != nil {
			b.log.Error("Webhook dispatch failed",
				zap.Int64("user_id", evt.UserID), zap.String("event", evt.Name), zap.Error(err))
		}
	}
	if b.journey != nil {
		if types := milestonesForEvent(evt.Name); len(types) > 0 {
			b.journey.CheckMilestones(ctx, evt.UserID, types...)
		}
	}
}
