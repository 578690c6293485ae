package usecases

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"

	"tracker_suite/internal/entities"
	"tracker_suite/internal/interfaces"
)

const deliveryListLimit = 50

type WebhookUsecase struct {
	webhooks   interfaces.WebhookStore
	deliveries interfaces.DeliveryStore
	dispatcher *WebhookDispatcher
	journey    *JourneyService
	cache      interfaces.Cache
}

func NewWebhookUsecase(
	webhooks interfaces.WebhookStore,
	deliveries interfaces.DeliveryStore,
	dispatcher *WebhookDispatcher,
	journey *JourneyService,
	cache interfaces.Cache,
) *WebhookUsecase {
	return &WebhookUsecase{
		webhooks:   webhooks,
		deliveries: deliveries,
		dispatcher: dispatcher,
		journey:    journey,
		cache:      cache,
	}
}

// GenerateSecret returns 32 random bytes hex encoded.
func GenerateSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate webhook secret: %w", err)
	}
	return hex.EncodeToString(b), nil
}

func validateWebhook(w *entities.Webhook) error {
	u, err := url.Parse(w.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return entities.Invalid("url must be an absolute http or https URL")
	}
	if len(w.Events) == 0 {
		return entities.Invalid("at least one event is required")
	}
	for _, e := range w.Events {
		if !entities.ValidEvent(e) {
			return entities.Invalid(fmt.Sprintf("unknown event %q (allowed: %s)", e, strings.Join(entities.SubscribableEvents, ", ")))
		}
	}
	return nil
}

func (u *WebhookUsecase) List(ctx context.Context, userID int64) ([]entities.Webhook, error) {
	return u.webhooks.ListByUser(ctx, userID)
}

func (u *WebhookUsecase) Get(ctx context.Context, userID, id int64) (*entities.Webhook, error) {
	w, err := u.webhooks.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := checkOwner(w.UserID, userID, "webhook"); err != nil {
		return nil, err
	}
	return w, nil
}

// Create stores a webhook. The returned secret is only non-empty when one was generated,
// so it can be shown to the user once.
func (u *WebhookUsecase) Create(ctx context.Context, userID int64, in entities.WebhookInput) (*entities.Webhook, string, error) {
	w := &entities.Webhook{
		UserID:  userID,
		URL:     in.URL,
		Events:  in.Events,
		Secret:  in.Secret,
		Active:  true,
		Headers: in.Headers,
	}
	if in.Active != nil {
		w.Active = *in.Active
	}
	var generated string
	if in.GenerateSecret {
		s, err := GenerateSecret()
		if err != nil {
			return nil, "", err
		}
		w.Secret, generated = s, s
	}
	if err := validateWebhook(w); err != nil {
		return nil, "", err
	}
	if err := u.webhooks.Create(ctx, w); err != nil {
		return nil, "", err
	}
	u.cache.Invalidate(userID)
	u.journey.CheckMilestones(ctx, userID, entities.MilestoneWebhookConfigured)
	return w, generated, nil
}

func (u *WebhookUsecase) Update(ctx context.Context, userID, id int64, patch entities.WebhookPatch) (*entities.Webhook, string, error) {
	w, err := u.Get(ctx, userID, id)
	if err != nil {
		return nil, "", err
	}
	patch.Apply(w)
	var generated string
	if patch.GenerateSecret {
		s, err := GenerateSecret()
		if err != nil {
			return nil, "", err
		}
		w.Secret, w.HasSecret, generated = s, true, s
	}
	if err := validateWebhook(w); err != nil {
		return nil, "", err
	}
	if err := u.webhooks.Update(ctx, w); err != nil {
		return nil, "", err
	}
	u.cache.Invalidate(userID)
	return w, generated, nil
}

func (u *WebhookUsecase) Delete(ctx context.Context, userID, id int64) error {
	if _, err := u.Get(ctx, userID, id); err != nil {
		return err
	}
	if err := u.webhooks.Delete(ctx, id); err != nil {
		return err
	}
	u.cache.Invalidate(userID)
	return nil
}

func (u *WebhookUsecase) Deliveries(ctx context.Context, userID, id int64) ([]entities.WebhookDelivery, error) {
	if _, err := u.Get(ctx, userID, id); err != nil {
		return nil, err
	}
	return u.deliveries.ListDeliveries(ctx, id, deliveryListLimit)
}

// Test sends a webhook.test event synchronously, even to an inactive webhook.
func (u *WebhookUsecase) Test(ctx context.Context, userID, id int64) (*entities.WebhookDelivery, error) {
	w, err := u.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	return u.dispatcher.Test(ctx, w)
}
