package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"tracker_suite/internal/entities"
)

// webhookResponse includes the secret only in the response that generated it.
type webhookResponse struct {
	*entities.Webhook
	Secret string `json:"secret,omitempty"`
}

func (h *Handler) ListWebhooks(envelope bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		hooks, err := h.svc.Webhooks.List(c.Request.Context(), userID(c))
		if err != nil {
			respondError(c, h.log, err)
			return
		}
		listResponse(c, envelope, hooks, 1, entities.MaxPageLimit, len(hooks))
	}
}

func (h *Handler) GetWebhook(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	hook, err := h.svc.Webhooks.Get(c.Request.Context(), userID(c), id)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, hook)
}

func (h *Handler) CreateWebhook(c *gin.Context) {
	var in entities.WebhookInput
	if !bindJSON(c, &in) {
		return
	}
	hook, secret, err := h.svc.Webhooks.Create(c.Request.Context(), userID(c), in)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, webhookResponse{Webhook: hook, Secret: secret})
}

func (h *Handler) UpdateWebhook(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var patch entities.WebhookPatch
	if !bindJSON(c, &patch) {
		return
	}
	hook, secret, err := h.svc.Webhooks.Update(c.Request.Context(), userID(c), id, patch)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, webhookResponse{Webhook: hook, Secret: secret})
}

func (h *Handler) DeleteWebhook(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := h.svc.Webhooks.Delete(c.Request.Context(), userID(c), id); err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "webhook deleted", "id": id})
}

func (h *Handler) WebhookDeliveries(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	deliveries, err := h.svc.Webhooks.Deliveries(c.Request.Context(), userID(c), id)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, deliveries)
}

// TestWebhook sends a webhook.test event and reports the delivery outcome.
func (h *Handler) TestWebhook(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	delivery, err := h.svc.Webhooks.Test(c.Request.Context(), userID(c), id)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":  delivery.Status == entities.DeliverySuccess,
		"delivery": delivery,
	})
}
