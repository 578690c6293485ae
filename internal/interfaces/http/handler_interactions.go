package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"tracker_suite/internal/entities"
)

func (h *Handler) ListInteractions(envelope bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		f := entities.InteractionFilter{
			ClientID: queryInt64(c, "client_id"),
			Type:     c.Query("type"),
		}
		f.Page, f.Limit = entities.NormalizePage(queryInt(c, "page"), queryInt(c, "limit"))

		items, total, err := h.svc.Interactions.List(c.Request.Context(), userID(c), f)
		if err != nil {
			respondError(c, h.log, err)
			return
		}
		listResponse(c, envelope, items, f.Page, f.Limit, total)
	}
}

func (h *Handler) GetInteraction(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	item, err := h.svc.Interactions.Get(c.Request.Context(), userID(c), id)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

func (h *Handler) CreateInteraction(c *gin.Context) {
	var in entities.InteractionInput
	if !bindJSON(c, &in) {
		return
	}
	item, err := h.svc.Interactions.Create(c.Request.Context(), userID(c), in)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, item)
}
