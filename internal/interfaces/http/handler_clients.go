package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"tracker_suite/internal/entities"
)

func (h *Handler) ListClients(envelope bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		f := entities.ClientFilter{
			Status:   c.Query("status"),
			Priority: c.Query("priority"),
			Category: c.Query("category"),
			Source:   c.Query("source"),
			Tag:      c.Query("tag"),
			Search:   c.Query("search"),
			Sort:     c.Query("sort"),
			Order:    c.Query("order"),
		}
		f.Page, f.Limit = entities.NormalizePage(queryInt(c, "page"), queryInt(c, "limit"))

		clients, total, err := h.svc.Clients.List(c.Request.Context(), userID(c), f)
		if err != nil {
			respondError(c, h.log, err)
			return
		}
		listResponse(c, envelope, clients, f.Page, f.Limit, total)
	}
}

func (h *Handler) GetClient(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	client, err := h.svc.Clients.Get(c.Request.Context(), userID(c), id)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, client)
}

func (h *Handler) CreateClient(c *gin.Context) {
	var in entities.ClientInput
	if !bindJSON(c, &in) {
		return
	}
	client, err := h.svc.Clients.Create(c.Request.Context(), userID(c), in)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, client)
}

func (h *Handler) UpdateClient(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var patch entities.ClientPatch
	if !bindJSON(c, &patch) {
		return
	}
	client, err := h.svc.Clients.Update(c.Request.Context(), userID(c), id, patch)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, client)
}

func (h *Handler) DeleteClient(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := h.svc.Clients.Delete(c.Request.Context(), userID(c), id); err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "client deleted", "id": id})
}
