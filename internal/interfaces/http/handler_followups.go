package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"tracker_suite/internal/entities"
)

func (h *Handler) ListFollowUps(envelope bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		f := entities.FollowUpFilter{
			Status:   c.Query("status"),
			ClientID: queryInt64(c, "client_id"),
			Priority: c.Query("priority"),
			Sort:     c.Query("sort"),
			Order:    c.Query("order"),
		}
		var err error
		if f.DueFrom, err = queryTime(c, "due_from"); err != nil {
			respondError(c, h.log, err)
			return
		}
		if f.DueTo, err = queryTime(c, "due_to"); err != nil {
			respondError(c, h.log, err)
			return
		}
		f.Page, f.Limit = entities.NormalizePage(queryInt(c, "page"), queryInt(c, "limit"))

		followUps, total, err := h.svc.FollowUps.List(c.Request.Context(), userID(c), f)
		if err != nil {
			respondError(c, h.log, err)
			return
		}
		listResponse(c, envelope, followUps, f.Page, f.Limit, total)
	}
}

func (h *Handler) GetFollowUp(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	f, err := h.svc.FollowUps.Get(c.Request.Context(), userID(c), id)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, f)
}

func (h *Handler) CreateFollowUp(c *gin.Context) {
	var in entities.FollowUpInput
	if !bindJSON(c, &in) {
		return
	}
	f, err := h.svc.FollowUps.Create(c.Request.Context(), userID(c), in)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusCreated, f)
}

func (h *Handler) UpdateFollowUp(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var patch entities.FollowUpPatch
	if !bindJSON(c, &patch) {
		return
	}
	f, err := h.svc.FollowUps.Update(c.Request.Context(), userID(c), id, patch)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, f)
}

func (h *Handler) CompleteFollowUp(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	f, err := h.svc.FollowUps.Complete(c.Request.Context(), userID(c), id)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, f)
}

func (h *Handler) DeleteFollowUp(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := h.svc.FollowUps.Delete(c.Request.Context(), userID(c), id); err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "follow-up deleted", "id": id})
}
