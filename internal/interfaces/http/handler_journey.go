package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (h *Handler) JourneyProgress(c *gin.Context) {
	p, err := h.svc.Journey.Progress(c.Request.Context(), userID(c))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *Handler) JourneyMilestones(c *gin.Context) {
	views, err := h.svc.Journey.Milestones(c.Request.Context(), userID(c))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, views)
}

// CompleteMilestone marks a manual milestone such as the dashboard tour as done.
func (h *Handler) CompleteMilestone(c *gin.Context) {
	uid := userID(c)
	completed, err := h.svc.Journey.CompleteManual(c.Request.Context(), uid, c.Param("type"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	p, err := h.svc.Journey.Progress(c.Request.Context(), uid)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"completed": completed, "progress": p})
}
