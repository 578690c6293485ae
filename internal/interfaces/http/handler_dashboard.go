package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (h *Handler) DashboardStats(c *gin.Context) {
	stats, err := h.svc.Dashboard.Stats(c.Request.Context(), userID(c))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *Handler) ClientsByStatus(c *gin.Context) {
	buckets, err := h.svc.Dashboard.ClientsByStatus(c.Request.Context(), userID(c))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, buckets)
}

func (h *Handler) ClientsBySource(c *gin.Context) {
	buckets, err := h.svc.Dashboard.ClientsBySource(c.Request.Context(), userID(c))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, buckets)
}

// FollowUpTrends takes ?days=N, capped at 90.
func (h *Handler) FollowUpTrends(c *gin.Context) {
	points, err := h.svc.Dashboard.FollowUpTrends(c.Request.Context(), userID(c), queryInt(c, "days"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, points)
}

func (h *Handler) InteractionsByType(c *gin.Context) {
	buckets, err := h.svc.Dashboard.InteractionsByType(c.Request.Context(), userID(c), queryInt(c, "days"))
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, buckets)
}
