package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"tracker_suite/internal/entities"
)

// AdminStats returns platform statistics
func (h *Handler) AdminStats(c *gin.Context) {
	stats, err := h.svc.Admin.Stats(c.Request.Context())
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// AdminRuntime reports the in-process counters of background components
func (h *Handler) AdminRuntime(c *gin.Context) {
	out := make(gin.H, len(h.svc.Runtime))
	for name, p := range h.svc.Runtime {
		out[name] = p.GetStats()
	}
	c.JSON(http.StatusOK, out)
}

// AdminListUsers returns one page of users, optionally filtered by search and status
func (h *Handler) AdminListUsers(c *gin.Context) {
	f := entities.UserFilter{
		Search: c.Query("search"),
		Status: c.Query("status"),
	}
	f.Page, f.Limit = entities.NormalizePage(queryInt(c, "page"), queryInt(c, "limit"))

	users, total, err := h.svc.Admin.ListUsers(c.Request.Context(), f)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	listResponse(c, true, users, f.Page, f.Limit, total)
}

func (h *Handler) AdminGetUser(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	user, err := h.svc.Admin.GetUser(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// AdminSetStatus changes a user's account status
func (h *Handler) AdminSetStatus(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var payload struct {
		Status string `json:"status" binding:"required,oneof=trial active expired cancelled"`
	}
	if !bindJSON(c, &payload) {
		return
	}
	user, err := h.svc.Admin.SetStatus(c.Request.Context(), currentUser(c), id, payload.Status)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (h *Handler) AdminExtendTrial(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var payload struct {
		Days int `json:"days" binding:"required,min=1,max=365"`
	}
	if !bindJSON(c, &payload) {
		return
	}
	user, err := h.svc.Admin.ExtendTrial(c.Request.Context(), currentUser(c), id, payload.Days)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (h *Handler) AdminSetPermissions(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var payload struct {
		Permissions []string `json:"permissions" binding:"max=50,dive,max=100"`
	}
	if !bindJSON(c, &payload) {
		return
	}
	user, err := h.svc.Admin.SetPermissions(c.Request.Context(), currentUser(c), id, payload.Permissions)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// AdminSetRole is restricted to the master admin
func (h *Handler) AdminSetRole(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var payload struct {
		Role string `json:"role" binding:"required,oneof=user admin master_admin"`
	}
	if !bindJSON(c, &payload) {
		return
	}
	user, err := h.svc.Admin.SetAdminRole(c.Request.Context(), currentUser(c), id, payload.Role)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// AdminDeleteUser removes a user and everything they own
func (h *Handler) AdminDeleteUser(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := h.svc.Admin.DeleteUser(c.Request.Context(), currentUser(c), id); err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "user deleted", "id": id})
}

// AdminTrialCheck runs one trial monitor cycle now
func (h *Handler) AdminTrialCheck(c *gin.Context) {
	res, err := h.svc.Admin.RunTrialCheck(c.Request.Context())
	if err != nil && res.Failures == 0 {
		respondError(c, h.log, err)
		return
	}
	body := gin.H{"result": res}
	if err != nil {
		body["errors"] = err.Error()
	}
	c.JSON(http.StatusOK, body)
}
