package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"tracker_suite/internal/entities"
)

// session issues a token for user, sets the cookie and writes the response body.
func (h *Handler) session(c *gin.Context, status int, user *entities.User) {
	token, err := h.svc.Auth.IssueToken(user)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	setSessionCookie(c, token, h.secureCookie)
	c.JSON(status, gin.H{"user": user, "token": token})
}

func (h *Handler) Register(c *gin.Context) {
	var in entities.RegisterInput
	if !bindJSON(c, &in) {
		return
	}
	user, err := h.svc.Auth.Register(c.Request.Context(), in)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	h.session(c, http.StatusCreated, user)
}

func (h *Handler) Login(c *gin.Context) {
	var in entities.LoginInput
	if !bindJSON(c, &in) {
		return
	}
	user, err := h.svc.Auth.Login(c.Request.Context(), in.Email, in.Password)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	h.session(c, http.StatusOK, user)
}

func (h *Handler) Logout(c *gin.Context) {
	clearSessionCookie(c, h.secureCookie)
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

func (h *Handler) Me(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"user": currentUser(c)})
}

func (h *Handler) ChangePassword(c *gin.Context) {
	var in entities.PasswordChangeInput
	if !bindJSON(c, &in) {
		return
	}
	if err := h.svc.Auth.ChangePassword(c.Request.Context(), userID(c), in.CurrentPassword, in.NewPassword); err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "password updated"})
}
