package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"tracker_suite/internal/entities"
	"tracker_suite/internal/infrastructure"
	"tracker_suite/internal/usecases"
)

// SessionCookie carries the session token for browser clients.
const SessionCookie = "connect.sid"

const (
	ctxUser      = "user"
	ctxUserID    = "user_id"
	ctxRequestID = "request_id"

	requestIDHeader = "X-Request-ID"
)

type MiddlewareConfig struct {
	AllowedOrigins []string
	SecureCookie   bool
}

type Middleware struct {
	auth         *usecases.AuthUsecase
	limiter      *infrastructure.UserRateLimiter
	origins      map[string]bool
	anyOrigin    bool
	secureCookie bool
	clock        clock.Clock
	metrics      *infrastructure.HTTPMetrics
	log          *zap.Logger
}

func NewMiddleware(
	auth *usecases.AuthUsecase,
	limiter *infrastructure.UserRateLimiter,
	cfg MiddlewareConfig,
	clk clock.Clock,
	metrics *infrastructure.HTTPMetrics,
	log *zap.Logger,
) *Middleware {
	if metrics == nil {
		metrics = infrastructure.NewHTTPMetrics(nil)
	}
	m := &Middleware{
		auth:         auth,
		limiter:      limiter,
		origins:      make(map[string]bool, len(cfg.AllowedOrigins)),
		secureCookie: cfg.SecureCookie,
		clock:        clk,
		metrics:      metrics,
		log:          log,
	}
	for _, o := range cfg.AllowedOrigins {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		if o == "*" {
			m.anyOrigin = true
		}
		if o != "" {
			m.origins[o] = true
		}
	}
	return m
}

// currentUser returns the user loaded by AuthRequired.
func currentUser(c *gin.Context) *entities.User {
	v, ok := c.Get(ctxUser)
	if !ok {
		return nil
	}
	u, _ := v.(*entities.User)
	return u
}

func setSessionCookie(c *gin.Context, token string, secure bool) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(SessionCookie, token, int(usecases.SessionTTL.Seconds()), "/", "", secure, true)
}

func clearSessionCookie(c *gin.Context, secure bool) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(SessionCookie, "", -1, "/", "", secure, true)
}

// sessionToken reads the token from the Authorization header or the session cookie.
func sessionToken(c *gin.Context) (token string, fromCookie bool) {
	if h := c.GetHeader("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer ")), false
	}
	if v, err := c.Cookie(SessionCookie); err == nil && v != "" {
		return v, true
	}
	return "", false
}

// AuthRequired loads the session user. Cookie sessions older than the refresh
// interval are re-issued so the expiry slides with activity.
func (m *Middleware) AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, fromCookie := sessionToken(c)
		if raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required", "code": entities.EUnauthorized})
			return
		}

		claims, err := m.auth.ParseToken(raw)
		if err != nil {
			if fromCookie {
				clearSessionCookie(c, m.secureCookie)
			}
			respondError(c, m.log, err)
			return
		}

		user, err := m.auth.Me(c.Request.Context(), claims.UserID)
		if errors.Is(err, entities.ErrNotFound) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "session user no longer exists", "code": entities.EUnauthorized})
			return
		}
		if err != nil {
			respondError(c, m.log, err)
			return
		}

		c.Set(ctxUser, user)
		c.Set(ctxUserID, user.ID)

		if fromCookie && m.auth.NeedsRefresh(claims) {
			token, err := m.auth.IssueToken(user)
			if err != nil {
				m.log.Warn("Failed to refresh session", zap.Int64("user_id", user.ID), zap.Error(err))
			} else {
				setSessionCookie(c, token, m.secureCookie)
			}
		}

		c.Next()
	}
}

// AdminRequired must follow AuthRequired.
func (m *Middleware) AdminRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		user := currentUser(c)
		if user == nil || !user.IsAdmin() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin access required", "code": entities.EForbidden})
			return
		}
		c.Next()
	}
}

func (m *Middleware) MasterAdminRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		user := currentUser(c)
		if user == nil || user.AdminRole != entities.AdminRoleMaster {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "master admin access required", "code": entities.EForbidden})
			return
		}
		c.Next()
	}
}

// SubscriptionRequired rejects accounts without a running trial or an active subscription.
func (m *Middleware) SubscriptionRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		user := currentUser(c)
		if user == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required", "code": entities.EUnauthorized})
			return
		}
		if !user.HasAccess(m.clock.Now()) {
			c.AbortWithStatusJSON(http.StatusPaymentRequired, gin.H{
				"error":          "an active subscription is required",
				"code":           "subscription_required",
				"account_status": user.AccountStatus,
				"trial_ends_at":  user.TrialEndsAt,
			})
			return
		}
		c.Next()
	}
}

// RateLimit keys authenticated requests by user and everything else by client IP.
func (m *Middleware) RateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := "ip:" + c.ClientIP()
		if id, ok := c.Get(ctxUserID); ok {
			key = "user:" + strconv.FormatInt(id.(int64), 10)
		}
		if !m.limiter.Allow(key) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}

// CORSMiddleware allows credentialed requests from the configured origins.
func (m *Middleware) CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := strings.TrimRight(c.GetHeader("Origin"), "/")
		if origin != "" && (m.anyOrigin || m.origins[origin]) {
			h := c.Writer.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Add("Vary", "Origin")
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, Accept, Origin, Cache-Control, X-Requested-With, X-Request-ID")
			h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
			h.Set("Access-Control-Max-Age", "600")
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// RequestID propagates the caller's X-Request-ID or assigns a new one.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		c.Set(ctxRequestID, id)
		c.Writer.Header().Set(requestIDHeader, id)
		c.Next()
	}
}

// RequestLogger logs and counts every request once it has been handled.
func (m *Middleware) RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := m.clock.Now()
		c.Next()
		latency := m.clock.Now().Sub(start)

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		m.metrics.Requests.WithLabelValues(c.Request.Method, route, strconv.Itoa(status)).Inc()
		m.metrics.Duration.WithLabelValues(c.Request.Method, route).Observe(latency.Seconds())

		level := zapcore.InfoLevel
		switch {
		case status >= 500:
			level = zapcore.ErrorLevel
		case status >= 400:
			level = zapcore.WarnLevel
		}
		if ce := m.log.Check(level, "HTTP request"); ce != nil {
			ce.Write(
				zap.String("method", c.Request.Method),
				zap.String("path", c.Request.URL.Path),
				zap.Int("status", status),
				zap.Duration("latency", latency),
				zap.String("request_id", c.GetString(ctxRequestID)),
				zap.Int64("user_id", c.GetInt64(ctxUserID)),
				zap.String("client_ip", c.ClientIP()),
			)
		}
	}
}

// SecurityHeaders adds security headers to prevent common attacks
func SecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("X-XSS-Protection", "1; mode=block")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		c.Next()
	}
}

// RequestSizeLimiter limits request body size
func RequestSizeLimiter(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// Timeout bounds the request context handed to usecases.
func Timeout(d time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), d)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
