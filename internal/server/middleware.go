package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/MarcoPoloResearchLab/churchmate/internal/auth"
)

const (
	requestIDHeader       = "X-Request-ID"
	requestIDContextKey   = "churchmate_request_id"
	userIDContextKey      = "churchmate_user_id"
	claimsContextKey      = "churchmate_session_claims"
	accessTokenQueryParam = "access_token"
)

// corsMiddleware allows any origin without credentials unless an explicit
// allowlist is configured; only listed origins may send the session cookie.
func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	config := cors.Config{
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowHeaders:  []string{"Authorization", "Content-Type", requestIDHeader},
		ExposeHeaders: []string{requestIDHeader},
		MaxAge:        12 * time.Hour,
	}
	if len(allowedOrigins) == 0 {
		config.AllowOrigins = []string{"*"}
		return cors.New(config)
	}
	config.AllowOrigins = append([]string(nil), allowedOrigins...)
	config.AllowCredentials = true
	return cors.New(config)
}

// requestIDMiddleware keeps a caller-supplied request id or assigns a new one.
func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := strings.TrimSpace(c.GetHeader(requestIDHeader))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set(requestIDContextKey, requestID)
		c.Header(requestIDHeader, requestID)
		c.Next()
	}
}

func accessLogMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		c.Next()
		logger.Debug("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(started)),
			zap.String("request_id", c.GetString(requestIDContextKey)))
	}
}

// authorizeRequest accepts a bearer header, the session cookie, or an
// access_token query parameter for event streams that cannot set headers.
func (h *httpHandler) authorizeRequest(c *gin.Context) {
	var (
		claims auth.SessionClaims
		err    error
	)
	if token := strings.TrimSpace(c.Query(accessTokenQueryParam)); token != "" {
		claims, err = h.sessions.ValidateToken(token)
	} else {
		claims, err = h.sessions.ValidateRequest(c.Request)
	}
	if err != nil {
		h.logTokenFailure(err, c.GetString(requestIDContextKey))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(userIDContextKey, claims.UserID)
	c.Set(claimsContextKey, claims)
	c.Next()
}

func (h *httpHandler) requireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		value, ok := c.Get(claimsContextKey)
		claims, isClaims := value.(auth.SessionClaims)
		if !ok || !isClaims || !claims.HasRole(role) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}

// logTokenFailure keeps routine expiries and missing tokens out of warn logs.
func (h *httpHandler) logTokenFailure(err error, requestID string) {
	fields := []zap.Field{zap.Error(err), zap.String("request_id", requestID)}
	if errors.Is(err, auth.ErrExpiredSessionToken) || errors.Is(err, jwt.ErrTokenExpired) || errors.Is(err, auth.ErrMissingSessionToken) {
		h.logger.Info("token validation failed", fields...)
		return
	}
	h.logger.Warn("token validation failed", fields...)
}
