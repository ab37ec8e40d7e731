package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gogotex/diagramsync/internal/collab"
	"github.com/gogotex/diagramsync/internal/identity"
	"github.com/gogotex/diagramsync/internal/tokens"
	"github.com/gogotex/diagramsync/internal/users"
	"github.com/gogotex/diagramsync/pkg/logger"
	"github.com/gogotex/diagramsync/pkg/middleware"
)

// Revoker blacklists an access token until ttl elapses.
type Revoker interface {
	Revoke(ctx context.Context, token string, ttl time.Duration) error
}

// SessionLister finds the live sessions of a user.
type SessionLister interface {
	SessionsOf(userID string) []*collab.Session
}

// AuthHandler holds dependencies
type AuthHandler struct {
	secret   string
	ttl      time.Duration
	usersSvc *users.Service
	revoker  Revoker
	sessions SessionLister
}

// NewAuthHandler wires the auth routes. usersSvc, revoker and sessions may be nil.
func NewAuthHandler(secret string, ttl time.Duration, u *users.Service, r Revoker, s SessionLister) *AuthHandler {
	return &AuthHandler{secret: secret, ttl: ttl, usersSvc: u, revoker: r, sessions: s}
}

// Register mounts the routes that require an authenticated caller.
func (h *AuthHandler) Register(authed *gin.RouterGroup) {
	authed.POST("/auth/logout", h.Logout)
	authed.GET("/api/v1/me", h.Me)
}

// RegisterDevTokens mounts POST /auth/dev-token, which signs a token for any
// requested identity. Only for local development.
func (h *AuthHandler) RegisterDevTokens(rg *gin.RouterGroup) {
	rg.POST("/auth/dev-token", h.DevToken)
}

// Logout revokes the caller's token until it would have expired and closes
// the live sessions opened with it.
func (h *AuthHandler) Logout(c *gin.Context) {
	id, _ := middleware.IdentityFrom(c)
	token := middleware.TokenFrom(c)

	revoked := false
	if h.revoker != nil {
		ttl := h.ttl
		if exp, err := tokens.ExpiresAt(token); err == nil {
			ttl = time.Until(exp)
		}
		if err := h.revoker.Revoke(c.Request.Context(), token, ttl); err != nil {
			logger.Errorf("revoke token for %s: %v", id.ID, err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "failed to revoke token"})
			return
		}
		revoked = true
	}

	closed := 0
	if h.sessions != nil {
		for _, s := range h.sessions.SessionsOf(id.ID) {
			if s.Token() == token && s.Close() {
				closed++
			}
		}
	}
	logger.WithFields(logger.Fields{"user_id": id.ID, "closed_sessions": closed}).Info("logged out")
	c.JSON(http.StatusOK, gin.H{"message": "logged out", "revoked": revoked, "closedSessions": closed})
}

// Me upserts and returns the caller's profile.
func (h *AuthHandler) Me(c *gin.Context) {
	id, _ := middleware.IdentityFrom(c)
	if h.usersSvc == nil {
		c.JSON(http.StatusOK, gin.H{"user": id})
		return
	}
	u, err := h.usersSvc.UpsertFromIdentity(c.Request.Context(), id)
	if err != nil {
		logger.Warnf("user upsert failed for %s: %v", id.ID, err)
		c.JSON(http.StatusOK, gin.H{"user": id})
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": u})
}

// DevToken accepts { id, name, avatar } and returns a signed access token.
func (h *AuthHandler) DevToken(c *gin.Context) {
	var req identity.Identity
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	req.ID = strings.TrimSpace(req.ID)
	if req.ID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id is required"})
		return
	}
	if h.secret == "" {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "JWT secret not configured"})
		return
	}
	access, err := tokens.GenerateAccessToken(h.secret, req, h.ttl)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create access token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"accessToken": access, "expiresIn": int(h.ttl.Seconds()), "user": req})
}
