// Package ws serves the persistent collaboration connection over WebSocket.
package ws

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gogotex/diagramsync/internal/collab"
	"github.com/gogotex/diagramsync/internal/config"
	"github.com/gogotex/diagramsync/internal/identity"
	"github.com/gogotex/diagramsync/pkg/logger"
	"github.com/gorilla/websocket"
)

// Options tunes connection behaviour. Zero values fall back to defaults.
type Options struct {
	SendBuffer       int
	WriteTimeout     time.Duration
	IdleTimeout      time.Duration
	HandshakeTimeout time.Duration
	MaxMessageBytes  int64
	MessageRPS       float64
	MessageBurst     int
	// ReverifyInterval > 0 re-checks the session credential periodically.
	ReverifyInterval time.Duration
	AllowedOrigins   []string
}

func OptionsFromConfig(c config.CollabConfig, origins ...string) Options {
	return Options{
		SendBuffer:       c.SendBuffer,
		WriteTimeout:     c.WriteTimeout,
		IdleTimeout:      c.IdleTimeout,
		HandshakeTimeout: c.HandshakeTimeout,
		MaxMessageBytes:  c.MaxMessageBytes,
		MessageRPS:       c.MessageRPS,
		MessageBurst:     c.MessageBurst,
		ReverifyInterval: c.ReverifyInterval,
		AllowedOrigins:   origins,
	}
}

func (o Options) withDefaults() Options {
	if o.SendBuffer <= 0 {
		o.SendBuffer = 64
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 10 * time.Second
	}
	if o.IdleTimeout <= 0 {
		o.IdleTimeout = 60 * time.Second
	}
	if o.HandshakeTimeout <= 0 {
		o.HandshakeTimeout = 10 * time.Second
	}
	if o.MaxMessageBytes <= 0 {
		o.MaxMessageBytes = 1 << 20
	}
	return o
}

// Handler upgrades GET /ws requests and runs one client per connection.
type Handler struct {
	hub      *collab.Hub
	verifier identity.Verifier
	opts     Options
	upgrader websocket.Upgrader
}

func NewHandler(hub *collab.Hub, verifier identity.Verifier, opts Options) *Handler {
	opts = opts.withDefaults()
	h := &Handler{hub: hub, verifier: verifier, opts: opts}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(h.opts.AllowedOrigins) == 0 {
		return true
	}
	for _, o := range h.opts.AllowedOrigins {
		if o == "*" || strings.EqualFold(o, origin) {
			return true
		}
	}
	return false
}

// requestToken reads the credential from the Authorization header or the token query parameter.
func requestToken(r *http.Request) string {
	if tok, ok := identity.BearerToken(r.Header.Get("Authorization")); ok {
		return tok
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}

// Serve handles the upgrade. A credential sent with the request is verified
// before upgrading (401 on failure); otherwise the first frame must be an
// auth message, and a bad one closes the socket with a policy-violation frame.
func (h *Handler) Serve(c *gin.Context) {
	ctx := c.Request.Context()
	token := requestToken(c.Request)
	var id identity.Identity
	if token != "" {
		var err error
		id, err = h.verifier.Verify(ctx, token)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
			return
		}
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warnf("ws upgrade failed: %v", err)
		return
	}

	s := collab.NewSession(h.opts.SendBuffer)
	if token == "" {
		id, token, err = h.handshake(ctx, conn)
		if err != nil {
			logger.WithFields(logger.Fields{"session_id": s.ID, "remote": c.ClientIP()}).Infof("ws handshake rejected: %v", err)
			s.Close()
			h.closeWith(conn, websocket.ClosePolicyViolation, "unauthenticated")
			return
		}
	}
	if err := s.Authenticate(id, token); err != nil {
		h.closeWith(conn, websocket.CloseInternalServerErr, "session error")
		return
	}
	if err := h.hub.Open(s); err != nil {
		h.closeWith(conn, websocket.CloseInternalServerErr, "session error")
		return
	}

	cl := newClient(h, conn, s)
	cl.run()
}

// handshake waits for the first frame, which must be an auth message with a valid token.
func (h *Handler) handshake(ctx context.Context, conn *websocket.Conn) (identity.Identity, string, error) {
	conn.SetReadLimit(h.opts.MaxMessageBytes)
	_ = conn.SetReadDeadline(time.Now().Add(h.opts.HandshakeTimeout))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		return identity.Identity{}, "", err
	}
	msg, err := collab.DecodeInbound(raw)
	if err != nil {
		return identity.Identity{}, "", err
	}
	auth, ok := msg.(collab.Auth)
	if !ok {
		return identity.Identity{}, "", errors.New("first message must be auth")
	}
	id, err := h.verifier.Verify(ctx, auth.Token)
	if err != nil {
		return identity.Identity{}, "", err
	}
	_ = conn.SetReadDeadline(time.Time{})
	return id, auth.Token, nil
}

func (h *Handler) closeWith(conn *websocket.Conn, code int, reason string) {
	deadline := time.Now().Add(h.opts.WriteTimeout)
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
	_ = conn.Close()
}
