package ws

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gogotex/diagramsync/internal/collab"
	"github.com/gogotex/diagramsync/pkg/logger"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

type closeFrame struct {
	code   int
	reason string
}

// client pumps frames between one WebSocket and its session.
// Only writePump writes to conn once the client is running.
type client struct {
	h       *Handler
	conn    *websocket.Conn
	s       *collab.Session
	limiter *rate.Limiter
	log     *logrus.Entry

	mu    sync.Mutex
	close closeFrame
}

func newClient(h *Handler, conn *websocket.Conn, s *collab.Session) *client {
	c := &client{
		h:     h,
		conn:  conn,
		s:     s,
		log:   logger.WithFields(logger.Fields{"session_id": s.ID, "user_id": s.UserID()}),
		close: closeFrame{code: websocket.CloseNormalClosure, reason: "session closed"},
	}
	if h.opts.MessageRPS > 0 {
		burst := h.opts.MessageBurst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(h.opts.MessageRPS), burst)
	}
	return c
}

// run blocks until the connection is finished.
func (c *client) run() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.writePump()
	}()
	if c.h.opts.ReverifyInterval > 0 {
		go c.reverify(ctx)
	}
	c.readPump(ctx)
	wg.Wait()
}

func (c *client) endWith(code int, reason string) {
	c.mu.Lock()
	c.close = closeFrame{code: code, reason: reason}
	c.mu.Unlock()
	c.s.Close()
}

func (c *client) readPump(ctx context.Context) {
	defer func() {
		c.h.hub.Close(c.s)
		_ = c.conn.Close()
		c.log.Info("session closed")
	}()

	idle := c.h.opts.IdleTimeout
	c.conn.SetReadLimit(c.h.opts.MaxMessageBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(idle))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(idle))
	})

	for {
		typ, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				c.log.WithError(err).Warn("ws read error")
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(idle))
		if typ != websocket.TextMessage {
			continue
		}
		if c.limiter != nil && !c.limiter.Allow() {
			_ = c.s.Deliver(collab.Error{Code: collab.CodeRateLimited, Reason: "too many messages"})
			continue
		}
		msg, err := collab.DecodeInbound(raw)
		if err != nil {
			_ = c.s.Deliver(collab.Error{Code: collab.CodeBadMessage, Reason: err.Error()})
			continue
		}
		c.h.hub.Handle(ctx, c.s, msg)
	}
}

func (c *client) writePump() {
	pingPeriod := (c.h.opts.IdleTimeout * 9) / 10
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	wait := c.h.opts.WriteTimeout

	for {
		select {
		case b := <-c.s.Outbox():
			_ = c.conn.SetWriteDeadline(time.Now().Add(wait))
			if err := c.conn.WriteMessage(websocket.TextMessage, b); err != nil {
				c.log.WithError(err).Debug("ws write failed")
				c.s.Close()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.s.Close()
				return
			}
		case <-c.s.Done():
			c.flush(wait)
			c.mu.Lock()
			f := c.close
			c.mu.Unlock()
			_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(f.code, f.reason), time.Now().Add(wait))
			return
		}
	}
}

// flush writes whatever is already queued so replies sent just before close are not lost.
func (c *client) flush(wait time.Duration) {
	for {
		select {
		case b := <-c.s.Outbox():
			_ = c.conn.SetWriteDeadline(time.Now().Add(wait))
			if err := c.conn.WriteMessage(websocket.TextMessage, b); err != nil {
				return
			}
		default:
			return
		}
	}
}

// reverify closes the session once its credential stops verifying
// (revoked by logout or expired).
func (c *client) reverify(ctx context.Context) {
	t := time.NewTicker(c.h.opts.ReverifyInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.s.Done():
			return
		case <-t.C:
			if _, err := c.h.verifier.Verify(ctx, c.s.Token()); err != nil {
				if errors.Is(ctx.Err(), context.Canceled) {
					return
				}
				c.log.Infof("credential no longer valid: %v", err)
				c.endWith(websocket.ClosePolicyViolation, "credential no longer valid")
				return
			}
		}
	}
}
