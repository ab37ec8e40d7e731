// Package collab is the real-time core: sessions, rooms per document, and
// the router that persists and broadcasts content updates.
package collab

import (
	"context"
	"errors"

	"github.com/gogotex/diagramsync/internal/document"
	"github.com/gogotex/diagramsync/pkg/logger"
)

// Hub dispatches validated inbound messages from connected sessions.
type Hub struct {
	rooms  *Registry
	router *Router
}

func NewHub(rooms *Registry, router *Router) *Hub {
	return &Hub{rooms: rooms, router: router}
}

func (h *Hub) Registry() *Registry { return h.rooms }

// Open registers an authenticated session.
func (h *Hub) Open(s *Session) error {
	if err := h.rooms.Register(s); err != nil {
		return err
	}
	logger.WithFields(logger.Fields{"session_id": s.ID, "user_id": s.UserID()}).Info("session opened")
	return nil
}

// Handle processes one message for s. Failures are reported to s only.
func (h *Hub) Handle(ctx context.Context, s *Session, in Inbound) {
	switch m := in.(type) {
	case Join:
		added, err := h.rooms.Join(ctx, s, m.DocumentID)
		if err != nil {
			h.reply(s, m.DocumentID, err)
			return
		}
		if added {
			h.rooms.FanOut(m.DocumentID, Joined{DocumentID: m.DocumentID, User: s.Identity()}, nil)
		}
	case Leave:
		if h.rooms.Leave(s, m.DocumentID) {
			h.rooms.FanOut(m.DocumentID, Left{DocumentID: m.DocumentID, User: s.Identity()}, nil)
		}
	case Update:
		_, err := h.router.Mutate(ctx, Mutation{
			Actor:      s.Identity(),
			Origin:     s,
			DocumentID: m.DocumentID,
			Content:    m.Content,
			Source:     SourceWS,
		})
		if err != nil {
			h.reply(s, m.DocumentID, err)
		}
	case Auth:
		_ = s.Deliver(Error{Code: CodeBadMessage, Reason: "already authenticated"})
	}
}

// Close ends s and tells the rooms it was in.
func (h *Hub) Close(s *Session) {
	user := s.Identity()
	for _, docID := range h.rooms.DropSession(s) {
		h.rooms.FanOut(docID, Left{DocumentID: docID, User: user}, nil)
	}
}

func (h *Hub) reply(s *Session, docID string, err error) {
	var msg Outbound
	switch {
	case errors.Is(err, ErrSessionClosed):
		return
	case errors.Is(err, document.ErrForbidden):
		msg = Forbidden{DocumentID: docID, Reason: "not a collaborator on this document"}
	case errors.Is(err, document.ErrNotFound):
		msg = Error{DocumentID: docID, Code: CodeNotFound, Reason: "document not found"}
	default:
		logger.WithFields(logger.Fields{"document_id": docID, "session_id": s.ID}).Errorf("storage failure: %v", err)
		msg = Error{DocumentID: docID, Code: CodeStorage, Reason: "document store unavailable"}
	}
	if derr := s.Deliver(msg); derr != nil {
		logger.WithFields(logger.Fields{"session_id": s.ID}).Debugf("reply dropped: %v", derr)
	}
}
