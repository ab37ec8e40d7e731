package collab

import (
	"context"
	"errors"
	"sync"

	"github.com/gogotex/diagramsync/internal/document"
	"github.com/gogotex/diagramsync/pkg/logger"
	"github.com/gogotex/diagramsync/pkg/metrics"
)

// Authorizer checks a permission against current document state.
// *document.Policy implements it.
type Authorizer interface {
	Authorize(ctx context.Context, userID, docID string, perm document.Permission) (*document.Document, error)
}

// room is the live member set of one document. Its lock serializes
// membership changes against fan-out for that document only.
type room struct {
	mu      sync.RWMutex
	members map[*Session]struct{}
	closed  bool
}

// Registry tracks which sessions are joined to which documents.
// Rooms exist only while they have members.
type Registry struct {
	policy Authorizer

	mu    sync.RWMutex
	rooms map[string]*room

	smu      sync.RWMutex
	sessions map[string]*Session
}

func NewRegistry(policy Authorizer) *Registry {
	return &Registry{
		policy:   policy,
		rooms:    make(map[string]*room),
		sessions: make(map[string]*Session),
	}
}

// Register adds an authenticated session to the registry so it can be found
// by SessionsOf. Connecting or closed sessions are refused.
func (r *Registry) Register(s *Session) error {
	if s.State() != Authenticated {
		return ErrSessionClosed
	}
	r.smu.Lock()
	if _, ok := r.sessions[s.ID]; !ok {
		r.sessions[s.ID] = s
		metrics.SessionsActive.Inc()
	}
	r.smu.Unlock()
	return nil
}

// lockRoom returns the live room for docID with its write lock held,
// creating it if needed.
func (r *Registry) lockRoom(docID string) *room {
	for {
		r.mu.Lock()
		rm, ok := r.rooms[docID]
		if !ok {
			rm = &room{members: make(map[*Session]struct{})}
			r.rooms[docID] = rm
			metrics.RoomsActive.Inc()
		}
		r.mu.Unlock()

		rm.mu.Lock()
		if !rm.closed {
			return rm
		}
		rm.mu.Unlock()
	}
}

// rlockRoom returns the live room for docID with its read lock held, or nil.
// A room closed between lookup and lock has already left the map, so the
// lookup is repeated to find its replacement. Leave does the same under
// the write lock.
func (r *Registry) rlockRoom(docID string) *room {
	for {
		rm := r.lookup(docID)
		if rm == nil {
			return nil
		}
		rm.mu.RLock()
		if !rm.closed {
			return rm
		}
		rm.mu.RUnlock()
	}
}

func (r *Registry) lookup(docID string) *room {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.rooms[docID]
}

// removeIfEmpty drops an empty room. Caller holds rm.mu.
func (r *Registry) removeIfEmpty(docID string, rm *room) {
	if len(rm.members) > 0 || rm.closed {
		return
	}
	rm.closed = true
	r.mu.Lock()
	if r.rooms[docID] == rm {
		delete(r.rooms, docID)
		metrics.RoomsActive.Dec()
	}
	r.mu.Unlock()
}

// Join admits s to docID if the session's identity may read the document.
// It reports whether s was newly added; joining a room s is already in is a
// no-op. On any error membership is unchanged.
func (r *Registry) Join(ctx context.Context, s *Session, docID string) (bool, error) {
	if s.State() != Authenticated {
		return false, ErrSessionClosed
	}
	if _, err := r.policy.Authorize(ctx, s.UserID(), docID, document.Read); err != nil {
		return false, err
	}
	rm := r.lockRoom(docID)
	defer rm.mu.Unlock()
	if !s.addDoc(docID) {
		r.removeIfEmpty(docID, rm)
		return false, ErrSessionClosed
	}
	if _, ok := rm.members[s]; ok {
		return false, nil
	}
	rm.members[s] = struct{}{}
	logger.WithFields(logger.Fields{"document_id": docID, "session_id": s.ID, "user_id": s.UserID()}).Debug("session joined room")
	return true, nil
}

// Leave removes s from docID. It reports whether s was a member.
func (r *Registry) Leave(s *Session, docID string) bool {
	var rm *room
	for {
		if rm = r.lookup(docID); rm == nil {
			s.removeDoc(docID)
			return false
		}
		rm.mu.Lock()
		if !rm.closed {
			break
		}
		rm.mu.Unlock()
	}
	defer rm.mu.Unlock()
	_, ok := rm.members[s]
	delete(rm.members, s)
	s.removeDoc(docID)
	r.removeIfEmpty(docID, rm)
	return ok
}

// DropSession closes s and removes it from every room. Safe to call repeatedly;
// it returns the documents s was removed from.
func (r *Registry) DropSession(s *Session) []string {
	docs := s.markClosed()
	left := make([]string, 0, len(docs))
	for _, docID := range docs {
		if r.Leave(s, docID) {
			left = append(left, docID)
		}
	}
	r.smu.Lock()
	if _, ok := r.sessions[s.ID]; ok {
		delete(r.sessions, s.ID)
		metrics.SessionsActive.Dec()
	}
	r.smu.Unlock()
	return left
}

// MembersOf returns the sessions joined to docID, without exclude (may be nil).
func (r *Registry) MembersOf(docID string, exclude *Session) []*Session {
	rm := r.rlockRoom(docID)
	if rm == nil {
		return nil
	}
	defer rm.mu.RUnlock()
	out := make([]*Session, 0, len(rm.members))
	for s := range rm.members {
		if s != exclude {
			out = append(out, s)
		}
	}
	return out
}

// FanOut queues m for every member of docID except exclude and returns the
// number of sessions it was queued for. Members whose queue is full are
// closed; their transport then drops them from the registry.
func (r *Registry) FanOut(docID string, m Outbound, exclude *Session) int {
	b, err := Encode(m)
	if err != nil {
		logger.Errorf("encode fan-out for %s: %v", docID, err)
		return 0
	}
	rm := r.rlockRoom(docID)
	if rm == nil {
		return 0
	}
	defer rm.mu.RUnlock()
	n := 0
	for s := range rm.members {
		if s == exclude {
			continue
		}
		if err := s.enqueue(b); err != nil {
			log := logger.WithFields(logger.Fields{"document_id": docID, "session_id": s.ID})
			if errors.Is(err, ErrDeliveryFailed) {
				log.Warn("outbound queue full, closing slow session")
				s.Close()
			} else {
				log.Debugf("skip delivery: %v", err)
			}
			continue
		}
		n++
	}
	return n
}

// SessionsOf returns the registered sessions of userID.
func (r *Registry) SessionsOf(userID string) []*Session {
	r.smu.RLock()
	defer r.smu.RUnlock()
	var out []*Session
	for _, s := range r.sessions {
		if s.UserID() == userID {
			out = append(out, s)
		}
	}
	return out
}

// RoomCount is the number of documents with at least one member.
func (r *Registry) RoomCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

// SessionCount is the number of registered sessions.
func (r *Registry) SessionCount() int {
	r.smu.RLock()
	defer r.smu.RUnlock()
	return len(r.sessions)
}

// AllSessions returns every registered session. Used on shutdown.
func (r *Registry) AllSessions() []*Session {
	r.smu.RLock()
	defer r.smu.RUnlock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}
