package collab

import (
	"errors"
	"sort"
	"sync"

	"github.com/gogotex/diagramsync/internal/identity"
	"github.com/gogotex/diagramsync/pkg/metrics"
	"github.com/google/uuid"
)

var (
	// ErrDeliveryFailed means a message could not be queued for a session.
	ErrDeliveryFailed = errors.New("delivery failed")
	// ErrSessionClosed is returned for operations on a closed session.
	ErrSessionClosed = errors.New("session closed")
)

// State is a session lifecycle state. Transitions only move forward:
// Connecting -> Authenticated -> Closed, or Connecting -> Closed.
type State int

const (
	Connecting State = iota
	Authenticated
	Closed
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Authenticated:
		return "authenticated"
	}
	return "closed"
}

// Session is one persistent connection. The identity is fixed once
// authenticated. Outbound messages go through a bounded queue that the
// transport drains; Deliver never blocks.
type Session struct {
	ID string

	mu     sync.Mutex
	state  State
	ident  identity.Identity
	token  string
	joined map[string]struct{}

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

// NewSession returns a Connecting session with an outbound queue of size buffer.
func NewSession(buffer int) *Session {
	if buffer <= 0 {
		buffer = 1
	}
	return &Session{
		ID:     uuid.NewString(),
		joined: make(map[string]struct{}),
		send:   make(chan []byte, buffer),
		done:   make(chan struct{}),
	}
}

// Authenticate moves a Connecting session to Authenticated.
func (s *Session) Authenticate(id identity.Identity, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case Closed:
		return ErrSessionClosed
	case Authenticated:
		return errors.New("session already authenticated")
	}
	s.ident = id
	s.token = token
	s.state = Authenticated
	return nil
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Identity() identity.Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ident
}

func (s *Session) UserID() string { return s.Identity().ID }

// Token is the credential the session authenticated with.
func (s *Session) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// Documents lists the documents the session is currently joined to.
func (s *Session) Documents() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.joined))
	for id := range s.joined {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Deliver encodes m and queues it.
func (s *Session) Deliver(m Outbound) error {
	b, err := Encode(m)
	if err != nil {
		return err
	}
	return s.enqueue(b)
}

func (s *Session) enqueue(b []byte) error {
	select {
	case <-s.done:
		return ErrSessionClosed
	default:
	}
	select {
	case s.send <- b:
		metrics.Deliveries.WithLabelValues("ok").Inc()
		return nil
	default:
		metrics.Deliveries.WithLabelValues("dropped").Inc()
		return ErrDeliveryFailed
	}
}

// Outbox is drained by the transport write loop. It is never closed; use Done.
func (s *Session) Outbox() <-chan []byte { return s.send }

// Done is closed when the session reaches Closed.
func (s *Session) Done() <-chan struct{} { return s.done }

// Close marks the session Closed. It reports whether this call closed it.
// Room membership is removed by Registry.DropSession.
func (s *Session) Close() bool {
	s.mu.Lock()
	s.state = Closed
	s.mu.Unlock()
	closed := false
	s.closeOnce.Do(func() {
		close(s.done)
		closed = true
	})
	return closed
}

// markClosed closes the session and returns the documents it was joined to.
func (s *Session) markClosed() []string {
	s.Close()
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.joined))
	for id := range s.joined {
		out = append(out, id)
	}
	return out
}

// addDoc records a membership unless the session is closed. Caller holds the room lock.
func (s *Session) addDoc(docID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Authenticated {
		return false
	}
	s.joined[docID] = struct{}{}
	return true
}

func (s *Session) removeDoc(docID string) {
	s.mu.Lock()
	delete(s.joined, docID)
	s.mu.Unlock()
}
