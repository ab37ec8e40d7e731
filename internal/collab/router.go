package collab

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gogotex/diagramsync/internal/document"
	"github.com/gogotex/diagramsync/internal/identity"
	"github.com/gogotex/diagramsync/pkg/logger"
	"github.com/gogotex/diagramsync/pkg/metrics"
)

// Mutation sources, used as metric labels.
const (
	SourceWS    = "ws"
	SourceREST  = "rest"
	SourceRelay = "relay"
)

// ContentStore is the part of the document store the router writes through.
type ContentStore interface {
	UpdateContent(ctx context.Context, id, content string, at time.Time) (*document.Document, error)
}

// Event is a committed mutation as seen by other service instances.
type Event struct {
	Instance      string    `json:"instance"`
	DocumentID    string    `json:"documentId"`
	Content       string    `json:"content"`
	LastModified  time.Time `json:"lastModified"`
	OriginSession string    `json:"originSession,omitempty"`
}

// Publisher forwards committed mutations to other instances.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Mutation is one content write. Origin is nil for REST writes, in which
// case every room member receives the update.
type Mutation struct {
	Actor      identity.Identity
	Origin     *Session
	DocumentID string
	Content    string
	Source     string
}

// Router is the single path for content writes: check write access,
// persist, fan out, then publish. Writes to one document are serialized
// through all four steps, so local members and the relay both see updates
// in commit order.
type Router struct {
	policy    Authorizer
	store     ContentStore
	rooms     *Registry
	publisher Publisher
	locks     *keyedMutex
	now       func() time.Time

	// newest LastModified fanned out per document, local or relayed
	seenMu sync.Mutex
	seen   map[string]time.Time
}

func NewRouter(policy Authorizer, store ContentStore, rooms *Registry) *Router {
	return &Router{
		policy: policy,
		store:  store,
		rooms:  rooms,
		locks:  newKeyedMutex(),
		now:    func() time.Time { return time.Now().UTC() },
		seen:   make(map[string]time.Time),
	}
}

// WithPublisher sets the cross-instance publisher. Call before serving.
func (r *Router) WithPublisher(p Publisher) *Router {
	r.publisher = p
	return r
}

// Mutate applies m and returns the persisted document. Errors are
// document.ErrForbidden, document.ErrNotFound or a wrapped document.ErrStorage;
// on any error nothing is broadcast.
func (r *Router) Mutate(ctx context.Context, m Mutation) (*document.Document, error) {
	source := m.Source
	if source == "" {
		source = SourceWS
	}
	log := logger.WithFields(logger.Fields{"document_id": m.DocumentID, "user_id": m.Actor.ID, "source": source})

	unlock := r.locks.Lock(m.DocumentID)
	defer unlock()
	d, err := r.commit(ctx, m)
	if err != nil {
		metrics.Mutations.WithLabelValues(source, resultLabel(err)).Inc()
		log.Infof("mutation rejected: %v", err)
		return nil, err
	}
	r.markSeen(d.ID, d.LastModified)
	n := r.rooms.FanOut(m.DocumentID, Updated{DocumentID: d.ID, Content: d.Content, LastModified: d.LastModified}, m.Origin)

	metrics.Mutations.WithLabelValues(source, "ok").Inc()
	log.Debugf("mutation committed, delivered to %d sessions", n)

	// published under the document lock so remote instances receive commits in order
	if r.publisher != nil {
		ev := Event{DocumentID: d.ID, Content: d.Content, LastModified: d.LastModified}
		if m.Origin != nil {
			ev.OriginSession = m.Origin.ID
		}
		if err := r.publisher.Publish(ctx, ev); err != nil {
			log.Warnf("relay publish failed: %v", err)
		}
	}
	return d, nil
}

func (r *Router) commit(ctx context.Context, m Mutation) (*document.Document, error) {
	if _, err := r.policy.Authorize(ctx, m.Actor.ID, m.DocumentID, document.Write); err != nil {
		return nil, err
	}
	return r.store.UpdateContent(ctx, m.DocumentID, m.Content, r.now())
}

// ApplyRemote fans out a mutation committed by another instance to local
// members. Events older than the newest update already fanned out for the
// document are dropped and 0 is returned.
func (r *Router) ApplyRemote(ev Event) int {
	unlock := r.locks.Lock(ev.DocumentID)
	defer unlock()
	if !r.markSeen(ev.DocumentID, ev.LastModified) {
		metrics.Mutations.WithLabelValues(SourceRelay, "stale").Inc()
		logger.WithFields(logger.Fields{"document_id": ev.DocumentID}).Debugf("dropping stale relay event from %s", ev.Instance)
		return 0
	}
	metrics.Mutations.WithLabelValues(SourceRelay, "ok").Inc()
	return r.rooms.FanOut(ev.DocumentID, Updated{DocumentID: ev.DocumentID, Content: ev.Content, LastModified: ev.LastModified}, nil)
}

// markSeen records at for docID unless a newer timestamp is already
// recorded. It reports whether at was recorded.
func (r *Router) markSeen(docID string, at time.Time) bool {
	r.seenMu.Lock()
	defer r.seenMu.Unlock()
	if last, ok := r.seen[docID]; ok && at.Before(last) {
		return false
	}
	r.seen[docID] = at
	return true
}

func resultLabel(err error) string {
	switch {
	case errors.Is(err, document.ErrForbidden):
		return "forbidden"
	case errors.Is(err, document.ErrNotFound):
		return "not_found"
	}
	return "storage_failure"
}
