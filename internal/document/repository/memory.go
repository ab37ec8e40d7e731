package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/gogotex/diagramsync/internal/document"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MemoryRepo is an in-memory Document Store used when no MongoDB is
// configured and in unit tests. All operations are serialized by one lock.
type MemoryRepo struct {
	mu    sync.RWMutex
	store map[string]*document.Document
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{store: make(map[string]*document.Document)}
}

func (m *MemoryRepo) Create(ctx context.Context, doc *document.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if doc.ID == "" {
		doc.ID = primitive.NewObjectID().Hex()
	}
	if doc.LastModified.IsZero() {
		doc.LastModified = time.Now().UTC()
	}
	m.store[doc.ID] = doc.Clone()
	return nil
}

func (m *MemoryRepo) Get(ctx context.Context, id string) (*document.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if d, ok := m.store[id]; ok {
		return d.Clone(), nil
	}
	return nil, document.ErrNotFound
}

func (m *MemoryRepo) ListForUser(ctx context.Context, userID string) ([]*document.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*document.Document, 0)
	for _, d := range m.store {
		if document.CanRead(userID, d) {
			out = append(out, d.Clone())
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].LastModified.After(out[j].LastModified) })
	return out, nil
}

func (m *MemoryRepo) UpdateContent(ctx context.Context, id, content string, at time.Time) (*document.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.store[id]
	if !ok {
		return nil, document.ErrNotFound
	}
	d.Content = content
	d.LastModified = at
	return d.Clone(), nil
}

func (m *MemoryRepo) AddCollaborator(ctx context.Context, id, userID string) (*document.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.store[id]
	if !ok {
		return nil, document.ErrNotFound
	}
	for _, c := range d.Collaborators {
		if c == userID {
			return d.Clone(), nil
		}
	}
	d.Collaborators = append(d.Collaborators, userID)
	return d.Clone(), nil
}
