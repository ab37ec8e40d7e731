// Package service holds the document operations that sit behind the REST
// surface. Content updates do not live here: they go through the collab
// Router so that every mutation reaches the room.
package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gogotex/diagramsync/internal/document"
)

var (
	ErrInvalidName         = errors.New("document name is required")
	ErrInvalidCollaborator = errors.New("collaborator user id is required")
)

type Service struct {
	repo   document.Repository
	policy *document.Policy
	now    func() time.Time
}

func New(repo document.Repository) *Service {
	return &Service{repo: repo, policy: document.NewPolicy(repo), now: time.Now}
}

// Policy exposes the access policy bound to the same store.
func (s *Service) Policy() *document.Policy { return s.policy }

// Create stores a new empty document owned by owner, who is also its sole collaborator.
func (s *Service) Create(ctx context.Context, owner, name, typ string) (*document.Document, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrInvalidName
	}
	t, err := document.ParseType(typ)
	if err != nil {
		return nil, err
	}
	d := &document.Document{
		Name:          name,
		Type:          t,
		Owner:         owner,
		Collaborators: []string{owner},
		LastModified:  s.now().UTC(),
	}
	if err := s.repo.Create(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

func (s *Service) List(ctx context.Context, userID string) ([]*document.Document, error) {
	return s.repo.ListForUser(ctx, userID)
}

func (s *Service) Get(ctx context.Context, userID, id string) (*document.Document, error) {
	return s.policy.Authorize(ctx, userID, id, document.Read)
}

// AddCollaborator grants userID access to the document. Only the owner may share.
// Existing room memberships are not re-evaluated.
func (s *Service) AddCollaborator(ctx context.Context, callerID, id, userID string) (*document.Document, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, ErrInvalidCollaborator
	}
	d, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if d.Owner != callerID {
		return nil, document.ErrForbidden
	}
	return s.repo.AddCollaborator(ctx, id, userID)
}
