package users

import (
	"context"
	"errors"

	"github.com/gogotex/diagramsync/internal/identity"
)

// Service encapsulates user-related business logic
type Service struct {
	repo UserRepository
}

func NewService(r UserRepository) *Service {
	return &Service{repo: r}
}

// UpsertFromIdentity records the verified identity's profile.
func (s *Service) UpsertFromIdentity(ctx context.Context, id identity.Identity) (*User, error) {
	if id.ID == "" {
		return nil, errors.New("identity without subject")
	}
	return s.repo.UpsertBySub(ctx, &User{Sub: id.ID, Name: id.Name, Avatar: id.Avatar})
}

func (s *Service) GetBySub(ctx context.Context, sub string) (*User, error) {
	return s.repo.GetBySub(ctx, sub)
}
