package document

import (
	"context"
	"errors"
)

// Permission is the access level being requested.
type Permission int

const (
	Read Permission = iota
	Write
)

func (p Permission) String() string {
	if p == Write {
		return "write"
	}
	return "read"
}

func isMember(userID string, d *Document) bool {
	if d == nil || userID == "" {
		return false
	}
	if d.Owner == userID {
		return true
	}
	for _, c := range d.Collaborators {
		if c == userID {
			return true
		}
	}
	return false
}

// CanRead reports whether userID may read d: the owner or any collaborator.
func CanRead(userID string, d *Document) bool { return isMember(userID, d) }

// CanWrite reports whether userID may write d. Same rule as CanRead, so
// write eligibility always implies read eligibility.
func CanWrite(userID string, d *Document) bool { return isMember(userID, d) }

// Getter is the slice of the store the policy needs.
type Getter interface {
	Get(ctx context.Context, id string) (*Document, error)
}

// Policy answers access questions against current store state. Nothing is
// cached: collaborator sets may change between calls.
type Policy struct {
	store Getter
}

func NewPolicy(store Getter) *Policy { return &Policy{store: store} }

// Authorize loads the document and checks perm for userID. It fails closed:
// an unknown document is ErrNotFound, any other lookup failure is returned
// as is and never treated as allowed.
func (p *Policy) Authorize(ctx context.Context, userID, docID string, perm Permission) (*Document, error) {
	d, err := p.store.Get(ctx, docID)
	if err != nil {
		return nil, err
	}
	allowed := CanRead(userID, d)
	if perm == Write {
		allowed = CanWrite(userID, d)
	}
	if !allowed {
		return nil, ErrForbidden
	}
	return d, nil
}

// Allowed is the boolean form of Authorize.
func (p *Policy) Allowed(ctx context.Context, userID, docID string, perm Permission) bool {
	_, err := p.Authorize(ctx, userID, docID, perm)
	return err == nil
}

// IsStorageFailure reports whether err came from an unavailable store.
func IsStorageFailure(err error) bool { return errors.Is(err, ErrStorage) }
