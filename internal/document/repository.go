package document

import (
	"context"
	"time"
)

// Repository is the durable Document Store. Implementations must make
// UpdateContent atomic for a single document.
type Repository interface {
	Create(ctx context.Context, d *Document) error
	Get(ctx context.Context, id string) (*Document, error)
	// ListForUser returns documents owned by or shared with userID, most recently modified first.
	ListForUser(ctx context.Context, userID string) ([]*Document, error)
	// UpdateContent overwrites content and lastModified and returns the stored result.
	UpdateContent(ctx context.Context, id, content string, at time.Time) (*Document, error)
	// AddCollaborator adds userID to the collaborator set; adding an existing member is a no-op.
	AddCollaborator(ctx context.Context, id, userID string) (*Document, error)
}
