// Package identity verifies bearer credentials and yields the stable user
// identity used by the REST surface and by persistent connections.
package identity

import (
	"context"
	"errors"
	"strings"
)

// ErrUnauthenticated is returned for a missing, malformed, badly signed,
// expired or revoked credential. Callers must not retry.
var ErrUnauthenticated = errors.New("unauthenticated")

// Identity is the verified caller. It is immutable for the lifetime of a session.
type Identity struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Avatar string `json:"avatar,omitempty"`
}

// Verifier turns a raw bearer credential into an Identity.
type Verifier interface {
	Verify(ctx context.Context, raw string) (Identity, error)
}

// RevocationChecker reports whether a token was explicitly revoked (logout).
type RevocationChecker interface {
	IsRevoked(ctx context.Context, token string) (bool, error)
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" header value.
func BearerToken(header string) (string, bool) {
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	return parts[1], true
}

// Chain tries each verifier in order and returns the first success.
type Chain []Verifier

func (c Chain) Verify(ctx context.Context, raw string) (Identity, error) {
	for _, v := range c {
		if v == nil {
			continue
		}
		if id, err := v.Verify(ctx, raw); err == nil {
			return id, nil
		}
	}
	return Identity{}, ErrUnauthenticated
}
