package identity

import (
	"context"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// JWTVerifier validates HS256 access tokens signed with a shared secret.
type JWTVerifier struct {
	secret      []byte
	revocations RevocationChecker
}

// NewJWTVerifier returns a verifier for the given secret. revocations may be nil.
func NewJWTVerifier(secret string, revocations RevocationChecker) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret), revocations: revocations}
}

func (v *JWTVerifier) Verify(ctx context.Context, raw string) (Identity, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || len(v.secret) == 0 {
		return Identity{}, ErrUnauthenticated
	}
	claims := jwt.MapClaims{}
	tok, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		return v.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !tok.Valid {
		return Identity{}, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	sub, _ := claims.GetSubject()
	if strings.TrimSpace(sub) == "" {
		return Identity{}, fmt.Errorf("%w: missing subject", ErrUnauthenticated)
	}
	if v.revocations != nil {
		revoked, err := v.revocations.IsRevoked(ctx, raw)
		if err != nil {
			return Identity{}, fmt.Errorf("%w: revocation check: %v", ErrUnauthenticated, err)
		}
		if revoked {
			return Identity{}, fmt.Errorf("%w: token revoked", ErrUnauthenticated)
		}
	}
	return identityFromClaims(claims), nil
}

func identityFromClaims(claims map[string]interface{}) Identity {
	id := Identity{}
	id.ID, _ = claims["sub"].(string)
	id.Name, _ = claims["name"].(string)
	id.Avatar, _ = claims["avatar"].(string)
	if id.Avatar == "" {
		id.Avatar, _ = claims["picture"].(string)
	}
	return id
}

// FromClaims builds an Identity from an already verified claim set (OIDC path).
func FromClaims(claims map[string]interface{}) (Identity, error) {
	id := identityFromClaims(claims)
	if strings.TrimSpace(id.ID) == "" {
		return Identity{}, fmt.Errorf("%w: missing subject", ErrUnauthenticated)
	}
	if id.Name == "" {
		id.Name, _ = claims["preferred_username"].(string)
	}
	return id, nil
}
