package oidc

import (
	"context"
	"fmt"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/gogotex/diagramsync/internal/identity"
)

// claimsToken is satisfied by *oidc.IDToken and by test fakes.
type claimsToken interface {
	Claims(v interface{}) error
}

type tokenVerifier interface {
	verify(ctx context.Context, raw string) (claimsToken, error)
}

type providerVerifier struct {
	v *oidc.IDTokenVerifier
}

func (p providerVerifier) verify(ctx context.Context, raw string) (claimsToken, error) {
	return p.v.Verify(ctx, raw)
}

// Verifier validates tokens issued by an external OpenID Connect provider
// (Keycloak) and maps them onto identity.Identity.
type Verifier struct {
	tv          tokenVerifier
	revocations identity.RevocationChecker
}

// Issuer builds the Keycloak issuer URL for a realm. An empty realm means
// the URL already is the issuer.
func Issuer(url, realm string) string {
	url = strings.TrimRight(url, "/")
	if realm == "" {
		return url
	}
	return url + "/realms/" + realm
}

// NewVerifier discovers the provider at issuer and returns a verifier for clientID.
func NewVerifier(ctx context.Context, issuer, clientID string, revocations identity.RevocationChecker) (*Verifier, error) {
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to discover OIDC provider: %w", err)
	}
	v := provider.Verifier(&oidc.Config{ClientID: clientID})
	return &Verifier{tv: providerVerifier{v: v}, revocations: revocations}, nil
}

// Verify checks signature, audience and expiry through the provider keys.
func (v *Verifier) Verify(ctx context.Context, raw string) (identity.Identity, error) {
	tok, err := v.tv.verify(ctx, raw)
	if err != nil {
		return identity.Identity{}, fmt.Errorf("%w: %v", identity.ErrUnauthenticated, err)
	}
	var claims map[string]interface{}
	if err := tok.Claims(&claims); err != nil {
		return identity.Identity{}, fmt.Errorf("%w: claims: %v", identity.ErrUnauthenticated, err)
	}
	if v.revocations != nil {
		revoked, err := v.revocations.IsRevoked(ctx, raw)
		if err != nil || revoked {
			return identity.Identity{}, fmt.Errorf("%w: token revoked", identity.ErrUnauthenticated)
		}
	}
	return identity.FromClaims(claims)
}
