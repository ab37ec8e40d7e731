package identity

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

const testSecret = "identity-test-secret-32-bytes-xxxxx"

func sign(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return s
}

type fakeRevocations struct {
	revoked map[string]bool
	err     error
}

func (f *fakeRevocations) IsRevoked(ctx context.Context, token string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return f.revoked[token], nil
}

func TestJWTVerifier_Valid(t *testing.T) {
	v := NewJWTVerifier(testSecret, nil)
	tok := sign(t, jwt.MapClaims{"sub": "u1", "name": "Alice", "avatar": "a.png", "exp": time.Now().Add(time.Hour).Unix()})

	id, err := v.Verify(context.Background(), tok)
	require.NoError(t, err)
	require.Equal(t, Identity{ID: "u1", Name: "Alice", Avatar: "a.png"}, id)
}

func TestJWTVerifier_Rejections(t *testing.T) {
	v := NewJWTVerifier(testSecret, nil)
	future := time.Now().Add(time.Hour).Unix()

	none := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"none","typ":"JWT"}`)) + "." +
		base64.RawURLEncoding.EncodeToString([]byte(`{"sub":"u-none","exp":9999999999}`)) + "."
	wrongSecret, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "u1", "exp": future}).SignedString([]byte("other-secret"))
	require.NoError(t, err)
	hs512, err := jwt.NewWithClaims(jwt.SigningMethodHS512, jwt.MapClaims{"sub": "u1", "exp": future}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	cases := map[string]string{
		"empty":        "",
		"malformed":    "not.a.jwt",
		"alg none":     none,
		"wrong secret": wrongSecret,
		"wrong alg":    hs512,
		"expired":      sign(t, jwt.MapClaims{"sub": "u1", "exp": time.Now().Add(-time.Minute).Unix()}),
		"no exp":       sign(t, jwt.MapClaims{"sub": "u1"}),
		"no sub":       sign(t, jwt.MapClaims{"name": "x", "exp": future}),
	}
	for name, tok := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := v.Verify(context.Background(), tok)
			require.ErrorIs(t, err, ErrUnauthenticated)
		})
	}
}

func TestJWTVerifier_Revocation(t *testing.T) {
	tok := sign(t, jwt.MapClaims{"sub": "u1", "exp": time.Now().Add(time.Hour).Unix()})

	rev := &fakeRevocations{revoked: map[string]bool{tok: true}}
	_, err := NewJWTVerifier(testSecret, rev).Verify(context.Background(), tok)
	require.ErrorIs(t, err, ErrUnauthenticated)

	// a failing revocation backend fails closed
	_, err = NewJWTVerifier(testSecret, &fakeRevocations{err: errors.New("redis down")}).Verify(context.Background(), tok)
	require.ErrorIs(t, err, ErrUnauthenticated)

	id, err := NewJWTVerifier(testSecret, &fakeRevocations{}).Verify(context.Background(), tok)
	require.NoError(t, err)
	require.Equal(t, "u1", id.ID)
}

func TestBearerToken(t *testing.T) {
	tok, ok := BearerToken("Bearer abc")
	require.True(t, ok)
	require.Equal(t, "abc", tok)

	tok, ok = BearerToken("bearer xyz")
	require.True(t, ok)
	require.Equal(t, "xyz", tok)

	for _, h := range []string{"", "Bearer", "Basic abc", "Bearer a b"} {
		_, ok := BearerToken(h)
		require.False(t, ok, h)
	}
}

type stubVerifier struct {
	accept string
	id     Identity
}

func (s stubVerifier) Verify(ctx context.Context, raw string) (Identity, error) {
	if raw == s.accept {
		return s.id, nil
	}
	return Identity{}, ErrUnauthenticated
}

func TestChain(t *testing.T) {
	c := Chain{nil, stubVerifier{accept: "a", id: Identity{ID: "1"}}, stubVerifier{accept: "b", id: Identity{ID: "2"}}}

	id, err := c.Verify(context.Background(), "b")
	require.NoError(t, err)
	require.Equal(t, "2", id.ID)

	_, err = c.Verify(context.Background(), "zzz")
	require.ErrorIs(t, err, ErrUnauthenticated)
}

func TestFromClaims(t *testing.T) {
	id, err := FromClaims(map[string]interface{}{"sub": "kc-1", "preferred_username": "alice", "picture": "p.png"})
	require.NoError(t, err)
	require.Equal(t, Identity{ID: "kc-1", Name: "alice", Avatar: "p.png"}, id)

	_, err = FromClaims(map[string]interface{}{"email": "x@y"})
	require.ErrorIs(t, err, ErrUnauthenticated)
}
