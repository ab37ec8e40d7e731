package collab

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/gogotex/diagramsync/internal/identity"
	"github.com/stretchr/testify/require"
)

func TestDecodeInbound(t *testing.T) {
	cases := []struct {
		raw  string
		want Inbound
	}{
		{`{"type":"join","documentId":"d1"}`, Join{DocumentID: "d1"}},
		{`{"type":"leave","documentId":" d1 "}`, Leave{DocumentID: "d1"}},
		{`{"type":"update","documentId":"d1","content":""}`, Update{DocumentID: "d1", Content: ""}},
		{`{"type":"update","documentId":"d1","content":"box A"}`, Update{DocumentID: "d1", Content: "box A"}},
		{`{"type":"auth","token":"abc"}`, Auth{Token: "abc"}},
		{`{"type":"join_diagram","diagramId":"d2"}`, Join{DocumentID: "d2"}},
		{`{"type":"diagram_update","diagramId":"d2","content":"c"}`, Update{DocumentID: "d2", Content: "c"}},
	}
	for _, tc := range cases {
		got, err := DecodeInbound([]byte(tc.raw))
		require.NoError(t, err, tc.raw)
		require.Equal(t, tc.want, got, tc.raw)
	}
}

func TestDecodeInbound_Rejects(t *testing.T) {
	for _, raw := range []string{
		``,
		`not json`,
		`{"documentId":"d1"}`,
		`{"type":"delete","documentId":"d1"}`,
		`{"type":"join"}`,
		`{"type":"join","documentId":"   "}`,
		`{"type":"update","documentId":"d1"}`,
		`{"type":"auth"}`,
		`{"type":"joined","documentId":"d1"}`,
	} {
		_, err := DecodeInbound([]byte(raw))
		require.ErrorIs(t, err, ErrBadMessage, raw)
	}
}

func TestEncodeOutbound(t *testing.T) {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	b, err := Encode(Updated{DocumentID: "d1", Content: "", LastModified: ts})
	require.NoError(t, err)
	require.JSONEq(t, `{"type":"update","documentId":"d1","content":"","lastModified":"2026-01-02T03:04:05Z"}`, string(b))

	b, err = Encode(Joined{DocumentID: "d1", User: identity.Identity{ID: "u1", Name: "Ann"}})
	require.NoError(t, err)
	require.JSONEq(t, `{"type":"joined","documentId":"d1","user":{"id":"u1","name":"Ann"}}`, string(b))

	b, err = Encode(Forbidden{DocumentID: "d1", Reason: "no"})
	require.NoError(t, err)
	var m map[string]string
	require.NoError(t, json.Unmarshal(b, &m))
	require.Equal(t, map[string]string{"type": "forbidden", "documentId": "d1", "reason": "no"}, m)
}

func TestKeyedMutexReleasesKeys(t *testing.T) {
	k := newKeyedMutex()
	u1 := k.Lock("a")
	u2 := k.Lock("b")
	require.Equal(t, 2, k.size())
	u1()
	u2()
	require.Zero(t, k.size())
}
