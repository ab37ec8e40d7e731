package storage

import (
	"context"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gogotex/diagramsync/internal/config"
	"github.com/stretchr/testify/require"
)

func TestArchiveKey(t *testing.T) {
	at := time.Date(2026, 3, 4, 5, 6, 7, 0, time.FixedZone("X", 3600))
	require.Equal(t, "diagrams/doc1/20260304T040607Z.json", ArchiveKey("doc1", at))
}

func TestOpenRequiresEndpoint(t *testing.T) {
	_, err := open(config.MinIOConfig{})
	require.Error(t, err)
}

func TestPresignedURLIsOffline(t *testing.T) {
	s, err := open(config.MinIOConfig{Endpoint: "localhost:9000", AccessKey: "ak", SecretKey: "sk", Bucket: "diagramsync"})
	require.NoError(t, err)

	raw, err := s.GetPresignedURL(context.Background(), ArchiveKey("doc1", time.Unix(0, 0)), 10*time.Minute)
	require.NoError(t, err)
	u, err := url.Parse(raw)
	require.NoError(t, err)
	require.Equal(t, "localhost:9000", u.Host)
	require.True(t, strings.HasPrefix(u.Path, "/diagramsync/diagrams/doc1/"))
	require.Equal(t, "600", u.Query().Get("X-Amz-Expires"))
}
