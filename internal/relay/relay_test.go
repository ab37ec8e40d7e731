package relay

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gogotex/diagramsync/internal/collab"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newClient(t *testing.T) *redis.Client {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	c := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestRelay_DeliversForeignEventsOnly(t *testing.T) {
	client := newClient(t)
	local := NewRedisRelay(client, "test:updates")
	remote := NewRedisRelay(client, "test:updates")
	require.NotEqual(t, local.Instance(), remote.Instance())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	got := make(chan collab.Event, 4)
	ready := make(chan struct{})
	done := make(chan error, 1)
	go func() { done <- local.Run(ctx, func(ev collab.Event) { got <- ev }, ready) }()

	select {
	case <-ready:
	case <-time.After(2 * time.Second):
		t.Fatal("subscription not ready")
	}

	ts := time.Now().UTC().Truncate(time.Millisecond)
	require.NoError(t, local.Publish(ctx, collab.Event{DocumentID: "doc1", Content: "own"}))
	require.NoError(t, remote.Publish(ctx, collab.Event{DocumentID: "doc1", Content: "theirs", LastModified: ts}))

	select {
	case ev := <-got:
		require.Equal(t, "theirs", ev.Content)
		require.Equal(t, remote.Instance(), ev.Instance)
		require.True(t, ev.LastModified.Equal(ts))
	case <-time.After(2 * time.Second):
		t.Fatal("no event delivered")
	}
	select {
	case ev := <-got:
		t.Fatalf("unexpected event %+v", ev)
	case <-time.After(100 * time.Millisecond):
	}

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRelay_RetriesSubscribeUntilRedisIsUp(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1, DialTimeout: 200 * time.Millisecond})
	t.Cleanup(func() { _ = client.Close() })
	mr.Close()

	local := NewRedisRelay(client, "test:updates")
	local.minBackoff, local.maxBackoff = 20*time.Millisecond, 50*time.Millisecond
	remote := NewRedisRelay(client, "test:updates")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	got := make(chan collab.Event, 1)
	ready := make(chan struct{})
	done := make(chan error, 1)
	go func() { done <- local.Run(ctx, func(ev collab.Event) { got <- ev }, ready) }()

	select {
	case <-ready:
		t.Fatal("subscribed while redis was down")
	case err := <-done:
		t.Fatalf("Run gave up: %v", err)
	case <-time.After(150 * time.Millisecond):
	}

	require.NoError(t, mr.Restart())
	select {
	case <-ready:
	case <-time.After(3 * time.Second):
		t.Fatal("relay did not resubscribe")
	}
	require.NoError(t, remote.Publish(ctx, collab.Event{DocumentID: "doc1", Content: "after outage"}))
	select {
	case ev := <-got:
		require.Equal(t, "after outage", ev.Content)
	case <-time.After(2 * time.Second):
		t.Fatal("no event delivered")
	}

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
