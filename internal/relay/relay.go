// Package relay carries committed document updates between service
// instances over Redis pub/sub, so rooms split across instances stay in sync.
package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gogotex/diagramsync/internal/collab"
	"github.com/gogotex/diagramsync/pkg/logger"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const DefaultChannel = "diagramsync:updates"

type RedisRelay struct {
	client   *redis.Client
	channel  string
	instance string

	// resubscribe backoff bounds
	minBackoff time.Duration
	maxBackoff time.Duration
}

// NewRedisRelay returns a relay publishing on channel. Each relay gets its
// own instance id and ignores events it published itself.
func NewRedisRelay(client *redis.Client, channel string) *RedisRelay {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisRelay{
		client:     client,
		channel:    channel,
		instance:   uuid.NewString(),
		minBackoff: 500 * time.Millisecond,
		maxBackoff: 30 * time.Second,
	}
}

func (r *RedisRelay) Instance() string { return r.instance }

// Publish implements collab.Publisher.
func (r *RedisRelay) Publish(ctx context.Context, ev collab.Event) error {
	ev.Instance = r.instance
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, r.channel, b).Err()
}

// Run subscribes and hands every foreign event to deliver until ctx is
// cancelled. A failed subscribe is retried with exponential backoff, so a
// Redis outage at boot or later only pauses delivery. ready, if non-nil, is
// closed once the first subscription is active. Run returns nil on cancel.
func (r *RedisRelay) Run(ctx context.Context, deliver func(collab.Event), ready chan<- struct{}) error {
	backoff := r.minBackoff
	for attempt := 1; ; attempt++ {
		subscribed, err := r.listen(ctx, deliver, ready)
		if ctx.Err() != nil {
			return nil
		}
		if subscribed {
			ready = nil
			backoff = r.minBackoff
			attempt = 1
		}
		logger.Warnf("relay: attempt %d: %v; retrying in %s", attempt, err, backoff)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		if backoff *= 2; backoff > r.maxBackoff {
			backoff = r.maxBackoff
		}
	}
}

// listen runs one subscription. It reports whether the subscription became
// active before it ended.
func (r *RedisRelay) listen(ctx context.Context, deliver func(collab.Event), ready chan<- struct{}) (bool, error) {
	ps := r.client.Subscribe(ctx, r.channel)
	defer ps.Close()
	if _, err := ps.Receive(ctx); err != nil {
		return false, fmt.Errorf("subscribe %s: %w", r.channel, err)
	}
	if ready != nil {
		close(ready)
	}
	logger.Infof("relay subscribed to %s as %s", r.channel, r.instance)

	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return true, ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return true, fmt.Errorf("subscription to %s closed", r.channel)
			}
			var ev collab.Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				logger.Warnf("relay: drop malformed event: %v", err)
				continue
			}
			if ev.Instance == r.instance || ev.DocumentID == "" {
				continue
			}
			deliver(ev)
		}
	}
}
