// Package feed publishes change notifications over Redis pub/sub and fans
// them out to subscribers.
package feed

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/stockbook/stockbook/internal/shared"
)

// DefaultChannel is the Redis channel all changes are published on.
const DefaultChannel = "stockbook:changes"

// Change describes one committed mutation of a collection.
type Change struct {
	Collection string    `json:"collection"`
	ID         string    `json:"id,omitempty"`
	Op         string    `json:"op"`
	At         time.Time `json:"at"`
}

// Publisher writes changes to Redis.
type Publisher struct {
	client  *redis.Client
	channel string
	clock   shared.Clock
	logger  *slog.Logger
}

// NewPublisher constructs a publisher on DefaultChannel.
func NewPublisher(client *redis.Client, clock shared.Clock, logger *slog.Logger) *Publisher {
	if clock == nil {
		clock = shared.SystemClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{client: client, channel: DefaultChannel, clock: clock, logger: logger}
}

// Publish sends the change. A zero At is stamped with the clock.
func (p *Publisher) Publish(ctx context.Context, change Change) error {
	if p == nil || p.client == nil {
		return nil
	}
	if change.At.IsZero() {
		change.At = p.clock.Now()
	}
	payload, err := json.Marshal(change)
	if err != nil {
		return err
	}
	return p.client.Publish(ctx, p.channel, payload).Err()
}

// Notify publishes a change and logs failures. It never blocks the caller
// on a cancelled request context.
func (p *Publisher) Notify(ctx context.Context, collection, id, op string) {
	if p == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := p.Publish(ctx, Change{Collection: collection, ID: id, Op: op}); err != nil {
		p.logger.Warn("publish change failed",
			slog.String("collection", collection),
			slog.String("id", id),
			slog.Any("error", err))
	}
}

// Hub subscribes to the change channel.
type Hub struct {
	client  *redis.Client
	channel string
	logger  *slog.Logger
}

// NewHub constructs a hub on DefaultChannel.
func NewHub(client *redis.Client, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{client: client, channel: DefaultChannel, logger: logger}
}

// Subscribe returns changes on the given collections (all when none are
// named) until ctx is cancelled, then closes the channel. The subscription
// is confirmed before Subscribe returns.
func (h *Hub) Subscribe(ctx context.Context, collections ...string) (<-chan Change, error) {
	pubsub := h.client.Subscribe(ctx, h.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, err
	}
	want := make(map[string]bool, len(collections))
	for _, c := range collections {
		want[c] = true
	}

	out := make(chan Change, 16)
	go func() {
		defer close(out)
		defer func() { _ = pubsub.Close() }()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var change Change
				if err := json.Unmarshal([]byte(msg.Payload), &change); err != nil {
					h.logger.Warn("discard malformed change", slog.Any("error", err))
					continue
				}
				if len(want) > 0 && !want[change.Collection] {
					continue
				}
				select {
				case out <- change:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
