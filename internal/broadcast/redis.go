// ABOUTME: Redis pub/sub implementation of the Broadcaster interface
// ABOUTME: Bridges room fanout across gateway instances; local delivery reuses MemoryBroadcaster

package broadcast

import (
	"context"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"
)

// RedisBroadcaster fans messages out across gateway instances via Redis
// pub/sub. Every Fanout publishes to a per-room channel; each instance
// with members in that room holds one subscription and delivers incoming
// payloads through its local MemoryBroadcaster. Delivery guarantees are
// the same as the in-memory implementation: at-most-once per connection,
// fire-and-forget per member, durability only in the store.
type RedisBroadcaster struct {
	client *redis.Client
	local  *MemoryBroadcaster
	logger *slog.Logger

	mu   sync.Mutex
	subs map[string]*roomSubscription // roomID -> subscription
}

type roomSubscription struct {
	pubsub *redis.PubSub
	cancel context.CancelFunc
}

// NewRedisBroadcaster connects to Redis at the given URL
// (e.g. "redis://localhost:6379/0") and verifies the connection.
func NewRedisBroadcaster(ctx context.Context, redisURL string, logger *slog.Logger) (*RedisBroadcaster, error) {
	if logger == nil {
		logger = slog.Default()
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &RedisBroadcaster{
		client: client,
		local:  NewMemoryBroadcaster(logger),
		logger: logger.With("component", "redis-broadcaster"),
		subs:   make(map[string]*roomSubscription),
	}, nil
}

// channelKey returns the Redis channel name for a room.
func channelKey(roomID string) string {
	return "room:" + roomID + ":fanout"
}

// Join registers the connection locally and ensures this instance holds a
// Redis subscription for the room.
func (b *RedisBroadcaster) Join(ctx context.Context, roomID, connID string) <-chan []byte {
	ch := b.local.Join(ctx, roomID, connID)
	b.ensureSubscription(roomID)
	return ch
}

// Leave removes the connection locally and drops the room subscription
// once no local members remain.
func (b *RedisBroadcaster) Leave(roomID, connID string) {
	b.local.Leave(roomID, connID)

	if b.local.MemberCount(roomID) > 0 {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if sub, ok := b.subs[roomID]; ok {
		sub.cancel()
		_ = sub.pubsub.Close()
		delete(b.subs, roomID)
	}
}

// Fanout publishes the payload; local delivery happens in the
// subscription loop, the same path remote instances take.
func (b *RedisBroadcaster) Fanout(roomID string, payload []byte) {
	if err := b.client.Publish(context.Background(), channelKey(roomID), payload).Err(); err != nil {
		b.logger.Error("publish failed", "room_id", roomID, "error", err)
	}
}

// MemberCount reports local members only; remote instances track their own.
func (b *RedisBroadcaster) MemberCount(roomID string) int {
	return b.local.MemberCount(roomID)
}

// Close drops all subscriptions, closes member channels, and disconnects.
func (b *RedisBroadcaster) Close() {
	b.mu.Lock()
	for roomID, sub := range b.subs {
		sub.cancel()
		_ = sub.pubsub.Close()
		delete(b.subs, roomID)
	}
	b.mu.Unlock()

	b.local.Close()
	if err := b.client.Close(); err != nil {
		b.logger.Error("closing redis client", "error", err)
	}
}

// ensureSubscription starts the per-room receive loop if it isn't running.
func (b *RedisBroadcaster) ensureSubscription(roomID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subs[roomID]; ok {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	pubsub := b.client.Subscribe(ctx, channelKey(roomID))
	b.subs[roomID] = &roomSubscription{pubsub: pubsub, cancel: cancel}

	go func() {
		defer pubsub.Close()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				b.local.Fanout(roomID, []byte(msg.Payload))
			}
		}
	}()

	b.logger.Debug("room subscription started", "room_id", roomID)
}
