// ABOUTME: In-memory fan-out broadcaster for room-scoped message delivery
// ABOUTME: Delivers one persisted, serialized payload to every active connection of a room

package broadcast

import (
	"context"
	"log/slog"
	"sync"
)

const (
	// memberBufferSize is the channel buffer for each joined connection.
	memberBufferSize = 64
)

// Broadcaster fans persisted messages out to the active connections of a
// room. Join and Leave are idempotent; Fanout delivers an identical
// payload to every current member independently, at most once each, and
// never blocks on a slow member. The broadcast channel is not durable -
// durability belongs to the store, which is always written first.
type Broadcaster interface {
	// Join registers a connection under the room key and returns the
	// channel its frames arrive on. The channel is closed on Leave,
	// on context cancellation, or when the broadcaster shuts down.
	// Joining twice with the same connection id returns the existing
	// channel.
	Join(ctx context.Context, roomID, connID string) <-chan []byte

	// Leave removes a connection from the room and closes its channel.
	Leave(roomID, connID string)

	// Fanout delivers payload to every current member of the room.
	Fanout(roomID string, payload []byte)

	// MemberCount reports how many connections are joined to the room.
	MemberCount(roomID string) int

	// Close shuts down the broadcaster and closes all member channels.
	Close()
}

// MemoryBroadcaster is the single-instance Broadcaster: a guarded map of
// room id to member channels. Multi-instance deployments swap in
// RedisBroadcaster behind the same interface.
type MemoryBroadcaster struct {
	mu      sync.RWMutex
	members map[string]map[string]chan []byte // roomID -> connID -> ch
	logger  *slog.Logger
}

// NewMemoryBroadcaster creates a broadcaster. Pass nil logger for default.
func NewMemoryBroadcaster(logger *slog.Logger) *MemoryBroadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &MemoryBroadcaster{
		members: make(map[string]map[string]chan []byte),
		logger:  logger.With("component", "broadcaster"),
	}
}

// Join registers a connection for fanout on the given room key.
// The membership is automatically removed when ctx is cancelled.
func (b *MemoryBroadcaster) Join(ctx context.Context, roomID, connID string) <-chan []byte {
	b.mu.Lock()
	if _, ok := b.members[roomID]; !ok {
		b.members[roomID] = make(map[string]chan []byte)
	}
	if existing, ok := b.members[roomID][connID]; ok {
		b.mu.Unlock()
		return existing
	}
	ch := make(chan []byte, memberBufferSize)
	b.members[roomID][connID] = ch
	b.mu.Unlock()

	b.logger.Debug("member joined", "room_id", roomID, "conn_id", connID)

	// Auto-cleanup on context cancellation
	go func() {
		<-ctx.Done()
		b.Leave(roomID, connID)
	}()

	return ch
}

// Fanout sends payload to all members of the room. Non-blocking: the
// payload is dropped for members whose channels are full. The read lock
// is held across the sends so a concurrent Leave cannot close a channel
// mid-delivery.
func (b *MemoryBroadcaster) Fanout(roomID string, payload []byte) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	members, ok := b.members[roomID]
	if !ok || len(members) == 0 {
		return
	}

	for connID, ch := range members {
		select {
		case ch <- payload:
			// Delivered
		default:
			// Member channel full - drop for this connection
			b.logger.Debug("dropped frame for slow member",
				"room_id", roomID,
				"conn_id", connID)
		}
	}
}

// Leave removes a connection and closes its channel. Idempotent.
func (b *MemoryBroadcaster) Leave(roomID, connID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	members, ok := b.members[roomID]
	if !ok {
		return
	}

	ch, exists := members[connID]
	if !exists {
		return
	}

	delete(members, connID)
	close(ch)

	// Clean up empty room entries
	if len(members) == 0 {
		delete(b.members, roomID)
	}

	b.logger.Debug("member left", "room_id", roomID, "conn_id", connID)
}

// MemberCount reports the current number of members joined to a room.
func (b *MemoryBroadcaster) MemberCount(roomID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.members[roomID])
}

// Close shuts down the broadcaster and closes all member channels.
func (b *MemoryBroadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for roomID, members := range b.members {
		for connID, ch := range members {
			close(ch)
			delete(members, connID)
		}
		delete(b.members, roomID)
	}

	b.logger.Debug("broadcaster closed")
}
