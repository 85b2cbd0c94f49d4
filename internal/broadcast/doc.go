// Package broadcast provides room-scoped fan-out of persisted messages.
//
// The Broadcaster interface is the swap point between single-instance
// and multi-instance deployments: MemoryBroadcaster keeps membership in
// a guarded map, RedisBroadcaster bridges the same join/leave/fanout
// semantics over Redis pub/sub. Callers must persist a message before
// fanning it out - the broadcast channel itself is never durable.
package broadcast
