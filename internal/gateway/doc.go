// Package gateway orchestrates the chat-gateway server components.
//
// # Overview
//
// The gateway package is the central coordinator of the chat-gateway
// server. It owns the HTTP server carrying the WebSocket endpoints, the
// REST API, health checks, and the metrics endpoint, and it wires the
// store, broadcaster, authenticator, and AI pipeline together.
//
// # Connection Lifecycle
//
// A WebSocket connection moves through four states: unauthenticated,
// authorizing, active, closed. Identity and room membership are checked
// before websocket.Accept, so a rejected client receives a plain HTTP
// 401 or 403 and never exchanges a WebSocket frame. A membership
// failure does not reveal whether the room exists.
//
// Once active, a room connection has exactly one reader (the receive
// loop) and one writer (writeLoop), which serializes broadcast frames
// and locally generated error frames onto the wire. In-frame failures
// are non-fatal: the client gets an error frame and stays connected.
//
// # Durability Before Broadcast
//
// A message is fanned out only after the store reports it durable. An
// append failure produces an error frame and no broadcast; an
// unpersisted message is never delivered to anyone.
//
// # WebSocket Endpoints
//
//   - /ws/chat/{room_id}/ - room chat; send {"content": "..."},
//     receive {"type": "message", "message": {...}} for every room
//     message including your own
//   - /ws/ai-chat/{conversation_id}/ - AI conversation; each valid
//     send produces a user_message frame, then an assistant_message
//     frame with token usage
//
// # HTTP API
//
//   - GET  /api/chats/{room_id}/messages - paged history (cursor, limit)
//   - POST /api/chats/{room_id}/messages - synchronous write
//   - GET/POST /api/ai/chats - list and create conversations
//   - GET/DELETE /api/ai/chats/{id} - conversation detail
//   - GET/POST /api/ai/chats/{id}/messages - turns and synchronous send
//   - GET  /api/ai/chats/{id}/context - related room context preview
//   - GET  /health, /health/ready - liveness and readiness
//
// The synchronous write path persists through the same store as the
// WebSocket path but does not fan out; live connections see those
// messages only on their next history fetch. That asymmetry is part of
// the API contract and covered by tests.
package gateway
