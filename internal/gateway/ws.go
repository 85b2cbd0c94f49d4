// ABOUTME: WebSocket endpoints for room chat and AI conversations
// ABOUTME: Auth and room authorization happen before the upgrade; rejected clients never see a frame

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/campuschat/gateway/internal/ai"
	"github.com/campuschat/gateway/internal/metrics"
	"github.com/campuschat/gateway/internal/store"
)

const (
	errInvalidJSON      = "Invalid JSON"
	errEmptyContent     = "Content cannot be empty"
	errSaveFailed       = "Failed to save message"
	errCompletionFailed = "Failed to get response"
)

// wsPathID extracts the single identifier segment from paths like
// /ws/chat/{id}/ with or without the trailing slash.
func wsPathID(path, prefix string) string {
	id := strings.TrimPrefix(path, prefix)
	id = strings.TrimSuffix(id, "/")
	if id == "" || strings.Contains(id, "/") {
		return ""
	}
	return id
}

// handleChatWS handles GET /ws/chat/{room_id}/.
//
// Identity and room membership are verified before websocket.Accept, so
// a rejected client gets a plain HTTP status and never exchanges a
// frame. Membership failure does not reveal whether the room exists.
func (g *Gateway) handleChatWS(w http.ResponseWriter, r *http.Request) {
	roomID := wsPathID(r.URL.Path, "/ws/chat/")
	if roomID == "" {
		http.NotFound(w, r)
		return
	}

	user, err := g.authenticator.Authenticate(r)
	if err != nil {
		metrics.ConnectionsRejected.WithLabelValues("authentication").Inc()
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	member, err := g.store.IsParticipant(r.Context(), roomID, user.ID)
	if err != nil {
		g.logger.Error("membership check failed", "room_id", roomID, "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	if !member {
		metrics.ConnectionsRejected.WithLabelValues("authorization").Inc()
		w.WriteHeader(http.StatusForbidden)
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		g.logger.Warn("websocket accept failed", "error", err)
		return
	}
	defer conn.Close(websocket.StatusInternalError, "closing")

	metrics.ConnectionsTotal.WithLabelValues("chat").Inc()
	metrics.ActiveConnections.WithLabelValues("chat").Inc()
	defer metrics.ActiveConnections.WithLabelValues("chat").Dec()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	connID := uuid.New().String()
	recv := g.broadcaster.Join(ctx, roomID, connID)
	defer g.broadcaster.Leave(roomID, connID)

	g.logger.Info("connection joined",
		"room_id", roomID,
		"user", user.Handle,
		"conn_id", connID)

	// Locally generated frames (errors) share the single writer loop
	// with fanout frames so the connection never has two concurrent
	// writers.
	local := make(chan []byte, 8)
	writErr := make(chan error, 1)
	go func() {
		// Cancelling on exit unblocks any pending send to local.
		defer cancel()
		writeLoop(ctx, conn, recv, local, writErr)
	}()

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			g.logger.Info("connection closed",
				"room_id", roomID,
				"conn_id", connID,
				"status", websocket.CloseStatus(err))
			return
		}

		select {
		case err := <-writErr:
			g.logger.Warn("write failed, dropping connection", "conn_id", connID, "error", err)
			return
		default:
		}

		g.handleChatFrame(ctx, roomID, user, data, local)
	}
}

// handleChatFrame processes one inbound room-chat frame. All failures
// are non-fatal: an error frame goes back on the local channel and the
// connection stays open.
func (g *Gateway) handleChatFrame(ctx context.Context, roomID string, user *store.User, data []byte, local chan<- []byte) {
	var frame sendFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		sendLocal(ctx, local, marshalErrorFrame(errInvalidJSON))
		return
	}

	if strings.TrimSpace(frame.Content) == "" {
		sendLocal(ctx, local, marshalErrorFrame(errEmptyContent))
		return
	}

	msg, err := g.store.AppendMessage(ctx, roomID, user.ID, frame.Content)
	if err != nil {
		if errors.Is(err, store.ErrEmptyContent) {
			sendLocal(ctx, local, marshalErrorFrame(errEmptyContent))
			return
		}
		g.logger.Error("append failed", "room_id", roomID, "error", err)
		sendLocal(ctx, local, marshalErrorFrame(errSaveFailed))
		return
	}
	metrics.MessagesPersisted.WithLabelValues("ws").Inc()

	// The message is durable; only now is fanout attempted. The sender
	// receives its own message through the broadcast like everyone else.
	payload, err := marshalMessageFrame(msg)
	if err != nil {
		g.logger.Error("marshaling message frame", "error", err)
		return
	}
	metrics.FanoutDeliveries.Add(float64(g.broadcaster.MemberCount(roomID)))
	g.broadcaster.Fanout(roomID, payload)
}

// handleAIChatWS handles GET /ws/ai-chat/{conversation_id}/.
//
// Only the conversation owner may connect. Each valid send produces a
// user_message frame followed by an assistant_message frame.
func (g *Gateway) handleAIChatWS(w http.ResponseWriter, r *http.Request) {
	conversationID := wsPathID(r.URL.Path, "/ws/ai-chat/")
	if conversationID == "" {
		http.NotFound(w, r)
		return
	}

	user, err := g.authenticator.Authenticate(r)
	if err != nil {
		metrics.ConnectionsRejected.WithLabelValues("authentication").Inc()
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	if _, err := g.orchestrator.Conversation(r.Context(), user, conversationID); err != nil {
		if errors.Is(err, store.ErrNotFound) || errors.Is(err, ai.ErrNotOwner) {
			metrics.ConnectionsRejected.WithLabelValues("authorization").Inc()
			w.WriteHeader(http.StatusForbidden)
			return
		}
		g.logger.Error("conversation lookup failed", "conversation_id", conversationID, "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		g.logger.Warn("websocket accept failed", "error", err)
		return
	}
	defer conn.Close(websocket.StatusInternalError, "closing")

	metrics.ConnectionsTotal.WithLabelValues("ai_chat").Inc()
	metrics.ActiveConnections.WithLabelValues("ai_chat").Inc()
	defer metrics.ActiveConnections.WithLabelValues("ai_chat").Dec()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	g.logger.Info("ai connection opened",
		"conversation_id", conversationID,
		"user", user.Handle)

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			g.logger.Info("ai connection closed",
				"conversation_id", conversationID,
				"status", websocket.CloseStatus(err))
			return
		}

		g.handleAIFrame(ctx, conn, conversationID, user, data)
	}
}

// handleAIFrame processes one inbound AI-chat frame. The connection has
// a single goroutine, so the turn runs inline and frames are written
// directly.
func (g *Gateway) handleAIFrame(ctx context.Context, conn *websocket.Conn, conversationID string, user *store.User, data []byte) {
	writeFrame := func(v any) {
		payload, err := json.Marshal(v)
		if err != nil {
			g.logger.Error("marshaling frame", "error", err)
			return
		}
		if err := conn.Write(ctx, websocket.MessageText, payload); err != nil {
			g.logger.Warn("write failed", "conversation_id", conversationID, "error", err)
		}
	}

	var frame sendFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		writeFrame(errorFrame{Type: "error", Message: errInvalidJSON})
		return
	}
	if strings.TrimSpace(frame.Content) == "" {
		writeFrame(errorFrame{Type: "error", Message: errEmptyContent})
		return
	}

	result, err := g.runTurn(ctx, user, conversationID, frame)
	if result != nil && result.UserMessage != nil {
		writeFrame(aiMessageFrame{Type: "user_message", Message: toAIMessagePayload(result.UserMessage)})
	}
	if err != nil {
		switch {
		case errors.Is(err, ai.ErrInvalidLimit):
			writeFrame(errorFrame{Type: "error", Message: err.Error()})
		case errors.Is(err, store.ErrNotParticipant):
			writeFrame(errorFrame{Type: "error", Message: "Not a participant of the related chat"})
		default:
			writeFrame(errorFrame{Type: "error", Message: errCompletionFailed})
		}
		return
	}

	writeFrame(aiMessageFrame{
		Type:    "assistant_message",
		Message: toAIMessagePayloadWithUsage(result.AssistantMessage, result.Usage),
	})
}

// writeLoop serializes all outbound frames for one room-chat connection.
// It exits when the broadcast channel closes (Leave), the context ends,
// or a write fails.
// sendLocal queues a connection-local frame for the writer goroutine.
// Gives up when the connection context ends so a dead writer can never
// stall the receive loop.
func sendLocal(ctx context.Context, local chan<- []byte, payload []byte) {
	select {
	case local <- payload:
	case <-ctx.Done():
	}
}

func writeLoop(ctx context.Context, conn *websocket.Conn, recv <-chan []byte, local <-chan []byte, writeErr chan<- error) {
	send := func(payload []byte) bool {
		if err := conn.Write(ctx, websocket.MessageText, payload); err != nil {
			select {
			case writeErr <- err:
			default:
			}
			return false
		}
		return true
	}

	for {
		select {
		case payload, ok := <-recv:
			if !ok {
				return
			}
			if !send(payload) {
				return
			}
		case payload := <-local:
			if !send(payload) {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
