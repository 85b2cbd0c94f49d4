// ABOUTME: HTTP API handlers for message history, synchronous writes, and AI conversations
// ABOUTME: The synchronous write path persists but never fans out to live connections

package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/campuschat/gateway/internal/ai"
	"github.com/campuschat/gateway/internal/auth"
	"github.com/campuschat/gateway/internal/metrics"
	"github.com/campuschat/gateway/internal/store"
)

// Context preview bounds. Wider than the prompt-injection bounds since a
// preview is not sent to the provider.
const (
	defaultPreviewLimit = 50
	maxPreviewLimit     = 200
)

// PostMessageRequest is the JSON request body for POST /api/chats/{room_id}/messages.
type PostMessageRequest struct {
	Content string `json:"content"`
}

// MessagesResponse is the JSON response for GET /api/chats/{room_id}/messages.
type MessagesResponse struct {
	RoomID   string            `json:"room_id"`
	Messages []*MessagePayload `json:"messages"`
}

// CreateConversationRequest is the JSON request body for POST /api/ai/chats.
type CreateConversationRequest struct {
	Title        string  `json:"title"`
	SystemPrompt string  `json:"system_prompt,omitempty"`
	RelatedRoom  *string `json:"related_room,omitempty"`
}

// SendAIMessageRequest is the JSON request body for POST /api/ai/chats/{id}/messages.
type SendAIMessageRequest struct {
	Content                   string `json:"content"`
	IncludeRelatedChatContext bool   `json:"include_related_chat_context,omitempty"`
	ContextMessageLimit       int    `json:"context_message_limit,omitempty"`
}

// sendJSONError writes a JSON error response.
func (g *Gateway) sendJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

func (g *Gateway) sendJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		g.logger.Error("encoding response", "error", err)
	}
}

// handleChatRoutes dispatches /api/chats/{room_id}/messages.
func (g *Gateway) handleChatRoutes(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/chats/")
	parts := strings.Split(strings.TrimSuffix(rest, "/"), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] != "messages" {
		http.NotFound(w, r)
		return
	}
	roomID := parts[0]

	switch r.Method {
	case http.MethodGet:
		g.handleListRoomMessages(w, r, roomID)
	case http.MethodPost:
		g.handlePostRoomMessage(w, r, roomID)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// handleListRoomMessages handles GET /api/chats/{room_id}/messages.
// Supports cursor (last seen message id) and limit query parameters.
func (g *Gateway) handleListRoomMessages(w http.ResponseWriter, r *http.Request, roomID string) {
	user := auth.MustFromContext(r.Context())

	member, err := g.store.IsParticipant(r.Context(), roomID, user.ID)
	if err != nil {
		g.logger.Error("membership check failed", "room_id", roomID, "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if !member {
		g.sendJSONError(w, http.StatusForbidden, "not a participant")
		return
	}

	var cursor int64
	if raw := r.URL.Query().Get("cursor"); raw != "" {
		cursor, err = strconv.ParseInt(raw, 10, 64)
		if err != nil {
			g.sendJSONError(w, http.StatusBadRequest, "invalid cursor")
			return
		}
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 0 {
			g.sendJSONError(w, http.StatusBadRequest, "invalid limit")
			return
		}
	}

	messages, err := g.store.ListMessages(r.Context(), roomID, cursor, limit)
	if err != nil {
		g.logger.Error("listing messages failed", "room_id", roomID, "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := MessagesResponse{RoomID: roomID, Messages: make([]*MessagePayload, 0, len(messages))}
	for _, m := range messages {
		resp.Messages = append(resp.Messages, toMessagePayload(m))
	}
	g.sendJSON(w, http.StatusOK, resp)
}

// handlePostRoomMessage handles POST /api/chats/{room_id}/messages.
//
// This path persists through the same store as the WebSocket path but
// does not fan out. Live connections will not see the message until
// they re-fetch history.
func (g *Gateway) handlePostRoomMessage(w http.ResponseWriter, r *http.Request, roomID string) {
	user := auth.MustFromContext(r.Context())

	var req PostMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	msg, err := g.store.AppendMessage(r.Context(), roomID, user.ID, req.Content)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrEmptyContent):
			g.sendJSONError(w, http.StatusBadRequest, "content cannot be empty")
		case errors.Is(err, store.ErrNotParticipant):
			g.sendJSONError(w, http.StatusForbidden, "not a participant")
		case errors.Is(err, store.ErrNotFound):
			g.sendJSONError(w, http.StatusNotFound, "room not found")
		default:
			g.logger.Error("append failed", "room_id", roomID, "error", err)
			g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		}
		return
	}
	metrics.MessagesPersisted.WithLabelValues("api").Inc()

	g.sendJSON(w, http.StatusCreated, toMessagePayload(msg))
}

// handleAIChats dispatches /api/ai/chats (collection).
func (g *Gateway) handleAIChats(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		g.handleListConversations(w, r)
	case http.MethodPost:
		g.handleCreateConversation(w, r)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// handleAIChatRoutes dispatches /api/ai/chats/{id}[/messages|/context].
func (g *Gateway) handleAIChatRoutes(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/ai/chats/")
	parts := strings.Split(strings.TrimSuffix(rest, "/"), "/")
	if parts[0] == "" {
		http.NotFound(w, r)
		return
	}
	conversationID := parts[0]

	switch {
	case len(parts) == 1:
		switch r.Method {
		case http.MethodGet:
			g.handleGetConversation(w, r, conversationID)
		case http.MethodDelete:
			g.handleDeleteConversation(w, r, conversationID)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	case len(parts) == 2 && parts[1] == "messages":
		switch r.Method {
		case http.MethodGet:
			g.handleListAIMessages(w, r, conversationID)
		case http.MethodPost:
			g.handleSendAIMessage(w, r, conversationID)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	case len(parts) == 2 && parts[1] == "context":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		g.handleContextPreview(w, r, conversationID)
	default:
		http.NotFound(w, r)
	}
}

// handleCreateConversation handles POST /api/ai/chats. A related room
// may only be linked if the creator is currently a participant.
func (g *Gateway) handleCreateConversation(w http.ResponseWriter, r *http.Request) {
	user := auth.MustFromContext(r.Context())

	var req CreateConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if req.RelatedRoom != nil {
		member, err := g.store.IsParticipant(r.Context(), *req.RelatedRoom, user.ID)
		if err != nil {
			g.logger.Error("membership check failed", "room_id", *req.RelatedRoom, "error", err)
			g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
			return
		}
		if !member {
			g.sendJSONError(w, http.StatusBadRequest, "you must be a participant in the related chat")
			return
		}
	}

	conv := &store.AIConversation{
		ID:            uuid.New().String(),
		OwnerID:       user.ID,
		RelatedRoomID: req.RelatedRoom,
		Title:         req.Title,
		SystemPrompt:  req.SystemPrompt,
	}
	if err := g.store.CreateConversation(r.Context(), conv); err != nil {
		g.logger.Error("creating conversation failed", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	g.sendJSON(w, http.StatusCreated, toConversationPayload(conv))
}

// handleListConversations handles GET /api/ai/chats, scoped to the owner.
func (g *Gateway) handleListConversations(w http.ResponseWriter, r *http.Request) {
	user := auth.MustFromContext(r.Context())

	convs, err := g.store.ListConversations(r.Context(), user.ID)
	if err != nil {
		g.logger.Error("listing conversations failed", "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	payloads := make([]*ConversationPayload, 0, len(convs))
	for _, c := range convs {
		payloads = append(payloads, toConversationPayload(c))
	}
	g.sendJSON(w, http.StatusOK, payloads)
}

// loadOwnedConversation resolves a conversation and enforces ownership,
// writing the error response itself on failure.
func (g *Gateway) loadOwnedConversation(w http.ResponseWriter, r *http.Request, conversationID string) *store.AIConversation {
	user := auth.MustFromContext(r.Context())

	conv, err := g.orchestrator.Conversation(r.Context(), user, conversationID)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound), errors.Is(err, ai.ErrNotOwner):
			// Hide existence of other users' conversations
			g.sendJSONError(w, http.StatusNotFound, "conversation not found")
		default:
			g.logger.Error("loading conversation failed", "conversation_id", conversationID, "error", err)
			g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		}
		return nil
	}
	return conv
}

func (g *Gateway) handleGetConversation(w http.ResponseWriter, r *http.Request, conversationID string) {
	conv := g.loadOwnedConversation(w, r, conversationID)
	if conv == nil {
		return
	}
	g.sendJSON(w, http.StatusOK, toConversationPayload(conv))
}

func (g *Gateway) handleDeleteConversation(w http.ResponseWriter, r *http.Request, conversationID string) {
	conv := g.loadOwnedConversation(w, r, conversationID)
	if conv == nil {
		return
	}
	if err := g.store.DeleteConversation(r.Context(), conv.ID); err != nil {
		g.logger.Error("deleting conversation failed", "conversation_id", conv.ID, "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (g *Gateway) handleListAIMessages(w http.ResponseWriter, r *http.Request, conversationID string) {
	conv := g.loadOwnedConversation(w, r, conversationID)
	if conv == nil {
		return
	}

	turns, err := g.store.ListAIMessages(r.Context(), conv.ID)
	if err != nil {
		g.logger.Error("listing turns failed", "conversation_id", conv.ID, "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	payloads := make([]*AIMessagePayload, 0, len(turns))
	for _, t := range turns {
		payloads = append(payloads, toAIMessagePayload(t))
	}
	g.sendJSON(w, http.StatusOK, payloads)
}

// handleSendAIMessage handles POST /api/ai/chats/{id}/messages: the
// synchronous mirror of the AI WebSocket path. The user turn is
// persisted even when the provider fails.
func (g *Gateway) handleSendAIMessage(w http.ResponseWriter, r *http.Request, conversationID string) {
	user := auth.MustFromContext(r.Context())

	var req SendAIMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		g.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	result, err := g.runTurn(r.Context(), user, conversationID, sendFrame{
		Content:                   req.Content,
		IncludeRelatedChatContext: req.IncludeRelatedChatContext,
		ContextMessageLimit:       req.ContextMessageLimit,
	})
	if err != nil {
		switch {
		case errors.Is(err, store.ErrEmptyContent):
			g.sendJSONError(w, http.StatusBadRequest, "content cannot be empty")
		case errors.Is(err, ai.ErrInvalidLimit):
			g.sendJSONError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, store.ErrNotFound), errors.Is(err, ai.ErrNotOwner):
			g.sendJSONError(w, http.StatusNotFound, "conversation not found")
		case errors.Is(err, store.ErrNotParticipant):
			g.sendJSONError(w, http.StatusForbidden, "not a participant of the related chat")
		case errors.Is(err, ai.ErrExternalService):
			g.sendJSONError(w, http.StatusBadGateway, "failed to get response from completion provider")
		default:
			g.logger.Error("turn failed", "conversation_id", conversationID, "error", err)
			g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		}
		return
	}

	g.sendJSON(w, http.StatusOK, toAIMessagePayloadWithUsage(result.AssistantMessage, result.Usage))
}

// handleContextPreview handles GET /api/ai/chats/{id}/context. Returns
// the related room's recent messages without invoking the provider.
func (g *Gateway) handleContextPreview(w http.ResponseWriter, r *http.Request, conversationID string) {
	user := auth.MustFromContext(r.Context())

	conv := g.loadOwnedConversation(w, r, conversationID)
	if conv == nil {
		return
	}
	if conv.RelatedRoomID == nil {
		g.sendJSONError(w, http.StatusNotFound, "no related chat linked to this conversation")
		return
	}

	limit := defaultPreviewLimit
	if raw := r.URL.Query().Get("message_limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > maxPreviewLimit {
			g.sendJSONError(w, http.StatusBadRequest, "message_limit must be between 1 and 200")
			return
		}
		limit = parsed
	}

	member, err := g.store.IsParticipant(r.Context(), *conv.RelatedRoomID, user.ID)
	if err != nil {
		g.logger.Error("membership check failed", "room_id", *conv.RelatedRoomID, "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if !member {
		g.sendJSONError(w, http.StatusForbidden, "not a participant of the related chat")
		return
	}

	room, err := g.store.GetRoom(r.Context(), *conv.RelatedRoomID)
	if err != nil {
		g.logger.Error("loading room failed", "room_id", *conv.RelatedRoomID, "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	messages, err := g.store.RecentMessages(r.Context(), room.ID, limit)
	if err != nil {
		g.logger.Error("reading room history failed", "room_id", room.ID, "error", err)
		g.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := ContextPreviewResponse{
		ChatName:     room.Name,
		MessageCount: len(messages),
		Messages:     make([]ContextMessagePayload, 0, len(messages)),
	}
	for _, m := range messages {
		sender := m.SenderID
		if m.Sender != nil {
			sender = m.Sender.Handle
		}
		resp.Messages = append(resp.Messages, ContextMessagePayload{
			Sender:    sender,
			Content:   m.Content,
			Timestamp: m.CreatedAt.Format(time.RFC3339Nano),
		})
	}
	g.sendJSON(w, http.StatusOK, resp)
}
