// ABOUTME: Wire types for WebSocket frames and HTTP API payloads
// ABOUTME: Outbound frames wrap payloads in a type-tagged envelope

package gateway

import (
	"encoding/json"
	"time"

	"github.com/campuschat/gateway/internal/ai"
	"github.com/campuschat/gateway/internal/store"
)

// sendFrame is the inbound envelope on both WebSocket endpoints.
type sendFrame struct {
	Content                   string `json:"content"`
	IncludeRelatedChatContext bool   `json:"include_related_chat_context,omitempty"`
	ContextMessageLimit       int    `json:"context_message_limit,omitempty"`
}

// errorFrame is sent to a single connection; the connection stays open.
type errorFrame struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// messageFrame carries a persisted room message to every room member.
type messageFrame struct {
	Type    string          `json:"type"`
	Message *MessagePayload `json:"message"`
}

// aiMessageFrame echoes a persisted conversation turn back to the sender.
// Type is "user_message" or "assistant_message".
type aiMessageFrame struct {
	Type    string            `json:"type"`
	Message *AIMessagePayload `json:"message"`
}

// UserPayload is the JSON shape of a message sender.
type UserPayload struct {
	ID     string `json:"id"`
	Handle string `json:"handle"`
	Role   string `json:"role"`
}

// MessagePayload is the JSON shape of a room message.
type MessagePayload struct {
	ID        int64        `json:"id"`
	RoomID    string       `json:"room"`
	Sender    *UserPayload `json:"sender"`
	Content   string       `json:"content"`
	Timestamp string       `json:"created_at"`
}

// UsagePayload is the token accounting attached to assistant turns.
type UsagePayload struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
	TotalTokens      int64 `json:"total_tokens"`
}

// AIMessagePayload is the JSON shape of an AI conversation turn.
type AIMessagePayload struct {
	ID        int64         `json:"id"`
	Role      string        `json:"role"`
	Content   string        `json:"content"`
	Timestamp string        `json:"timestamp"`
	Usage     *UsagePayload `json:"usage,omitempty"`
}

// ConversationPayload is the JSON shape of an AI conversation.
type ConversationPayload struct {
	ID              string  `json:"id"`
	Title           string  `json:"title"`
	SystemPrompt    string  `json:"system_prompt"`
	RelatedRoomID   *string `json:"related_room"`
	RelatedRoomName string  `json:"related_room_name,omitempty"`
	CreatedAt       string  `json:"created_at"`
	UpdatedAt       string  `json:"updated_at"`
}

// ContextMessagePayload is one entry in a related-room context preview.
type ContextMessagePayload struct {
	Sender    string `json:"sender"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}

// ContextPreviewResponse is the JSON response for a context preview.
type ContextPreviewResponse struct {
	ChatName     string                  `json:"chat_name"`
	MessageCount int                     `json:"message_count"`
	Messages     []ContextMessagePayload `json:"messages"`
}

func toUserPayload(u *store.User) *UserPayload {
	if u == nil {
		return nil
	}
	return &UserPayload{ID: u.ID, Handle: u.Handle, Role: string(u.Role)}
}

func toMessagePayload(m *store.Message) *MessagePayload {
	return &MessagePayload{
		ID:        m.ID,
		RoomID:    m.RoomID,
		Sender:    toUserPayload(m.Sender),
		Content:   m.Content,
		Timestamp: m.CreatedAt.Format(time.RFC3339Nano),
	}
}

func toAIMessagePayload(m *store.AIMessage) *AIMessagePayload {
	p := &AIMessagePayload{
		ID:        m.ID,
		Role:      string(m.Role),
		Content:   m.Content,
		Timestamp: m.CreatedAt.Format(time.RFC3339Nano),
	}
	if m.PromptTokens != nil && m.CompletionTokens != nil && m.TotalTokens != nil {
		p.Usage = &UsagePayload{
			PromptTokens:     *m.PromptTokens,
			CompletionTokens: *m.CompletionTokens,
			TotalTokens:      *m.TotalTokens,
		}
	}
	return p
}

func toAIMessagePayloadWithUsage(m *store.AIMessage, usage ai.Usage) *AIMessagePayload {
	p := toAIMessagePayload(m)
	p.Usage = &UsagePayload{
		PromptTokens:     usage.PromptTokens,
		CompletionTokens: usage.CompletionTokens,
		TotalTokens:      usage.TotalTokens,
	}
	return p
}

func toConversationPayload(c *store.AIConversation) *ConversationPayload {
	return &ConversationPayload{
		ID:            c.ID,
		Title:         c.Title,
		SystemPrompt:  c.SystemPrompt,
		RelatedRoomID: c.RelatedRoomID,
		CreatedAt:     c.CreatedAt.Format(time.RFC3339Nano),
		UpdatedAt:     c.UpdatedAt.Format(time.RFC3339Nano),
	}
}

func marshalErrorFrame(message string) []byte {
	data, _ := json.Marshal(errorFrame{Type: "error", Message: message})
	return data
}

func marshalMessageFrame(m *store.Message) ([]byte, error) {
	return json.Marshal(messageFrame{Type: "message", Message: toMessagePayload(m)})
}
