// ABOUTME: Builds completion prompts from conversation history and related room context
// ABOUTME: Room authorization is re-verified on every context read, never cached from link time

package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/campuschat/gateway/internal/store"
)

// Bounds on the number of room messages injected as prompt context.
const (
	DefaultContextLimit = 20
	maxContextLimit     = 100
)

// contextPreamble separates the system prompt from injected room history.
const contextPreamble = "\n\nContext from related chat:\n"

// ErrInvalidLimit is returned when a context message limit falls outside 1..100.
var ErrInvalidLimit = errors.New("context message limit out of range")

// PromptMessage is one turn handed to a completion client.
type PromptMessage struct {
	Role    store.AIRole
	Content string
}

// Assembler renders bounded excerpts of room history for prompt injection
// and composes full completion prompts from conversation state.
type Assembler struct {
	store  store.Store
	logger *slog.Logger
}

// NewAssembler creates an assembler over the given store.
func NewAssembler(st store.Store, logger *slog.Logger) *Assembler {
	return &Assembler{
		store:  st,
		logger: logger.With("component", "assembler"),
	}
}

// RoomContext reads the most recent messages of a room and renders them
// oldest-first as "handle: content" lines. The requester's membership is
// checked on every call. A zero limit means DefaultContextLimit; limits
// outside 1..100 return ErrInvalidLimit.
func (a *Assembler) RoomContext(ctx context.Context, requester *store.User, roomID string, limit int) (string, []*store.Message, error) {
	if limit == 0 {
		limit = DefaultContextLimit
	}
	if limit < 1 || limit > maxContextLimit {
		return "", nil, fmt.Errorf("%w: %d", ErrInvalidLimit, limit)
	}

	member, err := a.store.IsParticipant(ctx, roomID, requester.ID)
	if err != nil {
		return "", nil, fmt.Errorf("checking membership: %w", err)
	}
	if !member {
		return "", nil, store.ErrNotParticipant
	}

	messages, err := a.store.RecentMessages(ctx, roomID, limit)
	if err != nil {
		return "", nil, fmt.Errorf("reading room history: %w", err)
	}

	var b strings.Builder
	for _, msg := range messages {
		handle := msg.SenderID
		if msg.Sender != nil {
			handle = msg.Sender.Handle
		}
		fmt.Fprintf(&b, "%s: %s\n", handle, msg.Content)
	}
	return b.String(), messages, nil
}

// BuildPrompt composes the full message list for a completion call: the
// conversation's system prompt, optionally extended with related room
// context, followed by every prior user and assistant turn in order. The
// caller appends the new user turn via the store before calling this.
func (a *Assembler) BuildPrompt(ctx context.Context, conv *store.AIConversation, requester *store.User, includeContext bool, contextLimit int) ([]PromptMessage, error) {
	system := conv.SystemPrompt

	if includeContext && conv.RelatedRoomID != nil {
		block, _, err := a.RoomContext(ctx, requester, *conv.RelatedRoomID, contextLimit)
		if err != nil {
			return nil, err
		}
		if block != "" {
			system += contextPreamble + block
		}
	}

	prompt := []PromptMessage{{Role: store.AIRoleSystem, Content: system}}

	turns, err := a.store.ListAIMessages(ctx, conv.ID)
	if err != nil {
		return nil, fmt.Errorf("reading conversation history: %w", err)
	}
	for _, turn := range turns {
		if turn.Role != store.AIRoleUser && turn.Role != store.AIRoleAssistant {
			continue
		}
		prompt = append(prompt, PromptMessage{Role: turn.Role, Content: turn.Content})
	}
	return prompt, nil
}
