// ABOUTME: Drives one AI conversation turn: persist, assemble, complete, persist
// ABOUTME: The user's turn is durable before the provider is called and survives its failure

package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/campuschat/gateway/internal/store"
)

// ErrExternalService is returned when the completion provider fails.
// The user's turn is already persisted when this is returned.
var ErrExternalService = errors.New("completion provider failed")

// ErrNotOwner is returned when a requester addresses a conversation they
// do not own.
var ErrNotOwner = errors.New("not the conversation owner")

// TurnOptions controls context injection for a single turn.
type TurnOptions struct {
	IncludeContext bool
	ContextLimit   int
}

// TurnResult is the outcome of a completed conversation turn.
type TurnResult struct {
	UserMessage      *store.AIMessage
	AssistantMessage *store.AIMessage
	Usage            Usage
}

// Orchestrator executes conversation turns. It is stateless per
// invocation; all state lives in the store.
type Orchestrator struct {
	store     store.Store
	assembler *Assembler
	client    CompletionClient
	logger    *slog.Logger
}

// NewOrchestrator wires the orchestrator's collaborators.
func NewOrchestrator(st store.Store, assembler *Assembler, client CompletionClient, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		store:     st,
		assembler: assembler,
		client:    client,
		logger:    logger.With("component", "orchestrator"),
	}
}

// Conversation loads a conversation and verifies the requester owns it.
func (o *Orchestrator) Conversation(ctx context.Context, requester *store.User, conversationID string) (*store.AIConversation, error) {
	conv, err := o.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv.OwnerID != requester.ID {
		return nil, ErrNotOwner
	}
	return conv, nil
}

// SendMessage runs one full turn: the user's utterance is persisted
// first, the prompt assembled, the completion client invoked exactly
// once, and the assistant's reply persisted with token counts. Provider
// failures return ErrExternalService with the user turn intact.
func (o *Orchestrator) SendMessage(ctx context.Context, requester *store.User, conversationID, content string, opts TurnOptions) (*TurnResult, error) {
	if strings.TrimSpace(content) == "" {
		return nil, store.ErrEmptyContent
	}

	conv, err := o.Conversation(ctx, requester, conversationID)
	if err != nil {
		return nil, err
	}

	userMsg := &store.AIMessage{
		ConversationID: conv.ID,
		Role:           store.AIRoleUser,
		Content:        content,
	}
	if err := o.store.AppendAIMessage(ctx, userMsg); err != nil {
		return nil, fmt.Errorf("persisting user turn: %w", err)
	}

	prompt, err := o.assembler.BuildPrompt(ctx, conv, requester, opts.IncludeContext, opts.ContextLimit)
	if err != nil {
		return &TurnResult{UserMessage: userMsg}, err
	}

	completion, err := o.client.Complete(ctx, prompt)
	if err != nil {
		o.logger.Error("completion failed",
			"conversation_id", conv.ID,
			"error", err)
		return &TurnResult{UserMessage: userMsg}, fmt.Errorf("%w: %v", ErrExternalService, err)
	}

	assistantMsg := &store.AIMessage{
		ConversationID:   conv.ID,
		Role:             store.AIRoleAssistant,
		Content:          completion.Content,
		PromptTokens:     &completion.Usage.PromptTokens,
		CompletionTokens: &completion.Usage.CompletionTokens,
		TotalTokens:      &completion.Usage.TotalTokens,
	}
	if err := o.store.AppendAIMessage(ctx, assistantMsg); err != nil {
		return &TurnResult{UserMessage: userMsg}, fmt.Errorf("persisting assistant turn: %w", err)
	}

	if err := o.store.TouchConversation(ctx, conv.ID); err != nil {
		o.logger.Warn("touching conversation failed",
			"conversation_id", conv.ID,
			"error", err)
	}

	o.logger.Info("turn completed",
		"conversation_id", conv.ID,
		"total_tokens", completion.Usage.TotalTokens)

	return &TurnResult{
		UserMessage:      userMsg,
		AssistantMessage: assistantMsg,
		Usage:            completion.Usage,
	}, nil
}
