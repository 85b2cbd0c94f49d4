// ABOUTME: AI conversation and turn persistence for the SQLite store
// ABOUTME: Conversations hold a weak related_room reference; turns are immutable once written

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// CreateConversation persists a new AI conversation. The caller is
// responsible for verifying the owner participates in the related room
// at link time (the orchestrator surface does this).
func (s *SQLiteStore) CreateConversation(ctx context.Context, conv *AIConversation) error {
	now := time.Now().UTC()
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = now
	}
	if conv.UpdatedAt.IsZero() {
		conv.UpdatedAt = now
	}
	if conv.SystemPrompt == "" {
		conv.SystemPrompt = DefaultSystemPrompt
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ai_conversations (id, owner_id, related_room_id, title, system_prompt, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		conv.ID, conv.OwnerID, conv.RelatedRoomID, conv.Title, conv.SystemPrompt,
		conv.CreatedAt.Format(time.RFC3339Nano), conv.UpdatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("inserting conversation: %w", err)
	}

	s.logger.Debug("conversation created", "conversation_id", conv.ID, "owner_id", conv.OwnerID)
	return nil
}

// GetConversation retrieves a conversation by id
func (s *SQLiteStore) GetConversation(ctx context.Context, id string) (*AIConversation, error) {
	conv := &AIConversation{}
	var createdAt, updatedAt string
	var relatedRoom sql.NullString

	err := s.db.QueryRowContext(ctx, `
		SELECT id, owner_id, related_room_id, title, system_prompt, created_at, updated_at
		FROM ai_conversations WHERE id = ?
	`, id).Scan(&conv.ID, &conv.OwnerID, &relatedRoom, &conv.Title, &conv.SystemPrompt, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying conversation: %w", err)
	}

	if relatedRoom.Valid {
		conv.RelatedRoomID = &relatedRoom.String
	}
	if conv.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if conv.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	return conv, nil
}

// ListConversations returns a user's conversations, most recently updated first
func (s *SQLiteStore) ListConversations(ctx context.Context, ownerID string) ([]*AIConversation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner_id, related_room_id, title, system_prompt, created_at, updated_at
		FROM ai_conversations
		WHERE owner_id = ?
		ORDER BY updated_at DESC
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("querying conversations: %w", err)
	}
	defer rows.Close()

	var convs []*AIConversation
	for rows.Next() {
		conv := &AIConversation{}
		var createdAt, updatedAt string
		var relatedRoom sql.NullString
		if err := rows.Scan(&conv.ID, &conv.OwnerID, &relatedRoom, &conv.Title, &conv.SystemPrompt, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scanning conversation: %w", err)
		}
		if relatedRoom.Valid {
			conv.RelatedRoomID = &relatedRoom.String
		}
		if conv.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		if conv.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
			return nil, fmt.Errorf("parsing updated_at: %w", err)
		}
		convs = append(convs, conv)
	}
	return convs, rows.Err()
}

// DeleteConversation removes a conversation and its turns
func (s *SQLiteStore) DeleteConversation(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM ai_conversations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting conversation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking delete result: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// TouchConversation bumps a conversation's updated_at to now
func (s *SQLiteStore) TouchConversation(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE ai_conversations SET updated_at = ? WHERE id = ?`,
		time.Now().UTC().Format(time.RFC3339Nano), id,
	)
	if err != nil {
		return fmt.Errorf("touching conversation: %w", err)
	}
	return nil
}

// AppendAIMessage durably records one conversation turn and assigns its id
// and timestamp. Like room messages, the write is atomic.
func (s *SQLiteStore) AppendAIMessage(ctx context.Context, msg *AIMessage) error {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO ai_messages (conversation_id, role, content, created_at, prompt_tokens, completion_tokens, total_tokens)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		msg.ConversationID, string(msg.Role), msg.Content,
		msg.CreatedAt.Format(time.RFC3339Nano),
		msg.PromptTokens, msg.CompletionTokens, msg.TotalTokens,
	)
	if err != nil {
		return fmt.Errorf("inserting ai message: %w", err)
	}

	msg.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading ai message id: %w", err)
	}

	s.logger.Debug("ai message appended",
		"message_id", msg.ID,
		"conversation_id", msg.ConversationID,
		"role", msg.Role,
	)
	return nil
}

// ListAIMessages returns all turns of a conversation ordered by (created_at, id)
func (s *SQLiteStore) ListAIMessages(ctx context.Context, conversationID string) ([]*AIMessage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, conversation_id, role, content, created_at, prompt_tokens, completion_tokens, total_tokens
		FROM ai_messages
		WHERE conversation_id = ?
		ORDER BY created_at, id
	`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("querying ai messages: %w", err)
	}
	defer rows.Close()

	var messages []*AIMessage
	for rows.Next() {
		msg := &AIMessage{}
		var role, createdAt string
		var prompt, completion, total sql.NullInt64
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &role, &msg.Content, &createdAt, &prompt, &completion, &total); err != nil {
			return nil, fmt.Errorf("scanning ai message: %w", err)
		}
		msg.Role = AIRole(role)
		if msg.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		if prompt.Valid {
			msg.PromptTokens = &prompt.Int64
		}
		if completion.Valid {
			msg.CompletionTokens = &completion.Int64
		}
		if total.Valid {
			msg.TotalTokens = &total.Int64
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}
