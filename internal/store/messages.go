// ABOUTME: Room message persistence - the durability boundary of the chat core
// ABOUTME: AppendMessage enforces membership at write time and assigns ids atomically

package store

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// AppendMessage durably records a message. The sender must be a current
// participant of the room; this is re-checked here inside the write
// transaction and never trusted from the caller. The insert is atomic:
// either the message is fully recorded with its assigned id and
// timestamp, or an error is returned and nothing is written.
func (s *SQLiteStore) AppendMessage(ctx context.Context, roomID, senderID, content string) (*Message, error) {
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyContent
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var roomCount int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM rooms WHERE id = ?`, roomID,
	).Scan(&roomCount); err != nil {
		return nil, fmt.Errorf("checking room: %w", err)
	}
	if roomCount == 0 {
		return nil, ErrNotFound
	}

	var memberCount int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM room_participants WHERE room_id = ? AND user_id = ?`,
		roomID, senderID,
	).Scan(&memberCount); err != nil {
		return nil, fmt.Errorf("checking membership: %w", err)
	}
	if memberCount == 0 {
		return nil, ErrNotParticipant
	}

	createdAt := time.Now().UTC()
	res, err := tx.ExecContext(ctx,
		`INSERT INTO messages (room_id, sender_id, content, created_at) VALUES (?, ?, ?, ?)`,
		roomID, senderID, content, createdAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, fmt.Errorf("inserting message: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("reading message id: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing message: %w", err)
	}

	sender, err := s.GetUser(ctx, senderID)
	if err != nil {
		return nil, fmt.Errorf("loading sender: %w", err)
	}

	s.logger.Debug("message appended",
		"message_id", id,
		"room_id", roomID,
		"sender", sender.Handle,
	)

	return &Message{
		ID:        id,
		RoomID:    roomID,
		SenderID:  senderID,
		Sender:    sender,
		Content:   content,
		CreatedAt: createdAt,
	}, nil
}

// ListMessages returns messages of a room ordered oldest-first by
// (created_at, id). Cursor is the id of the last message already seen
// (0 for the start); the read is restartable and finite.
func (s *SQLiteStore) ListMessages(ctx context.Context, roomID string, cursor int64, limit int) ([]*Message, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT m.id, m.room_id, m.sender_id, m.content, m.created_at,
		       u.id, u.handle, u.role, u.created_at
		FROM messages m
		JOIN users u ON u.id = m.sender_id
		WHERE m.room_id = ? AND m.id > ?
		ORDER BY m.created_at, m.id
		LIMIT ?
	`, roomID, cursor, limit)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	return scanMessages(rows)
}

// RecentMessages returns the newest limit messages of a room in
// chronological (oldest-first) order. Used by the context assembler.
func (s *SQLiteStore) RecentMessages(ctx context.Context, roomID string, limit int) ([]*Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, room_id, sender_id, content, created_at, uid, handle, role, user_created
		FROM (
			SELECT m.id, m.room_id, m.sender_id, m.content, m.created_at,
			       u.id AS uid, u.handle, u.role, u.created_at AS user_created
			FROM messages m
			JOIN users u ON u.id = m.sender_id
			WHERE m.room_id = ?
			ORDER BY m.created_at DESC, m.id DESC
			LIMIT ?
		)
		ORDER BY created_at, id
	`, roomID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying recent messages: %w", err)
	}
	defer rows.Close()

	return scanMessages(rows)
}

// CountMessages returns the number of messages persisted for a room
func (s *SQLiteStore) CountMessages(ctx context.Context, roomID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages WHERE room_id = ?`, roomID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting messages: %w", err)
	}
	return n, nil
}

// scanRows is the subset of *sql.Rows both message queries need.
type scanRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanMessages(rows scanRows) ([]*Message, error) {
	var messages []*Message
	for rows.Next() {
		msg := &Message{Sender: &User{}}
		var msgCreated, role, userCreated string
		if err := rows.Scan(
			&msg.ID, &msg.RoomID, &msg.SenderID, &msg.Content, &msgCreated,
			&msg.Sender.ID, &msg.Sender.Handle, &role, &userCreated,
		); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}

		var err error
		msg.CreatedAt, err = time.Parse(time.RFC3339Nano, msgCreated)
		if err != nil {
			return nil, fmt.Errorf("parsing message created_at: %w", err)
		}
		msg.Sender.Role = Role(role)
		msg.Sender.CreatedAt, err = time.Parse(time.RFC3339Nano, userCreated)
		if err != nil {
			return nil, fmt.Errorf("parsing sender created_at: %w", err)
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}
