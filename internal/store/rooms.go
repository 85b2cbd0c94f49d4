// ABOUTME: Room and participant persistence for the SQLite store
// ABOUTME: The management surface the external room layer calls; the core only reads membership

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// CreateRoom persists a new room
func (s *SQLiteStore) CreateRoom(ctx context.Context, room *Room) error {
	if room.CreatedAt.IsZero() {
		room.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO rooms (id, name, created_at) VALUES (?, ?, ?)`,
		room.ID, room.Name, room.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("inserting room: %w", err)
	}

	s.logger.Debug("room created", "room_id", room.ID, "name", room.Name)
	return nil
}

// GetRoom retrieves a room by id
func (s *SQLiteStore) GetRoom(ctx context.Context, id string) (*Room, error) {
	room := &Room{}
	var createdAt string

	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, created_at FROM rooms WHERE id = ?`, id,
	).Scan(&room.ID, &room.Name, &createdAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying room: %w", err)
	}

	room.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	return room, nil
}

// DeleteRoom removes a room. Messages and participant rows cascade;
// AI conversations that reference the room keep existing with their
// related_room_id cleared (weak reference semantics).
func (s *SQLiteStore) DeleteRoom(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM rooms WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting room: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking delete result: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}

	s.logger.Info("room deleted", "room_id", id)
	return nil
}

// AddParticipant adds a user to a room. Idempotent.
func (s *SQLiteStore) AddParticipant(ctx context.Context, roomID, userID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO room_participants (room_id, user_id) VALUES (?, ?)`,
		roomID, userID,
	)
	if err != nil {
		return fmt.Errorf("adding participant: %w", err)
	}
	return nil
}

// RemoveParticipant removes a user from a room. Idempotent. Past messages
// from the removed user are retained as-is.
func (s *SQLiteStore) RemoveParticipant(ctx context.Context, roomID, userID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM room_participants WHERE room_id = ? AND user_id = ?`,
		roomID, userID,
	)
	if err != nil {
		return fmt.Errorf("removing participant: %w", err)
	}
	return nil
}

// IsParticipant reports whether the user is currently a participant of the room
func (s *SQLiteStore) IsParticipant(ctx context.Context, roomID, userID string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM room_participants WHERE room_id = ? AND user_id = ?`,
		roomID, userID,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("querying participant: %w", err)
	}
	return n > 0, nil
}

// ListParticipants returns the current participants of a room
func (s *SQLiteStore) ListParticipants(ctx context.Context, roomID string) ([]*User, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT u.id, u.handle, u.role, u.created_at
		FROM room_participants p
		JOIN users u ON u.id = p.user_id
		WHERE p.room_id = ?
		ORDER BY u.handle
	`, roomID)
	if err != nil {
		return nil, fmt.Errorf("querying participants: %w", err)
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		user := &User{}
		var role, createdAt string
		if err := rows.Scan(&user.ID, &user.Handle, &role, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning participant: %w", err)
		}
		user.Role = Role(role)
		user.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		users = append(users, user)
	}
	return users, rows.Err()
}
