// ABOUTME: User persistence for the SQLite store
// ABOUTME: Identities are created by the management layer and read-only afterwards

package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// CreateUser persists a new identity. The id, handle and role must be set.
func (s *SQLiteStore) CreateUser(ctx context.Context, user *User) error {
	if !user.Role.Valid() {
		return fmt.Errorf("invalid role %q", user.Role)
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, handle, role, created_at) VALUES (?, ?, ?, ?)`,
		user.ID, user.Handle, string(user.Role), user.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrDuplicateHandle
		}
		return fmt.Errorf("inserting user: %w", err)
	}

	s.logger.Debug("user created", "user_id", user.ID, "handle", user.Handle, "role", user.Role)
	return nil
}

// GetUser retrieves a user by id
func (s *SQLiteStore) GetUser(ctx context.Context, id string) (*User, error) {
	return s.queryUser(ctx, `SELECT id, handle, role, created_at FROM users WHERE id = ?`, id)
}

// GetUserByHandle retrieves a user by handle
func (s *SQLiteStore) GetUserByHandle(ctx context.Context, handle string) (*User, error) {
	return s.queryUser(ctx, `SELECT id, handle, role, created_at FROM users WHERE handle = ?`, handle)
}

func (s *SQLiteStore) queryUser(ctx context.Context, query string, arg any) (*User, error) {
	user := &User{}
	var role, createdAt string

	err := s.db.QueryRowContext(ctx, query, arg).Scan(&user.ID, &user.Handle, &role, &createdAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying user: %w", err)
	}

	user.Role = Role(role)
	user.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	return user, nil
}
