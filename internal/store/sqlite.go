// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides chat and AI-conversation persistence with automatic schema creation

package store

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"database/sql"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Single connection: read→write transaction upgrades on a second
	// pooled connection fail with SQLITE_BUSY, and (created_at, id)
	// assignment must stay totally ordered.
	db.SetMaxOpenConns(1)

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS users (
			id         TEXT PRIMARY KEY,
			handle     TEXT NOT NULL UNIQUE,
			role       TEXT NOT NULL,
			created_at TEXT NOT NULL,

			CHECK (role IN ('owner', 'student', 'staff'))
		);

		CREATE TABLE IF NOT EXISTS rooms (
			id         TEXT PRIMARY KEY,
			name       TEXT NOT NULL,
			created_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS room_participants (
			room_id TEXT NOT NULL,
			user_id TEXT NOT NULL,

			PRIMARY KEY (room_id, user_id),
			FOREIGN KEY (room_id) REFERENCES rooms(id) ON DELETE CASCADE,
			FOREIGN KEY (user_id) REFERENCES users(id)
		);

		CREATE INDEX IF NOT EXISTS idx_participants_user
			ON room_participants(user_id);

		CREATE TABLE IF NOT EXISTS messages (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			room_id    TEXT NOT NULL,
			sender_id  TEXT NOT NULL,
			content    TEXT NOT NULL,
			created_at TEXT NOT NULL,

			FOREIGN KEY (room_id) REFERENCES rooms(id) ON DELETE CASCADE,
			FOREIGN KEY (sender_id) REFERENCES users(id)
		);

		CREATE INDEX IF NOT EXISTS idx_messages_room_created
			ON messages(room_id, created_at, id);

		CREATE TABLE IF NOT EXISTS ai_conversations (
			id              TEXT PRIMARY KEY,
			owner_id        TEXT NOT NULL,
			related_room_id TEXT,
			title           TEXT NOT NULL,
			system_prompt   TEXT NOT NULL,
			created_at      TEXT NOT NULL,
			updated_at      TEXT NOT NULL,

			FOREIGN KEY (owner_id) REFERENCES users(id),
			FOREIGN KEY (related_room_id) REFERENCES rooms(id) ON DELETE SET NULL
		);

		CREATE INDEX IF NOT EXISTS idx_conversations_owner
			ON ai_conversations(owner_id, updated_at);

		CREATE TABLE IF NOT EXISTS ai_messages (
			id                INTEGER PRIMARY KEY AUTOINCREMENT,
			conversation_id   TEXT NOT NULL,
			role              TEXT NOT NULL,
			content           TEXT NOT NULL,
			created_at        TEXT NOT NULL,
			prompt_tokens     INTEGER,
			completion_tokens INTEGER,
			total_tokens      INTEGER,

			FOREIGN KEY (conversation_id) REFERENCES ai_conversations(id) ON DELETE CASCADE,
			CHECK (role IN ('user', 'assistant', 'system'))
		);

		CREATE INDEX IF NOT EXISTS idx_ai_messages_conversation
			ON ai_messages(conversation_id, created_at, id);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("executing schema: %w", err)
	}
	return nil
}

// Close closes the underlying database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
