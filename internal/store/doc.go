// Package store provides persistent storage for the chat gateway using SQLite.
//
// # Architecture
//
// The Store interface is the single source of truth for message
// durability. Everything that must survive a restart goes through it:
// room messages, AI conversation turns, and the entities they reference
// (users, rooms, participant sets, conversations).
//
// SQLiteStore implements the interface in a single struct. Writes that
// span a consistency check and an insert (AppendMessage) run inside one
// transaction so a message is either fully recorded or not at all.
//
// # Data Models
//
//   - User: flat identity with a role enum (owner, student, staff)
//   - Room: named participant set
//   - Message: immutable room message, ordered by (created_at, id)
//   - AIConversation: one-on-one AI conversation, optionally holding a
//     weak related_room reference (cleared on room delete, never cascaded)
//   - AIMessage: one conversation turn with optional token accounting
//
// # Ordering
//
// Message ids are assigned by SQLite's AUTOINCREMENT and are therefore
// monotonic within every room. The stable ordering key is
// (created_at, id); timestamp ties are broken by ascending id. SQLite's
// single-writer discipline serializes concurrent appends, so the
// resulting order is total.
//
// # SQLite Configuration
//
// The store uses WAL mode for concurrent reads:
//
//	PRAGMA journal_mode=WAL;
//	PRAGMA foreign_keys=ON;
//
// Use NewSQLiteStore(":memory:") or a t.TempDir() path for tests.
//
// # Error Handling
//
// Common errors:
//
//   - ErrNotFound: requested entity does not exist
//   - ErrNotParticipant: sender is not a current room participant
//   - ErrEmptyContent: message body is empty or whitespace-only
//
// All methods accept context.Context for cancellation support.
package store
