// ABOUTME: Store interface and data types for chat-gateway persistence
// ABOUTME: Defines User, Room, Message, AIConversation, AIMessage and the Store interface

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrNotParticipant is returned when a sender is not a current participant
// of the target room. Membership is checked at write time, never trusted
// from the caller.
var ErrNotParticipant = errors.New("sender is not a room participant")

// ErrEmptyContent is returned when a message body is empty or whitespace-only
var ErrEmptyContent = errors.New("content cannot be empty")

// ErrDuplicateHandle is returned when creating a user with a handle that is taken
var ErrDuplicateHandle = errors.New("handle already exists")

// Role classifies a user. Flat enum - there is no identity hierarchy.
type Role string

const (
	RoleOwner   Role = "owner"
	RoleStudent Role = "student"
	RoleStaff   Role = "staff"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleOwner, RoleStudent, RoleStaff:
		return true
	}
	return false
}

// User is an immutable identity. Referenced by id everywhere, never embedded.
type User struct {
	ID        string
	Handle    string
	Role      Role
	CreatedAt time.Time
}

// Room groups a set of participant identities. The participant set is
// mutated only through the management surface (AddParticipant etc.);
// message writes re-check current membership.
type Room struct {
	ID        string
	Name      string
	CreatedAt time.Time
}

// Message is one persisted room message. Immutable once written.
// IDs are server-assigned and monotonic within a room; the stable
// ordering key is (created_at, id) with ties broken by ascending id.
type Message struct {
	ID        int64
	RoomID    string
	SenderID  string
	Sender    *User // populated on reads and by AppendMessage
	Content   string
	CreatedAt time.Time
}

// AIRole is the author of an AI conversation turn.
type AIRole string

const (
	AIRoleUser      AIRole = "user"
	AIRoleAssistant AIRole = "assistant"
	AIRoleSystem    AIRole = "system"
)

// DefaultSystemPrompt is used when a conversation is created without one.
const DefaultSystemPrompt = "You are a helpful assistant."

// AIConversation is a one-on-one conversation between a user and the
// completion service. RelatedRoomID is a weak reference: deleting the
// room clears it, the conversation itself survives.
type AIConversation struct {
	ID            string
	OwnerID       string
	RelatedRoomID *string
	Title         string
	SystemPrompt  string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// AIMessage is one turn in an AI conversation, ordered by (created_at, id).
// Token counts are set on assistant turns only.
type AIMessage struct {
	ID               int64
	ConversationID   string
	Role             AIRole
	Content          string
	CreatedAt        time.Time
	PromptTokens     *int64
	CompletionTokens *int64
	TotalTokens      *int64
}

// Store is the single source of truth for message durability. Writes are
// atomic: a message is either fully recorded or an explicit error is
// returned, never a partial row.
type Store interface {
	// Users (identity management surface)
	CreateUser(ctx context.Context, user *User) error
	GetUser(ctx context.Context, id string) (*User, error)
	GetUserByHandle(ctx context.Context, handle string) (*User, error)

	// Rooms (room management surface)
	CreateRoom(ctx context.Context, room *Room) error
	GetRoom(ctx context.Context, id string) (*Room, error)
	DeleteRoom(ctx context.Context, id string) error
	AddParticipant(ctx context.Context, roomID, userID string) error
	RemoveParticipant(ctx context.Context, roomID, userID string) error
	IsParticipant(ctx context.Context, roomID, userID string) (bool, error)
	ListParticipants(ctx context.Context, roomID string) ([]*User, error)

	// Messages
	AppendMessage(ctx context.Context, roomID, senderID, content string) (*Message, error)
	ListMessages(ctx context.Context, roomID string, cursor int64, limit int) ([]*Message, error)
	RecentMessages(ctx context.Context, roomID string, limit int) ([]*Message, error)
	CountMessages(ctx context.Context, roomID string) (int, error)

	// AI conversations
	CreateConversation(ctx context.Context, conv *AIConversation) error
	GetConversation(ctx context.Context, id string) (*AIConversation, error)
	ListConversations(ctx context.Context, ownerID string) ([]*AIConversation, error)
	DeleteConversation(ctx context.Context, id string) error
	TouchConversation(ctx context.Context, id string) error

	// AI messages
	AppendAIMessage(ctx context.Context, msg *AIMessage) error
	ListAIMessages(ctx context.Context, conversationID string) ([]*AIMessage, error)

	// Close releases any resources held by the store
	Close() error
}
