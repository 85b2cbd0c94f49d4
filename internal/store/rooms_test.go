// ABOUTME: Tests for room and participant persistence
// ABOUTME: Covers the management surface plus cascade and retention behavior

package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_CreateRoom(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	room := createTestRoom(t, store, "general")

	retrieved, err := store.GetRoom(ctx, room.ID)
	require.NoError(t, err)
	assert.Equal(t, "general", retrieved.Name)
	assert.False(t, retrieved.CreatedAt.IsZero())
}

func TestStore_GetRoom_NotFound(t *testing.T) {
	store := setupTestStore(t)

	_, err := store.GetRoom(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_AddParticipant_Idempotent(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	alice := createTestUser(t, store, "alice", RoleStudent)
	room := createTestRoom(t, store, "general")

	require.NoError(t, store.AddParticipant(ctx, room.ID, alice.ID))
	require.NoError(t, store.AddParticipant(ctx, room.ID, alice.ID))

	participants, err := store.ListParticipants(ctx, room.ID)
	require.NoError(t, err)
	assert.Len(t, participants, 1)
}

func TestStore_RemoveParticipant_Idempotent(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	alice := createTestUser(t, store, "alice", RoleStudent)
	room := createTestRoom(t, store, "general", alice)

	require.NoError(t, store.RemoveParticipant(ctx, room.ID, alice.ID))
	require.NoError(t, store.RemoveParticipant(ctx, room.ID, alice.ID))

	ok, err := store.IsParticipant(ctx, room.ID, alice.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_IsParticipant(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	alice := createTestUser(t, store, "alice", RoleStudent)
	bob := createTestUser(t, store, "bob", RoleStaff)
	room := createTestRoom(t, store, "general", alice)

	ok, err := store.IsParticipant(ctx, room.ID, alice.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.IsParticipant(ctx, room.ID, bob.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_ListParticipants(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	alice := createTestUser(t, store, "alice", RoleStudent)
	bob := createTestUser(t, store, "bob", RoleOwner)
	room := createTestRoom(t, store, "general", bob, alice)

	participants, err := store.ListParticipants(ctx, room.ID)
	require.NoError(t, err)
	require.Len(t, participants, 2)
	// Ordered by handle
	assert.Equal(t, "alice", participants[0].Handle)
	assert.Equal(t, "bob", participants[1].Handle)
}

func TestStore_DeleteRoom_CascadesMessages(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	alice := createTestUser(t, store, "alice", RoleStudent)
	room := createTestRoom(t, store, "general", alice)

	_, err := store.AppendMessage(ctx, room.ID, alice.ID, "hello")
	require.NoError(t, err)

	require.NoError(t, store.DeleteRoom(ctx, room.ID))

	_, err = store.GetRoom(ctx, room.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	count, err := store.CountMessages(ctx, room.ID)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestStore_DeleteRoom_NotFound(t *testing.T) {
	store := setupTestStore(t)

	err := store.DeleteRoom(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_RemovedParticipantMessagesRetained(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	alice := createTestUser(t, store, "alice", RoleStudent)
	room := createTestRoom(t, store, "general", alice)

	_, err := store.AppendMessage(ctx, room.ID, alice.ID, "before leaving")
	require.NoError(t, err)

	require.NoError(t, store.RemoveParticipant(ctx, room.ID, alice.ID))

	messages, err := store.ListMessages(ctx, room.ID, 0, 10)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, "before leaving", messages[0].Content)
	assert.Equal(t, "alice", messages[0].Sender.Handle)
}
