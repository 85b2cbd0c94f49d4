// ABOUTME: Tests for outbound frame serialization
// ABOUTME: Pins the exact JSON key names clients depend on

package gateway

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campuschat/gateway/internal/store"
)

func TestMarshalMessageFrame_WireKeys(t *testing.T) {
	created := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	msg := &store.Message{
		ID:        42,
		RoomID:    "room-1",
		SenderID:  "user-1",
		Content:   "hello",
		CreatedAt: created,
		Sender:    &store.User{ID: "user-1", Handle: "alice", Role: store.RoleStudent},
	}

	data, err := marshalMessageFrame(msg)
	require.NoError(t, err)

	var frame map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &frame))
	assert.JSONEq(t, `"message"`, string(frame["type"]))

	var payload map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(frame["message"], &payload))

	for _, key := range []string{"id", "room", "sender", "content", "created_at"} {
		assert.Contains(t, payload, key)
	}
	assert.NotContains(t, payload, "room_id")
	assert.NotContains(t, payload, "timestamp")

	assert.JSONEq(t, `"room-1"`, string(payload["room"]))
	assert.JSONEq(t, `"2026-03-14T09:26:53Z"`, string(payload["created_at"]))

	var sender map[string]string
	require.NoError(t, json.Unmarshal(payload["sender"], &sender))
	assert.Equal(t, "alice", sender["handle"])
	assert.Equal(t, "student", sender["role"])
}

func TestMarshalErrorFrame_WireKeys(t *testing.T) {
	data := marshalErrorFrame("Invalid JSON")
	assert.JSONEq(t, `{"type":"error","message":"Invalid JSON"}`, string(data))
}
