// ABOUTME: Tests for the WebSocket endpoints using real connections against an httptest server
// ABOUTME: Covers pre-upgrade rejection, fanout, error frames, and the dual-ingress asymmetry

package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campuschat/gateway/internal/store"
)

func (tg *testGateway) wsURL(path, token string) string {
	u := "ws" + strings.TrimPrefix(tg.server.URL, "http") + path
	if token != "" {
		u += "?token=" + token
	}
	return u
}

func (tg *testGateway) dialChat(t *testing.T, ctx context.Context, roomID string, user *store.User) *websocket.Conn {
	t.Helper()
	conn, resp, err := websocket.Dial(ctx, tg.wsURL("/ws/chat/"+roomID+"/", tg.tokenFor(t, user)), nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

// readFrame reads one frame and unmarshals it into a generic envelope.
func readFrame(t *testing.T, ctx context.Context, conn *websocket.Conn) map[string]json.RawMessage {
	t.Helper()
	readCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, data, err := conn.Read(readCtx)
	require.NoError(t, err)
	var frame map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &frame))
	return frame
}

func frameType(t *testing.T, frame map[string]json.RawMessage) string {
	t.Helper()
	var typ string
	require.NoError(t, json.Unmarshal(frame["type"], &typ))
	return typ
}

func sendFrameJSON(t *testing.T, ctx context.Context, conn *websocket.Conn, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	require.NoError(t, conn.Write(ctx, websocket.MessageText, data))
}

func TestWS_RejectsWithoutToken(t *testing.T) {
	tg := newTestGateway(t)
	alice := tg.createUser(t, "alice")
	room := tg.createRoom(t, "general", alice)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, resp, err := websocket.Dial(ctx, tg.wsURL("/ws/chat/"+room.ID+"/", ""), nil)
	require.Error(t, err)
	require.Nil(t, conn)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestWS_RejectsNonParticipant(t *testing.T) {
	tg := newTestGateway(t)
	alice := tg.createUser(t, "alice")
	mallory := tg.createUser(t, "mallory")
	room := tg.createRoom(t, "general", alice)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, resp, err := websocket.Dial(ctx,
		tg.wsURL("/ws/chat/"+room.ID+"/", tg.tokenFor(t, mallory)), nil)
	require.Error(t, err)
	require.Nil(t, conn)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	// An unknown room returns the same status as a real one
	conn, resp, err = websocket.Dial(ctx,
		tg.wsURL("/ws/chat/no-such-room/", tg.tokenFor(t, mallory)), nil)
	require.Error(t, err)
	require.Nil(t, conn)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestWS_FanoutIncludesSender(t *testing.T) {
	tg := newTestGateway(t)
	alice := tg.createUser(t, "alice")
	bob := tg.createUser(t, "bob")
	room := tg.createRoom(t, "general", alice, bob)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	aliceConn := tg.dialChat(t, ctx, room.ID, alice)
	bobConn := tg.dialChat(t, ctx, room.ID, bob)

	sendFrameJSON(t, ctx, aliceConn, sendFrame{Content: "hello room"})

	for name, conn := range map[string]*websocket.Conn{"alice": aliceConn, "bob": bobConn} {
		frame := readFrame(t, ctx, conn)
		require.Equal(t, "message", frameType(t, frame), name)

		var msg MessagePayload
		require.NoError(t, json.Unmarshal(frame["message"], &msg))
		assert.Equal(t, "hello room", msg.Content, name)
		assert.Equal(t, room.ID, msg.RoomID, name)
		require.NotNil(t, msg.Sender, name)
		assert.Equal(t, "alice", msg.Sender.Handle, name)
		assert.NotZero(t, msg.ID, name)
	}
}

func TestWS_MessagePersistedBeforeFanout(t *testing.T) {
	tg := newTestGateway(t)
	alice := tg.createUser(t, "alice")
	room := tg.createRoom(t, "general", alice)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conn := tg.dialChat(t, ctx, room.ID, alice)
	sendFrameJSON(t, ctx, conn, sendFrame{Content: "durable"})

	frame := readFrame(t, ctx, conn)
	require.Equal(t, "message", frameType(t, frame))

	messages, err := tg.store.ListMessages(context.Background(), room.ID, 0, 0)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, "durable", messages[0].Content)
}

func TestWS_MalformedJSONIsNonFatal(t *testing.T) {
	tg := newTestGateway(t)
	alice := tg.createUser(t, "alice")
	room := tg.createRoom(t, "general", alice)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conn := tg.dialChat(t, ctx, room.ID, alice)
	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte("{not json")))

	frame := readFrame(t, ctx, conn)
	require.Equal(t, "error", frameType(t, frame))
	var msg string
	require.NoError(t, json.Unmarshal(frame["message"], &msg))
	assert.Equal(t, "Invalid JSON", msg)

	// The connection stays usable
	sendFrameJSON(t, ctx, conn, sendFrame{Content: "still here"})
	frame = readFrame(t, ctx, conn)
	assert.Equal(t, "message", frameType(t, frame))
}

func TestWS_EmptyContentPersistsNothing(t *testing.T) {
	tg := newTestGateway(t)
	alice := tg.createUser(t, "alice")
	room := tg.createRoom(t, "general", alice)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conn := tg.dialChat(t, ctx, room.ID, alice)
	sendFrameJSON(t, ctx, conn, sendFrame{Content: "   \n"})

	frame := readFrame(t, ctx, conn)
	require.Equal(t, "error", frameType(t, frame))
	var msg string
	require.NoError(t, json.Unmarshal(frame["message"], &msg))
	assert.Equal(t, "Content cannot be empty", msg)

	count, err := tg.store.CountMessages(context.Background(), room.ID)
	require.NoError(t, err)
	assert.Zero(t, count)
}

// The synchronous API path persists but never fans out. A live member
// must not receive a frame for an API write.
func TestWS_APIWriteDoesNotFanOut(t *testing.T) {
	tg := newTestGateway(t)
	alice := tg.createUser(t, "alice")
	bob := tg.createUser(t, "bob")
	room := tg.createRoom(t, "general", alice, bob)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	bobConn := tg.dialChat(t, ctx, room.ID, bob)

	resp := tg.doJSON(t, http.MethodPost, "/api/chats/"+room.ID+"/messages",
		tg.tokenFor(t, alice), PostMessageRequest{Content: "via the api"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	// It is durable...
	count, err := tg.store.CountMessages(context.Background(), room.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	// ...but no frame arrives at the live connection
	readCtx, readCancel := context.WithTimeout(ctx, 300*time.Millisecond)
	defer readCancel()
	_, _, err = bobConn.Read(readCtx)
	require.Error(t, err)
}

func TestWS_DisconnectStopsDelivery(t *testing.T) {
	tg := newTestGateway(t)
	alice := tg.createUser(t, "alice")
	bob := tg.createUser(t, "bob")
	room := tg.createRoom(t, "general", alice, bob)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	aliceConn := tg.dialChat(t, ctx, room.ID, alice)
	bobConn := tg.dialChat(t, ctx, room.ID, bob)

	require.NoError(t, bobConn.Close(websocket.StatusNormalClosure, "done"))

	// Wait for the server to deregister bob
	require.Eventually(t, func() bool {
		return tg.gw.broadcaster.MemberCount(room.ID) == 1
	}, 5*time.Second, 10*time.Millisecond)

	sendFrameJSON(t, ctx, aliceConn, sendFrame{Content: "bob is gone"})

	frame := readFrame(t, ctx, aliceConn)
	assert.Equal(t, "message", frameType(t, frame))
}

func TestWS_RoomIsolation(t *testing.T) {
	tg := newTestGateway(t)
	alice := tg.createUser(t, "alice")
	bob := tg.createUser(t, "bob")
	roomA := tg.createRoom(t, "room a", alice, bob)
	roomB := tg.createRoom(t, "room b", alice, bob)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	connA := tg.dialChat(t, ctx, roomA.ID, alice)
	connB := tg.dialChat(t, ctx, roomB.ID, bob)

	sendFrameJSON(t, ctx, connA, sendFrame{Content: "only room a"})

	frame := readFrame(t, ctx, connA)
	assert.Equal(t, "message", frameType(t, frame))

	readCtx, readCancel := context.WithTimeout(ctx, 300*time.Millisecond)
	defer readCancel()
	_, _, err := connB.Read(readCtx)
	require.Error(t, err)
}

func TestWS_AIChat_UserThenAssistantFrames(t *testing.T) {
	tg := newTestGateway(t)
	alice := tg.createUser(t, "alice")
	token := tg.tokenFor(t, alice)

	resp := tg.doJSON(t, http.MethodPost, "/api/ai/chats", token,
		CreateConversationRequest{Title: "ws helper"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	conv := decodeBody[ConversationPayload](t, resp)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conn, dialResp, err := websocket.Dial(ctx, tg.wsURL("/ws/ai-chat/"+conv.ID+"/", token), nil)
	require.NoError(t, err)
	if dialResp != nil && dialResp.Body != nil {
		dialResp.Body.Close()
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	sendFrameJSON(t, ctx, conn, sendFrame{Content: "what is 2+2?"})

	frame := readFrame(t, ctx, conn)
	require.Equal(t, "user_message", frameType(t, frame))
	var userMsg AIMessagePayload
	require.NoError(t, json.Unmarshal(frame["message"], &userMsg))
	assert.Equal(t, "user", userMsg.Role)
	assert.Equal(t, "what is 2+2?", userMsg.Content)

	frame = readFrame(t, ctx, conn)
	require.Equal(t, "assistant_message", frameType(t, frame))
	var assistantMsg AIMessagePayload
	require.NoError(t, json.Unmarshal(frame["message"], &assistantMsg))
	assert.Equal(t, "assistant", assistantMsg.Role)
	assert.Equal(t, "canned reply", assistantMsg.Content)
	require.NotNil(t, assistantMsg.Usage)
	assert.Equal(t, int64(14), assistantMsg.Usage.TotalTokens)
}

func TestWS_AIChat_RejectsNonOwner(t *testing.T) {
	tg := newTestGateway(t)
	alice := tg.createUser(t, "alice")
	bob := tg.createUser(t, "bob")

	resp := tg.doJSON(t, http.MethodPost, "/api/ai/chats", tg.tokenFor(t, alice),
		CreateConversationRequest{Title: "alice only"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	conv := decodeBody[ConversationPayload](t, resp)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, dialResp, err := websocket.Dial(ctx,
		tg.wsURL("/ws/ai-chat/"+conv.ID+"/", tg.tokenFor(t, bob)), nil)
	require.Error(t, err)
	require.Nil(t, conn)
	require.NotNil(t, dialResp)
	assert.Equal(t, http.StatusForbidden, dialResp.StatusCode)
}

func TestWS_AIChat_ProviderFailureEmitsErrorAfterUserFrame(t *testing.T) {
	tg := newTestGateway(t)
	alice := tg.createUser(t, "alice")
	token := tg.tokenFor(t, alice)

	resp := tg.doJSON(t, http.MethodPost, "/api/ai/chats", token,
		CreateConversationRequest{Title: "doomed ws"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	conv := decodeBody[ConversationPayload](t, resp)

	tg.completer.err = context.DeadlineExceeded

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conn, dialResp, err := websocket.Dial(ctx, tg.wsURL("/ws/ai-chat/"+conv.ID+"/", token), nil)
	require.NoError(t, err)
	if dialResp != nil && dialResp.Body != nil {
		dialResp.Body.Close()
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	sendFrameJSON(t, ctx, conn, sendFrame{Content: "hello?"})

	frame := readFrame(t, ctx, conn)
	require.Equal(t, "user_message", frameType(t, frame))

	frame = readFrame(t, ctx, conn)
	require.Equal(t, "error", frameType(t, frame))

	// The user turn is durable despite the failure
	turns, err := tg.store.ListAIMessages(context.Background(), conv.ID)
	require.NoError(t, err)
	require.Len(t, turns, 1)
	assert.Equal(t, store.AIRoleUser, turns[0].Role)
}

func TestSendLocal_DeadWriterDoesNotBlockReceive(t *testing.T) {
	// Once the connection context ends the writer goroutine is gone;
	// queuing an error frame into a full buffer must still return.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	local := make(chan []byte, 1)
	local <- []byte("fills the buffer")

	done := make(chan struct{})
	go func() {
		sendLocal(ctx, local, marshalErrorFrame(errSaveFailed))
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("send blocked on a full channel with no writer")
	}
}
