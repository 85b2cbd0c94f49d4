// ABOUTME: Shared test fixture wiring a gateway over a real store and in-memory fanout
// ABOUTME: Completion providers are faked; everything else is the production wiring

package gateway

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/campuschat/gateway/internal/ai"
	"github.com/campuschat/gateway/internal/auth"
	"github.com/campuschat/gateway/internal/broadcast"
	"github.com/campuschat/gateway/internal/config"
	"github.com/campuschat/gateway/internal/store"
)

// fakeCompleter returns a canned completion or error.
type fakeCompleter struct {
	reply string
	usage ai.Usage
	err   error
}

func (f *fakeCompleter) Complete(_ context.Context, _ []ai.PromptMessage) (*ai.Completion, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &ai.Completion{Content: f.reply, Usage: f.usage}, nil
}

type testGateway struct {
	gw        *Gateway
	server    *httptest.Server
	store     *store.SQLiteStore
	verifier  *auth.JWTVerifier
	completer *fakeCompleter
}

func newTestGateway(t *testing.T) *testGateway {
	t.Helper()

	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	verifier, err := auth.NewJWTVerifier([]byte("test-secret"))
	require.NoError(t, err)

	completer := &fakeCompleter{
		reply: "canned reply",
		usage: ai.Usage{PromptTokens: 10, CompletionTokens: 4, TotalTokens: 14},
	}

	assembler := ai.NewAssembler(st, logger)
	gw := &Gateway{
		config: &config.Config{
			Server: config.ServerConfig{HTTPAddr: "127.0.0.1:0", ShutdownTimeout: time.Second},
		},
		store:         st,
		broadcaster:   broadcast.NewMemoryBroadcaster(logger),
		authenticator: auth.NewJWTAuthenticator(verifier, st),
		verifier:      verifier,
		orchestrator:  ai.NewOrchestrator(st, assembler, completer, logger),
		assembler:     assembler,
		logger:        logger,
	}

	mux := http.NewServeMux()
	gw.registerRoutes(mux)
	gw.httpServer = &http.Server{Handler: mux}

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	t.Cleanup(func() { gw.broadcaster.Close() })

	return &testGateway{
		gw:        gw,
		server:    server,
		store:     st,
		verifier:  verifier,
		completer: completer,
	}
}

func (tg *testGateway) createUser(t *testing.T, handle string) *store.User {
	t.Helper()
	user := &store.User{ID: uuid.New().String(), Handle: handle, Role: store.RoleStudent}
	require.NoError(t, tg.store.CreateUser(context.Background(), user))
	return user
}

func (tg *testGateway) createRoom(t *testing.T, name string, members ...*store.User) *store.Room {
	t.Helper()
	room := &store.Room{ID: uuid.New().String(), Name: name}
	require.NoError(t, tg.store.CreateRoom(context.Background(), room))
	for _, m := range members {
		require.NoError(t, tg.store.AddParticipant(context.Background(), room.ID, m.ID))
	}
	return room
}

func (tg *testGateway) tokenFor(t *testing.T, user *store.User) string {
	t.Helper()
	token, err := tg.verifier.Generate(user.ID, time.Hour)
	require.NoError(t, err)
	return token
}

func TestGateway_Health(t *testing.T) {
	tg := newTestGateway(t)

	resp, err := http.Get(tg.server.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(tg.server.URL + "/health/ready")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}
