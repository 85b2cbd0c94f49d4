// ABOUTME: Tests for identity resolution and the HTTP auth middleware
// ABOUTME: Covers header and query-parameter tokens, unknown users, and context propagation

package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campuschat/gateway/internal/store"
)

// fakeUserStore serves a fixed set of users.
type fakeUserStore struct {
	users map[string]*store.User
}

func (f *fakeUserStore) GetUser(_ context.Context, id string) (*store.User, error) {
	if u, ok := f.users[id]; ok {
		return u, nil
	}
	return nil, store.ErrNotFound
}

func setupAuthenticator(t *testing.T) (*JWTAuthenticator, *JWTVerifier, *store.User) {
	t.Helper()
	verifier, err := NewJWTVerifier([]byte("test-secret"))
	require.NoError(t, err)

	alice := &store.User{ID: "user-alice", Handle: "alice", Role: store.RoleStudent}
	users := &fakeUserStore{users: map[string]*store.User{alice.ID: alice}}
	return NewJWTAuthenticator(verifier, users), verifier, alice
}

func TestAuthenticator_BearerHeader(t *testing.T) {
	a, verifier, alice := setupAuthenticator(t)

	token, err := verifier.Generate(alice.ID, time.Hour)
	require.NoError(t, err)

	r := httptest.NewRequest(http.MethodGet, "/api/chats", nil)
	r.Header.Set("Authorization", "Bearer "+token)

	user, err := a.Authenticate(r)
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Handle)
}

func TestAuthenticator_QueryParameterFallback(t *testing.T) {
	a, verifier, alice := setupAuthenticator(t)

	token, err := verifier.Generate(alice.ID, time.Hour)
	require.NoError(t, err)

	r := httptest.NewRequest(http.MethodGet, "/ws/chat/room-1/?token="+token, nil)

	user, err := a.Authenticate(r)
	require.NoError(t, err)
	assert.Equal(t, alice.ID, user.ID)
}

func TestAuthenticator_MissingToken(t *testing.T) {
	a, _, _ := setupAuthenticator(t)

	r := httptest.NewRequest(http.MethodGet, "/api/chats", nil)

	_, err := a.Authenticate(r)
	assert.ErrorIs(t, err, ErrAuthenticationMissing)
}

func TestAuthenticator_InvalidToken(t *testing.T) {
	a, _, _ := setupAuthenticator(t)

	r := httptest.NewRequest(http.MethodGet, "/api/chats", nil)
	r.Header.Set("Authorization", "Bearer garbage")

	_, err := a.Authenticate(r)
	assert.ErrorIs(t, err, ErrAuthenticationMissing)
}

func TestAuthenticator_UnknownUser(t *testing.T) {
	a, verifier, _ := setupAuthenticator(t)

	token, err := verifier.Generate("user-ghost", time.Hour)
	require.NoError(t, err)

	r := httptest.NewRequest(http.MethodGet, "/api/chats", nil)
	r.Header.Set("Authorization", "Bearer "+token)

	_, err = a.Authenticate(r)
	assert.ErrorIs(t, err, ErrAuthenticationMissing)
}

func TestMiddleware_AttachesIdentity(t *testing.T) {
	a, verifier, alice := setupAuthenticator(t)

	token, err := verifier.Generate(alice.ID, time.Hour)
	require.NoError(t, err)

	var seen *store.User
	handler := Middleware(a)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = FromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/api/chats", nil)
	r.Header.Set("Authorization", "Bearer "+token)
	handler.ServeHTTP(rec, r)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, seen)
	assert.Equal(t, "alice", seen.Handle)
}

func TestMiddleware_RejectsUnauthenticated(t *testing.T) {
	a, _, _ := setupAuthenticator(t)

	handler := Middleware(a)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/chats", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestFromContext_Absent(t *testing.T) {
	assert.Nil(t, FromContext(context.Background()))
}
