// ABOUTME: Pluggable identity resolution for connections and requests
// ABOUTME: The gateway core never embeds a credential scheme; it asks an Authenticator once

package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/campuschat/gateway/internal/store"
)

// ErrAuthenticationMissing is returned when a request carries no usable
// identity. Connections failing this are closed before any data exchange.
var ErrAuthenticationMissing = errors.New("authentication missing")

// UserStore is what the authenticator needs from storage.
type UserStore interface {
	GetUser(ctx context.Context, id string) (*store.User, error)
}

// Authenticator resolves the externally supplied identity for a request
// or connection upgrade. Invoked exactly once per connection, before any
// room authorization or data exchange.
type Authenticator interface {
	Authenticate(r *http.Request) (*store.User, error)
}

// JWTAuthenticator resolves identity from an HS256 bearer token. Browser
// WebSocket clients cannot set headers on the upgrade request, so a
// "token" query parameter is accepted as a fallback.
type JWTAuthenticator struct {
	verifier TokenVerifier
	users    UserStore
}

// NewJWTAuthenticator creates an authenticator backed by the given
// verifier and user lookup.
func NewJWTAuthenticator(verifier TokenVerifier, users UserStore) *JWTAuthenticator {
	return &JWTAuthenticator{verifier: verifier, users: users}
}

// Authenticate extracts and verifies the request's token and loads the
// user it names. Returns ErrAuthenticationMissing when no token is
// present or it does not resolve to a known user.
func (a *JWTAuthenticator) Authenticate(r *http.Request) (*store.User, error) {
	token := extractToken(r)
	if token == "" {
		return nil, ErrAuthenticationMissing
	}

	userID, err := a.verifier.Verify(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuthenticationMissing, err)
	}

	user, err := a.users.GetUser(r.Context(), userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrAuthenticationMissing
		}
		return nil, fmt.Errorf("loading user: %w", err)
	}
	return user, nil
}

// extractToken pulls a bearer token from the Authorization header or the
// "token" query parameter.
func extractToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		if token := strings.TrimPrefix(header, "Bearer "); token != "" {
			return token
		}
	}
	return r.URL.Query().Get("token")
}

// Middleware wraps an HTTP handler, rejecting unauthenticated requests
// with 401 and attaching the identity to the request context otherwise.
func Middleware(authenticator Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, err := authenticator.Authenticate(r)
			if err != nil {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"authentication required"}`))
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), user)))
		})
	}
}
