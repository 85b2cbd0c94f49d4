// ABOUTME: Identity context for tracking the authenticated user through handlers
// ABOUTME: Provides WithIdentity/FromContext for propagating identity via context

package auth

import (
	"context"

	"github.com/campuschat/gateway/internal/store"
)

// identityKey is the key type for storing the identity in context.Context.
type identityKey struct{}

// WithIdentity returns a new context with the authenticated user attached.
func WithIdentity(ctx context.Context, user *store.User) context.Context {
	return context.WithValue(ctx, identityKey{}, user)
}

// FromContext retrieves the authenticated user from the context,
// returning nil if not present.
func FromContext(ctx context.Context) *store.User {
	val := ctx.Value(identityKey{})
	if val == nil {
		return nil
	}
	user, ok := val.(*store.User)
	if !ok {
		return nil
	}
	return user
}

// MustFromContext retrieves the authenticated user, panicking if absent.
func MustFromContext(ctx context.Context) *store.User {
	user := FromContext(ctx)
	if user == nil {
		panic("auth: identity not found in context")
	}
	return user
}
