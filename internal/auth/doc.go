// Package auth resolves the externally supplied identity for requests
// and connection upgrades.
//
// The core deliberately embeds no credential scheme: handlers depend on
// the Authenticator interface, invoked once at connection-upgrade or
// request time. JWTAuthenticator is the default implementation (HS256
// bearer tokens, with a "token" query parameter fallback for browser
// WebSocket clients that cannot set headers).
//
// Identity flows through context via WithIdentity/FromContext, mirroring
// the middleware-to-handler pattern used across the gateway.
package auth
