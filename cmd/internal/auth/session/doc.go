// Package session issues and rotates the credentials handed out after a
// successful registration or challenge verification.
//
// Access tokens are short-lived, stateless and signed with Ed25519, either as
// PASETO v4.public (default) or as EdDSA JWTs. Refresh tokens are opaque random
// strings stored hashed (HMAC-SHA256 when a key is configured, SHA-256 otherwise).
// Each refresh token is usable exactly once: consuming it and inserting its
// successor is a single atomic step, and a consumed token never works again.
package session
