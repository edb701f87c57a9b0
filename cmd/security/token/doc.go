// Package token provides opaque-token generation and hashing primitives.
//
// It is the single source of truth for how refresh tokens, invite codes and
// other bearer secrets are hashed before they reach storage:
//   - HMAC-SHA256(token, key) when a key is configured.
//   - SHA-256(token) otherwise (development mode).
//
// Output is always a 64-char hex string suitable for unique indexes.
package token
