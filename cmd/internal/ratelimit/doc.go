// Package ratelimit implements keyed sliding-window admission control for the
// public auth endpoints.
//
// Each (client key, class) pair owns an independent bucket with its own lock, so
// contention is scoped to a single client and endpoint class. Every attempt is
// recorded, denied ones included, which keeps a flooding client blocked until
// it actually slows down.
package ratelimit
