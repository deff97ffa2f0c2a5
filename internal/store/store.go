// Package store provides the credential store adapter: a key/value store
// with per-record retention TTLs. The gateway keeps exactly one logical
// record in it, but the contract is generic.
package store

import (
	"context"
	"time"
)

// Store is an async key/value store with TTL-bounded retention. A record
// whose TTL has elapsed behaves as absent.
type Store interface {
	// Get returns the value for key, or ok=false if absent or expired.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)

	// Put stores value under key, replacing any previous record. ttl bounds
	// retention; ttl <= 0 means no bound.
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Close releases backing resources.
	Close() error
}
