// Package cache holds the ephemeral key-value store used for recent room
// history and presence snapshots. Nothing in it is authoritative: callers
// treat every write as best-effort.
package cache

import (
	"context"
	"errors"
	"time"
)

// Store is the ephemeral store contract. Implementations must be safe for
// concurrent use.
type Store interface {
	// Append pushes value onto the list at key and trims the list to the
	// maxEntries most recent values.
	Append(ctx context.Context, key string, value []byte, maxEntries int) error

	// List returns up to limit of the most recent values at key, oldest first.
	// A limit of zero or less returns the whole list.
	List(ctx context.Context, key string, limit int) ([][]byte, error)

	// Set stores value at key, expiring after ttl. A ttl of zero keeps the key
	// until it is overwritten or evicted.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Get returns ErrMiss when key does not exist or has expired.
	Get(ctx context.Context, key string) ([]byte, error)

	Ping(ctx context.Context) error
	Close() error
}

// ErrMiss signals that a key is absent.
var ErrMiss = errors.New("cache: miss")

func RoomHistoryKey(roomID string) string {
	return "room:" + roomID + ":messages"
}

func PresenceKey(userID string) string {
	return "presence:" + userID
}
