package kv

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a key does not exist.
	ErrNotFound = errors.New("key not found")
	// ErrConflict is returned when a watched key was modified before the transaction committed.
	ErrConflict = errors.New("watched key changed before commit")
)

// Store defines the persistence operations the features rely on.
// It is a port that can be implemented by different key-value engines.
type Store interface {
	// Get retrieves a value by key. Returns ErrNotFound if the key is missing.
	Get(ctx context.Context, key string) ([]byte, error)

	// MGet retrieves several values at once. Missing keys yield nil entries.
	MGet(ctx context.Context, keys ...string) ([][]byte, error)

	// Set stores a value with the specified TTL. TTL of 0 means no expiration.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a value by key.
	Delete(ctx context.Context, key string) error

	// Members lists the members of a set.
	Members(ctx context.Context, key string) ([]string, error)

	// AddMember adds a member to a set.
	AddMember(ctx context.Context, key, member string) error

	// RemoveMember removes a member from a set.
	RemoveMember(ctx context.Context, key, member string) error

	// Ranked returns every member of a sorted set ordered by score.
	Ranked(ctx context.Context, key string, descending bool) ([]string, error)

	// Append adds an entry to a stream and returns its id.
	Append(ctx context.Context, stream string, values map[string]any) (string, error)

	// Update runs fn inside an optimistic transaction guarded by the watched keys.
	// Writes queued on the Txn are applied atomically after fn returns nil.
	// If any watched key changes in between, nothing is applied and ErrConflict is returned.
	Update(ctx context.Context, fn func(tx Txn) error, watch ...string) error

	// Ping checks if the store is reachable.
	Ping(ctx context.Context) error

	// Close closes the store connection.
	Close() error
}

// Txn is the view of the store available inside Update.
// Reads execute immediately; writes are queued and committed together.
type Txn interface {
	Get(key string) ([]byte, error)
	IsMember(key, member string) (bool, error)

	Set(key string, value []byte)
	Delete(key string)
	AddMember(key, member string)
	RemoveMember(key, member string)
	AddRanked(key string, score float64, member string)
}
