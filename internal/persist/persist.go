// Package persist defines the key-value persistence collaborator used for
// transcripts and settings, with file-based and PostgreSQL-backed
// implementations.
package persist

import (
	"context"
	"errors"
)

// ErrNotFound is returned by [KV.Get] when the key has no stored value.
var ErrNotFound = errors.New("key not found")

// KV is a minimal durable key-value store. Values are opaque byte blobs;
// callers serialize their own documents. Implementations must be safe for
// concurrent use.
type KV interface {
	// Get returns the value stored under key, or [ErrNotFound].
	Get(ctx context.Context, key string) ([]byte, error)
	// Put stores value under key, replacing any previous value.
	Put(ctx context.Context, key string, value []byte) error
	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
	// Close releases any resources held by the store.
	Close() error
}
