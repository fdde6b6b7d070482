// Package storage provides the key-value persistence port shared by the
// session, rate-limit, and auth-flow components. Values are plain scalars
// or small JSON documents, readable by every process that shares the store.
package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a key has no value in the store.
var ErrNotFound = errors.New("key not found")

// Store is the persistence port for session and rate-limit records.
// Implementations must be safe for concurrent use and must make writes
// visible to other processes sharing the same backing store.
type Store interface {
	// Get returns the value for key, or ErrNotFound.
	Get(ctx context.Context, key string) (string, error)
	// Put creates or overwrites the value for key.
	Put(ctx context.Context, key string, value string) error
	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
	// Keys returns all keys with the given prefix.
	Keys(ctx context.Context, prefix string) ([]string, error)
}
