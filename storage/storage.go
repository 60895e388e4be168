// Package storage provides the durable key/value layer that holds client
// session state between runs. Values live under a namespace (the profile
// name) and a key such as "access_token" or "user".
package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a namespace or key does not exist.
var ErrNotFound = errors.New("record not found")

// Store is a namespaced key/value store. Implementations must be safe for
// concurrent use.
type Store interface {
	// Get returns the value stored under key, or ErrNotFound.
	Get(ctx context.Context, namespace, key string) ([]byte, error)
	// Put creates or replaces the value stored under key.
	Put(ctx context.Context, namespace, key string, value []byte) error
	// Delete removes key. Deleting a missing key returns ErrNotFound.
	Delete(ctx context.Context, namespace, key string) error
	// List returns the keys present in namespace in no particular order.
	List(ctx context.Context, namespace string) ([]string, error)
	// Close releases the underlying resources.
	Close() error
}
