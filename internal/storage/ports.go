// Package storage persists the client's local state in a key/value store.
package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a key has no value.
var ErrNotFound = errors.New("not found")

// Namespaces used by the client.
const (
	NamespaceState  = "state"
	NamespaceSecure = "secure"
)

// KeyValueStore persists opaque values by key.
type KeyValueStore interface {
	// Get returns the value for key or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	// Set stores value for key, replacing any previous value.
	Set(ctx context.Context, key string, value []byte) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}
