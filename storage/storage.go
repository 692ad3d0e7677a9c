package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get and Delete when the key does not exist.
var ErrNotFound = errors.New("storage: object not found")

// ObjectInfo contains metadata about a stored object.
type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// Storage defines the operations the token store needs from a backend.
type Storage interface {
	// Put writes data under key. Readers never observe a partial write, and a
	// canceled context never leaves a partial object behind.
	Put(ctx context.Context, key string, data []byte) error

	// Get returns the object stored under key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Delete removes the object under key, or returns ErrNotFound.
	Delete(ctx context.Context, key string) error

	// Exists checks whether an object exists under key.
	Exists(ctx context.Context, key string) (bool, error)

	// List returns metadata for every object whose key starts with prefix,
	// sorted by key.
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)

	// Location describes where key lives, as a path or URL.
	Location(key string) string
}
