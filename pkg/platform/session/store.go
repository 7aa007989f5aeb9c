// Package session keeps short-lived per-user state between the requests of
// one launch: LTI 1.3 login state and replay markers.
package session

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Take when the key is absent or expired.
var ErrNotFound = errors.New("session: not found")

// Store is a TTL key/value store. Take is get-and-delete, so a value can be
// consumed at most once.
type Store interface {
	Put(ctx context.Context, key string, data []byte, ttl time.Duration) error
	// PutIfAbsent stores data only when key is free and reports whether it did.
	PutIfAbsent(ctx context.Context, key string, data []byte, ttl time.Duration) (bool, error)
	Take(ctx context.Context, key string) ([]byte, error)
}
