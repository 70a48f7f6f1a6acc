package persistence

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("key not found")

// KV is the durability surface a cart store reads from and writes to.
// Implementations must return ErrNotFound when the key was never written.
type KV interface {
	Read(ctx context.Context, key string) ([]byte, error)
	Write(ctx context.Context, key string, value []byte) error
}

// Cache is a KV that can also drop keys; used in front of a durable KV.
type Cache interface {
	KV
	Delete(ctx context.Context, key string) error
}
