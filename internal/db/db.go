// Package db defines the storage contracts backed by Redis. Consumers
// depend on the narrow sub-interfaces, not the full facade.
package db

import (
	"context"
	"time"
)

// Store is the database facade combining all sub-interfaces.
type Store interface {
	Pinger
	KVStore
	StreamAppender
	Close()
	WaitForReady(ctx context.Context, timeout time.Duration) error
}

// Pinger checks database connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// KVStore provides simple key-value operations.
type KVStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// StreamAppender appends entries to an append-only stream.
type StreamAppender interface {
	XAdd(ctx context.Context, stream string, fields map[string]string) error
}
