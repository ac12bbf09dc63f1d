// Package storage persists flow documents in pluggable key/value backends.
//
// # Backends
//
// A [Backend] stores opaque bytes under string keys. Four implementations
// are provided:
//
//   - [FileBackend]: one file per key under a directory, for CLI usage
//   - [NullBackend]: stores nothing, for tests or when storage is disabled
//   - [RedisBackend]: a Redis server via go-redis
//   - [MongoBackend]: a MongoDB collection via the official driver
//
// # Flows
//
// [Flows] layers flow documents on top of a backend. Documents are stored as
// JSON under "flow:<name>" keys:
//
//	backend, _ := storage.NewFileBackend(dir)
//	flows := storage.NewFlows(backend, logger)
//	err := flows.Save(ctx, "onboarding", doc)
//	doc, err := flows.Load(ctx, "onboarding")
package storage

import (
	"context"
	"time"
)

// Backend is a key/value store for serialized documents.
//
// Get reports a missing or expired key as (nil, false, nil). A ttl of zero
// stores the value without expiry. List returns the keys with the given
// prefix in lexical order.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) ([]string, error)
	Close() error
}

// Backend names reported to the storage hooks.
const (
	BackendFile  = "file"
	BackendNull  = "null"
	BackendRedis = "redis"
	BackendMongo = "mongo"
)
