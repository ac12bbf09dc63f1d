package storage

import (
	"context"
	"time"

	"github.com/matzehuels/blockflow/pkg/observability"
)

// NullBackend is a no-op backend that never stores anything.
type NullBackend struct{}

// NewNullBackend creates a null backend.
func NewNullBackend() Backend {
	return &NullBackend{}
}

// Get always reports a miss.
func (b *NullBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	observability.Storage().OnStorageMiss(ctx, BackendNull)
	return nil, false, nil
}

// Set does nothing.
func (b *NullBackend) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	return nil
}

// Delete does nothing.
func (b *NullBackend) Delete(ctx context.Context, key string) error {
	return nil
}

// List always returns no keys.
func (b *NullBackend) List(ctx context.Context, prefix string) ([]string, error) {
	return nil, nil
}

// Close does nothing.
func (b *NullBackend) Close() error {
	return nil
}

var _ Backend = (*NullBackend)(nil)
