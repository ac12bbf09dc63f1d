// Package observability provides hooks for metrics, tracing, and logging.
//
// This package enables optional instrumentation without adding hard dependencies
// on specific observability backends. Consumers can register hooks at startup
// to receive events about graph commits, layout passes, spawner transitions
// and storage operations.
//
// # Architecture
//
// The package uses a simple hooks pattern:
//   - Define hook interfaces for different event categories
//   - Provide no-op default implementations
//   - Allow registration of custom implementations at startup
//
// This approach:
//   - Avoids import cycles (hooks are registered by main, not by libraries)
//   - Keeps the engine packages free of observability frameworks
//   - Allows different backends (Prometheus, OpenTelemetry, plain logs)
//
// # Usage
//
// Register hooks at application startup:
//
//	func main() {
//	    observability.SetGraphHooks(&myGraphHooks{})
//	    observability.SetStorageHooks(&myStorageHooks{})
//	    // ... run application
//	}
//
// Libraries call hooks to emit events:
//
//	start := time.Now()
//	// ... apply transaction ...
//	observability.Graph().OnCommit(kinds, time.Since(start))
package observability

import (
	"context"
	"sync"
	"time"
)

// =============================================================================
// Graph Hooks
// =============================================================================

// GraphHooks receives events from the graph store.
type GraphHooks interface {
	// OnCommit records a committed transaction and the change kinds it emitted.
	OnCommit(kinds []string, duration time.Duration)

	// OnRollback records a transaction that was rolled back.
	OnRollback(err error)

	// OnConnectionRejected records an edge refused by the connection validator.
	OnConnectionRejected(reason string)
}

// =============================================================================
// Layout Hooks
// =============================================================================

// LayoutHooks receives events from the layout adjuster.
type LayoutHooks interface {
	// OnAdjust records one collision-avoidance pass.
	OnAdjust(priority string, moved int, duration time.Duration, err error)

	// OnMeasureRetry records a deferred layout attempt that found the node
	// still unmeasured.
	OnMeasureRetry(nodeID string, attempt int)

	// OnMeasureAbandoned records a node whose size never arrived.
	OnMeasureAbandoned(nodeID string, attempts int)
}

// =============================================================================
// Spawner Hooks
// =============================================================================

// SpawnerHooks receives edge-drop spawner state transitions.
type SpawnerHooks interface {
	// OnTransition records a move between spawner states.
	OnTransition(from, to string)
}

// =============================================================================
// Storage Hooks
// =============================================================================

// StorageHooks receives events from flow document storage.
type StorageHooks interface {
	// OnStorageHit records a successful read.
	OnStorageHit(ctx context.Context, backend string)

	// OnStorageMiss records a read of an absent key.
	OnStorageMiss(ctx context.Context, backend string)

	// OnStorageSet records a write.
	OnStorageSet(ctx context.Context, backend string, size int)
}

// =============================================================================
// No-op Implementations
// =============================================================================

// NoopGraphHooks is a no-op implementation of GraphHooks.
type NoopGraphHooks struct{}

func (NoopGraphHooks) OnCommit([]string, time.Duration) {}
func (NoopGraphHooks) OnRollback(error)                 {}
func (NoopGraphHooks) OnConnectionRejected(string)      {}

// NoopLayoutHooks is a no-op implementation of LayoutHooks.
type NoopLayoutHooks struct{}

func (NoopLayoutHooks) OnAdjust(string, int, time.Duration, error) {}
func (NoopLayoutHooks) OnMeasureRetry(string, int)                 {}
func (NoopLayoutHooks) OnMeasureAbandoned(string, int)             {}

// NoopSpawnerHooks is a no-op implementation of SpawnerHooks.
type NoopSpawnerHooks struct{}

func (NoopSpawnerHooks) OnTransition(string, string) {}

// NoopStorageHooks is a no-op implementation of StorageHooks.
type NoopStorageHooks struct{}

func (NoopStorageHooks) OnStorageHit(context.Context, string)      {}
func (NoopStorageHooks) OnStorageMiss(context.Context, string)     {}
func (NoopStorageHooks) OnStorageSet(context.Context, string, int) {}

// =============================================================================
// Global Hook Registry
// =============================================================================

var (
	graphHooks   GraphHooks   = NoopGraphHooks{}
	layoutHooks  LayoutHooks  = NoopLayoutHooks{}
	spawnerHooks SpawnerHooks = NoopSpawnerHooks{}
	storageHooks StorageHooks = NoopStorageHooks{}
	hooksMu      sync.RWMutex
)

// SetGraphHooks registers custom graph hooks.
// This should be called once at application startup before any graph operations.
func SetGraphHooks(h GraphHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		graphHooks = h
	}
}

// SetLayoutHooks registers custom layout hooks.
func SetLayoutHooks(h LayoutHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		layoutHooks = h
	}
}

// SetSpawnerHooks registers custom spawner hooks.
func SetSpawnerHooks(h SpawnerHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		spawnerHooks = h
	}
}

// SetStorageHooks registers custom storage hooks.
// This should be called once at application startup before any storage operations.
func SetStorageHooks(h StorageHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		storageHooks = h
	}
}

// Graph returns the registered graph hooks.
func Graph() GraphHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return graphHooks
}

// Layout returns the registered layout hooks.
func Layout() LayoutHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return layoutHooks
}

// Spawner returns the registered spawner hooks.
func Spawner() SpawnerHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return spawnerHooks
}

// Storage returns the registered storage hooks.
func Storage() StorageHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return storageHooks
}

// Reset restores all hooks to their no-op defaults.
// This is primarily useful for testing.
func Reset() {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	graphHooks = NoopGraphHooks{}
	layoutHooks = NoopLayoutHooks{}
	spawnerHooks = NoopSpawnerHooks{}
	storageHooks = NoopStorageHooks{}
}
