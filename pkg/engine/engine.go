package engine

import (
	"fmt"
	"slices"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/ohler55/ojg/jp"

	"github.com/matzehuels/blockflow/pkg/errors"
	"github.com/matzehuels/blockflow/pkg/flow"
	flowio "github.com/matzehuels/blockflow/pkg/io"
	"github.com/matzehuels/blockflow/pkg/layout"
	"github.com/matzehuels/blockflow/pkg/model"
	"github.com/matzehuels/blockflow/pkg/registry"
	"github.com/matzehuels/blockflow/pkg/spawner"
)

// =============================================================================
// Configuration
// =============================================================================

// Config collects the settings of every engine component.
type Config struct {
	Layout  layout.Config
	Measure layout.DeferredConfig
	Spawner spawner.Config

	// StrictInvariants verifies the store after every transaction.
	StrictInvariants bool
	// MaxCycleSearch bounds the connection validator's cycle search.
	MaxCycleSearch int
}

// DefaultConfig returns the default engine settings.
func DefaultConfig() Config {
	return Config{
		Layout:           layout.DefaultConfig(),
		Measure:          layout.DefaultDeferredConfig(),
		Spawner:          spawner.DefaultConfig(),
		StrictInvariants: true,
		MaxCycleSearch:   flow.DefaultMaxCycleSearch,
	}
}

// Option customizes an Engine.
type Option func(*Engine)

// WithLogger sets the logger. The default is log.Default().
func WithLogger(l *log.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithScheduler replaces the timer source of deferred layout.
func WithScheduler(s layout.Scheduler) Option {
	return func(e *Engine) { e.sched = s }
}

// =============================================================================
// Engine
// =============================================================================

// Engine is the command and query facade over one flow. Every command,
// query and deferred layout callback runs under one mutex, so an Engine is
// safe for concurrent use.
//
// Listeners registered with [Engine.Subscribe] run while that mutex is held
// and must not call back into the engine.
type Engine struct {
	mu       sync.Mutex
	store    *flow.Store
	reg      *registry.Registry
	adjuster *layout.Adjuster
	deferred *layout.Deferred
	spawner  *spawner.Spawner
	sched    layout.Scheduler
	log      *log.Logger
}

// New creates an engine with an empty flow.
func New(reg *registry.Registry, cfg Config, opts ...Option) *Engine {
	e := &Engine{reg: reg, log: log.Default()}
	for _, opt := range opts {
		opt(e)
	}
	e.store = flow.New(reg,
		flow.WithStrictInvariants(cfg.StrictInvariants),
		flow.WithMaxCycleSearch(cfg.MaxCycleSearch),
	)
	e.adjuster = layout.New(cfg.Layout, e.log)
	e.deferred = layout.NewDeferred(cfg.Measure, e.sched, e.measured, e.log)
	e.spawner = spawner.New(e.store, cfg.Spawner, spawner.SettlerFunc(e.settle), e.log)
	return e
}

// Close stops deferred layout.
func (e *Engine) Close() {
	e.deferred.Stop()
}

// =============================================================================
// Nodes
// =============================================================================

// AddNode inserts node. A node with a known size is moved clear of its
// neighbors immediately; otherwise layout waits for its first measurement.
func (e *Engine) AddNode(node model.Node) (model.Node, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.addNode(node)
}

// CreateNodeOfKind creates a node of kind with its default payload at pos.
func (e *Engine) CreateNodeOfKind(kind string, pos model.Position) (model.Node, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	node, err := e.reg.CreateDefault(kind)
	if err != nil {
		return model.Node{}, err
	}
	node.Position = pos
	return e.addNode(node)
}

func (e *Engine) addNode(node model.Node) (model.Node, error) {
	if err := e.store.AddNode(node); err != nil {
		return model.Node{}, err
	}
	e.log.Debug("node added", "node", node.ID, "kind", node.Kind)
	e.settle(node.ID)
	created, _ := e.store.Node(node.ID)
	return created, nil
}

// settle lays out a newly created node now if it is measured, or once it
// is. Must be called with e.mu held.
func (e *Engine) settle(id string) {
	n, ok := e.store.Node(id)
	if !ok {
		return
	}
	if !n.Measured() {
		e.deferred.Schedule(id)
		return
	}
	e.adjust(id, layout.SubjectYields)
}

// measured is the deferred layout attempt.
func (e *Engine) measured(id string, attempt int) layout.Outcome {
	e.mu.Lock()
	defer e.mu.Unlock()
	n, ok := e.store.Node(id)
	if !ok {
		return layout.Abandon
	}
	if !n.Measured() {
		return layout.Retry
	}
	e.adjust(id, layout.SubjectYields)
	return layout.Done
}

func (e *Engine) adjust(id string, p layout.Priority) {
	if _, err := e.adjuster.Adjust(e.store, id, p); err != nil {
		e.log.Warn("layout failed", "node", id, "priority", p, "err", err)
	}
}

// MoveNode sets the position of node id, as when a drag is released, and
// pushes overlapping neighbors away.
func (e *Engine) MoveNode(id string, pos model.Position) (model.Node, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.store.UpdateNodeGeometry(id, &pos, nil); err != nil {
		return model.Node{}, err
	}
	if n, _ := e.store.Node(id); n.Measured() {
		e.adjust(id, layout.NeighborsYield)
	}
	n, _ := e.store.Node(id)
	return n, nil
}

// ResizeNode records a measured size for node id. The first measurement
// moves the node itself clear of its neighbors; later resizes push the
// neighbors instead.
func (e *Engine) ResizeNode(id string, size model.Size) (model.Node, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	before, ok := e.store.Node(id)
	if !ok {
		return model.Node{}, errors.New(errors.ErrCodeNotFound, "node %s not found", id)
	}
	if err := e.store.UpdateNodeGeometry(id, nil, &size); err != nil {
		return model.Node{}, err
	}
	e.deferred.Cancel(id)
	if n, _ := e.store.Node(id); n.Measured() {
		if before.Measured() {
			e.adjust(id, layout.NeighborsYield)
		} else {
			e.adjust(id, layout.SubjectYields)
		}
	}
	n, _ := e.store.Node(id)
	return n, nil
}

// DeleteNodes removes nodes and every edge touching them. If the spawner's
// drag started at a deleted node, the spawner is reset.
func (e *Engine) DeleteNodes(ids ...string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.store.RemoveNodes(ids...); err != nil {
		return err
	}
	for _, id := range ids {
		e.deferred.Cancel(id)
	}
	if origin := e.spawner.Origin(); origin.NodeID != "" && slices.Contains(ids, origin.NodeID) {
		e.spawner.Reset()
	}
	e.log.Debug("nodes deleted", "nodes", ids)
	return nil
}

// UpdatePayload replaces the payload of node id with mutator's result. The
// mutator receives a copy. A result that does not fit the kind's payload
// shape is rejected with INVALID_PAYLOAD and nothing changes.
func (e *Engine) UpdatePayload(id string, mutator func(model.Payload) model.Payload) (model.Node, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	n, ok := e.store.Node(id)
	if !ok {
		return model.Node{}, errors.New(errors.ErrCodeNotFound, "node %s not found", id)
	}
	next := mutator(n.Payload.Clone())
	return e.setPayload(n, next)
}

// SetPayloadField sets the payload field addressed by the JSONPath path,
// e.g. "$.message" or "message", to value.
func (e *Engine) SetPayloadField(id, path string, value any) (model.Node, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	n, ok := e.store.Node(id)
	if !ok {
		return model.Node{}, errors.New(errors.ErrCodeNotFound, "node %s not found", id)
	}
	x, err := jp.ParseString(path)
	if err != nil {
		return model.Node{}, errors.Wrap(errors.ErrCodeInvalidInput, err, "payload path %q", path)
	}
	next := n.Payload.Clone()
	if err := x.Set(map[string]any(next), value); err != nil {
		return model.Node{}, errors.Wrap(errors.ErrCodeInvalidPayload, err, "set %s", path)
	}
	return e.setPayload(n, next)
}

func (e *Engine) setPayload(n model.Node, next model.Payload) (model.Node, error) {
	if err := e.reg.CheckPayload(n.Kind, next); err != nil {
		return model.Node{}, err
	}
	if err := e.store.UpdateNodePayload(n.ID, func(model.Payload) model.Payload { return next }); err != nil {
		return model.Node{}, err
	}
	updated, _ := e.store.Node(n.ID)
	return updated, nil
}

// =============================================================================
// Edges
// =============================================================================

// Connect adds an edge from srcHandle of src to tgtHandle of tgt.
func (e *Engine) Connect(src, srcHandle, tgt, tgtHandle string) (model.Edge, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	edge, err := e.store.AddEdge(newEdge(src, srcHandle, tgt, tgtHandle))
	if err != nil {
		return model.Edge{}, err
	}
	e.log.Debug("connected", "edge", edge.ID, "source", src, "target", tgt)
	return edge, nil
}

// CanConnect reports why Connect with the same arguments would fail, or
// nil if it would succeed. It never changes the flow.
func (e *Engine) CanConnect(src, srcHandle, tgt, tgtHandle string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.Validate(newEdge(src, srcHandle, tgt, tgtHandle))
}

func newEdge(src, srcHandle, tgt, tgtHandle string) model.Edge {
	return model.Edge{
		Source: src, SourceHandle: srcHandle,
		Target: tgt, TargetHandle: tgtHandle,
		Variant: model.DefaultEdgeVariant,
	}
}

// Disconnect removes edges by id.
func (e *Engine) Disconnect(ids ...string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.RemoveEdges(ids...)
}

// =============================================================================
// Interaction state
// =============================================================================

// OpenPropertiesOf opens the property panel for node id, replacing any
// panel that was open.
func (e *Engine) OpenPropertiesOf(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.OpenProperties(id)
}

// CloseProperties closes the property panel.
func (e *Engine) CloseProperties() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.CloseProperties()
}

// PanelOf returns the editing surface registered for the node whose panel
// is open, or "" if none is open.
func (e *Engine) PanelOf() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	id := e.store.UI().Panel
	if id == "" {
		return ""
	}
	kind, _ := e.store.KindOf(id)
	entry, err := e.reg.Lookup(kind)
	if err != nil {
		return ""
	}
	return entry.Panel
}

// =============================================================================
// Queries
// =============================================================================

// Registry returns the node type registry.
func (e *Engine) Registry() *registry.Registry { return e.reg }

// Node returns a copy of node id.
func (e *Engine) Node(id string) (model.Node, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.Node(id)
}

// Nodes returns copies of all nodes in z-order.
func (e *Engine) Nodes() []model.Node {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.Nodes()
}

// Edges returns copies of all edges in insertion order.
func (e *Engine) Edges() []model.Edge {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.Edges()
}

// EdgesOf returns the edges touching node id in either direction.
func (e *Engine) EdgesOf(id string) []model.Edge {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.EdgesOf(id)
}

// UI returns the interaction state.
func (e *Engine) UI() model.UI {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.UI()
}

// PendingLayout returns the nodes waiting for their first measurement.
func (e *Engine) PendingLayout() []string {
	return e.deferred.Pending()
}

// Verify checks the structural invariants of the flow.
func (e *Engine) Verify() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.Verify()
}

// Subscribe registers l for committed changes.
func (e *Engine) Subscribe(l flow.Listener) (unsubscribe func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	unsub := e.store.Subscribe(l)
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		unsub()
	}
}

// =============================================================================
// Persistence
// =============================================================================

// Export captures the flow as a document.
func (e *Engine) Export() flowio.Document {
	e.mu.Lock()
	defer e.mu.Unlock()
	return flowio.Snapshot(e.store)
}

// Import replaces the flow with doc. On failure the flow is unchanged and
// the error is CORRUPT_GRAPH. Pending layout and any spawner workflow are
// abandoned on success.
func (e *Engine) Import(doc flowio.Document) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := doc.Apply(e.store); err != nil {
		return err
	}
	e.deferred.Stop()
	e.spawner.Reset()
	e.log.Info("flow imported", "nodes", len(doc.Nodes), "edges", len(doc.Edges))
	return nil
}

// String summarizes the flow for logs.
func (e *Engine) String() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return fmt.Sprintf("flow(%d nodes, %d edges)", e.store.NodeCount(), e.store.EdgeCount())
}
