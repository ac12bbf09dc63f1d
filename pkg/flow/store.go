package flow

import (
	"cmp"
	"slices"
	"time"

	"github.com/matzehuels/blockflow/pkg/errors"
	"github.com/matzehuels/blockflow/pkg/model"
	"github.com/matzehuels/blockflow/pkg/observability"
	"github.com/matzehuels/blockflow/pkg/registry"
)

// DefaultMaxCycleSearch bounds the number of nodes the cycle check visits.
const DefaultMaxCycleSearch = 10000

// Store holds the authoritative node and edge collections of one flow.
//
// Store is not safe for concurrent use; callers serialize access (the
// engine does so with a single mutex). All methods that return nodes or
// edges return copies.
type Store struct {
	reg *registry.Registry

	nodes map[string]*nodeRec
	edges map[string]*edgeRec
	in    map[string]map[string]struct{} // node id -> incoming edge ids
	out   map[string]map[string]struct{} // node id -> outgoing edge ids
	seq   uint64

	ui model.UI

	listeners  map[int]Listener
	nextListen int

	strict         bool
	maxCycleSearch int

	tx *Tx
}

type nodeRec struct {
	node model.Node
	seq  uint64
}

type edgeRec struct {
	edge model.Edge
	seq  uint64
}

// Option configures a Store.
type Option func(*Store)

// WithStrictInvariants enables or disables the structural check run before
// every commit. It is on by default.
func WithStrictInvariants(on bool) Option {
	return func(s *Store) { s.strict = on }
}

// WithMaxCycleSearch bounds the cycle check of acyclic kinds.
func WithMaxCycleSearch(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxCycleSearch = n
		}
	}
}

// New creates an empty store backed by reg.
func New(reg *registry.Registry, opts ...Option) *Store {
	s := &Store{
		reg:            reg,
		nodes:          make(map[string]*nodeRec),
		edges:          make(map[string]*edgeRec),
		in:             make(map[string]map[string]struct{}),
		out:            make(map[string]map[string]struct{}),
		listeners:      make(map[int]Listener),
		strict:         true,
		maxCycleSearch: DefaultMaxCycleSearch,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Registry returns the registry the store validates against.
func (s *Store) Registry() *registry.Registry { return s.reg }

// Subscribe registers l to receive committed changes and returns a function
// that removes it.
func (s *Store) Subscribe(l Listener) (unsubscribe func()) {
	id := s.nextListen
	s.nextListen++
	s.listeners[id] = l
	return func() { delete(s.listeners, id) }
}

// Batch runs fn inside one transaction. If fn returns an error or panics,
// every mutation it made is undone and no change is published. On success
// listeners are notified once with all changes.
func (s *Store) Batch(fn func(*Tx) error) error {
	if s.tx != nil {
		return errors.New(errors.ErrCodeInvalidState, "transaction already in progress")
	}
	start := time.Now()
	tx := &Tx{s: s}
	s.tx = tx

	committed := false
	defer func() {
		s.tx = nil
		if !committed {
			tx.rollback()
			if r := recover(); r != nil {
				observability.Graph().OnRollback(nil)
				panic(r)
			}
		}
	}()

	if err := fn(tx); err != nil {
		observability.Graph().OnRollback(err)
		return err
	}
	if s.strict {
		if err := s.Verify(); err != nil {
			panic(errors.Wrap(errors.ErrCodeInternal, err, "structural invariant violated"))
		}
	}
	committed = true
	s.tx = nil

	if len(tx.changes) == 0 {
		return nil
	}
	kinds := make([]string, len(tx.changes))
	for i, c := range tx.changes {
		kinds[i] = string(c.Kind)
	}
	observability.Graph().OnCommit(kinds, time.Since(start))
	s.publish(tx.changes)
	return nil
}

func (s *Store) publish(changes []Change) {
	ids := make([]int, 0, len(s.listeners))
	for id := range s.listeners {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		if l, ok := s.listeners[id]; ok {
			l(slices.Clone(changes))
		}
	}
}

// =============================================================================
// Commands
// =============================================================================

// AddNode inserts node. It fails with DUPLICATE_ID if the id is taken and
// UNKNOWN_KIND if the kind is not registered.
func (s *Store) AddNode(node model.Node) error {
	return s.Batch(func(tx *Tx) error { return tx.AddNode(node) })
}

// UpdateNodeGeometry sets the position and/or size of a node. Nil arguments
// leave the corresponding field unchanged.
func (s *Store) UpdateNodeGeometry(id string, pos *model.Position, size *model.Size) error {
	return s.Batch(func(tx *Tx) error { return tx.UpdateNodeGeometry(id, pos, size) })
}

// UpdateNodePayload replaces a node's payload with the result of mutator,
// which receives a deep copy. A result that violates the kind's payload
// shape is a programming error: the transaction is rolled back and the call
// panics.
func (s *Store) UpdateNodePayload(id string, mutator func(model.Payload) model.Payload) error {
	return s.Batch(func(tx *Tx) error { return tx.UpdateNodePayload(id, mutator) })
}

// AddEdge inserts edge after the connection validator accepts it. An empty
// id is replaced with a generated one. The stored edge is returned.
func (s *Store) AddEdge(edge model.Edge) (model.Edge, error) {
	var out model.Edge
	err := s.Batch(func(tx *Tx) error {
		var err error
		out, err = tx.AddEdge(edge)
		return err
	})
	return out, err
}

// RemoveNodes deletes the nodes and every edge incident to them.
func (s *Store) RemoveNodes(ids ...string) error {
	return s.Batch(func(tx *Tx) error { return tx.RemoveNodes(ids...) })
}

// RemoveEdges deletes edges only.
func (s *Store) RemoveEdges(ids ...string) error {
	return s.Batch(func(tx *Tx) error { return tx.RemoveEdges(ids...) })
}

// OpenProperties opens the property panel of node id.
func (s *Store) OpenProperties(id string) error {
	return s.Batch(func(tx *Tx) error { return tx.OpenProperties(id) })
}

// CloseProperties closes the property panel.
func (s *Store) CloseProperties() error {
	return s.Batch(func(tx *Tx) error { tx.CloseProperties(); return nil })
}

// SetBlurred sets the canvas blur flag.
func (s *Store) SetBlurred(b bool) error {
	return s.Batch(func(tx *Tx) error { tx.SetBlurred(b); return nil })
}

// Load replaces the contents of the store with nodes and edges in one
// transaction. Every node and edge is checked exactly as a live mutation
// would be; any failure leaves the store unchanged and is reported as
// CORRUPT_GRAPH.
func (s *Store) Load(nodes []model.Node, edges []model.Edge) error {
	err := s.Batch(func(tx *Tx) error {
		tx.quiet = true
		tx.clear()
		for _, n := range nodes {
			if err := tx.AddNode(n); err != nil {
				return errors.Wrap(errors.ErrCodeCorruptGraph, err, "node %s", n.ID)
			}
		}
		for _, e := range edges {
			if e.ID == "" {
				return errors.New(errors.ErrCodeCorruptGraph, "edge %s->%s has no id", e.Source, e.Target)
			}
			if _, err := tx.AddEdge(e); err != nil {
				return errors.Wrap(errors.ErrCodeCorruptGraph, err, "edge %s", e.ID)
			}
		}
		tx.quiet = false

		ids := make([]string, len(nodes))
		for i, n := range nodes {
			ids[i] = n.ID
		}
		eids := make([]string, len(edges))
		for i, e := range edges {
			eids[i] = e.ID
		}
		tx.emit(Change{Kind: GraphLoaded, NodeIDs: ids, EdgeIDs: eids})
		return nil
	})
	return err
}

// =============================================================================
// Queries
// =============================================================================

// Node returns a copy of node id.
func (s *Store) Node(id string) (model.Node, bool) {
	r, ok := s.nodes[id]
	if !ok {
		return model.Node{}, false
	}
	return r.node.Clone(), true
}

// KindOf returns the kind of node id.
func (s *Store) KindOf(id string) (string, bool) {
	r, ok := s.nodes[id]
	if !ok {
		return "", false
	}
	return r.node.Kind, true
}

// Edge returns a copy of edge id.
func (s *Store) Edge(id string) (model.Edge, bool) {
	r, ok := s.edges[id]
	if !ok {
		return model.Edge{}, false
	}
	return r.edge, true
}

// Nodes returns every node in insertion order, which is also z-order.
func (s *Store) Nodes() []model.Node {
	recs := make([]*nodeRec, 0, len(s.nodes))
	for _, r := range s.nodes {
		recs = append(recs, r)
	}
	slices.SortFunc(recs, func(a, b *nodeRec) int { return cmp.Compare(a.seq, b.seq) })
	out := make([]model.Node, len(recs))
	for i, r := range recs {
		out[i] = r.node.Clone()
	}
	return out
}

// Edges returns every edge in insertion order.
func (s *Store) Edges() []model.Edge {
	return s.sortedEdges(func(yield func(string) bool) {
		for id := range s.edges {
			if !yield(id) {
				return
			}
		}
	})
}

// EdgesOf returns the edges incident to node id in either direction, in
// insertion order.
func (s *Store) EdgesOf(id string) []model.Edge {
	return s.sortedEdges(func(yield func(string) bool) {
		for eid := range s.in[id] {
			if !yield(eid) {
				return
			}
		}
		for eid := range s.out[id] {
			if _, dup := s.in[id][eid]; dup {
				continue
			}
			if !yield(eid) {
				return
			}
		}
	})
}

// Incoming returns the edges ending at handleID of node id. An empty
// handleID matches every target handle.
func (s *Store) Incoming(id, handleID string) []model.Edge {
	return s.sortedEdges(func(yield func(string) bool) {
		for eid := range s.in[id] {
			if handleID != "" && s.edges[eid].edge.TargetHandle != handleID {
				continue
			}
			if !yield(eid) {
				return
			}
		}
	})
}

// Outgoing returns the edges starting at node id.
func (s *Store) Outgoing(id string) []model.Edge {
	return s.sortedEdges(func(yield func(string) bool) {
		for eid := range s.out[id] {
			if !yield(eid) {
				return
			}
		}
	})
}

func (s *Store) sortedEdges(ids func(yield func(string) bool)) []model.Edge {
	var recs []*edgeRec
	for id := range ids {
		recs = append(recs, s.edges[id])
	}
	slices.SortFunc(recs, func(a, b *edgeRec) int { return cmp.Compare(a.seq, b.seq) })
	out := make([]model.Edge, len(recs))
	for i, r := range recs {
		out[i] = r.edge
	}
	return out
}

// HandleLoad counts the edges attached to one handle of node id.
func (s *Store) HandleLoad(id, handleID string, typ model.HandleType) int {
	idx, field := s.in, func(e model.Edge) string { return e.TargetHandle }
	if typ == model.HandleSource {
		idx, field = s.out, func(e model.Edge) string { return e.SourceHandle }
	}
	n := 0
	for eid := range idx[id] {
		if field(s.edges[eid].edge) == handleID {
			n++
		}
	}
	return n
}

// Successors calls fn for each node reached by an outgoing edge of id.
func (s *Store) Successors(id string, fn func(string) bool) {
	for eid := range s.out[id] {
		if !fn(s.edges[eid].edge.Target) {
			return
		}
	}
}

// NodeCount returns the number of nodes.
func (s *Store) NodeCount() int { return len(s.nodes) }

// EdgeCount returns the number of edges.
func (s *Store) EdgeCount() int { return len(s.edges) }

// UI returns the current interaction state.
func (s *Store) UI() model.UI { return s.ui }

// MaxCycleSearch returns the bound applied to cycle checks.
func (s *Store) MaxCycleSearch() int { return s.maxCycleSearch }
