package flow

import (
	"fmt"
	"slices"

	"github.com/google/uuid"

	"github.com/matzehuels/blockflow/pkg/errors"
	"github.com/matzehuels/blockflow/pkg/model"
	"github.com/matzehuels/blockflow/pkg/observability"
)

// Tx is an open transaction. Mutations are applied to the store as they
// are made and recorded in an undo journal; reads through the store inside
// the transaction see them. A Tx is only valid inside the Batch callback
// that received it.
type Tx struct {
	s       *Store
	undo    []func()
	changes []Change
	quiet   bool
}

// Store returns the store the transaction mutates, for reads.
func (tx *Tx) Store() *Store { return tx.s }

func (tx *Tx) record(fn func()) { tx.undo = append(tx.undo, fn) }

func (tx *Tx) emit(c Change) {
	if tx.quiet {
		return
	}
	tx.changes = appendChange(tx.changes, c)
}

func (tx *Tx) rollback() {
	for i := len(tx.undo) - 1; i >= 0; i-- {
		tx.undo[i]()
	}
	tx.undo = nil
	tx.changes = nil
}

// AddNode inserts node. A nil payload is replaced with the kind's defaults.
func (tx *Tx) AddNode(node model.Node) error {
	s := tx.s
	if err := errors.ValidateID("node", node.ID); err != nil {
		return err
	}
	if _, dup := s.nodes[node.ID]; dup {
		return errors.New(errors.ErrCodeDuplicateID, "node %s already exists", node.ID)
	}
	entry, err := s.reg.Lookup(node.Kind)
	if err != nil {
		return err
	}
	n := node.Clone()
	if node.Payload == nil {
		n.Payload = entry.Defaults.Clone()
	}
	if n.Size != nil && (n.Size.Width < 0 || n.Size.Height < 0) {
		return errors.New(errors.ErrCodeInvalidInput, "node %s has a negative size", node.ID)
	}
	if err := s.reg.CheckPayload(n.Kind, n.Payload); err != nil {
		return err
	}

	tx.insertNode(&nodeRec{node: n, seq: s.nextSeq()})
	tx.emit(Change{Kind: NodesAdded, NodeIDs: []string{n.ID}})
	return nil
}

// UpdateNodeGeometry sets the position and/or size of node id. Only fields
// that actually change produce a Change.
func (tx *Tx) UpdateNodeGeometry(id string, pos *model.Position, size *model.Size) error {
	r, ok := tx.s.nodes[id]
	if !ok {
		return errors.New(errors.ErrCodeNotFound, "node %s not found", id)
	}
	if size != nil && (size.Width < 0 || size.Height < 0) {
		return errors.New(errors.ErrCodeInvalidInput, "node %s: negative size %vx%v", id, size.Width, size.Height)
	}

	if pos != nil && *pos != r.node.Position {
		prev := r.node.Position
		r.node.Position = *pos
		tx.record(func() { r.node.Position = prev })
		tx.emit(Change{Kind: NodesMoved, NodeIDs: []string{id}})
	}
	if size != nil && (r.node.Size == nil || *size != *r.node.Size) {
		prev := r.node.Size
		sz := *size
		r.node.Size = &sz
		tx.record(func() { r.node.Size = prev })
		tx.emit(Change{Kind: NodesResized, NodeIDs: []string{id}})
	}
	return nil
}

// UpdateNodePayload replaces the payload of node id with mutator's result.
// It panics when the result violates the kind's payload shape; the
// enclosing Batch rolls back before the panic propagates.
func (tx *Tx) UpdateNodePayload(id string, mutator func(model.Payload) model.Payload) error {
	r, ok := tx.s.nodes[id]
	if !ok {
		return errors.New(errors.ErrCodeNotFound, "node %s not found", id)
	}
	next := mutator(r.node.Payload.Clone())
	if next == nil {
		next = model.Payload{}
	}
	if err := tx.s.reg.CheckPayload(r.node.Kind, next); err != nil {
		panic(fmt.Errorf("payload update of node %s: %w", id, err))
	}
	prev := r.node.Payload
	r.node.Payload = next.Clone()
	tx.record(func() { r.node.Payload = prev })
	tx.emit(Change{Kind: NodesPayload, NodeIDs: []string{id}})
	return nil
}

// AddEdge validates and inserts edge. An empty id is generated and an empty
// variant defaults to [model.DefaultEdgeVariant].
func (tx *Tx) AddEdge(edge model.Edge) (model.Edge, error) {
	s := tx.s
	if edge.ID == "" {
		edge.ID = uuid.NewString()
	} else if err := errors.ValidateID("edge", edge.ID); err != nil {
		return model.Edge{}, err
	}
	if edge.Variant == "" {
		edge.Variant = model.DefaultEdgeVariant
	}
	if _, dup := s.edges[edge.ID]; dup {
		return model.Edge{}, errors.New(errors.ErrCodeDuplicateID, "edge %s already exists", edge.ID)
	}
	if err := Validate(edge, s); err != nil {
		observability.Graph().OnConnectionRejected(string(errors.ReasonOf(err)))
		return model.Edge{}, err
	}
	for eid := range s.out[edge.Source] {
		e := s.edges[eid].edge
		if e.Target == edge.Target && e.SourceHandle == edge.SourceHandle && e.TargetHandle == edge.TargetHandle {
			return model.Edge{}, errors.New(errors.ErrCodeDuplicateID, "connection already exists as edge %s", eid)
		}
	}

	tx.insertEdge(&edgeRec{edge: edge, seq: s.nextSeq()})
	tx.emit(Change{Kind: EdgesAdded, EdgeIDs: []string{edge.ID}})
	return edge, nil
}

// RemoveEdges deletes the given edges. Unknown ids fail with NOT_FOUND
// before anything is removed.
func (tx *Tx) RemoveEdges(ids ...string) error {
	for _, id := range ids {
		if _, ok := tx.s.edges[id]; !ok {
			return errors.New(errors.ErrCodeNotFound, "edge %s not found", id)
		}
	}
	removed := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := tx.s.edges[id]; !ok {
			continue // listed twice
		}
		tx.deleteEdge(id)
		removed = append(removed, id)
	}
	if len(removed) > 0 {
		tx.emit(Change{Kind: EdgesRemoved, EdgeIDs: removed})
	}
	return nil
}

// RemoveNodes deletes the nodes and every edge touching them. Neighbor
// nodes are never removed. If the open property panel belongs to a deleted
// node it is closed. Removing no nodes is a no-op.
func (tx *Tx) RemoveNodes(ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	s := tx.s
	for _, id := range ids {
		if _, ok := s.nodes[id]; !ok {
			return errors.New(errors.ErrCodeNotFound, "node %s not found", id)
		}
	}

	doomed := make(map[string]struct{}, len(ids))
	nodeIDs := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, seen := doomed[id]; seen {
			continue
		}
		doomed[id] = struct{}{}
		nodeIDs = append(nodeIDs, id)
	}

	var edgeIDs []string
	for _, e := range s.Edges() {
		_, src := doomed[e.Source]
		_, dst := doomed[e.Target]
		if src || dst {
			edgeIDs = append(edgeIDs, e.ID)
		}
	}
	for _, eid := range edgeIDs {
		tx.deleteEdge(eid)
	}
	for _, id := range nodeIDs {
		tx.deleteNode(id)
	}

	if len(edgeIDs) > 0 {
		tx.emit(Change{Kind: EdgesRemoved, EdgeIDs: edgeIDs})
	}
	tx.emit(Change{Kind: NodesRemoved, NodeIDs: nodeIDs})

	if _, gone := doomed[s.ui.Panel]; gone && s.ui.Panel != "" {
		tx.CloseProperties()
	}
	return nil
}

// OpenProperties opens the property panel of node id, replacing any panel
// that is already open.
func (tx *Tx) OpenProperties(id string) error {
	if _, ok := tx.s.nodes[id]; !ok {
		return errors.New(errors.ErrCodeNotFound, "node %s not found", id)
	}
	tx.setPanel(id)
	return nil
}

// CloseProperties closes the property panel.
func (tx *Tx) CloseProperties() { tx.setPanel("") }

func (tx *Tx) setPanel(id string) {
	s := tx.s
	if s.ui.Panel == id {
		return
	}
	prev := s.ui.Panel
	s.ui.Panel = id
	tx.record(func() { s.ui.Panel = prev })
	var ids []string
	if id != "" {
		ids = []string{id}
	}
	tx.emit(Change{Kind: UIPanel, NodeIDs: ids})
}

// SetBlurred sets the canvas blur flag.
func (tx *Tx) SetBlurred(b bool) {
	s := tx.s
	if s.ui.Blurred == b {
		return
	}
	s.ui.Blurred = b
	tx.record(func() { s.ui.Blurred = !b })
	tx.emit(Change{Kind: UIBlur})
}

// clear removes everything, journaling each removal.
func (tx *Tx) clear() {
	s := tx.s
	for _, e := range s.Edges() {
		tx.deleteEdge(e.ID)
	}
	ids := make([]string, 0, len(s.nodes))
	for id := range s.nodes {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		tx.deleteNode(id)
	}
	tx.CloseProperties()
	tx.SetBlurred(false)
}

// =============================================================================
// Journaled primitives
// =============================================================================

func (s *Store) nextSeq() uint64 {
	s.seq++
	return s.seq
}

func (tx *Tx) insertNode(r *nodeRec) {
	s := tx.s
	id := r.node.ID
	s.nodes[id] = r
	tx.record(func() { delete(s.nodes, id) })
}

func (tx *Tx) deleteNode(id string) {
	s := tx.s
	r := s.nodes[id]
	delete(s.nodes, id)
	in, out := s.in[id], s.out[id]
	delete(s.in, id)
	delete(s.out, id)
	tx.record(func() {
		s.nodes[id] = r
		if in != nil {
			s.in[id] = in
		}
		if out != nil {
			s.out[id] = out
		}
	})
}

func (tx *Tx) insertEdge(r *edgeRec) {
	s := tx.s
	e := r.edge
	s.edges[e.ID] = r
	link(s.out, e.Source, e.ID)
	link(s.in, e.Target, e.ID)
	tx.record(func() {
		delete(s.edges, e.ID)
		unlink(s.out, e.Source, e.ID)
		unlink(s.in, e.Target, e.ID)
	})
}

func (tx *Tx) deleteEdge(id string) {
	s := tx.s
	r := s.edges[id]
	e := r.edge
	delete(s.edges, id)
	unlink(s.out, e.Source, id)
	unlink(s.in, e.Target, id)
	tx.record(func() {
		s.edges[id] = r
		link(s.out, e.Source, id)
		link(s.in, e.Target, id)
	})
}

func link(idx map[string]map[string]struct{}, node, edge string) {
	set, ok := idx[node]
	if !ok {
		set = make(map[string]struct{})
		idx[node] = set
	}
	set[edge] = struct{}{}
}

func unlink(idx map[string]map[string]struct{}, node, edge string) {
	set := idx[node]
	delete(set, edge)
	if len(set) == 0 {
		delete(idx, node)
	}
}
