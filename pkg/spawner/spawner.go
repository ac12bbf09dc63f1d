// Package spawner implements the edge-drop workflow: dragging a connection
// out of a handle and releasing it over empty canvas opens a menu of node
// kinds, and choosing one creates the node and the edge together.
//
// The workflow is a small state machine:
//
//	Idle -> Dragging -> MenuOpen -> Committed -> Idle
//	            |           |
//	            +-----------+----> Cancelled -> Idle
//
// Releasing the drag over a handle returns straight to Idle; the ordinary
// connect command handles that case.
package spawner

import (
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/blockflow/pkg/errors"
	"github.com/matzehuels/blockflow/pkg/flow"
	"github.com/matzehuels/blockflow/pkg/model"
	"github.com/matzehuels/blockflow/pkg/observability"
	"github.com/matzehuels/blockflow/pkg/registry"
)

// State is a spawner state.
type State int

const (
	Idle State = iota
	Dragging
	MenuOpen
	Committed
	Cancelled
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Dragging:
		return "dragging"
	case MenuOpen:
		return "menu-open"
	case Committed:
		return "committed"
	case Cancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// DefaultOffset is added to the drop point to place the new node.
var DefaultOffset = model.Position{X: 32, Y: -32}

// Config controls the spawner.
type Config struct {
	// Offset is added to the drop point to place the new node.
	Offset model.Position
}

// DefaultConfig returns the default spawner settings.
func DefaultConfig() Config { return Config{Offset: DefaultOffset} }

// Settler is told about committed nodes so their layout can be resolved
// once they are measured.
type Settler interface {
	Settle(nodeID string)
}

// SettlerFunc adapts a function to Settler.
type SettlerFunc func(nodeID string)

// Settle calls f(nodeID).
func (f SettlerFunc) Settle(nodeID string) { f(nodeID) }

// Status is a snapshot of the spawner.
type Status struct {
	State  string          `json:"state"`
	Origin model.HandleRef `json:"origin"`
	Anchor model.Position  `json:"anchor"`
}

// Spawner runs the edge-drop workflow against one store. It is not safe
// for concurrent use.
type Spawner struct {
	store   *flow.Store
	settler Settler
	cfg     Config
	log     *log.Logger

	state  State
	origin model.HandleRef
	anchor model.Position
}

// New creates an idle spawner. settler may be nil.
func New(store *flow.Store, cfg Config, settler Settler, logger *log.Logger) *Spawner {
	if logger == nil {
		logger = log.Default()
	}
	return &Spawner{store: store, settler: settler, cfg: cfg, log: logger}
}

// State returns the current state.
func (s *Spawner) State() State { return s.state }

// Status returns the current state, origin and anchor.
func (s *Spawner) Status() Status {
	return Status{State: s.state.String(), Origin: s.origin, Anchor: s.anchor}
}

func (s *Spawner) transition(to State) {
	if s.state == to {
		return
	}
	observability.Spawner().OnTransition(s.state.String(), to.String())
	s.log.Debug("spawner", "from", s.state, "to", to)
	s.state = to
}

func (s *Spawner) require(states ...State) error {
	for _, st := range states {
		if s.state == st {
			return nil
		}
	}
	return errors.New(errors.ErrCodeInvalidState, "spawner is %s", s.state)
}

// BeginDrag starts a connection drag from handleID of nodeID. When a node
// declares a source and a target handle with the same id, the source handle
// is used.
func (s *Spawner) BeginDrag(nodeID, handleID string) error {
	if err := s.require(Idle); err != nil {
		return err
	}
	kind, ok := s.store.KindOf(nodeID)
	if !ok {
		return errors.New(errors.ErrCodeNotFound, "node %s not found", nodeID)
	}
	reg := s.store.Registry()
	typ := model.HandleSource
	if _, ok := reg.Handle(kind, handleID, model.HandleSource); !ok {
		if _, ok := reg.Handle(kind, handleID, model.HandleTarget); !ok {
			return errors.New(errors.ErrCodeNotFound, "%s node %s has no handle %q", kind, nodeID, handleID)
		}
		typ = model.HandleTarget
	}
	s.origin = model.HandleRef{NodeID: nodeID, HandleID: handleID, Type: typ}
	s.transition(Dragging)
	return nil
}

// EndDrag releases the drag at. Released over a handle the workflow ends;
// released over empty canvas the kind menu opens and the canvas is blurred.
func (s *Spawner) EndDrag(overHandle bool, at model.Position) error {
	if err := s.require(Dragging); err != nil {
		return err
	}
	if overHandle {
		s.reset()
		return nil
	}
	if err := s.store.SetBlurred(true); err != nil {
		return err
	}
	s.anchor = at
	s.transition(MenuOpen)
	return nil
}

// Candidates lists the kinds a node could be created from while the menu is
// open: kinds with a handle matching the origin whose edge would validate.
func (s *Spawner) Candidates() ([]registry.Entry, error) {
	if err := s.require(Dragging, MenuOpen); err != nil {
		return nil, err
	}
	reg := s.store.Registry()
	var out []registry.Entry
	for _, e := range reg.All() {
		edge, ok := s.edgeTo(e.Kind, pendingID)
		if !ok {
			continue
		}
		v := &overlay{Store: s.store, id: pendingID, kind: e.Kind}
		if flow.IsValid(edge, v) {
			out = append(out, e)
		}
	}
	return out, nil
}

// Choose creates a node of kind at the anchor plus the configured offset
// and connects it to the origin handle, in one transaction. If either step
// fails nothing is created and the menu stays open.
func (s *Spawner) Choose(kind string) (model.Node, model.Edge, error) {
	if err := s.require(MenuOpen); err != nil {
		return model.Node{}, model.Edge{}, err
	}
	reg := s.store.Registry()
	node, err := reg.CreateDefault(kind)
	if err != nil {
		return model.Node{}, model.Edge{}, err
	}
	node.Position = s.anchor.Add(s.cfg.Offset)

	edge, ok := s.edgeTo(kind, node.ID)
	if !ok {
		return model.Node{}, model.Edge{}, errors.InvalidConnection(errors.ReasonDanglingEndpoint,
			"%s has no %s handle", kind, s.origin.Type.Opposite())
	}

	var stored model.Edge
	err = s.store.Batch(func(tx *flow.Tx) error {
		if err := tx.AddNode(node); err != nil {
			return err
		}
		var err error
		if stored, err = tx.AddEdge(edge); err != nil {
			return err
		}
		tx.SetBlurred(false)
		return nil
	})
	if err != nil {
		return model.Node{}, model.Edge{}, err
	}

	s.transition(Committed)
	s.log.Info("spawned node", "kind", kind, "node", node.ID, "from", s.origin.NodeID)
	s.reset()
	if s.settler != nil {
		s.settler.Settle(node.ID)
	}
	created, _ := s.store.Node(node.ID)
	return created, stored, nil
}

// Cancel abandons the drag or the open menu without touching the graph,
// apart from clearing the blur.
func (s *Spawner) Cancel() error {
	if err := s.require(Dragging, MenuOpen); err != nil {
		return err
	}
	if s.state == MenuOpen {
		if err := s.store.SetBlurred(false); err != nil {
			return err
		}
	}
	s.transition(Cancelled)
	s.reset()
	return nil
}

// Reset forces the spawner back to Idle, e.g. after the origin node was
// deleted. It clears the blur if the menu was open.
func (s *Spawner) Reset() {
	if s.state == MenuOpen {
		_ = s.store.SetBlurred(false)
	}
	if s.state != Idle {
		s.transition(Cancelled)
	}
	s.reset()
}

// Origin returns the handle the current drag started from.
func (s *Spawner) Origin() model.HandleRef { return s.origin }

func (s *Spawner) reset() {
	s.origin = model.HandleRef{}
	s.anchor = model.Position{}
	s.transition(Idle)
}

const pendingID = "\x00pending"

// edgeTo builds the edge between the origin and a node of kind with id,
// oriented by the origin handle's type.
func (s *Spawner) edgeTo(kind, id string) (model.Edge, bool) {
	reg := s.store.Registry()
	h, ok := reg.FirstHandle(kind, s.origin.Type.Opposite())
	if !ok {
		return model.Edge{}, false
	}
	if s.origin.Type == model.HandleSource {
		return model.Edge{
			Source: s.origin.NodeID, SourceHandle: s.origin.HandleID,
			Target: id, TargetHandle: h.ID,
			Variant: model.DefaultEdgeVariant,
		}, true
	}
	return model.Edge{
		Source: id, SourceHandle: h.ID,
		Target: s.origin.NodeID, TargetHandle: s.origin.HandleID,
		Variant: model.DefaultEdgeVariant,
	}, true
}

// overlay presents the store with one extra, unconnected node.
type overlay struct {
	*flow.Store
	id, kind string
}

func (o *overlay) KindOf(id string) (string, bool) {
	if id == o.id {
		return o.kind, true
	}
	return o.Store.KindOf(id)
}

func (o *overlay) HandleLoad(id, handleID string, typ model.HandleType) int {
	if id == o.id {
		return 0
	}
	return o.Store.HandleLoad(id, handleID, typ)
}

func (o *overlay) Successors(id string, fn func(string) bool) {
	if id == o.id {
		return
	}
	o.Store.Successors(id, fn)
}
