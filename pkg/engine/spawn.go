package engine

import (
	"github.com/matzehuels/blockflow/pkg/model"
	"github.com/matzehuels/blockflow/pkg/registry"
	"github.com/matzehuels/blockflow/pkg/spawner"
)

// Spawner drives the edge-drop workflow of an engine. Its methods take the
// engine lock, so it is safe for concurrent use.
type Spawner struct {
	e *Engine
}

// Spawner returns the engine's edge-drop workflow.
func (e *Engine) Spawner() *Spawner { return &Spawner{e: e} }

// BeginDrag starts dragging a connection out of handleID of nodeID.
func (s *Spawner) BeginDrag(nodeID, handleID string) error {
	s.e.mu.Lock()
	defer s.e.mu.Unlock()
	return s.e.spawner.BeginDrag(nodeID, handleID)
}

// EndDrag releases the drag at the given canvas position.
func (s *Spawner) EndDrag(overHandle bool, at model.Position) error {
	s.e.mu.Lock()
	defer s.e.mu.Unlock()
	return s.e.spawner.EndDrag(overHandle, at)
}

// Candidates lists the kinds the open menu offers.
func (s *Spawner) Candidates() ([]registry.Entry, error) {
	s.e.mu.Lock()
	defer s.e.mu.Unlock()
	return s.e.spawner.Candidates()
}

// Choose creates and connects a node of kind. The new node is laid out
// once it is measured.
func (s *Spawner) Choose(kind string) (model.Node, model.Edge, error) {
	s.e.mu.Lock()
	defer s.e.mu.Unlock()
	return s.e.spawner.Choose(kind)
}

// Cancel abandons the drag or the open menu.
func (s *Spawner) Cancel() error {
	s.e.mu.Lock()
	defer s.e.mu.Unlock()
	return s.e.spawner.Cancel()
}

// Status reports the workflow state.
func (s *Spawner) Status() spawner.Status {
	s.e.mu.Lock()
	defer s.e.mu.Unlock()
	return s.e.spawner.Status()
}
