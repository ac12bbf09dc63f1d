package flow

import (
	"github.com/matzehuels/blockflow/pkg/errors"
	"github.com/matzehuels/blockflow/pkg/model"
	"github.com/matzehuels/blockflow/pkg/registry"
)

// View is the read access the connection validator needs. *Store
// implements it.
type View interface {
	Registry() *registry.Registry
	KindOf(id string) (string, bool)
	HandleLoad(id, handleID string, typ model.HandleType) int
	Successors(id string, fn func(string) bool)
	MaxCycleSearch() int
}

// Validate decides whether edge may be added to the graph seen through v.
// It has no side effects. Rules are applied in order and the first failure
// is returned as an INVALID_CONNECTION error carrying its reason:
//
//  1. both endpoints exist (DanglingEndpoint)
//  2. source and target differ (SelfLoop)
//  3. both handles are declared with the right type (DanglingEndpoint)
//  4. neither handle is full (ArityExceeded)
//  5. both kinds accept each other (IncompatibleKinds)
//  6. the edge closes no loop through an acyclic kind (CycleDetected)
//
// A self-loop is reported before handle resolution, so connecting a node to
// itself is always a SelfLoop regardless of the handles named.
func Validate(edge model.Edge, v View) error {
	reg := v.Registry()

	srcKind, ok := v.KindOf(edge.Source)
	if !ok {
		return errors.InvalidConnection(errors.ReasonDanglingEndpoint, "source node %s not found", edge.Source)
	}
	dstKind, ok := v.KindOf(edge.Target)
	if !ok {
		return errors.InvalidConnection(errors.ReasonDanglingEndpoint, "target node %s not found", edge.Target)
	}

	if edge.Source == edge.Target {
		return errors.InvalidConnection(errors.ReasonSelfLoop, "node %s cannot connect to itself", edge.Source)
	}

	srcHandle, ok := reg.Handle(srcKind, edge.SourceHandle, model.HandleSource)
	if !ok {
		return errors.InvalidConnection(errors.ReasonDanglingEndpoint,
			"%s node %s has no source handle %q", srcKind, edge.Source, edge.SourceHandle)
	}
	dstHandle, ok := reg.Handle(dstKind, edge.TargetHandle, model.HandleTarget)
	if !ok {
		return errors.InvalidConnection(errors.ReasonDanglingEndpoint,
			"%s node %s has no target handle %q", dstKind, edge.Target, edge.TargetHandle)
	}

	if dstHandle.Max > 0 && v.HandleLoad(edge.Target, dstHandle.ID, model.HandleTarget)+1 > dstHandle.Max {
		return errors.InvalidConnection(errors.ReasonArityExceeded,
			"target handle %q of node %s accepts at most %d edge(s)", dstHandle.ID, edge.Target, dstHandle.Max)
	}
	if srcHandle.Max > 0 && v.HandleLoad(edge.Source, srcHandle.ID, model.HandleSource)+1 > srcHandle.Max {
		return errors.InvalidConnection(errors.ReasonArityExceeded,
			"source handle %q of node %s accepts at most %d edge(s)", srcHandle.ID, edge.Source, srcHandle.Max)
	}

	if !reg.Compatible(srcKind, dstKind) {
		return errors.InvalidConnection(errors.ReasonIncompatibleKinds, "%s cannot connect to %s", srcKind, dstKind)
	}

	if id, ok := acyclicOnLoop(v, edge); ok {
		kind, _ := v.KindOf(id)
		return errors.InvalidConnection(errors.ReasonCycleDetected,
			"connecting %s to %s would close a cycle through %s node %s", edge.Source, edge.Target, kind, id)
	}
	return nil
}

// IsValid reports whether Validate accepts edge.
func IsValid(edge model.Edge, v View) bool {
	return Validate(edge, v) == nil
}

// acyclicOnLoop returns a node of an acyclic kind that would lie on a loop
// closed by edge. Such a loop is edge plus any path from its target back to
// its source, so the candidates are the acyclic nodes reachable from the
// target that themselves reach the source. Exhausting the search budget
// counts as a loop once an acyclic node is involved.
func acyclicOnLoop(v View, edge model.Edge) (string, bool) {
	reg := v.Registry()
	acyclic := func(id string) bool {
		kind, _ := v.KindOf(id)
		entry, err := reg.Lookup(kind)
		return err == nil && entry.Acyclic
	}

	if acyclic(edge.Source) {
		found, exhausted := search(v, edge.Target, edge.Source, nil)
		return edge.Source, found || exhausted
	}

	var candidates []string
	found, exhausted := search(v, edge.Target, edge.Source, func(id string) {
		if acyclic(id) {
			candidates = append(candidates, id)
		}
	})
	if !found && !exhausted {
		return "", false
	}
	for _, id := range candidates {
		if id == edge.Target {
			return id, true
		}
		if f, ex := search(v, id, edge.Source, nil); f || ex {
			return id, true
		}
	}
	return "", false
}

// search walks outgoing edges breadth-first from start looking for goal.
// visit, if set, sees every node reached, start included. The walk expands
// at most v.MaxCycleSearch() nodes and reports whether it ran out.
func search(v View, start, goal string, visit func(string)) (found, exhausted bool) {
	budget := v.MaxCycleSearch()
	seen := map[string]bool{start: true}
	queue := []string{start}
	if visit != nil {
		visit(start)
	}
	for len(queue) > 0 && !found {
		id := queue[0]
		queue = queue[1:]
		if id == goal {
			return true, false
		}
		budget--
		if budget < 0 {
			return false, true
		}
		v.Successors(id, func(next string) bool {
			if next == goal {
				found = true
				return false
			}
			if !seen[next] {
				seen[next] = true
				if visit != nil {
					visit(next)
				}
				queue = append(queue, next)
			}
			return true
		})
	}
	return found, false
}

// Validate checks edge against the current contents of the store.
func (s *Store) Validate(edge model.Edge) error {
	if edge.Variant == "" {
		edge.Variant = model.DefaultEdgeVariant
	}
	return Validate(edge, s)
}
