package flow

import (
	"testing"

	"github.com/matzehuels/blockflow/pkg/errors"
	"github.com/matzehuels/blockflow/pkg/model"
	"github.com/matzehuels/blockflow/pkg/registry"
)

func TestValidateReasons(t *testing.T) {
	s := newStore(t)
	mustAdd(t, s,
		node("start", registry.KindStart),
		node("a", registry.KindTextMessage),
		node("b", registry.KindTextMessage),
		node("c", registry.KindTextMessage),
		node("cond", registry.KindConditionalPath),
		node("end", registry.KindEnd),
	)
	mustConnect(t, s, edge("ab", "a", "b"))

	tests := []struct {
		name   string
		edge   model.Edge
		reason errors.Reason
	}{
		{
			name: "valid",
			edge: edge("bc", "b", "c"),
		},
		{
			name:   "missing source",
			edge:   edge("x", "ghost", "c"),
			reason: errors.ReasonDanglingEndpoint,
		},
		{
			name:   "missing target",
			edge:   edge("x", "a", "ghost"),
			reason: errors.ReasonDanglingEndpoint,
		},
		{
			name:   "self loop",
			edge:   edge("x", "a", "a"),
			reason: errors.ReasonSelfLoop,
		},
		{
			name:   "self loop with bogus handles",
			edge:   model.Edge{ID: "x", Source: "a", SourceHandle: "nope", Target: "a", TargetHandle: "nope"},
			reason: errors.ReasonSelfLoop,
		},
		{
			name:   "unknown source handle",
			edge:   model.Edge{ID: "x", Source: "b", SourceHandle: "nope", Target: "c", TargetHandle: "in"},
			reason: errors.ReasonDanglingEndpoint,
		},
		{
			name:   "handle of wrong type",
			edge:   model.Edge{ID: "x", Source: "b", SourceHandle: "in", Target: "c", TargetHandle: "in"},
			reason: errors.ReasonDanglingEndpoint,
		},
		{
			name:   "occupied target",
			edge:   edge("x", "c", "b"),
			reason: errors.ReasonArityExceeded,
		},
		{
			name:   "incompatible kinds",
			edge:   edge("x", "start", "end"),
			reason: errors.ReasonIncompatibleKinds,
		},
		{
			name: "unlimited target",
			edge: edge("x", "c", "end"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.edge, s)
			if tt.reason == "" {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, errors.ErrCodeInvalidConnection) {
				t.Fatalf("Validate() = %v, want INVALID_CONNECTION", err)
			}
			if got := errors.ReasonOf(err); got != tt.reason {
				t.Errorf("reason = %s, want %s", got, tt.reason)
			}
			if IsValid(tt.edge, s) {
				t.Error("IsValid() = true for rejected edge")
			}
		})
	}
}

func TestValidateIsPure(t *testing.T) {
	s := newStore(t)
	mustAdd(t, s, node("a", registry.KindTextMessage), node("b", registry.KindTextMessage))
	changes := recordChanges(s)

	for range 3 {
		_ = s.Validate(edge("ab", "a", "b"))
	}
	if s.EdgeCount() != 0 || len(*changes) != 0 {
		t.Error("Validate mutated the store")
	}
}

func TestSourceHandleLimit(t *testing.T) {
	s := newStore(t)
	mustAdd(t, s,
		node("cond", registry.KindConditionalPath),
		node("a", registry.KindTextMessage),
		node("b", registry.KindTextMessage),
	)
	mustConnect(t, s, model.Edge{ID: "t1", Source: "cond", SourceHandle: registry.HandleTrue, Target: "a", TargetHandle: "in"})

	err := s.Validate(model.Edge{ID: "t2", Source: "cond", SourceHandle: registry.HandleTrue, Target: "b", TargetHandle: "in"})
	if errors.ReasonOf(err) != errors.ReasonArityExceeded {
		t.Errorf("second edge on true handle = %v, want ArityExceeded", err)
	}
	err = s.Validate(model.Edge{ID: "f1", Source: "cond", SourceHandle: registry.HandleFalse, Target: "b", TargetHandle: "in"})
	if err != nil {
		t.Errorf("false handle = %v, want nil", err)
	}
}

func TestAcyclicKindAllowsForwardEdges(t *testing.T) {
	s := newStore(t)
	mustAdd(t, s,
		node("a", registry.KindTextMessage),
		node("cond", registry.KindConditionalPath),
		node("yes", registry.KindTextMessage),
		node("no", registry.KindTextMessage),
	)
	mustConnect(t, s,
		model.Edge{ID: "a-cond", Source: "a", SourceHandle: "out", Target: "cond", TargetHandle: "in"},
		model.Edge{ID: "cond-yes", Source: "cond", SourceHandle: registry.HandleTrue, Target: "yes", TargetHandle: "in"},
		model.Edge{ID: "cond-no", Source: "cond", SourceHandle: registry.HandleFalse, Target: "no", TargetHandle: "in"},
	)

	// Loops that do not leave an acyclic kind are allowed.
	mustAdd(t, s, node("x", registry.KindTextMessage), node("y", registry.KindTextMessage))
	mustConnect(t, s, edge("xy", "x", "y"))
	if err := s.Validate(edge("yx", "y", "x")); err != nil {
		t.Errorf("y -> x = %v, want nil", err)
	}
}

func TestCycleDetectedFromAcyclicKind(t *testing.T) {
	s := newStore(t)
	mustAdd(t, s,
		node("cond", registry.KindConditionalPath),
		node("a", registry.KindTextMessage),
		node("b", registry.KindTextMessage),
	)
	mustConnect(t, s,
		model.Edge{ID: "a-cond", Source: "a", SourceHandle: "out", Target: "cond", TargetHandle: "in"},
		edge("ab", "a", "b"),
	)

	// Arity is checked before reachability.
	if err := s.Validate(model.Edge{ID: "x", Source: "cond", SourceHandle: registry.HandleTrue, Target: "b", TargetHandle: "in"}); errors.ReasonOf(err) != errors.ReasonArityExceeded {
		t.Fatalf("b already has an input: got %v", err)
	}

	mustAdd(t, s, node("c", registry.KindTextMessage))
	mustConnect(t, s, edge("ca", "c", "a"))

	// a-cond means cond -> c would make c -> a -> cond -> c.
	err := s.Validate(model.Edge{ID: "y", Source: "cond", SourceHandle: registry.HandleTrue, Target: "c", TargetHandle: "in"})
	if errors.ReasonOf(err) != errors.ReasonCycleDetected {
		t.Errorf("cond -> c = %v, want CycleDetected", err)
	}
}

func TestCycleDetectedDownstreamOfAcyclicKind(t *testing.T) {
	s := newStore(t)
	mustAdd(t, s,
		node("a", registry.KindTextMessage),
		node("cond", registry.KindConditionalPath),
		node("c", registry.KindTextMessage),
		node("d", registry.KindTextMessage),
		node("side", registry.KindTextMessage),
	)
	mustConnect(t, s,
		model.Edge{ID: "a-cond", Source: "a", SourceHandle: "out", Target: "cond", TargetHandle: "in"},
		model.Edge{ID: "cond-c", Source: "cond", SourceHandle: registry.HandleTrue, Target: "c", TargetHandle: "in"},
		edge("cd", "c", "d"),
	)

	tests := []struct {
		name   string
		edge   model.Edge
		reason errors.Reason
	}{
		{"branch back to entry", edge("x", "c", "a"), errors.ReasonCycleDetected},
		{"deeper branch back to entry", edge("x", "d", "a"), errors.ReasonCycleDetected},
		{"acyclic node is the target", edge("x", "d", "cond"), errors.ReasonArityExceeded},
		{"branch into its own path", edge("x", "d", "c"), errors.ReasonArityExceeded},
		{"edge into an unrelated node", edge("x", "d", "side"), ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.Validate(tt.edge)
			if got := errors.ReasonOf(err); got != tt.reason {
				t.Errorf("Validate(%s -> %s) reason = %q (%v), want %q", tt.edge.Source, tt.edge.Target, got, err, tt.reason)
			}
		})
	}
}

func TestCycleDetectedIntoAcyclicKind(t *testing.T) {
	s := newStore(t)
	mustAdd(t, s,
		node("cond", registry.KindConditionalPath),
		node("c", registry.KindTextMessage),
		node("d", registry.KindTextMessage),
	)
	mustConnect(t, s,
		model.Edge{ID: "cond-c", Source: "cond", SourceHandle: registry.HandleFalse, Target: "c", TargetHandle: "in"},
		edge("cd", "c", "d"),
	)

	err := s.Validate(edge("x", "d", "cond"))
	if errors.ReasonOf(err) != errors.ReasonCycleDetected {
		t.Errorf("d -> cond = %v, want CycleDetected", err)
	}
}

func TestCycleSearchBudget(t *testing.T) {
	s := New(registry.Default(), WithMaxCycleSearch(2))
	mustAdd(t, s,
		node("cond", registry.KindConditionalPath),
		node("a", registry.KindTextMessage),
		node("b", registry.KindTextMessage),
		node("c", registry.KindTextMessage),
	)
	mustConnect(t, s, edge("ab", "a", "b"), edge("bc", "b", "c"))

	// The chain a -> b -> c never reaches cond, but exceeds the budget.
	err := s.Validate(model.Edge{ID: "x", Source: "cond", SourceHandle: registry.HandleTrue, Target: "a", TargetHandle: "in"})
	if errors.ReasonOf(err) != errors.ReasonCycleDetected {
		t.Errorf("exhausted budget = %v, want CycleDetected", err)
	}
}
