package flow

import (
	"fmt"
	"testing"

	"github.com/matzehuels/blockflow/pkg/errors"
	"github.com/matzehuels/blockflow/pkg/model"
	"github.com/matzehuels/blockflow/pkg/registry"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	return New(registry.Default())
}

func node(id, kind string) model.Node {
	return model.Node{ID: id, Kind: kind}
}

func edge(id, src, dst string) model.Edge {
	return model.Edge{ID: id, Source: src, SourceHandle: registry.HandleOut, Target: dst, TargetHandle: registry.HandleIn}
}

func mustAdd(t *testing.T, s *Store, nodes ...model.Node) {
	t.Helper()
	for _, n := range nodes {
		if err := s.AddNode(n); err != nil {
			t.Fatalf("AddNode(%s): %v", n.ID, err)
		}
	}
}

func mustConnect(t *testing.T, s *Store, edges ...model.Edge) {
	t.Helper()
	for _, e := range edges {
		if _, err := s.AddEdge(e); err != nil {
			t.Fatalf("AddEdge(%s): %v", e.ID, err)
		}
	}
}

func recordChanges(s *Store) *[][]Change {
	var got [][]Change
	s.Subscribe(func(c []Change) { got = append(got, c) })
	return &got
}

func handleCounts(s *Store, id string) map[model.HandleType]map[string]int {
	out := map[model.HandleType]map[string]int{
		model.HandleSource: {},
		model.HandleTarget: {},
	}
	for eid := range s.in[id] {
		out[model.HandleTarget][s.edges[eid].edge.TargetHandle]++
	}
	for eid := range s.out[id] {
		out[model.HandleSource][s.edges[eid].edge.SourceHandle]++
	}
	return out
}

func TestAddNode(t *testing.T) {
	s := newStore(t)
	changes := recordChanges(s)

	if err := s.AddNode(node("a", registry.KindTextMessage)); err != nil {
		t.Fatalf("AddNode: %v", err)
	}

	n, ok := s.Node("a")
	if !ok {
		t.Fatal("node a missing")
	}
	if n.Payload["channel"] != "whatsapp" {
		t.Errorf("nil payload not defaulted: %v", n.Payload)
	}
	if len(*changes) != 1 || (*changes)[0][0].Kind != NodesAdded {
		t.Errorf("changes = %+v", *changes)
	}

	tests := []struct {
		name string
		node model.Node
		code errors.Code
	}{
		{"duplicate", node("a", registry.KindEnd), errors.ErrCodeDuplicateID},
		{"unknown kind", node("b", "nope"), errors.ErrCodeUnknownKind},
		{"empty id", node("", registry.KindEnd), errors.ErrCodeInvalidInput},
		{"bad payload", model.Node{ID: "c", Kind: registry.KindTextMessage, Payload: model.Payload{"channel": "fax", "message": ""}}, errors.ErrCodeInvalidPayload},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.AddNode(tt.node)
			if !errors.Is(err, tt.code) {
				t.Errorf("AddNode() error = %v, want %s", err, tt.code)
			}
		})
	}
	if s.NodeCount() != 1 {
		t.Errorf("NodeCount = %d, want 1", s.NodeCount())
	}
	if len(*changes) != 1 {
		t.Errorf("rejected adds published changes: %+v", *changes)
	}
}

func TestNodesReturnsCopies(t *testing.T) {
	s := newStore(t)
	mustAdd(t, s, node("a", registry.KindTextMessage))

	n, _ := s.Node("a")
	n.Payload["message"] = "mutated"
	n.Position.X = 99

	again, _ := s.Node("a")
	if again.Payload["message"] != "" || again.Position.X != 0 {
		t.Errorf("store state leaked through copy: %+v", again)
	}
}

func TestNodesInsertionOrder(t *testing.T) {
	s := newStore(t)
	for i := range 5 {
		mustAdd(t, s, node(fmt.Sprintf("n%d", 4-i), registry.KindTags))
	}
	nodes := s.Nodes()
	for i, n := range nodes {
		if want := fmt.Sprintf("n%d", 4-i); n.ID != want {
			t.Errorf("Nodes()[%d] = %s, want %s", i, n.ID, want)
		}
	}
}

func TestUpdateNodeGeometry(t *testing.T) {
	s := newStore(t)
	mustAdd(t, s, node("a", registry.KindTags))
	changes := recordChanges(s)

	pos := model.Position{X: 10, Y: 20}
	size := model.Size{Width: 100, Height: 40}
	if err := s.UpdateNodeGeometry("a", &pos, &size); err != nil {
		t.Fatalf("UpdateNodeGeometry: %v", err)
	}
	n, _ := s.Node("a")
	if n.Position != pos || n.Size == nil || *n.Size != size {
		t.Errorf("geometry = %+v %+v", n.Position, n.Size)
	}
	if len(*changes) != 1 || len((*changes)[0]) != 2 {
		t.Fatalf("changes = %+v", *changes)
	}

	// No-op update publishes nothing.
	if err := s.UpdateNodeGeometry("a", &pos, &size); err != nil {
		t.Fatal(err)
	}
	if len(*changes) != 1 {
		t.Errorf("no-op update published: %+v", *changes)
	}

	if err := s.UpdateNodeGeometry("zz", &pos, nil); !errors.Is(err, errors.ErrCodeNotFound) {
		t.Errorf("missing node error = %v", err)
	}
	if err := s.UpdateNodeGeometry("a", nil, &model.Size{Width: -1}); !errors.Is(err, errors.ErrCodeInvalidInput) {
		t.Errorf("negative size error = %v", err)
	}
}

func TestUpdateNodePayload(t *testing.T) {
	s := newStore(t)
	mustAdd(t, s, node("a", registry.KindTextMessage))

	err := s.UpdateNodePayload("a", func(p model.Payload) model.Payload {
		p["message"] = "hello"
		return p
	})
	if err != nil {
		t.Fatalf("UpdateNodePayload: %v", err)
	}
	n, _ := s.Node("a")
	if n.Payload["message"] != "hello" {
		t.Errorf("message = %v", n.Payload["message"])
	}

	if err := s.UpdateNodePayload("zz", func(p model.Payload) model.Payload { return p }); !errors.Is(err, errors.ErrCodeNotFound) {
		t.Errorf("missing node error = %v", err)
	}
}

func TestUpdateNodePayloadShapeViolationPanics(t *testing.T) {
	s := newStore(t)
	mustAdd(t, s, node("a", registry.KindTextMessage))
	changes := recordChanges(s)

	func() {
		defer func() {
			if recover() == nil {
				t.Error("expected panic")
			}
		}()
		_ = s.UpdateNodePayload("a", func(p model.Payload) model.Payload {
			p["channel"] = 42
			return p
		})
	}()

	n, _ := s.Node("a")
	if n.Payload["channel"] != "whatsapp" {
		t.Errorf("payload not rolled back: %v", n.Payload)
	}
	if len(*changes) != 0 {
		t.Errorf("rolled back update published: %+v", *changes)
	}

	// The store is usable afterwards.
	if err := s.AddNode(node("b", registry.KindEnd)); err != nil {
		t.Errorf("AddNode after panic: %v", err)
	}
}

func TestAddEdge(t *testing.T) {
	s := newStore(t)
	mustAdd(t, s, node("a", registry.KindTextMessage), node("b", registry.KindTextMessage))

	e, err := s.AddEdge(model.Edge{Source: "a", SourceHandle: "out", Target: "b", TargetHandle: "in"})
	if err != nil {
		t.Fatalf("AddEdge: %v", err)
	}
	if e.ID == "" {
		t.Error("edge id not generated")
	}
	if e.Variant != model.DefaultEdgeVariant {
		t.Errorf("Variant = %q, want %q", e.Variant, model.DefaultEdgeVariant)
	}
	if got := s.EdgesOf("a"); len(got) != 1 || got[0].ID != e.ID {
		t.Errorf("EdgesOf(a) = %+v", got)
	}
	if got := s.Incoming("b", "in"); len(got) != 1 {
		t.Errorf("Incoming(b) = %+v", got)
	}
	if got := s.Outgoing("a"); len(got) != 1 {
		t.Errorf("Outgoing(a) = %+v", got)
	}

	dup := e
	if _, err := s.AddEdge(dup); !errors.Is(err, errors.ErrCodeDuplicateID) {
		t.Errorf("duplicate id error = %v", err)
	}
}

func TestAddEdgeDuplicateConnection(t *testing.T) {
	s := newStore(t)
	mustAdd(t, s, node("a", registry.KindTextMessage), node("z", registry.KindEnd))
	mustConnect(t, s, edge("e1", "a", "z"))

	_, err := s.AddEdge(edge("e2", "a", "z"))
	if !errors.Is(err, errors.ErrCodeDuplicateID) {
		t.Errorf("parallel edge error = %v, want DUPLICATE_ID", err)
	}
}

func TestRemoveEdges(t *testing.T) {
	s := newStore(t)
	mustAdd(t, s, node("a", registry.KindTextMessage), node("b", registry.KindTextMessage))
	mustConnect(t, s, edge("e1", "a", "b"))

	if err := s.RemoveEdges("e1", "missing"); !errors.Is(err, errors.ErrCodeNotFound) {
		t.Errorf("error = %v, want NOT_FOUND", err)
	}
	if s.EdgeCount() != 1 {
		t.Fatal("partial removal")
	}
	if err := s.RemoveEdges("e1"); err != nil {
		t.Fatal(err)
	}
	if s.EdgeCount() != 0 || s.NodeCount() != 2 {
		t.Errorf("counts = %d nodes, %d edges", s.NodeCount(), s.EdgeCount())
	}
}

func TestRemoveNothingIsSilent(t *testing.T) {
	s := newStore(t)
	mustAdd(t, s, node("a", registry.KindTextMessage))
	changes := recordChanges(s)

	if err := s.RemoveNodes(); err != nil {
		t.Fatalf("RemoveNodes(): %v", err)
	}
	if err := s.RemoveEdges(); err != nil {
		t.Fatalf("RemoveEdges(): %v", err)
	}
	if len(*changes) != 0 {
		t.Errorf("empty removals published %v", *changes)
	}
	if s.NodeCount() != 1 {
		t.Errorf("NodeCount = %d, want 1", s.NodeCount())
	}
}

func TestRemoveNodesCascade(t *testing.T) {
	s := newStore(t)
	mustAdd(t, s,
		node("a", registry.KindTextMessage),
		node("b", registry.KindTextMessage),
		node("c", registry.KindTextMessage),
		node("z", registry.KindEnd),
	)
	mustConnect(t, s, edge("ab", "a", "b"), edge("bc", "b", "c"), edge("az", "a", "z"), edge("cz", "c", "z"))
	if err := s.OpenProperties("b"); err != nil {
		t.Fatal(err)
	}
	changes := recordChanges(s)

	if err := s.RemoveNodes("b"); err != nil {
		t.Fatalf("RemoveNodes: %v", err)
	}

	if _, ok := s.Node("b"); ok {
		t.Error("b still present")
	}
	for _, id := range []string{"a", "c", "z"} {
		if _, ok := s.Node(id); !ok {
			t.Errorf("neighbor %s removed", id)
		}
	}
	if s.EdgeCount() != 2 {
		t.Errorf("EdgeCount = %d, want 2", s.EdgeCount())
	}
	for _, e := range s.Edges() {
		if e.Touches("b") {
			t.Errorf("edge %s still touches b", e.ID)
		}
	}
	if s.UI().Panel != "" {
		t.Errorf("panel = %q, want closed", s.UI().Panel)
	}

	if len(*changes) != 1 {
		t.Fatalf("cascade published %d times, want 1", len(*changes))
	}
	kinds := []ChangeKind{}
	for _, c := range (*changes)[0] {
		kinds = append(kinds, c.Kind)
	}
	want := []ChangeKind{EdgesRemoved, NodesRemoved, UIPanel}
	if fmt.Sprint(kinds) != fmt.Sprint(want) {
		t.Errorf("change kinds = %v, want %v", kinds, want)
	}
}

func TestRemoveNodesUnknownRemovesNothing(t *testing.T) {
	s := newStore(t)
	mustAdd(t, s, node("a", registry.KindTags))

	err := s.RemoveNodes("a", "ghost")
	if !errors.Is(err, errors.ErrCodeNotFound) {
		t.Errorf("error = %v, want NOT_FOUND", err)
	}
	if s.NodeCount() != 1 {
		t.Error("known node removed despite error")
	}
}

func TestPanelKeptWhenOtherNodeDeleted(t *testing.T) {
	s := newStore(t)
	mustAdd(t, s, node("a", registry.KindTags), node("b", registry.KindTags))
	_ = s.OpenProperties("a")

	if err := s.RemoveNodes("b"); err != nil {
		t.Fatal(err)
	}
	if s.UI().Panel != "a" {
		t.Errorf("panel = %q, want a", s.UI().Panel)
	}
	if err := s.OpenProperties("ghost"); !errors.Is(err, errors.ErrCodeNotFound) {
		t.Errorf("OpenProperties(ghost) = %v", err)
	}
}

func TestBatchRollback(t *testing.T) {
	s := newStore(t)
	mustAdd(t, s, node("a", registry.KindTextMessage))
	changes := recordChanges(s)

	err := s.Batch(func(tx *Tx) error {
		if err := tx.AddNode(node("b", registry.KindTextMessage)); err != nil {
			return err
		}
		if _, err := tx.AddEdge(edge("ab", "a", "b")); err != nil {
			return err
		}
		pos := model.Position{X: 50}
		if err := tx.UpdateNodeGeometry("a", &pos, nil); err != nil {
			return err
		}
		tx.SetBlurred(true)
		if err := tx.OpenProperties("b"); err != nil {
			return err
		}
		// Self-loop fails and aborts everything above.
		_, err := tx.AddEdge(edge("bb", "b", "b"))
		return err
	})
	if errors.ReasonOf(err) != errors.ReasonSelfLoop {
		t.Fatalf("error = %v, want SelfLoop", err)
	}

	if s.NodeCount() != 1 || s.EdgeCount() != 0 {
		t.Errorf("counts = %d/%d, want 1/0", s.NodeCount(), s.EdgeCount())
	}
	n, _ := s.Node("a")
	if n.Position.X != 0 {
		t.Errorf("position not restored: %+v", n.Position)
	}
	if ui := s.UI(); ui.Blurred || ui.Panel != "" {
		t.Errorf("ui not restored: %+v", ui)
	}
	if len(*changes) != 0 {
		t.Errorf("rolled back batch published: %+v", *changes)
	}
	if err := s.Verify(); err != nil {
		t.Errorf("Verify after rollback: %v", err)
	}
}

func TestBatchRollbackRestoresRemovedEdges(t *testing.T) {
	s := newStore(t)
	mustAdd(t, s, node("a", registry.KindTextMessage), node("b", registry.KindTextMessage), node("c", registry.KindTextMessage))
	mustConnect(t, s, edge("ab", "a", "b"), edge("bc", "b", "c"))
	before := s.Edges()

	_ = s.Batch(func(tx *Tx) error {
		if err := tx.RemoveNodes("b"); err != nil {
			return err
		}
		return errors.New(errors.ErrCodeInvalidState, "abort")
	})

	after := s.Edges()
	if fmt.Sprint(before) != fmt.Sprint(after) {
		t.Errorf("edges after rollback = %v, want %v", after, before)
	}
	if got := s.Incoming("b", ""); len(got) != 1 {
		t.Errorf("incoming index not restored: %v", got)
	}
}

func TestBatchCoalescesNotifications(t *testing.T) {
	s := newStore(t)
	changes := recordChanges(s)

	err := s.Batch(func(tx *Tx) error {
		for _, id := range []string{"a", "b", "c"} {
			if err := tx.AddNode(node(id, registry.KindTags)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(*changes) != 1 || len((*changes)[0]) != 1 {
		t.Fatalf("changes = %+v", *changes)
	}
	if got := (*changes)[0][0].NodeIDs; len(got) != 3 {
		t.Errorf("NodeIDs = %v", got)
	}
}

func TestNestedBatchRejected(t *testing.T) {
	s := newStore(t)
	err := s.Batch(func(tx *Tx) error {
		return s.AddNode(node("a", registry.KindTags))
	})
	if !errors.Is(err, errors.ErrCodeInvalidState) {
		t.Errorf("nested batch error = %v", err)
	}
	if s.NodeCount() != 0 {
		t.Error("nested batch mutated store")
	}
}

func TestUnsubscribe(t *testing.T) {
	s := newStore(t)
	calls := 0
	unsub := s.Subscribe(func([]Change) { calls++ })
	mustAdd(t, s, node("a", registry.KindTags))
	unsub()
	mustAdd(t, s, node("b", registry.KindTags))
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestLoad(t *testing.T) {
	s := newStore(t)
	mustAdd(t, s, node("old", registry.KindTags))
	changes := recordChanges(s)

	nodes := []model.Node{node("a", registry.KindStart), node("b", registry.KindTextMessage)}
	edges := []model.Edge{edge("ab", "a", "b")}
	if err := s.Load(nodes, edges); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, ok := s.Node("old"); ok {
		t.Error("old contents not replaced")
	}
	if s.NodeCount() != 2 || s.EdgeCount() != 1 {
		t.Errorf("counts = %d/%d", s.NodeCount(), s.EdgeCount())
	}
	if len(*changes) != 1 || (*changes)[0][0].Kind != GraphLoaded {
		t.Errorf("changes = %+v", *changes)
	}
}

func TestLoadCorrupt(t *testing.T) {
	tests := []struct {
		name   string
		nodes  []model.Node
		edges  []model.Edge
		reason errors.Reason
	}{
		{
			name:   "dangling edge",
			nodes:  []model.Node{node("a", registry.KindTextMessage)},
			edges:  []model.Edge{edge("e", "a", "ghost")},
			reason: errors.ReasonDanglingEndpoint,
		},
		{
			name:   "arity",
			nodes:  []model.Node{node("a", registry.KindTextMessage), node("b", registry.KindTextMessage), node("c", registry.KindTextMessage)},
			edges:  []model.Edge{edge("ac", "a", "c"), edge("bc", "b", "c")},
			reason: errors.ReasonArityExceeded,
		},
		{
			name:  "duplicate node",
			nodes: []model.Node{node("a", registry.KindTags), node("a", registry.KindTags)},
		},
		{
			name:  "unknown kind",
			nodes: []model.Node{node("a", "mystery")},
		},
		{
			name:  "edge without id",
			nodes: []model.Node{node("a", registry.KindTextMessage), node("b", registry.KindTextMessage)},
			edges: []model.Edge{edge("", "a", "b")},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newStore(t)
			mustAdd(t, s, node("keep", registry.KindTags))

			err := s.Load(tt.nodes, tt.edges)
			if !errors.Is(err, errors.ErrCodeCorruptGraph) {
				t.Fatalf("Load() error = %v, want CORRUPT_GRAPH", err)
			}
			if tt.reason != "" && errors.ReasonOf(err) != tt.reason {
				t.Errorf("reason = %s, want %s", errors.ReasonOf(err), tt.reason)
			}
			if _, ok := s.Node("keep"); !ok || s.NodeCount() != 1 {
				t.Error("failed load modified the store")
			}
		})
	}
}

func TestVerifyDetectsCorruption(t *testing.T) {
	s := New(registry.Default(), WithStrictInvariants(false))
	mustAdd(t, s, node("a", registry.KindTextMessage), node("b", registry.KindTextMessage))
	mustConnect(t, s, edge("ab", "a", "b"))

	// Break the index behind the store's back.
	delete(s.in, "b")
	if err := s.Verify(); err == nil {
		t.Error("Verify() accepted a broken index")
	}
}

func TestStrictInvariantsPanicAndRollback(t *testing.T) {
	s := newStore(t)
	mustAdd(t, s, node("a", registry.KindTextMessage))

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic")
		}
		if _, ok := s.Node("b"); ok {
			t.Error("offending transaction not rolled back")
		}
		if err := s.Verify(); err != nil {
			t.Errorf("store left corrupt: %v", err)
		}
	}()

	_ = s.Batch(func(tx *Tx) error {
		if err := tx.AddNode(node("b", registry.KindTextMessage)); err != nil {
			return err
		}
		// Forge a dangling edge through the journaled primitive.
		tx.insertEdge(&edgeRec{edge: edge("bad", "b", "ghost"), seq: s.nextSeq()})
		return nil
	})
}
