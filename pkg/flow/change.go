package flow

// ChangeKind names the kind of mutation a Change describes.
type ChangeKind string

// Change kinds emitted by the store.
const (
	NodesAdded   ChangeKind = "nodes.added"
	NodesMoved   ChangeKind = "nodes.moved"
	NodesResized ChangeKind = "nodes.resized"
	NodesPayload ChangeKind = "nodes.payload"
	NodesRemoved ChangeKind = "nodes.removed"
	EdgesAdded   ChangeKind = "edges.added"
	EdgesRemoved ChangeKind = "edges.removed"
	UIPanel      ChangeKind = "ui.panel"
	UIBlur       ChangeKind = "ui.blur"
	GraphLoaded  ChangeKind = "graph.loaded"
)

// Change describes one committed mutation.
type Change struct {
	Kind    ChangeKind `json:"kind"`
	NodeIDs []string   `json:"nodes,omitempty"`
	EdgeIDs []string   `json:"edges,omitempty"`
}

// Listener receives the changes of one committed transaction, in the order
// they were applied. Consecutive changes of the same kind are merged.
type Listener func(changes []Change)

// appendChange adds c to changes, merging it into the last entry when the
// kinds match.
func appendChange(changes []Change, c Change) []Change {
	if n := len(changes); n > 0 && changes[n-1].Kind == c.Kind {
		last := &changes[n-1]
		last.NodeIDs = appendUnique(last.NodeIDs, c.NodeIDs...)
		last.EdgeIDs = appendUnique(last.EdgeIDs, c.EdgeIDs...)
		return changes
	}
	return append(changes, c)
}

func appendUnique(dst []string, ids ...string) []string {
outer:
	for _, id := range ids {
		for _, have := range dst {
			if have == id {
				continue outer
			}
		}
		dst = append(dst, id)
	}
	return dst
}
