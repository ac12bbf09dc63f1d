// Package model defines the data types shared by every layer of the flow
// graph engine: nodes, edges, handles and their geometry.
//
// The types are plain values. Ownership of live nodes and edges belongs to
// the graph store in package flow; everything handed out by the store is a
// copy, so callers may keep or modify the values returned here without
// affecting the graph.
//
// # Node Kinds
//
// A node's [Node.Kind] is a flat tag such as "text-message". The tag selects
// metadata, default payload, handles and compatibility rules from the node
// type registry (package registry). Kinds are never expressed as Go types,
// which keeps adding a new block a data-only change.
//
// # Geometry
//
// Positions are in canvas units. A node's [Node.Size] is nil until the
// rendering layer has measured it; layout treats unmeasured nodes as having
// no extent.
package model

import "maps"

// DefaultEdgeVariant is the rendering variant assigned to edges created
// without an explicit one.
const DefaultEdgeVariant = "deletable"

// Position is a point on the canvas.
type Position struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// Add returns p translated by d.
func (p Position) Add(d Position) Position { return Position{X: p.X + d.X, Y: p.Y + d.Y} }

// Size is the measured width and height of a rendered node.
type Size struct {
	Width  float64 `json:"width" yaml:"width"`
	Height float64 `json:"height" yaml:"height"`
}

// Payload holds the kind-specific fields of a node, e.g. a text message
// holds {channel, message}.
type Payload map[string]any

// Clone returns a deep copy of the payload. Nested maps and slices are
// copied so the clone never aliases the original.
func (p Payload) Clone() Payload {
	if p == nil {
		return Payload{}
	}
	out := make(Payload, len(p))
	for k, v := range p {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return map[string]any(Payload(val).Clone())
	case Payload:
		return val.Clone()
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	case []string:
		out := make([]string, len(val))
		copy(out, val)
		return out
	case map[string]string:
		return maps.Clone(val)
	default:
		return v
	}
}

// Node is a typed unit of flow logic.
type Node struct {
	ID       string   `json:"id" yaml:"id"`
	Kind     string   `json:"kind" yaml:"kind"`
	Position Position `json:"position" yaml:"position"`
	Size     *Size    `json:"size,omitempty" yaml:"size,omitempty"`
	Payload  Payload  `json:"payload" yaml:"payload"`
}

// Measured reports whether the rendering layer has reported the node's size.
func (n Node) Measured() bool { return n.Size != nil }

// Bounds returns the node's bounding box. Unmeasured nodes have an empty box
// at their position.
func (n Node) Bounds() Rect {
	r := Rect{X: n.Position.X, Y: n.Position.Y}
	if n.Size != nil {
		r.W = n.Size.Width
		r.H = n.Size.Height
	}
	return r
}

// Clone returns a deep copy of the node.
func (n Node) Clone() Node {
	out := n
	if n.Size != nil {
		s := *n.Size
		out.Size = &s
	}
	out.Payload = n.Payload.Clone()
	return out
}

// HandleType tells whether a handle emits (source) or receives (target) flow.
type HandleType string

const (
	// HandleSource is an outgoing connection point.
	HandleSource HandleType = "source"
	// HandleTarget is an incoming connection point.
	HandleTarget HandleType = "target"
)

// Opposite returns the handle type an edge must reach from a handle of type t.
func (t HandleType) Opposite() HandleType {
	if t == HandleSource {
		return HandleTarget
	}
	return HandleSource
}

// Unlimited declares a handle that may carry any number of edges.
const Unlimited = -1

// Handle is a named connection point declared by a registry entry.
// Max bounds the number of edges the handle may carry. Once a handle has
// been registered, 0 means unlimited; in a declaration 0 selects the default
// for the handle type and [Unlimited] lifts the bound explicitly.
type Handle struct {
	ID   string     `json:"id" yaml:"id" toml:"id"`
	Type HandleType `json:"type" yaml:"type" toml:"type"`
	Max  int        `json:"max,omitempty" yaml:"max,omitempty" toml:"max"`
}

// HandleRef points at one handle of one node.
type HandleRef struct {
	NodeID   string     `json:"node"`
	HandleID string     `json:"handle"`
	Type     HandleType `json:"type"`
}

// Edge is a directed connection from a source handle to a target handle.
type Edge struct {
	ID           string `json:"id" yaml:"id"`
	Source       string `json:"source" yaml:"source"`
	SourceHandle string `json:"sourceHandle" yaml:"sourceHandle"`
	Target       string `json:"target" yaml:"target"`
	TargetHandle string `json:"targetHandle" yaml:"targetHandle"`
	Variant      string `json:"variant,omitempty" yaml:"variant,omitempty"`
}

// Touches reports whether the edge has an endpoint on node id.
func (e Edge) Touches(id string) bool { return e.Source == id || e.Target == id }

// UI is the ephemeral interaction state kept next to the graph.
// It is never persisted.
type UI struct {
	// Panel is the id of the node whose property panel is open, or "".
	Panel string `json:"panel,omitempty"`
	// Blurred is set while the canvas overlay is blurred, e.g. during a
	// pending edge drop.
	Blurred bool `json:"blurred"`
}
