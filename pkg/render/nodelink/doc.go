// Package nodelink renders flows as node-link diagrams.
//
// # Overview
//
// This package produces directed graph pictures of a flow using Graphviz:
// nodes appear as rounded boxes titled with their kind, and edges as
// arrows. By default every node is pinned at its canvas position so the
// picture matches what the editor shows.
//
// # Usage
//
// Convert a flow to DOT format, then render to SVG:
//
//	dot := nodelink.ToDOT(store.Nodes(), store.Edges(), store.Registry(), nodelink.Options{})
//	svg, err := nodelink.RenderSVG(dot)
//
// # Options
//
// The [Options] struct controls diagram generation:
//
//   - Detailed: node labels include the payload fields
//   - Ranked: ignore canvas positions and rank the flow top to bottom
//
// # Dependencies
//
// This package uses [github.com/goccy/go-graphviz] for in-process SVG
// rendering.
package nodelink
