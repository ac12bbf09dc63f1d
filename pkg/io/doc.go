// Package io provides JSON and YAML import and export for flow documents.
//
// # Overview
//
// A [Document] is the persisted form of a flow: the nodes with their kind,
// geometry and payload, and the edges between their handles. The same
// structure is written as JSON or YAML; [ImportFile] and [ExportFile] pick
// the codec from the file extension.
//
// # JSON Format
//
//	{
//	  "version": 1,
//	  "nodes": [
//	    {"id": "a", "kind": "start", "position": {"x": 0, "y": 0}, "payload": {}},
//	    {"id": "b", "kind": "text-message", "position": {"x": 240, "y": 0},
//	     "size": {"width": 200, "height": 96},
//	     "payload": {"channel": "whatsapp", "message": "Hi!"}}
//	  ],
//	  "edges": [
//	    {"id": "e1", "source": "a", "sourceHandle": "out",
//	     "target": "b", "targetHandle": "in", "variant": "deletable"}
//	  ]
//	}
//
// # Node Fields
//
// Required:
//   - id: Unique string identifier
//   - kind: A registered node kind
//
// Optional:
//   - position: Canvas coordinates (defaults to the origin)
//   - size: Last measured size (omitted while unknown)
//   - payload: Kind-specific fields (defaults to the kind's default payload)
//
// # Loading
//
// Decoding only checks syntax. [Document.Apply] loads the graph into a
// store, where every node and edge is checked exactly like a live edit:
// unknown kinds, duplicate ids, dangling or over-full handles and rejected
// connections all fail the whole load with CORRUPT_GRAPH.
package io
