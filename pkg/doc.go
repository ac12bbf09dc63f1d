// Package pkg provides the core libraries of blockflow, a flow graph engine
// for visual chat-automation builders.
//
// # Overview
//
// A flow is a directed graph of typed blocks (start, text message,
// conditional path, tags, end) joined by connections between named handles.
// The pkg directory is organized into four areas:
//
//  1. Domain: [model], [registry], [flow]
//  2. Interaction: [layout], [spawner], [engine]
//  3. Persistence and output: [io], [storage], [render/nodelink]
//  4. Ambient: [errors], [config], [observability], [buildinfo]
//
// # Architecture
//
// Every user gesture becomes one engine command:
//
//	gesture (drop, drag, edit, delete)
//	         ↓
//	    [engine] command
//	         ↓
//	    [flow] transaction (validate, apply, notify)
//	         ↓
//	    [layout] local collision pass
//	         ↓
//	    listeners / metrics / renderers
//
// A command either applies completely or leaves the graph unchanged.
//
// # Quick Start
//
//	eng := engine.New(registry.Default(), engine.DefaultConfig())
//	defer eng.Close()
//
//	start, _ := eng.CreateNodeOfKind(registry.KindStart, model.Position{})
//	msg, _ := eng.CreateNodeOfKind(registry.KindTextMessage, model.Position{X: 240})
//	_, _ = eng.ResizeNode(msg.ID, model.Size{Width: 200, Height: 96})
//	_, _ = eng.Connect(start.ID, "out", msg.ID, "in")
//
//	doc := eng.Export()
//	_ = flowio.ExportFile(doc, "flow.yaml")
//
// # Main Packages
//
// [model] - Plain value types: nodes, edges, handles, geometry.
//
// [registry] - The block catalog. Each kind declares metadata, a default
// payload, handles with edge limits, an optional JSON schema and
// compatibility predicates, which may be Lua expressions in configuration.
//
// [flow] - The graph store. Mutations run in transactions that validate
// connections (dangling endpoints, self loops, arity, compatibility, cycles),
// cascade deletions and notify listeners once per commit.
//
// [layout] - Collision avoidance around one node, plus deferred layout for
// nodes whose size is not yet known.
//
// [spawner] - The edge-drop workflow: drag from a handle, drop on empty
// canvas, choose a kind, get a connected block.
//
// [engine] - One lock, one store, one adjuster, one spawner behind a command
// API used by the CLI and the HTTP server.
//
// [io] - JSON and YAML flow documents.
//
// [storage] - Named flow documents on file, Redis or MongoDB backends.
//
// [render/nodelink] - DOT and SVG pictures of a flow via Graphviz.
package pkg
