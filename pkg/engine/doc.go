// Package engine ties the flow components together behind one command and
// query API.
//
// # Overview
//
// Each user gesture arrives as a command. The engine resolves it through the
// registry, lets the store validate and apply it atomically, and follows it
// with a local layout pass:
//
//   - [Engine.AddNode], [Engine.CreateNodeOfKind]: the new node moves clear
//     of its neighbors once its size is known
//   - [Engine.MoveNode]: neighbors of the dropped node are pushed away
//   - [Engine.ResizeNode]: the first measurement settles the node itself,
//     later ones push its neighbors
//   - [Engine.Connect], [Engine.Disconnect], [Engine.DeleteNodes]
//   - [Engine.UpdatePayload], [Engine.SetPayloadField]
//   - [Engine.Spawner]: the edge-drop workflow
//
// # Usage
//
//	eng := engine.New(registry.Default(), engine.DefaultConfig(), engine.WithLogger(logger))
//	defer eng.Close()
//
//	msg, err := eng.CreateNodeOfKind("text-message", model.Position{X: 240})
//	_, err = eng.ResizeNode(msg.ID, model.Size{Width: 200, Height: 96})
//	_, err = eng.SetPayloadField(msg.ID, "$.message", "Hi!")
//
// # Concurrency
//
// Commands, queries and deferred layout callbacks are serialized by one
// mutex. Deferred layout polls every Measure.Delay until a node has a size,
// up to Measure.MaxAttempts times.
package engine
