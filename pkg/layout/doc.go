// Package layout keeps nodes from overlapping after structural edits.
//
// It does not arrange whole graphs. An [Adjuster] looks at one node, the
// subject, and resolves the collisions around it:
//
//   - [SubjectYields]: the subject moves until it is clear and nothing else
//     changes. Used for new and freshly measured nodes.
//   - [NeighborsYield]: the subject stays where the user left it and
//     overlapping neighbors are pushed away; a pushed node may in turn push
//     its own neighbors.
//
// A collision is resolved along the axis of least overlap, away from the
// node that stays. Pushed coordinates are snapped to the grid in the push
// direction, and a push continues past fixed nodes until the moving node is
// clear. Candidate obstacles come from a spatial hash, so a pass only looks
// at nodes near the subject.
//
// # Deferred Measurement
//
// New nodes have no size until the rendering layer measures them. [Deferred]
// polls for such nodes with a bounded number of attempts and runs the
// subject-yields pass once the size is known.
package layout
