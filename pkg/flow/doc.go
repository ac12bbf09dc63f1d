// Package flow holds the graph store of the flow engine together with the
// connection validator and the deletion cascade.
//
// # Transactions
//
// Every mutation runs inside a transaction. A single-operation method such
// as [Store.AddNode] opens its own; [Store.Batch] groups several:
//
//	err := store.Batch(func(tx *flow.Tx) error {
//	    if err := tx.AddNode(node); err != nil {
//	        return err
//	    }
//	    _, err := tx.AddEdge(edge)
//	    return err
//	})
//
// Mutations are applied in place and journaled; an error or panic inside
// the callback replays the journal backwards, leaving the store exactly as
// it was. Listeners registered with [Store.Subscribe] are called once per
// committed transaction and never observe a partial state.
//
// # Invariants
//
// With strict invariants enabled (the default) [Store.Verify] runs before
// each commit. A violation is a programming error: the transaction is
// rolled back and the store panics. Expected failures, like a rejected
// connection or an unknown id, are returned as *errors.Error values.
//
// # Connection Rules
//
// [Validate] applies the connection rules in a fixed order and reports the
// first one that fails as an INVALID_CONNECTION error with a reason; see
// its documentation for the list.
package flow
