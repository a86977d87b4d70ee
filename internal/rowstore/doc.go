// Package rowstore holds the local copy of one remote table and reconciles
// it with frames from the remote store.
//
// A Store is an explicit object owned by its caller; there is no package
// level state. It is NOT safe for concurrent use: the grid's event loop is
// its single writer.
//
// ROW IDENTITY:
//
// Persisted rows are identified by the canonical text of their primary key
// cell (ir.Key). Rows created locally carry a virtual id until they are
// promoted to a key. Snapshots are deduplicated by key, so applying the same
// snapshot twice leaves the store unchanged.
//
// PENDING STATE:
//
// Local changes are applied immediately and remembered as pending inserts,
// updates and deletes until the matching acknowledgement (or error frame)
// arrives. Nothing is rolled back when the remote store rejects a change.
//
// ATOMICITY:
//
// Reconcile parses and validates a whole frame before writing anything. A
// malformed frame yields a ReconciliationError and leaves the store as it
// was.
package rowstore
