// Package conn owns the streaming session to the remote table store.
//
// A Manager holds at most one session per resource (table, query or script).
// Opening a session dials the transport, then requests the schema (getTable)
// and a bounded first page of rows (getTableData). Inbound frames are decoded
// into ir.Frame envelopes and handed to registered handlers in arrival order.
//
// STATE MACHINE:
//
//	Disconnected -> Connecting -> Connected -> Disconnected -> Connecting ...
//
// A failed dial, a read error, or Close returns the manager to Disconnected.
// Open may be called again to retry.
//
// Sends are fire-and-forget: the manager does not wait for acknowledgements
// and does not order commands beyond the transport's own FIFO. Ordering
// problems are absorbed by the row store's idempotent reconciliation.
package conn
