// Package engine wires the grid together.
//
// A Grid owns one row store, one mutation coordinator, one selection engine
// and the connection manager that feeds them. Every handler runs to
// completion under the Grid's lock before the next one starts:
//
// Single-Writer Event Loop:
//  1. The connection's reader goroutine enqueues inbound frames and state
//     changes to an unbounded FIFO queue.
//  2. Scheduler callbacks (the double-click window) are enqueued too.
//  3. Grid.Run dequeues events one at a time and applies them.
//  4. Public operations (pointer input, edits, menu items) take the same
//     lock, so they interleave with queued events but never overlap.
//
// Frames are applied in arrival order. Two updates to the same key that
// arrive out of order leave the older value in place; no acknowledgement
// ordering is enforced.
//
// Logical Clock:
// Frames crossing the connection in either direction are stamped with a
// monotonic seq from Clock.Next(). The seq orders the session journal; it
// is never used to reorder frames.
package engine
