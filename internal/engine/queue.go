package engine

import (
	"sync"

	"github.com/roach88/gridsync/internal/conn"
	"github.com/roach88/gridsync/internal/ir"
)

// EventType distinguishes between event kinds.
type EventType int

const (
	// EventTypeFrame is an inbound frame from the connection.
	EventTypeFrame EventType = iota + 1
	// EventTypeState is a connection state change.
	EventTypeState
	// EventTypeTimer is a scheduler callback.
	EventTypeTimer
)

// Event wraps everything the grid's loop applies.
type Event struct {
	Type  EventType
	Frame ir.Frame
	State conn.State
	Err   error
	Fire  func()
}

// eventQueue is a thread-safe FIFO queue for events.
//
// The queue is unbounded so the connection's reader goroutine never blocks
// on a slow consumer. The Grid's Run loop (or Flush) dequeues.
//
// The queue uses a channel for signaling to enable context-aware waiting
// in the Run loop.
type eventQueue struct {
	mu     sync.Mutex
	events []Event
	closed bool
	signal chan struct{} // buffered, size 1
}

func newEventQueue() *eventQueue {
	return &eventQueue{
		events: make([]Event, 0, 64),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue adds an event to the back of the queue.
// Returns false if the queue is closed.
func (q *eventQueue) Enqueue(e Event) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.events = append(q.events, e)

	// Non-blocking: the buffer of 1 coalesces multiple signals.
	select {
	case q.signal <- struct{}{}:
	default:
	}

	return true
}

// TryDequeue attempts to dequeue without blocking.
// Returns (Event{}, false) if queue is empty.
func (q *eventQueue) TryDequeue() (Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.events) == 0 {
		return Event{}, false
	}

	e := q.events[0]

	// Release the frame payload and callback for GC.
	q.events[0] = Event{}

	if len(q.events) == 1 {
		q.events = q.events[:0]
	} else {
		q.events = q.events[1:]
	}

	return e, true
}

// Drain discards every queued event and returns how many were dropped.
func (q *eventQueue) Drain() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := len(q.events)
	clear(q.events)
	q.events = q.events[:0]
	return n
}

// Wait returns a channel that signals when events may be available.
//
//	select {
//	case <-ctx.Done():
//	    return ctx.Err()
//	case <-q.Wait():
//	    // Try TryDequeue
//	}
func (q *eventQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the current queue length.
func (q *eventQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

// Close signals that no more events will be enqueued.
// Wakes any blocked waiters by closing the signal channel.
func (q *eventQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.closed = true
	close(q.signal)
}

// Closed reports whether Close has been called.
func (q *eventQueue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}
