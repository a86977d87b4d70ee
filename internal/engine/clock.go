package engine

import "sync/atomic"

// SeqClock issues the logical sequence numbers stamped on journaled frames.
// Implemented by Clock and testutil.DeterministicClock.
type SeqClock interface {
	Next() int64
}

// Clock is a monotonic logical clock.
//
// Every frame crossing the connection, in either direction, takes the next
// seq. The journal orders by seq, never by wall time, so a replayed session
// applies frames in the order the grid saw them.
//
// Clock is safe for concurrent use: outbound commands are stamped on the
// caller's goroutine while inbound frames are stamped on the loop.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a new clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock that resumes after start.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next returns the next sequence number and increments the clock.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the last issued sequence number.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
