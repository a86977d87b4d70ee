package selection

import "time"

// DefaultDoubleClickWindow is how long a first click stays armed.
const DefaultDoubleClickWindow = 300 * time.Millisecond

// Timer is a cancellable delayed callback.
type Timer interface {
	Stop() bool
}

// Scheduler runs a callback after a delay. The grid wraps the scheduler so
// callbacks are serialized with every other event.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

// RealScheduler schedules on wall time.
type RealScheduler struct{}

// AfterFunc implements Scheduler with time.AfterFunc.
func (RealScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
