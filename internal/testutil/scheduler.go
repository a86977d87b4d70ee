package testutil

import (
	"sort"
	"sync"
	"time"

	"github.com/roach88/gridsync/internal/selection"
)

// ManualScheduler is a selection.Scheduler driven by Advance instead of
// wall time. Callbacks run synchronously inside Advance, in deadline order
// (registration order for equal deadlines).
//
// Thread-safety: all methods are safe for concurrent use. Callbacks run
// without the scheduler's lock held.
type ManualScheduler struct {
	mu     sync.Mutex
	now    time.Duration
	nextID int
	timers []*manualTimer
}

// NewManualScheduler creates a scheduler at virtual time zero.
func NewManualScheduler() *ManualScheduler {
	return &ManualScheduler{}
}

type manualTimer struct {
	s        *ManualScheduler
	id       int
	deadline time.Duration
	fn       func()
	stopped  bool
	fired    bool
}

// Stop cancels the timer. Returns false if it already fired or was stopped.
func (t *manualTimer) Stop() bool {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// AfterFunc implements selection.Scheduler.
func (s *ManualScheduler) AfterFunc(d time.Duration, fn func()) selection.Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	t := &manualTimer{s: s, id: s.nextID, deadline: s.now + d, fn: fn}
	s.timers = append(s.timers, t)
	return t
}

// Advance moves virtual time forward by d and fires every timer whose
// deadline has been reached.
func (s *ManualScheduler) Advance(d time.Duration) {
	s.mu.Lock()
	s.now += d
	now := s.now

	var due, keep []*manualTimer
	for _, t := range s.timers {
		switch {
		case t.stopped:
		case t.deadline <= now:
			t.fired = true
			due = append(due, t)
		default:
			keep = append(keep, t)
		}
	}
	s.timers = keep
	s.mu.Unlock()

	sort.SliceStable(due, func(i, j int) bool {
		if due[i].deadline != due[j].deadline {
			return due[i].deadline < due[j].deadline
		}
		return due[i].id < due[j].id
	})
	for _, t := range due {
		t.fn()
	}
}

// Pending returns the number of timers that have neither fired nor been
// stopped.
func (s *ManualScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.timers {
		if !t.stopped {
			n++
		}
	}
	return n
}

// Now returns the elapsed virtual time.
func (s *ManualScheduler) Now() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}
