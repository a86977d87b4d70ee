package testutil

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeterministicClock_Sequence(t *testing.T) {
	tests := []struct {
		name  string
		clock *DeterministicClock
		want  []int64
	}{
		{"fresh", NewDeterministicClock(), []int64{1, 2, 3}},
		{"resumed", NewDeterministicClockAt(41), []int64{42, 43, 44}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []int64
			for range tt.want {
				got = append(got, tt.clock.Next())
			}
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.want[len(tt.want)-1], tt.clock.Current())
		})
	}
}

func TestDeterministicClock_ResetReplaysSameSeqs(t *testing.T) {
	clock := NewDeterministicClock()
	first := []int64{clock.Next(), clock.Next()}

	clock.Reset()
	assert.Equal(t, int64(0), clock.Current())
	assert.Equal(t, first, []int64{clock.Next(), clock.Next()})
}

// Outbound frames are stamped on caller goroutines while inbound frames are
// stamped on the loop; no seq may be issued twice.
func TestDeterministicClock_ConcurrentStampsAreUnique(t *testing.T) {
	clock := NewDeterministicClock()
	const writers, frames = 8, 250

	seen := make(chan int64, writers*frames)
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < frames; j++ {
				seen <- clock.Next()
			}
		}()
	}
	wg.Wait()
	close(seen)

	unique := make(map[int64]struct{}, writers*frames)
	for seq := range seen {
		unique[seq] = struct{}{}
	}
	assert.Len(t, unique, writers*frames)
	assert.Equal(t, int64(writers*frames), clock.Current())
}
