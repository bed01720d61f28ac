package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/routegen/internal/engine"
)

var _ engine.Sequencer = (*DeterministicClock)(nil)

func TestDeterministicClock_ResetRewindsToStart(t *testing.T) {
	tests := []struct {
		name  string
		clock *DeterministicClock
		start int64
	}{
		{"zero", NewDeterministicClock(), 0},
		{"offset", NewDeterministicClockAt(40), 40},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := tt.clock
			assert.Equal(t, tt.start, c.Current())
			for i := int64(1); i <= 3; i++ {
				assert.Equal(t, tt.start+i, c.Next())
			}
			assert.Equal(t, tt.start+3, c.Current())

			c.Reset()
			assert.Equal(t, tt.start, c.Current())
			assert.Equal(t, tt.start+1, c.Next())
		})
	}
}

// Two scenarios run back to back in one process number their traces alike.
func TestDeterministicClock_RepeatableAfterReset(t *testing.T) {
	c := NewDeterministicClock()

	first := make([]int64, 0, 10)
	for range 10 {
		first = append(first, c.Next())
	}
	c.Reset()
	for i := range 10 {
		assert.Equal(t, first[i], c.Next())
	}
}

func TestDeterministicClock_ConcurrentNext(t *testing.T) {
	c := NewDeterministicClock()
	const n = 64

	done := make(chan int64, n)
	for range n {
		go func() { done <- c.Next() }()
	}

	seen := make(map[int64]bool, n)
	for range n {
		seen[<-done] = true
	}
	assert.Len(t, seen, n)
	assert.Equal(t, int64(n), c.Current())
}
