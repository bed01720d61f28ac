package engine

import "sync/atomic"

// Sequencer hands out strictly increasing sequence numbers.
// Implemented by Clock; tests may supply a resettable clock.
type Sequencer interface {
	Next() int64
}

// Clock is a monotonic logical clock for progress events.
//
// Every Progress event is stamped with a strictly increasing seq from this
// clock. Ordering never depends on wall-clock time, so two runs of the same
// scripted scenario produce identical traces.
//
// Clock is safe for concurrent use, although only the orchestrator loop
// calls Next in practice.
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a new clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a new clock starting at a specific sequence number.
// Used to continue numbering after the last event stored in a run log.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next returns the next sequence number and increments the clock.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the current sequence number without incrementing.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
