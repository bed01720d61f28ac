package engine

import (
	"sync"

	"github.com/roach88/routegen/internal/runner"
)

// EventType distinguishes between event kinds.
type EventType int

const (
	// EventTypeStart begins a submitted run.
	EventTypeStart EventType = iota + 1
	// EventTypeDirectionsDone carries the result of a directions computation.
	EventTypeDirectionsDone
	// EventTypeJobDone carries the result of an artifact build.
	EventTypeJobDone
	// EventTypeCancel is a caller cancel request.
	EventTypeCancel
)

func (t EventType) String() string {
	switch t {
	case EventTypeStart:
		return "start"
	case EventTypeDirectionsDone:
		return "directions_done"
	case EventTypeJobDone:
		return "job_done"
	case EventTypeCancel:
		return "cancel"
	default:
		return "unknown"
	}
}

// Event is one input to the orchestrator loop. Result is set for
// completion events only.
type Event struct {
	Type   EventType
	Result runner.Result
}

// eventQueue is a thread-safe FIFO queue for events.
//
// Runner callbacks and Cancel enqueue from their own goroutines while the
// orchestrator loop dequeues. The queue uses a channel for signaling so the
// loop can wait on it together with the submit context.
type eventQueue struct {
	mu     sync.Mutex
	events []Event
	closed bool
	signal chan struct{} // buffered, size 1
}

func newEventQueue() *eventQueue {
	return &eventQueue{
		events: make([]Event, 0, 8),
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

	// Nil out the slot so the backing array doesn't retain artifact slices.
	q.events[0] = Event{}

	if len(q.events) == 1 {
		q.events = q.events[:0]
	} else {
		q.events = q.events[1:]
	}

	return e, true
}

// Wait returns a channel that signals when events may be available.
// The channel is closed by Close.
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
func (q *eventQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.closed = true
	close(q.signal)
}
