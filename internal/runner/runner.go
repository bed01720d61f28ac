// Package runner wraps a single outstanding asynchronous operation.
//
// A Runner starts an operation in its own goroutine and reports exactly one
// terminal Result per started operation through the done callback: Completed,
// Cancelled or Failed. At most one operation is in flight per Runner.
//
// Cancellation is cooperative. Cancel cancels the operation's context and
// marks the operation as cancelled; whatever the operation returns after
// that point is reported as Cancelled. An operation that already returned
// is not affected, and no second callback is ever delivered.
package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/roach88/routegen/internal/model"
)

// ErrBusy is returned by Run when an operation is already in flight.
var ErrBusy = errors.New("runner: operation already in flight")

// Status is the terminal status of an operation.
type Status int

const (
	StatusCompleted Status = iota + 1
	StatusCancelled
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusCompleted:
		return "completed"
	case StatusCancelled:
		return "cancelled"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Result is the single terminal report of an operation.
// Artifacts is only set for StatusCompleted, Err only for StatusFailed.
type Result struct {
	Status    Status
	Artifacts []model.ArtifactDescriptor
	Err       error
}

// Operation is the long-running call being wrapped. It must return once ctx
// is cancelled.
type Operation func(ctx context.Context) ([]model.ArtifactDescriptor, error)

// Runner runs at most one Operation at a time.
//
// Thread-safety: all methods are safe for concurrent use.
type Runner struct {
	mu              sync.Mutex
	inFlight        int
	maxInFlight     int
	started         int
	cancel          context.CancelFunc
	cancelRequested bool
}

// New creates an idle Runner.
func New() *Runner {
	return &Runner{}
}

// Run starts op in a new goroutine and returns immediately.
//
// done is called exactly once, from the operation's goroutine, after the
// Runner has become idle again, so done may start the next operation.
// Returns ErrBusy without calling done if an operation is already in flight.
func (r *Runner) Run(ctx context.Context, op Operation, done func(Result)) error {
	if op == nil || done == nil {
		return errors.New("runner: op and done are required")
	}

	r.mu.Lock()
	if r.inFlight > 0 {
		r.mu.Unlock()
		return ErrBusy
	}
	opCtx, cancel := context.WithCancel(ctx)
	r.inFlight++
	if r.inFlight > r.maxInFlight {
		r.maxInFlight = r.inFlight
	}
	r.started++
	r.cancel = cancel
	r.cancelRequested = false
	r.mu.Unlock()

	go func() {
		artifacts, err := invoke(opCtx, op)
		done(r.finish(opCtx, artifacts, err))
	}()
	return nil
}

// invoke calls op, turning a panic into an error so done is still delivered.
func invoke(ctx context.Context, op Operation) (artifacts []model.ArtifactDescriptor, err error) {
	defer func() {
		if p := recover(); p != nil {
			artifacts = nil
			err = fmt.Errorf("runner: operation panicked: %v", p)
		}
	}()
	return op(ctx)
}

func (r *Runner) finish(opCtx context.Context, artifacts []model.ArtifactDescriptor, err error) Result {
	r.mu.Lock()
	cancelled := r.cancelRequested
	cancel := r.cancel
	r.inFlight--
	r.cancel = nil
	r.cancelRequested = false
	r.mu.Unlock()

	// Parent context cancellation counts as a cancel request too.
	if !cancelled && err != nil && opCtx.Err() != nil && errors.Is(err, opCtx.Err()) {
		cancelled = true
	}
	cancel()

	switch {
	case cancelled:
		return Result{Status: StatusCancelled}
	case err != nil:
		return Result{Status: StatusFailed, Err: err}
	default:
		return Result{Status: StatusCompleted, Artifacts: artifacts}
	}
}

// Cancel forwards a cancel request to the in-flight operation.
// Returns false if nothing is in flight.
func (r *Runner) Cancel() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.inFlight == 0 || r.cancel == nil {
		return false
	}
	r.cancelRequested = true
	r.cancel()
	return true
}

// InFlight returns the number of operations currently running (0 or 1).
func (r *Runner) InFlight() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.inFlight
}

// MaxInFlight returns the highest in-flight count observed.
func (r *Runner) MaxInFlight() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.maxInFlight
}

// Started returns the number of operations started so far.
func (r *Runner) Started() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.started
}
