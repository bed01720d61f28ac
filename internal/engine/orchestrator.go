package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/roach88/routegen/internal/aggregate"
	"github.com/roach88/routegen/internal/decompose"
	"github.com/roach88/routegen/internal/model"
	"github.com/roach88/routegen/internal/prereq"
	"github.com/roach88/routegen/internal/runner"
)

// ErrNoRun is returned by Wait before any request was submitted.
var ErrNoRun = errors.New("engine: no run submitted")

// DirectionsService computes driving directions for one backlog group.
//
// It must return once ctx is cancelled. Persisting the computed geometry is
// the service's concern; the orchestrator only reads route state.
type DirectionsService interface {
	ComputeDirections(ctx context.Context, group model.BacklogGroup) error
}

// ArtifactBuilder produces one artifact per template of a job.
//
// The same call serves batch and serialized jobs; only the number of
// templates and routes differs. It must return once ctx is cancelled.
type ArtifactBuilder interface {
	Build(ctx context.Context, job model.GenerationJob) ([]model.ArtifactDescriptor, error)
}

// Orchestrator is the generation state machine.
//
// Each submitted request is driven by a single loop goroutine that consumes
// events (start, runner completions, cancel requests) from a FIFO queue and
// advances the state machine one transition at a time. All run state is
// owned by that goroutine. Exactly one runner operation is in flight while
// a run is active.
//
// Thread-safety model:
//   - Submit, Cancel, State, Wait: safe from any goroutine
//   - Listener and done callbacks: invoked from the loop goroutine
//
// An Orchestrator runs one request at a time. Submitting while a run is
// active fails with ErrCodeBusy; independent generations need separate
// Orchestrator instances.
type Orchestrator struct {
	directions DirectionsService
	builder    ArtifactBuilder
	runner     *runner.Runner
	clock      Sequencer
	ids        RunIDGenerator
	logger     *slog.Logger
	listeners  []Listener
	maxJobs    int

	state atomic.Int32

	mu     sync.Mutex
	active *run
	last   *run
}

// run is the state of one submitted request. Only the loop goroutine
// touches it after Submit returns, except finished and outcome.
type run struct {
	id    string
	ctx   context.Context
	req   model.GenerationRequest
	plan  *decompose.Plan
	agg   *aggregate.Aggregator
	quota *QuotaEnforcer
	queue *eventQueue
	done  func(Outcome)

	// callsBefore is the runner's started count when the run was submitted.
	callsBefore int

	state   State
	backlog *model.DirectionsBacklog
	group   model.BacklogGroup
	job     model.GenerationJob

	// pending is true between starting a runner operation and handling its
	// completion event.
	pending         bool
	cancelRequested bool
	terminal        bool

	finished chan struct{}
	outcome  Outcome
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMaxJobs sets the maximum number of artifact jobs per run.
//
// Default: 1000 (DefaultMaxJobs). A value <= 0 disables the quota.
func WithMaxJobs(n int) Option {
	return func(o *Orchestrator) {
		o.maxJobs = n
	}
}

// WithListener registers a progress listener. May be given more than once.
func WithListener(l Listener) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.listeners = append(o.listeners, l)
		}
	}
}

// WithRunIDGenerator sets the run ID source. Default: UUIDv7Generator.
func WithRunIDGenerator(g RunIDGenerator) Option {
	return func(o *Orchestrator) {
		if g != nil {
			o.ids = g
		}
	}
}

// WithClock sets the logical clock used to stamp progress events.
// Default: a fresh Clock starting at 0.
func WithClock(c Sequencer) Option {
	return func(o *Orchestrator) {
		if c != nil {
			o.clock = c
		}
	}
}

// New creates an idle Orchestrator over the given services.
func New(directions DirectionsService, builder ArtifactBuilder, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		directions: directions,
		builder:    builder,
		runner:     runner.New(),
		clock:      NewClock(),
		ids:        UUIDv7Generator{},
		logger:     slog.Default(),
		maxJobs:    DefaultMaxJobs,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// State returns the current state of the state machine.
func (o *Orchestrator) State() State {
	return State(o.state.Load())
}

// MaxInFlight returns the highest number of simultaneously running service
// calls observed over the orchestrator's lifetime. It never exceeds 1.
func (o *Orchestrator) MaxInFlight() int {
	return o.runner.MaxInFlight()
}

// ActiveRunID returns the ID of the run in progress, or "".
func (o *Orchestrator) ActiveRunID() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.active == nil {
		return ""
	}
	return o.active.id
}

// Submit validates req and starts generating it asynchronously.
//
// Validation and decomposition happen before Submit returns: an invalid
// request, a request exceeding the job quota, or a submission while another
// run is active fails synchronously and creates no run. On success Submit
// returns the run ID and done (if non-nil) is later called exactly once with
// the terminal Outcome.
//
// The request is deep-copied; later changes to req do not affect the run.
// Cancelling ctx has the same effect as calling Cancel. A nil ctx is
// treated as context.Background().
func (o *Orchestrator) Submit(ctx context.Context, req model.GenerationRequest, done func(Outcome)) (string, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.active != nil {
		return "", NewBusyError(o.active.id)
	}

	req = req.Clone()
	plan, err := decompose.Decompose(req)
	if err != nil {
		o.logger.Info("generation request rejected", "error", err)
		return "", NewInvalidRequestError(err)
	}

	quota := NewQuotaEnforcer(o.maxJobs)
	if err := quota.Admit("", plan.JobCount()); err != nil {
		var je *JobsExceededError
		errors.As(err, &je)
		o.logger.Info("generation request rejected", "error", err)
		return "", NewQuotaError(je)
	}

	r := &run{
		id:       o.ids.Generate(),
		ctx:      ctx,
		req:      req,
		plan:     plan,
		agg:      aggregate.New(req.TemplateIDs()),
		quota:    quota,
		queue:    newEventQueue(),
		done:     done,
		finished: make(chan struct{}),

		callsBefore: o.runner.Started(),
	}
	o.active = r
	o.last = r
	o.state.Store(int32(StateIdle))

	r.queue.Enqueue(Event{Type: EventTypeStart})
	go o.loop(r)

	return r.id, nil
}

// Cancel requests cancellation of the active run.
//
// The request is forwarded to the in-flight service call and no further
// jobs are started. Artifacts already produced are kept and reported in the
// Outcome, whose status is StatusCancelled. Returns false if no run is active.
func (o *Orchestrator) Cancel() bool {
	o.mu.Lock()
	r := o.active
	o.mu.Unlock()

	if r == nil {
		return false
	}
	return r.queue.Enqueue(Event{Type: EventTypeCancel})
}

// Wait blocks until the most recently submitted run is terminal and returns
// its Outcome. It must not be called from a Listener or done callback.
func (o *Orchestrator) Wait(ctx context.Context) (Outcome, error) {
	o.mu.Lock()
	r := o.last
	o.mu.Unlock()

	if r == nil {
		return Outcome{}, ErrNoRun
	}
	select {
	case <-r.finished:
		return r.outcome, nil
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
}

// loop is the single-writer event loop of one run.
func (o *Orchestrator) loop(r *run) {
	ctxDone := r.ctx.Done()
	for {
		if ev, ok := r.queue.TryDequeue(); ok {
			o.handle(r, ev)
			if r.terminal {
				return
			}
			continue
		}

		select {
		case <-ctxDone:
			// Caller context cancelled: treat like Cancel, once.
			ctxDone = nil
			r.queue.Enqueue(Event{Type: EventTypeCancel})
		case <-r.queue.Wait():
		}
	}
}

func (o *Orchestrator) handle(r *run, ev Event) {
	switch ev.Type {
	case EventTypeStart:
		o.start(r)
	case EventTypeDirectionsDone:
		r.pending = false
		o.directionsDone(r, ev.Result)
	case EventTypeJobDone:
		r.pending = false
		o.jobDone(r, ev.Result)
	case EventTypeCancel:
		o.cancel(r)
	default:
		o.logger.Error("unknown orchestrator event", "run_id", r.id, "type", ev.Type)
	}
}

func (o *Orchestrator) start(r *run) {
	hash, err := model.RequestHash(r.req)
	if err != nil {
		o.logger.Warn("request hash unavailable", "run_id", r.id, "error", err)
	}
	o.emit(r, Progress{
		Kind:        ProgressRunStarted,
		RequestHash: hash,
		Scope:       r.req.Scope(),
		TemplateIDs: r.req.TemplateIDs(),
		JobCount:    r.plan.JobCount(),
		Excluded:    slices.Clone(r.plan.Excluded),
	})
	o.logger.Info("generation started",
		"run_id", r.id,
		"scope", r.req.Scope(),
		"templates", len(r.req.Templates),
		"jobs", r.plan.JobCount())
	for _, e := range r.plan.Excluded {
		o.logger.Info("template excluded", "run_id", r.id, "template_id", e.TemplateID, "reason", e.Reason)
	}

	o.transition(r, StateResolvingPrerequisites)
	r.backlog = prereq.ForRequest(r.req)
	if !r.backlog.Empty() {
		o.logger.Debug("routes missing directions",
			"run_id", r.id,
			"groups", r.backlog.Len(),
			"routes", r.backlog.RouteCount())
	}
	o.nextDirections(r)
}

// nextDirections issues one directions job for the first backlog group, or
// dispatches artifact jobs once the backlog is empty.
func (o *Orchestrator) nextDirections(r *run) {
	group, ok := r.backlog.Front()
	if !ok {
		o.dispatch(r)
		return
	}

	o.transition(r, StateGeneratingDirections)
	r.group = group
	o.emit(r, Progress{
		Kind:       ProgressDirectionsStarted,
		ScheduleID: group.ScheduleID,
		RouteIDs:   group.RouteIDs(),
	})

	err := o.startOp(r, EventTypeDirectionsDone, func(ctx context.Context) ([]model.ArtifactDescriptor, error) {
		return nil, o.directions.ComputeDirections(ctx, group)
	})
	if err != nil {
		o.finish(r, StatusFailed, o.prerequisiteError(r, group, err))
	}
}

func (o *Orchestrator) directionsDone(r *run, res runner.Result) {
	group := r.group
	r.group = model.BacklogGroup{}

	finished := Progress{
		Kind:       ProgressDirectionsFinished,
		ScheduleID: group.ScheduleID,
		RouteIDs:   group.RouteIDs(),
	}

	switch res.Status {
	case runner.StatusCompleted:
		r.backlog.PopFront()
		finished.Status = StatusCompleted
		o.emit(r, finished)
		if r.cancelRequested {
			o.finish(r, StatusCancelled, nil)
			return
		}
		o.nextDirections(r)

	case runner.StatusCancelled:
		finished.Status = StatusCancelled
		o.emit(r, finished)
		o.finish(r, StatusCancelled, nil)

	default:
		finished.Status = StatusFailed
		finished.Error = res.Err.Error()
		o.emit(r, finished)
		o.finish(r, StatusFailed, o.prerequisiteError(r, group, res.Err))
	}
}

// dispatch runs the batch job first, then the serialized queue.
func (o *Orchestrator) dispatch(r *run) {
	o.transition(r, StateDispatching)
	if r.plan.Batch != nil {
		o.startJob(r, *r.plan.Batch, StateBatchInFlight)
		return
	}
	o.nextQueued(r)
}

func (o *Orchestrator) nextQueued(r *run) {
	job, ok := r.plan.Queue.Pop()
	if !ok {
		o.finish(r, StatusCompleted, nil)
		return
	}
	o.startJob(r, job, StateSerializedInFlight)
}

func (o *Orchestrator) startJob(r *run, job model.GenerationJob, state State) {
	if err := r.quota.Check(r.id); err != nil {
		var je *JobsExceededError
		errors.As(err, &je)
		o.finish(r, StatusFailed, NewQuotaError(je))
		return
	}

	o.transition(r, state)
	r.job = job
	o.emit(r, Progress{
		Kind:     ProgressJobStarted,
		JobID:    job.ID,
		JobName:  job.Name,
		JobKind:  job.Kind,
		RouteIDs: job.RouteIDs(),
	})

	err := o.startOp(r, EventTypeJobDone, func(ctx context.Context) ([]model.ArtifactDescriptor, error) {
		return o.builder.Build(ctx, job)
	})
	if err != nil {
		o.finish(r, StatusFailed, o.buildError(r, job, err))
	}
}

func (o *Orchestrator) jobDone(r *run, res runner.Result) {
	job := r.job
	r.job = model.GenerationJob{}

	finished := Progress{
		Kind:     ProgressJobFinished,
		JobID:    job.ID,
		JobName:  job.Name,
		JobKind:  job.Kind,
		RouteIDs: job.RouteIDs(),
	}

	switch res.Status {
	case runner.StatusCompleted:
		artifacts, err := attribute(job, res.Artifacts)
		if err != nil {
			finished.Status = StatusFailed
			finished.Error = err.Error()
			o.emit(r, finished)
			o.finish(r, StatusFailed, o.buildError(r, job, err))
			return
		}
		r.agg.Add(artifacts...)
		finished.Status = StatusCompleted
		finished.Artifacts = artifacts
		o.emit(r, finished)

		// A job that returned before the cancel reached it is kept.
		if r.cancelRequested {
			o.finish(r, StatusCancelled, nil)
			return
		}
		o.nextQueued(r)

	case runner.StatusCancelled:
		finished.Status = StatusCancelled
		o.emit(r, finished)
		o.finish(r, StatusCancelled, nil)

	default:
		finished.Status = StatusFailed
		finished.Error = res.Err.Error()
		o.emit(r, finished)
		o.finish(r, StatusFailed, o.buildError(r, job, res.Err))
	}
}

func (o *Orchestrator) cancel(r *run) {
	if r.terminal || r.cancelRequested {
		return
	}
	r.cancelRequested = true
	o.emit(r, Progress{Kind: ProgressCancelRequested})
	o.logger.Info("generation cancel requested", "run_id", r.id, "state", r.state)

	if !r.pending {
		o.finish(r, StatusCancelled, nil)
		return
	}
	// If the operation already returned, its completion event is queued
	// and stops the run once handled.
	o.runner.Cancel()
}

func (o *Orchestrator) startOp(r *run, evType EventType, op runner.Operation) error {
	queue := r.queue
	err := o.runner.Run(r.ctx, op, func(res runner.Result) {
		queue.Enqueue(Event{Type: evType, Result: res})
	})
	if err != nil {
		return err
	}
	r.pending = true
	return nil
}

// finish moves the run to its terminal state and delivers the Outcome.
func (o *Orchestrator) finish(r *run, status Status, err error) {
	switch status {
	case StatusCompleted:
		o.transition(r, StateAggregating)
		o.transition(r, StateDone)
	case StatusCancelled:
		o.transition(r, StateCancelled)
	default:
		o.transition(r, StateFailed)
	}

	r.terminal = true
	r.outcome = Outcome{
		RunID:     r.id,
		Status:    status,
		Artifacts: r.agg.Ordered(),
		Err:       err,
	}

	p := Progress{Kind: ProgressRunFinished, Status: status, Artifacts: r.outcome.Artifacts}
	if err != nil {
		p.Error = err.Error()
	}
	o.emit(r, p)

	attrs := []any{
		"run_id", r.id,
		"artifacts", len(r.outcome.Artifacts),
		"jobs_started", r.quota.Current(),
		"job_limit", r.quota.MaxJobs(),
		"service_calls", o.runner.Started() - r.callsBefore,
	}
	switch status {
	case StatusFailed:
		o.logger.Error("generation failed", append(attrs, "error", err)...)
	default:
		o.logger.Info("generation finished", append(attrs, "status", status)...)
	}

	r.queue.Close()

	o.mu.Lock()
	if o.active == r {
		o.active = nil
	}
	o.mu.Unlock()

	if r.done != nil {
		r.done(r.outcome)
	}
	close(r.finished)
}

func (o *Orchestrator) transition(r *run, next State) {
	prev := r.state
	r.state = next
	o.state.Store(int32(next))
	o.logger.Debug("generation state transition", "run_id", r.id, "from", prev, "to", next)
	o.emit(r, Progress{Kind: ProgressState})
}

func (o *Orchestrator) emit(r *run, p Progress) {
	p.RunID = r.id
	p.Seq = o.clock.Next()
	p.State = r.state
	for _, l := range o.listeners {
		l.OnProgress(p)
	}
}

func (o *Orchestrator) prerequisiteError(r *run, group model.BacklogGroup, err error) *GenerationError {
	return &GenerationError{
		Code:       ErrCodePrerequisiteFailed,
		Message:    "directions computation failed",
		RunID:      r.id,
		ScheduleID: group.ScheduleID,
		RouteIDs:   group.RouteIDs(),
		Err:        err,
	}
}

func (o *Orchestrator) buildError(r *run, job model.GenerationJob, err error) *GenerationError {
	return &GenerationError{
		Code:        ErrCodeBuildFailed,
		Message:     "artifact job failed",
		RunID:       r.id,
		Job:         job.Name,
		JobID:       job.ID,
		RouteIDs:    job.RouteIDs(),
		TemplateIDs: job.TemplateIDs(),
		Err:         err,
	}
}

// attribute stamps each artifact with its job and checks it belongs to one
// of the job's templates. A single-template job may omit the template ID,
// and a missing name is taken from the job's planned output name.
func attribute(job model.GenerationJob, artifacts []model.ArtifactDescriptor) ([]model.ArtifactDescriptor, error) {
	out := make([]model.ArtifactDescriptor, len(artifacts))
	for i, a := range artifacts {
		if a.TemplateID == "" {
			if len(job.Templates) != 1 {
				return nil, fmt.Errorf("artifact %q has no template id", a.Name)
			}
			a.TemplateID = job.Templates[0].ID
		}
		idx := slices.IndexFunc(job.Outputs, func(jo model.JobOutput) bool {
			return jo.TemplateID == a.TemplateID
		})
		if idx < 0 {
			return nil, fmt.Errorf("artifact %q is for template %q, which is not part of the job", a.Name, a.TemplateID)
		}
		if a.Name == "" {
			a.Name = job.Outputs[idx].Name
		}
		a.JobID = job.ID
		out[i] = a
	}
	return out, nil
}
