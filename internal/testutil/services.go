package testutil

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/roach88/routegen/internal/model"
)

// Service names recorded in Call.
const (
	ServiceDirections = "directions"
	ServiceBuild      = "build"
)

// Call records one invocation of a scripted service.
type Call struct {
	Service     string
	ScheduleID  string
	JobName     string
	TemplateIDs []string
	RouteIDs    []string

	// SubTemplates maps template IDs to the sub-template IDs a build call
	// received.
	SubTemplates map[string][]string
}

// CallLog records service calls and tracks how many overlap.
// It is shared by the scripted directions service and builder so overlap
// across both services is visible too.
type CallLog struct {
	mu          sync.Mutex
	calls       []Call
	inFlight    int
	maxInFlight int
}

func (l *CallLog) enter(c Call) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, c)
	l.inFlight++
	if l.inFlight > l.maxInFlight {
		l.maxInFlight = l.inFlight
	}
}

func (l *CallLog) exit() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.inFlight--
}

// Calls returns a copy of the recorded calls in call order.
func (l *CallLog) Calls() []Call {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Call(nil), l.calls...)
}

// Count returns the number of calls made to service.
func (l *CallLog) Count(service string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, c := range l.calls {
		if c.Service == service {
			n++
		}
	}
	return n
}

// MaxInFlight returns the highest number of overlapping calls observed.
func (l *CallLog) MaxInFlight() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.maxInFlight
}

// Action scripts the behaviour of a service call.
type Action string

const (
	// ActionFail makes the call return an error.
	ActionFail Action = "fail"
	// ActionCancel makes the call request cancellation through Cancel and
	// then block until its context is cancelled.
	ActionCancel Action = "cancel"
)

// DirectionsRule scripts the call for one schedule's backlog group.
type DirectionsRule struct {
	ScheduleID string
	Action     Action
	Message    string
}

// ScriptedDirections is a directions service driven by rules.
// Calls without a matching rule succeed.
type ScriptedDirections struct {
	Log    *CallLog
	Rules  []DirectionsRule
	Cancel func() bool
}

// ComputeDirections implements engine.DirectionsService.
func (d *ScriptedDirections) ComputeDirections(ctx context.Context, group model.BacklogGroup) error {
	d.Log.enter(Call{Service: ServiceDirections, ScheduleID: group.ScheduleID, RouteIDs: group.RouteIDs()})
	defer d.Log.exit()

	for _, r := range d.Rules {
		if r.ScheduleID != group.ScheduleID {
			continue
		}
		return perform(ctx, r.Action, r.Message, d.Cancel)
	}
	return nil
}

// BuildRule scripts the call of jobs containing TemplateID. If RouteID is
// set, only the serialized job for that route matches.
type BuildRule struct {
	TemplateID string
	RouteID    string
	Action     Action
	Message    string
}

func (r BuildRule) matches(job model.GenerationJob) bool {
	if !slices.Contains(job.TemplateIDs(), r.TemplateID) {
		return false
	}
	if r.RouteID == "" {
		return true
	}
	ids := job.RouteIDs()
	return len(ids) == 1 && ids[0] == r.RouteID
}

// ScriptedBuilder is an artifact builder driven by rules. Calls without a
// matching rule return one artifact per planned output, referenced as
// "mem://<name>".
type ScriptedBuilder struct {
	Log    *CallLog
	Rules  []BuildRule
	Cancel func() bool
}

// Build implements engine.ArtifactBuilder.
func (b *ScriptedBuilder) Build(ctx context.Context, job model.GenerationJob) ([]model.ArtifactDescriptor, error) {
	b.Log.enter(Call{
		Service:      ServiceBuild,
		JobName:      job.Name,
		TemplateIDs:  job.TemplateIDs(),
		RouteIDs:     job.RouteIDs(),
		SubTemplates: subTemplates(job),
	})
	defer b.Log.exit()

	for _, r := range b.Rules {
		if !r.matches(job) {
			continue
		}
		if err := perform(ctx, r.Action, r.Message, b.Cancel); err != nil {
			return nil, err
		}
	}

	artifacts := make([]model.ArtifactDescriptor, len(job.Outputs))
	for i, out := range job.Outputs {
		artifacts[i] = model.ArtifactDescriptor{
			Name:       out.Name,
			TemplateID: out.TemplateID,
			Ref:        "mem://" + out.Name,
		}
	}
	return artifacts, nil
}

func subTemplates(job model.GenerationJob) map[string][]string {
	out := make(map[string][]string, len(job.Templates))
	for _, t := range job.Templates {
		ids := make([]string, len(t.SubTemplates))
		for i, st := range t.SubTemplates {
			ids[i] = st.ID
		}
		out[t.ID] = ids
	}
	return out
}

func perform(ctx context.Context, action Action, message string, cancel func() bool) error {
	switch action {
	case ActionFail:
		if message == "" {
			message = "scripted failure"
		}
		return errors.New(message)
	case ActionCancel:
		if cancel != nil {
			cancel()
		}
		<-ctx.Done()
		return ctx.Err()
	default:
		return nil
	}
}
