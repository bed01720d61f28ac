package engine

import (
	"github.com/roach88/routegen/internal/decompose"
	"github.com/roach88/routegen/internal/model"
)

// ProgressKind identifies a progress notification.
type ProgressKind string

const (
	ProgressRunStarted         ProgressKind = "run_started"
	ProgressState              ProgressKind = "state"
	ProgressDirectionsStarted  ProgressKind = "directions_started"
	ProgressDirectionsFinished ProgressKind = "directions_finished"
	ProgressJobStarted         ProgressKind = "job_started"
	ProgressJobFinished        ProgressKind = "job_finished"
	ProgressCancelRequested    ProgressKind = "cancel_requested"
	ProgressRunFinished        ProgressKind = "run_finished"
)

// Progress is a notification emitted by the orchestrator loop.
//
// Seq comes from the orchestrator's logical clock and strictly increases
// across all notifications of one orchestrator. Fields irrelevant to Kind
// are left zero.
type Progress struct {
	RunID string
	Seq   int64
	Kind  ProgressKind
	State State

	// Request summary (run_started).
	RequestHash string
	Scope       model.Scope
	TemplateIDs []string
	JobCount    int
	Excluded    []decompose.Exclusion

	// Directions group (directions_*).
	ScheduleID string
	RouteIDs   []string

	// Artifact job (job_*).
	JobID   string
	JobName string
	JobKind model.JobKind

	// Result of a finished job, directions group or run.
	Status    Status
	Error     string
	Artifacts []model.ArtifactDescriptor
}

// Listener receives progress notifications.
//
// OnProgress is called synchronously from the orchestrator loop goroutine,
// one notification at a time, in Seq order. It may call Cancel but must not
// call Wait on the same orchestrator.
type Listener interface {
	OnProgress(p Progress)
}

// ListenerFunc adapts a function to the Listener interface.
type ListenerFunc func(p Progress)

// OnProgress calls f(p).
func (f ListenerFunc) OnProgress(p Progress) {
	f(p)
}

// Detail returns the kind-specific fields of p as a canonical-JSON-ready
// map. RunID, Seq, Kind and State are not included.
func (p Progress) Detail() map[string]any {
	d := map[string]any{}
	switch p.Kind {
	case ProgressRunStarted:
		d["request_hash"] = p.RequestHash
		d["scope"] = p.Scope.String()
		d["templates"] = append([]string{}, p.TemplateIDs...)
		d["jobs"] = p.JobCount
		if len(p.Excluded) > 0 {
			excluded := make([]string, len(p.Excluded))
			for i, e := range p.Excluded {
				excluded[i] = e.TemplateID
			}
			d["excluded"] = excluded
		}
	case ProgressDirectionsStarted, ProgressDirectionsFinished:
		d["schedule"] = p.ScheduleID
		d["routes"] = append([]string{}, p.RouteIDs...)
	case ProgressJobStarted, ProgressJobFinished:
		d["job_id"] = p.JobID
		d["job"] = p.JobName
		d["job_kind"] = string(p.JobKind)
	}
	if p.Status != "" {
		d["status"] = string(p.Status)
	}
	if p.Error != "" {
		d["error"] = p.Error
	}
	if len(p.Artifacts) > 0 {
		names := make([]string, len(p.Artifacts))
		for i, a := range p.Artifacts {
			names[i] = a.Name
		}
		d["artifacts"] = names
	}
	return d
}
