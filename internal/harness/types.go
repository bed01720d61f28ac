package harness

import (
	"github.com/roach88/routegen/internal/engine"
	"github.com/roach88/routegen/internal/model"
)

// Outcome status values. StatusRejected marks a request that Submit refused,
// so no run was created.
const (
	StatusCompleted = string(engine.StatusCompleted)
	StatusCancelled = string(engine.StatusCancelled)
	StatusFailed    = string(engine.StatusFailed)
	StatusRejected  = "rejected"
)

// TraceEvent is one progress notification of the run, in emission order.
type TraceEvent struct {
	Seq    int64          `json:"seq"`
	Kind   string         `json:"kind"`
	State  string         `json:"state"`
	Detail map[string]any `json:"detail,omitempty"`
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if the expectation and all assertions hold.
	Pass bool `json:"pass"`

	// RunID is empty when the request was rejected.
	RunID string `json:"run_id,omitempty"`

	// Status is one of completed, cancelled, failed or rejected.
	Status string `json:"status"`

	// ErrorCode is the GenerationError code of a failed or rejected run.
	ErrorCode string `json:"error_code,omitempty"`

	// Error is the terminal error message, if any.
	Error string `json:"error,omitempty"`

	// Artifacts are the aggregated artifacts in template order.
	Artifacts []model.ArtifactDescriptor `json:"artifacts,omitempty"`

	// Trace contains every progress notification in order.
	Trace []TraceEvent `json:"trace"`

	// MaxInFlight is the highest number of overlapping service calls.
	MaxInFlight int `json:"max_in_flight"`

	// DirectionsCalls and BuildCalls count service invocations.
	DirectionsCalls int `json:"directions_calls"`
	BuildCalls      int `json:"build_calls"`

	// SubTemplates maps template IDs to the sub-template IDs the builder
	// received for them, taken from the first build call carrying the template.
	SubTemplates map[string][]string `json:"sub_templates,omitempty"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:         true,
		Trace:        []TraceEvent{},
		Errors:       []string{},
		SubTemplates: make(map[string][]string),
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddProgress appends a progress notification to the trace.
func (r *Result) AddProgress(p engine.Progress) {
	r.Trace = append(r.Trace, TraceEvent{
		Seq:    p.Seq,
		Kind:   string(p.Kind),
		State:  p.State.String(),
		Detail: p.Detail(),
	})
}

// ArtifactNames returns the artifact names in aggregated order.
func (r *Result) ArtifactNames() []string {
	names := make([]string, len(r.Artifacts))
	for i, a := range r.Artifacts {
		names[i] = a.Name
	}
	return names
}
