package model

// JobKind distinguishes batched from serialized generation jobs.
type JobKind string

const (
	// JobKindBatch covers many templates and routes in one call.
	JobKindBatch JobKind = "batch"
	// JobKindSerialized carries exactly one template and, in route scope, one route.
	JobKindSerialized JobKind = "serialized"
)

// JobOutput names the artifact a job must produce for one of its templates.
type JobOutput struct {
	TemplateID string `json:"template_id"`
	Name       string `json:"name"`
}

// GenerationJob is one unit of work submitted to the artifact builder.
//
// Outputs is aligned with Templates: Outputs[i] is the artifact expected
// for Templates[i]. Names are assigned by the decomposer and are unique
// within a request.
type GenerationJob struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	Kind      JobKind       `json:"kind"`
	Templates []TemplateRef `json:"templates"`
	Schedules []ScheduleRef `json:"schedules"`
	Routes    []RouteRef    `json:"routes"`
	Outputs   []JobOutput   `json:"outputs"`
}

// RouteIDs returns the IDs of the routes the job covers.
func (j GenerationJob) RouteIDs() []string {
	ids := make([]string, len(j.Routes))
	for i, r := range j.Routes {
		ids[i] = r.ID
	}
	return ids
}

// TemplateIDs returns the IDs of the templates the job covers.
func (j GenerationJob) TemplateIDs() []string {
	ids := make([]string, len(j.Templates))
	for i, t := range j.Templates {
		ids[i] = t.ID
	}
	return ids
}

// ArtifactDescriptor is the result of one template within a completed job.
// Ref is opaque to the orchestrator (a file path, a blob key, ...).
type ArtifactDescriptor struct {
	Name       string `json:"name"`
	TemplateID string `json:"template_id"`
	JobID      string `json:"job_id,omitempty"`
	Ref        string `json:"ref"`
}

// JobQueue is a FIFO of jobs awaiting serialized execution.
//
// JobQueue is not safe for concurrent use. It is owned by the orchestrator
// loop, which is the only goroutine that touches it.
type JobQueue struct {
	jobs []GenerationJob
}

// NewJobQueue creates a queue holding jobs in the given order.
func NewJobQueue(jobs ...GenerationJob) *JobQueue {
	q := &JobQueue{jobs: make([]GenerationJob, 0, len(jobs))}
	q.jobs = append(q.jobs, jobs...)
	return q
}

// Push appends a job to the back of the queue.
func (q *JobQueue) Push(j GenerationJob) {
	q.jobs = append(q.jobs, j)
}

// Pop removes and returns the front job.
// Returns (GenerationJob{}, false) if the queue is empty.
func (q *JobQueue) Pop() (GenerationJob, bool) {
	if q == nil || len(q.jobs) == 0 {
		return GenerationJob{}, false
	}
	j := q.jobs[0]

	// Clear the slot so the backing array doesn't pin the job's slices.
	q.jobs[0] = GenerationJob{}
	if len(q.jobs) == 1 {
		q.jobs = q.jobs[:0]
	} else {
		q.jobs = q.jobs[1:]
	}
	return j, true
}

// Len returns the number of pending jobs.
func (q *JobQueue) Len() int {
	if q == nil {
		return 0
	}
	return len(q.jobs)
}

// Jobs returns a copy of the pending jobs in queue order.
func (q *JobQueue) Jobs() []GenerationJob {
	if q == nil {
		return nil
	}
	out := make([]GenerationJob, len(q.jobs))
	copy(out, q.jobs)
	return out
}

// BacklogGroup is the set of routes of one schedule still missing directions.
type BacklogGroup struct {
	ScheduleID   string     `json:"schedule_id"`
	ScheduleName string     `json:"schedule_name"`
	Routes       []RouteRef `json:"routes"`
}

// RouteIDs returns the IDs of the routes in the group.
func (g BacklogGroup) RouteIDs() []string {
	ids := make([]string, len(g.Routes))
	for i, r := range g.Routes {
		ids[i] = r.ID
	}
	return ids
}

// DirectionsBacklog is an ordered list of backlog groups, one per schedule,
// consumed front to back.
type DirectionsBacklog struct {
	Groups []BacklogGroup `json:"groups"`
}

// Empty reports whether all prerequisites are satisfied.
func (b *DirectionsBacklog) Empty() bool {
	return b == nil || len(b.Groups) == 0
}

// Len returns the number of pending groups.
func (b *DirectionsBacklog) Len() int {
	if b == nil {
		return 0
	}
	return len(b.Groups)
}

// Front returns the first pending group.
func (b *DirectionsBacklog) Front() (BacklogGroup, bool) {
	if b.Empty() {
		return BacklogGroup{}, false
	}
	return b.Groups[0], true
}

// PopFront removes the first pending group.
func (b *DirectionsBacklog) PopFront() {
	if b.Empty() {
		return
	}
	b.Groups = b.Groups[1:]
}

// RouteCount returns the total number of routes across groups.
func (b *DirectionsBacklog) RouteCount() int {
	if b == nil {
		return 0
	}
	n := 0
	for _, g := range b.Groups {
		n += len(g.Routes)
	}
	return n
}
