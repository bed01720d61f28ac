package engine

import "fmt"

// DefaultMaxJobs is the default maximum number of artifact jobs per run.
const DefaultMaxJobs = 1000

// QuotaEnforcer bounds the number of artifact jobs a single run may start.
//
// Admit checks a whole decomposition up front so oversized requests are
// rejected before any work begins. Check is called on every job start and
// guards the loop itself.
type QuotaEnforcer struct {
	maxJobs int
	current int
}

// NewQuotaEnforcer creates a new quota enforcer with the given limit.
// A limit <= 0 disables the quota.
func NewQuotaEnforcer(maxJobs int) *QuotaEnforcer {
	return &QuotaEnforcer{maxJobs: maxJobs}
}

// Admit validates a planned job count against the limit without counting it.
func (q *QuotaEnforcer) Admit(runID string, jobs int) error {
	if q.maxJobs > 0 && jobs > q.maxJobs {
		return &JobsExceededError{RunID: runID, Jobs: jobs, Limit: q.maxJobs}
	}
	return nil
}

// Check increments the job counter and validates against the limit.
func (q *QuotaEnforcer) Check(runID string) error {
	q.current++
	if q.maxJobs > 0 && q.current > q.maxJobs {
		return &JobsExceededError{RunID: runID, Jobs: q.current, Limit: q.maxJobs}
	}
	return nil
}

// Current returns the number of jobs started.
func (q *QuotaEnforcer) Current() int {
	return q.current
}

// MaxJobs returns the limit.
func (q *QuotaEnforcer) MaxJobs() int {
	return q.maxJobs
}

// JobsExceededError is returned when a run needs more jobs than allowed.
type JobsExceededError struct {
	RunID string
	Jobs  int
	Limit int
}

// Error implements the error interface.
func (e *JobsExceededError) Error() string {
	if e.RunID == "" {
		return fmt.Sprintf("job quota exceeded: %d jobs > %d limit", e.Jobs, e.Limit)
	}
	return fmt.Sprintf("run %s exceeded job quota: %d jobs > %d limit", e.RunID, e.Jobs, e.Limit)
}
