package engine

import (
	"errors"
	"fmt"
	"strings"
)

// GenerationError reports why a run could not produce its artifacts.
//
// Invalid requests, busy orchestrators and quota violations are returned
// synchronously by Submit. Prerequisite and build failures arrive in the
// terminal Outcome. Cancellation is never a GenerationError.
//
// The underlying service error, if any, is kept verbatim in Err.
type GenerationError struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// RunID identifies the affected run (empty for rejected submissions).
	RunID string

	// Job is the name of the failed artifact job.
	Job string

	// JobID is the content-addressed ID of the failed job.
	JobID string

	// ScheduleID identifies the backlog group whose directions failed.
	ScheduleID string

	// RouteIDs lists the routes implicated by the failure.
	RouteIDs []string

	// TemplateIDs lists the templates of the failed job.
	TemplateIDs []string

	// Err is the wrapped cause.
	Err error
}

// ErrorCode categorizes generation errors.
type ErrorCode string

const (
	// ErrCodeInvalidRequest indicates the request was rejected before any work began.
	ErrCodeInvalidRequest ErrorCode = "INVALID_REQUEST"

	// ErrCodePrerequisiteFailed indicates the directions service failed for a backlog group.
	ErrCodePrerequisiteFailed ErrorCode = "PREREQUISITE_FAILED"

	// ErrCodeBuildFailed indicates an artifact job failed.
	ErrCodeBuildFailed ErrorCode = "BUILD_FAILED"

	// ErrCodeBusy indicates a run is already in progress on this orchestrator.
	ErrCodeBusy ErrorCode = "BUSY"

	// ErrCodeQuotaExceeded indicates the request decomposes into too many jobs.
	ErrCodeQuotaExceeded ErrorCode = "QUOTA_EXCEEDED"
)

// Error implements the error interface.
func (e *GenerationError) Error() string {
	var ctx []string
	if e.RunID != "" {
		ctx = append(ctx, "run="+e.RunID)
	}
	if e.ScheduleID != "" {
		ctx = append(ctx, "schedule="+e.ScheduleID)
	}
	if e.Job != "" {
		ctx = append(ctx, fmt.Sprintf("job=%q", e.Job))
	}
	if len(e.TemplateIDs) > 0 {
		ctx = append(ctx, "templates="+strings.Join(e.TemplateIDs, ","))
	}
	if len(e.RouteIDs) > 0 {
		ctx = append(ctx, "routes="+strings.Join(e.RouteIDs, ","))
	}

	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if len(ctx) > 0 {
		msg += " (" + strings.Join(ctx, ", ") + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *GenerationError) Unwrap() error {
	return e.Err
}

func hasCode(err error, code ErrorCode) bool {
	var ge *GenerationError
	if errors.As(err, &ge) {
		return ge.Code == code
	}
	return false
}

// IsInvalidRequest returns true if the request was rejected as invalid.
func IsInvalidRequest(err error) bool { return hasCode(err, ErrCodeInvalidRequest) }

// IsPrerequisiteFailure returns true if directions computation failed.
func IsPrerequisiteFailure(err error) bool { return hasCode(err, ErrCodePrerequisiteFailed) }

// IsBuildFailure returns true if an artifact job failed.
func IsBuildFailure(err error) bool { return hasCode(err, ErrCodeBuildFailed) }

// IsBusy returns true if a submission was rejected because a run is active.
func IsBusy(err error) bool { return hasCode(err, ErrCodeBusy) }

// IsQuotaError returns true if the request exceeded the job quota.
// Matches both GenerationError with ErrCodeQuotaExceeded and JobsExceededError.
func IsQuotaError(err error) bool {
	if hasCode(err, ErrCodeQuotaExceeded) {
		return true
	}
	var je *JobsExceededError
	return errors.As(err, &je)
}

// NewInvalidRequestError wraps a validation failure.
func NewInvalidRequestError(err error) *GenerationError {
	return &GenerationError{
		Code:    ErrCodeInvalidRequest,
		Message: "request rejected",
		Err:     err,
	}
}

// NewBusyError creates the error returned when a run is already active.
func NewBusyError(activeRunID string) *GenerationError {
	return &GenerationError{
		Code:    ErrCodeBusy,
		Message: "a generation is already in progress",
		RunID:   activeRunID,
	}
}

// NewQuotaError wraps a job quota violation.
func NewQuotaError(err *JobsExceededError) *GenerationError {
	return &GenerationError{
		Code:    ErrCodeQuotaExceeded,
		Message: fmt.Sprintf("request needs %d jobs, limit is %d", err.Jobs, err.Limit),
		RunID:   err.RunID,
		Err:     err,
	}
}
