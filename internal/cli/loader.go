package cli

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/roach88/routegen/internal/model"
	"github.com/roach88/routegen/internal/request"
	"github.com/roach88/routegen/internal/store"
)

// Error codes for CLI error output.
const (
	ErrCodeGeneric  = "E001" // Generic/unknown error
	ErrCodeNotFound = "E002" // Request or plan file not found
	ErrCodeRequest  = "E003" // Request file does not satisfy the schema
	ErrCodePlan     = "E004" // Plan file invalid
	ErrCodeResolve  = "E005" // Schedules or routes missing from the database
	ErrCodeInvalid  = "E006" // Request cannot be decomposed into jobs
)

// LoadError is an input file that could not be loaded or resolved.
type LoadError struct {
	Code    string
	Message string
	Line    int // 1-based, 0 if unknown
	Err     error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// loadSpec reads and validates a request file.
func loadSpec(path string) (*request.Spec, error) {
	spec, err := request.LoadFile(path)
	if err != nil {
		return nil, classifyFileError(err, path, ErrCodeRequest, "request")
	}
	return spec, nil
}

// loadPlan reads a plan file.
func loadPlan(path string) ([]model.ScheduleRef, error) {
	schedules, err := request.LoadPlan(path)
	if err != nil {
		return nil, classifyFileError(err, path, ErrCodePlan, "plan")
	}
	return schedules, nil
}

func classifyFileError(err error, path, invalidCode, what string) error {
	var reqErr *request.Error
	if errors.As(err, &reqErr) {
		le := &LoadError{Code: invalidCode, Message: reqErr.Error(), Err: err}
		if reqErr.Pos.IsValid() {
			le.Line = reqErr.Pos.Line()
		}
		return le
	}
	if errors.Is(err, fs.ErrNotExist) {
		return &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("%s file not found: %s", what, path), Err: err}
	}
	return &LoadError{Code: ErrCodeGeneric, Message: fmt.Sprintf("failed to read %s file: %v", what, err), Err: err}
}

// resolveRequest loads the request file at path and resolves its schedule
// and route references against st.
func (o *RootOptions) resolveRequest(ctx context.Context, st *store.Store, path string) (model.GenerationRequest, error) {
	spec, err := loadSpec(path)
	if err != nil {
		return model.GenerationRequest{}, err
	}

	req, err := spec.Resolve(ctx, st, request.Defaults{
		SeparatePerRoute: o.Config.Generation.SeparatePerRoute,
	})
	if err != nil {
		return model.GenerationRequest{}, &LoadError{Code: ErrCodeResolve, Message: err.Error(), Err: err}
	}
	o.Logger.Debug("request resolved",
		"path", path,
		"scope", req.Scope().String(),
		"templates", len(req.Templates),
		"schedules", len(req.Schedules),
		"routes", len(req.Routes))
	return req, nil
}

// commandError turns a load failure into a command error (exit code 2).
func commandError(err error) error {
	var le *LoadError
	if errors.As(err, &le) {
		return NewExitError(ExitCommandError, le.Error())
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return err
	}
	return WrapExitError(ExitCommandError, "command failed", err)
}
