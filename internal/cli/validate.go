package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/routegen/internal/decompose"
)

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	Resolve bool // also resolve against the database and decompose
}

// ValidationIssue is one problem found in a request file.
type ValidationIssue struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Line    int    `json:"line,omitempty"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Jobs   int               `json:"jobs,omitempty"`
	Errors []ValidationIssue `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate <request>",
		Short: "Validate a request file",
		Long: `Validate a request file (.yaml, .yml or .cue) against the request schema.

With --resolve, schedule and route references are also resolved against the
database and the request is decomposed, which catches selections that span
schedules, heavy-only date ranges and templates without enabled rows.

Exit codes:
  0 - Request is valid
  1 - Request is invalid
  2 - Command error (file not found, database error, etc.)`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Resolve, "resolve", false, "resolve references against the database and decompose")

	return cmd
}

func runValidate(opts *ValidateOptions, path string, cmd *cobra.Command) error {
	if err := opts.setup(cmd); err != nil {
		return err
	}
	formatter := opts.formatter(cmd)

	spec, err := loadSpec(path)
	if err != nil {
		return outputValidationError(formatter, err)
	}
	formatter.VerboseLog("Schema check passed: %d template(s)", len(spec.Templates))

	if !opts.Resolve {
		return outputValidateSuccess(formatter, ValidationResult{Valid: true})
	}

	st, err := opts.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	req, err := opts.resolveRequest(ctx, st, path)
	if err != nil {
		return outputValidationError(formatter, err)
	}

	plan, err := decompose.Decompose(req)
	if err != nil {
		return outputValidationError(formatter, &LoadError{Code: ErrCodeInvalid, Message: err.Error(), Err: err})
	}
	for _, ex := range plan.Excluded {
		formatter.VerboseLog("Template %s excluded: %s", ex.TemplateID, ex.Reason)
	}

	return outputValidateSuccess(formatter, ValidationResult{Valid: true, Jobs: plan.JobCount()})
}

// outputValidateSuccess outputs successful validation results.
func outputValidateSuccess(formatter *OutputFormatter, result ValidationResult) error {
	if formatter.JSON() {
		return formatter.Success(result)
	}

	if result.Jobs > 0 {
		formatter.Pass("Request valid (%d job(s))", result.Jobs)
		return nil
	}
	formatter.Pass("Request valid")
	return nil
}

// outputValidationError reports an invalid request (exit code 1). Errors
// that are not about the request content are command errors (exit code 2).
func outputValidationError(formatter *OutputFormatter, err error) error {
	var le *LoadError
	if !errors.As(err, &le) || le.Code == ErrCodeNotFound || le.Code == ErrCodeGeneric {
		return commandError(err)
	}

	issue := ValidationIssue{Code: le.Code, Message: le.Message, Line: le.Line}
	if formatter.JSON() {
		_ = formatter.Respond(CLIResponse{
			Status: "error",
			Data:   ValidationResult{Valid: false, Errors: []ValidationIssue{issue}},
			Error:  &CLIError{Code: issue.Code, Message: issue.Message},
		})
	} else {
		formatter.Fail("Validation failed")
		fmt.Fprintln(formatter.Writer)
		if issue.Line > 0 {
			fmt.Fprintf(formatter.Writer, "line %d\n", issue.Line)
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s\n", issue.Code, issue.Message)
	}

	return NewExitError(ExitFailure, fmt.Sprintf("validation failed: %s", le.Error()))
}
