package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/routegen/internal/decompose"
	"github.com/roach88/routegen/internal/engine"
	"github.com/roach88/routegen/internal/localsvc"
	"github.com/roach88/routegen/internal/store"
)

// GenerateOptions holds flags for the generate command.
type GenerateOptions struct {
	*RootOptions
	OutputDir string // overrides the output_dir config key

	// RunIDs allows overriding the run ID generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	RunIDs engine.RunIDGenerator
}

// ArtifactResult is one produced artifact.
type ArtifactResult struct {
	Name     string `json:"name"`
	Template string `json:"template"`
	Path     string `json:"path"`
}

// GenerateResult is the terminal outcome of a generate run.
type GenerateResult struct {
	RunID     string                `json:"run_id"`
	Status    string                `json:"status"`
	Artifacts []ArtifactResult      `json:"artifacts"`
	Excluded  []decompose.Exclusion `json:"excluded,omitempty"`
	Error     string                `json:"error,omitempty"`
}

// NewGenerateCommand creates the generate command.
func NewGenerateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &GenerateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "generate <request>",
		Short: "Generate artifacts for a request",
		Long: `Generate the artifacts described by a request file.

Missing directions are computed first, one schedule at a time, and saved to
the database. Light templates are then built in one batch and heavy templates
one route at a time. Artifacts are written to the output directory and the
run is recorded in the run log (see "routegen runs").

Press Ctrl-C to cancel: the job in flight is interrupted, no further job is
started, and the artifacts already produced are kept.

Exit codes:
  0 - All artifacts generated
  1 - Generation failed or was cancelled
  2 - Command error (invalid request, database error, etc.)

Example:
  routegen generate --db ./routegen.db ./requests/monday.yaml
  routegen generate ./requests/week.cue --output-dir ./out --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerate(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.OutputDir, "output-dir", "o", "", "directory for generated artifacts (overrides config)")

	return cmd
}

func runGenerate(opts *GenerateOptions, path string, cmd *cobra.Command) error {
	if err := opts.setup(cmd); err != nil {
		return err
	}
	formatter := opts.formatter(cmd)
	cfg := opts.Config
	logger := opts.Logger

	st, err := opts.openStore()
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			logger.Error("error closing database", "error", closeErr)
		}
	}()

	// Use command's context if available (for testing), otherwise create one
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	req, err := opts.resolveRequest(ctx, st, path)
	if err != nil {
		return commandError(err)
	}

	// Continue the logical clock from the run log.
	seq, err := st.MaxSeq(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read run log", err)
	}

	outputDir := opts.OutputDir
	if outputDir == "" {
		outputDir = cfg.OutputDir
	}
	directions := localsvc.NewDirections(st,
		localsvc.WithDirectionsLogger(logger),
		localsvc.WithAverageSpeed(cfg.Directions.AverageSpeedKmh))
	builder := localsvc.NewBuilder(outputDir,
		localsvc.WithBuilderLogger(logger),
		localsvc.WithFormats(cfg.Builder.Formats.Report, cfg.Builder.Formats.Export),
		localsvc.WithBuilderSpeed(cfg.Directions.AverageSpeedKmh),
		localsvc.WithPlanSource(st))

	recorder := store.NewRecorder(ctx, st, logger)
	// Written by the loop goroutine; read after Wait returns.
	var excluded []decompose.Exclusion
	engineOpts := []engine.Option{
		engine.WithLogger(logger),
		engine.WithMaxJobs(cfg.Generation.MaxJobs),
		engine.WithClock(engine.NewClockAt(seq)),
		engine.WithRunIDGenerator(opts.RunIDs),
		engine.WithListener(recorder),
		engine.WithListener(engine.ListenerFunc(func(p engine.Progress) {
			if p.Kind == engine.ProgressRunStarted {
				excluded = p.Excluded
			}
		})),
	}
	if !formatter.JSON() {
		engineOpts = append(engineOpts, engine.WithListener(progressPrinter{w: formatter.Writer}))
	}
	orch := engine.New(directions, builder, engineOpts...)

	// Cancelling the submit context cancels the run.
	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	runID, err := orch.Submit(runCtx, req, nil)
	if err != nil {
		var genErr *engine.GenerationError
		if errors.As(err, &genErr) {
			_ = formatter.Error(string(genErr.Code), genErr.Error(), nil)
		}
		return WrapExitError(ExitCommandError, "request rejected", err)
	}
	logger.Info("generation started", "run_id", runID, "output_dir", outputDir)

	// A cancelled run still reports its outcome, so Wait must outlive ctx.
	outcome, err := orch.Wait(context.WithoutCancel(ctx))
	if err != nil {
		return WrapExitError(ExitFailure, "waiting for generation", err)
	}
	if recErr := recorder.Err(); recErr != nil {
		logger.Warn("run log incomplete", "run_id", runID, "error", recErr)
	}

	result := GenerateResult{
		RunID:     outcome.RunID,
		Status:    string(outcome.Status),
		Artifacts: make([]ArtifactResult, 0, len(outcome.Artifacts)),
		Excluded:  excluded,
	}
	for _, a := range outcome.Artifacts {
		result.Artifacts = append(result.Artifacts, ArtifactResult{Name: a.Name, Template: a.TemplateID, Path: a.Ref})
	}
	if outcome.Err != nil {
		result.Error = outcome.Err.Error()
	}

	if err := outputGenerateResult(formatter, result, outcome); err != nil {
		return err
	}

	switch outcome.Status {
	case engine.StatusCancelled:
		return NewExitError(ExitFailure, fmt.Sprintf("generation cancelled (run %s)", runID))
	case engine.StatusFailed:
		return WrapExitError(ExitFailure, fmt.Sprintf("generation failed (run %s)", runID), outcome.Err)
	}
	return nil
}

func outputGenerateResult(formatter *OutputFormatter, result GenerateResult, outcome engine.Outcome) error {
	if formatter.JSON() {
		resp := CLIResponse{Status: "ok", Data: result, RunID: result.RunID}
		if outcome.Status != engine.StatusCompleted {
			resp.Status = "error"
			resp.Error = &CLIError{Code: result.Status, Message: "generation " + result.Status}
			var genErr *engine.GenerationError
			if errors.As(outcome.Err, &genErr) {
				resp.Error = &CLIError{Code: string(genErr.Code), Message: genErr.Message, Details: genErr.Error()}
			}
		}
		return formatter.Respond(resp)
	}

	switch outcome.Status {
	case engine.StatusCompleted:
		formatter.Pass("Run %s completed: %d artifact(s)", result.RunID, len(result.Artifacts))
	case engine.StatusCancelled:
		formatter.Fail("Run %s cancelled: %d artifact(s) kept", result.RunID, len(result.Artifacts))
	default:
		formatter.Fail("Run %s failed: %s", result.RunID, result.Error)
	}
	for _, a := range result.Artifacts {
		fmt.Fprintf(formatter.Writer, "  %s -> %s\n", a.Name, a.Path)
	}
	return nil
}

// progressPrinter writes one line per excluded template, directions group
// and job.
type progressPrinter struct {
	w io.Writer
}

func (p progressPrinter) OnProgress(ev engine.Progress) {
	switch ev.Kind {
	case engine.ProgressRunStarted:
		for _, ex := range ev.Excluded {
			fmt.Fprintf(p.w, "excluded: %s (%s)\n", ex.TemplateID, ex.Reason)
		}
	case engine.ProgressDirectionsStarted:
		fmt.Fprintf(p.w, "→ directions %s: %s\n", ev.ScheduleID, strings.Join(ev.RouteIDs, ", "))
	case engine.ProgressDirectionsFinished:
		fmt.Fprintf(p.w, "  directions %s %s\n", ev.ScheduleID, ev.Status)
	case engine.ProgressJobStarted:
		fmt.Fprintf(p.w, "→ %s [%s]\n", ev.JobName, ev.JobKind)
	case engine.ProgressJobFinished:
		fmt.Fprintf(p.w, "  %s %s\n", ev.JobName, ev.Status)
	case engine.ProgressCancelRequested:
		fmt.Fprintln(p.w, "cancelling...")
	}
}
