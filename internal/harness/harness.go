package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"time"

	"github.com/roach88/routegen/internal/engine"
	"github.com/roach88/routegen/internal/store"
	"github.com/roach88/routegen/internal/testutil"
)

// DefaultTimeout bounds how long a scenario run may take.
const DefaultTimeout = 10 * time.Second

type options struct {
	logger  *slog.Logger
	timeout time.Duration
}

// Option configures Run.
type Option func(*options)

// WithLogger sets the logger passed to the orchestrator and the run log
// recorder. Default: logs are discarded.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs the real orchestrator against scripted services in a
// fresh in-memory database, with a deterministic clock and a fixed run ID.
// Progress is recorded into both the result trace and the store's run log,
// so final_state assertions see what the CLI would have persisted.
//
// Execution flow:
// 1. Build the request and import its schedules
// 2. Submit the request and wait for the terminal outcome
// 3. Check the expectation and evaluate assertions
//
// Run returns an error only when the scenario could not be executed; an
// unmet expectation is reported through Result.Pass and Result.Errors.
func Run(scenario *Scenario, opts ...Option) (*Result, error) {
	cfg := options{
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	req, err := scenario.Request()
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.timeout)
	defer cancel()

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	if err := st.ImportPlan(ctx, req.Schedules); err != nil {
		return nil, fmt.Errorf("failed to import schedules: %w", err)
	}

	log := &testutil.CallLog{}
	directions := &testutil.ScriptedDirections{Log: log}
	for _, d := range scenario.Directions {
		directions.Rules = append(directions.Rules, testutil.DirectionsRule{
			ScheduleID: d.Schedule,
			Action:     testutil.Action(d.Action),
			Message:    d.Message,
		})
	}
	builder := &testutil.ScriptedBuilder{Log: log}
	for _, b := range scenario.Build {
		builder.Rules = append(builder.Rules, testutil.BuildRule{
			TemplateID: b.Template,
			RouteID:    b.Route,
			Action:     testutil.Action(b.Action),
			Message:    b.Message,
		})
	}

	result := NewResult()
	recorder := store.NewRecorder(ctx, st, cfg.logger)

	engineOpts := []engine.Option{
		engine.WithLogger(cfg.logger),
		engine.WithClock(testutil.NewDeterministicClock()),
		engine.WithRunIDGenerator(testutil.NewFixedRunIDGenerator(scenario.RunID)),
		engine.WithListener(recorder),
		engine.WithListener(engine.ListenerFunc(result.AddProgress)),
	}
	if scenario.MaxJobs != 0 {
		engineOpts = append(engineOpts, engine.WithMaxJobs(scenario.MaxJobs))
	}
	orch := engine.New(directions, builder, engineOpts...)
	directions.Cancel = orch.Cancel
	builder.Cancel = orch.Cancel

	runID, err := orch.Submit(ctx, req, nil)
	if err != nil {
		result.Status = StatusRejected
		result.Error = err.Error()
		result.ErrorCode = errorCode(err)
		cfg.logger.Info("scenario request rejected", "scenario", scenario.Name, "error", err)
	} else {
		out, err := orch.Wait(ctx)
		if err != nil {
			return nil, fmt.Errorf("run %s did not finish: %w", runID, err)
		}
		result.RunID = out.RunID
		result.Status = string(out.Status)
		result.Artifacts = out.Artifacts
		if out.Err != nil {
			result.Error = out.Err.Error()
			result.ErrorCode = errorCode(out.Err)
		}
		if err := recorder.Err(); err != nil {
			return nil, fmt.Errorf("failed to record run log: %w", err)
		}
	}

	result.MaxInFlight = log.MaxInFlight()
	result.DirectionsCalls = log.Count(testutil.ServiceDirections)
	result.BuildCalls = log.Count(testutil.ServiceBuild)
	for _, c := range log.Calls() {
		for id, subs := range c.SubTemplates {
			if _, ok := result.SubTemplates[id]; !ok {
				result.SubTemplates[id] = subs
			}
		}
	}

	for _, errMsg := range checkExpectation(scenario.Expect, result) {
		result.AddError(errMsg)
	}

	actx := &AssertionContext{
		Store: st,
		Ctx:   ctx,
	}
	for _, errMsg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(errMsg)
	}

	cfg.logger.Info("scenario finished",
		"scenario", scenario.Name,
		"status", result.Status,
		"pass", result.Pass,
		"events", len(result.Trace))

	return result, nil
}

func errorCode(err error) string {
	var ge *engine.GenerationError
	if errors.As(err, &ge) {
		return string(ge.Code)
	}
	return ""
}

// checkExpectation compares the outcome against the scenario's expect block.
func checkExpectation(exp Expectation, r *Result) []string {
	var errs []string

	if r.Status != exp.Status {
		errs = append(errs, fmt.Sprintf("expected status %s, got %s (error: %s)", exp.Status, r.Status, r.Error))
	}
	if exp.ErrorCode != "" && r.ErrorCode != exp.ErrorCode {
		errs = append(errs, fmt.Sprintf("expected error code %s, got %q", exp.ErrorCode, r.ErrorCode))
	}
	if r.Status != StatusRejected {
		names := r.ArtifactNames()
		if !slices.Equal(names, exp.Artifacts) {
			errs = append(errs, fmt.Sprintf("expected artifacts %q, got %q", exp.Artifacts, names))
		}
	}
	if exp.MaxInFlight > 0 && r.MaxInFlight > exp.MaxInFlight {
		errs = append(errs, fmt.Sprintf("expected at most %d service calls in flight, observed %d", exp.MaxInFlight, r.MaxInFlight))
	}
	if exp.DirectionsCalls != nil && r.DirectionsCalls != *exp.DirectionsCalls {
		errs = append(errs, fmt.Sprintf("expected %d directions calls, got %d", *exp.DirectionsCalls, r.DirectionsCalls))
	}
	if exp.BuildCalls != nil && r.BuildCalls != *exp.BuildCalls {
		errs = append(errs, fmt.Sprintf("expected %d build calls, got %d", *exp.BuildCalls, r.BuildCalls))
	}
	for _, id := range sortedKeys(exp.SubTemplates) {
		want := exp.SubTemplates[id]
		got, ok := r.SubTemplates[id]
		if !ok {
			errs = append(errs, fmt.Sprintf("template %s was never built", id))
			continue
		}
		if !slices.Equal(got, want) {
			errs = append(errs, fmt.Sprintf("template %s: expected sub-templates %q, got %q", id, want, got))
		}
	}
	return errs
}
