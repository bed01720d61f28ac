package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/routegen/internal/decompose"
	"github.com/roach88/routegen/internal/model"
)

// PlannedJob is one builder call of a plan.
type PlannedJob struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Kind      string   `json:"kind"`
	Templates []string `json:"templates"`
	Routes    []string `json:"routes"`
	Artifacts []string `json:"artifacts"`
}

// PlanResult is the decomposition of a request.
type PlanResult struct {
	Scope    string                `json:"scope"`
	Jobs     []PlannedJob          `json:"jobs"`
	Excluded []decompose.Exclusion `json:"excluded"`
}

// NewPlanCommand creates the plan command.
func NewPlanCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan <request>",
		Short: "Show the jobs a request decomposes into",
		Long: `Resolve a request and print its decomposition without generating anything:
the batch job (if any) followed by the serialized jobs in execution order,
each with the artifact names it will produce.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlan(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runPlan(opts *RootOptions, path string, cmd *cobra.Command) error {
	if err := opts.setup(cmd); err != nil {
		return err
	}
	formatter := opts.formatter(cmd)

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
		return commandError(err)
	}

	plan, err := decompose.Decompose(req)
	if err != nil {
		return commandError(&LoadError{Code: ErrCodeInvalid, Message: err.Error(), Err: err})
	}

	result := PlanResult{
		Scope:    req.Scope().String(),
		Jobs:     []PlannedJob{},
		Excluded: []decompose.Exclusion{},
	}
	if plan.Batch != nil {
		result.Jobs = append(result.Jobs, plannedJob(*plan.Batch))
	}
	for _, job := range plan.Queue.Jobs() {
		result.Jobs = append(result.Jobs, plannedJob(job))
	}
	result.Excluded = append(result.Excluded, plan.Excluded...)

	if formatter.JSON() {
		return formatter.Success(result)
	}

	w := formatter.Writer
	fmt.Fprintf(w, "%d job(s), %s scope\n", len(result.Jobs), result.Scope)
	for i, job := range result.Jobs {
		fmt.Fprintf(w, "%3d. [%s] %s\n", i+1, job.Kind, job.Name)
		fmt.Fprintf(w, "     templates: %s\n", strings.Join(job.Templates, ", "))
		if len(job.Routes) > 0 {
			fmt.Fprintf(w, "     routes:    %s\n", strings.Join(job.Routes, ", "))
		}
		for _, a := range job.Artifacts {
			fmt.Fprintf(w, "     -> %s\n", a)
		}
	}
	for _, ex := range result.Excluded {
		fmt.Fprintf(w, "excluded: %s (%s)\n", ex.TemplateID, ex.Reason)
	}
	return nil
}

func plannedJob(job model.GenerationJob) PlannedJob {
	artifacts := make([]string, len(job.Outputs))
	for i, out := range job.Outputs {
		artifacts[i] = out.Name
	}
	return PlannedJob{
		ID:        job.ID,
		Name:      job.Name,
		Kind:      string(job.Kind),
		Templates: job.TemplateIDs(),
		Routes:    job.RouteIDs(),
		Artifacts: artifacts,
	}
}
