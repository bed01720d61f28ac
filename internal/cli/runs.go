package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/routegen/internal/store"
)

// RunsOptions holds flags for the runs commands.
type RunsOptions struct {
	*RootOptions
	Limit  int
	Events bool // include the progress timeline in runs show
}

// RunSummary is one row of the run log.
type RunSummary struct {
	ID          string   `json:"id"`
	Status      string   `json:"status"`
	Scope       string   `json:"scope"`
	Templates   []string `json:"templates"`
	Jobs        int      `json:"jobs"`
	StartedSeq  int64    `json:"started_seq"`
	FinishedSeq int64    `json:"finished_seq,omitempty"`
	Error       string   `json:"error,omitempty"`
	RequestHash string   `json:"request_hash"`
}

// RunEventView is one progress event in the timeline.
type RunEventView struct {
	Seq    int64          `json:"seq"`
	Kind   string         `json:"kind"`
	State  string         `json:"state"`
	Detail map[string]any `json:"detail,omitempty"`
}

// RunDetail is the output of runs show.
type RunDetail struct {
	Run       RunSummary       `json:"run"`
	Artifacts []ArtifactResult `json:"artifacts"`
	Timeline  []RunEventView   `json:"timeline,omitempty"`
}

// NewRunsCommand creates the runs command group.
func NewRunsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect the run log",
		Long: `Inspect recorded generation runs.

Every generate run records its request summary, its progress events stamped
with a logical sequence number, and its final ordered artifacts.

Examples:
  routegen runs list --limit 10
  routegen runs show 0190f1c2-... --events
  routegen runs show 0190f1c2-... --format json`,
	}

	list := &cobra.Command{
		Use:           "list",
		Short:         "List recent runs, newest first",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRunsList(opts, cmd)
		},
	}
	list.Flags().IntVarP(&opts.Limit, "limit", "n", 20, "maximum number of runs (0 for all)")

	show := &cobra.Command{
		Use:           "show <run-id>",
		Short:         "Show a run and its artifacts",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRunsShow(opts, args[0], cmd)
		},
	}
	show.Flags().BoolVar(&opts.Events, "events", false, "include the progress timeline")

	cmd.AddCommand(list, show)
	return cmd
}

func runRunsList(opts *RunsOptions, cmd *cobra.Command) error {
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
	runs, err := st.ListRuns(ctx, opts.Limit)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list runs", err)
	}

	summaries := make([]RunSummary, len(runs))
	for i, r := range runs {
		summaries[i] = runSummary(r)
	}

	if formatter.JSON() {
		return formatter.Success(summaries)
	}

	w := formatter.Writer
	if len(summaries) == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		return nil
	}
	for _, r := range summaries {
		fmt.Fprintf(w, "%s  %-9s  %-10s  %d job(s)  %s\n",
			r.ID, r.Status, r.Scope, r.Jobs, strings.Join(r.Templates, ","))
	}
	return nil
}

func runRunsShow(opts *RunsOptions, runID string, cmd *cobra.Command) error {
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
	run, artifacts, err := st.ReadRun(ctx, runID)
	if errors.Is(err, store.ErrNotFound) {
		return NewExitError(ExitCommandError, fmt.Sprintf("run not found: %s", runID))
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read run", err)
	}

	detail := RunDetail{
		Run:       runSummary(run),
		Artifacts: make([]ArtifactResult, len(artifacts)),
	}
	for i, a := range artifacts {
		detail.Artifacts[i] = ArtifactResult{Name: a.Name, Template: a.TemplateID, Path: a.Ref}
	}

	if opts.Events {
		events, err := st.ReadRunEvents(ctx, runID)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read run events", err)
		}
		detail.Timeline, err = buildTimeline(events)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to decode run events", err)
		}
	}

	if formatter.JSON() {
		return formatter.Success(detail)
	}
	return outputRunText(formatter, detail)
}

func runSummary(r store.RunRecord) RunSummary {
	templates := r.TemplateIDs
	if templates == nil {
		templates = []string{}
	}
	return RunSummary{
		ID:          r.ID,
		Status:      r.Status,
		Scope:       r.Scope,
		Templates:   templates,
		Jobs:        r.JobCount,
		StartedSeq:  r.StartedSeq,
		FinishedSeq: r.FinishedSeq,
		Error:       r.Error,
		RequestHash: r.RequestHash,
	}
}

// buildTimeline decodes the stored event details.
func buildTimeline(events []store.RunEvent) ([]RunEventView, error) {
	timeline := make([]RunEventView, 0, len(events))
	for _, ev := range events {
		view := RunEventView{Seq: ev.Seq, Kind: ev.Kind, State: ev.State}
		if ev.Detail != "" {
			if err := json.Unmarshal([]byte(ev.Detail), &view.Detail); err != nil {
				return nil, fmt.Errorf("event %d: %w", ev.Seq, err)
			}
			if len(view.Detail) == 0 {
				view.Detail = nil
			}
		}
		timeline = append(timeline, view)
	}
	return timeline, nil
}

func outputRunText(formatter *OutputFormatter, detail RunDetail) error {
	w := formatter.Writer
	r := detail.Run

	fmt.Fprintf(w, "Run:       %s\n", r.ID)
	fmt.Fprintf(w, "Status:    %s\n", r.Status)
	fmt.Fprintf(w, "Scope:     %s\n", r.Scope)
	fmt.Fprintf(w, "Templates: %s\n", strings.Join(r.Templates, ", "))
	fmt.Fprintf(w, "Jobs:      %d\n", r.Jobs)
	if r.FinishedSeq > 0 {
		fmt.Fprintf(w, "Seq:       %d..%d\n", r.StartedSeq, r.FinishedSeq)
	} else {
		fmt.Fprintf(w, "Seq:       %d..\n", r.StartedSeq)
	}
	if r.Error != "" {
		fmt.Fprintf(w, "Error:     %s\n", r.Error)
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Artifacts (%d):\n", len(detail.Artifacts))
	for _, a := range detail.Artifacts {
		fmt.Fprintf(w, "  %s -> %s\n", a.Name, a.Path)
	}

	if len(detail.Timeline) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Timeline:")
		for _, ev := range detail.Timeline {
			fmt.Fprintf(w, "  [%d] %-20s %-24s %s\n", ev.Seq, ev.Kind, ev.State, formatDetail(ev.Detail))
		}
	}
	return nil
}

// formatDetail renders a detail map with sorted keys, dropping the content
// hashes that make lines hard to read.
func formatDetail(detail map[string]any) string {
	if len(detail) == 0 {
		return ""
	}
	keys := make([]string, 0, len(detail))
	for k := range detail {
		if k == "request_hash" || k == "job_id" {
			continue
		}
		keys = append(keys, k)
	}
	slices.Sort(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%v", k, detail[k])
	}
	return strings.Join(parts, " ")
}
