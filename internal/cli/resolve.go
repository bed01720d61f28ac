package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/routegen/internal/prereq"
)

// BacklogEntry is one schedule with routes missing directions.
type BacklogEntry struct {
	Schedule     string   `json:"schedule"`
	ScheduleName string   `json:"schedule_name"`
	Routes       []string `json:"routes"`
}

// ResolveResult is the directions backlog of a request.
type ResolveResult struct {
	Scope   string         `json:"scope"`
	Backlog []BacklogEntry `json:"backlog"`
	Routes  int            `json:"routes"`
}

// NewResolveCommand creates the resolve command.
func NewResolveCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resolve <request>",
		Short: "Show routes that still need directions",
		Long: `Resolve a request against the database and print its directions backlog:
the routes, grouped by schedule, that generate would compute directions for
before building any artifact.

In route scope only the selected routes are inspected; with a date range
every route of every schedule is.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResolve(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runResolve(opts *RootOptions, path string, cmd *cobra.Command) error {
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

	backlog := prereq.ForRequest(req)
	result := ResolveResult{
		Scope:   req.Scope().String(),
		Backlog: make([]BacklogEntry, 0, backlog.Len()),
		Routes:  backlog.RouteCount(),
	}
	for _, g := range backlog.Groups {
		result.Backlog = append(result.Backlog, BacklogEntry{
			Schedule:     g.ScheduleID,
			ScheduleName: g.ScheduleName,
			Routes:       g.RouteIDs(),
		})
	}

	if formatter.JSON() {
		return formatter.Success(result)
	}

	w := formatter.Writer
	if len(result.Backlog) == 0 {
		formatter.Pass("All routes have directions")
		return nil
	}
	fmt.Fprintf(w, "%d route(s) need directions:\n", result.Routes)
	for _, e := range result.Backlog {
		fmt.Fprintf(w, "  %s (%s): %s\n", e.Schedule, e.ScheduleName, strings.Join(e.Routes, ", "))
	}
	return nil
}
