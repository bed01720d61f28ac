package cli

import (
	"context"

	"github.com/spf13/cobra"
)

// ImportResult summarizes an import.
type ImportResult struct {
	Database  string   `json:"database"`
	Schedules []string `json:"schedules"`
	Routes    int      `json:"routes"`
	Stops     int      `json:"stops"`
}

// NewImportCommand creates the import command.
func NewImportCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <plan.yaml>",
		Short: "Import schedules, routes and stops",
		Long: `Import planning data into the database.

Each schedule in the plan file replaces the stored schedule with the same ID,
including its routes and stops. Routes are imported without directions;
generate computes them on demand.

Example:
  routegen import --db ./routegen.db ./plan.yaml`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runImport(opts *RootOptions, path string, cmd *cobra.Command) error {
	if err := opts.setup(cmd); err != nil {
		return err
	}
	formatter := opts.formatter(cmd)

	schedules, err := loadPlan(path)
	if err != nil {
		return commandError(err)
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
	if err := st.ImportPlan(ctx, schedules); err != nil {
		return WrapExitError(ExitCommandError, "failed to import plan", err)
	}

	result := ImportResult{Database: opts.Config.Database, Schedules: []string{}}
	for _, s := range schedules {
		result.Schedules = append(result.Schedules, s.ID)
		result.Routes += len(s.Routes)
		for _, r := range s.Routes {
			result.Stops += len(r.Stops)
		}
	}
	opts.Logger.Info("plan imported",
		"path", path,
		"schedules", len(result.Schedules),
		"routes", result.Routes,
		"stops", result.Stops)

	if formatter.JSON() {
		return formatter.Success(result)
	}
	formatter.Pass("Imported %d schedule(s), %d route(s), %d stop(s) into %s",
		len(result.Schedules), result.Routes, result.Stops, result.Database)
	return nil
}
