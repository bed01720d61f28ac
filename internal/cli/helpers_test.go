package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

const testPlan = `
schedules:
  - id: mon
    name: Monday
    date: 2024-03-04
    routes:
      - id: north
        stops:
          - {id: depot, kind: depot, lon: 4.35, lat: 50.85}
          - {id: lunch, kind: break}
          - {id: o1, kind: order, lon: 4.40, lat: 50.88}
      - id: south
        stops:
          - {id: depot, kind: depot, lon: 4.35, lat: 50.85}
          - {id: o2, kind: order, lon: 4.30, lat: 50.80}
  - id: tue
    name: Tuesday
    date: 2024-03-05
    routes:
      - id: east
        stops:
          - {id: depot, kind: depot, lon: 4.35, lat: 50.85}
          - {id: o3, kind: order, lon: 4.45, lat: 50.86}
`

// testEnv is an isolated config, database and output directory.
type testEnv struct {
	dir       string
	config    string
	db        string
	outputDir string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)

	env := &testEnv{
		dir:       dir,
		config:    filepath.Join(dir, "config.yaml"),
		db:        filepath.Join(dir, "routegen.db"),
		outputDir: filepath.Join(dir, "out"),
	}
	cfg := "output_dir: " + env.outputDir + "\nlog:\n  level: error\n"
	require.NoError(t, os.WriteFile(env.config, []byte(cfg), 0644))
	return env
}

// write creates a file in the environment directory and returns its path.
func (e *testEnv) write(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(e.dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// rootOptions returns global options pointing at the environment.
func (e *testEnv) rootOptions(format string) *RootOptions {
	return &RootOptions{Format: format, ConfigFile: e.config, Database: e.db}
}

// execute runs the full command tree with the environment's global flags.
func (e *testEnv) execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(append([]string{"--config", e.config, "--db", e.db}, args...))
	err := cmd.Execute()
	return buf.String(), err
}

// importPlan loads testPlan into the environment's database.
func (e *testEnv) importPlan(t *testing.T) {
	t.Helper()
	path := e.write(t, "plan.yaml", testPlan)
	_, err := e.execute(t, "import", path)
	require.NoError(t, err)
}

// newTestCommand returns a bare command writing to buf, for calling run
// functions directly.
func newTestCommand(buf *bytes.Buffer) *cobra.Command {
	cmd := &cobra.Command{}
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	return cmd
}
