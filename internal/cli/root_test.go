package cli

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/routegen/internal/config"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "routegen", cmd.Use)
	assert.Contains(t, cmd.Long, "artifact")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := [][]string{
		{"import"},
		{"validate"},
		{"resolve"},
		{"plan"},
		{"generate"},
		{"runs", "list"},
		{"runs", "show"},
		{"test"},
	}

	for _, path := range commands {
		t.Run(path[len(path)-1], func(t *testing.T) {
			subCmd, _, err := cmd.Find(path)
			require.NoError(t, err, "Command %v should exist", path)
			require.NotNil(t, subCmd)
			assert.Equal(t, path[len(path)-1], subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	for _, name := range []string{"config", "db"} {
		flag := cmd.PersistentFlags().Lookup(name)
		require.NotNil(t, flag, name)
		assert.Equal(t, "", flag.DefValue)
	}
}

func TestCommandFlags(t *testing.T) {
	cmd := NewRootCommand()

	generateCmd, _, err := cmd.Find([]string{"generate"})
	require.NoError(t, err)
	outputFlag := generateCmd.Flags().Lookup("output-dir")
	require.NotNil(t, outputFlag)
	assert.Equal(t, "o", outputFlag.Shorthand)

	testCmd, _, err := cmd.Find([]string{"test"})
	require.NoError(t, err)
	for _, name := range []string{"update", "filter", "golden"} {
		assert.NotNil(t, testCmd.Flags().Lookup(name), name)
	}

	listCmd, _, err := cmd.Find([]string{"runs", "list"})
	require.NoError(t, err)
	limitFlag := listCmd.Flags().Lookup("limit")
	require.NotNil(t, limitFlag)
	assert.Equal(t, "20", limitFlag.DefValue)

	validateCmd, _, err := cmd.Find([]string{"validate"})
	require.NoError(t, err)
	assert.NotNil(t, validateCmd.Flags().Lookup("resolve"))
}

func TestFormatValidation(t *testing.T) {
	assert.True(t, isValidFormat("text"))
	assert.True(t, isValidFormat("json"))

	assert.False(t, isValidFormat("xml"))
	assert.False(t, isValidFormat(""))
	assert.False(t, isValidFormat("TEXT"))
}

func TestFormatValidationIntegration(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"--format", "invalid", "runs", "list"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestSetup_LoadsConfigAndDatabaseOverride(t *testing.T) {
	env := newTestEnv(t)
	opts := env.rootOptions("text")

	require.NoError(t, opts.setup(newTestCommand(&bytes.Buffer{})))
	require.NotNil(t, opts.Config)
	assert.Equal(t, env.db, opts.Config.Database, "--db overrides the config")
	assert.Equal(t, env.outputDir, opts.Config.OutputDir)
	assert.Equal(t, "error", opts.Config.Log.Level)
	require.NotNil(t, opts.Logger)
	assert.False(t, opts.Logger.Enabled(context.Background(), slog.LevelWarn))

	// Second call keeps the first configuration.
	first := opts.Config
	require.NoError(t, opts.setup(newTestCommand(&bytes.Buffer{})))
	assert.Same(t, first, opts.Config)
}

func TestSetup_VerboseForcesDebug(t *testing.T) {
	env := newTestEnv(t)
	opts := env.rootOptions("text")
	opts.Verbose = true

	require.NoError(t, opts.setup(newTestCommand(&bytes.Buffer{})))
	assert.True(t, opts.Logger.Enabled(context.Background(), slog.LevelDebug))
}

func TestSetup_InvalidConfig(t *testing.T) {
	env := newTestEnv(t)
	path := filepath.Join(env.dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: loud\n"), 0644))

	opts := &RootOptions{Format: "text", ConfigFile: path}
	err := opts.setup(newTestCommand(&bytes.Buffer{}))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "log.level")
}

func TestSetup_MissingExplicitConfig(t *testing.T) {
	opts := &RootOptions{Format: "text", ConfigFile: filepath.Join(t.TempDir(), "missing.yaml")}
	err := opts.setup(newTestCommand(&bytes.Buffer{}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config")
}

func TestNewLogger(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := newLogger(buf, config.LogConfig{Level: "info", Format: "json"}, false)
	logger.Info("run finished", "run_id", "r1")
	logger.Debug("hidden")

	assert.Contains(t, buf.String(), `"msg":"run finished"`)
	assert.Contains(t, buf.String(), `"run_id":"r1"`)
	assert.NotContains(t, buf.String(), "hidden")

	buf.Reset()
	logger = newLogger(buf, config.LogConfig{Level: "WARN", Format: "text"}, false)
	logger.Info("skipped")
	logger.Warn("kept", "k", 1)
	assert.NotContains(t, buf.String(), "skipped")
	assert.Contains(t, buf.String(), "msg=kept k=1")
}
