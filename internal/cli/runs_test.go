package cli

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/routegen/internal/store"
)

func TestRunsList_Empty(t *testing.T) {
	env := newTestEnv(t)

	out, err := env.execute(t, "runs", "list")
	require.NoError(t, err)
	assert.Equal(t, "No runs recorded.\n", out)
}

func TestRunsList_NewestFirst(t *testing.T) {
	env := newTestEnv(t)
	env.importPlan(t)
	path := env.write(t, "request.yaml", summaryRequest)

	require.NoError(t, runGenerate(generateOptions(env, "text", "run-a"), path, newTestCommand(&bytes.Buffer{})))
	require.NoError(t, runGenerate(generateOptions(env, "text", "run-b"), path, newTestCommand(&bytes.Buffer{})))

	out, err := env.execute(t, "--format", "json", "runs", "list")
	require.NoError(t, err)

	var resp struct {
		Data []RunSummary `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Data, 2)
	assert.Equal(t, "run-b", resp.Data[0].ID)
	assert.Equal(t, "run-a", resp.Data[1].ID)
	// The logical clock continues across runs.
	assert.Greater(t, resp.Data[0].StartedSeq, resp.Data[1].FinishedSeq)
	assert.Equal(t, []string{"summary"}, resp.Data[0].Templates)
	assert.Equal(t, "date_range", resp.Data[0].Scope)

	out, err = env.execute(t, "runs", "list", "--limit", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "run-b")
	assert.NotContains(t, out, "run-a")
}

func TestRunsShow_JSON(t *testing.T) {
	env := newTestEnv(t)
	env.importPlan(t)
	path := env.write(t, "request.yaml", summaryRequest)
	require.NoError(t, runGenerate(generateOptions(env, "text", "run-1"), path, newTestCommand(&bytes.Buffer{})))

	out, err := env.execute(t, "--format", "json", "runs", "show", "run-1", "--events")
	require.NoError(t, err)

	var resp struct {
		Data RunDetail `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "completed", resp.Data.Run.Status)
	require.Len(t, resp.Data.Artifacts, 1)
	assert.Equal(t, "summary - Monday - 2024-03-04", resp.Data.Artifacts[0].Name)

	require.NotEmpty(t, resp.Data.Timeline)
	assert.Equal(t, "run_started", resp.Data.Timeline[0].Kind)
	assert.Equal(t, "run_finished", resp.Data.Timeline[len(resp.Data.Timeline)-1].Kind)
	for i := 1; i < len(resp.Data.Timeline); i++ {
		assert.Greater(t, resp.Data.Timeline[i].Seq, resp.Data.Timeline[i-1].Seq)
	}
}

func TestRunsShow_WithoutEvents(t *testing.T) {
	env := newTestEnv(t)
	env.importPlan(t)
	path := env.write(t, "request.yaml", summaryRequest)
	require.NoError(t, runGenerate(generateOptions(env, "text", "run-1"), path, newTestCommand(&bytes.Buffer{})))

	out, err := env.execute(t, "runs", "show", "run-1")
	require.NoError(t, err)
	assert.Contains(t, out, "Run:       run-1")
	assert.Contains(t, out, "Templates: summary")
	assert.NotContains(t, out, "Timeline:")
}

func TestRunsShow_NotFound(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.execute(t, "runs", "show", "nope")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "run not found: nope")
}

func TestBuildTimeline(t *testing.T) {
	timeline, err := buildTimeline([]store.RunEvent{
		{RunID: "r", Seq: 1, Kind: "run_started", State: "idle", Detail: `{"jobs":1}`},
		{RunID: "r", Seq: 2, Kind: "state", State: "running", Detail: `{}`},
	})
	require.NoError(t, err)
	require.Len(t, timeline, 2)
	assert.Equal(t, map[string]any{"jobs": float64(1)}, timeline[0].Detail)
	assert.Nil(t, timeline[1].Detail)

	_, err = buildTimeline([]store.RunEvent{{Seq: 3, Detail: "{"}})
	assert.Error(t, err)
}

func TestFormatDetail(t *testing.T) {
	assert.Equal(t, "", formatDetail(nil))
	assert.Equal(t, "job=summary status=completed", formatDetail(map[string]any{
		"status":       "completed",
		"job":          "summary",
		"job_id":       "abc",
		"request_hash": "def",
	}))
}
