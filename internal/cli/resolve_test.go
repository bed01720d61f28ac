package cli

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve_Backlog(t *testing.T) {
	env := newTestEnv(t)
	env.importPlan(t)
	path := env.write(t, "request.yaml", "templates: [{id: summary}]\ndate_range: {from: 2024-03-04, to: 2024-03-05}\n")

	out, err := env.execute(t, "resolve", path)
	require.NoError(t, err)
	assert.Equal(t, "3 route(s) need directions:\n  mon (Monday): north, south\n  tue (Tuesday): east\n", out)
}

func TestResolve_RouteScope(t *testing.T) {
	env := newTestEnv(t)
	env.importPlan(t)
	path := env.write(t, "request.yaml", "templates: [{id: summary}]\nschedules: [mon]\nroutes: [south]\n")

	out, err := env.execute(t, "--format", "json", "resolve", path)
	require.NoError(t, err)

	var resp struct {
		Data ResolveResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "routes", resp.Data.Scope)
	assert.Equal(t, 1, resp.Data.Routes)
	require.Len(t, resp.Data.Backlog, 1)
	assert.Equal(t, BacklogEntry{Schedule: "mon", ScheduleName: "Monday", Routes: []string{"south"}}, resp.Data.Backlog[0])
}

func TestResolve_UnknownSchedule(t *testing.T) {
	env := newTestEnv(t)
	env.importPlan(t)
	path := env.write(t, "request.yaml", "templates: [{id: summary}]\nschedules: [sun]\n")

	_, err := env.execute(t, "resolve", path)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), ErrCodeResolve)
}

func TestPlan_RouteScope(t *testing.T) {
	env := newTestEnv(t)
	env.importPlan(t)
	path := env.write(t, "request.yaml", `
templates:
  - id: summary
  - id: map
    heavy: true
schedules: [mon]
routes: [north, south]
`)

	out, err := env.execute(t, "plan", path)
	require.NoError(t, err)
	assert.Contains(t, out, "3 job(s), routes scope\n")
	assert.Contains(t, out, "  1. [batch] summary - Monday - 2024-03-04\n")
	assert.Contains(t, out, "  2. [serialized] map - Monday - 2024-03-04 - north\n")
	assert.Contains(t, out, "  3. [serialized] map - Monday - 2024-03-04 - south\n")
	assert.NotContains(t, out, "excluded:")
}

func TestPlan_DateRangeExcludesHeavy(t *testing.T) {
	env := newTestEnv(t)
	env.importPlan(t)
	path := env.write(t, "request.yaml", `
templates:
  - id: summary
  - id: map
    heavy: true
schedules: [mon]
`)

	out, err := env.execute(t, "--format", "json", "plan", path)
	require.NoError(t, err)

	var resp struct {
		Data PlanResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "date_range", resp.Data.Scope)
	require.Len(t, resp.Data.Jobs, 1)
	assert.Equal(t, "batch", resp.Data.Jobs[0].Kind)
	assert.Equal(t, []string{"summary"}, resp.Data.Jobs[0].Templates)
	assert.ElementsMatch(t, []string{"north", "south"}, resp.Data.Jobs[0].Routes)
	require.Len(t, resp.Data.Excluded, 1)
	assert.Equal(t, "map", resp.Data.Excluded[0].TemplateID)
}

func TestPlan_InvalidRequest(t *testing.T) {
	env := newTestEnv(t)
	env.importPlan(t)
	path := env.write(t, "request.yaml", "templates: [{id: map, heavy: true}]\nschedules: [tue]\n")

	_, err := env.execute(t, "plan", path)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), ErrCodeInvalid)
}
