package harness

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScenarios_Golden(t *testing.T) {
	files, err := FindScenarios("testdata/scenarios", "")
	require.NoError(t, err)
	require.NotEmpty(t, files)

	for _, file := range files {
		name := strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))
		t.Run(name, func(t *testing.T) {
			scenario, err := LoadScenario(file)
			require.NoError(t, err)
			assert.Equal(t, name, scenario.Name, "scenario name must match its file name")

			result, err := RunWithGolden(t, scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}

func TestRun_MinimalScenario(t *testing.T) {
	scenario := &Scenario{
		Name:        "minimal",
		Description: "Minimal test scenario",
		Templates:   []TemplateFixture{{ID: "RouteSummary"}},
		Schedules: []ScheduleFixture{{
			ID:     "S1",
			Routes: []RouteFixture{{ID: "R1", Directions: true}},
		}},
		Expect: Expectation{
			Status:    StatusCompleted,
			Artifacts: []string{"RouteSummary - S1 - 2024-03-04"},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Empty(t, result.Errors)
	assert.Equal(t, "test-run", result.RunID)
	assert.Equal(t, 0, result.DirectionsCalls)
	assert.Equal(t, 1, result.BuildCalls)
	assert.Equal(t, 1, result.MaxInFlight)

	require.NotEmpty(t, result.Trace)
	assert.Equal(t, "run_started", result.Trace[0].Kind)
	assert.Equal(t, "run_finished", result.Trace[len(result.Trace)-1].Kind)
	for i, event := range result.Trace {
		assert.Equal(t, int64(i+1), event.Seq, "seq must be dense and start at 1")
	}
}

func TestRun_DeterministicAcrossRuns(t *testing.T) {
	scenario, err := LoadScenario("testdata/scenarios/scenario_c_mixed_templates.yaml")
	require.NoError(t, err)

	first, err := Run(scenario)
	require.NoError(t, err)
	second, err := Run(scenario)
	require.NoError(t, err)

	a, err := Snapshot(scenario.Name, first)
	require.NoError(t, err)
	b, err := Snapshot(scenario.Name, second)
	require.NoError(t, err)
	assert.Equal(t, string(a), string(b))
}

func TestRun_UnmetExpectationFails(t *testing.T) {
	scenario := &Scenario{
		Name:        "wrong_expectation",
		Description: "Expects the wrong artifacts and status",
		Templates:   []TemplateFixture{{ID: "RouteSummary"}},
		Schedules: []ScheduleFixture{{
			ID:     "S1",
			Routes: []RouteFixture{{ID: "R1", Directions: true}},
		}},
		Expect: Expectation{
			Status:    StatusCancelled,
			Artifacts: []string{"something else"},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)

	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 2)
	assert.Contains(t, result.Errors[0], "expected status cancelled, got completed")
	assert.Contains(t, result.Errors[1], "expected artifacts")
}

func TestRun_QuotaRejection(t *testing.T) {
	scenario := &Scenario{
		Name:        "quota",
		Description: "Two serialized jobs against a quota of one",
		Templates:   []TemplateFixture{{ID: "DetailedStops", Heavy: true}},
		Schedules: []ScheduleFixture{{
			ID: "S1",
			Routes: []RouteFixture{
				{ID: "R1", Directions: true},
				{ID: "R2", Directions: true},
			},
		}},
		Routes:  []string{"R1", "R2"},
		MaxJobs: 1,
		Expect: Expectation{
			Status:    StatusRejected,
			ErrorCode: "QUOTA_EXCEEDED",
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)

	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Empty(t, result.RunID)
	assert.Empty(t, result.Trace)
	assert.Equal(t, 0, result.BuildCalls)
}

func TestRun_UnknownRouteSelectionIsRejected(t *testing.T) {
	scenario := &Scenario{
		Name:        "unknown_route",
		Description: "Selects a route the schedule does not have",
		Templates:   []TemplateFixture{{ID: "RouteSummary"}},
		Schedules: []ScheduleFixture{{
			ID:     "S1",
			Routes: []RouteFixture{{ID: "R1", Directions: true}},
		}},
		Routes: []string{"R9"},
		Expect: Expectation{
			Status:    StatusRejected,
			ErrorCode: "INVALID_REQUEST",
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Contains(t, result.Error, "R9")
}

func TestRun_CustomStops(t *testing.T) {
	scenario := &Scenario{
		Name:        "custom_stops",
		Description: "A route with a break needs directions for its real stops only",
		Templates:   []TemplateFixture{{ID: "RouteSummary"}},
		Schedules: []ScheduleFixture{{
			ID: "S1",
			Routes: []RouteFixture{{
				ID: "R1",
				Stops: []StopFixture{
					{ID: "depot", Kind: "depot", Lon: 4.35, Lat: 50.85},
					{ID: "lunch", Kind: "break"},
					{ID: "o1", Kind: "order", Lon: 4.40, Lat: 50.88},
				},
			}},
		}},
		Expect: Expectation{
			Status:    StatusCompleted,
			Artifacts: []string{"RouteSummary - S1 - 2024-03-04"},
		},
		Assertions: []Assertion{
			{Type: AssertTraceContains, Kind: "directions_started", Detail: map[string]any{"routes": []any{"R1"}}},
			{Type: AssertFinalState, Table: "stops", Where: map[string]any{"route_id": "R1", "position": 1}, Expect: map[string]any{"kind": "break"}},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Equal(t, 1, result.DirectionsCalls)
}
