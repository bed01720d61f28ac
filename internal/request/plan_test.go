package request

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/routegen/internal/model"
)

const planYAML = `
schedules:
  - id: mon
    name: Monday
    date: 2024-03-04
    routes:
      - id: north
        name: North loop
        stops:
          - {id: depot, kind: depot, lon: 4.35, lat: 50.85}
          - {id: lunch, kind: break}
          - {id: o1, name: Bakery, kind: order, lon: 4.40, lat: 50.88}
      - id: south
  - id: tue
    date: "2024-03-05"
`

func TestParsePlan(t *testing.T) {
	schedules, err := ParsePlan([]byte(planYAML))
	require.NoError(t, err)
	require.Len(t, schedules, 2)

	mon := schedules[0]
	assert.Equal(t, "Monday", mon.Name)
	assert.Equal(t, time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC), mon.Date)
	require.Len(t, mon.Routes, 2)

	north := mon.Routes[0]
	assert.Equal(t, "North loop", north.Name)
	assert.Equal(t, "mon", north.ScheduleID)
	require.Len(t, north.Stops, 3)
	assert.Equal(t, orb.Point{4.35, 50.85}, north.Stops[0].Location)
	assert.Equal(t, model.StopKindBreak, north.Stops[1].Kind)
	assert.Equal(t, orb.Point{}, north.Stops[1].Location)
	assert.Equal(t, "Bakery", north.Stops[2].Name)
	assert.False(t, north.Stops[2].HasDirections())

	assert.Equal(t, "south", mon.Routes[1].Name)
	assert.Empty(t, mon.Routes[1].Stops)

	assert.Equal(t, "tue", schedules[1].Name)
	assert.Empty(t, schedules[1].Routes)
}

func TestParsePlan_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"empty", "", "empty plan file"},
		{"no schedules", "schedules: []", "at least one schedule"},
		{"unknown field", "schedules: [{id: a, date: 2024-03-04, colour: red}]", "colour"},
		{"missing id", "schedules: [{date: 2024-03-04}]", "schedules[0].id"},
		{"bad date", "schedules: [{id: a, date: 04/03/2024}]", `invalid date "04/03/2024"`},
		{"duplicate schedule", "schedules: [{id: a, date: 2024-03-04}, {id: a, date: 2024-03-05}]", `duplicate schedule "a"`},
		{
			"duplicate route across schedules",
			"schedules: [{id: a, date: 2024-03-04, routes: [{id: r}]}, {id: b, date: 2024-03-05, routes: [{id: r}]}]",
			`schedules[1].routes[0].id: duplicate route "r"`,
		},
		{
			"unknown stop kind",
			"schedules: [{id: a, date: 2024-03-04, routes: [{id: r, stops: [{id: s, kind: fuel}]}]}]",
			`stops[0]: unknown kind "fuel"`,
		},
		{
			"coordinates out of range",
			"schedules: [{id: a, date: 2024-03-04, routes: [{id: r, stops: [{id: s, kind: order, lon: 200, lat: 0}]}]}]",
			"coordinates out of range",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParsePlan([]byte(tt.content))
			require.Error(t, err)
			assert.True(t, IsError(err))
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadPlan(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plan.yaml")
	require.NoError(t, os.WriteFile(path, []byte(planYAML), 0644))

	schedules, err := LoadPlan(path)
	require.NoError(t, err)
	assert.Len(t, schedules, 2)

	_, err = LoadPlan(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
