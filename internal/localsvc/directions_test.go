package localsvc

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/routegen/internal/model"
	"github.com/roach88/routegen/internal/prereq"
	"github.com/roach88/routegen/internal/store"
	"github.com/roach88/routegen/internal/testutil"
)

type savedDirections struct {
	routeID  string
	segments []orb.LineString
}

type memDirectionsStore struct {
	saved []savedDirections
	err   error
}

func (m *memDirectionsStore) SaveDirections(_ context.Context, routeID string, d []orb.LineString) error {
	if m.err != nil {
		return m.err
	}
	m.saved = append(m.saved, savedDirections{routeID: routeID, segments: d})
	return nil
}

func TestSegments(t *testing.T) {
	stops := []model.Stop{
		testutil.Stop("depot", model.StopKindDepot, 4.35, 50.85),
		testutil.Stop("lunch", model.StopKindBreak, 0, 0),
		testutil.Stop("o1", model.StopKindOrder, 4.40, 50.88),
		testutil.Stop("o2", model.StopKindOrder, 4.45, 50.90),
	}

	got := Segments(stops)
	require.Len(t, got, 4)

	assert.Equal(t, orb.LineString{{4.35, 50.85}, {4.35, 50.85}}, got[0], "first real stop departs from itself")
	assert.Nil(t, got[1], "breaks carry no geometry")
	assert.Equal(t, orb.LineString{{4.35, 50.85}, {4.40, 50.88}}, got[2], "segment skips the break")
	assert.Equal(t, orb.LineString{{4.40, 50.88}, {4.45, 50.90}}, got[3])
}

func TestSegments_SingleStopIsRouted(t *testing.T) {
	route := testutil.Route("s1", "r1", testutil.Stop("only", model.StopKindOrder, 4.4, 50.9))
	route.Stops = withDirections(route.Stops, Segments(route.Stops))

	assert.False(t, prereq.NeedsDirections(route))
}

func TestComputeDirections_SavesEveryRoute(t *testing.T) {
	mem := &memDirectionsStore{}
	d := NewDirections(mem)

	group := model.BacklogGroup{
		ScheduleID: "s1",
		Routes: []model.RouteRef{
			testutil.TwoStopRoute("s1", "r1"),
			testutil.TwoStopRoute("s1", "r2"),
		},
	}
	require.NoError(t, d.ComputeDirections(context.Background(), group))

	require.Len(t, mem.saved, 2)
	assert.Equal(t, "r1", mem.saved[0].routeID)
	assert.Equal(t, "r2", mem.saved[1].routeID)
	assert.Len(t, mem.saved[0].segments, 2)
}

func TestComputeDirections_StoreFailure(t *testing.T) {
	mem := &memDirectionsStore{err: errors.New("disk full")}
	d := NewDirections(mem)

	group := model.BacklogGroup{ScheduleID: "s1", Routes: []model.RouteRef{testutil.TwoStopRoute("s1", "r1")}}
	err := d.ComputeDirections(context.Background(), group)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "route r1")
	assert.Contains(t, err.Error(), "disk full")
}

func TestComputeDirections_Cancelled(t *testing.T) {
	mem := &memDirectionsStore{}
	d := NewDirections(mem)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	group := model.BacklogGroup{ScheduleID: "s1", Routes: []model.RouteRef{testutil.TwoStopRoute("s1", "r1")}}
	err := d.ComputeDirections(ctx, group)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, mem.saved)
}

func TestComputeDirections_PersistsToStore(t *testing.T) {
	ctx := context.Background()
	s, err := store.Open(filepath.Join(t.TempDir(), "plan.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	sch := testutil.Schedule("s1", testutil.Day, testutil.TwoStopRoute("s1", "r1"))
	require.NoError(t, s.ImportPlan(ctx, []model.ScheduleRef{sch}))

	backlog := prereq.Resolve([]model.ScheduleRef{sch})
	require.Equal(t, 1, backlog.Len())

	group, _ := backlog.Front()
	require.NoError(t, NewDirections(s, WithAverageSpeed(50)).ComputeDirections(ctx, group))

	stored, err := s.ReadSchedules(ctx, []string{"s1"})
	require.NoError(t, err)
	assert.True(t, prereq.Resolve(stored).Empty(), "stored routes no longer need directions")
}
