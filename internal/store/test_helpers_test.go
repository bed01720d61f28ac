package store

import (
	"path/filepath"
	"testing"

	"github.com/roach88/routegen/internal/model"
	"github.com/roach88/routegen/internal/testutil"
)

// createTestStore creates a new file-backed store in a temp dir.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestSchedule builds a dated schedule whose routes have a depot,
// a break and an order.
func createTestSchedule(id string, routeIDs ...string) model.ScheduleRef {
	routes := make([]model.RouteRef, len(routeIDs))
	for i, rid := range routeIDs {
		routes[i] = testutil.Route(id, rid,
			testutil.Stop(rid+"-depot", model.StopKindDepot, 4.35, 50.85),
			testutil.Stop(rid+"-break", model.StopKindBreak, 0, 0),
			testutil.Stop(rid+"-order", model.StopKindOrder, 4.40, 50.88),
		)
	}
	return testutil.Schedule(id, testutil.Day, routes...)
}

// createTestRun creates a run record with minimal required fields.
func createTestRun(id string, seq int64) RunRecord {
	return RunRecord{
		ID:          id,
		RequestHash: "hash-" + id,
		Scope:       model.ScopeDateRange.String(),
		TemplateIDs: []string{"t1"},
		JobCount:    1,
		StartedSeq:  seq,
	}
}
