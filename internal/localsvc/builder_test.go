package localsvc

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/roach88/routegen/internal/decompose"
	"github.com/roach88/routegen/internal/model"
	"github.com/roach88/routegen/internal/testutil"
)

func planJobs(t *testing.T, req model.GenerationRequest) []model.GenerationJob {
	t.Helper()
	plan, err := decompose.Decompose(req)
	require.NoError(t, err)
	var jobs []model.GenerationJob
	if plan.Batch != nil {
		jobs = append(jobs, *plan.Batch)
	}
	return append(jobs, plan.Queue.Jobs()...)
}

func routedRequest(templates ...model.TemplateRef) model.GenerationRequest {
	r1 := testutil.WithDirections(testutil.TwoStopRoute("s1", "r1"))
	r2 := testutil.WithDirections(testutil.TwoStopRoute("s1", "r2"))
	return model.GenerationRequest{
		Templates: templates,
		Schedules: []model.ScheduleRef{testutil.Schedule("s1", testutil.Day, r1, r2)},
	}
}

func TestBuild_YAMLReport(t *testing.T) {
	dir := t.TempDir()
	b := NewBuilder(dir)

	jobs := planJobs(t, routedRequest(testutil.Template("summary", false)))
	require.Len(t, jobs, 1)

	artifacts, err := b.Build(context.Background(), jobs[0])
	require.NoError(t, err)
	require.Len(t, artifacts, 1)

	a := artifacts[0]
	assert.Equal(t, jobs[0].Outputs[0].Name, a.Name)
	assert.Equal(t, "summary", a.TemplateID)
	assert.Equal(t, filepath.Join(dir, decompose.FileName(a.Name)+".yaml"), a.Ref)

	data, err := os.ReadFile(a.Ref)
	require.NoError(t, err)

	var report Report
	require.NoError(t, yaml.Unmarshal(data, &report))
	assert.Equal(t, "summary", report.Template)
	assert.Len(t, report.Routes, 2)
	assert.Equal(t, 2, report.TotalOrders)
	assert.Greater(t, report.TotalKm, 0.0)
	require.Len(t, report.Schedules, 1)
	assert.Equal(t, "2024-03-04", report.Schedules[0].Date)
}

func TestBuild_JSONReportWithSections(t *testing.T) {
	b := NewBuilder(t.TempDir(), WithFormats(FormatJSON, ""))

	tmpl := testutil.Template("summary", false)
	tmpl.SubTemplates = []model.SubTemplateRef{{ID: "totals", Checked: true}, {ID: "per-stop", Default: true}}
	jobs := planJobs(t, routedRequest(tmpl))

	artifacts, err := b.Build(context.Background(), jobs[0])
	require.NoError(t, err)
	require.True(t, strings.HasSuffix(artifacts[0].Ref, ".json"))

	data, err := os.ReadFile(artifacts[0].Ref)
	require.NoError(t, err)

	var report Report
	require.NoError(t, json.Unmarshal(data, &report))
	assert.Equal(t, []string{"totals", "per-stop"}, report.Sections)
}

func TestBuild_CSVExport(t *testing.T) {
	b := NewBuilder(t.TempDir())

	tmpl := testutil.Template("stops", false)
	tmpl.Kind = model.TemplateKindExport
	jobs := planJobs(t, routedRequest(tmpl))

	artifacts, err := b.Build(context.Background(), jobs[0])
	require.NoError(t, err)
	require.True(t, strings.HasSuffix(artifacts[0].Ref, ".csv"))

	f, err := os.Open(artifacts[0].Ref)
	require.NoError(t, err)
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 5, "header plus two stops per route")
	assert.Equal(t, "schedule_id", rows[0][0])
	assert.Equal(t, []string{"s1", "r1", "0", "r1-depot", "r1-depot", "depot", "4.350000", "50.850000"}, rows[1])
}

func TestBuild_GeoJSONExport(t *testing.T) {
	b := NewBuilder(t.TempDir(), WithFormats("", FormatGeoJSON))

	tmpl := testutil.Template("lines", false)
	tmpl.Kind = model.TemplateKindExport
	jobs := planJobs(t, routedRequest(tmpl))

	artifacts, err := b.Build(context.Background(), jobs[0])
	require.NoError(t, err)

	data, err := os.ReadFile(artifacts[0].Ref)
	require.NoError(t, err)

	fc, err := geojson.UnmarshalFeatureCollection(data)
	require.NoError(t, err)
	require.Len(t, fc.Features, 2)
	assert.Equal(t, "r1", fc.Features[0].Properties["route_id"])
	assert.Equal(t, "LineString", fc.Features[0].Geometry.GeoJSONType())
}

func TestBuild_UnsupportedFormat(t *testing.T) {
	b := NewBuilder(t.TempDir(), WithFormats("pdf", ""))

	jobs := planJobs(t, routedRequest(testutil.Template("summary", false)))
	_, err := b.Build(context.Background(), jobs[0])

	require.Error(t, err)
	assert.Contains(t, err.Error(), `unsupported report format "pdf"`)
}

func TestBuild_Cancelled(t *testing.T) {
	dir := t.TempDir()
	b := NewBuilder(dir)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	jobs := planJobs(t, routedRequest(testutil.Template("summary", false)))
	_, err := b.Build(ctx, jobs[0])

	assert.ErrorIs(t, err, context.Canceled)
	entries, _ := os.ReadDir(dir)
	assert.Empty(t, entries)
}

type staticPlan []model.ScheduleRef

func (p staticPlan) ReadSchedules(_ context.Context, ids []string) ([]model.ScheduleRef, error) {
	var out []model.ScheduleRef
	for _, id := range ids {
		for _, s := range p {
			if s.ID == id {
				out = append(out, s)
			}
		}
	}
	return out, nil
}

func TestBuild_RefreshesRoutesFromPlan(t *testing.T) {
	bare := testutil.TwoStopRoute("s1", "r1")
	req := model.GenerationRequest{
		Templates: []model.TemplateRef{testutil.Template("summary", false)},
		Schedules: []model.ScheduleRef{testutil.Schedule("s1", testutil.Day, bare)},
	}
	stored := staticPlan{testutil.Schedule("s1", testutil.Day, testutil.WithDirections(bare))}

	b := NewBuilder(t.TempDir(), WithPlanSource(stored), WithFormats(FormatJSON, ""))
	jobs := planJobs(t, req)

	artifacts, err := b.Build(context.Background(), jobs[0])
	require.NoError(t, err)

	data, err := os.ReadFile(artifacts[0].Ref)
	require.NoError(t, err)
	var report Report
	require.NoError(t, json.Unmarshal(data, &report))
	require.Len(t, report.Routes, 1)
	assert.True(t, report.Routes[0].Directions, "directions computed during the run are reported")
}
