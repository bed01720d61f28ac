package localsvc

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/paulmach/orb/geojson"
	"gopkg.in/yaml.v3"

	"github.com/roach88/routegen/internal/decompose"
	"github.com/roach88/routegen/internal/model"
)

// Output formats.
const (
	FormatYAML    = "yaml"
	FormatJSON    = "json"
	FormatCSV     = "csv"
	FormatGeoJSON = "geojson"
)

// PlanSource reads the current planning state. When set on a Builder it
// replaces the routes carried by a job with their stored version, so
// directions computed during the run are reflected in the artifacts.
type PlanSource interface {
	ReadSchedules(ctx context.Context, ids []string) ([]model.ScheduleRef, error)
}

// Builder renders artifacts into a directory.
type Builder struct {
	dir          string
	reportFormat string
	exportFormat string
	speedKmh     float64
	plan         PlanSource
	logger       *slog.Logger
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithBuilderLogger sets the logger. Defaults to slog.Default().
func WithBuilderLogger(l *slog.Logger) BuilderOption {
	return func(b *Builder) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithFormats sets the report (yaml|json) and export (csv|geojson) formats.
// Empty values keep the defaults.
func WithFormats(report, export string) BuilderOption {
	return func(b *Builder) {
		if report != "" {
			b.reportFormat = report
		}
		if export != "" {
			b.exportFormat = export
		}
	}
}

// WithPlanSource refreshes job routes from src before rendering.
func WithPlanSource(src PlanSource) BuilderOption {
	return func(b *Builder) {
		b.plan = src
	}
}

// WithBuilderSpeed sets the speed used for drive-time figures.
func WithBuilderSpeed(kmh float64) BuilderOption {
	return func(b *Builder) {
		if kmh > 0 {
			b.speedKmh = kmh
		}
	}
}

// NewBuilder creates a builder writing into dir.
func NewBuilder(dir string, opts ...BuilderOption) *Builder {
	b := &Builder{
		dir:          dir,
		reportFormat: FormatYAML,
		exportFormat: FormatCSV,
		speedKmh:     DefaultAverageSpeedKmh,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build renders one file per planned output of job, in output order.
// Files already written stay on disk if a later output fails.
func (b *Builder) Build(ctx context.Context, job model.GenerationJob) ([]model.ArtifactDescriptor, error) {
	if len(job.Outputs) != len(job.Templates) {
		return nil, fmt.Errorf("job %q: %d outputs for %d templates", job.Name, len(job.Outputs), len(job.Templates))
	}
	if err := os.MkdirAll(b.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	routes, err := b.routes(ctx, job)
	if err != nil {
		return nil, err
	}

	artifacts := make([]model.ArtifactDescriptor, 0, len(job.Outputs))
	for i, out := range job.Outputs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		t := job.Templates[i]
		var (
			data   []byte
			format string
			err    error
		)
		if t.Kind == model.TemplateKindExport {
			format = b.exportFormat
			data, err = renderExport(format, routes)
		} else {
			format = b.reportFormat
			data, err = renderReport(format, b.report(out, t, job, routes))
		}
		if err != nil {
			return nil, fmt.Errorf("render %q: %w", out.Name, err)
		}

		path := filepath.Join(b.dir, decompose.FileName(out.Name)+"."+format)
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return nil, fmt.Errorf("write %q: %w", out.Name, err)
		}
		b.logger.Debug("artifact written", "job", job.Name, "template_id", t.ID, "path", path)

		artifacts = append(artifacts, model.ArtifactDescriptor{
			Name:       out.Name,
			TemplateID: out.TemplateID,
			Ref:        path,
		})
	}
	return artifacts, nil
}

// routes returns the job's routes, refreshed from the plan source if set.
func (b *Builder) routes(ctx context.Context, job model.GenerationJob) ([]model.RouteRef, error) {
	if b.plan == nil || len(job.Schedules) == 0 {
		return job.Routes, nil
	}

	ids := make([]string, len(job.Schedules))
	for i, s := range job.Schedules {
		ids[i] = s.ID
	}
	stored, err := b.plan.ReadSchedules(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("refresh routes: %w", err)
	}

	fresh := make(map[string]model.RouteRef)
	for _, s := range stored {
		for _, r := range s.Routes {
			fresh[r.ID] = r
		}
	}
	out := make([]model.RouteRef, len(job.Routes))
	for i, r := range job.Routes {
		if f, ok := fresh[r.ID]; ok {
			out[i] = f
			continue
		}
		out[i] = r
	}
	return out, nil
}

// Report is the document rendered for report templates.
type Report struct {
	Name        string            `json:"name" yaml:"name"`
	Template    string            `json:"template" yaml:"template"`
	Job         string            `json:"job" yaml:"job"`
	Sections    []string          `json:"sections,omitempty" yaml:"sections,omitempty"`
	Schedules   []ScheduleSummary `json:"schedules" yaml:"schedules"`
	Routes      []RouteSummary    `json:"routes" yaml:"routes"`
	TotalKm     float64           `json:"total_km" yaml:"total_km"`
	TotalOrders int               `json:"total_orders" yaml:"total_orders"`
}

// ScheduleSummary identifies a schedule in a report.
type ScheduleSummary struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
	Date string `json:"date,omitempty" yaml:"date,omitempty"`
}

func (b *Builder) report(out model.JobOutput, t model.TemplateRef, job model.GenerationJob, routes []model.RouteRef) Report {
	r := Report{
		Name:      out.Name,
		Template:  t.ID,
		Job:       job.Name,
		Schedules: make([]ScheduleSummary, len(job.Schedules)),
		Routes:    make([]RouteSummary, len(routes)),
	}
	for _, st := range t.SubTemplates {
		r.Sections = append(r.Sections, st.ID)
	}
	for i, s := range job.Schedules {
		r.Schedules[i] = ScheduleSummary{ID: s.ID, Name: s.Name}
		if !s.Date.IsZero() {
			r.Schedules[i].Date = s.Date.Format("2006-01-02")
		}
	}
	total := 0.0
	for i, route := range routes {
		sum := Summarize(route, b.speedKmh)
		r.Routes[i] = sum
		total += sum.DistanceKm
		r.TotalOrders += sum.Orders
	}
	r.TotalKm = round(total, 3)
	return r
}

func renderReport(format string, r Report) ([]byte, error) {
	switch format {
	case FormatYAML:
		return yaml.Marshal(r)
	case FormatJSON:
		return json.MarshalIndent(r, "", "  ")
	default:
		return nil, fmt.Errorf("unsupported report format %q", format)
	}
}

func renderExport(format string, routes []model.RouteRef) ([]byte, error) {
	switch format {
	case FormatCSV:
		return exportCSV(routes)
	case FormatGeoJSON:
		return exportGeoJSON(routes)
	default:
		return nil, fmt.Errorf("unsupported export format %q", format)
	}
}

// exportCSV writes one row per stop.
func exportCSV(routes []model.RouteRef) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	header := []string{"schedule_id", "route_id", "position", "stop_id", "stop_name", "kind", "lon", "lat"}
	if err := w.Write(header); err != nil {
		return nil, err
	}
	for _, r := range routes {
		for i, st := range r.Stops {
			row := []string{
				r.ScheduleID,
				r.ID,
				strconv.Itoa(i),
				st.ID,
				st.Name,
				string(st.Kind),
				strconv.FormatFloat(st.Location.Lon(), 'f', 6, 64),
				strconv.FormatFloat(st.Location.Lat(), 'f', 6, 64),
			}
			if err := w.Write(row); err != nil {
				return nil, err
			}
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// exportGeoJSON writes one LineString feature per routed route.
func exportGeoJSON(routes []model.RouteRef) ([]byte, error) {
	fc := geojson.NewFeatureCollection()
	for _, r := range routes {
		path := Path(r)
		if len(path) == 0 {
			continue
		}
		f := geojson.NewFeature(path)
		f.Properties["route_id"] = r.ID
		f.Properties["schedule_id"] = r.ScheduleID
		f.Properties["name"] = r.Name
		fc.Append(f)
	}
	return fc.MarshalJSON()
}
