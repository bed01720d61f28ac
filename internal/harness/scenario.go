package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"gopkg.in/yaml.v3"

	"github.com/roach88/routegen/internal/model"
	"github.com/roach88/routegen/internal/testutil"
)

// Scenario defines an orchestration test scenario.
//
// A scenario describes a generation request over fixture schedules, scripts
// how the directions service and the artifact builder behave, and states the
// expected outcome and trace.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// RunID pins the run ID for deterministic traces.
	// Defaults to "test-run".
	RunID string `yaml:"run_id,omitempty"`

	// Templates are the requested templates, in request order.
	Templates []TemplateFixture `yaml:"templates"`

	// Schedules are the requested schedules with their routes.
	Schedules []ScheduleFixture `yaml:"schedules"`

	// Routes optionally selects routes of the single schedule by ID.
	// Without it the request covers every route of every schedule.
	Routes []string `yaml:"routes,omitempty"`

	SeparatePerRoute bool `yaml:"separate_per_route,omitempty"`

	// MaxJobs overrides the job quota. Zero keeps the engine default.
	MaxJobs int `yaml:"max_jobs,omitempty"`

	// Directions scripts the directions service per schedule.
	Directions []DirectionsStep `yaml:"directions,omitempty"`

	// Build scripts the artifact builder per template (and route).
	Build []BuildStep `yaml:"build,omitempty"`

	// Expect states the terminal outcome.
	Expect Expectation `yaml:"expect"`

	// Assertions validate the trace and the recorded run log.
	// Supported types: trace_contains, trace_order, trace_count, final_state
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// TemplateFixture describes one requested template.
type TemplateFixture struct {
	ID           string               `yaml:"id"`
	Name         string               `yaml:"name,omitempty"`
	Kind         string               `yaml:"kind,omitempty"`
	Heavy        bool                 `yaml:"heavy,omitempty"`
	SubTemplates []SubTemplateFixture `yaml:"sub_templates,omitempty"`
}

// SubTemplateFixture describes one selectable row of a template.
type SubTemplateFixture struct {
	ID      string `yaml:"id"`
	Group   string `yaml:"group,omitempty"`
	Default bool   `yaml:"default,omitempty"`
	Checked bool   `yaml:"checked,omitempty"`
}

// ScheduleFixture describes a schedule. Date is YYYY-MM-DD and defaults
// to 2024-03-04.
type ScheduleFixture struct {
	ID     string         `yaml:"id"`
	Name   string         `yaml:"name,omitempty"`
	Date   string         `yaml:"date,omitempty"`
	Routes []RouteFixture `yaml:"routes"`
}

// RouteFixture describes a route. Without stops the route gets a depot and
// one order. Directions marks the route as already routed.
type RouteFixture struct {
	ID         string        `yaml:"id"`
	Name       string        `yaml:"name,omitempty"`
	Directions bool          `yaml:"directions,omitempty"`
	Stops      []StopFixture `yaml:"stops,omitempty"`
}

// StopFixture describes one stop of a route.
type StopFixture struct {
	ID   string  `yaml:"id"`
	Kind string  `yaml:"kind"`
	Lon  float64 `yaml:"lon"`
	Lat  float64 `yaml:"lat"`
}

// DirectionsStep scripts the directions call for one schedule.
type DirectionsStep struct {
	Schedule string `yaml:"schedule"`
	Action   string `yaml:"action"`
	Message  string `yaml:"message,omitempty"`
}

// BuildStep scripts build calls for jobs containing Template. With Route
// set, only the serialized job for that route matches.
type BuildStep struct {
	Template string `yaml:"template"`
	Route    string `yaml:"route,omitempty"`
	Action   string `yaml:"action"`
	Message  string `yaml:"message,omitempty"`
}

// Expectation specifies the terminal outcome of the scenario.
type Expectation struct {
	// Status is completed, cancelled, failed or rejected.
	Status string `yaml:"status"`

	// ErrorCode is the expected GenerationError code.
	ErrorCode string `yaml:"error_code,omitempty"`

	// Artifacts are the expected artifact names, in order. Checked whenever
	// the run was not rejected; an absent list expects no artifacts.
	Artifacts []string `yaml:"artifacts,omitempty"`

	// MaxInFlight bounds the number of overlapping service calls.
	// Zero means no check.
	MaxInFlight int `yaml:"max_in_flight,omitempty"`

	DirectionsCalls *int `yaml:"directions_calls,omitempty"`
	BuildCalls      *int `yaml:"build_calls,omitempty"`

	// SubTemplates maps template IDs to the sub-template IDs the builder
	// must have received.
	SubTemplates map[string][]string `yaml:"sub_templates,omitempty"`
}

// EventMatch selects trace events by kind and a subset of detail fields.
type EventMatch struct {
	Kind   string         `yaml:"kind"`
	Detail map[string]any `yaml:"detail,omitempty"`
}

// String describes the match for assertion messages.
func (m EventMatch) String() string {
	if len(m.Detail) == 0 {
		return m.Kind
	}
	keys := make([]string, 0, len(m.Detail))
	for k := range m.Detail {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%v", k, m.Detail[k])
	}
	return m.Kind + "{" + strings.Join(parts, ", ") + "}"
}

// Assertion validates the trace or the recorded run log.
type Assertion struct {
	// Type specifies the assertion type:
	// - "trace_contains": an event matching Kind and Detail occurs
	// - "trace_order": Events occur in the given order
	// - "trace_count": events matching Kind and Detail occur exactly Count times
	// - "final_state": query a run log table and verify expected values
	Type string `yaml:"type"`

	// Kind is the progress kind (used by trace_contains, trace_count).
	Kind string `yaml:"kind,omitempty"`

	// Detail holds expected detail fields (used by trace_contains, trace_count).
	// Subset match - only specified fields are validated.
	Detail map[string]any `yaml:"detail,omitempty"`

	// Count is the expected number of occurrences (used by trace_count).
	Count int `yaml:"count,omitempty"`

	// Events is the expected event order (used by trace_order).
	Events []EventMatch `yaml:"events,omitempty"`

	// Table is the run log table name (used by final_state).
	Table string `yaml:"table,omitempty"`

	// Where specifies query filters (used by final_state).
	// All fields must match exactly.
	Where map[string]any `yaml:"where,omitempty"`

	// Expect contains expected field values (used by final_state).
	// Subset match - only specified fields are validated.
	Expect map[string]any `yaml:"expect,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertFinalState    = "final_state"
)

const defaultScheduleDate = "2024-03-04"

var validStatuses = []string{StatusCompleted, StatusCancelled, StatusFailed, StatusRejected}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Strict field validation catches typos like "assertion:" vs "assertions:".
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// FindScenarios returns the YAML scenario files under dir, sorted by path.
// A non-empty filter is a glob matched against the file name without
// extension.
func FindScenarios(dir, filter string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := filepath.Ext(path)
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}
		if filter != "" {
			name := strings.TrimSuffix(filepath.Base(path), ext)
			matched, err := filepath.Match(filter, name)
			if err != nil {
				return fmt.Errorf("invalid filter pattern: %w", err)
			}
			if !matched {
				return nil
			}
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Templates) == 0 {
		return fmt.Errorf("templates list is required and must be non-empty")
	}
	if len(s.Schedules) == 0 {
		return fmt.Errorf("schedules list is required and must be non-empty")
	}

	for i, t := range s.Templates {
		if t.ID == "" {
			return fmt.Errorf("templates[%d]: id is required", i)
		}
		switch model.TemplateKind(t.Kind) {
		case "", model.TemplateKindReport, model.TemplateKindExport:
		default:
			return fmt.Errorf("templates[%d]: unknown kind %q", i, t.Kind)
		}
		for j, st := range t.SubTemplates {
			if st.ID == "" {
				return fmt.Errorf("templates[%d].sub_templates[%d]: id is required", i, j)
			}
		}
	}

	for i, sch := range s.Schedules {
		if sch.ID == "" {
			return fmt.Errorf("schedules[%d]: id is required", i)
		}
		if sch.Date != "" {
			if _, err := time.Parse(time.DateOnly, sch.Date); err != nil {
				return fmt.Errorf("schedules[%d]: invalid date %q", i, sch.Date)
			}
		}
		for j, r := range sch.Routes {
			if r.ID == "" {
				return fmt.Errorf("schedules[%d].routes[%d]: id is required", i, j)
			}
			for k, st := range r.Stops {
				if st.ID == "" {
					return fmt.Errorf("schedules[%d].routes[%d].stops[%d]: id is required", i, j, k)
				}
				switch model.StopKind(st.Kind) {
				case model.StopKindDepot, model.StopKindOrder, model.StopKindBreak:
				default:
					return fmt.Errorf("schedules[%d].routes[%d].stops[%d]: unknown kind %q", i, j, k, st.Kind)
				}
			}
		}
	}

	for i, d := range s.Directions {
		if d.Schedule == "" {
			return fmt.Errorf("directions[%d]: schedule is required", i)
		}
		if err := validateAction(d.Action); err != nil {
			return fmt.Errorf("directions[%d]: %w", i, err)
		}
	}
	for i, b := range s.Build {
		if b.Template == "" {
			return fmt.Errorf("build[%d]: template is required", i)
		}
		if err := validateAction(b.Action); err != nil {
			return fmt.Errorf("build[%d]: %w", i, err)
		}
	}

	if s.Expect.Status == "" {
		return fmt.Errorf("expect.status is required")
	}
	if !slices.Contains(validStatuses, s.Expect.Status) {
		return fmt.Errorf("expect.status must be one of %s, got %q", strings.Join(validStatuses, ", "), s.Expect.Status)
	}
	if s.Expect.MaxInFlight < 0 {
		return fmt.Errorf("expect.max_in_flight must be non-negative")
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

func validateAction(action string) error {
	switch testutil.Action(action) {
	case testutil.ActionFail, testutil.ActionCancel:
		return nil
	case "":
		return fmt.Errorf("action is required")
	default:
		return fmt.Errorf("unknown action %q (want fail or cancel)", action)
	}
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertTraceContains:
		if a.Kind == "" {
			return fmt.Errorf("assertions[%d]: kind is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Events) == 0 {
			return fmt.Errorf("assertions[%d]: events list is required for trace_order", index)
		}
		for j, e := range a.Events {
			if e.Kind == "" {
				return fmt.Errorf("assertions[%d].events[%d]: kind is required", index, j)
			}
		}
	case AssertTraceCount:
		if a.Kind == "" {
			return fmt.Errorf("assertions[%d]: kind is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertFinalState:
		if a.Table == "" {
			return fmt.Errorf("assertions[%d]: table is required for final_state", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}

// Request builds the generation request the scenario describes.
func (s *Scenario) Request() (model.GenerationRequest, error) {
	req := model.GenerationRequest{SeparatePerRoute: s.SeparatePerRoute}

	for _, t := range s.Templates {
		ref := model.TemplateRef{
			ID:              t.ID,
			Name:            t.Name,
			Kind:            model.TemplateKind(t.Kind),
			IsResourceHeavy: t.Heavy,
		}
		if ref.Name == "" {
			ref.Name = t.ID
		}
		if ref.Kind == "" {
			ref.Kind = model.TemplateKindReport
		}
		for _, st := range t.SubTemplates {
			ref.SubTemplates = append(ref.SubTemplates, model.SubTemplateRef{
				ID:      st.ID,
				Name:    st.ID,
				GroupID: st.Group,
				Default: st.Default,
				Checked: st.Checked,
			})
		}
		req.Templates = append(req.Templates, ref)
	}

	for _, sf := range s.Schedules {
		date := sf.Date
		if date == "" {
			date = defaultScheduleDate
		}
		day, err := time.Parse(time.DateOnly, date)
		if err != nil {
			return model.GenerationRequest{}, fmt.Errorf("schedule %s: %w", sf.ID, err)
		}
		routes := make([]model.RouteRef, len(sf.Routes))
		for i, rf := range sf.Routes {
			routes[i] = rf.route(sf.ID)
		}
		sch := testutil.Schedule(sf.ID, day, routes...)
		if sf.Name != "" {
			sch.Name = sf.Name
		}
		req.Schedules = append(req.Schedules, sch)
	}

	for _, id := range s.Routes {
		r := model.RouteRef{ID: id}
		for _, sch := range req.Schedules {
			if found, ok := sch.Route(id); ok {
				r = model.RouteRef{ID: found.ID, Name: found.Name, ScheduleID: found.ScheduleID}
				break
			}
		}
		req.Routes = append(req.Routes, r)
	}

	return req, nil
}

func (rf RouteFixture) route(scheduleID string) model.RouteRef {
	var r model.RouteRef
	if len(rf.Stops) == 0 {
		r = testutil.TwoStopRoute(scheduleID, rf.ID)
	} else {
		stops := make([]model.Stop, len(rf.Stops))
		for i, st := range rf.Stops {
			stops[i] = model.Stop{
				ID:       st.ID,
				Name:     st.ID,
				Kind:     model.StopKind(st.Kind),
				Location: orb.Point{st.Lon, st.Lat},
			}
		}
		r = testutil.Route(scheduleID, rf.ID, stops...)
	}
	if rf.Name != "" {
		r.Name = rf.Name
	}
	if rf.Directions {
		r = testutil.WithDirections(r)
	}
	return r
}
