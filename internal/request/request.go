// Package request loads generation request files.
//
// A request file is YAML or CUE. Both are validated against the embedded
// CUE schema (#Request) before decoding, so unknown fields and malformed
// values are rejected with a position. Schedules are referenced by ID or
// by date range and resolved against a ScheduleSource.
package request

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
	"gopkg.in/yaml.v3"

	"github.com/roach88/routegen/internal/model"
)

//go:embed schema.cue
var schemaCUE string

const (
	dateLayout = "2006-01-02"
	schemaFile = "schema.cue"
)

// Spec is a decoded request file.
type Spec struct {
	Templates        []model.TemplateRef `json:"templates"`
	Schedules        []string            `json:"schedules,omitempty"`
	DateRange        *DateRange          `json:"date_range,omitempty"`
	Routes           []string            `json:"routes,omitempty"`
	SeparatePerRoute *bool               `json:"separate_per_route,omitempty"`
}

// DateRange selects every schedule dated within [From, To].
type DateRange struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Bounds parses the range.
func (d DateRange) Bounds() (time.Time, time.Time, error) {
	from, err := time.Parse(dateLayout, d.From)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("date_range.from: %w", err)
	}
	to, err := time.Parse(dateLayout, d.To)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("date_range.to: %w", err)
	}
	if to.Before(from) {
		return time.Time{}, time.Time{}, fmt.Errorf("date_range: to %s is before from %s", d.To, d.From)
	}
	return from, to, nil
}

// Error is a request file that does not satisfy the schema.
type Error struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *Error) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// IsError reports whether err is a request file error.
func IsError(err error) bool {
	var e *Error
	return errors.As(err, &e)
}

// LoadFile reads and validates a request file. The format follows the
// extension: .cue, or .yaml/.yml.
func LoadFile(path string) (*Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(path, data)
}

// Parse validates and decodes a request file's content. name is used for
// the format and in error positions.
func Parse(name string, data []byte) (*Spec, error) {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaCUE, cue.Filename(schemaFile))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("compile request schema: %w", err)
	}

	var v cue.Value
	switch strings.ToLower(filepath.Ext(name)) {
	case ".cue":
		v = ctx.CompileBytes(data, cue.Filename(name))
	case ".yaml", ".yml":
		var raw any
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, &Error{Field: "yaml", Message: err.Error()}
		}
		if raw == nil {
			return nil, &Error{Field: "request", Message: "empty request file"}
		}
		v = ctx.Encode(normalize(raw))
	default:
		return nil, &Error{Field: "request", Message: fmt.Sprintf("unsupported request file %q (want .cue, .yaml or .yml)", name)}
	}
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	v = schema.LookupPath(cue.ParsePath("#Request")).Unify(v)
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}

	var spec Spec
	if err := v.Decode(&spec); err != nil {
		return nil, formatCUEError(err)
	}
	if err := spec.check(); err != nil {
		return nil, err
	}
	return &spec, nil
}

// check enforces what the schema cannot express.
func (s *Spec) check() error {
	if len(s.Schedules) == 0 && s.DateRange == nil {
		return &Error{Field: "schedules", Message: "either schedules or date_range is required"}
	}
	if len(s.Schedules) > 0 && s.DateRange != nil {
		return &Error{Field: "date_range", Message: "schedules and date_range are mutually exclusive"}
	}
	if s.DateRange != nil {
		if _, _, err := s.DateRange.Bounds(); err != nil {
			return &Error{Field: "date_range", Message: err.Error()}
		}
	}
	return nil
}

// ScheduleSource reads stored schedules.
type ScheduleSource interface {
	ReadSchedules(ctx context.Context, ids []string) ([]model.ScheduleRef, error)
	ReadSchedulesInRange(ctx context.Context, from, to time.Time) ([]model.ScheduleRef, error)
}

// Defaults fills fields a request file leaves unset.
type Defaults struct {
	SeparatePerRoute bool
}

// Resolve turns the spec into a GenerationRequest by reading schedules
// from src. Route IDs are looked up in the resolved schedules.
func (s *Spec) Resolve(ctx context.Context, src ScheduleSource, d Defaults) (model.GenerationRequest, error) {
	var (
		schedules []model.ScheduleRef
		err       error
	)
	if s.DateRange != nil {
		from, to, berr := s.DateRange.Bounds()
		if berr != nil {
			return model.GenerationRequest{}, berr
		}
		schedules, err = src.ReadSchedulesInRange(ctx, from, to)
	} else {
		schedules, err = src.ReadSchedules(ctx, s.Schedules)
	}
	if err != nil {
		return model.GenerationRequest{}, fmt.Errorf("resolve schedules: %w", err)
	}

	req := model.GenerationRequest{
		Templates:        make([]model.TemplateRef, len(s.Templates)),
		Schedules:        schedules,
		SeparatePerRoute: d.SeparatePerRoute,
	}
	if s.SeparatePerRoute != nil {
		req.SeparatePerRoute = *s.SeparatePerRoute
	}
	for i, t := range s.Templates {
		if t.Name == "" {
			t.Name = t.ID
		}
		if t.Kind == "" {
			t.Kind = model.TemplateKindReport
		}
		req.Templates[i] = t
	}

	for _, id := range s.Routes {
		r, ok := findRoute(schedules, id)
		if !ok {
			return model.GenerationRequest{}, fmt.Errorf("resolve routes: route %s is not in the requested schedules", id)
		}
		req.Routes = append(req.Routes, r)
	}
	return req, nil
}

func findRoute(schedules []model.ScheduleRef, id string) (model.RouteRef, bool) {
	for _, s := range schedules {
		if r, ok := s.Route(id); ok {
			return r, true
		}
	}
	return model.RouteRef{}, false
}

// normalize converts YAML values into the shapes cue.Context.Encode
// accepts and renders timestamps as dates.
func normalize(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, e := range val {
			out[k] = normalize(e)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, e := range val {
			out[fmt.Sprint(k)] = normalize(e)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = normalize(e)
		}
		return out
	case time.Time:
		return val.Format(dateLayout)
	default:
		return v
	}
}

// formatCUEError extracts the field path and position from CUE errors.
// Paths are relative to the request, and schema positions are dropped.
func formatCUEError(err error) error {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return &Error{Field: "request", Message: err.Error()}
	}

	first := errs[0]
	path := first.Path()
	if len(path) > 0 && path[0] == "#Request" {
		path = path[1:]
	}
	field := strings.Join(path, ".")
	if field == "" {
		field = "request"
	}
	format, args := first.Msg()
	e := &Error{Field: field, Message: fmt.Sprintf(format, args...)}
	for _, pos := range cueerrors.Positions(first) {
		if pos.IsValid() && pos.Filename() != schemaFile {
			e.Pos = pos
			break
		}
	}
	return e
}
