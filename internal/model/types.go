package model

import (
	"time"

	"github.com/paulmach/orb"
)

// StopKind classifies a stop on a route.
type StopKind string

const (
	// StopKindDepot is a start/end location (warehouse, yard).
	StopKindDepot StopKind = "depot"
	// StopKindOrder is a delivery or pickup location.
	StopKindOrder StopKind = "order"
	// StopKindBreak is a driver break. Breaks have no geography of their own.
	StopKindBreak StopKind = "break"
)

// IsGeographic reports whether the stop is a real location that
// directions can be computed for.
func (k StopKind) IsGeographic() bool {
	return k != StopKindBreak
}

// Stop is one visit on a route.
//
// Directions holds the driving geometry leading into this stop. It is
// empty until a directions computation has been persisted for the route.
type Stop struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	Kind       StopKind       `json:"kind"`
	Location   orb.Point      `json:"location"`
	Directions orb.LineString `json:"directions,omitempty"`
}

// HasDirections reports whether the stop carries non-empty directions geometry.
func (s Stop) HasDirections() bool {
	return len(s.Directions) > 0
}

// RouteRef is a route belonging to exactly one schedule.
type RouteRef struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	ScheduleID string `json:"schedule_id"`
	Stops      []Stop `json:"stops,omitempty"`
}

// ScheduleRef is a date-scoped container of routes.
type ScheduleRef struct {
	ID     string     `json:"id"`
	Name   string     `json:"name"`
	Date   time.Time  `json:"date"`
	Routes []RouteRef `json:"routes,omitempty"`
}

// Route looks up a route of this schedule by ID.
func (s ScheduleRef) Route(id string) (RouteRef, bool) {
	for _, r := range s.Routes {
		if r.ID == id {
			return r, true
		}
	}
	return RouteRef{}, false
}

// TemplateKind distinguishes report templates from data-export templates.
// Both go through the same orchestration; only the builder treats them differently.
type TemplateKind string

const (
	TemplateKindReport TemplateKind = "report"
	TemplateKindExport TemplateKind = "export"
)

// SubTemplateRef is one selectable row of a template (a sub-report or an
// export section).
//
// Sub-templates sharing a GroupID are mutually exclusive. Default marks the
// fallback member of a group; Checked marks an explicit user choice.
type SubTemplateRef struct {
	ID      string `json:"id"`
	Name    string `json:"name,omitempty"`
	GroupID string `json:"group_id,omitempty"`
	Default bool   `json:"default,omitempty"`
	Checked bool   `json:"checked,omitempty"`
}

// TemplateRef identifies an artifact template.
type TemplateRef struct {
	ID   string       `json:"id"`
	Name string       `json:"name"`
	Kind TemplateKind `json:"kind,omitempty"`

	// IsResourceHeavy forces serialized, one-route-at-a-time generation.
	IsResourceHeavy bool `json:"heavy,omitempty"`

	// SubTemplates are the candidate rows. After normalization a job's
	// templates only carry the effective rows.
	SubTemplates []SubTemplateRef `json:"sub_templates,omitempty"`
}

// Scope is the shape of a request's selection.
type Scope int

const (
	// ScopeDateRange covers every route of one or more schedules.
	ScopeDateRange Scope = iota + 1
	// ScopeRoutes covers an explicit route selection within one schedule.
	ScopeRoutes
)

func (s Scope) String() string {
	switch s {
	case ScopeDateRange:
		return "date_range"
	case ScopeRoutes:
		return "routes"
	default:
		return "unknown"
	}
}

// GenerationRequest is the immutable description of the desired output.
type GenerationRequest struct {
	Templates []TemplateRef `json:"templates"`
	Schedules []ScheduleRef `json:"schedules"`

	// Routes optionally narrows the request to routes of a single schedule.
	Routes []RouteRef `json:"routes,omitempty"`

	// SeparatePerRoute asks for one artifact per route even for light templates.
	SeparatePerRoute bool `json:"separate_per_route,omitempty"`
}

// Scope reports the selection scope of the request.
func (r GenerationRequest) Scope() Scope {
	if len(r.Routes) > 0 {
		return ScopeRoutes
	}
	return ScopeDateRange
}

// TemplateIDs returns template IDs in request order.
func (r GenerationRequest) TemplateIDs() []string {
	ids := make([]string, len(r.Templates))
	for i, t := range r.Templates {
		ids[i] = t.ID
	}
	return ids
}

// Clone returns a deep copy so the caller's slices can't alias a submitted request.
func (r GenerationRequest) Clone() GenerationRequest {
	out := GenerationRequest{SeparatePerRoute: r.SeparatePerRoute}
	out.Templates = make([]TemplateRef, len(r.Templates))
	for i, t := range r.Templates {
		out.Templates[i] = t.clone()
	}
	out.Schedules = make([]ScheduleRef, len(r.Schedules))
	for i, s := range r.Schedules {
		out.Schedules[i] = s.clone()
	}
	if r.Routes != nil {
		out.Routes = make([]RouteRef, len(r.Routes))
		for i, rt := range r.Routes {
			out.Routes[i] = rt.clone()
		}
	}
	return out
}

func (t TemplateRef) clone() TemplateRef {
	c := t
	if t.SubTemplates != nil {
		c.SubTemplates = append([]SubTemplateRef(nil), t.SubTemplates...)
	}
	return c
}

func (s ScheduleRef) clone() ScheduleRef {
	c := s
	if s.Routes != nil {
		c.Routes = make([]RouteRef, len(s.Routes))
		for i, r := range s.Routes {
			c.Routes[i] = r.clone()
		}
	}
	return c
}

func (r RouteRef) clone() RouteRef {
	c := r
	if r.Stops != nil {
		c.Stops = make([]Stop, len(r.Stops))
		for i, st := range r.Stops {
			c.Stops[i] = st
			if st.Directions != nil {
				c.Stops[i].Directions = append(orb.LineString(nil), st.Directions...)
			}
		}
	}
	return c
}
