// Package prereq finds routes that are missing directions geometry and must
// be recomputed before artifacts that depend on them can be built.
package prereq

import "github.com/roach88/routegen/internal/model"

// Resolve returns the directions backlog for the given schedules.
//
// For every route with at least one stop, the route's real (non-break) stops
// are inspected. If none of them carries directions geometry the route joins
// its schedule's group. Routes without stops, and routes whose stops are all
// breaks, never join the backlog. Schedules with an empty group are omitted.
//
// Resolve is pure: it reads route state and has no side effects, so two calls
// over unmodified state return identical backlogs.
func Resolve(schedules []model.ScheduleRef) *model.DirectionsBacklog {
	backlog := &model.DirectionsBacklog{Groups: []model.BacklogGroup{}}
	for _, s := range schedules {
		var missing []model.RouteRef
		for _, r := range s.Routes {
			if NeedsDirections(r) {
				missing = append(missing, r)
			}
		}
		if len(missing) == 0 {
			continue
		}
		backlog.Groups = append(backlog.Groups, model.BacklogGroup{
			ScheduleID:   s.ID,
			ScheduleName: s.Name,
			Routes:       missing,
		})
	}
	return backlog
}

// NeedsDirections reports whether a route has at least one real stop and
// none of its real stops carries directions geometry.
func NeedsDirections(r model.RouteRef) bool {
	eligible := false
	for _, st := range r.Stops {
		if !st.Kind.IsGeographic() {
			continue
		}
		if st.HasDirections() {
			return false
		}
		eligible = true
	}
	return eligible
}

// ForRequest narrows the request's schedules to the routes it implicates and
// resolves the backlog over them. In route scope only the selected routes are
// inspected; in date-range scope every route of every schedule is.
func ForRequest(req model.GenerationRequest) *model.DirectionsBacklog {
	return Resolve(ImplicatedSchedules(req))
}

// ImplicatedSchedules returns the schedules of the request, each carrying only
// the routes the request implicates.
func ImplicatedSchedules(req model.GenerationRequest) []model.ScheduleRef {
	if req.Scope() != model.ScopeRoutes {
		return req.Schedules
	}

	selected := make(map[string]bool, len(req.Routes))
	for _, r := range req.Routes {
		selected[r.ID] = true
	}

	out := make([]model.ScheduleRef, 0, len(req.Schedules))
	for _, s := range req.Schedules {
		narrowed := s
		narrowed.Routes = nil
		for _, r := range s.Routes {
			if selected[r.ID] {
				narrowed.Routes = append(narrowed.Routes, r)
			}
		}
		out = append(out, narrowed)
	}
	return out
}
