package testutil

import (
	"time"

	"github.com/paulmach/orb"

	"github.com/roach88/routegen/internal/model"
)

// Day is the default schedule date used by fixtures.
var Day = time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)

// Stop builds a stop at (lon, lat) without directions.
func Stop(id string, kind model.StopKind, lon, lat float64) model.Stop {
	return model.Stop{ID: id, Name: id, Kind: kind, Location: orb.Point{lon, lat}}
}

// Route builds a route of a schedule. Stops are owned by the route.
func Route(scheduleID, id string, stops ...model.Stop) model.RouteRef {
	return model.RouteRef{ID: id, Name: id, ScheduleID: scheduleID, Stops: stops}
}

// TwoStopRoute builds a route with a depot and one order and no directions.
func TwoStopRoute(scheduleID, id string) model.RouteRef {
	return Route(scheduleID, id,
		Stop(id+"-depot", model.StopKindDepot, 4.35, 50.85),
		Stop(id+"-order", model.StopKindOrder, 4.40, 50.88),
	)
}

// WithDirections returns a copy of r where every real stop after the first
// carries a straight segment from the previous real stop.
func WithDirections(r model.RouteRef) model.RouteRef {
	out := r
	out.Stops = make([]model.Stop, len(r.Stops))
	copy(out.Stops, r.Stops)

	var prev *orb.Point
	for i := range out.Stops {
		s := &out.Stops[i]
		if !s.Kind.IsGeographic() {
			continue
		}
		if prev != nil {
			s.Directions = orb.LineString{*prev, s.Location}
		}
		loc := s.Location
		prev = &loc
	}
	return out
}

// Schedule builds a schedule on the given date.
func Schedule(id string, date time.Time, routes ...model.RouteRef) model.ScheduleRef {
	return model.ScheduleRef{ID: id, Name: id, Date: date, Routes: routes}
}

// Template builds a report template without sub-templates.
func Template(id string, heavy bool) model.TemplateRef {
	return model.TemplateRef{ID: id, Name: id, Kind: model.TemplateKindReport, IsResourceHeavy: heavy}
}

// Select references routes by ID, the way a UI selection does.
func Select(routes ...model.RouteRef) []model.RouteRef {
	out := make([]model.RouteRef, len(routes))
	for i, r := range routes {
		out[i] = model.RouteRef{ID: r.ID, Name: r.Name, ScheduleID: r.ScheduleID}
	}
	return out
}
