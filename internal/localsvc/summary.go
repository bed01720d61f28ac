package localsvc

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"

	"github.com/roach88/routegen/internal/model"
)

// DefaultAverageSpeedKmh is the driving speed used for time estimates.
const DefaultAverageSpeedKmh = 40.0

// RouteSummary is the per-route figure set shared by reports and logs.
type RouteSummary struct {
	ID           string  `json:"id" yaml:"id"`
	Name         string  `json:"name" yaml:"name"`
	ScheduleID   string  `json:"schedule_id" yaml:"schedule_id"`
	Stops        int     `json:"stops" yaml:"stops"`
	Orders       int     `json:"orders" yaml:"orders"`
	Breaks       int     `json:"breaks" yaml:"breaks"`
	DistanceKm   float64 `json:"distance_km" yaml:"distance_km"`
	DriveMinutes float64 `json:"drive_minutes" yaml:"drive_minutes"`
	Directions   bool    `json:"directions" yaml:"directions"`
}

// Summarize computes the figures of a route. Distance is the geodesic
// length of the stored directions; routes without directions report zero.
func Summarize(r model.RouteRef, speedKmh float64) RouteSummary {
	s := RouteSummary{ID: r.ID, Name: r.Name, ScheduleID: r.ScheduleID, Stops: len(r.Stops)}
	meters := 0.0
	for _, st := range r.Stops {
		switch st.Kind {
		case model.StopKindOrder:
			s.Orders++
		case model.StopKindBreak:
			s.Breaks++
		}
		if st.HasDirections() {
			s.Directions = true
			meters += geo.Length(st.Directions)
		}
	}
	s.DistanceKm = round(meters/1000, 3)
	if speedKmh > 0 {
		s.DriveMinutes = round(s.DistanceKm/speedKmh*60, 1)
	}
	return s
}

// Path concatenates the directions of a route into one line, dropping
// repeated consecutive points.
func Path(r model.RouteRef) orb.LineString {
	var path orb.LineString
	for _, st := range r.Stops {
		for _, p := range st.Directions {
			if len(path) > 0 && path[len(path)-1].Equal(p) {
				continue
			}
			path = append(path, p)
		}
	}
	return path
}

func round(v float64, places int) float64 {
	scale := math.Pow10(places)
	return math.Round(v*scale) / scale
}
