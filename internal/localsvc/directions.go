package localsvc

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/paulmach/orb"

	"github.com/roach88/routegen/internal/model"
)

// DirectionsStore persists computed geometry, one entry per stop.
type DirectionsStore interface {
	SaveDirections(ctx context.Context, routeID string, directions []orb.LineString) error
}

// Directions computes directions geometry for backlog groups.
type Directions struct {
	store    DirectionsStore
	speedKmh float64
	logger   *slog.Logger
}

// DirectionsOption configures Directions.
type DirectionsOption func(*Directions)

// WithDirectionsLogger sets the logger. Defaults to slog.Default().
func WithDirectionsLogger(l *slog.Logger) DirectionsOption {
	return func(d *Directions) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithAverageSpeed sets the speed used for the logged drive-time estimate.
func WithAverageSpeed(kmh float64) DirectionsOption {
	return func(d *Directions) {
		if kmh > 0 {
			d.speedKmh = kmh
		}
	}
}

// NewDirections creates a directions service writing through store.
func NewDirections(store DirectionsStore, opts ...DirectionsOption) *Directions {
	d := &Directions{
		store:    store,
		speedKmh: DefaultAverageSpeedKmh,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// ComputeDirections computes and saves geometry for every route of the
// group, in order. It stops at the first failure; routes saved before the
// failure keep their geometry.
func (d *Directions) ComputeDirections(ctx context.Context, group model.BacklogGroup) error {
	for _, r := range group.Routes {
		if err := ctx.Err(); err != nil {
			return err
		}

		segments := Segments(r.Stops)
		if err := d.store.SaveDirections(ctx, r.ID, segments); err != nil {
			return fmt.Errorf("route %s: %w", r.ID, err)
		}

		routed := r
		routed.Stops = withDirections(r.Stops, segments)
		sum := Summarize(routed, d.speedKmh)
		d.logger.Debug("directions computed",
			"schedule_id", group.ScheduleID,
			"route_id", r.ID,
			"distance_km", sum.DistanceKm,
			"drive_minutes", sum.DriveMinutes)
	}
	return nil
}

// Segments returns straight-line directions aligned with stops.
//
// Each real stop gets the segment from the previous real stop. The first
// real stop gets a zero-length line at its own location so a route with a
// single real stop still counts as routed. Breaks get nil.
func Segments(stops []model.Stop) []orb.LineString {
	out := make([]orb.LineString, len(stops))
	var prev orb.Point
	seen := false
	for i, st := range stops {
		if !st.Kind.IsGeographic() {
			continue
		}
		from := st.Location
		if seen {
			from = prev
		}
		out[i] = orb.LineString{from, st.Location}
		prev = st.Location
		seen = true
	}
	return out
}

func withDirections(stops []model.Stop, segments []orb.LineString) []model.Stop {
	out := make([]model.Stop, len(stops))
	copy(out, stops)
	for i := range out {
		out[i].Directions = segments[i]
	}
	return out
}
