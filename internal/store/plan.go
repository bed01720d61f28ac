package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/paulmach/orb"

	"github.com/roach88/routegen/internal/model"
)

// ErrNotFound is returned when a requested schedule, route or run does not exist.
var ErrNotFound = errors.New("not found")

// ImportPlan writes schedules with their routes and stops.
//
// An imported schedule replaces any stored schedule with the same ID,
// including its routes and stops. Directions geometry carried by the
// imported stops is stored as well. The import is atomic.
func (s *Store) ImportPlan(ctx context.Context, schedules []model.ScheduleRef) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("import plan: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	for _, sch := range schedules {
		if err := importSchedule(ctx, tx, sch); err != nil {
			return fmt.Errorf("import plan: schedule %s: %w", sch.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("import plan: commit: %w", err)
	}
	return nil
}

func importSchedule(ctx context.Context, tx *sql.Tx, sch model.ScheduleRef) error {
	if sch.ID == "" {
		return errors.New("schedule without id")
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO schedules (id, name, date)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, date = excluded.date
	`, sch.ID, sch.Name, marshalDate(sch.Date))
	if err != nil {
		return fmt.Errorf("upsert schedule: %w", err)
	}

	// Routes cascade to stops.
	if _, err := tx.ExecContext(ctx, `DELETE FROM routes WHERE schedule_id = ?`, sch.ID); err != nil {
		return fmt.Errorf("clear routes: %w", err)
	}

	for pos, r := range sch.Routes {
		if r.ScheduleID != "" && r.ScheduleID != sch.ID {
			return fmt.Errorf("route %s belongs to schedule %s", r.ID, r.ScheduleID)
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO routes (id, schedule_id, name, position)
			VALUES (?, ?, ?, ?)
		`, r.ID, sch.ID, r.Name, pos)
		if err != nil {
			return fmt.Errorf("insert route %s: %w", r.ID, err)
		}

		for i, st := range r.Stops {
			loc, err := marshalPoint(st.Location)
			if err != nil {
				return err
			}
			dir, err := marshalDirections(st.Directions)
			if err != nil {
				return err
			}
			_, err = tx.ExecContext(ctx, `
				INSERT INTO stops (route_id, position, id, name, kind, location, directions)
				VALUES (?, ?, ?, ?, ?, ?, ?)
			`, r.ID, i, st.ID, st.Name, string(st.Kind), loc, nullable(dir))
			if err != nil {
				return fmt.Errorf("insert stop %s of route %s: %w", st.ID, r.ID, err)
			}
		}
	}
	return nil
}

// ReadSchedules returns the schedules with the given IDs, in the given order,
// with their routes and stops. Returns an error wrapping ErrNotFound if any
// ID is unknown.
func (s *Store) ReadSchedules(ctx context.Context, ids []string) ([]model.ScheduleRef, error) {
	out := make([]model.ScheduleRef, 0, len(ids))
	for _, id := range ids {
		var name, date string
		err := s.db.QueryRowContext(ctx, `
			SELECT name, date FROM schedules WHERE id = ?
		`, id).Scan(&name, &date)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("read schedule %s: %w", id, ErrNotFound)
		}
		if err != nil {
			return nil, fmt.Errorf("read schedule %s: %w", id, err)
		}

		sch, err := s.loadSchedule(ctx, id, name, date)
		if err != nil {
			return nil, err
		}
		out = append(out, sch)
	}
	return out, nil
}

// ReadSchedulesInRange returns every schedule dated within [from, to],
// ordered by date then ID. Undated schedules are never included.
func (s *Store) ReadSchedulesInRange(ctx context.Context, from, to time.Time) ([]model.ScheduleRef, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, date FROM schedules
		WHERE date != '' AND date >= ? AND date <= ?
		ORDER BY date ASC, id COLLATE BINARY ASC
	`, marshalDate(from), marshalDate(to))
	if err != nil {
		return nil, fmt.Errorf("query schedules: %w", err)
	}

	type head struct{ id, name, date string }
	var heads []head
	for rows.Next() {
		var h head
		if err := rows.Scan(&h.id, &h.name, &h.date); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan schedule: %w", err)
		}
		heads = append(heads, h)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate schedules: %w", err)
	}
	// Close before loading routes: the pool holds a single connection.
	rows.Close()

	out := make([]model.ScheduleRef, 0, len(heads))
	for _, h := range heads {
		sch, err := s.loadSchedule(ctx, h.id, h.name, h.date)
		if err != nil {
			return nil, err
		}
		out = append(out, sch)
	}
	return out, nil
}

// loadSchedule reads the routes and stops of one schedule.
func (s *Store) loadSchedule(ctx context.Context, id, name, date string) (model.ScheduleRef, error) {
	d, err := unmarshalDate(date)
	if err != nil {
		return model.ScheduleRef{}, err
	}
	sch := model.ScheduleRef{ID: id, Name: name, Date: d, Routes: []model.RouteRef{}}

	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.name, s.id, s.name, s.kind, s.location, s.directions
		FROM routes r
		LEFT JOIN stops s ON s.route_id = r.id
		WHERE r.schedule_id = ?
		ORDER BY r.position ASC, s.position ASC
	`, id)
	if err != nil {
		return model.ScheduleRef{}, fmt.Errorf("query routes of %s: %w", id, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			routeID, routeName   string
			stopID, stopName     sql.NullString
			kind                 sql.NullString
			location, directions []byte
		)
		if err := rows.Scan(&routeID, &routeName, &stopID, &stopName, &kind, &location, &directions); err != nil {
			return model.ScheduleRef{}, fmt.Errorf("scan route: %w", err)
		}

		n := len(sch.Routes)
		if n == 0 || sch.Routes[n-1].ID != routeID {
			sch.Routes = append(sch.Routes, model.RouteRef{ID: routeID, Name: routeName, ScheduleID: id})
			n++
		}
		if !stopID.Valid {
			continue // route without stops
		}

		loc, err := unmarshalPoint(location)
		if err != nil {
			return model.ScheduleRef{}, fmt.Errorf("route %s stop %s: %w", routeID, stopID.String, err)
		}
		dir, err := unmarshalDirections(directions)
		if err != nil {
			return model.ScheduleRef{}, fmt.Errorf("route %s stop %s: %w", routeID, stopID.String, err)
		}
		sch.Routes[n-1].Stops = append(sch.Routes[n-1].Stops, model.Stop{
			ID:         stopID.String,
			Name:       stopName.String,
			Kind:       model.StopKind(kind.String),
			Location:   loc,
			Directions: dir,
		})
	}
	if err := rows.Err(); err != nil {
		return model.ScheduleRef{}, fmt.Errorf("iterate routes of %s: %w", id, err)
	}
	return sch, nil
}

// SaveDirections stores directions geometry for the stops of a route.
//
// directions is aligned with the route's stops in order; a nil entry
// clears the geometry of that stop. The number of entries must match the
// number of stored stops.
func (s *Store) SaveDirections(ctx context.Context, routeID string, directions []orb.LineString) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save directions: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	var count int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM stops WHERE route_id = ?`, routeID).Scan(&count); err != nil {
		return fmt.Errorf("save directions: count stops: %w", err)
	}
	if count == 0 {
		var exists int
		err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM routes WHERE id = ?`, routeID).Scan(&exists)
		if err != nil {
			return fmt.Errorf("save directions: %w", err)
		}
		if exists == 0 {
			return fmt.Errorf("save directions: route %s: %w", routeID, ErrNotFound)
		}
	}
	if count != len(directions) {
		return fmt.Errorf("save directions: route %s has %d stops, got %d geometries", routeID, count, len(directions))
	}

	for pos, ls := range directions {
		data, err := marshalDirections(ls)
		if err != nil {
			return fmt.Errorf("save directions: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE stops SET directions = ? WHERE route_id = ? AND position = ?
		`, nullable(data), routeID, pos)
		if err != nil {
			return fmt.Errorf("save directions: stop %d: %w", pos, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("save directions: commit: %w", err)
	}
	return nil
}
