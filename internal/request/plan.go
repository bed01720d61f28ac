package request

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/paulmach/orb"
	"gopkg.in/yaml.v3"

	"github.com/roach88/routegen/internal/model"
)

// PlanFile is the YAML shape of planning data for import.
//
//	schedules:
//	  - id: S1
//	    name: Monday
//	    date: 2024-03-04
//	    routes:
//	      - id: R1
//	        stops:
//	          - {id: depot, kind: depot, lon: 4.35, lat: 50.85}
//	          - {id: lunch, kind: break}
//	          - {id: o1, kind: order, lon: 4.40, lat: 50.88}
type PlanFile struct {
	Schedules []PlanSchedule `yaml:"schedules"`
}

// PlanSchedule is one schedule of a plan file.
type PlanSchedule struct {
	ID     string      `yaml:"id"`
	Name   string      `yaml:"name"`
	Date   string      `yaml:"date"`
	Routes []PlanRoute `yaml:"routes"`
}

// PlanRoute is one route of a plan file.
type PlanRoute struct {
	ID    string     `yaml:"id"`
	Name  string     `yaml:"name"`
	Stops []PlanStop `yaml:"stops"`
}

// PlanStop is one stop of a plan file. Breaks carry no coordinates.
type PlanStop struct {
	ID   string  `yaml:"id"`
	Name string  `yaml:"name"`
	Kind string  `yaml:"kind"`
	Lon  float64 `yaml:"lon"`
	Lat  float64 `yaml:"lat"`
}

// LoadPlan reads a plan file and returns its schedules.
func LoadPlan(path string) ([]model.ScheduleRef, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParsePlan(data)
}

// ParsePlan decodes plan file content. Unknown fields are rejected.
func ParsePlan(data []byte) ([]model.ScheduleRef, error) {
	var pf PlanFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&pf); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &Error{Field: "plan", Message: "empty plan file"}
		}
		return nil, &Error{Field: "yaml", Message: err.Error()}
	}
	return pf.toSchedules()
}

// toSchedules converts the file into model schedules, checking IDs, dates
// and stop kinds.
func (pf PlanFile) toSchedules() ([]model.ScheduleRef, error) {
	if len(pf.Schedules) == 0 {
		return nil, &Error{Field: "schedules", Message: "at least one schedule is required"}
	}

	seenSchedules := map[string]bool{}
	seenRoutes := map[string]bool{}
	out := make([]model.ScheduleRef, 0, len(pf.Schedules))
	for i, s := range pf.Schedules {
		field := fmt.Sprintf("schedules[%d]", i)
		if s.ID == "" {
			return nil, &Error{Field: field + ".id", Message: "id is required"}
		}
		if seenSchedules[s.ID] {
			return nil, &Error{Field: field + ".id", Message: fmt.Sprintf("duplicate schedule %q", s.ID)}
		}
		seenSchedules[s.ID] = true

		date, err := time.Parse(dateLayout, s.Date)
		if err != nil {
			return nil, &Error{Field: field + ".date", Message: fmt.Sprintf("invalid date %q (want YYYY-MM-DD)", s.Date)}
		}

		sch := model.ScheduleRef{ID: s.ID, Name: orDefault(s.Name, s.ID), Date: date}
		for j, r := range s.Routes {
			rfield := fmt.Sprintf("%s.routes[%d]", field, j)
			if r.ID == "" {
				return nil, &Error{Field: rfield + ".id", Message: "id is required"}
			}
			if seenRoutes[r.ID] {
				return nil, &Error{Field: rfield + ".id", Message: fmt.Sprintf("duplicate route %q", r.ID)}
			}
			seenRoutes[r.ID] = true

			route := model.RouteRef{ID: r.ID, Name: orDefault(r.Name, r.ID), ScheduleID: s.ID}
			for k, st := range r.Stops {
				stop, err := st.stop()
				if err != nil {
					return nil, &Error{Field: fmt.Sprintf("%s.stops[%d]", rfield, k), Message: err.Error()}
				}
				route.Stops = append(route.Stops, stop)
			}
			sch.Routes = append(sch.Routes, route)
		}
		out = append(out, sch)
	}
	return out, nil
}

func (st PlanStop) stop() (model.Stop, error) {
	if st.ID == "" {
		return model.Stop{}, errors.New("id is required")
	}
	kind := model.StopKind(st.Kind)
	switch kind {
	case model.StopKindDepot, model.StopKindOrder:
		if st.Lon < -180 || st.Lon > 180 || st.Lat < -90 || st.Lat > 90 {
			return model.Stop{}, fmt.Errorf("coordinates out of range (%g, %g)", st.Lon, st.Lat)
		}
		return model.Stop{ID: st.ID, Name: orDefault(st.Name, st.ID), Kind: kind, Location: orb.Point{st.Lon, st.Lat}}, nil
	case model.StopKindBreak:
		return model.Stop{ID: st.ID, Name: orDefault(st.Name, st.ID), Kind: kind}, nil
	default:
		return model.Stop{}, fmt.Errorf("unknown kind %q (want depot, order or break)", st.Kind)
	}
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
