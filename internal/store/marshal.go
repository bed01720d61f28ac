package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"

	"github.com/roach88/routegen/internal/model"
)

const dateLayout = "2006-01-02"

// marshalPoint encodes a stop location as WKB.
func marshalPoint(p orb.Point) ([]byte, error) {
	data, err := wkb.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal location: %w", err)
	}
	return data, nil
}

// unmarshalPoint decodes a WKB stop location.
func unmarshalPoint(data []byte) (orb.Point, error) {
	geom, err := wkb.Unmarshal(data)
	if err != nil {
		return orb.Point{}, fmt.Errorf("unmarshal location: %w", err)
	}
	p, ok := geom.(orb.Point)
	if !ok {
		return orb.Point{}, fmt.Errorf("unmarshal location: got %s, want Point", geom.GeoJSONType())
	}
	return p, nil
}

// marshalDirections encodes directions geometry as WKB.
// Empty geometry is stored as NULL.
func marshalDirections(ls orb.LineString) ([]byte, error) {
	if len(ls) == 0 {
		return nil, nil
	}
	data, err := wkb.Marshal(ls)
	if err != nil {
		return nil, fmt.Errorf("marshal directions: %w", err)
	}
	return data, nil
}

// unmarshalDirections decodes WKB directions; NULL yields nil.
func unmarshalDirections(data []byte) (orb.LineString, error) {
	if len(data) == 0 {
		return nil, nil
	}
	geom, err := wkb.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("unmarshal directions: %w", err)
	}
	ls, ok := geom.(orb.LineString)
	if !ok {
		return nil, fmt.Errorf("unmarshal directions: got %s, want LineString", geom.GeoJSONType())
	}
	return ls, nil
}

func marshalDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(dateLayout)
}

func unmarshalDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("unmarshal date %q: %w", s, err)
	}
	return t, nil
}

// marshalStrings encodes a string list as canonical JSON TEXT.
func marshalStrings(ss []string) (string, error) {
	if ss == nil {
		ss = []string{}
	}
	data, err := model.MarshalCanonical(ss)
	if err != nil {
		return "", fmt.Errorf("marshal strings: %w", err)
	}
	return string(data), nil
}

func unmarshalStrings(data string) ([]string, error) {
	var ss []string
	if err := json.Unmarshal([]byte(data), &ss); err != nil {
		return nil, fmt.Errorf("unmarshal strings: %w", err)
	}
	if ss == nil {
		ss = []string{}
	}
	return ss, nil
}

// marshalDetail encodes event detail as canonical JSON TEXT.
func marshalDetail(detail map[string]any) (string, error) {
	if detail == nil {
		detail = map[string]any{}
	}
	data, err := model.MarshalCanonical(detail)
	if err != nil {
		return "", fmt.Errorf("marshal detail: %w", err)
	}
	return string(data), nil
}

// nullable binds an empty blob as SQL NULL.
func nullable(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}
