package decompose

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/routegen/internal/model"
)

const (
	dateLayout    = "2006-01-02"
	nameSeparator = " - "
)

// namer builds artifact names and keeps them unique within one request.
type namer struct {
	seen map[string]int
}

func newNamer() *namer {
	return &namer{seen: make(map[string]int)}
}

// name joins the non-empty parts, NFC-normalizes the result and appends a
// " (n)" suffix when the name was already handed out.
func (n *namer) name(parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			kept = append(kept, p)
		}
	}
	base := norm.NFC.String(strings.Join(kept, nameSeparator))

	if n.seen[base] == 0 {
		n.seen[base] = 1
		return base
	}
	for c := 2; ; c++ {
		candidate := fmt.Sprintf("%s (%d)", base, c)
		if n.seen[candidate] == 0 {
			n.seen[candidate] = 1
			return candidate
		}
	}
}

// templateLabel prefers the display name and falls back to the ID.
func templateLabel(t model.TemplateRef) string {
	if t.Name != "" {
		return t.Name
	}
	return t.ID
}

func routeLabel(r model.RouteRef) string {
	if r.Name != "" {
		return r.Name
	}
	return r.ID
}

// scheduleLabel describes the schedules a job covers. A single schedule
// yields "<name> - <date>"; several yield "<first date>..<last date>".
func scheduleLabel(schedules []model.ScheduleRef) string {
	switch len(schedules) {
	case 0:
		return ""
	case 1:
		s := schedules[0]
		label := s.Name
		if label == "" {
			label = s.ID
		}
		if d := formatDate(s.Date); d != "" {
			label += nameSeparator + d
		}
		return label
	}

	var first, last time.Time
	for _, s := range schedules {
		if s.Date.IsZero() {
			continue
		}
		if first.IsZero() || s.Date.Before(first) {
			first = s.Date
		}
		if last.IsZero() || s.Date.After(last) {
			last = s.Date
		}
	}
	if first.IsZero() {
		ids := make([]string, len(schedules))
		for i, s := range schedules {
			ids[i] = s.ID
		}
		return strings.Join(ids, "+")
	}
	if first.Equal(last) {
		return formatDate(first)
	}
	return formatDate(first) + ".." + formatDate(last)
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(dateLayout)
}

// FileName turns an artifact name into a conservative file name:
// path separators and reserved characters become underscores.
func FileName(name string) string {
	var b strings.Builder
	for _, r := range norm.NFC.String(name) {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			b.WriteRune('_')
		default:
			if r < 0x20 {
				b.WriteRune('_')
				continue
			}
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}
