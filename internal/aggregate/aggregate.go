// Package aggregate accumulates artifacts produced across many jobs and
// returns them in the caller's template order.
package aggregate

import (
	"sort"

	"github.com/roach88/routegen/internal/model"
)

// Aggregator collects artifact descriptors as jobs complete.
//
// Ordered sorts by the position of each artifact's template in the request,
// so the result does not depend on job completion order. Artifacts of the
// same template keep their arrival order, which for serialized jobs is the
// route order of the queue. Artifacts of unknown templates sort last.
//
// Aggregator is not safe for concurrent use.
type Aggregator struct {
	rank  map[string]int
	items []model.ArtifactDescriptor
}

// New creates an Aggregator ranking templates in the given order.
func New(templateIDs []string) *Aggregator {
	rank := make(map[string]int, len(templateIDs))
	for i, id := range templateIDs {
		if _, ok := rank[id]; !ok {
			rank[id] = i
		}
	}
	return &Aggregator{rank: rank}
}

// Add appends artifacts in arrival order.
func (a *Aggregator) Add(artifacts ...model.ArtifactDescriptor) {
	a.items = append(a.items, artifacts...)
}

// Len returns the number of artifacts collected so far.
func (a *Aggregator) Len() int {
	return len(a.items)
}

// Arrived returns a copy of the artifacts in arrival order.
func (a *Aggregator) Arrived() []model.ArtifactDescriptor {
	return append([]model.ArtifactDescriptor(nil), a.items...)
}

// Ordered returns a copy of the artifacts in template order.
func (a *Aggregator) Ordered() []model.ArtifactDescriptor {
	out := a.Arrived()
	sort.SliceStable(out, func(i, j int) bool {
		return a.rankOf(out[i].TemplateID) < a.rankOf(out[j].TemplateID)
	})
	return out
}

func (a *Aggregator) rankOf(templateID string) int {
	if r, ok := a.rank[templateID]; ok {
		return r
	}
	return len(a.rank)
}
