package testutil

// FixedRunIDGenerator returns the same run ID every time.
//
// Scenario files may pin a run ID so the golden trace does not depend on
// UUID generation:
//
//	run_id: "run-scenario-a"
//
// If id is empty, Generate returns "test-run".
//
// Thread-safety: FixedRunIDGenerator is stateless and safe for concurrent use.
type FixedRunIDGenerator struct {
	id string
}

// NewFixedRunIDGenerator creates a generator that always returns id.
func NewFixedRunIDGenerator(id string) *FixedRunIDGenerator {
	if id == "" {
		id = "test-run"
	}
	return &FixedRunIDGenerator{id: id}
}

// Generate returns the fixed run ID. Implements engine.RunIDGenerator.
func (g *FixedRunIDGenerator) Generate() string {
	return g.id
}
