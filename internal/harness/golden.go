package harness

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/routegen/internal/model"
)

// volatileDetail lists detail fields left out of snapshots. Both are
// content hashes that change whenever fixture data changes.
var volatileDetail = map[string]bool{
	"request_hash": true,
	"job_id":       true,
}

// Snapshot renders a result as canonical JSON lines: a header line with the
// scenario outcome, then one line per trace event.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func Snapshot(name string, result *Result) ([]byte, error) {
	var buf bytes.Buffer

	header := map[string]any{
		"scenario":  name,
		"status":    result.Status,
		"artifacts": result.ArtifactNames(),
	}
	if result.RunID != "" {
		header["run_id"] = result.RunID
	}
	if result.ErrorCode != "" {
		header["error_code"] = result.ErrorCode
	}
	line, err := model.MarshalCanonical(header)
	if err != nil {
		return nil, fmt.Errorf("snapshot header: %w", err)
	}
	buf.Write(line)
	buf.WriteByte('\n')

	for _, event := range result.Trace {
		line, err := model.MarshalCanonical(event.canonical())
		if err != nil {
			return nil, fmt.Errorf("snapshot event %d: %w", event.Seq, err)
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

func (e TraceEvent) canonical() map[string]any {
	m := map[string]any{
		"seq":   e.Seq,
		"kind":  e.Kind,
		"state": e.State,
	}
	detail := make(map[string]any, len(e.Detail))
	for k, v := range e.Detail {
		if !volatileDetail[k] {
			detail[k] = v
		}
	}
	if len(detail) > 0 {
		m["detail"] = detail
	}
	return m
}

// RunWithGolden executes a scenario and compares its snapshot against
// testdata/golden/{scenario.Name}.golden.
//
// Returns the result so callers can still inspect Pass and Errors.
// Test failure (via goldie) occurs if the snapshot doesn't match.
func RunWithGolden(t *testing.T, scenario *Scenario, opts ...Option) (*Result, error) {
	t.Helper()

	result, err := Run(scenario, opts...)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result against its golden file
// without re-running the scenario.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	data, err := Snapshot(scenarioName, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)

	return nil
}
