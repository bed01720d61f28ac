// Package harness runs orchestration scenarios against the generation engine.
//
// A scenario is a YAML file describing a generation request over fixture
// schedules, how the directions service and the artifact builder behave
// (succeed, fail, or request cancellation while in flight), the expected
// terminal outcome, and assertions over the progress trace and the run log.
//
// Run drives the real engine.Orchestrator with scripted services from
// testutil, a deterministic clock and a fixed run ID, so the same scenario
// always yields the same trace. Snapshot renders that trace as canonical JSON
// lines for golden comparison:
//
//	{"artifacts":["RouteSummary - S1 - 2024-03-04"],"run_id":"run-a","scenario":"scenario_a","status":"completed"}
//	{"detail":{"jobs":1,"scope":"date_range","templates":["RouteSummary"]},"kind":"run_started","seq":1,"state":"idle"}
//	...
//
// Scenario files are strict: unknown fields are rejected so a typo fails
// loudly instead of silently weakening a test.
package harness
