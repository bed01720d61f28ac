// Package engine implements the generation orchestrator.
//
// The orchestrator turns a GenerationRequest into an ordered collection of
// artifacts. It resolves missing directions first, one schedule group at a
// time, then runs the decomposed artifact jobs: the batch job if any, then
// the serialized queue one job at a time.
//
// ARCHITECTURE:
//
// Single-Writer Event Loop:
// Each run is driven by one goroutine that consumes events from a FIFO
// queue. Runner completions and cancel requests are enqueued from other
// goroutines; every state transition happens in the loop. This gives:
// - One service call in flight per orchestrator, never more
// - Reproducible progress traces for scripted services
// - Simple reasoning about cancel versus completion races
//
// Event Processing Flow:
// 1. Submit validates and decomposes the request, then enqueues a start event
// 2. The loop resolves the directions backlog and starts the first service call
// 3. The runner reports the call's terminal result as a completion event
// 4. The loop appends artifacts, picks the next call or finishes the run
//
// Logical Clock:
// Every progress notification is stamped with a monotonic seq from Clock.
// Wall-clock time never decides ordering.
//
// Errors:
// Failures are reported as *GenerationError with a code and the job,
// schedule and route context needed to render a message. Cancellation is a
// terminal status, not an error.
package engine
