// Package decompose turns a GenerationRequest into the jobs that produce its
// artifacts.
//
// A request decomposes into at most one batch job plus a FIFO queue of
// serialized jobs:
//
//   - Date-range scope (no route selection): one batch job covering every
//     light template and every route. Heavy templates are excluded.
//   - Route scope without heavy templates or the per-route policy: one batch
//     job covering all templates and the selected routes.
//   - Route scope with heavy templates: one serialized job per
//     (heavy template x route), template-major. Light templates still share
//     one batch job, which runs first.
//   - Route scope with SeparatePerRoute: every template is serialized per route.
//
// The decomposer is the single authority for artifact names. Names embed the
// template name, the schedule date and, for per-route jobs, the route name,
// and are made unique within the request.
package decompose
