// Package localsvc provides in-process implementations of the directions
// service and the artifact builder the orchestrator drives.
//
// Directions approximates driving geometry with straight segments between
// consecutive real stops and persists it through a DirectionsStore.
// Builder renders one file per planned artifact into an output directory:
// reports as YAML or JSON, exports as CSV or GeoJSON.
//
// Both honour context cancellation between units of work, which is how an
// orchestrator Cancel reaches them.
package localsvc
