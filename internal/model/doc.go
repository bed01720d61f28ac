// Package model provides the data types shared by every routegen package.
//
// This package contains type definitions and pure helpers only. All other
// internal packages import model; model imports nothing internal.
//
// Key design constraints:
//   - Schedules own their routes; everything else only references them
//   - A GenerationRequest is never mutated once submitted (Clone on entry)
//   - Ordering uses logical seq numbers, never wall-clock timestamps
//   - All JSON tags use snake_case
package model
