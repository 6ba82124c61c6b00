// Package lifecycle moves individual broadcast parts through their states.
//
// The Manager owns the remote interactions for one part: creating it with
// window-derived metadata, binding the ingest stream and taking it live at
// the window boundary, completing it at the window end, and abandoning it
// when the platform refuses. Transient faults are retried through the
// retry executor; redundant transitions from the platform are treated as
// already-done.
package lifecycle
