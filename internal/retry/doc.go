// Package retry repeats platform operations that fail transiently.
//
// The Executor pauses a fixed delay between attempts, gives up immediately on
// non-transient errors, and honours context cancellation mid-sleep. Each retry
// run carries a correlation id through the services context so log lines from
// overlapping operations stay attributable.
package retry
