// Package daemon coordinates the long-running Perch process.
//
// It wires configuration, the broadcast ledger, the schedule driver, and the
// completion poller into a single lifecycle with flock-based locking to
// prevent multiple instances, and exposes runtime state over a small HTTP
// API alongside Prometheus metrics.
//
// Keep orchestration logic here: schedule and enrichment behavior lives in
// their own packages while the daemon focuses on startup, shutdown, and high
// level coordination.
package daemon
