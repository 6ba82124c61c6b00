// Package metrics exposes Prometheus instrumentation for the daemon.
package metrics
