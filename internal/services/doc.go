// Package services defines shared utilities consumed by the lifecycle
// components and external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp broadcast IDs, operation names, and
//     correlation identifiers for logging and tracing.
//   - Structured error markers plus the Wrap helper that classify remote
//     failures into retryable and permanent classes.
//
// Use these helpers when wiring new components so operational behaviour
// (error handling, observability, retries) stays uniform across the daemon.
package services
