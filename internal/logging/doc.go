// Package logging builds the slog loggers used across the perch daemon and
// CLI, providing a console handler for interactive use, a JSON handler for
// machine consumption, and shared structured-field helpers so every component
// logs the same keys.
package logging
