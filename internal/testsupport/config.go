package testsupport

import (
	"path/filepath"
	"testing"

	"perch/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.APIBind = "127.0.0.1:0"
	cfg.Platform.BaseURL = "https://api.example.com/v3"
	cfg.Platform.Token = "test-token"
	cfg.Enrichment.DownloadDir = filepath.Join(base, "downloads")
	cfg.Notifications.NtfyTopic = ""

	for _, opt := range opts {
		opt(&cfg)
	}

	return &cfg
}

// WithWindowMinutes overrides the broadcast window length on the test config.
func WithWindowMinutes(minutes int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Schedule.WindowMinutes = minutes
	}
}

// WithScheduleAhead overrides the chain depth on the test config.
func WithScheduleAhead(count int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Schedule.ScheduleAhead = count
	}
}

// WithTimezone overrides the scheduling timezone on the test config.
func WithTimezone(zone string) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Schedule.Timezone = zone
	}
}
