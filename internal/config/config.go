package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory, database, and bind address configuration.
type Paths struct {
	DataDir  string `toml:"data_dir"`
	LogDir   string `toml:"log_dir"`
	APIBind  string `toml:"api_bind"`
	APIToken string `toml:"api_token"`
}

// Platform contains connection settings for the remote broadcast platform.
type Platform struct {
	BaseURL        string `toml:"base_url"`
	Token          string `toml:"token"`
	StreamTitle    string `toml:"stream_title"`
	Privacy        string `toml:"privacy"`
	RequestTimeout int    `toml:"request_timeout"`
}

// Schedule contains broadcast window timing configuration.
type Schedule struct {
	WindowMinutes     int    `toml:"window_minutes"`
	ScheduleAhead     int    `toml:"schedule_ahead"`
	Timezone          string `toml:"timezone"`
	LiveGraceMinutes  int    `toml:"live_grace_minutes"`
	StreamPollSeconds int    `toml:"stream_poll_seconds"`
	StatusPollSeconds int    `toml:"status_poll_seconds"`
	LeadSeconds       int    `toml:"lead_seconds"`
	DescriptionFooter string `toml:"description_footer"`
	CategoryID        string `toml:"category_id"`
	PlaylistPrivacy   string `toml:"playlist_privacy"`
	WeeklyPlaylists   bool   `toml:"weekly_playlists"`
	LinkPreviousPart  bool   `toml:"link_previous_part"`
}

// Retry contains transient failure retry configuration.
type Retry struct {
	DelaySeconds int `toml:"delay_seconds"`
	MaxAttempts  int `toml:"max_attempts"`
}

// Poller contains completed broadcast discovery configuration.
type Poller struct {
	IntervalMinutes int `toml:"interval_minutes"`
	LookbackHours   int `toml:"lookback_hours"`
	MaxConcurrent   int `toml:"max_concurrent"`
}

// Enrichment contains recording analysis configuration.
type Enrichment struct {
	Enabled         bool    `toml:"enabled"`
	DownloadDir     string  `toml:"download_dir"`
	DownloadFormat  string  `toml:"download_format"`
	MotionPlaylist  string  `toml:"motion_playlist"`
	MotionThreshold float64 `toml:"motion_threshold"`
	MinEventSeconds float64 `toml:"min_event_seconds"`
	KeepDownloads   bool    `toml:"keep_downloads"`
	AnalysisTimeout int     `toml:"analysis_timeout"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic          string `toml:"ntfy_topic"`
	RequestTimeout     int    `toml:"request_timeout"`
	Lifecycle          bool   `toml:"lifecycle"`
	Enrichment         bool   `toml:"enrichment"`
	Motion             bool   `toml:"motion"`
	Errors             bool   `toml:"errors"`
	DedupWindowSeconds int    `toml:"dedup_window_seconds"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for Perch.
//
// Configuration sections by subsystem:
//   - Paths: data directory, log directory, and API bind address
//   - Platform: remote broadcast platform connection and credentials
//   - Schedule: broadcast window length, chaining depth, and timing
//   - Retry: transient failure retry pacing
//   - Poller: completed recording discovery cadence
//   - Enrichment: motion analysis of completed recordings
//   - Notifications: ntfy push notification settings
//   - Logging: log format, level, and retention
type Config struct {
	Paths         Paths         `toml:"paths"`
	Platform      Platform      `toml:"platform"`
	Schedule      Schedule      `toml:"schedule"`
	Retry         Retry         `toml:"retry"`
	Poller        Poller        `toml:"poller"`
	Enrichment    Enrichment    `toml:"enrichment"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/perch/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath("~/.config/perch/config.toml")
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("perch.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
// The enrichment download directory is created on a best-effort basis so
// the daemon can run when scratch storage is temporarily unavailable.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if c.Enrichment.Enabled && strings.TrimSpace(c.Enrichment.DownloadDir) != "" {
		_ = os.MkdirAll(c.Enrichment.DownloadDir, 0o755)
	}
	return nil
}

// LedgerPath returns the broadcast ledger database location inside DataDir.
func (c *Config) LedgerPath() string {
	return filepath.Join(c.Paths.DataDir, "ledger.db")
}

// LockPath returns the single-instance lock file location inside DataDir.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "perch.lock")
}

// WindowLength returns the configured broadcast window as a duration.
func (c *Config) WindowLength() time.Duration {
	return time.Duration(c.Schedule.WindowMinutes) * time.Minute
}

// LiveGracePeriod returns how long a broadcast may miss its start before abandonment.
func (c *Config) LiveGracePeriod() time.Duration {
	return time.Duration(c.Schedule.LiveGraceMinutes) * time.Minute
}

// RetryDelay returns the pause between transient failure retries.
func (c *Config) RetryDelay() time.Duration {
	return time.Duration(c.Retry.DelaySeconds) * time.Second
}

// Location resolves the configured scheduling timezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Schedule.Timezone)
	if err != nil {
		return nil, fmt.Errorf("resolve timezone %q: %w", c.Schedule.Timezone, err)
	}
	return loc, nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	sample := sampleConfig

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sample), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
