package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePlatform(); err != nil {
		return err
	}
	if err := c.validateSchedule(); err != nil {
		return err
	}
	if err := c.validateTimers(); err != nil {
		return err
	}
	if err := c.validateEnrichment(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePlatform() error {
	if c.Platform.Token == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/perch/config.toml"
		}
		return fmt.Errorf("platform.token is required. Set PERCH_PLATFORM_TOKEN env var or edit %s (create with 'perch config init')", defaultPath)
	}
	if strings.TrimSpace(c.Platform.BaseURL) == "" {
		return errors.New("platform.base_url must be set")
	}
	switch c.Platform.Privacy {
	case "public", "unlisted", "private":
	default:
		return fmt.Errorf("platform.privacy must be public, unlisted, or private (got %q)", c.Platform.Privacy)
	}
	return nil
}

func (c *Config) validateSchedule() error {
	if c.Schedule.WindowMinutes < 5 {
		return errors.New("schedule.window_minutes must be at least 5")
	}
	if c.Schedule.ScheduleAhead < 1 {
		return errors.New("schedule.schedule_ahead must be at least 1")
	}
	if _, err := time.LoadLocation(c.Schedule.Timezone); err != nil {
		return fmt.Errorf("schedule.timezone must be a valid IANA zone: %w", err)
	}
	switch c.Schedule.PlaylistPrivacy {
	case "public", "unlisted", "private":
	default:
		return fmt.Errorf("schedule.playlist_privacy must be public, unlisted, or private (got %q)", c.Schedule.PlaylistPrivacy)
	}
	if c.Schedule.LeadSeconds >= c.Schedule.WindowMinutes*60 {
		return errors.New("schedule.lead_seconds must be shorter than the broadcast window")
	}
	return nil
}

func (c *Config) validateTimers() error {
	if err := ensurePositiveMap(map[string]int{
		"platform.request_timeout":      c.Platform.RequestTimeout,
		"schedule.live_grace_minutes":   c.Schedule.LiveGraceMinutes,
		"schedule.stream_poll_seconds":  c.Schedule.StreamPollSeconds,
		"schedule.status_poll_seconds":  c.Schedule.StatusPollSeconds,
		"retry.delay_seconds":           c.Retry.DelaySeconds,
		"poller.interval_minutes":       c.Poller.IntervalMinutes,
		"poller.lookback_hours":         c.Poller.LookbackHours,
		"poller.max_concurrent":         c.Poller.MaxConcurrent,
		"notifications.request_timeout": c.Notifications.RequestTimeout,
	}); err != nil {
		return err
	}
	if c.Retry.MaxAttempts < 0 {
		return errors.New("retry.max_attempts must not be negative")
	}
	return nil
}

func (c *Config) validateEnrichment() error {
	if !c.Enrichment.Enabled {
		return nil
	}
	if strings.TrimSpace(c.Enrichment.DownloadDir) == "" {
		return errors.New("enrichment.download_dir must be set when enrichment.enabled is true")
	}
	if c.Enrichment.MotionThreshold <= 0 {
		return errors.New("enrichment.motion_threshold must be positive")
	}
	if c.Enrichment.AnalysisTimeout <= 0 {
		return errors.New("enrichment.analysis_timeout must be positive (seconds)")
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for name, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	return nil
}
