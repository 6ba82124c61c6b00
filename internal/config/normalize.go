package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizePlatform(); err != nil {
		return err
	}
	c.normalizeSchedule()
	c.normalizeRetry()
	c.normalizePoller()
	if err := c.normalizeEnrichment(); err != nil {
		return err
	}
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	return nil
}

func (c *Config) normalizePlatform() error {
	if c.Platform.Token == "" {
		if value, ok := os.LookupEnv("PERCH_PLATFORM_TOKEN"); ok {
			c.Platform.Token = strings.TrimSpace(value)
		}
	}
	c.Platform.BaseURL = strings.TrimRight(strings.TrimSpace(c.Platform.BaseURL), "/")
	c.Platform.Token = strings.TrimSpace(c.Platform.Token)
	c.Platform.StreamTitle = strings.TrimSpace(c.Platform.StreamTitle)
	if c.Platform.StreamTitle == "" {
		c.Platform.StreamTitle = defaultStreamTitle
	}
	c.Platform.Privacy = strings.ToLower(strings.TrimSpace(c.Platform.Privacy))
	if c.Platform.Privacy == "" {
		c.Platform.Privacy = defaultPlatformPrivacy
	}
	if c.Platform.RequestTimeout <= 0 {
		c.Platform.RequestTimeout = defaultRequestTimeout
	}
	return nil
}

func (c *Config) normalizeSchedule() {
	if c.Schedule.WindowMinutes <= 0 {
		c.Schedule.WindowMinutes = defaultWindowMinutes
	}
	if c.Schedule.ScheduleAhead <= 0 {
		c.Schedule.ScheduleAhead = defaultScheduleAhead
	}
	c.Schedule.Timezone = strings.TrimSpace(c.Schedule.Timezone)
	if c.Schedule.Timezone == "" {
		c.Schedule.Timezone = defaultTimezone
	}
	if c.Schedule.LiveGraceMinutes <= 0 {
		c.Schedule.LiveGraceMinutes = defaultLiveGraceMinutes
	}
	if c.Schedule.StreamPollSeconds <= 0 {
		c.Schedule.StreamPollSeconds = defaultStreamPollSeconds
	}
	if c.Schedule.StatusPollSeconds <= 0 {
		c.Schedule.StatusPollSeconds = defaultStatusPollSeconds
	}
	if c.Schedule.LeadSeconds <= 0 {
		c.Schedule.LeadSeconds = defaultLeadSeconds
	}
	c.Schedule.PlaylistPrivacy = strings.ToLower(strings.TrimSpace(c.Schedule.PlaylistPrivacy))
	if c.Schedule.PlaylistPrivacy == "" {
		c.Schedule.PlaylistPrivacy = c.Platform.Privacy
	}
	c.Schedule.DescriptionFooter = strings.TrimSpace(c.Schedule.DescriptionFooter)
	c.Schedule.CategoryID = strings.TrimSpace(c.Schedule.CategoryID)
}

func (c *Config) normalizeRetry() {
	if c.Retry.DelaySeconds <= 0 {
		c.Retry.DelaySeconds = defaultRetryDelaySeconds
	}
}

func (c *Config) normalizePoller() {
	if c.Poller.IntervalMinutes <= 0 {
		c.Poller.IntervalMinutes = defaultPollerIntervalMins
	}
	if c.Poller.LookbackHours <= 0 {
		c.Poller.LookbackHours = defaultPollerLookbackHrs
	}
	if c.Poller.MaxConcurrent <= 0 {
		c.Poller.MaxConcurrent = defaultPollerConcurrency
	}
}

func (c *Config) normalizeEnrichment() error {
	var err error
	if strings.TrimSpace(c.Enrichment.DownloadDir) == "" {
		c.Enrichment.DownloadDir = defaultDownloadDir()
	}
	if c.Enrichment.DownloadDir, err = expandPath(c.Enrichment.DownloadDir); err != nil {
		return fmt.Errorf("enrichment.download_dir: %w", err)
	}
	c.Enrichment.DownloadFormat = strings.TrimSpace(c.Enrichment.DownloadFormat)
	if c.Enrichment.DownloadFormat == "" {
		c.Enrichment.DownloadFormat = defaultDownloadFormat
	}
	c.Enrichment.MotionPlaylist = strings.TrimSpace(c.Enrichment.MotionPlaylist)
	if c.Enrichment.MotionThreshold <= 0 {
		c.Enrichment.MotionThreshold = defaultMotionThreshold
	}
	if c.Enrichment.MinEventSeconds <= 0 {
		c.Enrichment.MinEventSeconds = defaultMinEventSeconds
	}
	if c.Enrichment.AnalysisTimeout <= 0 {
		c.Enrichment.AnalysisTimeout = defaultAnalysisTimeout
	}
	return nil
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyTimeout
	}
	if c.Notifications.DedupWindowSeconds < 0 {
		c.Notifications.DedupWindowSeconds = 0
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}

func defaultDownloadDir() string {
	if base, ok := os.LookupEnv("XDG_CACHE_HOME"); ok && strings.TrimSpace(base) != "" {
		return filepath.Join(base, "perch", "downloads")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "~/.cache/perch/downloads"
	}
	return filepath.Join(home, ".cache", "perch", "downloads")
}
