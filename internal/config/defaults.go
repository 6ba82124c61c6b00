package config

const (
	defaultDataDir            = "~/.local/share/perch"
	defaultLogDir             = "~/.local/share/perch/logs"
	defaultAPIBind            = "127.0.0.1:7547"
	defaultLogFormat          = "console"
	defaultLogLevel           = "info"
	defaultLogRetentionDays   = 60
	defaultPlatformPrivacy    = "public"
	defaultStreamTitle        = "Birdbox"
	defaultRequestTimeout     = 30
	defaultWindowMinutes      = 360
	defaultScheduleAhead      = 2
	defaultTimezone           = "UTC"
	defaultLiveGraceMinutes   = 10
	defaultStreamPollSeconds  = 10
	defaultStatusPollSeconds  = 30
	defaultLeadSeconds        = 60
	defaultRetryDelaySeconds  = 60
	defaultPollerIntervalMins = 15
	defaultPollerLookbackHrs  = 48
	defaultPollerConcurrency  = 2
	defaultDownloadFormat     = "160"
	defaultMotionThreshold    = 0.5
	defaultMinEventSeconds    = 1.0
	defaultAnalysisTimeout    = 1800
	defaultNotifyTimeout      = 10
	defaultNotifyDedupWindow  = 600
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
			APIBind: defaultAPIBind,
		},
		Platform: Platform{
			StreamTitle:    defaultStreamTitle,
			Privacy:        defaultPlatformPrivacy,
			RequestTimeout: defaultRequestTimeout,
		},
		Schedule: Schedule{
			WindowMinutes:     defaultWindowMinutes,
			ScheduleAhead:     defaultScheduleAhead,
			Timezone:          defaultTimezone,
			LiveGraceMinutes:  defaultLiveGraceMinutes,
			StreamPollSeconds: defaultStreamPollSeconds,
			StatusPollSeconds: defaultStatusPollSeconds,
			LeadSeconds:       defaultLeadSeconds,
			WeeklyPlaylists:   true,
			LinkPreviousPart:  true,
		},
		Retry: Retry{
			DelaySeconds: defaultRetryDelaySeconds,
		},
		Poller: Poller{
			IntervalMinutes: defaultPollerIntervalMins,
			LookbackHours:   defaultPollerLookbackHrs,
			MaxConcurrent:   defaultPollerConcurrency,
		},
		Enrichment: Enrichment{
			Enabled:         true,
			DownloadFormat:  defaultDownloadFormat,
			MotionThreshold: defaultMotionThreshold,
			MinEventSeconds: defaultMinEventSeconds,
			AnalysisTimeout: defaultAnalysisTimeout,
		},
		Notifications: Notifications{
			RequestTimeout:     defaultNotifyTimeout,
			Lifecycle:          true,
			Enrichment:         true,
			Motion:             true,
			Errors:             true,
			DedupWindowSeconds: defaultNotifyDedupWindow,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
