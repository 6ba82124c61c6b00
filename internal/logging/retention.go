package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// RetentionTarget specifies a directory and filename pattern to prune.
type RetentionTarget struct {
	Dir     string
	Pattern string
	Exclude []string
}

// CleanupOldLogs removes files matching the provided targets whose
// modification time is older than retentionDays. A retentionDays of 0
// disables pruning entirely.
func CleanupOldLogs(logger *slog.Logger, retentionDays int, targets ...RetentionTarget) {
	if retentionDays <= 0 {
		return
	}
	if logger == nil {
		logger = NewNop()
	}
	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	for _, target := range targets {
		pruneTarget(logger, cutoff, target)
	}
}

func pruneTarget(logger *slog.Logger, cutoff time.Time, target RetentionTarget) {
	dir := strings.TrimSpace(target.Dir)
	if dir == "" {
		return
	}
	pattern := strings.TrimSpace(target.Pattern)
	if pattern == "" {
		pattern = "*"
	}

	keep := make(map[string]bool, len(target.Exclude))
	for _, path := range target.Exclude {
		if abs := absOrSelf(strings.TrimSpace(path)); abs != "" {
			keep[abs] = true
		}
	}

	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return
	}
	for _, path := range matches {
		path = absOrSelf(path)
		if keep[path] {
			continue
		}
		info, err := os.Stat(path)
		if err != nil || info.IsDir() || !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(path); err != nil {
			logger.Warn("log retention remove failed; file remains",
				String("path", path),
				Error(err),
				String(FieldErrorHint, "check file permissions and log_dir ownership"),
			)
			continue
		}
		logger.Debug("removed old log file", String("path", path))
	}
}

func absOrSelf(path string) string {
	if path == "" {
		return ""
	}
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return path
}
