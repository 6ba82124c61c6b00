package enrich

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"perch/internal/services"
)

var commandContext = exec.CommandContext

// Fetcher downloads a broadcast recording for analysis.
type Fetcher interface {
	// Fetch returns the local path of the downloaded recording. A recording
	// the platform no longer offers is reported with the not-found marker.
	Fetch(ctx context.Context, watchURL, broadcastID string) (string, error)
}

// Analyzer finds motion events in a downloaded recording.
type Analyzer interface {
	Analyze(ctx context.Context, path string) ([]MotionEvent, error)
}

const recordingUnavailableMarker = "recording is not available"

// DownloadFetcher shells out to yt-dlp for the low-resolution rendition
// used by motion analysis.
type DownloadFetcher struct {
	binary string
	dir    string
	format string
}

// NewDownloadFetcher builds a fetcher writing into dir with the given
// rendition format selector.
func NewDownloadFetcher(dir, format string) *DownloadFetcher {
	return &DownloadFetcher{binary: "yt-dlp", dir: dir, format: format}
}

// WithBinary overrides the downloader executable.
func (f *DownloadFetcher) WithBinary(binary string) *DownloadFetcher {
	if binary != "" {
		f.binary = binary
	}
	return f
}

func (f *DownloadFetcher) Fetch(ctx context.Context, watchURL, broadcastID string) (string, error) {
	if watchURL == "" {
		return "", errors.New("watch url required")
	}
	outputPath := filepath.Join(f.dir, broadcastID+".mp4")
	args := []string{
		"-f", f.format,
		"--remux-video", "mp4",
		"-o", outputPath,
		"--no-progress",
		watchURL,
	}

	var stderr bytes.Buffer
	cmd := commandContext(ctx, f.binary, args...) //nolint:gosec
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		detail := strings.TrimSpace(stderr.String())
		if strings.Contains(strings.ToLower(detail), recordingUnavailableMarker) {
			return "", services.Wrap(services.ErrNotFound, "enrich", "fetch", "recording unavailable", err)
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", services.Wrap(services.ErrTransient, "enrich", "fetch", fmt.Sprintf("download failed: %s", firstLine(detail)), err)
	}
	return outputPath, nil
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return s[:idx]
	}
	return s
}
