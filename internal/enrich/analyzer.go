package enrich

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"perch/internal/services"
)

// ScanAnalyzer shells out to dvr-scan in scan-only mode and parses the
// event table it prints.
type ScanAnalyzer struct {
	binary          string
	threshold       float64
	minEventSeconds float64
}

// NewScanAnalyzer builds an analyzer with the configured detection tuning.
func NewScanAnalyzer(threshold, minEventSeconds float64) *ScanAnalyzer {
	return &ScanAnalyzer{binary: "dvr-scan", threshold: threshold, minEventSeconds: minEventSeconds}
}

// WithBinary overrides the scanner executable.
func (a *ScanAnalyzer) WithBinary(binary string) *ScanAnalyzer {
	if binary != "" {
		a.binary = binary
	}
	return a
}

func (a *ScanAnalyzer) Analyze(ctx context.Context, path string) ([]MotionEvent, error) {
	args := []string{
		"-i", path,
		"--scan-only",
		"-t", strconv.FormatFloat(a.threshold, 'f', -1, 64),
		"-l", strconv.FormatFloat(a.minEventSeconds, 'f', -1, 64) + "s",
	}

	var stdout, stderr bytes.Buffer
	cmd := commandContext(ctx, a.binary, args...) //nolint:gosec
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, services.Wrap(services.ErrTransient, "enrich", "analyze",
			fmt.Sprintf("scan failed: %s", firstLine(strings.TrimSpace(stderr.String()))), err)
	}

	return ParseScanOutput(stdout.String())
}

// eventRow matches dvr-scan's scan-only table, e.g.
// |   Event 1   |  00:00:01.500  |  00:00:03.000  |  00:00:04.500  |
var eventRow = regexp.MustCompile(`\|\s*(?:Event\s+)?\d+\s*\|\s*([0-9:.]+)\s*\|\s*([0-9:.]+)\s*\|\s*[0-9:.]+\s*\|`)

// ParseScanOutput extracts motion events from dvr-scan's table output.
// Columns are event number, start time, duration, end time.
func ParseScanOutput(output string) ([]MotionEvent, error) {
	var events []MotionEvent
	for _, line := range strings.Split(output, "\n") {
		match := eventRow.FindStringSubmatch(line)
		if match == nil {
			continue
		}
		start, err := parseTimecode(match[1])
		if err != nil {
			return nil, fmt.Errorf("parse event start in %q: %w", line, err)
		}
		duration, err := parseTimecode(match[2])
		if err != nil {
			return nil, fmt.Errorf("parse event duration in %q: %w", line, err)
		}
		events = append(events, MotionEvent{Start: start, Duration: duration})
	}
	return events, nil
}

func parseTimecode(raw string) (time.Duration, error) {
	parts := strings.Split(raw, ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("timecode %q must be HH:MM:SS[.mmm]", raw)
	}
	hours, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, err
	}
	minutes, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, err
	}
	seconds, err := strconv.ParseFloat(parts[2], 64)
	if err != nil {
		return 0, err
	}
	return time.Duration(hours)*time.Hour +
		time.Duration(minutes)*time.Minute +
		time.Duration(seconds*float64(time.Second)), nil
}
