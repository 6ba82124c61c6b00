package enrich

import (
	"fmt"
	"strings"
	"time"
)

// MotionEvent is one span of detected motion within a recording.
type MotionEvent struct {
	Start    time.Duration
	Duration time.Duration
}

// NoMotionNote is appended when analysis finds nothing.
const NoMotionNote = "No motion was detected in this video 😢."

// UnavailableNote is appended when the platform has no recording to analyze.
const UnavailableNote = "No motion was detected in this video as the recording is not available 😢."

// FormatReport renders the human description of detected motion.
func FormatReport(events []MotionEvent) string {
	switch len(events) {
	case 0:
		return NoMotionNote
	case 1:
		return fmt.Sprintf("\n\nMotion was detected at %s.\n", eventLine(events[0]))
	default:
		var builder strings.Builder
		builder.WriteString("\n\nMotion was detected at the following points:\n")
		for _, event := range events {
			builder.WriteString(" • ")
			builder.WriteString(eventLine(event))
			builder.WriteString(".\n")
		}
		return builder.String()
	}
}

// HasReport reports whether a description already carries an analysis note.
// Reconcile can pull patched metadata back from the platform before the
// ledger catches up, so the note is the durable marker of a finished patch.
func HasReport(description string) bool {
	return strings.Contains(description, "Motion was detected") ||
		strings.Contains(description, "No motion was detected")
}

// TitleSuffix is appended to the broadcast title after analysis.
func TitleSuffix(eventCount int) string {
	switch eventCount {
	case 0:
		return "(no motion)"
	case 1:
		return "(1 action)"
	default:
		return fmt.Sprintf("(%d actions)", eventCount)
	}
}

func eventLine(event MotionEvent) string {
	seconds := int(event.Duration.Seconds())
	unit := "seconds"
	if seconds == 1 {
		unit = "second"
	}
	return fmt.Sprintf("%s for %d %s", FormatTimecode(event.Start), seconds, unit)
}

// FormatTimecode renders a duration as HH:MM:SS.
func FormatTimecode(d time.Duration) string {
	total := int(d.Seconds())
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, (total%3600)/60, total%60)
}
