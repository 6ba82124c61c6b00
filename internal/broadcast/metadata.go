package broadcast

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	titleTimeLayout       = "Mon 02 Jan at 15:04"
	descriptionTimeLayout = "Mon 02 Jan at 15.04"
	descriptionEndLayout  = "15.04"
	playlistDateLayout    = "02 Jan 2006"
)

var titleCaser = cases.Title(language.English, cases.NoLower)

// Metadata carries the remote-facing fields derived from a window.
type Metadata struct {
	Title       string
	Description string
	PlaylistKey string
}

// MetadataFor builds the title, description, and playlist key for a window.
// The subject is the configured stream title, e.g. "Birdbox".
func MetadataFor(subject string, window Window, loc *time.Location) Metadata {
	subject = titleCaser.String(strings.TrimSpace(subject))
	start := window.Start.In(loc)
	end := window.End.In(loc)
	return Metadata{
		Title: fmt.Sprintf("%s on %s", subject, start.Format(titleTimeLayout)),
		Description: fmt.Sprintf(
			"A livestream of the %s starting on %s and ending at %s (%s timezone). ",
			strings.ToLower(subject),
			start.Format(descriptionTimeLayout),
			end.Format(descriptionEndLayout),
			loc.String(),
		),
		PlaylistKey: PlaylistKeyFor(start),
	}
}

// PlaylistKeyFor returns the stable weekly grouping key, e.g. "2026-W36".
func PlaylistKeyFor(t time.Time) string {
	year, week := t.ISOWeek()
	return fmt.Sprintf("%d-W%02d", year, week)
}

// PlaylistTitleFor returns the human playlist title for the week containing t,
// e.g. "W36: w/c 31 Aug 2026". The week commences on Monday.
func PlaylistTitleFor(t time.Time) string {
	_, week := t.ISOWeek()
	return fmt.Sprintf("W%02d: w/c %s", week, weekCommencing(t).Format(playlistDateLayout))
}

// NextPartSuffix is appended to a description once the following part exists.
func NextPartSuffix(watchURL string) string {
	return fmt.Sprintf("Watch the next part here: %s.", watchURL)
}

// WithNextPart appends the next-part pointer to a description exactly once.
func WithNextPart(description, watchURL string) string {
	suffix := NextPartSuffix(watchURL)
	if strings.Contains(description, suffix) {
		return description
	}
	if description != "" && !strings.HasSuffix(description, " ") {
		description += " "
	}
	return description + suffix
}

func weekCommencing(t time.Time) time.Time {
	offset := (int(t.Weekday()) + 6) % 7
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	return day.AddDate(0, 0, -offset)
}
