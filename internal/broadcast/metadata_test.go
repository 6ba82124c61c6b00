package broadcast_test

import (
	"strings"
	"testing"
	"time"

	"perch/internal/broadcast"
)

func TestMetadataForFormatsTitleAndDescription(t *testing.T) {
	loc, err := time.LoadLocation("Europe/London")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	window := broadcast.Window{
		Start: time.Date(2026, 9, 1, 14, 30, 0, 0, loc),
		End:   time.Date(2026, 9, 1, 18, 0, 0, 0, loc),
	}

	meta := broadcast.MetadataFor("birdbox", window, loc)

	if meta.Title != "Birdbox on Tue 01 Sep at 14:30" {
		t.Fatalf("unexpected title: %q", meta.Title)
	}
	wantDesc := "A livestream of the birdbox starting on Tue 01 Sep at 14.30 and ending at 18.00 (Europe/London timezone). "
	if meta.Description != wantDesc {
		t.Fatalf("unexpected description: %q", meta.Description)
	}
	if meta.PlaylistKey != "2026-W36" {
		t.Fatalf("unexpected playlist key: %q", meta.PlaylistKey)
	}
}

func TestPlaylistTitleUsesWeekCommencingMonday(t *testing.T) {
	// 2026-09-06 is a Sunday; its week commenced Monday 31 Aug.
	sunday := time.Date(2026, 9, 6, 9, 0, 0, 0, time.UTC)
	got := broadcast.PlaylistTitleFor(sunday)
	if got != "W36: w/c 31 Aug 2026" {
		t.Fatalf("unexpected playlist title: %q", got)
	}

	monday := time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC)
	if broadcast.PlaylistTitleFor(monday) != got {
		t.Fatal("monday and sunday of the same week must share a playlist")
	}
}

func TestPlaylistKeyGroupsByISOWeek(t *testing.T) {
	// Jan 1st 2027 falls in ISO week 53 of 2026.
	newYear := time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)
	if got := broadcast.PlaylistKeyFor(newYear); got != "2026-W53" {
		t.Fatalf("unexpected key across year boundary: %q", got)
	}
}

func TestWithNextPartAppendsExactlyOnce(t *testing.T) {
	desc := "A livestream of the birdbox starting on Tue 01 Sep at 14.30 and ending at 18.00 (UTC timezone). "
	url := "https://watch.example.com/b-2"

	once := broadcast.WithNextPart(desc, url)
	if !strings.HasSuffix(once, "Watch the next part here: https://watch.example.com/b-2.") {
		t.Fatalf("missing suffix: %q", once)
	}
	twice := broadcast.WithNextPart(once, url)
	if twice != once {
		t.Fatalf("suffix appended twice: %q", twice)
	}
}
