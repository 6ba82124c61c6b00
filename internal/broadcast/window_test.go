package broadcast_test

import (
	"testing"
	"time"

	"perch/internal/broadcast"
)

func TestFirstWindowRoundsToNearestGridBoundary(t *testing.T) {
	loc := time.UTC
	length := 6 * time.Hour

	cases := []struct {
		name  string
		start time.Time
		end   time.Time
	}{
		{
			name:  "rounds down when past boundary by under half a slot",
			start: time.Date(2026, 9, 1, 2, 0, 0, 0, loc),
			end:   time.Date(2026, 9, 1, 6, 0, 0, 0, loc),
		},
		{
			name:  "rounds up when past boundary by at least half a slot",
			start: time.Date(2026, 9, 1, 5, 0, 0, 0, loc),
			end:   time.Date(2026, 9, 1, 12, 0, 0, 0, loc),
		},
		{
			name:  "start on a boundary yields a full window",
			start: time.Date(2026, 9, 1, 6, 0, 0, 0, loc),
			end:   time.Date(2026, 9, 1, 12, 0, 0, 0, loc),
		},
		{
			name:  "rolls into the next day",
			start: time.Date(2026, 9, 1, 22, 0, 0, 0, loc),
			end:   time.Date(2026, 9, 2, 6, 0, 0, 0, loc),
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			window := broadcast.FirstWindow(tc.start, length, loc)
			if !window.Start.Equal(tc.start) {
				t.Fatalf("start mutated: %v", window.Start)
			}
			if !window.End.Equal(tc.end) {
				t.Fatalf("end: got %v want %v", window.End, tc.end)
			}
		})
	}
}

func TestFirstWindowNeverEndsBeforeItStarts(t *testing.T) {
	loc := time.UTC
	window := broadcast.FirstWindow(time.Date(2026, 9, 1, 23, 50, 0, 0, loc), 6*time.Hour, loc)
	if !window.End.After(window.Start) {
		t.Fatalf("window must be non-empty: %v .. %v", window.Start, window.End)
	}
}

func TestNextWindowAbutsPrevious(t *testing.T) {
	loc := time.UTC
	first := broadcast.FirstWindow(time.Date(2026, 9, 1, 2, 0, 0, 0, loc), 6*time.Hour, loc)
	second := broadcast.NextWindow(first, 6*time.Hour)
	if !second.Start.Equal(first.End) {
		t.Fatalf("gap between parts: %v vs %v", second.Start, first.End)
	}
	if second.Length() != 6*time.Hour {
		t.Fatalf("chained window length: %v", second.Length())
	}

	third := broadcast.NextWindow(second, 6*time.Hour)
	if !third.Start.Equal(time.Date(2026, 9, 1, 12, 0, 0, 0, loc)) {
		t.Fatalf("unexpected third window start: %v", third.Start)
	}
}

func TestWindowContains(t *testing.T) {
	loc := time.UTC
	window := broadcast.Window{
		Start: time.Date(2026, 9, 1, 6, 0, 0, 0, loc),
		End:   time.Date(2026, 9, 1, 12, 0, 0, 0, loc),
	}
	if !window.Contains(window.Start) {
		t.Fatal("window start is inclusive")
	}
	if window.Contains(window.End) {
		t.Fatal("window end is exclusive")
	}
	if window.Contains(window.Start.Add(-time.Second)) {
		t.Fatal("before start must be outside")
	}
}
