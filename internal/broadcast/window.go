package broadcast

import "time"

// Window is a half-open [Start, End) slot on the continuous schedule.
type Window struct {
	Start time.Time
	End   time.Time
}

// Length returns the window duration.
func (w Window) Length() time.Duration {
	return w.End.Sub(w.Start)
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// FirstWindow computes the window that begins at start. The end is the grid
// boundary nearest to start+length, where the grid divides each local day
// into equal slots of length. The first part of a chain is therefore usually
// shorter or longer than length so that every later part lands on the grid.
func FirstWindow(start time.Time, length time.Duration, loc *time.Location) Window {
	local := start.In(loc)
	end := nearestBoundary(local.Add(length), length, loc)
	if !end.After(local) {
		end = end.Add(length)
	}
	return Window{Start: local, End: end}
}

// NextWindow chains a full-length window onto the previous one. Parts abut
// exactly so the stream has no gap between them.
func NextWindow(previous Window, length time.Duration) Window {
	return Window{Start: previous.End, End: previous.End.Add(length)}
}

// nearestBoundary rounds t to the closest multiple of length measured from
// local midnight, rolling into the next day when the rounding passes 24:00.
func nearestBoundary(t time.Time, length time.Duration, loc *time.Location) time.Time {
	local := t.In(loc)
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	elapsed := local.Sub(midnight)

	slots := elapsed / length
	if elapsed%length >= length/2 {
		slots++
	}

	boundary := midnight.Add(slots * length)
	return boundary
}
