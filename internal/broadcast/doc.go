// Package broadcast defines the broadcast part lifecycle and window math.
//
// A Broadcast is one fixed-length slice of the continuous stream. Parts move
// pending -> scheduled -> live -> ended -> enriched, with abandoned as the
// escape hatch from any non-terminal state. Windows are aligned to a daily
// grid so chained parts always start on predictable boundaries, and metadata
// helpers derive the remote titles, descriptions, and weekly playlist names
// from those windows.
package broadcast
