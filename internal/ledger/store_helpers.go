package ledger

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"perch/internal/broadcast"
)

const broadcastColumns = "id, remote_id, stream_id, state, title, description, playlist_key, window_start, window_end, went_live_at, ended_at, motion_note, motion_count, failure_note, created_at, updated_at"

func scanBroadcast(scanner interface{ Scan(dest ...any) error }) (*broadcast.Broadcast, error) {
	var (
		id          int64
		remoteID    sql.NullString
		streamID    sql.NullString
		stateStr    string
		title       string
		description string
		playlistKey string
		windowStart string
		windowEnd   string
		wentLiveRaw sql.NullString
		endedRaw    sql.NullString
		motionNote  sql.NullString
		motionCount int
		failureNote sql.NullString
		createdRaw  string
		updatedRaw  string
	)

	if err := scanner.Scan(
		&id,
		&remoteID,
		&streamID,
		&stateStr,
		&title,
		&description,
		&playlistKey,
		&windowStart,
		&windowEnd,
		&wentLiveRaw,
		&endedRaw,
		&motionNote,
		&motionCount,
		&failureNote,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan broadcast: %w", err)
	}

	state, err := broadcast.ParseState(stateStr)
	if err != nil {
		return nil, err
	}

	b := &broadcast.Broadcast{
		ID:          id,
		RemoteID:    remoteID.String,
		StreamID:    streamID.String,
		State:       state,
		Title:       title,
		Description: description,
		PlaylistKey: playlistKey,
		MotionNote:  motionNote.String,
		MotionCount: motionCount,
		FailureNote: failureNote.String,
	}

	if b.WindowStart, err = parseTime(windowStart); err != nil {
		return nil, err
	}
	if b.WindowEnd, err = parseTime(windowEnd); err != nil {
		return nil, err
	}
	if b.WentLiveAt, err = parseNullableTime(wentLiveRaw); err != nil {
		return nil, err
	}
	if b.EndedAt, err = parseNullableTime(endedRaw); err != nil {
		return nil, err
	}
	if b.CreatedAt, err = parseTime(createdRaw); err != nil {
		return nil, err
	}
	if b.UpdatedAt, err = parseTime(updatedRaw); err != nil {
		return nil, err
	}

	return b, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableTime(value time.Time) any {
	if value.IsZero() {
		return nil
	}
	return formatTime(value)
}

func formatTime(value time.Time) string {
	return value.UTC().Format(time.RFC3339Nano)
}

func parseTime(raw string) (time.Time, error) {
	parsed, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse stored timestamp %q: %w", raw, err)
	}
	return parsed, nil
}

func parseNullableTime(raw sql.NullString) (time.Time, error) {
	if !raw.Valid || raw.String == "" {
		return time.Time{}, nil
	}
	return parseTime(raw.String)
}
