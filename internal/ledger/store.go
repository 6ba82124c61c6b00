package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"perch/internal/broadcast"
	"perch/internal/config"
)

// ErrNotFound indicates no broadcast matched the lookup.
var ErrNotFound = errors.New("broadcast not found in ledger")

// Store caches broadcast state in SQLite. The remote platform stays the
// source of record; Reconcile rebuilds this cache on startup.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the ledger database.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	return OpenPath(cfg.LedgerPath())
}

// OpenPath connects to the ledger at an explicit location.
func OpenPath(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// Insert stores a new broadcast and returns it with its ledger id assigned.
func (s *Store) Insert(ctx context.Context, b *broadcast.Broadcast) (*broadcast.Broadcast, error) {
	now := time.Now().UTC()
	if b.CreatedAt.IsZero() {
		b.CreatedAt = now
	}
	b.UpdatedAt = now

	res, err := s.db.ExecContext(
		ctx,
		`INSERT INTO broadcasts (
            remote_id, stream_id, state, title, description, playlist_key,
            window_start, window_end, went_live_at, ended_at,
            motion_note, motion_count, failure_note, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		nullableString(b.RemoteID),
		nullableString(b.StreamID),
		string(b.State),
		b.Title,
		b.Description,
		b.PlaylistKey,
		formatTime(b.WindowStart),
		formatTime(b.WindowEnd),
		nullableTime(b.WentLiveAt),
		nullableTime(b.EndedAt),
		nullableString(b.MotionNote),
		b.MotionCount,
		nullableString(b.FailureNote),
		formatTime(b.CreatedAt),
		formatTime(b.UpdatedAt),
	)
	if err != nil {
		return nil, fmt.Errorf("insert broadcast: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("read insert id: %w", err)
	}
	b.ID = id
	return b, nil
}

// Update persists every mutable field of the broadcast.
func (s *Store) Update(ctx context.Context, b *broadcast.Broadcast) error {
	b.UpdatedAt = time.Now().UTC()

	res, err := s.db.ExecContext(
		ctx,
		`UPDATE broadcasts SET
            remote_id = ?, stream_id = ?, state = ?, title = ?, description = ?,
            playlist_key = ?, window_start = ?, window_end = ?, went_live_at = ?,
            ended_at = ?, motion_note = ?, motion_count = ?, failure_note = ?,
            updated_at = ?
        WHERE id = ?`,
		nullableString(b.RemoteID),
		nullableString(b.StreamID),
		string(b.State),
		b.Title,
		b.Description,
		b.PlaylistKey,
		formatTime(b.WindowStart),
		formatTime(b.WindowEnd),
		nullableTime(b.WentLiveAt),
		nullableTime(b.EndedAt),
		nullableString(b.MotionNote),
		b.MotionCount,
		nullableString(b.FailureNote),
		formatTime(b.UpdatedAt),
		b.ID,
	)
	if err != nil {
		return fmt.Errorf("update broadcast %d: %w", b.ID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update broadcast %d: %w", b.ID, err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// ByRemoteID fetches a broadcast by its platform identifier.
func (s *Store) ByRemoteID(ctx context.Context, remoteID string) (*broadcast.Broadcast, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+broadcastColumns+" FROM broadcasts WHERE remote_id = ?", remoteID)
	return scanBroadcast(row)
}

// ByWindowStart fetches the broadcast occupying the window that begins at start.
func (s *Store) ByWindowStart(ctx context.Context, start time.Time) (*broadcast.Broadcast, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+broadcastColumns+" FROM broadcasts WHERE window_start = ?", formatTime(start))
	return scanBroadcast(row)
}

// ByState lists broadcasts in any of the given states, ordered by window start.
func (s *Store) ByState(ctx context.Context, states ...broadcast.State) ([]*broadcast.Broadcast, error) {
	if len(states) == 0 {
		return nil, nil
	}
	placeholders := make([]byte, 0, len(states)*2)
	args := make([]any, 0, len(states))
	for i, state := range states {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
		args = append(args, string(state))
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+broadcastColumns+" FROM broadcasts WHERE state IN ("+string(placeholders)+") ORDER BY window_start ASC",
		args...)
	if err != nil {
		return nil, fmt.Errorf("query broadcasts by state: %w", err)
	}
	defer rows.Close()

	var out []*broadcast.Broadcast
	for rows.Next() {
		b, err := scanBroadcast(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// Active lists every broadcast that still needs supervision.
func (s *Store) Active(ctx context.Context) ([]*broadcast.Broadcast, error) {
	return s.ByState(ctx, broadcast.StatePending, broadcast.StateScheduled, broadcast.StateLive)
}

// LiveExists reports whether any broadcast is currently marked live.
func (s *Store) LiveExists(ctx context.Context) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM broadcasts WHERE state = ?", string(broadcast.StateLive)).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("count live broadcasts: %w", err)
	}
	return count > 0, nil
}

// LatestWindowEnd returns the furthest scheduled window end, or zero when
// the ledger holds no schedulable broadcasts.
func (s *Store) LatestWindowEnd(ctx context.Context) (time.Time, error) {
	var raw sql.NullString
	err := s.db.QueryRowContext(ctx,
		"SELECT MAX(window_end) FROM broadcasts WHERE state IN (?, ?, ?)",
		string(broadcast.StatePending),
		string(broadcast.StateScheduled),
		string(broadcast.StateLive),
	).Scan(&raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("query latest window end: %w", err)
	}
	if !raw.Valid || raw.String == "" {
		return time.Time{}, nil
	}
	return parseTime(raw.String)
}

// HealthSummary aggregates broadcast counts per lifecycle state.
func (s *Store) HealthSummary(ctx context.Context) (broadcast.HealthSummary, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT state, COUNT(1) FROM broadcasts GROUP BY state")
	if err != nil {
		return broadcast.HealthSummary{}, fmt.Errorf("aggregate broadcast states: %w", err)
	}
	defer rows.Close()

	var summary broadcast.HealthSummary
	for rows.Next() {
		var state string
		var count int
		if err := rows.Scan(&state, &count); err != nil {
			return broadcast.HealthSummary{}, fmt.Errorf("scan state count: %w", err)
		}
		summary.Total += count
		switch broadcast.State(state) {
		case broadcast.StatePending:
			summary.Pending = count
		case broadcast.StateScheduled:
			summary.Scheduled = count
		case broadcast.StateLive:
			summary.Live = count
		case broadcast.StateEnded:
			summary.Ended = count
		case broadcast.StateEnriched:
			summary.Enriched = count
		case broadcast.StateAbandoned:
			summary.Abandoned = count
		}
	}
	return summary, rows.Err()
}

// DeleteAbandonedBefore prunes abandoned records whose window ended before
// cutoff. Abandoned rows hold no window slot, so this is pure cache hygiene.
func (s *Store) DeleteAbandonedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM broadcasts WHERE state = ? AND window_end < ?",
		string(broadcast.StateAbandoned), formatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("prune abandoned broadcasts: %w", err)
	}
	return res.RowsAffected()
}
