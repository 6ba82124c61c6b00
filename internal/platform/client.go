package platform

import (
	"context"
	"time"
)

// LifecycleStatus is a remote broadcast lifecycle value.
type LifecycleStatus string

const (
	StatusReady    LifecycleStatus = "ready"
	StatusTesting  LifecycleStatus = "testing"
	StatusLive     LifecycleStatus = "live"
	StatusComplete LifecycleStatus = "complete"
)

// StreamState is the health of the ingest stream.
type StreamState string

const (
	StreamActive   StreamState = "active"
	StreamInactive StreamState = "inactive"
	StreamError    StreamState = "error"
)

// Stream is the persistent ingest endpoint broadcasts bind to.
type Stream struct {
	ID        string      `json:"id"`
	Key       string      `json:"key"`
	IngestURL string      `json:"ingest_url"`
	State     StreamState `json:"state"`
}

// RemoteBroadcast is the platform's view of one broadcast part.
type RemoteBroadcast struct {
	ID             string          `json:"id"`
	Title          string          `json:"title"`
	Description    string          `json:"description"`
	Status         LifecycleStatus `json:"status"`
	ScheduledStart time.Time       `json:"scheduled_start"`
	ScheduledEnd   time.Time       `json:"scheduled_end"`
	ActualStart    time.Time       `json:"actual_start,omitzero"`
	ActualEnd      time.Time       `json:"actual_end,omitzero"`
	BoundStreamID  string          `json:"bound_stream_id,omitempty"`
	Privacy        string          `json:"privacy,omitempty"`
}

// CreateBroadcastRequest carries everything the platform needs to schedule a part.
type CreateBroadcastRequest struct {
	Title          string    `json:"title"`
	Description    string    `json:"description"`
	ScheduledStart time.Time `json:"scheduled_start"`
	ScheduledEnd   time.Time `json:"scheduled_end"`
	Privacy        string    `json:"privacy"`
	CategoryID     string    `json:"category_id,omitempty"`
}

// MetadataPatch updates remote broadcast metadata. Nil fields are untouched.
type MetadataPatch struct {
	Title       *string  `json:"title,omitempty"`
	Description *string  `json:"description,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	CategoryID  *string  `json:"category_id,omitempty"`
}

// Playlist is a remote grouping of broadcasts.
type Playlist struct {
	ID      string `json:"id"`
	Key     string `json:"key"`
	Title   string `json:"title"`
	Privacy string `json:"privacy,omitempty"`
}

// Client describes every remote platform operation the daemon performs.
// Implementations classify failures with the services error markers so
// callers can decide between retrying and giving up.
type Client interface {
	// EnsureStream returns the reusable ingest stream, creating it if absent.
	EnsureStream(ctx context.Context) (Stream, error)
	// StreamHealth reports the current ingest state of the stream.
	StreamHealth(ctx context.Context, streamID string) (StreamState, error)

	// CreateBroadcast schedules a new part for the given window.
	CreateBroadcast(ctx context.Context, req CreateBroadcastRequest) (RemoteBroadcast, error)
	// BindStream attaches the ingest stream to a scheduled broadcast.
	BindStream(ctx context.Context, broadcastID, streamID string) error
	// Transition moves a broadcast between lifecycle states. A redundant
	// transition surfaces as an ErrConflict-tagged error.
	Transition(ctx context.Context, broadcastID string, status LifecycleStatus) error
	// BroadcastStatus fetches a single broadcast.
	BroadcastStatus(ctx context.Context, broadcastID string) (RemoteBroadcast, error)
	// ListActiveBroadcasts returns parts that are scheduled or live.
	ListActiveBroadcasts(ctx context.Context) ([]RemoteBroadcast, error)
	// ListCompleteBroadcasts returns parts that finished after since.
	ListCompleteBroadcasts(ctx context.Context, since time.Time) ([]RemoteBroadcast, error)

	// UpdateMetadata patches title, description, tags, or category.
	UpdateMetadata(ctx context.Context, broadcastID string, patch MetadataPatch) error
	// EnsurePlaylist returns the playlist for key, creating it if absent.
	EnsurePlaylist(ctx context.Context, key, title, privacy string) (Playlist, error)
	// AddToPlaylist appends a broadcast to a playlist.
	AddToPlaylist(ctx context.Context, playlistID, broadcastID string) error

	// WatchURL returns the public viewing address for a broadcast.
	WatchURL(broadcastID string) string
}
