package testsupport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"perch/internal/platform"
)

// FakePlatform is an in-memory platform.Client for tests. Zero value is
// usable; hooks let individual tests inject failures per operation.
type FakePlatform struct {
	mu sync.Mutex

	nextID     int
	Broadcasts map[string]*platform.RemoteBroadcast
	Playlists  map[string]platform.Playlist
	PlaylistOf map[string][]string
	Stream     platform.Stream

	// Calls records operation names in invocation order.
	Calls []string

	// Fail, when set, is consulted before every operation.
	Fail func(operation string) error

	// LiveAfterPolls delays StatusLive visibility in BroadcastStatus.
	LiveAfterPolls int
	statusPolls    map[string]int
}

// NewFakePlatform returns an empty fake with a default ingest stream.
func NewFakePlatform() *FakePlatform {
	return &FakePlatform{
		Broadcasts:  make(map[string]*platform.RemoteBroadcast),
		Playlists:   make(map[string]platform.Playlist),
		PlaylistOf:  make(map[string][]string),
		Stream:      platform.Stream{ID: "stream-1", Key: "ingest-key", State: platform.StreamActive},
		statusPolls: make(map[string]int),
	}
}

func (f *FakePlatform) record(operation string) error {
	f.Calls = append(f.Calls, operation)
	if f.Fail != nil {
		return f.Fail(operation)
	}
	return nil
}

func (f *FakePlatform) EnsureStream(context.Context) (platform.Stream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("ensure-stream"); err != nil {
		return platform.Stream{}, err
	}
	return f.Stream, nil
}

func (f *FakePlatform) StreamHealth(_ context.Context, _ string) (platform.StreamState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("stream-health"); err != nil {
		return "", err
	}
	return f.Stream.State, nil
}

func (f *FakePlatform) CreateBroadcast(_ context.Context, req platform.CreateBroadcastRequest) (platform.RemoteBroadcast, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("create-broadcast"); err != nil {
		return platform.RemoteBroadcast{}, err
	}
	f.nextID++
	rb := platform.RemoteBroadcast{
		ID:             fmt.Sprintf("b-%d", f.nextID),
		Title:          req.Title,
		Description:    req.Description,
		Status:         platform.StatusReady,
		ScheduledStart: req.ScheduledStart,
		ScheduledEnd:   req.ScheduledEnd,
		Privacy:        req.Privacy,
	}
	f.Broadcasts[rb.ID] = &rb
	return rb, nil
}

func (f *FakePlatform) BindStream(_ context.Context, broadcastID, streamID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("bind-stream"); err != nil {
		return err
	}
	if rb, ok := f.Broadcasts[broadcastID]; ok {
		rb.BoundStreamID = streamID
	}
	return nil
}

func (f *FakePlatform) Transition(_ context.Context, broadcastID string, status platform.LifecycleStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("transition-" + string(status)); err != nil {
		return err
	}
	rb, ok := f.Broadcasts[broadcastID]
	if !ok {
		return fmt.Errorf("unknown broadcast %s", broadcastID)
	}
	rb.Status = status
	switch status {
	case platform.StatusLive:
		rb.ActualStart = time.Now().UTC()
	case platform.StatusComplete:
		rb.ActualEnd = time.Now().UTC()
	}
	return nil
}

func (f *FakePlatform) BroadcastStatus(_ context.Context, broadcastID string) (platform.RemoteBroadcast, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("broadcast-status"); err != nil {
		return platform.RemoteBroadcast{}, err
	}
	rb, ok := f.Broadcasts[broadcastID]
	if !ok {
		return platform.RemoteBroadcast{}, fmt.Errorf("unknown broadcast %s", broadcastID)
	}
	out := *rb
	if out.Status == platform.StatusLive && f.LiveAfterPolls > 0 {
		f.statusPolls[broadcastID]++
		if f.statusPolls[broadcastID] <= f.LiveAfterPolls {
			out.Status = platform.StatusReady
		}
	}
	return out, nil
}

func (f *FakePlatform) ListActiveBroadcasts(context.Context) ([]platform.RemoteBroadcast, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("list-active"); err != nil {
		return nil, err
	}
	var out []platform.RemoteBroadcast
	for _, rb := range f.Broadcasts {
		if rb.Status != platform.StatusComplete {
			out = append(out, *rb)
		}
	}
	return out, nil
}

func (f *FakePlatform) ListCompleteBroadcasts(_ context.Context, since time.Time) ([]platform.RemoteBroadcast, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("list-complete"); err != nil {
		return nil, err
	}
	var out []platform.RemoteBroadcast
	for _, rb := range f.Broadcasts {
		if rb.Status == platform.StatusComplete && rb.ActualEnd.After(since) {
			out = append(out, *rb)
		}
	}
	return out, nil
}

func (f *FakePlatform) UpdateMetadata(_ context.Context, broadcastID string, patch platform.MetadataPatch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("update-metadata"); err != nil {
		return err
	}
	rb, ok := f.Broadcasts[broadcastID]
	if !ok {
		return fmt.Errorf("unknown broadcast %s", broadcastID)
	}
	if patch.Title != nil {
		rb.Title = *patch.Title
	}
	if patch.Description != nil {
		rb.Description = *patch.Description
	}
	return nil
}

func (f *FakePlatform) EnsurePlaylist(_ context.Context, key, title, privacy string) (platform.Playlist, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("ensure-playlist"); err != nil {
		return platform.Playlist{}, err
	}
	if existing, ok := f.Playlists[key]; ok {
		return existing, nil
	}
	playlist := platform.Playlist{
		ID:      "pl-" + key,
		Key:     key,
		Title:   title,
		Privacy: privacy,
	}
	f.Playlists[key] = playlist
	return playlist, nil
}

func (f *FakePlatform) AddToPlaylist(_ context.Context, playlistID, broadcastID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("add-to-playlist"); err != nil {
		return err
	}
	f.PlaylistOf[playlistID] = append(f.PlaylistOf[playlistID], broadcastID)
	return nil
}

func (f *FakePlatform) WatchURL(broadcastID string) string {
	return "https://watch.example.com/" + broadcastID
}

// CallCount returns how many times the named operation ran.
func (f *FakePlatform) CallCount(operation string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, call := range f.Calls {
		if call == operation {
			count++
		}
	}
	return count
}
