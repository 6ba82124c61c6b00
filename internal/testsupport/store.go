package testsupport

import (
	"context"
	"testing"
	"time"

	"perch/internal/broadcast"
	"perch/internal/config"
	"perch/internal/ledger"
)

// MustOpenStore opens a ledger.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *ledger.Store {
	t.Helper()

	store, err := ledger.Open(cfg)
	if err != nil {
		t.Fatalf("ledger.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// SeedBroadcast inserts a broadcast for tests using the provided store.
func SeedBroadcast(t testing.TB, store *ledger.Store, remoteID string, state broadcast.State, start time.Time, window time.Duration) *broadcast.Broadcast {
	t.Helper()

	b, err := store.Insert(context.Background(), &broadcast.Broadcast{
		RemoteID:    remoteID,
		StreamID:    "stream-1",
		State:       state,
		Title:       "Birdbox on " + start.Format("Mon 02 Jan at 15:04"),
		PlaylistKey: broadcast.PlaylistKeyFor(start),
		WindowStart: start,
		WindowEnd:   start.Add(window),
	})
	if err != nil {
		t.Fatalf("store.Insert: %v", err)
	}
	return b
}
