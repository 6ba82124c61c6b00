package ledger_test

import (
	"context"
	"testing"
	"time"

	"perch/internal/broadcast"
	"perch/internal/ledger"
	"perch/internal/platform"
)

type stubPlatform struct {
	platform.Client
	active []platform.RemoteBroadcast
	err    error
}

func (s *stubPlatform) ListActiveBroadcasts(context.Context) ([]platform.RemoteBroadcast, error) {
	return s.active, s.err
}

func TestReconcileAdoptsUpstreamBroadcasts(t *testing.T) {
	store := openStore(t)
	start := time.Date(2026, 9, 1, 6, 0, 0, 0, time.UTC)
	client := &stubPlatform{active: []platform.RemoteBroadcast{
		{
			ID:             "b-live",
			Title:          "Birdbox on Tue 01 Sep at 06:00",
			Status:         platform.StatusLive,
			ScheduledStart: start,
			ScheduledEnd:   start.Add(6 * time.Hour),
			ActualStart:    start.Add(30 * time.Second),
		},
		{
			ID:             "b-next",
			Status:         platform.StatusReady,
			ScheduledStart: start.Add(6 * time.Hour),
			ScheduledEnd:   start.Add(12 * time.Hour),
		},
	}}

	if err := ledger.Reconcile(context.Background(), store, client, nil); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	adopted, err := store.ByRemoteID(context.Background(), "b-live")
	if err != nil {
		t.Fatalf("adopted broadcast missing: %v", err)
	}
	if adopted.State != broadcast.StateLive {
		t.Fatalf("unexpected state %s", adopted.State)
	}
	if !adopted.WindowEnd.Equal(start.Add(6 * time.Hour)) {
		t.Fatalf("window end must keep the upstream schedule: %v", adopted.WindowEnd)
	}
	if adopted.PlaylistKey == "" {
		t.Fatal("expected playlist key derived from window start")
	}

	next, err := store.ByRemoteID(context.Background(), "b-next")
	if err != nil {
		t.Fatalf("second broadcast missing: %v", err)
	}
	if next.State != broadcast.StateScheduled {
		t.Fatalf("unexpected state %s", next.State)
	}
}

func TestReconcileAbandonsLocalOrphans(t *testing.T) {
	store := openStore(t)
	start := time.Date(2026, 9, 1, 6, 0, 0, 0, time.UTC)
	seedBroadcast(t, store, "b-orphan", broadcast.StateScheduled, start)

	if err := ledger.Reconcile(context.Background(), store, &stubPlatform{}, nil); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	orphan, err := store.ByRemoteID(context.Background(), "b-orphan")
	if err != nil {
		t.Fatalf("reload orphan: %v", err)
	}
	if orphan.State != broadcast.StateAbandoned {
		t.Fatalf("expected abandoned, got %s", orphan.State)
	}
	if orphan.FailureNote == "" {
		t.Fatal("expected failure note")
	}
}

func TestReconcileRefreshesDriftedState(t *testing.T) {
	store := openStore(t)
	start := time.Date(2026, 9, 1, 6, 0, 0, 0, time.UTC)
	seedBroadcast(t, store, "b-1", broadcast.StateScheduled, start)

	client := &stubPlatform{active: []platform.RemoteBroadcast{{
		ID:             "b-1",
		Title:          "Birdbox on Tue 01 Sep at 06:00",
		Status:         platform.StatusLive,
		ScheduledStart: start,
		ScheduledEnd:   start.Add(6 * time.Hour),
		ActualStart:    start,
	}}}
	if err := ledger.Reconcile(context.Background(), store, client, nil); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	refreshed, err := store.ByRemoteID(context.Background(), "b-1")
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if refreshed.State != broadcast.StateLive {
		t.Fatalf("expected live after drift repair, got %s", refreshed.State)
	}
}
