package poller_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"perch/internal/broadcast"
	"perch/internal/config"
	"perch/internal/ledger"
	"perch/internal/platform"
	"perch/internal/poller"
	"perch/internal/services"
	"perch/internal/testsupport"
)

type recordingEnricher struct {
	mu    sync.Mutex
	seen  []string
	err   error
	store *ledger.Store
}

func (r *recordingEnricher) Enrich(ctx context.Context, b *broadcast.Broadcast) error {
	r.mu.Lock()
	r.seen = append(r.seen, b.RemoteID)
	r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	if err := b.Transition(broadcast.StateEnriched, time.Now()); err != nil {
		return err
	}
	return r.store.Update(ctx, b)
}

func newPoller(t *testing.T, cfg *config.Config, store *ledger.Store, client *testsupport.FakePlatform, enricher poller.Enricher) *poller.Poller {
	t.Helper()
	return poller.New(cfg, store, client, enricher, nil, nil)
}

func seedRemote(client *testsupport.FakePlatform, remoteID string, status platform.LifecycleStatus, endedAt time.Time) {
	client.Broadcasts[remoteID] = &platform.RemoteBroadcast{
		ID:        remoteID,
		Status:    status,
		ActualEnd: endedAt,
	}
}

func TestRunCycleDiscoversCompletedBroadcast(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	client := testsupport.NewFakePlatform()

	start := time.Date(2026, 9, 1, 6, 0, 0, 0, time.UTC)
	testsupport.SeedBroadcast(t, store, "bc-1", broadcast.StateLive, start, 6*time.Hour)
	endedAt := start.Add(6 * time.Hour)
	seedRemote(client, "bc-1", platform.StatusComplete, endedAt)

	enricher := &recordingEnricher{store: store}
	p := newPoller(t, cfg, store, client, enricher)
	p.RunCycle(context.Background())
	p.Flush()

	b, err := store.ByRemoteID(context.Background(), "bc-1")
	if err != nil {
		t.Fatalf("ByRemoteID: %v", err)
	}
	if b.State != broadcast.StateEnriched {
		t.Fatalf("unexpected state %s", b.State)
	}
	if !b.EndedAt.Equal(endedAt) {
		t.Fatalf("unexpected ended_at %v", b.EndedAt)
	}
	if len(enricher.seen) != 1 || enricher.seen[0] != "bc-1" {
		t.Fatalf("unexpected enrichment dispatches %v", enricher.seen)
	}
}

func TestRunCycleHandlesScheduledToCompleteJump(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	client := testsupport.NewFakePlatform()

	start := time.Date(2026, 9, 1, 6, 0, 0, 0, time.UTC)
	testsupport.SeedBroadcast(t, store, "bc-1", broadcast.StateScheduled, start, 6*time.Hour)
	seedRemote(client, "bc-1", platform.StatusComplete, start.Add(6*time.Hour))

	p := newPoller(t, cfg, store, client, nil)
	p.RunCycle(context.Background())
	p.Flush()

	b, err := store.ByRemoteID(context.Background(), "bc-1")
	if err != nil {
		t.Fatalf("ByRemoteID: %v", err)
	}
	if b.State != broadcast.StateEnded {
		t.Fatalf("unexpected state %s", b.State)
	}
}

func TestRunCycleIgnoresForeignBroadcasts(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	client := testsupport.NewFakePlatform()
	seedRemote(client, "someone-elses", platform.StatusComplete, time.Now())

	enricher := &recordingEnricher{store: store}
	p := newPoller(t, cfg, store, client, enricher)
	p.RunCycle(context.Background())
	p.Flush()

	if len(enricher.seen) != 0 {
		t.Fatalf("unexpected enrichment dispatches %v", enricher.seen)
	}
}

func TestRunCycleLeavesEndedOnEnrichmentFailure(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	client := testsupport.NewFakePlatform()

	start := time.Date(2026, 9, 1, 6, 0, 0, 0, time.UTC)
	testsupport.SeedBroadcast(t, store, "bc-1", broadcast.StateEnded, start, 6*time.Hour)

	enricher := &recordingEnricher{
		store: store,
		err:   services.Wrap(services.ErrTransient, "enrich", "fetch", "download failed", errors.New("network")),
	}
	p := newPoller(t, cfg, store, client, enricher)
	p.RunCycle(context.Background())
	p.Flush()

	b, err := store.ByRemoteID(context.Background(), "bc-1")
	if err != nil {
		t.Fatalf("ByRemoteID: %v", err)
	}
	if b.State != broadcast.StateEnded {
		t.Fatalf("failed enrichment must leave the broadcast ended, got %s", b.State)
	}

	// A second cycle retries the same broadcast.
	p.RunCycle(context.Background())
	p.Flush()
	if len(enricher.seen) != 2 {
		t.Fatalf("expected retry on next cycle, saw %v", enricher.seen)
	}
}

func TestRunCycleSkipsStillProcessingRecordings(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	client := testsupport.NewFakePlatform()

	start := time.Date(2026, 9, 1, 6, 0, 0, 0, time.UTC)
	testsupport.SeedBroadcast(t, store, "bc-1", broadcast.StateLive, start, 6*time.Hour)
	seedRemote(client, "bc-1", platform.StatusComplete, start.Add(6*time.Hour))
	client.Broadcasts["bc-1"].Privacy = "private"

	p := newPoller(t, cfg, store, client, nil)
	p.RunCycle(context.Background())
	p.Flush()

	b, err := store.ByRemoteID(context.Background(), "bc-1")
	if err != nil {
		t.Fatalf("ByRemoteID: %v", err)
	}
	if b.State != broadcast.StateLive {
		t.Fatalf("private recording must stay untouched until processed, got %s", b.State)
	}
}

func TestRunCycleSkipsWhenEnrichmentDisabled(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Enrichment.Enabled = false
	store := testsupport.MustOpenStore(t, cfg)
	client := testsupport.NewFakePlatform()

	start := time.Date(2026, 9, 1, 6, 0, 0, 0, time.UTC)
	testsupport.SeedBroadcast(t, store, "bc-1", broadcast.StateEnded, start, 6*time.Hour)

	enricher := &recordingEnricher{store: store}
	p := newPoller(t, cfg, store, client, enricher)
	p.RunCycle(context.Background())
	p.Flush()

	if len(enricher.seen) != 0 {
		t.Fatalf("enrichment ran while disabled: %v", enricher.seen)
	}
}

type blockingEnricher struct {
	mu      sync.Mutex
	calls   map[string]int
	started chan string
	release chan struct{}
}

func (e *blockingEnricher) Enrich(_ context.Context, b *broadcast.Broadcast) error {
	e.mu.Lock()
	e.calls[b.RemoteID]++
	e.mu.Unlock()
	e.started <- b.RemoteID
	<-e.release
	return nil
}

func TestRunCycleNeverDoubleDispatchesSameBroadcast(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Poller.MaxConcurrent = 4
	store := testsupport.MustOpenStore(t, cfg)
	client := testsupport.NewFakePlatform()

	start := time.Date(2026, 9, 1, 6, 0, 0, 0, time.UTC)
	testsupport.SeedBroadcast(t, store, "bc-1", broadcast.StateEnded, start, 6*time.Hour)

	enricher := &blockingEnricher{
		calls:   make(map[string]int),
		started: make(chan string, 2),
		release: make(chan struct{}),
	}
	p := newPoller(t, cfg, store, client, enricher)

	p.RunCycle(context.Background())
	<-enricher.started

	// A second cycle while the first run is still in flight must not
	// dispatch the same broadcast again.
	p.RunCycle(context.Background())
	select {
	case id := <-enricher.started:
		t.Fatalf("duplicate dispatch for %s", id)
	case <-time.After(50 * time.Millisecond):
	}

	close(enricher.release)
	p.Flush()
	if got := enricher.calls["bc-1"]; got != 1 {
		t.Fatalf("expected a single enrichment run, got %d", got)
	}
}

func TestRunCyclePrunesStaleAbandonedRows(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	client := testsupport.NewFakePlatform()

	lookback := time.Duration(cfg.Poller.LookbackHours) * time.Hour
	stale := time.Now().Add(-lookback - 48*time.Hour)
	testsupport.SeedBroadcast(t, store, "bc-stale", broadcast.StateAbandoned, stale, 6*time.Hour)
	recent := testsupport.SeedBroadcast(t, store, "bc-recent", broadcast.StateAbandoned, time.Now(), 6*time.Hour)

	p := newPoller(t, cfg, store, client, nil)
	p.RunCycle(context.Background())
	p.Flush()

	if _, err := store.ByRemoteID(context.Background(), "bc-stale"); !errors.Is(err, ledger.ErrNotFound) {
		t.Fatalf("stale abandoned row must be pruned, got %v", err)
	}
	if _, err := store.ByRemoteID(context.Background(), recent.RemoteID); err != nil {
		t.Fatalf("recent abandoned row must survive: %v", err)
	}
}

func TestRunCycleSurvivesListingFailure(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	client := testsupport.NewFakePlatform()
	client.Fail = func(operation string) error {
		if operation == "list-complete" {
			return services.Wrap(services.ErrTransient, "platform", "list-complete", "upstream 503", nil)
		}
		return nil
	}

	p := newPoller(t, cfg, store, client, nil)
	p.RunCycle(context.Background())
	p.Flush()
}
