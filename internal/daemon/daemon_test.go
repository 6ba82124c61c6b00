package daemon_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/gofrs/flock"

	"perch/internal/config"
	"perch/internal/daemon"
	"perch/internal/ledger"
	"perch/internal/lifecycle"
	"perch/internal/metrics"
	"perch/internal/retry"
	"perch/internal/scheduler"
	"perch/internal/testsupport"
)

type instantSleeper struct{}

func (instantSleeper) Sleep(ctx context.Context, _ time.Duration) error { return ctx.Err() }

func newDaemon(t *testing.T, cfg *config.Config) (*daemon.Daemon, *ledger.Store) {
	t.Helper()

	store := testsupport.MustOpenStore(t, cfg)
	client := testsupport.NewFakePlatform()
	exec := retry.NewExecutor(time.Millisecond, nil, retry.WithSleeper(instantSleeper{}), retry.WithMaxAttempts(3))

	manager, err := lifecycle.NewManager(cfg, store, client, exec, nil, nil, nil)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	manager.SetPollInterval(time.Millisecond)

	driver, err := scheduler.New(cfg, store, client, manager, nil, nil, nil)
	if err != nil {
		t.Fatalf("scheduler.New: %v", err)
	}
	driver.SetMaxIdle(10 * time.Millisecond)

	d, err := daemon.New(cfg, store, driver, nil, metrics.New(), nil)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	return d, store
}

func startDaemon(t *testing.T, d *daemon.Daemon) {
	t.Helper()
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(d.Stop)
}

func TestDaemonServesStatusAndMetrics(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d, _ := newDaemon(t, cfg)
	startDaemon(t, d)

	addr := d.APIAddr()
	if addr == "" {
		t.Fatal("api listener not bound")
	}

	resp, err := http.Get(fmt.Sprintf("http://%s/api/status", addr))
	if err != nil {
		t.Fatalf("GET /api/status: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.StatusCode)
	}

	var status daemon.Status
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if !status.Running {
		t.Fatal("daemon should report running")
	}
	if status.LedgerPath != cfg.LedgerPath() {
		t.Fatalf("unexpected ledger path %q", status.LedgerPath)
	}

	metricsResp, err := http.Get(fmt.Sprintf("http://%s/metrics", addr))
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer metricsResp.Body.Close()
	if metricsResp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected metrics status %d", metricsResp.StatusCode)
	}
}

func TestDaemonListsBroadcasts(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d, _ := newDaemon(t, cfg)
	startDaemon(t, d)

	// The driver schedules the first parts shortly after startup.
	deadline := time.Now().Add(5 * time.Second)
	for {
		resp, err := http.Get(fmt.Sprintf("http://%s/api/broadcasts", d.APIAddr()))
		if err != nil {
			t.Fatalf("GET /api/broadcasts: %v", err)
		}
		var payload struct {
			Broadcasts []struct {
				RemoteID string `json:"remote_id"`
				State    string `json:"state"`
			} `json:"broadcasts"`
		}
		decodeErr := json.NewDecoder(resp.Body).Decode(&payload)
		resp.Body.Close()
		if decodeErr != nil {
			t.Fatalf("decode broadcasts: %v", decodeErr)
		}
		if len(payload.Broadcasts) > 0 {
			if payload.Broadcasts[0].RemoteID == "" {
				t.Fatal("broadcast missing remote id")
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("driver never scheduled a broadcast")
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestDaemonRejectsBadStateFilter(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d, _ := newDaemon(t, cfg)
	startDaemon(t, d)

	resp, err := http.Get(fmt.Sprintf("http://%s/api/broadcasts?state=bogus", d.APIAddr()))
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("unexpected status %d", resp.StatusCode)
	}
}

func TestDaemonRequiresBearerToken(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Paths.APIToken = "sekrit"
	d, _ := newDaemon(t, cfg)
	startDaemon(t, d)

	url := fmt.Sprintf("http://%s/api/status", d.APIAddr())

	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}

	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	req.Header.Set("Authorization", "Bearer sekrit")
	authed, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET with token: %v", err)
	}
	authed.Body.Close()
	if authed.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d", authed.StatusCode)
	}
}

func TestDaemonHoldsInstanceLock(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d, _ := newDaemon(t, cfg)
	startDaemon(t, d)

	contender := flock.New(cfg.LockPath())
	ok, err := contender.TryLock()
	if err != nil {
		t.Fatalf("TryLock: %v", err)
	}
	if ok {
		_ = contender.Unlock()
		t.Fatal("second instance acquired the lock while daemon running")
	}

	d.Stop()
	ok, err = contender.TryLock()
	if err != nil {
		t.Fatalf("TryLock after stop: %v", err)
	}
	if !ok {
		t.Fatal("lock not released after stop")
	}
	_ = contender.Unlock()
}
