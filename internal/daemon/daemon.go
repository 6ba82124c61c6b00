package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"

	"github.com/gofrs/flock"

	"perch/internal/broadcast"
	"perch/internal/config"
	"perch/internal/ledger"
	"perch/internal/logging"
	"perch/internal/metrics"
	"perch/internal/poller"
	"perch/internal/scheduler"
)

// Daemon composes the schedule driver, the completion poller, and the API
// server, and enforces single-instance execution through a file lock.
type Daemon struct {
	cfg     *config.Config
	logger  *slog.Logger
	store   *ledger.Store
	driver  *scheduler.Driver
	poller  *poller.Poller
	metrics *metrics.Metrics

	lockPath string
	lock     *flock.Flock
	api      *apiServer

	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	failed  chan struct{}

	mu     sync.Mutex
	runErr error
}

// Status reports daemon runtime information for the API and the CLI.
type Status struct {
	Running      bool                    `json:"running"`
	PID          int                     `json:"pid"`
	LedgerPath   string                  `json:"ledger_path"`
	LockFilePath string                  `json:"lock_file_path"`
	Broadcasts   broadcast.HealthSummary `json:"broadcasts"`
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store *ledger.Store, driver *scheduler.Driver, p *poller.Poller, m *metrics.Metrics, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || store == nil || driver == nil {
		return nil, errors.New("daemon requires config, store, and driver")
	}
	logger = logging.NewComponentLogger(logger, "daemon")

	lockPath := cfg.LockPath()
	d := &Daemon{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		driver:   driver,
		poller:   p,
		metrics:  m,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
		failed:   make(chan struct{}),
	}

	api, err := newAPIServer(cfg, d, logger)
	if err != nil {
		return nil, err
	}
	d.api = api
	return d, nil
}

// Start acquires the instance lock and launches the driver, poller, and API
// server. It returns once everything is running.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another perch daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.failed = make(chan struct{})

	if err := d.api.start(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return err
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if err := d.driver.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			d.mu.Lock()
			d.runErr = err
			d.mu.Unlock()
			d.logger.Error("schedule driver exited", logging.Error(err))
			close(d.failed)
		}
	}()

	if d.poller != nil {
		d.poller.Start(runCtx)
	}

	d.running.Store(true)
	d.logger.Info("perch daemon started",
		logging.String("lock", d.lockPath),
		logging.String("ledger", d.store.Path()),
	)
	return nil
}

// Stop cancels background work, waits for in-flight stop and enrichment to
// finish, and releases the instance lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.wg.Wait()
	if d.poller != nil {
		d.poller.Stop()
	}
	d.api.stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("perch daemon stopped")
}

// Close stops the daemon and releases the ledger.
func (d *Daemon) Close() error {
	d.Stop()
	return d.store.Close()
}

// Failed is closed when the schedule driver exits with a non-cancellation
// error. RunError then reports the cause.
func (d *Daemon) Failed() <-chan struct{} {
	return d.failed
}

// RunError reports a driver failure that ended background processing.
func (d *Daemon) RunError() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.runErr
}

// APIAddr reports the bound API listener address, empty when disabled.
func (d *Daemon) APIAddr() string {
	if d.api == nil {
		return ""
	}
	return d.api.addr()
}

// Status summarizes daemon state for the API and CLI.
func (d *Daemon) Status(ctx context.Context) Status {
	summary, err := d.store.HealthSummary(ctx)
	if err != nil {
		d.logger.Warn("health summary failed", logging.Error(err))
	}
	return Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		LedgerPath:   d.store.Path(),
		LockFilePath: d.lockPath,
		Broadcasts:   summary,
	}
}
