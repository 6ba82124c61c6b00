package scheduler

import (
	"context"
	"log/slog"
	"time"

	"perch/internal/broadcast"
	"perch/internal/config"
	"perch/internal/ledger"
	"perch/internal/lifecycle"
	"perch/internal/logging"
	"perch/internal/metrics"
	"perch/internal/notifications"
	"perch/internal/platform"
)

// maxIdle caps how long the driver sleeps between wakeups so config or
// clock drift never parks it past a window boundary.
const maxIdle = time.Minute

// stopBudget bounds a window-end stop that has been detached from the
// loop's cancellation.
const stopBudget = 2 * time.Minute

// Driver is the wall-clock control loop. A single goroutine walks the
// broadcast chain: keep the horizon of scheduled parts topped up, take the
// current part live when its window opens, and stop it when the window
// closes. It is the only writer of the live transition, which keeps at most
// one part live at a time.
type Driver struct {
	cfg      *config.Config
	store    *ledger.Store
	client   platform.Client
	manager  *lifecycle.Manager
	notifier notifications.Service
	metrics  *metrics.Metrics
	logger   *slog.Logger
	loc      *time.Location

	clock   func() time.Time
	maxIdle time.Duration
}

// New wires a schedule driver around an existing lifecycle manager.
func New(cfg *config.Config, store *ledger.Store, client platform.Client, manager *lifecycle.Manager, notifier notifications.Service, m *metrics.Metrics, logger *slog.Logger) (*Driver, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	if notifier == nil {
		notifier = notifications.NewService(cfg)
	}
	return &Driver{
		cfg:      cfg,
		store:    store,
		client:   client,
		manager:  manager,
		notifier: notifier,
		metrics:  m,
		logger:   logging.NewComponentLogger(logger, "scheduler"),
		loc:      loc,
		clock:    time.Now,
		maxIdle:  maxIdle,
	}, nil
}

// SetClock replaces the time source for tests.
func (d *Driver) SetClock(clock func() time.Time) { d.clock = clock }

// SetMaxIdle shortens the idle sleep cap in tests.
func (d *Driver) SetMaxIdle(idle time.Duration) { d.maxIdle = idle }

// Run reconciles against the platform, provisions the ingest stream, and
// then loops until the context is canceled. It returns the context error on
// shutdown; any other error already exhausted the retry budget upstream.
func (d *Driver) Run(ctx context.Context) error {
	if err := ledger.Reconcile(ctx, d.store, d.client, d.logger); err != nil {
		return err
	}
	if _, err := d.manager.EnsureIngest(ctx); err != nil {
		return err
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := d.Step(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			// The chain outlives individual failures: report, pause,
			// pick up again from the ledger.
			d.logger.Error("schedule step failed", logging.Alert("schedule chain interrupted"), logging.Error(err))
			d.publishError(ctx, err)
			if err := d.sleep(ctx, d.cfg.RetryDelay()); err != nil {
				return err
			}
		}
	}
}

// Step performs at most one schedule action and returns. Actions are
// ordered so a finished part always stops before its successor goes live.
func (d *Driver) Step(ctx context.Context) error {
	now := d.clock()

	parts, err := d.store.Active(ctx)
	if err != nil {
		return err
	}

	// Reconcile skips local rows that never reached the platform; they
	// hold a window slot, so clear them here.
	for _, b := range parts {
		if b.State == broadcast.StatePending {
			return d.manager.Abandon(ctx, b, "never reached the platform")
		}
	}

	for _, b := range parts {
		if b.State == broadcast.StateLive && !b.WindowEnd.After(now) {
			// A shutdown arriving mid-stop must not leave the part live
			// upstream, so the stop gets its own cancellation budget.
			stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), stopBudget)
			defer cancel()
			return d.manager.Stop(stopCtx, b)
		}
	}

	if created, err := d.topUp(ctx, now, parts); created || err != nil {
		return err
	}

	current := d.nextScheduled(parts, now)
	if current != nil && !now.Before(current.WindowStart.Add(-d.lead())) {
		// The ledger is the authority on the single-live invariant; a
		// successor never starts while any part is still live.
		live, err := d.store.LiveExists(ctx)
		if err != nil {
			return err
		}
		if !live {
			return d.manager.AwaitLive(ctx, current)
		}
	}

	return d.idle(ctx, now, parts, current)
}

// topUp keeps schedule_ahead windows covered, chaining each new window from
// the end of the last one so parts never overlap.
func (d *Driver) topUp(ctx context.Context, now time.Time, parts []*broadcast.Broadcast) (bool, error) {
	ahead := 0
	var latest *broadcast.Broadcast
	for _, b := range parts {
		if b.State == broadcast.StatePending {
			continue
		}
		if b.WindowEnd.After(now) {
			ahead++
		}
		if latest == nil || b.WindowEnd.After(latest.WindowEnd) {
			latest = b
		}
	}
	if ahead >= d.cfg.Schedule.ScheduleAhead {
		return false, nil
	}

	length := d.cfg.WindowLength()
	var window broadcast.Window
	var previous *broadcast.Broadcast
	if latest == nil || !latest.WindowEnd.After(now) {
		window = broadcast.FirstWindow(now, length, d.loc)
	} else {
		window = broadcast.NextWindow(broadcast.Window{Start: latest.WindowStart, End: latest.WindowEnd}, length)
		previous = latest
	}

	_, err := d.manager.Create(ctx, window, previous)
	return true, err
}

func (d *Driver) nextScheduled(parts []*broadcast.Broadcast, now time.Time) *broadcast.Broadcast {
	var next *broadcast.Broadcast
	for _, b := range parts {
		if b.State != broadcast.StateScheduled || !b.WindowEnd.After(now) {
			continue
		}
		if next == nil || b.WindowStart.Before(next.WindowStart) {
			next = b
		}
	}
	return next
}

// idle sleeps until the next boundary: the live part's window end or the
// next scheduled part's lead time, whichever comes first.
func (d *Driver) idle(ctx context.Context, now time.Time, parts []*broadcast.Broadcast, current *broadcast.Broadcast) error {
	wait := d.maxIdle
	for _, b := range parts {
		if b.State == broadcast.StateLive {
			if until := b.WindowEnd.Sub(now); until < wait {
				wait = until
			}
		}
	}
	if current != nil {
		if until := current.WindowStart.Add(-d.lead()).Sub(now); until < wait {
			wait = until
		}
	}
	if wait < 0 {
		wait = 0
	}
	return d.sleep(ctx, wait)
}

func (d *Driver) lead() time.Duration {
	return time.Duration(d.cfg.Schedule.LeadSeconds) * time.Second
}

func (d *Driver) sleep(ctx context.Context, duration time.Duration) error {
	if duration <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(duration)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (d *Driver) publishError(ctx context.Context, err error) {
	payload := notifications.Payload{"error": err.Error()}
	if publishErr := d.notifier.Publish(ctx, notifications.EventError, payload); publishErr != nil {
		if d.metrics != nil {
			d.metrics.IncNotificationFailure()
		}
		d.logger.Warn("notification failed", logging.Error(publishErr))
	}
}
