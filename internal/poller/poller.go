package poller

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"perch/internal/broadcast"
	"perch/internal/config"
	"perch/internal/ledger"
	"perch/internal/logging"
	"perch/internal/metrics"
	"perch/internal/platform"
)

// Enricher post-processes one ended broadcast.
type Enricher interface {
	Enrich(ctx context.Context, b *broadcast.Broadcast) error
}

// Poller periodically asks the platform which broadcasts have completed,
// folds that into the ledger, and hands ended parts to the enricher.
// A stream can end without the scheduler seeing it, so completion is
// discovered here rather than assumed from the schedule.
type Poller struct {
	cfg      *config.Config
	store    *ledger.Store
	client   platform.Client
	enricher Enricher
	metrics  *metrics.Metrics
	logger   *slog.Logger

	interval time.Duration
	lookback time.Duration
	cron     *cron.Cron
	sem      chan struct{}

	mu       sync.Mutex
	inFlight map[int64]struct{}
	wg       sync.WaitGroup
}

// New builds a completion poller. The enricher may be nil, in which case
// ended broadcasts stay ended until one is provided.
func New(cfg *config.Config, store *ledger.Store, client platform.Client, enricher Enricher, m *metrics.Metrics, logger *slog.Logger) *Poller {
	concurrency := cfg.Poller.MaxConcurrent
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Poller{
		cfg:      cfg,
		store:    store,
		client:   client,
		enricher: enricher,
		metrics:  m,
		logger:   logging.NewComponentLogger(logger, "poller"),
		interval: time.Duration(cfg.Poller.IntervalMinutes) * time.Minute,
		lookback: time.Duration(cfg.Poller.LookbackHours) * time.Hour,
		sem:      make(chan struct{}, concurrency),
		inFlight: make(map[int64]struct{}),
	}
}

// Start schedules recurring cycles and runs the first one immediately.
func (p *Poller) Start(ctx context.Context) {
	p.cron = cron.New()
	p.cron.Schedule(cron.Every(p.interval), cron.FuncJob(func() {
		p.RunCycle(ctx)
	}))
	p.cron.Start()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.RunCycle(ctx)
	}()
}

// Stop halts the schedule and waits for in-flight enrichment to finish.
func (p *Poller) Stop() {
	if p.cron != nil {
		<-p.cron.Stop().Done()
	}
	p.wg.Wait()
}

// RunCycle performs one discovery pass: reconcile completed remote
// broadcasts into the ledger, then dispatch ended parts for enrichment.
func (p *Poller) RunCycle(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if p.metrics != nil {
		p.metrics.IncPollerCycle()
	}

	p.discoverCompleted(ctx)
	p.dispatchEnded(ctx)
	p.pruneAbandoned(ctx)
}

// pruneAbandoned drops abandoned rows older than the lookback horizon. They
// hold no window slot and nothing reads them once they age out of status
// output, so the cache stays small on a long-running daemon.
func (p *Poller) pruneAbandoned(ctx context.Context) {
	cutoff := time.Now().Add(-p.lookback)
	pruned, err := p.store.DeleteAbandonedBefore(ctx, cutoff)
	if err != nil {
		p.logger.Warn("abandoned row cleanup failed", logging.Error(err))
		return
	}
	if pruned > 0 {
		p.logger.Debug("abandoned rows pruned", logging.Int64("count", pruned))
	}
}

func (p *Poller) discoverCompleted(ctx context.Context) {
	since := time.Now().Add(-p.lookback)
	completed, err := p.client.ListCompleteBroadcasts(ctx, since)
	if err != nil {
		p.logger.Warn("completed broadcast listing failed", logging.Error(err))
		return
	}

	for _, remote := range completed {
		if remote.Privacy == "private" && p.cfg.Platform.Privacy != "private" {
			// The platform flips finished recordings to private while it is
			// still processing them; they come back once playable.
			continue
		}
		b, err := p.store.ByRemoteID(ctx, remote.ID)
		if err != nil {
			if !errors.Is(err, ledger.ErrNotFound) {
				p.logger.Warn("ledger lookup failed",
					logging.String("remote_id", remote.ID), logging.Error(err))
			}
			continue
		}
		if b.State != broadcast.StateScheduled && b.State != broadcast.StateLive {
			continue
		}

		endedAt := remote.ActualEnd
		if endedAt.IsZero() {
			endedAt = time.Now()
		}
		if b.State == broadcast.StateScheduled {
			// Went live and ended entirely between cycles.
			if err := b.Transition(broadcast.StateLive, endedAt); err != nil {
				p.logger.Warn("transition failed", logging.String("remote_id", remote.ID), logging.Error(err))
				continue
			}
		}
		if err := b.Transition(broadcast.StateEnded, endedAt); err != nil {
			p.logger.Warn("transition failed", logging.String("remote_id", remote.ID), logging.Error(err))
			continue
		}
		if err := p.store.Update(ctx, b); err != nil {
			p.logger.Warn("ledger update failed", logging.String("remote_id", remote.ID), logging.Error(err))
			continue
		}
		if p.metrics != nil {
			p.metrics.IncTransition(broadcast.StateEnded)
		}
		p.logger.Info("completed broadcast discovered",
			logging.String("remote_id", remote.ID),
			logging.Time("ended_at", endedAt),
		)
	}
}

func (p *Poller) dispatchEnded(ctx context.Context) {
	if p.enricher == nil || !p.cfg.Enrichment.Enabled {
		return
	}

	ended, err := p.store.ByState(ctx, broadcast.StateEnded)
	if err != nil {
		p.logger.Warn("ended broadcast listing failed", logging.Error(err))
		return
	}

	for _, b := range ended {
		p.dispatch(ctx, b)
	}
}

func (p *Poller) dispatch(ctx context.Context, b *broadcast.Broadcast) {
	p.mu.Lock()
	if _, busy := p.inFlight[b.ID]; busy {
		p.mu.Unlock()
		return
	}
	p.inFlight[b.ID] = struct{}{}
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer func() {
			p.mu.Lock()
			delete(p.inFlight, b.ID)
			p.mu.Unlock()
		}()

		select {
		case p.sem <- struct{}{}:
			defer func() { <-p.sem }()
		case <-ctx.Done():
			return
		}

		defer func() {
			if r := recover(); r != nil {
				p.logger.Error("enrichment panicked",
					logging.String("remote_id", b.RemoteID),
					logging.Any("panic", r),
				)
			}
		}()

		if err := p.enricher.Enrich(ctx, b); err != nil {
			// Left ended; the next cycle retries it.
			p.logger.Warn("enrichment failed",
				logging.String("remote_id", b.RemoteID),
				logging.Error(err),
			)
		}
	}()
}

// Flush waits for all dispatched enrichment work to settle. Test hook.
func (p *Poller) Flush() {
	p.wg.Wait()
}
