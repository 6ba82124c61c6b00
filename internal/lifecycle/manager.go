package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"perch/internal/broadcast"
	"perch/internal/config"
	"perch/internal/ledger"
	"perch/internal/logging"
	"perch/internal/metrics"
	"perch/internal/notifications"
	"perch/internal/platform"
	"perch/internal/retry"
	"perch/internal/services"
)

// Manager drives one broadcast part through its lifecycle: create it on the
// platform, take it live at the window boundary, and stop it at the end.
type Manager struct {
	cfg      *config.Config
	store    *ledger.Store
	client   platform.Client
	exec     *retry.Executor
	notifier notifications.Service
	metrics  *metrics.Metrics
	logger   *slog.Logger
	loc      *time.Location

	streamID string

	clock      func() time.Time
	streamPoll time.Duration
	statusPoll time.Duration
}

// NewManager wires a lifecycle manager. The metrics and notifier arguments
// may be nil in tests.
func NewManager(cfg *config.Config, store *ledger.Store, client platform.Client, exec *retry.Executor, notifier notifications.Service, m *metrics.Metrics, logger *slog.Logger) (*Manager, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	if notifier == nil {
		notifier = notifications.NewService(cfg)
	}
	return &Manager{
		cfg:        cfg,
		store:      store,
		client:     client,
		exec:       exec,
		notifier:   notifier,
		metrics:    m,
		logger:     logging.NewComponentLogger(logger, "lifecycle"),
		loc:        loc,
		clock:      time.Now,
		streamPoll: time.Duration(cfg.Schedule.StreamPollSeconds) * time.Second,
		statusPoll: time.Duration(cfg.Schedule.StatusPollSeconds) * time.Second,
	}, nil
}

// SetClock replaces the time source for tests.
func (m *Manager) SetClock(clock func() time.Time) { m.clock = clock }

// SetPollInterval shortens both lifecycle polls in tests.
func (m *Manager) SetPollInterval(d time.Duration) {
	m.streamPoll = d
	m.statusPoll = d
}

// EnsureIngest provisions the reusable ingest stream and caches its id.
func (m *Manager) EnsureIngest(ctx context.Context) (platform.Stream, error) {
	stream, err := retry.Value(ctx, m.exec, "ensure-stream", func(ctx context.Context) (platform.Stream, error) {
		return m.client.EnsureStream(ctx)
	})
	if err != nil {
		return platform.Stream{}, err
	}
	m.streamID = stream.ID
	m.logger.Info("ingest stream ready", logging.String("stream_id", stream.ID))
	return stream, nil
}

// Create schedules a broadcast for the window, records it in the ledger,
// files it in the weekly playlist, and links the previous part forward.
func (m *Manager) Create(ctx context.Context, window broadcast.Window, previous *broadcast.Broadcast) (*broadcast.Broadcast, error) {
	meta := broadcast.MetadataFor(m.cfg.Platform.StreamTitle, window, m.loc)
	if footer := m.cfg.Schedule.DescriptionFooter; footer != "" {
		meta.Description += footer
	}

	remote, err := retry.Value(ctx, m.exec, "create-broadcast", func(ctx context.Context) (platform.RemoteBroadcast, error) {
		return m.client.CreateBroadcast(ctx, platform.CreateBroadcastRequest{
			Title:          meta.Title,
			Description:    meta.Description,
			ScheduledStart: window.Start,
			ScheduledEnd:   window.End,
			Privacy:        m.cfg.Platform.Privacy,
			CategoryID:     m.cfg.Schedule.CategoryID,
		})
	})
	if err != nil {
		return nil, err
	}

	b := &broadcast.Broadcast{
		RemoteID:    remote.ID,
		StreamID:    m.streamID,
		State:       broadcast.StateScheduled,
		Title:       meta.Title,
		Description: meta.Description,
		PlaylistKey: meta.PlaylistKey,
		WindowStart: window.Start,
		WindowEnd:   window.End,
	}
	if _, err := m.store.Insert(ctx, b); err != nil {
		return nil, err
	}
	m.countTransition(broadcast.StateScheduled)

	log := logging.WithContext(services.WithBroadcastID(ctx, b.RemoteID), m.logger)
	log.Info("broadcast scheduled",
		logging.Time("window_start", window.Start),
		logging.Time("window_end", window.End),
	)

	if m.cfg.Schedule.WeeklyPlaylists {
		if err := m.fileInPlaylist(ctx, b); err != nil {
			// Playlist upkeep never blocks the schedule chain.
			log.Warn("playlist filing failed", logging.Error(err))
		}
	}
	if m.cfg.Schedule.LinkPreviousPart && previous != nil {
		if err := m.linkNextPart(ctx, previous, b); err != nil {
			log.Warn("next-part link failed", logging.Error(err))
		}
	}

	m.publish(ctx, notifications.EventBroadcastScheduled, notifications.Payload{
		"title":     b.Title,
		"watch_url": m.client.WatchURL(b.RemoteID),
	})
	return b, nil
}

// AwaitLive blocks until the broadcast's window opens, then binds the ingest
// stream and transitions the part live. A part that cannot go live inside
// the grace period is abandoned so the chain can move on.
func (m *Manager) AwaitLive(ctx context.Context, b *broadcast.Broadcast) error {
	ctx = services.WithBroadcastID(ctx, b.RemoteID)
	log := logging.WithContext(ctx, m.logger)

	lead := time.Duration(m.cfg.Schedule.LeadSeconds) * time.Second
	if wait := b.WindowStart.Sub(m.clock()) - lead; wait > 0 {
		log.Debug("waiting for window", logging.Duration("wait", wait))
		if err := sleepCtx(ctx, wait); err != nil {
			return err
		}
	}

	deadline := b.WindowStart.Add(m.cfg.LiveGracePeriod())
	if m.clock().After(deadline) {
		return m.Abandon(ctx, b, "missed live grace period")
	}

	err := m.exec.Do(ctx, "bind-stream", func(ctx context.Context) error {
		return m.client.BindStream(ctx, b.RemoteID, b.StreamID)
	})
	if err != nil && !services.IsRedundant(err) {
		return m.abandonOnFatal(ctx, b, "bind stream", err)
	}

	// The platform rejects a live transition until the encoder is pushing
	// data, so wait for inbound data first.
	if err := m.awaitStreamActive(ctx, b, deadline); err != nil {
		return err
	}
	if b.State == broadcast.StateAbandoned {
		return nil
	}

	err = m.exec.Do(ctx, "transition-live", func(ctx context.Context) error {
		return m.client.Transition(ctx, b.RemoteID, platform.StatusLive)
	})
	if err != nil && !services.IsRedundant(err) {
		return m.abandonOnFatal(ctx, b, "transition live", err)
	}

	if err := m.awaitRemoteLive(ctx, b, deadline); err != nil {
		return err
	}
	if b.State == broadcast.StateAbandoned {
		return nil
	}

	if err := b.Transition(broadcast.StateLive, m.clock()); err != nil {
		return err
	}
	if err := m.store.Update(ctx, b); err != nil {
		return err
	}
	m.countTransition(broadcast.StateLive)

	log.Info("broadcast live", logging.Time("window_end", b.WindowEnd))
	m.publish(ctx, notifications.EventBroadcastLive, notifications.Payload{
		"title":     b.Title,
		"watch_url": m.client.WatchURL(b.RemoteID),
	})
	return nil
}

// Stop completes the broadcast on the platform. A redundant transition means
// the platform got there first and counts as success. A non-transient stop
// failure still marks the part ended locally so the poller can pick it up.
func (m *Manager) Stop(ctx context.Context, b *broadcast.Broadcast) error {
	ctx = services.WithBroadcastID(ctx, b.RemoteID)
	log := logging.WithContext(ctx, m.logger)

	err := m.exec.Do(ctx, "transition-complete", func(ctx context.Context) error {
		return m.client.Transition(ctx, b.RemoteID, platform.StatusComplete)
	})
	notify := err == nil
	switch {
	case err == nil:
	case services.IsRedundant(err):
		// The platform already ended it; align the ledger quietly.
	case ctx.Err() != nil:
		return err
	case !services.IsTransient(err):
		b.FailureNote = fmt.Sprintf("stop failed: %v", err)
		log.Error("stop failed, forcing local end", logging.Error(err))
	default:
		return err
	}

	if err := b.Transition(broadcast.StateEnded, m.clock()); err != nil {
		return err
	}
	if err := m.store.Update(ctx, b); err != nil {
		return err
	}
	m.countTransition(broadcast.StateEnded)

	log.Info("broadcast ended")
	if notify {
		m.publish(ctx, notifications.EventBroadcastEnded, notifications.Payload{"title": b.Title})
	}
	return nil
}

// Abandon marks the broadcast failed locally and records why.
func (m *Manager) Abandon(ctx context.Context, b *broadcast.Broadcast, reason string) error {
	b.FailureNote = reason
	if err := b.Transition(broadcast.StateAbandoned, m.clock()); err != nil {
		return err
	}
	if err := m.store.Update(ctx, b); err != nil {
		return err
	}
	m.countTransition(broadcast.StateAbandoned)

	logging.WithContext(services.WithBroadcastID(ctx, b.RemoteID), m.logger).Warn("broadcast abandoned",
		logging.String("reason", reason),
	)
	m.publish(ctx, notifications.EventBroadcastAbandoned, notifications.Payload{
		"title":  b.Title,
		"reason": reason,
	})
	return nil
}

// awaitStreamActive polls stream health until the platform reports inbound
// data. An encoder that never shows up inside the grace period abandons the
// part so the chain can move on.
func (m *Manager) awaitStreamActive(ctx context.Context, b *broadcast.Broadcast, deadline time.Time) error {
	for {
		state, err := retry.Value(ctx, m.exec, "stream-health", func(ctx context.Context) (platform.StreamState, error) {
			return m.client.StreamHealth(ctx, b.StreamID)
		})
		if err != nil {
			return m.abandonOnFatal(ctx, b, "poll stream health", err)
		}
		if state == platform.StreamActive {
			return nil
		}
		if m.clock().After(deadline) {
			return m.Abandon(ctx, b, "no inbound data before the live grace period lapsed")
		}
		if err := sleepCtx(ctx, m.streamPoll); err != nil {
			return err
		}
	}
}

func (m *Manager) awaitRemoteLive(ctx context.Context, b *broadcast.Broadcast, deadline time.Time) error {
	for {
		remote, err := retry.Value(ctx, m.exec, "broadcast-status", func(ctx context.Context) (platform.RemoteBroadcast, error) {
			return m.client.BroadcastStatus(ctx, b.RemoteID)
		})
		if err != nil {
			return m.abandonOnFatal(ctx, b, "poll live status", err)
		}
		if remote.Status == platform.StatusLive {
			return nil
		}
		if m.clock().After(deadline) {
			return m.Abandon(ctx, b, "missed live grace period")
		}
		if err := sleepCtx(ctx, m.statusPoll); err != nil {
			return err
		}
	}
}

// abandonOnFatal abandons the broadcast for non-transient failures and
// returns the original error either way.
func (m *Manager) abandonOnFatal(ctx context.Context, b *broadcast.Broadcast, step string, err error) error {
	if ctx.Err() != nil {
		return err
	}
	if !services.IsTransient(err) {
		if abandonErr := m.Abandon(ctx, b, fmt.Sprintf("%s: %v", step, err)); abandonErr != nil {
			m.logger.Error("abandon failed", logging.Error(abandonErr))
		}
	}
	return err
}

func (m *Manager) fileInPlaylist(ctx context.Context, b *broadcast.Broadcast) error {
	title := broadcast.PlaylistTitleFor(b.WindowStart.In(m.loc))
	playlist, err := retry.Value(ctx, m.exec, "ensure-playlist", func(ctx context.Context) (platform.Playlist, error) {
		return m.client.EnsurePlaylist(ctx, b.PlaylistKey, title, m.cfg.Schedule.PlaylistPrivacy)
	})
	if err != nil {
		return err
	}
	return m.exec.Do(ctx, "add-to-playlist", func(ctx context.Context) error {
		return m.client.AddToPlaylist(ctx, playlist.ID, b.RemoteID)
	})
}

// linkNextPart appends a pointer to the new part onto the previous part's
// description so viewers can follow the chain.
func (m *Manager) linkNextPart(ctx context.Context, previous, next *broadcast.Broadcast) error {
	updated := broadcast.WithNextPart(previous.Description, m.client.WatchURL(next.RemoteID))
	if updated == previous.Description {
		return nil
	}
	err := m.exec.Do(ctx, "update-metadata", func(ctx context.Context) error {
		return m.client.UpdateMetadata(ctx, previous.RemoteID, platform.MetadataPatch{Description: &updated})
	})
	if err != nil {
		return err
	}
	previous.Description = updated
	return m.store.Update(ctx, previous)
}

func (m *Manager) countTransition(state broadcast.State) {
	if m.metrics != nil {
		m.metrics.IncTransition(state)
	}
}

func (m *Manager) publish(ctx context.Context, event notifications.Event, payload notifications.Payload) {
	if err := m.notifier.Publish(ctx, event, payload); err != nil {
		if m.metrics != nil {
			m.metrics.IncNotificationFailure()
		}
		m.logger.Warn("notification failed", logging.Error(err))
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
