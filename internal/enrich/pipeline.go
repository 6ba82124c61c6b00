package enrich

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
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

const motionPlaylistKey = "motion"

// Pipeline analyzes ended broadcasts and writes the findings back to the
// platform: a title suffix, a description report, and optionally a motion
// playlist entry.
type Pipeline struct {
	cfg      *config.Config
	store    *ledger.Store
	client   platform.Client
	fetcher  Fetcher
	analyzer Analyzer
	exec     *retry.Executor
	notifier notifications.Service
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewPipeline wires the enrichment pipeline. Passing nil for fetcher or
// analyzer selects the yt-dlp and dvr-scan implementations.
func NewPipeline(cfg *config.Config, store *ledger.Store, client platform.Client, exec *retry.Executor, notifier notifications.Service, m *metrics.Metrics, logger *slog.Logger, fetcher Fetcher, analyzer Analyzer) *Pipeline {
	if fetcher == nil {
		fetcher = NewDownloadFetcher(cfg.Enrichment.DownloadDir, cfg.Enrichment.DownloadFormat)
	}
	if analyzer == nil {
		analyzer = NewScanAnalyzer(cfg.Enrichment.MotionThreshold, cfg.Enrichment.MinEventSeconds)
	}
	if notifier == nil {
		notifier = notifications.NewService(cfg)
	}
	return &Pipeline{
		cfg:      cfg,
		store:    store,
		client:   client,
		fetcher:  fetcher,
		analyzer: analyzer,
		exec:     exec,
		notifier: notifier,
		metrics:  m,
		logger:   logging.NewComponentLogger(logger, "enrich"),
	}
}

// Enrich runs the full analysis for one ended broadcast. Already-enriched
// parts are skipped so repeated discovery is harmless.
func (p *Pipeline) Enrich(ctx context.Context, b *broadcast.Broadcast) error {
	ctx = services.WithBroadcastID(ctx, b.RemoteID)
	log := logging.WithContext(ctx, p.logger)

	switch b.State {
	case broadcast.StateEnriched, broadcast.StateAbandoned:
		return nil
	case broadcast.StateEnded:
	default:
		return fmt.Errorf("broadcast %s is %s, not ended", b.RemoteID, b.State)
	}

	events, note, outcome, err := p.analyze(ctx, b, log)
	if err != nil {
		p.countRun("failed")
		return err
	}

	if err := p.patchMetadata(ctx, b, events, note); err != nil {
		p.countRun("failed")
		return err
	}

	if len(events) > 0 && p.cfg.Enrichment.MotionPlaylist != "" {
		if err := p.fileInMotionPlaylist(ctx, b); err != nil {
			// The report already reached the platform; playlist upkeep
			// failures only cost discoverability.
			log.Warn("motion playlist filing failed", logging.Error(err))
		}
	}

	b.MotionNote = note
	b.MotionCount = len(events)
	if err := b.Transition(broadcast.StateEnriched, time.Now()); err != nil {
		return err
	}
	if err := p.store.Update(ctx, b); err != nil {
		return err
	}

	p.countRun(outcome)
	if p.metrics != nil {
		p.metrics.AddMotionEvents(len(events))
	}
	log.Info("broadcast enriched",
		logging.Int("motion_events", len(events)),
		logging.String("outcome", outcome),
	)

	if len(events) > 0 {
		p.publish(ctx, notifications.EventMotionDetected, notifications.Payload{
			"title":     b.Title,
			"events":    strconv.Itoa(len(events)),
			"watch_url": p.client.WatchURL(b.RemoteID),
		})
	}
	p.publish(ctx, notifications.EventEnrichmentComplete, notifications.Payload{"title": b.Title})
	return nil
}

// analyze downloads and scans the recording. An unavailable recording is a
// normal outcome that still enriches the part with a no-motion note.
func (p *Pipeline) analyze(ctx context.Context, b *broadcast.Broadcast, log *slog.Logger) ([]MotionEvent, string, string, error) {
	path, err := p.fetcher.Fetch(ctx, p.client.WatchURL(b.RemoteID), b.RemoteID)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			log.Info("recording unavailable, marking no motion")
			return nil, UnavailableNote, "unavailable", nil
		}
		return nil, "", "", err
	}
	analysisCtx, cancel := context.WithTimeout(ctx, time.Duration(p.cfg.Enrichment.AnalysisTimeout)*time.Second)
	defer cancel()

	events, err := p.analyzer.Analyze(analysisCtx, path)
	if err != nil {
		p.removeDownload(path, log)
		return nil, "", "", err
	}

	// Recordings with motion are worth keeping around; quiet ones are not.
	if len(events) == 0 && !p.cfg.Enrichment.KeepDownloads {
		p.removeDownload(path, log)
	}

	outcome := "motion"
	if len(events) == 0 {
		outcome = "no-motion"
	}
	return events, FormatReport(events), outcome, nil
}

func (p *Pipeline) removeDownload(path string, log *slog.Logger) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("download cleanup failed", logging.Error(err))
	}
}

func (p *Pipeline) patchMetadata(ctx context.Context, b *broadcast.Broadcast, events []MotionEvent, note string) error {
	if HasReport(b.Description) {
		return nil
	}
	title := fmt.Sprintf("%s %s", b.Title, TitleSuffix(len(events)))
	description := fmt.Sprintf("%s %s", b.Description, note)

	err := p.exec.Do(ctx, "update-metadata", func(ctx context.Context) error {
		return p.client.UpdateMetadata(ctx, b.RemoteID, platform.MetadataPatch{
			Title:       &title,
			Description: &description,
		})
	})
	if err != nil {
		return err
	}
	b.Title = title
	b.Description = description
	return nil
}

func (p *Pipeline) fileInMotionPlaylist(ctx context.Context, b *broadcast.Broadcast) error {
	playlist, err := retry.Value(ctx, p.exec, "ensure-playlist", func(ctx context.Context) (platform.Playlist, error) {
		return p.client.EnsurePlaylist(ctx, motionPlaylistKey, p.cfg.Enrichment.MotionPlaylist, p.cfg.Schedule.PlaylistPrivacy)
	})
	if err != nil {
		return err
	}
	return p.exec.Do(ctx, "add-to-playlist", func(ctx context.Context) error {
		return p.client.AddToPlaylist(ctx, playlist.ID, b.RemoteID)
	})
}

func (p *Pipeline) countRun(outcome string) {
	if p.metrics != nil {
		p.metrics.IncEnrichmentRun(outcome)
	}
}

func (p *Pipeline) publish(ctx context.Context, event notifications.Event, payload notifications.Payload) {
	if err := p.notifier.Publish(ctx, event, payload); err != nil {
		if p.metrics != nil {
			p.metrics.IncNotificationFailure()
		}
		p.logger.Warn("notification failed", logging.Error(err))
	}
}
