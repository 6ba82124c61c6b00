package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"perch/internal/broadcast"
	"perch/internal/logging"
	"perch/internal/platform"
)

// Reconcile rebuilds the ledger's view of active broadcasts from the
// platform. The remote side wins every disagreement: upstream parts missing
// locally are adopted with their original windows, and local active parts
// the platform no longer knows are marked abandoned.
func Reconcile(ctx context.Context, store *Store, client platform.Client, logger *slog.Logger) error {
	log := logging.NewComponentLogger(logger, "ledger")

	remote, err := client.ListActiveBroadcasts(ctx)
	if err != nil {
		return fmt.Errorf("list active broadcasts: %w", err)
	}

	seen := make(map[string]struct{}, len(remote))
	for _, rb := range remote {
		seen[rb.ID] = struct{}{}
		if err := adoptRemote(ctx, store, rb, log); err != nil {
			return err
		}
	}

	local, err := store.Active(ctx)
	if err != nil {
		return fmt.Errorf("list local active broadcasts: %w", err)
	}
	for _, b := range local {
		if b.RemoteID == "" {
			// Never made it to the platform; the scheduler will replace it.
			continue
		}
		if _, ok := seen[b.RemoteID]; ok {
			continue
		}
		b.FailureNote = "missing upstream during reconcile"
		if err := b.Transition(broadcast.StateAbandoned, time.Now()); err != nil {
			return err
		}
		if err := store.Update(ctx, b); err != nil {
			return err
		}
		log.Warn("abandoned broadcast missing upstream",
			logging.String(logging.FieldBroadcastID, b.RemoteID),
		)
	}

	return nil
}

func adoptRemote(ctx context.Context, store *Store, rb platform.RemoteBroadcast, log *slog.Logger) error {
	state := stateForRemote(rb.Status)

	existing, err := store.ByRemoteID(ctx, rb.ID)
	switch {
	case errors.Is(err, ErrNotFound):
		adopted := &broadcast.Broadcast{
			RemoteID:    rb.ID,
			StreamID:    rb.BoundStreamID,
			State:       state,
			Title:       rb.Title,
			Description: rb.Description,
			PlaylistKey: broadcast.PlaylistKeyFor(rb.ScheduledStart),
			WindowStart: rb.ScheduledStart,
			WindowEnd:   rb.ScheduledEnd,
			WentLiveAt:  rb.ActualStart,
		}
		if _, err := store.Insert(ctx, adopted); err != nil {
			return err
		}
		log.Info("adopted upstream broadcast",
			logging.String(logging.FieldBroadcastID, rb.ID),
			logging.String("state", string(state)),
			logging.Time("window_end", rb.ScheduledEnd),
		)
		return nil
	case err != nil:
		return err
	}

	if existing.State != state || existing.Title != rb.Title || existing.Description != rb.Description {
		existing.State = state
		existing.Title = rb.Title
		existing.Description = rb.Description
		if !rb.ActualStart.IsZero() {
			existing.WentLiveAt = rb.ActualStart
		}
		if err := store.Update(ctx, existing); err != nil {
			return err
		}
	}
	return nil
}

func stateForRemote(status platform.LifecycleStatus) broadcast.State {
	switch status {
	case platform.StatusLive:
		return broadcast.StateLive
	case platform.StatusComplete:
		return broadcast.StateEnded
	default:
		return broadcast.StateScheduled
	}
}
