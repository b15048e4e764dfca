// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/danielhkuo/livepoll/models"
	"github.com/danielhkuo/livepoll/store"
)

// RunSweeper calls Sweep every SweepInterval until ctx is done
func (e *Engine) RunSweeper(ctx context.Context) {
	ticker := time.NewTicker(e.cfg.SweepInterval)
	defer ticker.Stop()

	slog.Info("sweeper started", "interval", e.cfg.SweepInterval, "stale_after", e.cfg.StaleAfter, "purge_after", e.cfg.PurgeAfter)
	for {
		select {
		case <-ctx.Done():
			slog.Info("sweeper stopped")
			return
		case <-ticker.C:
			e.sweepAndLog(ctx)
		}
	}
}

// sweepAndLog runs Sweep and logs failures. A pass cut short by shutdown is
// not a failure.
func (e *Engine) sweepAndLog(ctx context.Context) {
	if err := e.Sweep(ctx); err != nil && ctx.Err() == nil {
		slog.Error("sweep failed", "error", err)
	}
}

// Sweep runs one reconciliation pass:
//
//  1. connected participants idle longer than StaleAfter are marked
//     disconnected (participant-left)
//  2. participants disconnected longer than PurgeAfter are deleted along with
//     their votes (vote-update)
//  3. expired polls are removed (room-closed)
//
// Steps continue after a failure; the errors are joined.
func (e *Engine) Sweep(ctx context.Context) error {
	now := e.cfg.Now()
	var errs []error

	stale, err := e.store.MarkStale(ctx, now.Add(-e.cfg.StaleAfter))
	if err != nil {
		errs = append(errs, err)
	}
	for _, change := range stale {
		slog.Info("participant went stale", "room", change.RoomCode, "nickname", change.Nickname)
		e.publishLeft(ctx, change)
	}

	purged, err := e.store.Purge(ctx, now.Add(-e.cfg.PurgeAfter))
	if err != nil {
		errs = append(errs, err)
	}
	for _, p := range purged {
		slog.Info("participants purged", "room", p.RoomCode, "count", len(p.Removed))
		if p.VotesRemoved == 0 {
			continue
		}
		e.publish(ctx, models.NewEvent(models.EventVoteUpdate, p.RoomCode, p.Revision, models.VoteUpdatePayload{
			Counts:      p.Results.Counts,
			Percentages: p.Results.Percentages,
		}))
	}

	expired, err := e.store.ExpiredPolls(ctx, now)
	if err != nil {
		errs = append(errs, err)
	}
	for _, code := range expired {
		err := e.RemovePoll(ctx, code, models.ReasonExpired)
		// Another instance may have removed it first
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}
