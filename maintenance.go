package main

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"time"

	"cellinfo/config"
	"cellinfo/history"
)

const checkpointVerifyBudget = 30 * time.Second

// Purpose: Run history retention and checkpoints on their schedules.
// Key aspects: Retention 0 keeps cells forever; checkpoint interval 0 disables
// checkpoints. Failures are logged and retried on the next tick.
// Upstream: run.
// Downstream: purgeHistory, checkpointHistory.
func maintenanceLoop(ctx context.Context, store *history.Store, cfg config.HistoryConfig) {
	var purgeC, checkpointC <-chan time.Time
	if cfg.RetentionDays > 0 {
		t := time.NewTicker(time.Duration(cfg.PurgeIntervalHours) * time.Hour)
		defer t.Stop()
		purgeC = t.C
		purgeHistory(store, cfg.RetentionDays, time.Now().UTC())
	}
	if cfg.CheckpointIntervalHours > 0 {
		t := time.NewTicker(time.Duration(cfg.CheckpointIntervalHours) * time.Hour)
		defer t.Stop()
		checkpointC = t.C
	}
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-purgeC:
			purgeHistory(store, cfg.RetentionDays, now.UTC())
		case now := <-checkpointC:
			if err := checkpointHistory(ctx, store, cfg.CheckpointDir, now.UTC()); err != nil {
				log.Printf("History: checkpoint failed: %v", err)
			}
		}
	}
}

func purgeHistory(store *history.Store, retentionDays int, now time.Time) int64 {
	cutoff := now.AddDate(0, 0, -retentionDays)
	removed, err := store.PurgeOlderThan(cutoff)
	if err != nil {
		log.Printf("History: purge before %s failed: %v", cutoff.Format(time.DateOnly), err)
		return 0
	}
	if removed > 0 {
		log.Printf("History: purged %d cells not seen since %s", removed, cutoff.Format(time.DateOnly))
	}
	return removed
}

// Purpose: Write a verified checkpoint and make it the current one.
// Key aspects: Writes to a timestamped sibling, verifies it, then swaps it
// into dir so a crash never leaves a half-written current checkpoint.
// Upstream: maintenanceLoop.
// Downstream: history.Store.Checkpoint, history.VerifyCheckpoint.
func checkpointHistory(ctx context.Context, store *history.Store, dir string, now time.Time) error {
	staging := dir + ".tmp-" + now.Format("20060102T150405Z")
	if err := os.MkdirAll(filepath.Dir(dir), 0o755); err != nil {
		return err
	}
	if err := store.Checkpoint(staging); err != nil {
		return err
	}
	stats, err := history.VerifyCheckpoint(ctx, staging, checkpointVerifyBudget)
	if err != nil {
		_ = os.RemoveAll(staging)
		return err
	}
	if err := os.RemoveAll(dir); err != nil {
		return err
	}
	if err := os.Rename(staging, dir); err != nil {
		return err
	}
	log.Printf("History: checkpoint %s (%d cells, %s)", dir, stats.Records, stats.Duration.Truncate(time.Millisecond))
	return nil
}
