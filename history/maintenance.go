package history

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/cockroachdb/pebble"
)

// IntegrityStats reports the outcome of a full key/value scan.
type IntegrityStats struct {
	Records        int64
	IndexEntries   int64
	Duration       time.Duration
	CountMeta      int64
	CountMetaValid bool
	CountMetaErr   error
}

// Checkpoint writes a consistent on-disk copy of the store with a flushed WAL.
func (s *Store) Checkpoint(dest string) error {
	if s == nil || s.db == nil {
		return errNotOpen
	}
	if strings.TrimSpace(dest) == "" {
		return errors.New("history: checkpoint destination is empty")
	}
	if err := s.db.Checkpoint(dest, pebble.WithFlushedWAL()); err != nil {
		return fmt.Errorf("history: checkpoint %s: %w", dest, err)
	}
	return nil
}

// Purpose: Verify checkpoint integrity by opening it read-only and scanning entries.
// Key aspects: Honors context cancellation and maxDuration for bounded scans.
// Upstream: cellctl verify.
// Downstream: Pebble iterator and decodeRecord.
func VerifyCheckpoint(ctx context.Context, path string, maxDuration time.Duration) (IntegrityStats, error) {
	if strings.TrimSpace(path) == "" {
		return IntegrityStats{}, errors.New("history: checkpoint path is empty")
	}
	info, err := os.Stat(path)
	if err != nil {
		return IntegrityStats{}, fmt.Errorf("history: checkpoint stat %s: %w", path, err)
	}
	if !info.IsDir() {
		return IntegrityStats{}, fmt.Errorf("history: checkpoint %s is not a directory", path)
	}
	db, err := pebble.Open(path, &pebble.Options{ReadOnly: true})
	if err != nil {
		return IntegrityStats{}, fmt.Errorf("history: checkpoint open %s: %w", path, err)
	}
	defer db.Close()
	stats, err := verifyDB(ctx, db, maxDuration)
	if err != nil {
		return stats, fmt.Errorf("history: checkpoint verify %s: %w", path, err)
	}
	return stats, nil
}

// Verify scans the live store, decoding every record.
func (s *Store) Verify(ctx context.Context, maxDuration time.Duration) (IntegrityStats, error) {
	if s == nil || s.db == nil {
		return IntegrityStats{}, errNotOpen
	}
	return verifyDB(ctx, s.db, maxDuration)
}

func verifyDB(ctx context.Context, db *pebble.DB, maxDuration time.Duration) (IntegrityStats, error) {
	start := time.Now()
	deadline := time.Time{}
	if maxDuration > 0 {
		deadline = start.Add(maxDuration)
	}
	stats := IntegrityStats{}
	if count, err := readMeta(db, metaCountKey); err == nil {
		stats.CountMeta = int64(count)
		stats.CountMetaValid = true
	} else {
		stats.CountMetaErr = err
	}

	check := func() error {
		if ctx != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			return errors.New("history: integrity scan timed out")
		}
		return nil
	}

	iter, err := db.NewIter(iterOptionsForPrefix(cellPrefix))
	if err != nil {
		return stats, fmt.Errorf("history: verify iterator: %w", err)
	}
	for iter.First(); iter.Valid(); iter.Next() {
		if err := check(); err != nil {
			iter.Close()
			return stats, err
		}
		id, _ := parseCellKey(iter.Key())
		if _, err := decodeRecord(id, iter.Value()); err != nil {
			iter.Close()
			return stats, fmt.Errorf("history: verify decode %s: %w", id, err)
		}
		stats.Records++
	}
	if err := iter.Error(); err != nil {
		iter.Close()
		return stats, fmt.Errorf("history: verify iterate: %w", err)
	}
	iter.Close()

	idx, err := db.NewIter(iterOptionsForPrefix(seenPrefix))
	if err != nil {
		return stats, fmt.Errorf("history: verify index iterator: %w", err)
	}
	defer idx.Close()
	for idx.First(); idx.Valid(); idx.Next() {
		if err := check(); err != nil {
			return stats, err
		}
		stats.IndexEntries++
	}
	if err := idx.Error(); err != nil {
		return stats, fmt.Errorf("history: verify index iterate: %w", err)
	}
	if stats.IndexEntries != stats.Records {
		return stats, fmt.Errorf("history: index has %d entries for %d records", stats.IndexEntries, stats.Records)
	}
	stats.Duration = time.Since(start)
	return stats, nil
}
