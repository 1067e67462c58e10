package history

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"cellinfo/cell"
	"cellinfo/geo"
)

func TestObserveInsertsThenMerges(t *testing.T) {
	store := openTestStore(t)
	defer store.Close()

	at := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	first, err := store.Observe(Observation{ID: "1001", Technology: cell.TechLTE, Time: at, Signal: intp(-101), Location: &geo.Point{Lat: 10, Lon: 20}})
	if err != nil {
		t.Fatalf("observe first: %v", err)
	}
	if !first.Created || first.Cell.Seq != 1 {
		t.Fatalf("expected created with seq 1, got %+v", first)
	}

	second, err := store.Observe(Observation{ID: "1001", Technology: cell.TechLTE, Time: at.Add(time.Minute), Signal: intp(-90)})
	if err != nil {
		t.Fatalf("observe second: %v", err)
	}
	if second.Created {
		t.Fatalf("second observation must update")
	}

	got := mustGet(t, store, "1001")
	assertSignal(t, "best", got.BestSignal, -90)
	assertSignal(t, "last", got.Signal, -90)
	if got.Location != nil {
		t.Fatalf("last-known location should be cleared by a fixless observation")
	}
	if got.BestLocation == nil || got.BestLocation.Lat != 10 {
		t.Fatalf("best location lost: %v", got.BestLocation)
	}
	assertCount(t, store, 1)
	if n, err := store.CountByID("1001"); err != nil || n != 1 {
		t.Fatalf("CountByID = %d, %v", n, err)
	}
	if n, err := store.CountByID("9999"); err != nil || n != 0 {
		t.Fatalf("CountByID missing = %d, %v", n, err)
	}
}

func TestObserveBatchWithRepeatedID(t *testing.T) {
	store := openTestStore(t)
	defer store.Close()

	at := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	results, err := store.ObserveBatch([]Observation{
		{ID: "5", Time: at, Signal: intp(-110)},
		{ID: "5", Time: at.Add(time.Second), Signal: intp(-100)},
		{ID: "  ", Time: at},
	})
	if err != nil {
		t.Fatalf("observe batch: %v", err)
	}
	if len(results) != 2 || !results[0].Created || results[1].Created {
		t.Fatalf("unexpected results %+v", results)
	}
	assertSignal(t, "best", mustGet(t, store, "5").BestSignal, -100)
	assertCount(t, store, 1)
}

func TestGetMissingReturnsNil(t *testing.T) {
	store := openTestStore(t)
	defer store.Close()
	rec, err := store.Get("404")
	if err != nil || rec != nil {
		t.Fatalf("expected (nil, nil), got %v, %v", rec, err)
	}
}

func TestInsertAndUpdate(t *testing.T) {
	store := openTestStore(t)
	defer store.Close()

	at := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	rec := LoggedCell{ID: "42", Technology: cell.TechLTE, FirstSeen: at, LastSeen: at, Channel: 5110, PCI: 7}
	if err := store.Insert(rec); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := store.Insert(rec); !errors.Is(err, ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
	rec.PCI = 8
	rec.LastSeen = at.Add(time.Hour)
	if err := store.Update(rec); err != nil {
		t.Fatalf("update: %v", err)
	}
	got := mustGet(t, store, "42")
	if got.PCI != 8 || got.Seq != 1 {
		t.Fatalf("update not applied or seq changed: %+v", got)
	}
	if err := store.Update(LoggedCell{ID: "43"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	assertCount(t, store, 1)
}

func TestEntriesInsertionOrderAndRecent(t *testing.T) {
	store := openTestStore(t)
	defer store.Close()

	at := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	ids := []string{"900", "100", "500"}
	for i, id := range ids {
		if _, err := store.Observe(Observation{ID: id, Technology: cell.TechLTE, Time: at.Add(time.Duration(i) * time.Minute)}); err != nil {
			t.Fatalf("observe %s: %v", id, err)
		}
	}
	// Re-seeing the first cell moves it to the front of Recent but not of Entries.
	if _, err := store.Observe(Observation{ID: "900", Time: at.Add(time.Hour)}); err != nil {
		t.Fatalf("observe again: %v", err)
	}
	if err := store.PutBatch([]LoggedCell{{ID: "268435455", Technology: cell.TechLTE, LastSeen: at.Add(2 * time.Hour)}}); err != nil {
		t.Fatalf("put sentinel: %v", err)
	}

	entries, err := store.Entries()
	if err != nil {
		t.Fatalf("entries: %v", err)
	}
	want := []string{"900", "100", "500", "268435455"}
	if len(entries) != len(want) {
		t.Fatalf("expected %d entries, got %d", len(want), len(entries))
	}
	for i := range want {
		if entries[i].ID != want[i] {
			t.Fatalf("entry %d = %s, want %s", i, entries[i].ID, want[i])
		}
	}

	recent, err := store.Recent(0)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	wantRecent := []string{"900", "500", "100"}
	if len(recent) != len(wantRecent) {
		t.Fatalf("expected %d recent, got %d", len(wantRecent), len(recent))
	}
	for i := range wantRecent {
		if recent[i].ID != wantRecent[i] {
			t.Fatalf("recent %d = %s, want %s", i, recent[i].ID, wantRecent[i])
		}
	}
	if top, _ := store.Recent(1); len(top) != 1 || top[0].ID != "900" {
		t.Fatalf("Recent(1) = %+v", top)
	}
}

func TestPurgeAndClear(t *testing.T) {
	store := openTestStore(t)
	defer store.Close()

	old := time.Date(2024, 12, 31, 23, 59, 0, 0, time.UTC)
	fresh := old.Add(2 * time.Hour)
	if _, err := store.ObserveBatch([]Observation{{ID: "1", Time: old}, {ID: "2", Time: fresh}}); err != nil {
		t.Fatalf("observe: %v", err)
	}
	removed, err := store.PurgeOlderThan(old.Add(30 * time.Minute))
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 removed, got %d", removed)
	}
	if rec, _ := store.Get("1"); rec != nil {
		t.Fatalf("expected old record removed")
	}
	assertCount(t, store, 1)

	if err := store.ClearAll(); err != nil {
		t.Fatalf("clear: %v", err)
	}
	assertCount(t, store, 0)
	if entries, err := store.Entries(); err != nil || len(entries) != 0 {
		t.Fatalf("expected empty store, got %d entries, %v", len(entries), err)
	}
	res, err := store.Observe(Observation{ID: "3", Time: fresh})
	if err != nil || !res.Created {
		t.Fatalf("observe after clear: %+v %v", res, err)
	}
	assertCount(t, store, 1)
}

func TestMetadataSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(dir, Options{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	at := time.Now().UTC()
	if _, err := store.ObserveBatch([]Observation{{ID: "1", Time: at}, {ID: "2", Time: at}}); err != nil {
		t.Fatalf("observe: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := store.Observe(Observation{ID: "x"}); !errors.Is(err, errStoreClosed) {
		t.Fatalf("expected closed error, got %v", err)
	}

	store, err = Open(dir, Options{})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer store.Close()
	assertCount(t, store, 2)
	res, err := store.Observe(Observation{ID: "3", Time: at})
	if err != nil {
		t.Fatalf("observe after reopen: %v", err)
	}
	if res.Cell.Seq != 3 {
		t.Fatalf("expected seq 3 after reopen, got %d", res.Cell.Seq)
	}
}

func TestConcurrentObserveSameID(t *testing.T) {
	store := openTestStore(t)
	defer store.Close()

	at := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := store.Observe(Observation{ID: "77", Time: at.Add(time.Duration(i) * time.Second), Signal: intp(-120 + i)}); err != nil {
				t.Errorf("observe: %v", err)
			}
		}(i)
	}
	wg.Wait()
	assertSignal(t, "best", mustGet(t, store, "77").BestSignal, -101)
	assertCount(t, store, 1)
}

func TestCheckpointVerify(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(filepath.Join(dir, "db"), Options{
		CacheSizeBytes:        1 << 20,
		MemTableSizeBytes:     1 << 20,
		L0CompactionThreshold: 2,
		L0StopWritesThreshold: 4,
		WriteQueueDepth:       4,
	})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if _, err := store.Observe(Observation{ID: "1", Time: time.Now().UTC()}); err != nil {
		_ = store.Close()
		t.Fatalf("observe: %v", err)
	}
	if stats, err := store.Verify(context.Background(), 5*time.Second); err != nil || stats.Records != 1 {
		_ = store.Close()
		t.Fatalf("verify live: %+v %v", stats, err)
	}
	dest := filepath.Join(dir, "checkpoint")
	if err := store.Checkpoint(dest); err != nil {
		_ = store.Close()
		t.Fatalf("checkpoint: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	stats, err := VerifyCheckpoint(context.Background(), dest, 5*time.Second)
	if err != nil {
		t.Fatalf("verify checkpoint: %v", err)
	}
	if stats.Records != 1 || !stats.CountMetaValid || stats.CountMeta != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestVerifyCheckpointRejectsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := VerifyCheckpoint(context.Background(), path, 0); err == nil {
		t.Fatalf("expected error for non-directory")
	}
}

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(t.TempDir(), Options{})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	return store
}

func mustGet(t *testing.T, store *Store, id string) *LoggedCell {
	t.Helper()
	rec, err := store.Get(id)
	if err != nil {
		t.Fatalf("get %s: %v", id, err)
	}
	if rec == nil {
		t.Fatalf("record %s not found", id)
	}
	return rec
}

func assertSignal(t *testing.T, field string, got *int, want int) {
	t.Helper()
	if got == nil {
		t.Fatalf("expected %s signal %d, got nil", field, want)
	}
	if *got != want {
		t.Fatalf("expected %s signal %d, got %d", field, want, *got)
	}
}

func assertCount(t *testing.T, store *Store, want int64) {
	t.Helper()
	count, err := store.Count()
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != want {
		t.Fatalf("expected count %d, got %d", want, count)
	}
}

func TestObserveRefreshesTAC(t *testing.T) {
	store := openTestStore(t)
	defer store.Close()

	at := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	for i, tac := range []int{5, 6} {
		obs := Observation{ID: "1001", Technology: cell.TechLTE, Time: at.Add(time.Duration(i) * time.Minute), Channel: 900, PCI: 1, TAC: tac}
		if _, err := store.Observe(obs); err != nil {
			t.Fatalf("observe tac %d: %v", tac, err)
		}
	}
	if got := mustGet(t, store, "1001"); got.TAC != 6 {
		t.Fatalf("stored tac = %d, want 6", got.TAC)
	}
}
