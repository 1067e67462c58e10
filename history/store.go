package history

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/bloom"
)

const maintenanceBatchCap = 1024

var (
	errStoreClosed = errors.New("history: store is closed")
	errNotOpen     = errors.New("history: store is not initialized")

	// ErrNotFound is returned by Update for an identifier with no record.
	ErrNotFound = errors.New("history: cell not found")
	// ErrExists is returned by Insert for an identifier that already has a record.
	ErrExists = errors.New("history: cell already exists")
)

const (
	defaultCacheSizeBytes        = int64(16 << 20)
	defaultBloomFilterBits       = 10
	defaultMemTableSizeBytes     = uint64(8 << 20)
	defaultL0CompactionThreshold = 4
	defaultL0StopWritesThreshold = 16
	defaultWriteQueueDepth       = 64
)

// Options controls Pebble tuning and writer buffering for the history store.
// All zero/negative fields are replaced with defaults via sanitizeOptions.
type Options struct {
	CacheSizeBytes        int64
	BloomFilterBitsPerKey int
	MemTableSizeBytes     uint64
	L0CompactionThreshold int
	L0StopWritesThreshold int
	WriteQueueDepth       int
}

// Result reports how a single observation landed in the store.
type Result struct {
	Cell    LoggedCell
	Created bool
}

// Store is the cell history. Reads go straight to Pebble; every write is
// serialized through one writer goroutine, which makes each read-merge-write
// atomic per identifier.
type Store struct {
	db     *pebble.DB
	writes chan writeRequest
	done   chan struct{}
	cache  *pebble.Cache

	mu     sync.Mutex
	closed bool
	count  atomic.Int64
	seq    atomic.Uint64
}

type writeKind int

const (
	writeObserve writeKind = iota
	writeInsert
	writeUpdate
	writePut
	writeClear
	writePurge
)

type writeRequest struct {
	kind   writeKind
	obs    []Observation
	recs   []LoggedCell
	cutoff time.Time
	resp   chan writeResult
}

type writeResult struct {
	results []Result
	removed int64
	err     error
}

func sanitizeOptions(opts Options) Options {
	if opts.CacheSizeBytes <= 0 {
		opts.CacheSizeBytes = defaultCacheSizeBytes
	}
	if opts.BloomFilterBitsPerKey <= 0 {
		opts.BloomFilterBitsPerKey = defaultBloomFilterBits
	}
	if opts.MemTableSizeBytes <= 0 {
		opts.MemTableSizeBytes = defaultMemTableSizeBytes
	}
	if opts.L0CompactionThreshold <= 0 {
		opts.L0CompactionThreshold = defaultL0CompactionThreshold
	}
	if opts.L0StopWritesThreshold <= opts.L0CompactionThreshold {
		opts.L0StopWritesThreshold = defaultL0StopWritesThreshold
		if opts.L0StopWritesThreshold <= opts.L0CompactionThreshold {
			opts.L0StopWritesThreshold = opts.L0CompactionThreshold + 4
		}
	}
	if opts.WriteQueueDepth <= 0 {
		opts.WriteQueueDepth = defaultWriteQueueDepth
	}
	return opts
}

// Purpose: Open or create the history Pebble database.
// Key aspects: Restores count/sequence metadata and starts the single writer.
// Upstream: main.go startup, cellctl.
// Downstream: Pebble open, writer loop.
func Open(path string, opts Options) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("history: database path is empty")
	}
	opts = sanitizeOptions(opts)

	if info, err := os.Stat(path); err == nil {
		if !info.IsDir() {
			return nil, fmt.Errorf("history: %s exists and is not a directory", path)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("history: stat path: %w", err)
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("history: ensure directory: %w", err)
	}

	pebbleOpts := &pebble.Options{
		Cache:                 pebble.NewCache(opts.CacheSizeBytes),
		MemTableSize:          opts.MemTableSizeBytes,
		L0CompactionThreshold: opts.L0CompactionThreshold,
		L0StopWritesThreshold: opts.L0StopWritesThreshold,
	}
	level := pebble.LevelOptions{
		FilterPolicy: bloom.FilterPolicy(opts.BloomFilterBitsPerKey),
		FilterType:   pebble.TableFilter,
	}
	pebbleOpts.Levels = make([]pebble.LevelOptions, 7)
	for i := range pebbleOpts.Levels {
		pebbleOpts.Levels[i] = level
	}

	db, err := pebble.Open(path, pebbleOpts)
	if err != nil {
		pebbleOpts.Cache.Unref()
		return nil, fmt.Errorf("history: open: %w", err)
	}

	count, seq, err := loadMeta(db)
	if err != nil {
		_ = db.Close()
		pebbleOpts.Cache.Unref()
		return nil, err
	}

	store := &Store{
		db:     db,
		writes: make(chan writeRequest, opts.WriteQueueDepth),
		done:   make(chan struct{}),
		cache:  pebbleOpts.Cache,
	}
	store.count.Store(count)
	store.seq.Store(seq)
	go store.writeLoop()
	return store, nil
}

// Close drains the writer and closes the database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	if s.closeWriter() {
		<-s.done
	}
	err := s.db.Close()
	if s.cache != nil {
		s.cache.Unref()
		s.cache = nil
	}
	return err
}

// Purpose: Merge one accepted measurement into its cell's history.
// Key aspects: Read-merge-write happens inside the writer goroutine.
// Upstream: poller logger consumer.
// Downstream: ObserveBatch.
func (s *Store) Observe(obs Observation) (Result, error) {
	results, err := s.ObserveBatch([]Observation{obs})
	if err != nil {
		return Result{}, err
	}
	if len(results) == 0 {
		return Result{}, fmt.Errorf("history: observation %q was not applied", obs.ID)
	}
	return results[0], nil
}

// Purpose: Merge a poll's worth of observations in one Pebble batch.
// Key aspects: Observations with blank ids are skipped; repeated ids in one
// batch merge in order.
// Upstream: poller logger consumer, Observe.
// Downstream: writer loop.
func (s *Store) ObserveBatch(obs []Observation) ([]Result, error) {
	if len(obs) == 0 {
		return nil, nil
	}
	result, err := s.submit(writeRequest{kind: writeObserve, obs: obs})
	return result.results, err
}

// Insert stores a new record. It fails with ErrExists when the id is taken.
func (s *Store) Insert(rec LoggedCell) error {
	_, err := s.submit(writeRequest{kind: writeInsert, recs: []LoggedCell{rec}})
	return err
}

// Update replaces an existing record, keeping its sequence number. It fails
// with ErrNotFound when the id has no record.
func (s *Store) Update(rec LoggedCell) error {
	_, err := s.submit(writeRequest{kind: writeUpdate, recs: []LoggedCell{rec}})
	return err
}

// PutBatch writes records verbatim, inserting or replacing by id. Used by
// CSV import, which has already resolved any merge.
func (s *Store) PutBatch(recs []LoggedCell) error {
	if len(recs) == 0 {
		return nil
	}
	_, err := s.submit(writeRequest{kind: writePut, recs: recs})
	return err
}

// ClearAll removes every record and resets the counters.
func (s *Store) ClearAll() error {
	_, err := s.submit(writeRequest{kind: writeClear})
	return err
}

// Purpose: Delete cells not seen since the cutoff.
// Key aspects: Walks the last-seen index; returns rows removed.
// Upstream: retention scheduler in main.go, cellctl purge.
// Downstream: writer loop.
func (s *Store) PurgeOlderThan(cutoff time.Time) (int64, error) {
	result, err := s.submit(writeRequest{kind: writePurge, cutoff: cutoff})
	return result.removed, err
}

// Get fetches a record by id. It returns (nil, nil) when the id is unknown.
func (s *Store) Get(id string) (*LoggedCell, error) {
	if s == nil || s.db == nil {
		return nil, errNotOpen
	}
	id = normalizeID(id)
	if id == "" {
		return nil, errors.New("history: id is empty")
	}
	rec, found, err := s.getRecord(id)
	if err != nil || !found {
		return nil, err
	}
	return &rec, nil
}

// CountByID returns 1 when the id has a record and 0 otherwise.
func (s *Store) CountByID(id string) (int, error) {
	rec, err := s.Get(id)
	if err != nil {
		return 0, err
	}
	if rec == nil {
		return 0, nil
	}
	return 1, nil
}

// Count returns the number of stored cells.
func (s *Store) Count() (int64, error) {
	if s == nil || s.db == nil {
		return 0, errNotOpen
	}
	return s.count.Load(), nil
}

// Purpose: Load every record in insertion order.
// Key aspects: This is the canonical scan order used by reconciliation.
// Upstream: reconcile.Matcher, csvlog export.
// Downstream: Pebble iterator.
func (s *Store) Entries() ([]LoggedCell, error) {
	if s == nil || s.db == nil {
		return nil, errNotOpen
	}
	iter, err := s.db.NewIter(iterOptionsForPrefix(cellPrefix))
	if err != nil {
		return nil, fmt.Errorf("history: entries iterator: %w", err)
	}
	defer iter.Close()

	var list []LoggedCell
	for iter.First(); iter.Valid(); iter.Next() {
		id, ok := parseCellKey(iter.Key())
		if !ok {
			continue
		}
		rec, err := decodeRecord(id, iter.Value())
		if err != nil {
			return nil, fmt.Errorf("history: decode %s: %w", id, err)
		}
		list = append(list, rec)
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("history: iterate entries: %w", err)
	}
	sort.SliceStable(list, func(i, j int) bool { return list[i].Seq < list[j].Seq })
	return list, nil
}

// Purpose: Return the most recently seen cells for the log view.
// Key aspects: Walks the last-seen index backwards; sentinel ids are hidden.
// limit <= 0 returns everything.
// Upstream: console renderer, cellctl list.
// Downstream: Pebble reverse iteration and point gets.
func (s *Store) Recent(limit int) ([]LoggedCell, error) {
	if s == nil || s.db == nil {
		return nil, errNotOpen
	}
	iter, err := s.db.NewIter(iterOptionsForPrefix(seenPrefix))
	if err != nil {
		return nil, fmt.Errorf("history: recent iterator: %w", err)
	}
	defer iter.Close()

	var list []LoggedCell
	for iter.Last(); iter.Valid(); iter.Prev() {
		if limit > 0 && len(list) >= limit {
			break
		}
		_, id, ok := parseSeenKey(iter.Key())
		if !ok {
			continue
		}
		rec, found, err := s.getRecord(id)
		if err != nil {
			return nil, err
		}
		if !found || SentinelID(rec) {
			continue
		}
		list = append(list, rec)
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("history: iterate recent: %w", err)
	}
	return list, nil
}

func (s *Store) submit(req writeRequest) (writeResult, error) {
	if s == nil || s.db == nil {
		return writeResult{}, errNotOpen
	}
	req.resp = make(chan writeResult, 1)
	if err := s.enqueue(req); err != nil {
		return writeResult{}, err
	}
	result := <-req.resp
	return result, result.err
}

func (s *Store) enqueue(req writeRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errStoreClosed
	}
	s.writes <- req
	return nil
}

func (s *Store) closeWriter() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.closed = true
	close(s.writes)
	return true
}

func (s *Store) writeLoop() {
	defer close(s.done)
	for req := range s.writes {
		result := writeResult{}
		switch req.kind {
		case writeObserve:
			result.results, result.err = s.applyObserve(req.obs)
		case writeInsert:
			result.err = s.applyRecords(req.recs, writeInsert)
		case writeUpdate:
			result.err = s.applyRecords(req.recs, writeUpdate)
		case writePut:
			result.err = s.applyRecords(req.recs, writePut)
		case writeClear:
			result.err = s.applyClearAll()
		case writePurge:
			result.removed, result.err = s.applyPurgeOlderThan(req.cutoff)
		default:
			result.err = fmt.Errorf("history: unknown write request")
		}
		if req.resp != nil {
			req.resp <- result
		}
	}
}

// pendingBatch tracks records staged in a Pebble batch so later rows in the
// same batch see earlier ones.
type pendingBatch struct {
	s       *Store
	batch   *pebble.Batch
	staged  map[string]stagedRecord
	count   int64
	seq     uint64
	created int64
}

type stagedRecord struct {
	rec   LoggedCell
	found bool
}

func (s *Store) newPendingBatch() *pendingBatch {
	return &pendingBatch{
		s:      s,
		batch:  s.db.NewBatch(),
		staged: make(map[string]stagedRecord),
		count:  s.count.Load(),
		seq:    s.seq.Load(),
	}
}

func (p *pendingBatch) lookup(id string) (LoggedCell, bool, error) {
	if st, ok := p.staged[id]; ok {
		return st.rec, st.found, nil
	}
	return p.s.getRecord(id)
}

// stage writes rec under its id, maintaining the last-seen index and
// counters. prev/found describe what the store held before this write.
func (p *pendingBatch) stage(rec LoggedCell, prev LoggedCell, found bool) (LoggedCell, error) {
	id := rec.ID
	if !found {
		p.seq++
		rec.Seq = p.seq
		p.created++
	} else {
		rec.Seq = prev.Seq
		if err := p.batch.Delete(seenKeyBytes(unixMilli(prev.LastSeen), id), nil); err != nil {
			return rec, fmt.Errorf("history: batch delete idx %s: %w", id, err)
		}
	}
	if err := p.batch.Set(cellKeyBytes(id), encodeRecord(rec), nil); err != nil {
		return rec, fmt.Errorf("history: batch set %s: %w", id, err)
	}
	if err := p.batch.Set(seenKeyBytes(unixMilli(rec.LastSeen), id), nil, nil); err != nil {
		return rec, fmt.Errorf("history: batch set idx %s: %w", id, err)
	}
	p.staged[id] = stagedRecord{rec: rec, found: true}
	return rec, nil
}

func (p *pendingBatch) commit() error {
	defer p.batch.Close()
	if p.created != 0 {
		p.count += p.created
		if err := p.batch.Set([]byte(metaCountKey), encodeUint64(uint64(p.count)), nil); err != nil {
			return fmt.Errorf("history: batch set count: %w", err)
		}
		if err := p.batch.Set([]byte(metaSeqKey), encodeUint64(p.seq), nil); err != nil {
			return fmt.Errorf("history: batch set seq: %w", err)
		}
	}
	if err := p.batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("history: batch commit: %w", err)
	}
	p.s.count.Store(p.count)
	p.s.seq.Store(p.seq)
	return nil
}

func (s *Store) applyObserve(obs []Observation) ([]Result, error) {
	p := s.newPendingBatch()
	results := make([]Result, 0, len(obs))
	for _, o := range obs {
		o.ID = normalizeID(o.ID)
		if o.ID == "" {
			continue
		}
		if o.Time.IsZero() {
			o.Time = time.Now().UTC()
		}
		existing, found, err := p.lookup(o.ID)
		if err != nil {
			p.batch.Close()
			return nil, err
		}
		stored, err := p.stage(Merge(existing, found, o), existing, found)
		if err != nil {
			p.batch.Close()
			return nil, err
		}
		results = append(results, Result{Cell: stored, Created: !found})
	}
	if err := p.commit(); err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Store) applyRecords(recs []LoggedCell, kind writeKind) error {
	p := s.newPendingBatch()
	for _, rec := range recs {
		rec.ID = normalizeID(rec.ID)
		if rec.ID == "" {
			p.batch.Close()
			return errors.New("history: id is empty")
		}
		existing, found, err := p.lookup(rec.ID)
		if err != nil {
			p.batch.Close()
			return err
		}
		switch {
		case kind == writeInsert && found:
			p.batch.Close()
			return fmt.Errorf("history: insert %s: %w", rec.ID, ErrExists)
		case kind == writeUpdate && !found:
			p.batch.Close()
			return fmt.Errorf("history: update %s: %w", rec.ID, ErrNotFound)
		}
		if found && rec.FirstSeen.IsZero() {
			rec.FirstSeen = existing.FirstSeen
		}
		if _, err := p.stage(rec, existing, found); err != nil {
			p.batch.Close()
			return err
		}
	}
	return p.commit()
}

func (s *Store) applyClearAll() error {
	batch := s.db.NewBatch()
	defer batch.Close()
	for _, prefix := range []string{cellPrefix, seenPrefix} {
		lower := []byte(prefix)
		if err := batch.DeleteRange(lower, prefixUpperBound(lower), nil); err != nil {
			return fmt.Errorf("history: clear %s: %w", prefix, err)
		}
	}
	if err := batch.Set([]byte(metaCountKey), encodeUint64(0), nil); err != nil {
		return fmt.Errorf("history: clear count: %w", err)
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("history: clear commit: %w", err)
	}
	s.count.Store(0)
	return nil
}

// applyPurgeOlderThan deletes records whose last sighting is at or before the cutoff.
func (s *Store) applyPurgeOlderThan(cutoff time.Time) (int64, error) {
	if cutoff.IsZero() {
		return 0, nil
	}
	cutoffMs := cutoff.UTC().UnixMilli()
	if cutoffMs <= 0 {
		return 0, nil
	}
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(seenPrefix),
		UpperBound: seenKeyBytes(cutoffMs+1, ""),
	})
	if err != nil {
		return 0, fmt.Errorf("history: purge iterator: %w", err)
	}
	defer iter.Close()

	batch := s.db.NewBatch()
	defer batch.Close()

	count := s.count.Load()
	pending := int64(0)
	removedTotal := int64(0)

	commitBatch := func() error {
		if pending == 0 {
			return nil
		}
		count -= pending
		if count < 0 {
			count = 0
		}
		if err := batch.Set([]byte(metaCountKey), encodeUint64(uint64(count)), nil); err != nil {
			return fmt.Errorf("history: purge set count: %w", err)
		}
		if err := batch.Commit(pebble.Sync); err != nil {
			return fmt.Errorf("history: purge commit: %w", err)
		}
		batch.Reset()
		removedTotal += pending
		pending = 0
		return nil
	}

	for iter.First(); iter.Valid(); iter.Next() {
		ts, id, ok := parseSeenKey(iter.Key())
		if !ok {
			continue
		}
		if ts > cutoffMs {
			break
		}
		if err := batch.Delete(iter.Key(), nil); err != nil {
			return removedTotal, fmt.Errorf("history: purge delete idx %s: %w", id, err)
		}
		if err := batch.Delete(cellKeyBytes(id), nil); err != nil {
			return removedTotal, fmt.Errorf("history: purge delete %s: %w", id, err)
		}
		pending++
		if pending >= maintenanceBatchCap {
			if err := commitBatch(); err != nil {
				return removedTotal, err
			}
		}
	}
	if err := iter.Error(); err != nil {
		return removedTotal, fmt.Errorf("history: purge iterate: %w", err)
	}
	if err := commitBatch(); err != nil {
		return removedTotal, err
	}
	s.count.Store(count)
	return removedTotal, nil
}

func (s *Store) getRecord(id string) (LoggedCell, bool, error) {
	value, closer, err := s.db.Get(cellKeyBytes(id))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return LoggedCell{}, false, nil
		}
		return LoggedCell{}, false, fmt.Errorf("history: get %s: %w", id, err)
	}
	defer closer.Close()
	rec, err := decodeRecord(id, value)
	if err != nil {
		return LoggedCell{}, false, fmt.Errorf("history: decode %s: %w", id, err)
	}
	return rec, true, nil
}

func loadMeta(db *pebble.DB) (int64, uint64, error) {
	count, errCount := readMeta(db, metaCountKey)
	seq, errSeq := readMeta(db, metaSeqKey)
	if errCount == nil && errSeq == nil {
		return int64(count), seq, nil
	}
	for _, err := range []error{errCount, errSeq} {
		if err != nil && !errors.Is(err, pebble.ErrNotFound) && !errors.Is(err, errInvalidMeta) {
			return 0, 0, fmt.Errorf("history: read metadata: %w", err)
		}
	}
	n, maxSeq, err := scanMeta(db)
	if err != nil {
		return 0, 0, err
	}
	batch := db.NewBatch()
	defer batch.Close()
	if err := batch.Set([]byte(metaCountKey), encodeUint64(uint64(n)), nil); err != nil {
		return 0, 0, fmt.Errorf("history: write count: %w", err)
	}
	if err := batch.Set([]byte(metaSeqKey), encodeUint64(maxSeq), nil); err != nil {
		return 0, 0, fmt.Errorf("history: write seq: %w", err)
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return 0, 0, fmt.Errorf("history: write metadata: %w", err)
	}
	return n, maxSeq, nil
}

func readMeta(db *pebble.DB, key string) (uint64, error) {
	value, closer, err := db.Get([]byte(key))
	if err != nil {
		return 0, err
	}
	defer closer.Close()
	return decodeUint64(value)
}

func scanMeta(db *pebble.DB) (int64, uint64, error) {
	iter, err := db.NewIter(iterOptionsForPrefix(cellPrefix))
	if err != nil {
		return 0, 0, fmt.Errorf("history: count iterator: %w", err)
	}
	defer iter.Close()
	count := int64(0)
	maxSeq := uint64(0)
	for iter.First(); iter.Valid(); iter.Next() {
		id, ok := parseCellKey(iter.Key())
		if !ok {
			continue
		}
		rec, err := decodeRecord(id, iter.Value())
		if err != nil {
			return 0, 0, fmt.Errorf("history: decode %s: %w", id, err)
		}
		count++
		if rec.Seq > maxSeq {
			maxSeq = rec.Seq
		}
	}
	if err := iter.Error(); err != nil {
		return 0, 0, fmt.Errorf("history: count iterate: %w", err)
	}
	return count, maxSeq, nil
}

func iterOptionsForPrefix(prefix string) *pebble.IterOptions {
	lower := []byte(prefix)
	return &pebble.IterOptions{LowerBound: lower, UpperBound: prefixUpperBound(lower)}
}

func prefixUpperBound(prefix []byte) []byte {
	if len(prefix) == 0 {
		return nil
	}
	upper := make([]byte, len(prefix))
	copy(upper, prefix)
	for i := len(upper) - 1; i >= 0; i-- {
		if upper[i] != 0xFF {
			upper[i]++
			return upper[:i+1]
		}
	}
	return nil
}
