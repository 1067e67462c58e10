// Package stats tracks poll, sighting, and history counters for the periodic
// console summary and the Prometheus endpoint.
package stats

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	humanize "github.com/dustin/go-humanize"
)

// Tracker holds process-wide counters.
type Tracker struct {
	// per-key counters live in sync.Map + atomic.Uint64 so per-sighting
	// increments don't fight over a mutex
	techCounts sync.Map // technology -> *atomic.Uint64
	bandCounts sync.Map // "TECH|band" -> *atomic.Uint64
	start      atomic.Int64

	polls          atomic.Uint64
	pollErrors     atomic.Uint64
	droppedBatches atomic.Uint64
	historyWrites  atomic.Uint64
	historyErrors  atomic.Uint64
	newCells       atomic.Uint64
	matches        atomic.Uint64
	invalidFields  atomic.Uint64
}

// NewTracker creates a tracker with its uptime clock started.
func NewTracker() *Tracker {
	t := &Tracker{}
	t.start.Store(time.Now().UnixNano())
	return t
}

// IncrementTechnology counts one sighting on a technology (LTE, NR, ...).
func (t *Tracker) IncrementTechnology(tech string) {
	incrementCounter(&t.techCounts, normalizeKey(tech))
}

// IncrementBand counts one sighting on a technology/band pair.
func (t *Tracker) IncrementBand(tech string, band int) {
	tech = normalizeKey(tech)
	if tech == "" {
		return
	}
	incrementCounter(&t.bandCounts, fmt.Sprintf("%s|%d", tech, band))
}

func (t *Tracker) IncrementPolls() { t.polls.Add(1) }
func (t *Tracker) IncrementPollErrors() { t.pollErrors.Add(1) }
func (t *Tracker) IncrementDroppedBatches() { t.droppedBatches.Add(1) }
func (t *Tracker) IncrementHistoryErrors() { t.historyErrors.Add(1) }
func (t *Tracker) IncrementNewCells() { t.newCells.Add(1) }
func (t *Tracker) IncrementMatches() { t.matches.Add(1) }
func (t *Tracker) IncrementInvalidFields() { t.invalidFields.Add(1) }

// AddHistoryWrites counts records written by one batch.
func (t *Tracker) AddHistoryWrites(n int) {
	if n > 0 {
		t.historyWrites.Add(uint64(n))
	}
}

// Counters is a point-in-time copy of the scalar counters.
type Counters struct {
	Polls          uint64
	PollErrors     uint64
	DroppedBatches uint64
	HistoryWrites  uint64
	HistoryErrors  uint64
	NewCells       uint64
	Matches        uint64
	InvalidFields  uint64
}

// Counters returns the scalar counters.
func (t *Tracker) Counters() Counters {
	return Counters{
		Polls:          t.polls.Load(),
		PollErrors:     t.pollErrors.Load(),
		DroppedBatches: t.droppedBatches.Load(),
		HistoryWrites:  t.historyWrites.Load(),
		HistoryErrors:  t.historyErrors.Load(),
		NewCells:       t.newCells.Load(),
		Matches:        t.matches.Load(),
		InvalidFields:  t.invalidFields.Load(),
	}
}

// GetTechnologyCounts returns a copy of per-technology sighting counts.
func (t *Tracker) GetTechnologyCounts() map[string]uint64 {
	return copyCounts(&t.techCounts)
}

// GetBandCounts returns a copy of per "TECH|band" sighting counts.
func (t *Tracker) GetBandCounts() map[string]uint64 {
	return copyCounts(&t.bandCounts)
}

// GetUptime returns how long the tracker has been running.
func (t *Tracker) GetUptime() time.Duration {
	return time.Since(time.Unix(0, t.start.Load()))
}

// SnapshotLines returns human-readable stats ready for console display.
func (t *Tracker) SnapshotLines() []string {
	c := t.Counters()
	lines := make([]string, 0, 3)
	lines = append(lines, fmt.Sprintf("Polls: %s (errors %s, dropped log batches %s) uptime %s",
		humanize.Comma(int64(c.Polls)), humanize.Comma(int64(c.PollErrors)),
		humanize.Comma(int64(c.DroppedBatches)), t.GetUptime().Truncate(time.Second)))
	lines = append(lines, fmt.Sprintf("History: %s writes, %s new cells, %s matches, %s errors",
		humanize.Comma(int64(c.HistoryWrites)), humanize.Comma(int64(c.NewCells)),
		humanize.Comma(int64(c.Matches)), humanize.Comma(int64(c.HistoryErrors))))
	lines = append(lines, formatMapCounts("Sightings by band", &t.bandCounts))
	return lines
}

func formatMapCounts(label string, counts *sync.Map) string {
	snapshot := copyCounts(counts)
	keys := make([]string, 0, len(snapshot))
	for k := range snapshot {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var builder strings.Builder
	builder.WriteString(label)
	builder.WriteString(": ")
	if len(keys) == 0 {
		builder.WriteString("(none)")
		return builder.String()
	}
	for i, k := range keys {
		if i > 0 {
			builder.WriteString(", ")
		}
		fmt.Fprintf(&builder, "%s=%s", k, humanize.Comma(int64(snapshot[k])))
	}
	return builder.String()
}

func copyCounts(m *sync.Map) map[string]uint64 {
	counts := make(map[string]uint64)
	m.Range(func(key, value any) bool {
		counts[key.(string)] = value.(*atomic.Uint64).Load()
		return true
	})
	return counts
}

func normalizeKey(key string) string {
	return strings.ToUpper(strings.TrimSpace(key))
}

func incrementCounter(m *sync.Map, key string) {
	if strings.TrimSpace(key) == "" {
		return
	}
	if value, ok := m.Load(key); ok {
		value.(*atomic.Uint64).Add(1)
		return
	}
	counter := &atomic.Uint64{}
	actual, loaded := m.LoadOrStore(key, counter)
	if loaded {
		actual.(*atomic.Uint64).Add(1)
		return
	}
	counter.Add(1)
}
