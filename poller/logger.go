package poller

import (
	"context"
	"log"
	"sync"
	"time"

	"cellinfo/band"
	"cellinfo/cell"
	"cellinfo/geo"
	"cellinfo/history"
	"cellinfo/stats"
)

// HistoryWriter is the write side of the history store.
type HistoryWriter interface {
	ObserveBatch(obs []history.Observation) ([]history.Result, error)
}

// Sighting is one accepted measurement handed to sighting sinks.
type Sighting struct {
	At          time.Time
	Measurement cell.Measurement
	Location    *geo.Point
	Band        int
}

// Logger merges every poll into history and reports cells seen for the first
// time exactly once per process.
type Logger struct {
	store HistoryWriter
	stats *stats.Tracker

	mu         sync.Mutex
	notified   map[string]struct{}
	onNew      []func(history.LoggedCell)
	onSighting []func(Sighting)
}

// NewLogger builds a Logger over a history writer. tracker may be nil.
func NewLogger(store HistoryWriter, tracker *stats.Tracker) *Logger {
	if tracker == nil {
		tracker = stats.NewTracker()
	}
	return &Logger{store: store, stats: tracker, notified: make(map[string]struct{})}
}

// OnNewCell registers a callback for first-time cells.
func (l *Logger) OnNewCell(fn func(history.LoggedCell)) {
	l.mu.Lock()
	l.onNew = append(l.onNew, fn)
	l.mu.Unlock()
}

// OnSighting registers a callback for every measurement in a poll.
func (l *Logger) OnSighting(fn func(Sighting)) {
	l.mu.Lock()
	l.onSighting = append(l.onSighting, fn)
	l.mu.Unlock()
}

// Purpose: Merge one poll into history and fire sighting/new-cell hooks.
// Key aspects: Sentinel identifiers are not logged; a failed batch is logged
// and counted, never retried.
// Upstream: Poller logger goroutine.
// Downstream: history.ObserveBatch, hooks.
func (l *Logger) Handle(ctx context.Context, snap Snapshot) {
	l.mu.Lock()
	sightingHooks := append([]func(Sighting){}, l.onSighting...)
	newHooks := append([]func(history.LoggedCell){}, l.onNew...)
	l.mu.Unlock()

	obs := make([]history.Observation, 0, len(snap.Measurements))
	for _, m := range snap.Measurements {
		m.Location = snap.Location
		b := channelBand(m)
		l.stats.IncrementTechnology(string(m.Technology))
		l.stats.IncrementBand(string(m.Technology), b)
		for _, fn := range sightingHooks {
			fn(Sighting{At: snap.At, Measurement: m, Location: snap.Location, Band: b})
		}
		if o, ok := history.FromMeasurement(m, snap.At); ok {
			obs = append(obs, o)
		}
	}
	if len(obs) == 0 || l.store == nil {
		return
	}
	results, err := l.store.ObserveBatch(obs)
	if err != nil {
		l.stats.IncrementHistoryErrors()
		log.Printf("History: observe %d cells: %v", len(obs), err)
		return
	}
	l.stats.AddHistoryWrites(len(results))
	for _, r := range results {
		if !r.Created || !l.markNotified(r.Cell.ID) {
			continue
		}
		l.stats.IncrementNewCells()
		log.Printf("History: new %s cell %s (band %d, channel %d, pci %d)", r.Cell.Technology, r.Cell.ID, r.Cell.Band, r.Cell.Channel, r.Cell.PCI)
		for _, fn := range newHooks {
			fn(r.Cell)
		}
	}
}

func (l *Logger) markNotified(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.notified[id]; ok {
		return false
	}
	l.notified[id] = struct{}{}
	return true
}

func channelBand(m cell.Measurement) int {
	switch m.Technology {
	case cell.TechLTE:
		return band.LTEBand(m.Channel)
	case cell.TechNR:
		return band.NRBand(m.Channel)
	default:
		return band.Unknown
	}
}
