// Package poller drives the one-second measurement loop and fans each poll
// out to the display and to the history logger without either blocking the
// next tick.
package poller

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"cellinfo/cell"
	"cellinfo/geo"
	"cellinfo/stats"
)

const (
	defaultInterval      = time.Second
	defaultLogQueueDepth = 8
)

// MeasurementSource yields the modem's current cells.
type MeasurementSource interface {
	Measurements(ctx context.Context) ([]cell.Measurement, error)
}

// LocationSource yields the best current fix, or nil when there is none.
type LocationSource interface {
	Location(ctx context.Context) (*geo.Point, error)
}

// Snapshot is the result of one poll.
type Snapshot struct {
	Seq          uint64
	At           time.Time
	Measurements []cell.Measurement
	Location     *geo.Point
}

// Handler consumes snapshots on the logger goroutine.
type Handler interface {
	Handle(ctx context.Context, snap Snapshot)
}

// Options tunes the loop. Zero values take defaults.
type Options struct {
	Interval      time.Duration
	LogQueueDepth int
}

// Poller owns the ticker. The latest snapshot is published through an atomic
// slot plus a coalescing update signal; the logger gets a bounded queue and
// batches are dropped (and counted) when it falls behind.
type Poller struct {
	cells    MeasurementSource
	location LocationSource
	handler  Handler
	stats    *stats.Tracker
	interval time.Duration

	seq      atomic.Uint64
	latest   atomic.Pointer[Snapshot]
	updates  chan struct{}
	logQueue chan Snapshot
	now      func() time.Time
}

// New wires a poller. location, handler and tracker may be nil.
func New(cells MeasurementSource, location LocationSource, handler Handler, tracker *stats.Tracker, opts Options) *Poller {
	if opts.Interval <= 0 {
		opts.Interval = defaultInterval
	}
	if opts.LogQueueDepth <= 0 {
		opts.LogQueueDepth = defaultLogQueueDepth
	}
	if tracker == nil {
		tracker = stats.NewTracker()
	}
	return &Poller{
		cells:    cells,
		location: location,
		handler:  handler,
		stats:    tracker,
		interval: opts.Interval,
		updates:  make(chan struct{}, 1),
		logQueue: make(chan Snapshot, opts.LogQueueDepth),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Latest returns the most recent snapshot, or nil before the first poll.
func (p *Poller) Latest() *Snapshot {
	return p.latest.Load()
}

// Updates signals (coalesced) that Latest changed.
func (p *Poller) Updates() <-chan struct{} {
	return p.updates
}

// Purpose: Run the poll loop until ctx is done. Call it once.
// Key aspects: Polls immediately, then every interval; the logger drains its
// queue before Run returns.
// Upstream: main.go.
// Downstream: poll, logger goroutine.
func (p *Poller) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		p.logLoop(ctx)
	}()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	p.poll(ctx)
	for {
		select {
		case <-ctx.Done():
			close(p.logQueue)
			wg.Wait()
			return
		case <-ticker.C:
			p.poll(ctx)
		}
	}
}

func (p *Poller) poll(ctx context.Context) {
	p.stats.IncrementPolls()
	measurements, err := p.cells.Measurements(ctx)
	if err != nil {
		p.stats.IncrementPollErrors()
		if ctx.Err() == nil {
			log.Printf("Poller: read measurements: %v", err)
		}
		return
	}
	var here *geo.Point
	if p.location != nil {
		here, err = p.location.Location(ctx)
		if err != nil {
			log.Printf("Poller: read location: %v", err)
			here = nil
		}
	}
	snap := &Snapshot{
		Seq:          p.seq.Add(1),
		At:           p.now(),
		Measurements: measurements,
		Location:     here,
	}
	p.publish(snap)
}

func (p *Poller) publish(snap *Snapshot) {
	p.latest.Store(snap)
	select {
	case p.updates <- struct{}{}:
	default:
	}
	if p.handler == nil {
		return
	}
	select {
	case p.logQueue <- *snap:
	default:
		p.stats.IncrementDroppedBatches()
	}
}

func (p *Poller) logLoop(ctx context.Context) {
	for snap := range p.logQueue {
		if p.handler != nil {
			p.handler.Handle(ctx, snap)
		}
	}
}
