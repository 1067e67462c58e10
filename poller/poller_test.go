package poller

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"cellinfo/cell"
	"cellinfo/geo"
	"cellinfo/stats"
)

type fakeCells struct {
	mu    sync.Mutex
	batch []cell.Measurement
	err   error
	calls atomic.Int64
}

func (f *fakeCells) Measurements(ctx context.Context) ([]cell.Measurement, error) {
	f.calls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]cell.Measurement(nil), f.batch...), f.err
}

type fixedLocation struct {
	p   *geo.Point
	err error
}

func (f fixedLocation) Location(ctx context.Context) (*geo.Point, error) {
	return f.p, f.err
}

type blockingHandler struct {
	release chan struct{}
	handled atomic.Int64
}

func (h *blockingHandler) Handle(ctx context.Context, snap Snapshot) {
	<-h.release
	h.handled.Add(1)
}

func TestPollPublishesLatest(t *testing.T) {
	here := &geo.Point{Lat: 1, Lon: 2}
	src := &fakeCells{batch: []cell.Measurement{{Technology: cell.TechLTE, CellID: 1}}}
	p := New(src, fixedLocation{p: here}, nil, nil, Options{})
	if p.Latest() != nil {
		t.Fatalf("expected no snapshot before polling")
	}
	p.poll(context.Background())
	snap := p.Latest()
	if snap == nil || snap.Seq != 1 || len(snap.Measurements) != 1 || snap.Location != here {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	select {
	case <-p.Updates():
	default:
		t.Fatalf("expected an update signal")
	}
}

func TestPollErrorKeepsPreviousSnapshot(t *testing.T) {
	tracker := stats.NewTracker()
	src := &fakeCells{batch: []cell.Measurement{{Technology: cell.TechNR}}}
	p := New(src, fixedLocation{err: errors.New("no gps")}, nil, tracker, Options{})
	p.poll(context.Background())
	if p.Latest() == nil || p.Latest().Location != nil {
		t.Fatalf("location error should still publish a snapshot without a fix")
	}
	src.err = errors.New("modem gone")
	p.poll(context.Background())
	if p.Latest().Seq != 1 {
		t.Fatalf("failed poll must not replace the snapshot")
	}
	if c := tracker.Counters(); c.Polls != 2 || c.PollErrors != 1 {
		t.Fatalf("unexpected counters %+v", c)
	}
}

func TestSlowLoggerDoesNotBlockPolls(t *testing.T) {
	tracker := stats.NewTracker()
	h := &blockingHandler{release: make(chan struct{})}
	src := &fakeCells{batch: []cell.Measurement{{Technology: cell.TechLTE, CellID: 1}}}
	p := New(src, nil, h, tracker, Options{LogQueueDepth: 2})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.logLoop(ctx)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			p.poll(ctx)
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("polls blocked behind the logger")
	}
	if p.Latest().Seq != 10 {
		t.Fatalf("expected 10 snapshots, got %d", p.Latest().Seq)
	}
	if tracker.Counters().DroppedBatches == 0 {
		t.Fatalf("expected dropped batches while the logger is stalled")
	}
	close(h.release)
}

func TestRunStopsAndDrains(t *testing.T) {
	store := &fakeHistory{}
	logger := NewLogger(store, nil)
	src := &fakeCells{batch: []cell.Measurement{{Technology: cell.TechLTE, CellID: 4242}}}
	p := New(src, nil, logger, nil, Options{Interval: 10 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	finished := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(finished)
	}()
	deadline := time.Now().Add(2 * time.Second)
	for src.calls.Load() < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("poller did not tick")
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not return after cancel")
	}
	if store.batches.Load() == 0 {
		t.Fatalf("logger never wrote to history")
	}
}
