package source

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"cellinfo/cell"
	"cellinfo/geo"
)

// Replay serves frames from a JSON-lines file, one frame per poll. Blank and
// '#' lines are skipped. With Loop set it starts over at the end of the file;
// otherwise it keeps returning the last frame.
type Replay struct {
	frames []Frame
	loop   bool

	mu      sync.Mutex
	next    int
	current *Frame
}

// OpenReplay loads every frame of a replay file up front.
func OpenReplay(path string, loop bool) (*Replay, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("source: open replay: %w", err)
	}
	defer f.Close()
	return NewReplay(f, loop)
}

// NewReplay reads frames from r.
func NewReplay(r io.Reader, loop bool) (*Replay, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4<<20)
	var frames []Frame
	line := 0
	for scanner.Scan() {
		line++
		text := bytes.TrimSpace(scanner.Bytes())
		if len(text) == 0 || text[0] == '#' {
			continue
		}
		frame, err := DecodeFrame(text)
		if err != nil {
			return nil, fmt.Errorf("source: replay line %d: %w", line, err)
		}
		frames = append(frames, frame)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("source: read replay: %w", err)
	}
	if len(frames) == 0 {
		return nil, fmt.Errorf("source: replay has no frames")
	}
	return &Replay{frames: frames, loop: loop}, nil
}

// Len returns the number of frames loaded.
func (r *Replay) Len() int {
	return len(r.frames)
}

// Measurements advances to the next frame and returns its cells.
func (r *Replay) Measurements(ctx context.Context) ([]cell.Measurement, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.next >= len(r.frames) {
		if r.loop {
			r.next = 0
		} else {
			r.next = len(r.frames) - 1
		}
	}
	frame := r.frames[r.next]
	r.current = &frame
	r.next++
	return append([]cell.Measurement(nil), frame.Cells...), nil
}

// Location returns the fix of the frame last served by Measurements.
func (r *Replay) Location(ctx context.Context) (*geo.Point, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == nil {
		return nil, nil
	}
	return r.current.BestLocation(), nil
}
