// Package source provides measurement and location feeds for the poller: a
// JSON-lines replay file and a WebSocket client for a device that streams
// snapshots.
package source

import (
	"errors"
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"

	"cellinfo/cell"
	"cellinfo/geo"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var (
	// ErrNoData is returned before the first frame arrives.
	ErrNoData = errors.New("source: no measurements received yet")
	// ErrStale is returned when the newest frame is older than the configured max age.
	ErrStale = errors.New("source: measurements are stale")
)

// Frame is one device snapshot: the cells it hears plus its location fixes.
type Frame struct {
	At       time.Time          `json:"at"`
	Cells    []cell.Measurement `json:"cells"`
	Fixes    []geo.Fix          `json:"fixes,omitempty"`
	Location *geo.Point         `json:"location,omitempty"`
}

type wireFrame struct {
	At       time.Time             `json:"at"`
	Cells    []jsoniter.RawMessage `json:"cells"`
	Fixes    []geo.Fix             `json:"fixes,omitempty"`
	Location *geo.Point            `json:"location,omitempty"`
}

// DecodeFrame parses one JSON frame. Integer fields a cell omits decode as
// unavailable rather than zero, and technology labels are normalized.
func DecodeFrame(data []byte) (Frame, error) {
	var wire wireFrame
	if err := json.Unmarshal(data, &wire); err != nil {
		return Frame{}, fmt.Errorf("source: decode frame: %w", err)
	}
	frame := Frame{At: wire.At, Fixes: wire.Fixes, Location: wire.Location}
	frame.Cells = make([]cell.Measurement, 0, len(wire.Cells))
	for i, raw := range wire.Cells {
		m := cell.Unreported()
		if err := json.Unmarshal(raw, &m); err != nil {
			return Frame{}, fmt.Errorf("source: decode cell %d: %w", i, err)
		}
		m.Technology = cell.ParseTechnology(string(m.Technology))
		frame.Cells = append(frame.Cells, m)
	}
	return frame, nil
}

// BestLocation prefers an explicit location and otherwise ranks the fixes by accuracy.
func (f Frame) BestLocation() *geo.Point {
	if f.Location != nil && f.Location.Valid() {
		p := *f.Location
		return &p
	}
	return geo.BestFix(f.Fixes)
}
