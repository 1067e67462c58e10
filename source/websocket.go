package source

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"cellinfo/cell"
	"cellinfo/geo"
)

const (
	defaultReconnectDelay   = 5 * time.Second
	defaultHandshakeTimeout = 10 * time.Second
	defaultReadTimeout      = 30 * time.Second
	defaultMaxAge           = 10 * time.Second
)

// WebSocketOptions configures the streaming client.
type WebSocketOptions struct {
	URL              string
	Header           http.Header
	ReconnectDelay   time.Duration
	HandshakeTimeout time.Duration
	// ReadTimeout bounds the silence between frames before reconnecting.
	ReadTimeout time.Duration
	// MaxAge is how old the newest frame may be before polls report ErrStale.
	MaxAge time.Duration
}

// WebSocketStats reports connection activity.
type WebSocketStats struct {
	Connected  bool
	Connects   uint64
	Frames     uint64
	BadFrames  uint64
	LastFrame  time.Time
	LastError  string
	Disconnect time.Time
}

// WebSocket keeps the newest frame streamed by a device. Run owns the
// connection; Measurements and Location read the cached frame.
type WebSocket struct {
	opts WebSocketOptions
	now  func() time.Time

	mu         sync.RWMutex
	frame      *Frame
	received   time.Time
	lastErr    string
	disconnect time.Time

	connected atomic.Bool
	connects  atomic.Uint64
	frames    atomic.Uint64
	badFrames atomic.Uint64
}

// NewWebSocket builds a client; call Run to connect.
func NewWebSocket(opts WebSocketOptions) *WebSocket {
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = defaultReconnectDelay
	}
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = defaultHandshakeTimeout
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = defaultReadTimeout
	}
	if opts.MaxAge <= 0 {
		opts.MaxAge = defaultMaxAge
	}
	return &WebSocket{opts: opts, now: time.Now}
}

// Purpose: Maintain the WebSocket connection until ctx is done.
// Key aspects: Reconnects after ReconnectDelay on any error.
// Upstream: main.go when source.kind is websocket.
// Downstream: connectAndListen.
func (w *WebSocket) Run(ctx context.Context) {
	log.Printf("Source: streaming from %s", w.opts.URL)
	for {
		if err := w.connectAndListen(ctx); err != nil && ctx.Err() == nil {
			w.setError(err)
			log.Printf("Source: websocket: %v (reconnecting in %s)", err, w.opts.ReconnectDelay)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(w.opts.ReconnectDelay):
		}
	}
}

func (w *WebSocket) connectAndListen(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: w.opts.HandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, w.opts.URL, w.opts.Header)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	w.connected.Store(true)
	w.connects.Add(1)
	defer w.markDisconnected()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	for {
		if err := conn.SetReadDeadline(w.now().Add(w.opts.ReadTimeout)); err != nil {
			return fmt.Errorf("set deadline: %w", err)
		}
		messageType, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}
		if messageType != websocket.TextMessage && messageType != websocket.BinaryMessage {
			continue
		}
		w.handleMessage(message)
	}
}

func (w *WebSocket) handleMessage(message []byte) {
	frame, err := DecodeFrame(message)
	if err != nil {
		w.badFrames.Add(1)
		log.Printf("Source: dropping frame: %v", err)
		return
	}
	w.frames.Add(1)
	now := w.now()
	if frame.At.IsZero() {
		frame.At = now
	}
	w.mu.Lock()
	w.frame = &frame
	w.received = now
	w.mu.Unlock()
}

func (w *WebSocket) markDisconnected() {
	w.connected.Store(false)
	w.mu.Lock()
	w.disconnect = w.now()
	w.mu.Unlock()
}

func (w *WebSocket) setError(err error) {
	w.mu.Lock()
	w.lastErr = err.Error()
	w.mu.Unlock()
}

func (w *WebSocket) latest() (*Frame, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.frame == nil {
		return nil, ErrNoData
	}
	if age := w.now().Sub(w.received); age > w.opts.MaxAge {
		return nil, fmt.Errorf("%w: last frame %s ago", ErrStale, age.Truncate(time.Second))
	}
	return w.frame, nil
}

// Measurements returns the cells of the newest frame.
func (w *WebSocket) Measurements(ctx context.Context) ([]cell.Measurement, error) {
	frame, err := w.latest()
	if err != nil {
		return nil, err
	}
	return append([]cell.Measurement(nil), frame.Cells...), nil
}

// Location returns the best fix of the newest frame, or nil when stale.
func (w *WebSocket) Location(ctx context.Context) (*geo.Point, error) {
	frame, err := w.latest()
	if err != nil {
		return nil, nil
	}
	return frame.BestLocation(), nil
}

// Stats reports connection counters.
func (w *WebSocket) Stats() WebSocketStats {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return WebSocketStats{
		Connected:  w.connected.Load(),
		Connects:   w.connects.Load(),
		Frames:     w.frames.Load(),
		BadFrames:  w.badFrames.Load(),
		LastFrame:  w.received,
		LastError:  w.lastErr,
		Disconnect: w.disconnect,
	}
}
