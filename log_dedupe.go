package main

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/zeebo/xxh3"
)

const (
	defaultLogDedupeWindow  = time.Minute
	defaultLogDedupeMaxKeys = 256
)

// repeatingPrefixes are log lines the poll loop can emit every second while a
// source is down or a field stays malformed.
var repeatingPrefixes = []string{
	"Poller: read measurements:",
	"Poller: read location:",
	"Source: websocket:",
	"Source: dropping frame:",
	"Fields: reconcile",
	"Fields: decompose",
	"Fields: load",
	"History: observe",
}

type logDeduper struct {
	mu      sync.Mutex
	window  time.Duration
	maxKeys int
	now     func() time.Time
	entries map[uint64]logDedupeEntry
}

type logDedupeEntry struct {
	nextEmit   time.Time
	lastSeen   time.Time
	suppressed uint64
}

func newLogDeduper(window time.Duration, maxKeys int) *logDeduper {
	if window <= 0 || maxKeys <= 0 {
		return nil
	}
	return &logDeduper{
		window:  window,
		maxKeys: maxKeys,
		now:     func() time.Time { return time.Now().UTC() },
		entries: make(map[uint64]logDedupeEntry, maxKeys),
	}
}

// Purpose: Collapse a repeating log line to one emission per window.
// Key aspects: Lines outside repeatingPrefixes always pass; the first line
// after a window reports how many were suppressed.
// Upstream: logFanout.Write.
// Downstream: logDedupeKey.
func (d *logDeduper) Process(line string) (string, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return "", false
	}
	if d == nil {
		return line, true
	}
	key, ok := logDedupeKey(line)
	if !ok {
		return line, true
	}
	now := d.now()
	d.mu.Lock()
	defer d.mu.Unlock()

	entry, found := d.entries[key]
	if !found {
		d.evictOneIfNeededLocked()
		d.entries[key] = logDedupeEntry{nextEmit: now.Add(d.window), lastSeen: now}
		return line, true
	}
	entry.lastSeen = now
	if now.Before(entry.nextEmit) {
		entry.suppressed++
		d.entries[key] = entry
		return "", false
	}
	suppressed := entry.suppressed
	entry.suppressed = 0
	entry.nextEmit = now.Add(d.window)
	d.entries[key] = entry
	if suppressed > 0 {
		line = fmt.Sprintf("%s (suppressed=%d over %s)", line, suppressed, d.window)
	}
	return line, true
}

func (d *logDeduper) evictOneIfNeededLocked() {
	if len(d.entries) < d.maxKeys {
		return
	}
	var oldestKey uint64
	var oldestSeen time.Time
	haveOldest := false
	for key, entry := range d.entries {
		if !haveOldest || entry.lastSeen.Before(oldestSeen) {
			oldestKey = key
			oldestSeen = entry.lastSeen
			haveOldest = true
		}
	}
	if haveOldest {
		delete(d.entries, oldestKey)
	}
}

// logDedupeKey hashes a repeating line with its digits removed, so ages and
// counters inside the message do not defeat suppression.
func logDedupeKey(line string) (uint64, bool) {
	matched := false
	for _, prefix := range repeatingPrefixes {
		if strings.HasPrefix(line, prefix) {
			matched = true
			break
		}
	}
	if !matched {
		return 0, false
	}
	var b strings.Builder
	b.Grow(len(line))
	for i := 0; i < len(line); i++ {
		if ch := line[i]; ch < '0' || ch > '9' {
			b.WriteByte(ch)
		}
	}
	return xxh3.HashString(b.String()), true
}
