package main

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"cellinfo/config"
)

const (
	logStampLayout = "2006/01/02 15:04:05"
	logDayLayout   = "02-Jan-2006"
	logFileSuffix  = ".log"
	maxPartialLine = 16 * 1024
)

// logSink receives complete lines without their trailing newline.
type logSink interface {
	WriteLine(line string, at time.Time)
	Close() error
}

// writerSink prints lines to a terminal or the console's system pane.
type writerSink struct {
	w     io.Writer
	stamp bool
}

func (s *writerSink) WriteLine(line string, at time.Time) {
	if s == nil || s.w == nil {
		return
	}
	if s.stamp {
		line = stampLine(line, at)
	}
	_, _ = io.WriteString(s.w, line+"\n")
}

func (s *writerSink) Close() error { return nil }

// daySummary returns the lines appended to a day's log file when it closes.
// It runs with the file locked and must not log.
type daySummary func(day time.Time) []string

// dailyLog keeps one file per UTC day, named dd-Mon-yyyy.log. When the day
// changes the old file gets the summary lines, stamped at 23:59:59, and files
// older than keepDays are pruned.
type dailyLog struct {
	mu       sync.Mutex
	dir      string
	keepDays int
	day      time.Time
	file     *os.File
	summary  daySummary
	errOut   io.Writer
	lastErr  time.Time
}

func openDailyLog(dir string, keepDays int) (*dailyLog, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, fmt.Errorf("log directory is empty")
	}
	if keepDays <= 0 {
		keepDays = 7
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log directory %q: %w", dir, err)
	}
	return &dailyLog{dir: dir, keepDays: keepDays, errOut: os.Stderr}, nil
}

// SetSummary installs the end-of-day summary source.
func (d *dailyLog) SetSummary(fn daySummary) {
	d.mu.Lock()
	d.summary = fn
	d.mu.Unlock()
}

func (d *dailyLog) WriteLine(line string, at time.Time) {
	at = at.UTC()
	day := truncateDay(at)
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.file == nil || !day.Equal(d.day) {
		d.rollLocked(day, at)
	}
	d.writeLocked(line, at)
}

func (d *dailyLog) writeLocked(line string, at time.Time) {
	if d.file == nil {
		return
	}
	if _, err := d.file.WriteString(stampLine(line, at) + "\n"); err != nil {
		d.reportLocked(at, fmt.Errorf("write %s: %w", d.file.Name(), err))
	}
}

// Purpose: Close out the current day's file and open the one for day.
// Key aspects: The summary only runs when a previous day was open, so a
// restart mid-day appends to today's file without a summary.
// Upstream: WriteLine.
// Downstream: daySummary, pruneLogs.
func (d *dailyLog) rollLocked(day, at time.Time) {
	if d.file != nil {
		if d.summary != nil {
			closing := d.day.Add(24*time.Hour - time.Second)
			for _, line := range d.summary(d.day) {
				d.writeLocked("Summary for "+d.day.Format(logDayLayout)+": "+line, closing)
			}
		}
		_ = d.file.Close()
		d.file = nil
	}
	path := filepath.Join(d.dir, day.Format(logDayLayout)+logFileSuffix)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		d.reportLocked(at, fmt.Errorf("open %s: %w", path, err))
		return
	}
	d.file, d.day = f, day
	if _, err := pruneLogs(d.dir, day, d.keepDays); err != nil {
		d.reportLocked(at, fmt.Errorf("prune %s: %w", d.dir, err))
	}
}

// reportLocked prints sink failures to stderr at most once a minute.
func (d *dailyLog) reportLocked(at time.Time, err error) {
	if !d.lastErr.IsZero() && at.Sub(d.lastErr) < time.Minute {
		return
	}
	d.lastErr = at
	fmt.Fprintf(d.errOut, "Logging: %v\n", err)
}

func (d *dailyLog) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.file == nil {
		return nil
	}
	err := d.file.Close()
	d.file, d.day = nil, time.Time{}
	return err
}

// pruneLogs removes day files dated before the keepDays window ending on
// today and returns how many it removed. Other files are left alone.
func pruneLogs(dir string, today time.Time, keepDays int) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}
	oldest := truncateDay(today).AddDate(0, 0, -(keepDays - 1))
	removed := 0
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, logFileSuffix) {
			continue
		}
		day, err := time.ParseInLocation(logDayLayout, strings.TrimSuffix(name, logFileSuffix), time.UTC)
		if err != nil || !day.Before(oldest) {
			continue
		}
		if os.Remove(filepath.Join(dir, name)) == nil {
			removed++
		}
	}
	return removed, nil
}

// logFanout is the log.Logger output. It reassembles lines across writes,
// drops repeats the deduper suppresses, and hands each line to the console
// and file sinks.
type logFanout struct {
	mu      sync.Mutex
	partial []byte
	console logSink
	file    logSink
	dedupe  *logDeduper
	now     func() time.Time
}

func newLogFanout(console, file logSink) *logFanout {
	return &logFanout{console: console, file: file, now: time.Now}
}

// Purpose: Build the process log output from config.
// Key aspects: The console sink works even when the log directory cannot be
// created; that error is returned for the caller to report.
// Upstream: main.
// Downstream: openDailyLog, newLogDeduper.
func setupLogging(cfg config.LoggingConfig, console io.Writer) (*logFanout, error) {
	fanout := newLogFanout(&writerSink{w: console, stamp: true}, nil)
	fanout.dedupe = newLogDeduper(defaultLogDedupeWindow, defaultLogDedupeMaxKeys)
	if !cfg.Enabled {
		return fanout, nil
	}
	file, err := openDailyLog(cfg.Dir, cfg.RetentionDays)
	if err != nil {
		return fanout, err
	}
	fanout.SetFileSink(file)
	return fanout, nil
}

// SetConsoleSink redirects console output, e.g. into the cell view's system pane.
func (f *logFanout) SetConsoleSink(w io.Writer, stamp bool) {
	var sink logSink
	if w != nil {
		sink = &writerSink{w: w, stamp: stamp}
	}
	f.mu.Lock()
	f.console = sink
	f.mu.Unlock()
}

func (f *logFanout) SetFileSink(sink logSink) {
	f.mu.Lock()
	f.file = sink
	f.mu.Unlock()
}

// SetDailySummary makes each day's log file end with the given summary. It
// is a no-op without a daily file sink.
func (f *logFanout) SetDailySummary(fn daySummary) {
	f.mu.Lock()
	sink := f.file
	f.mu.Unlock()
	if d, ok := sink.(*dailyLog); ok {
		d.SetSummary(fn)
	}
}

func (f *logFanout) Write(p []byte) (int, error) {
	f.mu.Lock()
	lines, rest := splitLines(append(f.partial, p...))
	f.partial = rest
	console, file, dedupe := f.console, f.file, f.dedupe
	at := f.now().UTC()
	f.mu.Unlock()

	for _, line := range lines {
		line, ok := dedupe.Process(line)
		if !ok {
			continue
		}
		if console != nil {
			console.WriteLine(line, at)
		}
		if file != nil {
			file.WriteLine(line, at)
		}
	}
	return len(p), nil
}

// WriteFileOnlyLine writes straight to the file sink, bypassing the console
// and the deduper. Periodic stats dumps use it.
func (f *logFanout) WriteFileOnlyLine(line string, at time.Time) {
	f.mu.Lock()
	file := f.file
	f.mu.Unlock()
	if file != nil {
		file.WriteLine(line, at)
	}
}

func (f *logFanout) Close() error {
	f.mu.Lock()
	console, file := f.console, f.file
	f.mu.Unlock()
	if console != nil {
		_ = console.Close()
	}
	if file != nil {
		return file.Close()
	}
	return nil
}

// splitLines returns the complete lines in buf and the unterminated tail. A
// tail longer than maxPartialLine is flushed as a line of its own.
func splitLines(buf []byte) ([]string, []byte) {
	var lines []string
	for {
		line, rest, found := bytes.Cut(buf, []byte{'\n'})
		if !found {
			break
		}
		lines = append(lines, string(bytes.TrimRight(line, "\r")))
		buf = rest
	}
	if len(buf) > maxPartialLine {
		lines = append(lines, string(buf))
		buf = nil
	}
	return lines, buf[:len(buf):len(buf)]
}

func stampLine(line string, at time.Time) string {
	return at.UTC().Format(logStampLayout) + " " + line
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
