package main

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/zeebo/xxh3"

	"cellinfo/cell"
	"cellinfo/config"
	"cellinfo/fields"
	"cellinfo/history"
)

const (
	defaultConsoleWidth  = 80
	consoleSystemLines   = 6
	consoleRefresh       = 250 * time.Millisecond
	consoleLabelWidth    = 18
	consoleClearAndHome  = "\x1b[2J\x1b[H"
	consoleMinFieldWidth = 20
)

// cellConsole is a fixed-layout ANSI renderer: counters, one card per cell
// heard in the latest poll, recently logged cells, and the system log tail.
// A frame identical to the previous one is not redrawn.
type cellConsole struct {
	mu        sync.Mutex
	stats     []string
	cards     []fields.Card
	recent    []history.LoggedCell
	recentAt  time.Time
	system    ringPane
	snapSys   []string
	out       io.Writer
	width     int
	color     bool
	location  bool
	lastFrame uint64
	haveFrame bool
	renderBuf bytes.Buffer
	writer    *ansiWriter
	quit      chan struct{}
	stopOnce  sync.Once
}

type ringPane struct {
	lines []string
	idx   int
	count int
}

// Purpose: Construct the console renderer when the view is enabled and
// stdout is a terminal.
// Key aspects: Returns nil otherwise so callers can skip every update.
// Upstream: main display setup.
// Downstream: refreshLoop goroutine.
func newCellConsole(cfg config.DisplayConfig, out io.Writer, isTTY bool, width int) *cellConsole {
	if !cfg.IsEnabled() || !isTTY {
		return nil
	}
	if width <= 0 {
		width = defaultConsoleWidth
	}
	c := &cellConsole{
		system:   ringPane{lines: make([]string, consoleSystemLines)},
		snapSys:  make([]string, consoleSystemLines),
		out:      out,
		width:    width,
		color:    true,
		location: cfg.ShowLocation,
		quit:     make(chan struct{}),
	}
	c.writer = &ansiWriter{append: c.AppendSystem, color: c.color}
	go c.refreshLoop()
	return c
}

func (c *cellConsole) Stop() {
	if c == nil {
		return
	}
	c.stopOnce.Do(func() {
		close(c.quit)
	})
}

func (c *cellConsole) SetStats(lines []string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.stats = append(c.stats[:0], lines...)
	c.mu.Unlock()
}

func (c *cellConsole) SetCards(cards []fields.Card) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.cards = cards
	c.mu.Unlock()
}

func (c *cellConsole) SetRecent(recent []history.LoggedCell, now time.Time) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.recent = recent
	c.recentAt = now
	c.mu.Unlock()
}

func (c *cellConsole) AppendSystem(line string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.system.lines[c.system.idx] = line
	c.system.idx = (c.system.idx + 1) % len(c.system.lines)
	if c.system.count < len(c.system.lines) {
		c.system.count++
	}
	c.mu.Unlock()
}

// SystemWriter returns an io.Writer feeding the system log pane.
func (c *cellConsole) SystemWriter() io.Writer {
	if c == nil {
		return nil
	}
	return c.writer
}

func (c *cellConsole) refreshLoop() {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "Console panic: %v\n", r)
		}
	}()
	ticker := time.NewTicker(consoleRefresh)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.render()
		case <-c.quit:
			return
		}
	}
}

// Purpose: Draw the current state if it differs from the last frame.
// Key aspects: Builds the full frame in memory and compares its xxh3 hash.
// Upstream: refreshLoop.
// Downstream: frameLines, out.Write.
func (c *cellConsole) render() bool {
	if c == nil {
		return false
	}
	c.mu.Lock()
	lines := c.frameLines()
	c.mu.Unlock()

	c.renderBuf.Reset()
	for _, line := range lines {
		c.renderBuf.WriteString(applyANSIMarkup(line, c.color))
		c.renderBuf.WriteByte('\n')
	}
	sum := xxh3.Hash(c.renderBuf.Bytes())
	if c.haveFrame && sum == c.lastFrame {
		return false
	}
	c.lastFrame = sum
	c.haveFrame = true
	_, _ = io.WriteString(c.out, consoleClearAndHome)
	_, _ = c.renderBuf.WriteTo(c.out)
	return true
}

// frameLines lays out the frame. Callers hold c.mu.
func (c *cellConsole) frameLines() []string {
	var lines []string
	for _, s := range c.stats {
		lines = append(lines, truncate(s, c.width))
	}
	lines = append(lines, "")

	if len(c.cards) == 0 {
		lines = append(lines, "[yellow]No cells reported[-]")
	}
	for _, card := range c.cards {
		lines = append(lines, cardLines(card, c.width, c.location)...)
		lines = append(lines, "")
	}

	if len(c.recent) > 0 {
		lines = append(lines, "---- Recently logged ----")
		for _, rec := range c.recent {
			lines = append(lines, truncate(recentLine(rec, c.recentAt), c.width))
		}
		lines = append(lines, "")
	}

	lines = append(lines, "---- System ----")
	for _, line := range snapshotPane(&c.system, c.snapSys) {
		lines = append(lines, truncate(line, c.width))
	}
	return lines
}

// cardLines renders one measurement as a header plus one row per field.
func cardLines(card fields.Card, width int, location bool) []string {
	m := card.Measurement
	header := "[cyan]" + m.Technology.GroupLabel() + "[-]"
	if m.Technology != cell.TechUnknown {
		header += " " + m.Identifier()
	}
	if card.Match != nil {
		header += " [yellow](matched " + card.Match.ID + ")[-]"
	}
	if location && m.Location != nil {
		header += fmt.Sprintf(" @ %.5f,%.5f", m.Location.Lat, m.Location.Lon)
	}
	lines := []string{header}
	valueWidth := width - consoleLabelWidth - 2
	if valueWidth < consoleMinFieldWidth {
		valueWidth = consoleMinFieldWidth
	}
	for _, f := range card.Fields {
		value := f.Value
		switch value {
		case cell.Unavailable:
			value = "[white]" + value + "[-]"
		case fields.Invalid:
			value = "[red]" + value + "[-]"
		default:
			value = truncate(value, valueWidth)
		}
		lines = append(lines, fmt.Sprintf("  %-*s%s", consoleLabelWidth, truncate(f.Label, consoleLabelWidth-1), value))
	}
	return lines
}

// recentLine summarizes a logged cell with a relative last-seen age.
func recentLine(rec history.LoggedCell, now time.Time) string {
	signal := cell.Unavailable
	if rec.Signal != nil {
		signal = cell.FormatPower(*rec.Signal)
	}
	bandText := fmt.Sprintf("b%d", rec.Band)
	if rec.Technology == cell.TechNR {
		bandText = cell.FormatNRBand(rec.Band)
	}
	return fmt.Sprintf("%-4s %-12s %-5s pci %-4d %-9s %s",
		rec.Technology, rec.ID, bandText, rec.PCI, signal, humanize.RelTime(rec.LastSeen, now, "ago", "from now"))
}

func truncate(s string, width int) string {
	if width <= 0 || len(s) <= width {
		return s
	}
	if width <= 1 {
		return s[:width]
	}
	return s[:width-1] + "~"
}

func snapshotPane(p *ringPane, buf []string) []string {
	if p == nil || len(p.lines) == 0 || p.count == 0 || len(buf) == 0 {
		return buf[:0]
	}
	start := p.idx - p.count
	if start < 0 {
		start += len(p.lines)
	}
	limit := p.count
	if limit > len(buf) {
		limit = len(buf)
	}
	for i := 0; i < limit; i++ {
		buf[i] = p.lines[(start+i)%len(p.lines)]
	}
	return buf[:limit]
}

type ansiWriter struct {
	append func(string)
	buf    []byte
	color  bool
	mu     sync.Mutex
}

// Write buffers log output until newline and appends each line to the pane.
func (w *ansiWriter) Write(p []byte) (int, error) {
	if w == nil || w.append == nil {
		return len(p), nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buf = append(w.buf, p...)
	data := w.buf
	for {
		idx := bytes.IndexByte(data, '\n')
		if idx == -1 {
			break
		}
		w.append(strings.TrimRight(string(data[:idx]), "\r"))
		data = data[idx+1:]
	}
	const maxWriterBufferSize = 16 * 1024
	if len(data) > maxWriterBufferSize {
		if trimmed := strings.TrimRight(string(data), "\r"); trimmed != "" {
			w.append(trimmed)
		}
		data = data[:0]
	}
	w.buf = data
	return len(p), nil
}

// applyANSIMarkup replaces [color] tokens with escape codes, or strips them.
func applyANSIMarkup(line string, enableColor bool) string {
	if line == "" {
		return line
	}
	if enableColor {
		hasMarkup := strings.Contains(line, "[")
		line = ansiColorReplacer.Replace(line)
		if hasMarkup {
			line += resetANSI
		}
		return line
	}
	return ansiStripReplacer.Replace(line)
}

const resetANSI = "\x1b[0m"

var ansiColorReplacer = strings.NewReplacer(
	"[red]", "\x1b[31m",
	"[green]", "\x1b[32m",
	"[yellow]", "\x1b[33m",
	"[cyan]", "\x1b[36m",
	"[white]", "\x1b[37m",
	"[-]", resetANSI,
)

var ansiStripReplacer = strings.NewReplacer(
	"[red]", "",
	"[green]", "",
	"[yellow]", "",
	"[cyan]", "",
	"[white]", "",
	"[-]", "",
)
