// Command cellinfo polls a modem feed for serving and neighbor cells, decodes
// every measurement into labeled fields, and keeps a persistent history of
// each cell heard with its best signal and location.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/term"

	"cellinfo/cell"
	"cellinfo/config"
	"cellinfo/fields"
	"cellinfo/history"
	"cellinfo/poller"
	"cellinfo/prefs"
	"cellinfo/publish"
	"cellinfo/reconcile"
	"cellinfo/recorder"
	"cellinfo/source"
	"cellinfo/stats"
)

// Version is stamped at build time.
var Version = "dev"

type feed interface {
	poller.MeasurementSource
	poller.LocationSource
}

func main() {
	configPath := flag.String("config", "", "config file or directory (default $"+config.EnvPath+" or "+config.DefaultPath+")")
	flag.Parse()

	cfg, err := loadConfig(config.ResolvePath(*configPath))
	if err != nil {
		log.Fatalf("Error loading config: %v", err)
	}

	fanout, err := setupLogging(cfg.Logging, os.Stdout)
	log.SetFlags(0)
	log.SetOutput(fanout)
	if err != nil {
		log.Printf("Logging: file logging disabled: %v", err)
	}
	defer fanout.Close()

	log.Printf("cellinfo v%s starting (config %s)", Version, cfg.LoadedFrom)
	if !isStdoutTTY() {
		cfg.Print()
	}

	if err := run(cfg, fanout); err != nil {
		log.Printf("Fatal: %v", err)
		fanout.Close()
		os.Exit(1)
	}
}

// Purpose: Load configuration, falling back to defaults when nothing exists.
// Key aspects: A missing path is not an error; a malformed file is.
// Upstream: main.
// Downstream: config.Load.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		cfg = config.Default()
		cfg.LoadedFrom = "defaults (" + path + " not found)"
		return cfg, nil
	}
	return cfg, err
}

// Purpose: Wire every component and block until a shutdown signal.
// Key aspects: Optional sinks (recorder, MQTT, metrics, console) failing to
// start is logged and skipped; history and the source are required.
// Upstream: main.
// Downstream: poller.Run and the background loops.
func run(cfg *config.Config, fanout *logFanout) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tracker := stats.NewTracker()

	store, err := history.Open(cfg.History.Path, historyOptions(cfg.History))
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Printf("History: close: %v", err)
		}
	}()
	if n, err := store.Count(); err == nil {
		log.Printf("History: %d cells in %s", n, cfg.History.Path)
	}

	cells, runFeed, err := buildSource(cfg.Source)
	if err != nil {
		return err
	}
	if runFeed != nil {
		go runFeed(ctx)
	}

	prefStore := prefs.NewStore(cfg.Prefs.Dir)
	if cfg.Prefs.WatchEnabled() {
		go func() {
			err := prefStore.Watch(ctx, func(set string) {
				log.Printf("Prefs: reloaded %s", set)
			})
			if err != nil && ctx.Err() == nil {
				log.Printf("Prefs: watch disabled: %v", err)
			}
		}()
	}
	builder := fields.NewBuilder(prefStore, reconcile.NewMatcher(store))

	logger := poller.NewLogger(store, tracker)
	if cfg.Recorder.Enabled {
		rec, err := recorder.NewRecorder(cfg.Recorder.Path, cfg.Recorder.PerTechLimit)
		if err != nil {
			log.Printf("Recorder: disabled: %v", err)
		} else {
			defer rec.Close()
			logger.OnSighting(func(s poller.Sighting) {
				rec.Record(s.At, s.Measurement, s.Location, s.Band)
			})
			log.Printf("Recorder: logging sightings to %s", cfg.Recorder.Path)
		}
	}
	if cfg.MQTT.Enabled {
		pub := publish.New(mqttOptions(cfg.MQTT))
		if err := pub.Connect(); err != nil {
			log.Printf("MQTT: disabled: %v", err)
		} else {
			defer pub.Stop()
			logger.OnNewCell(pub.PublishNewCell)
			logger.OnSighting(func(s poller.Sighting) {
				pub.PublishSighting(s.At, s.Measurement, s.Location, s.Band)
			})
		}
	}

	var metricsServer *http.Server
	if cfg.Metrics.Enabled {
		metricsServer, err = startMetrics(cfg.Metrics.Listen, tracker, store)
		if err != nil {
			log.Printf("Metrics: disabled: %v", err)
		}
	}

	console := newCellConsole(cfg.Display, os.Stdout, isStdoutTTY(), terminalWidth())
	if console != nil {
		fanout.SetConsoleSink(console.SystemWriter(), false)
		defer console.Stop()
	}

	fanout.SetDailySummary(func(time.Time) []string {
		return tracker.SnapshotLines()
	})

	p := poller.New(cells, cells, logger, tracker, poller.Options{
		Interval:      cfg.Poll.Interval(),
		LogQueueDepth: cfg.Poll.LogQueueDepth,
	})
	go displayLoop(ctx, p, builder, store, tracker, console, cfg.Display)
	go maintenanceLoop(ctx, store, cfg.History)
	go statsLoop(ctx, tracker, fanout, console, *cfg.Logging.StatsIntervalSeconds)

	pollDone := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(pollDone)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	log.Printf("Polling every %s. Press Ctrl+C to stop.", cfg.Poll.Interval())

	sig := <-sigChan
	log.Printf("Received signal: %v", sig)
	log.Println("Shutting down gracefully...")
	cancel()
	<-pollDone
	if metricsServer != nil {
		shutdownCtx, done := context.WithTimeout(context.Background(), 2*time.Second)
		_ = metricsServer.Shutdown(shutdownCtx)
		done()
	}
	return nil
}

func historyOptions(cfg config.HistoryConfig) history.Options {
	return history.Options{
		CacheSizeBytes:        int64(cfg.CacheSizeMB) << 20,
		BloomFilterBitsPerKey: cfg.BloomFilterBits,
		WriteQueueDepth:       cfg.WriteQueueDepth,
	}
}

func mqttOptions(cfg config.MQTTConfig) publish.Options {
	return publish.Options{
		Broker:         cfg.Broker,
		Port:           cfg.Port,
		Username:       cfg.Username,
		Password:       cfg.Password,
		TopicPrefix:    cfg.TopicPrefix,
		QoS:            byte(cfg.QoS),
		RetainNewCells: cfg.RetainNewCells,
		Sightings:      cfg.Sightings,
		QueueDepth:     cfg.QueueDepth,
	}
}

// Purpose: Build the configured measurement feed.
// Key aspects: The websocket feed needs its Run loop started; replay does not.
// Upstream: run.
// Downstream: source.OpenReplay, source.NewWebSocket.
func buildSource(cfg config.SourceConfig) (feed, func(context.Context), error) {
	switch cfg.Kind {
	case config.SourceWebSocket:
		header := http.Header{}
		for k, v := range cfg.Headers {
			header.Set(k, v)
		}
		ws := source.NewWebSocket(source.WebSocketOptions{
			URL:            cfg.URL,
			Header:         header,
			ReconnectDelay: time.Duration(cfg.ReconnectSeconds) * time.Second,
			ReadTimeout:    time.Duration(cfg.ReadTimeoutSeconds) * time.Second,
			MaxAge:         time.Duration(cfg.MaxAgeSeconds) * time.Second,
		})
		return ws, ws.Run, nil
	case config.SourceReplay:
		r, err := source.OpenReplay(cfg.ReplayPath, cfg.ReplayLoop)
		if err != nil {
			return nil, nil, err
		}
		log.Printf("Source: replaying %d frames from %s", r.Len(), cfg.ReplayPath)
		return r, nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown source kind %q", cfg.Kind)
	}
}

func startMetrics(addr string, tracker *stats.Tracker, store *history.Store) (*http.Server, error) {
	handler, err := stats.Handler(stats.NewCollector(tracker, store.Count))
	if err != nil {
		return nil, err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("Metrics: server stopped: %v", err)
		}
	}()
	log.Printf("Metrics: serving on %s/metrics", addr)
	return srv, nil
}

// Purpose: Rebuild the cell view whenever the poller publishes a snapshot.
// Key aspects: Reads only the latest snapshot, so a slow render never backs
// up polling; counts matches and invalid fields per render.
// Upstream: run.
// Downstream: fields.Builder.BuildAll, history.Store.Recent, console.
func displayLoop(ctx context.Context, p *poller.Poller, builder *fields.Builder, store *history.Store, tracker *stats.Tracker, console *cellConsole, cfg config.DisplayConfig) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.Updates():
		}
		snap := p.Latest()
		if snap == nil {
			continue
		}
		cards := buildCards(builder, snap, cfg.Compact, tracker)
		if console == nil {
			continue
		}
		console.SetCards(cards)
		if recent, err := store.Recent(cfg.RecentCells); err == nil {
			console.SetRecent(recent, time.Now().UTC())
		}
	}
}

func buildCards(builder *fields.Builder, snap *poller.Snapshot, compact bool, tracker *stats.Tracker) []fields.Card {
	ms := make([]cell.Measurement, len(snap.Measurements))
	for i, m := range snap.Measurements {
		m.Location = snap.Location
		ms[i] = m
	}
	cards := builder.BuildAll(ms, compact, snap.Location)
	for _, card := range cards {
		if card.Match != nil {
			tracker.IncrementMatches()
		}
		for _, f := range card.Fields {
			if f.Value == fields.Invalid {
				tracker.IncrementInvalidFields()
			}
		}
	}
	return cards
}

// Purpose: Periodically publish counters to the console and the log file.
// Key aspects: Console stats refresh every second; the file copy follows
// logging.stats_interval_seconds (0 disables it).
// Upstream: run.
// Downstream: stats.Tracker.SnapshotLines.
func statsLoop(ctx context.Context, tracker *stats.Tracker, fanout *logFanout, console *cellConsole, fileIntervalSeconds int) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	var lastFile time.Time
	fileInterval := time.Duration(fileIntervalSeconds) * time.Second
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			lines := tracker.SnapshotLines()
			console.SetStats(lines)
			if fileInterval > 0 && now.Sub(lastFile) >= fileInterval {
				lastFile = now
				for _, line := range lines {
					fanout.WriteFileOnlyLine("Stats: "+line, now.UTC())
				}
			}
		}
	}
}

// Purpose: Report whether stdout is a TTY for console gating.
// Key aspects: Uses term.IsTerminal on stdout fd.
// Upstream: main, run.
// Downstream: term.IsTerminal.
func isStdoutTTY() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

func terminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width <= 0 {
		return defaultConsoleWidth
	}
	return width
}
