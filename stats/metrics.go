package stats

import (
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "cellinfo"

// Collector exposes a Tracker to Prometheus. Values are read from the
// tracker at scrape time, so no second set of counters needs updating.
type Collector struct {
	tracker *Tracker
	cells   func() (int64, error)

	polls          *prometheus.Desc
	pollErrors     *prometheus.Desc
	droppedBatches *prometheus.Desc
	historyWrites  *prometheus.Desc
	historyErrors  *prometheus.Desc
	newCells       *prometheus.Desc
	matches        *prometheus.Desc
	invalidFields  *prometheus.Desc
	sightings      *prometheus.Desc
	storedCells    *prometheus.Desc
	uptime         *prometheus.Desc
}

// NewCollector builds a collector. cells, when set, reports the history size.
func NewCollector(t *Tracker, cells func() (int64, error)) *Collector {
	desc := func(name, help string, labels ...string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(metricsNamespace, "", name), help, labels, nil)
	}
	return &Collector{
		tracker:        t,
		cells:          cells,
		polls:          desc("polls_total", "Poll cycles run."),
		pollErrors:     desc("poll_errors_total", "Poll cycles whose measurement read failed."),
		droppedBatches: desc("log_batches_dropped_total", "Poll batches dropped because the history logger was busy."),
		historyWrites:  desc("history_writes_total", "Observations merged into the cell history."),
		historyErrors:  desc("history_errors_total", "History batches that failed to commit."),
		newCells:       desc("new_cells_total", "Cells logged for the first time."),
		matches:        desc("reconcile_matches_total", "Anonymized cells matched to a logged cell."),
		invalidFields:  desc("invalid_fields_total", "Fields rendered as invalid."),
		sightings:      desc("sightings_total", "Measurements seen per technology and band.", "technology", "band"),
		storedCells:    desc("history_cells", "Cells currently stored in history."),
		uptime:         desc("uptime_seconds", "Seconds since the tracker started."),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		c.polls, c.pollErrors, c.droppedBatches, c.historyWrites, c.historyErrors,
		c.newCells, c.matches, c.invalidFields, c.sightings, c.storedCells, c.uptime,
	} {
		ch <- d
	}
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	counters := c.tracker.Counters()
	counter := func(d *prometheus.Desc, v uint64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v))
	}
	counter(c.polls, counters.Polls)
	counter(c.pollErrors, counters.PollErrors)
	counter(c.droppedBatches, counters.DroppedBatches)
	counter(c.historyWrites, counters.HistoryWrites)
	counter(c.historyErrors, counters.HistoryErrors)
	counter(c.newCells, counters.NewCells)
	counter(c.matches, counters.Matches)
	counter(c.invalidFields, counters.InvalidFields)

	for key, v := range c.tracker.GetBandCounts() {
		tech, band, ok := strings.Cut(key, "|")
		if !ok {
			continue
		}
		ch <- prometheus.MustNewConstMetric(c.sightings, prometheus.CounterValue, float64(v), tech, band)
	}
	if c.cells != nil {
		if n, err := c.cells(); err == nil {
			ch <- prometheus.MustNewConstMetric(c.storedCells, prometheus.GaugeValue, float64(n))
		}
	}
	ch <- prometheus.MustNewConstMetric(c.uptime, prometheus.GaugeValue, c.tracker.GetUptime().Seconds())
}

// Handler returns an HTTP handler serving the collector plus Go runtime metrics
// from a private registry.
func Handler(c *Collector) (http.Handler, error) {
	reg := prometheus.NewRegistry()
	if err := reg.Register(c); err != nil {
		return nil, err
	}
	if err := reg.Register(collectors.NewGoCollector()); err != nil {
		return nil, err
	}
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), nil
}
