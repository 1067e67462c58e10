package stats

import (
	"io"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

func TestTrackerCounts(t *testing.T) {
	tr := NewTracker()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tr.IncrementTechnology("lte")
			tr.IncrementBand("lte", 13)
		}()
	}
	wg.Wait()
	tr.IncrementBand("nr", 77)
	tr.IncrementBand(" ", 1)
	tr.IncrementPolls()
	tr.AddHistoryWrites(3)
	tr.AddHistoryWrites(-1)

	if got := tr.GetTechnologyCounts()["LTE"]; got != 50 {
		t.Fatalf("expected 50 LTE sightings, got %d", got)
	}
	bands := tr.GetBandCounts()
	if bands["LTE|13"] != 50 || bands["NR|77"] != 1 || len(bands) != 2 {
		t.Fatalf("unexpected band counts %v", bands)
	}
	c := tr.Counters()
	if c.Polls != 1 || c.HistoryWrites != 3 {
		t.Fatalf("unexpected counters %+v", c)
	}
}

func TestSnapshotLines(t *testing.T) {
	tr := NewTracker()
	lines := tr.SnapshotLines()
	if len(lines) != 3 || !strings.HasSuffix(lines[2], "(none)") {
		t.Fatalf("unexpected empty snapshot %v", lines)
	}
	for i := 0; i < 1200; i++ {
		tr.IncrementPolls()
	}
	tr.IncrementBand("NR", 78)
	tr.IncrementBand("LTE", 2)
	lines = tr.SnapshotLines()
	if !strings.HasPrefix(lines[0], "Polls: 1,200 ") {
		t.Fatalf("expected humanized poll count, got %q", lines[0])
	}
	if lines[2] != "Sightings by band: LTE|2=1, NR|78=1" {
		t.Fatalf("unexpected band line %q", lines[2])
	}
}

func TestCollectorServesMetrics(t *testing.T) {
	tr := NewTracker()
	tr.IncrementPolls()
	tr.IncrementPolls()
	tr.IncrementBand("LTE", 66)
	h, err := Handler(NewCollector(tr, func() (int64, error) { return 7, nil }))
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	srv := httptest.NewServer(h)
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	text := string(body)
	for _, want := range []string{
		"cellinfo_polls_total 2",
		`cellinfo_sightings_total{band="66",technology="LTE"} 1`,
		"cellinfo_history_cells 7",
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("metrics output missing %q", want)
		}
	}
}
