package prefs

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"cellinfo/cell"
)

func TestDefaultsMatchFactorySets(t *testing.T) {
	lte, err := Defaults(SetLTE)
	if err != nil {
		t.Fatalf("defaults: %v", err)
	}
	if len(lte) != 19 {
		t.Fatalf("expected 19 LTE components, got %d", len(lte))
	}
	for i, c := range lte {
		if c.Order != i {
			t.Fatalf("component %s order %d, want %d", c.ID, c.Order, i)
		}
		if want := c.ID != "data"; c.Enabled != want {
			t.Fatalf("LTE %s enabled=%v, want %v", c.ID, c.Enabled, want)
		}
	}

	compact, _ := Defaults(SetLTECompact)
	visible := Enabled(compact)
	if len(visible) != 5 || visible[0].Label != "eNB ID" || visible[4].Label != "RSRQ" {
		t.Fatalf("unexpected LTE compact visible set %+v", visible)
	}

	nrCompact, _ := Defaults(SetNRCompact)
	if len(nrCompact) != 4 {
		t.Fatalf("expected 4 NR compact components, got %d", len(nrCompact))
	}
	ids := []string{}
	for _, c := range Enabled(nrCompact) {
		ids = append(ids, c.ID)
	}
	if strings.Join(ids, ",") != "ss_rsrp,arfcn,band" {
		t.Fatalf("unexpected NR visible ids %v", ids)
	}

	nr, _ := Defaults(SetNR)
	if got := len(Enabled(nr)); got != 3 {
		t.Fatalf("expected 3 visible NR fields, got %d", got)
	}

	if _, err := Defaults("GSM"); !errors.Is(err, ErrUnknownSet) {
		t.Fatalf("expected ErrUnknownSet, got %v", err)
	}
}

func TestToggleThenMoveKeepsDenseOrder(t *testing.T) {
	list, _ := Defaults(SetNRCompact)
	before := clone(list)

	toggled, ok := Toggle(list, "arfcn")
	if !ok {
		t.Fatalf("toggle did not find arfcn")
	}
	moved, err := Move(toggled, 0, 2)
	if err != nil {
		t.Fatalf("move: %v", err)
	}

	seen := map[int]bool{}
	for _, c := range moved {
		if c.Order < 0 || c.Order > 3 || seen[c.Order] {
			t.Fatalf("orders not dense: %+v", moved)
		}
		seen[c.Order] = true
	}
	if len(seen) != 4 {
		t.Fatalf("expected orders {0,1,2,3}, got %+v", moved)
	}

	wantIDs := []string{"arfcn", "band", "ss_rsrp", "data"}
	for i, c := range moved {
		if c.ID != wantIDs[i] || c.Order != i {
			t.Fatalf("position %d = %s/%d, want %s/%d", i, c.ID, c.Order, wantIDs[i], i)
		}
	}

	for _, c := range moved {
		var orig Component
		for _, b := range before {
			if b.ID == c.ID {
				orig = b
			}
		}
		if c.ID == "arfcn" {
			if c.Enabled == orig.Enabled {
				t.Fatalf("toggled entry not inverted")
			}
		} else if c.Enabled != orig.Enabled {
			t.Fatalf("entry %s changed enabled flag", c.ID)
		}
	}
	if !list[1].Enabled {
		t.Fatalf("Toggle modified its input")
	}
}

func TestMoveOutOfRange(t *testing.T) {
	list, _ := Defaults(SetNRCompact)
	if _, err := Move(list, 0, 4); err == nil {
		t.Fatalf("expected range error")
	}
	if _, err := Move(list, -1, 0); err == nil {
		t.Fatalf("expected range error")
	}
}

func TestEnabledSortsByOrder(t *testing.T) {
	list := []Component{
		{ID: "c", Enabled: true, Order: 2},
		{ID: "a", Enabled: true, Order: 0},
		{ID: "b", Enabled: false, Order: 1},
	}
	got := Enabled(list)
	if len(got) != 2 || got[0].ID != "a" || got[1].ID != "c" {
		t.Fatalf("unexpected enabled view %+v", got)
	}
}

func TestStoreLoadDefaultsAndPersist(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)

	list, err := store.Load(SetLTE)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(list) != 19 {
		t.Fatalf("expected defaults, got %d", len(list))
	}

	if _, err := store.ToggleEnabled(SetLTE, "Data"); err != nil {
		t.Fatalf("toggle by label: %v", err)
	}
	if _, err := store.Reorder(SetLTE, 18, 0); err != nil {
		t.Fatalf("reorder: %v", err)
	}

	fresh := NewStore(dir)
	got, err := fresh.Load(SetLTE)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got[0].ID != "data" || !got[0].Enabled || got[0].Order != 0 {
		t.Fatalf("persisted change missing: %+v", got[0])
	}

	if _, err := fresh.Reset(SetLTE); err != nil {
		t.Fatalf("reset: %v", err)
	}
	got, _ = NewStore(dir).Load(SetLTE)
	if got[0].ID != "enb_id" || got[18].Enabled {
		t.Fatalf("reset did not restore defaults: %+v", got[0])
	}
}

func TestStoreLoadNormalizesFile(t *testing.T) {
	dir := t.TempDir()
	content := `components:
  - id: band
    label: Band
    enabled: true
    order: 7
  - id: ss_rsrp
    enabled: false
    order: 3
  - id: arfnc
    enabled: true
    order: 1
`
	if err := os.WriteFile(filepath.Join(dir, SetNRCompact+".yaml"), []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	list, err := NewStore(dir).Load(SetNRCompact)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	want := []string{"ss_rsrp", "band", "arfcn", "data"}
	if len(list) != len(want) {
		t.Fatalf("expected %d components, got %+v", len(want), list)
	}
	for i, c := range list {
		if c.ID != want[i] || c.Order != i {
			t.Fatalf("position %d = %+v, want %s", i, c, want[i])
		}
	}
	if list[0].Label != "ssRSRP" {
		t.Fatalf("missing label not filled from defaults: %q", list[0].Label)
	}
	if list[2].Enabled || list[3].Enabled {
		t.Fatalf("components absent from the file should start disabled")
	}
}

func TestToggleUnknownSuggests(t *testing.T) {
	store := NewStore(t.TempDir())
	_, err := store.ToggleEnabled(SetLTE, "rsrq2")
	if err == nil || !strings.Contains(err.Error(), `"rsrq"`) {
		t.Fatalf("expected suggestion in error, got %v", err)
	}
}

func TestSuggest(t *testing.T) {
	cases := []struct {
		set  string
		in   string
		want string
		ok   bool
	}{
		{SetLTE, "earfnc", "earfcn", true},
		{SetLTE, "timing advanse", "timing_advance", true},
		{SetNR, "ssrsrp", "ss_rsrp", true},
		{SetLTE, "completely different", "", false},
		{"bogus", "rsrp", "", false},
	}
	for _, tc := range cases {
		got, ok := Suggest(tc.set, tc.in)
		if ok != tc.ok || got != tc.want {
			t.Fatalf("Suggest(%s, %q) = %q, %v; want %q, %v", tc.set, tc.in, got, ok, tc.want, tc.ok)
		}
	}
}

func TestSetFor(t *testing.T) {
	if SetFor(cell.TechNR, false) != SetNR || SetFor(cell.TechNR, true) != SetNRCompact {
		t.Fatalf("unexpected NR set")
	}
	if SetFor(cell.TechLTE, true) != SetLTECompact || SetFor(cell.TechUnknown, false) != SetLTE {
		t.Fatalf("unexpected LTE set")
	}
}

func TestWatchInvalidatesCache(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)
	if _, err := store.Load(SetNR); err != nil {
		t.Fatalf("load: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	changed := make(chan string, 1)
	notify := func(set string) {
		select {
		case changed <- set:
		default:
		}
	}
	if err := store.Watch(ctx, notify); err != nil {
		t.Fatalf("watch: %v", err)
	}

	other := NewStore(dir)
	if _, err := other.ToggleEnabled(SetNR, "data"); err != nil {
		t.Fatalf("toggle: %v", err)
	}

	select {
	case set := <-changed:
		if set != SetNR {
			t.Fatalf("unexpected set %q", set)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for change notification")
	}

	// A create event can arrive before the write lands; poll until the
	// reloaded set reflects the file.
	deadline := time.Now().Add(5 * time.Second)
	for {
		list, err := store.Load(SetNR)
		if err == nil && dataEnabled(list) {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("watched store did not pick up the change")
		}
		store.Invalidate(SetNR)
		time.Sleep(20 * time.Millisecond)
	}
}

func dataEnabled(list []Component) bool {
	for _, c := range list {
		if c.ID == "data" {
			return c.Enabled
		}
	}
	return false
}
