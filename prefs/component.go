// Package prefs holds the per-technology field visibility and ordering sets
// and their YAML persistence.
package prefs

import (
	"errors"
	"fmt"
	"sort"

	"cellinfo/cell"
)

// Component is one displayable field in a set.
type Component struct {
	ID      string `yaml:"id"`
	Label   string `yaml:"label"`
	Enabled bool   `yaml:"enabled"`
	Order   int    `yaml:"order"`
}

// Set names. The compact sets drive the condensed view.
const (
	SetNR         = "NR"
	SetLTE        = "LTE"
	SetNRCompact  = "NR_Compressed"
	SetLTECompact = "LTE_Compressed"
)

// ErrUnknownSet is returned for a set name outside SetNames.
var ErrUnknownSet = errors.New("prefs: unknown component set")

// SetNames lists every set in a stable order.
func SetNames() []string {
	return []string{SetNR, SetLTE, SetNRCompact, SetLTECompact}
}

// SetFor picks the set that governs a technology at a verbosity.
// Technologies without their own set fall back to the LTE sets.
func SetFor(tech cell.Technology, compact bool) string {
	if tech == cell.TechNR {
		if compact {
			return SetNRCompact
		}
		return SetNR
	}
	if compact {
		return SetLTECompact
	}
	return SetLTE
}

type fieldDef struct {
	id    string
	label string
}

var lteFields = []fieldDef{
	{"enb_id", "eNB ID"},
	{"sector_id", "Cell Sector ID"},
	{"band", "Band Number"},
	{"rsrp", "RSRP"},
	{"rsrq", "RSRQ"},
	{"timing_advance", "Timing Advance"},
	{"cell_id", "Cell ID"},
	{"pci", "PCI"},
	{"earfcn", "EARFCN"},
	{"bandwidth", "Bandwidth"},
	{"tac", "TAC"},
	{"mcc", "MCC"},
	{"mnc", "MNC"},
	{"rssi", "RSSI"},
	{"rssnr", "RSSNR"},
	{"cqi", "CQI"},
	{"operator", "Operator"},
	{"operator_short", "Operator Abbreviation"},
	{"data", "Data"},
}

// nrFields lists the always-present NR fields first; the remainder are
// available in the full set but start disabled.
var nrFields = []fieldDef{
	{"ss_rsrp", "ssRSRP"},
	{"arfcn", "ARFCN"},
	{"band", "Band"},
	{"data", "Data"},
	{"nci", "NCI"},
	{"pci", "PCI"},
	{"tac", "TAC"},
	{"mcc", "MCC"},
	{"mnc", "MNC"},
	{"ss_rsrq", "ssRSRQ"},
	{"ss_sinr", "ssSINR"},
	{"operator", "Operator"},
}

const (
	nrCoreFields       = 4
	lteCompactVisible  = 5
	nrDataFieldOrdinal = 3
)

// Defaults returns a fresh copy of the factory set.
func Defaults(set string) ([]Component, error) {
	switch set {
	case SetLTE:
		return build(lteFields, func(i int, f fieldDef) bool { return f.id != "data" }), nil
	case SetLTECompact:
		return build(lteFields, func(i int, f fieldDef) bool { return i < lteCompactVisible }), nil
	case SetNR:
		return build(nrFields, func(i int, f fieldDef) bool { return i < nrDataFieldOrdinal }), nil
	case SetNRCompact:
		return build(nrFields[:nrCoreFields], func(i int, f fieldDef) bool { return i < nrDataFieldOrdinal }), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownSet, set)
	}
}

func build(defs []fieldDef, enabled func(int, fieldDef) bool) []Component {
	out := make([]Component, len(defs))
	for i, f := range defs {
		out[i] = Component{ID: f.id, Label: f.label, Enabled: enabled(i, f), Order: i}
	}
	return out
}

// Toggle inverts the enabled flag of the component with the given id and
// reports whether it was found. The input is not modified.
func Toggle(list []Component, id string) ([]Component, bool) {
	out := clone(list)
	for i := range out {
		if out[i].ID == id {
			out[i].Enabled = !out[i].Enabled
			return out, true
		}
	}
	return out, false
}

// Move takes the component at position from (in Order order) and reinserts
// it at position to, then renumbers Order densely from 0.
func Move(list []Component, from, to int) ([]Component, error) {
	out := sorted(list)
	if from < 0 || from >= len(out) || to < 0 || to >= len(out) {
		return nil, fmt.Errorf("prefs: move %d -> %d out of range for %d components", from, to, len(out))
	}
	item := out[from]
	out = append(out[:from], out[from+1:]...)
	out = append(out[:to], append([]Component{item}, out[to:]...)...)
	renumber(out)
	return out, nil
}

// Enabled returns the visible components in display order.
func Enabled(list []Component) []Component {
	out := make([]Component, 0, len(list))
	for _, c := range sorted(list) {
		if c.Enabled {
			out = append(out, c)
		}
	}
	return out
}

// normalize orders a loaded set, drops duplicate and unknown ids, appends
// any factory components the file lacks (disabled), and renumbers.
func normalize(set string, list []Component) ([]Component, []string) {
	defaults, err := Defaults(set)
	if err != nil {
		return list, nil
	}
	known := make(map[string]Component, len(defaults))
	for _, d := range defaults {
		known[d.ID] = d
	}
	seen := make(map[string]bool, len(list))
	var unknown []string
	out := make([]Component, 0, len(defaults))
	for _, c := range sorted(list) {
		def, ok := known[c.ID]
		if !ok {
			unknown = append(unknown, c.ID)
			continue
		}
		if seen[c.ID] {
			continue
		}
		seen[c.ID] = true
		if c.Label == "" {
			c.Label = def.Label
		}
		out = append(out, c)
	}
	for _, d := range defaults {
		if !seen[d.ID] {
			d.Enabled = false
			out = append(out, d)
		}
	}
	renumber(out)
	return out, unknown
}

func sorted(list []Component) []Component {
	out := clone(list)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}

func renumber(list []Component) {
	for i := range list {
		list[i].Order = i
	}
}

func clone(list []Component) []Component {
	out := make([]Component, len(list))
	copy(out, list)
	return out
}
