// Package fields turns a measurement into the ordered (label, value) rows a
// consumer displays, honoring the component set for its technology.
package fields

import (
	"errors"
	"log"
	"math"
	"sort"
	"strconv"

	"cellinfo/band"
	"cellinfo/cell"
	"cellinfo/geo"
	"cellinfo/history"
	"cellinfo/prefs"
)

// Invalid is the value of a field whose input could not be decoded.
const Invalid = "invalid"

// Field is one display row. Raw carries the hardware integer for fields whose
// value was normalized from a sentinel, so consumers can tell a real zero
// from "not reported".
type Field struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Value string `json:"value"`
	Raw   string `json:"raw,omitempty"`
	Err   error  `json:"-"`
}

// Card is the assembled view of one measurement.
type Card struct {
	Measurement cell.Measurement    `json:"measurement"`
	Match       *history.LoggedCell `json:"-"`
	Fields      []Field             `json:"fields"`
}

// Prefs supplies component sets.
type Prefs interface {
	Load(set string) ([]prefs.Component, error)
}

// Matcher resolves anonymized measurements against history.
type Matcher interface {
	Match(m cell.Measurement, here *geo.Point) (*history.LoggedCell, error)
}

// Builder assembles cards. A nil Matcher disables reconciliation.
type Builder struct {
	prefs   Prefs
	matcher Matcher
}

// NewBuilder wires a Builder to its preference and history collaborators.
func NewBuilder(p Prefs, m Matcher) *Builder {
	return &Builder{prefs: p, matcher: m}
}

// Purpose: Assemble the visible rows for one measurement.
// Key aspects: Sentinel identifiers trigger reconciliation; a failed lookup
// or a malformed identifier only affects the fields that depend on it.
// Upstream: BuildAll, console renderer.
// Downstream: prefs.Load, Matcher.Match, cell formatters.
func (b *Builder) Build(m cell.Measurement, compact bool, here *geo.Point) Card {
	card := Card{Measurement: m}
	if m.Technology == cell.TechUnknown {
		card.Fields = []Field{{ID: "data", Label: "Data", Value: m.Raw}}
		return card
	}

	set := prefs.SetFor(m.Technology, compact)
	components := b.components(set)

	if b.matcher != nil && m.IdentifierUnavailable() {
		match, err := b.matcher.Match(m, here)
		if err != nil {
			log.Printf("Fields: reconcile %s channel=%d pci=%d: %v", m.Technology, m.Channel, m.PCI, err)
		}
		card.Match = match
	}

	var values map[string]Field
	if m.Technology == cell.TechNR {
		values = nrValues(m, card.Match)
	} else {
		values = lteValues(m, card.Match)
	}
	for _, c := range prefs.Enabled(components) {
		f, ok := values[c.ID]
		if !ok {
			continue
		}
		f.ID = c.ID
		f.Label = c.Label
		card.Fields = append(card.Fields, f)
	}
	return card
}

// BuildAll builds cards for a poll's measurements in display order.
func (b *Builder) BuildAll(ms []cell.Measurement, compact bool, here *geo.Point) []Card {
	ordered := Order(ms)
	cards := make([]Card, 0, len(ordered))
	for _, m := range ordered {
		cards = append(cards, b.Build(m, compact, here))
	}
	return cards
}

func (b *Builder) components(set string) []prefs.Component {
	if b.prefs != nil {
		list, err := b.prefs.Load(set)
		if err == nil {
			return list
		}
		log.Printf("Fields: load %s set: %v (using defaults)", set, err)
	}
	list, _ := prefs.Defaults(set)
	return list
}

// Order returns the measurements grouped NR first, then LTE, then others,
// preserving the source order inside each group.
func Order(ms []cell.Measurement) []cell.Measurement {
	out := make([]cell.Measurement, len(ms))
	copy(out, ms)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Technology.Rank() > out[j].Technology.Rank()
	})
	return out
}

func lteValues(m cell.Measurement, match *history.LoggedCell) map[string]Field {
	id := m.Identifier()
	if match != nil {
		id = match.ID
	}
	tac := tacString(m.TAC)
	mcc, mnc, operator := m.MCC, m.MNC, m.OperatorLong
	if match != nil {
		tac = tacString(match.TAC)
		mcc = prefer(match.MCC, mcc)
		mnc = prefer(match.MNC, mnc)
		operator = prefer(match.Operator, operator)
	}
	return map[string]Field{
		"enb_id":         decomposed(cell.SiteID, id),
		"sector_id":      decomposed(cell.SectorID, id),
		"band":           {Value: strconv.Itoa(band.LTEBand(m.Channel))},
		"rsrp":           raw(cell.FormatPower(m.RSRP), m.RSRP),
		"rsrq":           raw(cell.FormatRatio(m.RSRQ), m.RSRQ),
		"timing_advance": raw(cell.FormatTimingAdvance(m.TimingAdvance), m.TimingAdvance),
		"cell_id":        {Value: id},
		"pci":            {Value: strconv.Itoa(m.PCI)},
		"earfcn":         {Value: strconv.Itoa(m.Channel)},
		"bandwidth":      raw(cell.FormatBandwidth(m.Bandwidth), m.Bandwidth),
		"tac":            {Value: tac},
		"mcc":            {Value: mcc},
		"mnc":            {Value: mnc},
		"rssi":           raw(cell.FormatPower(m.RSSI), m.RSSI),
		"rssnr":          raw(cell.WithUnit(cell.FormatRSSNR(m.RSSNR), "dB"), m.RSSNR),
		"cqi":            raw(cell.FormatCQI(m.CQI), m.CQI),
		"operator":       {Value: operator},
		"operator_short": {Value: m.OperatorShort},
		"data":           {Value: m.Raw},
	}
}

func nrValues(m cell.Measurement, match *history.LoggedCell) map[string]Field {
	id := m.Identifier()
	tac := tacString(m.TAC)
	mcc, mnc, operator := m.MCC, m.MNC, m.OperatorLong
	if match != nil {
		id = match.ID
		tac = tacString(match.TAC)
		mcc = prefer(match.MCC, mcc)
		mnc = prefer(match.MNC, mnc)
		operator = prefer(match.Operator, operator)
	}
	return map[string]Field{
		"ss_rsrp":  raw(cell.FormatPower(m.SSRSRP), m.SSRSRP),
		"arfcn":    {Value: strconv.Itoa(m.Channel)},
		"band":     {Value: cell.FormatNRBand(band.NRBand(m.Channel))},
		"data":     {Value: m.Raw},
		"nci":      {Value: id},
		"pci":      {Value: strconv.Itoa(m.PCI)},
		"tac":      {Value: tac},
		"mcc":      {Value: mcc},
		"mnc":      {Value: mnc},
		"ss_rsrq":  raw(cell.FormatRatio(m.SSRSRQ), m.SSRSRQ),
		"ss_sinr":  raw(cell.FormatRatio(m.SSSINR), m.SSSINR),
		"operator": {Value: operator},
	}
}

// decomposed applies an identifier split, turning a malformed identifier
// into an Invalid field instead of failing the card.
func decomposed(split func(string) (string, error), id string) Field {
	v, err := split(id)
	if err != nil {
		if !errors.Is(err, cell.ErrMalformedIdentifier) {
			log.Printf("Fields: decompose %q: %v", id, err)
		}
		return Field{Value: Invalid, Raw: id, Err: err}
	}
	return Field{Value: v}
}

func raw(value string, v int) Field {
	return Field{Value: value, Raw: strconv.Itoa(v)}
}

func tacString(tac int) string {
	return cell.Normalize(int64(tac), math.MaxInt32)
}

func prefer(primary, fallback string) string {
	if primary != "" {
		return primary
	}
	return fallback
}
