// Package history persists every cell the modem has reported in a Pebble
// key/value store, keeping the last-known and best-known signal and location
// for each cell identifier.
package history

import (
	"math"
	"strconv"
	"strings"
	"time"

	"cellinfo/band"
	"cellinfo/cell"
	"cellinfo/geo"
)

// unreportedInt is the marker the modem uses for an integer it did not report.
const unreportedInt = math.MaxInt32

// LoggedCell is the persisted history of one cell identifier.
type LoggedCell struct {
	ID         string
	Technology cell.Technology

	// Seq is assigned on first insert and orders Entries.
	Seq       uint64
	FirstSeen time.Time
	LastSeen  time.Time

	SiteID   string
	SectorID string
	Channel  int
	PCI      int
	Band     int
	TAC      int
	MCC      string
	MNC      string
	Operator string

	// Signal and Location are the most recent observation and may be nil.
	Signal   *int
	Location *geo.Point

	BestSignal   *int
	BestLocation *geo.Point

	Seen bool
}

// Observation is one accepted measurement reduced to the fields history keeps.
type Observation struct {
	ID         string
	Technology cell.Technology
	Time       time.Time

	SiteID   string
	SectorID string
	Channel  int
	PCI      int
	Band     int
	TAC      int
	MCC      string
	MNC      string
	Operator string

	Signal   *int
	Location *geo.Point
}

// Purpose: Reduce a live measurement to a history observation.
// Key aspects: Returns false for sentinel identifiers; those cells are never logged.
// Upstream: poller logger consumer.
// Downstream: band classifiers, cell decomposer.
func FromMeasurement(m cell.Measurement, at time.Time) (Observation, bool) {
	if m.IdentifierUnavailable() {
		return Observation{}, false
	}
	id := m.Identifier()
	obs := Observation{
		ID:         id,
		Technology: m.Technology,
		Time:       at,
		Channel:    m.Channel,
		PCI:        m.PCI,
		TAC:        m.TAC,
		MCC:        strings.TrimSpace(m.MCC),
		MNC:        strings.TrimSpace(m.MNC),
		Operator:   strings.TrimSpace(m.OperatorLong),
		Signal:     m.Signal(),
		Location:   clonePoint(m.Location),
		Band:       band.Unknown,
	}
	switch m.Technology {
	case cell.TechLTE:
		obs.Band = band.LTEBand(m.Channel)
		// Decomposition cannot fail here: id came from a non-sentinel integer.
		obs.SiteID, _ = cell.SiteID(id)
		obs.SectorID, _ = cell.SectorID(id)
	case cell.TechNR:
		obs.Band = band.NRBand(m.Channel)
	}
	return obs, true
}

// Merge applies one observation to the stored state of the same identifier.
// A new cell takes the observation as both last-known and best-known. An
// existing cell always takes the new last-known signal and location, and any
// topology field the observation reported; its best signal only improves when
// the new signal is strictly greater, and its best location is only set while
// still unset.
func Merge(existing LoggedCell, found bool, obs Observation) LoggedCell {
	if !found {
		rec := LoggedCell{
			ID:         obs.ID,
			Technology: obs.Technology,
			FirstSeen:  obs.Time,
			LastSeen:   obs.Time,
			SiteID:     obs.SiteID,
			SectorID:   obs.SectorID,
			Channel:    obs.Channel,
			PCI:        obs.PCI,
			Band:       obs.Band,
			TAC:        obs.TAC,
			MCC:        obs.MCC,
			MNC:        obs.MNC,
			Operator:   obs.Operator,
			Signal:     cloneInt(obs.Signal),
			Location:   validPoint(obs.Location),
			BestSignal: cloneInt(obs.Signal),
			Seen:       true,
		}
		rec.BestLocation = clonePoint(rec.Location)
		return rec
	}

	merged := existing
	merged.LastSeen = obs.Time
	if merged.FirstSeen.IsZero() || (!obs.Time.IsZero() && obs.Time.Before(merged.FirstSeen)) {
		merged.FirstSeen = obs.Time
	}
	merged.Signal = cloneInt(obs.Signal)
	merged.Location = validPoint(obs.Location)
	merged.BestSignal = cloneInt(existing.BestSignal)
	merged.BestLocation = clonePoint(existing.BestLocation)
	merged.Seen = true

	if obs.Signal != nil && (merged.BestSignal == nil || *obs.Signal > *merged.BestSignal) {
		merged.BestSignal = cloneInt(obs.Signal)
	}
	if merged.BestLocation == nil && merged.Location != nil {
		merged.BestLocation = clonePoint(merged.Location)
	}

	if merged.Technology == cell.TechUnknown {
		merged.Technology = obs.Technology
	}
	refreshString(&merged.SiteID, obs.SiteID)
	refreshString(&merged.SectorID, obs.SectorID)
	refreshString(&merged.MCC, obs.MCC)
	refreshString(&merged.MNC, obs.MNC)
	refreshString(&merged.Operator, obs.Operator)
	refreshInt(&merged.Channel, obs.Channel)
	refreshInt(&merged.PCI, obs.PCI)
	refreshInt(&merged.TAC, obs.TAC)
	if obs.Band != band.Unknown {
		merged.Band = obs.Band
	}
	return merged
}

// SentinelID reports whether a stored identifier is one of the hardware's
// "unknown" markers, which the log view hides.
func SentinelID(rec LoggedCell) bool {
	if strings.TrimSpace(rec.ID) == "" || cell.IsUnavailable(rec.ID) {
		return true
	}
	v, err := strconv.ParseInt(rec.ID, 10, 64)
	if err != nil {
		return false
	}
	if rec.Technology == cell.TechNR {
		return cell.NRCellIDSentinels.Is(v)
	}
	return cell.LTECellIDSentinels.Is(v)
}

// refreshString and refreshInt overwrite a last-known field with any value
// the observation actually reported.
func refreshString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func refreshInt(dst *int, v int) {
	if v != unreportedInt {
		*dst = v
	}
}

func cloneInt(v *int) *int {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}

func clonePoint(p *geo.Point) *geo.Point {
	if p == nil {
		return nil
	}
	out := *p
	return &out
}

func validPoint(p *geo.Point) *geo.Point {
	if p == nil || !p.Valid() {
		return nil
	}
	return clonePoint(p)
}

func normalizeID(id string) string {
	return strings.TrimSpace(id)
}
