// Package reconcile recovers the identity of a cell whose identifier the
// modem withheld, by matching its channel and PCI against previously logged
// cells near the current location.
package reconcile

import (
	"cellinfo/cell"
	"cellinfo/geo"
	"cellinfo/history"
)

// MaxDistanceMeters is the radius within which a logged cell's best location
// must fall for it to be taken as the same cell: 20 statute miles.
var MaxDistanceMeters = geo.Miles(20)

// FindMatch returns the first logged cell, in the given order, with the same
// channel and PCI whose best-known location is within MaxDistanceMeters of
// here. Records whose own identifier is a sentinel never match. It returns nil
// when here is nil or nothing qualifies.
func FindMatch(cells []history.LoggedCell, channel, pci int, here *geo.Point) *history.LoggedCell {
	if here == nil {
		return nil
	}
	for i := range cells {
		rec := &cells[i]
		if rec.Channel != channel || rec.PCI != pci {
			continue
		}
		if rec.BestLocation == nil || history.SentinelID(*rec) {
			continue
		}
		if geo.DistanceMeters(*here, *rec.BestLocation) <= MaxDistanceMeters {
			return rec
		}
	}
	return nil
}

// Reader is the read side of the history store used for matching.
type Reader interface {
	Entries() ([]history.LoggedCell, error)
}

// Matcher resolves anonymized measurements against a history Reader.
type Matcher struct {
	history Reader
}

// NewMatcher builds a Matcher over the given history.
func NewMatcher(r Reader) *Matcher {
	return &Matcher{history: r}
}

// Purpose: Look up the logged cell behind an anonymized measurement.
// Key aspects: Returns (nil, nil) when the measurement carries a real id,
// when there is no fix, or when no record qualifies.
// Upstream: fields.Builder.
// Downstream: history Entries, FindMatch.
func (m *Matcher) Match(meas cell.Measurement, here *geo.Point) (*history.LoggedCell, error) {
	if m == nil || m.history == nil || here == nil || !meas.IdentifierUnavailable() {
		return nil, nil
	}
	entries, err := m.history.Entries()
	if err != nil {
		return nil, err
	}
	match := FindMatch(entries, meas.Channel, meas.PCI, here)
	if match == nil {
		return nil, nil
	}
	out := *match
	return &out, nil
}
