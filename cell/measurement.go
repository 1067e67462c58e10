// Package cell models a single radio measurement read from the modem and the
// pure decoding rules applied to it: sentinel normalization, cell identifier
// decomposition, and unit-annotated formatting of signal fields.
package cell

import (
	"math"
	"strconv"
	"strings"

	"cellinfo/geo"
)

// Technology tags the air interface a measurement was taken on.
type Technology string

const (
	TechNR      Technology = "NR"
	TechLTE     Technology = "LTE"
	TechUnknown Technology = ""
)

// ParseTechnology accepts the labels used by sources and CSV files
// ("NR", "5G", "LTE", "4G"), case-insensitively.
func ParseTechnology(s string) Technology {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "NR", "5G":
		return TechNR
	case "LTE", "4G":
		return TechLTE
	default:
		return TechUnknown
	}
}

// Rank orders technologies for display grouping: NR, then LTE, then others.
func (t Technology) Rank() int {
	switch t {
	case TechNR:
		return 2
	case TechLTE:
		return 1
	default:
		return 0
	}
}

// GroupLabel is the heading used when measurements are grouped for display.
func (t Technology) GroupLabel() string {
	switch t {
	case TechNR:
		return "5G"
	case TechLTE:
		return "LTE"
	default:
		return "Other"
	}
}

// Measurement is one cell as reported by the modem during a poll. Integer
// fields carry the hardware's raw values, sentinels included; string fields
// are empty when the hardware omitted them.
type Measurement struct {
	Technology Technology `json:"technology"`

	// CellID is the ECI for LTE and the NCI for NR.
	CellID  int64 `json:"cell_id"`
	Channel int   `json:"channel"`
	PCI     int   `json:"pci"`
	TAC     int   `json:"tac"`

	MCC           string `json:"mcc,omitempty"`
	MNC           string `json:"mnc,omitempty"`
	OperatorLong  string `json:"operator_long,omitempty"`
	OperatorShort string `json:"operator_short,omitempty"`

	// Bandwidth is the LTE downlink bandwidth in kHz.
	Bandwidth int `json:"bandwidth"`

	// LTE signal fields.
	RSRP          int `json:"rsrp"`
	RSRQ          int `json:"rsrq"`
	RSSI          int `json:"rssi"`
	RSSNR         int `json:"rssnr"`
	CQI           int `json:"cqi"`
	TimingAdvance int `json:"timing_advance"`

	// NR signal fields.
	SSRSRP int `json:"ss_rsrp"`
	SSRSRQ int `json:"ss_rsrq"`
	SSSINR int `json:"ss_sinr"`

	// Raw is the unparsed hardware dump shown by the "Data" field.
	Raw string `json:"raw,omitempty"`

	Location *geo.Point `json:"location,omitempty"`
}

// IdentifierSentinels returns the "unknown" markers for this technology's cell id.
func (m Measurement) IdentifierSentinels() Sentinels {
	if m.Technology == TechNR {
		return NRCellIDSentinels
	}
	return LTECellIDSentinels
}

// IdentifierUnavailable reports whether the hardware withheld the cell id.
func (m Measurement) IdentifierUnavailable() bool {
	return m.IdentifierSentinels().Is(m.CellID)
}

// Identifier returns the decimal cell id, or Unavailable for a sentinel.
func (m Measurement) Identifier() string {
	return m.IdentifierSentinels().Normalize(m.CellID)
}

// Signal returns the technology's primary signal strength in dBm (RSRP for
// LTE, ssRSRP for NR), or nil when the hardware did not report one.
func (m Measurement) Signal() *int {
	v := m.RSRP
	if m.Technology == TechNR {
		v = m.SSRSRP
	}
	if SignalSentinels.Is(int64(v)) {
		return nil
	}
	return &v
}

// ChannelString renders the channel number for storage and matching.
func (m Measurement) ChannelString() string {
	return strconv.Itoa(m.Channel)
}

// PCIString renders the physical cell id for storage and matching.
func (m Measurement) PCIString() string {
	return strconv.Itoa(m.PCI)
}

// Unreported returns a Measurement whose integer fields all hold an
// unavailable marker, so decoders that leave absent fields untouched never
// fabricate a zero reading.
func Unreported() Measurement {
	const missing = math.MaxInt32
	return Measurement{
		CellID:        missing,
		Channel:       missing,
		PCI:           missing,
		TAC:           missing,
		Bandwidth:     missing,
		RSRP:          missing,
		RSRQ:          missing,
		RSSI:          missing,
		RSSNR:         missing,
		CQI:           missing,
		TimingAdvance: missing,
		SSRSRP:        missing,
		SSRSRQ:        missing,
		SSSINR:        missing,
	}
}
