package cell

import (
	"math"
	"strconv"
)

// Unavailable is the value shown for any field the hardware marked unknown.
const Unavailable = "n/a"

// Sentinels lists the raw values a field uses to mean "not available".
type Sentinels []int64

var (
	// LTECellIDSentinels covers the 28-bit all-ones ECI and Integer.MAX_VALUE.
	LTECellIDSentinels = Sentinels{268435455, math.MaxInt32}
	// NRCellIDSentinels covers Long.MAX_VALUE and Integer.MAX_VALUE NCIs.
	NRCellIDSentinels = Sentinels{math.MaxInt64, math.MaxInt32}

	TimingAdvanceSentinels = Sentinels{1282, math.MaxInt32}
	CQISentinels           = Sentinels{math.MaxInt32}
	BandwidthSentinels     = Sentinels{math.MaxInt32}
	SignalSentinels        = Sentinels{math.MaxInt32}

	// RSSNRSentinels includes 0, which is also a legal reading. Callers that
	// need to tell them apart should keep the raw value alongside the label.
	RSSNRSentinels = Sentinels{0, math.MaxInt32}
)

// Is reports whether v is one of the sentinel values.
func (s Sentinels) Is(v int64) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}

// Normalize renders v in base 10, or Unavailable when v is a sentinel.
func (s Sentinels) Normalize(v int64) string {
	if s.Is(v) {
		return Unavailable
	}
	return strconv.FormatInt(v, 10)
}

// Normalize is the single-field form: raw is compared against the given
// sentinels and rendered in base 10 when it is none of them.
func Normalize(raw int64, sentinels ...int64) string {
	return Sentinels(sentinels).Normalize(raw)
}

// IsUnavailable reports whether a rendered value is the Unavailable marker.
func IsUnavailable(v string) bool {
	return v == Unavailable
}
