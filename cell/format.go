package cell

import (
	"fmt"
	"math"
	"strconv"
)

const (
	// One TA step is 16 Ts; with Ts = 1/30.72 MHz and c = 4.8e9/16 the
	// one-way distance per step is 4.8e9/30.72e6/2 = 78.125 m.
	timingAdvanceNumerator   = 4800000000.0
	timingAdvanceDenominator = 30720000.0
	feetPerMeter             = 3.28084
)

// TimingAdvanceDistance converts a timing advance to a rounded one-way distance.
// The factor stays fractional; integer division would truncate it to 78 m per step.
func TimingAdvanceDistance(ta int) (meters, feet int) {
	m := math.Round(timingAdvanceNumerator / timingAdvanceDenominator * float64(ta) / 2)
	meters = int(m)
	feet = int(math.Round(float64(meters) * feetPerMeter))
	return meters, feet
}

// FormatTimingAdvance renders "~{m} m ({ft} ft)" or Unavailable.
func FormatTimingAdvance(ta int) string {
	if TimingAdvanceSentinels.Is(int64(ta)) {
		return Unavailable
	}
	m, ft := TimingAdvanceDistance(ta)
	return fmt.Sprintf("~%d m (%d ft)", m, ft)
}

// FormatCQI renders the channel quality indicator or Unavailable.
func FormatCQI(cqi int) string {
	return CQISentinels.Normalize(int64(cqi))
}

// FormatBandwidth renders the bandwidth in kHz or Unavailable.
func FormatBandwidth(bw int) string {
	return BandwidthSentinels.Normalize(int64(bw))
}

// FormatRSSNR renders the reference-signal SNR or Unavailable.
func FormatRSSNR(rssnr int) string {
	return RSSNRSentinels.Normalize(int64(rssnr))
}

// WithUnit appends a unit to an available value and leaves Unavailable bare.
func WithUnit(value, unit string) string {
	if IsUnavailable(value) || value == "" {
		return value
	}
	return value + " " + unit
}

// FormatPower renders a power level in dBm.
func FormatPower(v int) string {
	return WithUnit(SignalSentinels.Normalize(int64(v)), "dBm")
}

// FormatRatio renders a ratio in dB.
func FormatRatio(v int) string {
	return WithUnit(SignalSentinels.Normalize(int64(v)), "dB")
}

// FormatNRBand renders an NR band as "n78"; unknown bands stay "-1".
func FormatNRBand(band int) string {
	if band < 0 {
		return strconv.Itoa(band)
	}
	return "n" + strconv.Itoa(band)
}
