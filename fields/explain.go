package fields

// NoExplanation is returned for labels without a description.
const NoExplanation = "No information available."

var explanations = map[string]string{
	"PCI":                   "Physical Cell Identity, a short identifier that distinguishes neighboring cells on the same channel.",
	"eNB ID":                "The eNodeB identifier of the base station hardware serving the cell.",
	"Cell Sector ID":        "The sector of the cell site this cell belongs to.",
	"Cell ID":               "The raw cell identifier from which the eNB ID and Cell Sector ID are derived.",
	"NCI":                   "The NR Cell Identity broadcast by a 5G cell.",
	"Band Number":           "The frequency band the carrier operates in.",
	"Band":                  "The NR frequency band the carrier operates in.",
	"TAC":                   "The Tracking Area Code assigned to the area the cell site is in.",
	"EARFCN":                "The E-UTRA Absolute Radio Frequency Channel Number, which fixes the frequency of the connected channel.",
	"ARFCN":                 "The NR Absolute Radio Frequency Channel Number of the connected channel.",
	"Bandwidth":             "The width of the carrier's channel in kHz.",
	"MCC":                   "The Mobile Country Code of the network broadcasting the cell.",
	"MNC":                   "The Mobile Network Code identifying the operator broadcasting the cell.",
	"Operator":              "The operator name broadcast by the cell.",
	"Operator Abbreviation": "The short operator name broadcast by the cell.",
	"RSSI":                  "Received Signal Strength Indicator, the total received power within the channel.",
	"RSRP":                  "Reference Signal Received Power, the power of the cell's reference signal.",
	"RSRQ":                  "Reference Signal Received Quality, the ratio of RSRP to RSSI.",
	"RSSNR":                 "Reference Signal Signal-to-Noise Ratio.",
	"CQI":                   "Channel Quality Indicator reported by the device for the downlink.",
	"Timing Advance":        "How far ahead of its time slot the device must transmit so its signal arrives on time. It is derived from the round trip time to the base station, so it also estimates distance.",
	"dBm":                   "Decibel milliwatts, the unit used for signal power.",
	"Data":                  "Raw data reported by the modem.",
	"ssRSRP":                "Synchronization Signal Reference Signal Received Power, the 5G counterpart of LTE RSRP.",
	"ssRSRQ":                "Synchronization Signal Reference Signal Received Quality, the 5G counterpart of LTE RSRQ.",
	"ssSINR":                "Synchronization Signal to interference plus noise ratio.",
}

// Explain returns a one-paragraph description of a field label.
func Explain(label string) string {
	if text, ok := explanations[label]; ok {
		return text
	}
	return NoExplanation
}
