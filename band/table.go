// Package band maps LTE EARFCN and NR-ARFCN channel numbers to 3GPP band
// numbers. Both classifiers scan an ordered range table and the first range
// that contains the channel decides the band, so overlapping entries resolve
// by table position.
package band

// Unknown is returned when no range in a table covers the channel.
const Unknown = -1

// Range is an inclusive channel interval assigned to a band number.
type Range struct {
	Min  int
	Max  int
	Band int
}

// Contains reports whether channel lies inside the inclusive interval.
func (r Range) Contains(channel int) bool {
	return channel >= r.Min && channel <= r.Max
}

// Table is an ordered list of ranges. Order is significant: Lookup returns
// the band of the first matching entry.
type Table []Range

// Lookup returns the band of the first range containing channel, or Unknown.
func (t Table) Lookup(channel int) int {
	for _, r := range t {
		if r.Contains(channel) {
			return r.Band
		}
	}
	return Unknown
}

// Bounds returns the lowest Min and highest Max across the table.
func (t Table) Bounds() (min, max int) {
	if len(t) == 0 {
		return 0, 0
	}
	min, max = t[0].Min, t[0].Max
	for _, r := range t[1:] {
		if r.Min < min {
			min = r.Min
		}
		if r.Max > max {
			max = r.Max
		}
	}
	return min, max
}

// RangesFor returns every entry assigned to band, in table order.
func (t Table) RangesFor(band int) []Range {
	var out []Range
	for _, r := range t {
		if r.Band == band {
			out = append(out, r)
		}
	}
	return out
}

// Bands returns the distinct band numbers in first-appearance order.
func (t Table) Bands() []int {
	seen := make(map[int]bool, len(t))
	out := make([]int, 0, len(t))
	for _, r := range t {
		if seen[r.Band] {
			continue
		}
		seen[r.Band] = true
		out = append(out, r.Band)
	}
	return out
}

func (t Table) clone() Table {
	out := make(Table, len(t))
	copy(out, t)
	return out
}
