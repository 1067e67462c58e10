package geo

import "strings"

// Fix is one provider's last known position. AccuracyMeters is the radius of
// the provider's confidence circle; smaller is better. Zero or negative
// accuracy means the provider did not report one.
type Fix struct {
	Point          Point   `json:"point"`
	AccuracyMeters float64 `json:"accuracy_m"`
	Provider       string  `json:"provider"`
}

// BestFix picks the most accurate valid fix across providers. Fixes without an
// accuracy figure rank behind any fix that has one. It returns nil when no
// usable fix exists.
func BestFix(fixes []Fix) *Point {
	var best *Fix
	for i := range fixes {
		f := &fixes[i]
		if !f.Point.Valid() {
			continue
		}
		if best == nil || betterAccuracy(f.AccuracyMeters, best.AccuracyMeters) {
			best = f
		}
	}
	if best == nil {
		return nil
	}
	p := best.Point
	return &p
}

func betterAccuracy(candidate, current float64) bool {
	switch {
	case candidate <= 0:
		return false
	case current <= 0:
		return true
	default:
		return candidate < current
	}
}

// ProviderName normalizes a provider label for logging.
func ProviderName(p string) string {
	p = strings.ToLower(strings.TrimSpace(p))
	if p == "" {
		return "unknown"
	}
	return p
}
