// Package geo holds coordinate helpers used by cell reconciliation and the
// history log: great-circle distance, location-fix ranking, and Maidenhead
// grid labels for stored coordinates.
package geo

import "math"

const (
	// EarthRadiusMeters is the mean radius used by HaversineMeters.
	EarthRadiusMeters = 6371000.0
	// MetersPerMile converts statute miles to meters.
	MetersPerMile = 1609.344
)

// Point is a WGS84 latitude/longitude pair in decimal degrees.
type Point struct {
	Lat float64 `json:"lat" yaml:"lat"`
	Lon float64 `json:"lon" yaml:"lon"`
}

// Valid reports whether the point is finite and inside degree bounds.
func (p Point) Valid() bool {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lon) || math.IsInf(p.Lat, 0) || math.IsInf(p.Lon, 0) {
		return false
	}
	return p.Lat >= -90 && p.Lat <= 90 && p.Lon >= -180 && p.Lon <= 180
}

// HaversineMeters returns the great-circle distance between two coordinates in
// degrees. Out-of-range inputs are not rejected.
func HaversineMeters(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dPhi := (lat2 - lat1) * math.Pi / 180
	dLambda := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return EarthRadiusMeters * c
}

// DistanceMeters is HaversineMeters over two Points.
func DistanceMeters(a, b Point) float64 {
	return HaversineMeters(a.Lat, a.Lon, b.Lat, b.Lon)
}

// Miles converts a mile count to meters.
func Miles(n float64) float64 {
	return n * MetersPerMile
}
