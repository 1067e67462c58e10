package geo

import "math"

// Grid6 returns the 6-character Maidenhead locator for a point, used to label
// where a cell was best heard. It returns false for invalid coordinates.
func Grid6(p Point) (string, bool) {
	if !p.Valid() {
		return "", false
	}
	lat, lon := p.Lat, p.Lon
	if lat == 90 {
		lat = 89.999999
	}
	if lon == 180 {
		lon = 179.999999
	}
	adjLon := lon + 180
	adjLat := lat + 90
	fieldLon := int(adjLon / 20)
	fieldLat := int(adjLat / 10)
	if fieldLon < 0 || fieldLon >= 18 || fieldLat < 0 || fieldLat >= 18 {
		return "", false
	}
	remLon := adjLon - float64(fieldLon)*20
	remLat := adjLat - float64(fieldLat)*10
	squareLon := int(remLon / 2)
	squareLat := int(remLat)
	if squareLon < 0 || squareLon >= 10 || squareLat < 0 || squareLat >= 10 {
		return "", false
	}
	remLon -= float64(squareLon) * 2
	remLat -= float64(squareLat)
	subLon := int(math.Floor(remLon * 12))
	subLat := int(math.Floor(remLat * 24))
	if subLon > 23 {
		subLon = 23
	}
	if subLat > 23 {
		subLat = 23
	}
	return string([]byte{
		byte('A' + fieldLon),
		byte('A' + fieldLat),
		byte('0' + squareLon),
		byte('0' + squareLat),
		byte('a' + subLon),
		byte('a' + subLat),
	}), true
}
