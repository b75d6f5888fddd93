// Package geo provides the small amount of spherical geometry the tracking
// subsystem needs: great-circle distance, initial bearing and linear
// interpolation along a segment.
package geo

import "math"

const earthRadiusMeters = 6371000.0

// Point is a WGS84 coordinate.
type Point struct {
	Lon float64 `yaml:"lon" json:"lon" validate:"gte=-180,lte=180"`
	Lat float64 `yaml:"lat" json:"lat" validate:"gte=-90,lte=90"`
}

// HaversineMeters returns the great-circle distance between two points.
func HaversineMeters(a, b Point) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusMeters * math.Asin(math.Sqrt(h))
}

// InitialBearing returns the forward azimuth from a to b in degrees [0,360).
func InitialBearing(a, b Point) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	y := math.Sin(dLon) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(dLon)
	deg := math.Atan2(y, x) * 180 / math.Pi
	return math.Mod(deg+360, 360)
}

// Interpolate returns the point a fraction t of the way from a to b.
// Linear in lon/lat, which is fine for the short segments of a route
// polyline.
func Interpolate(a, b Point, t float64) Point {
	return Point{
		Lon: a.Lon + (b.Lon-a.Lon)*t,
		Lat: a.Lat + (b.Lat-a.Lat)*t,
	}
}
