package geo

import (
	"math"

	"github.com/paulmach/orb"

	"walkroutes/pkg/route"
)

const earthRadiusMeters = 6_371_000.0

// Haversine returns the great-circle distance in meters between two points.
// NaN inputs produce NaN.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	lat1r := lat1 * math.Pi / 180
	lat2r := lat2 * math.Pi / 180
	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180

	sinLat := math.Sin(dLat / 2)
	sinLon := math.Sin(dLon / 2)
	a := sinLat*sinLat + math.Cos(lat1r)*math.Cos(lat2r)*sinLon*sinLon
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusMeters * c
}

// DistanceMeters returns the great-circle distance between two coordinates.
func DistanceMeters(a, b route.Coordinate) float64 {
	return Haversine(a.Lat, a.Lng, b.Lat, b.Lng)
}

// PathLength sums the distances between consecutive points.
// Zero or one point yields 0.
func PathLength(points []route.Coordinate) float64 {
	var dist float64
	for i := 1; i < len(points); i++ {
		dist += DistanceMeters(points[i-1], points[i])
	}
	return dist
}

// MinDistance returns the smallest distance between any point of a and any
// point of b. It is +Inf if either side is empty.
func MinDistance(a, b []route.Coordinate) float64 {
	best := math.Inf(1)
	for _, p := range a {
		for _, q := range b {
			if d := DistanceMeters(p, q); d < best {
				best = d
			}
		}
	}
	return best
}

// Bound returns the bounding box of the points. Empty input gives a zero bound.
func Bound(points []route.Coordinate) orb.Bound {
	if len(points) == 0 {
		return orb.Bound{}
	}
	first := orb.Point{points[0].Lng, points[0].Lat}
	b := orb.Bound{Min: first, Max: first}
	for _, p := range points[1:] {
		b = b.Extend(orb.Point{p.Lng, p.Lat})
	}
	return b
}

// PaddedBound returns the bounding box of the points grown by padDeg degrees on every side.
func PaddedBound(points []route.Coordinate, padDeg float64) orb.Bound {
	return Bound(points).Pad(padDeg)
}
