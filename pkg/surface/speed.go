package surface

import "walkroutes/pkg/route"

// DefaultSpeedKmh is the walking speed used for unmapped surfaces and for
// flat estimates of non-final routes.
const DefaultSpeedKmh = 4.5

var speeds = map[route.SurfaceType]float64{
	route.Asphalt:     5.5,
	route.ForestTrail: 4.0,
	route.FieldPath:   4.3,
	route.Railway:     5.0,
	route.Unknown:     4.5,
}

// Speed returns the walking speed in km/h on the given surface.
func Speed(s route.SurfaceType) float64 {
	if v, ok := speeds[s]; ok {
		return v
	}
	return DefaultSpeedKmh
}
