package osm

import (
	"strings"

	"github.com/paulmach/osm"

	"walkroutes/pkg/route"
)

// trailHighways lists highway tag values walked as forest trails.
var trailHighways = map[string]bool{
	"path":      true,
	"footway":   true,
	"bridleway": true,
	"cycleway":  true,
}

var (
	pavedSurfaces = []string{"asphalt", "paved"}
	looseSurfaces = []string{"ground", "dirt", "gravel"}
)

// ClassifySurface derives a surface type from way tags. Rules are checked in
// priority order: railway, paved surface, track or loose surface, trail highway.
func ClassifySurface(tags osm.Tags) route.SurfaceType {
	if tags.HasTag("railway") {
		return route.Railway
	}

	surface := strings.ToLower(tags.Find("surface"))
	highway := strings.ToLower(tags.Find("highway"))

	if containsAny(surface, pavedSurfaces) {
		return route.Asphalt
	}
	if highway == "track" || containsAny(surface, looseSurfaces) {
		return route.FieldPath
	}
	if trailHighways[highway] {
		return route.ForestTrail
	}
	return route.Unknown
}

// IsWalkable reports whether a way is a candidate for surface matching,
// mirroring the railway/highway filter of the geodata query.
func IsWalkable(tags osm.Tags) bool {
	return tags.HasTag("railway") || tags.HasTag("highway")
}

func containsAny(s string, subs []string) bool {
	if s == "" {
		return false
	}
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// tagsFromMap converts an Overpass JSON tag object into osm.Tags.
func tagsFromMap(m map[string]string) osm.Tags {
	if len(m) == 0 {
		return nil
	}
	tags := make(osm.Tags, 0, len(m))
	for k, v := range m {
		tags = append(tags, osm.Tag{Key: k, Value: v})
	}
	tags.SortByKeyValue()
	return tags
}
