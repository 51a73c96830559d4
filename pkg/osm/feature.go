package osm

import (
	"context"

	"github.com/paulmach/orb"
	"github.com/paulmach/osm"

	"walkroutes/pkg/route"
)

// Feature is a tagged way with its full geometry.
type Feature struct {
	ID       osm.WayID
	Tags     osm.Tags
	Geometry []route.Coordinate
}

// Source answers "which railway/highway ways lie in this box" queries.
type Source interface {
	Features(ctx context.Context, bound orb.Bound) ([]Feature, error)
}
