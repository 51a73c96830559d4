// Package surface infers the terrain a segment is walked on by matching its
// points against nearby OSM ways.
package surface

import (
	"context"
	"errors"
	"math"

	"go.uber.org/zap"

	"walkroutes/pkg/geo"
	"walkroutes/pkg/osm"
	"walkroutes/pkg/route"
)

const (
	// BoundPadding grows the segment bounding box on every side, in degrees.
	BoundPadding = 0.0015
	// MatchRadiusMeters is the distance below which a way is taken as the segment's surface.
	MatchRadiusMeters = 60.0
)

// ErrNoSource is reported when a classifier has no geodata source configured.
var ErrNoSource = errors.New("no geodata source")

// Classification is the outcome of classifying one segment.
// Degraded marks an UNKNOWN caused by a lookup failure rather than by the
// absence of a nearby way.
type Classification struct {
	Surface        route.SurfaceType
	DistanceMeters float64
	Degraded       bool
	Err            error
}

// Classifier matches segments against a geodata source.
type Classifier struct {
	source osm.Source
	logger *zap.Logger
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithLogger sets the logger used for degraded lookups.
func WithLogger(l *zap.Logger) Option {
	return func(c *Classifier) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewClassifier creates a classifier backed by source.
func NewClassifier(source osm.Source, opts ...Option) *Classifier {
	c := &Classifier{source: source, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Classify returns the surface of the closest classifiable way within
// MatchRadiusMeters of any segment point. It never fails: lookup errors
// yield UNKNOWN with Degraded set.
func (c *Classifier) Classify(ctx context.Context, seg route.Segment) Classification {
	unknown := Classification{Surface: route.Unknown, DistanceMeters: math.Inf(1)}
	if len(seg.Points) < 2 {
		return unknown
	}
	if c.source == nil {
		return c.degraded(seg, ErrNoSource)
	}

	bound := geo.PaddedBound(seg.Points, BoundPadding)
	features, err := c.source.Features(ctx, bound)
	if err != nil {
		return c.degraded(seg, err)
	}

	best := unknown
	for _, f := range features {
		surface := osm.ClassifySurface(f.Tags)
		if surface == route.Unknown {
			continue
		}
		if d := geo.MinDistance(seg.Points, f.Geometry); d < best.DistanceMeters {
			best.Surface = surface
			best.DistanceMeters = d
		}
	}

	if best.DistanceMeters < MatchRadiusMeters {
		return best
	}
	return Classification{Surface: route.Unknown, DistanceMeters: best.DistanceMeters}
}

func (c *Classifier) degraded(seg route.Segment, err error) Classification {
	c.logger.Warn("surface lookup failed",
		zap.String("segment_id", seg.ID),
		zap.Int("points", len(seg.Points)),
		zap.Error(err),
	)
	return Classification{
		Surface:        route.Unknown,
		DistanceMeters: math.Inf(1),
		Degraded:       true,
		Err:            err,
	}
}
