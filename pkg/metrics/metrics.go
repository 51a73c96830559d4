// Package metrics derives distance, duration and surface breakdown for routes.
package metrics

import (
	"context"
	"math"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"walkroutes/pkg/geo"
	"walkroutes/pkg/route"
	"walkroutes/pkg/surface"
)

// DefaultWorkers bounds concurrent segment classification.
const DefaultWorkers = 4

// SurfaceClassifier resolves the surface of one segment.
type SurfaceClassifier interface {
	Classify(ctx context.Context, seg route.Segment) surface.Classification
}

// Metrics summarizes a route.
type Metrics struct {
	TotalKm          float64                       `json:"total_km"`
	PreliminaryKm    float64                       `json:"preliminary_km"`
	FinalKm          float64                       `json:"final_km"`
	EstimatedMinutes float64                       `json:"estimated_minutes"`
	BySurface        map[route.SurfaceType]float64 `json:"by_surface"`
	CoverageFallback bool                          `json:"coverage_fallback"`
	Degraded         bool                          `json:"degraded"`
}

// Engine computes Metrics. It is safe for concurrent use.
type Engine struct {
	classifier SurfaceClassifier
	workers    int
	logger     *zap.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithWorkers sets how many segments are classified at once.
func WithWorkers(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithLogger sets the engine logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewEngine creates an engine that classifies final routes with c.
func NewEngine(c SurfaceClassifier, opts ...Option) *Engine {
	e := &Engine{classifier: c, workers: DefaultWorkers, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Build computes metrics for a stored route.
func (e *Engine) Build(ctx context.Context, r route.Route) Metrics {
	return e.Evaluate(ctx, r.Segments, r.Status, r.Name)
}

// Evaluate computes metrics for an arbitrary segment list. Surface
// classification only runs for FINAL routes.
func (e *Engine) Evaluate(ctx context.Context, segments []route.Segment, status route.Status, name string) Metrics {
	var prelimMeters, finalMeters float64
	for _, s := range segments {
		if s.Preliminary {
			prelimMeters += geo.PathLength(s.Points)
		} else {
			finalMeters += geo.PathLength(s.Points)
		}
	}
	totalKm := (prelimMeters + finalMeters) / 1000

	m := Metrics{
		TotalKm:       Round2(totalKm),
		PreliminaryKm: Round2(prelimMeters / 1000),
		FinalKm:       Round2(finalMeters / 1000),
		BySurface:     emptyBuckets(),
	}

	if status != route.Final {
		m.EstimatedMinutes = Round2(totalKm / surface.DefaultSpeedKmh * 60)
		return m
	}

	results := e.classifyAll(ctx, segments)
	for i, s := range segments {
		m.BySurface[results[i].Surface] += geo.PathLength(s.Points) / 1000
		if results[i].Degraded {
			m.Degraded = true
		}
	}
	covered := hasCoverage(m.BySurface)
	for k, v := range m.BySurface {
		m.BySurface[k] = Round2(v)
	}

	if !covered {
		m.BySurface = emptyBuckets()
		m.BySurface[route.Asphalt] = Round2(totalKm)
		m.CoverageFallback = true
		e.logger.Debug("no surface coverage, counting route as asphalt",
			zap.String("route", name),
			zap.Float64("total_km", m.TotalKm),
		)
	}

	var minutes float64
	for _, st := range route.SurfaceTypes {
		minutes += m.BySurface[st] / surface.Speed(st) * 60
	}
	m.EstimatedMinutes = Round2(minutes)
	return m
}

// classifyAll classifies segments concurrently; results are in segment order.
func (e *Engine) classifyAll(ctx context.Context, segments []route.Segment) []surface.Classification {
	results := make([]surface.Classification, len(segments))
	if e.classifier == nil {
		for i := range results {
			results[i] = surface.Classification{Surface: route.Unknown, DistanceMeters: math.Inf(1)}
		}
		return results
	}

	var g errgroup.Group
	g.SetLimit(e.workers)
	for i, s := range segments {
		g.Go(func() error {
			results[i] = e.classifier.Classify(ctx, s)
			return nil
		})
	}
	_ = g.Wait() // Classify never fails
	return results
}

func emptyBuckets() map[route.SurfaceType]float64 {
	b := make(map[route.SurfaceType]float64, len(route.SurfaceTypes))
	for _, st := range route.SurfaceTypes {
		b[st] = 0
	}
	return b
}

func hasCoverage(buckets map[route.SurfaceType]float64) bool {
	for st, km := range buckets {
		if st != route.Unknown && km > 0 {
			return true
		}
	}
	return false
}

// Round2 rounds half up to two decimals.
func Round2(v float64) float64 {
	return math.Floor(v*100+0.5) / 100
}
