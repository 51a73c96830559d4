package osm

import (
	"context"
	"fmt"
	"io"
	"slices"

	"github.com/paulmach/orb"
	"github.com/paulmach/osm"
	"github.com/paulmach/osm/osmpbf"
	"github.com/tidwall/rtree"
	"go.uber.org/zap"

	"walkroutes/pkg/geo"
	"walkroutes/pkg/route"
)

// ExtractOptions configures LoadExtract.
type ExtractOptions struct {
	Bound  orb.Bound   // if non-zero, only ways touching this box are kept
	Logger *zap.Logger // progress lines; nop when nil
}

// wayInfo holds way data collected during pass 1.
type wayInfo struct {
	ID      osm.WayID
	Tags    osm.Tags
	NodeIDs []osm.NodeID
}

// Extract is an in-memory Source backed by a local OSM PBF extract.
// Way bounding boxes are indexed in an R-tree.
type Extract struct {
	features []Feature
	index    rtree.RTreeG[int]
}

// LoadExtract reads an OSM PBF file and keeps every railway/highway way.
// The reader is consumed twice (seeks back to start for the second pass),
// so it must implement io.ReadSeeker.
func LoadExtract(ctx context.Context, rs io.ReadSeeker, opts ...ExtractOptions) (*Extract, error) {
	var opt ExtractOptions
	if len(opts) > 0 {
		opt = opts[0]
	}
	logger := opt.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	// Pass 1: Scan ways to collect referenced node IDs and way info.
	referencedNodes := make(map[osm.NodeID]struct{})
	var ways []wayInfo

	scanner := osmpbf.New(ctx, rs, 1)
	scanner.SkipNodes = true
	scanner.SkipRelations = true

	for scanner.Scan() {
		w, ok := scanner.Object().(*osm.Way)
		if !ok {
			continue
		}
		if !IsWalkable(w.Tags) || len(w.Nodes) < 2 {
			continue
		}

		nodeIDs := make([]osm.NodeID, len(w.Nodes))
		for i, wn := range w.Nodes {
			nodeIDs[i] = wn.ID
			referencedNodes[wn.ID] = struct{}{}
		}
		ways = append(ways, wayInfo{ID: w.ID, Tags: w.Tags, NodeIDs: nodeIDs})
	}
	if err := scanner.Err(); err != nil {
		scanner.Close()
		return nil, fmt.Errorf("pass 1 (ways): %w", err)
	}
	scanner.Close()

	logger.Info("extract pass 1 complete",
		zap.Int("ways", len(ways)),
		zap.Int("referenced_nodes", len(referencedNodes)),
	)

	// Pass 2: Scan nodes to collect coordinates for referenced nodes only.
	if _, err := rs.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seek for pass 2: %w", err)
	}

	nodes := make(map[osm.NodeID]route.Coordinate, len(referencedNodes))

	scanner = osmpbf.New(ctx, rs, 1)
	scanner.SkipWays = true
	scanner.SkipRelations = true

	for scanner.Scan() {
		n, ok := scanner.Object().(*osm.Node)
		if !ok {
			continue
		}
		if _, needed := referencedNodes[n.ID]; !needed {
			continue
		}
		nodes[n.ID] = route.Coordinate{Lat: n.Lat, Lng: n.Lon}
	}
	if err := scanner.Err(); err != nil {
		scanner.Close()
		return nil, fmt.Errorf("pass 2 (nodes): %w", err)
	}
	scanner.Close()

	logger.Info("extract pass 2 complete", zap.Int("nodes", len(nodes)))

	features, skipped := assemble(ways, nodes, opt.Bound)
	if skipped > 0 {
		logger.Warn("skipped ways outside the bound or without coordinates", zap.Int("skipped", skipped))
	}
	logger.Info("extract indexed", zap.Int("ways", len(features)))

	return NewExtract(features), nil
}

// assemble resolves way node references into geometry. Ways with fewer than
// two resolved nodes, or entirely outside a non-zero bound, are dropped.
func assemble(ways []wayInfo, nodes map[osm.NodeID]route.Coordinate, bound orb.Bound) ([]Feature, int) {
	useBound := bound != orb.Bound{}
	features := make([]Feature, 0, len(ways))
	skipped := 0

	for _, w := range ways {
		geom := make([]route.Coordinate, 0, len(w.NodeIDs))
		for _, id := range w.NodeIDs {
			if c, ok := nodes[id]; ok {
				geom = append(geom, c)
			}
		}
		if len(geom) < 2 {
			skipped++
			continue
		}
		if useBound && !bound.Intersects(geo.Bound(geom)) {
			skipped++
			continue
		}
		features = append(features, Feature{ID: w.ID, Tags: w.Tags, Geometry: geom})
	}
	return features, skipped
}

// NewExtract indexes features for bounding-box lookups.
func NewExtract(features []Feature) *Extract {
	e := &Extract{features: features}
	for i, f := range features {
		b := geo.Bound(f.Geometry)
		e.index.Insert(
			[2]float64{b.Min.Lon(), b.Min.Lat()},
			[2]float64{b.Max.Lon(), b.Max.Lat()},
			i,
		)
	}
	return e
}

// Features returns every indexed way whose bounding box intersects bound,
// in load order.
func (e *Extract) Features(ctx context.Context, bound orb.Bound) ([]Feature, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var hits []int
	e.index.Search(
		[2]float64{bound.Min.Lon(), bound.Min.Lat()},
		[2]float64{bound.Max.Lon(), bound.Max.Lat()},
		func(_, _ [2]float64, i int) bool {
			hits = append(hits, i)
			return true
		},
	)
	slices.Sort(hits)

	out := make([]Feature, len(hits))
	for j, i := range hits {
		out[j] = e.features[i]
	}
	return out, nil
}

// Len returns the number of indexed ways.
func (e *Extract) Len() int {
	return len(e.features)
}
