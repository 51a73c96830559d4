package route

import (
	"time"

	"github.com/google/uuid"
)

// SurfaceType is the terrain class a segment is walked on.
type SurfaceType string

const (
	Asphalt     SurfaceType = "ASPHALT"
	ForestTrail SurfaceType = "FOREST_TRAIL"
	FieldPath   SurfaceType = "FIELD_PATH"
	Railway     SurfaceType = "RAILWAY"
	Unknown     SurfaceType = "UNKNOWN"
)

// SurfaceTypes lists every surface type in declaration order.
var SurfaceTypes = []SurfaceType{Asphalt, ForestTrail, FieldPath, Railway, Unknown}

// Valid reports whether s is one of the declared surface types.
func (s SurfaceType) Valid() bool {
	switch s {
	case Asphalt, ForestTrail, FieldPath, Railway, Unknown:
		return true
	}
	return false
}

// Status is the editorial status of a route.
type Status string

const (
	Preliminary Status = "PRELIMINARY"
	Final       Status = "FINAL"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return s == Preliminary || s == Final
}

// Coordinate is a track vertex. Node marks a named waypoint.
type Coordinate struct {
	Lat  float64 `json:"lat"`
	Lng  float64 `json:"lng"`
	Node bool    `json:"node"`
}

// Segment is an ordered chain of coordinates with one dominant surface.
type Segment struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Surface     SurfaceType  `json:"surface_type"`
	Preliminary bool         `json:"preliminary"`
	Points      []Coordinate `json:"points"`
}

// Route is a named collection of segments.
type Route struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Status    Status    `json:"status"`
	Segments  []Segment `json:"segments"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewSegment creates a segment with a fresh ID.
func NewSegment(name string, surface SurfaceType, preliminary bool, points []Coordinate) Segment {
	if surface == "" {
		surface = Unknown
	}
	pts := make([]Coordinate, len(points))
	copy(pts, points)
	return Segment{
		ID:          uuid.NewString(),
		Name:        name,
		Surface:     surface,
		Preliminary: preliminary,
		Points:      pts,
	}
}

// New creates a route with a fresh ID. Segments are copied and given IDs if missing.
func New(name string, status Status, segments []Segment) Route {
	if status == "" {
		status = Preliminary
	}
	r := Route{
		ID:        uuid.New(),
		Name:      name,
		Status:    status,
		Segments:  cloneSegments(segments),
		UpdatedAt: time.Now(),
	}
	r.EnsureIDs()
	return r
}

// EnsureIDs assigns IDs to the route and any segment that lacks one,
// and defaults empty surface types to Unknown.
func (r *Route) EnsureIDs() {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	for i := range r.Segments {
		if r.Segments[i].ID == "" {
			r.Segments[i].ID = uuid.NewString()
		}
		if r.Segments[i].Surface == "" {
			r.Segments[i].Surface = Unknown
		}
	}
}

// SegmentIndex returns the index of the segment with the given ID, or -1.
func (r *Route) SegmentIndex(id string) int {
	for i := range r.Segments {
		if r.Segments[i].ID == id {
			return i
		}
	}
	return -1
}

// PointCount returns the number of coordinates across all segments.
func (r Route) PointCount() int {
	n := 0
	for _, s := range r.Segments {
		n += len(s.Points)
	}
	return n
}

// Clone returns a deep copy. The copy shares no slices with r.
func (r Route) Clone() Route {
	r.Segments = cloneSegments(r.Segments)
	return r
}

// Clone returns a deep copy of the segment.
func (s Segment) Clone() Segment {
	if s.Points != nil {
		pts := make([]Coordinate, len(s.Points))
		copy(pts, s.Points)
		s.Points = pts
	}
	return s
}

func cloneSegments(segments []Segment) []Segment {
	if segments == nil {
		return nil
	}
	out := make([]Segment, len(segments))
	for i, s := range segments {
		out[i] = s.Clone()
	}
	return out
}
