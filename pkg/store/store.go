// Package store is the in-memory route registry. Every mutation is
// snapshotted into a history.Manager.
package store

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"walkroutes/pkg/geo"
	"walkroutes/pkg/history"
	"walkroutes/pkg/route"
)

var (
	ErrRouteNotFound   = errors.New("route not found")
	ErrSegmentNotFound = errors.New("segment not found")
)

// Store holds live routes. Lock order is store then history.
type Store struct {
	mu      sync.RWMutex
	routes  map[uuid.UUID]route.Route
	history *history.Manager
	now     func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the clock used for UpdatedAt.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates a store recording snapshots in h. A nil h gets a private manager.
func New(h *history.Manager, opts ...Option) *Store {
	if h == nil {
		h = history.New()
	}
	s := &Store{
		routes:  make(map[uuid.UUID]route.Route),
		history: h,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Save inserts or replaces a route, assigning missing IDs, and returns the stored copy.
func (s *Store) Save(r route.Route) route.Route {
	r = r.Clone()
	r.EnsureIDs()
	if r.Status == "" {
		r.Status = route.Preliminary
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.put(r)
}

// put stamps and stores r and pushes a snapshot. Caller holds s.mu.
func (s *Store) put(r route.Route) route.Route {
	r.UpdatedAt = s.now()
	s.routes[r.ID] = r
	s.history.Push(r)
	return r.Clone()
}

// FindAll returns copies of every route ordered by ID.
func (s *Store) FindAll() []route.Route {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]route.Route, 0, len(s.routes))
	for _, r := range s.routes {
		out = append(out, r.Clone())
	}
	sortByID(out)
	return out
}

// FindByID returns a copy of the route.
func (s *Store) FindByID(id uuid.UUID) (route.Route, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.routes[id]
	if !ok {
		return route.Route{}, false
	}
	return r.Clone(), true
}

// Update applies fn to a copy of the route and saves the result as one
// snapshot. fn may not change the route ID.
func (s *Store) Update(id uuid.UUID, fn func(*route.Route) error) (route.Route, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.routes[id]
	if !ok {
		return route.Route{}, fmt.Errorf("%w: %s", ErrRouteNotFound, id)
	}

	next := current.Clone()
	if err := fn(&next); err != nil {
		return route.Route{}, err
	}
	next = next.Clone()
	next.ID = id
	next.EnsureIDs()
	return s.put(next), nil
}

// AppendPoint appends p to a segment. Nothing changes if the route or
// segment does not exist.
func (s *Store) AppendPoint(routeID uuid.UUID, segmentID string, p route.Coordinate) (route.Route, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.routes[routeID]
	if !ok {
		return route.Route{}, fmt.Errorf("%w: %s", ErrRouteNotFound, routeID)
	}
	idx := current.SegmentIndex(segmentID)
	if idx < 0 {
		return route.Route{}, fmt.Errorf("%w: %s", ErrSegmentNotFound, segmentID)
	}

	next := current.Clone()
	next.Segments[idx].Points = append(next.Segments[idx].Points, p)
	return s.put(next), nil
}

// Undo restores the previous snapshot of a live route.
func (s *Store) Undo(id uuid.UUID) (route.Route, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.routes[id]; !ok {
		return route.Route{}, fmt.Errorf("%w: %s", ErrRouteNotFound, id)
	}
	prev, err := s.history.Undo(id)
	if err != nil {
		return route.Route{}, err
	}
	s.routes[id] = prev
	return prev.Clone(), nil
}

// Redo re-applies an undone snapshot. Since DeleteAll keeps history, this
// can bring back a cleared route.
func (s *Store) Redo(id uuid.UUID) (route.Route, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, err := s.history.Redo(id)
	if err != nil {
		return route.Route{}, err
	}
	s.routes[id] = next
	return next.Clone(), nil
}

// DeleteAll removes every route. History is kept so routes remain recoverable.
func (s *Store) DeleteAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.routes = make(map[uuid.UUID]route.Route)
}

// Reset removes every route and all history.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.routes = make(map[uuid.UUID]route.Route)
	s.history.Clear()
}

// Len returns the number of live routes.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.routes)
}

// History exposes the snapshot manager.
func (s *Store) History() *history.Manager {
	return s.history
}

// Nearby is a route point found by FindNearest.
type Nearby struct {
	Route          route.Route      `json:"route"`
	SegmentID      string           `json:"segment_id"`
	Point          route.Coordinate `json:"point"`
	DistanceMeters float64          `json:"distance_meters"`
}

// FindNearest returns the point closest to target that lies strictly within
// thresholdMeters. Routes are scanned in ID order, so ties go to the first
// route, segment and point in that order.
func (s *Store) FindNearest(target route.Coordinate, thresholdMeters float64) (Nearby, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]uuid.UUID, 0, len(s.routes))
	for id := range s.routes {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, func(a, b uuid.UUID) int {
		return strings.Compare(a.String(), b.String())
	})

	best := math.Inf(1)
	var found Nearby
	var ok bool
	for _, id := range ids {
		r := s.routes[id]
		for _, seg := range r.Segments {
			for _, p := range seg.Points {
				d := geo.DistanceMeters(target, p)
				if d < thresholdMeters && d < best {
					best = d
					found = Nearby{Route: r, SegmentID: seg.ID, Point: p, DistanceMeters: d}
					ok = true
				}
			}
		}
	}
	if ok {
		found.Route = found.Route.Clone()
	}
	return found, ok
}

func sortByID(routes []route.Route) {
	slices.SortFunc(routes, func(a, b route.Route) int {
		return strings.Compare(a.ID.String(), b.ID.String())
	})
}
