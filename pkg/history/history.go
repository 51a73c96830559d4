// Package history keeps per-route undo/redo stacks of route snapshots.
package history

import (
	"errors"
	"sync"

	"github.com/google/uuid"

	"walkroutes/pkg/route"
)

var (
	// ErrNothingToUndo is returned when only the initial snapshot remains.
	ErrNothingToUndo = errors.New("nothing to undo")
	// ErrNothingToRedo is returned when the redo stack is empty.
	ErrNothingToRedo = errors.New("nothing to redo")
)

type stacks struct {
	undo []route.Route
	redo []route.Route
}

// Manager stores snapshots. Every snapshot stored or returned is a deep copy.
type Manager struct {
	mu     sync.Mutex
	routes map[uuid.UUID]*stacks
}

// New creates an empty Manager.
func New() *Manager {
	return &Manager{routes: make(map[uuid.UUID]*stacks)}
}

func (m *Manager) stacksFor(id uuid.UUID) *stacks {
	s, ok := m.routes[id]
	if !ok {
		s = &stacks{}
		m.routes[id] = s
	}
	return s
}

// Push records r as the newest state and discards the redo stack.
func (m *Manager) Push(r route.Route) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.stacksFor(r.ID)
	s.undo = append(s.undo, r.Clone())
	s.redo = nil
}

// Undo drops the current snapshot and returns the previous one.
// The top of the undo stack is the current state, so at least two entries are needed.
func (m *Manager) Undo(id uuid.UUID) (route.Route, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.routes[id]
	if !ok || len(s.undo) < 2 {
		return route.Route{}, ErrNothingToUndo
	}

	current := s.undo[len(s.undo)-1]
	s.undo = s.undo[:len(s.undo)-1]
	s.redo = append(s.redo, current.Clone())

	return s.undo[len(s.undo)-1].Clone(), nil
}

// Redo re-applies the most recently undone snapshot.
func (m *Manager) Redo(id uuid.UUID) (route.Route, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.routes[id]
	if !ok || len(s.redo) == 0 {
		return route.Route{}, ErrNothingToRedo
	}

	next := s.redo[len(s.redo)-1]
	s.redo = s.redo[:len(s.redo)-1]
	s.undo = append(s.undo, next.Clone())

	return next.Clone(), nil
}

// Depth returns the undo and redo stack sizes for a route.
func (m *Manager) Depth(id uuid.UUID) (undo, redo int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.routes[id]; ok {
		return len(s.undo), len(s.redo)
	}
	return 0, 0
}

// Forget drops all history for a route.
func (m *Manager) Forget(id uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.routes, id)
}

// Clear drops all history.
func (m *Manager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.routes = make(map[uuid.UUID]*stacks)
}

// Len returns the number of routes with history.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.routes)
}
