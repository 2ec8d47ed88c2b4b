// Package landmarks holds the anatomical points placed on the current image.
// The Store owns the placed/unplaced state of every landmark and notifies
// subscribers after each change. Consumers read immutable Snapshots.
package landmarks

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"spineforge/internal/models"
)

// ErrInvalidName is returned for names outside the closed landmark set
var ErrInvalidName = models.ErrInvalidName

// ErrNonFiniteCoordinate is returned when a coordinate is NaN or infinite
var ErrNonFiniteCoordinate = errors.New("non-finite coordinate")

// ChangeKind describes what happened to a landmark
type ChangeKind int

const (
	// Placed means the landmark was set or moved
	Placed ChangeKind = iota
	// Cleared means a single landmark was unset
	Cleared
	// Reset means every landmark was unset, e.g. on image reload
	Reset
)

func (k ChangeKind) String() string {
	switch k {
	case Placed:
		return "placed"
	case Cleared:
		return "cleared"
	case Reset:
		return "reset"
	default:
		return fmt.Sprintf("ChangeKind(%d)", int(k))
	}
}

// Change is emitted to subscribers after a mutation has been committed
type Change struct {
	Kind ChangeKind

	// Names lists the affected landmarks; a Reset names all of them
	Names []models.LandmarkName
}

// Listener receives change events
type Listener func(Change)

// Store is the single owner of landmark placement state.
// It is safe for concurrent use; listeners run outside the internal lock,
// in subscription order, on the goroutine that made the change.
type Store struct {
	mu        sync.RWMutex
	points    [models.NumLandmarks]models.Landmark
	listeners map[int]Listener
	nextID    int
}

// NewStore creates a store with every landmark unplaced
func NewStore() *Store {
	s := &Store{listeners: make(map[int]Listener)}
	for i, name := range models.AllLandmarks() {
		s.points[i] = models.Landmark{Name: name}
	}
	return s
}

// Set places or moves a landmark. Coordinates outside the image are accepted.
func (s *Store) Set(name models.LandmarkName, p models.Point) error {
	idx := name.Index()
	if idx < 0 {
		return fmt.Errorf("%w: landmark %q", ErrInvalidName, name)
	}
	if !finite(p.X) || !finite(p.Y) {
		return fmt.Errorf("%w: %s at (%v, %v)", ErrNonFiniteCoordinate, name, p.X, p.Y)
	}

	s.mu.Lock()
	s.points[idx] = models.Landmark{Name: name, Point: p, Placed: true}
	s.mu.Unlock()

	s.notify(Change{Kind: Placed, Names: []models.LandmarkName{name}})
	return nil
}

// Clear unsets a single landmark. Clearing an unplaced landmark still notifies.
func (s *Store) Clear(name models.LandmarkName) error {
	idx := name.Index()
	if idx < 0 {
		return fmt.Errorf("%w: landmark %q", ErrInvalidName, name)
	}

	s.mu.Lock()
	s.points[idx] = models.Landmark{Name: name}
	s.mu.Unlock()

	s.notify(Change{Kind: Cleared, Names: []models.LandmarkName{name}})
	return nil
}

// ResetAll unsets every landmark
func (s *Store) ResetAll() {
	names := models.AllLandmarks()

	s.mu.Lock()
	for i, name := range names {
		s.points[i] = models.Landmark{Name: name}
	}
	s.mu.Unlock()

	s.notify(Change{Kind: Reset, Names: names})
}

// Get returns the placement state of a landmark
func (s *Store) Get(name models.LandmarkName) (models.Landmark, error) {
	idx := name.Index()
	if idx < 0 {
		return models.Landmark{}, fmt.Errorf("%w: landmark %q", ErrInvalidName, name)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.points[idx], nil
}

// Snapshot returns an immutable copy of every landmark state
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{points: s.points}
}

// Subscribe registers l for change events and returns a function that removes it
func (s *Store) Subscribe(l Listener) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = l
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners, id)
			s.mu.Unlock()
		})
	}
}

func (s *Store) notify(c Change) {
	s.mu.RLock()
	ids := make([]int, 0, len(s.listeners))
	for id := range s.listeners {
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	// subscription order
	sort.Ints(ids)
	for _, id := range ids {
		s.mu.RLock()
		l, ok := s.listeners[id]
		s.mu.RUnlock()
		if ok {
			l(c)
		}
	}
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
