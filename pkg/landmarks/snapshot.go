package landmarks

import "spineforge/internal/models"

// Snapshot is an immutable copy of the store at one instant.
// The zero value has every landmark unplaced.
type Snapshot struct {
	points [models.NumLandmarks]models.Landmark
}

// SnapshotOf builds a snapshot from a set of placed points, mainly for tests
// and for callers that compute parameters without a live store
func SnapshotOf(placed map[models.LandmarkName]models.Point) Snapshot {
	var s Snapshot
	for i, name := range models.AllLandmarks() {
		s.points[i].Name = name
		if p, ok := placed[name]; ok {
			s.points[i].Point = p
			s.points[i].Placed = true
		}
	}
	return s
}

// Get returns the landmark state and whether it is placed
func (s Snapshot) Get(name models.LandmarkName) (models.Landmark, bool) {
	idx := name.Index()
	if idx < 0 {
		return models.Landmark{Name: name}, false
	}
	lm := s.points[idx]
	lm.Name = name
	return lm, lm.Placed
}

// Point returns the coordinate of a placed landmark
func (s Snapshot) Point(name models.LandmarkName) (models.Point, bool) {
	lm, ok := s.Get(name)
	return lm.Point, ok
}

// Missing returns the names in required that are not placed, in the given order
func (s Snapshot) Missing(required []models.LandmarkName) []models.LandmarkName {
	var missing []models.LandmarkName
	for _, name := range required {
		if _, ok := s.Get(name); !ok {
			missing = append(missing, name)
		}
	}
	return missing
}

// Landmarks returns every landmark state keyed by name
func (s Snapshot) Landmarks() map[models.LandmarkName]models.Landmark {
	out := make(map[models.LandmarkName]models.Landmark, len(s.points))
	for _, name := range models.AllLandmarks() {
		lm, _ := s.Get(name)
		out[name] = lm
	}
	return out
}

// PlacedCount returns how many landmarks are placed
func (s Snapshot) PlacedCount() int {
	n := 0
	for _, lm := range s.points {
		if lm.Placed {
			n++
		}
	}
	return n
}

// Diff returns the names whose placement or position differs between s and
// other, in canonical order
func (s Snapshot) Diff(other Snapshot) []models.LandmarkName {
	var changed []models.LandmarkName
	for i, name := range models.AllLandmarks() {
		a, b := s.points[i], other.points[i]
		if a.Placed != b.Placed || (a.Placed && a.Point != b.Point) {
			changed = append(changed, name)
		}
	}
	return changed
}
