// Package session ties the landmark store to the parameter calculator for
// one loaded image. A Session subscribes to its store and recomputes the
// affected parameters synchronously on every change, so readers always see
// results computed from a single consistent snapshot.
package session

import (
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"spineforge/internal/models"
	"spineforge/pkg/calibration"
	"spineforge/pkg/geometry"
	"spineforge/pkg/landmarks"
	"spineforge/pkg/measurement"
	"spineforge/pkg/metrics"
)

// Session is the measurement state of the currently loaded image.
//
// Each recomputation diffs the store snapshot against the one the current
// results were computed from, so edits that land between an event and its
// recomputation are picked up by whichever pass runs first.
type Session struct {
	id    string
	store *landmarks.Store
	log   *logrus.Entry
	rec   *metrics.Recorder

	mu          sync.Mutex
	cal         calibration.Calibration
	facing      geometry.Facing
	piTolerance float64
	calc        *measurement.Calculator
	results     measurement.Results
	snap        landmarks.Snapshot
	listeners   map[int]func(measurement.Results)
	nextID      int
	unsubscribe func()
}

// Option configures a Session
type Option func(*Session)

// WithLogger sets the logger; the session adds its id as a field
func WithLogger(l *logrus.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.log = logrus.NewEntry(l)
		}
	}
}

// WithMetrics attaches a metrics recorder
func WithMetrics(r *metrics.Recorder) Option {
	return func(s *Session) { s.rec = r }
}

// WithCalibration sets the initial calibration
func WithCalibration(c calibration.Calibration) Option {
	return func(s *Session) { s.cal = c }
}

// WithFacing sets which way the patient faces
func WithFacing(f geometry.Facing) Option {
	return func(s *Session) { s.facing = f }
}

// WithPITolerance sets the pelvic incidence cross-check tolerance in degrees
func WithPITolerance(deg float64) Option {
	return func(s *Session) { s.piTolerance = deg }
}

// New creates a session with every landmark unplaced
func New(opts ...Option) *Session {
	s := &Session{
		id:          uuid.NewString(),
		store:       landmarks.NewStore(),
		log:         logrus.NewEntry(logrus.StandardLogger()),
		cal:         calibration.Unscaled(),
		facing:      geometry.FacingLeft,
		piTolerance: measurement.DefaultPITolerance,
		listeners:   make(map[int]func(measurement.Results)),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.WithField("session", s.id)
	s.rebuild()
	s.snap = s.store.Snapshot()
	s.results = s.calc.Compute(s.snap)
	s.unsubscribe = s.store.Subscribe(s.onChange)
	return s
}

// ID returns the unique session identifier
func (s *Session) ID() string { return s.id }

// Store returns the landmark store owned by the session
func (s *Session) Store() *landmarks.Store { return s.store }

// Close detaches the session from its store. Further edits are not measured.
func (s *Session) Close() {
	s.unsubscribe()
}

// Place sets a landmark from a viewport click
func (s *Session) Place(name models.LandmarkName, p models.Point) error {
	return s.store.Set(name, p)
}

// Clear unsets a single landmark
func (s *Session) Clear(name models.LandmarkName) error {
	return s.store.Clear(name)
}

// Reset unsets every landmark
func (s *Session) Reset() {
	s.store.ResetAll()
}

// LoadImage starts measuring a new image: the calibration is replaced and
// every landmark is unset
func (s *Session) LoadImage(c calibration.Calibration) {
	s.mu.Lock()
	s.cal = c
	s.rebuild()
	cal := s.calc.Calibration()
	s.mu.Unlock()

	s.log.WithField("calibration", cal.String()).Info("image loaded")
	s.store.ResetAll()
}

// SetCalibration changes the pixel spacing and recomputes every parameter
func (s *Session) SetCalibration(c calibration.Calibration) {
	s.reconfigure(func() { s.cal = c })
}

// SetFacing changes the patient facing and recomputes every parameter
func (s *Session) SetFacing(f geometry.Facing) {
	s.reconfigure(func() { s.facing = f })
}

// Calibration returns the calibration in use
func (s *Session) Calibration() calibration.Calibration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calc.Calibration()
}

// Facing returns the patient facing in use
func (s *Session) Facing() geometry.Facing {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calc.Facing()
}

// rebuild replaces the calculator from the current settings; s.mu must be held
func (s *Session) rebuild() {
	s.calc = measurement.New(
		measurement.WithCalibration(s.cal),
		measurement.WithFacing(s.facing),
		measurement.WithPITolerance(s.piTolerance),
	)
}

func (s *Session) reconfigure(apply func()) {
	s.mu.Lock()
	apply()
	s.rebuild()
	s.mu.Unlock()

	s.update(func(calc *measurement.Calculator, _ measurement.Results, _, snap landmarks.Snapshot) measurement.Results {
		return calc.Compute(snap)
	})
}

// Results returns a copy of the current parameter set
func (s *Session) Results() measurement.Results {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.results.Clone()
}

// Result returns the current value of one parameter
func (s *Session) Result(name models.ParameterName) (measurement.Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.results.Get(name)
}

// Landmark returns the placement state of one landmark
func (s *Session) Landmark(name models.LandmarkName) (models.Landmark, error) {
	return s.store.Get(name)
}

// Landmarks returns every landmark state for drawing markers and lines
func (s *Session) Landmarks() map[models.LandmarkName]models.Landmark {
	return s.store.Snapshot().Landmarks()
}

// OnUpdate registers fn to receive the results after every recomputation.
// fn runs on the goroutine that changed the store, after the session lock
// is released.
func (s *Session) OnUpdate(fn func(measurement.Results)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

func (s *Session) onChange(c landmarks.Change) {
	s.rec.LandmarkEvent(c.Kind.String())
	if c.Kind == landmarks.Placed {
		if lm, err := s.store.Get(c.Names[0]); err == nil {
			s.log.WithFields(logrus.Fields{
				"landmark": lm.Name,
				"x":        lm.Point.X,
				"y":        lm.Point.Y,
			}).Debug("landmark placed")
		}
	}

	s.update(func(calc *measurement.Calculator, prev measurement.Results, last, snap landmarks.Snapshot) measurement.Results {
		if c.Kind == landmarks.Reset {
			return calc.Compute(snap)
		}
		return calc.Recompute(prev, snap, snap.Diff(last)...)
	})
}

// update runs one snapshot-then-compute pass and notifies listeners.
// last is the snapshot prev was computed from.
func (s *Session) update(compute func(calc *measurement.Calculator, prev measurement.Results, last, snap landmarks.Snapshot) measurement.Results) {
	s.mu.Lock()
	snap := s.store.Snapshot()
	prev := s.results
	s.results = compute(s.calc, prev, s.snap, snap)
	s.snap = snap
	current := s.results.Clone()
	listeners := s.listenerList()
	s.mu.Unlock()

	s.rec.ObserveResults(current, snap.PlacedCount())
	s.logChanges(prev, current)

	for _, fn := range listeners {
		fn(current.Clone())
	}
}

func (s *Session) listenerList() []func(measurement.Results) {
	ids := make([]int, 0, len(s.listeners))
	for id := range s.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	out := make([]func(measurement.Results), len(ids))
	for i, id := range ids {
		out[i] = s.listeners[id]
	}
	return out
}

func (s *Session) logChanges(prev, current measurement.Results) {
	valid := 0
	for _, r := range current.Params {
		if r.Valid {
			valid++
		}
		old, _ := prev.Get(r.Name)
		if r.Err == measurement.ErrDegenerateGeometry && old.Err != measurement.ErrDegenerateGeometry {
			s.log.WithField("parameter", r.Name.DisplayName()).Warn("coincident landmarks, parameter undefined")
		}
	}
	s.log.WithFields(logrus.Fields{
		"valid":    valid,
		"vertical": current.Vertical,
	}).Debug("parameters recomputed")

	cc := current.CrossCheck
	if cc.Checked && !cc.Agrees && (!prev.CrossCheck.Checked || prev.CrossCheck.Agrees || prev.CrossCheck.Difference != cc.Difference) {
		s.log.WithFields(logrus.Fields{
			"pi_vector":  cc.Vector,
			"pi_sum":     cc.Sum,
			"difference": cc.Difference,
		}).Warn("pelvic incidence derivations disagree")
	}
}
