// Package measurement computes sagittal alignment parameters from a landmark
// snapshot.
//
// Every parameter is a pure function of the snapshot, the calibration and the
// patient facing. A parameter whose landmarks are not all placed, or whose
// defining points coincide or overflow, is reported invalid and never carries
// a value. A vertical endplate has slope 90 whichever end is higher.
//
// Sign conventions (degrees unless noted):
//
//	CBVA             chin-brow line from vertical, + chin-up          (-90, 90]
//	slopes           endplate from horizontal, + posterior end higher (-90, 90]
//	C2-C7 lordosis   slope(C7) - slope(C2), + lordotic                (-180, 180)
//	lumbar lordosis  slope(L5) - slope(L1), + lordotic                (-180, 180)
//	pelvic tilt      hip axis -> S1 midpoint from vertical, + sacrum posterior (-180, 180]
//	PI (vector)      endplate normal -> line to hip axis              (-180, 180]
//	PI (PT+SS)       pelvic tilt + sacral slope                       (-270, 270)
//	C2-C7 SVA        C2 centroid anterior of C7 posterior corner, + anterior (length)
//	SVA              C7 centroid anterior of S1 posterior corner, + anterior (length)
package measurement

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/floats/scalar"
	"gonum.org/v1/gonum/spatial/r2"

	"spineforge/internal/models"
	"spineforge/pkg/calibration"
	"spineforge/pkg/geometry"
	"spineforge/pkg/landmarks"
)

// DefaultPITolerance is the largest PI disagreement, in degrees, still
// considered consistent
const DefaultPITolerance = 1.0

// Calculator maps landmark snapshots to parameter results.
// It holds no landmark state and may be shared.
type Calculator struct {
	calibration calibration.Calibration
	facing      geometry.Facing
	piTolerance float64
}

// Option configures a Calculator
type Option func(*Calculator)

// WithCalibration sets the pixel spacing. Invalid spacings fall back to unscaled.
func WithCalibration(c calibration.Calibration) Option {
	return func(calc *Calculator) {
		if c.Validate() != nil {
			c = calibration.Unscaled()
		}
		calc.calibration = c
	}
}

// WithFacing sets which way the patient faces on the image
func WithFacing(f geometry.Facing) Option {
	return func(calc *Calculator) { calc.facing = f }
}

// WithPITolerance sets the tolerance for the pelvic incidence cross-check
func WithPITolerance(deg float64) Option {
	return func(calc *Calculator) {
		if deg >= 0 && !math.IsNaN(deg) {
			calc.piTolerance = deg
		}
	}
}

// New creates a calculator; without options it is unscaled and facing left
func New(opts ...Option) *Calculator {
	c := &Calculator{
		calibration: calibration.Unscaled(),
		facing:      geometry.FacingLeft,
		piTolerance: DefaultPITolerance,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Calibration returns the calibration in use
func (c *Calculator) Calibration() calibration.Calibration { return c.calibration }

// Facing returns the patient facing in use
func (c *Calculator) Facing() geometry.Facing { return c.facing }

// PITolerance returns the cross-check tolerance in degrees
func (c *Calculator) PITolerance() float64 { return c.piTolerance }

// Compute evaluates every parameter against s
func (c *Calculator) Compute(s landmarks.Snapshot) Results {
	frame, vertical := c.frame(s)
	rs := Results{Params: make([]Result, len(definitions)), Vertical: vertical}
	for i, d := range definitions {
		rs.Params[i] = c.evaluate(d, frame, s, rs)
	}
	rs.CrossCheck = c.crossCheck(rs)
	return rs
}

// Recompute refreshes only the parameters that depend on the changed
// landmarks, reusing prev for the rest. prev must have been produced by this
// calculator; a change to a vertical reference landmark recomputes everything.
func (c *Calculator) Recompute(prev Results, s landmarks.Snapshot, changed ...models.LandmarkName) Results {
	if len(prev.Params) != len(definitions) {
		return c.Compute(s)
	}

	affected := make(map[models.ParameterName]bool)
	for _, name := range changed {
		if name.IsFrameReference() {
			return c.Compute(s)
		}
		for _, p := range Dependents(name) {
			affected[p] = true
		}
	}

	rs := prev.Clone()
	if len(affected) == 0 {
		return rs
	}

	frame, vertical := c.frame(s)
	rs.Vertical = vertical
	for i, d := range definitions {
		if affected[d.Name] {
			rs.Params[i] = c.evaluate(d, frame, s, rs)
		}
	}
	rs.CrossCheck = c.crossCheck(rs)
	return rs
}

func (c *Calculator) frame(s landmarks.Snapshot) (geometry.Frame, VerticalReference) {
	f := geometry.NewFrame(c.calibration.RowSpacing, c.calibration.ColSpacing, c.facing)

	top, okTop := s.Point(models.VerticalTop)
	bottom, okBottom := s.Point(models.VerticalBottom)
	if okTop && okBottom {
		if vf, err := f.WithVertical(top, bottom); err == nil {
			return vf, LandmarkVertical
		}
	}
	return f, ImageVertical
}

func (c *Calculator) evaluate(d Definition, f geometry.Frame, s landmarks.Snapshot, rs Results) Result {
	r := Result{Name: d.Name, Unit: models.Degrees, Scaled: true}
	if d.Kind == Length {
		r.Unit = c.calibration.LengthUnit()
		r.Scaled = c.calibration.Calibrated()
	}

	if missing := s.Missing(Dependencies(d.Name)); len(missing) > 0 {
		r.Err = ErrInsufficientLandmarks
		r.Missing = missing
		return r
	}

	var (
		v   float64
		err error
	)
	if len(d.DerivedFrom) > 0 {
		v, err = derive(d, rs)
	} else {
		v, err = formulas[d.Name](f, s)
	}
	if err != nil {
		r.Err = classify(err)
		return r
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		r.Err = ErrDegenerateGeometry
		return r
	}

	r.Value = v
	r.Valid = true
	return r
}

// derive sums the parent parameters; PI (PT+SS) is the only derived parameter
func derive(d Definition, rs Results) (float64, error) {
	var sum float64
	for _, parent := range d.DerivedFrom {
		i := rs.index(parent)
		if i < 0 {
			return 0, ErrInsufficientLandmarks
		}
		p := rs.Params[i]
		if !p.Valid {
			return 0, p.Err
		}
		sum += p.Value
	}
	return sum, nil
}

func classify(err error) error {
	if errors.Is(err, geometry.ErrDegenerateGeometry) {
		return ErrDegenerateGeometry
	}
	return ErrInsufficientLandmarks
}

func (c *Calculator) crossCheck(rs Results) CrossCheck {
	vec, okVec := rs.Get(models.PIVector)
	sum, okSum := rs.Get(models.PISum)
	if !okVec || !okSum || !vec.Valid || !sum.Valid {
		return CrossCheck{}
	}
	diff := geometry.Normalize180(vec.Value - sum.Value)
	return CrossCheck{
		Checked:    true,
		Vector:     vec.Value,
		Sum:        sum.Value,
		Difference: diff,
		Agrees:     scalar.EqualWithinAbs(diff, 0, c.piTolerance),
	}
}

type formula func(f geometry.Frame, s landmarks.Snapshot) (float64, error)

var formulas = map[models.ParameterName]formula{
	models.CBVA:             cbva,
	models.CervicalLordosis: lordosis(models.C2Anterior, models.C2Posterior, models.C7Anterior, models.C7Posterior),
	models.CervicalSVA:      cervicalSVA,
	models.T1Slope:          slope(models.T1Anterior, models.T1Posterior),
	models.LumbarLordosis:   lordosis(models.L1Anterior, models.L1Posterior, models.L5Anterior, models.L5Posterior),
	models.SacralSlope:      slope(models.S1Anterior, models.S1Posterior),
	models.PelvicTilt:       pelvicTilt,
	models.PIVector:         pelvicIncidence,
	models.GlobalSVA:        globalSVA,
}

func point(s landmarks.Snapshot, name models.LandmarkName) models.Point {
	p, _ := s.Point(name)
	return p
}

func centroid(s landmarks.Snapshot, a, b models.LandmarkName) models.Point {
	return point(s, a).Midpoint(point(s, b))
}

func hipAxis(s landmarks.Snapshot) models.Point {
	return centroid(s, models.HipLeft, models.HipRight)
}

func cbva(f geometry.Frame, s landmarks.Snapshot) (float64, error) {
	return f.LineTiltFromVertical(point(s, models.Chin), point(s, models.Brow))
}

func slope(ant, post models.LandmarkName) formula {
	return func(f geometry.Frame, s landmarks.Snapshot) (float64, error) {
		return f.Slope(point(s, ant), point(s, post))
	}
}

// lordosis is the caudal endplate slope minus the cranial one
func lordosis(cranialAnt, cranialPost, caudalAnt, caudalPost models.LandmarkName) formula {
	return func(f geometry.Frame, s landmarks.Snapshot) (float64, error) {
		cranial, err := f.Slope(point(s, cranialAnt), point(s, cranialPost))
		if err != nil {
			return 0, err
		}
		caudal, err := f.Slope(point(s, caudalAnt), point(s, caudalPost))
		if err != nil {
			return 0, err
		}
		return caudal - cranial, nil
	}
}

func cervicalSVA(f geometry.Frame, s landmarks.Snapshot) (float64, error) {
	c2 := centroid(s, models.C2Anterior, models.C2Posterior)
	return f.Offset(point(s, models.C7Posterior), c2), nil
}

func globalSVA(f geometry.Frame, s landmarks.Snapshot) (float64, error) {
	c7 := centroid(s, models.C7Anterior, models.C7Posterior)
	return f.Offset(point(s, models.S1Posterior), c7), nil
}

func pelvicTilt(f geometry.Frame, s landmarks.Snapshot) (float64, error) {
	ant, post := point(s, models.S1Anterior), point(s, models.S1Posterior)
	if f.IsDegenerate(ant, post) {
		return 0, geometry.ErrDegenerateGeometry
	}
	return f.TiltFromVertical(hipAxis(s), ant.Midpoint(post))
}

// pelvicIncidence measures PI without going through PT or SS: the angle from
// the sacral endplate normal (pointing into the sacrum) to the line from the
// endplate midpoint to the hip axis
func pelvicIncidence(f geometry.Frame, s landmarks.Snapshot) (float64, error) {
	ant, post := point(s, models.S1Anterior), point(s, models.S1Posterior)
	if f.IsDegenerate(ant, post) {
		return 0, geometry.ErrDegenerateGeometry
	}
	endplate := r2.Unit(f.Local(post, ant))
	normal := r2.Vec{X: endplate.Y, Y: -endplate.X}
	toHip := f.Local(ant.Midpoint(post), hipAxis(s))
	return geometry.SignedAngle(normal, toHip)
}
