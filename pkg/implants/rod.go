package implants

import (
	"fmt"
	"sort"
	"strings"

	"gonum.org/v1/gonum/interp"
	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/gonum/spatial/r3"

	"spineforge/internal/models"
	"spineforge/pkg/calibration"
	"spineforge/pkg/geometry"
	"spineforge/pkg/stl"
)

const (
	// RodSamples is the number of points a rod path is sampled at
	RodSamples = 100

	// DefaultRodDiameter is the rod diameter in mm when none is chosen
	DefaultRodDiameter = 5.5
)

// Side is the side of the spine a rod is placed on
type Side string

const (
	SideLeft  Side = "Left"
	SideRight Side = "Right"
	SideBoth  Side = "Both"
)

// ParseSide accepts left, right or both, case-insensitive
func ParseSide(s string) (Side, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "both":
		return SideBoth, nil
	case "left":
		return SideLeft, nil
	case "right":
		return SideRight, nil
	default:
		return "", fmt.Errorf("%w: rod side %q", ErrInvalidImplant, s)
	}
}

// Rod connects the screw heads from cranial to caudal
type Rod struct {
	Points   []models.Point
	Side     Side
	Diameter float64
}

// Rod builds the rod through every screw head, ordered top to bottom on the
// image. Screws at the same height keep their placement order.
func (c *Construct) Rod(side Side, diameter float64) (Rod, error) {
	if c == nil || len(c.Screws) == 0 {
		return Rod{}, ErrNoScrews
	}
	if !positive(diameter) {
		return Rod{}, fmt.Errorf("%w: rod diameter %v", ErrInvalidImplant, diameter)
	}

	heads := make([]models.Point, len(c.Screws))
	for i, s := range c.Screws {
		heads[i] = s.Head
	}
	sort.SliceStable(heads, func(i, j int) bool { return heads[i].Y < heads[j].Y })
	return Rod{Points: heads, Side: side, Diameter: diameter}, nil
}

// Path samples the rod centre line in physical coordinates with y pointing up.
// Three or more distinct heads are joined by a natural cubic spline
// parameterised by chord length, two by a straight segment.
func (r Rod) Path(cal calibration.Calibration, samples int) ([]r2.Vec, error) {
	if samples < 2 {
		return nil, fmt.Errorf("%w: %d rod samples", ErrInvalidImplant, samples)
	}
	if err := cal.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidImplant, err)
	}

	f := geometry.NewFrame(cal.RowSpacing, cal.ColSpacing, geometry.FacingLeft)
	var pts []r2.Vec
	for _, p := range r.Points {
		v := f.Physical(p)
		if !finite(v.X) || !finite(v.Y) {
			return nil, fmt.Errorf("%w: rod point (%v, %v)", ErrInvalidImplant, p.X, p.Y)
		}
		if !contains(pts, v) {
			pts = append(pts, v)
		}
	}
	if len(pts) < 2 {
		return nil, fmt.Errorf("%w: rod needs two distinct screw heads", ErrInvalidImplant)
	}

	ts := make([]float64, len(pts))
	xs := make([]float64, len(pts))
	ys := make([]float64, len(pts))
	for i, p := range pts {
		xs[i], ys[i] = p.X, p.Y
		if i > 0 {
			ts[i] = ts[i-1] + r2.Norm(r2.Sub(p, pts[i-1]))
			if !(ts[i] > ts[i-1]) || !finite(ts[i]) {
				return nil, fmt.Errorf("%w: rod points too close or too far apart", ErrInvalidImplant)
			}
		}
	}

	fx, fy, err := fit(ts, xs, ys)
	if err != nil {
		return nil, fmt.Errorf("error fitting rod curve: %w", err)
	}

	total := ts[len(ts)-1]
	out := make([]r2.Vec, samples)
	for i := range out {
		t := total * float64(i) / float64(samples-1)
		out[i] = r2.Vec{X: fx.Predict(t), Y: fy.Predict(t)}
	}
	return out, nil
}

// Mesh builds a closed tube of the rod diameter around its path, in the
// image plane (z = 0). The diameter is taken in the calibration's length unit.
func (r Rod) Mesh(cal calibration.Calibration) ([]stl.Triangle, error) {
	path, err := r.Path(cal, RodSamples)
	if err != nil {
		return nil, err
	}
	centre := make([]r3.Vec, len(path))
	for i, p := range path {
		centre[i] = r3.Vec{X: p.X, Y: p.Y}
	}
	return stl.Tube(centre, r.Diameter/2, stl.DefaultTubeSegments)
}

// SaveSTL writes the rod mesh to filename
func (r Rod) SaveSTL(filename string, cal calibration.Calibration) error {
	triangles, err := r.Mesh(cal)
	if err != nil {
		return err
	}
	return stl.SaveToSTL(filename, triangles)
}

func fit(ts, xs, ys []float64) (fx, fy interp.Predictor, err error) {
	if len(ts) < 3 {
		var lx, ly interp.PiecewiseLinear
		_ = lx.Fit(ts, xs)
		_ = ly.Fit(ts, ys)
		return lx, ly, nil
	}
	var cx, cy interp.NaturalCubic
	if err := cx.Fit(ts, xs); err != nil {
		return nil, nil, err
	}
	if err := cy.Fit(ts, ys); err != nil {
		return nil, nil, err
	}
	return &cx, &cy, nil
}

func contains(pts []r2.Vec, v r2.Vec) bool {
	for _, p := range pts {
		if p == v {
			return true
		}
	}
	return false
}
