// Package geometry provides the patient reference frame used by every
// sagittal measurement.
//
// Image coordinates are scaled by the pixel spacing into physical
// coordinates with the vertical axis pointing up. Vectors are then expressed
// in patient terms: a forward (anterior) component and an up component. The
// up axis is the image vertical unless a true-vertical reference is supplied,
// and the forward axis depends on which way the patient faces on the image.
package geometry

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/spatial/r2"

	"spineforge/internal/models"
)

// ErrDegenerateGeometry is returned when a line or vector has zero length
// or its components are not finite
var ErrDegenerateGeometry = errors.New("degenerate geometry")

// degenerateLength is the physical length below which two points coincide
const degenerateLength = 1e-9

// Facing is the direction the patient faces on the image
type Facing int

const (
	// FacingLeft means anterior points towards decreasing image x
	FacingLeft Facing = iota
	// FacingRight means anterior points towards increasing image x
	FacingRight
)

func (f Facing) String() string {
	if f == FacingRight {
		return "right"
	}
	return "left"
}

// ParseFacing accepts "left" or "right", case-insensitive
func ParseFacing(s string) (Facing, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "left":
		return FacingLeft, nil
	case "right":
		return FacingRight, nil
	default:
		return FacingLeft, fmt.Errorf("unknown facing %q (must be left or right)", s)
	}
}

func (f Facing) sign() float64 {
	if f == FacingRight {
		return 1
	}
	return -1
}

// Frame converts image points into patient-oriented physical vectors
type Frame struct {
	rowSpacing float64
	colSpacing float64
	facing     Facing

	up      r2.Vec
	forward r2.Vec
}

// NewFrame builds a frame aligned with the image axes.
// Spacings are physical units per pixel along rows (y) and columns (x).
func NewFrame(rowSpacing, colSpacing float64, facing Facing) Frame {
	f := Frame{
		rowSpacing: rowSpacing,
		colSpacing: colSpacing,
		facing:     facing,
	}
	f.setUp(r2.Vec{X: 0, Y: 1})
	return f
}

// WithVertical returns a copy of f whose up axis runs from bottom to top.
// The input frame is returned unchanged with ErrDegenerateGeometry if the
// points coincide.
func (f Frame) WithVertical(top, bottom models.Point) (Frame, error) {
	v := r2.Sub(f.Physical(top), f.Physical(bottom))
	if !usable(v) {
		return f, fmt.Errorf("%w: vertical reference points coincide or overflow", ErrDegenerateGeometry)
	}
	f.setUp(r2.Unit(v))
	return f, nil
}

func (f *Frame) setUp(up r2.Vec) {
	f.up = up
	// clockwise perpendicular of up, flipped towards anterior
	f.forward = r2.Scale(f.facing.sign(), r2.Vec{X: up.Y, Y: -up.X})
}

// Facing returns the facing the frame was built with
func (f Frame) Facing() Facing { return f.facing }

// Physical maps an image point to physical coordinates with y pointing up
func (f Frame) Physical(p models.Point) r2.Vec {
	return r2.Vec{X: p.X * f.colSpacing, Y: -p.Y * f.rowSpacing}
}

// Local returns the vector from -> to in patient coordinates:
// X is the anterior component and Y the superior component.
func (f Frame) Local(from, to models.Point) r2.Vec {
	d := r2.Sub(f.Physical(to), f.Physical(from))
	return r2.Vec{X: r2.Dot(d, f.forward), Y: r2.Dot(d, f.up)}
}

// Distance returns the physical length between p and q
func (f Frame) Distance(p, q models.Point) float64 {
	return r2.Norm(r2.Sub(f.Physical(q), f.Physical(p)))
}

// Offset returns the anterior distance of to relative to from.
// It is positive when to lies anterior to from.
func (f Frame) Offset(from, to models.Point) float64 {
	return f.Local(from, to).X
}

// Slope returns the angle of the line through anterior and posterior
// relative to the horizontal, in degrees within (-90, 90].
// It is positive when the posterior end is higher. An endplate with no
// anterior extent is an undirected vertical line and always reports 90,
// whichever end is higher.
func (f Frame) Slope(anterior, posterior models.Point) (float64, error) {
	v := f.Local(anterior, posterior)
	if !usable(v) {
		return 0, fmt.Errorf("%w: endplate points coincide or overflow", ErrDegenerateGeometry)
	}
	if math.Abs(v.X) <= degenerateLength {
		return 90, nil
	}
	return degrees(math.Atan2(v.Y, math.Abs(v.X))), nil
}

// TiltFromVertical returns the angle of the vector from -> to measured from the
// up axis, in degrees within (-180, 180]. It is positive when to lies
// posterior to the vertical through from.
func (f Frame) TiltFromVertical(from, to models.Point) (float64, error) {
	v := f.Local(from, to)
	if !usable(v) {
		return 0, fmt.Errorf("%w: points coincide or overflow", ErrDegenerateGeometry)
	}
	return Normalize180(degrees(math.Atan2(-v.X, v.Y))), nil
}

// LineTiltFromVertical is TiltFromVertical for an undirected line,
// folded into (-90, 90]
func (f Frame) LineTiltFromVertical(from, to models.Point) (float64, error) {
	a, err := f.TiltFromVertical(from, to)
	if err != nil {
		return 0, err
	}
	return foldLine(a), nil
}

// SignedAngle returns the angle that rotates a onto b, counter-clockwise in
// patient coordinates (anterior, superior), in degrees within (-180, 180]
func SignedAngle(a, b r2.Vec) (float64, error) {
	if !usable(a) || !usable(b) {
		return 0, fmt.Errorf("%w: zero-length or non-finite vector", ErrDegenerateGeometry)
	}
	cross, dot := r2.Cross(a, b), r2.Dot(a, b)
	if !finite(cross) || !finite(dot) {
		return 0, fmt.Errorf("%w: angle overflows", ErrDegenerateGeometry)
	}
	return Normalize180(degrees(math.Atan2(cross, dot))), nil
}

// IsDegenerate reports whether the line through p and q has zero physical
// length or cannot be represented
func (f Frame) IsDegenerate(p, q models.Point) bool {
	return !usable(r2.Sub(f.Physical(q), f.Physical(p)))
}

// usable reports whether v has finite components and a non-zero, finite length
func usable(v r2.Vec) bool {
	if !finite(v.X) || !finite(v.Y) {
		return false
	}
	n := r2.Norm(v)
	return finite(n) && n > degenerateLength
}

func finite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}

func degrees(rad float64) float64 {
	return rad * 180 / math.Pi
}

// Normalize180 maps an angle in degrees into (-180, 180].
// Non-finite input is returned as is.
func Normalize180(a float64) float64 {
	if !finite(a) {
		return a
	}
	a = math.Mod(a, 360)
	if a > 180 {
		a -= 360
	} else if a <= -180 {
		a += 360
	}
	return a
}

// foldLine maps a line direction into (-90, 90]
func foldLine(a float64) float64 {
	a = Normalize180(a)
	if a > 90 {
		a -= 180
	} else if a <= -90 {
		a += 180
	}
	return a
}
