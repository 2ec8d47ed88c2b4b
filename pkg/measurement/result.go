package measurement

import (
	"errors"
	"fmt"

	"spineforge/internal/models"
	"spineforge/pkg/geometry"
)

// ErrInsufficientLandmarks marks a parameter whose landmarks are not all placed
var ErrInsufficientLandmarks = errors.New("insufficient landmarks")

// ErrDegenerateGeometry marks a parameter whose defining points coincide
var ErrDegenerateGeometry = geometry.ErrDegenerateGeometry

// Placeholder is shown in place of an undefined value
const Placeholder = "--"

// Result is the computed state of one parameter.
// Value is only meaningful when Valid is true; it is zero otherwise.
type Result struct {
	Name  models.ParameterName
	Value float64
	Unit  models.Unit
	Valid bool

	// Scaled is false for lengths reported in pixels because no calibration exists
	Scaled bool

	// Err is ErrInsufficientLandmarks or ErrDegenerateGeometry for invalid results
	Err error

	// Missing lists unplaced dependencies when Err is ErrInsufficientLandmarks
	Missing []models.LandmarkName
}

// Format renders the value with the given number of decimals, or Placeholder
func (r Result) Format(precision int) string {
	if !r.Valid {
		return Placeholder
	}
	switch r.Unit {
	case models.Degrees:
		return fmt.Sprintf("%.*f%s", precision, r.Value, r.Unit)
	case models.Pixels:
		return fmt.Sprintf("%.*f %s (unscaled)", precision, r.Value, r.Unit)
	default:
		return fmt.Sprintf("%.*f %s", precision, r.Value, r.Unit)
	}
}

// VerticalReference records which vertical the angles were measured against
type VerticalReference string

const (
	ImageVertical    VerticalReference = "image"
	LandmarkVertical VerticalReference = "landmarks"
)

// CrossCheck compares the two pelvic incidence derivations
type CrossCheck struct {
	// Checked is true when both derivations are valid
	Checked bool

	Vector float64
	Sum    float64

	// Difference is Vector - Sum wrapped into (-180, 180]
	Difference float64

	// Agrees is true when |Difference| is within the calculator tolerance
	Agrees bool
}

// Results is the full parameter set computed from one landmark snapshot
type Results struct {
	// Params holds one entry per parameter in display order
	Params []Result

	CrossCheck CrossCheck
	Vertical   VerticalReference
}

// Get returns the result for a parameter
func (rs Results) Get(name models.ParameterName) (Result, bool) {
	for _, r := range rs.Params {
		if r.Name == name {
			return r, true
		}
	}
	return Result{Name: name, Err: ErrInsufficientLandmarks}, false
}

// Valid returns only the valid results, in display order
func (rs Results) Valid() []Result {
	var out []Result
	for _, r := range rs.Params {
		if r.Valid {
			out = append(out, r)
		}
	}
	return out
}

// Clone returns a deep copy of rs
func (rs Results) Clone() Results {
	out := rs
	out.Params = make([]Result, len(rs.Params))
	for i, r := range rs.Params {
		if r.Missing != nil {
			r.Missing = append([]models.LandmarkName(nil), r.Missing...)
		}
		out.Params[i] = r
	}
	return out
}

func (rs Results) index(name models.ParameterName) int {
	for i, r := range rs.Params {
		if r.Name == name {
			return i
		}
	}
	return -1
}
