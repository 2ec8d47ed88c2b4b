// Package calibration provides the pixel-to-length scale of the loaded image.
package calibration

import (
	"errors"
	"fmt"
	"math"

	"spineforge/internal/models"
)

var (
	// ErrNoPixelSpacing is returned when an image carries no spacing information
	ErrNoPixelSpacing = errors.New("no pixel spacing")

	// ErrInvalidSpacing is returned for zero, negative or non-finite spacings
	ErrInvalidSpacing = errors.New("invalid pixel spacing")
)

// Source records where a calibration came from
type Source string

const (
	SourceNone      Source = "none"
	SourceManual    Source = "manual"
	SourceDICOM     Source = "dicom"
	SourceReference Source = "reference"
)

// Calibration is the physical size of one pixel in millimetres
type Calibration struct {
	// RowSpacing is the distance between rows, i.e. along image y
	RowSpacing float64

	// ColSpacing is the distance between columns, i.e. along image x
	ColSpacing float64

	Source Source
}

// Unscaled returns the identity calibration used when nothing better is known.
// Lengths computed with it are in pixels.
func Unscaled() Calibration {
	return Calibration{RowSpacing: 1, ColSpacing: 1, Source: SourceNone}
}

// Calibrated reports whether lengths can be reported in millimetres
func (c Calibration) Calibrated() bool {
	return c.Source != SourceNone && c.Source != ""
}

// LengthUnit returns the unit lengths are reported in
func (c Calibration) LengthUnit() models.Unit {
	if c.Calibrated() {
		return models.Millimetres
	}
	return models.Pixels
}

// Validate checks that both spacings are positive and finite
func (c Calibration) Validate() error {
	if !validSpacing(c.RowSpacing) || !validSpacing(c.ColSpacing) {
		return fmt.Errorf("%w: row %v, col %v", ErrInvalidSpacing, c.RowSpacing, c.ColSpacing)
	}
	return nil
}

func (c Calibration) String() string {
	if !c.Calibrated() {
		return "unscaled (px)"
	}
	return fmt.Sprintf("%.4f x %.4f mm/px (%s)", c.RowSpacing, c.ColSpacing, c.Source)
}

// Manual builds a calibration from user supplied spacings
func Manual(rowSpacing, colSpacing float64) (Calibration, error) {
	c := Calibration{RowSpacing: rowSpacing, ColSpacing: colSpacing, Source: SourceManual}
	if err := c.Validate(); err != nil {
		return Unscaled(), err
	}
	return c, nil
}

// FromReference derives an isotropic calibration from two image points whose
// real separation is known, e.g. the ends of a calibration marker
func FromReference(p, q models.Point, knownMM float64) (Calibration, error) {
	if !validSpacing(knownMM) {
		return Unscaled(), fmt.Errorf("%w: reference length %v", ErrInvalidSpacing, knownMM)
	}
	px := math.Hypot(q.X-p.X, q.Y-p.Y)
	if px == 0 {
		return Unscaled(), fmt.Errorf("%w: reference points coincide", ErrInvalidSpacing)
	}
	s := knownMM / px
	return Calibration{RowSpacing: s, ColSpacing: s, Source: SourceReference}, nil
}

func validSpacing(v float64) bool {
	return v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}
