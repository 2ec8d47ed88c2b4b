// Package implants plans pedicle screws, interbody cages and the rod that
// connects the screw heads on a lateral image.
package implants

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"spineforge/internal/models"
	"spineforge/pkg/calibration"
	"spineforge/pkg/geometry"
	"spineforge/pkg/osteotomy"
)

var (
	// ErrInvalidImplant is returned for bad levels, sizes or coordinates
	ErrInvalidImplant = errors.New("invalid implant")

	// ErrNoScrews is returned when a rod is requested before any screw is placed
	ErrNoScrews = errors.New("no screws placed")

	// ErrNotFound is returned when deleting an implant index that does not exist
	ErrNotFound = errors.New("implant not found")
)

// Kind names an implant list
type Kind string

const (
	KindScrew Kind = "screw"
	KindCage  Kind = "cage"
)

// Screw is a pedicle screw from its head (entry point) to its tip
type Screw struct {
	Level osteotomy.Level
	Head  models.Point
	Tip   models.Point

	// Diameter is chosen by the surgeon, in mm
	Diameter float64

	// Length is the head to tip distance rounded to a whole unit,
	// in mm when the image is calibrated and pixels otherwise
	Length float64
	Unit   models.Unit
}

// CageSize is the catalogue size of an interbody cage
type CageSize struct {
	Width    float64
	Length   float64
	Height   float64
	Lordosis float64
}

// Cage is an interbody cage outlined by four corners in click order:
// inferior-left, inferior-right, superior-left, superior-right
type Cage struct {
	Level   osteotomy.Level
	Corners [4]models.Point
	CageSize
}

// Construct is the set of implants planned on one image
type Construct struct {
	Screws []Screw
	Cages  []Cage
}

// AddScrew records a screw from head to tip. The length is measured on the
// image with cal and rounded.
func (c *Construct) AddScrew(level string, head, tip models.Point, diameter float64, cal calibration.Calibration) (Screw, error) {
	lvl, err := parseLevel(level)
	if err != nil {
		return Screw{}, err
	}
	if !positive(diameter) {
		return Screw{}, fmt.Errorf("%w: screw diameter %v", ErrInvalidImplant, diameter)
	}
	if err := cal.Validate(); err != nil {
		return Screw{}, fmt.Errorf("%w: %w", ErrInvalidImplant, err)
	}

	f := geometry.NewFrame(cal.RowSpacing, cal.ColSpacing, geometry.FacingLeft)
	if f.IsDegenerate(head, tip) {
		return Screw{}, fmt.Errorf("%w: screw head and tip coincide", ErrInvalidImplant)
	}

	s := Screw{
		Level:    lvl,
		Head:     head,
		Tip:      tip,
		Diameter: diameter,
		Length:   math.Round(f.Distance(head, tip)),
		Unit:     cal.LengthUnit(),
	}
	c.Screws = append(c.Screws, s)
	return s, nil
}

// AddCage records a cage outlined by four corners
func (c *Construct) AddCage(level string, corners [4]models.Point, size CageSize) (Cage, error) {
	lvl, err := parseLevel(level)
	if err != nil {
		return Cage{}, err
	}
	if !positive(size.Width) || !positive(size.Length) || !positive(size.Height) {
		return Cage{}, fmt.Errorf("%w: cage size %vx%vx%v", ErrInvalidImplant, size.Width, size.Length, size.Height)
	}
	if size.Lordosis < 0 || size.Lordosis >= 90 || math.IsNaN(size.Lordosis) {
		return Cage{}, fmt.Errorf("%w: cage lordosis %v", ErrInvalidImplant, size.Lordosis)
	}
	for i, p := range corners {
		if !finite(p.X) || !finite(p.Y) {
			return Cage{}, fmt.Errorf("%w: cage corner %d at (%v, %v)", ErrInvalidImplant, i, p.X, p.Y)
		}
	}

	cage := Cage{Level: lvl, Corners: corners, CageSize: size}
	c.Cages = append(c.Cages, cage)
	return cage, nil
}

// Delete removes the implant at index i of the given list
func (c *Construct) Delete(kind Kind, i int) error {
	switch kind {
	case KindScrew:
		if i < 0 || i >= len(c.Screws) {
			return fmt.Errorf("%w: screw %d of %d", ErrNotFound, i, len(c.Screws))
		}
		c.Screws = append(c.Screws[:i], c.Screws[i+1:]...)
	case KindCage:
		if i < 0 || i >= len(c.Cages) {
			return fmt.Errorf("%w: cage %d of %d", ErrNotFound, i, len(c.Cages))
		}
		c.Cages = append(c.Cages[:i], c.Cages[i+1:]...)
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrNotFound, kind)
	}
	return nil
}

// Empty reports whether nothing has been planned
func (c *Construct) Empty() bool {
	return c == nil || len(c.Screws) == 0 && len(c.Cages) == 0
}

// Summary returns one numbered line per implant, grouped under "Screws:" and
// "Cages:" headers. Empty groups are omitted.
func (c *Construct) Summary() []string {
	if c.Empty() {
		return nil
	}
	var lines []string
	if len(c.Screws) > 0 {
		lines = append(lines, "Screws:")
		for i, s := range c.Screws {
			lines = append(lines, fmt.Sprintf("%d. %s - Ø%s×%s%s", i+1, s.Level, number(s.Diameter), number(s.Length), s.Unit))
		}
	}
	if len(c.Cages) > 0 {
		lines = append(lines, "Cages:")
		for i, cg := range c.Cages {
			lines = append(lines, fmt.Sprintf("%d. %s - %s×%s×%smm %s°",
				i+1, cg.Level, number(cg.Width), number(cg.Length), number(cg.Height), number(cg.Lordosis)))
		}
	}
	return lines
}

func parseLevel(s string) (osteotomy.Level, error) {
	lvl, err := osteotomy.ParseLevel(s)
	if err != nil {
		return osteotomy.Level{}, fmt.Errorf("%w: level %q", ErrInvalidImplant, strings.TrimSpace(s))
	}
	return lvl, nil
}

// number drops a trailing ".0" so catalogue sizes read as written
func number(v float64) string {
	return strings.TrimSuffix(fmt.Sprintf("%.1f", v), ".0")
}

func positive(v float64) bool {
	return v > 0 && finite(v)
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
