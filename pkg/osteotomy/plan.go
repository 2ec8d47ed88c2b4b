// Package osteotomy estimates how a planned osteotomy changes the measured
// alignment. The estimates are empirical rules of thumb applied to a baseline
// result set, not a geometric re-simulation of the spine.
package osteotomy

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidPlan is returned for plans with unknown types, techniques or levels
var ErrInvalidPlan = errors.New("invalid osteotomy plan")

// Type is the osteotomy grade
type Type string

const (
	// SPO is a Smith-Petersen (posterior column) osteotomy
	SPO Type = "SPO"
	// PSO is a pedicle subtraction osteotomy
	PSO Type = "PSO"
	// VCR is a vertebral column resection
	VCR Type = "VCR"
)

// Technique is how the correction is drawn on the image
type Technique string

const (
	Wedge  Technique = "Wedge"
	Resect Technique = "Resect"
	Open   Technique = "Open"
)

// Side distinguishes symmetric from asymmetric resections
type Side string

const (
	Symmetric Side = "Symmetric"
	Left      Side = "Left"
	Right     Side = "Right"
)

// Region is the spinal region of a level
type Region byte

const (
	Cervical Region = 'C'
	Thoracic Region = 'T'
	Lumbar   Region = 'L'
	Sacral   Region = 'S'
)

var regionSize = map[Region]int{Cervical: 7, Thoracic: 12, Lumbar: 5, Sacral: 5}

// Level is a single vertebra, e.g. L3
type Level struct {
	Region Region
	Number int
}

func (l Level) String() string {
	return fmt.Sprintf("%c%d", l.Region, l.Number)
}

// ParseLevel parses names such as "C7", "T4" or "l3"
func ParseLevel(s string) (Level, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if len(s) < 2 {
		return Level{}, fmt.Errorf("%w: level %q", ErrInvalidPlan, s)
	}
	r := Region(s[0])
	size, ok := regionSize[r]
	if !ok {
		return Level{}, fmt.Errorf("%w: level %q has unknown region", ErrInvalidPlan, s)
	}
	n, err := strconv.Atoi(s[1:])
	if err != nil || n < 1 || n > size {
		return Level{}, fmt.Errorf("%w: level %q out of range", ErrInvalidPlan, s)
	}
	return Level{Region: r, Number: n}, nil
}

// Plan is one planned osteotomy
type Plan struct {
	Type      Type
	Technique Technique
	Side      Side
	Level     Level

	// Levels is the number of posterior column releases; only used for SPO
	Levels int
}

// NewPlan validates and builds a plan. Empty technique and side default to
// a symmetric wedge, and Levels below one is treated as one.
func NewPlan(t Type, level string, opts ...PlanOption) (Plan, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return Plan{}, err
	}
	p := Plan{Type: t, Technique: Wedge, Side: Symmetric, Level: lvl, Levels: 1}
	for _, opt := range opts {
		opt(&p)
	}
	if err := p.Validate(); err != nil {
		return Plan{}, err
	}
	return p, nil
}

// PlanOption adjusts a plan built by NewPlan
type PlanOption func(*Plan)

// WithTechnique sets the technique
func WithTechnique(t Technique) PlanOption { return func(p *Plan) { p.Technique = t } }

// WithSide sets the side
func WithSide(s Side) PlanOption { return func(p *Plan) { p.Side = s } }

// WithLevels sets the SPO level count
func WithLevels(n int) PlanOption { return func(p *Plan) { p.Levels = n } }

// Validate checks every field of the plan
func (p Plan) Validate() error {
	switch p.Type {
	case SPO, PSO, VCR:
	default:
		return fmt.Errorf("%w: type %q", ErrInvalidPlan, p.Type)
	}
	switch p.Technique {
	case Wedge, Resect, Open:
	default:
		return fmt.Errorf("%w: technique %q", ErrInvalidPlan, p.Technique)
	}
	switch p.Side {
	case Symmetric, Left, Right:
	default:
		return fmt.Errorf("%w: side %q", ErrInvalidPlan, p.Side)
	}
	if _, ok := regionSize[p.Level.Region]; !ok {
		return fmt.Errorf("%w: level %v", ErrInvalidPlan, p.Level)
	}
	return nil
}

// ExpectedCorrection returns the expected segmental lordosis gain in degrees
func (p Plan) ExpectedCorrection() float64 {
	var c float64
	switch p.Type {
	case SPO:
		levels := p.Levels
		if levels < 1 {
			levels = 1
		}
		c = 10 * float64(levels)
	case PSO:
		c = 30
	case VCR:
		c = 45
	}
	if p.Side != Symmetric {
		c *= 0.7
	}
	if p.Technique == Open {
		c *= 0.8
	}
	return c
}

// ParsePlan reads the command line form TYPE:LEVEL[:TECHNIQUE[:SIDE[:LEVELS]]],
// e.g. "PSO:L3" or "SPO:L4:Wedge:Symmetric:2"
func ParsePlan(s string) (Plan, error) {
	parts := strings.Split(s, ":")
	if len(parts) < 2 || len(parts) > 5 {
		return Plan{}, fmt.Errorf("%w: %q (want TYPE:LEVEL[:TECHNIQUE[:SIDE[:LEVELS]]])", ErrInvalidPlan, s)
	}
	var opts []PlanOption
	if len(parts) > 2 {
		opts = append(opts, WithTechnique(Technique(title(parts[2]))))
	}
	if len(parts) > 3 {
		opts = append(opts, WithSide(Side(title(parts[3]))))
	}
	if len(parts) > 4 {
		n, err := strconv.Atoi(parts[4])
		if err != nil {
			return Plan{}, fmt.Errorf("%w: levels %q", ErrInvalidPlan, parts[4])
		}
		opts = append(opts, WithLevels(n))
	}
	return NewPlan(Type(strings.ToUpper(parts[0])), parts[1], opts...)
}

func title(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
