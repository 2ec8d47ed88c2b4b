package implants

import (
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"spineforge/internal/models"
	"spineforge/pkg/calibration"
)

// ScrewEntry is one screw as written in an implant file
type ScrewEntry struct {
	Level    string     `yaml:"level"`
	Head     [2]float64 `yaml:"head"`
	Tip      [2]float64 `yaml:"tip"`
	Diameter float64    `yaml:"diameter"`
}

// CageEntry is one cage as written in an implant file
type CageEntry struct {
	Level    string        `yaml:"level"`
	Corners  [4][2]float64 `yaml:"corners"`
	Width    float64       `yaml:"width"`
	Length   float64       `yaml:"length"`
	Height   float64       `yaml:"height"`
	Lordosis float64       `yaml:"lordosis"`
}

// RodEntry configures the rod; an absent rod section means no rod
type RodEntry struct {
	Side     string  `yaml:"side"`
	Diameter float64 `yaml:"diameter"`
}

// File is the YAML form of a construct
type File struct {
	Screws []ScrewEntry `yaml:"screws"`
	Cages  []CageEntry  `yaml:"cages"`
	Rod    *RodEntry    `yaml:"rod"`
}

// ReadFile decodes an implant file of the form
//
//	screws:
//	  - {level: L3, head: [440, 1000], tip: [400, 1010], diameter: 6.5}
//	cages:
//	  - {level: L4, corners: [[0, 0], [1, 0], [0, 1], [1, 1]], width: 12, length: 28, height: 10, lordosis: 6}
//	rod: {side: both, diameter: 5.5}
func ReadFile(r io.Reader) (File, error) {
	var f File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return File{}, fmt.Errorf("error parsing implant file: %w", err)
	}
	return f, nil
}

// Construct places every screw and cage of the file, measuring screw lengths
// with cal
func (f File) Construct(cal calibration.Calibration) (*Construct, error) {
	c := &Construct{}
	for i, s := range f.Screws {
		if _, err := c.AddScrew(s.Level, point(s.Head), point(s.Tip), s.Diameter, cal); err != nil {
			return nil, fmt.Errorf("screw entry %d: %w", i, err)
		}
	}
	for i, e := range f.Cages {
		var corners [4]models.Point
		for j, p := range e.Corners {
			corners[j] = point(p)
		}
		size := CageSize{Width: e.Width, Length: e.Length, Height: e.Height, Lordosis: e.Lordosis}
		if _, err := c.AddCage(e.Level, corners, size); err != nil {
			return nil, fmt.Errorf("cage entry %d: %w", i, err)
		}
	}
	return c, nil
}

func point(p [2]float64) models.Point {
	return models.Point{X: p[0], Y: p[1]}
}
