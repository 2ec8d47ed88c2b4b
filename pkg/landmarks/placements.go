package landmarks

import (
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"spineforge/internal/models"
)

// Placement is one landmark click recorded outside the viewport,
// e.g. in a YAML file fed to the command line tool
type Placement struct {
	Name string  `yaml:"name"`
	X    float64 `yaml:"x"`
	Y    float64 `yaml:"y"`
}

type placementFile struct {
	Landmarks []Placement `yaml:"landmarks"`
}

// ReadPlacements decodes a YAML document of the form
//
//	landmarks:
//	  - {name: C2_ant, x: 100, y: 100}
//
// Names are validated against the closed landmark set.
func ReadPlacements(r io.Reader) ([]Placement, error) {
	var f placementFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("error parsing landmark file: %w", err)
	}

	for i, p := range f.Landmarks {
		if _, err := models.ParseLandmarkName(p.Name); err != nil {
			return nil, fmt.Errorf("landmark entry %d: %w", i, err)
		}
	}
	return f.Landmarks, nil
}

// Apply places every entry on the store in order.
// Later entries for the same name overwrite earlier ones, as repeated clicks do.
func (s *Store) Apply(placements []Placement) error {
	for _, p := range placements {
		name, err := models.ParseLandmarkName(p.Name)
		if err != nil {
			return err
		}
		if err := s.Set(name, models.Point{X: p.X, Y: p.Y}); err != nil {
			return err
		}
	}
	return nil
}
