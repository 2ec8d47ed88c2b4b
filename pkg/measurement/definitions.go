package measurement

import (
	"spineforge/internal/models"
)

// Kind separates angular parameters from distances
type Kind int

const (
	Angle Kind = iota
	Length
)

// Definition describes one parameter and what it depends on
type Definition struct {
	Name models.ParameterName
	Kind Kind

	// Requires lists the landmarks that must be placed for the value to exist
	Requires []models.LandmarkName

	// DerivedFrom lists parameters whose computed values this one combines
	DerivedFrom []models.ParameterName
}

var definitions = []Definition{
	{
		Name:     models.CBVA,
		Kind:     Angle,
		Requires: []models.LandmarkName{models.Chin, models.Brow},
	},
	{
		Name: models.CervicalLordosis,
		Kind: Angle,
		Requires: []models.LandmarkName{
			models.C2Anterior, models.C2Posterior,
			models.C7Anterior, models.C7Posterior,
		},
	},
	{
		Name:     models.CervicalSVA,
		Kind:     Length,
		Requires: []models.LandmarkName{models.C2Anterior, models.C2Posterior, models.C7Posterior},
	},
	{
		Name:     models.T1Slope,
		Kind:     Angle,
		Requires: []models.LandmarkName{models.T1Anterior, models.T1Posterior},
	},
	{
		Name: models.LumbarLordosis,
		Kind: Angle,
		Requires: []models.LandmarkName{
			models.L1Anterior, models.L1Posterior,
			models.L5Anterior, models.L5Posterior,
		},
	},
	{
		Name:     models.SacralSlope,
		Kind:     Angle,
		Requires: []models.LandmarkName{models.S1Anterior, models.S1Posterior},
	},
	{
		Name: models.PelvicTilt,
		Kind: Angle,
		Requires: []models.LandmarkName{
			models.S1Anterior, models.S1Posterior,
			models.HipLeft, models.HipRight,
		},
	},
	{
		Name: models.PIVector,
		Kind: Angle,
		Requires: []models.LandmarkName{
			models.S1Anterior, models.S1Posterior,
			models.HipLeft, models.HipRight,
		},
	},
	{
		Name:        models.PISum,
		Kind:        Angle,
		DerivedFrom: []models.ParameterName{models.PelvicTilt, models.SacralSlope},
	},
	{
		Name:     models.GlobalSVA,
		Kind:     Length,
		Requires: []models.LandmarkName{models.C7Anterior, models.C7Posterior, models.S1Posterior},
	},
}

// Definitions returns every parameter definition in display order
func Definitions() []Definition {
	out := make([]Definition, len(definitions))
	copy(out, definitions)
	return out
}

// Lookup returns the definition of a parameter
func Lookup(name models.ParameterName) (Definition, bool) {
	for _, d := range definitions {
		if d.Name == name {
			return d, true
		}
	}
	return Definition{}, false
}

// Dependencies returns the full landmark dependency set of a parameter,
// following DerivedFrom links
func Dependencies(name models.ParameterName) []models.LandmarkName {
	seen := make(map[models.LandmarkName]bool)
	var out []models.LandmarkName
	var walk func(models.ParameterName)
	walk = func(p models.ParameterName) {
		d, ok := Lookup(p)
		if !ok {
			return
		}
		for _, lm := range d.Requires {
			if !seen[lm] {
				seen[lm] = true
				out = append(out, lm)
			}
		}
		for _, parent := range d.DerivedFrom {
			walk(parent)
		}
	}
	walk(name)
	return out
}

// Dependents returns the parameters whose value depends on a landmark
func Dependents(landmark models.LandmarkName) []models.ParameterName {
	var out []models.ParameterName
	for _, d := range definitions {
		for _, lm := range Dependencies(d.Name) {
			if lm == landmark {
				out = append(out, d.Name)
				break
			}
		}
	}
	return out
}
