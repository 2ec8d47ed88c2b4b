package osteotomy

import (
	"math"

	"spineforge/internal/models"
	"spineforge/pkg/measurement"
)

// Correction factors per degree of expected osteotomy correction
const (
	lumbarLordosisMajor = 1.0
	lumbarLordosisSPO   = 0.8
	upperThoracicT1     = 0.6
	cervicalLordosis    = 0.7
	pelvicTiltMajor     = -0.4
	pelvicTiltSPO       = -0.2

	// mm of SVA change per degree
	svaLumbarMajor = -2.5
	svaOtherMajor  = -1.2
	svaSPO         = -1.0

	// last thoracic level whose osteotomy still moves T1 slope
	upperThoracicLimit = 4
)

// Simulate applies the expected effect of every plan to a copy of baseline.
// Invalid baseline values stay invalid. Pelvic incidence is a fixed
// morphological value, so any pelvic tilt change is mirrored by sacral slope.
// SVA corrections are in millimetres and are skipped for unscaled images.
func Simulate(baseline measurement.Results, plans []Plan) (measurement.Results, error) {
	for _, p := range plans {
		if err := p.Validate(); err != nil {
			return measurement.Results{}, err
		}
	}

	out := baseline.Clone()
	deltas := make(map[models.ParameterName]float64)
	for _, p := range plans {
		for name, d := range effect(p) {
			deltas[name] += d
		}
	}
	deltas[models.SacralSlope] -= deltas[models.PelvicTilt]

	for i, r := range out.Params {
		d, ok := deltas[r.Name]
		if !ok || d == 0 || !r.Valid {
			continue
		}
		switch r.Name {
		case models.GlobalSVA:
			if r.Unit != models.Millimetres {
				continue
			}
			out.Params[i].Value = shrinkToward0(r.Value, d)
		default:
			out.Params[i].Value = r.Value + d
		}
	}
	return out, nil
}

// effect returns the change each plan causes per parameter
func effect(p Plan) map[models.ParameterName]float64 {
	c := p.ExpectedCorrection()
	major := p.Type == PSO || p.Type == VCR
	e := make(map[models.ParameterName]float64)

	switch p.Level.Region {
	case Lumbar:
		if major {
			e[models.LumbarLordosis] = lumbarLordosisMajor * c
			e[models.PelvicTilt] = pelvicTiltMajor * c
		} else {
			e[models.LumbarLordosis] = lumbarLordosisSPO * c
			e[models.PelvicTilt] = pelvicTiltSPO * c
		}
	case Thoracic:
		if major && p.Level.Number <= upperThoracicLimit {
			e[models.T1Slope] = upperThoracicT1 * c
		}
	case Cervical:
		if major {
			e[models.CervicalLordosis] = cervicalLordosis * c
		}
	}

	switch {
	case major && p.Level.Region == Lumbar:
		e[models.GlobalSVA] = svaLumbarMajor * c
	case major:
		e[models.GlobalSVA] = svaOtherMajor * c
	default:
		e[models.GlobalSVA] = svaSPO * c
	}
	return e
}

// shrinkToward0 changes the magnitude of v by delta without crossing zero
func shrinkToward0(v, delta float64) float64 {
	mag := math.Max(0, math.Abs(v)+delta)
	if v < 0 {
		return -mag
	}
	return mag
}
