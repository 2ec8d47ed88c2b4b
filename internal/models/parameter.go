package models

import "fmt"

// ParameterName identifies one of the fixed radiographic measurements
type ParameterName string

const (
	CBVA             ParameterName = "cbva"
	CervicalLordosis ParameterName = "c2c7_lordosis"
	CervicalSVA      ParameterName = "c2c7_sva"
	T1Slope          ParameterName = "t1_slope"
	LumbarLordosis   ParameterName = "lumbar_lordosis"
	SacralSlope      ParameterName = "sacral_slope"
	PelvicTilt       ParameterName = "pelvic_tilt"
	PIVector         ParameterName = "pi_vector"
	PISum            ParameterName = "pi_sum"
	GlobalSVA        ParameterName = "sva"
)

var parameterInfo = []struct {
	name    ParameterName
	display string
}{
	{CBVA, "CBVA"},
	{CervicalLordosis, "C2–C7 Lordosis"},
	{CervicalSVA, "C2–C7 SVA"},
	{T1Slope, "T1 Slope"},
	{LumbarLordosis, "Lumbar Lordosis"},
	{SacralSlope, "Sacral Slope"},
	{PelvicTilt, "Pelvic Tilt"},
	{PIVector, "PI (vector)"},
	{PISum, "PI (PT+SS)"},
	{GlobalSVA, "SVA"},
}

// AllParameters returns every parameter in display order
func AllParameters() []ParameterName {
	names := make([]ParameterName, len(parameterInfo))
	for i, info := range parameterInfo {
		names[i] = info.name
	}
	return names
}

// DisplayName returns the label used in the measurement panel and exports
func (p ParameterName) DisplayName() string {
	for _, info := range parameterInfo {
		if info.name == p {
			return info.display
		}
	}
	return string(p)
}

// ParseParameterName accepts either the identifier or the display name
func ParseParameterName(s string) (ParameterName, error) {
	for _, info := range parameterInfo {
		if string(info.name) == s || info.display == s {
			return info.name, nil
		}
	}
	return "", fmt.Errorf("%w: parameter %q", ErrInvalidName, s)
}

// Unit is the unit a parameter value is reported in
type Unit string

const (
	Degrees     Unit = "°"
	Millimetres Unit = "mm"
	Pixels      Unit = "px"
)
