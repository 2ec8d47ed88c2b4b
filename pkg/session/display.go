package session

import (
	"spineforge/pkg/measurement"
)

// Display is what the measurement panel shows for one parameter
type Display struct {
	// Value is nil when the parameter is undefined
	Value *float64
	Unit  string
	Valid bool

	// Text is the formatted value, or the placeholder
	Text string
}

// Display returns the current parameters keyed by display name
func (s *Session) Display(precision int) map[string]Display {
	return DisplayMap(s.Results(), precision)
}

// DisplayMap converts a result set into the display mapping
func DisplayMap(rs measurement.Results, precision int) map[string]Display {
	out := make(map[string]Display, len(rs.Params))
	for _, r := range rs.Params {
		d := Display{
			Unit:  string(r.Unit),
			Valid: r.Valid,
			Text:  r.Format(precision),
		}
		if r.Valid {
			v := r.Value
			d.Value = &v
		}
		out[r.Name.DisplayName()] = d
	}
	return out
}
