package stl

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// DefaultTubeSegments is the number of sides of a tube cross-section
const DefaultTubeSegments = 8

// Tube builds a closed tube of the given radius around path: a ring of
// segments vertices at every path point, joined by quads and capped with
// fans at both ends. Consecutive path points must differ.
func Tube(path []r3.Vec, radius float64, segments int) ([]Triangle, error) {
	if len(path) < 2 {
		return nil, fmt.Errorf("%w: tube path has %d points", ErrInvalidMesh, len(path))
	}
	if !(radius > 0) || math.IsInf(radius, 0) {
		return nil, fmt.Errorf("%w: tube radius %v", ErrInvalidMesh, radius)
	}
	if segments < 3 {
		return nil, fmt.Errorf("%w: %d tube segments", ErrInvalidMesh, segments)
	}

	rings := make([][]r3.Vec, len(path))
	for i := range path {
		tangent, err := tangentAt(path, i)
		if err != nil {
			return nil, err
		}
		normal, binormal := crossSection(tangent)
		ring := make([]r3.Vec, segments)
		for j := range ring {
			a := 2 * math.Pi * float64(j) / float64(segments)
			off := r3.Add(r3.Scale(radius*math.Cos(a), normal), r3.Scale(radius*math.Sin(a), binormal))
			ring[j] = r3.Add(path[i], off)
		}
		rings[i] = ring
	}

	out := make([]Triangle, 0, 2*segments*len(path))
	for i := 0; i+1 < len(rings); i++ {
		cur, next := rings[i], rings[i+1]
		for j := 0; j < segments; j++ {
			k := (j + 1) % segments
			out = append(out,
				NewTriangle(cur[j], cur[k], next[j]),
				NewTriangle(cur[k], next[k], next[j]),
			)
		}
	}

	first, last := rings[0], rings[len(rings)-1]
	for j := 0; j < segments; j++ {
		k := (j + 1) % segments
		out = append(out,
			NewTriangle(path[0], first[k], first[j]),
			NewTriangle(path[len(path)-1], last[j], last[k]),
		)
	}
	return out, nil
}

// tangentAt uses central differences inside the path and one-sided ones at the ends
func tangentAt(path []r3.Vec, i int) (r3.Vec, error) {
	lo, hi := i-1, i+1
	if lo < 0 {
		lo = 0
	}
	if hi >= len(path) {
		hi = len(path) - 1
	}
	d := r3.Sub(path[hi], path[lo])
	n := r3.Norm(d)
	if !(n > 0) || math.IsInf(n, 0) {
		return r3.Vec{}, fmt.Errorf("%w: tube path point %d has no direction", ErrInvalidMesh, i)
	}
	return r3.Scale(1/n, d), nil
}

// crossSection returns two unit vectors perpendicular to the tangent and to
// each other. The z axis is the reference, falling back to x for tangents
// along z.
func crossSection(tangent r3.Vec) (normal, binormal r3.Vec) {
	ref := r3.Vec{Z: 1}
	if math.Abs(r3.Dot(tangent, ref)) > 0.99 {
		ref = r3.Vec{X: 1}
	}
	normal = r3.Unit(r3.Cross(tangent, ref))
	binormal = r3.Unit(r3.Cross(tangent, normal))
	return normal, binormal
}
