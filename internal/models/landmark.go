package models

import (
	"errors"
	"fmt"
)

// ErrInvalidName is returned for landmark or parameter names outside the closed sets
var ErrInvalidName = errors.New("invalid name")

// Point is a position in image pixel space.
// X grows to the right and Y grows downwards, as in the decoded image.
type Point struct {
	X float64 `yaml:"x"`
	Y float64 `yaml:"y"`
}

// Midpoint returns the point halfway between p and q
func (p Point) Midpoint(q Point) Point {
	return Point{X: (p.X + q.X) / 2, Y: (p.Y + q.Y) / 2}
}

// LandmarkName identifies one anatomical point from the closed set below
type LandmarkName string

const (
	Brow LandmarkName = "brow"
	Chin LandmarkName = "chin"

	C2Anterior  LandmarkName = "C2_ant"
	C2Posterior LandmarkName = "C2_post"
	C7Anterior  LandmarkName = "C7_ant"
	C7Posterior LandmarkName = "C7_post"
	T1Anterior  LandmarkName = "T1_ant"
	T1Posterior LandmarkName = "T1_post"
	L1Anterior  LandmarkName = "L1_ant"
	L1Posterior LandmarkName = "L1_post"
	L5Anterior  LandmarkName = "L5_ant"
	L5Posterior LandmarkName = "L5_post"

	// S1Posterior doubles as the posterior-superior corner of the sacrum
	S1Anterior  LandmarkName = "S1_ant"
	S1Posterior LandmarkName = "S1_post"

	// Femoral head centres; the hip axis is their midpoint
	HipLeft  LandmarkName = "hip_left"
	HipRight LandmarkName = "hip_right"

	// Optional true-vertical reference, e.g. a plumb line visible on the film
	VerticalTop    LandmarkName = "vertical_top"
	VerticalBottom LandmarkName = "vertical_bottom"
)

// landmarkInfo holds the enumeration order and the button labels
var landmarkInfo = []struct {
	name  LandmarkName
	label string
}{
	{Brow, "Brow"},
	{Chin, "Chin"},
	{C2Anterior, "C2 Ant"},
	{C2Posterior, "C2 Post"},
	{C7Anterior, "C7 Ant"},
	{C7Posterior, "C7 Post"},
	{T1Anterior, "T1 Ant"},
	{T1Posterior, "T1 Post"},
	{L1Anterior, "L1 Ant"},
	{L1Posterior, "L1 Post"},
	{L5Anterior, "L5 Ant"},
	{L5Posterior, "L5 Post"},
	{S1Anterior, "S1 Ant"},
	{S1Posterior, "S1 Post"},
	{HipLeft, "Femoral Head L"},
	{HipRight, "Femoral Head R"},
	{VerticalTop, "Vertical Top"},
	{VerticalBottom, "Vertical Bottom"},
}

// NumLandmarks is the size of the closed landmark set
const NumLandmarks = 18

var landmarkIndex = func() map[LandmarkName]int {
	m := make(map[LandmarkName]int, len(landmarkInfo))
	for i, info := range landmarkInfo {
		m[info.name] = i
	}
	return m
}()

// AllLandmarks returns every landmark name in display order
func AllLandmarks() []LandmarkName {
	names := make([]LandmarkName, len(landmarkInfo))
	for i, info := range landmarkInfo {
		names[i] = info.name
	}
	return names
}

// Index returns the position of n in the enumeration, or -1 if n is not a landmark
func (n LandmarkName) Index() int {
	if i, ok := landmarkIndex[n]; ok {
		return i
	}
	return -1
}

// Valid reports whether n belongs to the closed landmark set
func (n LandmarkName) Valid() bool {
	return n.Index() >= 0
}

// Label returns the human readable label shown next to a placement button
func (n LandmarkName) Label() string {
	if i := n.Index(); i >= 0 {
		return landmarkInfo[i].label
	}
	return string(n)
}

// IsFrameReference reports whether n only feeds the reference frame
func (n LandmarkName) IsFrameReference() bool {
	return n == VerticalTop || n == VerticalBottom
}

// ParseLandmarkName validates a user supplied landmark name
func ParseLandmarkName(s string) (LandmarkName, error) {
	n := LandmarkName(s)
	if !n.Valid() {
		return "", fmt.Errorf("%w: landmark %q", ErrInvalidName, s)
	}
	return n, nil
}

// Landmark is the placement state of a single named point
type Landmark struct {
	// Name is the landmark identity
	Name LandmarkName

	// Point is the image-space coordinate; meaningless while Placed is false
	Point Point

	// Placed is true once the user has clicked the landmark onto the image
	Placed bool
}
