// Package stl builds triangle meshes and writes them as binary STL files.
package stl

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"gonum.org/v1/gonum/spatial/r3"
)

// ErrInvalidMesh is returned when a mesh cannot be built from its input
var ErrInvalidMesh = errors.New("invalid mesh")

// Triangle is one facet with its outward unit normal
type Triangle struct {
	Normal  [3]float32
	Vertex1 [3]float32
	Vertex2 [3]float32
	Vertex3 [3]float32
}

// record is the on-disk layout of one facet
type record struct {
	Triangle
	Attribute uint16
}

const header = "spineforge binary STL"

// NewTriangle builds a facet from counter-clockwise vertices, deriving the normal
func NewTriangle(a, b, c r3.Vec) Triangle {
	n := r3.Cross(r3.Sub(b, a), r3.Sub(c, a))
	if l := r3.Norm(n); l > 0 {
		n = r3.Scale(1/l, n)
	}
	return Triangle{Normal: vec32(n), Vertex1: vec32(a), Vertex2: vec32(b), Vertex3: vec32(c)}
}

// WriteSTL writes triangles in binary STL: an 80 byte header, the facet
// count and 50 bytes per facet, all little-endian
func WriteSTL(w io.Writer, triangles []Triangle) error {
	if uint64(len(triangles)) > math.MaxUint32 {
		return fmt.Errorf("%w: %d triangles", ErrInvalidMesh, len(triangles))
	}
	bw := bufio.NewWriter(w)

	var head [80]byte
	copy(head[:], header)
	if _, err := bw.Write(head[:]); err != nil {
		return fmt.Errorf("error writing STL header: %w", err)
	}
	if err := binary.Write(bw, binary.LittleEndian, uint32(len(triangles))); err != nil {
		return fmt.Errorf("error writing STL header: %w", err)
	}
	for i, t := range triangles {
		if err := binary.Write(bw, binary.LittleEndian, record{Triangle: t}); err != nil {
			return fmt.Errorf("error writing triangle %d: %w", i, err)
		}
	}
	return bw.Flush()
}

// SaveToSTL writes triangles to filename, replacing any existing file
func SaveToSTL(filename string, triangles []Triangle) error {
	f, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("error creating STL file: %w", err)
	}
	if err := WriteSTL(f, triangles); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func vec32(v r3.Vec) [3]float32 {
	return [3]float32{float32(v.X), float32(v.Y), float32(v.Z)}
}
