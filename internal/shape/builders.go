package shape

import (
	"fmt"
	"math"

	rl "github.com/gen2brain/raylib-go/raylib"
)

var boxFaces = []FaceDesc{
	{Indices: []int{1, 3, 7, 5}}, // +X
	{Indices: []int{0, 4, 6, 2}}, // -X
	{Indices: []int{2, 6, 7, 3}}, // +Y
	{Indices: []int{0, 1, 5, 4}}, // -Y
	{Indices: []int{4, 5, 7, 6}}, // +Z
	{Indices: []int{0, 2, 3, 1}}, // -Z
}

// BoxVertices lists the corners of a box with half extents half. Bit 0 of
// the index selects +X, bit 1 +Y and bit 2 +Z.
func BoxVertices(half rl.Vector3) []rl.Vector3 {
	verts := make([]rl.Vector3, 8)
	for i := range verts {
		v := rl.Vector3{X: -half.X, Y: -half.Y, Z: -half.Z}
		if i&1 != 0 {
			v.X = half.X
		}
		if i&2 != 0 {
			v.Y = half.Y
		}
		if i&4 != 0 {
			v.Z = half.Z
		}
		verts[i] = v
	}
	return verts
}

// BoxFaces returns fresh face loops matching BoxVertices.
func BoxFaces() []FaceDesc {
	out := make([]FaceDesc, len(boxFaces))
	for i, f := range boxFaces {
		out[i] = FaceDesc{Indices: append([]int(nil), f.Indices...)}
	}
	return out
}

// NewBox builds an axis-aligned box centered on the origin.
func NewBox(half rl.Vector3) (*Convex, error) {
	return New(BoxVertices(half), BoxFaces(), []rl.Vector3{{X: 1}, {Y: 1}, {Z: 1}})
}

// PrismGeometry returns the vertices and faces of a regular prism with the
// given number of sides around the Y axis.
func PrismGeometry(sides int, radius, halfHeight float32) ([]rl.Vector3, []FaceDesc, error) {
	if sides < 3 {
		return nil, nil, fmt.Errorf("prism with %d sides: %w", sides, ErrDegenerateGeometry)
	}
	verts := make([]rl.Vector3, 0, 2*sides)
	for _, y := range []float32{-halfHeight, halfHeight} {
		for i := 0; i < sides; i++ {
			a := 2 * math.Pi * float64(i) / float64(sides)
			verts = append(verts, rl.Vector3{
				X: radius * float32(math.Cos(a)),
				Y: y,
				Z: radius * float32(math.Sin(a)),
			})
		}
	}

	bottom := make([]int, sides)
	top := make([]int, sides)
	for i := 0; i < sides; i++ {
		bottom[i] = i
		top[i] = sides + sides - 1 - i
	}
	faces := []FaceDesc{{Indices: bottom}, {Indices: top}}
	for i := 0; i < sides; i++ {
		j := (i + 1) % sides
		faces = append(faces, FaceDesc{Indices: []int{i, sides + i, sides + j, j}})
	}
	return verts, faces, nil
}

// NewPrism builds a regular prism; the edge directions are derived.
func NewPrism(sides int, radius, halfHeight float32) (*Convex, error) {
	verts, faces, err := PrismGeometry(sides, radius, halfHeight)
	if err != nil {
		return nil, err
	}
	return New(verts, faces, nil)
}
