// Package shape builds the immutable convex polytope descriptors shared by
// every body that references them.
package shape

import (
	"errors"
	"fmt"
	"math"

	"gpurigid/internal/geom"

	rl "github.com/gen2brain/raylib-go/raylib"
	"github.com/go-gl/mathgl/mgl64"
)

// ErrDegenerateGeometry reports a shape that cannot be used for collision:
// coincident vertices, zero-area faces, an open or non-convex hull.
var ErrDegenerateGeometry = errors.New("degenerate geometry")

// FaceDesc is one input polygon: a closed loop of vertex indices.
type FaceDesc struct {
	Indices []int
}

// Face is a polygon of the hull with its outward plane n·x + D = 0.
// Neighbors[j] is the face across the edge Indices[j] -> Indices[j+1].
type Face struct {
	Normal    rl.Vector3
	D         float32
	Indices   []int
	Neighbors []int
}

// Edge is an undirected hull edge with the two faces that share it.
// Unique indexes Convex.UniqueEdges.
type Edge struct {
	V0, V1 int
	Faces  [2]int
	Unique int
}

// Convex is a closed convex polytope in its local frame. The local origin is
// the body reference point; shapes are authored about their center of mass.
type Convex struct {
	Vertices    []rl.Vector3
	Faces       []Face
	Edges       []Edge
	UniqueEdges []rl.Vector3

	// LocalCenter is the area-weighted surface center.
	LocalCenter rl.Vector3
	Bounds      geom.AABB
	// Radius bounds every vertex from the local origin.
	Radius float32

	Volume   float64
	Centroid rl.Vector3
	// unit-density inertia about the local origin
	inertia mgl64.Mat3
}

// MaxFeatures bounds the vertex, face and edge count of a hull so feature
// indices fit the packed contact ids.
const MaxFeatures = 1 << 14

const (
	coincidentEps = 1e-6
	areaEps       = 1e-9
	uniqueEdgeEps = 1e-5
)

// New validates the input and precomputes everything collision detection
// needs. uniqueEdges may be nil, in which case the distinct edge directions
// are derived from the faces.
func New(vertices []rl.Vector3, faces []FaceDesc, uniqueEdges []rl.Vector3) (*Convex, error) {
	if len(vertices) < 4 || len(faces) < 4 {
		return nil, fmt.Errorf("%d vertices, %d faces: %w", len(vertices), len(faces), ErrDegenerateGeometry)
	}
	if len(vertices) > MaxFeatures || len(faces) > MaxFeatures {
		return nil, fmt.Errorf("%d vertices, %d faces, limit %d: %w", len(vertices), len(faces), MaxFeatures, ErrDegenerateGeometry)
	}

	c := &Convex{
		Vertices: append([]rl.Vector3(nil), vertices...),
		Bounds:   geom.EmptyAABB(),
	}

	for i, v := range c.Vertices {
		if !geom.IsFinite(v) {
			return nil, fmt.Errorf("vertex %d not finite: %w", i, ErrDegenerateGeometry)
		}
		c.Bounds = c.Bounds.Grow(v)
		r := float64(rl.Vector3Length(v))
		if r > float64(c.Radius) {
			c.Radius = float32(r)
		}
		for j := 0; j < i; j++ {
			if rl.Vector3LengthSqr(rl.Vector3Subtract(v, c.Vertices[j])) < coincidentEps*coincidentEps {
				return nil, fmt.Errorf("vertices %d and %d coincide: %w", j, i, ErrDegenerateGeometry)
			}
		}
	}
	ext := c.Bounds.Extents()
	scale := math.Max(float64(ext.X), math.Max(float64(ext.Y), float64(ext.Z)))
	tol := 1e-4 * scale

	if err := c.buildFaces(faces, tol); err != nil {
		return nil, err
	}
	if err := c.buildEdges(); err != nil {
		return nil, err
	}
	if len(c.Edges) > MaxFeatures {
		return nil, fmt.Errorf("%d edges, limit %d: %w", len(c.Edges), MaxFeatures, ErrDegenerateGeometry)
	}
	if err := c.buildUniqueEdges(uniqueEdges); err != nil {
		return nil, err
	}
	c.computeCenter()
	if err := c.computeMass(); err != nil {
		return nil, err
	}
	return c, nil
}

func vec64(v rl.Vector3) mgl64.Vec3 {
	return mgl64.Vec3{float64(v.X), float64(v.Y), float64(v.Z)}
}

func vec32(v mgl64.Vec3) rl.Vector3 {
	return rl.Vector3{X: float32(v[0]), Y: float32(v[1]), Z: float32(v[2])}
}

func (c *Convex) buildFaces(faces []FaceDesc, tol float64) error {
	c.Faces = make([]Face, len(faces))
	for fi, fd := range faces {
		if len(fd.Indices) < 3 {
			return fmt.Errorf("face %d has %d vertices: %w", fi, len(fd.Indices), ErrDegenerateGeometry)
		}
		for _, idx := range fd.Indices {
			if idx < 0 || idx >= len(c.Vertices) {
				return fmt.Errorf("face %d references vertex %d of %d: %w", fi, idx, len(c.Vertices), ErrDegenerateGeometry)
			}
		}

		// Newell's method tolerates slightly non-planar polygons.
		var n, sum mgl64.Vec3
		for j, idx := range fd.Indices {
			a := vec64(c.Vertices[idx])
			b := vec64(c.Vertices[fd.Indices[(j+1)%len(fd.Indices)]])
			n[0] += (a[1] - b[1]) * (a[2] + b[2])
			n[1] += (a[2] - b[2]) * (a[0] + b[0])
			n[2] += (a[0] - b[0]) * (a[1] + b[1])
			sum = sum.Add(a)
		}
		if n.Len()*0.5 < areaEps {
			return fmt.Errorf("face %d has zero area: %w", fi, ErrDegenerateGeometry)
		}
		n = n.Normalize()
		d := -n.Dot(sum.Mul(1 / float64(len(fd.Indices))))

		lo, hi := math.Inf(1), math.Inf(-1)
		for _, v := range c.Vertices {
			s := n.Dot(vec64(v)) + d
			lo = math.Min(lo, s)
			hi = math.Max(hi, s)
		}
		indices := append([]int(nil), fd.Indices...)
		switch {
		case hi <= tol:
		case lo >= -tol:
			// Wound clockwise: flip to face outward.
			n, d = n.Mul(-1), -d
			for i, j := 0, len(indices)-1; i < j; i, j = i+1, j-1 {
				indices[i], indices[j] = indices[j], indices[i]
			}
		default:
			return fmt.Errorf("face %d splits the hull, shape is not convex: %w", fi, ErrDegenerateGeometry)
		}
		for _, idx := range indices {
			if math.Abs(n.Dot(vec64(c.Vertices[idx]))+d) > tol {
				return fmt.Errorf("face %d is not planar: %w", fi, ErrDegenerateGeometry)
			}
		}

		c.Faces[fi] = Face{
			Normal:    vec32(n),
			D:         float32(d),
			Indices:   indices,
			Neighbors: make([]int, len(indices)),
		}
	}
	return nil
}

// buildEdges pairs up the directed face edges. A closed hull has every
// edge shared by exactly two faces in opposite directions.
func (c *Convex) buildEdges() error {
	type key struct{ a, b int }
	index := make(map[key]int)
	for fi := range c.Faces {
		f := &c.Faces[fi]
		for j, a := range f.Indices {
			b := f.Indices[(j+1)%len(f.Indices)]
			k := key{a, b}
			if a > b {
				k = key{b, a}
			}
			ei, ok := index[k]
			if !ok {
				index[k] = len(c.Edges)
				c.Edges = append(c.Edges, Edge{V0: k.a, V1: k.b, Faces: [2]int{fi, -1}, Unique: -1})
				continue
			}
			e := &c.Edges[ei]
			if e.Faces[1] >= 0 {
				return fmt.Errorf("edge %d-%d shared by more than two faces: %w", k.a, k.b, ErrDegenerateGeometry)
			}
			e.Faces[1] = fi
		}
	}

	for fi := range c.Faces {
		f := &c.Faces[fi]
		for j, a := range f.Indices {
			b := f.Indices[(j+1)%len(f.Indices)]
			if a > b {
				a, b = b, a
			}
			e := c.Edges[index[key{a, b}]]
			if e.Faces[1] < 0 {
				return fmt.Errorf("edge %d-%d has one face, hull is open: %w", a, b, ErrDegenerateGeometry)
			}
			if e.Faces[0] == fi {
				f.Neighbors[j] = e.Faces[1]
			} else {
				f.Neighbors[j] = e.Faces[0]
			}
		}
	}
	return nil
}

func (c *Convex) buildUniqueEdges(given []rl.Vector3) error {
	derive := len(given) == 0
	for i, u := range given {
		if rl.Vector3Length(u) < coincidentEps {
			return fmt.Errorf("unique edge %d has zero length: %w", i, ErrDegenerateGeometry)
		}
		c.UniqueEdges = append(c.UniqueEdges, rl.Vector3Normalize(u))
	}

	for ei := range c.Edges {
		e := &c.Edges[ei]
		dir := rl.Vector3Normalize(rl.Vector3Subtract(c.Vertices[e.V1], c.Vertices[e.V0]))
		for ui, u := range c.UniqueEdges {
			if almostZero(rl.Vector3Subtract(u, dir)) || almostZero(rl.Vector3Add(u, dir)) {
				e.Unique = ui
				break
			}
		}
		if e.Unique < 0 && derive {
			e.Unique = len(c.UniqueEdges)
			c.UniqueEdges = append(c.UniqueEdges, dir)
		}
	}
	if derive {
		return nil
	}

	// A given list must be exactly the hull's edge directions.
	used := make([]bool, len(c.UniqueEdges))
	for _, e := range c.Edges {
		if e.Unique < 0 {
			return fmt.Errorf("edge %d-%d has no unique direction: %w", e.V0, e.V1, ErrDegenerateGeometry)
		}
		used[e.Unique] = true
	}
	for i, ok := range used {
		if !ok {
			return fmt.Errorf("unique edge %d matches no hull edge: %w", i, ErrDegenerateGeometry)
		}
	}
	return nil
}

func almostZero(v rl.Vector3) bool {
	return geom.Abs(v.X) <= uniqueEdgeEps && geom.Abs(v.Y) <= uniqueEdgeEps && geom.Abs(v.Z) <= uniqueEdgeEps
}

func (c *Convex) computeCenter() {
	var center mgl64.Vec3
	total := 0.0
	for _, f := range c.Faces {
		p0 := vec64(c.Vertices[f.Indices[0]])
		for j := 1; j+1 < len(f.Indices); j++ {
			p1 := vec64(c.Vertices[f.Indices[j]])
			p2 := vec64(c.Vertices[f.Indices[j+1]])
			area := p0.Sub(p1).Cross(p0.Sub(p2)).Len() * 0.5
			center = center.Add(p0.Add(p1).Add(p2).Mul(area / 3))
			total += area
		}
	}
	c.LocalCenter = vec32(center.Mul(1 / total))
}

// canonical second moment of the unit tetrahedron (0, e1, e2, e3)
var canonicalCovariance = mgl64.Mat3{
	2, 1, 1,
	1, 2, 1,
	1, 1, 2,
}.Mul(1.0 / 120.0)

// computeMass integrates volume, centroid and the unit-density inertia
// tensor over tetrahedra fanned from the local origin.
func (c *Convex) computeMass() error {
	var cov mgl64.Mat3
	var moment mgl64.Vec3
	volume := 0.0
	for _, f := range c.Faces {
		a := vec64(c.Vertices[f.Indices[0]])
		for j := 1; j+1 < len(f.Indices); j++ {
			b := vec64(c.Vertices[f.Indices[j]])
			cc := vec64(c.Vertices[f.Indices[j+1]])
			det := a.Dot(b.Cross(cc))
			m := mgl64.Mat3FromCols(a, b, cc)
			cov = cov.Add(m.Mul3(canonicalCovariance).Mul3(m.Transpose()).Mul(det))
			volume += det / 6
			moment = moment.Add(a.Add(b).Add(cc).Mul(det / 24))
		}
	}
	if volume < areaEps {
		return fmt.Errorf("volume %g: %w", volume, ErrDegenerateGeometry)
	}
	c.Volume = volume
	c.Centroid = vec32(moment.Mul(1 / volume))
	c.inertia = mgl64.Ident3().Mul(cov.Trace()).Sub(cov)
	return nil
}

// InertiaFor returns the local inverse inertia tensor for a body of the
// given mass. A non-positive mass is static and gets a zero tensor.
func (c *Convex) InertiaFor(mass float32) geom.Mat3 {
	if mass <= 0 {
		return geom.Mat3{}
	}
	inertia := c.inertia.Mul(float64(mass) / c.Volume)
	if math.Abs(inertia.Det()) < 1e-18 {
		return geom.Mat3{}
	}
	inv := inertia.Inv()
	var out geom.Mat3
	for r := 0; r < 3; r++ {
		for col := 0; col < 3; col++ {
			out[3*r+col] = float32(inv.At(r, col))
		}
	}
	return out
}

// WorldAABB is the exact bound of the rotated vertices.
func (c *Convex) WorldAABB(pos rl.Vector3, q rl.Quaternion) geom.AABB {
	box := geom.EmptyAABB()
	for _, v := range c.Vertices {
		box = box.Grow(rl.Vector3RotateByQuaternion(v, q))
	}
	box.Min = rl.Vector3Add(box.Min, pos)
	box.Max = rl.Vector3Add(box.Max, pos)
	return box
}

// Extent is the largest local bound dimension.
func (c *Convex) Extent() float32 {
	e := c.Bounds.Extents()
	return float32(math.Max(float64(e.X), math.Max(float64(e.Y), float64(e.Z))))
}
