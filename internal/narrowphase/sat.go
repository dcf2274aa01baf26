package narrowphase

import (
	"math"

	"gpurigid/internal/geom"
	"gpurigid/internal/shape"

	rl "github.com/gen2brain/raylib-go/raylib"
)

const (
	// An axis only replaces the current best when it is clearly shallower;
	// face axes of A win ties against B, faces win ties against edges.
	relativeTol = 0.98
	absoluteTol = 0.001

	// Edge pairs closer to parallel than this are skipped.
	minCrossLenSqr = 1e-6
)

type axisKind int

const (
	axisNone axisKind = iota
	axisFaceA
	axisFaceB
	axisEdges
)

type axisQuery struct {
	kind   axisKind
	depth  float32
	normal rl.Vector3
	a, b   int
}

func (q axisQuery) better(best axisQuery) bool {
	return best.kind == axisNone || q.depth < relativeTol*best.depth-absoluteTol
}

// collider holds the per-pair working set. One is reused for every pair of
// a dispatch chunk.
type collider struct {
	wa, wb     []rl.Vector3
	na, nb     []rl.Vector3
	da, db     []float32
	ua, ub     []rl.Vector3
	clip, tmp  []clipVertex
	candidates []Point
}

// Collide tests two placed shapes and fills m with up to four contact
// points. It reports false when the shapes are separated or the
// configuration is degenerate; m.A and m.B are left to the caller.
func Collide(a *shape.Convex, xa Transform, b *shape.Convex, xb Transform, m *Manifold) bool {
	var c collider
	return c.collide(a, xa, b, xb, m)
}

func (c *collider) collide(a *shape.Convex, xa Transform, b *shape.Convex, xb Transform, m *Manifold) bool {
	m.N = 0
	if a == nil || b == nil || !xa.valid() || !xb.valid() {
		return false
	}
	xa.Rot = geom.NormalizeQuat(xa.Rot)
	xb.Rot = geom.NormalizeQuat(xb.Rot)

	reach := a.Radius + b.Radius
	if rl.Vector3LengthSqr(rl.Vector3Subtract(xb.Pos, xa.Pos)) > reach*reach {
		return false
	}

	c.wa, c.na, c.da, c.ua = place(a, xa, c.wa, c.na, c.da, c.ua)
	c.wb, c.nb, c.db, c.ub = place(b, xb, c.wb, c.nb, c.db, c.ub)

	faceA, ok := queryFaces(c.na, c.da, c.wb)
	if !ok {
		return false
	}
	faceA.kind = axisFaceA
	best := faceA

	faceB, ok := queryFaces(c.nb, c.db, c.wa)
	if !ok {
		return false
	}
	faceB.kind = axisFaceB
	faceB.normal = rl.Vector3Negate(faceB.normal)
	if faceB.better(best) {
		best = faceB
	}

	edge, ok := c.queryEdges()
	if !ok {
		return false
	}
	if edge.kind == axisEdges && edge.better(best) {
		best = edge
	}
	if !(best.depth > 0) || !geom.IsFinite(best.normal) {
		return false
	}

	m.Normal = best.normal
	switch best.kind {
	case axisFaceA:
		c.clipFaces(a, b, best.a, true, m)
	case axisFaceB:
		c.clipFaces(b, a, best.a, false, m)
	case axisEdges:
		c.edgeContact(a, b, best, m)
	}
	if m.N == 0 {
		return false
	}
	for i := 0; i < m.N; i++ {
		p := &m.Points[i]
		p.LocalA = xa.Local(p.WorldA)
		p.LocalB = xb.Local(p.WorldB)
	}
	return true
}

// place transforms vertices, face planes and unique edges to world space.
func place(s *shape.Convex, xf Transform, verts, normals []rl.Vector3, ds []float32, edges []rl.Vector3) ([]rl.Vector3, []rl.Vector3, []float32, []rl.Vector3) {
	verts = verts[:0]
	for _, v := range s.Vertices {
		verts = append(verts, xf.Apply(v))
	}
	normals = normals[:0]
	ds = ds[:0]
	for _, f := range s.Faces {
		n := rl.Vector3RotateByQuaternion(f.Normal, xf.Rot)
		normals = append(normals, n)
		ds = append(ds, f.D-rl.Vector3DotProduct(n, xf.Pos))
	}
	edges = edges[:0]
	for _, e := range s.UniqueEdges {
		edges = append(edges, rl.Vector3RotateByQuaternion(e, xf.Rot))
	}
	return verts, normals, ds, edges
}

// queryFaces finds the face of one hull the other penetrates least. The
// depth of a face is how far the other hull's deepest vertex lies behind
// its plane; a non-positive depth is a separating face.
func queryFaces(normals []rl.Vector3, ds []float32, other []rl.Vector3) (axisQuery, bool) {
	best := axisQuery{depth: float32(math.MaxFloat32), a: -1}
	for f, n := range normals {
		min := float32(math.MaxFloat32)
		for _, v := range other {
			if s := rl.Vector3DotProduct(n, v); s < min {
				min = s
			}
		}
		depth := -(min + ds[f])
		if depth <= 0 {
			return axisQuery{}, false
		}
		if depth < best.depth {
			best = axisQuery{depth: depth, normal: n, a: f}
		}
	}
	return best, best.a >= 0
}

// queryEdges tests the cross product of every unique edge pair, oriented
// from A to B.
func (c *collider) queryEdges() (axisQuery, bool) {
	best := axisQuery{depth: float32(math.MaxFloat32)}
	for i, ea := range c.ua {
		for j, eb := range c.ub {
			axis := geom.Cross(ea, eb)
			l2 := rl.Vector3LengthSqr(axis)
			if l2 < minCrossLenSqr {
				continue
			}
			axis = rl.Vector3Scale(axis, 1/float32(math.Sqrt(float64(l2))))

			minA, maxA := project(c.wa, axis)
			minB, maxB := project(c.wb, axis)
			forward := maxA - minB
			backward := maxB - minA
			if forward <= 0 || backward <= 0 {
				return axisQuery{}, false
			}
			depth, n := forward, axis
			if backward < forward {
				depth, n = backward, rl.Vector3Negate(axis)
			}
			if depth < best.depth {
				best = axisQuery{kind: axisEdges, depth: depth, normal: n, a: i, b: j}
			}
		}
	}
	return best, true
}

func project(verts []rl.Vector3, axis rl.Vector3) (float32, float32) {
	min := float32(math.MaxFloat32)
	max := -min
	for _, v := range verts {
		s := rl.Vector3DotProduct(axis, v)
		if s < min {
			min = s
		}
		if s > max {
			max = s
		}
	}
	return min, max
}
