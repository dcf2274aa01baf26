package narrowphase

import (
	"gpurigid/internal/geom"
	"gpurigid/internal/shape"

	rl "github.com/gen2brain/raylib-go/raylib"
)

// edgeContact makes the single contact of an edge-edge axis from the
// closest points of the two supporting edges.
func (c *collider) edgeContact(a, b *shape.Convex, q axisQuery, m *Manifold) {
	n := q.normal
	ea := supportEdge(a, c.wa, q.a, n)
	eb := supportEdge(b, c.wb, q.b, rl.Vector3Negate(n))
	if ea < 0 || eb < 0 {
		return
	}
	edgeA, edgeB := a.Edges[ea], b.Edges[eb]
	pa, pb := closestOnSegments(c.wa[edgeA.V0], c.wa[edgeA.V1], c.wb[edgeB.V0], c.wb[edgeB.V1])
	depth := rl.Vector3DotProduct(rl.Vector3Subtract(pa, pb), n)
	if !(depth > 0) {
		return
	}
	m.Points[0] = Point{
		WorldA:  pa,
		WorldB:  pb,
		Depth:   depth,
		Feature: Feature(FeatureEdges, ea, eb, 0),
	}
	m.N = 1
}

// supportEdge returns the edge along unique direction u reaching farthest
// along dir, or -1.
func supportEdge(s *shape.Convex, verts []rl.Vector3, u int, dir rl.Vector3) int {
	best, bestScore := -1, float32(0)
	for i, e := range s.Edges {
		if e.Unique != u {
			continue
		}
		score := rl.Vector3DotProduct(verts[e.V0], dir) + rl.Vector3DotProduct(verts[e.V1], dir)
		if best < 0 || score > bestScore {
			best, bestScore = i, score
		}
	}
	return best
}

// closestOnSegments returns the closest points between segments p1q1 and
// p2q2.
func closestOnSegments(p1, q1, p2, q2 rl.Vector3) (rl.Vector3, rl.Vector3) {
	const eps = 1e-9
	d1 := rl.Vector3Subtract(q1, p1)
	d2 := rl.Vector3Subtract(q2, p2)
	r := rl.Vector3Subtract(p1, p2)
	a := rl.Vector3DotProduct(d1, d1)
	e := rl.Vector3DotProduct(d2, d2)
	f := rl.Vector3DotProduct(d2, r)

	var s, t float32
	switch {
	case a <= eps && e <= eps:
		return p1, p2
	case a <= eps:
		t = geom.Clamp(f/e, 0, 1)
	default:
		cc := rl.Vector3DotProduct(d1, r)
		if e <= eps {
			s = geom.Clamp(-cc/a, 0, 1)
		} else {
			b := rl.Vector3DotProduct(d1, d2)
			denom := a*e - b*b
			if denom > eps {
				s = geom.Clamp((b*f-cc*e)/denom, 0, 1)
			}
			t = (b*s + f) / e
			if t < 0 {
				t = 0
				s = geom.Clamp(-cc/a, 0, 1)
			} else if t > 1 {
				t = 1
				s = geom.Clamp((b-cc)/a, 0, 1)
			}
		}
	}
	return rl.Vector3Add(p1, rl.Vector3Scale(d1, s)), rl.Vector3Add(p2, rl.Vector3Scale(d2, t))
}
