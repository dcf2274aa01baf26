package narrowphase

import (
	"math"

	"gpurigid/internal/geom"
	"gpurigid/internal/shape"

	rl "github.com/gen2brain/raylib-go/raylib"
)

type clipVertex struct {
	P  rl.Vector3
	ID uint32
}

// Clip vertex codes below this are incident vertex indices; above it they
// encode the side plane and the vertex the clipped edge started from.
const clipCodeIntersection = 1 << (2 * featureBits)

// clipFaces clips the incident face of inc against the side planes of
// face refFace of ref and keeps the points behind the reference plane.
func (c *collider) clipFaces(ref, inc *shape.Convex, refFace int, refIsA bool, m *Manifold) {
	refVerts, refNormals, refDs := c.wa, c.na, c.da
	incVerts, incNormals := c.wb, c.nb
	kind := FeatureFaceA
	if !refIsA {
		refVerts, refNormals, refDs = c.wb, c.nb, c.db
		incVerts, incNormals = c.wa, c.na
		kind = FeatureFaceB
	}
	nRef := refNormals[refFace]
	dRef := refDs[refFace]

	incFace := 0
	minDot := float32(math.MaxFloat32)
	for f, n := range incNormals {
		if d := rl.Vector3DotProduct(n, nRef); d < minDot {
			minDot, incFace = d, f
		}
	}

	c.clip = c.clip[:0]
	for _, vi := range inc.Faces[incFace].Indices {
		c.clip = append(c.clip, clipVertex{P: incVerts[vi], ID: uint32(vi)})
	}

	face := ref.Faces[refFace]
	for j, vi := range face.Indices {
		v0 := refVerts[vi]
		v1 := refVerts[face.Indices[(j+1)%len(face.Indices)]]
		side := geom.Cross(rl.Vector3Subtract(v1, v0), nRef)
		l := rl.Vector3Length(side)
		if l < 1e-6 {
			continue
		}
		side = rl.Vector3Scale(side, 1/l)
		c.tmp = clipPolygon(c.clip, side, -rl.Vector3DotProduct(side, v0), j, c.tmp)
		c.clip, c.tmp = c.tmp, c.clip
		if len(c.clip) == 0 {
			return
		}
	}

	c.candidates = c.candidates[:0]
	for _, cv := range c.clip {
		sep := rl.Vector3DotProduct(nRef, cv.P) + dRef
		if sep > 0 {
			continue
		}
		onRef := rl.Vector3Subtract(cv.P, rl.Vector3Scale(nRef, sep))
		p := Point{Depth: -sep, Feature: Feature(kind, refFace, incFace, cv.ID)}
		if refIsA {
			p.WorldA, p.WorldB = onRef, cv.P
		} else {
			p.WorldA, p.WorldB = cv.P, onRef
		}
		c.candidates = append(c.candidates, p)
	}
	reduce(c.candidates, m)
}

// clipPolygon is one Sutherland-Hodgman step: it keeps the part of the
// polygon with n·p + d <= 0.
func clipPolygon(in []clipVertex, n rl.Vector3, d float32, plane int, out []clipVertex) []clipVertex {
	out = out[:0]
	if len(in) == 0 {
		return out
	}
	prev := in[len(in)-1]
	prevDist := rl.Vector3DotProduct(n, prev.P) + d
	for _, cur := range in {
		curDist := rl.Vector3DotProduct(n, cur.P) + d
		switch {
		case prevDist <= 0 && curDist <= 0:
			out = append(out, cur)
		case prevDist <= 0:
			out = append(out, intersect(prev, cur, prevDist, curDist, plane))
		case curDist <= 0:
			out = append(out, intersect(prev, cur, prevDist, curDist, plane), cur)
		}
		prev, prevDist = cur, curDist
	}
	return out
}

func intersect(a, b clipVertex, da, db float32, plane int) clipVertex {
	t := da / (da - db)
	return clipVertex{
		P:  rl.Vector3Lerp(a.P, b.P, t),
		ID: clipCodeIntersection | uint32(plane&featureMask)<<featureBits | a.ID&featureMask,
	}
}

// reduce keeps at most four points: the deepest, the one farthest from it,
// then the two that span the largest area on either side of that segment.
func reduce(points []Point, m *Manifold) {
	if len(points) <= MaxPoints {
		m.N = copy(m.Points[:], points)
		return
	}
	n := m.Normal
	pos := func(i int) rl.Vector3 { return points[i].WorldB }
	area := func(a, b, p int) float32 {
		ab := rl.Vector3Subtract(pos(b), pos(a))
		ap := rl.Vector3Subtract(pos(p), pos(a))
		return rl.Vector3DotProduct(geom.Cross(ab, ap), n)
	}

	i0 := 0
	for i := range points {
		if points[i].Depth > points[i0].Depth {
			i0 = i
		}
	}

	i1, far := -1, float32(-1)
	for i := range points {
		if i == i0 {
			continue
		}
		if d := rl.Vector3LengthSqr(rl.Vector3Subtract(pos(i), pos(i0))); d > far {
			i1, far = i, d
		}
	}

	i2, i3 := -1, -1
	maxArea, minArea := float32(0), float32(0)
	for i := range points {
		if i == i0 || i == i1 {
			continue
		}
		a := area(i0, i1, i)
		if i2 < 0 || a > maxArea {
			i2, maxArea = i, a
		}
		if i3 < 0 || a < minArea {
			i3, minArea = i, a
		}
	}
	if minArea >= 0 || i3 == i2 {
		// Everything lies on one side: take the point farthest outside the
		// triangle's other two edges.
		i3 = -1
		worst := float32(0)
		for i := range points {
			if i == i0 || i == i1 || i == i2 {
				continue
			}
			a := area(i1, i2, i)
			if b := area(i2, i0, i); b < a {
				a = b
			}
			if i3 < 0 || a < worst {
				i3, worst = i, a
			}
		}
	}

	m.N = 0
	for _, i := range [...]int{i0, i1, i2, i3} {
		if i >= 0 {
			m.Points[m.N] = points[i]
			m.N++
		}
	}
}
