package physics

import (
	"math"

	"gpurigid/internal/geom"
	"gpurigid/internal/narrowphase"
	"gpurigid/internal/shape"

	rl "github.com/gen2brain/raylib-go/raylib"
)

type RaycastHit struct {
	Body     BodyID
	Point    rl.Vector3
	Normal   rl.Vector3
	Distance float32
}

// Raycast returns the closest body hit by the ray within maxDistance.
// Rays starting inside a body hit its exit face.
func (w *World) Raycast(origin, direction rl.Vector3, maxDistance float32) (RaycastHit, bool) {
	if !geom.IsFinite(origin) || !geom.IsFinite(direction) || rl.Vector3LengthSqr(direction) == 0 {
		return RaycastHit{}, false
	}
	direction = rl.Vector3Normalize(direction)
	closest := RaycastHit{Body: -1, Distance: maxDistance}
	hit := false

	for i := range w.bodies {
		b := &w.bodies[i]
		c, _ := w.shapes.Get(b.shape)
		xf := narrowphase.Transform{Pos: b.pos, Rot: b.rot}
		if !raycastSphere(origin, direction, b.pos, c.Radius, closest.Distance) {
			continue
		}
		if h, ok := raycastConvex(origin, direction, c, xf, closest.Distance); ok {
			h.Body = BodyID(i)
			closest = h
			hit = true
		}
	}
	return closest, hit
}

// raycastSphere is the bounding sphere rejection test.
func raycastSphere(origin, direction, center rl.Vector3, radius, maxDistance float32) bool {
	oc := rl.Vector3Subtract(origin, center)
	b := rl.Vector3DotProduct(oc, direction)
	c := rl.Vector3DotProduct(oc, oc) - radius*radius
	discriminant := b*b - c
	if discriminant < 0 {
		return false
	}
	far := -b + float32(math.Sqrt(float64(discriminant)))
	near := -b - float32(math.Sqrt(float64(discriminant)))
	return far >= 0 && near <= maxDistance
}

// raycastConvex clips the ray against every face plane in the shape's
// frame, the slab test generalized to arbitrary planes.
func raycastConvex(origin, direction rl.Vector3, c *shape.Convex, xf narrowphase.Transform, maxDistance float32) (RaycastHit, bool) {
	o := xf.Local(origin)
	inv := rl.Quaternion{X: -xf.Rot.X, Y: -xf.Rot.Y, Z: -xf.Rot.Z, W: xf.Rot.W}
	d := rl.Vector3RotateByQuaternion(direction, inv)

	tmin, tmax := float32(-math.MaxFloat32), float32(math.MaxFloat32)
	enter, exit := -1, -1
	for f := range c.Faces {
		face := &c.Faces[f]
		dist := geom.Dot(face.Normal, o) + face.D
		denom := geom.Dot(face.Normal, d)
		if denom == 0 {
			if dist > 0 {
				return RaycastHit{}, false
			}
			continue
		}
		t := -dist / denom
		if denom < 0 {
			if t > tmin {
				tmin, enter = t, f
			}
		} else if t < tmax {
			tmax, exit = t, f
		}
		if tmin > tmax {
			return RaycastHit{}, false
		}
	}

	t, face := tmin, enter
	if t < 0 {
		t, face = tmax, exit
	}
	if face < 0 || t < 0 || t > maxDistance {
		return RaycastHit{}, false
	}
	return RaycastHit{
		Point:    rl.Vector3Add(origin, rl.Vector3Scale(direction, t)),
		Normal:   rl.Vector3RotateByQuaternion(c.Faces[face].Normal, xf.Rot),
		Distance: t,
	}, true
}
