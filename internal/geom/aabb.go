// Package geom holds the small amount of linear algebra the pipeline needs on
// top of raylib's vector and quaternion types.
package geom

import rl "github.com/gen2brain/raylib-go/raylib"

type AABB struct {
	Min rl.Vector3
	Max rl.Vector3
}

// NewAABBFromCenter creates an AABB from a center point and full size dimensions.
func NewAABBFromCenter(center, size rl.Vector3) AABB {
	half := rl.Vector3Scale(size, 0.5)
	return AABB{
		Min: rl.Vector3Subtract(center, half),
		Max: rl.Vector3Add(center, half),
	}
}

// EmptyAABB is the identity for Union.
func EmptyAABB() AABB {
	inf := float32(3.4e38)
	return AABB{
		Min: rl.Vector3{X: inf, Y: inf, Z: inf},
		Max: rl.Vector3{X: -inf, Y: -inf, Z: -inf},
	}
}

// Intersects treats touching boxes as overlapping.
func (a AABB) Intersects(b AABB) bool {
	return a.Min.X <= b.Max.X && a.Max.X >= b.Min.X &&
		a.Min.Y <= b.Max.Y && a.Max.Y >= b.Min.Y &&
		a.Min.Z <= b.Max.Z && a.Max.Z >= b.Min.Z
}

func (a AABB) Center() rl.Vector3 {
	return rl.Vector3Scale(rl.Vector3Add(a.Min, a.Max), 0.5)
}

// Extents is the full size along each axis.
func (a AABB) Extents() rl.Vector3 {
	return rl.Vector3Subtract(a.Max, a.Min)
}

func (a AABB) Union(b AABB) AABB {
	return AABB{Min: rl.Vector3Min(a.Min, b.Min), Max: rl.Vector3Max(a.Max, b.Max)}
}

// Grow extends the box to contain p.
func (a AABB) Grow(p rl.Vector3) AABB {
	return AABB{Min: rl.Vector3Min(a.Min, p), Max: rl.Vector3Max(a.Max, p)}
}

// Valid reports finite bounds with Min <= Max on every axis.
func (a AABB) Valid() bool {
	return IsFinite(a.Min) && IsFinite(a.Max) &&
		a.Min.X <= a.Max.X && a.Min.Y <= a.Max.Y && a.Min.Z <= a.Max.Z
}
