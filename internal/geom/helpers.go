package geom

import (
	"math"

	rl "github.com/gen2brain/raylib-go/raylib"
)

// Cross computes the cross product of two vectors
func Cross(a, b rl.Vector3) rl.Vector3 {
	return rl.Vector3{
		X: a.Y*b.Z - a.Z*b.Y,
		Y: a.Z*b.X - a.X*b.Z,
		Z: a.X*b.Y - a.Y*b.X,
	}
}

func Dot(a, b rl.Vector3) float32 {
	return a.X*b.X + a.Y*b.Y + a.Z*b.Z
}

// Clamp restricts a value to a range
func Clamp(v, min, max float32) float32 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func Abs(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}

func IsFinite32(f float32) bool {
	return !math.IsNaN(float64(f)) && !math.IsInf(float64(f), 0)
}

func IsFinite(v rl.Vector3) bool {
	return IsFinite32(v.X) && IsFinite32(v.Y) && IsFinite32(v.Z)
}

func IsFiniteQuat(q rl.Quaternion) bool {
	return IsFinite32(q.X) && IsFinite32(q.Y) && IsFinite32(q.Z) && IsFinite32(q.W)
}

// OrthoBasis returns two unit tangents that complete n to a right-handed
// orthonormal basis. The same n always yields the same tangents, which keeps
// friction impulses comparable between steps.
func OrthoBasis(n rl.Vector3) (rl.Vector3, rl.Vector3) {
	if Abs(n.Z) > 0.7071067811865476 {
		a := n.Y*n.Y + n.Z*n.Z
		k := 1 / float32(math.Sqrt(float64(a)))
		p := rl.Vector3{X: 0, Y: -n.Z * k, Z: n.Y * k}
		q := rl.Vector3{X: a * k, Y: -n.X * p.Z, Z: n.X * p.Y}
		return p, q
	}
	a := n.X*n.X + n.Y*n.Y
	k := 1 / float32(math.Sqrt(float64(a)))
	p := rl.Vector3{X: -n.Y * k, Y: n.X * k, Z: 0}
	q := rl.Vector3{X: -n.Z * p.Y, Y: n.Z * p.X, Z: a * k}
	return p, q
}

// IntegrateOrientation advances q by angular velocity w (rad/s) over dt:
// q + dt/2 * (w,0) * q, renormalized.
func IntegrateOrientation(q rl.Quaternion, w rl.Vector3, dt float32) rl.Quaternion {
	if dt == 0 {
		return q
	}
	h := dt * 0.5
	dq := rl.Quaternion{
		X: w.X*q.W + w.Y*q.Z - w.Z*q.Y,
		Y: w.Y*q.W + w.Z*q.X - w.X*q.Z,
		Z: w.Z*q.W + w.X*q.Y - w.Y*q.X,
		W: -w.X*q.X - w.Y*q.Y - w.Z*q.Z,
	}
	out := rl.Quaternion{
		X: q.X + dq.X*h,
		Y: q.Y + dq.Y*h,
		Z: q.Z + dq.Z*h,
		W: q.W + dq.W*h,
	}
	return NormalizeQuat(out)
}

// NormalizeQuat returns identity for a zero-length input.
func NormalizeQuat(q rl.Quaternion) rl.Quaternion {
	l := float32(math.Sqrt(float64(q.X*q.X + q.Y*q.Y + q.Z*q.Z + q.W*q.W)))
	if l == 0 || !IsFinite32(l) {
		return rl.QuaternionIdentity()
	}
	inv := 1 / l
	return rl.Quaternion{X: q.X * inv, Y: q.Y * inv, Z: q.Z * inv, W: q.W * inv}
}
