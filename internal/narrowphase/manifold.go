// Package narrowphase generates contact manifolds between convex polytopes
// with a separating axis test and reference-face clipping.
package narrowphase

import (
	"gpurigid/internal/geom"

	rl "github.com/gen2brain/raylib-go/raylib"
)

// MaxPoints is the most contact points a manifold keeps.
const MaxPoints = 4

// Transform places a shape in the world.
type Transform struct {
	Pos rl.Vector3
	Rot rl.Quaternion
}

func (t Transform) Apply(v rl.Vector3) rl.Vector3 {
	return rl.Vector3Add(t.Pos, rl.Vector3RotateByQuaternion(v, t.Rot))
}

// Local maps a world point into the transform's frame.
func (t Transform) Local(p rl.Vector3) rl.Vector3 {
	inv := rl.Quaternion{X: -t.Rot.X, Y: -t.Rot.Y, Z: -t.Rot.Z, W: t.Rot.W}
	return rl.Vector3RotateByQuaternion(rl.Vector3Subtract(p, t.Pos), inv)
}

func (t Transform) valid() bool {
	return geom.IsFinite(t.Pos) && geom.IsFiniteQuat(t.Rot)
}

// Point is one contact. WorldA and WorldB are the deepest points of each
// body, so WorldA - WorldB = Normal * Depth.
type Point struct {
	LocalA, LocalB rl.Vector3
	WorldA, WorldB rl.Vector3
	Depth          float32
	Feature        uint64

	NormalImpulse  float32
	TangentImpulse [2]float32
}

// Manifold holds the contacts of one body pair. Normal points from A to B.
type Manifold struct {
	A, B   uint32
	Normal rl.Vector3
	Points [MaxPoints]Point
	N      int
}

// Feature kinds.
const (
	FeatureFaceA uint32 = iota
	FeatureFaceB
	FeatureEdges
)

const (
	featureBits = 14 // shape.MaxFeatures
	featureMask = 1<<featureBits - 1
	codeBits    = 2*featureBits + 1
)

// Feature packs a contact's origin: the kind of axis, the reference and
// incident feature indices and the clip vertex code. A point that comes
// from the same features next step gets the same id. Indices are below
// shape.MaxFeatures, so ids never alias.
func Feature(kind uint32, ref, inc int, code uint32) uint64 {
	return uint64(kind)<<(2*featureBits+codeBits) |
		uint64(ref&featureMask)<<(featureBits+codeBits) |
		uint64(inc&featureMask)<<codeBits |
		uint64(code)&(1<<codeBits-1)
}

// FeatureKind extracts the kind from a packed feature id.
func FeatureKind(f uint64) uint32 { return uint32(f >> (2*featureBits + codeBits)) }
