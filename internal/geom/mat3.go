package geom

import rl "github.com/gen2brain/raylib-go/raylib"

// Mat3 is a row-major 3x3 matrix, used for inertia tensors and rotations.
type Mat3 [9]float32

func Identity() Mat3 {
	return Mat3{1, 0, 0, 0, 1, 0, 0, 0, 1}
}

func Diag(x, y, z float32) Mat3 {
	return Mat3{x, 0, 0, 0, y, 0, 0, 0, z}
}

// FromQuat builds the rotation matrix of q by rotating the basis vectors,
// so it agrees with rl.Vector3RotateByQuaternion.
func FromQuat(q rl.Quaternion) Mat3 {
	c0 := rl.Vector3RotateByQuaternion(rl.Vector3{X: 1}, q)
	c1 := rl.Vector3RotateByQuaternion(rl.Vector3{Y: 1}, q)
	c2 := rl.Vector3RotateByQuaternion(rl.Vector3{Z: 1}, q)
	return Mat3{
		c0.X, c1.X, c2.X,
		c0.Y, c1.Y, c2.Y,
		c0.Z, c1.Z, c2.Z,
	}
}

func (m Mat3) Row(i int) rl.Vector3 {
	return rl.Vector3{X: m[3*i], Y: m[3*i+1], Z: m[3*i+2]}
}

func (m Mat3) Col(i int) rl.Vector3 {
	return rl.Vector3{X: m[i], Y: m[3+i], Z: m[6+i]}
}

func (m Mat3) MulVec(v rl.Vector3) rl.Vector3 {
	return rl.Vector3{
		X: m[0]*v.X + m[1]*v.Y + m[2]*v.Z,
		Y: m[3]*v.X + m[4]*v.Y + m[5]*v.Z,
		Z: m[6]*v.X + m[7]*v.Y + m[8]*v.Z,
	}
}

func (m Mat3) Mul(n Mat3) Mat3 {
	var out Mat3
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			out[3*r+c] = m[3*r]*n[c] + m[3*r+1]*n[3+c] + m[3*r+2]*n[6+c]
		}
	}
	return out
}

func (m Mat3) Transpose() Mat3 {
	return Mat3{
		m[0], m[3], m[6],
		m[1], m[4], m[7],
		m[2], m[5], m[8],
	}
}

// Rotate expresses a body-space tensor in world space: R * m * R^T.
func (m Mat3) Rotate(r Mat3) Mat3 {
	return r.Mul(m).Mul(r.Transpose())
}
