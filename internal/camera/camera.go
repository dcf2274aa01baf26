// Package camera is the orbit camera of the viewer.
package camera

import (
	"math"

	rl "github.com/gen2brain/raylib-go/raylib"
)

// Input is one frame of camera controls.
type Input struct {
	MouseDelta rl.Vector2
	Dragging   bool
	Wheel      float32
	// Pan moves the target along the ground plane, x right and y forward.
	Pan rl.Vector2
}

type OrbitCamera struct {
	Target   rl.Vector3
	Yaw      float32 // degrees
	Pitch    float32 // degrees
	Distance float32

	LookSpeed   float32
	ZoomSpeed   float32
	PanSpeed    float32
	MinDistance float32
	MaxDistance float32
}

func New(target rl.Vector3, distance float32) *OrbitCamera {
	return &OrbitCamera{
		Target:      target,
		Yaw:         -135.0,
		Pitch:       30.0,
		Distance:    distance,
		LookSpeed:   0.3,
		ZoomSpeed:   0.1,
		PanSpeed:    10.0, // Units per second
		MinDistance: 2,
		MaxDistance: 500,
	}
}

func (c *OrbitCamera) Update(in Input, deltaTime float32) {
	if in.Dragging {
		c.Yaw += in.MouseDelta.X * c.LookSpeed
		c.Pitch += in.MouseDelta.Y * c.LookSpeed
	}
	// Clamp pitch
	if c.Pitch > 89 {
		c.Pitch = 89
	}
	if c.Pitch < -89 {
		c.Pitch = -89
	}

	// Zoom is multiplicative so it feels the same near and far
	c.Distance *= 1 - in.Wheel*c.ZoomSpeed
	if c.Distance < c.MinDistance {
		c.Distance = c.MinDistance
	}
	if c.Distance > c.MaxDistance {
		c.Distance = c.MaxDistance
	}

	forward, right := c.getDirections()
	step := c.PanSpeed * deltaTime * c.Distance / 20
	c.Target.X += (forward.X*in.Pan.Y + right.X*in.Pan.X) * step
	c.Target.Z += (forward.Z*in.Pan.Y + right.Z*in.Pan.X) * step
}

// getDirections returns the horizontal view direction and its right vector.
func (c *OrbitCamera) getDirections() (forward, right rl.Vector3) {
	yawRad := float64(c.Yaw) * math.Pi / 180
	forward = rl.Vector3{
		X: float32(-math.Cos(yawRad)),
		Y: 0,
		Z: float32(-math.Sin(yawRad)),
	}
	right = rl.Vector3{
		X: float32(math.Sin(yawRad)),
		Y: 0,
		Z: float32(-math.Cos(yawRad)),
	}
	return
}

// Position is the eye point on the orbit sphere.
func (c *OrbitCamera) Position() rl.Vector3 {
	yawRad := float64(c.Yaw) * math.Pi / 180
	pitchRad := float64(c.Pitch) * math.Pi / 180
	d := float64(c.Distance)
	return rl.Vector3{
		X: c.Target.X + float32(d*math.Cos(yawRad)*math.Cos(pitchRad)),
		Y: c.Target.Y + float32(d*math.Sin(pitchRad)),
		Z: c.Target.Z + float32(d*math.Sin(yawRad)*math.Cos(pitchRad)),
	}
}

func (c *OrbitCamera) GetRaylibCamera() rl.Camera3D {
	return rl.Camera3D{
		Position:   c.Position(),
		Target:     c.Target,
		Up:         rl.Vector3{X: 0, Y: 1, Z: 0},
		Fovy:       45,
		Projection: rl.CameraPerspective,
	}
}
