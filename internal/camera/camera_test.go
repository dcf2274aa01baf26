package camera

import (
	"math"
	"testing"

	rl "github.com/gen2brain/raylib-go/raylib"
)

func near(a, b float32) bool { return math.Abs(float64(a-b)) < 1e-4 }

func TestPositionOnOrbit(t *testing.T) {
	c := New(rl.Vector3{X: 1, Y: 2, Z: 3}, 10)
	c.Yaw, c.Pitch = 0, 0
	p := c.Position()
	if !near(p.X, 11) || !near(p.Y, 2) || !near(p.Z, 3) {
		t.Errorf("Expected (11,2,3), got %v", p)
	}

	c.Pitch = 90
	p = c.Position()
	if !near(p.Y, 12) {
		t.Errorf("Expected the eye straight above at y=12, got %v", p)
	}
}

func TestUpdateClampsPitchAndZoom(t *testing.T) {
	c := New(rl.Vector3{}, 10)
	c.Update(Input{Dragging: true, MouseDelta: rl.Vector2{Y: 1000}}, 0.016)
	if c.Pitch != 89 {
		t.Errorf("Expected pitch clamped to 89, got %f", c.Pitch)
	}
	for i := 0; i < 100; i++ {
		c.Update(Input{Wheel: 1}, 0.016)
	}
	if c.Distance != c.MinDistance {
		t.Errorf("Expected distance clamped to %f, got %f", c.MinDistance, c.Distance)
	}
}

func TestMouseIgnoredWithoutDrag(t *testing.T) {
	c := New(rl.Vector3{}, 10)
	yaw := c.Yaw
	c.Update(Input{MouseDelta: rl.Vector2{X: 50}}, 0.016)
	if c.Yaw != yaw {
		t.Errorf("Expected yaw unchanged, got %f", c.Yaw)
	}
}

func TestPanMovesTowardView(t *testing.T) {
	c := New(rl.Vector3{}, 20)
	c.Yaw = 0
	c.Update(Input{Pan: rl.Vector2{Y: 1}}, 1)
	// At yaw 0 the eye sits on +x looking toward -x.
	if !(c.Target.X < 0) || !near(c.Target.Z, 0) {
		t.Errorf("Expected the target to move toward -x, got %v", c.Target)
	}
}
