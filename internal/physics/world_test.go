package physics

import (
	"bytes"
	"errors"
	"log/slog"
	"math"
	"strings"
	"testing"

	"gpurigid/internal/compute"
	"gpurigid/internal/narrowphase"
	"gpurigid/internal/shape"

	rl "github.com/gen2brain/raylib-go/raylib"
)

var identity = rl.Quaternion{W: 1}

func hostConfig() Config {
	cfg := DefaultConfig()
	cfg.Executor = "host"
	return cfg
}

func newWorld(t testing.TB, cfg Config, opts ...Option) *World {
	t.Helper()
	w, err := New(cfg, opts...)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(w.Close)
	return w
}

func addBox(t testing.TB, w *World, half rl.Vector3) ShapeID {
	t.Helper()
	id, err := w.RegisterShape(shape.BoxVertices(half), shape.BoxFaces(), nil)
	if err != nil {
		t.Fatalf("RegisterShape failed: %v", err)
	}
	return id
}

func addBody(t testing.TB, w *World, s ShapeID, mass float32, pos rl.Vector3) BodyID {
	t.Helper()
	id, err := w.RegisterBody(s, mass, pos, identity)
	if err != nil {
		t.Fatalf("RegisterBody failed: %v", err)
	}
	return id
}

// groundAndBox puts a unit cube just above a static slab whose top is y=0.
func groundAndBox(t testing.TB, w *World, y float32) (BodyID, BodyID) {
	slab := addBox(t, w, rl.Vector3{X: 10, Y: 0.5, Z: 10})
	cube := addBox(t, w, rl.Vector3{X: 0.5, Y: 0.5, Z: 0.5})
	return addBody(t, w, slab, 0, rl.Vector3{Y: -0.5}), addBody(t, w, cube, 1, rl.Vector3{Y: y})
}

// pyramid stacks unit cubes on a slab, levels wide at the bottom.
func pyramid(t testing.TB, w *World, levels int) {
	slab := addBox(t, w, rl.Vector3{X: 20, Y: 0.5, Z: 20})
	cube := addBox(t, w, rl.Vector3{X: 0.5, Y: 0.5, Z: 0.5})
	addBody(t, w, slab, 0, rl.Vector3{Y: -0.5})
	for level := 0; level < levels; level++ {
		for i := 0; i < levels-level; i++ {
			for k := 0; k < levels-level; k++ {
				pos := rl.Vector3{
					X: float32(i) + 0.5*float32(level) - float32(levels)/2,
					Y: 0.5 + float32(level)*0.999,
					Z: float32(k) + 0.5*float32(level) - float32(levels)/2,
				}
				addBody(t, w, cube, 1, pos)
			}
		}
	}
}

func TestBoxComesToRestOnGround(t *testing.T) {
	w := newWorld(t, hostConfig())
	_, cube := groundAndBox(t, w, 0.5)

	for i := 0; i < 120; i++ {
		if err := w.Step(1.0 / 60); err != nil {
			t.Fatalf("Step %d failed: %v", i, err)
		}
	}
	pos, rot, _ := w.BodyTransform(cube)
	v, _, _ := w.BodyVelocity(cube)

	drift := w.Config().Solver.PositionDrift
	if pen := 0.5 - pos.Y; pen > drift || pen < -0.01 {
		t.Errorf("Expected penetration within the drift, got %f", pen)
	}
	if math.Abs(float64(v.Y)) > 0.05 {
		t.Errorf("Expected near-zero normal velocity, got %f", v.Y)
	}
	if math.Abs(float64(rot.W)) < 0.999 {
		t.Errorf("Expected the cube to stay upright, got %v", rot)
	}
	if w.Stats().Manifolds != 1 {
		t.Errorf("Expected 1 manifold, got %d", w.Stats().Manifolds)
	}
}

func TestStepZeroMovesNothing(t *testing.T) {
	w := newWorld(t, hostConfig())
	pyramid(t, w, 4)

	type xf struct {
		pos rl.Vector3
		rot rl.Quaternion
	}
	before := make([]xf, w.BodyCount())
	for i := range before {
		before[i].pos, before[i].rot, _ = w.BodyTransform(BodyID(i))
	}
	for i := 0; i < 3; i++ {
		if err := w.Step(0); err != nil {
			t.Fatalf("Step(0) failed: %v", err)
		}
	}
	for i := range before {
		pos, rot, _ := w.BodyTransform(BodyID(i))
		if pos != before[i].pos || rot != before[i].rot {
			t.Errorf("Body %d moved: %v %v -> %v %v", i, before[i].pos, before[i].rot, pos, rot)
		}
	}
}

func TestStepRejectsBadTimestep(t *testing.T) {
	w := newWorld(t, hostConfig())
	for _, dt := range []float32{-1, float32(math.NaN()), float32(math.Inf(1))} {
		if err := w.Step(dt); !errors.Is(err, ErrInvalidTimestep) {
			t.Errorf("dt %v: expected ErrInvalidTimestep, got %v", dt, err)
		}
	}
}

func TestInvalidIds(t *testing.T) {
	w := newWorld(t, hostConfig())
	ground, _ := groundAndBox(t, w, 2)

	if _, err := w.RegisterBody(7, 1, rl.Vector3{}, identity); !errors.Is(err, ErrInvalidShape) {
		t.Errorf("Expected ErrInvalidShape, got %v", err)
	}
	if _, err := w.RegisterBody(0, -1, rl.Vector3{}, identity); !errors.Is(err, ErrInvalidBody) {
		t.Errorf("Expected ErrInvalidBody for negative mass, got %v", err)
	}
	nan := float32(math.NaN())
	if _, err := w.RegisterBody(0, 1, rl.Vector3{X: nan}, identity); !errors.Is(err, ErrInvalidBody) {
		t.Errorf("Expected ErrInvalidBody for a NaN position, got %v", err)
	}
	if _, _, err := w.BodyTransform(42); !errors.Is(err, ErrInvalidBody) {
		t.Errorf("Expected ErrInvalidBody, got %v", err)
	}
	if err := w.SetVelocity(ground, rl.Vector3{X: 1}, rl.Vector3{}); !errors.Is(err, ErrInvalidBody) {
		t.Errorf("Expected ErrInvalidBody for a static body, got %v", err)
	}
	if err := w.SetMaterial(ground, 0.5, 2); !errors.Is(err, ErrInvalidBody) {
		t.Errorf("Expected ErrInvalidBody for restitution 2, got %v", err)
	}

	flat := []rl.Vector3{{}, {X: 1}, {Z: 1}, {X: 1, Z: 1}}
	faces := []shape.FaceDesc{{Indices: []int{0, 1, 3, 2}}, {Indices: []int{0, 2, 3, 1}}}
	if _, err := w.RegisterShape(flat, faces, nil); !errors.Is(err, ErrDegenerateGeometry) {
		t.Errorf("Expected ErrDegenerateGeometry, got %v", err)
	}
	if w.BodyCount() != 2 {
		t.Errorf("Expected 2 bodies after failed registrations, got %d", w.BodyCount())
	}
}

func TestBodyCapacity(t *testing.T) {
	cfg := hostConfig()
	cfg.Broadphase.MaxProxies = 2
	w := newWorld(t, cfg)
	groundAndBox(t, w, 2)
	if _, err := w.RegisterBody(1, 1, rl.Vector3{Y: 4}, identity); !errors.Is(err, ErrCapacityExceeded) {
		t.Errorf("Expected ErrCapacityExceeded, got %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Errorf("Default config invalid: %v", err)
	}
	cfg := DefaultConfig()
	cfg.Executor = "fpga"
	if err := cfg.Validate(); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("Expected ErrInvalidConfig, got %v", err)
	}
	cfg = DefaultConfig()
	cfg.Solver.Split = 3
	if _, err := New(cfg); err == nil {
		t.Error("Expected New to reject split 3")
	}
}

func TestExecutorsProduceIdenticalState(t *testing.T) {
	dev := compute.NewDeviceExecutor(4)
	defer dev.Close()

	run := func(ex compute.Executor) *World {
		w := newWorld(t, DefaultConfig(), WithExecutor(ex))
		pyramid(t, w, 6)
		for i := 0; i < 30; i++ {
			if err := w.Step(1.0 / 60); err != nil {
				t.Fatalf("%s step %d failed: %v", ex.Name(), i, err)
			}
		}
		return w
	}
	host, device := run(compute.NewHostExecutor()), run(dev)

	for i := 0; i < host.BodyCount(); i++ {
		hp, hr, _ := host.BodyTransform(BodyID(i))
		dp, dr, _ := device.BodyTransform(BodyID(i))
		if hp != dp || hr != dr {
			t.Fatalf("Body %d differs: host %v %v, device %v %v", i, hp, hr, dp, dr)
		}
	}
	if host.Stats().Solve.Constraints != device.Stats().Solve.Constraints {
		t.Errorf("Expected equal constraint counts, got %d and %d",
			host.Stats().Solve.Constraints, device.Stats().Solve.Constraints)
	}
}

func TestWarmStartMatchesPoints(t *testing.T) {
	w := newWorld(t, hostConfig())
	groundAndBox(t, w, 0.499)
	for i := 0; i < 5; i++ {
		if err := w.Step(1.0 / 60); err != nil {
			t.Fatal(err)
		}
	}
	if got := w.Stats().WarmStarted; got != 4 {
		t.Errorf("Expected all 4 points warm started, got %d", got)
	}
	var total float32
	for _, p := range w.Contacts()[0].Points[:w.Contacts()[0].N] {
		total += p.NormalImpulse
	}
	// The contact carries the weight of one step of gravity.
	if want := float32(9.8) / 60; math.Abs(float64(total-want)) > 0.02 {
		t.Errorf("Expected total normal impulse near %f, got %f", want, total)
	}
}

func TestContactEvents(t *testing.T) {
	w := newWorld(t, hostConfig())
	ground, cube := groundAndBox(t, w, 0.6)

	begins := 0
	for i := 0; i < 60; i++ {
		if err := w.Step(1.0 / 60); err != nil {
			t.Fatal(err)
		}
		for _, e := range w.ContactEvents() {
			if !e.Begin {
				t.Fatalf("Unexpected end event at step %d: %+v", i, e)
			}
			if e.A != ground || e.B != cube {
				t.Errorf("Expected pair (%d,%d), got (%d,%d)", ground, cube, e.A, e.B)
			}
			begins++
		}
	}
	if begins != 1 {
		t.Fatalf("Expected 1 begin event, got %d", begins)
	}

	if err := w.SetVelocity(cube, rl.Vector3{Y: 10}, rl.Vector3{}); err != nil {
		t.Fatal(err)
	}
	ended := false
	for i := 0; i < 5 && !ended; i++ {
		if err := w.Step(1.0 / 60); err != nil {
			t.Fatal(err)
		}
		for _, e := range w.ContactEvents() {
			ended = ended || !e.Begin
		}
	}
	if !ended {
		t.Error("Expected an end event after launching the cube")
	}
}

func TestRaycast(t *testing.T) {
	w := newWorld(t, hostConfig())
	ground, cube := groundAndBox(t, w, 3)

	hit, ok := w.Raycast(rl.Vector3{Y: 10}, rl.Vector3{Y: -2}, 100)
	if !ok || hit.Body != cube {
		t.Fatalf("Expected to hit the cube, got %+v %v", hit, ok)
	}
	if math.Abs(float64(hit.Distance-6.5)) > 1e-4 || math.Abs(float64(hit.Normal.Y-1)) > 1e-5 {
		t.Errorf("Expected distance 6.5 and normal +y, got %f %v", hit.Distance, hit.Normal)
	}

	hit, ok = w.Raycast(rl.Vector3{X: 5, Y: 10, Z: 5}, rl.Vector3{Y: -1}, 100)
	if !ok || hit.Body != ground || math.Abs(float64(hit.Point.Y)) > 1e-4 {
		t.Errorf("Expected to hit the ground top, got %+v %v", hit, ok)
	}

	if _, ok := w.Raycast(rl.Vector3{Y: 10}, rl.Vector3{Y: 1}, 100); ok {
		t.Error("Expected an upward ray to miss")
	}
	if _, ok := w.Raycast(rl.Vector3{Y: 10}, rl.Vector3{Y: -1}, 5); ok {
		t.Error("Expected a short ray to miss")
	}
}

func TestLoggerReportsDroppedPairs(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	cfg := hostConfig()
	cfg.Broadphase.MaxPairs = 1
	w := newWorld(t, cfg, WithLogger(logger))
	cube := addBox(t, w, rl.Vector3{X: 0.5, Y: 0.5, Z: 0.5})
	for i := 0; i < 3; i++ {
		addBody(t, w, cube, 1, rl.Vector3{X: float32(i) * 0.1})
	}
	if err := w.Step(1.0 / 60); err != nil {
		t.Fatal(err)
	}
	if w.Stats().Broad.Dropped != 2 {
		t.Errorf("Expected 2 dropped pairs, got %d", w.Stats().Broad.Dropped)
	}
	if !strings.Contains(buf.String(), "pairs dropped") {
		t.Errorf("Expected a dropped pairs warning, got %q", buf.String())
	}
	if !strings.Contains(buf.String(), "executor=host") {
		t.Errorf("Expected the executor to be logged, got %q", buf.String())
	}
}

func TestReset(t *testing.T) {
	w := newWorld(t, hostConfig())
	groundAndBox(t, w, 0.5)
	if err := w.Step(1.0 / 60); err != nil {
		t.Fatal(err)
	}
	w.Reset()
	if w.BodyCount() != 0 || len(w.Contacts()) != 0 {
		t.Errorf("Expected an empty world, got %d bodies %d contacts", w.BodyCount(), len(w.Contacts()))
	}
	if _, err := w.Shape(0); !errors.Is(err, ErrInvalidShape) {
		t.Errorf("Expected shapes cleared, got %v", err)
	}
	if err := w.Step(1.0 / 60); err != nil {
		t.Errorf("Step on an empty world failed: %v", err)
	}
}

func TestSetSolverConfig(t *testing.T) {
	w := newWorld(t, hostConfig())
	groundAndBox(t, w, 0.499)

	cfg := w.Config().Solver
	cfg.Split = 5
	if err := w.SetSolverConfig(cfg); err == nil {
		t.Error("Expected split 5 to be rejected")
	}
	cfg.Split = 8
	cfg.Iterations = 12
	if err := w.SetSolverConfig(cfg); err != nil {
		t.Fatalf("SetSolverConfig failed: %v", err)
	}
	if err := w.Step(1.0 / 60); err != nil {
		t.Fatal(err)
	}
	if got := w.Stats().Solve.Iterations; got != 12 {
		t.Errorf("Expected 12 iterations, got %d", got)
	}
}

func TestFailedStepKeepsContacts(t *testing.T) {
	w := newWorld(t, hostConfig())
	_, cube := groundAndBox(t, w, 0.499)
	for i := 0; i < 3; i++ {
		if err := w.Step(1.0 / 60); err != nil {
			t.Fatal(err)
		}
	}
	before := append([]narrowphase.Manifold(nil), w.Contacts()...)
	if len(before) != 1 || before[0].Points[0].NormalImpulse <= 0 {
		t.Fatalf("Expected one loaded manifold, got %d", len(before))
	}
	pos, _, _ := w.BodyTransform(cube)

	cfg := w.Config().Solver
	cfg.WarmStart = false
	cfg.MaxConstraints = 1
	if err := w.SetSolverConfig(cfg); err != nil {
		t.Fatal(err)
	}
	if err := w.Step(1.0 / 60); !errors.Is(err, ErrCapacityExceeded) {
		t.Fatalf("Expected ErrCapacityExceeded, got %v", err)
	}

	after := w.Contacts()
	if len(after) != len(before) {
		t.Fatalf("Expected %d manifolds, got %d", len(before), len(after))
	}
	if after[0] != before[0] {
		t.Errorf("Expected contacts of the last good step, got %+v", after[0])
	}
	if got, _, _ := w.BodyTransform(cube); got != pos {
		t.Errorf("Expected the cube to stay at %v, got %v", pos, got)
	}
}

func BenchmarkStepPyramid(b *testing.B) {
	for _, kind := range []string{"host", "device"} {
		b.Run(kind, func(b *testing.B) {
			cfg := DefaultConfig()
			cfg.Executor = kind
			w := newWorld(b, cfg)
			pyramid(b, w, 8)
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if err := w.Step(1.0 / 60); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}
