// Viewer: steps a scene and draws body wireframes and contact points.
package main

import (
	"flag"
	"fmt"
	"log"

	"gpurigid/internal/camera"
	"gpurigid/internal/physics"
	"gpurigid/internal/scene"

	gui "github.com/gen2brain/raylib-go/raygui"
	rl "github.com/gen2brain/raylib-go/raylib"
)

const (
	panelW   = 240
	timestep = 1.0 / 60
)

var (
	colorBgPanel = rl.NewColor(30, 30, 36, 230)
	colorText    = rl.NewColor(220, 220, 230, 255)
	colorContact = rl.NewColor(255, 80, 80, 255)
)

type viewer struct {
	file  *scene.File
	cfg   physics.Config
	world *physics.World
	insts []scene.Instance
	cam   *camera.OrbitCamera

	paused       bool
	showContacts bool
	stepOnce     bool
	lastErr      error
}

func main() {
	scenePath := flag.String("scene", "", "scene file (JSON); overrides -builtin")
	builtin := flag.String("builtin", "pyramid", "built-in scene: pyramid or rain")
	n := flag.Int("n", 8, "pyramid levels or rain body count")
	gpu := flag.Bool("gpu", false, "hash broadphase cells on the GPU")
	flag.Parse()

	f, err := loadScene(*scenePath, *builtin, *n)
	if err != nil {
		log.Fatalf("Failed to load scene: %v", err)
	}

	rl.SetConfigFlags(rl.FlagMsaa4xHint | rl.FlagWindowResizable)
	rl.InitWindow(1280, 800, "gpurigid viewer")
	defer rl.CloseWindow()
	rl.SetTargetFPS(60)

	v := &viewer{
		file:         f,
		cfg:          f.PhysicsConfig(),
		cam:          camera.New(rl.Vector3{Y: 2}, 25),
		showContacts: true,
	}
	v.cfg.GPU = v.cfg.GPU || *gpu
	if err := v.rebuild(); err != nil {
		log.Fatalf("Failed to build scene: %v", err)
	}
	defer func() { v.world.Close() }()

	for !rl.WindowShouldClose() {
		v.update()
		v.draw()
	}
}

func loadScene(path, builtin string, n int) (*scene.File, error) {
	if path != "" {
		return scene.Load(path)
	}
	switch builtin {
	case "pyramid":
		return scene.Pyramid(n), nil
	case "rain":
		return scene.Rain(n, 1), nil
	}
	return nil, fmt.Errorf("unknown built-in scene %q", builtin)
}

// rebuild creates a fresh world from the scene with the current config.
func (v *viewer) rebuild() error {
	w, err := physics.New(v.cfg)
	if err != nil {
		return err
	}
	insts, err := v.file.Build(w)
	if err != nil {
		w.Close()
		return err
	}
	if v.world != nil {
		v.world.Close()
	}
	v.world, v.insts = w, insts
	v.lastErr = nil
	log.Printf("Viewer: %d bodies on the %s executor", w.BodyCount(), v.cfg.Executor)
	return nil
}

func (v *viewer) update() {
	mouse := rl.GetMousePosition()
	overPanel := mouse.X < panelW

	var pan rl.Vector2
	if rl.IsKeyDown(rl.KeyW) {
		pan.Y++
	}
	if rl.IsKeyDown(rl.KeyS) {
		pan.Y--
	}
	if rl.IsKeyDown(rl.KeyD) {
		pan.X++
	}
	if rl.IsKeyDown(rl.KeyA) {
		pan.X--
	}
	in := camera.Input{
		MouseDelta: rl.GetMouseDelta(),
		Dragging:   rl.IsMouseButtonDown(rl.MouseRightButton),
		Pan:        pan,
	}
	if !overPanel {
		in.Wheel = rl.GetMouseWheelMove()
	}
	v.cam.Update(in, rl.GetFrameTime())

	if rl.IsKeyPressed(rl.KeySpace) {
		v.paused = !v.paused
	}
	if rl.IsKeyPressed(rl.KeyR) {
		v.reset()
	}
	if rl.IsKeyPressed(rl.KeyN) {
		v.stepOnce = true
	}

	if (!v.paused || v.stepOnce) && v.lastErr == nil {
		if err := v.world.Step(timestep); err != nil {
			v.lastErr = err
			log.Printf("Viewer: step failed: %v", err)
		}
		v.stepOnce = false
	}
}

func (v *viewer) reset() {
	if err := v.rebuild(); err != nil {
		v.lastErr = err
		log.Printf("Viewer: rebuild failed: %v", err)
	}
}

func (v *viewer) draw() {
	rl.BeginDrawing()
	rl.ClearBackground(rl.NewColor(18, 18, 22, 255))

	rl.BeginMode3D(v.cam.GetRaylibCamera())
	rl.DrawGrid(40, 1)
	for _, inst := range v.insts {
		v.drawBody(inst)
	}
	if v.showContacts {
		for _, m := range v.world.Contacts() {
			for _, p := range m.Points[:m.N] {
				rl.DrawSphere(p.WorldB, 0.05, colorContact)
			}
		}
	}
	rl.EndMode3D()

	v.drawPanel()
	rl.EndDrawing()
}

func (v *viewer) drawBody(inst scene.Instance) {
	c, err := v.world.Shape(inst.Shape)
	if err != nil {
		return
	}
	pos, rot, err := v.world.BodyTransform(inst.ID)
	if err != nil {
		return
	}
	for _, e := range c.Edges {
		a := rl.Vector3Add(pos, rl.Vector3RotateByQuaternion(c.Vertices[e.V0], rot))
		b := rl.Vector3Add(pos, rl.Vector3RotateByQuaternion(c.Vertices[e.V1], rot))
		rl.DrawLine3D(a, b, inst.Color)
	}
}

func (v *viewer) drawPanel() {
	h := int32(rl.GetScreenHeight())
	rl.DrawRectangle(0, 0, panelW, h, colorBgPanel)

	x, y := float32(12), float32(12)
	row := func(height float32) rl.Rectangle {
		r := rl.NewRectangle(x, y, panelW-24, height)
		y += height + 8
		return r
	}

	rl.DrawText("SOLVER", int32(x), int32(y), 14, colorText)
	y += 22

	s := v.cfg.Solver
	iterations := gui.Slider(row(16), "", fmt.Sprintf("%d it", s.Iterations), float32(s.Iterations), 1, 32)
	s.Iterations = int(iterations + 0.5)
	s.BiasCoefficient = gui.Slider(row(16), "", fmt.Sprintf("%.2f bias", s.BiasCoefficient), s.BiasCoefficient, 0, 1)
	s.WarmStart = gui.CheckBox(row(16), "Warm start", s.WarmStart)
	s.StrictBatching = gui.CheckBox(row(16), "Strict batching", s.StrictBatching)
	if s != v.cfg.Solver {
		if err := v.world.SetSolverConfig(s); err == nil {
			v.cfg.Solver = s
		}
	}

	y += 8
	rl.DrawText("PIPELINE", int32(x), int32(y), 14, colorText)
	y += 22
	device := gui.CheckBox(row(16), "Device executor", v.cfg.Executor != "host")
	if device != (v.cfg.Executor != "host") {
		if device {
			v.cfg.Executor = "device"
		} else {
			v.cfg.Executor = "host"
		}
		v.reset()
	}
	v.showContacts = gui.CheckBox(row(16), "Show contacts", v.showContacts)

	label := "Pause"
	if v.paused {
		label = "Resume"
	}
	if gui.Button(row(24), label) {
		v.paused = !v.paused
	}
	if gui.Button(row(24), "Step") {
		v.stepOnce = true
	}
	if gui.Button(row(24), "Reset") {
		v.reset()
	}

	y += 8
	st := v.world.Stats()
	lines := []string{
		fmt.Sprintf("bodies       %d", st.Bodies),
		fmt.Sprintf("pairs        %d", st.Broad.Pairs),
		fmt.Sprintf("dropped      %d", st.Broad.Dropped),
		fmt.Sprintf("manifolds    %d", st.Manifolds),
		fmt.Sprintf("constraints  %d", st.Solve.Constraints),
		fmt.Sprintf("warm started %d", st.WarmStarted),
		fmt.Sprintf("deferred     %d", st.Solve.Overflow),
		fmt.Sprintf("gpu hash     %v", st.Broad.GPUHash),
	}
	for _, l := range lines {
		rl.DrawText(l, int32(x), int32(y), 12, colorText)
		y += 16
	}
	if v.lastErr != nil {
		rl.DrawText(v.lastErr.Error(), int32(x), h-28, 10, colorContact)
	}
	rl.DrawFPS(int32(x), h-48)
}
