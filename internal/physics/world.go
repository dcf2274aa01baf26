package physics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"gpurigid/internal/broadphase"
	"gpurigid/internal/compute"
	"gpurigid/internal/geom"
	"gpurigid/internal/narrowphase"
	"gpurigid/internal/shape"
	"gpurigid/internal/solver"

	rl "github.com/gen2brain/raylib-go/raylib"
)

// Material of a newly registered body.
const (
	DefaultFriction    = 0.5
	DefaultRestitution = 0
)

type body struct {
	shape      int
	invMass    float32
	invInertia geom.Mat3 // local frame
	pos        rl.Vector3
	rot        rl.Quaternion
	v, w       rl.Vector3

	friction    float32
	restitution float32
}

func (b *body) static() bool { return b.invMass == 0 }

// World is one pipeline context: registered shapes and bodies plus the
// buffers of every stage. A World is not safe for concurrent use.
type World struct {
	cfg Config
	log *slog.Logger

	ex     compute.Executor
	ownsEx bool

	system     *compute.System
	ownsSystem bool
	hasher     *compute.CellHasher

	shapes    shape.Registry
	uses      []int
	avgExtent float32
	extentOK  bool

	bodies []body

	bp      *broadphase.Broadphase
	np      *narrowphase.Narrowphase
	cache   *narrowphase.Cache
	builder *solver.Builder
	batcher *solver.Batcher

	// per-step views of bodies
	sbodies []solver.Body
	shapeOf []*shape.Convex
	xfs     []narrowphase.Transform

	contacts []narrowphase.Manifold
	tracker  contactTracker
	stats    Stats
}

// New validates cfg and allocates every stage.
func New(cfg Config, opts ...Option) (*World, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	w := &World{cfg: cfg, log: o.logger}
	if w.log == nil {
		w.log = newNopLogger()
	}

	w.ex = o.executor
	if w.ex == nil {
		ex, err := compute.New(cfg.Executor, cfg.Workers)
		if err != nil {
			return nil, fmt.Errorf("physics: %w", err)
		}
		w.ex, w.ownsEx = ex, true
	}
	w.log.Info("physics: executor selected", "executor", w.ex.Name(), "workers", w.ex.Workers())

	var err error
	if w.bp, err = broadphase.New(cfg.Broadphase, w.ex); err != nil {
		w.Close()
		return nil, err
	}
	if w.np, err = narrowphase.New(cfg.Narrowphase, w.ex); err != nil {
		w.Close()
		return nil, err
	}
	w.cache = narrowphase.NewCache()
	w.builder = solver.NewBuilder(cfg.Solver, w.ex)
	w.batcher = solver.NewBatcher(cfg.Solver, w.ex)

	w.system = o.system
	if w.system == nil && cfg.GPU {
		sys, err := compute.NewSystem()
		if err != nil {
			w.log.Warn("physics: GPU unavailable, hashing on the executor", "err", err)
		} else {
			w.system, w.ownsSystem = sys, true
		}
	}
	if w.system != nil {
		w.enableGPU()
	}
	w.tracker.init()
	return w, nil
}

func (w *World) enableGPU() {
	h, err := compute.NewCellHasher(w.system, uint32(w.cfg.Broadphase.MaxProxies))
	if err != nil {
		w.log.Warn("physics: GPU cell hash unavailable", "err", err)
		return
	}
	w.hasher = h
	w.bp.UseHasher(h)
	info := w.system.Info()
	w.log.Info("physics: GPU cell hash enabled", "adapter", info.Name, "backend", info.Backend)
}

func (w *World) disableGPU(err error) {
	w.log.Warn("physics: GPU cell hash failed, falling back to the executor", "err", err)
	w.bp.UseHasher(nil)
	w.hasher.Release()
	w.hasher = nil
}

func (w *World) Config() Config { return w.cfg }

// SetSolverConfig replaces the solver settings for the following steps.
// The impulse cache is kept.
func (w *World) SetSolverConfig(cfg solver.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	w.cfg.Solver = cfg
	w.builder = solver.NewBuilder(cfg, w.ex)
	w.batcher = solver.NewBatcher(cfg, w.ex)
	return nil
}

// RegisterShape builds a convex hull from its vertices and faces. See
// shape.New for the accepted input.
func (w *World) RegisterShape(vertices []rl.Vector3, faces []shape.FaceDesc, uniqueEdges []rl.Vector3) (ShapeID, error) {
	c, err := shape.New(vertices, faces, uniqueEdges)
	if err != nil {
		return -1, fmt.Errorf("register shape: %w", err)
	}
	w.uses = append(w.uses, 0)
	return ShapeID(w.shapes.Add(c)), nil
}

// Shape returns the hull registered under id.
func (w *World) Shape(id ShapeID) (*shape.Convex, error) {
	c, ok := w.shapes.Get(int(id))
	if !ok {
		return nil, fmt.Errorf("shape %d: %w", id, ErrInvalidShape)
	}
	return c, nil
}

// RegisterBody adds a body using a registered shape. A mass of zero makes
// it static: it collides but is never moved.
func (w *World) RegisterBody(id ShapeID, mass float32, position rl.Vector3, orientation rl.Quaternion) (BodyID, error) {
	c, ok := w.shapes.Get(int(id))
	if !ok {
		return -1, fmt.Errorf("register body: shape %d: %w", id, ErrInvalidShape)
	}
	if !(mass >= 0) || !geom.IsFinite32(mass) {
		return -1, fmt.Errorf("register body: mass %v: %w", mass, ErrInvalidBody)
	}
	if !geom.IsFinite(position) || !geom.IsFiniteQuat(orientation) {
		return -1, fmt.Errorf("register body: non-finite transform: %w", ErrInvalidBody)
	}
	if len(w.bodies) >= w.cfg.Broadphase.MaxProxies {
		return -1, fmt.Errorf("register body: %d bodies: %w", len(w.bodies), ErrCapacityExceeded)
	}

	b := body{
		shape:       int(id),
		invInertia:  c.InertiaFor(mass),
		pos:         position,
		rot:         geom.NormalizeQuat(orientation),
		friction:    DefaultFriction,
		restitution: DefaultRestitution,
	}
	if mass > 0 {
		b.invMass = 1 / mass
	}
	w.bodies = append(w.bodies, b)
	w.uses[id]++
	w.extentOK = false
	return BodyID(len(w.bodies) - 1), nil
}

func (w *World) body(id BodyID) (*body, error) {
	if id < 0 || int(id) >= len(w.bodies) {
		return nil, fmt.Errorf("body %d: %w", id, ErrInvalidBody)
	}
	return &w.bodies[id], nil
}

// SetMaterial sets the friction and restitution of a body. Pairs mix them
// with solver.MixFriction and solver.MixRestitution.
func (w *World) SetMaterial(id BodyID, friction, restitution float32) error {
	b, err := w.body(id)
	if err != nil {
		return err
	}
	if !(friction >= 0) || !(restitution >= 0 && restitution <= 1) {
		return fmt.Errorf("body %d: friction %v restitution %v: %w", id, friction, restitution, ErrInvalidBody)
	}
	b.friction, b.restitution = friction, restitution
	return nil
}

// SetVelocity sets the linear and angular velocity of a dynamic body.
func (w *World) SetVelocity(id BodyID, linear, angular rl.Vector3) error {
	b, err := w.body(id)
	if err != nil {
		return err
	}
	if b.static() {
		return fmt.Errorf("body %d is static: %w", id, ErrInvalidBody)
	}
	if !geom.IsFinite(linear) || !geom.IsFinite(angular) {
		return fmt.Errorf("body %d: non-finite velocity: %w", id, ErrInvalidBody)
	}
	b.v, b.w = linear, angular
	return nil
}

// BodyTransform returns the position and orientation of a body.
func (w *World) BodyTransform(id BodyID) (rl.Vector3, rl.Quaternion, error) {
	b, err := w.body(id)
	if err != nil {
		return rl.Vector3{}, rl.Quaternion{}, err
	}
	return b.pos, b.rot, nil
}

// BodyVelocity returns the linear and angular velocity of a body.
func (w *World) BodyVelocity(id BodyID) (rl.Vector3, rl.Vector3, error) {
	b, err := w.body(id)
	if err != nil {
		return rl.Vector3{}, rl.Vector3{}, err
	}
	return b.v, b.w, nil
}

// BodyShape returns the shape a body was registered with.
func (w *World) BodyShape(id BodyID) (ShapeID, error) {
	b, err := w.body(id)
	if err != nil {
		return -1, err
	}
	return ShapeID(b.shape), nil
}

// IsStatic reports whether a body has zero mass.
func (w *World) IsStatic(id BodyID) bool {
	b, err := w.body(id)
	return err == nil && b.static()
}

func (w *World) BodyCount() int { return len(w.bodies) }

func (w *World) Stats() Stats { return w.stats }

// Contacts returns the manifolds of the last successful step, impulses
// included. The slice is overwritten by the next successful step.
func (w *World) Contacts() []narrowphase.Manifold { return w.contacts }

// Step advances the world by dt: gravity, broadphase, narrowphase, the
// velocity solve and, when enabled, integration. dt == 0 solves velocities
// without positional correction and moves nothing. A step that fails
// leaves bodies as they were.
func (w *World) Step(dt float32) error {
	if !(dt >= 0) || !geom.IsFinite32(dt) {
		return fmt.Errorf("step %v: %w", dt, ErrInvalidTimestep)
	}
	w.stats = Stats{Bodies: len(w.bodies)}
	w.prepare(dt)

	pairs, err := w.findPairs()
	if err != nil {
		return err
	}

	ms, err := w.np.Run(pairs, w.shapeOf, w.xfs)
	if err != nil {
		return fmt.Errorf("step: %w", err)
	}
	w.stats.Manifolds = len(ms)
	if w.cfg.Solver.WarmStart {
		w.stats.WarmStarted = w.cache.Apply(ms)
	}

	cons, err := w.builder.Build(ms, w.sbodies, dt)
	if err != nil {
		return fmt.Errorf("step: %w", err)
	}
	plan, err := w.batcher.Batch(cons, w.sbodies, w.averageExtent())
	if err != nil {
		return fmt.Errorf("step: %w", err)
	}
	if w.log.Enabled(context.Background(), slog.LevelDebug) {
		w.stats.Conflicts = plan.Conflicts(cons, w.sbodies)
	}
	w.stats.Solve = solver.Solve(w.ex, w.cfg.Solver, plan, cons, w.sbodies)
	solver.StoreImpulses(cons, ms)
	w.cache.Store(ms)
	w.contacts = append(w.contacts[:0], ms...)
	w.tracker.update(ms)

	w.finish(dt)
	w.report()
	return nil
}

// prepare applies gravity and fills the per-step body views.
func (w *World) prepare(dt float32) {
	n := len(w.bodies)
	if cap(w.sbodies) < n {
		w.sbodies = make([]solver.Body, n)
		w.shapeOf = make([]*shape.Convex, n)
		w.xfs = make([]narrowphase.Transform, n)
	}
	w.sbodies = w.sbodies[:n]
	w.shapeOf = w.shapeOf[:n]
	w.xfs = w.xfs[:n]

	g := rl.Vector3Scale(w.cfg.Gravity, dt)
	compute.ForEach(w.ex, n, func(i int) {
		b := &w.bodies[i]
		c, _ := w.shapes.Get(b.shape)
		sb := solver.Body{
			Pos:         b.pos,
			V:           b.v,
			W:           b.w,
			InvMass:     b.invMass,
			Static:      b.static(),
			Friction:    b.friction,
			Restitution: b.restitution,
		}
		if !sb.Static {
			sb.V = rl.Vector3Add(sb.V, g)
			sb.InvInertia = b.invInertia.Rotate(geom.FromQuat(b.rot))
		}
		w.sbodies[i] = sb
		w.shapeOf[i] = c
		w.xfs[i] = narrowphase.Transform{Pos: b.pos, Rot: b.rot}
	})
}

func (w *World) findPairs() ([]broadphase.Pair, error) {
	err := w.bp.ComputeAABBs(len(w.bodies),
		func(i int) geom.AABB { return w.shapeOf[i].WorldAABB(w.xfs[i].Pos, w.xfs[i].Rot) },
		func(i int) bool { return w.sbodies[i].Static })
	if err != nil {
		return nil, fmt.Errorf("step: %w", err)
	}

	pairs, bs, err := w.bp.FindPairs()
	if err != nil && w.hasher != nil && !errors.Is(err, ErrCapacityExceeded) {
		w.disableGPU(err)
		pairs, bs, err = w.bp.FindPairs()
	}
	if err != nil {
		return nil, fmt.Errorf("step: %w", err)
	}
	w.stats.Broad = bs
	return pairs, nil
}

// finish writes the solved velocities back and integrates.
func (w *World) finish(dt float32) {
	integrate := w.cfg.Integrate
	compute.ForEach(w.ex, len(w.bodies), func(i int) {
		b := &w.bodies[i]
		if b.static() {
			return
		}
		sb := &w.sbodies[i]
		b.v, b.w = sb.V, sb.W
		if integrate && dt > 0 {
			b.pos = rl.Vector3Add(b.pos, rl.Vector3Scale(b.v, dt))
			b.rot = geom.IntegrateOrientation(b.rot, b.w, dt)
		}
	})
}

func (w *World) averageExtent() float32 {
	if !w.extentOK {
		w.avgExtent = w.shapes.AverageExtent(w.uses)
		w.extentOK = true
	}
	return w.avgExtent
}

func (w *World) report() {
	s := &w.stats
	if s.Broad.Dropped > 0 {
		w.log.Warn("physics: pair buffer full, pairs dropped",
			"dropped", s.Broad.Dropped, "max_pairs", w.cfg.Broadphase.MaxPairs)
	}
	if s.Solve.Overflow > 0 {
		w.log.Warn("physics: constraints deferred to the serial task", "overflow", s.Solve.Overflow)
	}
	w.log.Debug("physics: step",
		"bodies", s.Bodies,
		"pairs", s.Broad.Pairs,
		"large", s.Broad.Large,
		"gpu_hash", s.Broad.GPUHash,
		"manifolds", s.Manifolds,
		"constraints", s.Solve.Constraints,
		"warm_started", s.WarmStarted,
		"overflow", s.Solve.Overflow,
		"conflicts", s.Conflicts)
}

// Reset removes every body and shape and clears the impulse cache. Buffers
// and devices are kept.
func (w *World) Reset() {
	w.bodies = w.bodies[:0]
	w.shapes.Reset()
	w.uses = w.uses[:0]
	w.extentOK = false
	w.cache.Reset()
	w.contacts = nil
	w.tracker.reset()
	w.stats = Stats{}
}

// Close releases the devices and executor the world created. The world
// must not be used afterwards.
func (w *World) Close() {
	if w.hasher != nil {
		w.hasher.Release()
		w.hasher = nil
	}
	if w.ownsSystem && w.system != nil {
		w.system.Release()
	}
	w.system = nil
	if w.np != nil {
		w.np.Release()
	}
	if w.ownsEx && w.ex != nil {
		w.ex.Close()
	}
	w.ex = nil
}
