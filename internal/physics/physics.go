// Package physics ties the collision and constraint stages into one
// pipeline context. A World owns every buffer, executor and device it uses;
// there is no package-level state, so independent worlds may step
// concurrently.
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
	"gpurigid/internal/prim"
	"gpurigid/internal/shape"
	"gpurigid/internal/solver"

	rl "github.com/gen2brain/raylib-go/raylib"
)

var (
	// ErrCapacityExceeded is returned when a fixed-capacity buffer would
	// overflow in a way that cannot be degraded (contacts, constraints,
	// proxies).
	ErrCapacityExceeded = prim.ErrCapacityExceeded
	// ErrDegenerateGeometry rejects shapes that are not closed convex hulls.
	ErrDegenerateGeometry = shape.ErrDegenerateGeometry
	// ErrAllocationFailure is returned when a growable buffer hits its limit.
	ErrAllocationFailure = compute.ErrAllocationFailure

	ErrInvalidBody     = errors.New("invalid body")
	ErrInvalidShape    = errors.New("invalid shape")
	ErrInvalidTimestep = errors.New("invalid timestep")
	ErrInvalidConfig   = errors.New("invalid physics config")
)

type (
	ShapeID int
	BodyID  int
)

// Config is the complete pipeline configuration. It round-trips through
// JSON so scene files can carry it.
type Config struct {
	Gravity rl.Vector3 `json:"gravity"`
	// Integrate advances positions after the velocity solve. With it off
	// the world only produces velocities, which callers integrate.
	Integrate bool `json:"integrate"`
	// Executor is "device" (worker pool) or "host" (single goroutine).
	Executor string `json:"executor"`
	Workers  int    `json:"workers"`
	// GPU hashes broadphase cells with a WebGPU kernel when an adapter is
	// available, falling back to the executor otherwise.
	GPU bool `json:"gpu"`

	Broadphase  broadphase.Config  `json:"broadphase"`
	Narrowphase narrowphase.Config `json:"narrowphase"`
	Solver      solver.Config      `json:"solver"`
}

func DefaultConfig() Config {
	return Config{
		Gravity:     rl.Vector3{Y: -9.8},
		Integrate:   true,
		Executor:    "device",
		Broadphase:  broadphase.DefaultConfig(),
		Narrowphase: narrowphase.DefaultConfig(),
		Solver:      solver.DefaultConfig(),
	}
}

func (c Config) Validate() error {
	if !geom.IsFinite(c.Gravity) {
		return fmt.Errorf("gravity %v: %w", c.Gravity, ErrInvalidConfig)
	}
	switch c.Executor {
	case "", "host", "device":
	default:
		return fmt.Errorf("executor %q: %w", c.Executor, ErrInvalidConfig)
	}
	if err := c.Broadphase.Validate(); err != nil {
		return err
	}
	if err := c.Narrowphase.Validate(); err != nil {
		return err
	}
	return c.Solver.Validate()
}

// Option configures the collaborators of a World.
type Option func(*options)

type options struct {
	executor compute.Executor
	logger   *slog.Logger
	system   *compute.System
}

// WithExecutor runs the world on ex instead of the executor named in the
// config. The world does not close it.
func WithExecutor(ex compute.Executor) Option {
	return func(o *options) { o.executor = ex }
}

// WithLogger enables logging. By default a World logs nothing.
//
// Levels:
//   - Debug: per-step stage counts
//   - Info: executor and GPU selection
//   - Warn: dropped pairs, deferred constraints, GPU fallback
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithGPU hashes cells on an existing compute system. The world does not
// release it.
func WithGPU(sys *compute.System) Option {
	return func(o *options) { o.system = sys }
}

// nopHandler discards every record; Enabled reports false so nothing is
// formatted.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

func newNopLogger() *slog.Logger { return slog.New(nopHandler{}) }

// Stats describes the last step.
type Stats struct {
	Bodies    int
	Broad     broadphase.Stats
	Manifolds int
	// WarmStarted counts contact points matched in the impulse cache.
	WarmStarted int
	Solve       solver.Stats
	// Conflicts is only measured when the logger has debug enabled.
	Conflicts int
}
