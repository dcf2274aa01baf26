// Package solver turns contact manifolds into velocity constraints and
// solves them with projected Gauss-Seidel. Constraints are spatially
// batched so that the cells of one batch can be solved concurrently.
package solver

import (
	"errors"
	"fmt"
	"math"
	"math/bits"

	"gpurigid/internal/geom"

	rl "github.com/gen2brain/raylib-go/raylib"
)

var ErrInvalidConfig = errors.New("invalid solver config")

// NumBatches is the number of waves per iteration: one per cell parity.
const NumBatches = 4

type Config struct {
	Iterations      int     `json:"iterations"`
	BiasCoefficient float32 `json:"bias_coefficient"`
	// PositionDrift is the penetration left uncorrected by the bias.
	PositionDrift float32 `json:"position_drift"`
	// Split is the batching grid resolution along X and Z.
	Split int `json:"split"`
	// ObjectsPerSplit sets the batching cell size in average body extents.
	ObjectsPerSplit float32 `json:"objects_per_split"`
	// Approach speeds below this do not bounce.
	RestitutionThreshold float32 `json:"restitution_threshold"`
	WarmStart            bool    `json:"warm_start"`
	// StrictBatching moves constraints whose dynamic body is already taken
	// by another cell of the same batch into a serial overflow task.
	StrictBatching bool `json:"strict_batching"`
	MaxConstraints int  `json:"max_constraints"`
}

func DefaultConfig() Config {
	return Config{
		Iterations:           4,
		BiasCoefficient:      0.2,
		PositionDrift:        0.005,
		Split:                16,
		ObjectsPerSplit:      10,
		RestitutionThreshold: 1,
		WarmStart:            true,
		StrictBatching:       true,
		MaxConstraints:       1 << 17,
	}
}

func (c Config) Validate() error {
	switch {
	case c.Iterations < 0:
		return fmt.Errorf("iterations %d: %w", c.Iterations, ErrInvalidConfig)
	case c.BiasCoefficient < 0 || c.BiasCoefficient > 1:
		return fmt.Errorf("bias coefficient %v: %w", c.BiasCoefficient, ErrInvalidConfig)
	case c.PositionDrift < 0:
		return fmt.Errorf("position drift %v: %w", c.PositionDrift, ErrInvalidConfig)
	case c.Split < 2 || c.Split > 16 || bits.OnesCount(uint(c.Split)) != 1:
		return fmt.Errorf("split %d, want a power of two in [2, 16]: %w", c.Split, ErrInvalidConfig)
	case !(c.ObjectsPerSplit > 0):
		return fmt.Errorf("objects per split %v: %w", c.ObjectsPerSplit, ErrInvalidConfig)
	case c.MaxConstraints <= 0:
		return fmt.Errorf("max constraints %d: %w", c.MaxConstraints, ErrInvalidConfig)
	}
	return nil
}

// Body is the solver's view of a rigid body. InvInertia is in world space.
type Body struct {
	Pos        rl.Vector3
	V, W       rl.Vector3
	InvMass    float32
	InvInertia geom.Mat3
	Static     bool

	Friction    float32
	Restitution float32
}

// MixFriction combines two friction coefficients.
func MixFriction(a, b float32) float32 {
	return float32(math.Sqrt(float64(a * b)))
}

// MixRestitution lets anything bounce off an inelastic surface.
func MixRestitution(a, b float32) float32 {
	if a > b {
		return a
	}
	return b
}
