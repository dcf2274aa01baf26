package narrowphase

import (
	"errors"
	"fmt"

	"gpurigid/internal/broadphase"
	"gpurigid/internal/compute"
	"gpurigid/internal/prim"
	"gpurigid/internal/shape"
)

var ErrInvalidConfig = errors.New("invalid narrowphase config")

type Config struct {
	// MaxContacts caps the manifolds of one step; more is fatal.
	MaxContacts int `json:"max_contacts"`
	// AllocThreshold is the initial manifold buffer size; the buffer grows
	// past it up to MaxContacts.
	AllocThreshold int `json:"alloc_threshold"`
}

func DefaultConfig() Config {
	return Config{MaxContacts: 1 << 15, AllocThreshold: 1 << 10}
}

func (c Config) Validate() error {
	if c.MaxContacts <= 0 {
		return fmt.Errorf("max contacts %d: %w", c.MaxContacts, ErrInvalidConfig)
	}
	if c.AllocThreshold < 0 || c.AllocThreshold > c.MaxContacts {
		return fmt.Errorf("alloc threshold %d outside [0, %d]: %w", c.AllocThreshold, c.MaxContacts, ErrInvalidConfig)
	}
	return nil
}

// Narrowphase runs Collide over the broadphase pairs of a step. Every pair
// writes its own slot; the hits are then compacted with a prefix sum, so
// the manifold order follows the pair order on every executor.
type Narrowphase struct {
	cfg Config
	ex  compute.Executor

	slots     []Manifold
	hits      []uint32
	offsets   []uint32
	manifolds *compute.Buffer[Manifold]
}

func New(cfg Config, ex compute.Executor) (*Narrowphase, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Narrowphase{
		cfg:       cfg,
		ex:        ex,
		manifolds: compute.NewBuffer[Manifold]("manifolds", cfg.AllocThreshold, cfg.MaxContacts),
	}, nil
}

// Capacity is the current manifold buffer capacity.
func (np *Narrowphase) Capacity() int { return np.manifolds.Cap() }

// Run collides every pair. shapes and xfs are indexed by body. The
// returned slice is reused by the next call.
func (np *Narrowphase) Run(pairs []broadphase.Pair, shapes []*shape.Convex, xfs []Transform) ([]Manifold, error) {
	n := len(pairs)
	if cap(np.slots) < n {
		np.slots = make([]Manifold, n)
		np.hits = make([]uint32, n)
		np.offsets = make([]uint32, n+1)
	}
	slots, hits := np.slots[:n], np.hits[:n]

	np.ex.Dispatch(n, func(lo, hi int) {
		var c collider
		for i := lo; i < hi; i++ {
			p := pairs[i]
			m := &slots[i]
			hits[i] = 0
			if c.collide(shapes[p.A], xfs[p.A], shapes[p.B], xfs[p.B], m) {
				m.A, m.B = p.A, p.B
				hits[i] = 1
			}
		}
	})

	offsets := np.offsets[:n+1]
	total := int(prim.ExclusiveScan(np.ex, hits, offsets))
	if total > np.cfg.MaxContacts {
		return nil, fmt.Errorf("narrowphase: %d manifolds, limit %d: %w", total, np.cfg.MaxContacts, prim.ErrCapacityExceeded)
	}
	if err := np.manifolds.Resize(total); err != nil {
		return nil, fmt.Errorf("narrowphase: %w", err)
	}
	out := np.manifolds.Slice()
	compute.ForEach(np.ex, n, func(i int) {
		if hits[i] != 0 {
			out[offsets[i]] = slots[i]
		}
	})
	return out, nil
}

// Release drops the step buffers.
func (np *Narrowphase) Release() {
	np.slots, np.hits, np.offsets = nil, nil, nil
	np.manifolds.Release()
}
