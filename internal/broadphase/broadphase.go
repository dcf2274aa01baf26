// Package broadphase finds candidate body pairs with a uniform spatial hash:
// bodies are keyed by the grid cell of their AABB min corner, the keys are
// radix sorted, and every body scans the few cells its box can reach.
package broadphase

import (
	"errors"
	"fmt"
	"math"
	"math/bits"

	"gpurigid/internal/compute"
	"gpurigid/internal/geom"
	"gpurigid/internal/prim"
)

// EmptyCell marks a cell with no bodies in the cell start table.
const EmptyCell = math.MaxUint32

var ErrInvalidConfig = errors.New("invalid broadphase config")

// Config sizes the grid and the fixed pair buffer.
type Config struct {
	// CellSize should be at least the largest common body extent; bodies
	// larger than a cell are handled by the brute-force large proxy pass.
	CellSize float32 `json:"cell_size"`
	// Dims are powers of two, at least 4; coordinates wrap beyond them.
	Dims       [3]uint32 `json:"dims"`
	MaxPairs   int       `json:"max_pairs"`
	MaxProxies int       `json:"max_proxies"`
}

func DefaultConfig() Config {
	return Config{
		CellSize:   2,
		Dims:       [3]uint32{32, 32, 32},
		MaxPairs:   1 << 16,
		MaxProxies: 1 << 14,
	}
}

func (c Config) Validate() error {
	if !(c.CellSize > 0) || !geom.IsFinite32(c.CellSize) {
		return fmt.Errorf("cell size %v: %w", c.CellSize, ErrInvalidConfig)
	}
	for axis, d := range c.Dims {
		if d < 4 || bits.OnesCount32(d) != 1 {
			return fmt.Errorf("dim %d is %d, want a power of two >= 4: %w", axis, d, ErrInvalidConfig)
		}
	}
	if c.MaxPairs <= 0 || c.MaxProxies <= 0 {
		return fmt.Errorf("max pairs %d, max proxies %d: %w", c.MaxPairs, c.MaxProxies, ErrInvalidConfig)
	}
	return nil
}

// Stage is the broadphase state within one step.
type Stage int

const (
	Idle Stage = iota
	ComputeAABBs
	HashAndSort
	FindCellStart
	GeneratePairs
)

func (s Stage) String() string {
	switch s {
	case Idle:
		return "Idle"
	case ComputeAABBs:
		return "ComputeAABBs"
	case HashAndSort:
		return "HashAndSort"
	case FindCellStart:
		return "FindCellStart"
	case GeneratePairs:
		return "GeneratePairs"
	}
	return fmt.Sprintf("Stage(%d)", int(s))
}

// Pair is an unordered candidate pair with A < B.
type Pair struct {
	A, B uint32
}

type Stats struct {
	Proxies int
	// Large counts proxies bigger than a cell.
	Large   int
	Pairs   int
	Dropped int
	GPUHash bool
}

// Broadphase owns every buffer it uses; one instance serves one world.
type Broadphase struct {
	cfg    Config
	ex     compute.Executor
	params compute.GridParams
	stage  Stage

	aabbs  []geom.AABB
	static []bool
	large  []bool
	n      int

	hashes    []prim.SortPair
	sorter    *prim.RadixSorter
	bounds    *prim.BoundSearcher
	cellStart []uint32
	cellEnd   []uint32
	bigs      []uint32

	counts  []uint32
	offsets []uint32
	pairs   []Pair

	hasher *compute.CellHasher
	mins   []compute.Float4
	keys   []uint32
}

func New(cfg Config, ex compute.Executor) (*Broadphase, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	inv := 1 / cfg.CellSize
	params := compute.GridParams{
		InvCellSize: [3]float32{inv, inv, inv},
		Dims:        cfg.Dims,
	}
	cells := params.NumCells()
	return &Broadphase{
		cfg:       cfg,
		ex:        ex,
		params:    params,
		aabbs:     make([]geom.AABB, cfg.MaxProxies),
		static:    make([]bool, cfg.MaxProxies),
		large:     make([]bool, cfg.MaxProxies),
		hashes:    make([]prim.SortPair, 0, cfg.MaxProxies),
		sorter:    prim.NewRadixSorter(ex, cfg.MaxProxies),
		bounds:    prim.NewBoundSearcher(ex, 0),
		cellStart: make([]uint32, cells),
		cellEnd:   make([]uint32, cells),
		counts:    make([]uint32, cfg.MaxProxies),
		offsets:   make([]uint32, cfg.MaxProxies+1),
		pairs:     make([]Pair, cfg.MaxPairs),
	}, nil
}

// UseHasher routes cell hashing through a GPU kernel; nil restores the host
// path. The broadphase does not own the hasher.
func (b *Broadphase) UseHasher(h *compute.CellHasher) {
	b.hasher = h
	if h != nil && b.mins == nil {
		b.mins = make([]compute.Float4, b.cfg.MaxProxies)
		b.keys = make([]uint32, b.cfg.MaxProxies)
	}
}

func (b *Broadphase) Stage() Stage { return b.stage }
func (b *Broadphase) Config() Config { return b.cfg }
func (b *Broadphase) AABB(i int) geom.AABB { return b.aabbs[i] }
func (b *Broadphase) Params() compute.GridParams { return b.params }

// ComputeAABBs stores the world box of n proxies. Boxes that are not
// finite are kept out of the pair search.
func (b *Broadphase) ComputeAABBs(n int, aabb func(i int) geom.AABB, static func(i int) bool) error {
	if n > b.cfg.MaxProxies {
		return fmt.Errorf("broadphase: %d proxies, capacity %d: %w", n, b.cfg.MaxProxies, prim.ErrCapacityExceeded)
	}
	b.stage = ComputeAABBs
	b.n = n
	size := b.cfg.CellSize
	compute.ForEach(b.ex, n, func(i int) {
		box := aabb(i)
		b.aabbs[i] = box
		b.static[i] = static(i)
		e := box.Extents()
		b.large[i] = e.X > size || e.Y > size || e.Z > size
	})
	return nil
}

// FindPairs runs the hash, cell start and pair stages over the boxes from
// the last ComputeAABBs. The returned slice is reused by the next call.
func (b *Broadphase) FindPairs() ([]Pair, Stats, error) {
	var stats Stats
	if err := b.hashAndSort(&stats); err != nil {
		return nil, stats, err
	}
	if err := b.findCellStart(); err != nil {
		return nil, stats, err
	}
	total := b.generatePairs()
	b.stage = Idle

	stats.Pairs = total
	if total > len(b.pairs) {
		stats.Dropped = total - len(b.pairs)
		stats.Pairs = len(b.pairs)
	}
	return b.pairs[:stats.Pairs], stats, nil
}

func (b *Broadphase) hashAndSort(stats *Stats) error {
	b.stage = HashAndSort
	b.hashes = b.hashes[:0]
	b.bigs = b.bigs[:0]
	for i := 0; i < b.n; i++ {
		switch {
		case !b.aabbs[i].Valid():
		case b.large[i]:
			b.bigs = append(b.bigs, uint32(i))
		default:
			b.hashes = append(b.hashes, prim.SortPair{Value: uint32(i)})
		}
	}
	stats.Proxies = len(b.hashes) + len(b.bigs)
	stats.Large = len(b.bigs)

	if b.hasher != nil && len(b.hashes) > 0 {
		if err := b.hashOnDevice(); err != nil {
			return fmt.Errorf("broadphase gpu hash: %w", err)
		}
		stats.GPUHash = true
	} else {
		params := b.params
		compute.ForEach(b.ex, len(b.hashes), func(k int) {
			min := b.aabbs[b.hashes[k].Value].Min
			b.hashes[k].Key = params.Key(params.CellOf(min.X, min.Y, min.Z))
		})
	}
	return b.sorter.Sort(b.hashes)
}

func (b *Broadphase) hashOnDevice() error {
	m := len(b.hashes)
	for k := 0; k < m; k++ {
		min := b.aabbs[b.hashes[k].Value].Min
		b.mins[k] = compute.Float4{X: min.X, Y: min.Y, Z: min.Z}
	}
	if err := b.hasher.HashCells(b.mins[:m], b.params, b.keys[:m]); err != nil {
		return err
	}
	for k := 0; k < m; k++ {
		b.hashes[k].Key = b.keys[k]
	}
	return nil
}

func (b *Broadphase) findCellStart() error {
	b.stage = FindCellStart
	if err := b.bounds.Execute(b.hashes, b.cellStart, prim.Lower); err != nil {
		return err
	}
	if err := b.bounds.Execute(b.hashes, b.cellEnd, prim.Upper); err != nil {
		return err
	}
	compute.ForEach(b.ex, len(b.cellStart), func(c int) {
		if b.cellStart[c] == b.cellEnd[c] {
			b.cellStart[c] = EmptyCell
		}
	})
	return nil
}

// generatePairs counts every body's pairs, scans the counts into output
// offsets and then writes, so the pair order only depends on the input.
func (b *Broadphase) generatePairs() int {
	b.stage = GeneratePairs
	m := len(b.hashes)
	nb := len(b.bigs)
	counts := b.counts[:m+nb]
	offsets := b.offsets[:m+nb+1]

	compute.ForEach(b.ex, m+nb, func(k int) {
		counts[k] = uint32(b.visit(k, nil))
	})
	total := prim.ExclusiveScan(b.ex, counts, offsets)

	compute.ForEach(b.ex, m+nb, func(k int) {
		if counts[k] == 0 || int(offsets[k]) >= len(b.pairs) {
			return
		}
		out := b.pairs[offsets[k]:]
		if len(out) > int(counts[k]) {
			out = out[:counts[k]]
		}
		b.visit(k, out)
	})
	return int(total)
}

// visit enumerates the pairs owned by work item k. The first len(hashes)
// items are grid proxies in key order, the rest are large proxies. With a
// nil out it only counts; otherwise it writes until out is full.
func (b *Broadphase) visit(k int, out []Pair) int {
	if k >= len(b.hashes) {
		return b.visitLarge(b.bigs[k-len(b.hashes)], out)
	}
	self := b.hashes[k].Value
	box := b.aabbs[self]
	lo := b.params.CellOf(box.Min.X, box.Min.Y, box.Min.Z)
	hi := b.params.CellOf(box.Max.X, box.Max.Y, box.Max.Z)

	found := 0
	for z := lo[2] - 1; z <= hi[2]; z++ {
		for y := lo[1] - 1; y <= hi[1]; y++ {
			for x := lo[0] - 1; x <= hi[0]; x++ {
				cell := b.params.Key([3]int32{x, y, z})
				start := b.cellStart[cell]
				if start == EmptyCell {
					continue
				}
				for _, h := range b.hashes[start:b.cellEnd[cell]] {
					if h.Value <= self || !b.accept(self, h.Value) {
						continue
					}
					found = emit(out, found, self, h.Value)
				}
			}
		}
	}
	return found
}

// visitLarge tests a large proxy against every proxy. Pairs with grid
// proxies always come from here; large-large pairs from the lower index.
func (b *Broadphase) visitLarge(self uint32, out []Pair) int {
	found := 0
	for _, h := range b.hashes {
		if b.accept(self, h.Value) {
			found = emit(out, found, self, h.Value)
		}
	}
	for _, other := range b.bigs {
		if other > self && b.accept(self, other) {
			found = emit(out, found, self, other)
		}
	}
	return found
}

func (b *Broadphase) accept(i, j uint32) bool {
	if b.static[i] && b.static[j] {
		return false
	}
	return b.aabbs[i].Intersects(b.aabbs[j])
}

func emit(out []Pair, found int, i, j uint32) int {
	if out != nil && found < len(out) {
		if i > j {
			i, j = j, i
		}
		out[found] = Pair{A: i, B: j}
	}
	return found + 1
}
