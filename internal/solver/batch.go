package solver

import (
	"fmt"
	"math"
	"math/bits"

	"gpurigid/internal/compute"
	"gpurigid/internal/prim"
)

type span struct {
	lo, hi int
}

// Plan is the solve schedule of one step. Tasks of one batch may run
// concurrently; each task and the overflow run sequentially.
type Plan struct {
	// order lists constraint indices task by task.
	order    []uint32
	tasks    []span
	batches  [NumBatches]span
	overflow []uint32
	cells    []uint32
}

// Tasks returns the number of tasks in batch b.
func (p *Plan) Tasks(b int) int { return p.batches[b].hi - p.batches[b].lo }

// Task returns the constraint indices of task t of batch b.
func (p *Plan) Task(b, t int) []uint32 {
	s := p.tasks[p.batches[b].lo+t]
	return p.order[s.lo:s.hi]
}

// Overflow is the serial task solved after the batches.
func (p *Plan) Overflow() []uint32 { return p.overflow }

// Cell returns the batching cell of constraint i.
func (p *Plan) Cell(i int) uint32 { return p.cells[i] }

// Conflicts counts dynamic bodies referenced by more than one task of the
// same batch. Those bodies are written concurrently when the batch runs.
func (p *Plan) Conflicts(cons []Constraint, bodies []Body) int {
	owner := make([]int, len(bodies))
	conflicted := make([]bool, len(bodies))
	n := 0
	for b := 0; b < NumBatches; b++ {
		for i := range owner {
			owner[i] = -1
		}
		for t := 0; t < p.Tasks(b); t++ {
			for _, ci := range p.Task(b, t) {
				c := cons[ci]
				for _, id := range [2]uint32{c.A, c.B} {
					if bodies[id].Static {
						continue
					}
					switch {
					case owner[id] < 0:
						owner[id] = t
					case owner[id] != t && !conflicted[id]:
						conflicted[id] = true
						n++
					}
				}
			}
		}
	}
	return n
}

// Batcher assigns constraints to cells of a Split x Split grid on the XZ
// plane and groups the cells into four parity batches.
type Batcher struct {
	cfg     Config
	ex      compute.Executor
	sorter  *prim.RadixSorter
	bounds  *prim.BoundSearcher
	keys    []prim.SortPair
	counts  []uint32
	offsets []uint32
	owner   []int32
	plan    Plan
}

func NewBatcher(cfg Config, ex compute.Executor) *Batcher {
	cells := cfg.Split * cfg.Split
	return &Batcher{
		cfg:     cfg,
		ex:      ex,
		sorter:  prim.NewRadixSorter(ex, cfg.MaxConstraints),
		bounds:  prim.NewBoundSearcher(ex, cells),
		counts:  make([]uint32, cells),
		offsets: make([]uint32, cells+1),
	}
}

// Batch builds the schedule. averageExtent is the mean body size; a cell is
// ObjectsPerSplit of them wide. The returned plan is reused by the next call.
func (bt *Batcher) Batch(cons []Constraint, bodies []Body, averageExtent float32) (*Plan, error) {
	n := len(cons)
	split := bt.cfg.Split
	scale := float32(1)
	if averageExtent > 0 {
		scale = 1 / (bt.cfg.ObjectsPerSplit * averageExtent)
	}

	if cap(bt.keys) < n {
		bt.keys = make([]prim.SortPair, n)
	}
	keys := bt.keys[:n]
	plan := &bt.plan
	if cap(plan.cells) < n {
		plan.cells = make([]uint32, n)
	}
	plan.cells = plan.cells[:n]

	mask := int32(split - 1)
	compute.ForEach(bt.ex, n, func(i int) {
		c := cons[i]
		a, b := bodies[c.A], bodies[c.B]
		pos := a.Pos
		switch {
		case a.Static:
			pos = b.Pos
		case !b.Static:
			pos.X = (a.Pos.X + b.Pos.X) * 0.5
			pos.Z = (a.Pos.Z + b.Pos.Z) * 0.5
		}
		x := int32(math.Floor(float64(pos.X*scale))) & mask
		z := int32(math.Floor(float64(pos.Z*scale))) & mask
		cell := uint32(x + z*int32(split))
		plan.cells[i] = cell
		keys[i] = prim.SortPair{Key: cell, Value: uint32(i)}
	})

	keyBits := bits.Len(uint(split*split - 1))
	if err := bt.sorter.SortBits(keys, keyBits); err != nil {
		return nil, fmt.Errorf("solver batch: %w", err)
	}
	if err := bt.bounds.Execute(keys, bt.counts, prim.Count); err != nil {
		return nil, fmt.Errorf("solver batch: %w", err)
	}
	prim.ExclusiveScan(bt.ex, bt.counts, bt.offsets)

	bt.schedule(keys, cons, bodies)
	return plan, nil
}

func parity(cell, split int) int {
	x, z := cell%split, cell/split
	return (x & 1) | (z&1)<<1
}

// schedule lays the sorted constraints out task by task. In strict mode a
// constraint is deferred to the overflow task when one of its dynamic
// bodies already belongs to another task of the same batch.
func (bt *Batcher) schedule(sorted []prim.SortPair, cons []Constraint, bodies []Body) {
	plan := &bt.plan
	plan.order = plan.order[:0]
	plan.tasks = plan.tasks[:0]
	plan.overflow = plan.overflow[:0]

	strict := bt.cfg.StrictBatching
	if strict {
		if cap(bt.owner) < len(bodies) {
			bt.owner = make([]int32, len(bodies))
		}
		bt.owner = bt.owner[:len(bodies)]
	}

	split := bt.cfg.Split
	cells := split * split
	for b := 0; b < NumBatches; b++ {
		first := len(plan.tasks)
		if strict {
			for i := range bt.owner {
				bt.owner[i] = -1
			}
		}
		for cell := 0; cell < cells; cell++ {
			if parity(cell, split) != b || bt.counts[cell] == 0 {
				continue
			}
			task := int32(len(plan.tasks))
			lo := len(plan.order)
			for _, sp := range sorted[bt.offsets[cell]:bt.offsets[cell+1]] {
				ci := sp.Value
				if strict && !bt.claim(task, cons[ci], bodies) {
					plan.overflow = append(plan.overflow, ci)
					continue
				}
				plan.order = append(plan.order, ci)
			}
			if len(plan.order) > lo {
				plan.tasks = append(plan.tasks, span{lo: lo, hi: len(plan.order)})
			}
		}
		plan.batches[b] = span{lo: first, hi: len(plan.tasks)}
	}
}

func (bt *Batcher) claim(task int32, c Constraint, bodies []Body) bool {
	ids := [2]uint32{c.A, c.B}
	for _, id := range ids {
		if !bodies[id].Static && bt.owner[id] >= 0 && bt.owner[id] != task {
			return false
		}
	}
	for _, id := range ids {
		if !bodies[id].Static {
			bt.owner[id] = task
		}
	}
	return true
}
