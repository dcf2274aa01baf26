package solver

import (
	"fmt"
	"math"

	"gpurigid/internal/compute"
	"gpurigid/internal/geom"
	"gpurigid/internal/narrowphase"
	"gpurigid/internal/prim"

	rl "github.com/gen2brain/raylib-go/raylib"
)

// Row is one scalar velocity constraint between bodies A and B.
type Row struct {
	Dir rl.Vector3
	// AngA = rA x Dir, AngB = rB x Dir
	AngA, AngB rl.Vector3
	// ImpA, ImpB are the angular velocity changes per unit impulse.
	ImpA, ImpB rl.Vector3
	InvK       float32
	Bias       float32
	Impulse    float32
	Lo, Hi     float32
}

// Constraint is one contact point: a normal row and two friction rows.
type Constraint struct {
	A, B     uint32
	Normal   Row
	Friction [2]Row
	Mu       float32

	Manifold int
	Point    int
}

func newRow(dir, rA, rB rl.Vector3, a, b *Body) Row {
	r := Row{
		Dir:  dir,
		AngA: geom.Cross(rA, dir),
		AngB: geom.Cross(rB, dir),
	}
	r.ImpA = a.InvInertia.MulVec(r.AngA)
	r.ImpB = b.InvInertia.MulVec(r.AngB)
	k := a.InvMass + b.InvMass + geom.Dot(r.AngA, r.ImpA) + geom.Dot(r.AngB, r.ImpB)
	if k > 1e-12 {
		r.InvK = 1 / k
	}
	return r
}

// velocity is the relative speed of B with respect to A along the row.
func (r *Row) velocity(a, b *Body) float32 {
	return geom.Dot(r.Dir, b.V) + geom.Dot(r.AngB, b.W) -
		geom.Dot(r.Dir, a.V) - geom.Dot(r.AngA, a.W)
}

func (r *Row) apply(a, b *Body, impulse float32) {
	if !a.Static {
		a.V = rl.Vector3Subtract(a.V, rl.Vector3Scale(r.Dir, a.InvMass*impulse))
		a.W = rl.Vector3Subtract(a.W, rl.Vector3Scale(r.ImpA, impulse))
	}
	if !b.Static {
		b.V = rl.Vector3Add(b.V, rl.Vector3Scale(r.Dir, b.InvMass*impulse))
		b.W = rl.Vector3Add(b.W, rl.Vector3Scale(r.ImpB, impulse))
	}
}

// solve drives the row velocity toward Bias, clamping the accumulated
// impulse to [Lo, Hi].
func (r *Row) solve(a, b *Body) {
	delta := r.InvK * (r.Bias - r.velocity(a, b))
	old := r.Impulse
	r.Impulse = geom.Clamp(old+delta, r.Lo, r.Hi)
	r.apply(a, b, r.Impulse-old)
}

// Builder converts manifolds into constraints. Its buffers are reused
// between steps.
type Builder struct {
	cfg     Config
	ex      compute.Executor
	counts  []uint32
	offsets []uint32
	cons    []Constraint
}

func NewBuilder(cfg Config, ex compute.Executor) *Builder {
	return &Builder{cfg: cfg, ex: ex}
}

// Build creates one normal and two friction rows per contact point. With
// dt == 0 the positional bias is zero.
func (bl *Builder) Build(manifolds []narrowphase.Manifold, bodies []Body, dt float32) ([]Constraint, error) {
	n := len(manifolds)
	if cap(bl.counts) < n {
		bl.counts = make([]uint32, n)
		bl.offsets = make([]uint32, n+1)
	}
	counts, offsets := bl.counts[:n], bl.offsets[:n+1]
	for i := range manifolds {
		counts[i] = uint32(manifolds[i].N)
	}
	total := int(prim.ExclusiveScan(bl.ex, counts, offsets))
	if total > bl.cfg.MaxConstraints {
		return nil, fmt.Errorf("solver: %d constraints, limit %d: %w", total, bl.cfg.MaxConstraints, prim.ErrCapacityExceeded)
	}
	if cap(bl.cons) < total {
		bl.cons = make([]Constraint, total)
	}
	cons := bl.cons[:total]

	var biasScale float32
	if dt > 0 {
		biasScale = bl.cfg.BiasCoefficient / dt
	}
	cfg := bl.cfg
	compute.ForEach(bl.ex, n, func(mi int) {
		m := &manifolds[mi]
		a, b := &bodies[m.A], &bodies[m.B]
		t1, t2 := geom.OrthoBasis(m.Normal)
		mu := MixFriction(a.Friction, b.Friction)
		e := MixRestitution(a.Restitution, b.Restitution)

		for pi := 0; pi < m.N; pi++ {
			p := &m.Points[pi]
			rA := rl.Vector3Subtract(p.WorldA, a.Pos)
			rB := rl.Vector3Subtract(p.WorldB, b.Pos)

			c := &cons[int(offsets[mi])+pi]
			*c = Constraint{A: m.A, B: m.B, Mu: mu, Manifold: mi, Point: pi}
			c.Normal = newRow(m.Normal, rA, rB, a, b)
			c.Normal.Hi = float32(math.Inf(1))
			c.Normal.Bias = biasScale * float32(math.Max(float64(p.Depth-cfg.PositionDrift), 0))
			if vn := c.Normal.velocity(a, b); vn < -cfg.RestitutionThreshold {
				c.Normal.Bias += -e * vn
			}
			c.Friction[0] = newRow(t1, rA, rB, a, b)
			c.Friction[1] = newRow(t2, rA, rB, a, b)

			if cfg.WarmStart {
				c.Normal.Impulse = p.NormalImpulse
				c.Friction[0].Impulse = p.TangentImpulse[0]
				c.Friction[1].Impulse = p.TangentImpulse[1]
			}
		}
	})
	return cons, nil
}

// StoreImpulses copies the accumulated impulses back into the manifolds
// for the warm start cache.
func StoreImpulses(cons []Constraint, manifolds []narrowphase.Manifold) {
	for i := range cons {
		c := &cons[i]
		p := &manifolds[c.Manifold].Points[c.Point]
		p.NormalImpulse = c.Normal.Impulse
		p.TangentImpulse = [2]float32{c.Friction[0].Impulse, c.Friction[1].Impulse}
	}
}
