package solver

import (
	"gpurigid/internal/compute"
)

// Stats summarizes one solve.
type Stats struct {
	Constraints int
	Tasks       [NumBatches]int
	Overflow    int
	Iterations  int
}

// Solve runs the warm start wave and then Iterations rounds of the four
// batches followed by the overflow task, always in that order. Static
// bodies are never written.
func Solve(ex compute.Executor, cfg Config, plan *Plan, cons []Constraint, bodies []Body) Stats {
	stats := Stats{Constraints: len(cons), Overflow: len(plan.overflow), Iterations: cfg.Iterations}
	for b := 0; b < NumBatches; b++ {
		stats.Tasks[b] = plan.Tasks(b)
	}
	if len(cons) == 0 {
		return stats
	}

	if cfg.WarmStart {
		run(ex, plan, func(ci uint32) {
			c := &cons[ci]
			a, b := &bodies[c.A], &bodies[c.B]
			c.Normal.apply(a, b, c.Normal.Impulse)
			c.Friction[0].apply(a, b, c.Friction[0].Impulse)
			c.Friction[1].apply(a, b, c.Friction[1].Impulse)
		})
	}

	for it := 0; it < cfg.Iterations; it++ {
		run(ex, plan, func(ci uint32) {
			solveContact(&cons[ci], bodies)
		})
	}
	return stats
}

// run applies fn to every constraint of the plan: one wave per batch with a
// task per cell, then the overflow.
func run(ex compute.Executor, plan *Plan, fn func(ci uint32)) {
	for b := 0; b < NumBatches; b++ {
		compute.DispatchTasks(ex, plan.Tasks(b), func(t int) {
			for _, ci := range plan.Task(b, t) {
				fn(ci)
			}
		})
	}
	for _, ci := range plan.overflow {
		fn(ci)
	}
}

// solveContact solves the normal row, then both friction rows inside the
// box |lambda| <= mu * lambda_n.
func solveContact(c *Constraint, bodies []Body) {
	a, b := &bodies[c.A], &bodies[c.B]
	c.Normal.solve(a, b)
	limit := c.Mu * c.Normal.Impulse
	for i := range c.Friction {
		c.Friction[i].Lo = -limit
		c.Friction[i].Hi = limit
		c.Friction[i].solve(a, b)
	}
}
