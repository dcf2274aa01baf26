package physics

import (
	"cmp"
	"slices"

	"gpurigid/internal/narrowphase"
)

// ContactEvent reports a pair of bodies starting or stopping to touch.
type ContactEvent struct {
	A, B  BodyID
	Begin bool
}

type pairKey [2]uint32

// contactTracker diffs the touching pairs of consecutive steps.
type contactTracker struct {
	active  map[pairKey]bool
	current map[pairKey]bool
	events  []ContactEvent
}

func (t *contactTracker) init() {
	t.active = make(map[pairKey]bool)
	t.current = make(map[pairKey]bool)
}

func (t *contactTracker) update(ms []narrowphase.Manifold) {
	t.events = t.events[:0]
	clear(t.current)
	for _, m := range ms {
		k := pairKey{m.A, m.B}
		t.current[k] = true
		if !t.active[k] {
			t.events = append(t.events, ContactEvent{A: BodyID(m.A), B: BodyID(m.B), Begin: true})
		}
	}
	begun := len(t.events)
	for k := range t.active {
		if !t.current[k] {
			t.events = append(t.events, ContactEvent{A: BodyID(k[0]), B: BodyID(k[1])})
		}
	}
	// map order is random
	slices.SortFunc(t.events[begun:], func(x, y ContactEvent) int {
		if c := cmp.Compare(x.A, y.A); c != 0 {
			return c
		}
		return cmp.Compare(x.B, y.B)
	})
	t.active, t.current = t.current, t.active
}

func (t *contactTracker) reset() {
	clear(t.active)
	clear(t.current)
	t.events = t.events[:0]
}

// ContactEvents returns the pairs that began or ended touching in the last
// step: begins in manifold order, then ends ordered by body ids. The slice
// is reused by the next step.
func (w *World) ContactEvents() []ContactEvent { return w.tracker.events }
