package shape

// Registry is the flat, index-addressed shape table of a world. Shapes are
// never removed individually; Reset drops them all.
type Registry struct {
	shapes []*Convex
}

func (r *Registry) Add(c *Convex) int {
	r.shapes = append(r.shapes, c)
	return len(r.shapes) - 1
}

// Get returns nil, false for an id outside the registered range.
func (r *Registry) Get(id int) (*Convex, bool) {
	if id < 0 || id >= len(r.shapes) {
		return nil, false
	}
	return r.shapes[id], true
}

func (r *Registry) Len() int { return len(r.shapes) }

func (r *Registry) Reset() { r.shapes = r.shapes[:0] }

// AverageExtent is the mean of the largest bound dimension over the shapes
// weighted by how many bodies use each one.
func (r *Registry) AverageExtent(uses []int) float32 {
	var sum float32
	n := 0
	for id, c := range r.shapes {
		k := 1
		if uses != nil {
			k = uses[id]
		}
		sum += c.Extent() * float32(k)
		n += k
	}
	if n == 0 {
		return 0
	}
	return sum / float32(n)
}
