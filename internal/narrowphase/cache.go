package narrowphase

type pairKey struct {
	a, b uint32
}

type cachedPoint struct {
	feature uint64
	normal  float32
	tangent [2]float32
}

type cachedManifold struct {
	points [MaxPoints]cachedPoint
	n      int
}

// Cache carries accumulated impulses from one step to the next. A pair
// that produces no manifold in a step is forgotten.
type Cache struct {
	entries map[pairKey]cachedManifold
}

func NewCache() *Cache {
	return &Cache{entries: make(map[pairKey]cachedManifold)}
}

// Apply seeds the impulses of points whose feature id was seen for the
// same pair last step and returns how many points matched.
func (c *Cache) Apply(ms []Manifold) int {
	matched := 0
	for mi := range ms {
		m := &ms[mi]
		prev, ok := c.entries[pairKey{m.A, m.B}]
		for i := 0; i < m.N; i++ {
			p := &m.Points[i]
			p.NormalImpulse = 0
			p.TangentImpulse = [2]float32{}
			if !ok {
				continue
			}
			for j := 0; j < prev.n; j++ {
				if prev.points[j].feature == p.Feature {
					p.NormalImpulse = prev.points[j].normal
					p.TangentImpulse = prev.points[j].tangent
					matched++
					break
				}
			}
		}
	}
	return matched
}

// Store replaces the cache with the impulses of this step's manifolds.
func (c *Cache) Store(ms []Manifold) {
	clear(c.entries)
	for _, m := range ms {
		var e cachedManifold
		e.n = m.N
		for i := 0; i < m.N; i++ {
			p := m.Points[i]
			e.points[i] = cachedPoint{feature: p.Feature, normal: p.NormalImpulse, tangent: p.TangentImpulse}
		}
		c.entries[pairKey{m.A, m.B}] = e
	}
}

func (c *Cache) Len() int { return len(c.entries) }

func (c *Cache) Reset() { clear(c.entries) }
