package narrowphase

import "testing"

func manifold(a, b uint32, features ...uint64) Manifold {
	m := Manifold{A: a, B: b, N: len(features)}
	for i, f := range features {
		m.Points[i].Feature = f
	}
	return m
}

func TestCacheWarmStartsMatchingFeatures(t *testing.T) {
	cache := NewCache()
	prev := []Manifold{manifold(0, 1, 10, 11)}
	prev[0].Points[0].NormalImpulse = 2
	prev[0].Points[0].TangentImpulse = [2]float32{0.5, -0.5}
	prev[0].Points[1].NormalImpulse = 3
	cache.Store(prev)

	next := []Manifold{manifold(0, 1, 11, 12), manifold(1, 2, 10)}
	next[1].Points[0].NormalImpulse = 9 // stale value from the slot

	if got := cache.Apply(next); got != 1 {
		t.Errorf("Expected 1 matched point, got %d", got)
	}
	if next[0].Points[0].NormalImpulse != 3 {
		t.Errorf("Expected warm start 3, got %f", next[0].Points[0].NormalImpulse)
	}
	if next[0].Points[1].NormalImpulse != 0 {
		t.Errorf("Expected new feature to start cold, got %f", next[0].Points[1].NormalImpulse)
	}
	if next[1].Points[0].NormalImpulse != 0 {
		t.Errorf("Expected unknown pair to start cold, got %f", next[1].Points[0].NormalImpulse)
	}
}

func TestCacheDropsPairsNotReused(t *testing.T) {
	cache := NewCache()
	cache.Store([]Manifold{manifold(0, 1, 1), manifold(2, 3, 1)})
	cache.Store([]Manifold{manifold(2, 3, 1)})
	if cache.Len() != 1 {
		t.Errorf("Expected 1 cached pair, got %d", cache.Len())
	}
	m := []Manifold{manifold(0, 1, 1)}
	if cache.Apply(m) != 0 {
		t.Error("Expected the dropped pair not to warm start")
	}
}
