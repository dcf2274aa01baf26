package prim

import (
	"math/rand"
	"testing"
)

func TestExclusiveScan(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	for _, ex := range executors(t) {
		for _, n := range []int{0, 1, 1023, 1024, 1025, 5000} {
			counts := make([]uint32, n)
			for i := range counts {
				counts[i] = uint32(rng.Intn(5))
			}
			offsets := make([]uint32, n+1)
			total := ExclusiveScan(ex, counts, offsets)

			if offsets[0] != 0 {
				t.Errorf("%s n=%d: expected offsets[0]=0, got %d", ex.Name(), n, offsets[0])
			}
			for i := 1; i <= n; i++ {
				if offsets[i] != offsets[i-1]+counts[i-1] {
					t.Fatalf("%s n=%d: recurrence broken at %d", ex.Name(), n, i)
				}
			}
			if offsets[n] != total {
				t.Errorf("%s n=%d: expected total %d in last slot, got %d", ex.Name(), n, total, offsets[n])
			}
		}
	}
}

func TestExclusiveScanSignedInts(t *testing.T) {
	counts := []int{3, 0, 2, 5}
	offsets := make([]int, 5)
	total := ExclusiveScan(executors(t)[0], counts, offsets)
	want := []int{0, 3, 3, 5, 10}
	for i := range want {
		if offsets[i] != want[i] {
			t.Errorf("Expected offsets[%d]=%d, got %d", i, want[i], offsets[i])
		}
	}
	if total != 10 {
		t.Errorf("Expected total 10, got %d", total)
	}
}
