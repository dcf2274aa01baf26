package broadphase

import (
	"errors"
	"math/rand"
	"testing"

	"gpurigid/internal/compute"
	"gpurigid/internal/geom"
	"gpurigid/internal/prim"

	rl "github.com/gen2brain/raylib-go/raylib"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Dims = [3]uint32{16, 16, 16}
	cfg.MaxProxies = 2048
	cfg.MaxPairs = 1 << 15
	return cfg
}

func cube(center rl.Vector3, size float32) geom.AABB {
	return geom.NewAABBFromCenter(center, rl.Vector3{X: size, Y: size, Z: size})
}

func run(t *testing.T, bp *Broadphase, boxes []geom.AABB, static []bool) ([]Pair, Stats) {
	t.Helper()
	err := bp.ComputeAABBs(len(boxes),
		func(i int) geom.AABB { return boxes[i] },
		func(i int) bool { return static != nil && static[i] })
	if err != nil {
		t.Fatalf("ComputeAABBs failed: %v", err)
	}
	pairs, stats, err := bp.FindPairs()
	if err != nil {
		t.Fatalf("FindPairs failed: %v", err)
	}
	return append([]Pair(nil), pairs...), stats
}

func bruteForce(boxes []geom.AABB, static []bool) map[Pair]bool {
	want := make(map[Pair]bool)
	for i := range boxes {
		for j := i + 1; j < len(boxes); j++ {
			if static != nil && static[i] && static[j] {
				continue
			}
			if boxes[i].Intersects(boxes[j]) {
				want[Pair{A: uint32(i), B: uint32(j)}] = true
			}
		}
	}
	return want
}

func TestIdenticalBoxesPairOnce(t *testing.T) {
	bp, err := New(testConfig(), compute.NewHostExecutor())
	if err != nil {
		t.Fatal(err)
	}
	boxes := []geom.AABB{cube(rl.Vector3{X: 3, Y: 1, Z: -2}, 1), cube(rl.Vector3{X: 3, Y: 1, Z: -2}, 1)}
	pairs, _ := run(t, bp, boxes, nil)
	if len(pairs) != 1 {
		t.Fatalf("Expected 1 pair, got %d: %v", len(pairs), pairs)
	}
	if pairs[0] != (Pair{A: 0, B: 1}) {
		t.Errorf("Expected pair {0 1}, got %v", pairs[0])
	}
}

func TestMatchesBruteForce(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	boxes := make([]geom.AABB, 600)
	static := make([]bool, len(boxes))
	for i := range boxes {
		c := rl.Vector3{
			X: rng.Float32()*40 - 20,
			Y: rng.Float32() * 10,
			Z: rng.Float32()*40 - 20,
		}
		size := 0.2 + rng.Float32()*1.8
		if i%50 == 0 {
			size = 6 // large proxy
		}
		boxes[i] = cube(c, size)
		static[i] = i%7 == 0
	}
	want := bruteForce(boxes, static)

	dev := compute.NewDeviceExecutor(4)
	defer dev.Close()

	var reference []Pair
	for _, ex := range []compute.Executor{compute.NewHostExecutor(), dev} {
		bp, err := New(testConfig(), ex)
		if err != nil {
			t.Fatal(err)
		}
		pairs, stats := run(t, bp, boxes, static)
		if stats.Large != 12 {
			t.Errorf("%s: expected 12 large proxies, got %d", ex.Name(), stats.Large)
		}
		seen := make(map[Pair]bool)
		for _, p := range pairs {
			if p.A >= p.B {
				t.Fatalf("%s: pair %v not ordered", ex.Name(), p)
			}
			if seen[p] {
				t.Fatalf("%s: pair %v emitted twice", ex.Name(), p)
			}
			seen[p] = true
			if !want[p] {
				t.Errorf("%s: unexpected pair %v", ex.Name(), p)
			}
		}
		if len(seen) != len(want) {
			t.Errorf("%s: expected %d pairs, got %d", ex.Name(), len(want), len(seen))
		}

		if reference == nil {
			reference = pairs
			continue
		}
		for i := range reference {
			if pairs[i] != reference[i] {
				t.Fatalf("%s: pair order differs from host at %d", ex.Name(), i)
			}
		}
	}
}

func TestStaticPairsSkipped(t *testing.T) {
	bp, _ := New(testConfig(), compute.NewHostExecutor())
	boxes := []geom.AABB{cube(rl.Vector3{}, 1), cube(rl.Vector3{X: 0.5}, 1), cube(rl.Vector3{X: -0.5}, 1)}
	pairs, _ := run(t, bp, boxes, []bool{true, true, false})
	if len(pairs) != 2 {
		t.Fatalf("Expected 2 pairs, got %v", pairs)
	}
	for _, p := range pairs {
		if p.B != 2 {
			t.Errorf("Static-static pair emitted: %v", p)
		}
	}
}

func TestPairCapacityDropsExcess(t *testing.T) {
	boxes := make([]geom.AABB, 5)
	for i := range boxes {
		boxes[i] = cube(rl.Vector3{X: float32(i) * 0.1}, 1)
	}

	full, _ := New(testConfig(), compute.NewHostExecutor())
	all, stats := run(t, full, boxes, nil)
	if len(all) != 10 || stats.Dropped != 0 {
		t.Fatalf("Expected 10 pairs and none dropped, got %d and %d", len(all), stats.Dropped)
	}

	cfg := testConfig()
	cfg.MaxPairs = 3
	small, _ := New(cfg, compute.NewHostExecutor())
	kept, stats := run(t, small, boxes, nil)
	if len(kept) != 3 {
		t.Errorf("Expected 3 pairs at capacity, got %d", len(kept))
	}
	if stats.Dropped != 7 {
		t.Errorf("Expected 7 dropped pairs, got %d", stats.Dropped)
	}
	for i := range kept {
		if kept[i] != all[i] {
			t.Errorf("Expected kept pairs to be a prefix of the full list, got %v at %d", kept[i], i)
		}
	}
}

func TestWrappedCellsDoNotAlias(t *testing.T) {
	cfg := testConfig()
	bp, _ := New(cfg, compute.NewHostExecutor())
	period := cfg.CellSize * float32(cfg.Dims[0])
	boxes := []geom.AABB{cube(rl.Vector3{X: 0.5}, 1), cube(rl.Vector3{X: 0.5 + period}, 1)}
	pairs, _ := run(t, bp, boxes, nil)
	if len(pairs) != 0 {
		t.Errorf("Expected no pairs for boxes one grid period apart, got %v", pairs)
	}
}

func TestLargeProxyAgainstEverything(t *testing.T) {
	bp, _ := New(testConfig(), compute.NewHostExecutor())
	ground := geom.AABB{Min: rl.Vector3{X: -50, Y: -1, Z: -50}, Max: rl.Vector3{X: 50, Y: 0, Z: 50}}
	boxes := []geom.AABB{
		cube(rl.Vector3{X: -30, Y: 0.4}, 1),
		ground,
		cube(rl.Vector3{X: 20, Y: 0.5, Z: 40}, 1),
		cube(rl.Vector3{X: 5, Y: 3}, 1),
	}
	pairs, stats := run(t, bp, boxes, []bool{false, true, false, false})
	if stats.Large != 1 {
		t.Errorf("Expected 1 large proxy, got %d", stats.Large)
	}
	want := map[Pair]bool{{A: 0, B: 1}: true, {A: 1, B: 2}: true}
	if len(pairs) != len(want) {
		t.Fatalf("Expected %d pairs, got %v", len(want), pairs)
	}
	for _, p := range pairs {
		if !want[p] {
			t.Errorf("Unexpected pair %v", p)
		}
	}
}

func TestCellStartTable(t *testing.T) {
	bp, _ := New(testConfig(), compute.NewHostExecutor())
	boxes := []geom.AABB{cube(rl.Vector3{X: 0.5, Y: 0.5, Z: 0.5}, 0.5), cube(rl.Vector3{X: 0.7, Y: 0.5, Z: 0.5}, 0.5)}
	run(t, bp, boxes, nil)

	p := bp.Params()
	occupied := p.Key(p.CellOf(0.3, 0.3, 0.3))
	if bp.cellStart[occupied] != 0 || bp.cellEnd[occupied] != 2 {
		t.Errorf("Expected cell %d to span [0,2), got [%d,%d)", occupied, bp.cellStart[occupied], bp.cellEnd[occupied])
	}
	if bp.cellStart[occupied+1] != EmptyCell {
		t.Errorf("Expected empty neighbor cell, got start %d", bp.cellStart[occupied+1])
	}
	if bp.Stage() != Idle {
		t.Errorf("Expected Idle after FindPairs, got %v", bp.Stage())
	}
}

func TestConfigValidation(t *testing.T) {
	for _, dims := range [][3]uint32{{3, 16, 16}, {16, 6, 16}, {16, 16, 0}} {
		cfg := testConfig()
		cfg.Dims = dims
		if _, err := New(cfg, compute.NewHostExecutor()); !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("Dims %v: expected ErrInvalidConfig, got %v", dims, err)
		}
	}
	cfg := testConfig()
	cfg.CellSize = 0
	if err := cfg.Validate(); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("Expected ErrInvalidConfig for zero cell size, got %v", err)
	}
}

func TestProxyCapacity(t *testing.T) {
	cfg := testConfig()
	cfg.MaxProxies = 2
	bp, _ := New(cfg, compute.NewHostExecutor())
	err := bp.ComputeAABBs(3, func(int) geom.AABB { return cube(rl.Vector3{}, 1) }, func(int) bool { return false })
	if !errors.Is(err, prim.ErrCapacityExceeded) {
		t.Errorf("Expected ErrCapacityExceeded, got %v", err)
	}
}

func TestGPUHashMatchesHost(t *testing.T) {
	sys, err := compute.NewSystem()
	if err != nil {
		t.Skipf("no GPU adapter: %v", err)
	}
	defer sys.Release()
	hasher, err := compute.NewCellHasher(sys, 2048)
	if err != nil {
		t.Skipf("cell hash pipeline unavailable: %v", err)
	}
	defer hasher.Release()

	rng := rand.New(rand.NewSource(5))
	boxes := make([]geom.AABB, 300)
	for i := range boxes {
		boxes[i] = cube(rl.Vector3{X: rng.Float32()*20 - 10, Y: rng.Float32() * 5, Z: rng.Float32()*20 - 10}, 1)
	}

	host, _ := New(testConfig(), compute.NewHostExecutor())
	want, _ := run(t, host, boxes, nil)

	gpu, _ := New(testConfig(), compute.NewHostExecutor())
	gpu.UseHasher(hasher)
	got, stats := run(t, gpu, boxes, nil)
	if !stats.GPUHash {
		t.Error("Expected the GPU hash path to run")
	}
	if len(got) != len(want) {
		t.Fatalf("Expected %d pairs, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Pair %d differs: %v vs %v", i, got[i], want[i])
		}
	}
}
