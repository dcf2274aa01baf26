// GPU probe: reports the WebGPU adapter and checks the cell hash kernel
// against the host hashing path.
package main

import (
	"fmt"
	"log"
	"math/rand"
	"time"

	"gpurigid/internal/broadphase"
	"gpurigid/internal/compute"
)

func main() {
	sys, err := compute.NewSystem()
	if err != nil {
		log.Fatalf("Failed to init compute: %v", err)
	}
	defer sys.Release()

	info := sys.Info()
	fmt.Printf("GPU: %s | %s | %s | %s | %s\n\n", info.Name, info.Vendor, info.Backend, info.DeviceType, info.Driver)

	cfg := broadphase.DefaultConfig()
	inv := 1 / cfg.CellSize
	params := compute.GridParams{InvCellSize: [3]float32{inv, inv, inv}, Dims: cfg.Dims}

	for _, count := range []int{1000, 10000, 100000} {
		probe(sys, params, count)
	}
}

func probe(sys *compute.System, params compute.GridParams, count int) {
	h, err := compute.NewCellHasher(sys, uint32(count))
	if err != nil {
		fmt.Printf("%6d proxies: GPU ERROR: %v\n", count, err)
		return
	}
	defer h.Release()

	rng := rand.New(rand.NewSource(42))
	spawnSize := float32(50.0) + float32(count)/100.0
	mins := make([]compute.Float4, count)
	for i := range mins {
		mins[i] = compute.Float4{
			X: rng.Float32()*spawnSize - spawnSize/2,
			Y: rng.Float32()*spawnSize - spawnSize/2,
			Z: rng.Float32()*spawnSize - spawnSize/2,
		}
	}

	keys := make([]uint32, count)
	// Warm up
	if err := h.HashCells(mins, params, keys); err != nil {
		fmt.Printf("%6d proxies: GPU ERROR: %v\n", count, err)
		return
	}

	const iterations = 10
	gpuStart := time.Now()
	for i := 0; i < iterations; i++ {
		h.HashCells(mins, params, keys)
	}
	gpuTime := time.Since(gpuStart) / iterations

	host := make([]uint32, count)
	cpuStart := time.Now()
	for i := 0; i < iterations; i++ {
		for k, m := range mins {
			host[k] = params.Key(params.CellOf(m.X, m.Y, m.Z))
		}
	}
	cpuTime := time.Since(cpuStart) / iterations

	mismatches := 0
	for k := range keys {
		if keys[k] != host[k] {
			mismatches++
		}
	}
	status := "OK"
	if mismatches > 0 {
		status = fmt.Sprintf("%d MISMATCHES", mismatches)
	}
	fmt.Printf("%6d proxies: GPU %9v | CPU %9v | %s\n",
		count, gpuTime.Round(time.Microsecond), cpuTime.Round(time.Microsecond), status)
}
