// Stress test comparing host vs device executors on the full pipeline
package main

import (
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"gpurigid/internal/compute"
	"gpurigid/internal/physics"
	"gpurigid/internal/scene"
)

func main() {
	steps := flag.Int("steps", 60, "steps timed per run")
	warmup := flag.Int("warmup", 30, "untimed steps before timing, lets the rain land")
	gpu := flag.Bool("gpu", false, "hash broadphase cells on the GPU")
	verbose := flag.Bool("v", false, "log pipeline warnings")
	flag.Parse()

	var logger *slog.Logger
	if *verbose {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	}

	var sys *compute.System
	if *gpu {
		s, err := compute.NewSystem()
		if err != nil {
			log.Printf("GPU unavailable, hashing on the CPU: %v", err)
		} else {
			sys = s
			defer sys.Release()
			info := sys.Info()
			fmt.Printf("GPU: %s | %s | %s\n\n", info.Backend, info.Vendor, info.Name)
		}
	}

	device := compute.NewDeviceExecutor(0)
	defer device.Close()
	fmt.Printf("device executor: %d workers\n\n", device.Workers())

	testCounts := []int{100, 500, 1000, 2000, 5000, 10000}
	for _, count := range testCounts {
		host, hs, err := run(count, *warmup, *steps, compute.NewHostExecutor(), sys, logger)
		if err != nil {
			fmt.Printf("%5d bodies: host ERROR: %v\n", count, err)
			continue
		}
		dev, ds, err := run(count, *warmup, *steps, device, sys, logger)
		if err != nil {
			fmt.Printf("%5d bodies: device ERROR: %v\n", count, err)
			continue
		}
		if hs.Solve.Constraints != ds.Solve.Constraints {
			log.Printf("%d bodies: host and device disagree (%d vs %d constraints)",
				count, hs.Solve.Constraints, ds.Solve.Constraints)
		}

		speedup := float64(host) / float64(dev)
		fmt.Printf("%5d bodies: host %9v | device %9v | %.1fx | %5d pairs %5d manifolds %6d constraints %4d deferred\n",
			count, host.Round(time.Microsecond), dev.Round(time.Microsecond), speedup,
			ds.Broad.Pairs, ds.Manifolds, ds.Solve.Constraints, ds.Solve.Overflow)
	}
}

// run builds a rain scene and returns the mean step time.
func run(count, warmup, steps int, ex compute.Executor, sys *compute.System, logger *slog.Logger) (time.Duration, physics.Stats, error) {
	f := scene.Rain(count, 42)
	cfg := f.PhysicsConfig()
	cfg.Broadphase.MaxProxies = count + 1
	cfg.Broadphase.MaxPairs = count * 20
	cfg.Narrowphase.MaxContacts = count * 12
	cfg.Solver.MaxConstraints = count * 48

	opts := []physics.Option{physics.WithExecutor(ex)}
	if sys != nil {
		opts = append(opts, physics.WithGPU(sys))
	}
	if logger != nil {
		opts = append(opts, physics.WithLogger(logger))
	}
	w, err := physics.New(cfg, opts...)
	if err != nil {
		return 0, physics.Stats{}, err
	}
	defer w.Close()
	if _, err := f.Build(w); err != nil {
		return 0, physics.Stats{}, err
	}

	const dt = 1.0 / 60
	for i := 0; i < warmup; i++ {
		if err := w.Step(dt); err != nil {
			return 0, physics.Stats{}, err
		}
	}
	start := time.Now()
	for i := 0; i < steps; i++ {
		if err := w.Step(dt); err != nil {
			return 0, physics.Stats{}, err
		}
	}
	if steps == 0 {
		return 0, w.Stats(), nil
	}
	return time.Since(start) / time.Duration(steps), w.Stats(), nil
}
