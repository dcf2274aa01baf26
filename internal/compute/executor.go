package compute

import (
	"runtime"
	"sync"
)

// Executor runs data-parallel dispatches. Every pipeline stage is one
// Dispatch call; Dispatch returns only once all work-items have finished,
// so the next stage always sees the previous stage's writes.
type Executor interface {
	Name() string
	Workers() int
	// Dispatch runs kernel over [0,n) split into disjoint [lo,hi) chunks.
	Dispatch(n int, kernel func(lo, hi int))
	Close()
}

// ForEach dispatches one work-item per index.
func ForEach(ex Executor, n int, kernel func(i int)) {
	ex.Dispatch(n, func(lo, hi int) {
		for i := lo; i < hi; i++ {
			kernel(i)
		}
	})
}

// HostExecutor runs every dispatch on the calling goroutine as a single chunk.
// Results are identical to DeviceExecutor for race-free kernels, which makes
// it the reference executor in tests.
type HostExecutor struct{}

func NewHostExecutor() *HostExecutor { return &HostExecutor{} }

func (*HostExecutor) Name() string { return "host" }
func (*HostExecutor) Workers() int { return 1 }
func (*HostExecutor) Close() {}

func (*HostExecutor) Dispatch(n int, kernel func(lo, hi int)) {
	if n <= 0 {
		return
	}
	kernel(0, n)
}

// minChunk keeps tiny dispatches from paying goroutine hand-off costs per item.
const minChunk = 64

type job struct {
	kernel func(lo, hi int)
	lo, hi int
	wg     *sync.WaitGroup
}

// DeviceExecutor is a persistent worker pool. A dispatch is split into
// roughly Workers()*4 chunks which the workers drain; the caller blocks
// on a WaitGroup until the whole grid is done.
type DeviceExecutor struct {
	workers int
	jobs    chan job
	once    sync.Once
}

// NewDeviceExecutor starts the worker pool. workers <= 0 uses GOMAXPROCS.
func NewDeviceExecutor(workers int) *DeviceExecutor {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	d := &DeviceExecutor{
		workers: workers,
		jobs:    make(chan job, workers*4),
	}
	for i := 0; i < workers; i++ {
		go d.run()
	}
	return d
}

func (d *DeviceExecutor) run() {
	for j := range d.jobs {
		j.kernel(j.lo, j.hi)
		j.wg.Done()
	}
}

func (d *DeviceExecutor) Name() string { return "device" }
func (d *DeviceExecutor) Workers() int { return d.workers }

func (d *DeviceExecutor) Dispatch(n int, kernel func(lo, hi int)) {
	if n <= 0 {
		return
	}
	chunk := (n + d.workers*4 - 1) / (d.workers * 4)
	if chunk < minChunk {
		chunk = minChunk
	}
	if chunk >= n {
		kernel(0, n)
		return
	}

	var wg sync.WaitGroup
	for lo := 0; lo < n; lo += chunk {
		hi := lo + chunk
		if hi > n {
			hi = n
		}
		wg.Add(1)
		d.jobs <- job{kernel: kernel, lo: lo, hi: hi, wg: &wg}
	}
	wg.Wait()
}

// DispatchTasks is like Dispatch but never coalesces items: each index is a
// task that may be long running (a solver cell), so chunking by minChunk
// would serialize the wave.
func DispatchTasks(ex Executor, n int, task func(i int)) {
	d, ok := ex.(*DeviceExecutor)
	if !ok || n <= 1 {
		ForEach(ex, n, task)
		return
	}
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		i := i
		d.jobs <- job{kernel: func(int, int) { task(i) }, lo: i, hi: i + 1, wg: &wg}
	}
	wg.Wait()
}

// Close stops the workers. Dispatching after Close panics.
func (d *DeviceExecutor) Close() {
	d.once.Do(func() { close(d.jobs) })
}

// New returns the executor named by kind ("host" or "device").
func New(kind string, workers int) (Executor, error) {
	switch kind {
	case "", "device":
		return NewDeviceExecutor(workers), nil
	case "host":
		return NewHostExecutor(), nil
	}
	return nil, &UnknownExecutorError{Kind: kind}
}

// UnknownExecutorError reports an executor kind New does not know.
type UnknownExecutorError struct {
	Kind string
}

func (e *UnknownExecutorError) Error() string {
	return "compute: unknown executor " + e.Kind
}
