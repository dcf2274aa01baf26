package compute

import (
	"fmt"
	"math"

	"github.com/cogentcore/webgpu/wgpu"
)

// GridParams describes the uniform hash grid shared by the host and GPU
// hashing paths. Dims must be powers of two; cell coordinates wrap.
type GridParams struct {
	InvCellSize [3]float32
	Count       uint32
	Dims        [3]uint32
	_           uint32
}

// Float4 is a vec4<f32> as laid out in storage buffers.
type Float4 struct {
	X, Y, Z, W float32
}

// CellOf returns the unwrapped integer cell coordinate containing a point.
func (p GridParams) CellOf(x, y, z float32) [3]int32 {
	return [3]int32{
		int32(math.Floor(float64(x * p.InvCellSize[0]))),
		int32(math.Floor(float64(y * p.InvCellSize[1]))),
		int32(math.Floor(float64(z * p.InvCellSize[2]))),
	}
}

// Key packs a cell coordinate into a key in [0, NumCells). Coordinates are
// wrapped by masking, so x-adjacent cells have adjacent keys.
func (p GridParams) Key(c [3]int32) uint32 {
	x := uint32(c[0]) & (p.Dims[0] - 1)
	y := uint32(c[1]) & (p.Dims[1] - 1)
	z := uint32(c[2]) & (p.Dims[2] - 1)
	return (z*p.Dims[1]+y)*p.Dims[0] + x
}

// NumCells is the number of distinct keys.
func (p GridParams) NumCells() int {
	return int(p.Dims[0] * p.Dims[1] * p.Dims[2])
}

const cellHashShader = `
// Cell hash kernel: one invocation per proxy.
// Matches GridParams.CellOf + GridParams.Key on the host bit for bit.

struct Params {
    invCellSize: vec3<f32>,
    count: u32,
    dims: vec3<u32>,
    pad: u32,
}

@group(0) @binding(0) var<storage, read> mins: array<vec4<f32>>;
@group(0) @binding(1) var<storage, read_write> keys: array<u32>;
@group(0) @binding(2) var<uniform> params: Params;

@compute @workgroup_size(64)
fn main(@builtin(global_invocation_id) global_id: vec3<u32>) {
    let i = global_id.x;
    if (i >= params.count) {
        return;
    }

    let c = vec3<i32>(floor(mins[i].xyz * params.invCellSize));
    let x = bitcast<u32>(c.x) & (params.dims.x - 1u);
    let y = bitcast<u32>(c.y) & (params.dims.y - 1u);
    let z = bitcast<u32>(c.z) & (params.dims.z - 1u);
    keys[i] = (z * params.dims.y + y) * params.dims.x + x;
}
`

// CellHasher computes broadphase cell keys on the GPU. Buffers are sized
// for maxProxies at construction and reused every step.
type CellHasher struct {
	system   *System
	pipeline *Pipeline

	minBuffer    *DeviceBuffer // Input: AABB min corners
	keyBuffer    *DeviceBuffer // Output: one key per proxy
	paramsBuffer *DeviceBuffer

	maxProxies uint32
}

// NewCellHasher compiles the hash kernel on sys.
func NewCellHasher(sys *System, maxProxies uint32) (*CellHasher, error) {
	if sys == nil {
		return nil, fmt.Errorf("cell hasher: no compute system")
	}
	if maxProxies == 0 {
		maxProxies = 1
	}

	pipeline, err := sys.CreatePipeline("cellhash", cellHashShader, "main")
	if err != nil {
		return nil, err
	}

	minBuffer, err := sys.CreateBuffer("cellhash_mins", uint64(maxProxies)*16,
		wgpu.BufferUsageStorage|wgpu.BufferUsageCopyDst)
	if err != nil {
		return nil, err
	}

	keyBuffer, err := sys.CreateBuffer("cellhash_keys", uint64(maxProxies)*4,
		wgpu.BufferUsageStorage|wgpu.BufferUsageCopySrc)
	if err != nil {
		minBuffer.Release()
		return nil, err
	}

	paramsBuffer, err := sys.CreateBuffer("cellhash_params", 32,
		wgpu.BufferUsageUniform|wgpu.BufferUsageCopyDst)
	if err != nil {
		minBuffer.Release()
		keyBuffer.Release()
		return nil, err
	}

	return &CellHasher{
		system:       sys,
		pipeline:     pipeline,
		minBuffer:    minBuffer,
		keyBuffer:    keyBuffer,
		paramsBuffer: paramsBuffer,
		maxProxies:   maxProxies,
	}, nil
}

// HashCells writes the cell key of every min corner into keys.
func (h *CellHasher) HashCells(mins []Float4, params GridParams, keys []uint32) error {
	if len(mins) == 0 {
		return nil
	}
	if uint32(len(mins)) > h.maxProxies {
		return fmt.Errorf("cell hasher: %d proxies, capacity %d: %w", len(mins), h.maxProxies, ErrAllocationFailure)
	}
	params.Count = uint32(len(mins))

	h.system.WriteBuffer(h.minBuffer, 0, ToBytes(mins))
	h.system.WriteBuffer(h.paramsBuffer, 0, ToBytes([]GridParams{params}))

	err := h.system.Dispatch(DispatchParams{
		Pipeline:    h.pipeline,
		Buffers:     []*DeviceBuffer{h.minBuffer, h.keyBuffer, h.paramsBuffer},
		WorkgroupsX: (params.Count + 63) / 64,
	})
	if err != nil {
		return err
	}

	data, err := h.system.ReadBuffer(h.keyBuffer)
	if err != nil {
		return err
	}
	copy(keys, fromBytes[uint32](data)[:len(mins)])
	return nil
}

// Release frees GPU resources.
func (h *CellHasher) Release() {
	if h.minBuffer != nil {
		h.minBuffer.Release()
	}
	if h.keyBuffer != nil {
		h.keyBuffer.Release()
	}
	if h.paramsBuffer != nil {
		h.paramsBuffer.Release()
	}
}
