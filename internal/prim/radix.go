package prim

import (
	"fmt"

	"gpurigid/internal/compute"
)

const (
	radixBits    = 4
	radixBuckets = 1 << radixBits
	radixBlock   = 256
)

// RadixSorter is a stable LSD radix sort over SortPairs with 4-bit digits.
// Each pass is three dispatches: per-block digit histograms, an exclusive
// scan over the (digit, block) table, and a per-block stable scatter.
// Scratch is allocated once for the configured capacity.
type RadixSorter struct {
	ex       compute.Executor
	capacity int

	src, dst []SortPair
	hist     []uint32
	offsets  []uint32
}

// NewRadixSorter sizes the sorter for up to capacity pairs.
func NewRadixSorter(ex compute.Executor, capacity int) *RadixSorter {
	padded := roundUp(capacity, radixBlock)
	blocks := padded / radixBlock
	return &RadixSorter{
		ex:       ex,
		capacity: capacity,
		src:      make([]SortPair, padded),
		dst:      make([]SortPair, padded),
		hist:     make([]uint32, radixBuckets*blocks),
		offsets:  make([]uint32, radixBuckets*blocks+1),
	}
}

// Capacity is the largest input Sort accepts.
func (r *RadixSorter) Capacity() int { return r.capacity }

// Sort orders pairs by key in place.
func (r *RadixSorter) Sort(pairs []SortPair) error {
	return r.SortBits(pairs, 32)
}

// SortBits sorts on the low keyBits bits only, which saves passes when all
// keys are known to be small (solver cell ids fit in 8 bits).
func (r *RadixSorter) SortBits(pairs []SortPair, keyBits int) error {
	n := len(pairs)
	if n > r.capacity {
		return fmt.Errorf("radix sort: %d pairs, capacity %d: %w", n, r.capacity, ErrCapacityExceeded)
	}
	if n < 2 {
		return nil
	}
	if keyBits <= 0 || keyBits > 32 {
		keyBits = 32
	}

	// Pad to a whole number of blocks with sentinels. They start behind
	// every real pair and carry the maximum digit in every pass, so the
	// stable passes keep them at the tail.
	padded := roundUp(n, radixBlock)
	src, dst := r.src[:padded], r.dst[:padded]
	copy(src, pairs)
	for i := n; i < padded; i++ {
		src[i] = SortPair{Key: SentinelKey, Value: SentinelKey}
	}

	blocks := padded / radixBlock
	hist := r.hist[:radixBuckets*blocks]
	offsets := r.offsets[:radixBuckets*blocks+1]

	for shift := 0; shift < keyBits; shift += radixBits {
		r.histogram(src, hist, blocks, uint(shift))
		ExclusiveScan(r.ex, hist, offsets)
		r.scatter(src, dst, offsets, blocks, uint(shift))
		src, dst = dst, src
	}

	copy(pairs, src[:n])
	return nil
}

// histogram stores counts digit-major: hist[d*blocks+b] is the number of
// elements of block b with digit d, so the exclusive scan yields each
// block's first output slot for each digit.
func (r *RadixSorter) histogram(src []SortPair, hist []uint32, blocks int, shift uint) {
	compute.ForEach(r.ex, blocks, func(b int) {
		var local [radixBuckets]uint32
		for _, p := range src[b*radixBlock : (b+1)*radixBlock] {
			local[(p.Key>>shift)&(radixBuckets-1)]++
		}
		for d, c := range local {
			hist[d*blocks+b] = c
		}
	})
}

func (r *RadixSorter) scatter(src, dst []SortPair, offsets []uint32, blocks int, shift uint) {
	compute.ForEach(r.ex, blocks, func(b int) {
		var next [radixBuckets]uint32
		for d := range next {
			next[d] = offsets[d*blocks+b]
		}
		for _, p := range src[b*radixBlock : (b+1)*radixBlock] {
			d := (p.Key >> shift) & (radixBuckets - 1)
			dst[next[d]] = p
			next[d]++
		}
	})
}

func roundUp(n, m int) int {
	if n <= 0 {
		return m
	}
	return (n + m - 1) / m * m
}
