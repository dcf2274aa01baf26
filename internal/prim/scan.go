package prim

import (
	"gpurigid/internal/compute"

	"golang.org/x/exp/constraints"
)

const scanBlock = 1024

// ExclusiveScan writes offsets[i] = counts[0] + ... + counts[i-1] for every
// i in [0, len(counts)] and returns the total, which is also stored in
// offsets[len(counts)]. offsets must have room for len(counts)+1 values and
// may not alias counts.
//
// The scan runs in two levels: per-block sums in parallel, a short serial
// scan over the block sums, then a parallel block-local scan.
func ExclusiveScan[T constraints.Integer](ex compute.Executor, counts, offsets []T) T {
	n := len(counts)
	if len(offsets) < n+1 {
		panic("prim: offsets shorter than len(counts)+1")
	}
	if n == 0 {
		offsets[0] = 0
		return 0
	}

	numBlocks := (n + scanBlock - 1) / scanBlock
	sums := make([]T, numBlocks)
	compute.ForEach(ex, numBlocks, func(b int) {
		lo, hi := blockRange(b, n)
		var s T
		for _, c := range counts[lo:hi] {
			s += c
		}
		sums[b] = s
	})

	var total T
	for b, s := range sums {
		sums[b] = total
		total += s
	}

	compute.ForEach(ex, numBlocks, func(b int) {
		lo, hi := blockRange(b, n)
		run := sums[b]
		for i := lo; i < hi; i++ {
			offsets[i] = run
			run += counts[i]
		}
	})
	offsets[n] = total
	return total
}

func blockRange(b, n int) (int, int) {
	lo := b * scanBlock
	hi := lo + scanBlock
	if hi > n {
		hi = n
	}
	return lo, hi
}
