package prim

import (
	"fmt"
	"sort"

	"gpurigid/internal/compute"
)

// Bound selects what BoundSearcher.Execute computes per probe bucket.
type Bound int

const (
	// Lower: index of the first key >= bucket.
	Lower Bound = iota
	// Upper: index of the first key > bucket.
	Upper
	// Count: Upper - Lower, the bucket's occupancy.
	Count
)

func (b Bound) String() string {
	switch b {
	case Lower:
		return "lower"
	case Upper:
		return "upper"
	case Count:
		return "count"
	}
	return fmt.Sprintf("Bound(%d)", int(b))
}

// LowerBound is the smallest index i with sorted[i].Key >= v.
func LowerBound(sorted []SortPair, v uint32) int {
	return sort.Search(len(sorted), func(i int) bool { return sorted[i].Key >= v })
}

// UpperBound is the smallest index i with sorted[i].Key > v.
func UpperBound(sorted []SortPair, v uint32) int {
	return sort.Search(len(sorted), func(i int) bool { return sorted[i].Key > v })
}

// BoundSearcher answers bound queries for the buckets 0..M-1 against a
// key-sorted array, one binary search per bucket. It owns the scratch
// arrays the Count mode needs.
type BoundSearcher struct {
	ex           compute.Executor
	lower, upper []uint32
}

// NewBoundSearcher sizes the Count scratch for up to maxBuckets buckets.
func NewBoundSearcher(ex compute.Executor, maxBuckets int) *BoundSearcher {
	return &BoundSearcher{
		ex:    ex,
		lower: make([]uint32, maxBuckets),
		upper: make([]uint32, maxBuckets),
	}
}

// Execute fills dst[v] for every bucket v in [0, len(dst)).
func (s *BoundSearcher) Execute(sorted []SortPair, dst []uint32, opt Bound) error {
	switch opt {
	case Lower:
		compute.ForEach(s.ex, len(dst), func(v int) {
			dst[v] = uint32(LowerBound(sorted, uint32(v)))
		})
	case Upper:
		compute.ForEach(s.ex, len(dst), func(v int) {
			dst[v] = uint32(UpperBound(sorted, uint32(v)))
		})
	case Count:
		m := len(dst)
		if m > len(s.lower) {
			return fmt.Errorf("bound search: %d buckets, capacity %d: %w", m, len(s.lower), ErrCapacityExceeded)
		}
		lower, upper := s.lower[:m], s.upper[:m]
		if err := s.Execute(sorted, lower, Lower); err != nil {
			return err
		}
		if err := s.Execute(sorted, upper, Upper); err != nil {
			return err
		}
		compute.ForEach(s.ex, m, func(v int) {
			dst[v] = upper[v] - lower[v]
		})
	default:
		return fmt.Errorf("bound search: unknown mode %v", opt)
	}
	return nil
}

// BoundSearch is a one-shot Execute with scratch sized to dst.
func BoundSearch(ex compute.Executor, sorted []SortPair, dst []uint32, opt Bound) error {
	return NewBoundSearcher(ex, len(dst)).Execute(sorted, dst, opt)
}
