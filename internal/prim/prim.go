// Package prim holds the data-parallel building blocks shared by the
// broadphase and the solver: radix sort, exclusive prefix sum and
// sorted-range bound search.
package prim

import (
	"errors"
	"math"
)

// ErrCapacityExceeded is returned when an input does not fit the buffers a
// primitive was sized for.
var ErrCapacityExceeded = errors.New("capacity exceeded")

// SortPair is a sortable key with the index of the element it came from.
type SortPair struct {
	Key   uint32
	Value uint32
}

// SentinelKey pads sort inputs; it always sorts last.
const SentinelKey = math.MaxUint32
