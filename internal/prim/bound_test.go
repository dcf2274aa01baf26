package prim

import (
	"errors"
	"testing"

	"gpurigid/internal/compute"
)

func keys(ks ...uint32) []SortPair {
	out := make([]SortPair, len(ks))
	for i, k := range ks {
		out[i] = SortPair{Key: k, Value: uint32(i)}
	}
	return out
}

func TestBoundSearchModes(t *testing.T) {
	sorted := keys(0, 0, 2, 2, 2, 5)
	tests := []struct {
		mode Bound
		want []uint32
	}{
		{Lower, []uint32{0, 2, 2, 5, 5, 5, 6}},
		{Upper, []uint32{2, 2, 5, 5, 5, 6, 6}},
		{Count, []uint32{2, 0, 3, 0, 0, 1, 0}},
	}
	for _, ex := range executors(t) {
		for _, tt := range tests {
			dst := make([]uint32, 7)
			if err := BoundSearch(ex, sorted, dst, tt.mode); err != nil {
				t.Fatalf("%s %v: %v", ex.Name(), tt.mode, err)
			}
			for i := range tt.want {
				if dst[i] != tt.want[i] {
					t.Errorf("%s %v: bucket %d expected %d, got %d", ex.Name(), tt.mode, i, tt.want[i], dst[i])
				}
			}
		}
	}
}

func TestBoundSearchEmptyInput(t *testing.T) {
	dst := []uint32{9, 9, 9}
	if err := BoundSearch(compute.NewHostExecutor(), nil, dst, Count); err != nil {
		t.Fatal(err)
	}
	for i, c := range dst {
		if c != 0 {
			t.Errorf("Expected empty bucket %d, got %d", i, c)
		}
	}
}

func TestBoundSearcherCapacity(t *testing.T) {
	s := NewBoundSearcher(compute.NewHostExecutor(), 4)
	err := s.Execute(keys(1, 2), make([]uint32, 5), Count)
	if !errors.Is(err, ErrCapacityExceeded) {
		t.Errorf("Expected ErrCapacityExceeded, got %v", err)
	}
}
