package compute

import (
	"errors"
	"testing"
)

func TestBufferResizeKeepsContents(t *testing.T) {
	b := NewBuffer[int]("ints", 2, 64)
	if err := b.Resize(2); err != nil {
		t.Fatal(err)
	}
	b.Slice()[0], b.Slice()[1] = 7, 9

	if err := b.Resize(10); err != nil {
		t.Fatalf("Resize(10) failed: %v", err)
	}
	if b.Len() != 10 {
		t.Errorf("Expected length 10, got %d", b.Len())
	}
	if b.Slice()[0] != 7 || b.Slice()[1] != 9 {
		t.Errorf("Contents lost on growth: %v", b.Slice()[:2])
	}
	if b.Cap() < 10 || b.Cap() > 64 {
		t.Errorf("Capacity %d outside [10,64]", b.Cap())
	}
}

func TestBufferLimit(t *testing.T) {
	b := NewBuffer[float32]("limited", 4, 8)
	if err := b.Resize(8); err != nil {
		t.Fatalf("Resize to limit failed: %v", err)
	}
	err := b.Resize(9)
	if !errors.Is(err, ErrAllocationFailure) {
		t.Errorf("Expected ErrAllocationFailure, got %v", err)
	}
	if b.Len() != 8 {
		t.Errorf("Failed resize changed length to %d", b.Len())
	}
}

func TestBufferDefaultLimitIsCapacity(t *testing.T) {
	b := NewBuffer[byte]("fixed", 16, 0)
	if b.Limit() != 16 {
		t.Errorf("Expected limit 16, got %d", b.Limit())
	}
	if err := b.Resize(17); !errors.Is(err, ErrAllocationFailure) {
		t.Errorf("Expected ErrAllocationFailure past capacity, got %v", err)
	}
}

func TestBufferRelease(t *testing.T) {
	b := NewBuffer[int]("released", 8, 8)
	b.Resize(4)
	b.Release()
	if b.Len() != 0 || b.Cap() != 0 {
		t.Errorf("Release should drop storage, len=%d cap=%d", b.Len(), b.Cap())
	}
}
