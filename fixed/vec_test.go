package fixed

import (
	"errors"
	"testing"
)

func TestVecPushRespectsCapacity(t *testing.T) {
	v := NewVec[int](2)
	if err := v.Push(1); err != nil {
		t.Fatalf("Push: %v", err)
	}
	if err := v.Push(2); err != nil {
		t.Fatalf("Push: %v", err)
	}
	if !v.Full() {
		t.Fatal("expected Full at capacity")
	}

	err := v.Push(3)
	var full *ErrFull
	if !errors.As(err, &full) {
		t.Fatalf("expected ErrFull, got %v", err)
	}
	if full.Capacity != 2 {
		t.Fatalf("expected capacity 2 in error, got %d", full.Capacity)
	}
	if v.Len() != 2 {
		t.Fatalf("overflowing Push must not grow the vector, len=%d", v.Len())
	}
}

func TestVecRemoveAtPreservesOrder(t *testing.T) {
	v := NewVec[int](4)
	for _, n := range []int{10, 20, 30, 40} {
		if err := v.Push(n); err != nil {
			t.Fatalf("Push: %v", err)
		}
	}
	v.RemoveAt(1)
	want := []int{10, 30, 40}
	got := v.Slice()
	if len(got) != len(want) {
		t.Fatalf("len=%d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("index %d: got %d, want %d", i, got[i], want[i])
		}
	}
}

func TestVecCloneIsIndependent(t *testing.T) {
	v := NewVec[int](3)
	v.Push(1)
	v.Push(2)
	c := v.Clone()
	c.Set(0, 99)
	if v.At(0) != 1 {
		t.Fatal("mutating the clone must not affect the original")
	}
	v.Clear()
	if c.Len() != 2 {
		t.Fatal("clearing the original must not affect the clone")
	}
}
