package object_test

import (
	"testing"

	"github.com/kristofer/loxvm/pkg/object"
)

func TestInterningIsIdempotent(t *testing.T) {
	h := object.NewHeap()
	a := h.InternString("hello")
	b := h.InternString("hello")
	if a != b {
		t.Fatal("interning the same content twice must return the same handle")
	}
}

func TestInterningDistinguishesDistinctContent(t *testing.T) {
	h := object.NewHeap()
	a := h.InternString("hello")
	b := h.InternString("hellp")
	if a == b {
		t.Fatal("distinct content must not intern to the same handle")
	}
}

func TestConcatInternsTheResult(t *testing.T) {
	h := object.NewHeap()
	a := h.InternString("he")
	b := h.InternString("llo")
	joined := h.Concat(a, b)

	direct := h.InternString("hello")
	if joined != direct {
		t.Fatal("concatenation must intern its result like any other string construction")
	}
}

func TestAllocationListGrowsByOne(t *testing.T) {
	h := object.NewHeap()
	before := h.Count()
	h.InternString("unique-content-for-this-test")
	if h.Count() != before+1 {
		t.Fatalf("Count after one allocation = %d, want %d", h.Count(), before+1)
	}
	// Interning the same content again must not grow the allocation list.
	h.InternString("unique-content-for-this-test")
	if h.Count() != before+1 {
		t.Fatalf("Count after re-interning = %d, want %d", h.Count(), before+1)
	}
}
