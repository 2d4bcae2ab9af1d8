package object

import (
	"github.com/kristofer/loxvm/pkg/chunk"
	"github.com/kristofer/loxvm/pkg/value"
)

// Heap owns the VM's allocation list (every live object, linked through its
// header, head-inserted) and the intern table that guarantees at most one
// ObjString exists per distinct byte sequence.
type Heap struct {
	allocHead value.Obj
	strings   *Table
	count     int // total objects ever allocated, for diagnostics/tests
}

// NewHeap returns an empty heap.
func NewHeap() *Heap {
	return &Heap{strings: NewTable()}
}

// track links o at the head of the allocation list.
func (h *Heap) track(o value.Obj) {
	if l, ok := o.(linked); ok {
		l.SetObjNext(h.allocHead)
	}
	h.allocHead = o
	h.count++
}

// Count returns the number of objects currently tracked by the allocation
// list (every object ever allocated; this package does not reclaim).
func (h *Heap) Count() int { return h.count }

// InternString returns the unique ObjString for the given bytes, allocating
// one only if no equal string has been interned yet (spec.md §4.2):
//  1. hash the bytes (FNV-1a)
//  2. probe the intern table by (bytes, hash); return the existing handle
//     if present
//  3. otherwise allocate, register in the intern table, and return it
func (h *Heap) InternString(chars string) *ObjString {
	hash := fnv1a(chars)
	if existing := h.strings.FindString(chars, hash); existing != nil {
		return existing
	}
	s := &ObjString{Chars: chars, Hash: hash}
	h.track(s)
	h.strings.Set(s, value.Nil)
	return s
}

// Concat implements Lox string concatenation: allocate the joined bytes,
// then perform the same intern lookup concatenation always requires — if an
// identical string already exists, the freshly computed bytes are discarded
// (Go's GC reclaims them; there is nothing to free explicitly) rather than
// publishing a second object with the same content.
func (h *Heap) Concat(a, b *ObjString) *ObjString {
	return h.InternString(a.Chars + b.Chars)
}

// NewFunction allocates an (initially anonymous, arity-0) function object
// wrapping chunk c. The compiler fills in Name/Arity/UpvalueCount once known.
func (h *Heap) NewFunction(c *chunk.Chunk) *ObjFunction {
	f := &ObjFunction{Chunk: c}
	h.track(f)
	return f
}

// NewNative binds a host function as a Native object and tracks it on the
// allocation list.
func (h *Heap) NewNative(name string, fn NativeFn) *ObjNative {
	n := &ObjNative{Name: name, Fn: fn}
	h.track(n)
	return n
}

// NewClosure allocates a closure over fn with upvalueCount empty upvalue
// slots (filled in by the VM's OP_CLOSURE handler via captureUpvalue).
func (h *Heap) NewClosure(fn *ObjFunction) *ObjClosure {
	c := &ObjClosure{Function: fn, Upvalues: make([]*ObjUpvalue, fn.UpvalueCount)}
	h.track(c)
	return c
}

// NewUpvalue allocates an open upvalue pointing at slot.
func (h *Heap) NewUpvalue(slot *value.Value) *ObjUpvalue {
	u := &ObjUpvalue{Location: slot}
	h.track(u)
	return u
}

// NewClass allocates a class named name with an empty method table.
func (h *Heap) NewClass(name *ObjString) *ObjClass {
	c := NewClass(name)
	h.track(c)
	return c
}

// NewInstance allocates an instance of class with an empty field table.
func (h *Heap) NewInstance(class *ObjClass) *ObjInstance {
	i := NewInstance(class)
	h.track(i)
	return i
}

// NewBoundMethod allocates a bound-method object pairing receiver with method.
func (h *Heap) NewBoundMethod(receiver value.Value, method *ObjClosure) *ObjBoundMethod {
	b := &ObjBoundMethod{Receiver: receiver, Method: method}
	h.track(b)
	return b
}
