// Package object implements the VM's heap: the concrete layouts of every
// object variant a Value can reference (strings, functions, natives,
// closures, upvalues, classes, instances, bound methods), string interning,
// and the open-addressed Table used for globals, instance fields, and class
// method tables.
//
// Every object embeds header, which carries the two fields a future
// mark-sweep collector needs: a reachability flag and the intrusive
// next-link forming the Heap's allocation list (spec.md §3, §9). Nothing in
// this package runs a collector — Go's own garbage collector reclaims
// objects no longer reachable through the VM's roots — but the bookkeeping
// is kept live so a mark-sweep pass could be added without restructuring
// the object model, per the spec's explicit non-goal of mandating one.
package object

import (
	"fmt"

	"github.com/kristofer/loxvm/pkg/chunk"
	"github.com/kristofer/loxvm/pkg/value"
)

// header is embedded by every heap object variant.
type header struct {
	marked bool
	next   value.Obj
}

func (h *header) ObjNext() value.Obj  { return h.next }
func (h *header) SetObjNext(o value.Obj) { h.next = o }
func (h *header) IsMarked() bool      { return h.marked }
func (h *header) SetMarked(m bool)    { h.marked = m }

// linked is implemented by header and lets the Heap thread the allocation
// list through arbitrary Obj variants without a type switch.
type linked interface {
	ObjNext() value.Obj
	SetObjNext(value.Obj)
}

// ObjString is an interned, immutable byte sequence with a precomputed
// FNV-1a hash. At most one ObjString exists for any distinct byte sequence
// (see Heap.InternString) — comparing two string Values is pointer
// comparison, never a byte-for-byte scan.
type ObjString struct {
	header
	Chars string
	Hash  uint32
}

func (s *ObjString) ObjType() string { return "string" }
func (s *ObjString) String() string  { return s.Chars }

// ObjFunction is a compiled function: its arity, how many upvalues its
// closures must capture, an optional name (absent for the implicit
// top-level <script>), and the Chunk of bytecode the compiler produced.
type ObjFunction struct {
	header
	Arity        int
	UpvalueCount int
	Name         *ObjString
	Chunk        *chunk.Chunk
}

func (f *ObjFunction) ObjType() string { return "function" }

func (f *ObjFunction) String() string {
	if f.Name == nil {
		return "<script>"
	}
	return fmt.Sprintf("<fn %s>", f.Name.Chars)
}

// NumUpvalues reports how many upvalue descriptors follow this function's
// OP_CLOSURE instruction. Exposed as a method (distinct from the
// UpvalueCount field) so pkg/chunk's disassembler can read it through a
// structural interface without importing this package, which would create
// an import cycle (this package already imports pkg/chunk).
func (f *ObjFunction) NumUpvalues() int { return f.UpvalueCount }

// NativeFn is the native-function ABI: given the positional arguments, it
// returns a Value. Natives may not fail — they always produce a Value.
type NativeFn func(args []value.Value) value.Value

// ObjNative wraps a host-provided function bound into globals at startup.
type ObjNative struct {
	header
	Name string
	Fn   NativeFn
}

func (n *ObjNative) ObjType() string { return "native" }
func (n *ObjNative) String() string  { return "<native fn>" }

// ObjUpvalue is either open (Location points at a live stack slot) or
// closed (Location points at Closed, an owned copy of the captured value).
// Next chains open upvalues in a single VM-wide list, sorted by Slot
// descending — see pkg/vm for the invariant this ordering maintains. Slot
// is the stack index Location pointed at while open; Go arrays don't admit
// the raw pointer comparisons the original ordering relied on, so the VM
// orders and searches the open list by this index instead.
type ObjUpvalue struct {
	header
	Location *value.Value
	Closed   value.Value
	Slot     int
	Next     *ObjUpvalue
}

func (u *ObjUpvalue) ObjType() string { return "upvalue" }
func (u *ObjUpvalue) String() string  { return "upvalue" }

// Close hoists the referenced stack value into the upvalue's own storage
// and redirects Location to point at it, after which the upvalue no longer
// depends on the stack slot it used to reference.
func (u *ObjUpvalue) Close() {
	u.Closed = *u.Location
	u.Location = &u.Closed
}

// ObjClosure pairs a Function with the upvalues its body captured. It does
// not own the Function (many closures can share one compiled function); it
// does own its upvalue slice.
type ObjClosure struct {
	header
	Function *ObjFunction
	Upvalues []*ObjUpvalue
}

func (c *ObjClosure) ObjType() string { return "closure" }
func (c *ObjClosure) String() string  { return c.Function.String() }

// UpvalueCount reports how many upvalue descriptors follow this closure's
// OP_CLOSURE instruction (the disassembler reads the same count through
// ObjFunction.NumUpvalues instead).
func (c *ObjClosure) UpvalueCount() int { return c.Function.UpvalueCount }

// ObjClass is a class: its name and its own (non-inherited-and-copied-in)
// method table. Inheritance (OP_INHERIT) copies the superclass's methods
// into the subclass's table at class-declaration time, so method lookup
// never has to walk a superclass chain at call time.
type ObjClass struct {
	header
	Name    *ObjString
	Methods *Table
}

func (c *ObjClass) ObjType() string { return "class" }
func (c *ObjClass) String() string  { return c.Name.Chars }

// NewClass allocates a class with an empty method table.
func NewClass(name *ObjString) *ObjClass {
	return &ObjClass{Name: name, Methods: NewTable()}
}

// ObjInstance is an instance of a class: the class it was constructed from
// plus its own field table.
type ObjInstance struct {
	header
	Class  *ObjClass
	Fields *Table
}

func (i *ObjInstance) ObjType() string { return "instance" }
func (i *ObjInstance) String() string  { return fmt.Sprintf("%s instance", i.Class.Name.Chars) }

// NewInstance allocates an instance with an empty field table.
func NewInstance(class *ObjClass) *ObjInstance {
	return &ObjInstance{Class: class, Fields: NewTable()}
}

// ObjBoundMethod pairs a receiver with one of its class's closures, created
// by OP_GET_PROPERTY / OP_GET_SUPER when the looked-up name resolves to a
// method rather than a field.
type ObjBoundMethod struct {
	header
	Receiver value.Value
	Method   *ObjClosure
}

func (b *ObjBoundMethod) ObjType() string { return "bound method" }
func (b *ObjBoundMethod) String() string  { return b.Method.String() }

// FNV-1a 32-bit hash, per spec.md §4.2: basis 2166136261, prime 16777619,
// xor-then-multiply per byte.
func fnv1a(s string) uint32 {
	const (
		basis = 2166136261
		prime = 16777619
	)
	h := uint32(basis)
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= prime
	}
	return h
}
