package object

import "github.com/kristofer/loxvm/pkg/value"

// Table is an open-addressed hash map from *ObjString (by identity, using
// its cached hash) to Value. It backs globals, instance fields, and class
// method tables, and doubles as the VM's string-intern table (see Heap).
//
// Linear probing with tombstones, grown at a 75% load factor — the layout
// clox uses, described directly by spec.md §3/§4.2 ("open-addressed hash
// map", "tableFindString(bytes, len, hash)"). A slot's key distinguishes
// live (key != nil) from the other two states; among key == nil slots, the
// value distinguishes never-used (Nil) from tombstone (Bool(true)) exactly
// as clox's table.c does, rather than a separate bookkeeping flag.
type Table struct {
	count   int // live entries + tombstones
	entries []entry
}

type entry struct {
	key   *ObjString // nil means empty or tombstone
	value value.Value
}

const maxLoad = 0.75

// NewTable returns an empty table.
func NewTable() *Table {
	return &Table{}
}

// Get looks up key and reports whether it was present.
func (t *Table) Get(key *ObjString) (value.Value, bool) {
	if len(t.entries) == 0 {
		return value.Nil, false
	}
	e := t.find(key)
	if e.key == nil {
		return value.Nil, false
	}
	return e.value, true
}

// Set inserts or overwrites key's value. Reports whether this created a new
// entry (as opposed to overwriting an existing one).
func (t *Table) Set(key *ObjString, v value.Value) bool {
	if float64(t.count+1) > float64(len(t.entries))*maxLoad {
		t.grow()
	}
	e := t.find(key)
	isNew := e.key == nil
	// Reusing a tombstone doesn't grow the live set past what it already
	// accounted for, so count only goes up for a genuinely unused slot.
	if isNew && e.value.IsNil() {
		t.count++
	}
	e.key = key
	e.value = v
	return isNew
}

// Delete removes key, leaving a tombstone so probe chains past it remain
// intact. Reports whether the key was present.
func (t *Table) Delete(key *ObjString) bool {
	if len(t.entries) == 0 {
		return false
	}
	e := t.find(key)
	if e.key == nil {
		return false
	}
	e.key = nil
	e.value = value.Bool(true) // tombstone marker; any non-Nil value would do
	return true
}

// Has reports whether key is present without allocating a Value copy.
func (t *Table) Has(key *ObjString) bool {
	_, ok := t.Get(key)
	return ok
}

// Len reports the number of live (non-tombstone) entries.
func (t *Table) Len() int {
	n := 0
	for i := range t.entries {
		if t.entries[i].key != nil {
			n++
		}
	}
	return n
}

// Each calls fn for every live entry, in unspecified order.
func (t *Table) Each(fn func(key *ObjString, v value.Value)) {
	for i := range t.entries {
		if t.entries[i].key != nil {
			fn(t.entries[i].key, t.entries[i].value)
		}
	}
}

// CopyInto copies every live entry of t into dst, overwriting any existing
// entries with the same key. Used by OP_INHERIT to copy a superclass's
// method table into a subclass's.
func (t *Table) CopyInto(dst *Table) {
	for i := range t.entries {
		if t.entries[i].key != nil {
			dst.Set(t.entries[i].key, t.entries[i].value)
		}
	}
}

// FindString looks up a string by its raw content rather than by an
// existing *ObjString handle — the mechanism that makes interning possible:
// the intern table can be probed for "does a string with these bytes
// already exist" before any new ObjString is allocated.
func (t *Table) FindString(chars string, hash uint32) *ObjString {
	if len(t.entries) == 0 {
		return nil
	}
	mask := uint32(len(t.entries) - 1)
	idx := hash & mask
	for {
		e := &t.entries[idx]
		if e.key == nil {
			if e.value.IsNil() {
				return nil // never-used slot: definitely not present
			}
			// tombstone: keep probing
		} else if e.key.Hash == hash && e.key.Chars == chars {
			return e.key
		}
		idx = (idx + 1) & mask
	}
}

// find returns the entry key should occupy: either its existing slot, or
// the first tombstone/empty slot seen along its probe sequence (so reinsertion
// after deletions reuses tombstones rather than growing unnecessarily).
func (t *Table) find(key *ObjString) *entry {
	mask := uint32(len(t.entries) - 1)
	idx := key.Hash & mask
	var tombstone *entry
	for {
		e := &t.entries[idx]
		if e.key == nil {
			if e.value.IsNil() {
				if tombstone != nil {
					return tombstone
				}
				return e
			}
			if tombstone == nil {
				tombstone = e
			}
		} else if e.key == key {
			return e
		}
		idx = (idx + 1) & mask
	}
}

func (t *Table) grow() {
	newCap := 8
	if len(t.entries) > 0 {
		newCap = len(t.entries) * 2
	}
	old := t.entries
	t.entries = make([]entry, newCap)
	t.count = 0
	for i := range old {
		if old[i].key != nil {
			t.Set(old[i].key, old[i].value)
		}
	}
}
