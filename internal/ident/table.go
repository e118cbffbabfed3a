package ident

import "fmt"

// Table maps dense virtual ids to real handles of one object category.
// The zero virtual id is never issued, and resolving an id that is not
// live returns the category's invalid-handle sentinel rather than a zero
// value, so a stale reference fails the same way a bad handle would at
// the driver.
//
// The table enforces that no two live virtual ids share a real handle;
// a violation means bookkeeping is already corrupt and is returned as an
// error the caller must treat as fatal.
type Table[R ~uint64] struct {
	alloc    Allocator
	toReal   map[uint32]R
	fromReal map[R]uint32
	invalid  R
}

// NewTable returns an empty table whose Resolve misses yield invalid.
func NewTable[R ~uint64](invalid R) *Table[R] {
	return &Table[R]{
		toReal:   make(map[uint32]R),
		fromReal: make(map[R]uint32),
		invalid:  invalid,
	}
}

// Allocate issues the lowest free virtual id for real.
func (t *Table[R]) Allocate(real R) (uint32, error) {
	if prev, ok := t.fromReal[real]; ok {
		return 0, fmt.Errorf("ident: real handle %#x already mapped to id %d", uint64(real), prev)
	}
	v := t.alloc.Acquire()
	t.toReal[v] = real
	t.fromReal[real] = v
	return v, nil
}

// Bind pins a specific virtual id to real. Used on replay, where the
// trace dictates the id.
func (t *Table[R]) Bind(v uint32, real R) error {
	if prev, ok := t.fromReal[real]; ok {
		return fmt.Errorf("ident: real handle %#x already mapped to id %d", uint64(real), prev)
	}
	if err := t.alloc.Reserve(v); err != nil {
		return err
	}
	t.toReal[v] = real
	t.fromReal[real] = v
	return nil
}

// Resolve returns the real handle for a live virtual id, or the invalid
// sentinel when the id is unknown or already released.
func (t *Table[R]) Resolve(v uint32) R {
	real, ok := t.toReal[v]
	if !ok {
		return t.invalid
	}
	return real
}

// VirtualOf returns the live virtual id for a real handle.
func (t *Table[R]) VirtualOf(real R) (uint32, bool) {
	v, ok := t.fromReal[real]
	return v, ok
}

// Release frees a virtual id after its real object was confirmed
// deleted. Releasing a dead id is an error: it means the caller's
// lifetime bookkeeping diverged from the table's.
func (t *Table[R]) Release(v uint32) error {
	real, ok := t.toReal[v]
	if !ok {
		return fmt.Errorf("ident: release of unknown id %d", v)
	}
	if err := t.alloc.Release(v); err != nil {
		return err
	}
	delete(t.toReal, v)
	delete(t.fromReal, real)
	return nil
}

// Live reports whether v currently maps to a real handle.
func (t *Table[R]) Live(v uint32) bool { return t.alloc.Live(v) }

// Count returns the number of live mappings.
func (t *Table[R]) Count() int { return t.alloc.Count() }

// Direct maps logical identities that are carried by value (devices and
// contexts use the capture run's real handle as the logical identity).
// Resolve misses return the invalid sentinel, matching Table.
type Direct[R ~uint64] struct {
	m       map[uint64]R
	invalid R
}

// NewDirect returns an empty direct table.
func NewDirect[R ~uint64](invalid R) *Direct[R] {
	return &Direct[R]{m: make(map[uint64]R), invalid: invalid}
}

// Put binds a logical identity to a real handle. Rebinding a live
// identity is an error; the caller must Release first.
func (d *Direct[R]) Put(logical uint64, real R) error {
	if _, ok := d.m[logical]; ok {
		return fmt.Errorf("ident: logical identity %#x already bound", logical)
	}
	d.m[logical] = real
	return nil
}

// Resolve returns the real handle for a logical identity, or the
// invalid sentinel.
func (d *Direct[R]) Resolve(logical uint64) R {
	real, ok := d.m[logical]
	if !ok {
		return d.invalid
	}
	return real
}

// Release unbinds a logical identity.
func (d *Direct[R]) Release(logical uint64) error {
	if _, ok := d.m[logical]; !ok {
		return fmt.Errorf("ident: release of unbound identity %#x", logical)
	}
	delete(d.m, logical)
	return nil
}

// Live reports whether logical is currently bound.
func (d *Direct[R]) Live(logical uint64) bool {
	_, ok := d.m[logical]
	return ok
}

// Count returns the number of live bindings.
func (d *Direct[R]) Count() int { return len(d.m) }
