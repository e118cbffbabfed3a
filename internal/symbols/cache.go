// Package symbols captures call stacks and resolves frame addresses to
// names exactly once per address. Resolution results live for the whole
// process; the trace carries each symbol a single time, the first time
// its address shows up in any stack.
package symbols

import (
	"fmt"
	"runtime"
)

// Sym pairs a frame address with its resolved name.
type Sym struct {
	Addr uint64
	Name string
}

// Cache resolves and remembers frame symbols. It is not internally
// locked: the capture lock already serializes every caller, and that is
// the only place stacks are collected.
type Cache struct {
	depth    int
	pcs      []uintptr
	resolved map[uintptr]string
	written  map[uintptr]struct{}
}

// NewCache returns a cache collecting at most depth frames per stack.
func NewCache(depth int) *Cache {
	if depth <= 0 {
		depth = 16
	}
	return &Cache{
		depth:    depth,
		pcs:      make([]uintptr, depth),
		resolved: make(map[uintptr]string),
		written:  make(map[uintptr]struct{}),
	}
}

// Collect grabs the current goroutine's stack, skipping skip frames on
// top of Collect itself. It returns the frame addresses plus the
// symbols that have not been handed out before; the caller writes those
// to the trace ahead of the record that references them.
func (c *Cache) Collect(skip int) (addrs []uint64, fresh []Sym) {
	n := runtime.Callers(skip+2, c.pcs)
	addrs = make([]uint64, n)
	for i, pc := range c.pcs[:n] {
		addrs[i] = uint64(pc)
		if _, ok := c.written[pc]; ok {
			continue
		}
		c.written[pc] = struct{}{}
		fresh = append(fresh, Sym{Addr: uint64(pc), Name: c.resolve(pc)})
	}
	return addrs, fresh
}

// Lookup returns the cached symbol for an address, resolving and
// caching it on first use.
func (c *Cache) Lookup(addr uint64) string {
	return c.resolve(uintptr(addr))
}

// Size returns the number of addresses resolved so far.
func (c *Cache) Size() int { return len(c.resolved) }

func (c *Cache) resolve(pc uintptr) string {
	if s, ok := c.resolved[pc]; ok {
		return s
	}
	var s string
	// The stored pc is the return address; -1 lands inside the call
	// instruction, which is what the line tables index by.
	if fn := runtime.FuncForPC(pc - 1); fn != nil {
		file, line := fn.FileLine(pc - 1)
		s = fmt.Sprintf("%s %s:%d", fn.Name(), file, line)
	} else {
		s = fmt.Sprintf("?? %#x", uint64(pc))
	}
	c.resolved[pc] = s
	return s
}
