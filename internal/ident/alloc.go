// Package ident maps logical object identities to real driver handles.
//
// Real handles are only meaningful within one run of one driver, so a
// trace stores logical identities instead: sources and buffers get dense
// 1-based integers from a bitmap allocator, devices and contexts use the
// real handle value from the capture run directly (few of them, long
// lived). At capture time a table runs logical-to-real with logical ids
// being issued; at replay time the same table is repopulated with the
// replay driver's fresh handles under the recorded logical ids.
package ident

import (
	"fmt"
	"math/bits"
)

// chunkSize is how many ids the allocator bitmap grows by at a time.
const chunkSize = 32

// Allocator issues dense 1-based ids from a bitmap free list. Released
// ids are reissued lowest-first, so a fully drained allocator hands out
// 1 again.
type Allocator struct {
	words []uint32
	live  int
}

// Acquire returns the lowest free id, growing the bitmap by one chunk
// when every existing id is live.
func (a *Allocator) Acquire() uint32 {
	for i, w := range a.words {
		if w != ^uint32(0) {
			bit := bits.TrailingZeros32(^w)
			a.words[i] |= 1 << bit
			a.live++
			return uint32(i*chunkSize+bit) + 1
		}
	}
	a.words = append(a.words, 1)
	a.live++
	return uint32((len(a.words)-1)*chunkSize) + 1
}

// Reserve marks a specific id live, growing the bitmap as needed.
// Used on replay to pin decoded ids. Fails if the id is already live.
func (a *Allocator) Reserve(id uint32) error {
	if id == 0 {
		return fmt.Errorf("ident: reserve id 0")
	}
	word, bit := int(id-1)/chunkSize, int(id-1)%chunkSize
	for len(a.words) <= word {
		a.words = append(a.words, 0)
	}
	if a.words[word]&(1<<bit) != 0 {
		return fmt.Errorf("ident: id %d already live", id)
	}
	a.words[word] |= 1 << bit
	a.live++
	return nil
}

// Release frees a live id. Fails if the id was never acquired or is
// already free.
func (a *Allocator) Release(id uint32) error {
	word, bit := int(id-1)/chunkSize, int(id-1)%chunkSize
	if id == 0 || word >= len(a.words) || a.words[word]&(1<<bit) == 0 {
		return fmt.Errorf("ident: release of dead id %d", id)
	}
	a.words[word] &^= 1 << bit
	a.live--
	return nil
}

// Live reports whether id is currently allocated.
func (a *Allocator) Live(id uint32) bool {
	if id == 0 {
		return false
	}
	word, bit := int(id-1)/chunkSize, int(id-1)%chunkSize
	return word < len(a.words) && a.words[word]&(1<<bit) != 0
}

// Count returns the number of live ids.
func (a *Allocator) Count() int { return a.live }
