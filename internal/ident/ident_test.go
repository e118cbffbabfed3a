package ident

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type handle uint64

const invalid = handle(^uint64(0))

func TestAllocatorDenseFromOne(t *testing.T) {
	var a Allocator
	for want := uint32(1); want <= 100; want++ {
		assert.Equal(t, want, a.Acquire())
	}
	assert.Equal(t, 100, a.Count())
}

func TestAllocatorLowestFreeReuse(t *testing.T) {
	var a Allocator
	for i := 0; i < 5; i++ {
		a.Acquire()
	}
	require.NoError(t, a.Release(2))
	require.NoError(t, a.Release(4))

	assert.Equal(t, uint32(2), a.Acquire())
	assert.Equal(t, uint32(4), a.Acquire())
	assert.Equal(t, uint32(6), a.Acquire())
}

func TestAllocatorDrainedReissuesOne(t *testing.T) {
	var a Allocator
	for i := 0; i < 3; i++ {
		a.Acquire()
	}
	for id := uint32(1); id <= 3; id++ {
		require.NoError(t, a.Release(id))
	}
	assert.Equal(t, uint32(1), a.Acquire())
}

func TestAllocatorGrowsByChunk(t *testing.T) {
	var a Allocator
	// Fill one chunk exactly, then cross the boundary.
	for i := 0; i < chunkSize; i++ {
		a.Acquire()
	}
	assert.Len(t, a.words, 1)
	assert.Equal(t, uint32(chunkSize+1), a.Acquire())
	assert.Len(t, a.words, 2)
}

func TestAllocatorReserve(t *testing.T) {
	var a Allocator
	require.NoError(t, a.Reserve(40))
	assert.True(t, a.Live(40))
	assert.Error(t, a.Reserve(40))
	assert.Error(t, a.Reserve(0))

	// Reserved ids are skipped by Acquire.
	require.NoError(t, a.Reserve(1))
	assert.Equal(t, uint32(2), a.Acquire())
}

func TestAllocatorReleaseDead(t *testing.T) {
	var a Allocator
	assert.Error(t, a.Release(1))
	assert.Error(t, a.Release(0))
	a.Acquire()
	require.NoError(t, a.Release(1))
	assert.Error(t, a.Release(1))
}

func TestTableAllocateResolve(t *testing.T) {
	tb := NewTable[handle](invalid)
	v1, err := tb.Allocate(0x100)
	require.NoError(t, err)
	v2, err := tb.Allocate(0x200)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), v1)
	assert.Equal(t, uint32(2), v2)

	assert.Equal(t, handle(0x100), tb.Resolve(v1))
	assert.Equal(t, handle(0x200), tb.Resolve(v2))

	got, ok := tb.VirtualOf(0x200)
	require.True(t, ok)
	assert.Equal(t, v2, got)
}

func TestTableMissIsInvalidSentinel(t *testing.T) {
	tb := NewTable[handle](invalid)
	assert.Equal(t, invalid, tb.Resolve(7))

	v, err := tb.Allocate(0x100)
	require.NoError(t, err)
	require.NoError(t, tb.Release(v))
	assert.Equal(t, invalid, tb.Resolve(v))
}

func TestTableNoAliasing(t *testing.T) {
	tb := NewTable[handle](invalid)
	_, err := tb.Allocate(0x100)
	require.NoError(t, err)

	// The same real handle cannot back two live ids.
	_, err = tb.Allocate(0x100)
	assert.Error(t, err)
	assert.Error(t, tb.Bind(9, 0x100))

	// Once released, the handle may come back under a new id.
	require.NoError(t, tb.Release(1))
	v, err := tb.Allocate(0x100)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), v)
}

func TestTableBindPinsRecordedIds(t *testing.T) {
	tb := NewTable[handle](invalid)
	require.NoError(t, tb.Bind(3, 0xa))
	require.NoError(t, tb.Bind(1, 0xb))

	assert.Equal(t, handle(0xa), tb.Resolve(3))
	assert.Equal(t, handle(0xb), tb.Resolve(1))
	assert.Error(t, tb.Bind(3, 0xc))

	// Interleaving with Allocate still avoids live ids.
	v, err := tb.Allocate(0xd)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), v)
}

func TestTableReleaseDeadIsError(t *testing.T) {
	tb := NewTable[handle](invalid)
	assert.Error(t, tb.Release(1))

	v, err := tb.Allocate(0x100)
	require.NoError(t, err)
	require.NoError(t, tb.Release(v))
	assert.Error(t, tb.Release(v))
	assert.Equal(t, 0, tb.Count())
}

func TestDirect(t *testing.T) {
	d := NewDirect[handle](invalid)
	require.NoError(t, d.Put(0x5a11, 0x77))
	assert.Equal(t, handle(0x77), d.Resolve(0x5a11))
	assert.Equal(t, invalid, d.Resolve(0xdead))
	assert.True(t, d.Live(0x5a11))

	assert.Error(t, d.Put(0x5a11, 0x88))

	require.NoError(t, d.Release(0x5a11))
	assert.Error(t, d.Release(0x5a11))
	assert.Equal(t, invalid, d.Resolve(0x5a11))
	assert.Equal(t, 0, d.Count())
}
