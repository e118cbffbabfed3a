package symbols

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

//go:noinline
func collectFrom(c *Cache) ([]uint64, []Sym) {
	return c.Collect(0)
}

func TestCollectResolvesCallers(t *testing.T) {
	c := NewCache(16)
	addrs, fresh := collectFrom(c)
	require.NotEmpty(t, addrs)
	require.NotEmpty(t, fresh)

	// The first frame above Collect is collectFrom's caller, this test.
	found := false
	for _, s := range fresh {
		if strings.Contains(s.Name, "TestCollectResolvesCallers") {
			found = true
			assert.Contains(t, s.Name, "cache_test.go")
		}
	}
	assert.True(t, found)
}

func TestSymbolsHandedOutOnce(t *testing.T) {
	c := NewCache(16)
	addrs1, fresh1 := collectFrom(c)
	require.NotEmpty(t, fresh1)

	// The same call site again: addresses repeat, symbols do not.
	addrs2, fresh2 := collectFrom(c)
	assert.Equal(t, addrs1[0], addrs2[0])
	for _, s := range fresh2 {
		assert.NotEqual(t, addrs1[0], s.Addr)
	}
}

func TestFreshCoversEveryAddressOnce(t *testing.T) {
	c := NewCache(16)
	addrs, fresh := collectFrom(c)

	seen := make(map[uint64]string, len(fresh))
	for _, s := range fresh {
		require.NotContains(t, seen, s.Addr)
		seen[s.Addr] = s.Name
	}
	for _, a := range addrs {
		assert.Contains(t, seen, a)
	}
}

func TestDepthCap(t *testing.T) {
	c := NewCache(2)
	addrs, _ := collectFrom(c)
	assert.LessOrEqual(t, len(addrs), 2)

	// Non-positive depth falls back to the default.
	assert.NotPanics(t, func() {
		d := NewCache(0)
		got, _ := collectFrom(d)
		assert.NotEmpty(t, got)
	})
}

func TestLookupCachesResolution(t *testing.T) {
	c := NewCache(16)
	addrs, _ := collectFrom(c)
	require.NotEmpty(t, addrs)

	before := c.Size()
	name := c.Lookup(addrs[0])
	assert.NotEmpty(t, name)
	assert.Equal(t, before, c.Size())
	assert.Equal(t, name, c.Lookup(addrs[0]))
}

func TestUnknownAddressStillNames(t *testing.T) {
	c := NewCache(16)
	name := c.Lookup(0xdeadbeef0)
	assert.Contains(t, name, "??")
}
