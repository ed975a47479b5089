package index

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ivoronin/linkdog/internal/types"
)

func TestMaxHashesPowerOfTwo(t *testing.T) {
	assert.NotZero(t, MaxHashes)
	assert.Zero(t, MaxHashes&(MaxHashes-1), "MaxHashes-1 must have all low bits set")
}

func TestHashSizeOnly(t *testing.T) {
	assert.Equal(t, Key(12), Hash(12, 0, true))
	assert.Equal(t, Key(12), Hash(MaxHashes+12, 0, true))
	assert.Equal(t, Key(MaxHashes-1), Hash(MaxHashes-1, 0, true))
	assert.Equal(t, Key(12), Hash(12, 32, true), "mtime must be ignored")
}

func TestHashSizeTime(t *testing.T) {
	assert.Equal(t, Key(12), Hash(12, 0, false))
	assert.Equal(t, Key(44), Hash(12, 32, false))
}

func TestHashRangeAndDeterminism(t *testing.T) {
	cases := []struct {
		size, mtime int64
	}{
		{0, 0},
		{1, 1554498398},
		{1 << 40, 1554498398},
		{MaxHashes * 3, -1},
		{545, -1554498398},
	}

	for _, c := range cases {
		for _, sizeOnly := range []bool{true, false} {
			k1 := Hash(c.size, c.mtime, sizeOnly)
			k2 := Hash(c.size, c.mtime, sizeOnly)
			assert.Equal(t, k1, k2)
			assert.Less(t, uint64(k1), uint64(MaxHashes))
		}
	}
}

func TestIndexInsertKeepsOrder(t *testing.T) {
	ix := New()

	_, ok := ix.Lookup(7)
	require.False(t, ok)

	a := &types.FileInfo{Path: "/a"}
	b := &types.FileInfo{Path: "/b"}
	c := &types.FileInfo{Path: "/c"}
	ix.Insert(7, a)
	ix.Insert(7, b)
	ix.Insert(9, c)

	bucket, ok := ix.Lookup(7)
	require.True(t, ok)
	require.Len(t, bucket, 2)
	assert.Same(t, a, bucket[0])
	assert.Same(t, b, bucket[1])

	assert.Equal(t, 2, ix.Buckets())
	assert.Equal(t, 3, ix.Records())
}

func TestIndependentIndexes(t *testing.T) {
	ix1, ix2 := New(), New()
	ix1.Insert(1, &types.FileInfo{Path: "/a"})

	_, ok := ix2.Lookup(1)
	assert.False(t, ok, "indexes must not share state")
}
