// SPDX-License-Identifier: GPL-3.0-or-later

package conduit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type poolElem struct {
	value int
	name  string
}

func TestPoolAcquireRelease(t *testing.T) {
	t.Run("live acquisitions are distinct", func(t *testing.T) {
		p := NewPool[poolElem](2)
		seen := map[*poolElem]bool{}
		for range 16 {
			elem, err := p.Acquire()
			require.NoError(t, err)
			require.False(t, seen[elem], "element handed out twice")
			seen[elem] = true
		}
		stats := p.Stats()
		assert.Equal(t, 16, stats.Allocated)
		assert.Equal(t, 16, stats.InUse)
		assert.Equal(t, 0, stats.Free)
	})

	t.Run("released elements are reused exactly once", func(t *testing.T) {
		p := NewPool[poolElem](0)
		a, err := p.Acquire()
		require.NoError(t, err)
		b, err := p.Acquire()
		require.NoError(t, err)

		require.True(t, p.Release(a))
		c, err := p.Acquire()
		require.NoError(t, err)
		assert.Same(t, a, c)

		d, err := p.Acquire()
		require.NoError(t, err)
		assert.NotSame(t, a, d)
		assert.NotSame(t, b, d)
		assert.Equal(t, 3, p.Stats().Allocated)
	})

	t.Run("release zeroes the element", func(t *testing.T) {
		p := NewPool[poolElem](1)
		elem, err := p.Acquire()
		require.NoError(t, err)
		elem.value, elem.name = 42, "x"
		require.True(t, p.Release(elem))
		assert.Equal(t, poolElem{}, *elem)
	})

	t.Run("release of nil, foreign or already released elements", func(t *testing.T) {
		p := NewPool[poolElem](1)
		assert.False(t, p.Release(nil))
		assert.False(t, p.Release(&poolElem{}))

		elem, err := p.Acquire()
		require.NoError(t, err)
		require.True(t, p.Release(elem))
		assert.False(t, p.Release(elem))
		assert.Equal(t, 1, p.Stats().Free)
	})

	t.Run("negative prealloc", func(t *testing.T) {
		p := NewPool[poolElem](-3)
		assert.Equal(t, PoolStats{}, p.Stats())
		_, err := p.Acquire()
		require.NoError(t, err)
	})

	t.Run("inconsistent bookkeeping", func(t *testing.T) {
		p := NewPool[poolElem](0)
		elem, err := p.Acquire()
		require.NoError(t, err)
		p.free = append(p.free, elem)

		_, err = p.Acquire()
		require.ErrorIs(t, err, ErrPoolExhausted)
	})
}

func TestPoolRoundTrip(t *testing.T) {
	// Interleave acquisitions and releases and check that the set of live
	// elements never contains duplicates.
	p := NewPool[poolElem](4)
	live := map[*poolElem]bool{}
	var order []*poolElem
	for step := range 200 {
		if step%3 == 2 && len(order) > 0 {
			elem := order[0]
			order = order[1:]
			require.True(t, p.Release(elem))
			delete(live, elem)
			continue
		}
		elem, err := p.Acquire()
		require.NoError(t, err)
		require.False(t, live[elem])
		live[elem] = true
		order = append(order, elem)
	}
	stats := p.Stats()
	assert.Equal(t, len(live), stats.InUse)
	assert.Equal(t, stats.Allocated, stats.InUse+stats.Free)
}
