//go:build slabdebug

package slab

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDoubleFree_Panics(t *testing.T) {
	p := NewPool[widget](4)
	h, _, err := p.Alloc()
	require.NoError(t, err)

	p.Free(h)
	assert.Panics(t, func() { p.Free(h) })
}

func TestDoubleAlloc_DetectsReuseWithoutFree(t *testing.T) {
	p := NewPool[widget](4)
	h, _, err := p.Alloc()
	require.NoError(t, err)

	assert.Panics(t, func() {
		p.debugMarkAlloc(h) // simulates allocating the same slot twice
	})
}
