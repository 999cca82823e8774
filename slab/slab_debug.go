//go:build slabdebug

package slab

import "fmt"

// debugInfo carries the double-free detection bitmap. It only exists in
// slabdebug builds; release builds pay no memory or branch cost for it.
type debugInfo struct {
	bitmaps [][]uint64 // per-block, one bit per slot: 1 = currently allocated
}

func (d *debugInfo) ensure(blockIdx int, objectsPerBlock int32) {
	for len(d.bitmaps) <= blockIdx {
		words := (objectsPerBlock + 63) / 64
		d.bitmaps = append(d.bitmaps, make([]uint64, words))
	}
}

func (d *debugInfo) markAlloc(blockIdx int, slot int32) {
	d.ensure(blockIdx, slot+1)
	word, bit := slot/64, uint(slot%64)
	mask := uint64(1) << bit
	if d.bitmaps[blockIdx][word]&mask != 0 {
		panic(fmt.Sprintf("slab: double-alloc of block %d slot %d", blockIdx, slot))
	}
	d.bitmaps[blockIdx][word] |= mask
}

func (d *debugInfo) markFree(blockIdx int, slot int32) {
	word, bit := slot/64, uint(slot%64)
	mask := uint64(1) << bit
	if blockIdx >= len(d.bitmaps) || d.bitmaps[blockIdx][word]&mask == 0 {
		panic(fmt.Sprintf("slab: double-free of block %d slot %d", blockIdx, slot))
	}
	d.bitmaps[blockIdx][word] &^= mask
}

func (p *Pool[T]) debugMarkAlloc(h Handle) {
	p.dbg.markAlloc(int(h.block), h.slot)
}

func (p *Pool[T]) debugMarkFree(h Handle) {
	p.dbg.markFree(int(h.block), h.slot)
}
