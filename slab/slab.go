// Package slab is a fixed-layout object pool: objects are carved out of
// fixed-size blocks and recycled through an index-linked free list rather
// than returned to the general allocator. It is the Go-safe analogue of an
// intrusive free list, since a generic T cannot safely hold a raw "next"
// pointer in its own storage without unsafe.
package slab

import "errors"

// ErrPoolExhausted is returned by Alloc when MaxBlocks is set and every
// block is full.
var ErrPoolExhausted = errors.New("slab: pool exhausted")

const noFree int32 = -1

// Handle identifies a slot within a Pool. The zero Handle is never valid
// (block index 0 is reserved as "no handle").
type Handle struct {
	block int32
	slot  int32
}

// IsZero reports whether h is the zero Handle.
func (h Handle) IsZero() bool { return h.block == 0 && h.slot == 0 }

type block[T any] struct {
	objects []T
	next    []int32 // next[i] = index of the next free slot after i, or noFree
	free    int32   // head of this block's local free list, or noFree
	inUse   int32
}

// Pool allocates fixed-size objects of type T from growable blocks. It is
// not safe for concurrent use without external synchronization; callers
// typically hold one Pool per worker.
type Pool[T any] struct { //nolint:govet // betteralign:ignore
	objectsPerBlock int32
	maxBlocks       int32 // 0 = unbounded
	blocks          []*block[T]
	active          int32 // index into blocks of the block last allocated from
	globalFree      []Handle
	dbg             debugInfo
}

// Option configures a Pool at construction time.
type Option func(*poolConfig)

type poolConfig struct {
	maxBlocks int32
}

// WithMaxBlocks caps the number of blocks a Pool may create. Alloc returns
// ErrPoolExhausted once every existing block is full and the cap is hit.
func WithMaxBlocks(n int) Option {
	return func(c *poolConfig) { c.maxBlocks = int32(n) }
}

// NewPool creates a Pool whose blocks each hold objectsPerBlock objects.
func NewPool[T any](objectsPerBlock int, opts ...Option) *Pool[T] {
	if objectsPerBlock < 1 {
		objectsPerBlock = 1
	}
	var cfg poolConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	p := &Pool[T]{
		objectsPerBlock: int32(objectsPerBlock),
		maxBlocks:       cfg.maxBlocks,
		active:          -1,
	}
	// Block index 0 is reserved so the zero Handle can mean "invalid"; seed
	// a placeholder at index 0 that is never allocated from.
	p.blocks = append(p.blocks, nil)
	return p
}

func newBlock[T any](n int32) *block[T] {
	b := &block[T]{
		objects: make([]T, n),
		next:    make([]int32, n),
	}
	for i := int32(0); i < n; i++ {
		if i == n-1 {
			b.next[i] = noFree
		} else {
			b.next[i] = i + 1
		}
	}
	b.free = 0
	return b
}

// Alloc returns a Handle for a freshly claimed object and a pointer to its
// storage. The pointer is valid until the Handle is freed and reused, or
// until Clear is called.
func (p *Pool[T]) Alloc() (Handle, *T, error) {
	if len(p.globalFree) > 0 {
		h := p.globalFree[len(p.globalFree)-1]
		p.globalFree = p.globalFree[:len(p.globalFree)-1]
		p.blocks[h.block].inUse++
		p.debugMarkAlloc(h)
		return h, &p.blocks[h.block].objects[h.slot], nil
	}

	if p.active >= 0 {
		if b := p.blocks[p.active]; b.free != noFree {
			h := p.allocFrom(p.active, b)
			p.debugMarkAlloc(h)
			return h, &p.blocks[p.active].objects[h.slot], nil
		}
	}

	// Scan existing blocks for spare room before growing.
	for i := int32(1); i < int32(len(p.blocks)); i++ {
		b := p.blocks[i]
		if b.free != noFree {
			p.active = i
			h := p.allocFrom(i, b)
			p.debugMarkAlloc(h)
			return h, &p.blocks[i].objects[h.slot], nil
		}
	}

	if p.maxBlocks > 0 && int32(len(p.blocks)-1) >= p.maxBlocks {
		var zero Handle
		return zero, nil, ErrPoolExhausted
	}

	nb := newBlock[T](p.objectsPerBlock)
	p.blocks = append(p.blocks, nb)
	idx := int32(len(p.blocks) - 1)
	p.active = idx
	h := p.allocFrom(idx, nb)
	p.debugMarkAlloc(h)
	return h, &p.blocks[idx].objects[h.slot], nil
}

func (p *Pool[T]) allocFrom(blockIdx int32, b *block[T]) Handle {
	slot := b.free
	b.free = b.next[slot]
	b.inUse++
	return Handle{block: blockIdx, slot: slot}
}

// Free returns h's object to the pool for reuse. Freeing the zero Handle is
// a no-op. Freeing an already freed Handle is a caller error; in non-debug
// builds it is not detected.
func (p *Pool[T]) Free(h Handle) {
	if h.IsZero() {
		return
	}
	p.debugMarkFree(h)
	var zero T
	p.blocks[h.block].objects[h.slot] = zero
	p.blocks[h.block].inUse--
	p.globalFree = append(p.globalFree, h)
}

// Get returns the object addressed by h.
func (p *Pool[T]) Get(h Handle) *T {
	return &p.blocks[h.block].objects[h.slot]
}

// Len returns the number of objects currently allocated (not free).
func (p *Pool[T]) Len() int {
	var n int32
	for _, b := range p.blocks[1:] {
		n += b.inUse
	}
	return int(n)
}

// Cap returns the total number of object slots across all blocks.
func (p *Pool[T]) Cap() int {
	return int(int32(len(p.blocks)-1) * p.objectsPerBlock)
}

// Clear rebuilds every block's free list from scratch and drops the global
// free list, releasing all objects back to the pool at once.
func (p *Pool[T]) Clear() {
	p.globalFree = p.globalFree[:0]
	for i := 1; i < len(p.blocks); i++ {
		b := p.blocks[i]
		var zero T
		for j := range b.objects {
			b.objects[j] = zero
			if j == len(b.objects)-1 {
				b.next[j] = noFree
			} else {
				b.next[j] = int32(j + 1)
			}
		}
		b.free = 0
		b.inUse = 0
	}
	if len(p.blocks) > 1 {
		p.active = 1
	} else {
		p.active = -1
	}
	p.dbg = debugInfo{}
}
