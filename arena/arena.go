// Package arena provides a monotonic region allocator for per-frame and
// per-group transient memory. Allocations are bump-pointer within a region;
// the whole arena is released at once via Reset, or down to a saved cursor
// via Mark/Restore.
//
// There is no mimalloc-class general allocator available in this module's
// dependency set, so regions are ordinary Go byte slices managed by the
// runtime GC rather than a custom heap — see DESIGN.md for why that
// tradeoff was made here instead of wiring a third-party allocator.
package arena

import (
	"errors"
	"os"
	"unsafe"
)

// DefaultRegionSize is the region size used when a requested allocation
// does not fit any existing region and no larger size was requested.
const DefaultRegionSize = 64 * 1024

// ErrOutOfMemory is returned when the arena is configured with a hard cap
// (see WithMaxBytes) and a new region would exceed it.
var ErrOutOfMemory = errors.New("arena: out of memory")

type region struct {
	data     []byte
	used     int
	next     *region
	lastSize int // size of the most recent allocation, for in-place Realloc
}

// Arena is a linked list of regions with bump-pointer allocation.
// It is not safe for concurrent use; callers hold one Arena per owner
// (worker, task group, or frame) and never share it across goroutines
// without external synchronization.
type Arena struct { //nolint:govet // betteralign:ignore
	head    *region
	last    *region // cached cursor: the region alloc attempts first
	maxByte int     // 0 = unbounded
	total   int     // total bytes reserved across all regions
}

// Option configures an Arena at construction time.
type Option func(*Arena)

// WithMaxBytes caps the total number of bytes the arena may reserve across
// all of its regions. Exceeding it returns ErrOutOfMemory from Alloc.
func WithMaxBytes(n int) Option {
	return func(a *Arena) { a.maxByte = n }
}

// New reserves a first region sized to at least one OS page and returns an
// initialized Arena. capacity is rounded up to the page size, matching the
// original allocator's page-aligned initial region.
func New(capacity int, opts ...Option) *Arena {
	page := os.Getpagesize()
	if capacity < page {
		capacity = page
	}
	capacity = alignUp(capacity, page)

	a := &Arena{}
	for _, opt := range opts {
		opt(a)
	}

	r := &region{data: make([]byte, capacity)}
	a.head = r
	a.last = r
	a.total = capacity
	return a
}

func alignUp(v, n int) int {
	return (v + n - 1) &^ (n - 1)
}

// Alloc returns a size-byte slice carved out of the arena. The returned
// slice is only valid until the next Reset/Restore that reclaims its
// region.
func (a *Arena) Alloc(size int) ([]byte, error) {
	return a.AllocAligned(size, 1)
}

// AllocAligned is like Alloc but additionally aligns the returned slice's
// start offset within its region to align bytes (a power of two).
func (a *Arena) AllocAligned(size int, align int) ([]byte, error) {
	if size < 0 {
		size = 0
	}
	if align < 1 {
		align = 1
	}

	// Walk starting from the cached "last" region first.
	for r := a.last; r != nil; r = r.next {
		if b, ok := r.bumpAlloc(size, align); ok {
			a.last = r
			return b, nil
		}
	}
	// Fall back to scanning from the head in case "last" skipped ahead of
	// a region with room (can happen after Restore moved the cursor back).
	for r := a.head; r != nil && r != a.last; r = r.next {
		if b, ok := r.bumpAlloc(size, align); ok {
			a.last = r
			return b, nil
		}
	}

	regionSize := size
	if regionSize < DefaultRegionSize {
		regionSize = DefaultRegionSize
	}
	regionSize = alignUp(regionSize+align, 1)

	if a.maxByte > 0 && a.total+regionSize > a.maxByte {
		return nil, ErrOutOfMemory
	}

	nr := &region{data: make([]byte, regionSize)}
	a.total += regionSize
	// Link at tail.
	tail := a.head
	for tail.next != nil {
		tail = tail.next
	}
	tail.next = nr

	b, ok := nr.bumpAlloc(size, align)
	if !ok {
		// size alone exceeds the freshly sized region; this only happens
		// if align padding consumed more than regionSize allowed for.
		return nil, ErrOutOfMemory
	}
	a.last = nr
	return b, nil
}

func (r *region) bumpAlloc(size, align int) ([]byte, bool) {
	start := alignUp(r.used, align)
	end := start + size
	if end > len(r.data) {
		return nil, false
	}
	r.used = end
	r.lastSize = size
	return r.data[start:end:end], true
}

// Reset drops every region but the head and zeroes the head's usage. Only
// the head region's backing memory is retained for reuse across the next
// frame/group; any region beyond it is allocated afresh when needed again.
func (a *Arena) Reset() {
	a.head.next = nil
	a.head.used = 0
	a.head.lastSize = 0
	a.last = a.head
	a.total = len(a.head.data)
}

// Mark is an opaque cursor captured by Mark and consumed by Restore.
type Mark struct {
	region *region
	used   int
}

// Mark captures the current allocation cursor so a nested scope's
// allocations can later be released with Restore.
func (a *Arena) Mark() Mark {
	return Mark{region: a.last, used: a.last.used}
}

// Restore frees every region allocated after m was captured, and rewinds
// m's region back to its captured offset. Bytes returned by Alloc calls
// made after m is invalid to use following Restore.
func (a *Arena) Restore(m Mark) {
	m.region.next = nil
	m.region.used = m.used
	a.last = m.region
	total := 0
	for r := a.head; r != nil; r = r.next {
		total += len(r.data)
	}
	a.total = total
}

// Strdup copies s into arena-owned memory and returns a string backed by
// it, avoiding a heap allocation outside the arena's lifetime.
func (a *Arena) Strdup(s string) (string, error) {
	b, err := a.Alloc(len(s))
	if err != nil {
		return "", err
	}
	copy(b, s)
	return unsafeString(b), nil
}

// Calloc allocates n*size zeroed bytes. Go slices from make are already
// zeroed, so this is Alloc plus a size-overflow guard.
func (a *Arena) Calloc(n, size int) ([]byte, error) {
	if n < 0 || size < 0 {
		return nil, ErrOutOfMemory
	}
	total := n * size
	if size != 0 && total/size != n {
		return nil, ErrOutOfMemory
	}
	return a.Alloc(total)
}

// Realloc grows b to newSize. If b is the arena's most recent allocation in
// its region and there is room to extend in place, it does so without a
// copy; otherwise it allocates a fresh block and copies the overlap.
func (a *Arena) Realloc(b []byte, newSize int) ([]byte, error) {
	if newSize <= len(b) {
		return b[:newSize], nil
	}
	if r := a.last; r != nil && len(b) > 0 && r.lastSize == len(b) && r.used >= len(b) &&
		&r.data[r.used-len(b)] == &b[0] {
		// b is the tail allocation of the current region: extend in place.
		start := r.used - len(b)
		if start+newSize <= len(r.data) {
			r.used = start + newSize
			r.lastSize = newSize
			return r.data[start : start+newSize : start+newSize], nil
		}
	}
	nb, err := a.Alloc(newSize)
	if err != nil {
		return nil, err
	}
	copy(nb, b)
	return nb, nil
}

// unsafeString borrows b's backing array as a string without copying. The
// caller must not mutate b afterward; arena allocations are never reused
// for writes once handed out as a string.
func unsafeString(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	return unsafe.String(&b[0], len(b))
}
