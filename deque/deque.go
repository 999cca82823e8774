// Package deque implements a Chase-Lev work-stealing deque: the owning
// worker pushes and pops from the bottom (LIFO, cheap, uncontended), and
// other workers steal from the top (FIFO, contended only against each
// other and the owner's last element).
package deque

import (
	"errors"

	"github.com/jesta88/warcry/atomicx"
)

// MinCapacity is the smallest ring buffer size a Deque will allocate.
const MinCapacity = 64

// MaxCapacity bounds Grow: a deque that needs to hold more than this many
// outstanding tasks indicates a producer/consumer imbalance the caller
// should address, not paper over with unbounded growth.
const MaxCapacity = 1 << 20

// StealResult classifies the outcome of StealTop. Go's "error" idiom is
// deliberately not used here: an aborted steal (lost a CAS race against
// another thief or the owner) is routine and should prompt the caller to
// pick another victim, not be handled as a failure.
type StealResult int

const (
	StealOK StealResult = iota
	StealEmpty
	StealAborted
)

func (r StealResult) String() string {
	switch r {
	case StealOK:
		return "ok"
	case StealEmpty:
		return "empty"
	case StealAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

type ringBuffer[T any] struct {
	mask uint64
	buf  []T
}

func newRing[T any](capacity uint64) *ringBuffer[T] {
	return &ringBuffer[T]{mask: capacity - 1, buf: make([]T, capacity)}
}

func (r *ringBuffer[T]) capacity() uint64 { return r.mask + 1 }
func (r *ringBuffer[T]) get(i uint64) T    { return r.buf[i&r.mask] }
func (r *ringBuffer[T]) set(i uint64, v T) { r.buf[i&r.mask] = v }

// Deque is a single-producer/multi-consumer work-stealing double-ended
// queue. The owner (the worker this deque belongs to) calls PushBottom,
// PopBottom and Grow; any worker, including the owner, may call StealTop
// from another worker's deque. Deque must not be copied after first use.
type Deque[T any] struct { //nolint:govet // betteralign:ignore
	top    atomicx.Padded64
	bottom atomicx.Padded64
	buf    atomicx.PaddedPointer[ringBuffer[T]]

	// retired holds buffers replaced by Grow that may still be visible to
	// an in-flight StealTop on another goroutine. Each is kept alive for
	// two PopBottom/StealTop quiescent points after retirement before its
	// reference is dropped, standing in for the epoch-based reclamation
	// the source's deque.c left as a TODO ("acceptable for demonstration
	// purposes... leak it").
	retired []retiredBuf[T]

	totalPushes          atomicx.Padded64
	totalPops            atomicx.Padded64
	totalStealsAttempted atomicx.Padded64
	totalStealsSucceeded atomicx.Padded64
}

// New creates a Deque with at least initialCapacity slots, rounded up to
// the next power of two and to MinCapacity.
func New[T any](initialCapacity int) *Deque[T] {
	cap64 := nextPowerOfTwo(uint64(initialCapacity))
	if cap64 < MinCapacity {
		cap64 = MinCapacity
	}
	d := &Deque[T]{}
	d.buf.Store(newRing[T](cap64))
	return d
}

func nextPowerOfTwo(n uint64) uint64 {
	if n <= 1 {
		return 1
	}
	n--
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	n |= n >> 32
	return n + 1
}

// ErrDequeFull is returned by PushBottom when the push has filled the ring
// to capacity. The push itself still succeeds — x is stored either way,
// matching the owner-only growth contract where resizing is never
// implicit — the error is the owner's cue to call Grow before the next
// push.
var ErrDequeFull = errors.New("deque: full, caller must Grow")

// PushBottom stores x at the current bottom slot and publishes it with a
// release fence. It returns ErrDequeFull once that push has filled the
// ring, in which case the owner must call Grow before pushing again.
func (d *Deque[T]) PushBottom(x T) error {
	bottom := uint64(d.bottom.Load())
	buf := d.buf.Load()

	buf.set(bottom, x)
	atomicx.Fence()
	d.bottom.Store(int64(bottom + 1))
	d.totalPushes.Increment()

	top := uint64(d.top.Load())
	if bottom+1-top >= buf.capacity() {
		return ErrDequeFull
	}
	return nil
}

// PopBottom removes and returns the most recently pushed element (LIFO).
// It is only safe to call from the owning worker.
func (d *Deque[T]) PopBottom() (T, bool) {
	buf := d.buf.Load()
	bottom := d.bottom.Load() - 1
	d.bottom.Store(bottom)

	atomicx.Fence()

	top := d.top.Load()

	var zero T
	if top > bottom {
		// Queue was already empty; restore bottom to the empty invariant
		// (bottom == top).
		d.bottom.Store(bottom + 1)
		return zero, false
	}

	task := buf.get(uint64(bottom))
	if top == bottom {
		// Last element: race against a concurrent StealTop.
		if !d.top.CompareAndSwap(top, top+1) {
			task = zero
			d.bottom.Store(bottom + 1)
			return zero, false
		}
		d.bottom.Store(bottom + 1)
	}

	d.totalPops.Increment()
	d.reclaimStep()
	return task, true
}

// StealTop removes the oldest element (FIFO) from another worker's deque.
// Any worker may call this on any deque other than (or including) its own.
func (d *Deque[T]) StealTop() (T, StealResult) {
	top := d.top.Load()
	atomicx.Fence()
	bottom := d.bottom.Load()

	d.totalStealsAttempted.Increment()

	var zero T
	if top >= bottom {
		return zero, StealEmpty
	}

	buf := d.buf.Load()
	task := buf.get(uint64(top))

	if !d.top.CompareAndSwap(top, top+1) {
		return zero, StealAborted
	}

	d.totalStealsSucceeded.Increment()
	d.reclaimStep()
	return task, StealOK
}

// retiredBuf is a buffer awaiting reclamation, with the number of
// remaining quiescent points before it is safe to drop.
type retiredBuf[T any] struct {
	buf       *ringBuffer[T]
	remaining int
}

// reclaimStep advances every pending retirement by one quiescent point (a
// completed PopBottom or StealTop) and drops any whose countdown has
// elapsed. Two quiescent points after a Grow are assumed enough for any
// steal in flight against the old buffer to have already read or
// abandoned it — this deque has only one owner, and readers only ever
// hold a buffer pointer across a single StealTop call, never longer.
func (d *Deque[T]) reclaimStep() {
	if len(d.retired) == 0 {
		return
	}
	live := d.retired[:0]
	for _, r := range d.retired {
		r.remaining--
		if r.remaining > 0 {
			live = append(live, r)
		}
	}
	d.retired = live
}

// Grow doubles the ring's capacity, up to MaxCapacity, copying the
// currently live range [top, bottom) into the new buffer and publishing it
// with a release store. Only the owner may call Grow. The old buffer is
// retained briefly (see reclaimStep) rather than dropped immediately.
func (d *Deque[T]) Grow() bool {
	old := d.buf.Load()
	newCap := old.capacity() * 2
	if newCap > MaxCapacity {
		return false
	}

	nr := newRing[T](newCap)
	top := uint64(d.top.Load())
	bottom := uint64(d.bottom.Load())
	for i := top; i < bottom; i++ {
		nr.set(i, old.get(i))
	}

	d.buf.Store(nr)
	d.retired = append(d.retired, retiredBuf[T]{buf: old, remaining: 2})
	return true
}

// Len reports the number of elements currently in the deque. It is racy
// with concurrent pushes/pops/steals and intended for statistics only.
func (d *Deque[T]) Len() int {
	bottom := uint64(d.bottom.Load())
	top := uint64(d.top.Load())
	if bottom >= top {
		return int(bottom - top)
	}
	return 0
}

// IsEmpty is shorthand for Len() == 0.
func (d *Deque[T]) IsEmpty() bool { return d.Len() == 0 }

// Stats is a point-in-time snapshot of a Deque's lifetime counters.
type Stats struct {
	TotalPushes          int64
	TotalPops            int64
	TotalStealsAttempted int64
	TotalStealsSucceeded int64
	StealSuccessRate     float64
	CurrentCapacity      int
	CurrentSize          int
}

// Stats returns a snapshot of this deque's counters.
func (d *Deque[T]) Stats() Stats {
	attempted := d.totalStealsAttempted.Load()
	succeeded := d.totalStealsSucceeded.Load()
	var rate float64
	if attempted > 0 {
		rate = float64(succeeded) / float64(attempted)
	}
	return Stats{
		TotalPushes:          d.totalPushes.Load(),
		TotalPops:            d.totalPops.Load(),
		TotalStealsAttempted: attempted,
		TotalStealsSucceeded: succeeded,
		StealSuccessRate:     rate,
		CurrentCapacity:      int(d.buf.Load().capacity()),
		CurrentSize:          d.Len(),
	}
}

// ResetStats zeroes every counter. Capacity/size are unaffected.
func (d *Deque[T]) ResetStats() {
	d.totalPushes.Store(0)
	d.totalPops.Store(0)
	d.totalStealsAttempted.Store(0)
	d.totalStealsSucceeded.Store(0)
}

