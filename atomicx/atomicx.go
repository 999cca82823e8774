// Package atomicx provides cache-line padded atomic primitives for the
// scheduler's hot paths: deque indices, task dependency counters, pool
// state machines and statistics.
//
// Go's sync/atomic already gives sequentially consistent single-word
// operations, so the acquire/release naming used throughout this package
// and its callers is documentation of intent rather than a distinct
// implementation — a future per-arch build could narrow these to weaker
// orderings via assembly, but nothing in this scheduler currently requires
// that.
package atomicx

import (
	"runtime"
	"sync/atomic"
)

// cacheLineSize is the assumed cache line width used for padding hot
// atomics against false sharing.
const cacheLineSize = 64

// Padded64 is an atomic 64-bit cell padded to occupy its own cache line.
// Embed it (not a pointer to it) in hot structures such as per-worker
// counters or deque top/bottom cursors.
type Padded64 struct { //nolint:govet // betteralign:ignore
	_ [cacheLineSize]byte
	v atomic.Int64
	_ [cacheLineSize - 8]byte
}

// Load performs a relaxed/acquire load (see package doc).
func (p *Padded64) Load() int64 { return p.v.Load() }

// Store performs a relaxed/release store (see package doc).
func (p *Padded64) Store(val int64) { p.v.Store(val) }

// CompareAndSwap reports whether the swap from old to new succeeded.
// Spurious failures are never produced by sync/atomic, but callers must
// still treat failure as "retry or move on", never as an error.
func (p *Padded64) CompareAndSwap(old, new int64) bool {
	return p.v.CompareAndSwap(old, new)
}

// Exchange stores new and returns the previous value.
func (p *Padded64) Exchange(new int64) int64 { return p.v.Swap(new) }

// Add performs a fetch-add (negative delta gives fetch-sub) and returns the
// new value.
func (p *Padded64) Add(delta int64) int64 { return p.v.Add(delta) }

// Increment is Add(1).
func (p *Padded64) Increment() int64 { return p.v.Add(1) }

// Decrement is Add(-1).
func (p *Padded64) Decrement() int64 { return p.v.Add(-1) }

// PaddedBool is a cache-line padded atomic boolean, used for flags such as
// a pool's shutdown signal that is polled from every worker's hot loop.
type PaddedBool struct { //nolint:govet // betteralign:ignore
	_ [cacheLineSize]byte
	v atomic.Bool
	_ [cacheLineSize - 1]byte
}

// Load returns the current value.
func (p *PaddedBool) Load() bool { return p.v.Load() }

// Store sets the value.
func (p *PaddedBool) Store(val bool) { p.v.Store(val) }

// CompareAndSwap attempts old -> new.
func (p *PaddedBool) CompareAndSwap(old, new bool) bool {
	return p.v.CompareAndSwap(old, new)
}

// PaddedPointer is a cache-line padded atomic pointer, used for the deque's
// swappable ring buffer.
type PaddedPointer[T any] struct { //nolint:govet // betteralign:ignore
	_ [cacheLineSize]byte
	v atomic.Pointer[T]
	_ [cacheLineSize - 8]byte
}

// Load returns the current pointer.
func (p *PaddedPointer[T]) Load() *T { return p.v.Load() }

// Store sets the pointer (release semantics: subsequent loads observe it).
func (p *PaddedPointer[T]) Store(val *T) { p.v.Store(val) }

// CompareAndSwap attempts old -> new.
func (p *PaddedPointer[T]) CompareAndSwap(old, new *T) bool {
	return p.v.CompareAndSwap(old, new)
}

// fenceCell backs Fence; its value is never inspected, only CAS'd against
// itself, which forces the runtime to emit a full memory barrier without
// Go exposing a bare fence intrinsic.
var fenceCell atomic.Int32

// Fence issues a sequentially consistent fence. The deque's pop-bottom path
// relies on this standing between the "decrement bottom" store and the
// "read top" load — removing it reintroduces the classic Chase-Lev
// underflow race where both the owner and a thief believe they won the
// last element.
func Fence() {
	fenceCell.CompareAndSwap(fenceCell.Load(), 0)
}

// Pause yields the logical CPU to other work without blocking the calling
// goroutine's place in the scheduler run queue. Go has no PAUSE/YIELD
// intrinsic reachable without assembly, so spin loops fall back to
// runtime.Gosched after a handful of busy spins — the same technique the
// event loop's shutdown drain retry uses.
func Pause(spin int) {
	if spin < 8 {
		for i := 0; i < spin; i++ {
		}
		return
	}
	runtime.Gosched()
}
