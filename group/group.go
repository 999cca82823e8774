// Package group provides fan-in task groups and hierarchical spawning on
// top of package task. A Group accumulates a batch of tasks the way
// microbatch.Batcher accumulates a pending batch of jobs before flushing —
// generalized here from "one processor call" to "one fan-in continuation".
package group

import (
	"context"
	"sync"

	"github.com/jesta88/warcry/arena"
	"github.com/jesta88/warcry/task"
)

// DefaultArenaSize is the size of the per-Group scratch arena created by
// New, matching the 64 KiB region size named in the data model.
const DefaultArenaSize = 64 * 1024

// Group tracks a set of tasks submitted together and released as a unit:
// once every member task has completed, an optional continuation task is
// released.
type Group struct {
	remaining            int32
	remainingMu          sync.Mutex
	total                int32
	continuation         task.Handle
	continuationReleased bool
	arena                *arena.Arena
	pending              []task.Handle
	autoDestroy          bool
}

// Option configures a Group at construction time.
type Option func(*Group)

// WithAutoDestroy opts into releasing the Group's arena back to the
// caller as soon as Wait observes remaining == 0. This is unsafe if Wait
// is called concurrently with Add/Submit from another goroutine — the
// default is false specifically to avoid that use-after-free risk.
func WithAutoDestroy(enabled bool) Option {
	return func(g *Group) { g.autoDestroy = enabled }
}

// New creates an empty Group with a fresh scratch arena sized for roughly
// estimated tasks worth of allocation (only used to round the arena's
// initial capacity up; it does not bound how many tasks may be added).
func New(estimated int, opts ...Option) *Group {
	size := DefaultArenaSize
	if estimated > 0 {
		if grown := estimated * 256; grown > size {
			size = grown
		}
	}
	g := &Group{arena: arena.New(size)}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Add registers an already-scheduled task as a member of this group,
// accumulating it into the pending batch the same way a microbatch
// Batcher holds jobs before a flush. A completion hook is attached to h
// via task.NotifyOnComplete so the group's remaining count (and any
// registered continuation) tracks real task completion rather than being
// force-settled at Wait time.
func (g *Group) Add(h task.Handle) {
	g.remainingMu.Lock()
	g.remaining++
	g.total++
	g.pending = append(g.pending, h)
	g.remainingMu.Unlock()

	task.NotifyOnComplete(h, g.onMemberDone)
}

// onMemberDone is the completion hook attached to every member task. It
// decrements remaining and, the instant it reaches zero, releases the
// registered continuation (if any) exactly once — this is the task->Group
// back-reference described in the data model, expressed as a closure
// rather than a stored pointer so that task need not import group.
func (g *Group) onMemberDone() {
	g.remainingMu.Lock()
	g.remaining--
	remaining := g.remaining
	continuation := g.continuation
	released := g.continuationReleased
	if remaining <= 0 && !continuation.IsZero() {
		g.continuationReleased = true
	}

	// Released while still holding remainingMu, so Wait (which reads
	// remaining under the same lock) cannot return before this call.
	if remaining <= 0 && !continuation.IsZero() && !released {
		task.Release(continuation)
	}
	g.remainingMu.Unlock()
}

// SetContinuation registers a task to be released exactly once every
// member of this group has completed. h must be scheduled with a
// construction hold still in place (task.Hold, not task.Schedule) before
// being passed here, since onMemberDone releases it via task.Release once
// remaining reaches zero; releasing an already-runnable task is a no-op,
// so SetContinuation must be called before the group's members finish.
func (g *Group) SetContinuation(h task.Handle) {
	g.remainingMu.Lock()
	g.continuation = h
	g.continuationReleased = false
	g.remainingMu.Unlock()
}

// Submit flushes the pending batch: nothing further is required of
// already-Schedule'd tasks, since Schedule submits automatically once its
// own dependency count reaches zero. Submit exists to mirror the
// accumulate-then-flush shape callers expect from a batch API, and is the
// hook a future bulk-submission optimization (submit-many-under-one-lock)
// would hang off.
func (g *Group) Submit() {
	g.remainingMu.Lock()
	g.pending = g.pending[:0]
	g.remainingMu.Unlock()
}

// Wait blocks until every task added to this group has completed, running
// other pending work in the meantime via task.WaitUntil's run-one-then-
// yield loop rather than spinning idle. It blocks on the group's real
// remaining counter, which onMemberDone drives to zero as members finish
// (rather than sequentially waiting per member and force-settling the
// count), so a registered continuation (SetContinuation) is guaranteed to
// have already been released by the time Wait returns.
func (g *Group) Wait() {
	task.WaitUntil(func() bool {
		g.remainingMu.Lock()
		defer g.remainingMu.Unlock()
		return g.remaining <= 0
	})

	g.remainingMu.Lock()
	destroy := g.autoDestroy
	g.remainingMu.Unlock()

	if destroy {
		g.arena.Reset()
	}
}

// Arena returns the group's scratch arena, inherited by SpawnChild'd
// tasks.
func (g *Group) Arena() *arena.Arena { return g.arena }

// SpawnChild creates a new task that runs immediately (it has no "after"
// dependency of its own) but defers its parent's completion: parent will
// not transition to StateCompleted, nor release its own DAG dependents,
// until every task spawned this way against it has also completed — a
// fork-join, as distinct from Schedule's predecessor/dependent DAG edges.
// The child inherits the parent's arena for scratch allocation.
func SpawnChild(parent task.Handle, fn func(context.Context), data any) (task.Handle, error) {
	pk := task.Lookup(parent)
	if pk == nil {
		return task.Handle{}, task.ErrNoDispatcher
	}

	task.Fork(parent)
	// Held until the join and arena are bound, so the child cannot run (and
	// complete) before its parent is linked to it.
	h, err := task.Hold("", fn, data)
	if err != nil {
		task.CancelFork(parent) // nothing was actually spawned
		return task.Handle{}, err
	}
	task.BindJoin(h, parent)
	if tk := task.Lookup(h); tk != nil {
		tk.Arena = pk.Arena
	}
	task.Release(h)
	return h, nil
}

// Destroy releases the group's arena immediately. Callers must ensure no
// concurrent Add/Wait is in flight; this is the manual counterpart to
// WithAutoDestroy(true).
func (g *Group) Destroy() {
	g.arena.Reset()
}
