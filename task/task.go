// Package task implements the handle-addressed task table: scheduling,
// dependency fan-out, waiting and cooperative yielding. It has no
// dependency on fiber or sched — those packages register a Dispatcher at
// startup so task can hand off placement decisions without importing
// back into them and creating a cycle.
package task

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jesta88/warcry/arena"
	"github.com/jesta88/warcry/slab"
)

// MaxChildren bounds how many dependents a single task may directly carry
// in its fixed child array, taken verbatim from the original's
// WC_MAX_CHILDREN.
const MaxChildren = 6

// DefaultTableSize is the number of slots reserved for the global task
// table when Init is not given an explicit size. It must be a power of
// two; slot 0 is reserved so the zero Handle is never valid.
const DefaultTableSize = 1 << 16

// Handle addresses one task table slot plus a generation counter that
// invalidates stale references once the slot is reused. The zero Handle
// is never valid.
type Handle struct {
	Index      uint32
	Generation uint32
}

// IsZero reports whether h is the zero Handle.
func (h Handle) IsZero() bool { return h.Index == 0 && h.Generation == 0 }

// State is a task's lifecycle stage. Transitions are monotonic except into
// StateCancelled.
type State int32

const (
	StatePending State = iota
	StateReady
	StateRunning
	StateCompleted
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateReady:
		return "ready"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Priority governs which global queue a task lands in when it cannot be
// placed on a worker's local deque, and which global queue a starved
// worker checks first. It does not bias peer-to-peer steal victim
// selection (see sched/numa).
type Priority int32

const (
	PriorityCritical Priority = iota
	PriorityHigh
	PriorityNormal
	PriorityLow
)

// ErrTableFull is returned by Schedule when the global task table has no
// free slot available (see Init's size parameter).
var ErrTableFull = errors.New("task: table full")

// ErrTooManyChildren is returned by Schedule when a predecessor task's
// fixed child array (MaxChildren) is already full.
var ErrTooManyChildren = errors.New("task: too many children")

// ErrNoDispatcher is returned by Schedule/Wait when no Dispatcher has been
// registered via SetDispatcher — i.e. sched.Init was never called.
var ErrNoDispatcher = errors.New("task: no dispatcher registered")

// Task is one node in the dependency DAG. Func runs with the task's
// inherited arena reachable through ctx (see fiber.ArenaFromContext).
type Task struct {
	Func     func(ctx context.Context)
	Data     any
	Name     string
	Priority Priority
	Affinity uint64 // worker bitmask; 0 = no affinity preference

	Parent  Handle
	Arena   *arena.Arena
	handle  Handle // this task's own handle, set at Schedule time

	state    atomic.Int32
	incoming atomic.Int32

	// forkCount tracks children spawned via group.SpawnChild that this
	// task must wait for beyond its own Func returning (fork-join), as
	// opposed to children linked through the DAG "after" dependency,
	// which never delay this task's own completion.
	forkCount  atomic.Int32
	selfDone   atomic.Bool
	joinParent Handle // set via BindJoin; distinct from Parent (the "after" predecessor)

	childMu    sync.Mutex
	children   [MaxChildren]Handle
	childCount int32

	// doneCbs holds callbacks registered via NotifyOnComplete (group uses
	// this for its non-owning task->Group back-reference, per
	// SPEC_FULL.md's ownership model), run exactly once when tryFinish
	// transitions this task to a terminal state.
	doneMu  sync.Mutex
	doneCbs []func()

	Created         time.Time
	Started         time.Time
	Completed       time.Time
	ExecutingWorker int32
}

// State returns the task's current lifecycle stage.
func (t *Task) State() State { return State(t.state.Load()) }

// Handle returns this task's own handle.
func (t *Task) Handle() Handle { return t.handle }

// Begin marks tk as running on the given worker, recording its start time.
// It is called by fiber's job trampoline immediately before invoking Func.
func (t *Task) Begin(workerID int32) {
	t.state.Store(int32(StateRunning))
	t.Started = time.Now()
	t.ExecutingWorker = workerID
}

// Dispatcher is implemented by sched and registered via SetDispatcher. It
// lets task hand off "where does a ready task go" and "how does a waiting
// caller make progress" without importing fiber or sched.
type Dispatcher interface {
	// SubmitLocal attempts to place t on the calling goroutine's own
	// worker deque. It returns false if the calling goroutine is not a
	// worker (SubmitGlobal should be used instead).
	SubmitLocal(t *Task) bool
	// SubmitGlobal places t on the appropriate priority-ordered global
	// queue and wakes one sleeping worker.
	SubmitGlobal(t *Task)
	// RunOneOrYield executes one pending task reachable from the calling
	// worker (local pop or steal) if one exists, otherwise cooperatively
	// yields the calling fiber. It returns true if a task was run.
	RunOneOrYield() bool
}

var dispatcher atomic.Pointer[Dispatcher]

// SetDispatcher registers the active Dispatcher. Passing nil clears it.
func SetDispatcher(d Dispatcher) {
	if d == nil {
		dispatcher.Store(nil)
		return
	}
	dispatcher.Store(&d)
}

func currentDispatcher() Dispatcher {
	if p := dispatcher.Load(); p != nil {
		return *p
	}
	return nil
}

type table struct {
	slots []tableSlot
	mask  uint32
	next  atomic.Uint32

	// pool backs every slot's Task storage with slab.Pool[Task] instead of
	// individual heap allocations, per spec.md §3's "after completion, the
	// Task is freed back to the slab pool" ownership rule. One block sized
	// to the whole table is enough: alloc always frees a slot's previous
	// occupant before claiming a fresh one for the same slot (see alloc),
	// so steady-state usage never exceeds the table's slot count.
	pool   *slab.Pool[Task]
	poolMu sync.Mutex
}

type tableSlot struct {
	gen        atomic.Uint32
	task       atomic.Pointer[Task]
	slabHandle slab.Handle // guarded by table.poolMu; zero iff no live object
}

var activeTable atomic.Pointer[table]

// Init (re)allocates the global task table with room for size slots,
// rounded up to a power of two. It is idempotent-unsafe by design: callers
// (normally sched.Init) call it exactly once per process lifetime, or once
// per Shutdown/Init bracket in tests.
func Init(size int) {
	if size < 2 {
		size = DefaultTableSize
	}
	size = int(nextPowerOfTwo(uint32(size)))
	t := &table{
		slots: make([]tableSlot, size),
		mask:  uint32(size - 1),
		pool:  slab.NewPool[Task](size, slab.WithMaxBlocks(1)),
	}
	activeTable.Store(t)
}

// Shutdown releases the global task table.
func Shutdown() {
	activeTable.Store(nil)
}

func nextPowerOfTwo(n uint32) uint32 {
	if n <= 1 {
		return 1
	}
	n--
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	return n + 1
}

func currentTable() *table {
	t := activeTable.Load()
	if t == nil {
		Init(DefaultTableSize)
		t = activeTable.Load()
	}
	return t
}

// alloc reserves a table slot and returns its Handle plus a pointer to the
// zeroed Task stored there. Index 0 is never handed out. Under sustained
// overload the index counter wraps modulo table size and may reassign a
// slot still referenced by a live (stale) Handle — documented in
// DESIGN.md rather than guarded, matching the original arena's own
// accepted wraparound behavior.
//
// The Task itself comes from t.pool rather than the heap: if the slot
// being claimed already held an object (from a previous wraparound), that
// object is freed back to the pool first, so the slab's live-object count
// tracks the table's occupied-slot count rather than growing unbounded
// over a process's lifetime.
func (t *table) alloc() (Handle, *Task) {
	idx := t.next.Add(1)
	slotIdx := idx & t.mask
	if slotIdx == 0 {
		idx = t.next.Add(1)
		slotIdx = idx & t.mask
	}
	slot := &t.slots[slotIdx]
	gen := slot.gen.Add(1)

	t.poolMu.Lock()
	if !slot.slabHandle.IsZero() {
		t.pool.Free(slot.slabHandle)
		slot.slabHandle = slab.Handle{}
	}
	sh, tk, err := t.pool.Alloc()
	if err == nil {
		slot.slabHandle = sh
	}
	t.poolMu.Unlock()
	if err != nil {
		// The pool's single block is sized to the whole table and a slot's
		// previous occupant is always freed immediately above, so this
		// should be unreachable; fall back to a heap allocation rather than
		// fail Schedule outright if it ever is.
		tk = &Task{}
	}

	slot.task.Store(tk)
	h := Handle{Index: slotIdx, Generation: gen}
	tk.handle = h
	return h, tk
}

// lookup returns the Task for h if its generation still matches, or nil if
// h is stale or zero.
func (t *table) lookup(h Handle) *Task {
	if h.IsZero() || h.Index > t.mask {
		return nil
	}
	slot := &t.slots[h.Index]
	if slot.gen.Load() != h.Generation {
		return nil
	}
	return slot.task.Load()
}

// Lookup resolves h against the current global table.
func Lookup(h Handle) *Task {
	return currentTable().lookup(h)
}

// Schedule creates a task bound to fn, optionally depending on after, and
// submits it once its dependency is satisfied.
//
// If after is a valid, still-live Handle, the new task is appended to
// after's child array and will not be submitted until after completes; if
// after's child array is already full, ErrTooManyChildren is returned and
// no task is created. If after is the zero Handle or stale, the new task
// is submitted immediately.
func Schedule(name string, fn func(context.Context), data any, after Handle) (Handle, error) {
	d := currentDispatcher()
	if d == nil {
		return Handle{}, ErrNoDispatcher
	}

	t := currentTable()
	h, tk := t.alloc()
	tk.Func = fn
	tk.Data = data
	tk.Name = name
	tk.Priority = PriorityNormal
	tk.Created = time.Now()
	tk.incoming.Store(1) // construction hold, released below

	if !after.IsZero() {
		if pred := t.lookup(after); pred != nil {
			pred.childMu.Lock()
			if pred.childCount >= MaxChildren {
				pred.childMu.Unlock()
				return Handle{}, ErrTooManyChildren
			}
			pred.children[pred.childCount] = h
			pred.childCount++
			pred.childMu.Unlock()
			tk.incoming.Add(1)
			tk.Parent = after
		}
	}

	release(d, tk)
	return h, nil
}

// release drops the construction hold; at zero the task is ready and is
// handed to the Dispatcher.
func release(d Dispatcher, tk *Task) {
	if tk.incoming.Add(-1) != 0 {
		return
	}
	tk.state.Store(int32(StateReady))
	if !d.SubmitLocal(tk) {
		d.SubmitGlobal(tk)
	}
}

// Resubmit re-queues tk onto the active Dispatcher without touching its
// dependency counts, for use by fiber.Yield: tk returns to StateReady and
// is handed to the Dispatcher again, rather than being marked complete.
func Resubmit(tk *Task) {
	tk.state.Store(int32(StateReady))
	d := currentDispatcher()
	if d == nil {
		return
	}
	if !d.SubmitLocal(tk) {
		d.SubmitGlobal(tk)
	}
}

// Fork records that parent must wait for one more fork-joined child
// (spawned via group.SpawnChild) beyond its own Func returning. It must be
// called before the child is scheduled.
func Fork(parent Handle) {
	if pk := currentTable().lookup(parent); pk != nil {
		pk.forkCount.Add(1)
	}
}

// BindJoin records that child's completion should decrement parent's fork
// count (see Fork) and potentially finish it, once child itself is done.
func BindJoin(child, parent Handle) {
	if ck := currentTable().lookup(child); ck != nil {
		ck.joinParent = parent
	}
}

// CancelFork undoes a Fork call for a child that was never actually
// scheduled (e.g. because Schedule itself failed after Fork was called).
func CancelFork(parent Handle) {
	if pk := currentTable().lookup(parent); pk != nil {
		if pk.forkCount.Add(-1) == 0 {
			tryFinish(pk)
		}
	}
}

// Complete is called by fiber's job trampoline once Task.Func returns (or
// panics and is recovered). It marks tk's own execution done and attempts
// to finish it; a task with outstanding fork-joined children (see Fork)
// does not actually transition to StateCompleted, or fan out its DAG
// dependents, until every forked child has also completed.
func Complete(tk *Task) {
	tk.selfDone.Store(true)
	tryFinish(tk)
}

// tryFinish transitions tk to StateCompleted and fans out its DAG
// dependents once tk's own Func has returned and every fork-joined child
// has completed. It then recurses into tk's join parent, if any, since
// this completion may be the join parent's last outstanding child.
//
// This is not linearized against concurrent Fork calls on tk: a Fork
// racing the forkCount==0 check here could in principle be missed. Fork
// is only ever called by the task about to spawn a child, from within its
// own still-running Func, so in practice the race window does not arise —
// documented here rather than closed with a mutex, to keep the hot path
// lock-free.
func tryFinish(tk *Task) {
	if tk.forkCount.Load() != 0 || !tk.selfDone.Load() {
		return
	}
	if tk.state.Load() == int32(StateCompleted) {
		return
	}
	tk.Completed = time.Now()
	tk.state.Store(int32(StateCompleted))

	tk.doneMu.Lock()
	cbs := tk.doneCbs
	tk.doneCbs = nil
	tk.doneMu.Unlock()
	for _, fn := range cbs {
		fn()
	}

	if d := currentDispatcher(); d != nil {
		tk.childMu.Lock()
		children := tk.children[:tk.childCount]
		tk.childMu.Unlock()

		t := currentTable()
		for _, ch := range children {
			child := t.lookup(ch)
			if child == nil {
				continue
			}
			if child.incoming.Add(-1) == 0 {
				child.state.Store(int32(StateReady))
				if !d.SubmitLocal(child) {
					d.SubmitGlobal(child)
				}
			}
		}
	}

	if !tk.joinParent.IsZero() {
		if parent := currentTable().lookup(tk.joinParent); parent != nil {
			if parent.forkCount.Add(-1) == 0 {
				tryFinish(parent)
			}
		}
	}
}

// Wait blocks the calling worker until h's task has completed, running
// other pending work (local pop, steal, or cooperative yield) in the
// meantime rather than spinning idle. A stale or zero handle returns
// immediately.
func Wait(h Handle) {
	t := currentTable()
	tk := t.lookup(h)
	if tk == nil {
		return
	}
	WaitUntil(func() bool {
		switch tk.State() {
		case StateCompleted, StateCancelled:
			return true
		}
		// generation moved on; original task's slot was reused.
		return t.lookup(h) != tk
	})
}

// WaitUntil blocks the calling worker until cond reports true, running
// other pending work (local pop, steal, or cooperative yield) between
// checks rather than spinning idle. It is Wait's underlying loop,
// exported so other packages (group's fan-in Wait) can block on their own
// completion condition through the same Dispatcher-driven mechanism
// instead of polling or duplicating the run-one-then-yield pattern.
func WaitUntil(cond func() bool) {
	d := currentDispatcher()
	for !cond() {
		if d == nil {
			return
		}
		d.RunOneOrYield()
	}
}

// NotifyOnComplete registers fn to run exactly once, when h's task
// transitions to a terminal state (StateCompleted or StateCancelled). If h
// is already stale (generation mismatch, i.e. the slot has been recycled)
// or already terminal, fn runs synchronously before NotifyOnComplete
// returns. This is how a higher-level package (group) attaches a
// non-owning completion hook to a task without task importing it back.
func NotifyOnComplete(h Handle, fn func()) {
	tk := currentTable().lookup(h)
	if tk == nil {
		fn()
		return
	}
	tk.doneMu.Lock()
	switch tk.State() {
	case StateCompleted, StateCancelled:
		tk.doneMu.Unlock()
		fn()
		return
	}
	tk.doneCbs = append(tk.doneCbs, fn)
	tk.doneMu.Unlock()
}

// Hold schedules a task the same way Schedule does, except it leaves the
// construction hold in place instead of releasing it: the task will not
// run until Release is called on the returned handle. group uses this to
// implement a continuation that must not become ready until every member
// of a group has completed, which a single "after" predecessor edge
// cannot express.
func Hold(name string, fn func(context.Context), data any) (Handle, error) {
	if currentDispatcher() == nil {
		return Handle{}, ErrNoDispatcher
	}
	t := currentTable()
	h, tk := t.alloc()
	tk.Func = fn
	tk.Data = data
	tk.Name = name
	tk.Priority = PriorityNormal
	tk.Created = time.Now()
	tk.incoming.Store(1) // held; only Release drops this
	return h, nil
}

// Release drops a held task's construction hold (see Hold), making it
// ready and handing it to the Dispatcher. A stale or zero handle, or one
// whose dispatcher is unavailable, is a silent no-op.
func Release(h Handle) {
	d := currentDispatcher()
	if d == nil {
		return
	}
	if tk := currentTable().lookup(h); tk != nil {
		release(d, tk)
	}
}
