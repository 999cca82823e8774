// Package fiber re-expresses the original worker/fiber execution model as
// goroutines: a Worker owns a work-stealing deque and a bounded pool of
// persistent runner goroutines ("fibers") that actually execute Task.Func.
// Handing a task to a free fiber, rather than running it inline on the
// goroutine that popped it, lets a Worker have several jobs genuinely in
// flight at once — the Go analogue of the original letting one OS thread
// round-robin between several cooperative fiber stacks.
package fiber

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jesta88/warcry/arena"
	"github.com/jesta88/warcry/deque"
	"github.com/jesta88/warcry/profiler"
	"github.com/jesta88/warcry/task"
	"github.com/jesta88/warcry/wlog"
)

// Default pool sizes, taken from the original's per-worker small/large
// fiber counts.
const (
	DefaultSmallFibers   = 64
	DefaultLargeFibers   = 8
	DefaultDequeCapacity = 1024
	DefaultArenaSize     = 256 * 1024
)

// Worker owns one work-stealing deque, one scratch arena, and a bounded
// pool of runner goroutines that execute tasks popped from (or stolen
// into) that deque. sched composes a fixed array of Workers into a Pool.
type Worker struct {
	ID    int32
	Deque *deque.Deque[*task.Task]
	Arena *arena.Arena

	small   []*jobFiber
	large   []*jobFiber
	poolMu  sync.Mutex
	stopCh  chan struct{}
	wg      sync.WaitGroup
	started atomic.Bool
}

type jobFiber struct {
	id     int
	large  bool
	worker *Worker
	resume chan *task.Task
	busy   atomic.Bool
}

// NewWorker allocates a Worker with the given id and pool sizes. Pass 0 for
// any size parameter to use its default.
func NewWorker(id int32, dequeCapacity, smallFibers, largeFibers, arenaSize int) *Worker {
	if dequeCapacity <= 0 {
		dequeCapacity = DefaultDequeCapacity
	}
	if smallFibers <= 0 {
		smallFibers = DefaultSmallFibers
	}
	if largeFibers <= 0 {
		largeFibers = DefaultLargeFibers
	}
	if arenaSize <= 0 {
		arenaSize = DefaultArenaSize
	}

	w := &Worker{
		ID:     id,
		Deque:  deque.New[*task.Task](dequeCapacity),
		Arena:  arena.New(arenaSize),
		small:  make([]*jobFiber, smallFibers),
		large:  make([]*jobFiber, largeFibers),
		stopCh: make(chan struct{}),
	}
	for i := range w.small {
		w.small[i] = &jobFiber{id: i, worker: w, resume: make(chan *task.Task, 1)}
	}
	for i := range w.large {
		w.large[i] = &jobFiber{id: i, large: true, worker: w, resume: make(chan *task.Task, 1)}
	}
	return w
}

// Start launches every fiber's runner goroutine. It must be called exactly
// once before Dispatch is used.
func (w *Worker) Start() {
	if !w.started.CompareAndSwap(false, true) {
		return
	}
	for _, f := range w.small {
		w.wg.Add(1)
		go w.runFiber(f)
	}
	for _, f := range w.large {
		w.wg.Add(1)
		go w.runFiber(f)
	}
}

// Stop closes the worker's stop channel and waits for every fiber goroutine
// to exit. In-flight jobs are allowed to finish first.
func (w *Worker) Stop() {
	close(w.stopCh)
	w.wg.Wait()
}

func (w *Worker) runFiber(f *jobFiber) {
	defer w.wg.Done()
	id := getGoroutineID()
	registerGoroutine(id, w)
	defer unregisterGoroutine(id)

	for {
		select {
		case tk, ok := <-f.resume:
			if !ok {
				return
			}
			w.runJob(f, tk)
		case <-w.stopCh:
			return
		}
	}
}

// yieldSignal is panicked by Yield and recovered by runTask: it distinguishes
// a cooperative yield (re-submit, don't complete) from an actual panic in
// Task.Func (log it, then still complete, so dependents are not wedged).
type yieldSignal struct{}

func (w *Worker) runJob(f *jobFiber, tk *task.Task) {
	yielded := runTask(w.ID, w, tk)
	f.busy.Store(false)
	if yielded {
		task.Resubmit(tk)
		return
	}
	task.Complete(tk)
}

// RunInline executes tk synchronously on the calling goroutine, under
// workerID's accounting, instead of handing it to a pooled fiber goroutine.
// sched uses this for two cases the original's fiber-per-OS-thread model
// didn't need to distinguish: a worker whose small and large pools are both
// momentarily exhausted (ErrNoFreeFiber), and the submitter goroutine itself
// (worker 0 in spec.md terms), which has no fiber pool of its own but still
// participates in executing work while blocked in task.Wait/group.Wait.
func RunInline(workerID int32, tk *task.Task) {
	yielded := runTask(workerID, nil, tk)
	if yielded {
		task.Resubmit(tk)
		return
	}
	task.Complete(tk)
}

// runTask runs tk.Func with panic recovery and profiler recording, under
// workerID's identity. w is the owning Worker when running on a pooled
// fiber goroutine, or nil when run inline (see RunInline). It reports
// whether tk called Yield.
func runTask(workerID int32, w *Worker, tk *task.Task) (yielded bool) {
	tk.Begin(workerID)
	start := time.Now().UnixNano()

	id := getGoroutineID()
	setCurrentTask(id, tk)
	defer clearCurrentTask(id)

	func() {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			if _, ok := r.(yieldSignal); ok {
				yielded = true
				return
			}
			wlog.Err("task panicked", asError(r))
		}()
		ctx := context.Background()
		if w != nil {
			ctx = ContextWithWorker(ctx, w)
		}
		ctx = contextWithTask(ctx, tk)
		if tk.Func != nil {
			tk.Func(ctx)
		}
	}()

	end := time.Now().UnixNano()
	if p := profiler.Active(); p != nil {
		p.Record(start, end, workerID, tk.Name)
	}
	return yielded
}

// ErrNoFreeFiber is returned by Dispatch when every fiber in both pools is
// currently busy; the caller should leave tk on a queue and retry later
// rather than block.
var ErrNoFreeFiber = errors.New("fiber: no free fiber in worker's pool")

// Dispatch hands tk to a free fiber in this Worker's pool, preferring the
// small pool and falling back to the large pool as overflow capacity.
func (w *Worker) Dispatch(tk *task.Task) error {
	w.poolMu.Lock()
	defer w.poolMu.Unlock()

	for _, f := range w.small {
		if f.busy.CompareAndSwap(false, true) {
			f.resume <- tk
			return nil
		}
	}
	for _, f := range w.large {
		if f.busy.CompareAndSwap(false, true) {
			f.resume <- tk
			return nil
		}
	}
	return ErrNoFreeFiber
}

// registry maps a fiber runner goroutine's ID to the Worker it belongs to,
// so CurrentWorker can be resolved from deep inside Task.Func without
// plumbing a context value through every call site that needs it.
var registry sync.Map // map[uint64]*Worker

func registerGoroutine(id uint64, w *Worker) { registry.Store(id, w) }
func unregisterGoroutine(id uint64)          { registry.Delete(id) }

// taskRegistry maps the goroutine currently executing runTask to the Task
// it is running, resolved the same goroutine-ID-parsing way as registry.
// sched's Dispatcher.RunOneOrYield needs to cooperatively yield "whatever
// task the calling worker is running" without a context value in hand (its
// interface predates task.Wait/group.Wait threading one through), so it
// goes through CurrentTask/YieldCurrent instead of Yield(ctx).
var taskRegistry sync.Map // map[uint64]*task.Task

func setCurrentTask(id uint64, tk *task.Task) { taskRegistry.Store(id, tk) }
func clearCurrentTask(id uint64)              { taskRegistry.Delete(id) }

// CurrentTask returns the Task executing on the calling goroutine, or nil if
// the caller is not running inside runTask (i.e. not inside a dispatched
// job).
func CurrentTask() *task.Task {
	if v, ok := taskRegistry.Load(getGoroutineID()); ok {
		return v.(*task.Task)
	}
	return nil
}

// YieldCurrent is Yield's context-free counterpart: it cooperatively yields
// the task resolved by CurrentTask. A no-op outside a running job.
func YieldCurrent() {
	if CurrentTask() == nil {
		return
	}
	panic(yieldSignal{})
}

// CurrentWorker returns the Worker owning the calling goroutine, or nil if
// the caller is not running inside one of this package's fiber goroutines.
func CurrentWorker() *Worker {
	if v, ok := registry.Load(getGoroutineID()); ok {
		return v.(*Worker)
	}
	return nil
}

// getGoroutineID returns the current goroutine's numeric ID by parsing the
// prefix of runtime.Stack's output, exactly as the teacher's event loop
// resolves "is this the loop goroutine" from arbitrary call sites.
func getGoroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	var id uint64
	for i := len("goroutine "); i < n; i++ {
		if buf[i] >= '0' && buf[i] <= '9' {
			id = id*10 + uint64(buf[i]-'0')
		} else {
			break
		}
	}
	return id
}

type workerContextKey struct{}
type taskContextKey struct{}

// ContextWithWorker attaches w to ctx, so ArenaFromContext (and other
// worker-scoped lookups) still resolve correctly even if Task.Func hands
// ctx off to code running on a different goroutine.
func ContextWithWorker(ctx context.Context, w *Worker) context.Context {
	return context.WithValue(ctx, workerContextKey{}, w)
}

func contextWithTask(ctx context.Context, tk *task.Task) context.Context {
	return context.WithValue(ctx, taskContextKey{}, tk)
}

func taskFromContext(ctx context.Context) *task.Task {
	tk, _ := ctx.Value(taskContextKey{}).(*task.Task)
	return tk
}

// WorkerFromContext returns the Worker attached to ctx by ContextWithWorker,
// falling back to CurrentWorker if ctx carries none.
func WorkerFromContext(ctx context.Context) *Worker {
	if w, ok := ctx.Value(workerContextKey{}).(*Worker); ok && w != nil {
		return w
	}
	return CurrentWorker()
}

// ArenaFromContext returns the scratch arena of the Worker executing ctx's
// task, or nil if no Worker can be resolved.
func ArenaFromContext(ctx context.Context) *arena.Arena {
	if w := WorkerFromContext(ctx); w != nil {
		return w.Arena
	}
	return nil
}

// Yield cooperatively re-enqueues the calling task on its owning worker's
// deque and unwinds the current call to Task.Func. Unlike the original's
// stackful fiber switch, Go has no portable stackful-coroutine primitive
// without cgo or assembly: Yield does not preserve any in-progress stack
// state. A yielded task resumes by having its Func invoked again from the
// top, so callers that need partial-progress resumption must thread their
// own cursor through Task.Data. Calling Yield outside a task running under
// this package's fiber pool is a no-op.
func Yield(ctx context.Context) {
	if taskFromContext(ctx) == nil {
		return
	}
	panic(yieldSignal{})
}

func asError(r any) error {
	if err, ok := r.(error); ok {
		return err
	}
	return fmt.Errorf("recovered panic: %v", r)
}
