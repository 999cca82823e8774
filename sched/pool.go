// Package sched orchestrates a fixed pool of fiber.Worker instances into
// the scheduler's submission/steal protocol: it is the Dispatcher task
// registers itself against (see task.SetDispatcher), the NUMA-aware victim
// selector's caller, and the one-time init/shutdown bracket spec.md §6
// calls "process-wide state".
package sched

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pbnjay/memory"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/jesta88/warcry/atomicx"
	"github.com/jesta88/warcry/deque"
	"github.com/jesta88/warcry/fiber"
	"github.com/jesta88/warcry/profiler"
	"github.com/jesta88/warcry/sched/numa"
	"github.com/jesta88/warcry/task"
	"github.com/jesta88/warcry/wlog"
)

// Tuning constants, named after the spec.md §4.I defaults they re-express.
const (
	StealAttemptsPerRound = 4
	MaxIdleSpins          = 64
	RemotePauseMultiplier = 4

	// lowMemoryThreshold scales down each worker's fiber pool on hosts with
	// little memory, so (DefaultSmallFibers+DefaultLargeFibers)*worker count
	// doesn't reserve more goroutine stacks than the host can comfortably
	// spare. This is the one place pbnjay/memory.TotalMemory is consulted.
	lowMemoryThreshold = 512 * 1024 * 1024
)

// ErrAlreadyShutdown is the error value for a Pool that has been shut down.
// Submit, SubmitLocal and SubmitGlobal have no error result and do not check
// for shutdown, so no function in this package returns it.
var ErrAlreadyShutdown = errors.New("sched: pool is shut down")

// Pool owns the worker array, the two global priority queues, and the
// wake/sleep/shutdown machinery described in spec.md §4.I. Pool implements
// task.Dispatcher.
type Pool struct { //nolint:govet // betteralign:ignore
	workers  []*fiber.Worker
	selector *numa.Selector
	topo     numa.Topology

	highPriority *globalQueue
	normal       *globalQueue

	shutdownFlag atomicx.PaddedBool
	wakeMu       sync.Mutex
	wakeCond     *sync.Cond
	wg           sync.WaitGroup

	profiler *profiler.Profiler

	submitted []atomicx.Padded64 // per worker, indexed by worker ID
	completed []atomicx.Padded64

	restoreMaxProcs func()
}

// globalQueue is a simple mutex-guarded FIFO used for both priority tiers.
// The per-worker deque.Deque is deliberately not reused here: it is a
// single-producer structure (only the owning worker may PushBottom), while
// the global queues are pushed to by every non-worker submitter
// concurrently — a genuine multi-producer queue, which calls for a
// different structure than the owner-only SPMC deque.
type globalQueue struct {
	mu    sync.Mutex
	items []*task.Task
}

func (q *globalQueue) push(t *task.Task) {
	q.mu.Lock()
	q.items = append(q.items, t)
	q.mu.Unlock()
}

func (q *globalQueue) pop() (*task.Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil, false
	}
	t := q.items[0]
	q.items = q.items[1:]
	return t, true
}

func (q *globalQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Option configures Init.
type Option func(*options)

type options struct {
	numWorkers     int
	dequeCapacity  int
	smallFibers    int
	largeFibers    int
	arenaSize      int
	eventsPerFrame int
	tableSize      int
	pinThreads     bool
}

func defaultOptions() options {
	return options{
		dequeCapacity:  fiber.DefaultDequeCapacity,
		smallFibers:    fiber.DefaultSmallFibers,
		largeFibers:    fiber.DefaultLargeFibers,
		arenaSize:      fiber.DefaultArenaSize,
		eventsPerFrame: profiler.DefaultEventsPerFrame,
		tableSize:      task.DefaultTableSize,
		pinThreads:     true,
	}
}

// WithWorkers sets the worker count. <= 0 (the default) uses
// runtime.GOMAXPROCS(0) after applying go.uber.org/automaxprocs so a
// container's CPU quota, not the host's full core count, drives sizing.
func WithWorkers(n int) Option { return func(o *options) { o.numWorkers = n } }

// WithDequeCapacity sets each worker's initial local deque capacity.
func WithDequeCapacity(n int) Option { return func(o *options) { o.dequeCapacity = n } }

// WithFiberPool sets each worker's small and large fiber pool sizes.
func WithFiberPool(small, large int) Option {
	return func(o *options) { o.smallFibers, o.largeFibers = small, large }
}

// WithArenaSize sets each worker's scratch arena size.
func WithArenaSize(n int) Option { return func(o *options) { o.arenaSize = n } }

// WithEventsPerFrame sets the profiler's per-worker per-frame ring capacity.
func WithEventsPerFrame(n int) Option { return func(o *options) { o.eventsPerFrame = n } }

// WithTableSize sets the global task table's slot count.
func WithTableSize(n int) Option { return func(o *options) { o.tableSize = n } }

// WithThreadPinning controls whether workers lock their OS thread and pin
// it to a CPU in their assigned NUMA node. Defaults to true; disable it in
// environments (CI containers, tests) where sched_setaffinity is
// undesirable or restricted.
func WithThreadPinning(enabled bool) Option { return func(o *options) { o.pinThreads = enabled } }

var globalPool atomic.Pointer[Pool]

// Init constructs and starts a new Pool: it detects NUMA topology,
// allocates the global task table, builds one fiber.Worker per worker slot,
// registers itself as the active task.Dispatcher, and launches one
// scheduler-loop goroutine per worker. Init does not touch the package-wide
// global pool — see InitGlobal for the "process-wide state" contract
// spec.md §6 describes.
func Init(opts ...Option) (*Pool, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	var restore func()
	if o.numWorkers <= 0 {
		undo, err := maxprocs.Set(maxprocs.Logger(func(format string, a ...any) {
			wlog.Info(fmt.Sprintf(format, a...))
		}))
		if err != nil {
			wlog.Warn("automaxprocs: " + err.Error())
		} else {
			restore = undo
		}
		o.numWorkers = runtime.GOMAXPROCS(0)
	}
	if o.numWorkers < 1 {
		o.numWorkers = 1
	}

	// On a memory-constrained host, reserving DefaultSmallFibers+
	// DefaultLargeFibers goroutine stacks per worker times numWorkers adds
	// up; scale the fiber pools down rather than risk the host's memory
	// pressure, matching the spirit of the original's fixed small-stack
	// pool existing specifically to bound per-job memory cost.
	if memory.TotalMemory() > 0 && memory.TotalMemory() < lowMemoryThreshold {
		if o.smallFibers > 16 {
			o.smallFibers = 16
		}
		if o.largeFibers > 2 {
			o.largeFibers = 2
		}
	}

	task.Init(o.tableSize)

	topo, _ := numa.Detect()
	if topo.Fallback {
		wlog.Warn("numa: topology detection unavailable, falling back to single-node uniform stealing")
	}
	sel := numa.NewSelector(topo, o.numWorkers)

	prof := profiler.New(o.numWorkers, o.eventsPerFrame)
	profiler.Activate(prof)

	p := &Pool{
		highPriority:    &globalQueue{},
		normal:          &globalQueue{},
		profiler:        prof,
		selector:        sel,
		topo:            topo,
		submitted:       make([]atomicx.Padded64, o.numWorkers),
		completed:       make([]atomicx.Padded64, o.numWorkers),
		restoreMaxProcs: restore,
	}
	p.wakeCond = sync.NewCond(&p.wakeMu)

	p.workers = make([]*fiber.Worker, o.numWorkers)
	for i := range p.workers {
		w := fiber.NewWorker(int32(i), o.dequeCapacity, o.smallFibers, o.largeFibers, o.arenaSize)
		w.Start()
		p.workers[i] = w
	}

	task.SetDispatcher(p)

	p.wg.Add(o.numWorkers)
	for i, w := range p.workers {
		cpu := -1
		if o.pinThreads && !topo.Fallback {
			node := sel.NodeOfWorker(i)
			if cpus := topo.Nodes[node]; len(cpus) > 0 {
				cpu = cpus[i%len(cpus)]
			}
		}
		go p.workerLoop(w, cpu)
	}

	return p, nil
}

// InitGlobal installs Init's result as the package-wide default pool used by
// Global. Calling InitGlobal while a global pool is already active is a
// documented no-op that returns the existing pool, matching spec.md §6's
// "process-wide state... re-init without shutdown is a no-op" contract.
func InitGlobal(opts ...Option) (*Pool, error) {
	if p := globalPool.Load(); p != nil {
		return p, nil
	}
	p, err := Init(opts...)
	if err != nil {
		return nil, err
	}
	if !globalPool.CompareAndSwap(nil, p) {
		// Lost the race to another InitGlobal call; shut down the pool we
		// just built and defer to the winner.
		_ = p.Shutdown(context.Background())
		return globalPool.Load(), nil
	}
	return p, nil
}

// Global returns the package-wide default pool installed by InitGlobal, or
// nil if none is active.
func Global() *Pool { return globalPool.Load() }

func (p *Pool) workerLoop(w *fiber.Worker, cpu int) {
	defer p.wg.Done()
	if cpu >= 0 {
		if err := numa.PinCurrentThread(cpu); err != nil {
			wlog.Warn("numa: pin worker thread: " + err.Error())
		}
	}

	spins := 0
	for {
		if p.shutdownFlag.Load() {
			return
		}
		tk := p.acquire(w)
		if tk != nil {
			spins = 0
			if err := w.Dispatch(tk); err != nil {
				fiber.RunInline(w.ID, tk)
			}
			p.completed[w.ID].Increment()
			continue
		}
		if spins < MaxIdleSpins {
			atomicx.Pause(spins)
			spins++
			continue
		}
		p.park()
	}
}

// acquire implements the dispatcher path of spec.md §4.I: pop the worker's
// own deque, then attempt up to StealAttemptsPerRound NUMA-weighted steals,
// then fall back to the two global queues.
func (p *Pool) acquire(w *fiber.Worker) *task.Task {
	if tk, ok := w.Deque.PopBottom(); ok {
		return tk
	}

	for i := 0; i < StealAttemptsPerRound; i++ {
		victim, remote := p.selector.SelectVictim(int(w.ID))
		if victim == int(w.ID) || victim >= len(p.workers) {
			continue
		}
		if remote && !p.selector.AllowRemoteSteal(int(w.ID), p.selector.NodeOfWorker(victim)) {
			continue
		}
		switch tk, res := p.workers[victim].Deque.StealTop(); res {
		case deque.StealOK:
			return tk
		case deque.StealAborted:
			if remote {
				atomicx.Pause(RemotePauseMultiplier)
			}
		}
	}

	if tk, ok := p.highPriority.pop(); ok {
		return tk
	}
	if tk, ok := p.normal.pop(); ok {
		return tk
	}
	return nil
}

// acquireForSubmitter is acquire's counterpart for a caller that is not
// running inside any worker's fiber pool — the submitter ("main") thread of
// spec.md §5, which owns no deque of its own but still participates in
// executing work while blocked in task.Wait/group.Wait.
func (p *Pool) acquireForSubmitter() *task.Task {
	if tk, ok := p.highPriority.pop(); ok {
		return tk
	}
	if tk, ok := p.normal.pop(); ok {
		return tk
	}
	for _, w := range p.workers {
		if tk, res := w.Deque.StealTop(); res == deque.StealOK {
			return tk
		}
	}
	return nil
}

func (p *Pool) hasWork() bool {
	if p.highPriority.len() > 0 || p.normal.len() > 0 {
		return true
	}
	for _, w := range p.workers {
		if !w.Deque.IsEmpty() {
			return true
		}
	}
	return false
}

// park sleeps the calling worker goroutine on the wake condition variable,
// re-checking for work immediately before parking to close the lost-wakeup
// window spec.md §5 calls out explicitly.
func (p *Pool) park() {
	p.wakeMu.Lock()
	defer p.wakeMu.Unlock()
	if p.shutdownFlag.Load() || p.hasWork() {
		return
	}
	p.wakeCond.Wait()
}

func (p *Pool) wakeOne() {
	p.wakeMu.Lock()
	p.wakeCond.Signal()
	p.wakeMu.Unlock()
}

func (p *Pool) wakeAll() {
	p.wakeMu.Lock()
	p.wakeCond.Broadcast()
	p.wakeMu.Unlock()
}

// SubmitLocal implements task.Dispatcher: it places t on the calling
// goroutine's own worker deque, growing it on overflow. It returns false if
// the calling goroutine is not running inside one of this Pool's workers.
func (p *Pool) SubmitLocal(t *task.Task) bool {
	w := fiber.CurrentWorker()
	if w == nil {
		return false
	}
	if err := w.Deque.PushBottom(t); err != nil {
		w.Deque.Grow()
	}
	p.submitted[w.ID].Increment()
	return true
}

// SubmitGlobal implements task.Dispatcher: it places t on the
// priority-appropriate global queue and wakes one sleeping worker.
func (p *Pool) SubmitGlobal(t *task.Task) {
	switch t.Priority {
	case task.PriorityCritical, task.PriorityHigh:
		p.highPriority.push(t)
	default:
		p.normal.push(t)
	}
	p.wakeOne()
}

// RunOneOrYield implements task.Dispatcher, backing task.Wait/group.Wait:
// it runs one task reachable from the calling goroutine if one is
// available, otherwise cooperatively yields (inside a worker fiber) or
// briefly backs off (on the submitter goroutine, which has nothing to yield
// from).
func (p *Pool) RunOneOrYield() bool {
	if w := fiber.CurrentWorker(); w != nil {
		if tk := p.acquire(w); tk != nil {
			if err := w.Dispatch(tk); err != nil {
				fiber.RunInline(w.ID, tk)
			}
			return true
		}
		fiber.YieldCurrent()
		return false
	}

	if tk := p.acquireForSubmitter(); tk != nil {
		fiber.RunInline(-1, tk)
		return true
	}
	time.Sleep(time.Duration(1+rand.IntN(4)) * time.Millisecond)
	return false
}

// Submit is the spec.md §4.I-level entry point: it routes t through
// SubmitLocal then SubmitGlobal exactly as task.release/Resubmit do
// internally, for callers outside the task package that hold a *task.Task
// and want to resubmit it directly.
func (p *Pool) Submit(t *task.Task) {
	if !p.SubmitLocal(t) {
		p.SubmitGlobal(t)
	}
}

// Profiler returns the Pool's active frame profiler.
func (p *Pool) Profiler() *profiler.Profiler { return p.profiler }

// NumWorkers returns the number of workers in the pool.
func (p *Pool) NumWorkers() int { return len(p.workers) }

// Topology returns the NUMA topology detected (or the single-node
// fallback) at Init.
func (p *Pool) Topology() numa.Topology { return p.topo }

// WorkerStats is a point-in-time snapshot of one worker's counters.
type WorkerStats struct {
	ID        int32
	Submitted int64
	Completed int64
	Deque     deque.Stats
}

// Stats returns a snapshot of every worker's counters plus both global
// queues' current depth.
type Stats struct {
	Workers             []WorkerStats
	HighPriorityPending int
	NormalPending       int
}

// Stats snapshots the pool's statistics, per spec.md §4.I.
func (p *Pool) Stats() Stats {
	s := Stats{
		Workers:             make([]WorkerStats, len(p.workers)),
		HighPriorityPending: p.highPriority.len(),
		NormalPending:       p.normal.len(),
	}
	for i, w := range p.workers {
		s.Workers[i] = WorkerStats{
			ID:        w.ID,
			Submitted: p.submitted[i].Load(),
			Completed: p.completed[i].Load(),
			Deque:     w.Deque.Stats(),
		}
	}
	return s
}

// Shutdown is best-effort and idempotent: it sets the shutdown flag, wakes
// every parked worker, waits (bounded by ctx) for every worker goroutine to
// drain, then frees process-wide structures (the task table, the active
// profiler, the registered Dispatcher) — unchanged from spec.md §7's
// shutdown contract.
func (p *Pool) Shutdown(ctx context.Context) error {
	if !p.shutdownFlag.CompareAndSwap(false, true) {
		return nil
	}
	p.wakeAll()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	for _, w := range p.workers {
		w.Stop()
	}
	task.SetDispatcher(nil)
	task.Shutdown()
	profiler.Activate(nil)
	if p.restoreMaxProcs != nil {
		p.restoreMaxProcs()
	}
	globalPool.CompareAndSwap(p, nil)
	return nil
}

var _ task.Dispatcher = (*Pool)(nil)
