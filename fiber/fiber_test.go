package fiber

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jesta88/warcry/arena"
	"github.com/jesta88/warcry/task"
)

func TestDispatch_RunsTaskToCompletion(t *testing.T) {
	w := NewWorker(0, 0, 2, 1, 0)
	w.Start()
	defer w.Stop()

	var mu sync.Mutex
	var ran bool
	done := make(chan struct{})
	tk := &task.Task{Name: "t", Func: func(context.Context) {
		mu.Lock()
		ran = true
		mu.Unlock()
		close(done)
	}}

	require.NoError(t, w.Dispatch(tk))
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("task never ran")
	}

	require.Eventually(t, func() bool {
		return tk.State() == task.StateCompleted
	}, time.Second, time.Millisecond)

	mu.Lock()
	assert.True(t, ran)
	mu.Unlock()
}

func TestDispatch_ReturnsErrNoFreeFiberWhenPoolExhausted(t *testing.T) {
	w := NewWorker(0, 0, 1, 1, 0)
	w.Start()
	defer w.Stop()

	block := make(chan struct{})
	holder := func(context.Context) { <-block }

	require.NoError(t, w.Dispatch(&task.Task{Func: holder}))
	require.NoError(t, w.Dispatch(&task.Task{Func: holder}))
	assert.ErrorIs(t, w.Dispatch(&task.Task{Func: func(context.Context) {}}), ErrNoFreeFiber)

	close(block)
}

func TestArenaFromContext_ResolvesRunningWorkersArena(t *testing.T) {
	w := NewWorker(2, 0, 1, 0, 4096)
	w.Start()
	defer w.Stop()

	var mu sync.Mutex
	var gotArena *arena.Arena
	done := make(chan struct{})
	tk := &task.Task{Func: func(ctx context.Context) {
		mu.Lock()
		gotArena = ArenaFromContext(ctx)
		mu.Unlock()
		close(done)
	}}

	require.NoError(t, w.Dispatch(tk))
	<-done
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return gotArena != nil
	}, time.Second, time.Millisecond)

	mu.Lock()
	assert.Same(t, w.Arena, gotArena)
	mu.Unlock()
}

func TestCurrentWorker_ResolvesFromInsideFiberGoroutine(t *testing.T) {
	w := NewWorker(3, 0, 1, 0, 0)
	w.Start()
	defer w.Stop()

	var mu sync.Mutex
	var got *Worker
	done := make(chan struct{})
	tk := &task.Task{Func: func(context.Context) {
		mu.Lock()
		got = CurrentWorker()
		mu.Unlock()
		close(done)
	}}

	require.NoError(t, w.Dispatch(tk))
	<-done
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return got != nil
	}, time.Second, time.Millisecond)

	mu.Lock()
	assert.Same(t, w, got)
	mu.Unlock()
}

// redispatcher is a minimal task.Dispatcher that funnels every submission
// straight back through one Worker's fiber pool, enough to exercise Yield's
// resubmit-without-completing path without a real sched.Pool.
type redispatcher struct{ w *Worker }

func (r *redispatcher) SubmitLocal(tk *task.Task) bool { return r.w.Dispatch(tk) == nil }
func (r *redispatcher) SubmitGlobal(tk *task.Task)     { _ = r.w.Dispatch(tk) }
func (r *redispatcher) RunOneOrYield() bool            { return false }

func TestYield_ResubmitsInsteadOfCompleting(t *testing.T) {
	w := NewWorker(4, 0, 2, 1, 0)
	w.Start()
	defer w.Stop()

	task.Init(64)
	task.SetDispatcher(&redispatcher{w: w})
	t.Cleanup(func() {
		task.SetDispatcher(nil)
		task.Shutdown()
	})

	var calls int32
	done := make(chan struct{})
	h, err := task.Schedule("yielder", func(ctx context.Context) {
		if atomic.AddInt32(&calls, 1) == 1 {
			Yield(ctx)
			t.Error("unreachable: Yield must not return")
			return
		}
		close(done)
	}, nil, task.Handle{})
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("task never completed after yield")
	}

	require.Eventually(t, func() bool {
		return task.Lookup(h).State() == task.StateCompleted
	}, time.Second, time.Millisecond)

	assert.GreaterOrEqual(t, atomic.LoadInt32(&calls), int32(2))
}

func TestYield_OutsideManagedTaskIsNoop(t *testing.T) {
	assert.NotPanics(t, func() {
		Yield(context.Background())
	})
}
