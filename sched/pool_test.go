package sched

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jesta88/warcry/task"
)

func newTestPool(t *testing.T, workers int) *Pool {
	t.Helper()
	p, err := Init(
		WithWorkers(workers),
		WithFiberPool(2, 1),
		WithDequeCapacity(64),
		WithTableSize(256),
		WithThreadPinning(false),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = p.Shutdown(ctx)
	})
	return p
}

func TestInit_RunsSubmittedTaskToCompletion(t *testing.T) {
	newTestPool(t, 2)

	var ran int32
	done := make(chan struct{})
	_, err := task.Schedule("hello", func(context.Context) {
		atomic.AddInt32(&ran, 1)
		close(done)
	}, nil, task.Handle{})
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("task never ran")
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&ran))
}

func TestInit_ManyTasksAllComplete(t *testing.T) {
	newTestPool(t, 4)

	const n = 500
	var wg sync.WaitGroup
	wg.Add(n)
	var completed int32
	for i := 0; i < n; i++ {
		_, err := task.Schedule("t", func(context.Context) {
			atomic.AddInt32(&completed, 1)
			wg.Done()
		}, nil, task.Handle{})
		require.NoError(t, err)
	}

	doneCh := make(chan struct{})
	go func() {
		wg.Wait()
		close(doneCh)
	}()
	select {
	case <-doneCh:
	case <-time.After(10 * time.Second):
		t.Fatalf("only %d/%d tasks completed", atomic.LoadInt32(&completed), n)
	}
}

func TestWait_DrivesDependentTaskFromSubmitterGoroutine(t *testing.T) {
	newTestPool(t, 2)

	var order []int32
	var mu sync.Mutex
	record := func(v int32) {
		mu.Lock()
		order = append(order, v)
		mu.Unlock()
	}

	first, err := task.Schedule("first", func(context.Context) {
		time.Sleep(10 * time.Millisecond)
		record(1)
	}, nil, task.Handle{})
	require.NoError(t, err)

	second, err := task.Schedule("second", func(context.Context) {
		record(2)
	}, nil, first)
	require.NoError(t, err)

	task.Wait(second)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, order, 2)
	assert.Equal(t, int32(1), order[0])
	assert.Equal(t, int32(2), order[1])
}

func TestStats_ReportsWorkerCount(t *testing.T) {
	p := newTestPool(t, 3)
	stats := p.Stats()
	assert.Len(t, stats.Workers, 3)
}

func TestShutdown_IsIdempotent(t *testing.T) {
	p, err := Init(WithWorkers(1), WithThreadPinning(false))
	require.NoError(t, err)
	require.NoError(t, p.Shutdown(context.Background()))
	require.NoError(t, p.Shutdown(context.Background()))
}

func TestInitGlobal_ReinitWithoutShutdownIsNoop(t *testing.T) {
	p1, err := InitGlobal(WithWorkers(1), WithThreadPinning(false))
	require.NoError(t, err)
	p2, err := InitGlobal(WithWorkers(4), WithThreadPinning(false))
	require.NoError(t, err)
	assert.Same(t, p1, p2)
	assert.Same(t, p1, Global())

	require.NoError(t, p1.Shutdown(context.Background()))
}
