// Package engine drives an application's init/update/render/quit lifecycle
// with a fixed timestep, the same state-machine-around-a-blocking-Run shape
// as the teacher's event loop, generalized from "drain task queues" to
// "drive a frame loop".
package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// state mirrors the teacher's Loop state machine: Awake before Run is
// called, Running while the frame loop is live, Terminating once shutdown
// has been requested but the current frame hasn't unwound yet, Terminated
// once Run has returned.
type state int32

const (
	stateAwake state = iota
	stateRunning
	stateTerminating
	stateTerminated
)

// ErrAlreadyRunning is returned by Run if it is called more than once on
// the same Engine.
var ErrAlreadyRunning = errors.New("engine: already running")

// ErrTerminated is returned by Run if the Engine has already completed a
// prior run.
var ErrTerminated = errors.New("engine: already terminated")

const (
	fixedStep    = time.Second / 60
	maxFrameTime = 250 * time.Millisecond
)

// Callbacks are the four lifecycle hooks Run drives. Init runs once before
// the first frame; a non-nil error aborts Run without calling Update or
// Render, though Quit is still called. Update is called zero or more times
// per frame with a fixed dt, matching fixedStep. Render is called exactly
// once per frame with alpha, the fraction of a step the accumulator has
// left over, for interpolating between the last two simulation states.
// Quit runs once after the loop exits, whether that's due to ctx
// cancellation or Shutdown.
type Callbacks struct {
	Init   func() error
	Update func(dt time.Duration)
	Render func(alpha float64)
	Quit   func()
}

// Engine runs Callbacks against a fixed 1/60s simulation timestep,
// decoupled from however fast Render actually gets called, per spec.md
// §4.K. Construct it with New (the zero value has no channels and is not
// usable); Run may be called exactly once.
type Engine struct {
	state    atomic.Int32
	doneCh   chan struct{}
	stopCh   chan struct{}
	stopOnce sync.Once
}

// New constructs an Engine ready for Run.
func New() *Engine {
	return &Engine{doneCh: make(chan struct{}), stopCh: make(chan struct{})}
}

// Run blocks, driving cb's lifecycle until ctx is cancelled or Shutdown is
// called. It returns ctx.Err() on cancellation, nil after Shutdown, Init's
// error if Init fails, and ErrAlreadyRunning/ErrTerminated if Run was
// already called. Update and Render have no error return; they report
// failures through their own side channels.
func (e *Engine) Run(ctx context.Context, cb Callbacks) error {
	if !e.state.CompareAndSwap(int32(stateAwake), int32(stateRunning)) {
		if state(e.state.Load()) == stateTerminated {
			return ErrTerminated
		}
		return ErrAlreadyRunning
	}
	defer close(e.doneCh)
	defer e.state.Store(int32(stateTerminated))

	if cb.Init != nil {
		if err := cb.Init(); err != nil {
			if cb.Quit != nil {
				cb.Quit()
			}
			return err
		}
	}

	last := time.Now()
	var accumulator time.Duration

	for {
		select {
		case <-ctx.Done():
			if cb.Quit != nil {
				cb.Quit()
			}
			return ctx.Err()
		case <-e.stopCh:
			if cb.Quit != nil {
				cb.Quit()
			}
			return nil
		default:
		}

		now := time.Now()
		frameTime := now.Sub(last)
		last = now
		if frameTime > maxFrameTime {
			frameTime = maxFrameTime
		}
		accumulator += frameTime

		for accumulator >= fixedStep {
			if cb.Update != nil {
				cb.Update(fixedStep)
			}
			accumulator -= fixedStep
		}

		if cb.Render != nil {
			cb.Render(float64(accumulator) / float64(fixedStep))
		}
	}
}

// Shutdown requests Run to exit at the next opportunity and waits (bounded
// by ctx) for it to finish, mirroring Loop.Shutdown's wait-on-channel
// pattern rather than polling state.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.stopOnce.Do(func() {
		e.state.CompareAndSwap(int32(stateRunning), int32(stateTerminating))
		close(e.stopCh)
	})
	select {
	case <-e.doneCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
