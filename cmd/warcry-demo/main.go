// Command warcry-demo wires the application-loop contract (package engine)
// to the scheduler (package sched) and a small per-frame task DAG (packages
// task and group), the way a real frame would build and submit work. It
// exists purely to exercise the stack end to end; it draws nothing and
// owns no window.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/jesta88/warcry/config"
	"github.com/jesta88/warcry/engine"
	"github.com/jesta88/warcry/group"
	"github.com/jesta88/warcry/sched"
	"github.com/jesta88/warcry/task"
	"github.com/jesta88/warcry/wlog"
)

func main() {
	configPath := flag.String("config", "", "optional key=value config file (see package config)")
	frames := flag.Int("frames", 300, "number of simulation frames to run before exiting (0 = run until signalled)")
	flag.Parse()

	cfg := &config.File{}
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			wlog.Err("config: load failed", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	workers := cfg.Int("workers", 0)

	pool, err := sched.Init(sched.WithWorkers(workers))
	if err != nil {
		wlog.Err("sched: init failed", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := pool.Shutdown(shutdownCtx); err != nil {
			wlog.Warn("sched: shutdown: " + err.Error())
		}
	}()

	wlog.Info(fmt.Sprintf("sched: started with %d workers, topology fallback=%v", pool.NumWorkers(), pool.Topology().Fallback))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var frameCount atomic.Int64
	var particlesUpdated atomic.Int64

	eng := engine.New()
	cb := engine.Callbacks{
		Init: func() error {
			wlog.Info("demo: init")
			return nil
		},
		Update: func(dt time.Duration) {
			n := frameCount.Add(1)
			simulateFrame(&particlesUpdated)
			pool.Profiler().FrameEnd()
			pool.Profiler().FrameStart()
			if *frames > 0 && n >= int64(*frames) {
				go func() { _ = eng.Shutdown(context.Background()) }()
			}
		},
		Render: func(alpha float64) {
			// No rendering contract is imposed; this is the interpolant a
			// real renderer would use between the last two simulation
			// states. The demo has nothing to draw.
			_ = alpha
		},
		Quit: func() {
			wlog.Info(fmt.Sprintf("demo: quit after %d frames, %d particle jobs", frameCount.Load(), particlesUpdated.Load()))
		},
	}

	pool.Profiler().FrameStart()
	if err := eng.Run(ctx, cb); err != nil && ctx.Err() == nil {
		wlog.Err("engine: run failed", err)
		os.Exit(1)
	}
}

// simulateFrame builds a small per-frame DAG: a physics task, followed by
// a fan-out of independent particle-update tasks grouped for a single
// fan-in wait, followed by a late-game-logic task that runs once every
// particle update has completed.
func simulateFrame(particlesUpdated *atomic.Int64) {
	physics, err := task.Schedule("physics", func(ctx context.Context) {
		time.Sleep(100 * time.Microsecond)
	}, nil, task.Handle{})
	if err != nil {
		wlog.Warn("schedule physics: " + err.Error())
		return
	}

	g := group.New(64)
	const particleBatches = 64
	for i := 0; i < particleBatches; i++ {
		h, err := task.Schedule("particles", func(ctx context.Context) {
			particlesUpdated.Add(1)
		}, i, physics)
		if err != nil {
			wlog.Warn("schedule particles: " + err.Error())
			continue
		}
		g.Add(h)
	}
	g.Submit()
	g.Wait()

	lateLogic, err := task.Schedule("late-logic", func(ctx context.Context) {
		// Runs once every particle batch above has completed.
	}, nil, task.Handle{})
	if err != nil {
		wlog.Warn("schedule late-logic: " + err.Error())
		return
	}
	task.Wait(lateLogic)
}
