package numa

import (
	"runtime"

	"golang.org/x/sys/unix"
)

// PinCurrentThread locks the calling goroutine to its current OS thread and
// pins that thread to cpu via sched_setaffinity. Workers call this once at
// startup with a CPU of their assigned node, picked as the node's CPU list
// entry at the worker's index modulo the list length — the same
// "lock the OS thread only when kernel-level affinity is actually needed"
// idiom the teacher applies around epoll/kqueue in its event loop.
func PinCurrentThread(cpu int) error {
	runtime.LockOSThread()
	var set unix.CPUSet
	set.Zero()
	set.Set(cpu)
	return unix.SchedSetaffinity(0, &set)
}
