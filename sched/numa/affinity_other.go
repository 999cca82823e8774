//go:build !linux

package numa

// PinCurrentThread is a no-op on non-Linux platforms: sched_setaffinity has
// no portable equivalent exposed by golang.org/x/sys outside Linux. Workers
// still run correctly, just without kernel-level NUMA pinning.
func PinCurrentThread(cpu int) error { return nil }
