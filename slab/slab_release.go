//go:build !slabdebug

package slab

// debugInfo is empty outside slabdebug builds: the double-free bitmap
// machinery compiles out entirely.
type debugInfo struct{}

func (p *Pool[T]) debugMarkAlloc(Handle) {}
func (p *Pool[T]) debugMarkFree(Handle)  {}
