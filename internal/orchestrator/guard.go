package orchestrator

import "sync/atomic"

// Guard admits one run at a time. It never blocks: a caller that cannot
// acquire it is expected to skip its run.
type Guard struct {
	running atomic.Bool
}

// TryAcquire claims the guard, reporting false if a run is in progress.
func (g *Guard) TryAcquire() bool {
	return g.running.CompareAndSwap(false, true)
}

// Release frees the guard.
func (g *Guard) Release() {
	g.running.Store(false)
}

// Running reports whether a run holds the guard.
func (g *Guard) Running() bool {
	return g.running.Load()
}
