package orchestrator

import (
	"sync"
	"sync/atomic"
	"testing"
)

func TestGuardSingleHolder(t *testing.T) {
	var g Guard
	var acquired int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if g.TryAcquire() {
				atomic.AddInt32(&acquired, 1)
			}
		}()
	}
	wg.Wait()
	if acquired != 1 {
		t.Fatalf("expected exactly one holder, got %d", acquired)
	}
	if !g.Running() {
		t.Fatal("guard should be held")
	}
	g.Release()
	if g.Running() || !g.TryAcquire() {
		t.Fatal("guard not reusable after release")
	}
}
