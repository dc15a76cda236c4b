package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// TestTaskTickNonOverlap is spec.md testable property #8: calling tick
// concurrently never runs Fn twice at once; a tick that finds the
// previous one still running skips rather than blocking.
func TestTaskTickNonOverlap(t *testing.T) {
	var concurrent int32
	var maxConcurrent int32
	var calls int32

	task := &Task{
		Name:     "test",
		Interval: time.Hour,
		Fn: func(ctx context.Context, tickStart time.Time) error {
			atomic.AddInt32(&calls, 1)
			n := atomic.AddInt32(&concurrent, 1)
			for {
				old := atomic.LoadInt32(&maxConcurrent)
				if n <= old || atomic.CompareAndSwapInt32(&maxConcurrent, old, n) {
					break
				}
			}
			time.Sleep(20 * time.Millisecond)
			atomic.AddInt32(&concurrent, -1)
			return nil
		},
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			task.tick(context.Background())
		}()
	}
	wg.Wait()

	if atomic.LoadInt32(&maxConcurrent) > 1 {
		t.Fatalf("Fn ran concurrently: max observed concurrency %d", maxConcurrent)
	}
	if calls == 0 {
		t.Fatalf("expected at least one tick to run Fn")
	}
}

func TestTaskRunStopsOnStop(t *testing.T) {
	var ticks int32
	task := &Task{
		Name:     "test",
		Interval: 5 * time.Millisecond,
		Fn: func(ctx context.Context, tickStart time.Time) error {
			atomic.AddInt32(&ticks, 1)
			return nil
		},
	}

	go task.Run(context.Background())
	time.Sleep(50 * time.Millisecond)
	task.Stop()

	if atomic.LoadInt32(&ticks) == 0 {
		t.Fatalf("expected at least one tick before Stop")
	}
	if task.Ticks() == 0 {
		t.Fatalf("Ticks() should reflect completed ticks")
	}
}

func TestTaskDisabledSkipsFn(t *testing.T) {
	var calls int32
	task := &Task{
		Name:     "test",
		Interval: time.Hour,
		Enabled:  func() bool { return false },
		Fn: func(ctx context.Context, tickStart time.Time) error {
			atomic.AddInt32(&calls, 1)
			return nil
		},
	}
	task.tick(context.Background())
	if calls != 0 {
		t.Fatalf("Fn should not run while Enabled returns false")
	}
}
