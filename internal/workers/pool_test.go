package workers

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestPoolRunsJobs(t *testing.T) {
	p := NewPool(2, 8, time.Second, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)

	var ran atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		ok := p.Submit(Job{Name: "extract", Run: func(context.Context) error {
			defer wg.Done()
			ran.Add(1)
			return nil
		}})
		if !ok {
			wg.Done()
			t.Fatalf("Submit returned false with free queue")
		}
	}
	wg.Wait()
	if got := ran.Load(); got != 5 {
		t.Fatalf("jobs ran = %d, want 5", got)
	}
}

func TestPoolBoundedConcurrency(t *testing.T) {
	p := NewPool(2, 16, time.Second, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)

	var inflight, peak atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		p.Submit(Job{Name: "j", Run: func(context.Context) error {
			defer wg.Done()
			n := inflight.Add(1)
			for {
				old := peak.Load()
				if n <= old || peak.CompareAndSwap(old, n) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			inflight.Add(-1)
			return nil
		}})
	}
	wg.Wait()
	if peak.Load() > 2 {
		t.Fatalf("peak concurrency = %d, want <= 2", peak.Load())
	}
}

func TestPoolSubmitFullQueueDrops(t *testing.T) {
	// No Start: nothing drains the queue.
	p := NewPool(1, 2, time.Second, nil)
	noop := Job{Name: "j", Run: func(context.Context) error { return nil }}
	if !p.Submit(noop) || !p.Submit(noop) {
		t.Fatalf("first two submits should fit the queue")
	}
	if p.Submit(noop) {
		t.Fatalf("third submit should report a full queue")
	}
}

func TestPoolSurvivesErrorsAndPanics(t *testing.T) {
	p := NewPool(1, 8, time.Second, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)

	var wg sync.WaitGroup
	wg.Add(3)
	p.Submit(Job{Name: "boom", Run: func(context.Context) error {
		defer wg.Done()
		panic("boom")
	}})
	p.Submit(Job{Name: "fail", Run: func(context.Context) error {
		defer wg.Done()
		return errors.New("fail")
	}})
	var ok atomic.Bool
	p.Submit(Job{Name: "after", Run: func(context.Context) error {
		defer wg.Done()
		ok.Store(true)
		return nil
	}})
	wg.Wait()
	if !ok.Load() {
		t.Fatalf("worker did not survive a panicking job")
	}
}

func TestPoolJobTimeout(t *testing.T) {
	p := NewPool(1, 2, 20*time.Millisecond, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)

	done := make(chan struct{})
	p.Submit(Job{Name: "slow", Run: func(jobCtx context.Context) error {
		defer close(done)
		select {
		case <-jobCtx.Done():
			return jobCtx.Err()
		case <-time.After(5 * time.Second):
			return nil
		}
	}})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("job context was not cancelled by the pool timeout")
	}
}

func TestPoolStopWaitsForInflight(t *testing.T) {
	p := NewPool(1, 2, time.Second, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)

	var finished atomic.Bool
	p.Submit(Job{Name: "j", Run: func(context.Context) error {
		time.Sleep(30 * time.Millisecond)
		finished.Store(true)
		return nil
	}})
	time.Sleep(5 * time.Millisecond)
	p.Stop()
	if !finished.Load() {
		t.Fatalf("Stop returned before in-flight job finished")
	}
}
