package workerpool

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestPoolProcessesEveryItem(t *testing.T) {
	var count atomic.Int64
	p := New(4, 16, func(int) { count.Add(1) })
	p.Start()
	defer p.Stop()

	const n = 200
	for i := 0; i < n; i++ {
		p.Push(i)
	}

	deadline := time.Now().Add(time.Second)
	for count.Load() != n && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if got := count.Load(); got != n {
		t.Fatalf("processed %d items, want %d", got, n)
	}
}

func TestPoolStartIsIdempotent(t *testing.T) {
	var count atomic.Int64
	p := New(2, 4, func(int) { count.Add(1) })
	p.Start()
	p.Start()
	p.Push(1)

	deadline := time.Now().Add(time.Second)
	for count.Load() != 1 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if count.Load() != 1 {
		t.Fatalf("expected exactly one invocation, got %d", count.Load())
	}
	p.Stop()
}

func TestPoolStopIsIdempotentAndJoins(t *testing.T) {
	p := New(3, 4, func(int) {})
	p.Start()
	p.Stop()
	p.Stop()
}

func TestPoolTryPushReportsFullQueue(t *testing.T) {
	block := make(chan struct{})
	p := New(1, 1, func(int) { <-block })
	p.Start()
	defer func() {
		close(block)
		p.Stop()
	}()

	p.Push(1)
	time.Sleep(10 * time.Millisecond)
	if !p.TryPush(2) {
		t.Fatal("expected the one free queue slot to accept a second item")
	}
	if p.TryPush(3) {
		t.Fatal("expected TryPush to report false once the queue is full")
	}
}

func TestNewClampsNonPositiveArguments(t *testing.T) {
	p := New(0, 0, func(int) {})
	if p.workers != 1 {
		t.Fatalf("workers = %d, want 1", p.workers)
	}
	if cap(p.queue) != 1 {
		t.Fatalf("queue capacity = %d, want 1", cap(p.queue))
	}
}
