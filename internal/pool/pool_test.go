package pool

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestSubmitRunsTask(t *testing.T) {
	p := New(2)
	defer p.Shutdown()

	done := make(chan struct{})
	p.Submit(func() { close(done) })

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for submitted task to run")
	}
}

func TestWaitForAllBlocksUntilDrained(t *testing.T) {
	p := New(4)
	defer p.Shutdown()

	var completed atomic.Int32
	const n = 50
	for i := 0; i < n; i++ {
		p.Submit(func() {
			time.Sleep(time.Millisecond)
			completed.Add(1)
		})
	}
	p.WaitForAll()

	if int(completed.Load()) != n {
		t.Errorf("expected all %d tasks to complete before WaitForAll returns, got %d", n, completed.Load())
	}
}

func TestShutdownDrainsQueueThenStops(t *testing.T) {
	p := New(1)
	var completed atomic.Int32
	for i := 0; i < 10; i++ {
		p.Submit(func() { completed.Add(1) })
	}
	p.Shutdown()
	if int(completed.Load()) != 10 {
		t.Errorf("expected all queued tasks to run before Shutdown returns, got %d", completed.Load())
	}
}

func TestSubmitAfterShutdownIsNoop(t *testing.T) {
	p := New(1)
	p.Shutdown()

	var ran atomic.Bool
	p.Submit(func() { ran.Store(true) })
	time.Sleep(10 * time.Millisecond)
	if ran.Load() {
		t.Error("expected a task submitted after Shutdown to never run")
	}
}

func TestNewClampsWorkersToAtLeastOne(t *testing.T) {
	p := New(0)
	defer p.Shutdown()

	done := make(chan struct{})
	p.Submit(func() { close(done) })
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("expected a pool created with 0 workers to still run tasks (clamped to 1)")
	}
}
