package ratelimit

import "testing"

func TestConnSemaphore_EnforcesLimit(t *testing.T) {
	t.Parallel()

	s := NewConnSemaphore(2)
	if !s.TryAcquire() {
		t.Fatal("first TryAcquire should succeed")
	}
	if !s.TryAcquire() {
		t.Fatal("second TryAcquire should succeed")
	}
	if s.TryAcquire() {
		t.Fatal("third TryAcquire should fail: limit is 2")
	}

	s.Release()
	if !s.TryAcquire() {
		t.Fatal("TryAcquire after Release should succeed")
	}
}

func TestConnSemaphore_UnboundedWhenNonPositive(t *testing.T) {
	t.Parallel()

	s := NewConnSemaphore(0)
	for i := 0; i < 1000; i++ {
		if !s.TryAcquire() {
			t.Fatalf("TryAcquire %d should always succeed when max<=0", i)
		}
	}
	s.Release() // must not panic on an unbounded semaphore
}
