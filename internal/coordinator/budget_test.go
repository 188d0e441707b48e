package coordinator

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestBudget_DefaultsAndCapacity(t *testing.T) {
	if got := NewBudget(0, 0, 0).Capacity(); got != DefaultMaxConcurrent {
		t.Errorf("Capacity() = %d, want %d", got, DefaultMaxConcurrent)
	}
	if got := NewBudget(7, 0, 0).Capacity(); got != 7 {
		t.Errorf("Capacity() = %d, want 7", got)
	}
}

func TestBudget_BlocksAtCapacity(t *testing.T) {
	b := NewBudget(1, 0, 0)

	release, err := b.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := b.Acquire(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Acquire() at capacity error = %v, want DeadlineExceeded", err)
	}

	release()
	release2, err := b.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire() after release error = %v", err)
	}
	release2()
}

func TestBudget_RateLimit(t *testing.T) {
	b := NewBudget(10, 20, 1) // one request every 50ms

	start := time.Now()
	for range 3 {
		release, err := b.Acquire(context.Background())
		if err != nil {
			t.Fatalf("Acquire() error = %v", err)
		}
		release()
	}
	if elapsed := time.Since(start); elapsed < 90*time.Millisecond {
		t.Errorf("3 requests at 20/s took %v, want >= ~100ms", elapsed)
	}
}

func TestBudget_RateLimitReleasesSlotOnCancel(t *testing.T) {
	b := NewBudget(1, 0.1, 1)

	release, err := b.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	release()

	// Bucket is empty for 10s; the wait fails and must not keep the slot
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := b.Acquire(ctx); err == nil {
		t.Fatal("Acquire() with empty bucket succeeded")
	}
	if !b.sem.TryAcquire(1) {
		t.Error("semaphore slot leaked after rate limit failure")
	}
}
