package wal

import (
	"sync"
	"testing"
	"time"
)

func TestTrackerInOrder(t *testing.T) {
	tr := NewTracker(LSN(100))
	tr.Done(100, 150)
	if got := tr.Get(); got != 150 {
		t.Fatalf("Get: got %d, want 150", got)
	}
	tr.Done(150, 200)
	if got := tr.Get(); got != 200 {
		t.Fatalf("Get: got %d, want 200", got)
	}
}

func TestTrackerOutOfOrder(t *testing.T) {
	tr := NewTracker(LSN(0))
	tr.Done(50, 100) // arrives before the gap it depends on is filled
	if got := tr.Get(); got != 0 {
		t.Fatalf("Get: got %d, want 0 (gap at [0,50) unfilled)", got)
	}
	tr.Done(0, 50)
	if got := tr.Get(); got != 100 {
		t.Fatalf("Get: got %d, want 100 after the gap closes", got)
	}
}

func TestTrackerOverlappingAndAdjacent(t *testing.T) {
	tr := NewTracker(LSN(0))
	tr.Done(10, 20)
	tr.Done(15, 30) // overlaps the first
	tr.Done(0, 10)  // closes the gap and should merge through to 30
	if got := tr.Get(); got != 30 {
		t.Fatalf("Get: got %d, want 30", got)
	}
}

func TestTrackerWaitUnblocks(t *testing.T) {
	tr := NewTracker(LSN(0))
	var wg sync.WaitGroup
	wg.Add(1)
	done := make(chan struct{})
	go func() {
		defer wg.Done()
		tr.Wait(100)
		close(done)
	}()

	select {
	case <-done:
		t.Fatalf("Wait returned before the mark reached 100")
	case <-time.After(20 * time.Millisecond):
	}

	tr.Done(0, 100)
	wg.Wait()
	select {
	case <-done:
	default:
		t.Fatalf("Wait did not unblock after Done(0, 100)")
	}
}
