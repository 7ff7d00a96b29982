package heap

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
	"unsafe"
)

// ---------------------------------------------------------------------------
// Registration
// ---------------------------------------------------------------------------

func TestRegisterThreadBoundedCapacity(t *testing.T) {
	gc := NewEpochGC(4)

	ids := make([]ThreadID, 0, 4)
	for i := 0; i < 4; i++ {
		id, ok := gc.RegisterThread()
		if !ok {
			t.Fatalf("registration %d failed with free slots", i)
		}
		ids = append(ids, id)
	}

	if _, ok := gc.RegisterThread(); ok {
		t.Error("5th registration should fail closed")
	}
	if gc.ActiveThreads() != 4 {
		t.Errorf("ActiveThreads() = %d, want 4", gc.ActiveThreads())
	}

	// Releasing a slot makes registration possible again.
	gc.UnregisterThread(ids[2])
	if id, ok := gc.RegisterThread(); !ok {
		t.Error("registration should succeed after unregister")
	} else if id != ids[2] {
		t.Errorf("reclaimed slot %d, want %d", id, ids[2])
	}
}

func TestConcurrentRegistration(t *testing.T) {
	const capacity = 8
	gc := NewEpochGC(capacity)

	var wg sync.WaitGroup
	var granted atomic.Int32
	seen := make([]atomic.Int32, capacity)

	for i := 0; i < capacity*4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if id, ok := gc.RegisterThread(); ok {
				granted.Add(1)
				seen[id].Add(1)
			}
		}()
	}
	wg.Wait()

	if granted.Load() != capacity {
		t.Errorf("granted %d registrations, want %d", granted.Load(), capacity)
	}
	for i := range seen {
		if seen[i].Load() != 1 {
			t.Errorf("slot %d claimed %d times, want exactly 1", i, seen[i].Load())
		}
	}
}

// ---------------------------------------------------------------------------
// Deferred reclamation
// ---------------------------------------------------------------------------

// deferNode allocates a dummy object and defers it, bumping count on
// drop.
func deferNode(gc *EpochGC, id ThreadID, count *atomic.Int64) {
	p := new([4]uint64)
	gc.DeferFree(id, unsafe.Pointer(p), func(unsafe.Pointer) {
		count.Add(1)
	})
}

func TestTryCollectRespectsActiveBracket(t *testing.T) {
	gc := NewEpochGC(4)
	var dropped atomic.Int64

	producer, _ := gc.RegisterThread()
	reader, _ := gc.RegisterThread()

	// The reader pins the current epoch: anything deferred at or after
	// its entry must survive collection.
	gc.EnterEpoch(reader)

	gc.EnterEpoch(producer)
	deferNode(gc, producer, &dropped)
	gc.ExitEpoch(producer)

	if freed := gc.TryCollect(); freed != 0 {
		t.Fatalf("TryCollect freed %d entries while a bracket pinned their epoch", freed)
	}
	if dropped.Load() != 0 {
		t.Fatal("drop ran while the entry was still observable")
	}
	if gc.PendingCount() != 1 {
		t.Errorf("PendingCount() = %d, want 1", gc.PendingCount())
	}

	// Once the reader exits, the entry becomes reclaimable.
	gc.ExitEpoch(reader)
	if freed := gc.TryCollect(); freed != 1 {
		t.Errorf("TryCollect freed %d entries, want 1", freed)
	}
	if dropped.Load() != 1 {
		t.Errorf("drop count = %d, want 1", dropped.Load())
	}
	if gc.PendingCount() != 0 {
		t.Errorf("PendingCount() = %d, want 0", gc.PendingCount())
	}
}

func TestTryCollectIdleRegistryDrainsBacklog(t *testing.T) {
	gc := NewEpochGC(2)
	var dropped atomic.Int64

	id, _ := gc.RegisterThread()
	for i := 0; i < 100; i++ {
		gc.EnterEpoch(id)
		deferNode(gc, id, &dropped)
		gc.ExitEpoch(id)
	}

	// Registered-but-idle slots impose no constraint.
	if freed := gc.TryCollect(); freed != 100 {
		t.Errorf("TryCollect freed %d entries, want 100", freed)
	}
	if dropped.Load() != 100 {
		t.Errorf("drop count = %d, want 100", dropped.Load())
	}
}

func TestOwnBracketPinsOwnSubmission(t *testing.T) {
	gc := NewEpochGC(2)
	var dropped atomic.Int64

	id, _ := gc.RegisterThread()
	gc.EnterEpoch(id)
	deferNode(gc, id, &dropped)

	if freed := gc.TryCollect(); freed != 0 {
		t.Errorf("entry freed while submitter still in its bracket: %d", freed)
	}

	gc.ExitEpoch(id)
	if freed := gc.TryCollect(); freed != 1 {
		t.Errorf("TryCollect freed %d entries after exit, want 1", freed)
	}
}

func TestForceCollectAllIgnoresEpochSafety(t *testing.T) {
	gc := NewEpochGC(2)
	var dropped atomic.Int64

	id, _ := gc.RegisterThread()
	gc.EnterEpoch(id)
	for i := 0; i < 10; i++ {
		deferNode(gc, id, &dropped)
	}

	// Still in a bracket, but the caller vouches for teardown.
	if freed := gc.ForceCollectAll(); freed != 10 {
		t.Errorf("ForceCollectAll freed %d, want 10", freed)
	}
	if dropped.Load() != 10 {
		t.Errorf("drop count = %d, want 10", dropped.Load())
	}
	if gc.PendingCount() != 0 {
		t.Errorf("PendingCount() = %d, want 0", gc.PendingCount())
	}
}

func TestEpochAdvancesOnCollect(t *testing.T) {
	gc := NewEpochGC(1)
	before := gc.CurrentEpoch()
	gc.TryCollect()
	if gc.CurrentEpoch() != before+1 {
		t.Errorf("CurrentEpoch() = %d after collect, want %d", gc.CurrentEpoch(), before+1)
	}
}

// ---------------------------------------------------------------------------
// Concurrency
// ---------------------------------------------------------------------------

func TestConcurrentProducersAndCollector(t *testing.T) {
	const (
		producers   = 6
		opsPerProd  = 5000
		totalSubmit = producers * opsPerProd
	)

	gc := NewEpochGC(producers + 2)
	var dropped atomic.Int64
	var wg sync.WaitGroup

	stop := make(chan struct{})
	var collectors sync.WaitGroup
	collectors.Add(1)
	go func() {
		defer collectors.Done()
		for {
			select {
			case <-stop:
				return
			default:
				gc.TryCollect()
			}
		}
	}()

	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, ok := gc.RegisterThread()
			if !ok {
				t.Error("producer failed to register")
				return
			}
			defer gc.UnregisterThread(id)

			for i := 0; i < opsPerProd; i++ {
				gc.EnterEpoch(id)
				deferNode(gc, id, &dropped)
				gc.ExitEpoch(id)
			}
		}()
	}

	wg.Wait()
	close(stop)
	collectors.Wait()

	// Final drain: everything submitted must be dropped exactly once.
	gc.ForceCollectAll()
	if dropped.Load() != totalSubmit {
		t.Errorf("dropped %d entries, want exactly %d", dropped.Load(), totalSubmit)
	}
	if gc.PendingCount() != 0 {
		t.Errorf("PendingCount() = %d after drain, want 0", gc.PendingCount())
	}
}

func TestConcurrentEnterExitDuringCollection(t *testing.T) {
	gc := NewEpochGC(8)
	deadline := time.Now().Add(200 * time.Millisecond)

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, ok := gc.RegisterThread()
			if !ok {
				t.Error("worker failed to register")
				return
			}
			for time.Now().Before(deadline) {
				gc.EnterEpoch(id)
				gc.ExitEpoch(id)
			}
			gc.UnregisterThread(id)
		}()
	}

	for time.Now().Before(deadline) {
		gc.TryCollect()
	}
	wg.Wait()
}

// ---------------------------------------------------------------------------
// Pause bound
// ---------------------------------------------------------------------------

func TestTryCollectPauseBound(t *testing.T) {
	const (
		backlog   = 50000
		pauseCeil = 10 * time.Millisecond
	)

	gc := NewEpochGC(4)
	var dropped atomic.Int64

	id, _ := gc.RegisterThread()
	for i := 0; i < backlog; i++ {
		gc.EnterEpoch(id)
		deferNode(gc, id, &dropped)
		gc.ExitEpoch(id)
	}

	var maxPause time.Duration
	for dropped.Load() < backlog {
		start := time.Now()
		gc.TryCollect()
		if pause := time.Since(start); pause > maxPause {
			maxPause = pause
		}
	}

	if maxPause > pauseCeil {
		t.Errorf("max TryCollect pause %v exceeded %v ceiling", maxPause, pauseCeil)
	}
}
