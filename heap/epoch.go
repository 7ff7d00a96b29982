package heap

import (
	"sync/atomic"
	"unsafe"
)

// EpochGC is a bounded-capacity epoch-based reclamation engine.
//
// Mutator threads register for a slot, bracket every window in which
// they may hold raw pointers into managed memory with
// EnterEpoch/ExitEpoch, and submit allocations whose strong count
// reached zero via DeferFree. A collector (any cooperating goroutine)
// calls TryCollect, which computes the minimum epoch still visible to
// an in-bracket thread and reclaims every deferred entry submitted
// strictly before it: no thread can still observe that memory.
//
// The engine is lock-free throughout. Slots are claimed and released
// with CAS, epoch publication is a single atomic store, and deferred
// entries live in Treiber stacks bucketed by submission epoch so a
// collection pass touches only currently-pending entries, never
// everything ever deferred. Go's sync/atomic gives sequentially
// consistent ordering, which covers the release-on-publish /
// acquire-on-scan pairing the watermark argument needs.
//
// Bracket discipline is explicit pairing: callers invoke EnterEpoch
// and ExitEpoch as matched statements (typically
// `gc.EnterEpoch(id); defer gc.ExitEpoch(id)`). There is no guard
// object.
type EpochGC struct {
	globalEpoch atomic.Uint64
	slots       []gcSlot
	buckets     [numEpochBuckets]atomic.Pointer[deferred]
	pending     atomic.Int64
}

// ThreadID is a registered thread's slot handle.
type ThreadID int

// numEpochBuckets is the number of Treiber stacks deferred entries are
// sharded into by submission epoch. Entries carry their exact epoch,
// so modular collisions between distant epochs are benign.
const numEpochBuckets = 16

// gcSlot is one entry in the fixed thread-slot table. Padded to a
// cache line so mutators publishing epochs do not false-share.
type gcSlot struct {
	occupied atomic.Uint32
	_        uint32
	epoch    atomic.Uint64 // 0 = registered but not in a bracket
	_        [48]byte
}

// deferred is one reclamation request: a raw allocation, its drop
// action, and the epoch it was submitted at.
type deferred struct {
	ptr   unsafe.Pointer
	drop  func(unsafe.Pointer)
	epoch uint64
	next  *deferred
}

// NewEpochGC constructs an engine with a fixed thread-slot capacity.
// Capacity never grows; RegisterThread fails closed once all slots are
// taken.
func NewEpochGC(capacity int) *EpochGC {
	if capacity < 1 {
		capacity = 1
	}
	gc := &EpochGC{slots: make([]gcSlot, capacity)}
	// Epoch 0 is reserved to mean "not in a bracket".
	gc.globalEpoch.Store(1)
	return gc
}

// ---------------------------------------------------------------------------
// Thread registration
// ---------------------------------------------------------------------------

// RegisterThread claims a slot and returns its handle. It returns
// ok=false once all slots are occupied; the table never grows and the
// call never blocks.
func (gc *EpochGC) RegisterThread() (ThreadID, bool) {
	for i := range gc.slots {
		if gc.slots[i].occupied.CompareAndSwap(0, 1) {
			gc.slots[i].epoch.Store(0)
			return ThreadID(i), true
		}
	}
	return -1, false
}

// UnregisterThread releases a slot back to the pool. The thread must
// not be inside an epoch bracket.
func (gc *EpochGC) UnregisterThread(id ThreadID) {
	s := &gc.slots[id]
	s.epoch.Store(0)
	s.occupied.Store(0)
}

// EnterEpoch publishes the calling thread's participation in the
// current global epoch. While inside the bracket the thread may hold
// raw pointers into managed memory; it must not retain them past the
// matching ExitEpoch without its own strong reference.
//
// The store is re-checked against the global epoch so a thread
// descheduled between load and store cannot publish an epoch so stale
// it stalls reclamation indefinitely.
func (gc *EpochGC) EnterEpoch(id ThreadID) {
	s := &gc.slots[id]
	for {
		e := gc.globalEpoch.Load()
		s.epoch.Store(e)
		if gc.globalEpoch.Load() == e {
			return
		}
	}
}

// ExitEpoch retracts the thread's epoch publication, releasing its
// constraint on the reclamation watermark.
func (gc *EpochGC) ExitEpoch(id ThreadID) {
	gc.slots[id].epoch.Store(0)
}

// ---------------------------------------------------------------------------
// Deferred reclamation
// ---------------------------------------------------------------------------

// DeferFree submits a raw allocation for deferred reclamation, tagged
// with the submitting thread's currently published epoch (or the
// global epoch if the thread is between brackets).
//
// Ownership of ptr transfers to the collector at this call; the caller
// must never touch ptr again. drop runs exactly once, from whichever
// goroutine performs the reclaiming collection.
func (gc *EpochGC) DeferFree(id ThreadID, ptr unsafe.Pointer, drop func(unsafe.Pointer)) {
	epoch := gc.slots[id].epoch.Load()
	if epoch == 0 {
		epoch = gc.globalEpoch.Load()
	}
	gc.push(&deferred{ptr: ptr, drop: drop, epoch: epoch})
}

// push inserts an entry into its epoch bucket with a Treiber CAS.
func (gc *EpochGC) push(e *deferred) {
	bucket := &gc.buckets[e.epoch%numEpochBuckets]
	for {
		head := bucket.Load()
		e.next = head
		if bucket.CompareAndSwap(head, e) {
			gc.pending.Add(1)
			return
		}
	}
}

// TryCollect advances the global epoch, computes the minimum epoch
// still published by an in-bracket thread, and reclaims every deferred
// entry submitted strictly before that watermark. It never blocks and
// is safe to run concurrently with mutators entering/exiting brackets,
// with new registrations, and with other collectors: each bucket is
// detached atomically, so an entry is dropped exactly once.
//
// Returns the number of entries reclaimed.
func (gc *EpochGC) TryCollect() int {
	gc.globalEpoch.Add(1)
	watermark := gc.minActiveEpoch()

	freed := 0
	for i := range gc.buckets {
		head := gc.buckets[i].Swap(nil)
		if head == nil {
			continue
		}

		// Survivors are re-linked locally and spliced back in one CAS
		// loop, so concurrent pushes to the same bucket are preserved.
		var keepHead, keepTail *deferred
		for e := head; e != nil; {
			next := e.next
			if e.epoch < watermark {
				e.drop(e.ptr)
				freed++
			} else {
				e.next = keepHead
				keepHead = e
				if keepTail == nil {
					keepTail = e
				}
			}
			e = next
		}
		if keepHead != nil {
			gc.splice(&gc.buckets[i], keepHead, keepTail)
		}
	}

	if freed > 0 {
		gc.pending.Add(int64(-freed))
	}
	return freed
}

// splice pushes a pre-linked chain back onto a bucket.
func (gc *EpochGC) splice(bucket *atomic.Pointer[deferred], head, tail *deferred) {
	for {
		cur := bucket.Load()
		tail.next = cur
		if bucket.CompareAndSwap(cur, head) {
			return
		}
	}
}

// ForceCollectAll reclaims every deferred entry unconditionally,
// ignoring epoch safety. It is valid only when the caller guarantees
// no other thread can observe any of the collected memory, e.g. at
// process or test teardown. Returns the number of entries reclaimed.
func (gc *EpochGC) ForceCollectAll() int {
	freed := 0
	for i := range gc.buckets {
		for e := gc.buckets[i].Swap(nil); e != nil; e = e.next {
			e.drop(e.ptr)
			freed++
		}
	}
	if freed > 0 {
		gc.pending.Add(int64(-freed))
	}
	return freed
}

// minActiveEpoch scans the slot table for the smallest epoch published
// by an occupied, in-bracket slot. Unoccupied and idle slots impose no
// constraint; with no active brackets the watermark is the current
// global epoch.
func (gc *EpochGC) minActiveEpoch() uint64 {
	watermark := gc.globalEpoch.Load()
	for i := range gc.slots {
		s := &gc.slots[i]
		if s.occupied.Load() == 0 {
			continue
		}
		if e := s.epoch.Load(); e != 0 && e < watermark {
			watermark = e
		}
	}
	return watermark
}

// ---------------------------------------------------------------------------
// Observability
// ---------------------------------------------------------------------------

// CurrentEpoch returns the current global epoch.
func (gc *EpochGC) CurrentEpoch() uint64 {
	return gc.globalEpoch.Load()
}

// Capacity returns the fixed thread-slot capacity.
func (gc *EpochGC) Capacity() int {
	return len(gc.slots)
}

// ActiveThreads returns the number of currently occupied slots.
func (gc *EpochGC) ActiveThreads() int {
	n := 0
	for i := range gc.slots {
		if gc.slots[i].occupied.Load() != 0 {
			n++
		}
	}
	return n
}

// PendingCount returns the number of deferred entries awaiting
// reclamation.
func (gc *EpochGC) PendingCount() int {
	return int(gc.pending.Load())
}
