package heap

import (
	"math"
	"sync/atomic"
)

// RefCount is a lock-free strong/weak reference counter with an
// idempotent cycle-mark bit.
//
// Every operation is a single atomic instruction or a bounded CAS
// retry loop; nothing here blocks. Go's sync/atomic operations are
// sequentially consistent, which is stronger than the release/acquire
// pairing the decrement-to-zero handoff requires: the thread that
// observes DecStrong return true is guaranteed to see every payload
// mutation that happened before the matching decrements.
//
// Counts saturate rather than wrap: once either counter reaches
// math.MaxUint32 it is pinned there and the object becomes immortal.
// A pinned count is preferable to the premature free a silent
// wraparound could cause.
type RefCount struct {
	strong atomic.Uint32
	weak   atomic.Uint32
	mark   atomic.Uint32
}

// refCountSaturated is the pinned value for an overflowed counter.
const refCountSaturated = math.MaxUint32

// NewRefCount returns a counter for a freshly allocated object:
// strong=1, weak=0, unmarked.
func NewRefCount() *RefCount {
	rc := &RefCount{}
	rc.strong.Store(1)
	return rc
}

// RefCountWith returns a counter with explicit initial counts.
// Intended for tests and for adopting objects with preexisting
// references.
func RefCountWith(strong, weak uint32) *RefCount {
	rc := &RefCount{}
	rc.strong.Store(strong)
	rc.weak.Store(weak)
	return rc
}

// IncStrong atomically increments the strong count. It cannot fail;
// at saturation the count stays pinned.
func (rc *RefCount) IncStrong() {
	incSaturating(&rc.strong)
}

// IncWeak atomically increments the weak count. It cannot fail; at
// saturation the count stays pinned.
func (rc *RefCount) IncWeak() {
	incSaturating(&rc.weak)
}

// DecStrong atomically decrements the strong count and reports whether
// this call performed the 1→0 transition. It returns true exactly once
// per object: the caller that sees true owns the object's destruction.
//
// Decrementing a counter that is already zero is a caller bug; the
// count stays at zero and false is returned rather than underflowing.
// A saturated counter is pinned and never reaches zero.
func (rc *RefCount) DecStrong() bool {
	return decSaturating(&rc.strong)
}

// DecWeak atomically decrements the weak count. Underflow and
// saturation behave as for DecStrong.
func (rc *RefCount) DecWeak() {
	decSaturating(&rc.weak)
}

// StrongCount returns a snapshot of the strong count. The value may be
// stale by the time the caller looks at it; only the thread that just
// observed DecStrong return true may treat it as exact.
func (rc *RefCount) StrongCount() uint32 {
	return rc.strong.Load()
}

// WeakCount returns a snapshot of the weak count, with the same
// staleness caveat as StrongCount.
func (rc *RefCount) WeakCount() uint32 {
	return rc.weak.Load()
}

// TryUpgrade attempts to promote a weak reference to a strong one.
// It increments the strong count and returns true iff the count was
// nonzero at the moment of the CAS; a dead object is never
// resurrected.
func (rc *RefCount) TryUpgrade() bool {
	for {
		cur := rc.strong.Load()
		if cur == 0 {
			return false
		}
		if cur == refCountSaturated {
			return true // pinned, already immortal
		}
		if rc.strong.CompareAndSwap(cur, cur+1) {
			return true
		}
	}
}

// MarkForCycle atomically claims this object for trial deletion.
// It returns true only on the transition from unmarked to marked;
// every subsequent call before Unmark returns false.
func (rc *RefCount) MarkForCycle() bool {
	return rc.mark.CompareAndSwap(0, 1)
}

// Unmark releases the trial-deletion claim.
func (rc *RefCount) Unmark() {
	rc.mark.Store(0)
}

// IsMarked reports whether the object is currently claimed for trial
// deletion.
func (rc *RefCount) IsMarked() bool {
	return rc.mark.Load() != 0
}

// incSaturating adds one to the counter unless it is pinned at the
// saturation value.
func incSaturating(c *atomic.Uint32) {
	for {
		cur := c.Load()
		if cur == refCountSaturated {
			return
		}
		if c.CompareAndSwap(cur, cur+1) {
			return
		}
	}
}

// decSaturating subtracts one from the counter and reports the 1→0
// transition. Pinned and already-zero counters are left untouched.
func decSaturating(c *atomic.Uint32) bool {
	for {
		cur := c.Load()
		if cur == refCountSaturated || cur == 0 {
			return false
		}
		if c.CompareAndSwap(cur, cur-1) {
			return cur == 1
		}
	}
}
