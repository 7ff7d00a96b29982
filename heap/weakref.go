package heap

import "sync"

// ---------------------------------------------------------------------------
// WeakRef: a reference that does not keep its object alive
// ---------------------------------------------------------------------------

// WeakRef is a weak handle to an object's header. It holds a weak
// count on the object and can attempt promotion to a strong reference
// while the object is still live. Promotion goes through
// RefCount.TryUpgrade, so a dead object is never resurrected.
//
// Optionally a finalizer callback can be attached; the party that
// destroys the object calls Clear, which fires the callback once.
type WeakRef struct {
	header    *ObjectHeader
	mu        sync.Mutex // protects cleared and finalizer
	cleared   bool
	finalizer func()
}

// NewWeakRef creates a weak reference to the object behind header,
// incrementing its weak count. The caller must release the handle with
// Release when done.
func NewWeakRef(header *ObjectHeader) *WeakRef {
	header.Counter().IncWeak()
	return &WeakRef{header: header}
}

// Upgrade attempts to promote this weak reference to a strong one.
// On success the object's strong count has been incremented and the
// caller owns a strong reference it must DecRef later. On failure the
// object is already dead.
func (wr *WeakRef) Upgrade() bool {
	wr.mu.Lock()
	cleared := wr.cleared
	wr.mu.Unlock()
	if cleared {
		return false
	}
	return wr.header.Counter().TryUpgrade()
}

// IsAlive reports whether the target can still be upgraded. The answer
// may be stale by the time the caller acts on it; use Upgrade when the
// object is actually needed.
func (wr *WeakRef) IsAlive() bool {
	wr.mu.Lock()
	cleared := wr.cleared
	wr.mu.Unlock()
	return !cleared && wr.header.RefCount() > 0
}

// SetFinalizer attaches a callback to be invoked when the target is
// cleared. Replaces any previous callback.
func (wr *WeakRef) SetFinalizer(fn func()) {
	wr.mu.Lock()
	wr.finalizer = fn
	wr.mu.Unlock()
}

// Clear marks the target as destroyed and fires the finalizer, if any.
// Called by the owner that just observed DecRef return true. Clearing
// twice is a no-op.
func (wr *WeakRef) Clear() {
	wr.mu.Lock()
	if wr.cleared {
		wr.mu.Unlock()
		return
	}
	wr.cleared = true
	fn := wr.finalizer
	wr.finalizer = nil
	wr.mu.Unlock()

	if fn != nil {
		fn()
	}
}

// Release drops this handle's weak count. The WeakRef must not be used
// after Release.
func (wr *WeakRef) Release() {
	wr.header.Counter().DecWeak()
}
