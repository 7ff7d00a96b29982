package heap

import (
	"sync/atomic"
	"unsafe"
)

// ObjectHeader is the fixed-size metadata record embedded as the first
// field of every heap-allocated runtime value. It combines a RefCount
// with an atomic meta word packing the TypeTag byte and ObjectFlags
// byte, and is exactly 16 bytes so the allocator can reach it at a
// statically known offset on every object.
//
// Meta word layout:
//
//	bits 0..7   TypeTag
//	bits 8..15  ObjectFlags
//	bits 16..31 reserved
//
// All operations are safe to call from any thread holding a valid
// pointer, and every mutation is immediately visible to all threads.
// This layer never panics or errors; double-free and
// use-after-decref-to-zero are caller bugs outside its safety
// envelope.
type ObjectHeader struct {
	rc   RefCount
	meta atomic.Uint32
}

// The allocator embeds headers at offset 0 of every object, so the
// size is load-bearing ABI, not just a cache-friendliness target.
var _ [16]struct{} = [unsafe.Sizeof(ObjectHeader{})]struct{}{}

const (
	metaTagMask   uint32 = 0x000000FF
	metaFlagShift        = 8
	metaFlagMask  uint32 = 0x0000FF00
)

// NewHeader returns a header for a freshly allocated object: strong
// count 1, weak count 0, the given tag and initial flags.
func NewHeader(tag TypeTag, flags ObjectFlags) *ObjectHeader {
	h := &ObjectHeader{}
	h.Init(tag, flags)
	return h
}

// Init prepares a header in place, for headers embedded as the first
// field of a larger allocation. The header must not be shared with
// other threads until Init returns.
func (h *ObjectHeader) Init(tag TypeTag, flags ObjectFlags) {
	h.rc.strong.Store(1)
	h.rc.weak.Store(0)
	h.rc.mark.Store(0)
	h.meta.Store(uint32(tag) | uint32(flags)<<metaFlagShift)
}

// TypeTag returns the object's type tag.
func (h *ObjectHeader) TypeTag() TypeTag {
	return TypeTagFromByte(uint8(h.meta.Load() & metaTagMask))
}

// SetTypeTag replaces the type tag, preserving the flag bits.
func (h *ObjectHeader) SetTypeTag(tag TypeTag) {
	for {
		cur := h.meta.Load()
		next := cur&^metaTagMask | uint32(tag)
		if h.meta.CompareAndSwap(cur, next) {
			return
		}
	}
}

// Flags returns a snapshot of the object's flag set.
func (h *ObjectHeader) Flags() ObjectFlags {
	return ObjectFlags((h.meta.Load() & metaFlagMask) >> metaFlagShift)
}

// SetFlag atomically sets the given flag bits.
func (h *ObjectHeader) SetFlag(f ObjectFlags) {
	h.meta.Or(uint32(f) << metaFlagShift)
}

// ClearFlag atomically clears the given flag bits.
func (h *ObjectHeader) ClearFlag(f ObjectFlags) {
	h.meta.And(^(uint32(f) << metaFlagShift))
}

// HasFlag reports whether every bit in f is currently set.
func (h *ObjectHeader) HasFlag(f ObjectFlags) bool {
	return h.Flags().Has(f)
}

// IncRef increments the strong reference count.
func (h *ObjectHeader) IncRef() {
	h.rc.IncStrong()
}

// DecRef decrements the strong reference count and reports whether
// this call performed the 1→0 transition, i.e. whether the caller must
// now destroy the object and hand its memory to the epoch GC.
func (h *ObjectHeader) DecRef() bool {
	return h.rc.DecStrong()
}

// DecRefWithCleanup decrements the strong count and, exactly when the
// count reaches zero, runs cleanup synchronously before returning
// true. FlagFinalized is set immediately before cleanup runs, so it is
// set at most once per object lifetime.
func (h *ObjectHeader) DecRefWithCleanup(cleanup func()) bool {
	if !h.rc.DecStrong() {
		return false
	}
	h.SetFlag(FlagFinalized)
	if cleanup != nil {
		cleanup()
	}
	return true
}

// RefCount returns a snapshot of the strong reference count.
func (h *ObjectHeader) RefCount() uint32 {
	return h.rc.StrongCount()
}

// Counter exposes the underlying RefCount for collaborators that need
// the weak/upgrade/cycle-mark protocol directly.
func (h *ObjectHeader) Counter() *RefCount {
	return &h.rc
}

// ---------------------------------------------------------------------------
// GC bookkeeping
// ---------------------------------------------------------------------------

// GCMark sets the cycle collector's trial-deletion mark.
func (h *ObjectHeader) GCMark() { h.SetFlag(FlagGCMarked) }

// GCUnmark clears the trial-deletion mark.
func (h *ObjectHeader) GCUnmark() { h.ClearFlag(FlagGCMarked) }

// IsGCMarked reports whether the trial-deletion mark is set.
func (h *ObjectHeader) IsGCMarked() bool { return h.HasFlag(FlagGCMarked) }

// GCTrack registers the object with the cycle collector.
func (h *ObjectHeader) GCTrack() { h.SetFlag(FlagGCTracked) }

// GCUntrack removes the object from cycle-collector tracking.
func (h *ObjectHeader) GCUntrack() { h.ClearFlag(FlagGCTracked) }

// IsGCTracked reports whether the object is cycle-collector tracked.
func (h *ObjectHeader) IsGCTracked() bool { return h.HasFlag(FlagGCTracked) }
