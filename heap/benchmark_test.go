package heap

import (
	"testing"
	"unsafe"
)

// =============================================================================
// Reference counting
// =============================================================================

// BenchmarkIncDecRef measures the cost of one incref/decref pair, the
// hottest operation the interpreter performs on every pointer copy.
func BenchmarkIncDecRef(b *testing.B) {
	h := NewHeader(TagInstance, FlagsNone)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		h.IncRef()
		h.DecRef()
	}
}

// BenchmarkIncDecRefParallel measures a contended shared counter.
func BenchmarkIncDecRefParallel(b *testing.B) {
	h := NewHeader(TagInstance, FlagsNone)

	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			h.IncRef()
			h.DecRef()
		}
	})
}

// BenchmarkTryUpgrade measures weak-to-strong promotion.
func BenchmarkTryUpgrade(b *testing.B) {
	rc := RefCountWith(2, 1)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		rc.TryUpgrade()
		rc.DecStrong()
	}
}

// BenchmarkFlagOps measures atomic flag set/clear on the meta word.
func BenchmarkFlagOps(b *testing.B) {
	h := NewHeader(TagList, FlagsNone)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		h.SetFlag(FlagGCMarked)
		h.ClearFlag(FlagGCMarked)
	}
}

// =============================================================================
// Epoch engine
// =============================================================================

// BenchmarkEnterExitEpoch measures the bracket overhead a mutator pays
// around every pointer-holding window.
func BenchmarkEnterExitEpoch(b *testing.B) {
	gc := NewEpochGC(4)
	id, _ := gc.RegisterThread()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		gc.EnterEpoch(id)
		gc.ExitEpoch(id)
	}
}

// BenchmarkDeferAndCollect measures the full defer-free/collect cycle.
func BenchmarkDeferAndCollect(b *testing.B) {
	gc := NewEpochGC(4)
	id, _ := gc.RegisterThread()
	drop := func(unsafe.Pointer) {}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		gc.EnterEpoch(id)
		p := new([4]uint64)
		gc.DeferFree(id, unsafe.Pointer(p), drop)
		gc.ExitEpoch(id)

		if i%1024 == 1023 {
			gc.TryCollect()
		}
	}
	b.StopTimer()
	gc.ForceCollectAll()
}
