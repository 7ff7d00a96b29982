package heap

import "strings"

// ObjectFlags is an 8-bit set describing an object's capabilities and
// lifecycle state. Flags live in the header's atomic meta word, so
// individual bits can be set and cleared concurrently.
type ObjectFlags uint8

const (
	// FlagImmutable marks an object whose payload never changes after
	// construction.
	FlagImmutable ObjectFlags = 1 << iota

	// FlagHashable marks an object usable as a dictionary key.
	FlagHashable

	// FlagIterable marks an object that supports iteration.
	FlagIterable

	// FlagCallable marks an object that can be invoked.
	FlagCallable

	// FlagAwaitable marks an object usable in an await expression.
	FlagAwaitable

	// FlagFinalized is set at most once per object lifetime, by the
	// cleanup path immediately before the destructor runs.
	FlagFinalized

	// FlagGCTracked marks an object registered with the cycle
	// collector.
	FlagGCTracked

	// FlagGCMarked is the cycle collector's trial-deletion mark.
	FlagGCMarked
)

// FlagsNone is the empty flag set.
const FlagsNone ObjectFlags = 0

// Has reports whether every bit in f is set in fl.
func (fl ObjectFlags) Has(f ObjectFlags) bool {
	return fl&f == f
}

// With returns fl with the bits in f set.
func (fl ObjectFlags) With(f ObjectFlags) ObjectFlags {
	return fl | f
}

// Without returns fl with the bits in f cleared.
func (fl ObjectFlags) Without(f ObjectFlags) ObjectFlags {
	return fl &^ f
}

var flagNames = []struct {
	bit  ObjectFlags
	name string
}{
	{FlagImmutable, "IMMUTABLE"},
	{FlagHashable, "HASHABLE"},
	{FlagIterable, "ITERABLE"},
	{FlagCallable, "CALLABLE"},
	{FlagAwaitable, "AWAITABLE"},
	{FlagFinalized, "FINALIZED"},
	{FlagGCTracked, "GC_TRACKED"},
	{FlagGCMarked, "GC_MARKED"},
}

// String returns the set bits joined with "|", or "NONE".
func (fl ObjectFlags) String() string {
	if fl == 0 {
		return "NONE"
	}
	var parts []string
	for _, fn := range flagNames {
		if fl.Has(fn.bit) {
			parts = append(parts, fn.name)
		}
	}
	return strings.Join(parts, "|")
}
