package heap

// TypeTag identifies the runtime kind of a heap value in a single byte.
//
// The tag is stored in every ObjectHeader, so the set is closed and
// fits in 8 bits. Decoding is total: any byte that does not match a
// known variant decodes to TagCustom rather than failing, so a header
// read from arbitrary memory can never produce an invalid tag.
type TypeTag uint8

const (
	TagNone TypeTag = iota
	TagBool
	TagInt
	TagFloat
	TagStr
	TagBytes
	TagByteArray
	TagList
	TagTuple
	TagDict
	TagSet
	TagFrozenSet
	TagSlice
	TagRange
	TagIterator
	TagFunction
	TagBoundMethod
	TagClosure
	TagCode
	TagModule
	TagClass
	TagInstance
	TagException
	TagGenerator
	TagCoroutine
	TagAsyncGenerator
	TagCell
	TagWeakref
	TagBuffer
	TagFile

	// numTypeTags is one past the last assigned ordinal tag.
	numTypeTags

	// TagCustom is the catch-all for extension-defined types and for
	// any byte value outside the known range.
	TagCustom TypeTag = 255
)

// TypeTagFromByte decodes a raw byte into a TypeTag.
// Unknown values map to TagCustom; this function never fails.
func TypeTagFromByte(b uint8) TypeTag {
	t := TypeTag(b)
	if t < numTypeTags {
		return t
	}
	return TagCustom
}

var typeTagNames = [numTypeTags]string{
	TagNone:           "None",
	TagBool:           "Bool",
	TagInt:            "Int",
	TagFloat:          "Float",
	TagStr:            "Str",
	TagBytes:          "Bytes",
	TagByteArray:      "ByteArray",
	TagList:           "List",
	TagTuple:          "Tuple",
	TagDict:           "Dict",
	TagSet:            "Set",
	TagFrozenSet:      "FrozenSet",
	TagSlice:          "Slice",
	TagRange:          "Range",
	TagIterator:       "Iterator",
	TagFunction:       "Function",
	TagBoundMethod:    "BoundMethod",
	TagClosure:        "Closure",
	TagCode:           "Code",
	TagModule:         "Module",
	TagClass:          "Class",
	TagInstance:       "Instance",
	TagException:      "Exception",
	TagGenerator:      "Generator",
	TagCoroutine:      "Coroutine",
	TagAsyncGenerator: "AsyncGenerator",
	TagCell:           "Cell",
	TagWeakref:        "Weakref",
	TagBuffer:         "Buffer",
	TagFile:           "File",
}

// String returns the variant name, or "Custom" for anything outside
// the known range.
func (t TypeTag) String() string {
	if t < numTypeTags {
		return typeTagNames[t]
	}
	return "Custom"
}
