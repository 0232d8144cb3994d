package docrep

// FieldKind is the closed set of wire field kinds (§4.6). It is a sum type
// in spirit: every place that dispatches on it is an exhaustive switch, not
// an open interface, so adding a new kind is a compile-time-visible change
// everywhere it matters.
type FieldKind uint8

const (
	// KindScalar carries any MessagePack-representable value unchanged.
	KindScalar FieldKind = iota
	// KindDateTime is a Scalar specialized to ISO-8601 text on the wire and
	// time.Time in memory.
	KindDateTime
	// KindText is a Scalar specialized to an encoded byte string on the
	// wire and a Go string in memory.
	KindText
	// KindSlice is a half-open interval, either into a target store
	// (annotation slice) or into externally-addressed bytes (byteslice).
	KindSlice
	// KindPointer references a single annotation in a target store.
	KindPointer
	// KindPointerCollection references a list of annotations in a target
	// store.
	KindPointerCollection
	// KindSelfPointer references a single annotation in the store that
	// contains the field's own annotation.
	KindSelfPointer
	// KindSelfPointerCollection references a list of annotations in the
	// store that contains the field's own annotation.
	KindSelfPointerCollection
)

func (k FieldKind) String() string {
	switch k {
	case KindScalar:
		return "Scalar"
	case KindDateTime:
		return "DateTime"
	case KindText:
		return "Text"
	case KindSlice:
		return "Slice"
	case KindPointer:
		return "Pointer"
	case KindPointerCollection:
		return "PointerCollection"
	case KindSelfPointer:
		return "SelfPointer"
	case KindSelfPointerCollection:
		return "SelfPointerCollection"
	default:
		return "Unknown"
	}
}

// isPointerLike reports whether the kind is a plain Pointer or
// PointerCollection. Both always carry a POINTER_TO store id on the wire;
// self-pointers resolve their target from the enclosing store at
// decode/encode time and never carry POINTER_TO, and a typed Slice also
// carries POINTER_TO but is flagged IS_SLICE and is not covered here.
func (k FieldKind) isPointerLike() bool {
	return k == KindPointer || k == KindPointerCollection
}

func (k FieldKind) isSelfPointer() bool {
	return k == KindSelfPointer || k == KindSelfPointerCollection
}

func (k FieldKind) isCollection() bool {
	return k == KindPointerCollection || k == KindSelfPointerCollection
}

func (k FieldKind) isSlice() bool {
	return k == KindSlice
}

// needsTargetClass reports whether the kind is required to resolve to a
// specific target store at schema-build time (§4.2): Pointer and
// PointerCollection. A Slice needs one only when it names a target class,
// which the kind alone does not tell, so resolveField checks that case
// itself. SelfPointer kinds resolve against whichever store they are
// read/written from, never at schema-build time.
func (k FieldKind) needsTargetClass() bool {
	return k == KindPointer || k == KindPointerCollection
}

// Span is the in-memory value of a Slice field: a half-open interval
// [Start, Start+Length). For an annotation slice, Start/Length index the
// target store; for a byteslice, they index some externally-addressed
// bytes the schema does not describe.
type Span struct {
	Start  int
	Length int
}

// End returns the exclusive end of the interval.
func (s Span) End() int { return s.Start + s.Length }
