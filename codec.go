package docrep

import (
	"time"

	"github.com/sirupsen/logrus"
	"github.com/vmihailenco/msgpack/v5"
)

// decodeFieldValue decodes one <wire_val> according to f.Defn.Kind,
// resolving Pointer/PointerCollection against storesByID (indexed by
// runtime store id, populated for every store before any instance is
// filled in -- see Reader.Read) and SelfPointer/SelfPointerCollection
// against self, the store the owning annotation lives in (§4.2, §4.6).
//
// It must only be called for a non-lazy field (f.Defn != nil); lazy values
// are captured as raw bytes instead, regardless of shape.
func decodeFieldValue(dec *msgpack.Decoder, f *RTField, storesByID []*Store, self *Store, logger *logrus.Logger) (any, error) {
	switch f.Defn.Kind {
	case KindScalar:
		return dec.DecodeInterface()

	case KindDateTime:
		s, err := dec.DecodeString()
		if err != nil {
			return nil, err
		}
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			logger.Warnf("docrep: field %q: malformed datetime %q, decoding as null", f.Name, s)
			return nil, nil
		}
		return t, nil

	case KindText:
		return dec.DecodeString()

	case KindSlice:
		return decodeSpan(dec)

	case KindPointer:
		idx, err := dec.DecodeInt()
		if err != nil {
			return nil, err
		}
		return resolvePointer(storesByID, f.PointerTo, idx)

	case KindPointerCollection:
		return decodePointerList(dec, storesByID, f.PointerTo)

	case KindSelfPointer:
		idx, err := dec.DecodeInt()
		if err != nil {
			return nil, err
		}
		if self == nil {
			return nil, newReaderError("self-pointer field %q decoded outside a store", f.Name)
		}
		return resolvePointerIn(self, idx)

	case KindSelfPointerCollection:
		if self == nil {
			return nil, newReaderError("self-pointer field %q decoded outside a store", f.Name)
		}
		n, err := dec.DecodeArrayLen()
		if err != nil {
			return nil, err
		}
		out := make([]*Annotation, 0, n)
		for i := 0; i < n; i++ {
			idx, err := dec.DecodeInt()
			if err != nil {
				return nil, err
			}
			ann, err := resolvePointerIn(self, idx)
			if err != nil {
				return nil, err
			}
			out = append(out, ann)
		}
		return out, nil

	default:
		return nil, newReaderError("unhandled field kind %s", f.Defn.Kind)
	}
}

func decodeSpan(dec *msgpack.Decoder) (Span, error) {
	n, err := dec.DecodeArrayLen()
	if err != nil {
		return Span{}, err
	}
	if n != 2 {
		return Span{}, newReaderError("slice value must have 2 elements, got %d", n)
	}
	start, err := dec.DecodeInt()
	if err != nil {
		return Span{}, err
	}
	length, err := dec.DecodeInt()
	if err != nil {
		return Span{}, err
	}
	return Span{Start: start, Length: length}, nil
}

func decodePointerList(dec *msgpack.Decoder, storesByID []*Store, storeID *int) ([]*Annotation, error) {
	n, err := dec.DecodeArrayLen()
	if err != nil {
		return nil, err
	}
	out := make([]*Annotation, 0, n)
	for i := 0; i < n; i++ {
		idx, err := dec.DecodeInt()
		if err != nil {
			return nil, err
		}
		ann, err := resolvePointer(storesByID, storeID, idx)
		if err != nil {
			return nil, err
		}
		out = append(out, ann)
	}
	return out, nil
}

func resolvePointer(storesByID []*Store, storeID *int, idx int) (*Annotation, error) {
	if storeID == nil {
		return nil, newReaderError("pointer field has no target store id")
	}
	if *storeID < 0 || *storeID >= len(storesByID) {
		return nil, newReaderError("pointer targets store id %d, out of range", *storeID)
	}
	return resolvePointerIn(storesByID[*storeID], idx)
}

func resolvePointerIn(store *Store, idx int) (*Annotation, error) {
	if idx < 0 || idx >= store.Len() {
		return nil, newReaderError("pointer index %d out of range for store %q (len %d)", idx, store.name, store.Len())
	}
	return store.At(idx), nil
}

// encodeFieldValue is decodeFieldValue's inverse: it packs an in-memory
// value for field f (whose Kind is f.Defn.Kind) onto enc. target is the
// store a Pointer/PointerCollection value must belong to; self is the
// store a SelfPointer/SelfPointerCollection value must belong to. Field
// kinds that don't need one ignore them.
func encodeFieldValue(enc *msgpack.Encoder, f *RTField, value any, target, self *Store) error {
	switch f.Defn.Kind {
	case KindScalar:
		if value == nil {
			return enc.EncodeNil()
		}
		return enc.Encode(value)

	case KindDateTime:
		t, ok := value.(time.Time)
		if !ok {
			return enc.EncodeNil()
		}
		return enc.EncodeString(t.UTC().Format(time.RFC3339))

	case KindText:
		s, _ := value.(string)
		return enc.EncodeString(s)

	case KindSlice:
		span, _ := value.(Span)
		return encodeSpan(enc, span)

	case KindPointer:
		ann, _ := value.(*Annotation)
		idx, err := wirePointerIndex(ann, target)
		if err != nil {
			return err
		}
		return enc.EncodeInt(int64(idx))

	case KindPointerCollection:
		anns, _ := value.([]*Annotation)
		return encodeWirePointerList(enc, anns, target)

	case KindSelfPointer:
		ann, _ := value.(*Annotation)
		idx, err := wirePointerIndex(ann, self)
		if err != nil {
			return err
		}
		return enc.EncodeInt(int64(idx))

	case KindSelfPointerCollection:
		anns, _ := value.([]*Annotation)
		return encodeWirePointerList(enc, anns, self)

	default:
		return newWriterError("unhandled field kind %s", f.Defn.Kind)
	}
}

func encodeWirePointerList(enc *msgpack.Encoder, anns []*Annotation, store *Store) error {
	if err := enc.EncodeArrayLen(len(anns)); err != nil {
		return err
	}
	for _, ann := range anns {
		idx, err := wirePointerIndex(ann, store)
		if err != nil {
			return err
		}
		if err := enc.EncodeInt(int64(idx)); err != nil {
			return err
		}
	}
	return nil
}

// wirePointerIndex validates and returns the wire index for a pointer
// value, matching the source model's exact two checks and messages
// (schwa/dr/fields_core.py _to_wire_pointer): the annotation must carry an
// index at all, and the store it claims to be a member of must actually
// hold it at that index.
func wirePointerIndex(ann *Annotation, store *Store) (int, error) {
	if ann == nil {
		return 0, newWriterError("cannot serialize a pointer which is not in a store (nil)")
	}
	idx, ok := ann.Index()
	if !ok {
		return 0, newWriterError("cannot serialize pointer to %v as it is not not in any store", ann)
	}
	if store == nil || idx < 0 || idx >= store.Len() || store.At(idx) != ann {
		name := "<nil>"
		if store != nil {
			name = store.name
		}
		return 0, newWriterError("cannot serialize pointer to %v not in store %s", ann, name)
	}
	return idx, nil
}

func encodeSpan(enc *msgpack.Encoder, span Span) error {
	if err := enc.EncodeArrayLen(2); err != nil {
		return err
	}
	if err := enc.EncodeInt(int64(span.Start)); err != nil {
		return err
	}
	return enc.EncodeInt(int64(span.Length))
}

// shouldWrite reports whether field f's current value should be emitted at
// all, per the should_write column of §4.6's field-kind table: Text is
// omitted when empty (unless StoreEmpty), the two collection kinds are
// omitted when empty, and every other kind is omitted when its value is
// nil.
func shouldWrite(f *FieldSchema, value any) bool {
	switch f.Kind {
	case KindText:
		s, _ := value.(string)
		return s != "" || f.StoreEmpty

	case KindPointerCollection, KindSelfPointerCollection:
		anns, _ := value.([]*Annotation)
		return len(anns) > 0

	default:
		return value != nil
	}
}
