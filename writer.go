package docrep

import (
	"io"

	"github.com/sirupsen/logrus"
	"github.com/vmihailenco/msgpack/v5"
)

// Writer encodes documents in the §6 wire format. A Writer is not safe for
// concurrent use (§5).
type Writer struct {
	out    io.Writer
	logger *logrus.Logger
}

// NewWriter wraps dst for writing. Documents are appended back to back;
// nothing demarcates the end of the stream itself.
func NewWriter(dst io.Writer, opts ...WriterOption) *Writer {
	w := &Writer{out: dst}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// effectiveLogger returns the logger this Writer emits diagnostics
// through: its own override if WithWriterLogger was applied, otherwise the
// package-level default.
func (w *Writer) effectiveLogger() *logrus.Logger {
	if w.logger != nil {
		return w.logger
	}
	return log
}

// Write builds or merges doc's runtime schema against schema (§4.4),
// stamps a fresh _index on every annotation of every declared store (§8
// property 4), validates every pointer-shaped field, and emits the
// document. The whole document is assembled in memory first: on a
// WriterError nothing at all is written to dst, matching §8 property 7
// ("produces no further bytes for that document").
func (w *Writer) Write(doc *Document, schema *DocSchema) error {
	merging := doc.rt != nil
	rt := buildOrMergeRT(doc.rt, schema)
	if merging {
		w.effectiveLogger().Debugf("docrep: merging runtime schema: %d stores, %d classes", len(rt.stores), len(rt.classes))
	}
	doc.rt = rt

	for _, rs := range rt.stores {
		if rs.Defn == nil {
			continue
		}
		store := doc.Store(rs.Defn.Name)
		for i, ann := range store.All() {
			idx := i
			ann.index = &idx
		}
	}

	buf, err := packValue(func(enc *msgpack.Encoder) error { return w.encodeDocument(enc, doc, rt) })
	if err != nil {
		return err
	}

	_, err = w.out.Write(buf)
	return err
}

func (w *Writer) encodeDocument(enc *msgpack.Encoder, doc *Document, rt *RTManager) error {
	if err := enc.EncodeUint64(WireVersion); err != nil {
		return err
	}
	if err := encodeClassTable(enc, rt); err != nil {
		return err
	}
	if err := encodeStoreTable(enc, doc, rt); err != nil {
		return err
	}

	docBytes, err := packValue(func(enc *msgpack.Encoder) error {
		return encodeInstance(enc, rt.MetaClass(), doc.values, doc.lazy, doc, nil)
	})
	if err != nil {
		return err
	}
	if err := writeLengthPrefixedBytes(enc, docBytes); err != nil {
		return err
	}

	for _, rs := range rt.stores {
		payload, err := packValue(func(enc *msgpack.Encoder) error { return encodeStoreInstance(enc, doc, rt, rs) })
		if err != nil {
			return err
		}
		if err := writeLengthPrefixedBytes(enc, payload); err != nil {
			return err
		}
	}
	return nil
}

// writeLengthPrefixedBytes emits <nbytes> followed by payload, an
// already-packed msgpack value, re-encoded via rawValue so it is copied
// onto the stream verbatim rather than re-parsed.
func writeLengthPrefixedBytes(enc *msgpack.Encoder, payload []byte) error {
	if err := enc.EncodeUint64(uint64(len(payload))); err != nil {
		return err
	}
	return enc.Encode(rawValue(payload))
}

func encodeClassTable(enc *msgpack.Encoder, rt *RTManager) error {
	if err := enc.EncodeArrayLen(len(rt.classes)); err != nil {
		return err
	}
	for _, c := range rt.classes {
		if err := enc.EncodeArrayLen(2); err != nil {
			return err
		}
		if err := enc.EncodeString(c.Name); err != nil {
			return err
		}
		if err := enc.EncodeArrayLen(len(c.fields)); err != nil {
			return err
		}
		for _, f := range c.fields {
			if err := encodeWireField(enc, f); err != nil {
				return err
			}
		}
	}
	return nil
}

func encodeWireField(enc *msgpack.Encoder, f *RTField) error {
	n := 1
	if f.PointerTo != nil {
		n++
	}
	if f.IsSlice {
		n++
	}
	if f.IsSelfPointer {
		n++
	}
	if f.IsCollection {
		n++
	}
	if err := enc.EncodeMapLen(n); err != nil {
		return err
	}
	if err := enc.EncodeUint64(uint64(tagName)); err != nil {
		return err
	}
	if err := enc.EncodeString(f.Name); err != nil {
		return err
	}
	if f.PointerTo != nil {
		if err := enc.EncodeUint64(uint64(tagPointerTo)); err != nil {
			return err
		}
		if err := enc.EncodeUint64(uint64(*f.PointerTo)); err != nil {
			return err
		}
	}
	if f.IsSlice {
		if err := enc.EncodeUint64(uint64(tagIsSlice)); err != nil {
			return err
		}
		if err := enc.EncodeNil(); err != nil {
			return err
		}
	}
	if f.IsSelfPointer {
		if err := enc.EncodeUint64(uint64(tagIsSelfPointer)); err != nil {
			return err
		}
		if err := enc.EncodeNil(); err != nil {
			return err
		}
	}
	if f.IsCollection {
		if err := enc.EncodeUint64(uint64(tagIsCollection)); err != nil {
			return err
		}
		if err := enc.EncodeNil(); err != nil {
			return err
		}
	}
	return nil
}

func encodeStoreTable(enc *msgpack.Encoder, doc *Document, rt *RTManager) error {
	if err := enc.EncodeArrayLen(len(rt.stores)); err != nil {
		return err
	}
	for _, rs := range rt.stores {
		if err := enc.EncodeArrayLen(3); err != nil {
			return err
		}
		if err := enc.EncodeString(rs.Name); err != nil {
			return err
		}
		if err := enc.EncodeUint64(uint64(rs.ClassID)); err != nil {
			return err
		}
		nelem := rs.NElem
		if rs.Defn != nil {
			nelem = doc.Store(rs.Defn.Name).Len()
		}
		if err := enc.EncodeUint64(uint64(nelem)); err != nil {
			return err
		}
	}
	return nil
}

func encodeStoreInstance(enc *msgpack.Encoder, doc *Document, rt *RTManager, rs *RTStore) error {
	if rs.Defn == nil {
		if rs.Lazy == nil {
			return enc.EncodeArrayLen(0)
		}
		return enc.Encode(rs.Lazy)
	}
	store := doc.Store(rs.Defn.Name)
	class := rt.classes[rs.ClassID]
	if err := enc.EncodeArrayLen(store.Len()); err != nil {
		return err
	}
	for _, ann := range store.All() {
		if err := encodeInstance(enc, class, ann.values, ann.lazy, doc, store); err != nil {
			return err
		}
	}
	return nil
}

// encodeInstance writes an <instance> map for one object (a Document or an
// Annotation): values holds its known field values by in-memory name,
// lazy holds opaque values for fields the active schema doesn't know,
// keyed by wire field id. self is the enclosing store, for resolving
// SelfPointer targets; it is nil when encoding the document's own fields.
func encodeInstance(enc *msgpack.Encoder, class *RTClass, values map[string]any, lazy map[int]rawValue, doc *Document, self *Store) error {
	type entry struct {
		id     int
		encode func(*msgpack.Encoder) error
	}
	var entries []entry

	for _, f := range class.fields {
		if f.isLazy() {
			if raw, ok := lazy[f.ID]; ok {
				raw := raw
				entries = append(entries, entry{f.ID, func(enc *msgpack.Encoder) error { return enc.Encode(raw) }})
			}
			continue
		}
		v := values[f.Defn.Name]
		if !shouldWrite(f.Defn, v) {
			continue
		}
		var target *Store
		if doc != nil && f.PointerTo != nil && *f.PointerTo < len(doc.rt.stores) {
			if ts := doc.rt.stores[*f.PointerTo]; ts.Defn != nil {
				target = doc.Store(ts.Defn.Name)
			}
		}
		f, v := f, v
		entries = append(entries, entry{f.ID, func(enc *msgpack.Encoder) error {
			return encodeFieldValue(enc, f, v, target, self)
		}})
	}

	if err := enc.EncodeMapLen(len(entries)); err != nil {
		return err
	}
	for _, e := range entries {
		if err := enc.EncodeUint64(uint64(e.id)); err != nil {
			return err
		}
		if err := e.encode(enc); err != nil {
			return err
		}
	}
	return nil
}
