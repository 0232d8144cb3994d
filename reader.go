package docrep

import (
	"errors"
	"io"

	"github.com/sirupsen/logrus"
	"github.com/vmihailenco/msgpack/v5"
)

// Reader decodes a stream of documents written in the §6 wire format. A
// Reader is not safe for concurrent use (§5: serialization assumes
// exclusive access).
type Reader struct {
	dec        *msgpack.Decoder
	docOrdinal int

	automagic bool
	schema    *DocSchema
	strict    bool
	logger    *logrus.Logger
}

// NewReader wraps src for reading. src is consumed document by document;
// the stream may contain more than one document back to back. By default a
// Reader is strict (a store's declared element count must match its
// instance array's length) and logs through the package-level logger; both
// are overridable per instance via opts.
func NewReader(src io.Reader, opts ...ReaderOption) *Reader {
	r := &Reader{dec: msgpack.NewDecoder(src), strict: true}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// effectiveLogger returns the logger this Reader emits diagnostics through:
// its own override if WithLogger was applied, otherwise the package-level
// default (which SetLogger may still replace later).
func (r *Reader) effectiveLogger() *logrus.Logger {
	if r.logger != nil {
		return r.logger
	}
	return log
}

// ReadNext decodes the next document using whichever mode this Reader was
// configured with (WithSchema or WithAutomagic). A Reader built with no
// such option has no schema to decode against, so it falls back to
// automagic mode -- the one mode that needs none.
func (r *Reader) ReadNext() (*Document, error) {
	if r.automagic || r.schema == nil {
		return r.ReadAutomagic()
	}
	return r.Read(r.schema)
}

// wireField is one entry of a <klass>'s field list, exactly as it appeared
// on the wire (§6 <field>), before any attempt to match it against a
// schema.
type wireField struct {
	Name          string
	PointerTo     *int
	IsSlice       bool
	IsSelfPointer bool
	IsCollection  bool
}

type wireClass struct {
	Name   string
	Fields []wireField
}

type wireStore struct {
	Name    string
	ClassID int
	NElem   int
}

type wireHeader struct {
	classes []wireClass
	stores  []wireStore
}

// readHeader reads <version> <klasses> <stores> (§6), leaving the decoder
// positioned at <doc_instance>.
func (r *Reader) readHeader() (*wireHeader, error) {
	version, err := r.dec.DecodeUint64()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, wrapReaderError(err, "reading version")
	}
	if version != WireVersion {
		return nil, newReaderError("unsupported wire version %d, expected %d", version, WireVersion)
	}

	classes, err := r.readClassTable()
	if err != nil {
		return nil, wrapReaderError(err, "reading class table")
	}
	stores, err := r.readStoreTable()
	if err != nil {
		return nil, wrapReaderError(err, "reading store table")
	}
	return &wireHeader{classes: classes, stores: stores}, nil
}

func (r *Reader) readClassTable() ([]wireClass, error) {
	n, err := r.dec.DecodeArrayLen()
	if err != nil {
		return nil, err
	}
	out := make([]wireClass, n)
	for i := 0; i < n; i++ {
		tupleLen, err := r.dec.DecodeArrayLen()
		if err != nil {
			return nil, err
		}
		if tupleLen != 2 {
			return nil, newReaderError("klass tuple must have 2 elements, got %d", tupleLen)
		}
		name, err := r.dec.DecodeString()
		if err != nil {
			return nil, err
		}
		nf, err := r.dec.DecodeArrayLen()
		if err != nil {
			return nil, err
		}
		fields := make([]wireField, nf)
		for j := 0; j < nf; j++ {
			f, err := r.readWireField()
			if err != nil {
				return nil, err
			}
			fields[j] = f
		}
		out[i] = wireClass{Name: name, Fields: fields}
	}
	return out, nil
}

func (r *Reader) readWireField() (wireField, error) {
	var f wireField
	n, err := r.dec.DecodeMapLen()
	if err != nil {
		return f, err
	}
	for i := 0; i < n; i++ {
		tag, err := r.dec.DecodeUint64()
		if err != nil {
			return f, err
		}
		switch fieldTag(tag) {
		case tagName:
			if f.Name, err = r.dec.DecodeString(); err != nil {
				return f, err
			}
		case tagPointerTo:
			v, err := r.dec.DecodeUint64()
			if err != nil {
				return f, err
			}
			id := int(v)
			f.PointerTo = &id
		case tagIsSlice:
			if err := r.dec.DecodeNil(); err != nil {
				return f, err
			}
			f.IsSlice = true
		case tagIsSelfPointer:
			if err := r.dec.DecodeNil(); err != nil {
				return f, err
			}
			f.IsSelfPointer = true
		case tagIsCollection:
			if err := r.dec.DecodeNil(); err != nil {
				return f, err
			}
			f.IsCollection = true
		default:
			var discard rawValue
			if err := r.dec.Decode(&discard); err != nil {
				return f, err
			}
		}
	}
	return f, nil
}

func (r *Reader) readStoreTable() ([]wireStore, error) {
	n, err := r.dec.DecodeArrayLen()
	if err != nil {
		return nil, err
	}
	out := make([]wireStore, n)
	for i := 0; i < n; i++ {
		tupleLen, err := r.dec.DecodeArrayLen()
		if err != nil {
			return nil, err
		}
		if tupleLen != 3 {
			return nil, newReaderError("store tuple must have 3 elements, got %d", tupleLen)
		}
		name, err := r.dec.DecodeString()
		if err != nil {
			return nil, err
		}
		classID, err := r.dec.DecodeUint64()
		if err != nil {
			return nil, err
		}
		nelem, err := r.dec.DecodeUint64()
		if err != nil {
			return nil, err
		}
		out[i] = wireStore{Name: name, ClassID: int(classID), NElem: int(nelem)}
	}
	return out, nil
}

// rtFromWire builds the RT for one document directly from its wire header,
// cross-linking each wire class/store against schema by serial name.
// schema is never nil here: strict reads pass the caller's schema,
// automagic reads pass one synthesized from the header itself (§4.3,
// §4.7). An out-of-range store class id, or a store whose class id names a
// wire class other than the one its resolved StoreSchema actually holds,
// fails with a ReaderError (§4.3 step 3).
func rtFromWire(h *wireHeader, schema *DocSchema) (*RTManager, error) {
	rt := &RTManager{}

	rt.stores = make([]*RTStore, len(h.stores))
	storeByClassID := map[int]*RTStore{}
	for i, ws := range h.stores {
		if ws.ClassID < 0 || ws.ClassID >= len(h.classes) {
			return nil, newReaderError("store %q: class id %d out of range for %d classes", ws.Name, ws.ClassID, len(h.classes))
		}
		ss, _ := schema.StoreBySerial(ws.Name)
		if ss != nil && ss.StoredClass.Serial() != h.classes[ws.ClassID].Name {
			return nil, newReaderError("store %q: class id %d names %q, but store holds %q", ws.Name, ws.ClassID, h.classes[ws.ClassID].Name, ss.StoredClass.Serial())
		}
		s := &RTStore{ID: i, Name: ws.Name, ClassID: ws.ClassID, NElem: ws.NElem, Defn: ss}
		rt.stores[i] = s
		storeByClassID[ws.ClassID] = s
	}

	rt.classes = make([]*RTClass, len(h.classes))
	for i, wc := range h.classes {
		if wc.Name == metaClassName {
			class, err := buildRTClassFromWire(i, wc, schema.FieldBySerial)
			if err != nil {
				return nil, err
			}
			class.IsMeta = true
			rt.classes[i] = class
			rt.metaClassID = i
			continue
		}
		lookup := func(string) (*FieldSchema, bool) { return nil, false }
		if s, ok := storeByClassID[i]; ok && s.Defn != nil {
			lookup = s.Defn.Ann.FieldBySerial
		}
		class, err := buildRTClassFromWire(i, wc, lookup)
		if err != nil {
			return nil, err
		}
		rt.classes[i] = class
	}

	for _, c := range rt.classes {
		if c.fieldCountLazy() {
			rt.lazyClasses.Set(uint(c.ID))
		}
	}
	for _, s := range rt.stores {
		if s.isLazy() {
			rt.lazyStores.Set(uint(s.ID))
		}
	}
	return rt, nil
}

func buildRTClassFromWire(id int, wc wireClass, lookup func(string) (*FieldSchema, bool)) (*RTClass, error) {
	c := newRTClass(id, wc.Name, false)
	for _, wf := range wc.Fields {
		defn, _ := lookup(wf.Name)
		if defn != nil {
			if err := checkWireFieldFlagsMatchKind(wf, defn); err != nil {
				return nil, err
			}
		}
		c.append(&RTField{
			Name:          wf.Name,
			PointerTo:     wf.PointerTo,
			IsSlice:       wf.IsSlice,
			IsSelfPointer: wf.IsSelfPointer,
			IsCollection:  wf.IsCollection,
			Defn:          defn,
		})
	}
	return c, nil
}

// checkWireFieldFlagsMatchKind compares a known field's stream-carried
// descriptor flags against what its declared FieldSchema.Kind implies. A
// mismatch -- e.g. a stream that flags a declared Scalar field IS_SLICE --
// fails with a ReaderError naming the offending flag (§4.3 step 2).
func checkWireFieldFlagsMatchKind(wf wireField, defn *FieldSchema) error {
	if wf.IsSlice != defn.Kind.isSlice() {
		return newReaderError("field %q: mismatching flag IS_SLICE (wire %v, declared kind %s)", wf.Name, wf.IsSlice, defn.Kind)
	}
	if wf.IsSelfPointer != defn.Kind.isSelfPointer() {
		return newReaderError("field %q: mismatching flag IS_SELF_POINTER (wire %v, declared kind %s)", wf.Name, wf.IsSelfPointer, defn.Kind)
	}
	if wf.IsCollection != defn.Kind.isCollection() {
		return newReaderError("field %q: mismatching flag IS_COLLECTION (wire %v, declared kind %s)", wf.Name, wf.IsCollection, defn.Kind)
	}
	return nil
}

// Read decodes the next document on the stream against schema, which must
// describe (all or part of) the classes the stream actually carries. Any
// class, field, or store schema omits is preserved as lazy (§4.3, §8
// property 6). Returns io.EOF when the stream is exhausted exactly at a
// document boundary.
func (r *Reader) Read(schema *DocSchema) (*Document, error) {
	h, err := r.readHeader()
	if err != nil {
		return nil, err
	}
	return r.decodeBody(h, schema)
}

func (r *Reader) decodeBody(h *wireHeader, schema *DocSchema) (*Document, error) {
	rt, err := rtFromWire(h, schema)
	if err != nil {
		return nil, err
	}
	doc := NewDocument(schema)
	doc.rt = rt

	// Phase 1: pre-allocate every known store's annotations from the
	// store table's declared element count, before any field value is
	// decoded, so that a pointer anywhere -- forward, backward, or
	// self-referential -- always resolves to a live object (§9).
	storesByID := make([]*Store, len(rt.stores))
	for _, rs := range rt.stores {
		if rs.Defn == nil {
			continue
		}
		store := doc.Store(rs.Defn.Name)
		store.CreateN(rs.NElem)
		storesByID[rs.ID] = store
	}

	// <doc_instance>
	if _, err := r.dec.DecodeUint64(); err != nil { // nbytes, unused: msgpack self-delimits
		return nil, wrapReaderError(err, "reading doc instance length")
	}
	values, lazy, err := r.decodeInstance(rt.MetaClass(), storesByID, nil)
	if err != nil {
		return nil, wrapReaderError(err, "reading doc instance")
	}
	for name, v := range values {
		doc.values[name] = v
	}
	doc.lazy = lazy

	// <store_instance>*, one per store-table entry, in order.
	for _, rs := range rt.stores {
		if _, err := r.dec.DecodeUint64(); err != nil { // nbytes
			return nil, wrapReaderError(err, "reading store %q instance length", rs.Name)
		}
		if rs.Defn == nil {
			var raw rawValue
			if err := r.dec.Decode(&raw); err != nil {
				return nil, wrapReaderError(err, "reading lazy store %q", rs.Name)
			}
			rs.Lazy = raw
			continue
		}
		n, err := r.dec.DecodeArrayLen()
		if err != nil {
			return nil, wrapReaderError(err, "reading store %q instance array", rs.Name)
		}
		store := storesByID[rs.ID]
		if r.strict && n != store.Len() {
			return nil, newReaderError("store %q: instance array has %d elements, header declared %d", rs.Name, n, store.Len())
		}
		class := rt.classes[rs.ClassID]
		for i := 0; i < n; i++ {
			values, lazy, err := r.decodeInstance(class, storesByID, store)
			if err != nil {
				return nil, wrapReaderError(err, "reading store %q element %d", rs.Name, i)
			}
			// Only true under WithStrict(false): the instance array ran
			// longer than the header declared, so there is no pre-allocated
			// annotation to fill in at this index. The value is still
			// decoded above (to stay positioned on the stream) and then
			// discarded.
			if i >= store.Len() {
				continue
			}
			ann := store.At(i)
			for name, v := range values {
				ann.values[name] = v
			}
			ann.lazy = lazy
		}
	}

	return doc, nil
}

// decodeInstance decodes an <instance> map, dispatching known fields to
// typed decode and capturing unknown ones verbatim. self is the store the
// instance belongs to (nil for the document's own fields), used to resolve
// SelfPointer/SelfPointerCollection fields.
func (r *Reader) decodeInstance(class *RTClass, storesByID []*Store, self *Store) (map[string]any, map[int]rawValue, error) {
	n, err := r.dec.DecodeMapLen()
	if err != nil {
		return nil, nil, err
	}
	values := map[string]any{}
	var lazy map[int]rawValue
	for i := 0; i < n; i++ {
		fieldID, err := r.dec.DecodeUint64()
		if err != nil {
			return nil, nil, err
		}
		f, ok := class.FieldByID(int(fieldID))
		if !ok || f.isLazy() {
			var raw rawValue
			if err := r.dec.Decode(&raw); err != nil {
				return nil, nil, err
			}
			if lazy == nil {
				lazy = map[int]rawValue{}
			}
			lazy[int(fieldID)] = raw
			continue
		}
		v, err := decodeFieldValue(r.dec, f, storesByID, self, r.effectiveLogger())
		if err != nil {
			return nil, nil, err
		}
		values[f.Defn.Name] = v
	}
	return values, lazy, nil
}
