package docrep

import (
	"github.com/bits-and-blooms/bitset"
)

// RTField is the runtime, per-class view of one field: its wire-facing
// descriptor tags (always known, whether or not the field itself is known)
// plus, when the field is present in the active schema, the FieldSchema
// that says how to decode/encode its value (§3 "RT{Field,...}").
type RTField struct {
	ID int

	// Wire-facing descriptor, reconstructed from the <field> map on read
	// or derived from Defn on write (§6 <field_type>).
	Name         string
	PointerTo    *int // store id, nil unless a pointer-shaped field
	IsSlice      bool
	IsSelfPointer bool
	IsCollection bool

	// Defn is nil for a lazy field: one present on the wire (or declared
	// in a merged-away schema) but absent from the schema this RT was
	// built against. Its value is then carried as an opaque rawValue on
	// each instance rather than decoded (§9 "unknown extensibility").
	Defn *FieldSchema
}

func (f *RTField) isLazy() bool { return f.Defn == nil }

// RTClass is one entry of the wire class table: either the fields of a
// store's stored annotation class, or (for the single entry named
// "__meta__") the document's own fields (§6 <klass>).
type RTClass struct {
	ID     int
	Name   string
	IsMeta bool

	fields       []*RTField
	fieldByID    map[int]*RTField
	fieldBySerial map[string]*RTField
}

func newRTClass(id int, name string, isMeta bool) *RTClass {
	return &RTClass{
		ID: id, Name: name, IsMeta: isMeta,
		fieldByID:     map[int]*RTField{},
		fieldBySerial: map[string]*RTField{},
	}
}

// Fields returns the class's fields in wire (id) order.
func (c *RTClass) Fields() []*RTField { return c.fields }

// FieldByID looks up a field by its wire id within this class.
func (c *RTClass) FieldByID(id int) (*RTField, bool) { f, ok := c.fieldByID[id]; return f, ok }

// FieldBySerial looks up a field by its wire name within this class.
func (c *RTClass) FieldBySerial(name string) (*RTField, bool) { f, ok := c.fieldBySerial[name]; return f, ok }

func (c *RTClass) append(f *RTField) {
	f.ID = len(c.fields)
	c.fields = append(c.fields, f)
	c.fieldByID[f.ID] = f
	c.fieldBySerial[f.Name] = f
}

// RTStore is the runtime view of one store: its wire id, the RTClass of
// the annotations it holds, and -- when the store itself is lazy, i.e. not
// present in the active schema -- the raw bytes of its entire payload,
// captured verbatim for write-back (§4.3 step 6, §8 property 6).
type RTStore struct {
	ID      int
	Name    string
	ClassID int
	NElem   int

	Defn *StoreSchema // nil if lazy
	Lazy rawValue     // set only when Defn == nil and the store was read, not built
}

func (s *RTStore) isLazy() bool { return s.Defn == nil }

// RTManager is the per-document-instance runtime schema: the wire class
// table and store table, with stable numeric ids assigned in stream order
// and a record of which elements are lazy (§3 "RT{...Manager}", §9 "RT as
// shadow model"). It is the authoritative source of what gets emitted and
// in what order -- a Document carries one, built on first read or write
// and merged, never rebuilt from scratch, on subsequent writes.
type RTManager struct {
	classes []*RTClass
	stores  []*RTStore

	metaClassID int

	lazyClasses bitset.BitSet
	lazyStores  bitset.BitSet
}

// Classes returns the wire class table in order.
func (rt *RTManager) Classes() []*RTClass { return rt.classes }

// Stores returns the wire store table in order.
func (rt *RTManager) Stores() []*RTStore { return rt.stores }

// MetaClass returns the class-table entry for the document's own fields.
func (rt *RTManager) MetaClass() *RTClass { return rt.classes[rt.metaClassID] }

// StoreByName looks up a runtime store by its wire (serial) name, which is
// what Name records for both known and lazy stores.
func (rt *RTManager) StoreByName(name string) (*RTStore, bool) {
	for _, s := range rt.stores {
		if s.Name == name {
			return s, true
		}
	}
	return nil, false
}

// StoreForSchema finds the runtime store built for a particular
// StoreSchema, used while encoding a pointer field to recover the target
// store's runtime id from FieldSchema.TargetStore.
func (rt *RTManager) StoreForSchema(ss *StoreSchema) (*RTStore, bool) {
	for _, s := range rt.stores {
		if s.Defn == ss {
			return s, true
		}
	}
	return nil, false
}

// Validate checks the dense-contiguous-from-zero invariant on every id
// space the RT manages (§3 invariants). It exists mainly so tests can
// assert the invariant directly instead of re-deriving it from field order;
// neither buildOrMergeRT nor the writer calls it.
func (rt *RTManager) Validate() error {
	if err := checkContiguous(len(rt.classes), func(i int) int { return rt.classes[i].ID }); err != nil {
		return wrapReaderError(err, "class ids")
	}
	if err := checkContiguous(len(rt.stores), func(i int) int { return rt.stores[i].ID }); err != nil {
		return wrapReaderError(err, "store ids")
	}
	for _, c := range rt.classes {
		if err := checkContiguous(len(c.fields), func(i int) int { return c.fields[i].ID }); err != nil {
			return wrapReaderError(err, "field ids of class %q", c.Name)
		}
	}
	return nil
}

func checkContiguous(n int, idAt func(int) int) error {
	var seen bitset.BitSet
	for i := 0; i < n; i++ {
		id := idAt(i)
		if id < 0 || id >= n {
			return newReaderError("id %d out of range for %d elements", id, n)
		}
		if seen.Test(uint(id)) {
			return newReaderError("duplicate id %d", id)
		}
		seen.Set(uint(id))
	}
	return nil
}

// buildOrMergeRT builds a fresh RTManager from schema, or -- when existing
// is non-nil -- extends it: ids already assigned in existing are preserved,
// new elements schema adds are appended with contiguous new ids, and any
// element present only in existing (i.e. lazy, carried from an earlier
// read under a narrower schema) is kept untouched (§8 property 5, §9 "RT
// as shadow model").
//
// Store (and hence per-store class) ids are assigned in two passes because
// a pointer field may target a store declared later in schema: the id
// space has to be settled before any field referencing it can be built.
func buildOrMergeRT(existing *RTManager, schema *DocSchema) *RTManager {
	rt := &RTManager{}

	type storeSlot struct {
		id       int
		name     string
		prior    *RTStore // non-nil if reusing an existing store's id
		declared *StoreSchema
	}

	priorByName := map[string]*RTStore{}
	if existing != nil {
		for _, s := range existing.stores {
			priorByName[s.Name] = s
		}
	}

	nextID := 0
	if existing != nil {
		nextID = len(existing.stores)
	}

	var slots []storeSlot
	storeIDOf := map[*StoreSchema]int{}
	declaredNames := map[string]bool{}
	for _, ss := range schema.Stores() {
		declaredNames[ss.Serial] = true
		if prior, ok := priorByName[ss.Serial]; ok {
			slots = append(slots, storeSlot{id: prior.ID, name: ss.Serial, prior: prior, declared: ss})
		} else {
			slots = append(slots, storeSlot{id: nextID, name: ss.Serial, declared: ss})
			nextID++
		}
		storeIDOf[ss] = slots[len(slots)-1].id
	}
	if existing != nil {
		for _, prior := range existing.stores {
			if declaredNames[prior.Name] {
				continue
			}
			slots = append(slots, storeSlot{id: prior.ID, name: prior.Name, prior: prior})
		}
	}

	// Sort by id: existing ids are already dense from a prior build, new
	// ids continue past the prior maximum, so this simply interleaves
	// survivors back into their original positions.
	ordered := make([]storeSlot, len(slots))
	for _, sl := range slots {
		ordered[sl.id] = sl
	}

	rt.classes = make([]*RTClass, len(ordered))
	rt.stores = make([]*RTStore, len(ordered))
	for _, sl := range ordered {
		var class *RTClass
		var nelem int
		var lazy rawValue
		switch {
		case sl.declared != nil && sl.prior != nil:
			class = mergeRTClass(existing.classes[sl.prior.ClassID], sl.declared.Ann, storeIDOf)
			nelem = sl.prior.NElem
		case sl.declared != nil:
			class = buildRTClassFromAnn(sl.id, sl.declared.Ann, storeIDOf)
		default:
			class = cloneRTClass(sl.id, existing.classes[sl.prior.ClassID])
			nelem = sl.prior.NElem
			lazy = sl.prior.Lazy
		}
		class.ID = sl.id
		rt.classes[sl.id] = class
		rt.stores[sl.id] = &RTStore{ID: sl.id, Name: sl.name, ClassID: sl.id, NElem: nelem, Defn: sl.declared, Lazy: lazy}
	}

	// The meta class (document's own fields) always comes last in the
	// class table, matching how a document with no stores still emits
	// exactly one class table entry (§8 scenario S1).
	metaAnn := &AnnSchema{fieldBySerial: map[string]*FieldSchema{}, fields: schema.Fields()}
	for _, f := range metaAnn.fields {
		metaAnn.fieldBySerial[f.Serial] = f
	}
	metaID := len(rt.classes)
	var metaClass *RTClass
	if existing != nil {
		metaClass = mergeRTClass(existing.MetaClass(), metaAnn, storeIDOf)
	} else {
		metaClass = buildRTClassFromAnn(metaID, metaAnn, storeIDOf)
	}
	metaClass.ID = metaID
	metaClass.IsMeta = true
	metaClass.Name = metaClassName
	rt.classes = append(rt.classes, metaClass)
	rt.metaClassID = metaID

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

	return rt
}

func buildRTClassFromAnn(id int, ann *AnnSchema, storeIDOf map[*StoreSchema]int) *RTClass {
	name := ""
	if ann.Class != nil {
		name = ann.Class.Serial()
	}
	c := newRTClass(id, name, false)
	for _, fs := range ann.Fields() {
		c.append(rtFieldFromSchema(fs, storeIDOf))
	}
	return c
}

func rtFieldFromSchema(fs *FieldSchema, storeIDOf map[*StoreSchema]int) *RTField {
	f := &RTField{Name: fs.Serial, Defn: fs}
	switch {
	case fs.Kind.isSlice():
		f.IsSlice = true
		if fs.TargetStore != nil {
			if id, ok := storeIDOf[fs.TargetStore]; ok {
				f.PointerTo = &id
			}
		}
	case fs.Kind.isSelfPointer():
		f.IsSelfPointer = true
		f.IsCollection = fs.Kind.isCollection()
	case fs.Kind.isPointerLike():
		f.IsCollection = fs.Kind.isCollection()
		if fs.TargetStore != nil {
			if id, ok := storeIDOf[fs.TargetStore]; ok {
				f.PointerTo = &id
			}
		}
	}
	return f
}

// mergeRTClass extends prior's field list with any field ann declares that
// prior lacks, preserving prior's ids for fields it already has.
func mergeRTClass(prior *RTClass, ann *AnnSchema, storeIDOf map[*StoreSchema]int) *RTClass {
	c := newRTClass(prior.ID, prior.Name, prior.IsMeta)
	seen := map[string]bool{}
	for _, pf := range prior.fields {
		if fs, ok := ann.FieldBySerial(pf.Name); ok {
			nf := rtFieldFromSchema(fs, storeIDOf)
			nf.ID = pf.ID
			c.placeAt(nf)
		} else {
			// still lazy: carry the field exactly as the RT last saw it.
			lf := *pf
			c.placeAt(&lf)
		}
		seen[pf.Name] = true
	}
	for _, fs := range ann.Fields() {
		if seen[fs.Serial] {
			continue
		}
		c.append(rtFieldFromSchema(fs, storeIDOf))
	}
	return c
}

func cloneRTClass(id int, src *RTClass) *RTClass {
	c := newRTClass(id, src.Name, src.IsMeta)
	for _, f := range src.fields {
		cp := *f
		c.append(&cp)
	}
	return c
}

// placeAt inserts f at f.ID, extending the backing slice as needed. Used
// only while merging, when a field's id is already fixed by a prior RT.
func (c *RTClass) placeAt(f *RTField) {
	for len(c.fields) <= f.ID {
		c.fields = append(c.fields, nil)
	}
	c.fields[f.ID] = f
	c.fieldByID[f.ID] = f
	c.fieldBySerial[f.Name] = f
}

func (c *RTClass) fieldCountLazy() bool {
	for _, f := range c.fields {
		if f == nil || f.isLazy() {
			return true
		}
	}
	return false
}
