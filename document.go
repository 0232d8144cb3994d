package docrep

// Annotation is an instance of an AnnotationClass living in a Store (§3). Its
// field values are held dynamically (keyed by in-memory field name) rather
// than as a statically-typed Go struct, because automagic mode must be able
// to synthesize classes -- and hence instances of them -- purely from a
// stream, with no Go type declared for them anywhere (§4.7).
type Annotation struct {
	class *AnnotationClass

	// index mirrors _dr_index in the source model: the annotation's
	// position in its owning store as stamped by the last Writer.Write, or
	// nil if no write has stamped it yet or Store.Delete removed it.
	index *int

	values map[string]any

	// lazy holds unknown-to-the-reader field values, keyed by wire field
	// id, exactly as they were decoded (§4.3 step 5, §9 "unknown
	// extensibility"). They are re-emitted verbatim on write regardless of
	// the schema the writer uses.
	lazy map[int]rawValue
}

// newAnnotation constructs an Annotation of class with every field set to
// its declared default.
func newAnnotation(class *AnnotationClass) *Annotation {
	a := &Annotation{class: class, values: map[string]any{}}
	for _, f := range class.Fields() {
		a.values[f.Name] = f.Default
	}
	return a
}

// Class returns the annotation's class.
func (a *Annotation) Class() *AnnotationClass { return a.class }

// Get returns the current value of field name, or nil if unset.
func (a *Annotation) Get(name string) any { return a.values[name] }

// Set assigns the value of field name.
func (a *Annotation) Set(name string, value any) { a.values[name] = value }

// Index returns the position in its owning store that the last
// Writer.Write stamped on the annotation, and whether one is stamped at
// all. Create and reading do not stamp an index, so an annotation that has
// not been written yet reports (0, false), as does one removed by
// Store.Delete.
func (a *Annotation) Index() (int, bool) {
	if a.index == nil {
		return 0, false
	}
	return *a.index, true
}

// Store is an ordered sequence of annotations of one declared class, owned
// exclusively by the Document that created it (§3 "Ownership"). The zero
// value is not useful; construct one via Document.Store (it is created
// automatically for every declared store).
type Store struct {
	name  string
	class *AnnotationClass
	anns  []*Annotation
}

func newStore(name string, class *AnnotationClass) *Store {
	return &Store{name: name, class: class}
}

// Class returns the class of annotation this store holds.
func (s *Store) Class() *AnnotationClass { return s.class }

// Len returns the number of annotations currently in the store.
func (s *Store) Len() int { return len(s.anns) }

// At returns the annotation at position i. It panics if i is out of range,
// exactly as a slice index would.
func (s *Store) At(i int) *Annotation { return s.anns[i] }

// All returns the store's annotations, in order. The returned slice must
// not be mutated directly; use Create to append.
func (s *Store) All() []*Annotation { return s.anns }

// Create constructs a new annotation of the store's class, appends it to
// the store, and returns it. This is the only supported way to add an
// annotation to a store -- mirroring the source model's StoreList.create,
// which is likewise the sole append path (§3).
func (s *Store) Create() *Annotation {
	a := newAnnotation(s.class)
	s.anns = append(s.anns, a)
	return a
}

// CreateN appends n freshly-constructed annotations of the store's class.
// It exists primarily for the reader, which must pre-allocate a store's
// elements before filling in their field values (§4.3 step 3).
func (s *Store) CreateN(n int) []*Annotation {
	out := make([]*Annotation, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, s.Create())
	}
	return out
}

// Delete removes the annotation at position i from the store and leaves
// any outstanding pointer to it dangling (its index becomes nil). A
// subsequent write attempting to serialize a pointer to the removed
// annotation fails with a WriterError (§8 scenario S8), since the
// annotation's index is unset and to_wire rejects annotations with no
// index. Positions after i shift down by one, as with a normal slice
// delete.
func (s *Store) Delete(i int) {
	removed := s.anns[i]
	removed.index = nil
	s.anns = append(s.anns[:i], s.anns[i+1:]...)
}

// Document is the root record of one instance on the wire: it owns its
// stores and has field values of its own (§3). It is serialized as the
// class named "__meta__" (§6).
type Document struct {
	schema *DocSchema
	values map[string]any
	lazy   map[int]rawValue

	stores     map[string]*Store
	storeOrder []string

	rt *RTManager
}

// NewDocument constructs a Document conforming to schema, with a Store
// created for every store the schema declares. Construction goes through a
// resolved DocSchema rather than a bare DocumentClass so that every store's
// class is guaranteed resolved, including stores originally declared by
// name (§4.1's forward-reference resolution happens once, at BuildSchema
// time, not again here).
func NewDocument(schema *DocSchema) *Document {
	d := &Document{
		schema: schema,
		values: map[string]any{},
		stores: map[string]*Store{},
	}
	for _, f := range schema.Class.Fields() {
		d.values[f.Name] = f.Default
	}
	for _, ss := range schema.Stores() {
		d.stores[ss.Name] = newStore(ss.Name, ss.StoredClass)
		d.storeOrder = append(d.storeOrder, ss.Name)
	}
	return d
}

// Class returns the document's class.
func (d *Document) Class() *DocumentClass { return d.schema.Class }

// Schema returns the DocSchema the document was constructed against.
func (d *Document) Schema() *DocSchema { return d.schema }

// Get returns the current value of document-level field name.
func (d *Document) Get(name string) any { return d.values[name] }

// Set assigns the value of document-level field name.
func (d *Document) Set(name string, value any) { d.values[name] = value }

// Store returns the named store. There is deliberately no corresponding
// setter: a document's set of stores is fixed at construction time from its
// DocumentClass, matching the source model's refusal to let a store
// attribute be overwritten (§3, "Ownership"; original_source
// tests/test_overwrite_store.py).
func (d *Document) Store(name string) *Store { return d.stores[name] }

// ReplaceStore always fails with a ValueError. It exists as the explicit
// guarded escape hatch for assigning a whole new Store under name -- the
// source model's Doc.__setattr__ intercepts exactly this and rejects it
// (test_overwrite_store.py); this is its Go equivalent, kept as a named,
// callable rejection rather than simply having no such method at all.
func (d *Document) ReplaceStore(name string, replacement *Store) error {
	return newValueError("cannot replace store %q: a document's stores are fixed at construction", name)
}

// Stores returns the document's stores in declaration order.
func (d *Document) Stores() []*Store {
	out := make([]*Store, 0, len(d.storeOrder))
	for _, name := range d.storeOrder {
		out = append(out, d.stores[name])
	}
	return out
}
