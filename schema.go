package docrep

import "fmt"

// FieldSchema is a fully-resolved field: a pointer/slice field's target is
// a specific StoreSchema, not merely a class (§3, §4.2).
type FieldSchema struct {
	Name   string
	Serial string
	Kind   FieldKind
	Help   string

	Encoding   string
	StoreEmpty bool
	Default    any

	// TargetStore is non-nil for Pointer, PointerCollection, and a typed
	// (annotation) Slice. It is always nil for SelfPointer and
	// SelfPointerCollection, which resolve against whichever store they
	// are read from/written to at decode/encode time, and for Scalar,
	// DateTime, Text, and an untyped (byteslice) Slice.
	TargetStore *StoreSchema
}

// AnnSchema is the fully-resolved, cross-linked description of one
// annotation class as stored by one particular StoreSchema (§3). Because
// the wire format assigns one class-table entry per store (not one per
// distinct AnnotationClass), two stores holding the same AnnotationClass
// get two independent AnnSchema values.
type AnnSchema struct {
	Class  *AnnotationClass
	Serial string

	fields        []*FieldSchema
	fieldBySerial map[string]*FieldSchema
}

// Fields returns the resolved fields of this annotation schema, in
// declaration order.
func (a *AnnSchema) Fields() []*FieldSchema { return a.fields }

// FieldBySerial looks up a resolved field by its wire token.
func (a *AnnSchema) FieldBySerial(serial string) (*FieldSchema, bool) {
	f, ok := a.fieldBySerial[serial]
	return f, ok
}

// StoreSchema is the fully-resolved description of one store: its wire
// token, the class it stores, and that class's resolved fields (§3, §4.2).
type StoreSchema struct {
	Name   string
	Serial string
	Help   string

	StoredClass *AnnotationClass
	Ann         *AnnSchema
}

// DocSchema is the fully-resolved, immutable-after-build description of one
// DocumentClass: its own fields and its stores, each with its stored
// class's fields resolved and cross-linked (§3, §4.2).
type DocSchema struct {
	Class *DocumentClass

	fields        []*FieldSchema
	fieldBySerial map[string]*FieldSchema

	stores        []*StoreSchema
	storeBySerial map[string]*StoreSchema
	storeByName   map[string]*StoreSchema
	storesOfClass map[*AnnotationClass][]*StoreSchema
}

// Fields returns the document's own resolved fields, in declaration order.
func (d *DocSchema) Fields() []*FieldSchema { return d.fields }

// FieldBySerial looks up a document-level field by its wire token.
func (d *DocSchema) FieldBySerial(serial string) (*FieldSchema, bool) {
	f, ok := d.fieldBySerial[serial]
	return f, ok
}

// Stores returns the document's resolved stores, in declaration order.
func (d *DocSchema) Stores() []*StoreSchema { return d.stores }

// StoreBySerial looks up a store by its wire token.
func (d *DocSchema) StoreBySerial(serial string) (*StoreSchema, bool) {
	s, ok := d.storeBySerial[serial]
	return s, ok
}

// StoreByName looks up a store by its in-memory (declared) name.
func (d *DocSchema) StoreByName(name string) (*StoreSchema, bool) {
	s, ok := d.storeByName[name]
	return s, ok
}

// BuildSchema resolves doc into a fully cross-linked DocSchema, resolving
// every Pointer/Slice/Store target-class-by-name reference against
// registry (§4.2). registry may be nil, in which case Default is used.
func BuildSchema(registry *Registry, doc *DocumentClass) (*DocSchema, error) {
	if registry == nil {
		registry = Default
	}

	schema := &DocSchema{
		Class:         doc,
		fieldBySerial: map[string]*FieldSchema{},
		storeBySerial: map[string]*StoreSchema{},
		storeByName:   map[string]*StoreSchema{},
		storesOfClass: map[*AnnotationClass][]*StoreSchema{},
	}

	// Pass 1: resolve store skeletons (name/serial/stored-class) without
	// yet resolving their stored class's fields. This has to happen before
	// any field resolution, since a pointer field anywhere in the document
	// may target any store, including one declared after it.
	for _, sd := range doc.Stores() {
		storedClass, err := resolveClass(registry, sd.Class, sd.ClassName)
		if err != nil {
			return nil, fmt.Errorf("resolving store %q: %w", sd.Name, err)
		}
		ss := &StoreSchema{Name: sd.Name, Serial: sd.serial(), Help: sd.Help, StoredClass: storedClass}
		if _, exists := schema.storeBySerial[ss.Serial]; exists {
			return nil, newDependencyError("duplicate store serial %q", ss.Serial)
		}
		schema.stores = append(schema.stores, ss)
		schema.storeBySerial[ss.Serial] = ss
		schema.storeByName[ss.Name] = ss
		schema.storesOfClass[storedClass] = append(schema.storesOfClass[storedClass], ss)
	}

	// Pass 2: resolve each store's stored class's fields, now that every
	// store skeleton (and hence every valid pointer target) exists.
	for _, ss := range schema.stores {
		ann, err := buildAnnSchema(registry, schema, ss.StoredClass)
		if err != nil {
			return nil, fmt.Errorf("resolving store %q: %w", ss.Name, err)
		}
		ss.Ann = ann
	}

	// Pass 3: resolve the document's own fields.
	for _, fd := range doc.Fields() {
		fs, err := resolveField(registry, schema, fd, false)
		if err != nil {
			return nil, fmt.Errorf("resolving document field %q: %w", fd.Name, err)
		}
		if _, exists := schema.fieldBySerial[fs.Serial]; exists {
			return nil, newDependencyError("duplicate field serial %q on document class %s", fs.Serial, doc.Name())
		}
		schema.fields = append(schema.fields, fs)
		schema.fieldBySerial[fs.Serial] = fs
	}

	return schema, nil
}

func buildAnnSchema(registry *Registry, doc *DocSchema, class *AnnotationClass) (*AnnSchema, error) {
	ann := &AnnSchema{Class: class, Serial: class.Serial(), fieldBySerial: map[string]*FieldSchema{}}
	for _, fd := range class.Fields() {
		fs, err := resolveField(registry, doc, fd, true)
		if err != nil {
			return nil, fmt.Errorf("class %s: %w", class.Name(), err)
		}
		if _, exists := ann.fieldBySerial[fs.Serial]; exists {
			return nil, newDependencyError("duplicate field serial %q on class %s", fs.Serial, class.Name())
		}
		ann.fields = append(ann.fields, fs)
		ann.fieldBySerial[fs.Serial] = fs
	}
	return ann, nil
}

// resolveField resolves one field declaration. withinStore is true when fd
// belongs to an AnnotationClass backing a store (where SelfPointer and
// SelfPointerCollection have a store to resolve against at decode/encode
// time) and false for a DocumentClass's own fields, which have none --
// declaring a self-pointer there is a schema error (test_schema_assert.py).
func resolveField(registry *Registry, doc *DocSchema, fd *FieldDescriptor, withinStore bool) (*FieldSchema, error) {
	if !withinStore && (fd.Kind == KindSelfPointer || fd.Kind == KindSelfPointerCollection) {
		return nil, newDependencyError("field %q: self-pointer field declared outside any store", fd.Name)
	}

	fs := &FieldSchema{
		Name:       fd.Name,
		Serial:     fd.serial(),
		Kind:       fd.Kind,
		Help:       fd.Help,
		Encoding:   fd.Encoding,
		StoreEmpty: fd.StoreEmpty,
		Default:    fd.Default,
	}

	needsTarget := fd.Kind.needsTargetClass() || (fd.Kind.isSlice() && (fd.TargetClass != nil || fd.TargetClassName != ""))
	if !needsTarget {
		return fs, nil
	}

	targetClass, err := resolveClass(registry, fd.TargetClass, fd.TargetClassName)
	if err != nil {
		return nil, fmt.Errorf("field %q: %w", fd.Name, err)
	}

	if fd.StoreName != "" {
		store, ok := doc.StoreByName(fd.StoreName)
		if !ok {
			store, ok = doc.StoreBySerial(fd.StoreName)
		}
		if !ok {
			return nil, newDependencyError("field %q: no store named %q", fd.Name, fd.StoreName)
		}
		if store.StoredClass != targetClass {
			return nil, newDependencyError("field %q: store %q holds %s, not %s", fd.Name, fd.StoreName, store.StoredClass.Name(), targetClass.Name())
		}
		fs.TargetStore = store
		return fs, nil
	}

	candidates := doc.storesOfClass[targetClass]
	switch len(candidates) {
	case 0:
		return nil, newDependencyError("field %q: no store holds class %s", fd.Name, targetClass.Name())
	case 1:
		fs.TargetStore = candidates[0]
		return fs, nil
	default:
		return nil, newDependencyError("field %q: ambiguous target -- %d stores hold class %s", fd.Name, len(candidates), targetClass.Name())
	}
}
