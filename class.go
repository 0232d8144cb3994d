package docrep

import "fmt"

// FieldDescriptor declares one field of an AnnotationClass or DocumentClass.
// Descriptors are immutable once attached to a class (§3).
type FieldDescriptor struct {
	// Name is the in-memory attribute name.
	Name string
	// Serial is the wire token for this field; defaults to Name.
	Serial string
	Kind   FieldKind
	Help   string

	// TargetClass/TargetClassName identify the annotation class a
	// Pointer, PointerCollection, or typed Slice field refers to. Exactly
	// one of the two is normally set; TargetClassName is resolved against
	// a Registry lazily, at schema-build time (§4.1).
	TargetClass     *AnnotationClass
	TargetClassName string

	// StoreName optionally pins the field to a specific store holding
	// TargetClass, resolving the "ambiguous pointer" case (§4.2). Empty
	// means "infer the unique store holding this class".
	StoreName string

	// Encoding is the byte encoding for a KindText field. Only "utf-8" is
	// supported by this implementation.
	Encoding string
	// StoreEmpty, for KindText, forces should_write to be true even for an
	// empty string (§4.6).
	StoreEmpty bool

	// Default is the zero value assigned when an Annotation/Document is
	// constructed without an explicit value for this field.
	Default any
}

func (f *FieldDescriptor) serial() string {
	if f.Serial != "" {
		return f.Serial
	}
	return f.Name
}

// FieldOption mutates a FieldDescriptor during construction.
type FieldOption func(*FieldDescriptor)

// WithSerial overrides the wire token for a field.
func WithSerial(serial string) FieldOption {
	return func(f *FieldDescriptor) { f.Serial = serial }
}

// WithHelp attaches documentation to a field.
func WithHelp(help string) FieldOption {
	return func(f *FieldDescriptor) { f.Help = help }
}

// WithDefault sets the zero-value for a field.
func WithDefault(v any) FieldOption {
	return func(f *FieldDescriptor) { f.Default = v }
}

// WithStore pins a Pointer/PointerCollection/Slice field to an explicitly
// named store, resolving ambiguity when more than one store holds the
// target class.
func WithStore(name string) FieldOption {
	return func(f *FieldDescriptor) { f.StoreName = name }
}

// WithStoreEmpty forces a KindText field to be written even when empty.
func WithStoreEmpty() FieldOption {
	return func(f *FieldDescriptor) { f.StoreEmpty = true }
}

func newField(name string, kind FieldKind, opts ...FieldOption) *FieldDescriptor {
	f := &FieldDescriptor{Name: name, Kind: kind}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Scalar declares a plain value field: any MessagePack-representable type.
func Scalar(name string, opts ...FieldOption) *FieldDescriptor {
	return newField(name, KindScalar, opts...)
}

// DateTime declares an ISO-8601 timestamp field.
func DateTime(name string, opts ...FieldOption) *FieldDescriptor {
	return newField(name, KindDateTime, opts...)
}

// Text declares an encoded-text field. Defaults to utf-8, should_write only
// on non-empty values; use WithStoreEmpty to force empty strings onto the
// wire.
func Text(name string, opts ...FieldOption) *FieldDescriptor {
	f := newField(name, KindText, opts...)
	if f.Encoding == "" {
		f.Encoding = "utf-8"
	}
	return f
}

// Slice declares a byteslice field: a half-open interval into bytes the
// schema does not otherwise describe.
func Slice(name string, opts ...FieldOption) *FieldDescriptor {
	return newField(name, KindSlice, opts...)
}

// AnnotationSlice declares a half-open interval into the given target
// store, resolved the same way a Pointer field is (§4.2).
func AnnotationSlice(name string, target *AnnotationClass, opts ...FieldOption) *FieldDescriptor {
	f := newField(name, KindSlice, opts...)
	f.TargetClass = target
	return f
}

// AnnotationSliceByName is AnnotationSlice but resolves the target class by
// registered name at schema-build time.
func AnnotationSliceByName(name, targetClassName string, opts ...FieldOption) *FieldDescriptor {
	f := newField(name, KindSlice, opts...)
	f.TargetClassName = targetClassName
	return f
}

// Pointer declares a reference to a single annotation of the given class.
func Pointer(name string, target *AnnotationClass, opts ...FieldOption) *FieldDescriptor {
	f := newField(name, KindPointer, opts...)
	f.TargetClass = target
	return f
}

// PointerByName is Pointer but resolves the target class by registered name
// at schema-build time.
func PointerByName(name, targetClassName string, opts ...FieldOption) *FieldDescriptor {
	f := newField(name, KindPointer, opts...)
	f.TargetClassName = targetClassName
	return f
}

// PointerCollection declares a reference to a list of annotations of the
// given class.
func PointerCollection(name string, target *AnnotationClass, opts ...FieldOption) *FieldDescriptor {
	f := newField(name, KindPointerCollection, opts...)
	f.TargetClass = target
	return f
}

// PointerCollectionByName is PointerCollection but resolves the target
// class by registered name at schema-build time.
func PointerCollectionByName(name, targetClassName string, opts ...FieldOption) *FieldDescriptor {
	f := newField(name, KindPointerCollection, opts...)
	f.TargetClassName = targetClassName
	return f
}

// SelfPointer declares a reference to a single annotation in the same store
// as the annotation that owns this field.
func SelfPointer(name string, opts ...FieldOption) *FieldDescriptor {
	return newField(name, KindSelfPointer, opts...)
}

// SelfPointerCollection declares a reference to a list of annotations in
// the same store as the annotation that owns this field.
func SelfPointerCollection(name string, opts ...FieldOption) *FieldDescriptor {
	return newField(name, KindSelfPointerCollection, opts...)
}

// StoreDescriptor declares one store of a DocumentClass: an ordered
// sequence of annotations of a single class (§3). A store may not appear on
// an AnnotationClass, only on a DocumentClass -- that is enforced
// structurally, since only DocumentClass has a Stores() accessor.
type StoreDescriptor struct {
	Name   string
	Serial string
	Help   string

	Class     *AnnotationClass
	ClassName string
}

func (s *StoreDescriptor) serial() string {
	if s.Serial != "" {
		return s.Serial
	}
	return s.Name
}

// StoreOption mutates a StoreDescriptor during construction.
type StoreOption func(*StoreDescriptor)

// WithStoreSerial overrides a store's wire token.
func WithStoreSerial(serial string) StoreOption {
	return func(s *StoreDescriptor) { s.Serial = serial }
}

// WithStoreHelp attaches documentation to a store.
func WithStoreHelp(help string) StoreOption {
	return func(s *StoreDescriptor) { s.Help = help }
}

// Store declares a store holding annotations of the given class.
func Store(name string, class *AnnotationClass, opts ...StoreOption) *StoreDescriptor {
	s := &StoreDescriptor{Name: name, Class: class}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// StoreByName declares a store whose class is resolved by registered name
// at schema-build time.
func StoreByName(name, className string, opts ...StoreOption) *StoreDescriptor {
	s := &StoreDescriptor{Name: name, ClassName: className}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// classCore is the field-bearing part shared by AnnotationClass and
// DocumentClass: an ordered, name-composed set of fields (§4.1).
type classCore struct {
	name   string
	serial string
	help   string

	fields     []*FieldDescriptor
	fieldIndex map[string]*FieldDescriptor

	repr func(values map[string]any) string
}

func newClassCore(name string) classCore {
	return classCore{name: name, serial: name, fieldIndex: map[string]*FieldDescriptor{}}
}

// ReprFunc returns the class's custom repr override, or nil if it uses the
// default field-by-field rendering (see Repr in dump.go).
func (c *classCore) ReprFunc() func(map[string]any) string { return c.repr }

func (c *classCore) mergeFieldsFrom(base *classCore) {
	for _, f := range base.fields {
		c.putField(f)
	}
}

// putField appends f, or replaces an existing field of the same name
// in-place (child-declared names override, §4.1).
func (c *classCore) putField(f *FieldDescriptor) {
	if existing, ok := c.fieldIndex[f.Name]; ok {
		for i, cur := range c.fields {
			if cur == existing {
				c.fields[i] = f
				break
			}
		}
	} else {
		c.fields = append(c.fields, f)
	}
	c.fieldIndex[f.Name] = f
}

// Fields returns the declared fields in order.
func (c *classCore) Fields() []*FieldDescriptor { return c.fields }

// Field looks up a field by in-memory name.
func (c *classCore) Field(name string) (*FieldDescriptor, bool) {
	f, ok := c.fieldIndex[name]
	return f, ok
}

// Name returns the class's fully-qualified registered name.
func (c *classCore) Name() string { return c.name }

// Serial returns the class's wire token.
func (c *classCore) Serial() string { return c.serial }

// Help returns the class's documentation string.
func (c *classCore) Help() string { return c.help }

// AnnotationClass is a registered, named annotation type: an ordered set of
// fields with no stores of its own (§3: "a store field may not appear on an
// annotation class").
type AnnotationClass struct {
	classCore
}

// ClassOption mutates an AnnotationClass during construction. A
// DocumentClass takes DocClassOption instead.
type ClassOption func(*classCore)

// WithClassSerial overrides a class's wire token (defaults to its name).
func WithClassSerial(serial string) ClassOption {
	return func(c *classCore) { c.serial = serial }
}

// WithClassHelp attaches documentation to a class.
func WithClassHelp(help string) ClassOption {
	return func(c *classCore) { c.help = help }
}

// WithRepr overrides Repr's rendering of an instance of this class with fn,
// which receives the instance's known field values by in-memory name.
func WithRepr(fn func(values map[string]any) string) ClassOption {
	return func(c *classCore) { c.repr = fn }
}

// WithBase composes the fields of an existing AnnotationClass into a new
// one; fields declared directly on the new class override same-named base
// fields in place (§4.1).
func WithBase(base *AnnotationClass) ClassOption {
	return func(c *classCore) { c.mergeFieldsFrom(&base.classCore) }
}

// checkNoDuplicateFieldNames panics if fields declares the same in-memory
// name twice. A class's own field list is authored in one place, so a
// collision there is a declaration mistake -- unlike a WithBase override,
// which legitimately replaces a base field of the same name after this
// check has already run.
func checkNoDuplicateFieldNames(className string, fields []*FieldDescriptor) {
	seen := map[string]bool{}
	for _, f := range fields {
		if seen[f.Name] {
			panic(fmt.Sprintf("docrep: class %q declares field %q twice", className, f.Name))
		}
		seen[f.Name] = true
	}
}

// NewAnnotationClass constructs (but does not register) an annotation
// class with the given fully-qualified name and fields.
func NewAnnotationClass(name string, fields []*FieldDescriptor, opts ...ClassOption) *AnnotationClass {
	c := &AnnotationClass{classCore: newClassCore(name)}
	for _, opt := range opts {
		opt(&c.classCore)
	}
	checkNoDuplicateFieldNames(name, fields)
	for _, f := range fields {
		c.putField(f)
	}
	return c
}

func (c *AnnotationClass) String() string {
	return fmt.Sprintf("AnnotationClass(%s)", c.name)
}

// DocumentClass is a registered, named document type: fields of its own
// plus an ordered set of stores (§3). It is serialized on the wire as the
// class named "__meta__".
type DocumentClass struct {
	classCore

	stores     []*StoreDescriptor
	storeIndex map[string]*StoreDescriptor
}

// DocClassOption mutates a DocumentClass under construction. Unlike
// ClassOption, it sees the whole DocumentClass rather than just its
// classCore, which WithDocBase needs in order to also inherit stores.
type DocClassOption func(*DocumentClass)

// WithDocClassSerial overrides a document class's wire token (defaults to
// its name).
func WithDocClassSerial(serial string) DocClassOption {
	return func(c *DocumentClass) { c.serial = serial }
}

// WithDocClassHelp attaches documentation to a document class.
func WithDocClassHelp(help string) DocClassOption {
	return func(c *DocumentClass) { c.help = help }
}

// WithDocRepr overrides Repr's rendering of a document instance with fn.
func WithDocRepr(fn func(values map[string]any) string) DocClassOption {
	return func(c *DocumentClass) { c.repr = fn }
}

// WithDocBase composes the fields and stores of an existing DocumentClass
// into a new one; fields/stores declared directly on the new class override
// same-named base entries in place (§4.1: "Fields and stores inherited from
// base classes are merged").
func WithDocBase(base *DocumentClass) DocClassOption {
	return func(c *DocumentClass) {
		c.mergeFieldsFrom(&base.classCore)
		for _, s := range base.stores {
			c.putStore(s)
		}
	}
}

// NewDocumentClass constructs (but does not register) a document class
// with the given fully-qualified name, fields, and stores.
func NewDocumentClass(name string, fields []*FieldDescriptor, stores []*StoreDescriptor, opts ...DocClassOption) *DocumentClass {
	c := &DocumentClass{classCore: newClassCore(name), storeIndex: map[string]*StoreDescriptor{}}
	for _, opt := range opts {
		opt(c)
	}
	checkNoDuplicateFieldNames(name, fields)
	checkNoDuplicateStoreNames(name, stores)
	for _, f := range fields {
		c.putField(f)
	}
	for _, s := range stores {
		c.putStore(s)
	}
	return c
}

// checkNoDuplicateStoreNames panics if stores declares the same in-memory
// name twice (test_fields.py / test_schema_assert.py: a document class's
// own store list rejects duplicates immediately).
func checkNoDuplicateStoreNames(className string, stores []*StoreDescriptor) {
	seen := map[string]bool{}
	for _, s := range stores {
		if seen[s.Name] {
			panic(fmt.Sprintf("docrep: document class %q declares store %q twice", className, s.Name))
		}
		seen[s.Name] = true
	}
}

func (c *DocumentClass) putStore(s *StoreDescriptor) {
	if existing, ok := c.storeIndex[s.Name]; ok {
		for i, cur := range c.stores {
			if cur == existing {
				c.stores[i] = s
				break
			}
		}
	} else {
		c.stores = append(c.stores, s)
	}
	c.storeIndex[s.Name] = s
}

// Stores returns the declared stores in order.
func (c *DocumentClass) Stores() []*StoreDescriptor { return c.stores }

// StoreDescriptorByName looks up a store declaration by its in-memory name.
func (c *DocumentClass) StoreDescriptorByName(name string) (*StoreDescriptor, bool) {
	s, ok := c.storeIndex[name]
	return s, ok
}

func (c *DocumentClass) String() string {
	return fmt.Sprintf("DocumentClass(%s)", c.name)
}
