package docrep

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildSchemaSimpleDocument(t *testing.T) {
	doc := NewDocumentClass("pkg.Empty", nil, nil)
	schema, err := BuildSchema(nil, doc)
	require.NoError(t, err)
	assert.Empty(t, schema.Fields())
	assert.Empty(t, schema.Stores())
}

func TestBuildSchemaResolvesUniqueStoreForPointer(t *testing.T) {
	a := NewAnnotationClass("pkg.A", []*FieldDescriptor{Scalar("value")})
	b := NewAnnotationClass("pkg.B", []*FieldDescriptor{Pointer("target", a)})
	doc := NewDocumentClass("pkg.D", nil, []*StoreDescriptor{
		Store("as", a),
		Store("bs", b),
	})

	schema, err := BuildSchema(nil, doc)
	require.NoError(t, err)

	bStore, ok := schema.StoreByName("bs")
	require.True(t, ok)
	targetField, ok := bStore.Ann.FieldBySerial("target")
	require.True(t, ok)

	asStore, ok := schema.StoreByName("as")
	require.True(t, ok)
	assert.Same(t, asStore, targetField.TargetStore)
}

func TestBuildSchemaAmbiguousPointerFails(t *testing.T) {
	a := NewAnnotationClass("pkg.AmbigA", nil)
	b := NewAnnotationClass("pkg.AmbigB", []*FieldDescriptor{Pointer("target", a)})
	doc := NewDocumentClass("pkg.AmbigDoc", nil, []*StoreDescriptor{
		Store("as1", a),
		Store("as2", a),
		Store("bs", b),
	})

	_, err := BuildSchema(nil, doc)
	require.Error(t, err)
	var de *DependencyError
	assert.ErrorAs(t, err, &de)
	assert.Contains(t, err.Error(), "ambiguous")
}

func TestBuildSchemaNamedStoreResolvesAmbiguity(t *testing.T) {
	a := NewAnnotationClass("pkg.NA", nil)
	b := NewAnnotationClass("pkg.NB", []*FieldDescriptor{Pointer("target", a, WithStore("as2"))})
	doc := NewDocumentClass("pkg.NDoc", nil, []*StoreDescriptor{
		Store("as1", a),
		Store("as2", a),
		Store("bs", b),
	})

	schema, err := BuildSchema(nil, doc)
	require.NoError(t, err)
	bStore, _ := schema.StoreByName("bs")
	f, _ := bStore.Ann.FieldBySerial("target")
	as2, _ := schema.StoreByName("as2")
	assert.Same(t, as2, f.TargetStore)
}

func TestBuildSchemaNamedStoreWrongClassFails(t *testing.T) {
	a := NewAnnotationClass("pkg.WA", nil)
	other := NewAnnotationClass("pkg.WOther", nil)
	b := NewAnnotationClass("pkg.WB", []*FieldDescriptor{Pointer("target", a, WithStore("os"))})
	doc := NewDocumentClass("pkg.WDoc", nil, []*StoreDescriptor{
		Store("os", other),
		Store("bs", b),
	})

	_, err := BuildSchema(nil, doc)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "holds")
}

func TestBuildSchemaNoStoreHoldsTargetFails(t *testing.T) {
	a := NewAnnotationClass("pkg.NoA", nil)
	b := NewAnnotationClass("pkg.NoB", []*FieldDescriptor{Pointer("target", a)})
	doc := NewDocumentClass("pkg.NoDoc", nil, []*StoreDescriptor{
		Store("bs", b),
	})

	_, err := BuildSchema(nil, doc)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no store holds")
}

func TestBuildSchemaByNameResolution(t *testing.T) {
	r := NewRegistry()
	a := NewAnnotationClass("pkg.ByNameA", nil)
	require.NoError(t, r.RegisterAnnotation(a))

	b := NewAnnotationClass("pkg.ByNameB", []*FieldDescriptor{PointerByName("target", "pkg.ByNameA")})
	doc := NewDocumentClass("pkg.ByNameDoc", nil, []*StoreDescriptor{
		Store("as", a),
		Store("bs", b),
	})

	schema, err := BuildSchema(r, doc)
	require.NoError(t, err)
	bStore, _ := schema.StoreByName("bs")
	f, _ := bStore.Ann.FieldBySerial("target")
	assert.NotNil(t, f.TargetStore)
}

func TestBuildSchemaUnknownClassNameFails(t *testing.T) {
	r := NewRegistry()
	doc := NewDocumentClass("pkg.MissingDoc", nil, []*StoreDescriptor{
		StoreByName("as", "pkg.DoesNotExist"),
	})

	_, err := BuildSchema(r, doc)
	require.Error(t, err)
	var de *DependencyError
	assert.ErrorAs(t, err, &de)
}

func TestBuildSchemaDuplicateStoreSerialFails(t *testing.T) {
	a := NewAnnotationClass("pkg.DupStoreA", nil)
	doc := NewDocumentClass("pkg.DupStoreDoc", nil, []*StoreDescriptor{
		Store("as", a, WithStoreSerial("same")),
		Store("bs", a, WithStoreSerial("same")),
	})

	_, err := BuildSchema(nil, doc)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate store serial")
}

func TestBuildSchemaSelfPointerOutsideStoreFails(t *testing.T) {
	doc := NewDocumentClass("pkg.SelfPtrDoc", []*FieldDescriptor{SelfPointer("stray")}, nil)

	_, err := BuildSchema(nil, doc)
	require.Error(t, err)
	var de *DependencyError
	assert.ErrorAs(t, err, &de)
	assert.Contains(t, err.Error(), "self-pointer")
}

func TestBuildSchemaSelfPointerWithinStoreSucceeds(t *testing.T) {
	node := NewAnnotationClass("pkg.SelfOKNode", []*FieldDescriptor{SelfPointer("parent")})
	doc := NewDocumentClass("pkg.SelfOKDoc", nil, []*StoreDescriptor{Store("nodes", node)})

	_, err := BuildSchema(nil, doc)
	require.NoError(t, err)
}

func TestNewAnnotationClassDuplicateFieldNamePanics(t *testing.T) {
	assert.Panics(t, func() {
		NewAnnotationClass("pkg.DupField", []*FieldDescriptor{Scalar("x"), Scalar("x")})
	})
}

func TestNewDocumentClassDuplicateStoreNamePanics(t *testing.T) {
	a := NewAnnotationClass("pkg.DupStoreNameA", nil)
	assert.Panics(t, func() {
		NewDocumentClass("pkg.DupStoreNameDoc", nil, []*StoreDescriptor{Store("as", a), Store("as", a)})
	})
}

func TestBuildSchemaWithBaseOverridesFields(t *testing.T) {
	base := NewAnnotationClass("pkg.Base", []*FieldDescriptor{Scalar("foo"), Scalar("bar")})
	child := NewAnnotationClass("pkg.Child", []*FieldDescriptor{Text("foo")}, WithBase(base))

	names := map[string]FieldKind{}
	for _, f := range child.Fields() {
		names[f.Name] = f.Kind
	}
	assert.Equal(t, KindText, names["foo"])
	assert.Equal(t, KindScalar, names["bar"])
}

func TestWithDocBaseInheritsFieldsAndStores(t *testing.T) {
	a := NewAnnotationClass("pkg.DocBaseA", nil)
	base := NewDocumentClass("pkg.DocBase", []*FieldDescriptor{Scalar("foo")}, []*StoreDescriptor{Store("as", a)})
	child := NewDocumentClass("pkg.DocChild", []*FieldDescriptor{Text("extra")}, nil, WithDocBase(base))

	names := map[string]FieldKind{}
	for _, f := range child.Fields() {
		names[f.Name] = f.Kind
	}
	assert.Equal(t, KindScalar, names["foo"])
	assert.Equal(t, KindText, names["extra"])

	_, ok := child.StoreDescriptorByName("as")
	assert.True(t, ok, "child must inherit base's stores, not just its fields")
}

func TestWithDocBaseChildStoreOverridesBaseStoreOfSameName(t *testing.T) {
	a := NewAnnotationClass("pkg.DocBaseOvA", nil)
	b := NewAnnotationClass("pkg.DocBaseOvB", nil)
	base := NewDocumentClass("pkg.DocBaseOv", nil, []*StoreDescriptor{Store("as", a)})
	child := NewDocumentClass("pkg.DocChildOv", nil, []*StoreDescriptor{Store("as", b)}, WithDocBase(base))

	ss, ok := child.StoreDescriptorByName("as")
	require.True(t, ok)
	assert.Same(t, b, ss.Class)
}
