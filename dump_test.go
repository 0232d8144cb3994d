package docrep

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newReprDoc(t *testing.T) (*DocSchema, *AnnotationClass) {
	t.Helper()
	myAnn := NewAnnotationClass("pkg.MyAnn", []*FieldDescriptor{
		Scalar("foo"),
		SelfPointerCollection("others"),
		SelfPointer("prev"),
	})
	doc := NewDocumentClass("pkg.MyDoc", []*FieldDescriptor{
		Scalar("b"),
		Scalar("a"),
		Scalar("c", WithSerial("c")),
		Slice("sl"),
	}, []*StoreDescriptor{
		Store("anns", myAnn),
		Store("more_anns", myAnn),
	})
	schema, err := BuildSchema(nil, doc)
	require.NoError(t, err)
	return schema, myAnn
}

func TestReprHidesDefaults(t *testing.T) {
	schema, _ := newReprDoc(t)
	d := NewDocument(schema)
	assert.Equal(t, "MyDoc()", Repr(d))

	d.Store("anns").Create()
	assert.Equal(t, "MyDoc(anns=[MyAnn()])", Repr(d))
}

func TestReprList(t *testing.T) {
	schema, _ := newReprDoc(t)
	d := NewDocument(schema)
	d.Store("anns").CreateN(3)
	assert.Equal(t, "MyDoc(anns=[MyAnn(), MyAnn(), MyAnn()])", Repr(d))
}

func TestReprListEllipsis(t *testing.T) {
	schema, _ := newReprDoc(t)
	d := NewDocument(schema)
	d.Store("anns").CreateN(4000)
	s := Repr(d)
	assert.Less(t, len(s), 1000)
	assert.Contains(t, s, "...]")
}

func TestReprSortingFieldsThenStores(t *testing.T) {
	schema, _ := newReprDoc(t)
	d := NewDocument(schema)
	d.Set("b", 5)
	d.Set("a", 6)
	d.Store("anns").Create()
	d.Store("more_anns").Create()
	assert.Equal(t, "MyDoc(a=6, b=5, anns=[MyAnn()], more_anns=[MyAnn()])", Repr(d))
}

func TestReprSlice(t *testing.T) {
	schema, _ := newReprDoc(t)
	d := NewDocument(schema)
	d.Set("sl", Span{Start: 5, Length: 1})
	assert.Equal(t, "MyDoc(sl=slice(5, 6))", Repr(d))
}

func TestReprLimitedNesting(t *testing.T) {
	schema, _ := newReprDoc(t)
	d := NewDocument(schema)
	anns := d.Store("anns").CreateN(3)
	for i, a := range anns {
		a.Set("foo", i)
		a.Set("prev", anns[(i-1+len(anns))%len(anns)])
	}
	assert.Equal(t,
		"MyDoc(anns=[MyAnn(foo=0, prev=MyAnn(...)), MyAnn(foo=1, prev=MyAnn(...)), MyAnn(foo=2, prev=MyAnn(...))])",
		Repr(d))
	assert.Equal(t, "MyAnn(foo=0, prev=MyAnn(foo=2, prev=MyAnn(...)))", Repr(anns[0]))
}

func TestReprPointerLists(t *testing.T) {
	schema, _ := newReprDoc(t)
	d := NewDocument(schema)
	anns := d.Store("anns").CreateN(3)
	for i, a := range anns {
		a.Set("foo", i)
	}
	anns[0].Set("others", anns[1:])
	assert.Equal(t, "MyAnn(foo=0, others=[MyAnn(foo=1), MyAnn(foo=2)])", Repr(anns[0]))
}

func TestReprOverriddenRepr(t *testing.T) {
	special := NewAnnotationClass("pkg.SpecialAnn", nil, WithRepr(func(map[string]any) string { return "Yo!" }))
	doc := NewDocumentClass("pkg.OverrideDoc", nil, []*StoreDescriptor{Store("specials", special)})
	schema, err := BuildSchema(nil, doc)
	require.NoError(t, err)

	d := NewDocument(schema)
	d.Store("specials").Create()
	assert.Equal(t, "OverrideDoc(specials=[Yo!])", Repr(d))
}

func TestDumpUsesSpew(t *testing.T) {
	schema, _ := newReprDoc(t)
	d := NewDocument(schema)
	var buf bytes.Buffer
	require.NoError(t, Dump(&buf, d))
	assert.Contains(t, buf.String(), "Document")
}

func TestDocumentGoStringMatchesRepr(t *testing.T) {
	schema, _ := newReprDoc(t)
	d := NewDocument(schema)
	assert.Equal(t, Repr(d), d.GoString())
}
