package docrep

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustSchema(t *testing.T, doc *DocumentClass) *DocSchema {
	t.Helper()
	schema, err := BuildSchema(nil, doc)
	require.NoError(t, err)
	return schema
}

func TestBuildOrMergeRTFreshAssignsContiguousIds(t *testing.T) {
	a := NewAnnotationClass("pkg.RTA", []*FieldDescriptor{Scalar("value")})
	b := NewAnnotationClass("pkg.RTB", nil)
	doc := NewDocumentClass("pkg.RTDoc", nil, []*StoreDescriptor{
		Store("as", a),
		Store("bs", b),
	})
	schema := mustSchema(t, doc)

	rt := buildOrMergeRT(nil, schema)
	require.NoError(t, rt.Validate())

	asStore, ok := rt.StoreByName("as")
	require.True(t, ok)
	bsStore, ok := rt.StoreByName("bs")
	require.True(t, ok)
	assert.NotEqual(t, asStore.ID, bsStore.ID)
	// meta class always comes last.
	assert.Equal(t, len(rt.classes)-1, rt.metaClassID)
}

func TestBuildOrMergeRTPreservesIdsAcrossExpandedSchema(t *testing.T) {
	a := NewAnnotationClass("pkg.MergeA", nil)
	doc1 := NewDocumentClass("pkg.MergeDoc1", nil, []*StoreDescriptor{Store("as", a)})
	schema1 := mustSchema(t, doc1)
	rt1 := buildOrMergeRT(nil, schema1)
	asID := mustStore(t, rt1, "as").ID

	b := NewAnnotationClass("pkg.MergeB", nil)
	doc2 := NewDocumentClass("pkg.MergeDoc2", nil, []*StoreDescriptor{
		Store("as", a),
		Store("bs", b),
	})
	schema2 := mustSchema(t, doc2)
	rt2 := buildOrMergeRT(rt1, schema2)

	require.NoError(t, rt2.Validate())
	assert.Equal(t, asID, mustStore(t, rt2, "as").ID, "id of a surviving store must not change across merge")
	assert.Equal(t, len(rt1.stores), mustStore(t, rt2, "bs").ID, "new store id must continue past the prior maximum")
}

func TestBuildOrMergeRTCarriesLeftoverLazyStore(t *testing.T) {
	a := NewAnnotationClass("pkg.LazyA", nil)
	b := NewAnnotationClass("pkg.LazyB", nil)
	doc1 := NewDocumentClass("pkg.LazyDoc1", nil, []*StoreDescriptor{
		Store("as", a),
		Store("bs", b),
	})
	schema1 := mustSchema(t, doc1)
	rt1 := buildOrMergeRT(nil, schema1)
	bsID := mustStore(t, rt1, "bs").ID

	// A second, narrower schema that drops "bs" entirely.
	doc2 := NewDocumentClass("pkg.LazyDoc2", nil, []*StoreDescriptor{
		Store("as", a),
	})
	schema2 := mustSchema(t, doc2)
	rt2 := buildOrMergeRT(rt1, schema2)

	bs := mustStore(t, rt2, "bs")
	assert.Equal(t, bsID, bs.ID, "leftover lazy store must keep its original id")
	assert.True(t, bs.isLazy())
	require.NoError(t, rt2.Validate())
}

func mustStore(t *testing.T, rt *RTManager, name string) *RTStore {
	t.Helper()
	s, ok := rt.StoreByName(name)
	require.True(t, ok)
	return s
}

func TestCheckContiguousDetectsDuplicateAndOutOfRange(t *testing.T) {
	err := checkContiguous(3, func(i int) int { return []int{0, 1, 1}[i] })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate")

	err = checkContiguous(2, func(i int) int { return []int{0, 5}[i] })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of range")
}
