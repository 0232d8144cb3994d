package docrep

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryRegisterAndLookup(t *testing.T) {
	r := NewRegistry()
	token := NewAnnotationClass("pkg.Token", []*FieldDescriptor{Scalar("text")})

	require.NoError(t, r.RegisterAnnotation(token))

	got, err := r.Lookup("pkg.Token")
	require.NoError(t, err)
	assert.Same(t, token, got)
}

func TestRegistryDuplicateNameFails(t *testing.T) {
	r := NewRegistry()
	a := NewAnnotationClass("pkg.Dup", nil)
	b := NewAnnotationClass("pkg.Dup", nil)

	require.NoError(t, r.RegisterAnnotation(a))
	err := r.RegisterAnnotation(b)
	require.Error(t, err)
	var ve *ValueError
	assert.ErrorAs(t, err, &ve)
}

func TestRegistryDuplicateAcrossAnnAndDocFails(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.RegisterAnnotation(NewAnnotationClass("pkg.X", nil)))
	err := r.RegisterDocument(NewDocumentClass("pkg.X", nil, nil))
	require.Error(t, err)
}

func TestRegistryLookupMissSuggestsSuffixMatch(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.RegisterAnnotation(NewAnnotationClass("pkg.sub.Token", nil)))

	_, err := r.Lookup("other.Token")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "did you mean")
	assert.Contains(t, err.Error(), "pkg.sub.Token")
}

func TestRegistryLookupMissNoSuggestion(t *testing.T) {
	r := NewRegistry()
	_, err := r.Lookup("nothing.Here")
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "did you mean")
}

func TestResolveClassPrefersDirectReference(t *testing.T) {
	r := NewRegistry()
	direct := NewAnnotationClass("pkg.Direct", nil)
	require.NoError(t, r.RegisterAnnotation(NewAnnotationClass("pkg.ByName", nil)))

	got, err := resolveClass(r, direct, "pkg.ByName")
	require.NoError(t, err)
	assert.Same(t, direct, got)
}

func TestResolveClassNoTargetSpecified(t *testing.T) {
	r := NewRegistry()
	_, err := resolveClass(r, nil, "")
	require.Error(t, err)
	var de *DependencyError
	assert.ErrorAs(t, err, &de)
}
