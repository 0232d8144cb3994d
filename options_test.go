package docrep

import (
	"bytes"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReaderOptionWithSchemaDrivesReadNext(t *testing.T) {
	a := NewAnnotationClass("pkg.OptA", []*FieldDescriptor{Scalar("value")})
	doc := NewDocumentClass("pkg.OptDoc", nil, []*StoreDescriptor{Store("as", a)})
	schema := mustSchema(t, doc)
	d := NewDocument(schema)
	d.Store("as").Create().Set("value", 9)

	var buf bytes.Buffer
	require.NoError(t, NewWriter(&buf).Write(d, schema))

	r := NewReader(bytes.NewReader(buf.Bytes()), WithSchema(schema))
	got, err := r.ReadNext()
	require.NoError(t, err)
	assert.EqualValues(t, 9, got.Store("as").At(0).Get("value"))
}

func TestReaderOptionWithAutomagicDrivesReadNext(t *testing.T) {
	a := NewAnnotationClass("pkg.OptAutoA", []*FieldDescriptor{Scalar("value")})
	doc := NewDocumentClass("pkg.OptAutoDoc", nil, []*StoreDescriptor{Store("as", a)})
	schema := mustSchema(t, doc)
	d := NewDocument(schema)
	d.Store("as").Create().Set("value", 3)

	var buf bytes.Buffer
	require.NoError(t, NewWriter(&buf).Write(d, schema))

	r := NewReader(bytes.NewReader(buf.Bytes()), WithAutomagic())
	got, err := r.ReadNext()
	require.NoError(t, err)
	assert.NotSame(t, a, got.Store("as").Class())
	assert.EqualValues(t, 3, got.Store("as").At(0).Get("value"))
}

// WithStrict(false) tolerates a store table that under-declares its
// instance array's actual length, the way the original implementation
// silently does; the default (strict) Reader rejects the same bytes.
func TestWithStrictFalseTreatsMismatchedStoreLengthAsPermissive(t *testing.T) {
	a := NewAnnotationClass("pkg.LenientA", nil)
	doc := NewDocumentClass("pkg.LenientDoc", nil, []*StoreDescriptor{Store("as", a)})
	schema := mustSchema(t, doc)
	d := NewDocument(schema)
	d.Store("as").Create()
	d.Store("as").Create()

	var buf bytes.Buffer
	require.NoError(t, NewWriter(&buf).Write(d, schema))
	raw := buf.Bytes()

	// Patch the store table's declared nelem for "as" from 2 down to 1,
	// leaving its instance array (still 2 elements) untouched.
	marker := []byte{0xA2, 'a', 's'}
	idx := bytes.Index(raw, marker)
	require.GreaterOrEqual(t, idx, 0)
	nelemPos := idx + len(marker) + 1 // skip the name, then the classID byte
	require.Equal(t, byte(0x02), raw[nelemPos])
	raw[nelemPos] = 0x01

	strict := NewReader(bytes.NewReader(raw))
	_, err := strict.Read(schema)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "instance array has")

	lenient := NewReader(bytes.NewReader(raw), WithStrict(false))
	got, err := lenient.Read(schema)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Store("as").Len())
}

func TestWithLoggerOverridesPerReaderWithoutTouchingPackageDefault(t *testing.T) {
	custom := logrus.New()
	r := NewReader(bytes.NewReader(nil), WithLogger(custom))
	assert.Same(t, custom, r.effectiveLogger())

	plain := NewReader(bytes.NewReader(nil))
	assert.Same(t, log, plain.effectiveLogger())
}

func TestReplaceStoreAlwaysFailsWithValueError(t *testing.T) {
	a := NewAnnotationClass("pkg.RSAnn", nil)
	doc := NewDocumentClass("pkg.RSDoc", nil, []*StoreDescriptor{Store("as", a)})
	schema := mustSchema(t, doc)
	d := NewDocument(schema)

	err := d.ReplaceStore("as", newStore("as", a))
	require.Error(t, err)
	var ve *ValueError
	assert.ErrorAs(t, err, &ve)
}

func TestReadReturnsCleanEOFAtDocumentBoundary(t *testing.T) {
	a := NewAnnotationClass("pkg.EOFA", nil)
	doc := NewDocumentClass("pkg.EOFDoc", nil, []*StoreDescriptor{Store("as", a)})
	schema := mustSchema(t, doc)
	d := NewDocument(schema)

	var buf bytes.Buffer
	require.NoError(t, NewWriter(&buf).Write(d, schema))

	r := NewReader(bytes.NewReader(buf.Bytes()))
	_, err := r.Read(schema)
	require.NoError(t, err)

	_, err = r.Read(schema)
	assert.Same(t, io.EOF, err)
}

func TestReadMidDocumentEOFIsWrappedReaderError(t *testing.T) {
	a := NewAnnotationClass("pkg.MidEOFA", nil)
	doc := NewDocumentClass("pkg.MidEOFDoc", nil, []*StoreDescriptor{Store("as", a)})
	schema := mustSchema(t, doc)
	d := NewDocument(schema)

	var buf bytes.Buffer
	require.NoError(t, NewWriter(&buf).Write(d, schema))
	truncated := buf.Bytes()[:len(buf.Bytes())-2]

	r := NewReader(bytes.NewReader(truncated))
	_, err := r.Read(schema)
	require.Error(t, err)
	assert.NotEqual(t, io.EOF, err)
	var re *ReaderError
	assert.ErrorAs(t, err, &re)
}
