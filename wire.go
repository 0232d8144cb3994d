package docrep

import (
	"bytes"

	"github.com/vmihailenco/msgpack/v5"
)

// WireVersion is the only version of the wire protocol this package reads
// or writes (§6). A stream whose version does not match is a ReaderError.
const WireVersion = 2

// metaClassName is the reserved wire name that denotes the document itself
// rather than one of its stores (§6).
const metaClassName = "__meta__"

// fieldTag enumerates the <field_type> keys of a <field> map (§6).
type fieldTag uint64

const (
	tagName          fieldTag = 0
	tagPointerTo     fieldTag = 1
	tagIsSlice       fieldTag = 2
	tagIsSelfPointer fieldTag = 3
	tagIsCollection  fieldTag = 4
)

// rawValue holds one undecoded MessagePack value, verbatim, so that
// lazy stores and lazy field values can be re-emitted byte-for-byte on
// write without this package having an opinion about their shape (§9
// "unknown extensibility"). msgpack.RawMessage implements exactly this:
// decoding into it captures the encoded bytes of whatever value comes
// next -- self-delimited, the same way any msgpack value is -- and
// encoding it writes those bytes back out unchanged.
type rawValue = msgpack.RawMessage

// packValue runs encode against a fresh encoder over an in-memory buffer
// and returns the packed bytes. The <nbytes> prefix required throughout §6
// is, by definition, the length of a value that has not been written yet,
// so every length-prefixed value on the wire must be packed into a buffer
// before its length can be known and emitted.
func packValue(encode func(*msgpack.Encoder) error) ([]byte, error) {
	var buf bytes.Buffer
	if err := encode(msgpack.NewEncoder(&buf)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
