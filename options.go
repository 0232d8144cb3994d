package docrep

import "github.com/sirupsen/logrus"

// ReaderOption configures a Reader constructed by NewReader.
type ReaderOption func(*Reader)

// WithAutomagic configures ReadNext to synthesize a schema from each
// document's own wire header (§4.7) instead of requiring one from the
// caller. Equivalent to calling ReadAutomagic directly.
func WithAutomagic() ReaderOption {
	return func(r *Reader) { r.automagic = true }
}

// WithSchema configures ReadNext to decode every document against schema
// (§4.3). Equivalent to calling Read(schema) directly.
func WithSchema(schema *DocSchema) ReaderOption {
	return func(r *Reader) {
		r.automagic = false
		r.schema = schema
	}
}

// WithStrict controls whether a store's declared element count must equal
// its instance array's length (the open question §9 leaves the source
// silent on). Readers are strict by default; WithStrict(false) tolerates a
// mismatch the way the original implementation silently does, discarding
// any element beyond what the header declared.
func WithStrict(strict bool) ReaderOption {
	return func(r *Reader) { r.strict = strict }
}

// WithLogger overrides the diagnostic logger this Reader alone uses,
// without touching the package-level default (see SetLogger). Passing nil
// is a no-op.
func WithLogger(l *logrus.Logger) ReaderOption {
	return func(r *Reader) {
		if l != nil {
			r.logger = l
		}
	}
}

// WriterOption configures a Writer constructed by NewWriter.
type WriterOption func(*Writer)

// WithWriterLogger overrides the diagnostic logger this Writer alone uses
// for RT merge decisions, without touching the package-level default.
// Passing nil is a no-op.
func WithWriterLogger(l *logrus.Logger) WriterOption {
	return func(w *Writer) {
		if l != nil {
			w.logger = l
		}
	}
}
