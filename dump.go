package docrep

import (
	"fmt"
	"io"
	"reflect"
	"sort"
	"strings"

	"github.com/davecgh/go-spew/spew"
)

// maxReprDepth bounds how far Repr follows Pointer/SelfPointer fields before
// collapsing an object to "ClassName(...)", so a cyclic document (the common
// case: annotations pointing at their neighbours) always terminates
// (original_source tests/test_repr.py test_limited_nesting).
const maxReprDepth = 2

// maxReprListElems caps how many elements of a store or pointer-collection
// field Repr renders before truncating with "...]" (test_list_ellipsis).
const maxReprListElems = 20

// Repr renders v (a *Document or *Annotation) the way the source model's
// __repr__ did: fields in alphabetical order, defaults hidden, nested
// pointers collapsed past maxReprDepth, long lists truncated. It is meant
// for logging and debugging, not as a wire format.
func Repr(v any) string {
	switch t := v.(type) {
	case *Document:
		return reprDocument(t, 0)
	case *Annotation:
		return reprAnnotation(t, 0)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// Dump writes doc to w with full structural detail via go-spew, bypassing
// Repr's default-hiding and depth limit entirely. Use it when Repr's
// abbreviated view hides the thing you're actually debugging.
func Dump(w io.Writer, doc *Document) error {
	_, err := io.WriteString(w, spew.Sdump(doc))
	return err
}

// GoString implements fmt.GoStringer, so %#v on a Document renders through
// Repr instead of spilling every unexported field.
func (d *Document) GoString() string { return Repr(d) }

// GoString implements fmt.GoStringer for an Annotation, same as Document.
func (a *Annotation) GoString() string { return Repr(a) }

func reprDocument(d *Document, depth int) string {
	if fn := d.Class().ReprFunc(); fn != nil {
		return fn(d.values)
	}
	if depth >= maxReprDepth {
		return simpleClassName(d.Class().Name()) + "(...)"
	}
	var parts []string
	for _, name := range sortedFieldNames(d.Class().Fields(), d.values) {
		parts = append(parts, name+"="+reprValue(d.values[name], depth+1))
	}
	storeNames := append([]string(nil), d.storeOrder...)
	sort.Strings(storeNames)
	for _, name := range storeNames {
		store := d.Store(name)
		if store.Len() == 0 {
			continue
		}
		parts = append(parts, name+"="+reprAnnotationList(store.All(), depth+1))
	}
	return simpleClassName(d.Class().Name()) + "(" + strings.Join(parts, ", ") + ")"
}

func reprAnnotation(a *Annotation, depth int) string {
	if fn := a.class.ReprFunc(); fn != nil {
		return fn(a.values)
	}
	if depth >= maxReprDepth {
		return simpleClassName(a.class.Name()) + "(...)"
	}
	var parts []string
	for _, name := range sortedFieldNames(a.class.Fields(), a.values) {
		parts = append(parts, name+"="+reprValue(a.values[name], depth+1))
	}
	return simpleClassName(a.class.Name()) + "(" + strings.Join(parts, ", ") + ")"
}

// sortedFieldNames returns, alphabetically, the names of fields whose
// current value differs from its declared default (§4.6 default handling;
// test_hides_defaults).
func sortedFieldNames(fields []*FieldDescriptor, values map[string]any) []string {
	var names []string
	for _, f := range fields {
		if !reflect.DeepEqual(values[f.Name], f.Default) {
			names = append(names, f.Name)
		}
	}
	sort.Strings(names)
	return names
}

func reprValue(v any, depth int) string {
	switch t := v.(type) {
	case *Annotation:
		return reprAnnotation(t, depth)
	case []*Annotation:
		return reprAnnotationList(t, depth)
	case Span:
		return fmt.Sprintf("slice(%d, %d)", t.Start, t.End())
	case string:
		return "'" + t + "'"
	case nil:
		return "None"
	default:
		return fmt.Sprintf("%v", t)
	}
}

func reprAnnotationList(anns []*Annotation, depth int) string {
	n := len(anns)
	truncated := n > maxReprListElems
	if truncated {
		n = maxReprListElems
	}
	parts := make([]string, n)
	for i := 0; i < n; i++ {
		parts[i] = reprAnnotation(anns[i], depth)
	}
	body := strings.Join(parts, ", ")
	if truncated {
		return "[" + body + ", ...]"
	}
	return "[" + body + "]"
}

func simpleClassName(name string) string {
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		return name[i+1:]
	}
	return name
}
