package docrep

import "fmt"

// ReadAutomagic decodes the next document without any caller-supplied
// schema, synthesizing classes, stores, and fields purely from the wire
// header (§4.7). Each call builds brand new AnnotationClass/DocumentClass
// values, so classes synthesized for one document are never the same
// identity as those synthesized for another even when their serial names
// match -- satisfying the disjointness §9 "Automagic class identity"
// requires without needing any synthesized-class cache.
func (r *Reader) ReadAutomagic() (*Document, error) {
	h, err := r.readHeader()
	if err != nil {
		return nil, err
	}
	schema, err := r.synthesizeSchema(h)
	if err != nil {
		return nil, wrapReaderError(err, "synthesizing automagic schema")
	}
	doc, err := r.decodeBody(h, schema)
	if err != nil {
		return nil, err
	}
	r.docOrdinal++
	return doc, nil
}

// synthesizeSchema builds a throwaway DocSchema describing exactly the
// classes and stores h declares, keyed by (r.docOrdinal, serial name) in
// the synthesized classes' registration-style names purely for
// diagnostic/debugging purposes (§9). It never touches a Registry: every
// Pointer/Slice/Store reference is resolved by direct class reference.
func (r *Reader) synthesizeSchema(h *wireHeader) (*DocSchema, error) {
	metaIdx := -1
	classes := make([]*AnnotationClass, len(h.classes))
	for i, wc := range h.classes {
		if wc.Name == metaClassName && metaIdx == -1 {
			metaIdx = i
			continue
		}
		name := fmt.Sprintf("automagic.doc%d.%s", r.docOrdinal, wc.Name)
		r.effectiveLogger().Debugf("docrep: automagic: synthesizing class %q for wire class %q", name, wc.Name)
		classes[i] = NewAnnotationClass(name, nil, WithClassSerial(wc.Name))
	}
	if metaIdx == -1 {
		return nil, newReaderError("class table has no %q entry", metaClassName)
	}

	storeDescs := make([]*StoreDescriptor, len(h.stores))
	for i, ws := range h.stores {
		if ws.ClassID < 0 || ws.ClassID >= len(classes) || classes[ws.ClassID] == nil {
			return nil, newReaderError("store %q references invalid class id %d", ws.Name, ws.ClassID)
		}
		storeDescs[i] = Store(ws.Name, classes[ws.ClassID])
	}

	resolveTarget := func(storeID *int) *AnnotationClass {
		if storeID == nil || *storeID < 0 || *storeID >= len(h.stores) {
			return nil
		}
		return classes[h.stores[*storeID].ClassID]
	}

	for i, wc := range h.classes {
		if i == metaIdx {
			continue
		}
		for _, wf := range wc.Fields {
			classes[i].putField(synthesizeField(wf, resolveTarget))
		}
	}

	docName := fmt.Sprintf("automagic.doc%d.%s", r.docOrdinal, metaClassName)
	docClass := NewDocumentClass(docName, nil, storeDescs)
	for _, wf := range h.classes[metaIdx].Fields {
		docClass.putField(synthesizeField(wf, resolveTarget))
	}

	return BuildSchema(nil, docClass)
}

func synthesizeField(wf wireField, resolveTarget func(*int) *AnnotationClass) *FieldDescriptor {
	fd := &FieldDescriptor{Name: wf.Name, Serial: wf.Name}
	switch {
	case wf.IsSlice:
		fd.Kind = KindSlice
		fd.TargetClass = resolveTarget(wf.PointerTo)
	case wf.IsSelfPointer:
		if wf.IsCollection {
			fd.Kind = KindSelfPointerCollection
		} else {
			fd.Kind = KindSelfPointer
		}
	case wf.PointerTo != nil:
		if wf.IsCollection {
			fd.Kind = KindPointerCollection
		} else {
			fd.Kind = KindPointer
		}
		fd.TargetClass = resolveTarget(wf.PointerTo)
	default:
		fd.Kind = KindScalar
	}
	return fd
}
