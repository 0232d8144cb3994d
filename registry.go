package docrep

import (
	"strings"
	"sync"
)

// Registry maps fully-qualified class names to their AnnotationClass or
// DocumentClass, so that Pointer/Slice/Store descriptors declared with a
// target class *name* (rather than a direct reference) can be resolved
// lazily at schema-build time (§4.1). Registration is expected to complete
// during program start-up, before any Reader/Writer is constructed (§5);
// the mutex exists so independent package init() functions can register
// concurrently without the caller having to sequence them by hand, not to
// support registration racing with reads.
type Registry struct {
	mu   sync.RWMutex
	anns map[string]*AnnotationClass
	docs map[string]*DocumentClass
}

// NewRegistry constructs an empty registry. Most programs use Default
// rather than constructing their own, but an isolated Registry is useful
// for tests that register throwaway classes.
func NewRegistry() *Registry {
	return &Registry{anns: map[string]*AnnotationClass{}, docs: map[string]*DocumentClass{}}
}

// Default is the process-wide registry used when a FieldDescriptor or
// StoreDescriptor resolves its target by name without an explicit
// Registry.
var Default = NewRegistry()

// RegisterAnnotation registers c under its fully-qualified name. Fails with
// a ValueError if that name is already registered to any class (§4.1:
// "Registering two classes under the same full name fails").
func (r *Registry) RegisterAnnotation(c *AnnotationClass) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkUnique(c.Name()); err != nil {
		return err
	}
	r.anns[c.Name()] = c
	return nil
}

// RegisterDocument registers c under its fully-qualified name, under the
// same uniqueness rule as RegisterAnnotation.
func (r *Registry) RegisterDocument(c *DocumentClass) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkUnique(c.Name()); err != nil {
		return err
	}
	r.docs[c.Name()] = c
	return nil
}

func (r *Registry) checkUnique(name string) error {
	if _, ok := r.anns[name]; ok {
		return newValueError("the name %q has already been registered", name)
	}
	if _, ok := r.docs[name]; ok {
		return newValueError("the name %q has already been registered", name)
	}
	return nil
}

// Lookup resolves a fully-qualified name to a registered AnnotationClass.
// Registered DocumentClasses are not searched; use LookupDocument for
// those. On miss, the returned error is a DependencyError carrying a "did you
// mean" suggestion when a registered name shares a suffix with the query.
func (r *Registry) Lookup(name string) (*AnnotationClass, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if c, ok := r.anns[name]; ok {
		return c, nil
	}
	return nil, r.missError(name)
}

// LookupDocument resolves a fully-qualified name to a registered
// DocumentClass specifically.
func (r *Registry) LookupDocument(name string) (*DocumentClass, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if c, ok := r.docs[name]; ok {
		return c, nil
	}
	return nil, r.missError(name)
}

func (r *Registry) missError(name string) error {
	if suggestion := r.suggest(name); suggestion != "" {
		return newDependencyError("no class registered as %q; did you mean %q?", name, suggestion)
	}
	return newDependencyError("no class registered as %q", name)
}

// suggest returns, for the "did you mean" hint in §4.1, the longest
// registered name that ends with name's last dot-separated component, or ""
// if none does. Must be called with at least a read lock held.
func (r *Registry) suggest(name string) string {
	shortName := name
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		shortName = name[i+1:]
	}
	if shortName == "" {
		return ""
	}
	best := ""
	for candidate := range r.anns {
		if strings.HasSuffix(candidate, shortName) && len(candidate) > len(best) {
			best = candidate
		}
	}
	for candidate := range r.docs {
		if strings.HasSuffix(candidate, shortName) && len(candidate) > len(best) {
			best = candidate
		}
	}
	return best
}

// resolveClass resolves a FieldDescriptor/StoreDescriptor's target class,
// preferring a direct reference over a name lookup.
func resolveClass(registry *Registry, direct *AnnotationClass, name string) (*AnnotationClass, error) {
	if direct != nil {
		return direct, nil
	}
	if name == "" {
		return nil, newDependencyError("no target class specified")
	}
	return registry.Lookup(name)
}
