// Package schema registers model types and resolves documents to them.
//
// Types are registered once at init time on a Registry; Freeze then validates
// cross-type references and returns an immutable Catalog that the marshaller
// consults for the rest of the process.
package schema

import (
	"fmt"
	"sort"
	"sync"

	"github.com/aretw0/tessera/pkg/core"
)

// Registry collects type descriptors until it is frozen.
type Registry struct {
	mu      sync.Mutex
	types   map[string]*Descriptor
	order   []*Descriptor
	catalog *Catalog
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{types: make(map[string]*Descriptor)}
}

// Register normalizes d and adds it to the registry.
//
// It fails when the name is taken, when the registry is frozen, or when the
// discriminator set of d contains, or is contained in, the set of an already
// registered type.
func (r *Registry) Register(d Descriptor) (*Descriptor, error) {
	desc, err := d.normalize()
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.catalog != nil {
		return nil, fmt.Errorf("%w: cannot register %s", core.ErrRegistryFrozen, desc.Name)
	}
	if _, ok := r.types[desc.Name]; ok {
		return nil, fmt.Errorf("%w: %s", core.ErrDuplicateType, desc.Name)
	}
	for _, other := range r.order {
		if subsumes(desc.Discriminators, other.Discriminators) || subsumes(other.Discriminators, desc.Discriminators) {
			return nil, fmt.Errorf("%w: documents of %s and %s are indistinguishable",
				core.ErrAmbiguousDiscriminator, desc.Name, other.Name)
		}
	}

	r.types[desc.Name] = desc
	r.order = append(r.order, desc)
	return desc, nil
}

// MustRegister is like Register but panics on error. Intended for init blocks.
func (r *Registry) MustRegister(d Descriptor) *Descriptor {
	desc, err := r.Register(d)
	if err != nil {
		panic(err)
	}
	return desc
}

// Freeze closes the registry and returns its catalog. Every field type must
// name a built-in or registered type. Calling Freeze again returns the same catalog.
func (r *Registry) Freeze() (*Catalog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.catalog != nil {
		return r.catalog, nil
	}

	for _, d := range r.order {
		for _, f := range d.Fields {
			for _, t := range []string{f.Type, f.Subtype} {
				if t == "" || IsBuiltin(t) {
					continue
				}
				if _, ok := r.types[t]; !ok {
					return nil, fmt.Errorf("%w: %s.%s refers to %s", core.ErrUnknownType, d.Name, f.Name, t)
				}
			}
		}
	}

	types := make(map[string]*Descriptor, len(r.types))
	for k, v := range r.types {
		types[k] = v
	}
	r.catalog = &Catalog{
		types: types,
		order: append([]*Descriptor(nil), r.order...),
	}
	return r.catalog, nil
}

// Catalog is the immutable snapshot of a frozen registry. It is safe for concurrent use.
type Catalog struct {
	types map[string]*Descriptor
	order []*Descriptor
}

// Lookup resolves a type by name.
func (c *Catalog) Lookup(name string) (*Descriptor, bool) {
	d, ok := c.types[name]
	return d, ok
}

// ResolveByShape returns the type whose full discriminator set matches doc.
// A document matching several types resolves to none; use Resolve to tell
// the two cases apart.
func (c *Catalog) ResolveByShape(doc core.Value) (*Descriptor, bool) {
	d, err := c.Resolve(doc)
	return d, err == nil && d != nil
}

// Resolve is like ResolveByShape but reports a document carrying the
// discriminators of more than one type as ErrAmbiguousDiscriminator.
// It returns nil, nil when no type matches.
func (c *Catalog) Resolve(doc core.Value) (*Descriptor, error) {
	if doc.Kind != core.KindMap {
		return nil, nil
	}
	var found *Descriptor
	for _, d := range c.order {
		if !d.Matches(doc) {
			continue
		}
		if found != nil {
			return nil, fmt.Errorf("%w: document matches %s and %s", core.ErrAmbiguousDiscriminator, found.Name, d.Name)
		}
		found = d
	}
	return found, nil
}

// Contains reports whether d is the descriptor registered under its name.
func (c *Catalog) Contains(d *Descriptor) bool {
	if d == nil {
		return false
	}
	got, ok := c.types[d.Name]
	return ok && got == d
}

// Names returns the registered type names, sorted.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.types))
	for n := range c.types {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered types.
func (c *Catalog) Len() int { return len(c.types) }

// Default is the process-wide registry.
var Default = NewRegistry()

// Register adds d to the Default registry.
func Register(d Descriptor) (*Descriptor, error) { return Default.Register(d) }

// MustRegister adds d to the Default registry and panics on error.
func MustRegister(d Descriptor) *Descriptor { return Default.MustRegister(d) }

// Freeze freezes the Default registry.
func Freeze() (*Catalog, error) { return Default.Freeze() }
