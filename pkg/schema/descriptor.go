package schema

import (
	"fmt"
	"sort"

	"github.com/aretw0/tessera/pkg/core"
)

// DefaultIDField is added to types registered without identifier fields.
const DefaultIDField = "_id"

// DefaultDiscriminator tags documents of types registered without discriminators.
const DefaultDiscriminator = "_type"

// Descriptor is the registered shape of a model type.
// Descriptors handed out by a Registry must not be modified.
type Descriptor struct {
	Name           string
	Fields         []Field
	ID             []string
	Discriminators map[string]core.Value
	// Embed types are always inlined into their container and never become references.
	Embed bool

	index map[string]int
}

// Field returns the declared field called name.
func (d *Descriptor) Field(name string) (Field, bool) {
	i, ok := d.index[name]
	if !ok {
		return Field{}, false
	}
	return d.Fields[i], true
}

// Matches reports whether doc carries every discriminator of d.
func (d *Descriptor) Matches(doc core.Value) bool {
	if doc.Kind != core.KindMap {
		return false
	}
	for k, want := range d.Discriminators {
		got, ok := doc.Map[k]
		if !ok || !got.Equal(want) {
			return false
		}
	}
	return true
}

// DiscriminatorKeys returns the discriminator field names, sorted.
func (d *Descriptor) DiscriminatorKeys() []string {
	keys := make([]string, 0, len(d.Discriminators))
	for k := range d.Discriminators {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (d Descriptor) normalize() (*Descriptor, error) {
	if d.Name == "" {
		return nil, fmt.Errorf("%w: type name is empty", core.ErrInvalidSchema)
	}
	if IsBuiltin(d.Name) {
		return nil, fmt.Errorf("%w: %s is a built-in type name", core.ErrInvalidSchema, d.Name)
	}

	out := &Descriptor{
		Name:  d.Name,
		Embed: d.Embed,
		index: make(map[string]int, len(d.Fields)+1),
	}
	out.Fields = append(out.Fields, d.Fields...)

	ids := append([]string(nil), d.ID...)
	if len(ids) == 0 {
		if !hasField(out.Fields, DefaultIDField) {
			out.Fields = append(out.Fields, Field{Name: DefaultIDField, Auto: AutoUUID})
		}
		ids = []string{DefaultIDField}
	}
	out.ID = ids

	for i := range out.Fields {
		f := &out.Fields[i]
		if f.Name == "" {
			return nil, fmt.Errorf("%w: %s has a field without a name", core.ErrInvalidSchema, d.Name)
		}
		if f.Name == core.RefField {
			return nil, fmt.Errorf("%w: %s: %s is reserved for reference markers", core.ErrInvalidSchema, d.Name, core.RefField)
		}
		if _, dup := out.index[f.Name]; dup {
			return nil, fmt.Errorf("%w: %s declares field %s twice", core.ErrInvalidSchema, d.Name, f.Name)
		}
		out.index[f.Name] = i

		if f.Type == "" && f.Auto == AutoNone {
			f.Type = TypeMixed
		}
		switch f.Auto {
		case AutoNone:
		case AutoUUID:
			if f.Type != "" && f.Type != TypeString {
				return nil, fmt.Errorf("%w: %s.%s: uuid fields must be string typed", core.ErrInvalidSchema, d.Name, f.Name)
			}
			f.Type = TypeString
			f.ReadOnly = true
		default:
			return nil, fmt.Errorf("%w: %s.%s: unknown auto mode %q", core.ErrInvalidSchema, d.Name, f.Name, f.Auto)
		}
	}

	for _, id := range out.ID {
		i, ok := out.index[id]
		if !ok {
			return nil, fmt.Errorf("%w: %s: identifier %s is not a declared field", core.ErrInvalidSchema, d.Name, id)
		}
		if !out.Fields[i].ReadOnly {
			return nil, fmt.Errorf("%w: %s: identifier %s must be read-only", core.ErrInvalidSchema, d.Name, id)
		}
		out.Fields[i].Required = true
	}

	switch {
	case d.Discriminators == nil:
		out.Discriminators = map[string]core.Value{DefaultDiscriminator: core.String(d.Name)}
	case len(d.Discriminators) == 0:
		return nil, fmt.Errorf("%w: %s: empty discriminator set matches every document", core.ErrInvalidSchema, d.Name)
	default:
		out.Discriminators = make(map[string]core.Value, len(d.Discriminators))
		for k, v := range d.Discriminators {
			if k == core.RefField {
				return nil, fmt.Errorf("%w: %s: %s is reserved for reference markers", core.ErrInvalidSchema, d.Name, core.RefField)
			}
			if v.IsComposite() {
				return nil, fmt.Errorf("%w: %s: discriminator %s must be a scalar", core.ErrInvalidSchema, d.Name, k)
			}
			out.Discriminators[k] = v
		}
	}

	return out, nil
}

func hasField(fields []Field, name string) bool {
	for _, f := range fields {
		if f.Name == name {
			return true
		}
	}
	return false
}

// subsumes reports whether every pair of b also appears in a. Every document
// tagged with a then also carries b, so resolution could never tell them apart.
func subsumes(a, b map[string]core.Value) bool {
	for k, vb := range b {
		va, ok := a[k]
		if !ok || !va.Equal(vb) {
			return false
		}
	}
	return true
}
