package model

import (
	"fmt"
	"math"
	"strconv"

	"github.com/aretw0/tessera/pkg/core"
	"github.com/aretw0/tessera/pkg/schema"
)

// Codec converts between documents and object graphs of the types in a catalog.
type Codec struct {
	catalog *schema.Catalog
}

// NewCodec returns a codec bound to catalog.
func NewCodec(catalog *schema.Catalog) *Codec {
	return &Codec{catalog: catalog}
}

// Catalog returns the catalog the codec resolves types against.
func (c *Codec) Catalog() *schema.Catalog { return c.catalog }

// Decode converts doc into an in-memory value of the declared type.
//
// Model typed documents become instances: reference markers resolve through
// cache to shared placeholders, inline documents become loaded instances.
// An inline document decoded with a non-empty keyHint is registered under
// that key. An empty typeName decodes as Mixed.
func (c *Codec) Decode(doc core.Value, typeName string, subtypes []string, cache *Cache, keyHint string) (any, error) {
	if cache == nil {
		cache = NewCache()
	}
	d := &decoder{catalog: c.catalog, cache: cache}
	return d.decode(doc, typeName, subtypes, 0, keyHint)
}

// DecodeRoot decodes the document stored under key as an instance of typeName.
func (c *Codec) DecodeRoot(doc core.Value, typeName string, key string, cache *Cache) (*Instance, error) {
	v, err := c.Decode(doc, typeName, nil, cache, key)
	if err != nil {
		return nil, err
	}
	inst, ok := v.(*Instance)
	if !ok {
		return nil, core.WrapMarshal("decode", nil, typeName, 0,
			fmt.Errorf("%w: document under %s is not an object", core.ErrTypeMismatch, key))
	}
	return inst, nil
}

// Hydrate fills a placeholder, or refreshes a loaded instance, from its
// stored document. References found inside resolve through the instance's cache.
func (c *Codec) Hydrate(inst *Instance, doc core.Value) error {
	cache := inst.attach(NewCache())
	d := &decoder{catalog: c.catalog, cache: cache}
	return d.fill(inst, doc, 0)
}

// DecodeFields decodes the declared fields present in doc without checking
// discriminators. Embedded and referenced instances resolve through cache.
func (c *Codec) DecodeFields(desc *schema.Descriptor, doc core.Value, cache *Cache) (map[string]any, error) {
	if doc.Kind != core.KindMap {
		return nil, core.WrapMarshal("decode", nil, desc.Name, 0,
			fmt.Errorf("%w: expected an object, got %s", core.ErrTypeMismatch, doc.Kind))
	}
	if cache == nil {
		cache = NewCache()
	}
	d := &decoder{catalog: c.catalog, cache: cache}
	return d.fields(desc, doc, 0)
}

type decoder struct {
	catalog *schema.Catalog
	cache   *Cache
	path    []string
}

func (d *decoder) fail(typeName string, depth int, err error) error {
	return core.WrapMarshal("decode", d.path, typeName, depth, err)
}

func (d *decoder) push(seg string) { d.path = append(d.path, seg) }
func (d *decoder) pop()            { d.path = d.path[:len(d.path)-1] }

func (d *decoder) decode(v core.Value, typeName string, subtypes []string, depth int, keyHint string) (any, error) {
	if typeName == "" {
		typeName = schema.TypeMixed
	}
	if v.Kind == core.KindNull {
		return nil, nil
	}
	if desc, ok := d.catalog.Lookup(typeName); ok {
		return d.model(v, desc, depth, keyHint)
	}

	switch typeName {
	case schema.TypeList:
		return d.list(v, subtypes, depth)
	case schema.TypeMap:
		return d.mapping(v, subtypes, depth)
	case schema.TypeMixed:
		return d.mixed(v, depth, keyHint)
	case schema.TypeString, schema.TypeNumber, schema.TypeInteger, schema.TypeBoolean:
		return d.scalar(v, typeName, depth)
	}
	return nil, d.fail(typeName, depth, fmt.Errorf("%w: %s", core.ErrUnknownType, typeName))
}

func (d *decoder) model(v core.Value, desc *schema.Descriptor, depth int, keyHint string) (any, error) {
	switch v.Kind {
	case core.KindRef:
		if v.Ref.Type != desc.Name {
			return nil, d.fail(desc.Name, depth, fmt.Errorf("%w: reference to %s where %s is declared",
				core.ErrRefTypeMismatch, v.Ref.Type, desc.Name))
		}
		inst, err := d.cache.Resolve(v.Ref, desc)
		if err != nil {
			return nil, d.fail(desc.Name, depth, err)
		}
		return inst, nil
	case core.KindMap:
		inst, err := d.cache.claim(keyHint, desc)
		if err != nil {
			return nil, d.fail(desc.Name, depth, err)
		}
		if err := d.fill(inst, v, depth); err != nil {
			return nil, err
		}
		return inst, nil
	}
	return nil, d.fail(desc.Name, depth, fmt.Errorf("%w: expected an object, got %s", core.ErrTypeMismatch, v.Kind))
}

// fill checks that doc is tagged as the instance's type and populates it.
func (d *decoder) fill(inst *Instance, doc core.Value, depth int) error {
	desc := inst.desc
	if doc.Kind != core.KindMap {
		return d.fail(desc.Name, depth, fmt.Errorf("%w: expected an object, got %s", core.ErrTypeMismatch, doc.Kind))
	}
	found, err := d.catalog.Resolve(doc)
	if err != nil {
		return d.fail(desc.Name, depth, err)
	}
	if found != desc {
		tagged := "untagged"
		if found != nil {
			tagged = "tagged as " + found.Name
		}
		return d.fail(desc.Name, depth, fmt.Errorf("%w: document is %s", core.ErrTypeMismatch, tagged))
	}

	values, err := d.fields(desc, doc, depth)
	if err != nil {
		return err
	}
	inst.populate(values, doc)
	return nil
}

func (d *decoder) fields(desc *schema.Descriptor, doc core.Value, depth int) (map[string]any, error) {
	values := make(map[string]any, len(desc.Fields))
	for _, f := range desc.Fields {
		fv, ok := doc.Map[f.Name]
		if !ok {
			continue
		}
		d.push(f.Name)
		val, err := d.decode(fv, f.Type, f.Subtypes(), depth+1, "")
		d.pop()
		if err != nil {
			return nil, err
		}
		values[f.Name] = val
	}
	return values, nil
}

func (d *decoder) list(v core.Value, subtypes []string, depth int) (any, error) {
	if v.Kind != core.KindList {
		return nil, d.fail(schema.TypeList, depth, fmt.Errorf("%w: expected a list, got %s", core.ErrTypeMismatch, v.Kind))
	}
	elem, rest := elementType(subtypes)
	out := make([]any, len(v.List))
	for n, item := range v.List {
		d.push("[" + strconv.Itoa(n) + "]")
		val, err := d.decode(item, elem, rest, depth+1, "")
		d.pop()
		if err != nil {
			return nil, err
		}
		out[n] = val
	}
	return out, nil
}

func (d *decoder) mapping(v core.Value, subtypes []string, depth int) (any, error) {
	if v.Kind != core.KindMap {
		return nil, d.fail(schema.TypeMap, depth, fmt.Errorf("%w: expected a map, got %s", core.ErrTypeMismatch, v.Kind))
	}
	elem, rest := elementType(subtypes)
	out := make(map[string]any, len(v.Map))
	for _, k := range v.Keys() {
		d.push(k)
		val, err := d.decode(v.Map[k], elem, rest, depth+1, "")
		d.pop()
		if err != nil {
			return nil, err
		}
		out[k] = val
	}
	return out, nil
}

func (d *decoder) mixed(v core.Value, depth int, keyHint string) (any, error) {
	switch v.Kind {
	case core.KindRef:
		desc, ok := d.catalog.Lookup(v.Ref.Type)
		if !ok {
			return nil, d.fail(schema.TypeMixed, depth, fmt.Errorf("%w: reference to %s", core.ErrUnknownType, v.Ref.Type))
		}
		return d.model(v, desc, depth, "")
	case core.KindMap:
		desc, err := d.catalog.Resolve(v)
		if err != nil {
			return nil, d.fail(schema.TypeMixed, depth, err)
		}
		if desc != nil {
			return d.model(v, desc, depth, keyHint)
		}
		return d.mapping(v, nil, depth)
	case core.KindList:
		return d.list(v, nil, depth)
	}
	return d.scalar(v, schema.TypeMixed, depth)
}

func (d *decoder) scalar(v core.Value, typeName string, depth int) (any, error) {
	switch v.Kind {
	case core.KindBool:
		return v.Bool, nil
	case core.KindString:
		return v.Str, nil
	case core.KindNumber:
		if typeName != schema.TypeInteger {
			return v.Num, nil
		}
		if v.Num != math.Trunc(v.Num) || math.IsInf(v.Num, 0) {
			return nil, d.fail(typeName, depth, fmt.Errorf("%w: %v is not an integer", core.ErrTypeMismatch, v.Num))
		}
		return int64(v.Num), nil
	}
	return nil, d.fail(typeName, depth, fmt.Errorf("%w: expected a scalar, got %s", core.ErrTypeMismatch, v.Kind))
}

func elementType(subtypes []string) (string, []string) {
	if len(subtypes) == 0 {
		return schema.TypeMixed, nil
	}
	return subtypes[0], subtypes[1:]
}
