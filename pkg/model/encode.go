package model

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strconv"

	"github.com/aretw0/tessera/pkg/core"
	"github.com/aretw0/tessera/pkg/schema"
)

// Result is the outcome of encoding a value.
type Result struct {
	Doc core.Value
	// Refs lists every instance written as a reference marker, each once,
	// in order of first appearance.
	Refs []*Instance
}

// Encode converts an in-memory value of the declared type into a document.
//
// At depth zero an instance is written inline. Below it, instances of
// non-embedded types become reference markers and are reported in Refs;
// embedded instances are always written inline. Absent fields are omitted,
// nil values encode as null. An empty typeName encodes as Mixed.
func (c *Codec) Encode(v any, typeName string, subtypes []string, depth int) (Result, error) {
	e := &encoder{catalog: c.catalog, active: make(map[*Instance]struct{})}
	return e.encode(v, typeName, subtypes, depth)
}

// EncodeRoot encodes inst inline as the document stored under its key.
func (c *Codec) EncodeRoot(inst *Instance) (Result, error) {
	return c.Encode(inst, inst.desc.Name, nil, 0)
}

type encoder struct {
	catalog *schema.Catalog
	path    []string
	// active holds the inline instances on the current path.
	active map[*Instance]struct{}
}

func (e *encoder) fail(typeName string, depth int, err error) error {
	return core.WrapMarshal("encode", e.path, typeName, depth, err)
}

func (e *encoder) push(seg string) { e.path = append(e.path, seg) }
func (e *encoder) pop()            { e.path = e.path[:len(e.path)-1] }

func (e *encoder) encode(v any, typeName string, subtypes []string, depth int) (Result, error) {
	if typeName == "" {
		typeName = schema.TypeMixed
	}
	if isNil(v) {
		return Result{Doc: core.Null()}, nil
	}
	if desc, ok := e.catalog.Lookup(typeName); ok {
		return e.model(v, desc, depth)
	}

	switch typeName {
	case schema.TypeList:
		return e.list(v, subtypes, depth)
	case schema.TypeMap:
		return e.mapping(v, subtypes, depth)
	case schema.TypeMixed:
		return e.mixed(v, depth)
	case schema.TypeString, schema.TypeNumber, schema.TypeInteger, schema.TypeBoolean:
		return e.scalar(v, typeName, depth)
	}
	return Result{}, e.fail(typeName, depth, fmt.Errorf("%w: %s", core.ErrUnknownType, typeName))
}

func (e *encoder) model(v any, desc *schema.Descriptor, depth int) (Result, error) {
	inst, ok := v.(*Instance)
	if !ok || inst.desc != desc {
		return Result{}, e.fail(desc.Name, depth, fmt.Errorf("%w: expected an object of type %s, got %s",
			core.ErrTypeMismatch, desc.Name, describeValue(v)))
	}

	if depth > 0 && !desc.Embed {
		key, err := inst.Key()
		if err != nil {
			return Result{}, e.fail(desc.Name, depth, err)
		}
		return Result{Doc: core.RefTo(desc.Name, key), Refs: []*Instance{inst}}, nil
	}

	values, loaded := inst.fields()
	if !loaded {
		return Result{}, e.fail(desc.Name, depth, fmt.Errorf("%w: %s cannot be written inline", core.ErrNotLoaded, inst))
	}
	if _, busy := e.active[inst]; busy {
		return Result{}, e.fail(desc.Name, depth, core.ErrEmbeddedCycle)
	}
	e.active[inst] = struct{}{}
	defer delete(e.active, inst)

	out := make(map[string]core.Value, len(values)+len(desc.Discriminators))
	var refs []*Instance
	for _, f := range desc.Fields {
		fv, ok := values[f.Name]
		if !ok {
			continue
		}
		e.push(f.Name)
		r, err := e.encode(fv, f.Type, f.Subtypes(), depth+1)
		e.pop()
		if err != nil {
			return Result{}, err
		}
		out[f.Name] = r.Doc
		refs = mergeRefs(refs, r.Refs)
	}
	for k, dv := range desc.Discriminators {
		out[k] = dv
	}
	return Result{Doc: core.Map(out), Refs: refs}, nil
}

func (e *encoder) list(v any, subtypes []string, depth int) (Result, error) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return Result{}, e.fail(schema.TypeList, depth, fmt.Errorf("%w: expected a list, got %s",
			core.ErrTypeMismatch, describeValue(v)))
	}
	elem, rest := elementType(subtypes)
	items := make([]core.Value, rv.Len())
	var refs []*Instance
	for n := range items {
		e.push("[" + strconv.Itoa(n) + "]")
		r, err := e.encode(rv.Index(n).Interface(), elem, rest, depth+1)
		e.pop()
		if err != nil {
			return Result{}, err
		}
		items[n] = r.Doc
		refs = mergeRefs(refs, r.Refs)
	}
	return Result{Doc: core.List(items...), Refs: refs}, nil
}

func (e *encoder) mapping(v any, subtypes []string, depth int) (Result, error) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
		return Result{}, e.fail(schema.TypeMap, depth, fmt.Errorf("%w: expected a map with text keys, got %s",
			core.ErrTypeMismatch, describeValue(v)))
	}
	elem, rest := elementType(subtypes)

	entries := make(map[string]any, rv.Len())
	keys := make([]string, 0, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		k := iter.Key().String()
		entries[k] = iter.Value().Interface()
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make(map[string]core.Value, len(keys))
	var refs []*Instance
	for _, k := range keys {
		if k == core.RefField {
			return Result{}, e.fail(schema.TypeMap, depth, reservedKeyError())
		}
		e.push(k)
		r, err := e.encode(entries[k], elem, rest, depth+1)
		e.pop()
		if err != nil {
			return Result{}, err
		}
		out[k] = r.Doc
		refs = mergeRefs(refs, r.Refs)
	}
	return Result{Doc: core.Map(out), Refs: refs}, nil
}

func (e *encoder) mixed(v any, depth int) (Result, error) {
	if inst, ok := v.(*Instance); ok {
		if !e.catalog.Contains(inst.desc) {
			return Result{}, e.fail(schema.TypeMixed, depth, fmt.Errorf("%w: %s", core.ErrUnknownType, inst.desc.Name))
		}
		return e.model(inst, inst.desc, depth)
	}
	if cv, ok := v.(core.Value); ok {
		if holdsReservedKey(cv) {
			return Result{}, e.fail(schema.TypeMixed, depth, reservedKeyError())
		}
		return Result{Doc: cv}, nil
	}
	switch reflect.ValueOf(v).Kind() {
	case reflect.Slice, reflect.Array:
		return e.list(v, nil, depth)
	case reflect.Map:
		return e.mapping(v, nil, depth)
	}
	return e.scalar(v, schema.TypeMixed, depth)
}

func (e *encoder) scalar(v any, typeName string, depth int) (Result, error) {
	switch x := v.(type) {
	case bool:
		return Result{Doc: core.Bool(x)}, nil
	case string:
		return Result{Doc: core.String(x)}, nil
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return Result{}, e.fail(typeName, depth, fmt.Errorf("%w: %v", core.ErrTypeMismatch, err))
		}
		return Result{Doc: core.Number(f)}, nil
	case core.Value:
		if x.IsComposite() {
			break
		}
		return Result{Doc: x}, nil
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return Result{Doc: core.Number(float64(rv.Int()))}, nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return Result{Doc: core.Number(float64(rv.Uint()))}, nil
	case reflect.Float32, reflect.Float64:
		return Result{Doc: core.Number(rv.Float())}, nil
	case reflect.Bool:
		return Result{Doc: core.Bool(rv.Bool())}, nil
	case reflect.String:
		return Result{Doc: core.String(rv.String())}, nil
	}
	return Result{}, e.fail(typeName, depth, fmt.Errorf("%w: expected a scalar, got %s",
		core.ErrTypeMismatch, describeValue(v)))
}

func reservedKeyError() error {
	return fmt.Errorf("%w: %q is reserved for reference markers", core.ErrTypeMismatch, core.RefField)
}

// holdsReservedKey reports whether a composite inside v uses the reference
// marker key, which would be read back as a malformed reference.
func holdsReservedKey(v core.Value) bool {
	switch v.Kind {
	case core.KindMap:
		if _, ok := v.Map[core.RefField]; ok {
			return true
		}
		for _, item := range v.Map {
			if holdsReservedKey(item) {
				return true
			}
		}
	case core.KindList:
		for _, item := range v.List {
			if holdsReservedKey(item) {
				return true
			}
		}
	}
	return false
}

// mergeRefs appends the instances of b missing from a, keeping first-seen order.
func mergeRefs(a, b []*Instance) []*Instance {
	if len(b) == 0 {
		return a
	}
	seen := make(map[*Instance]struct{}, len(a))
	for _, inst := range a {
		seen[inst] = struct{}{}
	}
	for _, inst := range b {
		if _, ok := seen[inst]; ok {
			continue
		}
		seen[inst] = struct{}{}
		a = append(a, inst)
	}
	return a
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface:
		return rv.IsNil()
	}
	return false
}

func describeValue(v any) string {
	if inst, ok := v.(*Instance); ok {
		return "object of type " + inst.desc.Name
	}
	return fmt.Sprintf("%T", v)
}
