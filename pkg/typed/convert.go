package typed

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/aretw0/tessera/pkg/core"
	"github.com/aretw0/tessera/pkg/schema"
)

// maxExactInteger bounds the integers a document number holds without rounding.
const maxExactInteger = 1 << 53

func toValue(data any) (core.Value, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return core.Value{}, err
	}
	var native any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&native); err != nil {
		return core.Value{}, err
	}
	if err := checkIntegers(native); err != nil {
		return core.Value{}, err
	}
	return core.FromAny(native)
}

// checkIntegers rejects integers that would change value as document numbers,
// such as large identifiers that would otherwise collide in keys.
func checkIntegers(v any) error {
	switch x := v.(type) {
	case json.Number:
		s := x.String()
		if strings.ContainsAny(s, ".eE") {
			return nil
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil || n > maxExactInteger || n < -maxExactInteger {
			return fmt.Errorf("%w: integer %s exceeds the exact range of a number", core.ErrTypeMismatch, s)
		}
	case []any:
		for _, item := range x {
			if err := checkIntegers(item); err != nil {
				return err
			}
		}
	case map[string]any:
		for _, item := range x {
			if err := checkIntegers(item); err != nil {
				return err
			}
		}
	}
	return nil
}

func fromValue[T any](doc core.Value) (T, error) {
	var data T
	raw, err := json.Marshal(doc)
	if err != nil {
		return data, err
	}
	err = json.Unmarshal(raw, &data)
	return data, err
}

// tag adds missing discriminators to the objects of v declared as model
// types, so structs need not carry "_type" fields of their own.
func tag(catalog *schema.Catalog, v core.Value, typeName string, subtypes []string) core.Value {
	if desc, ok := catalog.Lookup(typeName); ok {
		if v.Kind != core.KindMap {
			return v
		}
		out := make(map[string]core.Value, len(v.Map)+len(desc.Discriminators))
		for k, fv := range v.Map {
			if f, ok := desc.Field(k); ok {
				fv = tag(catalog, fv, f.Type, f.Subtypes())
			}
			out[k] = fv
		}
		for k, dv := range desc.Discriminators {
			if _, set := out[k]; !set {
				out[k] = dv
			}
		}
		return core.Map(out)
	}

	elem, rest := schema.TypeMixed, []string(nil)
	if len(subtypes) > 0 {
		elem, rest = subtypes[0], subtypes[1:]
	}
	switch {
	case typeName == schema.TypeList && v.Kind == core.KindList:
		out := make([]core.Value, len(v.List))
		for n, item := range v.List {
			out[n] = tag(catalog, item, elem, rest)
		}
		return core.List(out...)
	case typeName == schema.TypeMap && v.Kind == core.KindMap:
		out := make(map[string]core.Value, len(v.Map))
		for k, item := range v.Map {
			out[k] = tag(catalog, item, elem, rest)
		}
		return core.Map(out)
	}
	return v
}
