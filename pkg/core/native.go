package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"gopkg.in/yaml.v3"
)

// FromAny converts decoded JSON/YAML natives into a Value.
// A composite holding the "$ref" entry is read as a reference marker and must
// have the exact wire shape {"$ref": [type, key]}.
func FromAny(in any) (Value, error) {
	switch x := in.(type) {
	case nil:
		return Null(), nil
	case Value:
		return x, nil
	case Ref:
		return RefTo(x.Type, x.Key), nil
	case bool:
		return Bool(x), nil
	case string:
		return String(x), nil
	case float64:
		return Number(x), nil
	case float32:
		return Number(float64(x)), nil
	case int:
		return Number(float64(x)), nil
	case int8:
		return Number(float64(x)), nil
	case int16:
		return Number(float64(x)), nil
	case int32:
		return Number(float64(x)), nil
	case int64:
		return Number(float64(x)), nil
	case uint:
		return Number(float64(x)), nil
	case uint8:
		return Number(float64(x)), nil
	case uint16:
		return Number(float64(x)), nil
	case uint32:
		return Number(float64(x)), nil
	case uint64:
		return Number(float64(x)), nil
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return Value{}, fmt.Errorf("%w: invalid number %q", ErrTypeMismatch, x)
		}
		return Number(f), nil
	case []any:
		items := make([]Value, len(x))
		for i, e := range x {
			v, err := FromAny(e)
			if err != nil {
				return Value{}, err
			}
			items[i] = v
		}
		return List(items...), nil
	case []Value:
		return List(x...), nil
	case map[string]any:
		if raw, ok := x[RefField]; ok {
			return refFromAny(raw, len(x))
		}
		m := make(map[string]Value, len(x))
		for k, e := range x {
			v, err := FromAny(e)
			if err != nil {
				return Value{}, err
			}
			m[k] = v
		}
		return Map(m), nil
	case map[string]Value:
		return Map(x), nil
	case map[any]any:
		m := make(map[string]any, len(x))
		for k, e := range x {
			m[fmt.Sprint(k)] = e
		}
		return FromAny(m)
	default:
		return Value{}, fmt.Errorf("%w: unsupported document value %T", ErrTypeMismatch, in)
	}
}

func refFromAny(raw any, entries int) (Value, error) {
	if entries != 1 {
		return Value{}, fmt.Errorf("%w: reference carries %d entries", ErrMalformedRef, entries)
	}
	pair, ok := raw.([]any)
	if !ok || len(pair) != 2 {
		return Value{}, fmt.Errorf("%w: expected [type, key]", ErrMalformedRef)
	}
	typeName, ok1 := pair[0].(string)
	key, ok2 := pair[1].(string)
	if !ok1 || !ok2 || typeName == "" || key == "" {
		return Value{}, fmt.Errorf("%w: type and key must be non-empty text", ErrMalformedRef)
	}
	return RefTo(typeName, key), nil
}

// ToAny converts v back into JSON-compatible natives.
func (v Value) ToAny() any {
	switch v.Kind {
	case KindBool:
		return v.Bool
	case KindNumber:
		return v.Num
	case KindString:
		return v.Str
	case KindList:
		out := make([]any, len(v.List))
		for i, e := range v.List {
			out[i] = e.ToAny()
		}
		return out
	case KindMap:
		out := make(map[string]any, len(v.Map))
		for k, e := range v.Map {
			out[k] = e.ToAny()
		}
		return out
	case KindRef:
		return map[string]any{RefField: []any{v.Ref.Type, v.Ref.Key}}
	}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.ToAny())
}

// UnmarshalJSON implements json.Unmarshaler.
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	parsed, err := FromAny(raw)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (v Value) MarshalYAML() (any, error) {
	return v.ToAny(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (v *Value) UnmarshalYAML(node *yaml.Node) error {
	var raw any
	if err := node.Decode(&raw); err != nil {
		return err
	}
	parsed, err := FromAny(raw)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

func formatNumber(f float64) string {
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return fmt.Sprint(f)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// FormatScalar renders a scalar value for use inside keys and messages.
func FormatScalar(v Value) string {
	switch v.Kind {
	case KindString:
		return v.Str
	case KindNumber:
		return formatNumber(v.Num)
	case KindBool:
		return strconv.FormatBool(v.Bool)
	case KindNull:
		return "null"
	}
	return v.String()
}
