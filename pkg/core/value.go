package core

import (
	"fmt"
	"sort"
)

// Kind identifies the variant held by a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindList
	KindMap
	KindRef
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "boolean"
	case KindNumber:
		return "number"
	case KindString:
		return "text"
	case KindList:
		return "sequence"
	case KindMap:
		return "composite"
	case KindRef:
		return "reference"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// RefField is the reserved composite key carrying a reference marker on the wire.
const RefField = "$ref"

// Ref marks a link to another document instead of an inlined object.
type Ref struct {
	Type string
	Key  string
}

func (r Ref) String() string {
	return r.Type + ":" + r.Key
}

// Value is the store-native document representation.
// The zero Value is null.
type Value struct {
	Kind Kind
	Bool bool
	Num  float64
	Str  string
	List []Value
	Map  map[string]Value
	Ref  Ref
}

// Null returns the null value.
func Null() Value { return Value{} }

// Bool wraps a boolean.
func Bool(b bool) Value { return Value{Kind: KindBool, Bool: b} }

// Number wraps a number.
func Number(f float64) Value { return Value{Kind: KindNumber, Num: f} }

// String wraps a text value.
func String(s string) Value { return Value{Kind: KindString, Str: s} }

// List wraps a sequence. A nil slice becomes an empty sequence.
func List(items ...Value) Value {
	if items == nil {
		items = []Value{}
	}
	return Value{Kind: KindList, List: items}
}

// Map wraps a composite. A nil map becomes an empty composite.
func Map(m map[string]Value) Value {
	if m == nil {
		m = map[string]Value{}
	}
	return Value{Kind: KindMap, Map: m}
}

// RefTo builds a reference marker value.
func RefTo(typeName, key string) Value {
	return Value{Kind: KindRef, Ref: Ref{Type: typeName, Key: key}}
}

// IsNull reports whether v is null.
func (v Value) IsNull() bool { return v.Kind == KindNull }

// IsComposite reports whether v is a sequence, composite or reference marker.
func (v Value) IsComposite() bool {
	return v.Kind == KindList || v.Kind == KindMap || v.Kind == KindRef
}

// Field returns the entry of a composite. The second result is false when v is
// not a composite or the entry is absent.
func (v Value) Field(name string) (Value, bool) {
	if v.Kind != KindMap {
		return Value{}, false
	}
	f, ok := v.Map[name]
	return f, ok
}

// Equal reports deep value equality. Composite entry order is irrelevant.
func (v Value) Equal(o Value) bool {
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case KindNull:
		return true
	case KindBool:
		return v.Bool == o.Bool
	case KindNumber:
		return v.Num == o.Num
	case KindString:
		return v.Str == o.Str
	case KindRef:
		return v.Ref == o.Ref
	case KindList:
		if len(v.List) != len(o.List) {
			return false
		}
		for i := range v.List {
			if !v.List[i].Equal(o.List[i]) {
				return false
			}
		}
		return true
	case KindMap:
		if len(v.Map) != len(o.Map) {
			return false
		}
		for k, a := range v.Map {
			b, ok := o.Map[k]
			if !ok || !a.Equal(b) {
				return false
			}
		}
		return true
	}
	return false
}

// Keys returns the sorted entry names of a composite.
func (v Value) Keys() []string {
	keys := make([]string, 0, len(v.Map))
	for k := range v.Map {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (v Value) String() string {
	switch v.Kind {
	case KindNull:
		return "null"
	case KindBool:
		return fmt.Sprint(v.Bool)
	case KindNumber:
		return formatNumber(v.Num)
	case KindString:
		return fmt.Sprintf("%q", v.Str)
	case KindRef:
		return "$ref(" + v.Ref.String() + ")"
	case KindList:
		return fmt.Sprintf("list[%d]", len(v.List))
	case KindMap:
		return fmt.Sprintf("map%v", v.Keys())
	}
	return v.Kind.String()
}
