package schema

// Built-in type names understood by the marshaller.
const (
	TypeString  = "string"
	TypeInteger = "integer"
	TypeNumber  = "number"
	TypeBoolean = "boolean"
	TypeList    = "List"
	TypeMap     = "Map"
	TypeMixed   = "Mixed"
)

// IsScalar reports whether name is one of the scalar core types.
func IsScalar(name string) bool {
	switch name {
	case TypeString, TypeInteger, TypeNumber, TypeBoolean:
		return true
	}
	return false
}

// IsBuiltin reports whether name is a built-in (non model) type.
func IsBuiltin(name string) bool {
	switch name {
	case TypeList, TypeMap, TypeMixed:
		return true
	}
	return IsScalar(name)
}

// AutoMode selects how a field value is generated.
type AutoMode string

const (
	AutoNone AutoMode = ""
	AutoUUID AutoMode = "uuid"
)

// Field describes one declared field of a model type.
type Field struct {
	Name     string
	Type     string // built-in or registered type name; empty means Mixed
	Subtype  string // element type of List and Map fields
	Required bool
	ReadOnly bool
	Auto     AutoMode
}

// Subtypes returns the subtype chain handed to the marshaller.
func (f Field) Subtypes() []string {
	if f.Subtype == "" {
		return nil
	}
	return []string{f.Subtype}
}
