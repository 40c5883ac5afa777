package schema

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/aretw0/tessera/pkg/core"
)

// schemaFile is the on-disk layout of a schema file.
//
//	types:
//	  - name: Person
//	    id: [name]
//	    fields:
//	      name: {type: string, readonly: true}
//	      best: Person
//	      tags: {type: List, subtype: string}
type schemaFile struct {
	Types []typeSpec `yaml:"types"`
}

type typeSpec struct {
	Name           string                `yaml:"name"`
	ID             stringList            `yaml:"id"`
	Embed          bool                  `yaml:"embed"`
	Discriminators map[string]core.Value `yaml:"discriminators"`
	Fields         yaml.Node             `yaml:"fields"`
}

type fieldSpec struct {
	Type     string `yaml:"type"`
	Subtype  string `yaml:"subtype"`
	Required bool   `yaml:"required"`
	ReadOnly bool   `yaml:"readonly"`
	Auto     string `yaml:"auto"`
}

// stringList accepts either a scalar or a sequence of scalars.
type stringList []string

func (s *stringList) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		*s = []string{node.Value}
		return nil
	}
	var list []string
	if err := node.Decode(&list); err != nil {
		return err
	}
	*s = list
	return nil
}

// ParseYAML reads type descriptors from a schema document. Field order follows
// the document.
func ParseYAML(data []byte) ([]Descriptor, error) {
	var file schemaFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("%w: invalid yaml: %v", core.ErrInvalidSchema, err)
	}

	out := make([]Descriptor, 0, len(file.Types))
	for _, ts := range file.Types {
		fields, err := parseFields(ts.Name, &ts.Fields)
		if err != nil {
			return nil, err
		}
		out = append(out, Descriptor{
			Name:           ts.Name,
			Fields:         fields,
			ID:             ts.ID,
			Discriminators: ts.Discriminators,
			Embed:          ts.Embed,
		})
	}
	return out, nil
}

func parseFields(typeName string, node *yaml.Node) ([]Field, error) {
	if node.Kind == 0 {
		return nil, nil
	}
	if node.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%w: %s: fields must be a mapping (line %d)", core.ErrInvalidSchema, typeName, node.Line)
	}

	fields := make([]Field, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		name := node.Content[i].Value
		val := node.Content[i+1]

		switch val.Kind {
		case yaml.ScalarNode:
			fields = append(fields, Field{Name: name, Type: val.Value})
		case yaml.MappingNode:
			var spec fieldSpec
			if err := val.Decode(&spec); err != nil {
				return nil, fmt.Errorf("%w: %s.%s: %v", core.ErrInvalidSchema, typeName, name, err)
			}
			fields = append(fields, Field{
				Name:     name,
				Type:     spec.Type,
				Subtype:  spec.Subtype,
				Required: spec.Required,
				ReadOnly: spec.ReadOnly,
				Auto:     AutoMode(spec.Auto),
			})
		default:
			return nil, fmt.Errorf("%w: %s.%s: expected a type name or a mapping (line %d)",
				core.ErrInvalidSchema, typeName, name, val.Line)
		}
	}
	return fields, nil
}

// LoadFile parses a schema file and registers its types on r.
func LoadFile(r *Registry, path string) ([]*Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema file: %w", err)
	}
	descs, err := ParseYAML(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	out := make([]*Descriptor, 0, len(descs))
	for _, d := range descs {
		reg, err := r.Register(d)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		out = append(out, reg)
	}
	return out, nil
}
