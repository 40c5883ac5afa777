package fs

import (
	"bytes"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/aretw0/tessera/pkg/core"
)

// Serializer defines how documents are stored in a file format.
type Serializer interface {
	// Parse decodes file contents into a document.
	Parse(data []byte) (core.Value, error)
	// Serialize encodes a document into file contents.
	Serialize(doc core.Value) ([]byte, error)
}

// DefaultSerializers returns the supported formats keyed by file extension.
func DefaultSerializers() map[string]Serializer {
	return map[string]Serializer{
		".json": JSONSerializer{},
		".yaml": YAMLSerializer{},
		".yml":  YAMLSerializer{},
	}
}

// JSONSerializer stores documents as indented JSON.
type JSONSerializer struct{}

func (JSONSerializer) Parse(data []byte) (core.Value, error) {
	var v core.Value
	if err := json.Unmarshal(data, &v); err != nil {
		return core.Value{}, fmt.Errorf("invalid json: %w", err)
	}
	return v, nil
}

func (JSONSerializer) Serialize(doc core.Value) ([]byte, error) {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// YAMLSerializer stores documents as YAML. Reference markers keep their
// {"$ref": [type, key]} shape.
type YAMLSerializer struct{}

func (YAMLSerializer) Parse(data []byte) (core.Value, error) {
	var v core.Value
	if err := yaml.Unmarshal(data, &v); err != nil {
		return core.Value{}, fmt.Errorf("invalid yaml: %w", err)
	}
	return v, nil
}

func (YAMLSerializer) Serialize(doc core.Value) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
