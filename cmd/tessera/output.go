package main

import (
	"encoding/json"
	"os"

	"gopkg.in/yaml.v3"
)

var outputYAML bool

// printDoc writes v to stdout as indented JSON, or YAML with --yaml.
func printDoc(v any) error {
	if outputYAML {
		enc := yaml.NewEncoder(os.Stdout)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(v)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
