// Package schema provides JSON schema generation for host configuration and
// tool parameters.
package schema

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/invopop/jsonschema"

	"github.com/reglet-dev/toolhost/domain/entities"
)

var versionType = reflect.TypeOf(entities.Version{})

// versionPattern matches the text form accepted by entities.ParseVersion.
const versionPattern = `^v?[0-9]+\.[0-9]+\.[0-9]+$`

// newReflector returns a reflector that expands struct definitions inline
// and renders entities.Version as its text form.
func newReflector() *jsonschema.Reflector {
	return &jsonschema.Reflector{
		ExpandedStruct: true,
		Mapper: func(t reflect.Type) *jsonschema.Schema {
			if t == versionType {
				return &jsonschema.Schema{Type: "string", Pattern: versionPattern}
			}
			return nil
		},
	}
}

// GenerateSchema creates an indented JSON schema (Draft 2020-12) from a Go
// value.
func GenerateSchema(v interface{}) ([]byte, error) {
	schema := newReflector().Reflect(v)

	jsonBytes, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}

	return jsonBytes, nil
}

// GenerateCompact is GenerateSchema without indentation, the form tool
// declarations carry.
func GenerateCompact(v interface{}) (string, error) {
	jsonBytes, err := json.Marshal(newReflector().Reflect(v))
	if err != nil {
		return "", fmt.Errorf("failed to marshal schema: %w", err)
	}
	return string(jsonBytes), nil
}

// HostConfigSchema returns the JSON schema of the host configuration file.
func HostConfigSchema() ([]byte, error) {
	return GenerateSchema(&entities.HostConfig{})
}
