// Package validation checks tool arguments against the JSON Schema a tool
// declared for its parameters.
package validation

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/reglet-dev/toolhost/domain/entities"
)

// ArgsValidator validates invocation arguments. Compiled schemas are cached
// per tool name and schema text.
type ArgsValidator struct {
	mu      sync.Mutex
	schemas map[string]*jsonschema.Schema
}

// NewArgsValidator creates a new validator.
func NewArgsValidator() *ArgsValidator {
	return &ArgsValidator{schemas: make(map[string]*jsonschema.Schema)}
}

// Validate checks args against tool's parameters schema. A schema that does
// not compile is returned as an error; a validation failure is reported in
// the result.
func (v *ArgsValidator) Validate(tool entities.ToolInfo, args []byte) (*entities.ValidationResult, error) {
	sch, err := v.compile(tool)
	if err != nil {
		return nil, err
	}

	result := &entities.ValidationResult{Valid: true}

	var obj interface{}
	if err := json.Unmarshal(args, &obj); err != nil {
		result.Valid = false
		result.Errors = append(result.Errors, entities.ValidationError{
			Field:   "/",
			Message: fmt.Sprintf("arguments are not valid JSON: %v", err),
		})
		return result, nil
	}

	if err := sch.Validate(obj); err != nil {
		result.Valid = false
		var ve *jsonschema.ValidationError
		if errors.As(err, &ve) {
			for _, leaf := range leaves(ve) {
				result.Errors = append(result.Errors, entities.ValidationError{
					Field:   location(leaf.InstanceLocation),
					Message: leaf.Message,
				})
			}
		} else {
			result.Errors = append(result.Errors, entities.ValidationError{
				Field:   "/",
				Message: err.Error(),
			})
		}
	}

	return result, nil
}

func (v *ArgsValidator) compile(tool entities.ToolInfo) (*jsonschema.Schema, error) {
	key := tool.Name + "\x00" + tool.ParametersSchema

	v.mu.Lock()
	defer v.mu.Unlock()
	if sch, ok := v.schemas[key]; ok {
		return sch, nil
	}

	resource := "mem://tools/" + url.PathEscape(tool.Name) + ".json"
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(resource, strings.NewReader(tool.ParametersSchema)); err != nil {
		return nil, fmt.Errorf("failed to add schema resource for %s: %w", tool.Name, err)
	}
	sch, err := compiler.Compile(resource)
	if err != nil {
		return nil, fmt.Errorf("invalid parameters schema for %s: %w", tool.Name, err)
	}
	v.schemas[key] = sch
	return sch, nil
}

// leaves flattens the cause tree into the errors that carry specifics.
func leaves(ve *jsonschema.ValidationError) []*jsonschema.ValidationError {
	if len(ve.Causes) == 0 {
		return []*jsonschema.ValidationError{ve}
	}
	var out []*jsonschema.ValidationError
	for _, c := range ve.Causes {
		out = append(out, leaves(c)...)
	}
	return out
}

func location(instance string) string {
	if instance == "" {
		return "/"
	}
	return instance
}
