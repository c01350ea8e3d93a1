package schema

import (
	"fmt"
	"sort"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	sberrors "github.com/tombee/switchboard/pkg/errors"
)

// InputValidator checks action inputs against an ActionDefinition's InputSchema.
type InputValidator struct {
	action   ActionDefinition
	compiled *gojsonschema.Schema
}

// NewInputValidator compiles the action's input schema.
func NewInputValidator(action ActionDefinition) (*InputValidator, error) {
	compiled, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(JSONSchema(action.InputSchema)))
	if err != nil {
		return nil, fmt.Errorf("compile input schema for %s: %w", action.ID, err)
	}
	return &InputValidator{action: action, compiled: compiled}, nil
}

// Validate returns a copy of input with defaults applied, or a
// *errors.ValidationError describing every violation.
func (v *InputValidator) Validate(input map[string]any) (map[string]any, error) {
	out := ApplyDefaults(v.action.InputSchema, input)

	result, err := v.compiled.Validate(gojsonschema.NewGoLoader(out))
	if err != nil {
		return nil, &sberrors.ValidationError{Message: fmt.Sprintf("input is not a JSON object: %v", err)}
	}
	if result.Valid() {
		return out, nil
	}

	var (
		field string
		msgs  []string
	)
	for _, desc := range result.Errors() {
		name := desc.Field()
		if prop, ok := desc.Details()["property"].(string); ok && name == "(root)" {
			name = prop
		}
		if field == "" {
			field = name
		}
		msgs = append(msgs, fmt.Sprintf("%s: %s", name, desc.Description()))
	}
	return nil, &sberrors.ValidationError{
		Field:   field,
		Message: strings.Join(msgs, "; "),
	}
}

// ApplyDefaults copies input and fills in declared defaults for absent fields.
func ApplyDefaults(fields map[string]FieldSchema, input map[string]any) map[string]any {
	out := make(map[string]any, len(input)+len(fields))
	for k, v := range input {
		out[k] = v
	}
	for name, f := range fields {
		if _, ok := out[name]; !ok && f.Default != nil {
			out[name] = f.Default
		}
	}
	return out
}

// JSONSchema renders field schemas as a draft-07 object schema.
func JSONSchema(fields map[string]FieldSchema) map[string]any {
	props := make(map[string]any, len(fields))
	required := []string{}
	for name, f := range fields {
		prop := map[string]any{}
		if f.Type != "" {
			prop["type"] = string(f.Type)
		}
		if f.Description != "" {
			prop["description"] = f.Description
		}
		if len(f.Enum) > 0 {
			prop["enum"] = f.Enum
		}
		props[name] = prop
		if f.Required {
			required = append(required, name)
		}
	}
	sort.Strings(required)

	doc := map[string]any{
		"$schema":    "http://json-schema.org/draft-07/schema#",
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		doc["required"] = required
	}
	return doc
}
