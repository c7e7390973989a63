package config

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

//go:embed schema.json
var schemaJSON string

// GetSchemaJSON returns the JSON Schema for pylambda configuration
func GetSchemaJSON() string {
	return schemaJSON
}

// ValidateWithSchema validates config content against the JSON Schema.
// Template actions are rendered first so the schema sees final values.
func ValidateWithSchema(path string, content []byte) (*ValidationResult, error) {
	result := &ValidationResult{
		Valid:  true,
		Errors: []ValidationError{},
	}

	rendered, err := Render(path, content)
	if err != nil {
		result.add("template", "Invalid template: %v", err)
		return result, nil
	}

	var data interface{}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yml", ".yaml":
		if err := yaml.Unmarshal(rendered, &data); err != nil {
			result.add("syntax", "Invalid YAML syntax: %v", err)
			return result, nil
		}
	case ".json":
		if err := json.Unmarshal(rendered, &data); err != nil {
			result.add("syntax", "Invalid JSON syntax: %v", err)
			return result, nil
		}
	case ".toml":
		m, err := toml.Parser().Unmarshal(rendered)
		if err != nil {
			result.add("syntax", "Invalid TOML syntax: %v", err)
			return result, nil
		}
		data = m
	default:
		return nil, fmt.Errorf("unsupported file format")
	}

	// An empty document is an empty object
	if data == nil {
		data = map[string]interface{}{}
	}

	schemaLoader := gojsonschema.NewStringLoader(GetSchemaJSON())
	documentLoader := gojsonschema.NewGoLoader(data)

	validationResult, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return nil, fmt.Errorf("schema validation error: %w", err)
	}

	if !validationResult.Valid() {
		result.Valid = false
		for _, err := range validationResult.Errors() {
			result.Errors = append(result.Errors, ValidationError{
				Field:   err.Field(),
				Message: err.Description(),
			})
		}
	}

	return result, nil
}
