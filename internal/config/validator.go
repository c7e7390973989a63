package config

import (
	"fmt"
	"strings"
)

const (
	minTimeout    = 1
	maxTimeout    = 900
	minMemorySize = 128
	maxMemorySize = 10240
)

// ValidationError represents a validation error with details
type ValidationError struct {
	Field   string
	Message string
}

// ValidationResult contains the results of config validation
type ValidationResult struct {
	Valid  bool
	Errors []ValidationError
}

func (r *ValidationResult) add(field, format string, args ...interface{}) {
	r.Valid = false
	r.Errors = append(r.Errors, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
}

// ValidateConfig checks an already loaded config
func ValidateConfig(cfg *Config) *ValidationResult {
	result := &ValidationResult{
		Valid:  true,
		Errors: []ValidationError{},
	}

	if strings.TrimSpace(cfg.FunctionName) == "" {
		result.add("function_name", "function_name is required")
	}

	// Image-only projects deploy without a handler
	if cfg.Handler != "" || (cfg.LambdaImageURI == "" && cfg.ECRRepository == "") {
		if _, _, err := cfg.HandlerParts(); err != nil {
			result.add("handler", "handler %q must have the form <module>.<function>", cfg.Handler)
		}
	}

	if cfg.Timeout < minTimeout || cfg.Timeout > maxTimeout {
		result.add("timeout", "timeout must be between %d and %d seconds, got %d", minTimeout, maxTimeout, cfg.Timeout)
	}

	if cfg.MemorySize < minMemorySize || cfg.MemorySize > maxMemorySize {
		result.add("memory_size", "memory_size must be between %d and %d MB, got %d", minMemorySize, maxMemorySize, cfg.MemorySize)
	}

	if cfg.Concurrency < 0 {
		result.add("concurrency", "concurrency must not be negative, got %d", cfg.Concurrency)
	}

	if len(cfg.ImageBuildVariables) > 0 && cfg.BuildPath() == "" {
		result.add("image_build_variables/build_path", "build_path is required when image_build_variables is set")
	}

	for name := range cfg.EnvironmentVariables {
		if strings.TrimSpace(name) == "" {
			result.add("environment_variables", "environment variable name is empty")
		}
	}

	return result
}
