package cli

import (
	"fmt"
	"os"

	"github.com/NikitaCOEUR/pylambda/internal/config"
	"github.com/NikitaCOEUR/pylambda/internal/errors"
)

// Validate validates the project config against the JSON schema and the Lambda limits
func Validate(params Globals) error {
	out := params.output()
	configPath := params.configPath()

	fmt.Fprintf(out, "Validating: %s\n\n", configPath)

	content, err := os.ReadFile(configPath)
	if err != nil {
		return errors.NewConfigurationError(configPath, "failed to read config file", err)
	}

	result, err := config.ValidateWithSchema(configPath, content)
	if err != nil {
		return err
	}

	// Semantic checks need a config that loads
	if result.Valid {
		cfg, err := config.New().WithProfile(params.Profile).Load(configPath)
		if err != nil {
			return err
		}
		if custom := config.ValidateConfig(cfg); !custom.Valid {
			result.Valid = false
			result.Errors = append(result.Errors, custom.Errors...)
		}
	}

	if result.Valid {
		fmt.Fprintln(out, "✅ Configuration is valid!")
		return nil
	}

	fmt.Fprintln(out, "❌ Configuration has errors:")
	for i, validationErr := range result.Errors {
		fmt.Fprintf(out, "%d. [%s] %s\n", i+1, validationErr.Field, validationErr.Message)
	}
	fmt.Fprintf(out, "\nFound %d error(s)\n", len(result.Errors))

	return errors.NewValidationError(configPath, "validation failed", nil)
}
