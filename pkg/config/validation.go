package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// validate is the singleton validator instance
var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Validate validates the configuration using struct tags and custom rules.
//
// This function uses go-playground/validator for declarative validation
// via struct tags, with additional custom validation for rules that cannot
// be expressed in tags.
//
// Note: Log level normalization is handled in ApplyDefaults, not here.
// Validation accepts both uppercase and lowercase log levels.
//
// Returns an error describing validation failures.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}

	if err := validateCustomRules(cfg); err != nil {
		return err
	}

	return nil
}

// validateCustomRules performs custom validation beyond struct tags.
func validateCustomRules(cfg *Config) error {
	// Backend sections are loosely-typed maps, so the rules the factory
	// would hit late are checked here for earlier, clearer failures.
	switch cfg.Persistence.Type {
	case "dir":
		if path, _ := cfg.Persistence.Dir["path"].(string); path == "" {
			return fmt.Errorf("persistence.dir: path is required")
		}
	case "badger":
		path, _ := cfg.Persistence.Badger["path"].(string)
		inMemory, _ := cfg.Persistence.Badger["in_memory"].(bool)
		if path == "" && !inMemory {
			return fmt.Errorf("persistence.badger: path is required")
		}
	case "s3":
		if bucket, _ := cfg.Persistence.S3["bucket"].(string); bucket == "" {
			return fmt.Errorf("persistence.s3: bucket is required")
		}
		if region, _ := cfg.Persistence.S3["region"].(string); region == "" {
			return fmt.Errorf("persistence.s3: region is required")
		}
	}

	return nil
}

// formatValidationError converts validator errors into user-friendly messages.
func formatValidationError(err error) error {
	if validationErrs, ok := err.(validator.ValidationErrors); ok {
		// Return the first validation error with context
		if len(validationErrs) > 0 {
			e := validationErrs[0]
			return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
				e.Namespace(), e.Tag(), e.Value())
		}
	}
	return err
}
