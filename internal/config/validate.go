package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var structValidator = validator.New(validator.WithRequiredStructEnabled())

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := structValidator.Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			return describeFieldError(fieldErrs[0])
		}
		return fmt.Errorf("validate config: %w", err)
	}
	return nil
}

func describeFieldError(fe validator.FieldError) error {
	key := tomlKey(fe.StructNamespace())
	switch fe.Tag() {
	case "required":
		if key == "backend.base_url" {
			defaultPath, err := DefaultConfigPath()
			if err != nil {
				defaultPath = defaultConfigPath
			}
			return fmt.Errorf("backend.base_url is required. Set %s or edit %s (create with 'boletodesk config init')", EnvBaseURL, defaultPath)
		}
		return fmt.Errorf("%s must be set", key)
	case "url":
		return fmt.Errorf("%s must be an absolute URL, got %q", key, fe.Value())
	case "oneof":
		return fmt.Errorf("%s must be one of [%s], got %q", key, fe.Param(), fe.Value())
	case "gt":
		return fmt.Errorf("%s must be positive", key)
	case "gte":
		return fmt.Errorf("%s must be >= %s", key, fe.Param())
	case "lte":
		return fmt.Errorf("%s must be <= %s", key, fe.Param())
	default:
		return fmt.Errorf("%s failed %s validation", key, fe.Tag())
	}
}

// tomlKey turns "Config.Backend.BaseURL" into "backend.base_url".
func tomlKey(namespace string) string {
	parts := strings.Split(namespace, ".")
	if len(parts) > 0 && parts[0] == "Config" {
		parts = parts[1:]
	}
	for i, part := range parts {
		parts[i] = snakeCase(part)
	}
	return strings.Join(parts, ".")
}

func snakeCase(name string) string {
	switch name {
	case "BaseURL":
		return "base_url"
	case "MaxSizeMB":
		return "max_size_mb"
	}
	var b strings.Builder
	for i, r := range name {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}
