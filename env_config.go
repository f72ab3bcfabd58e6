// env_config.go: Environment variable expansion for bridge configuration
//
// Configuration strings may contain ${VAR} and ${VAR:-default} placeholders.
// Variables are looked up with the configured prefix first, then unprefixed,
// then in the configured overrides, the inline default and the global
// defaults, in that order.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package shimbridge

import (
	"fmt"
	"os"
	"regexp"
	"strings"
)

// EnvConfigOptions configures environment variable processing.
//
// Example usage:
//
//	options := EnvConfigOptions{
//	    Prefix:         "SHIMBRIDGE_",
//	    FailOnMissing:  true,
//	    ValidateValues: true,
//	}
type EnvConfigOptions struct {
	// Prefix tried before the bare variable name (e.g. "SHIMBRIDGE_")
	Prefix string `json:"prefix" yaml:"prefix"`

	// Whether an unresolvable variable is an error instead of ""
	FailOnMissing bool `json:"fail_on_missing" yaml:"fail_on_missing"`

	// Whether expanded values are checked for control characters and length
	ValidateValues bool `json:"validate_values" yaml:"validate_values"`

	Defaults  map[string]string `json:"defaults,omitempty" yaml:"defaults,omitempty"`
	Overrides map[string]string `json:"overrides,omitempty" yaml:"overrides,omitempty"`
}

// DefaultEnvConfigOptions returns the options used by LoadConfigFromFile.
func DefaultEnvConfigOptions() EnvConfigOptions {
	return EnvConfigOptions{
		Prefix:         "SHIMBRIDGE_",
		FailOnMissing:  false,
		ValidateValues: true,
		Defaults:       make(map[string]string),
		Overrides:      make(map[string]string),
	}
}

const maxEnvValueLength = 4096

var variablePattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-([^}]*))?\}`)

// ExpandEnvironmentVariables replaces every ${VAR} and ${VAR:-default}
// placeholder in input. The first expansion failure is returned.
//
//	addr, err := ExpandEnvironmentVariables("${HOST:-localhost}:${PORT:-8080}", options)
func ExpandEnvironmentVariables(input string, options EnvConfigOptions) (string, error) {
	if input == "" || !strings.Contains(input, "${") {
		return input, nil
	}

	var firstErr error
	result := variablePattern.ReplaceAllStringFunc(input, func(match string) string {
		submatches := variablePattern.FindStringSubmatch(match)
		if len(submatches) < 2 {
			return match
		}
		inlineDefault := ""
		if len(submatches) >= 4 {
			inlineDefault = submatches[3]
		}
		expanded, err := expandSingleEnvironmentVariable(submatches[1], inlineDefault, options)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			return match
		}
		return expanded
	})
	if firstErr != nil {
		return input, firstErr
	}
	return result, nil
}

func expandSingleEnvironmentVariable(varName, inlineDefault string, options EnvConfigOptions) (string, error) {
	prefixedName := options.Prefix + varName
	if value := os.Getenv(prefixedName); value != "" {
		return validateAndSanitizeValue(value, options)
	}
	if value := os.Getenv(varName); value != "" {
		return validateAndSanitizeValue(value, options)
	}
	if value, exists := options.Overrides[varName]; exists {
		return validateAndSanitizeValue(value, options)
	}
	if inlineDefault != "" {
		return validateAndSanitizeValue(inlineDefault, options)
	}
	if value, exists := options.Defaults[varName]; exists {
		return validateAndSanitizeValue(value, options)
	}

	if options.FailOnMissing {
		return "", NewConfigValidationError(fmt.Sprintf("required environment variable not found: %s (also tried %s)", varName, prefixedName), nil)
	}
	return "", nil
}

func validateAndSanitizeValue(value string, options EnvConfigOptions) (string, error) {
	if !options.ValidateValues {
		return value, nil
	}
	if strings.Contains(value, "\x00") {
		return "", NewConfigValidationError("environment variable value contains null byte", nil)
	}
	if len(value) > maxEnvValueLength {
		return "", NewConfigValidationError(fmt.Sprintf("environment variable value too long: %d bytes (max %d)", len(value), maxEnvValueLength), nil)
	}
	for i, r := range value {
		if r < 32 && r != '\t' && r != '\n' && r != '\r' {
			return "", NewConfigValidationError(fmt.Sprintf("environment variable contains control character at position %d", i), nil)
		}
	}
	return value, nil
}

// ProcessConfigurationWithEnv expands placeholders in the string fields of
// config.
func ProcessConfigurationWithEnv(config *BridgeConfig, options EnvConfigOptions) error {
	fields := []struct {
		name  string
		value *string
	}{
		{"target plugin type", &config.Target.PluginType},
		{"target plugin id", &config.Target.PluginID},
		{"bundle symbolic name", &config.Bundle.SymbolicName},
		{"bundle version", &config.Bundle.Version},
		{"bundle root", &config.Bundle.Root},
		{"registry manifest", &config.RegistryManifest},
		{"log level", &config.Logging.Level},
		{"log format", &config.Logging.Format},
		{"health service", &config.Health.Service},
	}
	for _, f := range fields {
		expanded, err := ExpandEnvironmentVariables(*f.value, options)
		if err != nil {
			return NewConfigValidationError("failed to expand "+f.name, err)
		}
		*f.value = expanded
	}

	for i, format := range config.UnitFormats {
		expanded, err := ExpandEnvironmentVariables(format, options)
		if err != nil {
			return NewConfigValidationError(fmt.Sprintf("failed to expand unit format %d", i), err)
		}
		config.UnitFormats[i] = expanded
	}
	return nil
}
