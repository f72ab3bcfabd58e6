// config_loader.go: Multi-format configuration file loading with Argus
//
// Format detection and non-YAML parsing go through Argus; YAML is decoded
// with gopkg.in/yaml.v3 so typed fields keep their custom decoders. The
// same pipeline reads bridge configs and registry manifests.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package shimbridge

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/agilira/argus"
	"gopkg.in/yaml.v3"
)

const maxConfigFileSize = int64(10 * 1024 * 1024)

// LoadConfigFromFile loads a BridgeConfig from a JSON, YAML or TOML file,
// expands ${VAR} placeholders with DefaultEnvConfigOptions, applies defaults
// and validates the result.
//
//	cfg, err := shimbridge.LoadConfigFromFile("bridge.yaml")
//	if err != nil {
//	    log.Fatalf("Failed to load config: %v", err)
//	}
func LoadConfigFromFile(path string) (BridgeConfig, error) {
	return LoadConfigFromFileWithEnv(path, DefaultEnvConfigOptions())
}

// LoadConfigFromFileWithEnv is LoadConfigFromFile with explicit environment
// expansion options.
func LoadConfigFromFileWithEnv(path string, envOptions EnvConfigOptions) (BridgeConfig, error) {
	var config BridgeConfig

	securePath, content, err := readConfigFile(path)
	if err != nil {
		return config, err
	}
	if err := decodeConfigBytes(content, argus.DetectFormat(securePath), &config); err != nil {
		return config, NewConfigParseError(securePath, err)
	}
	if err := ProcessConfigurationWithEnv(&config, envOptions); err != nil {
		return config, err
	}

	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return config, err
	}
	return config, nil
}

// readConfigFile validates path and returns its absolute form and content.
func readConfigFile(path string) (string, []byte, error) {
	securePath, err := validateAndSecureFilePath(path)
	if err != nil {
		return "", nil, err
	}

	file, err := os.OpenFile(securePath, os.O_RDONLY, 0)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil, NewConfigNotFoundError(securePath)
		}
		return "", nil, NewConfigFileError(securePath, "cannot open file", err)
	}
	defer func() { _ = file.Close() }()

	info, err := file.Stat()
	if err != nil {
		return "", nil, NewConfigFileError(securePath, "cannot stat file", err)
	}
	if !info.Mode().IsRegular() {
		return "", nil, NewConfigPathError(securePath, "not a regular file")
	}
	if info.Size() > maxConfigFileSize {
		return "", nil, NewConfigPathError(securePath, fmt.Sprintf("file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize))
	}

	content, err := os.ReadFile(securePath)
	if err != nil {
		return "", nil, NewConfigFileError(securePath, "cannot read file", err)
	}
	if len(strings.TrimSpace(string(content))) == 0 {
		return "", nil, NewConfigParseError(securePath, fmt.Errorf("file is empty"))
	}
	return securePath, content, nil
}

// validateAndSecureFilePath rejects traversal and malformed paths and returns
// the cleaned absolute path.
func validateAndSecureFilePath(path string) (string, error) {
	if path == "" {
		return "", NewConfigPathError(path, "empty file path")
	}
	if strings.Contains(path, "\x00") {
		return "", NewConfigPathError(path, "null byte detected in path")
	}
	if strings.Contains(path, "..") {
		return "", NewConfigPathError(path, "path traversal detected")
	}
	if strings.Contains(strings.ToLower(path), "%2e%2e") {
		return "", NewConfigPathError(path, "encoded path traversal detected")
	}

	absPath, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return "", NewConfigPathError(path, "cannot resolve absolute path: "+err.Error())
	}

	limit := 4095
	if runtime.GOOS == "windows" {
		limit = 259
	}
	if len(absPath) > limit {
		return "", NewConfigPathError(path, fmt.Sprintf("path too long: %d characters (max %d)", len(absPath), limit))
	}
	for i, r := range absPath {
		if r < 32 && r != '\t' {
			return "", NewConfigPathError(path, fmt.Sprintf("control character at position %d", i))
		}
	}
	return absPath, nil
}

// decodeConfigBytes parses content in format into out.
//
// Strategy:
//   - YAML: gopkg.in/yaml.v3
//   - JSON, TOML and the rest: argus.ParseConfig, bound to out through JSON
func decodeConfigBytes(content []byte, format argus.ConfigFormat, out any) error {
	if format == argus.FormatYAML {
		if err := yaml.Unmarshal(content, out); err != nil {
			return fmt.Errorf("failed to parse YAML config: %w", err)
		}
		return nil
	}

	configMap, err := argus.ParseConfig(content, format)
	if err != nil {
		return err
	}
	return bindConfigMap(configMap, out)
}

// bindConfigMap converts an Argus config map into a typed struct.
func bindConfigMap(configMap map[string]interface{}, out any) error {
	if configMap == nil {
		return fmt.Errorf("configuration map is nil")
	}
	jsonBytes, err := json.Marshal(configMap)
	if err != nil {
		return fmt.Errorf("failed to marshal config map to JSON: %w", err)
	}
	if err := json.Unmarshal(jsonBytes, out); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return nil
}

// CreateSampleConfig writes a YAML BridgeConfig with default values to
// filename.
func CreateSampleConfig(filename string) error {
	cfg := GetDefaultBridgeConfig()
	cfg.Bundle = BundleConfig{ID: 1, SymbolicName: "example-shim", Root: "./bundle"}

	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return NewConfigFileError(filename, "cannot encode sample config", err)
	}
	if err := os.WriteFile(filename, data, 0600); err != nil {
		return NewConfigFileError(filename, "cannot write sample config", err)
	}
	return nil
}
