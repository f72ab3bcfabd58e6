// config.go: Bridge configuration types, validation and defaults
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package shimbridge

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// Legacy plugin that provides shim types when no target is configured.
const (
	DefaultPluginType = "LifecyclePluginType"
	DefaultPluginID   = "HadoopSpoonPlugin"
)

// Duration is a time.Duration that decodes from "5s" style strings in YAML
// and JSON, or from a number of nanoseconds in JSON.
type Duration time.Duration

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

// MarshalJSON encodes the duration as a string.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON accepts a duration string or a number of nanoseconds.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case float64:
		*d = Duration(time.Duration(v))
		return nil
	case string:
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", v, err)
		}
		*d = Duration(parsed)
		return nil
	case nil:
		*d = 0
		return nil
	default:
		return fmt.Errorf("invalid duration %v", raw)
	}
}

// MarshalYAML encodes the duration as a string.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML accepts a duration string.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	parsed, err := time.ParseDuration(node.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", node.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// BundleConfig describes a bundle served from a local directory.
type BundleConfig struct {
	ID           int64  `json:"id" yaml:"id"`
	SymbolicName string `json:"symbolic_name" yaml:"symbolic_name"`
	Version      string `json:"version,omitempty" yaml:"version,omitempty"`
	Root         string `json:"root,omitempty" yaml:"root,omitempty"`
}

// Ref returns the bundle reference described by the config.
func (bc BundleConfig) Ref() BundleRef {
	return BundleRef{ID: bc.ID, SymbolicName: bc.SymbolicName, Version: bc.Version}
}

// LoggingConfig selects the zap logger built by BuildLogger.
type LoggingConfig struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"`
}

// HealthConfig configures the readiness health reporter.
type HealthConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Service string `json:"service,omitempty" yaml:"service,omitempty"`
}

// BridgeConfig configures a Bridge.
//
// Example YAML:
//
//	target:
//	  plugin_type: LifecyclePluginType
//	  plugin_id: HadoopSpoonPlugin
//	bundle:
//	  id: 42
//	  symbolic_name: pentaho-hadoop-shims-cdh
//	  root: ./bundles/cdh
//	unit_formats: [.unit.yaml, .wasm]
//	await_timeout: 30s
//	registry_manifest: ./registry.yaml
type BridgeConfig struct {
	Target           PluginTarget  `json:"target" yaml:"target"`
	Bundle           BundleConfig  `json:"bundle" yaml:"bundle"`
	EntryDepth       int           `json:"entry_depth" yaml:"entry_depth"`
	UnitFormats      []string      `json:"unit_formats,omitempty" yaml:"unit_formats,omitempty"`
	AwaitTimeout     Duration      `json:"await_timeout,omitempty" yaml:"await_timeout,omitempty"`
	RegistryManifest string        `json:"registry_manifest,omitempty" yaml:"registry_manifest,omitempty"`
	Logging          LoggingConfig `json:"logging" yaml:"logging"`
	Health           HealthConfig  `json:"health" yaml:"health"`
}

var knownUnitFormats = map[string]bool{
	DescriptorSuffix: true,
	WasmSuffix:       true,
}

var knownLogLevels = map[string]bool{
	"debug": true, "info": true, "warn": true, "error": true,
}

// Validate checks the configuration. Call ApplyDefaults first to accept
// partially filled configs.
func (bc *BridgeConfig) Validate() error {
	if strings.TrimSpace(bc.Target.PluginType) == "" {
		return NewConfigValidationError("target plugin type cannot be empty", nil)
	}
	if strings.TrimSpace(bc.Target.PluginID) == "" {
		return NewConfigValidationError("target plugin id cannot be empty", nil)
	}
	if bc.EntryDepth < 0 {
		return NewConfigValidationError(fmt.Sprintf("entry depth cannot be negative: %d", bc.EntryDepth), nil)
	}
	if bc.AwaitTimeout < 0 {
		return NewConfigValidationError("await timeout cannot be negative", nil)
	}

	seen := make(map[string]bool, len(bc.UnitFormats))
	for _, f := range bc.UnitFormats {
		if !knownUnitFormats[f] {
			return NewConfigValidationError("unsupported unit format: "+f, nil)
		}
		if seen[f] {
			return NewConfigValidationError("duplicate unit format: "+f, nil)
		}
		seen[f] = true
	}

	if bc.Logging.Level != "" && !knownLogLevels[strings.ToLower(bc.Logging.Level)] {
		return NewConfigValidationError("unsupported log level: "+bc.Logging.Level, nil)
	}
	switch bc.Logging.Format {
	case "", "json", "console":
	default:
		return NewConfigValidationError("unsupported log format: "+bc.Logging.Format, nil)
	}
	return nil
}

// ApplyDefaults fills in unset fields.
func (bc *BridgeConfig) ApplyDefaults() {
	if bc.Target.PluginType == "" {
		bc.Target.PluginType = DefaultPluginType
	}
	if bc.Target.PluginID == "" {
		bc.Target.PluginID = DefaultPluginID
	}
	if len(bc.UnitFormats) == 0 {
		bc.UnitFormats = []string{DescriptorSuffix}
	}
	if bc.Logging.Level == "" {
		bc.Logging.Level = "info"
	}
	if bc.Logging.Format == "" {
		bc.Logging.Format = "json"
	}
	if bc.Health.Enabled && bc.Health.Service == "" {
		bc.Health.Service = bc.Target.String()
	}
}

// ToJSON serializes the configuration.
func (bc *BridgeConfig) ToJSON() ([]byte, error) {
	return json.MarshalIndent(bc, "", "  ")
}

// FromJSON replaces the configuration with data, then applies defaults and
// validates.
func (bc *BridgeConfig) FromJSON(data []byte) error {
	var cfg BridgeConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return NewConfigParseError("<json>", err)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return err
	}
	*bc = cfg
	return nil
}

// GetDefaultBridgeConfig returns a configuration targeting the default
// legacy plugin.
func GetDefaultBridgeConfig() BridgeConfig {
	cfg := BridgeConfig{}
	cfg.ApplyDefaults()
	return cfg
}

// BuildLogger creates a zap logger for the logging section.
func (lc LoggingConfig) BuildLogger() (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if lc.Level != "" {
		if err := level.UnmarshalText([]byte(strings.ToLower(lc.Level))); err != nil {
			return nil, NewConfigValidationError("unsupported log level: "+lc.Level, err)
		}
	}

	zcfg := zap.NewProductionConfig()
	if lc.Format == "console" {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	return zcfg.Build()
}
