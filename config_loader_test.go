// config_loader_test.go: loading bridge configuration files
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package shimbridge

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoadConfigFromFile_YAML(t *testing.T) {
	t.Setenv("SB_TEST_BUNDLE_ROOT", "/srv/bundles/cdh")
	path := writeTempFile(t, "bridge.yaml", `
target:
  plugin_type: LifecyclePluginType
  plugin_id: HadoopSpoonPlugin
bundle:
  id: 17
  symbolic_name: pentaho-big-data-shim
  version: "9.4"
  root: ${SB_TEST_BUNDLE_ROOT}
entry_depth: 1
unit_formats: [.unit.yaml, .wasm]
await_timeout: 45s
logging:
  level: debug
  format: console
health:
  enabled: true
`)

	cfg, err := LoadConfigFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, PluginTarget{PluginType: "LifecyclePluginType", PluginID: "HadoopSpoonPlugin"}, cfg.Target)
	assert.Equal(t, BundleRef{ID: 17, SymbolicName: "pentaho-big-data-shim", Version: "9.4"}, cfg.Bundle.Ref())
	assert.Equal(t, "/srv/bundles/cdh", cfg.Bundle.Root)
	assert.Equal(t, 1, cfg.EntryDepth)
	assert.Equal(t, []string{DescriptorSuffix, WasmSuffix}, cfg.UnitFormats)
	assert.Equal(t, 45*time.Second, cfg.AwaitTimeout.Std())
	assert.Equal(t, "console", cfg.Logging.Format)
	assert.Equal(t, "LifecyclePluginType/HadoopSpoonPlugin", cfg.Health.Service)
}

func TestLoadConfigFromFile_JSON(t *testing.T) {
	path := writeTempFile(t, "bridge.json", `{
  "target": {"plugin_type": "StepPluginType", "plugin_id": "HBaseInput"},
  "bundle": {"id": 2, "symbolic_name": "hbase"},
  "await_timeout": "2s"
}`)

	cfg, err := LoadConfigFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "StepPluginType", cfg.Target.PluginType)
	assert.Equal(t, int64(2), cfg.Bundle.ID)
	assert.Equal(t, 2*time.Second, cfg.AwaitTimeout.Std())
	assert.Equal(t, []string{DescriptorSuffix}, cfg.UnitFormats, "defaults applied")
}

func TestLoadConfigFromFile_Errors(t *testing.T) {
	t.Run("Missing", func(t *testing.T) {
		_, err := LoadConfigFromFile(filepath.Join(t.TempDir(), "absent.yaml"))
		assert.True(t, HasErrorCode(err, ErrCodeConfigNotFound))
	})

	t.Run("Traversal", func(t *testing.T) {
		for _, p := range []string{"../etc/bridge.yaml", "conf/%2E%2E/bridge.yaml", "bad\x00.yaml", ""} {
			_, err := LoadConfigFromFile(p)
			if !HasErrorCode(err, ErrCodeConfigPathError) {
				t.Errorf("path %q: expected path error, got %v", p, err)
			}
		}
	})

	t.Run("Directory", func(t *testing.T) {
		_, err := LoadConfigFromFile(t.TempDir())
		assert.True(t, HasErrorCode(err, ErrCodeConfigPathError))
	})

	t.Run("Empty", func(t *testing.T) {
		_, err := LoadConfigFromFile(writeTempFile(t, "empty.yaml", "  \n"))
		assert.True(t, HasErrorCode(err, ErrCodeConfigParseError))
	})

	t.Run("InvalidYAML", func(t *testing.T) {
		_, err := LoadConfigFromFile(writeTempFile(t, "bad.yaml", "target: [\n"))
		assert.True(t, HasErrorCode(err, ErrCodeConfigParseError))
	})

	t.Run("InvalidValues", func(t *testing.T) {
		_, err := LoadConfigFromFile(writeTempFile(t, "bad-values.yaml", "entry_depth: -2\n"))
		assert.True(t, HasErrorCode(err, ErrCodeConfigValidationError))
	})
}

func TestCreateSampleConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.yaml")
	require.NoError(t, CreateSampleConfig(path))

	cfg, err := LoadConfigFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultPluginType, cfg.Target.PluginType)
	assert.Equal(t, "example-shim", cfg.Bundle.SymbolicName)
	assert.Equal(t, "./bundle", cfg.Bundle.Root)
}
