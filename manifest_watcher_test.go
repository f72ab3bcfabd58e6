// manifest_watcher_test.go: registry manifest application and watching
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package shimbridge

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func staticProvider(entry PluginEntry) (Loader, error) {
	return NewStaticLoader(entry.ID()), nil
}

func manifestPlugin(pluginType, id string, ready bool) ManifestPlugin {
	return ManifestPlugin{PluginEntry: PluginEntry{Type: pluginType, IDs: []string{id}}, Ready: ready}
}

func TestRegistryManifestWatcher_Apply(t *testing.T) {
	registry := NewPluginRegistry(nil)
	require.NoError(t, registry.RegisterPluginType("External"))

	mw, err := NewRegistryManifestWatcher(registry, "unused.yaml", staticProvider, DefaultManifestWatcherOptions(), nil)
	require.NoError(t, err)

	// Initial state: the Hadoop plugin is known but not ready.
	diff, err := mw.Apply(RegistryManifest{
		PluginTypes: []string{"LifecyclePluginType", "External"},
		Plugins: []ManifestPlugin{
			manifestPlugin("LifecyclePluginType", "HadoopSpoonPlugin", false),
			manifestPlugin("StepPluginType", "HBaseInput", true),
		},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"LifecyclePluginType", "StepPluginType"}, diff.AddedTypes)
	assert.Equal(t, []string{"LifecyclePluginType/HadoopSpoonPlugin", "StepPluginType/HBaseInput"}, diff.AddedPlugins)
	assert.Equal(t, []string{"StepPluginType/HBaseInput"}, diff.ReadyPlugins)

	hadoop, err := registry.GetPlugin("LifecyclePluginType", "HadoopSpoonPlugin")
	require.NoError(t, err)
	require.NotNil(t, hadoop)
	assert.False(t, hadoop.Ready())

	// Same manifest again changes nothing.
	diff, err = mw.Apply(RegistryManifest{
		PluginTypes: []string{"LifecyclePluginType", "External"},
		Plugins: []ManifestPlugin{
			manifestPlugin("LifecyclePluginType", "HadoopSpoonPlugin", false),
			manifestPlugin("StepPluginType", "HBaseInput", true),
		},
	})
	require.NoError(t, err)
	assert.True(t, diff.Empty())

	// Hadoop becomes ready, HBase disappears.
	diff, err = mw.Apply(RegistryManifest{
		Plugins: []ManifestPlugin{manifestPlugin("LifecyclePluginType", "HadoopSpoonPlugin", true)},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"LifecyclePluginType/HadoopSpoonPlugin"}, diff.ReadyPlugins)
	assert.Equal(t, []string{"StepPluginType/HBaseInput"}, diff.RemovedPlugins)
	assert.Equal(t, []string{"StepPluginType"}, diff.RemovedTypes)

	loader, err := registry.ClassLoader(hadoop)
	require.NoError(t, err)
	assert.Equal(t, "static-loader:HadoopSpoonPlugin", fmt.Sprint(loader))

	// An empty manifest removes only what the watcher registered.
	diff, err = mw.Apply(RegistryManifest{})
	require.NoError(t, err)
	assert.Equal(t, []string{"LifecyclePluginType"}, diff.RemovedTypes)
	assert.Equal(t, []string{"External"}, registry.PluginTypes())

	stats := mw.Stats()
	assert.Equal(t, int64(4), stats.Applied)
	assert.False(t, stats.LastAppliedAt.IsZero())
}

func TestRegistryManifestWatcher_ApplyErrors(t *testing.T) {
	registry := NewPluginRegistry(nil)

	t.Run("ReadyWithoutProvider", func(t *testing.T) {
		mw, err := NewRegistryManifestWatcher(registry, "m.yaml", nil, DefaultManifestWatcherOptions(), nil)
		require.NoError(t, err)
		_, err = mw.Apply(RegistryManifest{Plugins: []ManifestPlugin{manifestPlugin("T", "a", true)}})
		assert.True(t, HasErrorCode(err, ErrCodeManifestError))
		assert.Equal(t, int64(1), mw.Stats().Failed)
	})

	t.Run("ProviderFailure", func(t *testing.T) {
		failing := func(PluginEntry) (Loader, error) { return nil, fmt.Errorf("jar missing") }
		mw, err := NewRegistryManifestWatcher(NewPluginRegistry(nil), "m.yaml", failing, DefaultManifestWatcherOptions(), nil)
		require.NoError(t, err)
		_, err = mw.Apply(RegistryManifest{Plugins: []ManifestPlugin{manifestPlugin("T", "a", true)}})
		assert.Error(t, err)
	})

	t.Run("Invalid", func(t *testing.T) {
		mw, err := NewRegistryManifestWatcher(NewPluginRegistry(nil), "m.yaml", staticProvider, DefaultManifestWatcherOptions(), nil)
		require.NoError(t, err)

		_, err = mw.Apply(RegistryManifest{Plugins: []ManifestPlugin{{PluginEntry: PluginEntry{Type: "T"}}}})
		assert.Error(t, err)
		_, err = mw.Apply(RegistryManifest{Plugins: []ManifestPlugin{
			manifestPlugin("T", "a", false),
			manifestPlugin("T", "a", true),
		}})
		assert.Error(t, err)
		_, err = mw.Apply(RegistryManifest{PluginTypes: []string{""}})
		assert.Error(t, err)
	})

	t.Run("Construction", func(t *testing.T) {
		_, err := NewRegistryManifestWatcher(nil, "m.yaml", nil, DefaultManifestWatcherOptions(), nil)
		assert.Error(t, err)
		_, err = NewRegistryManifestWatcher(registry, "", nil, DefaultManifestWatcherOptions(), nil)
		assert.True(t, HasErrorCode(err, ErrCodeConfigPathError))
	})
}

const manifestYAML = `plugin_types: [LifecyclePluginType]
plugins:
  - type: LifecyclePluginType
    ids: [HadoopSpoonPlugin]
    name: Hadoop Spoon
    ready: %t
`

func TestLoadManifestFromFile(t *testing.T) {
	t.Run("YAML", func(t *testing.T) {
		m, err := LoadManifestFromFile(writeTempFile(t, "registry.yaml", fmt.Sprintf(manifestYAML, true)))
		require.NoError(t, err)
		require.Len(t, m.Plugins, 1)
		assert.Equal(t, "HadoopSpoonPlugin", m.Plugins[0].ID())
		assert.Equal(t, "Hadoop Spoon", m.Plugins[0].Name)
		assert.True(t, m.Plugins[0].Ready)
	})

	t.Run("JSON", func(t *testing.T) {
		m, err := LoadManifestFromFile(writeTempFile(t, "registry.json",
			`{"plugin_types": ["T"], "plugins": [{"type": "T", "ids": ["a", "b"], "ready": false}]}`))
		require.NoError(t, err)
		require.Len(t, m.Plugins, 1)
		assert.Equal(t, []string{"a", "b"}, m.Plugins[0].IDs)
	})

	t.Run("Invalid", func(t *testing.T) {
		_, err := LoadManifestFromFile(writeTempFile(t, "registry.yaml", "plugins:\n  - type: T\n"))
		assert.True(t, HasErrorCode(err, ErrCodeManifestError))
	})
}

func TestRegistryManifestWatcher_FileChangeWakesWaiters(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "registry.yaml")
	require.NoError(t, os.WriteFile(path, []byte(fmt.Sprintf(manifestYAML, false)), 0600))

	registry := NewPluginRegistry(nil)
	options := ManifestWatcherOptions{
		PollInterval: 100 * time.Millisecond,
		CacheTTL:     50 * time.Millisecond,
	}
	mw, err := NewRegistryManifestWatcher(registry, path, staticProvider, options, NewTestLogger())
	require.NoError(t, err)
	require.NoError(t, mw.Start())
	defer func() { _ = mw.Stop() }()

	assert.True(t, mw.IsRunning())
	assert.Error(t, mw.Start(), "second start")

	entry, err := registry.GetPlugin("LifecyclePluginType", "HadoopSpoonPlugin")
	require.NoError(t, err)
	require.NotNil(t, entry, "manifest applied on start")
	assert.False(t, entry.Ready())

	gate := NewReadinessGate(registry, nil)
	result := make(chan Loader, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		loader, _ := gate.AwaitDelegate(ctx, "LifecyclePluginType", "HadoopSpoonPlugin")
		result <- loader
	}()

	// Let the mtime move before rewriting.
	time.Sleep(150 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte(fmt.Sprintf(manifestYAML, true)), 0600))

	select {
	case loader := <-result:
		require.NotNil(t, loader)
		assert.Equal(t, "static-loader:HadoopSpoonPlugin", fmt.Sprint(loader))
	case <-time.After(10 * time.Second):
		t.Fatal("manifest change did not wake the waiter")
	}

	require.NoError(t, mw.Stop())
	assert.False(t, mw.IsRunning())
	assert.Error(t, mw.Stop())
	assert.Error(t, mw.Start(), "stopped watchers cannot restart")
}

func TestRegistryManifestWatcher_StartFailsOnBadFile(t *testing.T) {
	mw, err := NewRegistryManifestWatcher(NewPluginRegistry(nil), filepath.Join(t.TempDir(), "missing.yaml"),
		staticProvider, DefaultManifestWatcherOptions(), nil)
	require.NoError(t, err)
	assert.Error(t, mw.Start())
	assert.False(t, mw.IsRunning())
}
