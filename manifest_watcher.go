// manifest_watcher.go: Registry population from a watched manifest file
//
// A registry manifest lists plugin types and plugins, and marks which plugins
// are ready. The watcher applies the manifest to a PluginRegistry at start
// and again whenever Argus reports a change, so edits to the file drive the
// same registry mutations (and readiness wake-ups) as programmatic calls.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package shimbridge

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/agilira/argus"
)

// RegistryManifest is the file format read by RegistryManifestWatcher.
//
//	plugin_types: [LifecyclePluginType]
//	plugins:
//	  - type: LifecyclePluginType
//	    ids: [HadoopSpoonPlugin]
//	    name: Hadoop Spoon
//	    ready: true
type RegistryManifest struct {
	PluginTypes []string         `json:"plugin_types" yaml:"plugin_types"`
	Plugins     []ManifestPlugin `json:"plugins" yaml:"plugins"`
}

// ManifestPlugin is one plugin entry in a manifest.
type ManifestPlugin struct {
	PluginEntry `yaml:",inline"`
	Ready       bool `json:"ready" yaml:"ready"`
}

// Validate checks that every plugin names a type and an id.
func (m *RegistryManifest) Validate() error {
	for i, t := range m.PluginTypes {
		if t == "" {
			return NewConfigValidationError(fmt.Sprintf("plugin type %d is empty", i), nil)
		}
	}
	seen := make(map[string]bool)
	for i, p := range m.Plugins {
		if p.Type == "" {
			return NewConfigValidationError(fmt.Sprintf("plugin %d has no type", i), nil)
		}
		if p.ID() == "" {
			return NewConfigValidationError(fmt.Sprintf("plugin %d has no id", i), nil)
		}
		key := p.Type + "/" + p.ID()
		if seen[key] {
			return NewConfigValidationError("duplicate plugin "+key, nil)
		}
		seen[key] = true
	}
	return nil
}

// types returns declared types followed by types only named by plugins.
func (m *RegistryManifest) types() []string {
	seen := make(map[string]bool)
	var out []string
	add := func(t string) {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	for _, t := range m.PluginTypes {
		add(t)
	}
	for _, p := range m.Plugins {
		add(p.Type)
	}
	return out
}

// LoadManifestFromFile reads and validates a JSON, YAML or TOML manifest.
func LoadManifestFromFile(path string) (RegistryManifest, error) {
	var manifest RegistryManifest
	securePath, content, err := readConfigFile(path)
	if err != nil {
		return manifest, err
	}
	if err := decodeConfigBytes(content, argus.DetectFormat(securePath), &manifest); err != nil {
		return manifest, NewManifestError(securePath, "cannot parse manifest", err)
	}
	if err := manifest.Validate(); err != nil {
		return manifest, NewManifestError(securePath, "invalid manifest", err)
	}
	return manifest, nil
}

// LoaderProvider supplies the loader for a plugin the manifest marks ready.
type LoaderProvider func(entry PluginEntry) (Loader, error)

// ManifestDiff lists what one Apply changed. Plugins are "type/id".
type ManifestDiff struct {
	AddedTypes     []string `json:"added_types,omitempty"`
	RemovedTypes   []string `json:"removed_types,omitempty"`
	AddedPlugins   []string `json:"added_plugins,omitempty"`
	ReadyPlugins   []string `json:"ready_plugins,omitempty"`
	RemovedPlugins []string `json:"removed_plugins,omitempty"`
}

// Empty reports whether the diff changed nothing.
func (d ManifestDiff) Empty() bool {
	return len(d.AddedTypes)+len(d.RemovedTypes)+len(d.AddedPlugins)+len(d.ReadyPlugins)+len(d.RemovedPlugins) == 0
}

// ManifestWatcherOptions configures file watching.
type ManifestWatcherOptions struct {
	PollInterval time.Duration     `json:"poll_interval"`
	CacheTTL     time.Duration     `json:"cache_ttl"`
	AuditConfig  argus.AuditConfig `json:"audit_config"`
}

// DefaultManifestWatcherOptions returns defaults suited to a rarely edited file.
func DefaultManifestWatcherOptions() ManifestWatcherOptions {
	return ManifestWatcherOptions{
		PollInterval: 2 * time.Second,
		CacheTTL:     1 * time.Second,
		AuditConfig:  argus.AuditConfig{Enabled: false},
	}
}

// ManifestWatcherStats counts manifest applications.
type ManifestWatcherStats struct {
	Applied       int64     `json:"applied"`
	Failed        int64     `json:"failed"`
	LastAppliedAt time.Time `json:"last_applied_at"`
}

// RegistryManifestWatcher keeps a PluginRegistry in sync with a manifest
// file. Only types and plugins it registered itself are ever removed.
type RegistryManifestWatcher struct {
	registry *PluginRegistry
	provider LoaderProvider
	path     string
	watcher  *argus.Watcher
	logger   Logger
	options  ManifestWatcherOptions

	applyMu      sync.Mutex
	ownedTypes   map[string]bool
	ownedPlugins map[string]PluginEntry

	mu       sync.Mutex
	running  atomic.Bool
	stopped  atomic.Bool
	stopOnce sync.Once

	applied       atomic.Int64
	failed        atomic.Int64
	lastAppliedNs atomic.Int64
}

// NewRegistryManifestWatcher creates a watcher applying path to registry.
// provider may be nil when the manifest never marks plugins ready.
func NewRegistryManifestWatcher(registry *PluginRegistry, path string, provider LoaderProvider, options ManifestWatcherOptions, logger any) (*RegistryManifestWatcher, error) {
	if registry == nil {
		return nil, NewRegistryError("registry cannot be nil", nil)
	}
	if path == "" {
		return nil, NewConfigPathError(path, "manifest path cannot be empty")
	}
	internalLogger := NewLogger(logger).With("manifest_path", path)

	watcher := argus.New(argus.Config{
		PollInterval:         options.PollInterval,
		CacheTTL:             options.CacheTTL,
		MaxWatchedFiles:      1,
		Audit:                options.AuditConfig,
		OptimizationStrategy: argus.OptimizationSingleEvent,
		ErrorHandler: func(err error, filepath string) {
			internalLogger.Error("Argus file watching error", "error", err, "file", filepath)
		},
	})

	return &RegistryManifestWatcher{
		registry:     registry,
		provider:     provider,
		path:         path,
		watcher:      watcher,
		logger:       internalLogger,
		options:      options,
		ownedTypes:   make(map[string]bool),
		ownedPlugins: make(map[string]PluginEntry),
	}, nil
}

// Start applies the manifest once and begins watching it.
func (mw *RegistryManifestWatcher) Start() error {
	if mw.stopped.Load() {
		return NewConfigWatcherError("manifest watcher has been stopped and cannot be restarted", nil)
	}

	mw.mu.Lock()
	defer mw.mu.Unlock()

	if !mw.running.CompareAndSwap(false, true) {
		return NewConfigWatcherError("manifest watcher is already running", nil)
	}

	if _, err := mw.Reload(); err != nil {
		mw.running.Store(false)
		return err
	}
	if err := mw.watcher.Watch(mw.path, mw.handleManifestChange); err != nil {
		mw.running.Store(false)
		return NewConfigWatcherError("failed to watch manifest", err)
	}
	if err := mw.watcher.Start(); err != nil {
		mw.running.Store(false)
		return NewConfigWatcherError("failed to start Argus watcher", err)
	}

	mw.logger.Info("Registry manifest watcher started", "poll_interval", mw.options.PollInterval)
	return nil
}

// Stop stops watching. A stopped watcher cannot be restarted.
func (mw *RegistryManifestWatcher) Stop() error {
	if mw.stopped.Load() {
		return NewConfigWatcherError("manifest watcher is already stopped", nil)
	}

	var stopErr error
	mw.stopOnce.Do(func() {
		mw.mu.Lock()
		defer mw.mu.Unlock()

		if !mw.running.CompareAndSwap(true, false) {
			stopErr = NewConfigWatcherError("manifest watcher is not running", nil)
			return
		}
		mw.stopped.Store(true)
		if err := mw.watcher.Stop(); err != nil {
			stopErr = NewConfigWatcherError("failed to stop Argus watcher", err)
			return
		}
		mw.logger.Info("Registry manifest watcher stopped")
	})
	return stopErr
}

// IsRunning reports whether the watcher is started and not stopped.
func (mw *RegistryManifestWatcher) IsRunning() bool {
	return mw.running.Load()
}

// Reload reads the manifest file and applies it.
func (mw *RegistryManifestWatcher) Reload() (ManifestDiff, error) {
	manifest, err := LoadManifestFromFile(mw.path)
	if err != nil {
		mw.failed.Add(1)
		return ManifestDiff{}, err
	}
	return mw.Apply(manifest)
}

func (mw *RegistryManifestWatcher) handleManifestChange(event argus.ChangeEvent) {
	defer withStackRecover(mw.logger)()

	if event.IsDelete {
		mw.logger.Warn("Registry manifest was deleted, keeping current registry state")
		return
	}
	diff, err := mw.Reload()
	if err != nil {
		mw.logger.Error("Failed to apply registry manifest", "error", err)
		return
	}
	if !diff.Empty() {
		mw.logger.Info("Registry manifest applied",
			"added_types", diff.AddedTypes,
			"removed_types", diff.RemovedTypes,
			"added_plugins", diff.AddedPlugins,
			"ready_plugins", diff.ReadyPlugins,
			"removed_plugins", diff.RemovedPlugins)
	}
}

// Apply brings the registry in line with manifest and returns what changed.
// Types are registered before plugins and removals run last, so a waiter
// never observes a plugin without its type.
func (mw *RegistryManifestWatcher) Apply(manifest RegistryManifest) (ManifestDiff, error) {
	mw.applyMu.Lock()
	defer mw.applyMu.Unlock()

	var diff ManifestDiff
	fail := func(msg string, err error) (ManifestDiff, error) {
		mw.failed.Add(1)
		return diff, NewManifestError(mw.path, msg, err)
	}

	if err := manifest.Validate(); err != nil {
		return fail("invalid manifest", err)
	}

	known := make(map[string]bool)
	for _, t := range mw.registry.PluginTypes() {
		known[t] = true
	}

	wantTypes := make(map[string]bool)
	for _, t := range manifest.types() {
		wantTypes[t] = true
		if known[t] {
			continue
		}
		if err := mw.registry.RegisterPluginType(t); err != nil {
			return fail("cannot register plugin type "+t, err)
		}
		mw.ownedTypes[t] = true
		diff.AddedTypes = append(diff.AddedTypes, t)
	}

	wantPlugins := make(map[string]bool)
	for _, p := range manifest.Plugins {
		key := p.Type + "/" + p.ID()
		wantPlugins[key] = true

		existing, err := mw.registry.GetPlugin(p.Type, p.ID())
		if err != nil {
			return fail("cannot look up plugin "+key, err)
		}

		switch {
		case existing == nil:
			var loader Loader
			if p.Ready {
				if loader, err = mw.loaderFor(p.PluginEntry); err != nil {
					return fail("cannot provide loader for "+key, err)
				}
			}
			if err := mw.registry.RegisterPlugin(p.PluginEntry, loader); err != nil {
				return fail("cannot register plugin "+key, err)
			}
			mw.ownedPlugins[key] = p.PluginEntry
			diff.AddedPlugins = append(diff.AddedPlugins, key)
			if loader != nil {
				diff.ReadyPlugins = append(diff.ReadyPlugins, key)
			}

		case p.Ready && !existing.Ready():
			loader, err := mw.loaderFor(p.PluginEntry)
			if err != nil {
				return fail("cannot provide loader for "+key, err)
			}
			if err := mw.registry.MarkReady(p.Type, p.ID(), loader); err != nil {
				return fail("cannot mark plugin ready "+key, err)
			}
			diff.ReadyPlugins = append(diff.ReadyPlugins, key)
		}
	}

	for key, entry := range mw.ownedPlugins {
		if wantPlugins[key] {
			continue
		}
		delete(mw.ownedPlugins, key)
		if err := mw.registry.RemovePlugin(entry.Type, entry.ID()); err != nil {
			mw.logger.Debug("Plugin already gone", "plugin", key, "error", err)
			continue
		}
		diff.RemovedPlugins = append(diff.RemovedPlugins, key)
	}
	for t := range mw.ownedTypes {
		if wantTypes[t] {
			continue
		}
		delete(mw.ownedTypes, t)
		if err := mw.registry.RemovePluginType(t); err != nil {
			mw.logger.Debug("Plugin type already gone", "plugin_type", t, "error", err)
			continue
		}
		diff.RemovedTypes = append(diff.RemovedTypes, t)
	}

	mw.applied.Add(1)
	mw.lastAppliedNs.Store(time.Now().UnixNano())
	return diff, nil
}

func (mw *RegistryManifestWatcher) loaderFor(entry PluginEntry) (Loader, error) {
	if mw.provider == nil {
		return nil, fmt.Errorf("no loader provider configured")
	}
	loader, err := mw.provider(entry)
	if err != nil {
		return nil, err
	}
	if loader == nil {
		return nil, fmt.Errorf("loader provider returned no loader")
	}
	return loader, nil
}

// Stats returns application counters.
func (mw *RegistryManifestWatcher) Stats() ManifestWatcherStats {
	stats := ManifestWatcherStats{
		Applied: mw.applied.Load(),
		Failed:  mw.failed.Load(),
	}
	if ns := mw.lastAppliedNs.Load(); ns != 0 {
		stats.LastAppliedAt = time.Unix(0, ns)
	}
	return stats
}

// GetWatcherStats returns the Argus cache statistics.
func (mw *RegistryManifestWatcher) GetWatcherStats() argus.CacheStats {
	return mw.watcher.GetCacheStats()
}
