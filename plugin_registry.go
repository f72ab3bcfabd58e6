// plugin_registry.go: Legacy plugin registry with mutation broadcast
//
// This file implements the asynchronously populated plugin catalog the bridge
// waits on. Plugins are grouped by plugin type and looked up by id; a plugin's
// loader may be attached after the plugin itself is registered. Every mutation
// is broadcast to all subscribers so blocked readiness waits can re-check.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package shimbridge

import (
	"sort"
	"sync"
	"time"

	"github.com/agilira/go-timecache"
	"github.com/google/uuid"
)

// Registry is the read side of the legacy plugin registry.
//
// GetPlugin returns a nil entry and nil error when the plugin is absent.
// Subscribe returns a subscription that is notified after every mutation.
type Registry interface {
	PluginTypes() []string
	GetPlugin(pluginType, id string) (*PluginEntry, error)
	ClassLoader(entry *PluginEntry) (Loader, error)
	Subscribe() *Subscription
}

// PluginEntry describes one registered legacy plugin.
type PluginEntry struct {
	Type        string            `json:"type" yaml:"type"`
	IDs         []string          `json:"ids" yaml:"ids"`
	Name        string            `json:"name,omitempty" yaml:"name,omitempty"`
	Description string            `json:"description,omitempty" yaml:"description,omitempty"`
	Properties  map[string]string `json:"properties,omitempty" yaml:"properties,omitempty"`

	loader Loader
}

// ID returns the primary id.
func (e *PluginEntry) ID() string {
	if len(e.IDs) == 0 {
		return ""
	}
	return e.IDs[0]
}

// Matches reports whether id is one of the entry ids.
func (e *PluginEntry) Matches(id string) bool {
	for _, candidate := range e.IDs {
		if candidate == id {
			return true
		}
	}
	return false
}

// Ready reports whether a loader is attached.
func (e *PluginEntry) Ready() bool { return e.loader != nil }

func (e *PluginEntry) clone() *PluginEntry {
	c := *e
	c.IDs = append([]string(nil), e.IDs...)
	if e.Properties != nil {
		c.Properties = make(map[string]string, len(e.Properties))
		for k, v := range e.Properties {
			c.Properties[k] = v
		}
	}
	return &c
}

// Subscription receives a signal after registry mutations. Signals coalesce:
// one pending signal stands for any number of mutations since the last read.
type Subscription struct {
	id      string
	ch      chan struct{}
	cancel  func(*Subscription)
	closeMu sync.Once
}

// ID returns the subscription identifier.
func (s *Subscription) ID() string { return s.id }

// C returns the notification channel.
func (s *Subscription) C() <-chan struct{} { return s.ch }

// Close removes the subscription from its registry. Safe to call twice.
func (s *Subscription) Close() {
	s.closeMu.Do(func() {
		if s.cancel != nil {
			s.cancel(s)
		}
	})
}

func (s *Subscription) notify() {
	select {
	case s.ch <- struct{}{}:
	default:
	}
}

// RegistryStats summarizes registry state.
type RegistryStats struct {
	PluginTypes    int            `json:"plugin_types"`
	Plugins        int            `json:"plugins"`
	ReadyPlugins   int            `json:"ready_plugins"`
	Subscribers    int            `json:"subscribers"`
	Mutations      uint64         `json:"mutations"`
	LastMutationAt time.Time      `json:"last_mutation_at"`
	PluginsByType  map[string]int `json:"plugins_by_type"`
	PendingByType  map[string]int `json:"pending_by_type"`
}

// PluginRegistry is the in-memory legacy plugin registry.
type PluginRegistry struct {
	logger Logger

	mu      sync.RWMutex
	types   map[string]bool
	order   []string
	plugins map[string][]*PluginEntry

	subMu       sync.Mutex
	subscribers map[string]*Subscription

	mutations      uint64
	lastMutationNs int64
}

// NewPluginRegistry creates an empty registry.
func NewPluginRegistry(logger any) *PluginRegistry {
	return &PluginRegistry{
		logger:      NewLogger(logger),
		types:       make(map[string]bool),
		plugins:     make(map[string][]*PluginEntry),
		subscribers: make(map[string]*Subscription),
	}
}

// RegisterPluginType adds a plugin type. Registering a known type is a no-op.
func (pr *PluginRegistry) RegisterPluginType(pluginType string) error {
	if pluginType == "" {
		return NewRegistryError("plugin type cannot be empty", nil)
	}

	pr.mu.Lock()
	if pr.types[pluginType] {
		pr.mu.Unlock()
		return nil
	}
	pr.types[pluginType] = true
	pr.order = append(pr.order, pluginType)
	pr.recordMutationLocked()
	pr.mu.Unlock()

	pr.logger.Info("Registered plugin type", "plugin_type", pluginType)
	pr.broadcast()
	return nil
}

// RemovePluginType removes a plugin type and every plugin registered under it.
func (pr *PluginRegistry) RemovePluginType(pluginType string) error {
	pr.mu.Lock()
	if !pr.types[pluginType] {
		pr.mu.Unlock()
		return NewRegistryError("unknown plugin type "+pluginType, nil)
	}
	delete(pr.types, pluginType)
	delete(pr.plugins, pluginType)
	for i, t := range pr.order {
		if t == pluginType {
			pr.order = append(pr.order[:i], pr.order[i+1:]...)
			break
		}
	}
	pr.recordMutationLocked()
	pr.mu.Unlock()

	pr.logger.Info("Removed plugin type", "plugin_type", pluginType)
	pr.broadcast()
	return nil
}

// RegisterPlugin adds a plugin under its type. The type must be registered.
// loader may be nil; attach it later with MarkReady.
func (pr *PluginRegistry) RegisterPlugin(entry PluginEntry, loader Loader) error {
	if len(entry.IDs) == 0 || entry.IDs[0] == "" {
		return NewRegistryError("plugin must have at least one id", nil)
	}

	pr.mu.Lock()
	if !pr.types[entry.Type] {
		pr.mu.Unlock()
		return NewRegistryError("unknown plugin type "+entry.Type, nil)
	}
	for _, existing := range pr.plugins[entry.Type] {
		for _, id := range entry.IDs {
			if existing.Matches(id) {
				pr.mu.Unlock()
				return NewRegistryError("plugin id already registered: "+id, nil)
			}
		}
	}
	stored := entry.clone()
	stored.loader = loader
	pr.plugins[entry.Type] = append(pr.plugins[entry.Type], stored)
	pr.recordMutationLocked()
	pr.mu.Unlock()

	pr.logger.Info("Registered plugin",
		"plugin_type", entry.Type,
		"plugin_id", entry.ID(),
		"ready", loader != nil)
	pr.broadcast()
	return nil
}

// MarkReady attaches loader to an already registered plugin.
func (pr *PluginRegistry) MarkReady(pluginType, id string, loader Loader) error {
	if loader == nil {
		return NewRegistryError("loader cannot be nil", nil)
	}

	pr.mu.Lock()
	entry := pr.findLocked(pluginType, id)
	if entry == nil {
		pr.mu.Unlock()
		return NewRegistryError("plugin not registered: "+pluginType+"/"+id, nil)
	}
	entry.loader = loader
	pr.recordMutationLocked()
	pr.mu.Unlock()

	pr.logger.Info("Plugin ready", "plugin_type", pluginType, "plugin_id", id)
	pr.broadcast()
	return nil
}

// RemovePlugin removes the plugin that owns id.
func (pr *PluginRegistry) RemovePlugin(pluginType, id string) error {
	pr.mu.Lock()
	list := pr.plugins[pluginType]
	removed := false
	for i, e := range list {
		if e.Matches(id) {
			pr.plugins[pluginType] = append(list[:i:i], list[i+1:]...)
			removed = true
			break
		}
	}
	if !removed {
		pr.mu.Unlock()
		return NewRegistryError("plugin not registered: "+pluginType+"/"+id, nil)
	}
	pr.recordMutationLocked()
	pr.mu.Unlock()

	pr.logger.Info("Removed plugin", "plugin_type", pluginType, "plugin_id", id)
	pr.broadcast()
	return nil
}

// PluginTypes implements Registry. Types are returned in registration order.
func (pr *PluginRegistry) PluginTypes() []string {
	pr.mu.RLock()
	defer pr.mu.RUnlock()
	return append([]string(nil), pr.order...)
}

// GetPlugin implements Registry.
func (pr *PluginRegistry) GetPlugin(pluginType, id string) (*PluginEntry, error) {
	pr.mu.RLock()
	defer pr.mu.RUnlock()
	if !pr.types[pluginType] {
		return nil, nil
	}
	entry := pr.findLocked(pluginType, id)
	if entry == nil {
		return nil, nil
	}
	return entry.clone(), nil
}

// Plugins returns copies of the plugins registered under pluginType.
func (pr *PluginRegistry) Plugins(pluginType string) []*PluginEntry {
	pr.mu.RLock()
	defer pr.mu.RUnlock()
	out := make([]*PluginEntry, 0, len(pr.plugins[pluginType]))
	for _, e := range pr.plugins[pluginType] {
		out = append(out, e.clone())
	}
	return out
}

// ClassLoader implements Registry. It fails with a retryable error while the
// plugin is registered but not ready.
func (pr *PluginRegistry) ClassLoader(entry *PluginEntry) (Loader, error) {
	if entry == nil {
		return nil, NewRegistryError("plugin entry cannot be nil", nil)
	}
	if entry.loader != nil {
		return entry.loader, nil
	}

	pr.mu.RLock()
	current := pr.findLocked(entry.Type, entry.ID())
	var loader Loader
	if current != nil {
		loader = current.loader
	}
	pr.mu.RUnlock()
	if current == nil {
		return nil, NewRegistryError("plugin not registered: "+entry.Type+"/"+entry.ID(), nil)
	}
	if loader == nil {
		return nil, NewLoaderNotReadyError(entry.Type, entry.ID())
	}
	return loader, nil
}

// Subscribe implements Registry.
func (pr *PluginRegistry) Subscribe() *Subscription {
	sub := &Subscription{
		id:     uuid.New().String(),
		ch:     make(chan struct{}, 1),
		cancel: pr.unsubscribe,
	}
	pr.subMu.Lock()
	pr.subscribers[sub.id] = sub
	pr.subMu.Unlock()
	return sub
}

// Unsubscribe removes sub. Equivalent to sub.Close().
func (pr *PluginRegistry) Unsubscribe(sub *Subscription) {
	sub.Close()
}

func (pr *PluginRegistry) unsubscribe(sub *Subscription) {
	pr.subMu.Lock()
	delete(pr.subscribers, sub.id)
	pr.subMu.Unlock()
}

// broadcast wakes every subscriber; a waiter cannot tell which mutation it needs.
func (pr *PluginRegistry) broadcast() {
	pr.subMu.Lock()
	defer pr.subMu.Unlock()
	for _, sub := range pr.subscribers {
		sub.notify()
	}
}

// Stats returns a point-in-time summary.
func (pr *PluginRegistry) Stats() RegistryStats {
	pr.mu.RLock()
	stats := RegistryStats{
		PluginTypes:    len(pr.types),
		Mutations:      pr.mutations,
		LastMutationAt: time.Unix(0, pr.lastMutationNs),
		PluginsByType:  make(map[string]int),
		PendingByType:  make(map[string]int),
	}
	for t, list := range pr.plugins {
		stats.PluginsByType[t] = len(list)
		stats.Plugins += len(list)
		for _, e := range list {
			if e.loader != nil {
				stats.ReadyPlugins++
			} else {
				stats.PendingByType[t]++
			}
		}
	}
	pr.mu.RUnlock()

	pr.subMu.Lock()
	stats.Subscribers = len(pr.subscribers)
	pr.subMu.Unlock()
	return stats
}

// Snapshot returns the current plugin ids grouped by type, each list sorted.
func (pr *PluginRegistry) Snapshot() map[string][]string {
	pr.mu.RLock()
	defer pr.mu.RUnlock()
	out := make(map[string][]string, len(pr.types))
	for t := range pr.types {
		ids := []string{}
		for _, e := range pr.plugins[t] {
			ids = append(ids, e.ID())
		}
		sort.Strings(ids)
		out[t] = ids
	}
	return out
}

func (pr *PluginRegistry) findLocked(pluginType, id string) *PluginEntry {
	for _, e := range pr.plugins[pluginType] {
		if e.Matches(id) {
			return e
		}
	}
	return nil
}

func (pr *PluginRegistry) recordMutationLocked() {
	pr.mutations++
	pr.lastMutationNs = timecache.CachedTimeNano()
}
