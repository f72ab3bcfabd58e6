// readiness_gate.go: Blocking wait for legacy plugin readiness
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package shimbridge

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/agilira/go-timecache"
	"github.com/google/uuid"
)

// ReadinessRequest identifies one pending AwaitDelegate call.
type ReadinessRequest struct {
	ID         string
	PluginType string
	PluginID   string
	Started    time.Time
}

// RegistrySnapshot is what one poll of the registry observed. A negative
// result is only valid at TakenAt.
type RegistrySnapshot struct {
	Types   []string
	Entry   *PluginEntry
	TakenAt time.Time
}

// HasType reports whether the snapshot lists pluginType.
func (s RegistrySnapshot) HasType(pluginType string) bool {
	for _, t := range s.Types {
		if t == pluginType {
			return true
		}
	}
	return false
}

// GateStats counts AwaitDelegate outcomes.
type GateStats struct {
	Started   int64 `json:"started"`
	Satisfied int64 `json:"satisfied"`
	Canceled  int64 `json:"canceled"`
	Waiting   int64 `json:"waiting"`
	Wakeups   int64 `json:"wakeups"`
}

// ReadinessGate blocks callers until the registry can hand out the loader
// of a given plugin.
//
// The gate never polls on a timer. It subscribes to registry mutations
// before taking each snapshot, so a mutation between snapshot and wait is
// never lost, and it re-evaluates the whole condition after every wake-up.
// There is no built-in timeout: bound the wait through ctx.
type ReadinessGate struct {
	registry Registry
	logger   Logger

	started   atomic.Int64
	satisfied atomic.Int64
	canceled  atomic.Int64
	waiting   atomic.Int64
	wakeups   atomic.Int64
}

// NewReadinessGate creates a gate over registry.
func NewReadinessGate(registry Registry, logger any) *ReadinessGate {
	return &ReadinessGate{
		registry: registry,
		logger:   NewLogger(logger),
	}
}

// AwaitDelegate implements DelegateSource.
//
// Registry lookup failures are treated as "not yet" and retried on the next
// mutation. The only error returned is Canceled, when ctx ends first.
func (g *ReadinessGate) AwaitDelegate(ctx context.Context, pluginType, pluginID string) (Loader, error) {
	req := ReadinessRequest{
		ID:         uuid.New().String(),
		PluginType: pluginType,
		PluginID:   pluginID,
		Started:    time.Unix(0, timecache.CachedTimeNano()),
	}
	logger := g.logger.With("request_id", req.ID, "plugin_type", pluginType, "plugin_id", pluginID)

	g.started.Add(1)
	g.waiting.Add(1)
	defer g.waiting.Add(-1)

	sub := g.registry.Subscribe()
	defer sub.Close()

	for {
		loader, reason := g.tryResolve(req)
		if loader != nil {
			g.satisfied.Add(1)
			logger.Debug("Delegate loader available", "waited", time.Since(req.Started))
			return loader, nil
		}
		if err := ctx.Err(); err != nil {
			return nil, g.cancel(logger, req, err)
		}
		logger.Debug("Waiting for plugin registry", "reason", reason)

		select {
		case <-ctx.Done():
			return nil, g.cancel(logger, req, ctx.Err())
		case <-sub.C():
			g.wakeups.Add(1)
		}
	}
}

// tryResolve runs one full check against fresh snapshots. It returns the
// loader, or nil and a description of what is still missing.
func (g *ReadinessGate) tryResolve(req ReadinessRequest) (Loader, string) {
	typesSnapshot := RegistrySnapshot{
		Types:   g.registry.PluginTypes(),
		TakenAt: time.Unix(0, timecache.CachedTimeNano()),
	}
	if !typesSnapshot.HasType(req.PluginType) {
		return nil, "plugin type not registered"
	}

	entry, err := g.registry.GetPlugin(req.PluginType, req.PluginID)
	if err != nil {
		return nil, "plugin lookup failed: " + err.Error()
	}
	entrySnapshot := RegistrySnapshot{
		Types:   typesSnapshot.Types,
		Entry:   entry,
		TakenAt: time.Unix(0, timecache.CachedTimeNano()),
	}
	if entrySnapshot.Entry == nil {
		return nil, "plugin not registered"
	}

	loader, err := g.registry.ClassLoader(entrySnapshot.Entry)
	if err != nil {
		return nil, "loader unavailable: " + err.Error()
	}
	if loader == nil {
		return nil, "loader unavailable"
	}
	return loader, ""
}

func (g *ReadinessGate) cancel(logger Logger, req ReadinessRequest, cause error) error {
	g.canceled.Add(1)
	logger.Info("Delegate wait canceled", "waited", time.Since(req.Started), "cause", cause)
	return NewCanceledError(req.PluginType, req.PluginID, cause).
		WithContext("request_id", req.ID)
}

// Stats returns the gate counters.
func (g *ReadinessGate) Stats() GateStats {
	return GateStats{
		Started:   g.started.Load(),
		Satisfied: g.satisfied.Load(),
		Canceled:  g.canceled.Load(),
		Waiting:   g.waiting.Load(),
		Wakeups:   g.wakeups.Load(),
	}
}
