// bridge.go: Per-bundle facade wiring gate, resolver and instantiator
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package shimbridge

import (
	"context"
	"os"
	"time"

	"github.com/tetratelabs/wazero"
)

// Bridge is the resolution entry point for one bundle. Create one per host
// module instantiation; bridges share nothing but the registry.
type Bridge struct {
	config       BridgeConfig
	registry     Registry
	gate         *ReadinessGate
	delegates    DelegateSource
	resolver     *DualResolver
	instantiator *DynamicInstantiator
	table        *ConstructorTable
	logger       Logger

	wasmRuntime wazero.Runtime
	ownsRuntime bool
}

type bridgeOptions struct {
	logger    any
	parent    Loader
	delegates DelegateSource
	table     *ConstructorTable
	runtime   wazero.Runtime
}

// BridgeOption configures NewBridge.
type BridgeOption func(*bridgeOptions)

// WithBridgeLogger sets the logger (Logger, *zap.Logger or *zap.SugaredLogger).
func WithBridgeLogger(logger any) BridgeOption {
	return func(o *bridgeOptions) { o.logger = logger }
}

// WithParentLoader sets the loader consulted by LoadClass and ResolveResource
// after the bundle's own sources.
func WithParentLoader(parent Loader) BridgeOption {
	return func(o *bridgeOptions) { o.parent = parent }
}

// WithDelegateSource replaces the registry readiness gate as the source of
// the target plugin's loader.
func WithDelegateSource(source DelegateSource) BridgeOption {
	return func(o *bridgeOptions) { o.delegates = source }
}

// WithConstructorTable sets the table unit definers take constructors from.
func WithConstructorTable(table *ConstructorTable) BridgeOption {
	return func(o *bridgeOptions) { o.table = table }
}

// WithWasmRuntime sets the runtime compiling ".wasm" units. The caller keeps
// ownership. Without it a bridge that accepts wasm units creates and closes
// its own runtime.
func WithWasmRuntime(runtime wazero.Runtime) BridgeOption {
	return func(o *bridgeOptions) { o.runtime = runtime }
}

// NewBridge creates a bridge for bundle. registry may be nil only when
// WithDelegateSource is given.
func NewBridge(config BridgeConfig, bundle Bundle, registry Registry, opts ...BridgeOption) (*Bridge, error) {
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if bundle == nil {
		return nil, NewConfigValidationError("bundle cannot be nil", nil)
	}

	var o bridgeOptions
	for _, opt := range opts {
		opt(&o)
	}
	if registry == nil && o.delegates == nil {
		return nil, NewConfigValidationError("a registry or a delegate source is required", nil)
	}
	if o.table == nil {
		o.table = NewConstructorTable()
	}

	logger := NewLogger(o.logger).With("bundle", bundle.Ref().String(), "target", config.Target.String())
	b := &Bridge{
		config:   config,
		registry: registry,
		table:    o.table,
		logger:   logger,
	}

	b.delegates = o.delegates
	if b.delegates == nil {
		b.gate = NewReadinessGate(registry, logger)
		b.delegates = b.gate
	}
	if timeout := config.AwaitTimeout.Std(); timeout > 0 {
		b.delegates = deadlineDelegateSource{inner: b.delegates, timeout: timeout}
	}

	formats, err := b.unitFormats(o.runtime)
	if err != nil {
		return nil, err
	}

	b.resolver = NewDualResolver(bundle, o.parent, b.delegates, config.Target,
		WithResolverLogger(logger),
		WithUnitFormats(formats...),
		WithEntryDepth(config.EntryDepth))
	b.instantiator = NewDynamicInstantiator(b.resolver, logger)

	logger.Debug("Bridge created", "unit_formats", config.UnitFormats, "await_timeout", config.AwaitTimeout.String())
	return b, nil
}

// NewBridgeFromConfig creates a bridge over the directory config.Bundle.Root.
func NewBridgeFromConfig(config BridgeConfig, registry Registry, opts ...BridgeOption) (*Bridge, error) {
	if config.Bundle.Root == "" {
		return nil, NewConfigValidationError("bundle root cannot be empty", nil)
	}
	info, err := os.Stat(config.Bundle.Root)
	if err != nil {
		return nil, NewBundleError(config.Bundle.Root, "cannot open bundle root", err)
	}
	if !info.IsDir() {
		return nil, NewBundleError(config.Bundle.Root, "bundle root is not a directory", nil)
	}
	bundle := NewFSBundle(config.Bundle.Ref(), os.DirFS(config.Bundle.Root))
	return NewBridge(config, bundle, registry, opts...)
}

func (b *Bridge) unitFormats(runtime wazero.Runtime) ([]UnitFormat, error) {
	formats := make([]UnitFormat, 0, len(b.config.UnitFormats))
	for _, suffix := range b.config.UnitFormats {
		switch suffix {
		case DescriptorSuffix:
			formats = append(formats, UnitFormat{Suffix: suffix, Definer: NewDescriptorDefiner(b.table)})
		case WasmSuffix:
			if runtime == nil {
				runtime = wazero.NewRuntime(context.Background())
				b.ownsRuntime = true
			}
			b.wasmRuntime = runtime
			formats = append(formats, UnitFormat{Suffix: suffix, Definer: NewWasmDefiner(runtime, b.table)})
		default:
			return nil, NewConfigValidationError("unsupported unit format: "+suffix, nil)
		}
	}
	return formats, nil
}

// ResolveClass resolves name, bundle entries first, then the target plugin.
func (b *Bridge) ResolveClass(ctx context.Context, name string) (*LoadedType, error) {
	return b.resolver.ResolveClass(ctx, name)
}

// ResolveResource resolves a resource path without waiting on the registry.
func (b *Bridge) ResolveResource(path string) (*Resource, error) {
	return b.resolver.ResolveResource(path)
}

// LoadClass resolves name through local types, the parent and the wiring.
func (b *Bridge) LoadClass(ctx context.Context, name string) (*LoadedType, error) {
	return b.resolver.LoadClass(ctx, name)
}

// Create instantiates className with args.
func (b *Bridge) Create(ctx context.Context, className string, args []any) (any, error) {
	obj, err := b.instantiator.Create(ctx, className, args)
	if err != nil {
		LogResolutionError(b.logger, "Create failed", err, "class", className)
	}
	return obj, err
}

// AwaitDelegate blocks until the target plugin's loader is available.
func (b *Bridge) AwaitDelegate(ctx context.Context) (Loader, error) {
	return b.delegates.AwaitDelegate(ctx, b.config.Target.PluginType, b.config.Target.PluginID)
}

// ModuleOf returns the bundle owning t, if the bridge defined it.
func (b *Bridge) ModuleOf(t *LoadedType) (BundleRef, bool) {
	return b.resolver.ModuleOf(t)
}

// Resolver returns the underlying resolver.
func (b *Bridge) Resolver() *DualResolver { return b.resolver }

// Config returns the effective configuration.
func (b *Bridge) Config() BridgeConfig { return b.config }

// NewHealthReporter creates a readiness reporter for the bridge's target.
// It requires the bridge to have a registry.
func (b *Bridge) NewHealthReporter() (*ReadinessHealthReporter, error) {
	if b.registry == nil {
		return nil, NewConfigValidationError("health reporting requires a registry", nil)
	}
	return NewReadinessHealthReporter(b.registry, b.config.Target, b.config.Health.Service, b.logger), nil
}

// BridgeStats aggregates component counters.
type BridgeStats struct {
	Resolver     ResolverStats     `json:"resolver"`
	Instantiator InstantiatorStats `json:"instantiator"`
	Gate         *GateStats        `json:"gate,omitempty"`
}

// Stats returns the counters of every component.
func (b *Bridge) Stats() BridgeStats {
	stats := BridgeStats{
		Resolver:     b.resolver.Stats(),
		Instantiator: b.instantiator.Stats(),
	}
	if b.gate != nil {
		gs := b.gate.Stats()
		stats.Gate = &gs
	}
	return stats
}

// Close releases the wasm runtime if the bridge created it.
func (b *Bridge) Close(ctx context.Context) error {
	if b.ownsRuntime && b.wasmRuntime != nil {
		return b.wasmRuntime.Close(ctx)
	}
	return nil
}

// deadlineDelegateSource bounds every wait of inner by timeout.
type deadlineDelegateSource struct {
	inner   DelegateSource
	timeout time.Duration
}

func (d deadlineDelegateSource) AwaitDelegate(ctx context.Context, pluginType, pluginID string) (Loader, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	return d.inner.AwaitDelegate(ctx, pluginType, pluginID)
}
