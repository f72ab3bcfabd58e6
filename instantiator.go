// instantiator.go: Object construction by type name and runtime arguments
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package shimbridge

import (
	"context"
	"sync/atomic"
)

// TypeResolver resolves a type name. DualResolver and Bridge satisfy it.
type TypeResolver interface {
	ResolveClass(ctx context.Context, name string) (*LoadedType, error)
}

// InstantiatorStats counts Create outcomes.
type InstantiatorStats struct {
	Created            int64 `json:"created"`
	NoMatch            int64 `json:"no_match"`
	ConstructionFailed int64 `json:"construction_failed"`
	ResolutionFailed   int64 `json:"resolution_failed"`
	RecoveredPanics    int64 `json:"recovered_panics"`
}

// DynamicInstantiator creates objects of types found through a resolver,
// choosing the constructor variant from the runtime shape of the arguments.
type DynamicInstantiator struct {
	resolver TypeResolver
	logger   Logger

	created            atomic.Int64
	noMatch            atomic.Int64
	constructionFailed atomic.Int64
	resolutionFailed   atomic.Int64
	recoveredPanics    atomic.Int64
}

// NewDynamicInstantiator creates an instantiator over resolver.
func NewDynamicInstantiator(resolver TypeResolver, logger any) *DynamicInstantiator {
	return &DynamicInstantiator{
		resolver: resolver,
		logger:   NewLogger(logger),
	}
}

// Create resolves className and invokes the first declared constructor whose
// arity equals len(args) and whose parameters accept every argument. A nil
// argument is compatible with any parameter. nil and empty args both select
// the zero-argument constructor.
//
// Resolution errors are returned unchanged. No compatible constructor yields
// NoMatchingConstructor; a constructor that returns an error or panics
// yields ConstructionFailed.
func (d *DynamicInstantiator) Create(ctx context.Context, className string, args []any) (any, error) {
	if args == nil {
		args = []any{}
	}

	t, err := d.resolver.ResolveClass(ctx, className)
	if err != nil {
		d.resolutionFailed.Add(1)
		return nil, err
	}

	ctor, ok := SelectConstructor(t, args)
	if !ok {
		d.noMatch.Add(1)
		return nil, NewNoMatchingConstructorError(className, args)
	}

	obj, err := callRecovering(func() (any, error) {
		return ctor.Build(args)
	})
	if err != nil {
		d.constructionFailed.Add(1)
		if p, isPanic := err.(*PanicError); isPanic {
			d.recoveredPanics.Add(1)
			d.logger.Error("Constructor panicked",
				"class", className, "constructor", ctor.Label, "panic", p.Value)
		}
		return nil, NewConstructionFailedError(className, ctor.Label, err)
	}

	d.created.Add(1)
	d.logger.Debug("Created instance", "class", className, "constructor", ctor.Label)
	return obj, nil
}

// SelectConstructor returns the first constructor of t, in declaration
// order, that accepts args.
func SelectConstructor(t *LoadedType, args []any) (Constructor, bool) {
	for _, ctor := range t.Constructors() {
		if ctor.Accepts(args) {
			return ctor, true
		}
	}
	return Constructor{}, false
}

// Stats returns the instantiator counters.
func (d *DynamicInstantiator) Stats() InstantiatorStats {
	return InstantiatorStats{
		Created:            d.created.Load(),
		NoMatch:            d.noMatch.Load(),
		ConstructionFailed: d.constructionFailed.Load(),
		ResolutionFailed:   d.resolutionFailed.Load(),
		RecoveredPanics:    d.recoveredPanics.Load(),
	}
}
