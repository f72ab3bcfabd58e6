// Package shimbridge resolves types, resources and object construction for a
// code bundle that straddles two module systems: the host's bundle system and
// a legacy plugin registry that is populated asynchronously.
//
// A Bridge is created per bundle. Type lookups consult the bundle's own
// entries first, so a bundle can shadow a legacy type of the same name, and
// only then the loader of a designated legacy plugin. That plugin may not be
// registered yet when the first lookup arrives; the ReadinessGate blocks the
// caller until the registry can hand out its loader, or the caller's context
// ends.
//
// Key Features:
//   - Bundle-first type resolution with memoized, identity-stable types
//   - Wiring-first resource resolution that never waits on the registry
//   - Cancellable waits for legacy plugin readiness, driven by registry notifications
//   - Constructor selection by the runtime shape of arguments
//   - YAML descriptor and WebAssembly (wazero) unit formats
//   - Registry population from a watched manifest file (Argus)
//   - Plugin readiness exposed through the grpc health protocol
//
// Basic Usage:
//
//	registry := shimbridge.NewPluginRegistry(logger)
//
//	table := shimbridge.NewConstructorTable()
//	table.MustRegister("org.example.shim.Configuration",
//		shimbridge.Ctor1("by-name", func(name string) (any, error) {
//			return &Configuration{Name: name}, nil
//		}))
//
//	bundle := shimbridge.NewFSBundle(shimbridge.BundleRef{ID: 7, SymbolicName: "shim-cdh"}, os.DirFS("bundle"))
//	bridge, err := shimbridge.NewBridge(shimbridge.GetDefaultBridgeConfig(), bundle, registry,
//		shimbridge.WithConstructorTable(table))
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	obj, err := bridge.Create(ctx, "org.example.shim.Configuration", []any{"cdh61"})
//
// Errors:
// Failures carry go-errors codes. Use IsCanceled, IsNotFound, IsMalformedUnit,
// IsNoMatchingConstructor and IsConstructionFailed to classify them, and
// ToGRPCStatus to report them over grpc.
//
// Copyright (c) 2025 AGILira - A. Giordano
// SPDX-License-Identifier: MPL-2.0
package shimbridge
